package processor

import (
	"log"
	"os"
	"time"

	"github.com/nylssoft/goadaptivefirewall/internal/classifier"
	"github.com/nylssoft/goadaptivefirewall/internal/config"
	"github.com/nylssoft/goadaptivefirewall/internal/engine"
	"github.com/nylssoft/goadaptivefirewall/internal/event"
	"github.com/nylssoft/goadaptivefirewall/internal/firewall"
	"github.com/nylssoft/goadaptivefirewall/internal/journal"
	"github.com/nylssoft/goadaptivefirewall/internal/subnet"
)

type processor_impl struct {
	config     config.Config
	classifier classifier.Classifier
	engine     engine.Engine
	firewall   firewall.Firewall
	journal    journal.Journal
	now        func() time.Time
}

func (p *processor_impl) Process(rec event.Record) (engine.BlockRequest, bool, error) {
	failure, err := event.Parse(rec)
	if err != nil {
		log.Println("ERROR: Failed to parse event.", err)
		return engine.BlockRequest{}, false, err
	}
	return p.processFailure(failure)
}

func (p *processor_impl) ProcessFile(filename string, lastTime time.Time) (time.Time, error) {
	if p.config.IsVerbose() {
		log.Printf("Process events in file '%s'. Last processed event: %s.\n", filename, lastTime)
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return lastTime, err
	}
	records, err := event.Decode(data)
	if err != nil {
		// the export may still be written, keep the complete records
		log.Printf("WARN: Failed to decode events in file '%s': %s\n", filename, err.Error())
	}
	// failures outside the window cannot contribute to a block anymore
	cutoff := p.now().Add(-p.config.Window())
	insertCnt, skipCnt, oldCnt, errCnt := 0, 0, 0, 0
	for _, rec := range records {
		created := rec.TimeCreated()
		if created != nil && created.Before(lastTime) {
			continue
		}
		if created != nil && created.Before(cutoff) {
			oldCnt++
			lastTime = *created
			continue
		}
		failure, err := event.Parse(rec)
		if err != nil || failure.Kind == event.KIND_UNKNOWN {
			continue
		}
		skipped, err := p.journal.Insert(filename, failure, journal.Hash(rec.Raw()))
		if err != nil {
			log.Printf("ERROR: Failed to insert event %d of IP %s: %s\n", failure.EventID, failure.Address, err.Error())
			errCnt++
		} else if skipped {
			skipCnt++
		} else {
			insertCnt++
			if _, _, err = p.processFailure(failure); err != nil {
				errCnt++
			}
		}
		if created != nil && created.After(lastTime) {
			lastTime = *created
		}
	}
	if p.config.IsVerbose() && (insertCnt > 0 || skipCnt > 0 || oldCnt > 0 || errCnt > 0) {
		log.Printf("Processed %d events. Skipped %d events. Skipped %d outdated events. Errors occurred in %d events.\n", insertCnt, skipCnt, oldCnt, errCnt)
	}
	return lastTime, nil
}

func (p *processor_impl) processFailure(failure event.SecurityFailure) (engine.BlockRequest, bool, error) {
	start := time.Now()
	verbose := p.config.IsVerbose()
	if verbose {
		defer func() {
			log.Printf("Processed %s event %d in %s.\n", failure.Kind, failure.EventID, time.Since(start))
		}()
	}
	if failure.Kind == event.KIND_UNKNOWN {
		return engine.BlockRequest{}, false, nil
	}
	if len(failure.Address) == 0 {
		if verbose {
			log.Printf("Skip %s event %d without IP address.\n", failure.Kind, failure.EventID)
		}
		return engine.BlockRequest{}, false, nil
	}
	addr, err := subnet.ParseAddress(failure.Address)
	if err != nil {
		log.Printf("WARN: Skip %s event %d. %s\n", failure.Kind, failure.EventID, err.Error())
		return engine.BlockRequest{}, false, nil
	}
	ip := addr.String()
	if p.config.IsIgnoredFailure(ip, failure.Username, failure.Domain, failure.EventID) {
		return engine.BlockRequest{}, false, nil
	}
	local, err := p.classifier.IsLocal(ip)
	if err != nil {
		log.Printf("WARN: Skip %s event %d. %s\n", failure.Kind, failure.EventID, err.Error())
		return engine.BlockRequest{}, false, nil
	}
	if local {
		if verbose {
			log.Printf("Skip %s event %d of local IP %s.\n", failure.Kind, failure.EventID, ip)
		}
		return engine.BlockRequest{}, false, nil
	}
	req, ok, err := p.engine.Decide(failure, addr)
	if err != nil {
		log.Printf("ERROR: Failed to decide on %s event %d of IP %s: %s\n", failure.Kind, failure.EventID, ip, err.Error())
		return engine.BlockRequest{}, false, err
	}
	if !ok {
		return req, false, nil
	}
	log.Printf("Detected %s of IP %s (%d failures, user '%s').\n", req.Reason, ip, req.ObservedCount, failure.Username)
	if verbose {
		total, err := p.journal.Count(ip, p.now().Add(-p.config.DatabaseRetention()))
		if err != nil {
			log.Println("WARN: Failed to count journal events.", err)
		} else {
			log.Printf("Journal contains %d events of IP %s.\n", total, ip)
		}
	}
	p.firewall.Block(ip)
	return req, true, nil
}
