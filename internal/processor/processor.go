package processor

import (
	"time"

	"github.com/nylssoft/goadaptivefirewall/internal/classifier"
	"github.com/nylssoft/goadaptivefirewall/internal/config"
	"github.com/nylssoft/goadaptivefirewall/internal/engine"
	"github.com/nylssoft/goadaptivefirewall/internal/event"
	"github.com/nylssoft/goadaptivefirewall/internal/firewall"
	"github.com/nylssoft/goadaptivefirewall/internal/journal"
)

// Runs security events through the blocking pipeline.
//
// A failure is skipped if it has no valid address, matches an ignore rule or comes from a local
// address. Otherwise the engine decides whether the address is blocked in the firewall.
type Processor interface {
	// Processes a single event. Returns the block request if the address has to be blocked.
	Process(rec event.Record) (engine.BlockRequest, bool, error)
	// Processes all new events of an event export file.
	// Events created before lastTime, events older than the tracking window and events
	// already stored in the journal are skipped.
	// Returns the creation time of the newest processed event.
	ProcessFile(filename string, lastTime time.Time) (time.Time, error)
}

// Creates a new processor. The function now returns the current time, time.Now is used if nil.
func NewProcessor(cfg config.Config, classifier classifier.Classifier, engine engine.Engine, firewall firewall.Firewall, journal journal.Journal, now func() time.Time) Processor {
	var p processor_impl
	p.now = now
	if p.now == nil {
		p.now = time.Now
	}
	p.config = cfg
	p.classifier = classifier
	p.engine = engine
	p.firewall = firewall
	p.journal = journal
	return &p
}
