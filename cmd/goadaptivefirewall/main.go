package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/nylssoft/goadaptivefirewall/internal/classifier"
	"github.com/nylssoft/goadaptivefirewall/internal/config"
	"github.com/nylssoft/goadaptivefirewall/internal/engine"
	"github.com/nylssoft/goadaptivefirewall/internal/executer"
	"github.com/nylssoft/goadaptivefirewall/internal/firewall"
	"github.com/nylssoft/goadaptivefirewall/internal/journal"
	"github.com/nylssoft/goadaptivefirewall/internal/processor"
	"github.com/nylssoft/goadaptivefirewall/internal/tracker"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

var flagConfig = flag.String("config", "", "config file")

type source struct {
	filename string
	lastTime time.Time
	pending  bool
}

func main() {
	flag.Parse()
	if len(*flagConfig) == 0 {
		fmt.Println("Usage: goadaptivefirewall -config <config-file>")
		os.Exit(1)
	}
	cfg := config.NewConfig()
	err := cfg.Init(*flagConfig)
	if err != nil {
		fmt.Println("ERROR:", err)
		os.Exit(1)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Fatal("Failed to create file watcher.", err)
	}
	defer watcher.Close()

	fw := firewall.NewFirewall(executer.NewExecuter(cfg.FirewallTimeout()), firewall.Options{
		Comment:     cfg.FirewallComment(),
		Delay:       cfg.FirewallDelay(),
		MaxFailures: cfg.FirewallMaxFailures(),
		Port:        cfg.FirewallPort(),
	})
	// release all previously blocked IP addresses if the process did not terminate appropriately
	fw.Init()
	fw.ReleaseAll()
	defer fw.ReleaseAll()

	tr := newTracker(cfg)
	cl := classifier.NewClassifier(cfg.LocalSubnets())
	jr := journal.NewJournal(cfg.DatabaseFilename())
	defer jr.Close()
	proc := processor.NewProcessor(cfg, cl, engine.NewEngine(tr, cfg.Threshold(), cfg.Window(), nil), fw, jr, nil)

	var sources []*source
	var dirs []string
	for _, filename := range cfg.EventFilenames() {
		// continue after the newest event processed before the restart
		lastTime, err := jr.LastTime(filename)
		if err != nil {
			log.Fatal("Failed to read last processed event from journal.", err)
		}
		if cfg.IsVerbose() && !lastTime.IsZero() {
			log.Printf("Continue processing of '%s' after %s.\n", filename, lastTime)
		}
		sources = append(sources, &source{filename: filename, lastTime: lastTime, pending: true})
		dir := filepath.Dir(filename)
		if !slices.Contains(dirs, dir) {
			dirs = append(dirs, dir)
		}
	}
	for _, dir := range dirs {
		if err = watcher.Add(dir); err != nil {
			log.Fatal("Failed to add directory to file watcher.", err)
		}
	}

	ticker := time.NewTicker(cfg.PollInterval())
	defer ticker.Stop()
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	for {
		select {
		case sig := <-stop:
			log.Printf("Shutdown signal %v received.\n", sig)
			return
		case <-reload:
			subnets, err := cfg.ReloadLocalSubnets()
			if err != nil {
				log.Println("ERROR: Failed to reload local subnets.", err)
				continue
			}
			cl.Reload(subnets)
		case ev := <-watcher.Events:
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			for _, s := range sources {
				if !s.pending && ev.Name == s.filename {
					s.pending = true
					if cfg.IsVerbose() {
						log.Printf("Detected modified event file '%s'. Process events on next schedule.\n", s.filename)
					}
				}
			}
		case <-ticker.C:
			processSources(proc, sources)
			fw.ReleaseIfExpired()
			compact(cfg, tr, jr)
		case err := <-watcher.Errors:
			log.Println("ERROR: Failed to watch directory.", err)
		}
	}
}

func newTracker(cfg config.Config) tracker.Tracker {
	if len(cfg.RedisAddr()) == 0 {
		return tracker.NewTracker(nil)
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr()})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Println("WARN: Redis server not reachable, failures are tracked in memory.", err)
		client.Close()
		return tracker.NewTracker(nil)
	}
	log.Println("Track failures in redis at", cfg.RedisAddr())
	return tracker.NewRedisTracker(client, cfg.RedisKeyPrefix(), nil)
}

func processSources(proc processor.Processor, sources []*source) {
	var g errgroup.Group
	for _, s := range sources {
		if !s.pending {
			continue
		}
		s.pending = false
		g.Go(func() error {
			lastTime, err := proc.ProcessFile(s.filename, s.lastTime)
			s.lastTime = lastTime
			if err != nil {
				return fmt.Errorf("failed to process event file '%s': %w", s.filename, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Println("ERROR:", err)
	}
}

func compact(cfg config.Config, tr tracker.Tracker, jr journal.Journal) {
	removed, err := tr.Compact(cfg.Window())
	if err != nil {
		log.Println("ERROR: Failed to compact failure tracker.", err)
	} else if removed > 0 && cfg.IsVerbose() {
		log.Println("Removed", removed, "addresses without recent failures.")
	}
	deleted, err := jr.Purge(time.Now().Add(-cfg.DatabaseRetention()))
	if err != nil {
		log.Println("ERROR: Failed to purge event journal.", err)
	} else if deleted > 0 && cfg.IsVerbose() {
		log.Println("Deleted", deleted, "events from the journal.")
	}
}
