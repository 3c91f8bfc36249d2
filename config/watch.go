package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// LiveSafeUpdate carries the subset of AppConfig fields that hot reload is
// allowed to change while the agent is running: quoting parameters,
// thresholds, and ambient sink config. Symbol, venue credentials, and
// market precision are not in this set — changing any of those requires a
// restart.
type LiveSafeUpdate struct {
	SpreadBps           float64
	TakeProfitBps       float64
	RequoteThresholdBps float64
	MinOrderAgeMs       int
	OrderSizeUSD        float64
	CloseThresholdUSD   float64
	UpdateThrottleMs    int
	Log                 LogConfig
	Alert               AlertConfig
}

func liveSafeUpdateOf(cfg AppConfig) LiveSafeUpdate {
	return LiveSafeUpdate{
		SpreadBps:           cfg.SpreadBps,
		TakeProfitBps:       cfg.TakeProfitBps,
		RequoteThresholdBps: cfg.RequoteThresholdBps,
		MinOrderAgeMs:       cfg.MinOrderAgeMs,
		OrderSizeUSD:        cfg.OrderSizeUSD,
		CloseThresholdUSD:   cfg.CloseThresholdUSD,
		UpdateThrottleMs:    cfg.UpdateThrottleMs,
		Log:                 cfg.Log,
		Alert:               cfg.Alert,
	}
}

// CooldownTime is the minimum gap between two applied reloads, so a burst
// of writes from an editor's save doesn't trigger repeated reparsing.
const CooldownTime = 2 * time.Second

// Watcher watches a config file for changes via fsnotify and, on a write or
// create event, reloads it and hands the caller only the live-safe subset
// of the new config.
type Watcher struct {
	Path string

	mu         sync.Mutex
	lastReload time.Time
	watcher    *fsnotify.Watcher
	stopChan   chan struct{}
	doneChan   chan struct{}
}

// Start opens an fsnotify watch on Path and invokes onUpdate with the
// live-safe fields of the reloaded config on the first write or create
// event after each CooldownTime gap. The reload happens at once, without
// waiting for further writes; events that arrive inside the gap are
// dropped, and a reload that fails to load or validate is skipped.
func (w *Watcher) Start(ctx context.Context, onUpdate func(LiveSafeUpdate)) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: fsnotify init failed: %w", err)
	}
	if err := fw.Add(w.Path); err != nil {
		fw.Close()
		return fmt.Errorf("config: watch %s failed: %w", w.Path, err)
	}
	w.watcher = fw
	w.stopChan = make(chan struct{})
	w.doneChan = make(chan struct{})

	go w.watch(ctx, onUpdate)
	return nil
}

func (w *Watcher) watch(ctx context.Context, onUpdate func(LiveSafeUpdate)) {
	defer close(w.doneChan)
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.handleChange(onUpdate)
		case <-w.watcher.Errors:
			continue
		}
	}
}

func (w *Watcher) handleChange(onUpdate func(LiveSafeUpdate)) {
	w.mu.Lock()
	if time.Since(w.lastReload) < CooldownTime {
		w.mu.Unlock()
		return
	}
	w.lastReload = time.Now()
	w.mu.Unlock()

	cfg, err := LoadWithEnvOverrides(w.Path)
	if err != nil {
		return
	}
	if onUpdate != nil {
		onUpdate(liveSafeUpdateOf(cfg))
	}
}

// Stop closes the watch and waits for the watch loop to exit.
func (w *Watcher) Stop() {
	if w.stopChan == nil {
		return
	}
	close(w.stopChan)
	<-w.doneChan
}
