package device

import (
	"context"
	"time"
)

// Tracker periodically scans the store and flips devices offline once
// their last contact has aged past the liveness window. It never marks a
// device online; only a fresh heartbeat or update can do that.
type Tracker struct {
	store      *Store
	dispatcher *Dispatcher
	interval   time.Duration
	logger     Logger
}

// NewTracker creates a liveness tracker sweeping at the given interval.
// The offline threshold is the store's liveness window.
func NewTracker(store *Store, dispatcher *Dispatcher, interval time.Duration) *Tracker {
	return &Tracker{
		store:      store,
		dispatcher: dispatcher,
		interval:   interval,
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the tracker.
func (t *Tracker) SetLogger(logger Logger) {
	t.logger = logger
}

// Run starts the sweep loop. It blocks until the context is cancelled.
// Failures inside a sweep are contained and logged; they never crash
// the process or stop subsequent sweeps.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep()
		}
	}
}

// Sweep performs a single liveness pass, broadcasting a status change for
// every device that went offline. Each notification is isolated so one
// failure cannot abort the rest of the pass.
func (t *Tracker) Sweep() {
	flipped := t.store.MarkStale()
	for _, rec := range flipped {
		t.notify(rec)
	}
	if len(flipped) > 0 {
		t.logger.Info("devices marked offline", "count", len(flipped))
	}
}

func (t *Tracker) notify(rec Record) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("offline notification failed", "device_id", rec.ID, "panic", r)
		}
	}()
	t.dispatcher.PublishDevice(EventDeviceStatusUpdate, rec)
	t.dispatcher.PublishDevice(EventESP32Status, rec)
}
