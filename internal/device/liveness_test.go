package device

import (
	"context"
	"testing"
	"time"
)

func TestTracker_SweepFlipsStaleDevices(t *testing.T) {
	s := newTestStore()
	d := NewDispatcher()
	c := &collector{}
	d.Subscribe(c)

	ctx := context.Background()
	s.Upsert(ctx, "esp32-001", Update{Heartbeat: true})
	s.Upsert(ctx, "esp32-002", Update{Heartbeat: true})

	tracker := NewTracker(s, d, time.Second)

	// Nothing stale yet.
	tracker.Sweep()
	if c.count() != 0 {
		t.Fatalf("deliveries = %d, want 0 before window expires", c.count())
	}

	s.now = func() time.Time { return time.Now().Add(testWindow + time.Minute) }
	tracker.Sweep()

	// Two devices flipped, two events broadcast per device.
	if c.count() != 4 {
		t.Fatalf("deliveries = %d, want 4", c.count())
	}
	seen := map[string]int{}
	for _, ev := range c.events {
		seen[ev]++
	}
	if seen[EventDeviceStatusUpdate] != 2 || seen[EventESP32Status] != 2 {
		t.Errorf("event mix = %v", seen)
	}
	for _, raw := range c.loads {
		payload := raw.(StatusPayload)
		if payload.Online {
			t.Errorf("device %s broadcast as online after sweep", payload.DeviceID)
		}
	}

	// A second sweep finds nothing new to flip.
	tracker.Sweep()
	if c.count() != 4 {
		t.Errorf("deliveries after repeat sweep = %d, want 4", c.count())
	}
}

func TestTracker_SweepNeverMarksOnline(t *testing.T) {
	s := newTestStore()
	d := NewDispatcher()
	c := &collector{}
	d.Subscribe(c)

	ctx := context.Background()
	s.Upsert(ctx, "esp32-001", Update{Heartbeat: true})
	s.now = func() time.Time { return time.Now().Add(testWindow + time.Minute) }
	NewTracker(s, d, time.Second).Sweep()

	// Fresh heartbeat brings it back; the next sweep must not touch it.
	s.now = time.Now
	s.Upsert(ctx, "esp32-001", Update{Heartbeat: true})
	before := c.count()
	NewTracker(s, d, time.Second).Sweep()
	if c.count() != before {
		t.Errorf("sweep broadcast for a live device")
	}
	rec, _ := s.Get("esp32-001")
	if !rec.Online {
		t.Error("device offline after fresh heartbeat")
	}
}

func TestTracker_NotificationFailureIsContained(t *testing.T) {
	s := newTestStore()
	d := NewDispatcher()
	d.Subscribe(SubscriberFunc(func(event string, payload any) {
		panic("consumer bug")
	}))

	ctx := context.Background()
	s.Upsert(ctx, "esp32-001", Update{Heartbeat: true})
	s.Upsert(ctx, "esp32-002", Update{Heartbeat: true})
	s.now = func() time.Time { return time.Now().Add(testWindow + time.Minute) }

	tracker := NewTracker(s, d, time.Second)
	tracker.Sweep() // must not panic

	for _, id := range []string{"esp32-001", "esp32-002"} {
		rec, _ := s.Get(id)
		if rec.Online {
			t.Errorf("%s still online after sweep", id)
		}
	}
}

func TestTracker_RunStopsOnContextCancel(t *testing.T) {
	s := newTestStore()
	tracker := NewTracker(s, NewDispatcher(), 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tracker.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
