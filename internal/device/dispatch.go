package device

import (
	"sync"
)

// Event names carried on the push channel to consumers.
const (
	EventDeviceUpdate       = "device-update"
	EventDeviceHeartbeat    = "device-heartbeat"
	EventDeviceStatusUpdate = "device-status-update"
	EventTallyStatus        = "tally-status"
	EventESP32Status        = "esp32-status"
	EventOBSStatus          = "obs-status"
)

// Subscriber consumes broadcast events. Deliver must not block for long;
// slow consumers are expected to buffer or drop internally.
type Subscriber interface {
	Deliver(event string, payload any)
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(event string, payload any)

// Deliver calls f(event, payload).
func (f SubscriberFunc) Deliver(event string, payload any) {
	f(event, payload)
}

// Dispatcher fans change notifications out to a dynamic set of subscribers.
//
// Delivery is best-effort and unordered across subscribers: each send is
// isolated, so a panicking or failing consumer never affects the others,
// and nothing is retried or persisted. A newly connecting consumer must
// request a full snapshot to resynchronise.
type Dispatcher struct {
	mu     sync.RWMutex
	subs   map[int]Subscriber
	nextID int
	logger Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		subs:   make(map[int]Subscriber),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// Subscribe registers a consumer and returns a function that removes it.
func (d *Dispatcher) Subscribe(sub Subscriber) (unsubscribe func()) {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.subs[id] = sub
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(d.subs, id)
		d.mu.Unlock()
	}
}

// SubscriberCount returns the number of registered subscribers.
func (d *Dispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs)
}

// Publish delivers the event to every subscriber. The subscriber set is
// snapshotted under the lock and released before delivery, so a Deliver
// implementation may itself subscribe or unsubscribe.
func (d *Dispatcher) Publish(event string, payload any) {
	d.mu.RLock()
	subs := make([]Subscriber, 0, len(d.subs))
	for _, sub := range d.subs {
		subs = append(subs, sub)
	}
	d.mu.RUnlock()

	for _, sub := range subs {
		d.deliver(sub, event, payload)
	}
}

// deliver sends to one subscriber, absorbing panics so one broken
// consumer cannot take down the broadcast path.
func (d *Dispatcher) deliver(sub Subscriber, event string, payload any) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("subscriber panicked during delivery", "event", event, "panic", r)
		}
	}()
	sub.Deliver(event, payload)
}

// PublishDevice broadcasts a single-device delta on the given event name.
func (d *Dispatcher) PublishDevice(event string, rec Record) {
	d.Publish(event, StatusOf(rec))
}

// PublishSnapshot broadcasts a bulk update covering the given records,
// keyed by device ID under "deviceStatus".
func (d *Dispatcher) PublishSnapshot(records []Record) {
	status := make(map[string]StatusPayload, len(records))
	for _, rec := range records {
		status[rec.ID] = StatusOf(rec)
	}
	d.Publish(EventDeviceStatusUpdate, map[string]any{"deviceStatus": status})
}
