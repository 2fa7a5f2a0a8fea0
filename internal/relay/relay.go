package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/stagelink/tally-core/internal/device"
	"github.com/stagelink/tally-core/internal/gateway"
	"github.com/stagelink/tally-core/internal/obs"
)

// ErrInvalidPayload is returned when a bulk payload does not carry the
// expected deviceStatus object.
var ErrInvalidPayload = errors.New("relay: invalid payload")

// Logger is the minimal logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// TallyPusher sends a tally state to a device over its command API.
type TallyPusher interface {
	PushTally(ctx context.Context, addr string, state device.TallyState, name, source string) (gateway.Result, error)
}

// StatusPublisher mirrors device and OBS state onto MQTT topics.
type StatusPublisher interface {
	PublishTally(deviceID string, status device.StatusPayload) error
	PublishOBSStatus(status obs.Status) error
}

// TelemetryRecorder records heartbeat and state-change telemetry.
type TelemetryRecorder interface {
	WriteHeartbeat(deviceID string, uptimeMS, rssi, heartbeats int64)
	WriteTallyChange(deviceID string, state device.TallyState, source string)
	WriteOBSStatus(connected, streaming bool)
}

// Deps holds the relay's collaborators. Store and Dispatcher are
// required; everything else may be nil and is skipped when absent.
type Deps struct {
	Store      *device.Store
	Dispatcher *device.Dispatcher
	Pusher     TallyPusher
	MQTT       StatusPublisher
	Telemetry  TelemetryRecorder
}

// Relay is the pipeline hub between transports and the device store.
// Safe for concurrent use.
type Relay struct {
	store      *device.Store
	dispatcher *device.Dispatcher
	pusher     TallyPusher
	mqtt       StatusPublisher
	telemetry  TelemetryRecorder
	logger     Logger

	mu           sync.RWMutex
	obsStatus    obs.Status
	sourceStates map[string]device.TallyState

	now func() time.Time
}

// New creates a relay from its dependencies.
func New(deps Deps) (*Relay, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("relay: store is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("relay: dispatcher is required")
	}
	return &Relay{
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		pusher:     deps.Pusher,
		mqtt:       deps.MQTT,
		telemetry:  deps.Telemetry,
		logger:     noopLogger{},
		now:        time.Now,
	}, nil
}

// SetLogger replaces the package logger. Call before use.
func (r *Relay) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// HandleRegister processes a device self-registration payload sent by
// the firmware itself.
//
// A payload without an ID gets a generated one; an ID belonging to a
// device deleted during this process lifetime is rejected with
// device.ErrIDReused. Self-registration is contact from the device, so
// LastSeen is stamped with the current time.
func (r *Relay) HandleRegister(ctx context.Context, payload map[string]any) (device.Record, error) {
	id, u, err := r.parseRegistration(payload)
	if err != nil {
		return device.Record{}, err
	}

	now := r.now()
	u.LastSeen = &now

	rec, created := r.store.Upsert(ctx, id, u)
	if created {
		r.logger.Info("device registered", "device_id", rec.ID, "name", rec.Name, "ip", rec.IPAddress)
	}

	r.dispatcher.PublishDevice(device.EventDeviceUpdate, rec)
	r.dispatcher.PublishDevice(device.EventESP32Status, rec)
	r.publishTally(rec)

	return rec, nil
}

// CreateDevice registers a device from the dashboard. Unlike a
// self-registration this is not contact from the device: LastSeen stays
// unset until the device itself checks in, so the record reports
// offline. Shares ID and tombstone semantics with HandleRegister.
func (r *Relay) CreateDevice(ctx context.Context, payload map[string]any) (device.Record, error) {
	id, u, err := r.parseRegistration(payload)
	if err != nil {
		return device.Record{}, err
	}

	u.LastSeen = nil

	rec, created := r.store.Upsert(ctx, id, u)
	if created {
		r.logger.Info("device created", "device_id", rec.ID, "name", rec.Name)
	}

	r.dispatcher.PublishDevice(device.EventDeviceUpdate, rec)
	r.publishTally(rec)

	return rec, nil
}

func (r *Relay) parseRegistration(payload map[string]any) (string, device.Update, error) {
	id, err := device.ParseID(payload)
	if errors.Is(err, device.ErrMissingID) {
		id = device.GenerateID()
	} else if err != nil {
		return "", device.Update{}, err
	}
	if r.store.WasDeleted(id) {
		return "", device.Update{}, device.ErrIDReused
	}
	return id, device.ParseUpdate(payload), nil
}

// HandleHeartbeat processes a heartbeat payload and returns the updated
// record so callers can echo the desired tally state back to the device.
//
// A heartbeat carrying a plausible wall-clock timestamp keeps it as the
// contact time; anything else (absent, skewed, or a millis-since-boot
// value masquerading as an epoch) falls back to server time.
func (r *Relay) HandleHeartbeat(ctx context.Context, payload map[string]any) (device.Record, error) {
	id, err := device.ParseID(payload)
	if err != nil {
		return device.Record{}, err
	}
	if r.store.WasDeleted(id) {
		return device.Record{}, device.ErrIDReused
	}

	u := device.ParseUpdate(payload)
	now := r.now()
	if u.LastSeen == nil || !plausibleContactTime(*u.LastSeen, now) {
		u.LastSeen = &now
	}
	u.Heartbeat = true

	rec, _ := r.store.Upsert(ctx, id, u)

	r.dispatcher.PublishDevice(device.EventDeviceHeartbeat, rec)
	r.dispatcher.PublishDevice(device.EventDeviceStatusUpdate, rec)

	if r.telemetry != nil {
		var rssi int64
		if u.RSSI != nil {
			rssi = *u.RSSI
		}
		r.telemetry.WriteHeartbeat(rec.ID, rec.UptimeMS, rssi, rec.Heartbeats)
	}

	return rec, nil
}

// HandleAnnouncement ingests a UDP discovery announcement. The sender
// address fills in the device IP when the payload does not carry one.
// Announcements for unknown IDs or tombstoned devices are dropped.
func (r *Relay) HandleAnnouncement(ctx context.Context, payload map[string]any, from net.Addr) {
	id, err := device.ParseID(payload)
	if err != nil {
		r.logger.Debug("announcement without device id dropped", "from", addrString(from))
		return
	}
	if r.store.WasDeleted(id) {
		r.logger.Debug("announcement for deleted device dropped", "device_id", id)
		return
	}

	u := device.ParseUpdate(payload)
	if u.IPAddress == nil {
		if host := addrHost(from); host != "" {
			u.IPAddress = &host
		}
	}
	now := r.now()
	u.LastSeen = &now

	rec, created := r.store.Upsert(ctx, id, u)
	if created {
		r.logger.Info("device discovered via announcement", "device_id", rec.ID, "ip", rec.IPAddress)
	}

	r.dispatcher.PublishDevice(device.EventDeviceUpdate, rec)
}

// HandleSourceStates applies a fresh OBS source-to-tally derivation to
// every registered device.
//
// A device follows its assigned source; devices without an assignment,
// or assigned to a source OBS does not know, settle to idle. Only
// actual transitions are broadcast and pushed; an unchanged state is
// silent. Pushes to devices run concurrently and never block this call.
func (r *Relay) HandleSourceStates(ctx context.Context, states map[string]device.TallyState) {
	snapshot := make(map[string]device.TallyState, len(states))
	for k, v := range states {
		snapshot[k] = v
	}
	r.mu.Lock()
	r.sourceStates = snapshot
	r.mu.Unlock()

	for _, rec := range r.store.List() {
		desired := device.TallyIdle
		if rec.AssignedSource != "" {
			if st, ok := states[rec.AssignedSource]; ok {
				desired = st
			}
		}
		if desired == rec.Tally {
			continue
		}

		updated, _ := r.store.Upsert(ctx, rec.ID, device.Update{Tally: &desired})

		r.dispatcher.PublishDevice(device.EventTallyStatus, updated)
		r.publishTally(updated)
		if r.telemetry != nil {
			r.telemetry.WriteTallyChange(updated.ID, updated.Tally, updated.AssignedSource)
		}
		r.pushAsync(updated)
	}
}

// UpdateDevice applies a dashboard edit (rename, reassign, set address)
// to an existing device. Returns device.ErrNotFound for unknown IDs.
//
// Changing the assigned source re-derives the tally state from the last
// OBS snapshot, so a device switched onto the program source goes live
// without waiting for the next scene change.
func (r *Relay) UpdateDevice(ctx context.Context, id string, payload map[string]any) (device.Record, error) {
	if _, ok := r.store.Get(id); !ok {
		return device.Record{}, device.ErrNotFound
	}

	u := device.ParseUpdate(payload)
	rec, _ := r.store.Upsert(ctx, id, u)

	if u.AssignedSource != nil {
		desired := device.TallyIdle
		if rec.AssignedSource != "" {
			r.mu.RLock()
			if st, ok := r.sourceStates[rec.AssignedSource]; ok {
				desired = st
			}
			r.mu.RUnlock()
		}
		if desired != rec.Tally {
			rec, _ = r.store.Upsert(ctx, id, device.Update{Tally: &desired})
			r.dispatcher.PublishDevice(device.EventTallyStatus, rec)
			r.publishTally(rec)
			r.pushAsync(rec)
		}
	}

	r.dispatcher.PublishDevice(device.EventDeviceUpdate, rec)
	return rec, nil
}

// HandleBulk applies a dashboard bulk tally update of the shape
// {"deviceStatus": {"<id>": {...}, ...}}. Entries are isolated: a
// malformed entry resolves to idle instead of failing the batch.
// Returns the number of entries applied.
func (r *Relay) HandleBulk(ctx context.Context, payload map[string]any) (int, error) {
	raw, ok := payload["deviceStatus"].(map[string]any)
	if !ok {
		return 0, fmt.Errorf("%w: missing deviceStatus object", ErrInvalidPayload)
	}

	applied := 0
	for id, v := range raw {
		if id == "" || r.store.WasDeleted(id) {
			continue
		}

		desired := device.TallyIdle
		entry, isMap := v.(map[string]any)
		if isMap {
			u := device.ParseUpdate(entry)
			if u.Tally != nil {
				desired = *u.Tally
			}
		}

		updated, _ := r.store.Upsert(ctx, id, device.Update{Tally: &desired})
		r.dispatcher.PublishDevice(device.EventTallyStatus, updated)
		r.publishTally(updated)
		applied++
	}

	r.dispatcher.PublishSnapshot(r.store.List())
	return applied, nil
}

// HandleOBSStatus records an OBS connection state change and fans it
// out to subscribers, MQTT and telemetry.
func (r *Relay) HandleOBSStatus(status obs.Status) {
	r.mu.Lock()
	r.obsStatus = status
	r.mu.Unlock()

	r.dispatcher.Publish(device.EventOBSStatus, status)

	if r.mqtt != nil {
		if err := r.mqtt.PublishOBSStatus(status); err != nil {
			r.logger.Warn("publishing obs status to mqtt failed", "error", err)
		}
	}
	if r.telemetry != nil {
		r.telemetry.WriteOBSStatus(status.Connected, status.Streaming)
	}
}

// OBSStatus returns the last OBS connection state seen by the relay.
func (r *Relay) OBSStatus() obs.Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.obsStatus
}

// RemoveDevice deletes a device and broadcasts a fresh snapshot so
// consumers drop it immediately.
func (r *Relay) RemoveDevice(ctx context.Context, id string) {
	r.store.Remove(ctx, id)
	r.dispatcher.Publish(device.EventDeviceUpdate, map[string]any{"deviceId": id, "deleted": true})
	r.dispatcher.PublishSnapshot(r.store.List())
}

// publishTally mirrors a device's tally state onto its retained MQTT topic.
func (r *Relay) publishTally(rec device.Record) {
	if r.mqtt == nil {
		return
	}
	if err := r.mqtt.PublishTally(rec.ID, device.StatusOf(rec)); err != nil {
		r.logger.Warn("publishing tally to mqtt failed", "device_id", rec.ID, "error", err)
	}
}

// pushAsync sends the tally state to the device in the background. The
// gateway applies its own per-command timeout, so the goroutine is
// bounded without a caller deadline.
func (r *Relay) pushAsync(rec device.Record) {
	if r.pusher == nil {
		return
	}
	go func() {
		result, err := r.pusher.PushTally(context.Background(), rec.IPAddress, rec.Tally, rec.Name, rec.AssignedSource)
		switch {
		case err != nil:
			r.logger.Debug("tally push skipped", "device_id", rec.ID, "error", err)
		case !result.OK():
			r.logger.Warn("tally push failed", "device_id", rec.ID, "message", result.Message)
		case result.Outcome == gateway.OutcomeAssumedSuccess:
			r.logger.Info("tally push assumed applied", "device_id", rec.ID, "message", result.Message)
		}
	}()
}

// Bounds for accepting a device-reported contact timestamp. Uptime
// counters parsed as epoch values land decades outside this window.
const (
	maxContactAge  = time.Hour
	maxContactSkew = time.Minute
)

func plausibleContactTime(ts, now time.Time) bool {
	return ts.After(now.Add(-maxContactAge)) && ts.Before(now.Add(maxContactSkew))
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}

func addrHost(a net.Addr) string {
	s := addrString(a)
	if s == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		return host
	}
	return s
}
