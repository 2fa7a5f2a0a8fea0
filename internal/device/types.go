package device

import (
	"strings"
	"time"
)

// UnknownAddress is the placeholder stored when a device's network address
// has never been reported.
const UnknownAddress = "Unknown"

// TallyState represents the tally indicator a device should display,
// mirroring the OBS program/preview status of its assigned source.
type TallyState string

// TallyState constants.
const (
	TallyIdle       TallyState = "idle"
	TallyPreview    TallyState = "preview"
	TallyLive       TallyState = "live"
	TallyTransition TallyState = "transition"
)

// NormalizeTally maps an inbound tally string to a canonical TallyState.
//
// Devices and older dashboard builds report a mix of spellings ("LIVE",
// "program", "READY"). Anything unrecognised resolves to TallyIdle so
// garbage never propagates to consumers.
func NormalizeTally(s string) TallyState {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "live", "program", "on-air", "onair":
		return TallyLive
	case "preview", "standby":
		return TallyPreview
	case "transition", "in-transition":
		return TallyTransition
	default:
		// "idle", "ready", "off", unknown strings and empty all land here.
		return TallyIdle
	}
}

// Record is the canonical state of one physical tally device.
type Record struct {
	// ID is the stable unique identifier assigned at registration. Immutable.
	ID string `json:"deviceId"`

	// Name is the human-readable label, mutable by user action.
	Name string `json:"deviceName"`

	// IPAddress is the last-known network address, or UnknownAddress.
	IPAddress string `json:"ipAddress"`

	// MACAddress is the hardware identifier, set once from device-reported info.
	MACAddress string `json:"macAddress,omitempty"`

	// AssignedSource is the OBS source this device mirrors; empty means idle.
	AssignedSource string `json:"assignedSource,omitempty"`

	// Tally is the last known tally state pushed to or reported by the device.
	Tally TallyState `json:"tallyState"`

	// Online is derived from LastSeen against the liveness window.
	// It is never taken verbatim from inbound payloads.
	Online bool `json:"online"`

	// LastSeen is the timestamp of the most recent confirmed contact.
	// Zero means the device has never been heard from.
	LastSeen time.Time `json:"lastSeen,omitzero"`

	// Device-reported metadata.
	Firmware string `json:"firmware,omitempty"`
	Model    string `json:"model,omitempty"`

	// UptimeMS is the device-reported uptime in milliseconds.
	UptimeMS int64 `json:"uptime,omitempty"`

	// Heartbeats counts heartbeats received since this record was created.
	Heartbeats int64 `json:"heartbeats,omitempty"`

	CreatedAt time.Time `json:"createdAt,omitzero"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// Clone returns an independent copy of the Record.
// Records contain only value fields, so a shallow copy suffices; the
// method exists to keep call sites explicit about cache isolation.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cpy := *r
	return &cpy
}

// OnlineAt reports whether the record counts as online at the given
// instant, using the supplied liveness window. Online is always a pure
// function of LastSeen and now.
func (r *Record) OnlineAt(now time.Time, window time.Duration) bool {
	if r.LastSeen.IsZero() {
		return false
	}
	return now.Sub(r.LastSeen) <= window
}

// Update is a partial device update. Nil fields are left untouched by
// Store.Upsert (merge semantics); Authoritative marks a full replacement
// from an authoritative source.
type Update struct {
	Name           *string
	IPAddress      *string
	MACAddress     *string
	AssignedSource *string
	Tally          *TallyState
	LastSeen       *time.Time
	Firmware       *string
	Model          *string
	UptimeMS       *int64
	RSSI           *int64

	// Heartbeat marks this update as a liveness signal; it bumps the
	// heartbeat counter in addition to refreshing LastSeen.
	Heartbeat bool

	// Authoritative replaces the whole record instead of merging.
	Authoritative bool
}

// StatusPayload is the single-device delta shape broadcast to consumers.
type StatusPayload struct {
	DeviceID   string     `json:"deviceId"`
	State      TallyState `json:"state"`
	SourceName string     `json:"sourceName,omitempty"`
	Online     bool       `json:"online"`
	LastSeen   time.Time  `json:"lastSeen,omitzero"`
}

// StatusOf builds the broadcast payload for a record.
func StatusOf(r Record) StatusPayload {
	return StatusPayload{
		DeviceID:   r.ID,
		State:      r.Tally,
		SourceName: r.AssignedSource,
		Online:     r.Online,
		LastSeen:   r.LastSeen,
	}
}
