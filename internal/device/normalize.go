package device

import (
	"time"
)

// Field alias tables for inbound payload normalization.
//
// Heartbeats, push-channel messages and device self-reports use different
// naming conventions for the same fields. Each canonical field has a fixed
// priority order: the first alias present in the payload wins, later
// aliases are ignored. Keeping the tables here, in one place, is
// deliberate; handlers must not grow their own fallback chains.
var (
	idAliases       = []string{"deviceId", "device_id", "id"}
	nameAliases     = []string{"deviceName", "device_name", "name"}
	ipAliases       = []string{"ipAddress", "ip_address", "ip"}
	macAliases      = []string{"macAddress", "mac_address", "mac"}
	sourceAliases   = []string{"assignedSource", "assigned_source", "source", "sourceName"}
	tallyAliases    = []string{"tallyState", "state", "status", "tallyStatus"}
	lastSeenAliases = []string{"timestamp", "lastSeen", "last_seen"}
	firmwareAliases = []string{"firmware", "firmwareVersion", "firmware_version"}
	modelAliases    = []string{"model", "deviceModel"}
	uptimeAliases   = []string{"uptime", "uptimeMs", "uptime_ms"}
	rssiAliases     = []string{"rssi", "wifiRssi", "wifi_rssi"}
)

// ParseID extracts the device identifier from a raw payload.
// Returns ErrMissingID when no alias is present.
func ParseID(payload map[string]any) (string, error) {
	if id, ok := firstString(payload, idAliases); ok && id != "" {
		return id, nil
	}
	return "", ErrMissingID
}

// ParseUpdate translates a raw inbound payload into a canonical Update.
//
// Fields absent under all aliases are left unset (merge semantics, not
// defaulting). Two fields get special treatment:
//   - a tally string resolves through NormalizeTally, so unrecognised
//     values become TallyIdle rather than propagating verbatim
//   - an inbound "online" flag is ignored entirely; online is always
//     derived from LastSeen by the Store
func ParseUpdate(payload map[string]any) Update {
	var u Update

	if v, ok := firstString(payload, nameAliases); ok {
		u.Name = &v
	}
	if v, ok := firstString(payload, ipAliases); ok && v != "" {
		u.IPAddress = &v
	}
	if v, ok := firstString(payload, macAliases); ok && v != "" {
		u.MACAddress = &v
	}
	if v, ok := firstString(payload, sourceAliases); ok {
		u.AssignedSource = &v
	}
	if v, ok := firstString(payload, tallyAliases); ok {
		t := NormalizeTally(v)
		u.Tally = &t
	}
	if ts, ok := firstTimestamp(payload, lastSeenAliases); ok {
		u.LastSeen = &ts
	}
	if v, ok := firstString(payload, firmwareAliases); ok && v != "" {
		u.Firmware = &v
	}
	if v, ok := firstString(payload, modelAliases); ok && v != "" {
		u.Model = &v
	}
	if v, ok := firstInt(payload, uptimeAliases); ok {
		u.UptimeMS = &v
	}
	if v, ok := firstInt(payload, rssiAliases); ok {
		u.RSSI = &v
	}

	return u
}

// firstString returns the first alias present in the payload as a string.
// Booleans and numbers are not coerced; a non-string value under an alias
// is skipped so a later alias can still match.
func firstString(payload map[string]any, aliases []string) (string, bool) {
	for _, key := range aliases {
		if raw, ok := payload[key]; ok {
			if s, ok := raw.(string); ok {
				return s, true
			}
		}
	}
	return "", false
}

// firstInt returns the first alias present as an int64. JSON numbers
// arrive as float64; both are accepted.
func firstInt(payload map[string]any, aliases []string) (int64, bool) {
	for _, key := range aliases {
		if raw, ok := payload[key]; ok {
			switch v := raw.(type) {
			case float64:
				return int64(v), true
			case int64:
				return v, true
			case int:
				return int64(v), true
			}
		}
	}
	return 0, false
}

// firstTimestamp returns the first alias present as a time.Time.
// Accepts RFC3339 strings and numeric epoch values (seconds or
// milliseconds; values above 1e12 are treated as milliseconds).
func firstTimestamp(payload map[string]any, aliases []string) (time.Time, bool) {
	const msThreshold = 1e12

	for _, key := range aliases {
		raw, ok := payload[key]
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case string:
			if ts, err := time.Parse(time.RFC3339, v); err == nil {
				return ts, true
			}
		case float64:
			if v <= 0 {
				continue
			}
			if v > msThreshold {
				return time.UnixMilli(int64(v)), true
			}
			return time.Unix(int64(v), 0), true
		}
	}
	return time.Time{}, false
}
