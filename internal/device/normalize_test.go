package device

import (
	"testing"
	"time"
)

func TestNormalizeTally(t *testing.T) {
	tests := []struct {
		input    string
		expected TallyState
	}{
		{"live", TallyLive},
		{"LIVE", TallyLive},
		{"program", TallyLive},
		{"preview", TallyPreview},
		{"PREVIEW", TallyPreview},
		{"standby", TallyPreview},
		{"transition", TallyTransition},
		{"idle", TallyIdle},
		{"READY", TallyIdle},
		{"", TallyIdle},
		{"garbage-state", TallyIdle},
		{"  live  ", TallyLive},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeTally(tt.input); got != tt.expected {
				t.Errorf("NormalizeTally(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseID_AliasPriority(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		want    string
		wantErr bool
	}{
		{
			name:    "canonical name",
			payload: map[string]any{"deviceId": "esp32-001"},
			want:    "esp32-001",
		},
		{
			name:    "snake case",
			payload: map[string]any{"device_id": "esp32-001"},
			want:    "esp32-001",
		},
		{
			name:    "short form",
			payload: map[string]any{"id": "esp32-001"},
			want:    "esp32-001",
		},
		{
			name:    "canonical wins over alternates",
			payload: map[string]any{"id": "wrong", "device_id": "also-wrong", "deviceId": "esp32-001"},
			want:    "esp32-001",
		},
		{
			name:    "missing id",
			payload: map[string]any{"deviceName": "Camera 1"},
			wantErr: true,
		},
		{
			name:    "empty id",
			payload: map[string]any{"deviceId": ""},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseID(tt.payload)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseID() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseUpdate_FieldAliases(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		check   func(t *testing.T, u Update)
	}{
		{
			name:    "deviceName canonical",
			payload: map[string]any{"deviceName": "Camera 1"},
			check: func(t *testing.T, u Update) {
				if u.Name == nil || *u.Name != "Camera 1" {
					t.Errorf("Name = %v, want Camera 1", u.Name)
				}
			},
		},
		{
			name:    "device_name alternate",
			payload: map[string]any{"device_name": "Camera 1"},
			check: func(t *testing.T, u Update) {
				if u.Name == nil || *u.Name != "Camera 1" {
					t.Errorf("Name = %v, want Camera 1", u.Name)
				}
			},
		},
		{
			name:    "name short form",
			payload: map[string]any{"name": "Camera 1"},
			check: func(t *testing.T, u Update) {
				if u.Name == nil || *u.Name != "Camera 1" {
					t.Errorf("Name = %v, want Camera 1", u.Name)
				}
			},
		},
		{
			name:    "ipAddress wins over ip",
			payload: map[string]any{"ip": "10.0.0.2", "ipAddress": "192.168.1.50"},
			check: func(t *testing.T, u Update) {
				if u.IPAddress == nil || *u.IPAddress != "192.168.1.50" {
					t.Errorf("IPAddress = %v, want canonical alias value", u.IPAddress)
				}
			},
		},
		{
			name:    "ip_address alternate",
			payload: map[string]any{"ip_address": "10.0.0.2"},
			check: func(t *testing.T, u Update) {
				if u.IPAddress == nil || *u.IPAddress != "10.0.0.2" {
					t.Errorf("IPAddress = %v, want 10.0.0.2", u.IPAddress)
				}
			},
		},
		{
			name:    "mac alternate",
			payload: map[string]any{"mac": "AA:BB:CC:DD:EE:FF"},
			check: func(t *testing.T, u Update) {
				if u.MACAddress == nil || *u.MACAddress != "AA:BB:CC:DD:EE:FF" {
					t.Errorf("MACAddress = %v", u.MACAddress)
				}
			},
		},
		{
			name:    "state wins over tallyStatus",
			payload: map[string]any{"tallyStatus": "PREVIEW", "state": "live"},
			check: func(t *testing.T, u Update) {
				if u.Tally == nil || *u.Tally != TallyLive {
					t.Errorf("Tally = %v, want live from higher-priority alias", u.Tally)
				}
			},
		},
		{
			name:    "status normalizes to tally",
			payload: map[string]any{"status": "LIVE"},
			check: func(t *testing.T, u Update) {
				if u.Tally == nil || *u.Tally != TallyLive {
					t.Errorf("Tally = %v, want live", u.Tally)
				}
			},
		},
		{
			name:    "unrecognized tally becomes idle",
			payload: map[string]any{"tallyState": "borked"},
			check: func(t *testing.T, u Update) {
				if u.Tally == nil || *u.Tally != TallyIdle {
					t.Errorf("Tally = %v, want idle for unrecognized input", u.Tally)
				}
			},
		},
		{
			name:    "absent tally stays unset",
			payload: map[string]any{"deviceName": "Camera 1"},
			check: func(t *testing.T, u Update) {
				if u.Tally != nil {
					t.Errorf("Tally = %v, want unset when absent (merge semantics)", *u.Tally)
				}
			},
		},
		{
			name:    "online flag is ignored",
			payload: map[string]any{"online": true},
			check: func(t *testing.T, u Update) {
				if u.LastSeen != nil {
					t.Error("caller-supplied online must not synthesize a LastSeen")
				}
			},
		},
		{
			name:    "sourceName alias maps to assigned source",
			payload: map[string]any{"sourceName": "Cam 1"},
			check: func(t *testing.T, u Update) {
				if u.AssignedSource == nil || *u.AssignedSource != "Cam 1" {
					t.Errorf("AssignedSource = %v, want Cam 1", u.AssignedSource)
				}
			},
		},
		{
			name:    "uptime number",
			payload: map[string]any{"uptime": float64(123456)},
			check: func(t *testing.T, u Update) {
				if u.UptimeMS == nil || *u.UptimeMS != 123456 {
					t.Errorf("UptimeMS = %v, want 123456", u.UptimeMS)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, ParseUpdate(tt.payload))
		})
	}
}

func TestParseUpdate_Timestamps(t *testing.T) {
	ref := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		payload map[string]any
		want    time.Time
		wantSet bool
	}{
		{
			name:    "rfc3339 string",
			payload: map[string]any{"timestamp": ref.Format(time.RFC3339)},
			want:    ref,
			wantSet: true,
		},
		{
			name:    "epoch seconds",
			payload: map[string]any{"timestamp": float64(ref.Unix())},
			want:    ref,
			wantSet: true,
		},
		{
			name:    "epoch milliseconds",
			payload: map[string]any{"timestamp": float64(ref.UnixMilli())},
			want:    ref,
			wantSet: true,
		},
		{
			name:    "lastSeen alias",
			payload: map[string]any{"lastSeen": ref.Format(time.RFC3339)},
			want:    ref,
			wantSet: true,
		},
		{
			name:    "absent",
			payload: map[string]any{},
			wantSet: false,
		},
		{
			name:    "unparseable string",
			payload: map[string]any{"timestamp": "yesterday"},
			wantSet: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := ParseUpdate(tt.payload)
			if tt.wantSet != (u.LastSeen != nil) {
				t.Fatalf("LastSeen set = %v, want %v", u.LastSeen != nil, tt.wantSet)
			}
			if tt.wantSet && !u.LastSeen.Equal(tt.want) {
				t.Errorf("LastSeen = %v, want %v", u.LastSeen, tt.want)
			}
		})
	}
}
