package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/stagelink/tally-core/internal/device"
)

// WriteHeartbeat records one heartbeat's device-reported telemetry.
//
// Uptime arrives in milliseconds and is stored as seconds; rssi is the
// WiFi signal strength in dBm. The write is non-blocking.
func (c *Client) WriteHeartbeat(deviceID string, uptimeMS int64, rssi int64, heartbeats int64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_heartbeat",
		map[string]string{
			"device_id": deviceID,
		},
		map[string]interface{}{
			"uptime_seconds": float64(uptimeMS) / millisecondsPerSecond,
			"rssi_dbm":       rssi,
			"heartbeats":     heartbeats,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteTallyChange records a tally state transition for a device.
//
// State is a tag so dashboards can group time-in-state per device;
// the field carries 1 for live, 0 otherwise, which makes "on-air time"
// a plain integral over the series.
func (c *Client) WriteTallyChange(deviceID string, state device.TallyState, source string) {
	if !c.IsConnected() {
		return
	}

	live := 0
	if state == device.TallyLive {
		live = 1
	}

	point := write.NewPoint(
		"tally_state",
		map[string]string{
			"device_id": deviceID,
			"state":     string(state),
		},
		map[string]interface{}{
			"live":   live,
			"source": source,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteOBSStatus records an OBS connection state change.
func (c *Client) WriteOBSStatus(connected, streaming bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"obs_status",
		map[string]string{},
		map[string]interface{}{
			"connected": boolToInt(connected),
			"streaming": boolToInt(streaming),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and
// fields, for measurements the helpers don't cover.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
