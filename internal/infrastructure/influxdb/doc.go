// Package influxdb records tally device telemetry in InfluxDB v2.
//
// Every heartbeat carries device-reported uptime and WiFi signal
// strength; tally transitions and OBS connection changes are recorded
// as discrete events. Writes go through the non-blocking batched write
// API, so a slow or unreachable InfluxDB never stalls the relay path.
//
// The integration is optional. When disabled in configuration, Connect
// returns ErrDisabled and callers run without a recorder; all write
// methods on a nil or disconnected client are no-ops.
package influxdb
