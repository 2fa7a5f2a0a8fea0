// Package relay coordinates the tally pipeline: inbound device traffic
// (registration, heartbeats, discovery announcements) flows through the
// normalizer into the record store, and resulting state changes fan out
// to WebSocket subscribers, MQTT topics, telemetry, and the devices
// themselves.
//
// The relay owns no transport. HTTP handlers, the UDP listener and the
// OBS client all hand it decoded payloads; MQTT, InfluxDB and the
// device gateway are optional collaborators behind small interfaces and
// may be absent.
package relay
