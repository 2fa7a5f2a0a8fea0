// Package api provides the HTTP REST API and WebSocket server for
// Tally Core.
//
// It exposes the device registration and heartbeat endpoints consumed
// by ESP32 tally lights, the registry management surface used by
// dashboards, gateway command endpoints, and a WebSocket hub pushing
// real-time tally updates to browsers.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: all methods are safe for concurrent use.
package api
