// Package mqtt publishes tally state to an MQTT broker.
//
// Every device state change goes out retained on its own topic
// (tallycore/tally/{deviceId}), so lighting controllers, stream decks
// and other listeners get the current state the moment they subscribe
// instead of waiting for the next change. Service availability is
// published on tallycore/system/status with a Last Will and Testament
// so subscribers can tell a crash from a graceful shutdown.
//
// The wrapped paho client reconnects automatically with exponential
// backoff; publishes while disconnected fail fast with ErrNotConnected
// and the caller decides whether that matters.
package mqtt
