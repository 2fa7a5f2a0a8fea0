// Package device implements the tally device registry core.
//
// It contains the canonical record store, the inbound payload normalizer,
// the liveness tracker, and the broadcast dispatcher. All other components
// treat the Store as the single source of truth for device state; nothing
// else caches device records beyond a single operation.
//
// Data flow:
//
//	inbound event (heartbeat, OBS change, user edit)
//	    → ParseUpdate (normalizer)
//	    → Store.Upsert
//	    → Dispatcher.Publish
//	    → all subscribed consumers (WebSocket hub, MQTT, device push)
//
// The liveness Tracker runs independently on a fixed interval, scanning the
// Store and feeding the same Dispatcher path when a device goes offline.
//
// Thread Safety: Store and Dispatcher are safe for concurrent use.
package device
