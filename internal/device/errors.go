package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrNotFound) {
//	    // handle not found case
//	}
var (
	// ErrNotFound is returned when a device ID does not exist.
	ErrNotFound = errors.New("device: not found")

	// ErrMissingID is returned when an inbound payload carries no device
	// identifier under any recognised alias.
	ErrMissingID = errors.New("device: missing device id")

	// ErrIDReused is returned when a registration attempts to reuse the ID
	// of a device deleted earlier in this process lifetime.
	ErrIDReused = errors.New("device: id was deleted and cannot be reused")
)
