package gateway

import "errors"

var (
	// ErrNoAddress indicates a command was issued for a device whose IP
	// address is unknown. This is an input error, rejected before any
	// network activity.
	ErrNoAddress = errors.New("device has no known IP address")

	// ErrFirmwareFile indicates the firmware image could not be read.
	ErrFirmwareFile = errors.New("firmware file unreadable")
)
