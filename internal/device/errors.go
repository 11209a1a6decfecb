package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a serial number does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrInvalidSN is returned when a serial number is empty.
	ErrInvalidSN = errors.New("device: invalid serial number")

	// ErrSettingNotFound is returned when a settings key has no stored value.
	ErrSettingNotFound = errors.New("device: setting not found")
)
