package influxdb

import "errors"

// Errors for InfluxDB operations.
var (
	// ErrDisabled is returned when connecting with the sink disabled in config.
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	// ErrNotConnected is returned when operations are attempted on a closed client.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed is returned when the initial connection fails.
	ErrConnectionFailed = errors.New("influxdb: connection failed")
)
