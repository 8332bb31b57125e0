package influxdb

import "errors"

// Sentinel errors for the InfluxDB mirror.
var (
	ErrNotConnected     = errors.New("influxdb: not connected")
	ErrConnectionFailed = errors.New("influxdb: connection failed")
	ErrDisabled         = errors.New("influxdb: disabled in configuration")

	// ErrWriteFailed wraps blocking write failures. Batched write failures
	// go to the SetOnError callback instead.
	ErrWriteFailed = errors.New("influxdb: write failed")
)
