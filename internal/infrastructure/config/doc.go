// Package config loads rrdcore settings from YAML, applies RRDCORE_*
// environment overrides and validates the result.
//
// Two loaders exist. LoadOrDefault serves the long-running server and
// validates every enabled component; a JWT secret of at least 32 characters
// is required when the HTTP API is on. LoadLocal serves one-shot CLI
// commands and switches the API and export off before validating, so a
// workstation config needs only the rrdtool and database sections.
//
// Secrets (jwt secret, MQTT password, InfluxDB token) belong in the
// environment rather than in the file:
//
//	export RRDCORE_JWT_SECRET=...
//	cfg, err := config.LoadOrDefault("configs/config.yaml")
package config
