// Package logging builds the structured loggers used across rrdcore.
//
// Loggers are log/slog loggers with service and version attributes on every
// record. The logging section of the config file selects them:
//
//	logging:
//	  level: info      # debug, info, warn, error
//	  format: json     # json or text
//	  output: stdout   # stdout, stderr or discard
//
// Each component receives a child logger:
//
//	log := logging.New(cfg.Logging, version)
//	runner.SetLogger(log.Component("process"))
//	log.Info("serving", "addr", srv.Addr())
//
// Tokens, password hashes and MQTT credentials are never logged.
package logging
