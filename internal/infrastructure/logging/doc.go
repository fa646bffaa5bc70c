// Package logging provides structured logging for lockgate.
//
// It wraps log/slog with JSON or text output, level filtering and the
// default fields service=lockgate and version.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Component("coordinator").Info("refresh scheduler started", "interval", "60s")
//
// # Security
//
// Attributes named share_code, password, token, secret or signature are
// replaced with "[redacted]" whatever their value. Signed request forms are
// never logged; only the action path and lock identifier are.
package logging
