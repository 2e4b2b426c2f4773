// Package logging provides structured logging for the smartpot core.
//
// It wraps log/slog so every component logs the same way: JSON in
// production, text during development, and the service name and build
// version attached to every entry.
//
// Configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("telemetry accepted", "flower_id", id)
//	logger.Component("binding").Error("rollback failed", "error", err)
//
// Never log secrets: SMTP passwords, webhook URLs and bearer tokens stay out
// of log attributes.
package logging
