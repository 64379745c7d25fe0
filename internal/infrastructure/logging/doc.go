// Package logging provides structured logging for the mesh commissioning
// service.
//
// It wraps log/slog with JSON (production) or text (development) output,
// level filtering and default "service" and "version" fields.
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
//	ctrlLog := logger.Component("commissioning")
//	ctrlLog.Info("device commissioned", "address", addr)
//
// The *Logger satisfies the small Logger interfaces declared by the
// registry, sequencer, commissioning and btmesh packages.
//
// Never log secrets, tokens or network keys.
package logging
