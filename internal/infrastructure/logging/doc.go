// Package logging provides structured logging for the MPD bridge.
//
// It wraps log/slog so every component logs through the same handler:
//
//   - JSON output for production, text for development
//   - service and version fields on every entry
//   - level filtering (debug, info, warn, error)
//
// Configuration comes from the logging section of the bridge config:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	mpdLog := logger.Component("mpd")
//	mpdLog.Info("player connected", "player_id", "kitchen")
//
// Daemon passwords and broker credentials must never be passed as log fields.
package logging
