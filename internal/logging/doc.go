// Package logging provides structured logging for psddp.
//
// This package wraps a global zap logger with convenience functions. Logging
// is silent unless a level is passed to Initialize or set in the
// PSDDP_LOG_LEVEL environment variable, so CLI output stays clean by default.
//
// # Log Levels
//
//   - Debug: datagram dumps, poll suppression, status diffs
//   - Info: engine lifecycle, devices becoming unreachable
//   - Warn: transport errors the engine recovers from
//   - Error: bind failures
//
// # Structured Logging
//
//	logging.Info("Console is unreachable",
//	    zap.String("host", "192.168.1.20"),
//	    zap.Int("poll_count", 6),
//	)
//
// Datagrams are logged with LogDatagram, which adds hex and ASCII dumps of
// the payload when debug logging is enabled:
//
//	logging.LogDatagram("sent", localPort, "192.168.1.20:987", payload)
//
// # Configuration
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// Output goes to stderr in zap's console format so it does not interleave
// with command output on stdout.
package logging
