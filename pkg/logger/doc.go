// Package logger provides the structured logging interface used across xarchiver.
//
// It wraps zerolog with a small interface so components can take a Logger in
// their constructors and tests can pass NewNopLogger or a TestLogger instead.
// Console output is colored and goes to stderr, leaving stdout free for
// command output such as exported records. Setting logging.file adds a JSON
// file sink next to the console.
//
// Basic Usage:
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//	    return err
//	}
//	log := logger.GetLogger().WithField("component", "orchestrator")
//	log.InfoWithFields("Archived post", map[string]interface{}{
//	    "url":    url,
//	    "folder": folder,
//	})
package logger
