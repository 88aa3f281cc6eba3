package logger

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// LogArchive logs the terminal state of one URL
func LogArchive(l Logger, url, folder, state string, attempts int, err error) {
	fields := map[string]interface{}{
		"url":      url,
		"folder":   folder,
		"state":    state,
		"attempts": attempts,
	}

	if err != nil {
		l.WithError(err).ErrorWithFields("Archive failed", fields)
		return
	}
	if state == "skipped" {
		l.DebugWithFields("Archive skipped, already recorded", fields)
		return
	}
	l.InfoWithFields("Archive completed", fields)
}

// LogAssetSummary logs the outcome of localizing a document's images
func LogAssetSummary(l Logger, url string, total, fetched, skipped, failed int, elapsed time.Duration) {
	fields := map[string]interface{}{
		"url":     url,
		"total":   total,
		"fetched": fetched,
		"skipped": skipped,
		"failed":  failed,
		"elapsed": elapsed,
	}
	if failed > 0 {
		l.WarnWithFields("Some assets could not be fetched", fields)
		return
	}
	l.InfoWithFields("Assets localized", fields)
}

// LogBatchProgress logs how far a batch has advanced
func LogBatchProgress(l Logger, done, total int) {
	percentage := 0.0
	if total > 0 {
		percentage = float64(done) / float64(total) * 100
	}

	l.WithFields(map[string]interface{}{
		"done":       done,
		"total":      total,
		"percentage": fmt.Sprintf("%.1f%%", percentage),
	}).Info("Batch progress")
}

// LogComponentStart logs when a component starts
func LogComponentStart(l Logger, component string, config map[string]interface{}) {
	l = l.WithField("component", component)
	if len(config) > 0 {
		l = l.WithFields(config)
	}
	l.Info("Component started")
}

// LogComponentStop logs when a component stops
func LogComponentStop(l Logger, component string, reason string) {
	l.WithFields(map[string]interface{}{
		"component": component,
		"reason":    reason,
	}).Info("Component stopped")
}

// LogMetrics logs performance metrics
func LogMetrics(l Logger, operation string, metrics map[string]interface{}) {
	fields := map[string]interface{}{
		"operation": operation,
		"type":      "metrics",
	}
	for k, v := range metrics {
		fields[k] = v
	}
	l.InfoWithFields("Performance metrics", fields)
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger {
	nop := zerolog.Nop()
	return &nop
}
