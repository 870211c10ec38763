package temporal

import (
	"log/slog"

	"go.temporal.io/sdk/log"
)

// sdkLogger routes Temporal SDK logs into slog under source=temporal.
type sdkLogger struct {
	l *slog.Logger
}

var (
	_ log.Logger     = (*sdkLogger)(nil)
	_ log.WithLogger = (*sdkLogger)(nil)
)

func newTemporalLogger(logger *slog.Logger) *sdkLogger {
	return &sdkLogger{l: logger.With("source", "temporal")}
}

func (s *sdkLogger) Debug(msg string, keyvals ...interface{}) { s.l.Debug(msg, keyvals...) }
func (s *sdkLogger) Info(msg string, keyvals ...interface{})  { s.l.Info(msg, keyvals...) }
func (s *sdkLogger) Warn(msg string, keyvals ...interface{})  { s.l.Warn(msg, keyvals...) }
func (s *sdkLogger) Error(msg string, keyvals ...interface{}) { s.l.Error(msg, keyvals...) }

// With carries workflow and activity fields the SDK attaches.
func (s *sdkLogger) With(keyvals ...interface{}) log.Logger {
	return &sdkLogger{l: s.l.With(keyvals...)}
}
