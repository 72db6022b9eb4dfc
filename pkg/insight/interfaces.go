package insight

import (
	"context"
	"time"
)

type Service interface {
	Analyze(ctx context.Context, req *Request) (*Result, error)
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}

// Recorder receives analysis telemetry. Implementations must be safe for
// concurrent use.
type Recorder interface {
	ObserveDecode(decoder string, ok bool)
	ObserveAnalysis(outcome string, elapsed time.Duration)
	ObserveAudioDuration(seconds float64)
}

type nopRecorder struct{}

func (nopRecorder) ObserveDecode(string, bool)            {}
func (nopRecorder) ObserveAnalysis(string, time.Duration) {}
func (nopRecorder) ObserveAudioDuration(float64)          {}

type loggerKey struct{}

// ContextWithLogger attaches a request-scoped logger that Analyze prefers
// over the service logger.
func ContextWithLogger(ctx context.Context, log Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, log)
}

// LoggerFrom returns the logger attached by ContextWithLogger, or fallback.
func LoggerFrom(ctx context.Context, fallback Logger) Logger {
	if log, ok := ctx.Value(loggerKey{}).(Logger); ok && log != nil {
		return log
	}
	return fallback
}
