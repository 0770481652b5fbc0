package observability

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with a few domain-specific convenience methods.
type Logger struct {
	*zap.Logger
}

type loggerContextKey struct{}

// GlobalLogger is the process-wide default logger. Exported for testing;
// production code should prefer passing *Logger explicitly.
var GlobalLogger *Logger

// InitLogger builds the global logger for the given environment.
// Valid environments: development, test, staging, production.
func InitLogger(env string) (*Logger, error) {
	var config zap.Config

	switch env {
	case "development", "test":
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	case "production", "staging":
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		return nil, fmt.Errorf("invalid environment: %s (must be development, test, staging, or production)", env)
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(logLevel)); err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}
		config.Level = zap.NewAtomicLevelAt(level)
	}

	zapLogger, err := config.Build(
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	logger := &Logger{Logger: zapLogger}
	GlobalLogger = logger

	return logger, nil
}

// GetLogger returns the global logger.
// Panics if InitLogger has not been called.
func GetLogger() *Logger {
	if GlobalLogger == nil {
		panic("logger not initialized - call InitLogger first")
	}
	return GlobalLogger
}

// WithContext returns a logger enriched with fields carried on ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	fields := ExtractContextFields(ctx)
	if len(fields) > 0 {
		return &Logger{Logger: l.With(fields...)}
	}
	return l
}

// WithFields returns a logger with additional structured fields attached.
func (l *Logger) WithFields(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.With(fields...)}
}

// WithError returns a logger with an error field attached.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{Logger: l.With(zap.Error(err))}
}

// WithComponent returns a logger tagged with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.With(zap.String("component", component))}
}

// ContextWithLogger attaches logger to ctx.
func ContextWithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, logger)
}

// LoggerFromContext retrieves the logger attached to ctx, falling back to
// the global logger if none was attached.
func LoggerFromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(loggerContextKey{}).(*Logger); ok {
		return logger
	}
	return GetLogger()
}

// ExtractContextFields derives logging fields from ctx. Currently a no-op
// hook point for request/trace IDs should they be added later.
func ExtractContextFields(_ context.Context) []zap.Field {
	var fields []zap.Field
	return fields
}

// Sync flushes any buffered log entries. Call before process exit.
func (l *Logger) Sync() error {
	if err := l.Logger.Sync(); err != nil {
		return fmt.Errorf("failed to sync logger: %w", err)
	}
	return nil
}

// LogRequest logs a completed HTTP request.
func (l *Logger) LogRequest(method, path string, statusCode int, durationMs float64) {
	l.Info("http request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", statusCode),
		zap.Float64("duration_ms", durationMs),
	)
}

// LogAdapterCall logs the outcome of a call made to an adapter.
func (l *Logger) LogAdapterCall(operation, adapterName string, err error) {
	if err != nil {
		l.Error("adapter call failed",
			zap.String("operation", operation),
			zap.String("adapter", adapterName),
			zap.Error(err),
		)
		return
	}
	l.Info("adapter call completed",
		zap.String("operation", operation),
		zap.String("adapter", adapterName),
	)
}

// LogSubscriptionEvent logs a subscription lifecycle event with arbitrary details.
func (l *Logger) LogSubscriptionEvent(eventType, subscriptionID string, details map[string]interface{}) {
	fields := []zap.Field{
		zap.String("event", eventType),
		zap.String("subscriptionID", subscriptionID),
	}
	for key, value := range details {
		fields = append(fields, zap.Any(key, value))
	}
	l.Info("subscription event", fields...)
}

// LogCacheOperation logs a cache backend operation.
func (l *Logger) LogCacheOperation(operation, key string, err error) {
	if err != nil {
		l.Error("cache operation failed",
			zap.String("operation", operation),
			zap.String("key", key),
			zap.Error(err),
		)
		return
	}
	l.Debug("cache operation completed",
		zap.String("operation", operation),
		zap.String("key", key),
	)
}
