package api

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	loggerContextKey    = contextKey("logger")
	requestIDContextKey = contextKey("request_id")
	endpointContextKey  = contextKey("endpoint")
)

func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, logger)
}

func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, requestID)
}

// ContextWithEndpoint records the route pattern that is serving the request.
func ContextWithEndpoint(ctx context.Context, pattern string) context.Context {
	return context.WithValue(ctx, endpointContextKey, pattern)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

func Endpoint(ctx context.Context) string {
	pattern, _ := ctx.Value(endpointContextKey).(string)
	return pattern
}

// Logger returns the logger stored in ctx, falling back to slog.Default().
// The request ID, when present, is attached to every record.
func Logger(ctx context.Context) *slog.Logger {
	logger, _ := ctx.Value(loggerContextKey).(*slog.Logger)
	if logger == nil {
		logger = slog.Default()
	}
	id := RequestID(ctx)
	if id != "" {
		logger = logger.With(slog.String("request_id", id))
	}
	return logger
}
