// Package logging configures log/slog for the import pipeline.
//
// HTTP requests carry chi's request ID; worker loops and parse invocations
// carry their own fields through NewContext. FromContext merges both so every
// entry for one delivery or one request can be correlated.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

type ctxKey struct{}

// Setup configures the global slog logger based on level and format.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
func Setup(level, format string) {
	SetupWriter(os.Stdout, level, format)
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(w io.Writer, level, format string) {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	slog.SetDefault(slog.New(handler))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewContext returns a context whose logger carries args in addition to
// whatever the parent context already carries.
//
//	ctx = logging.NewContext(ctx, "consumer", name)
//	logging.FromContext(ctx).Info("batch received", "size", n)
func NewContext(ctx context.Context, args ...any) context.Context {
	return context.WithValue(ctx, ctxKey{}, fromContext(ctx).With(args...))
}

// FromContext returns a logger enriched with request context.
//
// Fields added with NewContext are included, and so is request_id when chi's
// RequestID middleware ran for this request.
func FromContext(ctx context.Context) *slog.Logger {
	logger := fromContext(ctx)

	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}

	return logger
}

func fromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// WithFields returns a logger with additional structured fields.
//
//	parseLogger := logging.WithFields(ctx, "bucket", bucket, "key", key)
//	parseLogger.Info("parse started")
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}
