// Package main is the entry point for the web app update manager.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/pwa-update-manager/cmd/pwa-updater/app"
	"github.com/stacklok/pwa-update-manager/internal/config"
)

var logLevels = map[string]slog.Level{
	"":        slog.LevelInfo,
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// newLogger builds the process logger from PWA_UPDATER_LOG_LEVEL and PWA_UPDATER_LOG_FORMAT
// (json or text). Records go to w so stdout stays free for command output.
func newLogger(w io.Writer) *slog.Logger {
	v := viper.New()
	v.SetEnvPrefix(config.EnvPrefix)
	v.AutomaticEnv()

	name := strings.ToLower(v.GetString("log_level"))
	level, ok := logLevels[name]
	if !ok {
		level = slog.LevelInfo
	}
	app.LogLevel.Set(level)

	opts := &slog.HandlerOptions{Level: app.LogLevel}
	var handler slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(v.GetString("log_format"), "text") {
		handler = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(&spanHandler{Handler: handler})
	if !ok {
		logger.Warn("Unknown log level, using info", "value", name)
	}
	return logger
}

// spanHandler adds the ids of the active span to every record
type spanHandler struct {
	slog.Handler
}

func (h *spanHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(slog.String("trace_id", sc.TraceID().String()), slog.String("span_id", sc.SpanID().String()))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *spanHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &spanHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *spanHandler) WithGroup(name string) slog.Handler {
	return &spanHandler{Handler: h.Handler.WithGroup(name)}
}

func main() {
	slog.SetDefault(newLogger(os.Stderr))

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
