package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/naboomcommunity/mqtt-core/internal/infrastructure/config"
)

// serviceName tags every log line so aggregated platform logs can be
// filtered to this service.
const serviceName = "naboom-mqtt"

// Logger is the service-wide structured logger. It embeds slog.Logger,
// so the full slog surface is available; all methods are safe for
// concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds a Logger from the logging config section. Format selects
// JSON (production) or text (development) output; every line carries
// service and version attributes.
func New(cfg config.LoggingConfig, version string) *Logger {
	return &Logger{Logger: slog.New(newHandler(cfg, version, writerFor(cfg.Output)))}
}

// With returns a child logger carrying additional default attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default is the bootstrap logger used before configuration loads:
// JSON to stdout at info level.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}

func writerFor(output string) io.Writer {
	if strings.ToLower(output) == "stderr" {
		return os.Stderr
	}
	return os.Stdout
}

func newHandler(cfg config.LoggingConfig, version string, w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return handler.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	})
}

// parseLevel maps a config string onto a slog level, defaulting to
// info for anything unrecognised.
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
