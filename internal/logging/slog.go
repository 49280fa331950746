package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// LevelFatal marks unrecoverable failures. The process is not terminated;
// the caller decides what stays alive.
const LevelFatal = slog.Level(12)

// stdout is swapped out in tests.
var stdout io.Writer = os.Stdout

// Options configures SlogManager.Setup.
type Options struct {
	// File receives text logs. When nil, logs go to stdout instead.
	File  io.Writer
	Level string

	// Provider enables the OTel bridge when non-nil.
	Provider *sdklog.LoggerProvider

	// GraylogAddress enables GELF shipping over UDP when non-empty.
	GraylogAddress string

	// Context adds dynamic attributes (actor, sim time) to every record.
	Context ContextProvider
}

// SlogManager manages slog-based logging with optional OTel and Graylog outputs.
type SlogManager struct {
	logger *slog.Logger

	logProvider *sdklog.LoggerProvider
	gelf        *gelf.Writer
}

// NewSlogManager creates a new slog-based logging manager.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	case "FATAL":
		return LevelFatal
	default:
		return slog.LevelInfo
	}
}

// replaceAttr formats timestamps as RFC3339 UTC and names the fatal level.
func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	switch a.Key {
	case slog.TimeKey:
		if t, ok := a.Value.Any().(time.Time); ok {
			a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
		}
	case slog.LevelKey:
		if lvl, ok := a.Value.Any().(slog.Level); ok && lvl >= LevelFatal {
			a.Value = slog.StringValue("FATAL")
		}
	}
	return a
}

// Setup initializes the logging system. Calling it again replaces the
// previous logger and closes the previous Graylog writer.
func (m *SlogManager) Setup(opts Options) error {
	lvl := parseLevel(opts.Level)
	m.logProvider = opts.Provider

	if m.gelf != nil {
		_ = m.gelf.Close()
		m.gelf = nil
	}

	handlerOpts := &slog.HandlerOptions{
		Level:       lvl,
		ReplaceAttr: replaceAttr,
	}

	var handlers []slog.Handler

	if opts.File != nil {
		handlers = append(handlers, slog.NewTextHandler(opts.File, handlerOpts))
	} else {
		handlers = append(handlers, slog.NewTextHandler(stdout, handlerOpts))
	}

	if opts.Provider != nil {
		handlers = append(handlers, otelslog.NewHandler("actorsteer", otelslog.WithLoggerProvider(opts.Provider)))
	}

	var setupErr error
	if opts.GraylogAddress != "" {
		w, err := gelf.NewWriter(opts.GraylogAddress)
		if err != nil {
			setupErr = fmt.Errorf("graylog writer %s: %w", opts.GraylogAddress, err)
		} else {
			m.gelf = w
			handlers = append(handlers, slog.NewJSONHandler(w, handlerOpts))
		}
	}

	var h slog.Handler = NewMultiHandler(handlers...)
	if opts.Context != nil {
		h = NewContextHandler(h, opts.Context)
	}

	m.logger = slog.New(h)
	m.logger.Info("Logging initialized", "level", lvl.String(), "graylog", m.gelf != nil)
	if setupErr != nil {
		m.logger.Warn("Graylog disabled", "error", setupErr)
	}
	return setupErr
}

// Logger returns the configured slog.Logger.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Flush forces a flush of OTel logs if available.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider != nil {
		return m.logProvider.ForceFlush(ctx)
	}
	return nil
}

// Close releases the Graylog connection.
func (m *SlogManager) Close() error {
	if m.gelf == nil {
		return nil
	}
	err := m.gelf.Close()
	m.gelf = nil
	return err
}

// Fatal logs at LevelFatal through logger.
func Fatal(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelFatal, msg, args...)
}
