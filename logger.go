package astrodb

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with astrodb-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithCatalog adds the catalog identity to the logger.
func (l *Logger) WithCatalog(id CatalogID) *Logger {
	return &Logger{
		Logger: l.Logger.With("catalog", id.String()),
	}
}

// WithHost adds the library host to the logger.
func (l *Logger) WithHost(host string) *Logger {
	return &Logger{
		Logger: l.Logger.With("host", host),
	}
}

// WithCount adds a record count field to the logger.
func (l *Logger) WithCount(count int) *Logger {
	return &Logger{
		Logger: l.Logger.With("count", count),
	}
}

// LogOpen logs a table open.
func (l *Logger) LogOpen(ctx context.Context, catalog string, records int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "open failed",
			"catalog", catalog,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "table opened",
			"catalog", catalog,
			"records", records,
		)
	}
}

// LogImport logs an import run.
func (l *Logger) LogImport(ctx context.Context, catalog string, summary ImportSummary, err error) {
	if err != nil {
		l.ErrorContext(ctx, "import failed",
			"catalog", catalog,
			"rows_read", summary.RowsRead,
			"error", err,
		)
	} else if summary.SkippedOutOfBounds > 0 || summary.FieldFailures > 0 {
		l.WarnContext(ctx, "import completed with rejections",
			"catalog", catalog,
			"rows_read", summary.RowsRead,
			"records", summary.RecordsImported,
			"skipped_out_of_bounds", summary.SkippedOutOfBounds,
			"field_failures", summary.FieldFailures,
			"elapsed", summary.Elapsed,
		)
	} else {
		l.InfoContext(ctx, "import completed",
			"catalog", catalog,
			"rows_read", summary.RowsRead,
			"records", summary.RecordsImported,
			"elapsed", summary.Elapsed,
		)
	}
}

// LogPopulate logs an object set populate.
func (l *Logger) LogPopulate(ctx context.Context, catalog string, found int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "populate failed",
			"catalog", catalog,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "populate completed",
			"catalog", catalog,
			"found", found,
		)
	}
}

// LogSearch logs a search execution.
func (l *Logger) LogSearch(ctx context.Context, catalog string, evaluated, matches int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"catalog", catalog,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "search completed",
			"catalog", catalog,
			"evaluated", evaluated,
			"matches", matches,
		)
	}
}

// LogFlush logs a record store flush.
func (l *Logger) LogFlush(ctx context.Context, name string, bytes int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "flush failed",
			"file", name,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "flush completed",
			"file", name,
			"bytes", bytes,
		)
	}
}

// LogMirror logs a remote catalog materialization.
func (l *Logger) LogMirror(ctx context.Context, prefix string, copied, skipped int, bytes int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "mirror failed",
			"prefix", prefix,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "mirror completed",
			"prefix", prefix,
			"copied", copied,
			"skipped", skipped,
			"bytes", bytes,
		)
	}
}
