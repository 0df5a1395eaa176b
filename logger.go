package shardvec

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with store-specific helpers.
// Field names are kept consistent across operations.
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
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithShard adds a shard field to the logger.
func (l *Logger) WithShard(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("shard", id),
	}
}

// WithID adds an id field to the logger.
func (l *Logger) WithID(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("id", id),
	}
}

// WithDimension adds a dimension field to the logger.
func (l *Logger) WithDimension(dim int) *Logger {
	return &Logger{
		Logger: l.Logger.With("dimension", dim),
	}
}

// LogAdd logs an add operation.
func (l *Logger) LogAdd(ctx context.Context, id, shardID string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "add failed",
			"id", id,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "add completed",
			"id", id,
			"shard", shardID,
		)
	}
}

// LogSearch logs a search operation.
func (l *Logger) LogSearch(ctx context.Context, limit, candidates, resultsFound int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"limit", limit,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "search completed",
			"limit", limit,
			"shards", candidates,
			"results", resultsFound,
		)
	}
}

// LogDelete logs a delete operation.
func (l *Logger) LogDelete(ctx context.Context, id string, found bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "delete failed",
			"id", id,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "delete completed",
			"id", id,
			"found", found,
		)
	}
}

// LogRollover logs the creation of a new current shard.
func (l *Logger) LogRollover(ctx context.Context, from, to string) {
	l.DebugContext(ctx, "shard rollover",
		"from", from,
		"to", to,
	)
}

// LogActivation logs loading a shard back into memory.
func (l *Logger) LogActivation(ctx context.Context, shardID string, size int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "shard activation failed",
			"shard", shardID,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "shard activated",
			"shard", shardID,
			"size", size,
		)
	}
}

// LogEviction logs unloading a shard.
func (l *Logger) LogEviction(ctx context.Context, shardID string, spilled bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "shard eviction failed",
			"shard", shardID,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "shard evicted",
			"shard", shardID,
			"spilled", spilled,
		)
	}
}

// LogSearchTimeout logs a shard task abandoned by search.
func (l *Logger) LogSearchTimeout(ctx context.Context, shardID string, err error) {
	l.WarnContext(ctx, "shard search task abandoned",
		"shard", shardID,
		"error", err,
	)
}

// LogSave logs a save operation.
func (l *Logger) LogSave(ctx context.Context, location string, shards int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "save failed",
			"location", location,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "store saved",
			"location", location,
			"shards", shards,
		)
	}
}

// LogLoad logs a load operation.
func (l *Logger) LogLoad(ctx context.Context, location string, vectors int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "load failed",
			"location", location,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "store loaded",
			"location", location,
			"vectors", vectors,
		)
	}
}
