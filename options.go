package shardvec

import (
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/hupe1980/shardvec/blobstore"
	"github.com/hupe1980/shardvec/codec"
	"github.com/hupe1980/shardvec/internal/compress"
)

const (
	// DefaultChunkCapacity is the default maximum number of vectors per shard.
	DefaultChunkCapacity = 10000
	// DefaultMaxActiveShards is the default bound on resident shards.
	DefaultMaxActiveShards = 10
	// DefaultParallelism is the default number of search workers.
	DefaultParallelism = 4
	// DefaultOverFetch is the default per-shard over-fetch factor.
	DefaultOverFetch = 2
	// DefaultSearchTimeout is the default budget of a single shard search task.
	DefaultSearchTimeout = 5 * time.Second
)

// Compression selects how shard files are compressed.
type Compression = compress.Type

// Supported shard file compressions.
const (
	CompressionNone = compress.None
	CompressionLZ4  = compress.LZ4
	CompressionZSTD = compress.ZSTD
)

type options struct {
	chunkCapacity    int
	maxActiveShards  int
	parallelism      int
	overFetch        int
	searchTimeout    time.Duration
	logger           *Logger
	metricsCollector MetricsCollector
	codec            codec.Codec
	compression      compress.Type
	spillStore       blobstore.BlobStore
	ioLimit          int64
	now              func() time.Time
}

func defaultOptions() options {
	return options{
		chunkCapacity:    DefaultChunkCapacity,
		maxActiveShards:  DefaultMaxActiveShards,
		parallelism:      DefaultParallelism,
		overFetch:        DefaultOverFetch,
		searchTimeout:    DefaultSearchTimeout,
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
		codec:            codec.Default,
		compression:      compress.LZ4,
		now:              time.Now,
	}
}

// Option configures a Store.
type Option func(*options)

// WithChunkCapacity sets the maximum number of vectors per shard.
func WithChunkCapacity(n int) Option {
	return func(o *options) {
		o.chunkCapacity = n
	}
}

// WithMaxActiveShards bounds how many shards are resident at once.
//
// Inactive shards are spilled and reloaded on demand, so this is the knob that
// bounds memory.
func WithMaxActiveShards(n int) Option {
	return func(o *options) {
		o.maxActiveShards = n
	}
}

// WithParallelism sets the number of search workers.
// Values above runtime.NumCPU() are capped.
func WithParallelism(n int) Option {
	return func(o *options) {
		o.parallelism = n
	}
}

// WithOverFetch sets how many candidates per requested result each shard returns.
//
// Example: with limit 10 and over-fetch 2 every shard contributes up to 20
// matches to the merge.
func WithOverFetch(factor int) Option {
	return func(o *options) {
		o.overFetch = factor
	}
}

// WithSearchTimeout sets the budget of each shard search task.
// Tasks that exceed it are dropped from the result.
func WithSearchTimeout(d time.Duration) Option {
	return func(o *options) {
		o.searchTimeout = d
	}
}

// WithLogger sets the logger. If nil is passed, logging is disabled.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithLogLevel installs a text logger on stderr with the given level.
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &shardvec.BasicMetricsCollector{}
//	store, _ := shardvec.New(384, shardvec.WithMetricsCollector(metrics))
//	// ...
//	stats := metrics.GetStats()
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithCodec configures the codec used for the store meta file.
//
// If nil is passed, codec.Default is used. Load always uses the codec whose
// name is recorded in the file.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithCompression sets the compression of shard files and spilled shards.
func WithCompression(c Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithSpillStore sets where evicted shards are written.
//
// Defaults to an in-memory store; use a blobstore.LocalStore to actually
// release memory on eviction.
func WithSpillStore(bs blobstore.BlobStore) Option {
	return func(o *options) {
		o.spillStore = bs
	}
}

// WithIOLimit caps shard I/O throughput in bytes per second. Zero means unlimited.
func WithIOLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.ioLimit = bytesPerSec
	}
}

// WithClock overrides the time source used for LRU bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func applyOptions(optFns []Option) (options, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	switch {
	case opts.chunkCapacity <= 0:
		return opts, fmt.Errorf("%w: chunk capacity %d", ErrInvalidOption, opts.chunkCapacity)
	case opts.maxActiveShards <= 0:
		return opts, fmt.Errorf("%w: max active shards %d", ErrInvalidOption, opts.maxActiveShards)
	case opts.parallelism <= 0:
		return opts, fmt.Errorf("%w: parallelism %d", ErrInvalidOption, opts.parallelism)
	case opts.overFetch <= 0:
		return opts, fmt.Errorf("%w: over-fetch %d", ErrInvalidOption, opts.overFetch)
	case opts.searchTimeout <= 0:
		return opts, fmt.Errorf("%w: search timeout %s", ErrInvalidOption, opts.searchTimeout)
	case !opts.compression.Valid():
		return opts, fmt.Errorf("%w: compression %s", ErrInvalidOption, opts.compression)
	case opts.ioLimit < 0:
		return opts, fmt.Errorf("%w: io limit %d", ErrInvalidOption, opts.ioLimit)
	}

	opts.parallelism = min(opts.parallelism, runtime.NumCPU())

	if opts.spillStore == nil {
		opts.spillStore = blobstore.NewMemoryStore()
	}

	return opts, nil
}
