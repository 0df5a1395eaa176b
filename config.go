package shardvec

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/hupe1980/shardvec/blobstore"
	"github.com/hupe1980/shardvec/codec"
	"github.com/hupe1980/shardvec/internal/compress"
)

// Config holds store settings read from the environment.
//
// With prefix "SHARDVEC" the chunk capacity is read from
// SHARDVEC_CHUNK_CAPACITY, and so on.
type Config struct {
	ChunkCapacity   int           `envconfig:"CHUNK_CAPACITY" default:"10000"`
	MaxActiveShards int           `envconfig:"MAX_ACTIVE_SHARDS" default:"10"`
	Parallelism     int           `envconfig:"PARALLELISM" default:"4"`
	OverFetch       int           `envconfig:"OVER_FETCH" default:"2"`
	SearchTimeout   time.Duration `envconfig:"SEARCH_TIMEOUT" default:"5s"`
	Compression     string        `envconfig:"COMPRESSION" default:"lz4"`
	Codec           string        `envconfig:"CODEC" default:"go-json"`

	// SpillDir holds evicted shards. Empty keeps them in memory.
	SpillDir string `envconfig:"SPILL_DIR"`

	// IOLimit caps shard I/O in bytes per second. 0 means unlimited.
	IOLimit int64 `envconfig:"IO_LIMIT_BYTES_PER_SEC" default:"0"`

	// LogLevel is a slog level name. Empty disables logging.
	LogLevel  string `envconfig:"LOG_LEVEL"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
}

// LoadConfig reads the optional .env files, then the environment.
//
// Missing env files are skipped. Variables already set in the environment
// win over values from the files.
func LoadConfig(prefix string, envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}
	return cfg, nil
}

// Options maps the configuration to store options.
func (c Config) Options() ([]Option, error) {
	ct, err := compress.ParseType(c.Compression)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOption, err)
	}

	cd, ok := codec.ByName(c.Codec)
	if !ok {
		return nil, fmt.Errorf("%w: unknown codec %q", ErrInvalidOption, c.Codec)
	}

	opts := []Option{
		WithChunkCapacity(c.ChunkCapacity),
		WithMaxActiveShards(c.MaxActiveShards),
		WithParallelism(c.Parallelism),
		WithOverFetch(c.OverFetch),
		WithSearchTimeout(c.SearchTimeout),
		WithCompression(ct),
		WithCodec(cd),
		WithIOLimit(c.IOLimit),
	}

	if c.SpillDir != "" {
		opts = append(opts, WithSpillStore(blobstore.NewLocalStore(c.SpillDir)))
	}

	if c.LogLevel != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
			return nil, fmt.Errorf("%w: log level: %w", ErrInvalidOption, err)
		}

		switch strings.ToLower(c.LogFormat) {
		case "", "text":
			opts = append(opts, WithLogger(NewTextLogger(level)))
		case "json":
			opts = append(opts, WithLogger(NewJSONLogger(level)))
		default:
			return nil, fmt.Errorf("%w: log format %q", ErrInvalidOption, c.LogFormat)
		}
	}

	return opts, nil
}
