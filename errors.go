package shardvec

import (
	"errors"
	"fmt"

	"github.com/hupe1980/shardvec/internal/workerpool"
	"github.com/hupe1980/shardvec/shard"
)

var (
	// ErrNotFound is returned when an item is not found.
	//
	// Get and Delete report a missing id through their boolean result; the
	// sentinel exists for callers that need to wrap that outcome.
	ErrNotFound = errors.New("not found")

	// ErrInvalidLimit is returned when the search limit is not positive.
	ErrInvalidLimit = errors.New("limit must be positive")

	// ErrEmptyID is returned when adding a vector without an id.
	ErrEmptyID = errors.New("id must not be empty")

	// ErrInvalidOption is returned when an option value is out of range.
	ErrInvalidOption = errors.New("invalid option")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store closed")

	// ErrUninitialized is returned after a failed Load until the next
	// successful Load or Clear.
	ErrUninitialized = errors.New("store not initialized")

	// ErrSearchTaskTimeout marks a shard search task that did not finish in time.
	// It is only ever logged and counted; Search returns the remaining results.
	ErrSearchTaskTimeout = errors.New("shard search task timed out")

	// ErrShardIO matches every *ShardIOError via errors.Is.
	ErrShardIO = errors.New("shard I/O failed")

	// ErrCorruptShard is returned when a shard file fails validation.
	ErrCorruptShard = shard.ErrCorrupt

	// ErrCorruptMeta is returned when a store meta file fails validation.
	ErrCorruptMeta = errors.New("corrupt store metadata")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrInvalidDimension indicates an invalid configured dimension.
type ErrInvalidDimension struct {
	Dimension int
}

func (e *ErrInvalidDimension) Error() string {
	return fmt.Sprintf("invalid dimension: %d", e.Dimension)
}

// ShardIOError describes a failed read or write of persisted state.
//
// The original underlying error can be accessed via errors.Unwrap.
type ShardIOError struct {
	// Op is "read" or "write".
	Op string
	// Shard is the affected shard id, empty for the meta file.
	Shard string
	// Path is the blob name or file path involved.
	Path string
	Err  error
}

func (e *ShardIOError) Error() string {
	if e.Shard == "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s shard %s (%s): %v", e.Op, e.Shard, e.Path, e.Err)
}

func (e *ShardIOError) Unwrap() error { return e.Err }

// Is reports whether target is ErrShardIO.
func (e *ShardIOError) Is(target error) bool { return target == ErrShardIO }

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, workerpool.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	return err
}
