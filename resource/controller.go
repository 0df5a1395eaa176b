// Package resource bounds the I/O and memory a store spends on shard persistence.
package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits.
type Config struct {
	// IOLimitBytesPerSec is the maximum shard I/O throughput.
	// If 0, unlimited.
	IOLimitBytesPerSec int64

	// MaxConcurrentIO is the maximum number of blob transfers in flight.
	// If 0, defaults to 1.
	MaxConcurrentIO int64
}

// Controller manages I/O budget and tracks resident shard memory.
//
// A nil *Controller is valid and imposes no limits.
type Controller struct {
	cfg Config

	ioSem     *semaphore.Weighted
	ioLimiter *rate.Limiter

	resident atomic.Int64
	ioBytes  atomic.Int64
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxConcurrentIO <= 0 {
		cfg.MaxConcurrentIO = 1
	}

	c := &Controller{
		cfg:   cfg,
		ioSem: semaphore.NewWeighted(cfg.MaxConcurrentIO),
	}

	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}

	return c
}

// Config returns the effective limits.
func (c *Controller) Config() Config {
	if c == nil {
		return Config{}
	}
	return c.cfg
}

// AcquireIO waits until the I/O limit allows the specified number of bytes.
//
// Requests larger than one second of budget are paid in burst-sized steps.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || bytes <= 0 {
		return nil
	}
	c.ioBytes.Add(int64(bytes))

	if c.ioLimiter == nil {
		return ctx.Err()
	}

	burst := c.ioLimiter.Burst()
	for bytes > 0 {
		n := min(bytes, burst)
		if err := c.ioLimiter.WaitN(ctx, n); err != nil {
			return err
		}
		bytes -= n
	}
	return nil
}

// AcquireIOSlot reserves one concurrent transfer slot.
// Blocks if all slots are busy.
func (c *Controller) AcquireIOSlot(ctx context.Context) error {
	if c == nil {
		return ctx.Err()
	}
	return c.ioSem.Acquire(ctx, 1)
}

// TryAcquireIOSlot attempts to reserve a transfer slot without blocking.
func (c *Controller) TryAcquireIOSlot() bool {
	if c == nil {
		return true
	}
	return c.ioSem.TryAcquire(1)
}

// ReleaseIOSlot releases a transfer slot.
func (c *Controller) ReleaseIOSlot() {
	if c == nil {
		return
	}
	c.ioSem.Release(1)
}

// IOBytes returns the total bytes accounted through AcquireIO.
func (c *Controller) IOBytes() int64 {
	if c == nil {
		return 0
	}
	return c.ioBytes.Load()
}

// AddResident adjusts the estimated resident shard memory by delta bytes.
func (c *Controller) AddResident(delta int64) {
	if c == nil || delta == 0 {
		return
	}
	c.resident.Add(delta)
}

// SetResident overwrites the estimated resident shard memory.
func (c *Controller) SetResident(bytes int64) {
	if c == nil {
		return
	}
	c.resident.Store(bytes)
}

// ResidentBytes returns the estimated resident shard memory.
func (c *Controller) ResidentBytes() int64 {
	if c == nil {
		return 0
	}
	return c.resident.Load()
}
