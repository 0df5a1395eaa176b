package shardvec

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; the
// promcollector package provides a Prometheus implementation.
type MetricsCollector interface {
	// RecordAdd is called after each add operation.
	// duration is the total time taken, err is nil if successful.
	RecordAdd(duration time.Duration, err error)

	// RecordGet is called after each get operation.
	RecordGet(duration time.Duration, err error)

	// RecordSearch is called after each search operation.
	// limit is the number of results requested.
	RecordSearch(limit int, duration time.Duration, err error)

	// RecordDelete is called after each delete operation.
	RecordDelete(duration time.Duration, err error)

	// RecordActivation is called after a shard is brought back into memory.
	RecordActivation(shardID string, duration time.Duration, err error)

	// RecordEviction is called after a shard is unloaded.
	// spilled reports whether its data had to be written first.
	RecordEviction(shardID string, spilled bool)

	// RecordSearchTimeout is called for every shard task a search abandoned.
	RecordSearchTimeout(shardID string)

	// RecordResidency reports the active shard count and estimated resident bytes.
	RecordResidency(activeShards int, residentBytes int64)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAdd(time.Duration, error)                {}
func (NoopMetricsCollector) RecordGet(time.Duration, error)                {}
func (NoopMetricsCollector) RecordSearch(int, time.Duration, error)        {}
func (NoopMetricsCollector) RecordDelete(time.Duration, error)             {}
func (NoopMetricsCollector) RecordActivation(string, time.Duration, error) {}
func (NoopMetricsCollector) RecordEviction(string, bool)                   {}
func (NoopMetricsCollector) RecordSearchTimeout(string)                    {}
func (NoopMetricsCollector) RecordResidency(int, int64)                    {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	AddCount         atomic.Int64
	AddErrors        atomic.Int64
	AddTotalNanos    atomic.Int64
	GetCount         atomic.Int64
	GetErrors        atomic.Int64
	SearchCount      atomic.Int64
	SearchErrors     atomic.Int64
	SearchTotalNanos atomic.Int64
	DeleteCount      atomic.Int64
	DeleteErrors     atomic.Int64
	ActivationCount  atomic.Int64
	ActivationErrors atomic.Int64
	EvictionCount    atomic.Int64
	SpillCount       atomic.Int64
	SearchTimeouts   atomic.Int64
	ActiveShards     atomic.Int64
	ResidentBytes    atomic.Int64
}

// RecordAdd implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAdd(duration time.Duration, err error) {
	b.AddCount.Add(1)
	b.AddTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.AddErrors.Add(1)
	}
}

// RecordGet implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGet(_ time.Duration, err error) {
	b.GetCount.Add(1)
	if err != nil {
		b.GetErrors.Add(1)
	}
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(_ int, duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(_ time.Duration, err error) {
	b.DeleteCount.Add(1)
	if err != nil {
		b.DeleteErrors.Add(1)
	}
}

// RecordActivation implements MetricsCollector.
func (b *BasicMetricsCollector) RecordActivation(_ string, _ time.Duration, err error) {
	b.ActivationCount.Add(1)
	if err != nil {
		b.ActivationErrors.Add(1)
	}
}

// RecordEviction implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEviction(_ string, spilled bool) {
	b.EvictionCount.Add(1)
	if spilled {
		b.SpillCount.Add(1)
	}
}

// RecordSearchTimeout implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearchTimeout(string) {
	b.SearchTimeouts.Add(1)
}

// RecordResidency implements MetricsCollector.
func (b *BasicMetricsCollector) RecordResidency(activeShards int, residentBytes int64) {
	b.ActiveShards.Store(int64(activeShards))
	b.ResidentBytes.Store(residentBytes)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		AddCount:        b.AddCount.Load(),
		AddErrors:       b.AddErrors.Load(),
		AddAvgNanos:     avgNanos(b.AddTotalNanos.Load(), b.AddCount.Load()),
		GetCount:        b.GetCount.Load(),
		GetErrors:       b.GetErrors.Load(),
		SearchCount:     b.SearchCount.Load(),
		SearchErrors:    b.SearchErrors.Load(),
		SearchAvgNanos:  avgNanos(b.SearchTotalNanos.Load(), b.SearchCount.Load()),
		DeleteCount:     b.DeleteCount.Load(),
		DeleteErrors:    b.DeleteErrors.Load(),
		ActivationCount: b.ActivationCount.Load(),
		ActivationErrs:  b.ActivationErrors.Load(),
		EvictionCount:   b.EvictionCount.Load(),
		SpillCount:      b.SpillCount.Load(),
		SearchTimeouts:  b.SearchTimeouts.Load(),
		ActiveShards:    b.ActiveShards.Load(),
		ResidentBytes:   b.ResidentBytes.Load(),
	}
}

func avgNanos(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	AddCount        int64
	AddErrors       int64
	AddAvgNanos     int64
	GetCount        int64
	GetErrors       int64
	SearchCount     int64
	SearchErrors    int64
	SearchAvgNanos  int64
	DeleteCount     int64
	DeleteErrors    int64
	ActivationCount int64
	ActivationErrs  int64
	EvictionCount   int64
	SpillCount      int64
	SearchTimeouts  int64
	ActiveShards    int64
	ResidentBytes   int64
}
