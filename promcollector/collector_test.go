package promcollector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/shardvec"
)

func TestCollector_Records(t *testing.T) {
	c := New()

	c.RecordAdd(time.Millisecond, nil)
	c.RecordAdd(time.Millisecond, errors.New("boom"))
	c.RecordSearch(10, time.Millisecond, nil)
	c.RecordActivation("shard_1", time.Millisecond, nil)
	c.RecordActivation("shard_2", 0, errors.New("corrupt"))
	c.RecordEviction("shard_1", true)
	c.RecordEviction("shard_2", false)
	c.RecordEviction("shard_3", false)
	c.RecordSearchTimeout("shard_4")
	c.RecordResidency(3, 4096)

	assert.Equal(t, 3, promtest.CollectAndCount(c.opLatency))
	assert.InDelta(t, 1, promtest.ToFloat64(c.activations.WithLabelValues("success")), 0)
	assert.InDelta(t, 1, promtest.ToFloat64(c.activations.WithLabelValues("error")), 0)
	assert.InDelta(t, 1, promtest.ToFloat64(c.evictions.WithLabelValues("true")), 0)
	assert.InDelta(t, 2, promtest.ToFloat64(c.evictions.WithLabelValues("false")), 0)
	assert.InDelta(t, 1, promtest.ToFloat64(c.searchTimeouts), 0)
	assert.InDelta(t, 3, promtest.ToFloat64(c.activeShards), 0)
	assert.InDelta(t, 4096, promtest.ToFloat64(c.residentBytes), 0)
}

func TestCollector_Register(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	c := New(func(o *Options) {
		o.Namespace = "test"
		o.ConstLabels = prometheus.Labels{"store": "docs"}
	})

	require.NoError(t, c.Register(reg))
	assert.Error(t, c.Register(reg), "registering twice must fail")

	c.RecordResidency(1, 10)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["test_active_shards"])
	assert.True(t, names["test_resident_bytes"])
}

func TestCollector_WithStore(t *testing.T) {
	ctx := context.Background()
	c := New()

	s, err := shardvec.New(2,
		shardvec.WithChunkCapacity(1),
		shardvec.WithMaxActiveShards(1),
		shardvec.WithMetricsCollector(c),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Add(ctx, "a", []float32{1, 0}, nil))
	require.NoError(t, s.Add(ctx, "b", []float32{0, 1}, nil))

	_, err = s.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)

	assert.Positive(t, promtest.ToFloat64(c.evictions.WithLabelValues("true")))
	assert.Positive(t, promtest.ToFloat64(c.activations.WithLabelValues("success")))
	assert.InDelta(t, 1, promtest.ToFloat64(c.activeShards), 0)
}
