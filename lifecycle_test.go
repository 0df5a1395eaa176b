package shardvec_test

import (
	"context"
	"fmt"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/shardvec"
	"github.com/hupe1980/shardvec/metadata"
)

// Helper function to create a random-ish vector
func randomVector(dim int, seed int) []float32 {
	vec := make([]float32, dim)
	for j := range vec {
		vec[j] = float32(seed*j+1) * 0.01
	}
	return vec
}

// TestNoGoroutineLeaks verifies that the search workers stop on Close.
func TestNoGoroutineLeaks(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(t *testing.T) *shardvec.Store
		maxLeaks int // Allow small variance (runtime background goroutines)
	}{
		{
			name: "single shard",
			setup: func(t *testing.T) *shardvec.Store {
				s, err := shardvec.New(64, shardvec.WithParallelism(4))
				require.NoError(t, err)
				return s
			},
			maxLeaks: 2,
		},
		{
			name: "many shards with spill",
			setup: func(t *testing.T) *shardvec.Store {
				s, err := shardvec.New(64,
					shardvec.WithChunkCapacity(8),
					shardvec.WithMaxActiveShards(2),
					shardvec.WithParallelism(4),
				)
				require.NoError(t, err)
				return s
			},
			maxLeaks: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runtime.GC()
			time.Sleep(50 * time.Millisecond)

			initial := runtime.NumGoroutine()
			t.Logf("Initial goroutines: %d", initial)

			s := tt.setup(t)

			ctx := context.Background()
			for i := range 50 {
				err := s.Add(ctx, fmt.Sprintf("doc-%d", i), randomVector(64, i), metadata.Document{
					"category": metadata.String(fmt.Sprintf("cat-%d", i%5)),
				})
				require.NoError(t, err)
			}

			_, err := s.Search(ctx, randomVector(64, 999), 10)
			require.NoError(t, err)

			require.NoError(t, s.Close())

			deadline := time.Now().Add(2 * time.Second)
			var final, leaked int
			for {
				runtime.GC()
				time.Sleep(50 * time.Millisecond)

				final = runtime.NumGoroutine()
				leaked = final - initial
				if leaked <= tt.maxLeaks || time.Now().After(deadline) {
					break
				}
			}

			t.Logf("Final goroutines: %d (leaked: %d)", final, leaked)

			if leaked > tt.maxLeaks {
				t.Errorf("Goroutine leak detected: started with %d, ended with %d (leaked: %d, max allowed: %d)",
					initial, final, leaked, tt.maxLeaks)

				buf := make([]byte, 1<<20)
				stackSize := runtime.Stack(buf, true)
				t.Logf("Goroutine stacks:\n%s", buf[:stackSize])
			}
		})
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	s, err := shardvec.New(4)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestOperationsAfterClose(t *testing.T) {
	ctx := context.Background()
	s, err := shardvec.New(4, shardvec.WithChunkCapacity(2))
	require.NoError(t, err)

	for i := range 3 {
		require.NoError(t, s.Add(ctx, fmt.Sprintf("v%d", i), randomVector(4, i), nil))
	}
	require.NoError(t, s.Close())

	_, err = s.Search(ctx, randomVector(4, 1), 1)
	assert.ErrorIs(t, err, shardvec.ErrClosed)
	assert.ErrorIs(t, s.Load(ctx, t.TempDir()+"/index"), shardvec.ErrClosed)

	// Introspection keeps working on a closed store.
	assert.Equal(t, 3, s.Len())
	assert.True(t, s.Contains("v1"))
	assert.Equal(t, 2, s.Stats().ShardCount)
}
