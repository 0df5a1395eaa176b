package resource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_IOSlots(t *testing.T) {
	c := NewController(Config{MaxConcurrentIO: 2})

	require.NoError(t, c.AcquireIOSlot(context.Background()))
	require.NoError(t, c.AcquireIOSlot(context.Background()))

	assert.False(t, c.TryAcquireIOSlot())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.AcquireIOSlot(ctx), context.DeadlineExceeded)

	c.ReleaseIOSlot()
	assert.True(t, c.TryAcquireIOSlot())
}

func TestController_DefaultsOneSlot(t *testing.T) {
	c := NewController(Config{})
	assert.Equal(t, int64(1), c.Config().MaxConcurrentIO)

	assert.True(t, c.TryAcquireIOSlot())
	assert.False(t, c.TryAcquireIOSlot())
}

func TestController_IORateLimit(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 1000})

	// The first burst is free; the next 500 bytes must wait ~0.5s.
	require.NoError(t, c.AcquireIO(context.Background(), 1000))

	start := time.Now()
	require.NoError(t, c.AcquireIO(context.Background(), 500))
	assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
	assert.Equal(t, int64(1500), c.IOBytes())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, c.AcquireIO(ctx, 5000))
}

func TestController_Unlimited(t *testing.T) {
	c := NewController(Config{})
	require.NoError(t, c.AcquireIO(context.Background(), 1<<30))
}

func TestController_Resident(t *testing.T) {
	c := NewController(Config{})
	c.AddResident(100)
	c.AddResident(-40)
	assert.Equal(t, int64(60), c.ResidentBytes())

	c.SetResident(7)
	assert.Equal(t, int64(7), c.ResidentBytes())
}

func TestController_Nil(t *testing.T) {
	var c *Controller
	assert.NoError(t, c.AcquireIO(context.Background(), 10))
	assert.NoError(t, c.AcquireIOSlot(context.Background()))
	assert.True(t, c.TryAcquireIOSlot())
	c.ReleaseIOSlot()
	c.AddResident(5)
	assert.Zero(t, c.ResidentBytes())
	assert.Zero(t, c.IOBytes())
}
