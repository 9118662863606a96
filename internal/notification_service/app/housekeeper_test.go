package app

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHousekeeper_AddJob_InvalidSchedule(t *testing.T) {
	h := NewHousekeeper(testLogger())
	err := h.AddJob("sweep", "not a schedule", func(context.Context) {})
	assert.ErrorContains(t, err, "sweep")
	assert.Equal(t, 0, h.Len())
}

func TestHousekeeper_AcceptsScheduleForms(t *testing.T) {
	h := NewHousekeeper(testLogger())
	require.NoError(t, h.AddJob("descriptor", "@every 1m", func(context.Context) {}))
	require.NoError(t, h.AddJob("five-field", "*/5 * * * *", func(context.Context) {}))
	require.NoError(t, h.AddJob("six-field", "30 */5 * * * *", func(context.Context) {}))
	assert.Equal(t, 3, h.Len())
}

func TestHousekeeper_RunsJobs(t *testing.T) {
	h := NewHousekeeper(testLogger())
	var runs atomic.Int32
	var sawDeadline atomic.Bool
	require.NoError(t, h.AddJob("tick", "@every 1s", func(ctx context.Context) {
		_, ok := ctx.Deadline()
		sawDeadline.Store(ok)
		runs.Add(1)
	}))
	require.NoError(t, h.AddJob("boom", "@every 1s", func(context.Context) {
		panic("job failure")
	}))

	h.Start()
	assert.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.Stop(ctx))
	assert.True(t, sawDeadline.Load())
}
