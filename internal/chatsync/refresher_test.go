package chatsync

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	collab_errors "collaboraid-sync/pkg/errors"
)

type countingTarget struct {
	calls atomic.Int32
}

func (c *countingTarget) Refresh(context.Context) error {
	c.calls.Add(1)
	return nil
}

func TestRefresherTicks(t *testing.T) {
	target := &countingTarget{}
	r := NewRefresher(target, 10*time.Millisecond, rate.Inf, 1, nil)
	r.Start(context.Background())

	require.Eventually(t, func() bool { return target.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	r.Stop()

	seen := target.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, seen, target.calls.Load(), "no refreshes after Stop")
}

func TestRefresherTriggerIsRateLimited(t *testing.T) {
	target := &countingTarget{}
	r := NewRefresher(target, 0, rate.Every(time.Hour), 1, nil)

	require.NoError(t, r.Trigger(context.Background()))
	assert.ErrorIs(t, r.Trigger(context.Background()), collab_errors.ErrRateLimited)
	assert.Equal(t, int32(1), target.calls.Load())
	r.Stop()
}
