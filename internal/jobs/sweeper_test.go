package jobs

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Kyz7/identity/internal/logging"
	"github.com/stretchr/testify/assert"
)

type countingCleaner struct {
	calls atomic.Int32
	n     int64
	err   error
}

func (c *countingCleaner) CleanupExpired(context.Context) (int64, error) {
	c.calls.Add(1)
	return c.n, c.err
}

func TestSweepOnce_CollectsCountsAndSkipsFailures(t *testing.T) {
	tokens := &countingCleaner{n: 3}
	resets := &countingCleaner{err: errors.New("db down")}

	s := NewSweeper(time.Hour, logging.NewWithWriter(io.Discard, "error")).
		Add("refresh_tokens", tokens).
		Add("password_resets", resets)

	counts := s.SweepOnce(context.Background())

	assert.Equal(t, map[string]int64{"refresh_tokens": 3}, counts)
	assert.EqualValues(t, 1, tokens.calls.Load())
	assert.EqualValues(t, 1, resets.calls.Load())
}

func TestRun_StopsOnCancel(t *testing.T) {
	c := &countingCleaner{}
	s := NewSweeper(time.Millisecond, logging.NewWithWriter(io.Discard, "error")).Add("t", c)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return c.calls.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
