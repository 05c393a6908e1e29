package index

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingRebuilder struct {
	calls atomic.Int32
	err   error
}

func (c *countingRebuilder) Rebuild(ctx context.Context) (*Index, error) {
	c.calls.Add(1)
	return nil, c.err
}

func TestScheduler_RebuildsOnTickUntilCancelled(t *testing.T) {
	r := &countingRebuilder{err: errors.New("scan incomplete")}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		NewScheduler(r, 10*time.Millisecond).Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return r.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}
