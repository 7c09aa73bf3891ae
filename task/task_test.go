package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStopCancelsAndJoins(t *testing.T) {
	var observed atomic.Bool
	tk := Start(context.Background(), "worker", func(ctx context.Context) {
		<-ctx.Done()
		observed.Store(true)
	})

	assert.Equal(t, "worker", tk.Name())
	tk.Stop()

	assert.True(t, observed.Load(), "worker must have returned before Stop returns")
	select {
	case <-tk.Done():
	default:
		t.Fatal("Done should be closed after Stop")
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	tk := Start(context.Background(), "worker", func(ctx context.Context) {
		<-ctx.Done()
	})

	tk.Cancel()
	tk.Cancel()
	tk.Stop()
	tk.Stop()
}

func TestParentCancellationPropagates(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	tk := Start(parent, "worker", func(ctx context.Context) {
		<-ctx.Done()
	})

	cancel()

	select {
	case <-tk.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("task did not observe parent cancellation")
	}
}

func TestWorkerReturningOnItsOwn(t *testing.T) {
	tk := Start(context.Background(), "short", func(ctx context.Context) {})
	tk.Join()
	// Stop after a natural return must not block.
	tk.Stop()
}

func TestOnceRunsAtMostOnce(t *testing.T) {
	var calls atomic.Int32
	fn := Once(func() { calls.Add(1) })

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			fn()
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	require.Equal(t, int32(1), calls.Load())
}

func TestOnceNil(t *testing.T) {
	fn := Once(nil)
	require.NotNil(t, fn)
	fn()
}
