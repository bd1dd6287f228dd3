package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitReturnsImmediately(t *testing.T) {
	o := NewOrchestrator()
	release := make(chan struct{})

	job, err := o.Submit(context.Background(), KindIngest, "book", func(ctx context.Context) error {
		<-release
		return nil
	})
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)

	select {
	case <-job.Done():
		t.Fatal("job finished before it was released")
	default:
	}

	close(release)
	require.NoError(t, job.Wait(context.Background()))
	snap := job.Snapshot()
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, "book", snap.BookID)
	assert.False(t, snap.FinishedAt.IsZero())
}

func TestSubmitRecordsFailure(t *testing.T) {
	o := NewOrchestrator()
	boom := errors.New("boom")

	job, err := o.Submit(context.Background(), KindSummarize, "book", func(context.Context) error { return boom })
	require.NoError(t, err)

	assert.ErrorIs(t, o.Wait(context.Background(), job.ID), boom)
	snap := job.Snapshot()
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, "boom", snap.Error)
}

func TestSubmitRecoversPanic(t *testing.T) {
	o := NewOrchestrator()
	job, err := o.Submit(context.Background(), KindQuestionBank, "book", func(context.Context) error {
		panic("bad page")
	})
	require.NoError(t, err)

	err = job.Wait(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad page")
}

func TestJobOutlivesCallerContext(t *testing.T) {
	o := NewOrchestrator()
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	release := make(chan struct{})

	job, err := o.Submit(ctx, KindIngest, "book", func(ctx context.Context) error {
		close(started)
		<-release
		return ctx.Err()
	})
	require.NoError(t, err)
	<-started
	cancel()
	close(release)

	assert.NoError(t, job.Wait(context.Background()))
}

func TestSubmitExclusiveRejectsWhenBusy(t *testing.T) {
	o := NewOrchestrator()
	release := make(chan struct{})

	first, err := o.SubmitExclusive(context.Background(), KindFullScan, "a", func(context.Context) error {
		<-release
		return nil
	})
	require.NoError(t, err)
	assert.True(t, o.Busy())

	_, err = o.SubmitExclusive(context.Background(), KindFullScan, "b", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrBusy)

	// ordinary jobs are not blocked by the lock
	other, err := o.Submit(context.Background(), KindSummarize, "b", func(context.Context) error { return nil })
	require.NoError(t, err)
	require.NoError(t, other.Wait(context.Background()))

	close(release)
	require.NoError(t, first.Wait(context.Background()))
	assert.Eventually(t, func() bool { return !o.Busy() }, time.Second, time.Millisecond)

	next, err := o.SubmitExclusive(context.Background(), KindFullScan, "b", func(context.Context) error { return nil })
	require.NoError(t, err)
	require.NoError(t, next.Wait(context.Background()))
}

func TestExclusiveLockReleasedOnFailureAndPanic(t *testing.T) {
	o := NewOrchestrator()

	for _, fn := range []Func{
		func(context.Context) error { return errors.New("scan failed") },
		func(context.Context) error { panic("scan panicked") },
	} {
		job, err := o.SubmitExclusive(context.Background(), KindFullScan, "a", fn)
		require.NoError(t, err)
		require.Error(t, job.Wait(context.Background()))
		assert.Eventually(t, func() bool { return !o.Busy() }, time.Second, time.Millisecond)
	}
}

func TestSubmitExclusiveConcurrent(t *testing.T) {
	o := NewOrchestrator()
	release := make(chan struct{})
	defer close(release)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		busy     int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.SubmitExclusive(context.Background(), KindFullScan, "a", func(context.Context) error {
				<-release
				return nil
			})
			mu.Lock()
			defer mu.Unlock()
			if errors.Is(err, ErrBusy) {
				busy++
			} else if err == nil {
				accepted++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, accepted)
	assert.Equal(t, 19, busy)
}

func TestGetAndList(t *testing.T) {
	o := NewOrchestrator()
	_, err := o.Get("missing")
	assert.ErrorIs(t, err, ErrUnknownJob)

	a, err := o.Submit(context.Background(), KindIngest, "a", func(context.Context) error { return nil })
	require.NoError(t, err)
	b, err := o.Submit(context.Background(), KindIngest, "b", func(context.Context) error { return nil })
	require.NoError(t, err)

	got, err := o.Get(a.ID)
	require.NoError(t, err)
	assert.Same(t, a, got)

	require.NoError(t, o.Shutdown(context.Background()))
	list := o.List()
	require.Len(t, list, 2)
	ids := []string{list[0].ID, list[1].ID}
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids)
}
