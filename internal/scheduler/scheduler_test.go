package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yungbote/neurod/internal/platform/apierr"
)

func newTestScheduler(t *testing.T, workers, capacity int) *Scheduler {
	t.Helper()
	s := New(workers, capacity, 50*time.Millisecond, nil, nil)
	s.Start()
	t.Cleanup(s.Stop)
	return s
}

func TestSubmitAndAwait_Success(t *testing.T) {
	s := newTestScheduler(t, 2, 10)
	job, err := s.Submit(RequestInfo{Method: "test"}, func(jc *JobContext) (any, error) {
		return 42, nil
	})
	require.NoError(t, err)

	val, err := s.Await(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, 42, val)
	require.Equal(t, Done, job.State())
}

func TestSubmitAndAwait_Error(t *testing.T) {
	s := newTestScheduler(t, 2, 10)
	boom := errors.New("boom")
	job, err := s.Submit(RequestInfo{Method: "test"}, func(jc *JobContext) (any, error) {
		return nil, boom
	})
	require.NoError(t, err)

	_, err = s.Await(context.Background(), job)
	require.Error(t, err)
	require.Equal(t, Error, job.State())
}

func TestSubmit_OverloadedWhenQueueFull(t *testing.T) {
	s := New(1, 1, time.Second, nil, nil)
	// Don't Start() workers, so the queue fills and stays full.
	block := make(chan struct{})
	_, err := s.Submit(RequestInfo{}, func(jc *JobContext) (any, error) {
		<-block
		return nil, nil
	})
	require.NoError(t, err)

	_, err = s.Submit(RequestInfo{}, func(jc *JobContext) (any, error) { return nil, nil })
	require.Error(t, err)
	require.Equal(t, apierr.Overloaded, apierr.As(err).Kind)
	close(block)
}

func TestCancel_RunningJobInterrupts(t *testing.T) {
	s := newTestScheduler(t, 1, 10)
	started := make(chan struct{})
	job, err := s.Submit(RequestInfo{}, func(jc *JobContext) (any, error) {
		close(started)
		<-jc.Ctx.Done()
		return nil, apierr.Wrap(apierr.JobInterrupted, jc.Ctx.Err())
	})
	require.NoError(t, err)

	<-started
	require.NoError(t, s.Cancel(job.ID))

	_, err = s.Await(context.Background(), job)
	require.Error(t, err)
	require.Equal(t, Interrupted, job.State())
}

func TestCancel_QueuedJobSkipsExecution(t *testing.T) {
	s := New(1, 10, time.Second, nil, nil)
	// One long-running job occupies the single worker so the second job
	// stays queued long enough to cancel before dispatch.
	block := make(chan struct{})
	started := make(chan struct{})
	_, err := s.Submit(RequestInfo{}, func(jc *JobContext) (any, error) {
		close(started)
		<-block
		return nil, nil
	})
	require.NoError(t, err)

	ran := false
	job2, err := s.Submit(RequestInfo{}, func(jc *JobContext) (any, error) {
		ran = true
		return nil, nil
	})
	require.NoError(t, err)

	s.Start()
	t.Cleanup(s.Stop)
	<-started
	require.NoError(t, s.Cancel(job2.ID))
	close(block)

	_, err = s.Await(context.Background(), job2)
	require.Error(t, err)
	require.Equal(t, Interrupted, job2.State())
	require.False(t, ran)
}

func TestGet_UnknownJob(t *testing.T) {
	s := newTestScheduler(t, 1, 10)
	_, err := s.Get("nonexistent")
	require.Error(t, err)
	require.Equal(t, apierr.NoSuchJob, apierr.As(err).Kind)
}

func TestJanitor_EvictsAfterCacheHoldTime(t *testing.T) {
	s := New(1, 10, 10*time.Millisecond, nil, nil)
	s.Start()
	defer s.Stop()

	job, err := s.Submit(RequestInfo{}, func(jc *JobContext) (any, error) { return 1, nil })
	require.NoError(t, err)
	_, err = s.Await(context.Background(), job)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := s.Get(job.ID)
		return err != nil
	}, time.Second, 5*time.Millisecond)
}

func TestSessionCommitOnDoneRollbackOtherwise(t *testing.T) {
	var last *fakeSession

	opener := func() (Session, error) {
		fs := &fakeSession{}
		last = fs
		return fs, nil
	}

	s := New(1, 10, time.Second, opener, nil)
	s.Start()
	t.Cleanup(s.Stop)

	job, err := s.Submit(RequestInfo{}, func(jc *JobContext) (any, error) { return "ok", nil })
	require.NoError(t, err)
	_, err = s.Await(context.Background(), job)
	require.NoError(t, err)
	require.True(t, last.committed)
	require.False(t, last.rolledBack)

	job2, err := s.Submit(RequestInfo{}, func(jc *JobContext) (any, error) { return nil, errors.New("fail") })
	require.NoError(t, err)
	_, err = s.Await(context.Background(), job2)
	require.Error(t, err)
	require.False(t, last.committed)
	require.True(t, last.rolledBack)
}

type fakeSession struct {
	committed  bool
	rolledBack bool
}

func (s *fakeSession) Commit() error   { s.committed = true; return nil }
func (s *fakeSession) Rollback() error { s.rolledBack = true; return nil }
