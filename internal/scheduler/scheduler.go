package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/yungbote/neurod/internal/platform/apierr"
)

// Session is the per-worker transactional handle a JobFunc may use, per
// spec.md §4.1 worker-loop steps 2 and 5: committed iff the job finishes
// DONE, rolled back otherwise. catalog.Session satisfies this interface
// without the scheduler package importing catalog, keeping the dependency
// direction leaf-ward.
type Session interface {
	Commit() error
	Rollback() error
}

// SessionOpener opens a fresh Session for one job's worker-loop iteration.
// A nil opener means every job runs without a catalog session (used by the
// scheduler's own tests).
type SessionOpener func() (Session, error)

// JobFunc is the unit of work a worker runs. It receives a JobContext
// carrying the job's cancellable context, its (possibly nil) catalog
// session, and a Report sink.
type JobFunc func(jc *JobContext) (any, error)

// JobContext is the capability handle a JobFunc uses, grounded on the
// teacher's runtime.Context discipline ("pipelines never touch the job
// row directly, only through this object") — generalized from a
// DB-row-backed struct to the in-memory Job this scheduler owns.
type JobContext struct {
	Ctx     context.Context
	Session Session
	job     *Job
}

func (jc *JobContext) Report(key string, value any) { jc.job.Report(key, value) }
func (jc *JobContext) Job() *Job                    { return jc.job }

type queueItem struct {
	job *Job
	fn  JobFunc
}

// Scheduler is spec.md §4.1's bounded-queue, fixed-worker-pool job
// scheduler.
type Scheduler struct {
	queue         chan queueItem
	jobs          sync.Map // string -> *Job
	sessionOpener SessionOpener
	cacheHoldTime time.Duration
	workerCount   int
	metrics       *Metrics

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func New(workerCount, queueCapacity int, cacheHoldTime time.Duration, opener SessionOpener, metrics *Metrics) *Scheduler {
	if workerCount <= 0 {
		workerCount = 1
	}
	if queueCapacity <= 0 {
		queueCapacity = 1
	}
	return &Scheduler{
		queue:         make(chan queueItem, queueCapacity),
		sessionOpener: opener,
		cacheHoldTime: cacheHoldTime,
		workerCount:   workerCount,
		metrics:       metrics,
		stopCh:        make(chan struct{}),
	}
}

// Start launches the fixed worker pool and the cache janitor. Call once.
func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.workerLoop()
	}
	s.wg.Add(1)
	go s.janitorLoop()
}

// Stop signals every worker and the janitor to exit and waits for them.
// In-flight jobs are not interrupted; queued-but-undispatched jobs are
// left in the channel and simply never run.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// Submit enqueues fn for execution, returning its Job handle immediately.
// Fails with Overloaded if the queue is at capacity, per spec.md §4.1.
func (s *Scheduler) Submit(info RequestInfo, fn JobFunc) (*Job, error) {
	job := newJob(context.Background(), info)
	job.transition(Queued, Init)
	select {
	case s.queue <- queueItem{job: job, fn: fn}:
		s.jobs.Store(job.ID, job)
		s.metrics.setQueueDepth(len(s.queue))
		return job, nil
	default:
		return nil, apierr.New(apierr.Overloaded, "job queue is at capacity", nil)
	}
}

// Await blocks until job reaches a terminal state or ctx is done,
// whichever comes first.
func (s *Scheduler) Await(ctx context.Context, job *Job) (any, error) {
	select {
	case <-job.Done():
		value, err, _ := job.Result()
		return value, err
	case <-ctx.Done():
		return nil, apierr.Wrap(apierr.JobInterrupted, ctx.Err())
	}
}

// Get returns the cached Job handle for uid, or NoSuchJob if unknown or
// already evicted by the janitor.
func (s *Scheduler) Get(uid string) (*Job, error) {
	v, ok := s.jobs.Load(uid)
	if !ok {
		return nil, apierr.New(apierr.NoSuchJob, "no such job: "+uid, nil)
	}
	return v.(*Job), nil
}

// Cancel requests cancellation of uid, per spec.md §4.1: idempotent; a
// queued-but-undispatched job is marked INTERRUPTED directly (the worker
// skips it on dequeue), a running job has its context cancelled so the
// pipeline's own cancellation checks can unwind it.
func (s *Scheduler) Cancel(uid string) error {
	job, err := s.Get(uid)
	if err != nil {
		return err
	}
	job.cancel()
	if state := job.State(); state == Init || state == Queued {
		job.finish(Interrupted, nil, apierr.New(apierr.JobInterrupted, "job cancelled before it started running", nil), s.cacheHoldTime)
		s.metrics.recordTerminal(Interrupted)
	}
	return nil
}

func (s *Scheduler) workerLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		case item, ok := <-s.queue:
			if !ok {
				return
			}
			s.metrics.setQueueDepth(len(s.queue))
			s.runOne(item)
		}
	}
}

func (s *Scheduler) runOne(item queueItem) {
	job := item.job
	if !job.transition(Running, Queued) {
		// Cancelled while still queued; nothing to run.
		return
	}
	s.metrics.incBusyWorkers()
	defer s.metrics.decBusyWorkers()

	var sess Session
	if s.sessionOpener != nil {
		var err error
		sess, err = s.sessionOpener()
		if err != nil {
			job.finish(Error, nil, apierr.Wrap(apierr.DatabaseError, err), s.cacheHoldTime)
			s.metrics.recordTerminal(Error)
			return
		}
	}

	jc := &JobContext{Ctx: job.ctx, Session: sess, job: job}
	value, runErr := runJobFunc(item.fn, jc)

	finalState := Done
	if runErr != nil {
		if isInterrupted(job.ctx, runErr) {
			finalState = Interrupted
		} else {
			finalState = Error
		}
	}

	if sess != nil {
		if finalState == Done {
			_ = sess.Commit()
		} else {
			_ = sess.Rollback()
		}
	}

	job.finish(finalState, value, runErr, s.cacheHoldTime)
	s.metrics.recordTerminal(finalState)
}

// runJobFunc converts an uncaught panic inside fn into an ERROR result,
// matching spec.md §4.1 worker-loop step 4's "any other uncaught
// exception -> state ERROR."
func runJobFunc(fn JobFunc, jc *JobContext) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apierr.New(apierr.InternalError, "job panicked", map[string]any{"panic": r})
		}
	}()
	return fn(jc)
}

func isInterrupted(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	if ae, ok := err.(*apierr.Error); ok {
		return ae.Kind == apierr.JobInterrupted
	}
	return false
}

// janitorLoop evicts terminal jobs whose cache_expiry has passed, per
// spec.md §4.1's single sweeper thread.
func (s *Scheduler) janitorLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cacheHoldTime)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Scheduler) sweep() {
	now := time.Now()
	s.jobs.Range(func(key, value any) bool {
		job := value.(*Job)
		expiry := job.CacheExpiry()
		if expiry != nil && now.After(*expiry) {
			s.jobs.Delete(key)
		}
		return true
	})
}
