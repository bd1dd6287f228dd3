// Package jobs runs long book operations in the background and tracks their state.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Akphawee/accessible-library/internal/helper"
)

// ErrBusy is returned when an exclusive job is requested while another one runs.
var ErrBusy = errors.New("another exclusive job is already running")

// ErrUnknownJob is returned by Get and Wait for ids that were never submitted.
var ErrUnknownJob = errors.New("unknown job")

type Kind string

const (
	KindIngest       Kind = "ingest"
	KindFullScan     Kind = "full-scan"
	KindSummarize    Kind = "summarize"
	KindQuestionBank Kind = "generate-question-bank"
	KindReindex      Kind = "reindex"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Func is the body of a job.
type Func func(ctx context.Context) error

// Job is one submitted unit of work.
type Job struct {
	ID     string
	Kind   Kind
	BookID string

	mu         sync.Mutex
	status     Status
	err        error
	createdAt  time.Time
	startedAt  time.Time
	finishedAt time.Time
	done       chan struct{}
}

// Snapshot is a copy of a job's state safe to hand out.
type Snapshot struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	BookID     string    `json:"book_id"`
	Status     Status    `json:"status"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	s := Snapshot{
		ID:         j.ID,
		Kind:       j.Kind,
		BookID:     j.BookID,
		Status:     j.status,
		CreatedAt:  j.createdAt,
		StartedAt:  j.startedAt,
		FinishedAt: j.finishedAt,
	}
	if j.err != nil {
		s.Error = j.err.Error()
	}
	return s
}

// Err returns the job's failure, if any.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Done is closed when the job has finished.
func (j *Job) Done() <-chan struct{} { return j.done }

// Wait blocks until the job finishes or ctx ends and returns the job's error.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return j.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *Job) setRunning() {
	j.mu.Lock()
	j.status = StatusRunning
	j.startedAt = time.Now()
	j.mu.Unlock()
}

func (j *Job) finish(err error) {
	j.mu.Lock()
	j.err = err
	j.finishedAt = time.Now()
	if err != nil {
		j.status = StatusFailed
	} else {
		j.status = StatusCompleted
	}
	j.mu.Unlock()
	close(j.done)
}

// Orchestrator starts jobs and keeps a registry of them. At most one
// exclusive job runs at a time.
type Orchestrator struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	wg   sync.WaitGroup

	exclusive atomic.Bool
}

func NewOrchestrator() *Orchestrator {
	return &Orchestrator{jobs: make(map[string]*Job)}
}

// Submit starts fn in the background and returns immediately. The job keeps
// running when ctx is cancelled; ctx only carries values.
func (o *Orchestrator) Submit(ctx context.Context, kind Kind, bookID string, fn Func) (*Job, error) {
	job, err := o.register(kind, bookID)
	if err != nil {
		return nil, err
	}
	o.start(ctx, job, fn, nil)
	return job, nil
}

// SubmitExclusive is Submit guarded by the orchestrator-wide lock. It fails
// with ErrBusy while another exclusive job is running. The lock is released
// when the job ends, whether it succeeds, fails or panics.
func (o *Orchestrator) SubmitExclusive(ctx context.Context, kind Kind, bookID string, fn Func) (*Job, error) {
	if !o.exclusive.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	job, err := o.register(kind, bookID)
	if err != nil {
		o.exclusive.Store(false)
		return nil, err
	}
	o.start(ctx, job, fn, func() { o.exclusive.Store(false) })
	return job, nil
}

// Busy reports whether an exclusive job holds the lock.
func (o *Orchestrator) Busy() bool {
	return o.exclusive.Load()
}

func (o *Orchestrator) register(kind Kind, bookID string) (*Job, error) {
	id, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}
	job := &Job{
		ID:        id,
		Kind:      kind,
		BookID:    bookID,
		status:    StatusQueued,
		createdAt: time.Now(),
		done:      make(chan struct{}),
	}
	o.mu.Lock()
	o.jobs[id] = job
	o.mu.Unlock()
	return job, nil
}

func (o *Orchestrator) start(ctx context.Context, job *Job, fn Func, release func()) {
	ctx = context.WithoutCancel(ctx)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if release != nil {
			defer release()
		}
		logger := log.With().Str("job_id", job.ID).Str("kind", string(job.Kind)).Str("book_id", job.BookID).Logger()

		job.setRunning()
		logger.Info().Msg("Job started")

		err := run(ctx, fn)
		job.finish(err)
		if err != nil {
			logger.Error().Err(err).Msg("Job failed")
			return
		}
		logger.Info().Dur("took", time.Since(job.Snapshot().StartedAt)).Msg("Job completed")
	}()
}

func run(ctx context.Context, fn Func) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return fn(ctx)
}

// Get returns the job with the given id.
func (o *Orchestrator) Get(id string) (*Job, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	job, ok := o.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}
	return job, nil
}

// List returns snapshots of every job, oldest first.
func (o *Orchestrator) List() []Snapshot {
	o.mu.RLock()
	out := make([]Snapshot, 0, len(o.jobs))
	for _, job := range o.jobs {
		out = append(out, job.Snapshot())
	}
	o.mu.RUnlock()
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out
}

// Wait blocks until the job with the given id has finished.
func (o *Orchestrator) Wait(ctx context.Context, id string) error {
	job, err := o.Get(id)
	if err != nil {
		return err
	}
	return job.Wait(ctx)
}

// Shutdown waits for every running job or until ctx ends.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
