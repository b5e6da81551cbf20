package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ledgerline/docpipe/constants"
	"github.com/ledgerline/docpipe/internal/common"
	"github.com/ledgerline/docpipe/internal/job"
	"github.com/ledgerline/docpipe/internal/lock"
)

// Handler executes the work for one job stage. A nil return means the
// stage succeeded; a retriable error reschedules the task with backoff
// until the stage's retry budget is exhausted.
type Handler func(ctx context.Context, t Task) error

// Runner consumes tasks and executes registered stage handlers under a
// per-(job, stage) idempotency lock. Concurrency is capped by a
// weighted semaphore rather than a fixed worker pool so a single slow
// stage cannot pin every worker.
type Runner struct {
	queue    Queue
	machine  *job.StateMachine
	locks    lock.StageLock
	logger   *slog.Logger
	handlers map[constants.JobStage]Handler

	sem     *semaphore.Weighted
	lockTTL time.Duration
	timeout time.Duration
	backoff func(int) time.Duration
	wg      sync.WaitGroup
}

type RunnerOption func(*Runner)

func WithConcurrency(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

func WithLockTTL(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.lockTTL = d
		}
	}
}

func WithTaskTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithBackoff overrides the retry delay schedule.
func WithBackoff(f func(retries int) time.Duration) RunnerOption {
	return func(r *Runner) {
		if f != nil {
			r.backoff = f
		}
	}
}

func NewRunner(queue Queue, machine *job.StateMachine, locks lock.StageLock, logger *slog.Logger, opts ...RunnerOption) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		queue:    queue,
		machine:  machine,
		locks:    locks,
		logger:   logger,
		handlers: make(map[constants.JobStage]Handler),
		sem:      semaphore.NewWeighted(4),
		lockTTL:  5 * time.Minute,
		timeout:  3 * time.Minute,
		backoff:  job.BackoffDelay,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register binds a handler to a stage. Later registrations replace
// earlier ones.
func (r *Runner) Register(stage constants.JobStage, h Handler) {
	r.handlers[stage] = h
}

// Start consumes the queue until the context is cancelled, then waits
// for in-flight tasks to finish.
func (r *Runner) Start(ctx context.Context) {
	r.logger.Info("task runner started")
	for {
		t, err := r.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			r.logger.Error("dequeue failed", "error", err)
			continue
		}
		if err := r.sem.Acquire(ctx, 1); err != nil {
			// drained on shutdown; unacked tasks are recovered on restart
			break
		}
		r.wg.Add(1)
		go func(t Task) {
			defer r.wg.Done()
			defer r.sem.Release(1)
			r.process(ctx, t)
		}(t)
	}
	r.wg.Wait()
	r.logger.Info("task runner stopped")
}

func (r *Runner) process(ctx context.Context, t Task) {
	h, ok := r.handlers[t.Stage]
	if !ok {
		r.logger.Error("no handler for stage, dropping task", "job_id", t.JobID, "stage", t.Stage)
		r.ack(ctx, t)
		return
	}

	key := lock.Key(t.JobID.String(), string(t.Stage))
	held, err := r.locks.Acquire(ctx, key, r.lockTTL)
	if err != nil {
		r.logger.Error("lock acquire failed", "job_id", t.JobID, "stage", t.Stage, "error", err)
		r.ack(ctx, t)
		return
	}
	if !held {
		// a duplicate delivery; the other execution owns the stage
		r.logger.Info("stage already in progress, dropping duplicate",
			"job_id", t.JobID, "stage", t.Stage, "attempt", t.Attempt)
		r.ack(ctx, t)
		return
	}
	defer r.locks.Release(ctx, key)

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	runCtx = common.WithJobID(runCtx, t.JobID.String())
	runCtx = common.WithRequestID(runCtx, t.ID.String())
	herr := h(runCtx, t)
	cancel()

	if herr == nil {
		r.logger.Info("stage handled", "job_id", t.JobID, "stage", t.Stage, "attempt", t.Attempt)
		r.ack(ctx, t)
		return
	}
	r.handleFailure(ctx, t, herr)
}

// handleFailure records the error on the job and either reschedules the
// task with backoff or terminates the job when the error is fatal or
// the retry budget is spent.
func (r *Runner) handleFailure(ctx context.Context, t Task, herr error) {
	code := common.ErrorCode(herr)
	retriable := common.IsRetriable(herr)

	if retriable && t.Attempt < constants.MaxStageRetries {
		if err := r.machine.RecordRetry(ctx, t.JobID); err != nil {
			r.logger.Error("record retry failed", "job_id", t.JobID, "error", err)
		}
		delay := r.backoff(t.Attempt)
		r.logger.Warn("stage failed, rescheduling",
			"job_id", t.JobID, "stage", t.Stage, "attempt", t.Attempt, "delay", delay, "error", herr)

		// the delivered task is acked only after the next attempt is on
		// the queue; a shutdown inside the backoff window leaves it
		// unacked so queue recovery redelivers it
		next := t
		next.Attempt++
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			detached := context.WithoutCancel(ctx)
			if err := r.queue.Enqueue(detached, next); err != nil {
				r.logger.Error("reschedule failed", "job_id", next.JobID, "error", err)
				return
			}
			r.ack(detached, t)
		}()
		return
	}

	msg := herr.Error()
	if retriable {
		msg = fmt.Sprintf("retries exhausted after %d attempts: %s", t.Attempt+1, msg)
	}
	if err := r.machine.MarkFailed(ctx, t.JobID, code, msg, retriable); err != nil {
		r.logger.Error("mark failed errored", "job_id", t.JobID, "error", err)
	}
	r.ack(ctx, t)
}

func (r *Runner) ack(ctx context.Context, t Task) {
	if err := r.queue.Ack(ctx, t); err != nil {
		r.logger.Warn("ack failed", "job_id", t.JobID, "error", err)
	}
}
