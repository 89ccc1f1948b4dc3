package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/northstarcredit/core/pkg/apperr"
	"github.com/northstarcredit/core/pkg/applog"
	"github.com/northstarcredit/core/pkg/apptrace"
)

// warnThreshold is how many attempts a failing job gets before its
// failures are logged at error level instead of warn: the first few
// retries of a transient blip are expected noise, repeated failure past
// this point is worth paging on.
const warnThreshold = 3

// dispatch runs one claimed job to completion: it starts the job's
// keep-alive lease renewal, executes the Runner under panic recovery, and
// applies whatever outcome resulted. It never returns an error itself —
// all failure handling is done by updating storage and logging, since
// dispatch runs detached in its own goroutine.
func (s *Scheduler) dispatch(job Job) {
	ctx := context.Background()
	ctx, span := apptrace.Start(ctx, "jobs", "dispatch_job")
	defer span.End()

	log := applog.FromContext(ctx)

	reg, ok := s.registry.lookup(job.Type)
	if !ok {
		log.Errorf("jobs: no runner registered for job type %q (id=%s)", job.Type, job.ID)
		return
	}

	jobsActive.WithLabelValues(job.Type).Inc()
	defer jobsActive.WithLabelValues(job.Type).Dec()

	keepAliveCtx, stopKeepAlive := context.WithCancel(ctx)
	defer stopKeepAlive()

	go s.keepAlive(keepAliveCtx, job.ID, job.Type)

	completion, err := s.execute(ctx, reg.runner, job)

	stopKeepAlive()

	if err != nil {
		s.fail(ctx, job, reg, err)
		return
	}

	s.finish(ctx, job, completion)
}

// execute runs runner.Run under recover() so a panic inside one job type
// never takes the scheduler process down; it surfaces as a normal failed
// attempt instead.
func (s *Scheduler) execute(ctx context.Context, runner Runner, job Job) (completion Completion, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("jobs: panic running job %s (type=%s): %v", job.ID, job.Type, r)
		}
	}()

	return runner.Run(ctx, job)
}

func (s *Scheduler) keepAlive(ctx context.Context, id, jobType string) {
	log := applog.FromContext(ctx)

	interval := s.cfg.JobLostInterval / 4
	if interval <= 0 {
		interval = 15 * time.Second
	}

	failures := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoffOr(interval, failures)):
		}

		if ctx.Err() != nil {
			return
		}

		if err := s.repo.keepAlive(ctx, id, time.Now()); err != nil {
			failures++
			log.Warnf("jobs: keep-alive failed for %s (type=%s, attempt %d): %v", id, jobType, failures, err)

			continue
		}

		failures = 0
	}
}

func backoffOr(interval time.Duration, failures int) time.Duration {
	if failures == 0 {
		return interval
	}

	return time.Duration(50<<uint(failures)) * time.Millisecond
}

func (s *Scheduler) fail(ctx context.Context, job Job, reg registration, runErr error) {
	log := applog.FromContext(ctx)

	attempt := job.Attempt + 1
	nextAttemptAt := time.Now().Add(reg.retry.NextAttemptAt(attempt))

	deadLettered, err := s.repo.retryOrDeadLetter(ctx, job.ID, attempt, nextAttemptAt)
	if err != nil {
		log.Errorf("jobs: failed to record failure for %s (type=%s): %v", job.ID, job.Type, err)
		return
	}

	outcome := "retry"
	if deadLettered {
		outcome = "dead_letter"
	}

	jobsFailed.WithLabelValues(job.Type, outcome).Inc()

	msg := fmt.Sprintf("jobs: job %s (type=%s) attempt %d failed: %v", job.ID, job.Type, attempt, runErr)

	if attempt <= warnThreshold && !apperr.Is(runErr, apperr.KindFatalExternal) {
		log.Warn(msg)
	} else {
		log.Error(msg)
	}

	if !deadLettered {
		s.notifyWake()
	}
}

func (s *Scheduler) finish(ctx context.Context, job Job, completion Completion) {
	log := applog.FromContext(ctx)

	var err error

	switch completion.kind {
	case completionComplete:
		err = s.repo.complete(ctx, job.ID, time.Now(), completion.op)
		if err == nil {
			jobsCompleted.WithLabelValues(job.Type).Inc()
		}
	case completionRescheduleNow:
		err = s.repo.reschedule(ctx, job.ID, time.Now(), completion.op)
		if err == nil {
			jobsRescheduled.WithLabelValues(job.Type).Inc()
			s.notifyWake()
		}
	case completionRescheduleIn:
		err = s.repo.reschedule(ctx, job.ID, time.Now().Add(completion.rescheduleIn), completion.op)
		if err == nil {
			jobsRescheduled.WithLabelValues(job.Type).Inc()
		}
	case completionRescheduleAt:
		err = s.repo.reschedule(ctx, job.ID, completion.rescheduleAt, completion.op)
		if err == nil {
			jobsRescheduled.WithLabelValues(job.Type).Inc()
		}
	}

	if err != nil {
		log.Errorf("jobs: failed to record completion for %s (type=%s): %v", job.ID, job.Type, err)
	}
}
