package jobs

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"

	"github.com/northstarcredit/core/pkg/applog"
	"github.com/northstarcredit/core/pkg/apptrace"
)

// Config tunes the scheduler's polling cadence and lease semantics.
type Config struct {
	// PollBatchSize is the maximum number of executions claimed per poll.
	PollBatchSize int
	// JobLostInterval is how long a running execution may go without a
	// keep-alive before the lease reclaimer considers its worker dead.
	JobLostInterval time.Duration
	// MaxWait bounds how long the poll loop sleeps when there is nothing
	// to do and no wake-up has arrived.
	MaxWait time.Duration
	// ListenDSN, if set, opens a dedicated LISTEN connection on the
	// "job_execution" channel; a notification there wakes the poll loop
	// before the next MaxWait tick. Schedule itself sends no NOTIFY.
	ListenDSN string
}

// DefaultConfig is a reasonable starting point for production.
func DefaultConfig() Config {
	return Config{
		PollBatchSize:   20,
		JobLostInterval: 2 * time.Minute,
		MaxWait:         60 * time.Second,
	}
}

// Scheduler runs the poll/dispatch loop, the stale-lease reclaimer, and
// (optionally) the LISTEN wake-up loop. It claims executions under
// SELECT ... FOR UPDATE SKIP LOCKED so any number of scheduler processes
// can run against the same database concurrently.
type Scheduler struct {
	cfg      Config
	repo     *repo
	registry *Registry
	wake     chan struct{}
}

// NewScheduler builds a Scheduler backed by db and registry.
func NewScheduler(db *sql.DB, registry *Registry, cfg Config) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		repo:     newRepo(db),
		registry: registry,
		wake:     make(chan struct{}, 1),
	}
}

// Schedule enqueues a job. Pass a ctx carrying a transaction (see
// pkg/dbtx) to enqueue atomically with whatever business event caused it.
func (s *Scheduler) Schedule(ctx context.Context, id, jobType string, uniquePerType bool, payload any, executeAt time.Time) error {
	return s.repo.schedule(ctx, id, jobType, uniquePerType, payload, executeAt)
}

// Run blocks, running the poll loop, the lease reclaimer, and (if
// configured) the LISTEN wake-up loop, until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.pollLoop(ctx) })
	g.Go(func() error { return s.reclaimLoop(ctx) })

	if s.cfg.ListenDSN != "" {
		g.Go(func() error { return s.listenLoop(ctx) })
	}

	return g.Wait()
}

func (s *Scheduler) pollLoop(ctx context.Context) error {
	log := applog.FromContext(ctx)
	failures := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := s.pollAndDispatch(ctx)
		if err != nil {
			failures++
			log.Errorf("jobs: poll_and_dispatch error (%d consecutive): %v", failures, err)

			select {
			case <-time.After(time.Duration(50<<uint(failures)) * time.Millisecond):
			case <-ctx.Done():
				return nil
			}

			continue
		}

		failures = 0

		if n > 0 {
			continue
		}

		select {
		case <-s.wake:
		case <-time.After(s.cfg.MaxWait):
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Scheduler) pollAndDispatch(ctx context.Context) (int, error) {
	ctx, span := apptrace.Start(ctx, "jobs", "poll_and_dispatch")
	defer span.End()

	batch, err := s.repo.claimBatch(ctx, s.cfg.PollBatchSize, time.Now())
	if err != nil {
		apptrace.HandleSpanError(span, "claim batch", err)
		return 0, err
	}

	for _, row := range batch {
		jobsDispatched.WithLabelValues(row.jobType).Inc()

		go s.dispatch(Job{ID: row.id, Type: row.jobType, Data: row.data, Attempt: row.attempt})
	}

	return len(batch), nil
}

func (s *Scheduler) reclaimLoop(ctx context.Context) error {
	log := applog.FromContext(ctx)
	interval := s.cfg.JobLostInterval / 2

	if interval <= 0 {
		interval = 30 * time.Second
	}

	for {
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return nil
		}

		now := time.Now()
		staleBefore := now.Add(-s.cfg.JobLostInterval)

		types, err := s.repo.reclaimLost(ctx, staleBefore, now)
		if err != nil {
			log.Errorf("jobs: reclaim lost executions: %v", err)
			continue
		}

		for _, t := range types {
			jobsLost.WithLabelValues(t).Inc()
		}

		if len(types) > 0 {
			s.notifyWake()
		}
	}
}

func (s *Scheduler) listenLoop(ctx context.Context) error {
	log := applog.FromContext(ctx)

	for {
		if ctx.Err() != nil {
			return nil
		}

		conn, err := pgx.Connect(ctx, s.cfg.ListenDSN)
		if err != nil {
			log.Errorf("jobs: listen connect: %v", err)

			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return nil
			}

			continue
		}

		if _, err := conn.Exec(ctx, `LISTEN "job_execution"`); err != nil {
			log.Errorf("jobs: listen: %v", err)
			conn.Close(context.Background())

			continue
		}

		for {
			if _, err := conn.WaitForNotification(ctx); err != nil {
				break
			}

			s.notifyWake()
		}

		conn.Close(context.Background())
	}
}

func (s *Scheduler) notifyWake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
