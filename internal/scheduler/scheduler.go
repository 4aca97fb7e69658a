package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hoferino/manda/internal/artifacts"
	"github.com/hoferino/manda/internal/checkpoint"
)

// Job is one recurring maintenance task driven by a cron expression.
type Job struct {
	ID             string
	CronExpression string
	Run            func(ctx context.Context) error
}

// Scheduler runs registered maintenance jobs on their cron schedules.
type Scheduler struct {
	parser   cron.Parser
	logger   *slog.Logger
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex

	jobsMu  sync.Mutex
	jobs    map[string]*Job
	nextRun map[string]time.Time

	inflightMu sync.Mutex
	inflight   map[string]struct{} // job IDs currently executing (dedup)
}

// NewScheduler creates a new Scheduler. The tick interval defaults to 60s;
// tests shorten it.
func NewScheduler(logger *slog.Logger, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Scheduler{
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		logger:   logger,
		interval: interval,
		jobs:     make(map[string]*Job),
		nextRun:  make(map[string]time.Time),
		inflight: make(map[string]struct{}),
	}
}

// Register adds a job. The cron expression is validated up front and the
// first run scheduled from now.
func (s *Scheduler) Register(job *Job) error {
	if job == nil || job.ID == "" || job.Run == nil {
		return fmt.Errorf("job needs an ID and a Run function")
	}
	next, err := s.CalculateNextRun(job.CronExpression, time.Now().UTC())
	if err != nil {
		return err
	}

	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %q already registered", job.ID)
	}
	s.jobs[job.ID] = job
	s.nextRun[job.ID] = next
	return nil
}

// Start launches the background scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("maintenance scheduler started", slog.Int("jobs", s.jobCount()))
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs every job whose next run time has passed.
func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now().UTC()

	s.jobsMu.Lock()
	var due []*Job
	for id, job := range s.jobs {
		if !s.nextRun[id].After(now) {
			due = append(due, job)
		}
	}
	s.jobsMu.Unlock()

	for _, job := range due {
		if !s.tryAcquire(job.ID) {
			continue // already running (dedup)
		}
		s.runJob(ctx, job, now)
		s.releaseJob(job.ID)
	}
}

func (s *Scheduler) runJob(ctx context.Context, job *Job, now time.Time) {
	s.logger.Info("running maintenance job", slog.String("job_id", job.ID))

	if err := job.Run(ctx); err != nil {
		s.logger.Error("maintenance job failed",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}

	next, err := s.CalculateNextRun(job.CronExpression, now)
	if err != nil {
		// Registration validated the expression; this cannot normally happen.
		s.logger.Error("cannot reschedule job", slog.String("job_id", job.ID))
		return
	}
	s.jobsMu.Lock()
	s.nextRun[job.ID] = next
	s.jobsMu.Unlock()
}

// tryAcquire returns true and marks the job as in-flight if it is not already running.
func (s *Scheduler) tryAcquire(jobID string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[jobID]; ok {
		return false
	}
	s.inflight[jobID] = struct{}{}
	return true
}

// releaseJob removes the job from the in-flight set.
func (s *Scheduler) releaseJob(jobID string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, jobID)
}

// CalculateNextRun computes the next run time for a cron expression.
func (s *Scheduler) CalculateNextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// RunNow executes a registered job immediately, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, jobID string) error {
	s.jobsMu.Lock()
	job, ok := s.jobs[jobID]
	s.jobsMu.Unlock()
	if !ok {
		return fmt.Errorf("job %q not registered", jobID)
	}
	if !s.tryAcquire(jobID) {
		return fmt.Errorf("job %q already running", jobID)
	}
	defer s.releaseJob(jobID)
	return job.Run(ctx)
}

func (s *Scheduler) jobCount() int {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	return len(s.jobs)
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("maintenance scheduler stopped")
	return nil
}

// CheckpointSweepJob removes thread snapshots idle longer than ttl. Runs
// nightly by default.
func CheckpointSweepJob(store checkpoint.Store, ttl time.Duration, logger *slog.Logger) *Job {
	return &Job{
		ID:             "checkpoint-sweep",
		CronExpression: "0 3 * * *",
		Run: func(ctx context.Context) error {
			removed, err := store.Sweep(ctx, time.Now().UTC().Add(-ttl))
			if err != nil {
				return err
			}
			if removed > 0 {
				logger.InfoContext(ctx, "swept idle threads", slog.Int("removed", removed))
			}
			return nil
		},
	}
}

// GraphAuditJob validates the artifact graph's mirrored-map invariants and
// logs any asymmetry. Hourly by default.
func GraphAuditJob(manager *artifacts.Manager, logger *slog.Logger) *Job {
	return &Job{
		ID:             "graph-audit",
		CronExpression: "0 * * * *",
		Run: func(ctx context.Context) error {
			issues := manager.Graph().Validate()
			for _, issue := range issues {
				logger.WarnContext(ctx, "graph inconsistency", slog.String("issue", issue))
			}
			if len(issues) > 0 {
				return fmt.Errorf("artifact graph has %d inconsistencies", len(issues))
			}
			return nil
		},
	}
}
