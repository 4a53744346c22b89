// Package runtime runs the background jobs: the retention sweep and the
// language model availability probe.
package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultRunTimeout bounds a single job run.
const DefaultRunTimeout = 5 * time.Minute

// Job is a named unit of background work.
type Job interface {
	Name() string
	Schedule() string
	Run(ctx context.Context) error
}

// Scheduler runs registered jobs on their schedules. A job never overlaps
// itself: a tick that arrives while the previous run is in flight is skipped.
type Scheduler struct {
	mu         sync.Mutex
	cron       *cron.Cron
	jobs       []Job
	locks      map[string]*sync.Mutex
	runTimeout time.Duration
	initialRun bool
	logger     zerolog.Logger

	cancel  context.CancelFunc
	initial sync.WaitGroup
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithRunTimeout bounds each job run.
func WithRunTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.runTimeout = d
		}
	}
}

// WithInitialRun controls whether every job runs once immediately on Start.
func WithInitialRun(on bool) SchedulerOption {
	return func(s *Scheduler) { s.initialRun = on }
}

// NewScheduler creates a scheduler. Jobs must be registered before Start.
func NewScheduler(logger zerolog.Logger, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		locks:      make(map[string]*sync.Mutex),
		runTimeout: DefaultRunTimeout,
		initialRun: true,
		logger:     logger.With().Str("component", "scheduler").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterJob adds a job. Names must be unique.
func (s *Scheduler) RegisterJob(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return fmt.Errorf("scheduler already started")
	}
	name := j.Name()
	if _, exists := s.locks[name]; exists {
		return fmt.Errorf("duplicate job name %q", name)
	}
	s.locks[name] = &sync.Mutex{}
	s.jobs = append(s.jobs, j)
	return nil
}

// Start schedules every registered job. Jobs receive a context derived from
// ctx that Stop cancels. An invalid schedule fails Start before anything runs.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return fmt.Errorf("scheduler already started")
	}

	schedules := make([]cron.Schedule, len(s.jobs))
	for i, j := range s.jobs {
		sched, err := ParseSchedule(j.Schedule())
		if err != nil {
			return fmt.Errorf("invalid schedule for job %q: %w", j.Name(), err)
		}
		schedules[i] = sched
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.cron = cron.New()

	for i, j := range s.jobs {
		job := j
		s.cron.Schedule(schedules[i], cron.FuncJob(func() { s.runJob(runCtx, job) }))
		s.logger.Info().Str("job", job.Name()).Str("schedule", job.Schedule()).
			Time("next", schedules[i].Next(time.Now())).Msg("Job scheduled")
	}

	if s.initialRun {
		for _, j := range s.jobs {
			job := j
			s.initial.Add(1)
			go func() {
				defer s.initial.Done()
				s.runJob(runCtx, job)
			}()
		}
	}

	s.cron.Start()
	s.logger.Info().Int("jobs", len(s.jobs)).Msg("Scheduler started")
	return nil
}

// runJob runs job unless a previous run still holds its lock.
func (s *Scheduler) runJob(ctx context.Context, job Job) {
	lock := s.locks[job.Name()]
	if !lock.TryLock() {
		s.logger.Warn().Str("job", job.Name()).Msg("Job still running, skipping tick")
		return
	}
	defer lock.Unlock()

	if ctx.Err() != nil {
		return
	}
	jobCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	start := time.Now()
	s.logger.Debug().Str("job", job.Name()).Msg("Job started")
	if err := job.Run(jobCtx); err != nil {
		s.logger.Error().Err(err).Str("job", job.Name()).Dur("elapsed", time.Since(start)).Msg("Job failed")
		return
	}
	s.logger.Debug().Str("job", job.Name()).Dur("elapsed", time.Since(start)).Msg("Job completed")
}

// Stop cancels running jobs and waits for them to return, or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return nil
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		<-s.cron.Stop().Done()
		s.initial.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("Scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn().Err(ctx.Err()).Msg("Scheduler stop timed out with jobs in flight")
		return ctx.Err()
	}
}
