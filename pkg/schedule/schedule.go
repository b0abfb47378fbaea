// Package schedule runs jobs on fixed intervals. Each job has at most one
// running instance; ticks that arrive while it runs are dropped.
package schedule

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Job is a unit of scheduled work.
type Job struct {
	// Name identifies the job in logs.
	Name string

	// Interval between runs.
	Interval time.Duration

	// FirstRun, when positive, runs the job this long after Start instead of
	// waiting a full Interval.
	FirstRun time.Duration

	// Run does the work. Errors are logged; the job stays scheduled.
	Run func(ctx context.Context) error
}

type entry struct {
	Job
	running *semaphore.Weighted
	runs    int64
	skipped int64
}

// Scheduler runs jobs until its context ends.
type Scheduler struct {
	logger *zap.Logger

	mu      sync.Mutex
	entries []*entry
	wg      sync.WaitGroup
}

// New creates a scheduler.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{logger: logger}
}

// Add registers a job. It must be called before Start.
func (s *Scheduler) Add(job Job) error {
	if job.Run == nil {
		return errors.New("schedule: job has no Run function")
	}
	if job.Interval <= 0 {
		return errors.New("schedule: job interval must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, &entry{Job: job, running: semaphore.NewWeighted(1)})
	s.logger.Info("job scheduled",
		zap.String("job", job.Name),
		zap.Duration("interval", job.Interval),
		zap.Duration("first_run", job.FirstRun),
	)
	return nil
}

// Start blocks until ctx is done, then waits for running jobs to return.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	entries := append([]*entry(nil), s.entries...)
	s.mu.Unlock()

	s.logger.Info("scheduler started", zap.Int("jobs", len(entries)))

	g, gctx := errgroup.WithContext(ctx)
	for _, e := range entries {
		g.Go(func() error {
			s.loop(gctx, e)
			return nil
		})
	}
	err := g.Wait()
	s.wg.Wait()

	s.logger.Info("scheduler stopped")
	return err
}

func (s *Scheduler) loop(ctx context.Context, e *entry) {
	if e.FirstRun > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(e.FirstRun):
			s.trigger(ctx, e)
		}
	}

	ticker := time.NewTicker(e.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.trigger(ctx, e)
		}
	}
}

// trigger starts the job unless an instance is already running.
func (s *Scheduler) trigger(ctx context.Context, e *entry) {
	if !e.running.TryAcquire(1) {
		s.mu.Lock()
		e.skipped++
		s.mu.Unlock()
		s.logger.Debug("job still running, skipping tick", zap.String("job", e.Name))
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer e.running.Release(1)

		start := time.Now()
		s.logger.Info("job started", zap.String("job", e.Name))
		err := e.Run(ctx)

		s.mu.Lock()
		e.runs++
		s.mu.Unlock()

		if err != nil {
			s.logger.Error("job failed",
				zap.String("job", e.Name),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err),
			)
			return
		}
		s.logger.Info("job finished",
			zap.String("job", e.Name),
			zap.Duration("duration", time.Since(start)),
		)
	}()
}

// Stats returns how many times a job ran and how many ticks were skipped.
func (s *Scheduler) Stats(name string) (runs, skipped int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.Name == name {
			return e.runs, e.skipped
		}
	}
	return 0, 0
}
