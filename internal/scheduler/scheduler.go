// Package scheduler runs background jobs on fixed intervals. A job never
// overlaps itself: a tick that arrives while the previous run is still
// active is skipped.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pagecraft/internal/logging"
)

var (
	ErrJobNotFound     = errors.New("job not found")
	ErrDuplicateJob    = errors.New("job already registered")
	ErrInvalidInterval = errors.New("job interval must be positive")
	ErrAlreadyStarted  = errors.New("scheduler already started")
)

// JobFunc is the body of a scheduled job.
type JobFunc func(ctx context.Context) error

type job struct {
	name     string
	interval time.Duration
	fn       JobFunc
	running  sync.Mutex
	runs     atomic.Int64
	skipped  atomic.Int64
}

// JobStats reports how often a job ran or was skipped.
type JobStats struct {
	Name    string
	Runs    int64
	Skipped int64
}

// Scheduler owns a set of interval jobs.
type Scheduler struct {
	mu      sync.Mutex
	jobs    map[string]*job
	order   []string
	started bool
	wg      sync.WaitGroup
}

// New returns an empty scheduler.
func New() *Scheduler {
	return &Scheduler{jobs: make(map[string]*job)}
}

// Add registers fn to run every interval once Start is called.
func (s *Scheduler) Add(name string, interval time.Duration, fn JobFunc) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, name)
	}
	s.jobs[name] = &job{name: name, interval: interval, fn: fn}
	s.order = append(s.order, name)
	return nil
}

// Start launches one ticker goroutine per job. Jobs stop when ctx is cancelled;
// use Wait to block until in-flight runs have returned.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true
	for _, name := range s.order {
		j := s.jobs[name]
		s.wg.Add(1)
		go s.loop(ctx, j)
	}
	return nil
}

// Wait blocks until every ticker loop and job run has finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// RunNow runs the named job synchronously. It returns false without running
// when the job is already in progress.
func (s *Scheduler) RunNow(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return false, ErrJobNotFound
	}
	return s.run(ctx, j)
}

// Stats returns run counters in registration order.
func (s *Scheduler) Stats() []JobStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := make([]JobStats, 0, len(s.order))
	for _, name := range s.order {
		j := s.jobs[name]
		stats = append(stats, JobStats{Name: name, Runs: j.runs.Load(), Skipped: j.skipped.Load()})
	}
	return stats
}

func (s *Scheduler) loop(ctx context.Context, j *job) {
	defer s.wg.Done()
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// one goroutine per tick so a slow job never stalls the ticker
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				_, _ = s.run(ctx, j)
			}()
		}
	}
}

func (s *Scheduler) run(ctx context.Context, j *job) (ran bool, err error) {
	if !j.running.TryLock() {
		j.skipped.Add(1)
		logging.L().Warn().Str("job", j.name).Msg("previous run still active, skipping")
		return false, nil
	}
	defer j.running.Unlock()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			ran = true
			err = fmt.Errorf("job %s panicked: %v", j.name, r)
		}
		j.runs.Add(1)
		event := logging.L().Info()
		if err != nil {
			event = logging.L().Error().Err(err)
		}
		event.Str("job", j.name).Dur("took", time.Since(start)).Msg("job finished")
	}()

	return true, j.fn(ctx)
}
