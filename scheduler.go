package nunitrunner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// TestScheduler is responsible for scheduling periodic test runs.
type TestScheduler interface {
	Start(ctx context.Context) error
	Stop() error
	RegisterCallback(func(ctx context.Context) error)
	WaitForShutdown(ctx context.Context) error
	Stopped() bool
}

// DefaultTestScheduler runs the callback immediately and then every interval
// until stopped. Errors of periodic runs are logged and do not stop the schedule.
type DefaultTestScheduler struct {
	interval time.Duration
	logger   log.Logger
	callback func(ctx context.Context) error

	running atomic.Bool
	runs    atomic.Int64
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewDefaultTestScheduler creates a new DefaultTestScheduler.
func NewDefaultTestScheduler(interval time.Duration, logger log.Logger) *DefaultTestScheduler {
	return &DefaultTestScheduler{
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// RegisterCallback registers the callback to be called when tests should run.
func (s *DefaultTestScheduler) RegisterCallback(callback func(ctx context.Context) error) {
	s.callback = callback
}

// Start runs the callback once and starts the periodic runs. An error of the
// first run is returned and nothing is scheduled.
func (s *DefaultTestScheduler) Start(ctx context.Context) error {
	if s.callback == nil {
		return errors.New("callback must be registered before starting scheduler")
	}
	if s.interval <= 0 {
		return errors.New("scheduler interval must be positive")
	}

	s.done = make(chan struct{})
	s.running.Store(true)

	s.logger.Info("Starting scheduler in continuous mode", "interval", s.interval)

	if err := s.run(ctx); err != nil {
		s.running.Store(false)
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if !s.running.Load() {
					s.logger.Debug("Scheduler stopped, exiting periodic test runner")
					return
				}

				if err := s.run(ctx); err != nil {
					s.logger.Error("Error running periodic tests", "run", s.runs.Load(), "error", err)
				}
				s.logger.Info("Next test run scheduled", "interval", s.interval)

			case <-s.done:
				s.logger.Debug("Done signal received, stopping periodic test runner")
				return

			case <-ctx.Done():
				s.logger.Debug("Context canceled, stopping periodic test runner")
				s.running.Store(false)
				return
			}
		}
	}()

	return nil
}

// run invokes the callback once. A run that outlasts the interval delays the
// next one; missed ticks are dropped.
func (s *DefaultTestScheduler) run(ctx context.Context) error {
	n := s.runs.Add(1)
	start := time.Now()
	s.logger.Info("Running tests", "run", n)

	err := s.callback(ctx)

	elapsed := time.Since(start)
	if elapsed > s.interval {
		s.logger.Warn("Test run took longer than the run interval", "run", n, "duration", elapsed.Truncate(time.Millisecond), "interval", s.interval)
	}
	return err
}

// Runs returns the number of runs started so far.
func (s *DefaultTestScheduler) Runs() int {
	return int(s.runs.Load())
}

// Stop stops the scheduler.
func (s *DefaultTestScheduler) Stop() error {
	if !s.running.Load() {
		s.logger.Debug("Scheduler already stopped, nothing to do")
		return nil
	}

	s.running.Store(false)
	close(s.done)
	return nil
}

// Stopped returns true if the scheduler is stopped.
func (s *DefaultTestScheduler) Stopped() bool {
	return !s.running.Load()
}

// WaitForShutdown blocks until the periodic runner has terminated.
func (s *DefaultTestScheduler) WaitForShutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Debug("All goroutines terminated successfully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Timed out waiting for goroutines to terminate", "error", ctx.Err())
		return ctx.Err()
	}
}
