// Package scheduler fires periodic valuations.
package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/kelsos/realms-tvl/internal/logger"
	"github.com/kelsos/realms-tvl/internal/runlock"
)

// Trigger is the work fired by one schedule. Errors are only logged.
type Trigger func(ctx context.Context) error

// Scheduler runs triggers on cron schedules. A trigger that is still running
// when its next tick arrives skips that tick.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(logger.CronLogger()),
			cron.SkipIfStillRunning(logger.CronLogger()),
		)),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add registers trigger under a standard five-field cron spec. An empty spec
// is ignored.
func (s *Scheduler) Add(name, spec string, trigger Trigger) error {
	if spec == "" {
		return nil
	}

	_, err := s.cron.AddFunc(spec, func() {
		logger.Info("Running scheduled %s", name)
		err := trigger(s.ctx)
		if errors.Is(err, runlock.ErrRunInProgress) {
			logger.Warn("Skipping scheduled %s: another run is in progress", name)
			return
		}
		if err != nil {
			logger.Error("Scheduled %s failed: %v", name, err)
			return
		}
		logger.Info("Scheduled %s finished", name)
	})
	if err != nil {
		return fmt.Errorf("invalid %s schedule %q: %w", name, spec, err)
	}

	logger.Info("Scheduled %s with %q", name, spec)
	return nil
}

// Len returns the number of registered schedules.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running triggers and waits for them to return.
func (s *Scheduler) Stop() {
	stopped := s.cron.Stop()
	s.cancel()
	<-stopped.Done()
}
