package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Refresher is the refresh operation the scheduler drives.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Scheduler refreshes once on start and then on a cron schedule.
type Scheduler struct {
	refresher Refresher
	spec      string
	cron      *cron.Cron
	logger    *slog.Logger
}

// NewScheduler creates a Scheduler. spec accepts standard five-field cron
// expressions and descriptors such as "@every 12h".
func NewScheduler(r Refresher, spec string, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		refresher: r,
		spec:      spec,
		cron:      cron.New(cron.WithLogger(cron.DiscardLogger)),
		logger:    logger,
	}
}

// Run refreshes immediately, then on every tick, until ctx is cancelled.
// It returns after any running refresh has finished.
func (s *Scheduler) Run(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.runOnce(ctx) }); err != nil {
		return fmt.Errorf("schedule refresh %q: %w", s.spec, err)
	}

	s.logger.Info("refresh scheduler started", "schedule", s.spec)
	s.cron.Start()
	s.runOnce(ctx)

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("refresh scheduler stopped", "reason", ctx.Err())
	return nil
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	err := s.refresher.Refresh(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrRefreshInProgress):
		s.logger.Debug("scheduled refresh skipped", "reason", err)
	case ctx.Err() != nil:
		s.logger.Info("scheduled refresh cancelled", "error", err)
	default:
		// Repository already logged the failure with its stage.
		s.logger.Debug("scheduled refresh failed", "error", err)
	}
}
