// Package worker runs the background escalation sweep.
package worker

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/facility-ops/riskwatch/internal/service"
)

// IssueSweeper escalates overdue issues.
type IssueSweeper interface {
	Sweep(ctx context.Context) (service.SweepResult, error)
}

// Sweeper calls Sweep on a fixed interval.
type Sweeper struct {
	issues   IssueSweeper
	interval time.Duration
	clock    clockwork.Clock
	logger   *logrus.Logger
}

// NewSweeper creates a new escalation worker
func NewSweeper(issues IssueSweeper, interval time.Duration, clock clockwork.Clock, logger *logrus.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}

	return &Sweeper{
		issues:   issues,
		interval: interval,
		clock:    clock,
		logger:   logger,
	}
}

// Start begins the sweep loop in a goroutine. The returned channel is closed
// once the loop has exited after ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
	return done
}

// Run sweeps immediately, then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.WithField("interval", s.interval).Info("Escalation sweeper started")

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Escalation sweeper stopped")
			return
		case <-ticker.Chan():
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	result, err := s.issues.Sweep(ctx)
	if err != nil {
		// Partial results still count; the failed issues are retried next tick.
		s.logger.WithError(err).Error("Escalation sweep failed")
	}

	entry := s.logger.WithFields(logrus.Fields{
		"checked":   result.Checked,
		"escalated": result.Escalated,
	})
	if result.Escalated > 0 {
		entry.Info("Escalation sweep completed")
		return
	}
	entry.Debug("Escalation sweep completed")
}
