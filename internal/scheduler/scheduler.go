// Package scheduler implements the restore/history janitor (C11): a
// robfig/cron-driven background task that actively sweeps errored model
// state whose restore deadline has elapsed back to ready, rather than
// waiting for the next read to trigger the lazy restore in §4.6. This adds
// an additional writer, not a new rule — it is still subject to the
// state-write last-writer-wins-by-timestamp rule the registry enforces.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/upb/ai-gateway/internal/registry"
)

// Sweeper is the subset of registry.Registry the janitor needs: re-running
// SelectModel against every tracked candidate is what triggers the
// restore-deadline check and, if elapsed, the ready transition.
type Sweeper interface {
	SelectModel(ctx context.Context, candidates []registry.ModelRef, nowMs int64) (registry.ModelRef, error)
}

// Scheduler periodically sweeps a fixed set of tracked models for restore
// deadlines. The candidate list is the full model catalog (not a fallback
// chain): each entry is checked independently, never compared against
// siblings, so SelectModel's "first ready" short-circuit still visits every
// model exactly once per tick.
type Scheduler struct {
	sweeper Sweeper
	models  []registry.ModelRef
	logger  *zap.Logger
	cron    *cron.Cron
}

// New constructs a Scheduler over the full set of models the gateway
// knows about, to be swept on the cron spec later passed to Start (e.g.
// "@every 30s").
func New(sweeper Sweeper, models []registry.ModelRef, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{sweeper: sweeper, models: models, logger: logger, cron: cron.New()}
}

// Start schedules the sweep on spec and begins running it in the
// background. Call Stop to end it.
func (s *Scheduler) Start(spec string) error {
	_, err := s.cron.AddFunc(spec, s.sweepOnce)
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron scheduler, waiting for any in-flight sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) sweepOnce() {
	now := time.Now().UnixMilli()
	for _, m := range s.models {
		if _, err := s.sweeper.SelectModel(context.Background(), []registry.ModelRef{m}, now); err != nil {
			s.logger.Debug("restore sweep: model not ready", zap.String("model", m.Key()), zap.Error(err))
		}
	}
}
