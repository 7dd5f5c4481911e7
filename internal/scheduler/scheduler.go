// Package scheduler runs periodic maintenance jobs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// KeyExpirer marks API keys whose expiry has passed. *service.Registry
// implements it.
type KeyExpirer interface {
	ExpireDueKeys(ctx context.Context) (int64, error)
}

type Scheduler struct {
	c       *cron.Cron
	expirer KeyExpirer
	timeout time.Duration
}

func New(expirer KeyExpirer, timeout time.Duration) *Scheduler {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Scheduler{
		c:       cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		expirer: expirer,
		timeout: timeout,
	}
}

// Start registers the key expiry sweep on schedule (standard five-field cron
// syntax or a descriptor such as "@every 5m") and starts the scheduler.
func (s *Scheduler) Start(schedule string) error {
	if _, err := s.c.AddFunc(schedule, s.SweepExpiredKeys); err != nil {
		return fmt.Errorf("scheduling key expiry sweep %q: %w", schedule, err)
	}
	s.c.Start()
	log.Info().Str("schedule", schedule).Msg("key expiry sweep scheduled")
	return nil
}

// Stop stops scheduling and waits for a running job to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.c.Stop().Done():
	case <-ctx.Done():
		log.Warn().Msg("scheduler stop timed out with a job still running")
	}
}

// SweepExpiredKeys runs one expiry pass.
func (s *Scheduler) SweepExpiredKeys() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	n, err := s.expirer.ExpireDueKeys(ctx)
	if err != nil {
		log.Error().Err(err).Msg("key expiry sweep failed")
		return
	}
	if n > 0 {
		log.Info().Int64("expired", n).Msg("expired API keys")
	}
}
