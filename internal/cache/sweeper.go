package cache

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Sweeper periodically deletes expired L2 rows on a cron schedule.
type Sweeper struct {
	repo     *Tiered
	schedule string
	cron     *cron.Cron
	log      zerolog.Logger
}

// NewSweeper creates a sweeper. schedule uses cron syntax, e.g. "@every 1m".
func NewSweeper(repo *Tiered, schedule string, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		repo:     repo,
		schedule: schedule,
		cron:     cron.New(),
		log:      log.With().Str("component", "cache_sweeper").Logger(),
	}
}

// Start registers the sweep job and starts the scheduler.
func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc(s.schedule, s.sweep)
	if err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info().Str("schedule", s.schedule).Msg("cache sweeper started")
	return nil
}

// Stop halts the scheduler, waiting for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("cache sweeper stopped")
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	deleted, err := s.repo.DeleteExpired(ctx, time.Now())
	if err != nil {
		s.log.Error().Err(err).Msg("sweep failed")
		return
	}
	if deleted > 0 {
		s.log.Info().Int64("deleted", deleted).Msg("swept expired cache entries")
	}
}
