package upload

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Sweeper runs the expiry sweep on a fixed interval
type Sweeper struct {
	engine   *Engine
	interval time.Duration
}

// NewSweeper creates a sweeper for the given engine
func NewSweeper(engine *Engine, interval time.Duration) *Sweeper {
	return &Sweeper{
		engine:   engine,
		interval: interval,
	}
}

// Run sweeps until the context is canceled. Intended to be started as a
// goroutine at service startup.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.interval).Msg("upload expiry sweeper started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("upload expiry sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.engine.SweepExpired(ctx); err != nil {
				log.Error().Err(err).Msg("upload expiry sweep failed")
			}
		}
	}
}
