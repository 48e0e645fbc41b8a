/*
scheduler.go - Deadline-triggered draw scheduler

PURPOSE:
  Periodically finalizes raffles whose draw deadline has passed. The
  winner still gets drawn even when no admin presses the button.

DESIGN:
  - cron job on a minute tick ("* * * * *")
  - Delegates to Drawer.DrawDue, which claims each due raffle with a
    conditional status update; an overlapping manual draw or a second
    scheduler instance loses the claim and skips the raffle
  - Per-raffle failures are logged inside DrawDue and do not stop the
    sweep

USAGE:
  scheduler := NewDrawScheduler(handler.Drawer, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - raffle/draw.go: DrawDue and the claim guard
  - handlers.go: DrawDue endpoint (manual trigger)
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/warp/raffle-engine/raffle"
)

// DrawScheduler runs deadline draws on a cron tick.
type DrawScheduler struct {
	drawer *raffle.Drawer
	cron   *cron.Cron
	log    zerolog.Logger

	// boot tracks the startup sweep, which runs outside cron's job
	// accounting; Stop waits on it too.
	boot sync.WaitGroup
}

// NewDrawScheduler creates a scheduler over the given drawer.
func NewDrawScheduler(drawer *raffle.Drawer, log zerolog.Logger) *DrawScheduler {
	return &DrawScheduler{
		drawer: drawer,
		cron:   cron.New(),
		log:    log,
	}
}

// Start begins the minute tick and runs one sweep immediately so
// raffles that came due while the server was down are finalized.
func (s *DrawScheduler) Start() error {
	if _, err := s.cron.AddFunc("* * * * *", s.sweep); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info().Msg("draw scheduler started")

	s.boot.Add(1)
	go func() {
		defer s.boot.Done()
		s.sweep()
	}()
	return nil
}

// Stop halts the tick and waits for any running sweep, including the
// startup one, to finish before returning.
func (s *DrawScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.boot.Wait()
	s.log.Info().Msg("draw scheduler stopped")
}

func (s *DrawScheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	processed, err := s.drawer.DrawDue(ctx, time.Now().UTC())
	if err != nil {
		s.log.Error().Err(err).Msg("draw sweep failed")
		return
	}
	if processed > 0 {
		s.log.Info().Int("processed", processed).Msg("draw sweep completed")
	}
}
