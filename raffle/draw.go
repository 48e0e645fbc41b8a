/*
draw.go - Winner selection and raffle finalization

PURPOSE:
  Given a raffle's full ticket set, selects a winner uniformly at
  random and finalizes the raffle. Invoked by an admin action or the
  scheduler; both paths share the claim guard.

FAIRNESS:
  The winning index is drawn uniformly from [0, ticketCount) with a
  cryptographically secure source. An owner's win probability equals
  their ticket count over the total, because owners with more tickets
  occupy proportionally more index positions.

DRAW-ONCE:
  The claim step is a conditional status update (active -> drawing).
  When it affects zero rows another caller got there first and this
  invocation returns a no-op result without touching anything. A
  storage failure after a successful claim releases it (drawing ->
  active) so the raffle stays drawable; without that a wedged drawing
  row would be invisible to the deadline sweep and every retry would
  report already_done.

SEE ALSO:
  - store.go: ClaimForDraw / CompleteDraw
  - api/scheduler.go: deadline-triggered draws
*/
package raffle

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/raffle-engine/core"
)

// Drawer finalizes raffles.
type Drawer struct {
	store    Store
	notifier Notifier
	log      zerolog.Logger

	// random is the entropy source for the winning index. Defaults to
	// crypto/rand; tests may substitute a fixed reader.
	random io.Reader
}

// NewDrawer creates a draw engine.
func NewDrawer(store Store, notifier Notifier, log zerolog.Logger) *Drawer {
	return &Drawer{
		store:    store,
		notifier: notifier,
		log:      log,
		random:   rand.Reader,
	}
}

// WithRandom substitutes the entropy source. Test hook.
func (d *Drawer) WithRandom(r io.Reader) *Drawer {
	d.random = r
	return d
}

// Draw claims and finalizes a raffle. Requires the admin capability;
// the scheduler calls DrawDue which uses the system actor.
func (d *Drawer) Draw(ctx context.Context, actor core.Actor, id core.RaffleID) (DrawResult, error) {
	if !actor.IsAdmin() {
		return DrawResult{}, core.ErrForbidden
	}
	return d.draw(ctx, id)
}

func (d *Drawer) draw(ctx context.Context, id core.RaffleID) (DrawResult, error) {
	// Existence check first so a missing raffle is NotFound, not a no-op.
	if _, err := d.store.Raffle(ctx, id); err != nil {
		return DrawResult{}, err
	}

	claimed, err := d.store.ClaimForDraw(ctx, id)
	if err != nil {
		return DrawResult{}, err
	}
	if !claimed {
		return DrawResult{RaffleID: id, Outcome: DrawAlreadyDone}, nil
	}

	// The claim is ours now. A failure before CompleteDraw must hand
	// the raffle back, or it sits in drawing forever and every retry
	// sees already_done.
	result, err := d.finalize(ctx, id)
	if err != nil {
		if relErr := d.store.ReleaseClaim(ctx, id); relErr != nil {
			d.log.Error().Err(relErr).Str("raffle_id", string(id)).Msg("failed to release draw claim")
		}
		return DrawResult{}, err
	}
	return result, nil
}

// finalize runs the post-claim half of the draw. The caller owns the
// drawing claim and releases it if this returns an error.
func (d *Drawer) finalize(ctx context.Context, id core.RaffleID) (DrawResult, error) {
	now := time.Now().UTC()

	tickets, err := d.store.TicketsByRaffle(ctx, id)
	if err != nil {
		return DrawResult{}, err
	}

	if len(tickets) == 0 {
		if err := d.store.CompleteDraw(ctx, id, StatusCancelled, nil); err != nil {
			return DrawResult{}, err
		}
		d.log.Info().Str("raffle_id", string(id)).Msg("raffle cancelled: no tickets at draw time")
		return DrawResult{RaffleID: id, Outcome: DrawCancelled, DrawnAt: now}, nil
	}

	idx, err := d.winningIndex(int64(len(tickets)))
	if err != nil {
		return DrawResult{}, err
	}
	winner := tickets[idx].OwnerID

	if err := d.store.CompleteDraw(ctx, id, StatusClosed, &winner); err != nil {
		return DrawResult{}, err
	}

	// Notification failure must not undo a completed draw.
	title := "You won!"
	message := fmt.Sprintf("Congratulations! You are the winner of raffle #%s. Contact us to claim your prize.", id)
	if err := d.notifier.Notify(ctx, winner, title, message); err != nil {
		d.log.Error().Err(err).Str("raffle_id", string(id)).Msg("failed to record winner notification")
	}

	d.log.Info().
		Str("raffle_id", string(id)).
		Str("winner_id", string(winner)).
		Int("total_tickets", len(tickets)).
		Int64("winning_index", idx).
		Msg("raffle draw completed")

	return DrawResult{
		RaffleID:     id,
		Outcome:      DrawClosed,
		WinnerID:     &winner,
		TotalTickets: int64(len(tickets)),
		WinningIndex: idx,
		DrawnAt:      now,
	}, nil
}

// DrawDue finalizes every active raffle past its deadline. Failures on
// one raffle are logged and do not stop the rest. Returns the number of
// raffles finalized (closed or cancelled).
func (d *Drawer) DrawDue(ctx context.Context, now time.Time) (int, error) {
	due, err := d.store.DueRaffles(ctx, now)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, r := range due {
		result, err := d.draw(ctx, r.ID)
		if err != nil {
			d.log.Error().Err(err).Str("raffle_id", string(r.ID)).Msg("scheduled draw failed")
			continue
		}
		if result.Outcome != DrawAlreadyDone {
			processed++
		}
	}
	return processed, nil
}

func (d *Drawer) winningIndex(n int64) (int64, error) {
	v, err := rand.Int(d.random, big.NewInt(n))
	if err != nil {
		return 0, err
	}
	return v.Int64(), nil
}
