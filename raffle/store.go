/*
store.go - Persistence interface for raffles and tickets

PURPOSE:
  Defines the interface between the raffle engines and the database.
  Tickets are append-only; raffle rows mutate only through the two
  conditional draw updates.

ATOMIC UNITS OF WORK:
  WithTx executes a function against a transactional view. The exchange
  transaction runs entirely inside one WithTx call: wallet debits and
  ticket inserts either all commit or all roll back.

CONDITIONAL UPDATES:
  ClaimForDraw is a compare-and-swap on status (active -> drawing).
  A false return means another caller already claimed the raffle; the
  draw must not proceed. This is what makes concurrent admin draws and
  overlapping scheduler ticks safe without leader election.
  ReleaseClaim is the inverse swap (drawing -> active), used to back
  out of a claim when the draw fails before reaching a final status.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: production SQLite
  - store/memory/memory.go: in-memory for tests
*/
package raffle

import (
	"context"
	"time"

	"github.com/warp/raffle-engine/core"
	"github.com/warp/raffle-engine/wallet"
)

// Tx is the transactional view the exchange runs against. It embeds the
// wallet store so debits and ticket inserts share one unit of work.
type Tx interface {
	wallet.Store

	// Raffle returns a raffle by ID, or core.ErrNotFound.
	Raffle(ctx context.Context, id core.RaffleID) (Raffle, error)

	// InsertTickets appends tickets. Tickets are never updated or deleted.
	InsertTickets(ctx context.Context, tickets []Ticket) error

	// CountTickets returns the number of tickets issued for a raffle.
	CountTickets(ctx context.Context, id core.RaffleID) (int64, error)
}

// Store handles persistence of raffles and tickets.
type Store interface {
	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise committed.
	WithTx(ctx context.Context, fn func(Tx) error) error

	// Raffle returns a raffle by ID, or core.ErrNotFound.
	Raffle(ctx context.Context, id core.RaffleID) (Raffle, error)

	// ActiveRaffles returns all raffles with status active.
	ActiveRaffles(ctx context.Context) ([]Raffle, error)

	// DueRaffles returns active raffles whose draw deadline has passed.
	DueRaffles(ctx context.Context, now time.Time) ([]Raffle, error)

	// ClaimForDraw flips status from active to drawing, conditioned on
	// status = active. Returns false when the conditional update affected
	// zero rows (already claimed or not active).
	ClaimForDraw(ctx context.Context, id core.RaffleID) (bool, error)

	// CompleteDraw moves a claimed raffle to its final status. winner is
	// nil exactly when status is cancelled.
	CompleteDraw(ctx context.Context, id core.RaffleID, status Status, winner *core.OwnerID) error

	// ReleaseClaim flips status from drawing back to active, conditioned
	// on status = drawing. Compensation for a draw that failed after the
	// claim; a raffle must never stay in drawing without a caller
	// working on it.
	ReleaseClaim(ctx context.Context, id core.RaffleID) error

	// TicketsByRaffle returns every ticket for a raffle, in issue order.
	TicketsByRaffle(ctx context.Context, id core.RaffleID) ([]Ticket, error)

	// TicketsByOwner returns the owner's tickets across all raffles.
	TicketsByOwner(ctx context.Context, owner core.OwnerID) ([]Ticket, error)

	// CountTickets returns the number of tickets issued for a raffle.
	CountTickets(ctx context.Context, id core.RaffleID) (int64, error)
}

// Notifier records a draw outcome for the winner. Delivery transport is
// outside this design; implementations append a notification record.
type Notifier interface {
	Notify(ctx context.Context, owner core.OwnerID, title, message string) error
}
