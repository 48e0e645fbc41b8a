/*
Package raffle implements the ticket exchange transaction and the draw
engine: converting wallet assets into tickets at a fixed price per
ticket, and selecting a winner uniformly at random.

KEY CONCEPTS IN THIS FILE (types.go):
  - Raffle: a time-boxed prize drawing with a status machine
  - Ticket: one immutable unit of chance in the draw's sample space
  - DrawResult: outcome of a draw invocation

STATUS MACHINE:
  active --> drawing --> closed     (a winner was chosen)
  active --> drawing --> cancelled  (no tickets existed at draw time)

  The active->drawing step is a conditional update; a raffle leaves
  active exactly once, no matter how many callers race the draw.

SEE ALSO:
  - exchange.go: join-raffle transaction
  - draw.go: winner selection and finalization
*/
package raffle

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/raffle-engine/core"
)

// =============================================================================
// RAFFLE
// =============================================================================

type Status string

const (
	StatusActive    Status = "active"
	StatusDrawing   Status = "drawing"
	StatusClosed    Status = "closed"
	StatusCancelled Status = "cancelled"
)

// Raffle is a prize drawing. WinnerID is set if and only if the status
// is closed.
type Raffle struct {
	ID           core.RaffleID
	Title        string
	Description  string
	ImageURL     string
	Category     string
	Rarity       string
	TicketPrice  decimal.Decimal
	MaxTickets   int64
	PrizeValue   decimal.Decimal
	DrawDeadline time.Time
	Status       Status
	WinnerID     *core.OwnerID
	CreatedAt    time.Time
}

// =============================================================================
// TICKET
// =============================================================================

// Ticket is immutable and append-only. An owner's participant weight in
// a raffle equals the count of their tickets.
type Ticket struct {
	ID            core.TicketID
	RaffleID      core.RaffleID
	OwnerID       core.OwnerID
	ProvenanceTag string
	CreatedAt     time.Time
}

// =============================================================================
// DRAW RESULT
// =============================================================================

type DrawOutcome string

const (
	// DrawClosed: a winner was selected.
	DrawClosed DrawOutcome = "closed"
	// DrawCancelled: no tickets existed at draw time.
	DrawCancelled DrawOutcome = "cancelled"
	// DrawAlreadyDone: another caller claimed the raffle first; no-op.
	DrawAlreadyDone DrawOutcome = "already_done"
)

type DrawResult struct {
	RaffleID     core.RaffleID
	Outcome      DrawOutcome
	WinnerID     *core.OwnerID
	TotalTickets int64
	WinningIndex int64
	DrawnAt      time.Time
}

// Participation summarizes one owner's stake in a raffle.
type Participation struct {
	Raffle           Raffle
	TicketsHeld      int64
	ValueContributed decimal.Decimal
}
