/*
exchange.go - Ticket exchange transaction ("join raffle")

PURPOSE:
  Converts a user's selected wallet assets into raffle tickets at the
  raffle's fixed price per ticket, inside a single atomic unit of work.

CONTRACT:
  1. Load the raffle; not found / not active fail early.
  2. Lock each selected entry (sorted asset order), verify quantity,
     accumulate value at acquisition-time prices, debit.
  3. ticketsToIssue = floor(totalValue / ticketPrice).
  4. Zero tickets aborts the whole unit of work: all debits roll back.
  5. Insert the tickets, each with a fresh provenance tag. Commit.

  Either all of (debits, ticket inserts) happen or none do. Fractional
  value above the last whole ticket is discarded, not carried forward.

CONCURRENCY:
  Double-spend protection comes from the per-entry locks: two
  overlapping exchanges from the same owner serialize on the entries
  they share, so the second observes the already-debited quantity.
  Locks are acquired in sorted asset order to avoid deadlock.

SEE ALSO:
  - wallet/locks.go: lock ordering
  - store.go: Tx unit of work
*/
package raffle

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/raffle-engine/core"
	"github.com/warp/raffle-engine/wallet"
)

// Exchange runs join-raffle transactions.
type Exchange struct {
	store Store
	locks *wallet.EntryLocks
}

// NewExchange creates an exchange engine. locks must be the same lock
// manager the wallet ledger uses, so exchanges serialize against
// single-entry credits and debits too.
func NewExchange(store Store, locks *wallet.EntryLocks) *Exchange {
	return &Exchange{store: store, locks: locks}
}

// ExchangeResult reports a successful join.
type ExchangeResult struct {
	RaffleID      core.RaffleID
	TicketsIssued int64
	TotalValue    decimal.Decimal
}

// Join exchanges the selected assets for tickets. spend maps asset ID
// to the quantity to debit.
func (e *Exchange) Join(ctx context.Context, actor core.Actor, owner core.OwnerID, raffleID core.RaffleID, spend map[core.AssetID]int64) (ExchangeResult, error) {
	if !actor.CanActAs(owner) {
		return ExchangeResult{}, core.ErrForbidden
	}
	if len(spend) == 0 {
		return ExchangeResult{}, core.ErrValidation
	}

	assets := make([]core.AssetID, 0, len(spend))
	for asset, qty := range spend {
		if qty <= 0 {
			return ExchangeResult{}, core.ErrValidation
		}
		assets = append(assets, asset)
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i] < assets[j] })

	unlock := e.locks.LockAll(owner, assets)
	defer unlock()

	var result ExchangeResult
	err := e.store.WithTx(ctx, func(tx Tx) error {
		r, err := tx.Raffle(ctx, raffleID)
		if err != nil {
			return err
		}
		if r.Status != StatusActive {
			return core.ErrRaffleNotActive
		}
		// A non-positive price can only come from a bad row; failing
		// here beats dividing by zero below.
		if !r.TicketPrice.IsPositive() {
			return fmt.Errorf("%w: raffle %s has non-positive ticket price %s",
				core.ErrPersistence, raffleID, r.TicketPrice)
		}

		totalValue := decimal.Zero
		for _, asset := range assets {
			entry, err := tx.Entry(ctx, owner, asset)
			if err != nil {
				if core.IsNotFound(err) {
					return &core.InsufficientAssetError{
						OwnerID: owner, AssetID: asset,
						Available: 0, Requested: spend[asset],
					}
				}
				return err
			}

			totalValue = totalValue.Add(entry.Value(spend[asset]))
			if _, err := wallet.DebitEntry(ctx, tx, owner, asset, spend[asset]); err != nil {
				return err
			}
		}

		tickets := totalValue.Div(r.TicketPrice).Floor().IntPart()
		if tickets <= 0 {
			return &core.InsufficientValueError{
				TotalValue:  totalValue,
				TicketPrice: r.TicketPrice,
			}
		}

		if r.MaxTickets > 0 {
			sold, err := tx.CountTickets(ctx, raffleID)
			if err != nil {
				return err
			}
			if sold+tickets > r.MaxTickets {
				return core.ErrRaffleFull
			}
		}

		now := time.Now().UTC()
		batch := make([]Ticket, tickets)
		for i := range batch {
			batch[i] = Ticket{
				ID:            core.TicketID(core.NewID()),
				RaffleID:      raffleID,
				OwnerID:       owner,
				ProvenanceTag: core.NewProvenanceTag(),
				CreatedAt:     now,
			}
		}
		if err := tx.InsertTickets(ctx, batch); err != nil {
			return err
		}

		result = ExchangeResult{
			RaffleID:      raffleID,
			TicketsIssued: tickets,
			TotalValue:    totalValue,
		}
		return nil
	})
	if err != nil {
		return ExchangeResult{}, err
	}
	return result, nil
}

// Participations returns the owner's stake per raffle they hold tickets
// in, valued at the raffle's ticket price.
func (e *Exchange) Participations(ctx context.Context, actor core.Actor, owner core.OwnerID) ([]Participation, error) {
	if !actor.CanActAs(owner) {
		return nil, core.ErrForbidden
	}

	tickets, err := e.store.TicketsByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}

	counts := make(map[core.RaffleID]int64)
	order := make([]core.RaffleID, 0)
	for _, t := range tickets {
		if _, seen := counts[t.RaffleID]; !seen {
			order = append(order, t.RaffleID)
		}
		counts[t.RaffleID]++
	}

	out := make([]Participation, 0, len(order))
	for _, id := range order {
		r, err := e.store.Raffle(ctx, id)
		if err != nil {
			return nil, err
		}
		held := counts[id]
		out = append(out, Participation{
			Raffle:           r,
			TicketsHeld:      held,
			ValueContributed: r.TicketPrice.Mul(decimal.NewFromInt(held)),
		})
	}
	return out, nil
}
