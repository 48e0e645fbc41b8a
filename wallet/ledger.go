/*
ledger.go - Wallet ledger operations

PURPOSE:
  Credit, debit and read operations over wallet entries. Debit is the
  only operation with a business failure path (insufficient quantity);
  credit merges metadata and appends provenance.

CONCURRENCY:
  Debits against the same (owner, asset) entry must serialize. Callers
  running multi-entry units of work (the exchange transaction) acquire
  per-entry locks through EntryLocks in sorted asset order; the store's
  unit of work provides atomicity underneath.

SEE ALSO:
  - locks.go: per-entry lock manager
  - raffle/exchange.go: multi-entry debit inside one unit of work
  - store/sqlite/sqlite.go: concrete Store
*/
package wallet

import (
	"context"
	"time"

	"github.com/warp/raffle-engine/core"
)

// =============================================================================
// STORE - Persistence interface for wallet entries and the catalog
// =============================================================================

// Store handles persistence of wallet entries and the asset catalog.
type Store interface {
	// Entry returns the entry for (owner, asset), or core.ErrNotFound.
	Entry(ctx context.Context, owner core.OwnerID, asset core.AssetID) (Entry, error)

	// EntriesByOwner returns all entries for an owner.
	EntriesByOwner(ctx context.Context, owner core.OwnerID) ([]Entry, error)

	// PutEntry inserts or replaces an entry.
	PutEntry(ctx context.Context, e Entry) error

	// DeleteEntry removes an entry. Called when quantity reaches zero.
	DeleteEntry(ctx context.Context, owner core.OwnerID, asset core.AssetID) error

	// Assets returns the current catalog.
	Assets(ctx context.Context) ([]Asset, error)

	// AssetByID returns one catalog record, or core.ErrNotFound.
	AssetByID(ctx context.Context, id core.AssetID) (Asset, error)
}

// =============================================================================
// LEDGER
// =============================================================================

// Ledger applies credits and debits to wallet entries.
type Ledger struct {
	store Store
	locks *EntryLocks
}

// NewLedger creates a ledger over the given store.
func NewLedger(store Store) *Ledger {
	return &Ledger{store: store, locks: NewEntryLocks()}
}

// Locks exposes the per-entry lock manager so multi-entry units of work
// (the exchange transaction) can serialize against single debits.
func (l *Ledger) Locks() *EntryLocks {
	return l.locks
}

// Credit merges qty units of an asset into the owner's wallet. If an
// entry exists its metadata is merged and provenance appended; otherwise
// a new entry is created. unit describes the acquisition (current
// catalog name/rarity/price at purchase time).
func (l *Ledger) Credit(ctx context.Context, owner core.OwnerID, asset core.AssetID, qty int64, unit Metadata) (Entry, error) {
	if qty <= 0 {
		return Entry{}, core.ErrValidation
	}

	unlock := l.locks.Lock(owner, asset)
	defer unlock()

	return CreditEntry(ctx, l.store, owner, asset, qty, unit)
}

// CreditEntry is the credit operation against an arbitrary store view.
// Used directly by units of work that carry their own transaction.
func CreditEntry(ctx context.Context, store Store, owner core.OwnerID, asset core.AssetID, qty int64, unit Metadata) (Entry, error) {
	now := time.Now().UTC()

	entry, err := store.Entry(ctx, owner, asset)
	if err != nil {
		if !core.IsNotFound(err) {
			return Entry{}, err
		}
		entry = Entry{
			OwnerID: owner,
			AssetID: asset,
			Metadata: Metadata{
				SchemaVersion: MetadataVersion,
				Name:          unit.Name,
				Rarity:        unit.Rarity,
				UnitPrice:     unit.UnitPrice,
			},
		}
	}

	entry.Metadata = entry.Metadata.Upgrade()
	entry.Metadata.SchemaVersion = MetadataVersion
	for i := int64(0); i < qty; i++ {
		entry.Metadata.Provenance = append(entry.Metadata.Provenance, Provenance{
			Tag:        core.NewProvenanceTag(),
			AcquiredAt: now,
		})
	}
	entry.Quantity += qty

	if err := store.PutEntry(ctx, entry); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Debit removes qty units from the owner's entry. Fails with an
// InsufficientAssetError if the current quantity is less than qty.
// Deletes the row when the quantity reaches zero.
func (l *Ledger) Debit(ctx context.Context, owner core.OwnerID, asset core.AssetID, qty int64) (Entry, error) {
	if qty <= 0 {
		return Entry{}, core.ErrValidation
	}

	unlock := l.locks.Lock(owner, asset)
	defer unlock()

	return DebitEntry(ctx, l.store, owner, asset, qty)
}

// DebitEntry is the debit operation against an arbitrary store view.
// The caller holds the entry lock.
func DebitEntry(ctx context.Context, store Store, owner core.OwnerID, asset core.AssetID, qty int64) (Entry, error) {
	entry, err := store.Entry(ctx, owner, asset)
	if err != nil {
		return Entry{}, err
	}

	if entry.Quantity < qty {
		return Entry{}, &core.InsufficientAssetError{
			OwnerID:   owner,
			AssetID:   asset,
			Available: entry.Quantity,
			Requested: qty,
		}
	}

	entry.Quantity -= qty
	if entry.Quantity == 0 {
		if err := store.DeleteEntry(ctx, owner, asset); err != nil {
			return Entry{}, err
		}
		return entry, nil
	}

	if err := store.PutEntry(ctx, entry); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Entries returns the owner's wallet merged with the current catalog.
// The paid price stays on the entry; name, rarity and the displayed
// price come from the catalog when the asset still exists there.
func (l *Ledger) Entries(ctx context.Context, owner core.OwnerID) ([]View, error) {
	entries, err := l.store.EntriesByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}

	catalog, err := l.store.Assets(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[core.AssetID]Asset, len(catalog))
	for _, a := range catalog {
		byID[a.ID] = a
	}

	views := make([]View, 0, len(entries))
	for _, e := range entries {
		meta := e.Metadata.Upgrade()
		v := View{
			AssetID:      e.AssetID,
			Name:         meta.Name,
			Rarity:       meta.Rarity,
			CurrentPrice: meta.UnitPrice,
			PaidPrice:    meta.UnitPrice,
			Quantity:     e.Quantity,
			Provenance:   meta.Provenance,
		}
		if live, ok := byID[e.AssetID]; ok {
			v.Name = live.Name
			v.Rarity = live.Rarity
			v.CurrentPrice = live.Price
		}
		views = append(views, v)
	}
	return views, nil
}
