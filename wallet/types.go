/*
Package wallet owns per-user asset balances and metadata. It is the
foundation every other component reads and writes: the exchange
transaction debits it, the shop purchase credits it.

KEY CONCEPTS IN THIS FILE (types.go):
  - Entry: one (owner, asset) balance row with versioned metadata
  - Metadata: explicit versioned record replacing the loose JSON blob
  - Asset: the current catalog definition, merged in for display only

METADATA VERSIONING:
  Entries store the price at acquisition time for historical accuracy.
  Blobs written before versioning are tagged with schema version 1 on
  read. Value computation always uses the acquisition-time UnitPrice;
  the live catalog price is display-only.

SEE ALSO:
  - ledger.go: credit/debit/get operations
  - locks.go: per-entry lock manager
*/
package wallet

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/raffle-engine/core"
)

// MetadataVersion is the current schema version written on credit.
const MetadataVersion = 2

// =============================================================================
// METADATA - Versioned per-asset record
// =============================================================================

// Provenance records one acquired unit.
type Provenance struct {
	Tag        string    `json:"tag"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Metadata is the versioned record carried by a wallet entry.
// Provenance is append-only: one record per unit ever acquired.
type Metadata struct {
	SchemaVersion int             `json:"schema_version"`
	Name          string          `json:"name"`
	Rarity        string          `json:"rarity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Provenance    []Provenance    `json:"provenance"`
}

// Upgrade tags pre-versioning blobs with version 1 and leaves current
// records untouched.
func (m Metadata) Upgrade() Metadata {
	if m.SchemaVersion == 0 {
		m.SchemaVersion = 1
	}
	return m
}

// =============================================================================
// ENTRY - One (owner, asset) balance row
// =============================================================================

// Entry is unique per (OwnerID, AssetID). Quantity is never negative;
// the row is deleted when it reaches zero.
type Entry struct {
	OwnerID  core.OwnerID
	AssetID  core.AssetID
	Metadata Metadata
	Quantity int64
}

// Value returns quantity * acquisition-time unit price.
func (e Entry) Value(qty int64) decimal.Decimal {
	return e.Metadata.UnitPrice.Mul(decimal.NewFromInt(qty))
}

// =============================================================================
// ASSET - Current catalog definition
// =============================================================================

// Asset is a catalog record: the current price and definition of a
// named digital item. Display merges this over entry metadata.
type Asset struct {
	ID       core.AssetID
	Name     string
	Rarity   string
	Price    decimal.Decimal
	ImageURL string
}

// View is a catalog-merged entry for display: acquisition metadata
// overridden with the latest catalog name/rarity/price.
type View struct {
	AssetID      core.AssetID
	Name         string
	Rarity       string
	CurrentPrice decimal.Decimal
	PaidPrice    decimal.Decimal
	Quantity     int64
	Provenance   []Provenance
}
