/*
Package core provides shared identifiers, the error taxonomy, and the
authorization capability consumed by every engine in the system.

KEY CONCEPTS IN THIS FILE (types.go):
  - OwnerID/AssetID/RaffleID: type-safe identifiers
  - Actor: the capability check injected into core operations
  - NewID/NewProvenanceTag: uuid-based identifier generation

DESIGN PRINCIPLES:
  1. Type Safety: strong ID types prevent mixing owners and assets
  2. Precision: decimal.Decimal everywhere money is involved
  3. Capability auth: engines never inspect credentials, only an Actor

SEE ALSO:
  - errors.go: error taxonomy
  - wallet/types.go, raffle/types.go, coupon/types.go: domain records
*/
package core

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type OwnerID string
type AssetID string
type RaffleID string
type TicketID string

// NewID returns a fresh unique identifier.
func NewID() string {
	return uuid.NewString()
}

// NewProvenanceTag returns a fresh provenance tag for a ticket or a
// wallet acquisition. One tag per unit ever acquired.
func NewProvenanceTag() string {
	return uuid.NewString()
}

// =============================================================================
// MONEY
// =============================================================================

// MustParseDecimal parses s and panics on failure. For literals and
// seed data only; stored values go through decimal.NewFromString so a
// corrupt row surfaces as an error, not a panic.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(fmt.Sprintf("core: parse decimal %q: %v", s, err))
	}
	return d
}

// =============================================================================
// ACTOR - Authorization capability
// =============================================================================

// Actor is the capability the HTTP layer supplies: either
// "caller may act as owner X", "caller holds the admin role", or both.
// Engines check Actor instead of inspecting credentials.
type Actor struct {
	Owner OwnerID
	Admin bool
}

// System is the actor used by internal callers (scheduler, seeds).
var System = Actor{Admin: true}

// CanActAs reports whether the actor may operate on owner's resources.
func (a Actor) CanActAs(owner OwnerID) bool {
	return a.Admin || (a.Owner != "" && a.Owner == owner)
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool {
	return a.Admin
}
