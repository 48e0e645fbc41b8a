/*
errors.go - Centralized error types for the raffle engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages (wallet, raffle, coupon) return these directly or
  wrap them with additional context.

ERROR CATEGORIES:
  1. Lookup errors     - Missing raffle/owner/entry/coupon
  2. Business errors   - Rule violations the caller can recover from
  3. Concurrency       - Lock timeouts and lost conditional updates
  4. Persistence       - Storage-level failures, fatal for the request

USAGE:
  if errors.Is(err, core.ErrInsufficientAsset) {
      // caller may retry with a smaller quantity
  }

SEE ALSO:
  - wallet/ledger.go: debit path returning InsufficientAssetError
  - raffle/exchange.go: exchange transaction error flow
  - api/handlers.go: error-to-HTTP-status mapping
*/
package core

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed input (bad quantities, empty
	// asset selections, unparsable amounts).
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a referenced raffle, owner, wallet entry
	// or coupon does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the caller's capability does not cover
	// the owner it is acting on.
	ErrForbidden = errors.New("forbidden")

	// ErrInsufficientAsset is returned when a debit exceeds the owned quantity.
	ErrInsufficientAsset = errors.New("insufficient asset quantity")

	// ErrInsufficientValue is returned when an exchange yields zero tickets.
	ErrInsufficientValue = errors.New("insufficient value for a ticket")

	// ErrRaffleNotActive is returned when joining or drawing a raffle whose
	// status is not active.
	ErrRaffleNotActive = errors.New("raffle is not active")

	// ErrRaffleFull is returned when an exchange would push the ticket pool
	// past the raffle's maximum.
	ErrRaffleFull = errors.New("raffle ticket pool is full")

	// ErrCouponInvalid is returned for an unknown coupon code.
	ErrCouponInvalid = errors.New("coupon invalid")

	// ErrCouponExpired is returned when redeeming past the coupon's expiry.
	ErrCouponExpired = errors.New("coupon expired")

	// ErrCouponExhausted is returned when the usage limit has been reached.
	ErrCouponExhausted = errors.New("coupon exhausted")

	// ErrMinimumNotMet is returned when the cart total is below the
	// coupon's minimum purchase.
	ErrMinimumNotMet = errors.New("minimum purchase not met")

	// ErrConcurrencyConflict is returned on a lock-wait timeout or a lost
	// conditional update. Safe to retry verbatim.
	ErrConcurrencyConflict = errors.New("concurrent modification detected")

	// ErrPersistence is returned when storage is unavailable. Not retried
	// locally; fatal for the request.
	ErrPersistence = errors.New("persistence failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientAssetError reports a ledger shortage for one wallet entry.
type InsufficientAssetError struct {
	OwnerID   OwnerID
	AssetID   AssetID
	Available int64
	Requested int64
}

func (e *InsufficientAssetError) Error() string {
	return fmt.Sprintf("insufficient quantity of asset %s: have %d, requested %d",
		e.AssetID, e.Available, e.Requested)
}

func (e *InsufficientAssetError) Unwrap() error {
	return ErrInsufficientAsset
}

// InsufficientValueError reports an exchange whose debited value bought
// zero tickets.
type InsufficientValueError struct {
	TotalValue  decimal.Decimal
	TicketPrice decimal.Decimal
}

func (e *InsufficientValueError) Error() string {
	return fmt.Sprintf("exchanged value %s below ticket price %s",
		e.TotalValue.String(), e.TicketPrice.String())
}

func (e *InsufficientValueError) Unwrap() error {
	return ErrInsufficientValue
}

// MinimumNotMetError reports a cart total below a coupon's minimum.
type MinimumNotMetError struct {
	Code        string
	MinPurchase decimal.Decimal
	CartTotal   decimal.Decimal
}

func (e *MinimumNotMetError) Error() string {
	return fmt.Sprintf("coupon %s requires a minimum purchase of %s (cart total %s)",
		e.Code, e.MinPurchase.String(), e.CartTotal.String())
}

func (e *MinimumNotMetError) Unwrap() error {
	return ErrMinimumNotMet
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// IsClientError returns true if the error is due to invalid client input
// or a recoverable business-rule violation.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientAsset) ||
		errors.Is(err, ErrInsufficientValue) ||
		errors.Is(err, ErrRaffleNotActive) ||
		errors.Is(err, ErrRaffleFull) ||
		errors.Is(err, ErrCouponInvalid) ||
		errors.Is(err, ErrCouponExpired) ||
		errors.Is(err, ErrCouponExhausted) ||
		errors.Is(err, ErrMinimumNotMet)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
