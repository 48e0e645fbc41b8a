/*
engine.go - Coupon validation and redemption

PURPOSE:
  Validate checks a code against a cart total and computes the
  discount. Redeem additionally increments the usage counter through a
  conditional update, run inside the purchase's unit of work so a
  usage-limit race cannot let two redemptions both take the last use.

DISCOUNT ARITHMETIC:
  percent: cartTotal * value / 100
  fixed:   value
  Either way the discount is capped at the cart total.

SEE ALSO:
  - shop/purchase.go: redemption inside the purchase transaction
*/
package coupon

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/raffle-engine/core"
)

// =============================================================================
// STORE - Persistence interface for coupons
// =============================================================================

// Store handles persistence of coupons.
type Store interface {
	// CouponByCode returns a coupon, or core.ErrNotFound.
	CouponByCode(ctx context.Context, code string) (Coupon, error)

	// IncrementCouponUsage bumps used_count conditioned on the usage
	// limit not being reached. Returns false when the conditional update
	// affected zero rows (the coupon is exhausted).
	IncrementCouponUsage(ctx context.Context, code string) (bool, error)

	// Coupons returns all coupons, newest first.
	Coupons(ctx context.Context) ([]Coupon, error)

	// CreateCoupon inserts a coupon. Duplicate codes are a validation error.
	CreateCoupon(ctx context.Context, c Coupon) error

	// DeleteCoupon removes a coupon by ID.
	DeleteCoupon(ctx context.Context, id string) error
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine evaluates and redeems coupons.
type Engine struct {
	store Store
	now   func() time.Time
}

func NewEngine(store Store) *Engine {
	return &Engine{store: store, now: time.Now}
}

// WithClock substitutes the time source. Test hook.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Validate checks the code against the cart total without consuming a
// use. Safe for the pre-checkout "is this coupon good?" endpoint.
func (e *Engine) Validate(ctx context.Context, code string, cartTotal decimal.Decimal) (Quote, error) {
	return validate(ctx, e.store, code, cartTotal, e.now())
}

// Redeem validates the code and consumes one use. Must run against the
// purchase's transactional store view: the conditional increment
// re-reads the counter under the same unit of work, so the second of
// two racing redemptions at the limit boundary fails.
func (e *Engine) Redeem(ctx context.Context, store Store, code string, cartTotal decimal.Decimal) (Quote, error) {
	quote, err := validate(ctx, store, code, cartTotal, e.now())
	if err != nil {
		return Quote{}, err
	}

	ok, err := store.IncrementCouponUsage(ctx, code)
	if err != nil {
		return Quote{}, err
	}
	if !ok {
		return Quote{}, core.ErrCouponExhausted
	}
	return quote, nil
}

func validate(ctx context.Context, store Store, code string, cartTotal decimal.Decimal, now time.Time) (Quote, error) {
	c, err := store.CouponByCode(ctx, code)
	if err != nil {
		if core.IsNotFound(err) {
			return Quote{}, core.ErrCouponInvalid
		}
		return Quote{}, err
	}

	if c.Expired(now) {
		return Quote{}, core.ErrCouponExpired
	}
	if c.Exhausted() {
		return Quote{}, core.ErrCouponExhausted
	}
	if cartTotal.LessThan(c.MinPurchase) {
		return Quote{}, &core.MinimumNotMetError{
			Code:        c.Code,
			MinPurchase: c.MinPurchase,
			CartTotal:   cartTotal,
		}
	}

	var discount decimal.Decimal
	switch c.Kind {
	case KindPercent:
		discount = cartTotal.Mul(c.Value).Div(decimal.NewFromInt(100))
	default:
		discount = c.Value
	}
	if discount.GreaterThan(cartTotal) {
		discount = cartTotal
	}

	return Quote{
		Code:     c.Code,
		Discount: discount,
		NewTotal: cartTotal.Sub(discount),
	}, nil
}
