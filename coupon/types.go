/*
Package coupon validates discount codes against a cart total and
atomically tracks their usage. Structurally the redemption is a small
sibling of the ticket exchange: a read, a rule check, and a conditional
write inside the purchase's unit of work.
*/
package coupon

import (
	"time"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindPercent Kind = "percent"
	KindFixed   Kind = "fixed"
)

// Coupon is a discount code. UsedCount never exceeds UsageLimit when a
// limit is configured; the increment is a conditional update.
type Coupon struct {
	ID          string
	Code        string
	Kind        Kind
	Value       decimal.Decimal
	MinPurchase decimal.Decimal
	UsageLimit  *int64
	UsedCount   int64
	ExpiresAt   *time.Time
	CreatedAt   time.Time
}

// Exhausted reports whether the usage limit has been reached.
func (c Coupon) Exhausted() bool {
	return c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit
}

// Expired reports whether the coupon is past its expiry at now.
func (c Coupon) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}

// Quote is the result of validating a coupon against a cart total.
type Quote struct {
	Code     string
	Discount decimal.Decimal
	NewTotal decimal.Decimal
}
