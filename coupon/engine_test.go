package coupon_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/raffle-engine/core"
	"github.com/warp/raffle-engine/coupon"
	"github.com/warp/raffle-engine/store/memory"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func fixedNow() time.Time {
	return time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
}

func newEngine(store *memory.Store) *coupon.Engine {
	return coupon.NewEngine(store).WithClock(fixedNow)
}

func percentCoupon(code, value string) coupon.Coupon {
	return coupon.Coupon{
		ID: core.NewID(), Code: code, Kind: coupon.KindPercent,
		Value: dec(value), MinPurchase: decimal.Zero, CreatedAt: fixedNow(),
	}
}

// =============================================================================
// VALIDATION ORDER
// =============================================================================

func TestValidate_UnknownCode_IsInvalid(t *testing.T) {
	engine := newEngine(memory.New())

	_, err := engine.Validate(context.Background(), "NOPE", dec("100"))
	assert.ErrorIs(t, err, core.ErrCouponInvalid)
}

func TestValidate_Expired_ReportedBeforeExhaustion(t *testing.T) {
	// GIVEN: A coupon both expired and exhausted
	// WHEN: Validating
	// THEN: Expiry wins; expiry is checked before the usage limit

	store := memory.New()
	engine := newEngine(store)

	past := fixedNow().Add(-time.Hour)
	limit := int64(1)
	store.PutCoupon(coupon.Coupon{
		ID: core.NewID(), Code: "OLD", Kind: coupon.KindPercent,
		Value: dec("10"), ExpiresAt: &past,
		UsageLimit: &limit, UsedCount: 1,
		CreatedAt: fixedNow().Add(-48 * time.Hour),
	})

	_, err := engine.Validate(context.Background(), "OLD", dec("100"))
	assert.ErrorIs(t, err, core.ErrCouponExpired)
}

func TestValidate_Exhausted_Fails(t *testing.T) {
	store := memory.New()
	engine := newEngine(store)

	limit := int64(5)
	c := percentCoupon("USEDUP", "10")
	c.UsageLimit = &limit
	c.UsedCount = 5
	store.PutCoupon(c)

	_, err := engine.Validate(context.Background(), "USEDUP", dec("100"))
	assert.ErrorIs(t, err, core.ErrCouponExhausted)
}

func TestValidate_MinimumNotMet_ReportsAmounts(t *testing.T) {
	// GIVEN: A coupon requiring a 100 minimum and a 60 cart
	// WHEN: Validating
	// THEN: The error names the code, the minimum and the cart total

	store := memory.New()
	engine := newEngine(store)

	c := percentCoupon("BIGSPEND", "20")
	c.MinPurchase = dec("100")
	store.PutCoupon(c)

	_, err := engine.Validate(context.Background(), "BIGSPEND", dec("60"))
	require.ErrorIs(t, err, core.ErrMinimumNotMet)

	var minErr *core.MinimumNotMetError
	require.ErrorAs(t, err, &minErr)
	assert.Equal(t, "BIGSPEND", minErr.Code)
	assert.True(t, minErr.MinPurchase.Equal(dec("100")))
	assert.True(t, minErr.CartTotal.Equal(dec("60")))
}

// =============================================================================
// DISCOUNT ARITHMETIC
// =============================================================================

func TestValidate_PercentDiscount(t *testing.T) {
	store := memory.New()
	engine := newEngine(store)
	store.PutCoupon(percentCoupon("TEN", "10"))

	quote, err := engine.Validate(context.Background(), "TEN", dec("250"))
	require.NoError(t, err)
	assert.True(t, quote.Discount.Equal(dec("25")))
	assert.True(t, quote.NewTotal.Equal(dec("225")))
}

func TestValidate_FixedDiscount(t *testing.T) {
	store := memory.New()
	engine := newEngine(store)
	store.PutCoupon(coupon.Coupon{
		ID: core.NewID(), Code: "FLAT20", Kind: coupon.KindFixed,
		Value: dec("20"), CreatedAt: fixedNow(),
	})

	quote, err := engine.Validate(context.Background(), "FLAT20", dec("250"))
	require.NoError(t, err)
	assert.True(t, quote.Discount.Equal(dec("20")))
	assert.True(t, quote.NewTotal.Equal(dec("230")))
}

func TestValidate_DiscountCappedAtCartTotal(t *testing.T) {
	// GIVEN: A fixed 50 discount and a 30 cart
	// WHEN: Validating
	// THEN: The discount caps at 30; the new total never goes negative

	store := memory.New()
	engine := newEngine(store)
	store.PutCoupon(coupon.Coupon{
		ID: core.NewID(), Code: "FLAT50", Kind: coupon.KindFixed,
		Value: dec("50"), CreatedAt: fixedNow(),
	})

	quote, err := engine.Validate(context.Background(), "FLAT50", dec("30"))
	require.NoError(t, err)
	assert.True(t, quote.Discount.Equal(dec("30")))
	assert.True(t, quote.NewTotal.IsZero())
}

// =============================================================================
// REDEMPTION
// =============================================================================

func TestRedeem_ConsumesOneUse(t *testing.T) {
	store := memory.New()
	engine := newEngine(store)

	limit := int64(3)
	c := percentCoupon("TRIPLE", "10")
	c.UsageLimit = &limit
	store.PutCoupon(c)

	_, err := engine.Redeem(context.Background(), store, "TRIPLE", dec("100"))
	require.NoError(t, err)

	got, err := store.CouponByCode(context.Background(), "TRIPLE")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.UsedCount)
}

func TestRedeem_Validate_DoesNotConsume(t *testing.T) {
	store := memory.New()
	engine := newEngine(store)
	store.PutCoupon(percentCoupon("TEN", "10"))

	_, err := engine.Validate(context.Background(), "TEN", dec("100"))
	require.NoError(t, err)

	got, err := store.CouponByCode(context.Background(), "TEN")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.UsedCount)
}

func TestRedeem_LastUseBoundary_OnlyOneOfTwoRacersWins(t *testing.T) {
	// GIVEN: A coupon with exactly one use left
	// WHEN: Two redemptions race
	// THEN: One succeeds, one fails exhausted, and the counter stops at
	//       the limit

	store := memory.New()
	engine := newEngine(store)

	limit := int64(1)
	c := percentCoupon("LAST", "10")
	c.UsageLimit = &limit
	store.PutCoupon(c)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.Redeem(context.Background(), store, "LAST", dec("100"))
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, core.ErrCouponExhausted)
		}
	}
	assert.Equal(t, 1, successes)

	got, err := store.CouponByCode(context.Background(), "LAST")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.UsedCount)
}

func TestCoupon_NoLimit_NeverExhausts(t *testing.T) {
	c := percentCoupon("OPEN", "10")
	c.UsedCount = 1_000_000
	assert.False(t, c.Exhausted())
}
