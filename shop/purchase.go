/*
Package shop runs the catalog purchase transaction: price the selected
assets from the catalog, apply an optional coupon, and credit the
buyer's wallet - one atomic unit of work. The coupon's usage counter is
incremented inside the same transaction, so an exhausted coupon rolls
the whole purchase back.

SEE ALSO:
  - coupon/engine.go: redemption semantics
  - wallet/ledger.go: credit semantics
*/
package shop

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/warp/raffle-engine/core"
	"github.com/warp/raffle-engine/coupon"
	"github.com/warp/raffle-engine/wallet"
)

// Tx is the transactional view a purchase runs against.
type Tx interface {
	wallet.Store
	coupon.Store
}

// Store provides the purchase unit of work.
type Store interface {
	WithPurchaseTx(ctx context.Context, fn func(Tx) error) error
}

// Item selects a catalog asset and a quantity to buy.
type Item struct {
	AssetID  core.AssetID
	Quantity int64
}

// Receipt reports a completed purchase.
type Receipt struct {
	TotalCost decimal.Decimal
	Discount  decimal.Decimal
	FinalCost decimal.Decimal
	Coupon    string
}

// Engine runs purchases.
type Engine struct {
	store   Store
	coupons *coupon.Engine
	locks   *wallet.EntryLocks
}

func NewEngine(store Store, coupons *coupon.Engine, locks *wallet.EntryLocks) *Engine {
	return &Engine{store: store, coupons: coupons, locks: locks}
}

// Buy purchases catalog assets for the owner, with an optional coupon
// code. Items are priced from the current catalog; the credited entries
// record that price as the acquisition price.
func (e *Engine) Buy(ctx context.Context, actor core.Actor, owner core.OwnerID, items []Item, couponCode string) (Receipt, error) {
	if !actor.CanActAs(owner) {
		return Receipt{}, core.ErrForbidden
	}
	if len(items) == 0 {
		return Receipt{}, core.ErrValidation
	}
	assets := make([]core.AssetID, 0, len(items))
	for _, it := range items {
		if it.Quantity <= 0 {
			return Receipt{}, core.ErrValidation
		}
		assets = append(assets, it.AssetID)
	}

	unlock := e.locks.LockAll(owner, assets)
	defer unlock()

	var receipt Receipt
	err := e.store.WithPurchaseTx(ctx, func(tx Tx) error {
		total := decimal.Zero
		catalog := make([]wallet.Asset, len(items))
		for i, it := range items {
			a, err := tx.AssetByID(ctx, it.AssetID)
			if err != nil {
				return err
			}
			catalog[i] = a
			total = total.Add(a.Price.Mul(decimal.NewFromInt(it.Quantity)))
		}

		final := total
		var discount decimal.Decimal
		if couponCode != "" {
			quote, err := e.coupons.Redeem(ctx, tx, couponCode, total)
			if err != nil {
				return err
			}
			discount = quote.Discount
			final = quote.NewTotal
		}

		for i, it := range items {
			unit := wallet.Metadata{
				SchemaVersion: wallet.MetadataVersion,
				Name:          catalog[i].Name,
				Rarity:        catalog[i].Rarity,
				UnitPrice:     catalog[i].Price,
			}
			if _, err := wallet.CreditEntry(ctx, tx, owner, it.AssetID, it.Quantity, unit); err != nil {
				return err
			}
		}

		receipt = Receipt{
			TotalCost: total,
			Discount:  discount,
			FinalCost: final,
			Coupon:    couponCode,
		}
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}
	return receipt, nil
}
