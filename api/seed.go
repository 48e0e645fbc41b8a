/*
seed.go - Demo data loader for development and demonstrations

PURPOSE:
  Populates the database with a realistic storefront: a catalog of
  collectible assets, a few open raffles, discount coupons, and two
  demo users holding assets. Loaded on first boot when the database is
  empty, and on every POST /api/reset.

HOW SEEDING WORKS:
  1. Create the asset catalog
  2. Create raffles with staggered deadlines
  3. Create coupons (percent and fixed, one with a usage limit)
  4. Credit demo wallets through the ledger so provenance and
     metadata versioning take the production path

NOTE:
  Only use in development/demo environments. The reset endpoint wipes
  everything first.

SEE ALSO:
  - handlers.go: ResetDatabase handler
  - cmd/server/main.go: first-boot seeding
*/
package api

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/raffle-engine/core"
	"github.com/warp/raffle-engine/coupon"
	"github.com/warp/raffle-engine/raffle"
	"github.com/warp/raffle-engine/store/sqlite"
	"github.com/warp/raffle-engine/wallet"
)

// Seed loads the demo storefront. Idempotent only in the sense that the
// caller resets first; duplicate seeding duplicates raffles.
func Seed(ctx context.Context, store *sqlite.Store, ledger *wallet.Ledger) error {
	now := time.Now().UTC()

	assets := []wallet.Asset{
		{ID: "cosmic-ape", Name: "Cosmic Ape", Rarity: "legendary", Price: dec("250"), ImageURL: "/img/cosmic-ape.png"},
		{ID: "pixel-punk", Name: "Pixel Punk", Rarity: "epic", Price: dec("120"), ImageURL: "/img/pixel-punk.png"},
		{ID: "neon-cat", Name: "Neon Cat", Rarity: "rare", Price: dec("50"), ImageURL: "/img/neon-cat.png"},
		{ID: "cyber-orb", Name: "Cyber Orb", Rarity: "common", Price: dec("10"), ImageURL: "/img/cyber-orb.png"},
		{ID: "glitch-gem", Name: "Glitch Gem", Rarity: "common", Price: dec("5"), ImageURL: "/img/glitch-gem.png"},
	}
	for _, a := range assets {
		if err := store.SaveAsset(ctx, a); err != nil {
			return err
		}
	}

	raffles := []raffle.Raffle{
		{
			ID: "raffle-iphone", Title: "iPhone 17 Pro",
			Description: "Brand new, sealed. Winner drawn at the deadline.",
			Category:    "tech", Rarity: "epic",
			TicketPrice: dec("10"), MaxTickets: 500, PrizeValue: dec("1200"),
			DrawDeadline: now.Add(72 * time.Hour), Status: raffle.StatusActive, CreatedAt: now,
		},
		{
			ID: "raffle-ps6", Title: "PlayStation 6",
			Description: "Launch edition console bundle.",
			Category:    "gaming", Rarity: "rare",
			TicketPrice: dec("5"), MaxTickets: 1000, PrizeValue: dec("600"),
			DrawDeadline: now.Add(48 * time.Hour), Status: raffle.StatusActive, CreatedAt: now,
		},
		{
			ID: "raffle-giftcard", Title: "$100 Gift Card",
			Description: "Low-stakes weekly drawing, no ticket cap.",
			Category:    "cash", Rarity: "common",
			TicketPrice: dec("1"), MaxTickets: 0, PrizeValue: dec("100"),
			DrawDeadline: now.Add(24 * time.Hour), Status: raffle.StatusActive, CreatedAt: now,
		},
	}
	for _, r := range raffles {
		if err := store.SaveRaffle(ctx, r); err != nil {
			return err
		}
	}

	tenUses := int64(10)
	weekOut := now.Add(7 * 24 * time.Hour)
	coupons := []coupon.Coupon{
		{
			ID: core.NewID(), Code: "WELCOME10", Kind: coupon.KindPercent,
			Value: dec("10"), MinPurchase: dec("0"), CreatedAt: now,
		},
		{
			ID: core.NewID(), Code: "SAVE20", Kind: coupon.KindFixed,
			Value: dec("20"), MinPurchase: dec("100"), UsageLimit: &tenUses, CreatedAt: now,
		},
		{
			ID: core.NewID(), Code: "FLASH50", Kind: coupon.KindPercent,
			Value: dec("50"), MinPurchase: dec("200"), ExpiresAt: &weekOut, CreatedAt: now,
		},
	}
	for _, c := range coupons {
		if err := store.CreateCoupon(ctx, c); err != nil {
			return err
		}
	}

	// Demo wallets, credited through the ledger so provenance and the
	// metadata schema version are written the same way production is.
	grants := []struct {
		owner core.OwnerID
		asset core.AssetID
		qty   int64
	}{
		{"alice", "neon-cat", 3},
		{"alice", "cyber-orb", 10},
		{"bob", "pixel-punk", 1},
		{"bob", "glitch-gem", 20},
	}
	for _, g := range grants {
		a, err := store.AssetByID(ctx, g.asset)
		if err != nil {
			return err
		}
		_, err = ledger.Credit(ctx, g.owner, g.asset, g.qty, wallet.Metadata{
			SchemaVersion: wallet.MetadataVersion,
			Name:          a.Name,
			Rarity:        a.Rarity,
			UnitPrice:     a.Price,
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// SeedIfEmpty loads the demo data only when no assets exist yet.
func SeedIfEmpty(ctx context.Context, store *sqlite.Store, ledger *wallet.Ledger) (bool, error) {
	assets, err := store.Assets(ctx)
	if err != nil {
		return false, err
	}
	if len(assets) > 0 {
		return false, nil
	}
	if err := Seed(ctx, store, ledger); err != nil {
		return false, err
	}
	return true, nil
}

func dec(s string) decimal.Decimal {
	return core.MustParseDecimal(s)
}
