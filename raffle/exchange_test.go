package raffle_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/raffle-engine/core"
	"github.com/warp/raffle-engine/raffle"
	"github.com/warp/raffle-engine/store/memory"
	"github.com/warp/raffle-engine/wallet"
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

func activeRaffle(id string, ticketPrice string, maxTickets int64) raffle.Raffle {
	return raffle.Raffle{
		ID:           core.RaffleID(id),
		Title:        "Test Raffle",
		TicketPrice:  dec(ticketPrice),
		MaxTickets:   maxTickets,
		PrizeValue:   dec("1000"),
		DrawDeadline: time.Now().Add(24 * time.Hour),
		Status:       raffle.StatusActive,
		CreatedAt:    time.Now(),
	}
}

func credit(t *testing.T, ledger *wallet.Ledger, owner core.OwnerID, asset core.AssetID, qty int64, price string) {
	t.Helper()
	_, err := ledger.Credit(context.Background(), owner, asset, qty, wallet.Metadata{
		SchemaVersion: wallet.MetadataVersion,
		Name:          string(asset),
		UnitPrice:     dec(price),
	})
	require.NoError(t, err)
}

func asAlice() core.Actor { return core.Actor{Owner: "alice"} }

// =============================================================================
// EXCHANGE - value to tickets
// =============================================================================

func TestJoin_ExchangesValueForTickets(t *testing.T) {
	// GIVEN: Alice holds 3 units bought at 50 each; ticket price is 10
	// WHEN: She spends 2 units
	// THEN: 100 of value buys exactly 10 tickets and 1 unit remains

	ctx := context.Background()
	store := memory.New()
	ledger := wallet.NewLedger(store)
	exchange := raffle.NewExchange(store, ledger.Locks())

	store.PutRaffle(activeRaffle("r1", "10", 0))
	credit(t, ledger, "alice", "neon-cat", 3, "50")

	result, err := exchange.Join(ctx, asAlice(), "alice", "r1", map[core.AssetID]int64{"neon-cat": 2})
	require.NoError(t, err)

	assert.Equal(t, int64(10), result.TicketsIssued)
	assert.True(t, result.TotalValue.Equal(dec("100")))

	tickets, err := store.TicketsByRaffle(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, tickets, 10)

	views, err := ledger.Entries(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, int64(1), views[0].Quantity)
}

func TestJoin_FractionalValue_IsDiscarded(t *testing.T) {
	// GIVEN: One unit worth 25 and a ticket price of 10
	// WHEN: Joining with that unit
	// THEN: 2 tickets issue; the remaining 5 of value is not carried

	ctx := context.Background()
	store := memory.New()
	ledger := wallet.NewLedger(store)
	exchange := raffle.NewExchange(store, ledger.Locks())

	store.PutRaffle(activeRaffle("r1", "10", 0))
	credit(t, ledger, "alice", "cyber-orb", 1, "25")

	result, err := exchange.Join(ctx, asAlice(), "alice", "r1", map[core.AssetID]int64{"cyber-orb": 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.TicketsIssued)
}

func TestJoin_MultipleAssets_AccumulatesValue(t *testing.T) {
	// GIVEN: 1 unit at 25 and 3 units at 5 (total 40), ticket price 10
	// WHEN: Joining with both assets
	// THEN: 4 tickets issue and both entries are debited

	ctx := context.Background()
	store := memory.New()
	ledger := wallet.NewLedger(store)
	exchange := raffle.NewExchange(store, ledger.Locks())

	store.PutRaffle(activeRaffle("r1", "10", 0))
	credit(t, ledger, "alice", "cyber-orb", 1, "25")
	credit(t, ledger, "alice", "glitch-gem", 3, "5")

	result, err := exchange.Join(ctx, asAlice(), "alice", "r1", map[core.AssetID]int64{
		"cyber-orb":  1,
		"glitch-gem": 3,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), result.TicketsIssued)

	views, err := ledger.Entries(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, views)
}

// =============================================================================
// EXCHANGE - atomicity
// =============================================================================

func TestJoin_ZeroTickets_RollsBackDebits(t *testing.T) {
	// GIVEN: One unit worth 5 and a ticket price of 10
	// WHEN: Joining with that unit
	// THEN: The exchange fails and the wallet is untouched

	ctx := context.Background()
	store := memory.New()
	ledger := wallet.NewLedger(store)
	exchange := raffle.NewExchange(store, ledger.Locks())

	store.PutRaffle(activeRaffle("r1", "10", 0))
	credit(t, ledger, "alice", "glitch-gem", 1, "5")

	_, err := exchange.Join(ctx, asAlice(), "alice", "r1", map[core.AssetID]int64{"glitch-gem": 1})
	require.ErrorIs(t, err, core.ErrInsufficientValue)

	var insufficient *core.InsufficientValueError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, insufficient.TotalValue.Equal(dec("5")))

	views, err := ledger.Entries(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, int64(1), views[0].Quantity)

	tickets, err := store.TicketsByRaffle(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, tickets)
}

func TestJoin_InsufficientQuantity_RollsBackEverything(t *testing.T) {
	// GIVEN: Two selected assets where the second has too few units
	// WHEN: Joining
	// THEN: The first asset's debit is rolled back too

	ctx := context.Background()
	store := memory.New()
	ledger := wallet.NewLedger(store)
	exchange := raffle.NewExchange(store, ledger.Locks())

	store.PutRaffle(activeRaffle("r1", "10", 0))
	credit(t, ledger, "alice", "cyber-orb", 5, "10")
	credit(t, ledger, "alice", "neon-cat", 1, "50")

	_, err := exchange.Join(ctx, asAlice(), "alice", "r1", map[core.AssetID]int64{
		"cyber-orb": 5,
		"neon-cat":  2,
	})
	require.ErrorIs(t, err, core.ErrInsufficientAsset)

	views, err := ledger.Entries(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, views, 2)
	for _, v := range views {
		switch v.AssetID {
		case "cyber-orb":
			assert.Equal(t, int64(5), v.Quantity)
		case "neon-cat":
			assert.Equal(t, int64(1), v.Quantity)
		}
	}
}

// =============================================================================
// EXCHANGE - guards
// =============================================================================

func TestJoin_MissingAsset_ReportsZeroAvailable(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ledger := wallet.NewLedger(store)
	exchange := raffle.NewExchange(store, ledger.Locks())

	store.PutRaffle(activeRaffle("r1", "10", 0))

	_, err := exchange.Join(ctx, asAlice(), "alice", "r1", map[core.AssetID]int64{"neon-cat": 1})
	require.ErrorIs(t, err, core.ErrInsufficientAsset)

	var insufficient *core.InsufficientAssetError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(0), insufficient.Available)
}

func TestJoin_RaffleNotActive_Fails(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ledger := wallet.NewLedger(store)
	exchange := raffle.NewExchange(store, ledger.Locks())

	closed := activeRaffle("r1", "10", 0)
	closed.Status = raffle.StatusClosed
	store.PutRaffle(closed)
	credit(t, ledger, "alice", "neon-cat", 1, "50")

	_, err := exchange.Join(ctx, asAlice(), "alice", "r1", map[core.AssetID]int64{"neon-cat": 1})
	assert.ErrorIs(t, err, core.ErrRaffleNotActive)
}

func TestJoin_MissingRaffle_IsNotFound(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ledger := wallet.NewLedger(store)
	exchange := raffle.NewExchange(store, ledger.Locks())

	credit(t, ledger, "alice", "neon-cat", 1, "50")

	_, err := exchange.Join(ctx, asAlice(), "alice", "nope", map[core.AssetID]int64{"neon-cat": 1})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestJoin_NonPositiveTicketPrice_FailsCleanly(t *testing.T) {
	// GIVEN: A raffle row carrying a zero ticket price
	// WHEN: Joining
	// THEN: The exchange reports a persistence problem instead of
	//       dividing by zero, and the wallet is untouched

	ctx := context.Background()
	store := memory.New()
	ledger := wallet.NewLedger(store)
	exchange := raffle.NewExchange(store, ledger.Locks())

	r := activeRaffle("r1", "10", 0)
	r.TicketPrice = decimal.Zero
	store.PutRaffle(r)
	credit(t, ledger, "alice", "cyber-orb", 3, "10")

	_, err := exchange.Join(ctx, asAlice(), "alice", "r1", map[core.AssetID]int64{"cyber-orb": 3})
	require.ErrorIs(t, err, core.ErrPersistence)

	entry, err := store.Entry(ctx, "alice", "cyber-orb")
	require.NoError(t, err)
	assert.Equal(t, int64(3), entry.Quantity)
}

func TestJoin_TicketCap_RejectsOverflow(t *testing.T) {
	// GIVEN: A raffle capped at 5 tickets with 4 already sold
	// WHEN: An exchange would issue 2 more
	// THEN: The join fails and nothing is debited

	ctx := context.Background()
	store := memory.New()
	ledger := wallet.NewLedger(store)
	exchange := raffle.NewExchange(store, ledger.Locks())

	store.PutRaffle(activeRaffle("r1", "10", 5))
	credit(t, ledger, "bob", "cyber-orb", 4, "10")
	credit(t, ledger, "alice", "cyber-orb", 2, "10")

	_, err := exchange.Join(ctx, core.Actor{Owner: "bob"}, "bob", "r1", map[core.AssetID]int64{"cyber-orb": 4})
	require.NoError(t, err)

	_, err = exchange.Join(ctx, asAlice(), "alice", "r1", map[core.AssetID]int64{"cyber-orb": 2})
	require.ErrorIs(t, err, core.ErrRaffleFull)

	views, err := ledger.Entries(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, int64(2), views[0].Quantity)
}

func TestJoin_ValidatesInput(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ledger := wallet.NewLedger(store)
	exchange := raffle.NewExchange(store, ledger.Locks())

	_, err := exchange.Join(ctx, asAlice(), "alice", "r1", nil)
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = exchange.Join(ctx, asAlice(), "alice", "r1", map[core.AssetID]int64{"neon-cat": 0})
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestJoin_ActorCannotSpendForAnotherOwner(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ledger := wallet.NewLedger(store)
	exchange := raffle.NewExchange(store, ledger.Locks())

	store.PutRaffle(activeRaffle("r1", "10", 0))
	credit(t, ledger, "bob", "neon-cat", 1, "50")

	_, err := exchange.Join(ctx, asAlice(), "bob", "r1", map[core.AssetID]int64{"neon-cat": 1})
	assert.ErrorIs(t, err, core.ErrForbidden)
}

// =============================================================================
// EXCHANGE - double-spend under concurrency
// =============================================================================

func TestJoin_ConcurrentExchanges_CannotDoubleSpend(t *testing.T) {
	// GIVEN: Alice holds 10 units at 10 each (100 of value)
	// WHEN: Two exchanges race, each trying to spend all 10 units
	// THEN: Exactly one succeeds; total tickets match one spend only

	ctx := context.Background()
	store := memory.New()
	ledger := wallet.NewLedger(store)
	exchange := raffle.NewExchange(store, ledger.Locks())

	store.PutRaffle(activeRaffle("r1", "10", 0))
	credit(t, ledger, "alice", "cyber-orb", 10, "10")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = exchange.Join(ctx, asAlice(), "alice", "r1", map[core.AssetID]int64{"cyber-orb": 10})
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, core.ErrInsufficientAsset)
		}
	}
	assert.Equal(t, 1, successes)

	tickets, err := store.TicketsByRaffle(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, tickets, 10)
}

// =============================================================================
// PARTICIPATIONS
// =============================================================================

func TestParticipations_AggregatesPerRaffle(t *testing.T) {
	// GIVEN: Alice holds tickets in two raffles
	// WHEN: Listing her participations
	// THEN: Each raffle appears once with her ticket count and value

	ctx := context.Background()
	store := memory.New()
	ledger := wallet.NewLedger(store)
	exchange := raffle.NewExchange(store, ledger.Locks())

	store.PutRaffle(activeRaffle("r1", "10", 0))
	store.PutRaffle(activeRaffle("r2", "5", 0))
	credit(t, ledger, "alice", "cyber-orb", 5, "10")

	_, err := exchange.Join(ctx, asAlice(), "alice", "r1", map[core.AssetID]int64{"cyber-orb": 3})
	require.NoError(t, err)
	_, err = exchange.Join(ctx, asAlice(), "alice", "r2", map[core.AssetID]int64{"cyber-orb": 2})
	require.NoError(t, err)

	participations, err := exchange.Participations(ctx, asAlice(), "alice")
	require.NoError(t, err)
	require.Len(t, participations, 2)

	byID := make(map[core.RaffleID]raffle.Participation)
	for _, p := range participations {
		byID[p.Raffle.ID] = p
	}
	assert.Equal(t, int64(3), byID["r1"].TicketsHeld)
	assert.True(t, byID["r1"].ValueContributed.Equal(dec("30")))
	assert.Equal(t, int64(4), byID["r2"].TicketsHeld)
	assert.True(t, byID["r2"].ValueContributed.Equal(dec("20")))
}
