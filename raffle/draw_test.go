package raffle_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/raffle-engine/core"
	"github.com/warp/raffle-engine/raffle"
	"github.com/warp/raffle-engine/store/memory"
	"github.com/warp/raffle-engine/wallet"
)

func newDrawer(store *memory.Store) *raffle.Drawer {
	return raffle.NewDrawer(store, store, zerolog.Nop())
}

// joinTickets puts qty tickets for owner into the raffle directly.
func joinTickets(t *testing.T, store *memory.Store, id core.RaffleID, owner core.OwnerID, qty int) {
	t.Helper()
	batch := make([]raffle.Ticket, qty)
	for i := range batch {
		batch[i] = raffle.Ticket{
			ID:            core.TicketID(core.NewID()),
			RaffleID:      id,
			OwnerID:       owner,
			ProvenanceTag: core.NewProvenanceTag(),
			CreatedAt:     time.Now().UTC(),
		}
	}
	require.NoError(t, store.InsertTickets(context.Background(), batch))
}

// flakyTicketStore fails the ticket read for one raffle a fixed number
// of times, then recovers.
type flakyTicketStore struct {
	*memory.Store

	mu       sync.Mutex
	failID   core.RaffleID
	failures int
}

func (f *flakyTicketStore) TicketsByRaffle(ctx context.Context, id core.RaffleID) ([]raffle.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id == f.failID && f.failures > 0 {
		f.failures--
		return nil, fmt.Errorf("%w: tickets unavailable", core.ErrPersistence)
	}
	return f.Store.TicketsByRaffle(ctx, id)
}

// =============================================================================
// DRAW - winner selection
// =============================================================================

func TestDraw_WinnerIsAParticipant(t *testing.T) {
	// GIVEN: A raffle with tickets from two owners
	// WHEN: Drawing
	// THEN: The raffle closes with a winner who holds tickets

	ctx := context.Background()
	store := memory.New()
	drawer := newDrawer(store)

	store.PutRaffle(activeRaffle("r1", "10", 0))
	joinTickets(t, store, "r1", "alice", 3)
	joinTickets(t, store, "r1", "bob", 7)

	result, err := drawer.Draw(ctx, core.System, "r1")
	require.NoError(t, err)

	assert.Equal(t, raffle.DrawClosed, result.Outcome)
	assert.Equal(t, int64(10), result.TotalTickets)
	require.NotNil(t, result.WinnerID)
	assert.Contains(t, []core.OwnerID{"alice", "bob"}, *result.WinnerID)

	r, err := store.Raffle(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, raffle.StatusClosed, r.Status)
	require.NotNil(t, r.WinnerID)
	assert.Equal(t, *result.WinnerID, *r.WinnerID)
}

func TestDraw_EmptyRaffle_IsCancelled(t *testing.T) {
	// GIVEN: A raffle with no tickets
	// WHEN: Drawing
	// THEN: The raffle cancels with no winner and no notification

	ctx := context.Background()
	store := memory.New()
	drawer := newDrawer(store)

	store.PutRaffle(activeRaffle("r1", "10", 0))

	result, err := drawer.Draw(ctx, core.System, "r1")
	require.NoError(t, err)
	assert.Equal(t, raffle.DrawCancelled, result.Outcome)
	assert.Nil(t, result.WinnerID)

	r, err := store.Raffle(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, raffle.StatusCancelled, r.Status)
	assert.Nil(t, r.WinnerID)
}

func TestDraw_MissingRaffle_IsNotFound(t *testing.T) {
	ctx := context.Background()
	drawer := newDrawer(memory.New())

	_, err := drawer.Draw(ctx, core.System, "nope")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestDraw_RequiresAdmin(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	drawer := newDrawer(store)
	store.PutRaffle(activeRaffle("r1", "10", 0))

	_, err := drawer.Draw(ctx, core.Actor{Owner: "alice"}, "r1")
	assert.ErrorIs(t, err, core.ErrForbidden)
}

// =============================================================================
// DRAW - draw-once guarantee
// =============================================================================

func TestDraw_SecondDraw_IsNoOp(t *testing.T) {
	// GIVEN: A raffle already drawn
	// WHEN: Drawing again
	// THEN: The second invocation reports already_done and the winner
	//       is unchanged

	ctx := context.Background()
	store := memory.New()
	drawer := newDrawer(store)

	store.PutRaffle(activeRaffle("r1", "10", 0))
	joinTickets(t, store, "r1", "alice", 5)

	first, err := drawer.Draw(ctx, core.System, "r1")
	require.NoError(t, err)
	require.Equal(t, raffle.DrawClosed, first.Outcome)

	second, err := drawer.Draw(ctx, core.System, "r1")
	require.NoError(t, err)
	assert.Equal(t, raffle.DrawAlreadyDone, second.Outcome)

	r, err := store.Raffle(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, *first.WinnerID, *r.WinnerID)
}

func TestDraw_ConcurrentDraws_ExactlyOneWins(t *testing.T) {
	// GIVEN: One active raffle
	// WHEN: Many draws race
	// THEN: Exactly one closes the raffle; the rest are no-ops

	ctx := context.Background()
	store := memory.New()
	drawer := newDrawer(store)

	store.PutRaffle(activeRaffle("r1", "10", 0))
	joinTickets(t, store, "r1", "alice", 5)

	const racers = 8
	results := make([]raffle.DrawResult, racers)
	errs := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = drawer.Draw(ctx, core.System, "r1")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	closed := 0
	for _, result := range results {
		if result.Outcome == raffle.DrawClosed {
			closed++
		} else {
			assert.Equal(t, raffle.DrawAlreadyDone, result.Outcome)
		}
	}
	assert.Equal(t, 1, closed)

	notifications := store.NotificationsByOwner("alice")
	assert.Len(t, notifications, 1)
}

func TestDraw_StorageFailureAfterClaim_LeavesRaffleDrawable(t *testing.T) {
	// GIVEN: A store whose ticket read fails once, after the claim
	// WHEN: Drawing, then retrying once storage recovers
	// THEN: The first draw errors, the claim is released, and the retry
	//       closes the raffle instead of reporting already_done

	ctx := context.Background()
	mem := memory.New()
	store := &flakyTicketStore{Store: mem, failID: "r1", failures: 1}
	drawer := raffle.NewDrawer(store, mem, zerolog.Nop())

	mem.PutRaffle(activeRaffle("r1", "10", 0))
	joinTickets(t, mem, "r1", "alice", 5)

	_, err := drawer.Draw(ctx, core.System, "r1")
	require.ErrorIs(t, err, core.ErrPersistence)

	r, err := mem.Raffle(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, raffle.StatusActive, r.Status)
	assert.Nil(t, r.WinnerID)

	result, err := drawer.Draw(ctx, core.System, "r1")
	require.NoError(t, err)
	assert.Equal(t, raffle.DrawClosed, result.Outcome)
	require.NotNil(t, result.WinnerID)
}

// =============================================================================
// DRAW - fairness
// =============================================================================

func TestDraw_WinProbabilityFollowsTicketShare(t *testing.T) {
	// GIVEN: Alice holds 3 of 10 tickets, Bob 7
	// WHEN: Drawing 500 independent raffles
	// THEN: Alice wins roughly 30% of the time (wide bounds; the source
	//       is uniform over the ticket index)

	if testing.Short() {
		t.Skip("statistical test")
	}

	ctx := context.Background()
	const trials = 500

	aliceWins := 0
	for i := 0; i < trials; i++ {
		store := memory.New()
		drawer := newDrawer(store)
		store.PutRaffle(activeRaffle("r1", "10", 0))
		joinTickets(t, store, "r1", "alice", 3)
		joinTickets(t, store, "r1", "bob", 7)

		result, err := drawer.Draw(ctx, core.System, "r1")
		require.NoError(t, err)
		require.NotNil(t, result.WinnerID)
		if *result.WinnerID == "alice" {
			aliceWins++
		}
	}

	// Expected 150; allow +-5 standard deviations (~51).
	assert.Greater(t, aliceWins, 95)
	assert.Less(t, aliceWins, 205)
}

// =============================================================================
// DRAW - notifications
// =============================================================================

func TestDraw_RecordsWinnerNotification(t *testing.T) {
	// GIVEN: A raffle where only Alice holds tickets
	// WHEN: Drawing
	// THEN: Alice receives a win notification naming the raffle

	ctx := context.Background()
	store := memory.New()
	drawer := newDrawer(store)

	store.PutRaffle(activeRaffle("r1", "10", 0))
	joinTickets(t, store, "r1", "alice", 2)

	_, err := drawer.Draw(ctx, core.System, "r1")
	require.NoError(t, err)

	notifications := store.NotificationsByOwner("alice")
	require.Len(t, notifications, 1)
	assert.Contains(t, notifications[0].Message, "r1")
}

// =============================================================================
// DRAW DUE - deadline sweep
// =============================================================================

func TestDrawDue_FinalizesOnlyPastDeadline(t *testing.T) {
	// GIVEN: Two raffles past their deadline (one empty) and one future
	// WHEN: Sweeping at now
	// THEN: The past two finalize (closed + cancelled), the future stays
	//       active

	ctx := context.Background()
	store := memory.New()
	drawer := newDrawer(store)
	now := time.Now().UTC()

	due := activeRaffle("due", "10", 0)
	due.DrawDeadline = now.Add(-time.Hour)
	store.PutRaffle(due)
	joinTickets(t, store, "due", "alice", 2)

	empty := activeRaffle("empty", "10", 0)
	empty.DrawDeadline = now.Add(-time.Minute)
	store.PutRaffle(empty)

	future := activeRaffle("future", "10", 0)
	future.DrawDeadline = now.Add(time.Hour)
	store.PutRaffle(future)

	processed, err := drawer.DrawDue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, processed)

	r, _ := store.Raffle(ctx, "due")
	assert.Equal(t, raffle.StatusClosed, r.Status)
	r, _ = store.Raffle(ctx, "empty")
	assert.Equal(t, raffle.StatusCancelled, r.Status)
	r, _ = store.Raffle(ctx, "future")
	assert.Equal(t, raffle.StatusActive, r.Status)
}

func TestDrawDue_FailingRaffle_DoesNotStopSweep(t *testing.T) {
	// GIVEN: Two due raffles where one fails its ticket read
	// WHEN: Sweeping, then sweeping again once storage recovers
	// THEN: The healthy raffle finalizes on the first pass, the failing
	//       one goes back to active and finalizes on the second

	ctx := context.Background()
	mem := memory.New()
	store := &flakyTicketStore{Store: mem, failID: "bad", failures: 1}
	drawer := raffle.NewDrawer(store, mem, zerolog.Nop())
	now := time.Now().UTC()

	bad := activeRaffle("bad", "10", 0)
	bad.DrawDeadline = now.Add(-time.Hour)
	mem.PutRaffle(bad)
	joinTickets(t, mem, "bad", "alice", 1)

	good := activeRaffle("good", "10", 0)
	good.DrawDeadline = now.Add(-time.Hour)
	mem.PutRaffle(good)
	joinTickets(t, mem, "good", "bob", 1)

	processed, err := drawer.DrawDue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	r, _ := mem.Raffle(ctx, "good")
	assert.Equal(t, raffle.StatusClosed, r.Status)
	r, _ = mem.Raffle(ctx, "bad")
	assert.Equal(t, raffle.StatusActive, r.Status)

	processed, err = drawer.DrawDue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	r, _ = mem.Raffle(ctx, "bad")
	assert.Equal(t, raffle.StatusClosed, r.Status)
}

func TestDrawDue_NothingDue_ProcessesZero(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	drawer := newDrawer(store)

	future := activeRaffle("future", "10", 0)
	future.DrawDeadline = time.Now().Add(time.Hour)
	store.PutRaffle(future)

	processed, err := drawer.DrawDue(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 0, processed)
}

func TestDraw_AfterRealExchange(t *testing.T) {
	// GIVEN: Tickets issued through the exchange, not inserted directly
	// WHEN: Drawing with only one participant
	// THEN: That participant wins

	ctx := context.Background()
	store := memory.New()
	ledger := wallet.NewLedger(store)
	exchange := raffle.NewExchange(store, ledger.Locks())
	drawer := newDrawer(store)

	store.PutRaffle(activeRaffle("r1", "10", 0))
	credit(t, ledger, "alice", "cyber-orb", 3, "10")

	_, err := exchange.Join(ctx, asAlice(), "alice", "r1", map[core.AssetID]int64{"cyber-orb": 3})
	require.NoError(t, err)

	result, err := drawer.Draw(ctx, core.System, "r1")
	require.NoError(t, err)
	require.NotNil(t, result.WinnerID)
	assert.Equal(t, core.OwnerID("alice"), *result.WinnerID)
}
