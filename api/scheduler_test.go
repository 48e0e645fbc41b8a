package api

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/raffle-engine/raffle"
	"github.com/warp/raffle-engine/store/memory"
)

func TestDrawScheduler_StopWaitsForStartupSweep(t *testing.T) {
	// GIVEN: A raffle past its deadline and a scheduler just started
	// WHEN: Stopping immediately
	// THEN: The startup sweep has already finished when Stop returns,
	//       so the raffle is finalized and nothing races shutdown

	store := memory.New()
	drawer := raffle.NewDrawer(store, store, zerolog.Nop())
	scheduler := NewDrawScheduler(drawer, zerolog.Nop())

	store.PutRaffle(raffle.Raffle{
		ID:           "due",
		Title:        "Due Raffle",
		TicketPrice:  decimal.NewFromInt(10),
		PrizeValue:   decimal.NewFromInt(100),
		DrawDeadline: time.Now().UTC().Add(-time.Hour),
		Status:       raffle.StatusActive,
		CreatedAt:    time.Now().UTC(),
	})

	require.NoError(t, scheduler.Start())
	scheduler.Stop()

	got, err := store.Raffle(context.Background(), "due")
	require.NoError(t, err)
	assert.Equal(t, raffle.StatusCancelled, got.Status)
}
