package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/warp/raffle-engine/core"
)

func TestStatusFor_MapsErrorTaxonomy(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", core.ErrNotFound, http.StatusNotFound},
		{"forbidden", core.ErrForbidden, http.StatusForbidden},
		{"validation", core.ErrValidation, http.StatusBadRequest},
		{"insufficient asset", &core.InsufficientAssetError{AssetID: "a", Requested: 2}, http.StatusBadRequest},
		{"insufficient value", core.ErrInsufficientValue, http.StatusBadRequest},
		{"raffle not active", core.ErrRaffleNotActive, http.StatusBadRequest},
		{"raffle full", core.ErrRaffleFull, http.StatusBadRequest},
		{"coupon invalid", core.ErrCouponInvalid, http.StatusBadRequest},
		{"coupon exhausted", core.ErrCouponExhausted, http.StatusBadRequest},
		{"concurrency conflict", core.ErrConcurrencyConflict, http.StatusConflict},
		{"persistence", core.ErrPersistence, http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, statusFor(tc.err))
		})
	}
}

func TestActorMiddleware_BuildsCapabilityFromHeaders(t *testing.T) {
	var got core.Actor
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = actorFrom(r)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Owner-ID", "alice")
	ActorMiddleware(next).ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, core.OwnerID("alice"), got.Owner)
	assert.False(t, got.IsAdmin())
	assert.True(t, got.CanActAs("alice"))
	assert.False(t, got.CanActAs("bob"))
}

func TestActorMiddleware_AdminHeader(t *testing.T) {
	var got core.Actor
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = actorFrom(r)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Admin", "true")
	ActorMiddleware(next).ServeHTTP(httptest.NewRecorder(), req)

	assert.True(t, got.IsAdmin())
	assert.True(t, got.CanActAs("anyone"))
}

func TestActorFrom_MissingActor_IsAnonymous(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	got := actorFrom(req)
	assert.False(t, got.IsAdmin())
	assert.False(t, got.CanActAs("alice"))
}
