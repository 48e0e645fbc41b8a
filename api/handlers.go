/*
handlers.go - HTTP API handlers for the raffle engine

PURPOSE:
  Exposes the raffle engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Raffles:
    GET    /api/raffles                   List active raffles
    POST   /api/raffles                   Create raffle (admin)
    GET    /api/raffles/{id}              Get raffle details
    GET    /api/raffles/{id}/participants Aggregated participants
    POST   /api/raffles/{id}/join         Exchange assets for tickets
    POST   /api/raffles/{id}/draw         Draw a winner (admin)

  Users:
    GET    /api/users/{id}/wallet             Wallet (catalog-merged)
    POST   /api/users/{id}/wallet/credit      Credit entry (admin)
    POST   /api/users/{id}/wallet/debit       Debit entry (admin)
    GET    /api/users/{id}/raffles            Raffles joined
    GET    /api/users/{id}/notifications      Draw notifications
    POST   /api/users/{id}/notifications/{nid}/read

  Shop:
    GET    /api/shop/assets     Catalog
    POST   /api/shop/assets     Create/update asset (admin)
    POST   /api/shop/buy        Purchase with optional coupon

  Coupons:
    POST   /api/coupons/validate   Pre-checkout validation
    GET    /api/admin/coupons      List (admin)
    POST   /api/admin/coupons      Create (admin)
    DELETE /api/admin/coupons/{id} Delete (admin)

  Admin:
    POST   /api/admin/draw-due     Run deadline draws now
    POST   /api/reset              Database reset + reseed (dev only)

AUTHORIZATION:
  The actor middleware reads X-Owner-ID and X-Admin headers and builds
  the capability engines check. Real credential verification (JWT,
  sessions) sits in front of this service; these headers stand in for
  its output.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, business-rule violations
  - 403: Capability does not cover the owner
  - 404: Resource not found
  - 409: Lost conditional update, safe to retry
  - 500: Persistence errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - seed.go: Demo data loader
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/warp/raffle-engine/core"
	"github.com/warp/raffle-engine/coupon"
	"github.com/warp/raffle-engine/raffle"
	"github.com/warp/raffle-engine/shop"
	"github.com/warp/raffle-engine/store/sqlite"
	"github.com/warp/raffle-engine/wallet"
)

const timeFormat = time.RFC3339

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    *sqlite.Store
	Ledger   *wallet.Ledger
	Exchange *raffle.Exchange
	Drawer   *raffle.Drawer
	Coupons  *coupon.Engine
	Shop     *shop.Engine

	Log zerolog.Logger
}

// NewHandler wires the engines over one store. The ledger's lock
// manager is shared with the exchange and the shop so every path that
// touches a wallet entry serializes on the same locks.
func NewHandler(store *sqlite.Store, log zerolog.Logger) *Handler {
	ledger := wallet.NewLedger(store)
	coupons := coupon.NewEngine(store)
	return &Handler{
		Store:    store,
		Ledger:   ledger,
		Exchange: raffle.NewExchange(store, ledger.Locks()),
		Drawer:   raffle.NewDrawer(store, store, log),
		Coupons:  coupons,
		Shop:     shop.NewEngine(store, coupons, ledger.Locks()),
		Log:      log,
	}
}

// =============================================================================
// ACTOR EXTRACTION
// =============================================================================

type actorKey struct{}

// ActorMiddleware builds the request's capability from headers and
// stashes it in the context.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := core.Actor{
			Owner: core.OwnerID(r.Header.Get("X-Owner-ID")),
			Admin: r.Header.Get("X-Admin") == "true",
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, actor)))
	})
}

func actorFrom(r *http.Request) core.Actor {
	if a, ok := r.Context().Value(actorKey{}).(core.Actor); ok {
		return a
	}
	return core.Actor{}
}

// =============================================================================
// RAFFLE HANDLERS
// =============================================================================

// ListRaffles returns active raffles with ticket counts. Admins may
// pass ?all=true to include closed and cancelled raffles.
func (h *Handler) ListRaffles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		raffles []raffle.Raffle
		err     error
	)
	if r.URL.Query().Get("all") == "true" && actorFrom(r).IsAdmin() {
		raffles, err = h.Store.AllRaffles(ctx)
	} else {
		raffles, err = h.Store.ActiveRaffles(ctx)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	dtos := make([]RaffleDTO, 0, len(raffles))
	for _, rf := range raffles {
		sold, err := h.Store.CountTickets(ctx, rf.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		dtos = append(dtos, raffleDTO(rf, sold))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetRaffle returns a single raffle with its ticket count.
func (h *Handler) GetRaffle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := core.RaffleID(chi.URLParam(r, "id"))

	rf, err := h.Store.Raffle(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	sold, err := h.Store.CountTickets(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, raffleDTO(rf, sold))
}

// CreateRaffle creates a raffle (admin only).
func (h *Handler) CreateRaffle(w http.ResponseWriter, r *http.Request) {
	if !actorFrom(r).IsAdmin() {
		writeError(w, core.ErrForbidden)
		return
	}

	var req CreateRaffleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, core.ErrValidation)
		return
	}
	if req.Title == "" || !req.TicketPrice.IsPositive() {
		writeError(w, core.ErrValidation)
		return
	}
	deadline, err := time.Parse(timeFormat, req.DrawDeadline)
	if err != nil {
		writeError(w, core.ErrValidation)
		return
	}

	rf := raffle.Raffle{
		ID:           core.RaffleID(core.NewID()),
		Title:        req.Title,
		Description:  req.Description,
		ImageURL:     req.ImageURL,
		Category:     req.Category,
		Rarity:       req.Rarity,
		TicketPrice:  req.TicketPrice,
		MaxTickets:   req.MaxTickets,
		PrizeValue:   req.PrizeValue,
		DrawDeadline: deadline,
		Status:       raffle.StatusActive,
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.Store.SaveRaffle(r.Context(), rf); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, raffleDTO(rf, 0))
}

// GetParticipants returns per-owner ticket counts for a raffle.
func (h *Handler) GetParticipants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := core.RaffleID(chi.URLParam(r, "id"))

	if _, err := h.Store.Raffle(ctx, id); err != nil {
		writeError(w, err)
		return
	}
	tickets, err := h.Store.TicketsByRaffle(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}

	counts := make(map[core.OwnerID]int64)
	order := make([]core.OwnerID, 0)
	for _, t := range tickets {
		if _, seen := counts[t.OwnerID]; !seen {
			order = append(order, t.OwnerID)
		}
		counts[t.OwnerID]++
	}

	dtos := make([]ParticipantDTO, 0, len(order))
	for _, owner := range order {
		dtos = append(dtos, ParticipantDTO{
			OwnerID:     string(owner),
			TicketCount: counts[owner],
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// JoinRaffle exchanges the caller's selected wallet assets for tickets.
func (h *Handler) JoinRaffle(w http.ResponseWriter, r *http.Request) {
	id := core.RaffleID(chi.URLParam(r, "id"))
	actor := actorFrom(r)

	var req JoinRaffleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, core.ErrValidation)
		return
	}

	spend := make(map[core.AssetID]int64, len(req.Spend))
	for asset, qty := range req.Spend {
		spend[core.AssetID(asset)] = qty
	}

	result, err := h.Exchange.Join(r.Context(), actor, actor.Owner, id, spend)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, JoinRaffleResponse{
		RaffleID:      string(result.RaffleID),
		TicketsIssued: result.TicketsIssued,
		TotalValue:    result.TotalValue,
	})
}

// DrawRaffle draws a winner (admin only; the capability check lives in
// the drawer).
func (h *Handler) DrawRaffle(w http.ResponseWriter, r *http.Request) {
	id := core.RaffleID(chi.URLParam(r, "id"))

	result, err := h.Drawer.Draw(r.Context(), actorFrom(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, drawResultDTO(result))
}

func drawResultDTO(result raffle.DrawResult) DrawResultDTO {
	dto := DrawResultDTO{
		RaffleID:     string(result.RaffleID),
		Outcome:      result.Outcome,
		TotalTickets: result.TotalTickets,
	}
	if !result.DrawnAt.IsZero() {
		dto.DrawnAt = result.DrawnAt.Format(timeFormat)
	}
	if result.WinnerID != nil {
		winner := string(*result.WinnerID)
		dto.WinnerID = &winner
	}
	return dto
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// GetWallet returns the owner's catalog-merged wallet.
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	owner := core.OwnerID(chi.URLParam(r, "id"))
	if !actorFrom(r).CanActAs(owner) {
		writeError(w, core.ErrForbidden)
		return
	}

	views, err := h.Ledger.Entries(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}
	dtos := make([]WalletEntryDTO, len(views))
	for i, v := range views {
		dtos[i] = walletEntryDTO(v)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreditWallet grants units of an asset to an owner (admin only).
// Metadata comes from the current catalog record.
func (h *Handler) CreditWallet(w http.ResponseWriter, r *http.Request) {
	if !actorFrom(r).IsAdmin() {
		writeError(w, core.ErrForbidden)
		return
	}
	owner := core.OwnerID(chi.URLParam(r, "id"))

	var req AdjustWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, core.ErrValidation)
		return
	}

	asset, err := h.Store.AssetByID(r.Context(), core.AssetID(req.AssetID))
	if err != nil {
		writeError(w, err)
		return
	}

	entry, err := h.Ledger.Credit(r.Context(), owner, asset.ID, req.Quantity, wallet.Metadata{
		SchemaVersion: wallet.MetadataVersion,
		Name:          asset.Name,
		Rarity:        asset.Rarity,
		UnitPrice:     asset.Price,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"asset_id": entry.AssetID,
		"quantity": entry.Quantity,
	})
}

// DebitWallet removes units of an asset from an owner (admin only).
func (h *Handler) DebitWallet(w http.ResponseWriter, r *http.Request) {
	if !actorFrom(r).IsAdmin() {
		writeError(w, core.ErrForbidden)
		return
	}
	owner := core.OwnerID(chi.URLParam(r, "id"))

	var req AdjustWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, core.ErrValidation)
		return
	}

	entry, err := h.Ledger.Debit(r.Context(), owner, core.AssetID(req.AssetID), req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"asset_id": entry.AssetID,
		"quantity": entry.Quantity,
	})
}

// GetUserRaffles returns the raffles the owner holds tickets in.
func (h *Handler) GetUserRaffles(w http.ResponseWriter, r *http.Request) {
	owner := core.OwnerID(chi.URLParam(r, "id"))

	participations, err := h.Exchange.Participations(r.Context(), actorFrom(r), owner)
	if err != nil {
		writeError(w, err)
		return
	}

	dtos := make([]ParticipationDTO, 0, len(participations))
	for _, p := range participations {
		sold, err := h.Store.CountTickets(r.Context(), p.Raffle.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		dtos = append(dtos, ParticipationDTO{
			Raffle:           raffleDTO(p.Raffle, sold),
			TicketsHeld:      p.TicketsHeld,
			ValueContributed: p.ValueContributed,
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetNotifications returns the owner's draw notifications, newest first.
func (h *Handler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	owner := core.OwnerID(chi.URLParam(r, "id"))
	if !actorFrom(r).CanActAs(owner) {
		writeError(w, core.ErrForbidden)
		return
	}

	notifications, err := h.Store.NotificationsByOwner(r.Context(), owner, 50)
	if err != nil {
		writeError(w, err)
		return
	}
	dtos := make([]NotificationDTO, len(notifications))
	for i, n := range notifications {
		dtos[i] = notificationDTO(n)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// MarkNotificationRead flags one notification as read.
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	owner := core.OwnerID(chi.URLParam(r, "id"))
	if !actorFrom(r).CanActAs(owner) {
		writeError(w, core.ErrForbidden)
		return
	}

	if err := h.Store.MarkNotificationRead(r.Context(), owner, chi.URLParam(r, "nid")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// SHOP HANDLERS
// =============================================================================

// ListAssets returns the current catalog.
func (h *Handler) ListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := h.Store.Assets(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	dtos := make([]AssetDTO, len(assets))
	for i, a := range assets {
		dtos[i] = assetDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveAsset creates or updates a catalog record (admin only).
func (h *Handler) SaveAsset(w http.ResponseWriter, r *http.Request) {
	if !actorFrom(r).IsAdmin() {
		writeError(w, core.ErrForbidden)
		return
	}

	var req AssetDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, core.ErrValidation)
		return
	}
	if req.Name == "" || !req.Price.IsPositive() {
		writeError(w, core.ErrValidation)
		return
	}
	if req.ID == "" {
		req.ID = core.NewID()
	}

	a := wallet.Asset{
		ID:       core.AssetID(req.ID),
		Name:     req.Name,
		Rarity:   req.Rarity,
		Price:    req.Price,
		ImageURL: req.ImageURL,
	}
	if err := h.Store.SaveAsset(r.Context(), a); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, assetDTO(a))
}

// Buy purchases catalog assets for the caller, optionally with a coupon.
func (h *Handler) Buy(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)

	var req BuyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, core.ErrValidation)
		return
	}

	items := make([]shop.Item, len(req.Items))
	for i, it := range req.Items {
		items[i] = shop.Item{AssetID: core.AssetID(it.AssetID), Quantity: it.Quantity}
	}

	receipt, err := h.Shop.Buy(r.Context(), actor, actor.Owner, items, req.CouponCode)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ReceiptDTO{
		TotalCost: receipt.TotalCost,
		Discount:  receipt.Discount,
		FinalCost: receipt.FinalCost,
		Coupon:    receipt.Coupon,
	})
}

// =============================================================================
// COUPON HANDLERS
// =============================================================================

// ValidateCoupon checks a code against a cart total without consuming a
// use.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req ValidateCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, core.ErrValidation)
		return
	}

	quote, err := h.Coupons.Validate(r.Context(), req.Code, req.CartTotal)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, QuoteDTO{
		Code:     quote.Code,
		Discount: quote.Discount,
		NewTotal: quote.NewTotal,
	})
}

// ListCoupons returns all coupons (admin only).
func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	if !actorFrom(r).IsAdmin() {
		writeError(w, core.ErrForbidden)
		return
	}

	coupons, err := h.Store.Coupons(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	dtos := make([]CouponDTO, len(coupons))
	for i, c := range coupons {
		dtos[i] = couponDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateCoupon creates a coupon (admin only).
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	if !actorFrom(r).IsAdmin() {
		writeError(w, core.ErrForbidden)
		return
	}

	var req CreateCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, core.ErrValidation)
		return
	}
	if req.Code == "" || !req.Value.IsPositive() {
		writeError(w, core.ErrValidation)
		return
	}
	kind := coupon.Kind(req.Kind)
	if kind != coupon.KindPercent && kind != coupon.KindFixed {
		writeError(w, core.ErrValidation)
		return
	}

	c := coupon.Coupon{
		ID:          core.NewID(),
		Code:        req.Code,
		Kind:        kind,
		Value:       req.Value,
		MinPurchase: req.MinPurchase,
		UsageLimit:  req.UsageLimit,
		CreatedAt:   time.Now().UTC(),
	}
	if req.ExpiresAt != nil {
		t, err := time.Parse(timeFormat, *req.ExpiresAt)
		if err != nil {
			writeError(w, core.ErrValidation)
			return
		}
		c.ExpiresAt = &t
	}

	if err := h.Store.CreateCoupon(r.Context(), c); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, couponDTO(c))
}

// DeleteCoupon removes a coupon (admin only).
func (h *Handler) DeleteCoupon(w http.ResponseWriter, r *http.Request) {
	if !actorFrom(r).IsAdmin() {
		writeError(w, core.ErrForbidden)
		return
	}

	if err := h.Store.DeleteCoupon(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// DrawDue runs the deadline draws immediately (admin only). The
// scheduler runs the same operation every minute.
func (h *Handler) DrawDue(w http.ResponseWriter, r *http.Request) {
	if !actorFrom(r).IsAdmin() {
		writeError(w, core.ErrForbidden)
		return
	}

	processed, err := h.Drawer.DrawDue(r.Context(), time.Now().UTC())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"processed": processed})
}

// ResetDatabase clears all data and reloads the demo seed (dev only).
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if !actorFrom(r).IsAdmin() {
		writeError(w, core.ErrForbidden)
		return
	}

	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	if err := Seed(r.Context(), h.Store, h.Ledger); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case core.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, core.ErrForbidden):
		return http.StatusForbidden
	case core.IsClientError(err):
		return http.StatusBadRequest
	case core.IsRetryable(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
