/*
Package memory provides an in-memory implementation of the storage
interfaces for testing. Transactions are snapshot/restore: WithTx copies
the mutable state up front and puts it back if the function fails, which
gives the same all-or-nothing semantics the SQLite store gets from real
transactions.

SEE ALSO:
  - store/sqlite/sqlite.go: production implementation
*/
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/warp/raffle-engine/core"
	"github.com/warp/raffle-engine/coupon"
	"github.com/warp/raffle-engine/raffle"
	"github.com/warp/raffle-engine/shop"
	"github.com/warp/raffle-engine/wallet"
)

type entryKey struct {
	owner core.OwnerID
	asset core.AssetID
}

// Notification is a recorded draw outcome for an owner.
type Notification struct {
	ID        string
	OwnerID   core.OwnerID
	Title     string
	Message   string
	Read      bool
	CreatedAt time.Time
}

// Store implements the wallet, raffle, coupon and shop storage
// interfaces plus the draw Notifier, entirely in memory.
type Store struct {
	mu            sync.Mutex
	entries       map[entryKey]wallet.Entry
	assets        map[core.AssetID]wallet.Asset
	raffles       map[core.RaffleID]raffle.Raffle
	tickets       []raffle.Ticket
	coupons       map[string]coupon.Coupon
	notifications []Notification
}

func New() *Store {
	return &Store{
		entries: make(map[entryKey]wallet.Entry),
		assets:  make(map[core.AssetID]wallet.Asset),
		raffles: make(map[core.RaffleID]raffle.Raffle),
		coupons: make(map[string]coupon.Coupon),
	}
}

// =============================================================================
// SEED HELPERS
// =============================================================================

func (s *Store) PutRaffle(r raffle.Raffle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raffles[r.ID] = r
}

func (s *Store) PutAsset(a wallet.Asset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets[a.ID] = a
}

func (s *Store) PutCoupon(c coupon.Coupon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Code = strings.ToUpper(c.Code)
	s.coupons[c.Code] = c
}

// =============================================================================
// WALLET STORE
// =============================================================================

func (s *Store) Entry(ctx context.Context, owner core.OwnerID, asset core.AssetID) (wallet.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getEntry(owner, asset)
}

func (s *Store) getEntry(owner core.OwnerID, asset core.AssetID) (wallet.Entry, error) {
	e, ok := s.entries[entryKey{owner, asset}]
	if !ok {
		return wallet.Entry{}, core.ErrNotFound
	}
	return e, nil
}

func (s *Store) EntriesByOwner(ctx context.Context, owner core.OwnerID) ([]wallet.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listEntries(owner), nil
}

func (s *Store) listEntries(owner core.OwnerID) []wallet.Entry {
	var out []wallet.Entry
	for k, e := range s.entries {
		if k.owner == owner {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return out
}

func (s *Store) PutEntry(ctx context.Context, e wallet.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entryKey{e.OwnerID, e.AssetID}] = e
	return nil
}

func (s *Store) DeleteEntry(ctx context.Context, owner core.OwnerID, asset core.AssetID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, entryKey{owner, asset})
	return nil
}

func (s *Store) Assets(ctx context.Context) ([]wallet.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wallet.Asset, 0, len(s.assets))
	for _, a := range s.assets {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) AssetByID(ctx context.Context, id core.AssetID) (wallet.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assets[id]
	if !ok {
		return wallet.Asset{}, core.ErrNotFound
	}
	return a, nil
}

// =============================================================================
// RAFFLE STORE
// =============================================================================

func (s *Store) Raffle(ctx context.Context, id core.RaffleID) (raffle.Raffle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getRaffle(id)
}

func (s *Store) getRaffle(id core.RaffleID) (raffle.Raffle, error) {
	r, ok := s.raffles[id]
	if !ok {
		return raffle.Raffle{}, core.ErrNotFound
	}
	return r, nil
}

func (s *Store) ActiveRaffles(ctx context.Context) ([]raffle.Raffle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []raffle.Raffle
	for _, r := range s.raffles {
		if r.Status == raffle.StatusActive {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) DueRaffles(ctx context.Context, now time.Time) ([]raffle.Raffle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []raffle.Raffle
	for _, r := range s.raffles {
		if r.Status == raffle.StatusActive && !r.DrawDeadline.After(now) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ClaimForDraw(ctx context.Context, id core.RaffleID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.raffles[id]
	if !ok || r.Status != raffle.StatusActive {
		return false, nil
	}
	r.Status = raffle.StatusDrawing
	s.raffles[id] = r
	return true, nil
}

func (s *Store) CompleteDraw(ctx context.Context, id core.RaffleID, status raffle.Status, winner *core.OwnerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.raffles[id]
	if !ok {
		return core.ErrNotFound
	}
	r.Status = status
	r.WinnerID = winner
	s.raffles[id] = r
	return nil
}

func (s *Store) ReleaseClaim(ctx context.Context, id core.RaffleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.raffles[id]
	if !ok || r.Status != raffle.StatusDrawing {
		return nil
	}
	r.Status = raffle.StatusActive
	s.raffles[id] = r
	return nil
}

func (s *Store) InsertTickets(ctx context.Context, tickets []raffle.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertTickets(tickets)
}

func (s *Store) insertTickets(tickets []raffle.Ticket) error {
	s.tickets = append(s.tickets, tickets...)
	return nil
}

func (s *Store) TicketsByRaffle(ctx context.Context, id core.RaffleID) ([]raffle.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []raffle.Ticket
	for _, t := range s.tickets {
		if t.RaffleID == id {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) TicketsByOwner(ctx context.Context, owner core.OwnerID) ([]raffle.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []raffle.Ticket
	for _, t := range s.tickets {
		if t.OwnerID == owner {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) CountTickets(ctx context.Context, id core.RaffleID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countTickets(id), nil
}

func (s *Store) countTickets(id core.RaffleID) int64 {
	var n int64
	for _, t := range s.tickets {
		if t.RaffleID == id {
			n++
		}
	}
	return n
}

// =============================================================================
// COUPON STORE
// =============================================================================

func (s *Store) CouponByCode(ctx context.Context, code string) (coupon.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getCoupon(code)
}

// Codes are stored and looked up uppercase, matching the SQLite store.
func (s *Store) getCoupon(code string) (coupon.Coupon, error) {
	c, ok := s.coupons[strings.ToUpper(code)]
	if !ok {
		return coupon.Coupon{}, core.ErrNotFound
	}
	return c, nil
}

func (s *Store) IncrementCouponUsage(ctx context.Context, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.incrementCoupon(code)
}

func (s *Store) incrementCoupon(code string) (bool, error) {
	code = strings.ToUpper(code)
	c, ok := s.coupons[code]
	if !ok {
		return false, core.ErrNotFound
	}
	if c.Exhausted() {
		return false, nil
	}
	c.UsedCount++
	s.coupons[code] = c
	return true, nil
}

func (s *Store) Coupons(ctx context.Context) ([]coupon.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]coupon.Coupon, 0, len(s.coupons))
	for _, c := range s.coupons {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *Store) CreateCoupon(ctx context.Context, c coupon.Coupon) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Code = strings.ToUpper(c.Code)
	if _, ok := s.coupons[c.Code]; ok {
		return core.ErrValidation
	}
	s.coupons[c.Code] = c
	return nil
}

func (s *Store) DeleteCoupon(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for code, c := range s.coupons {
		if c.ID == id {
			delete(s.coupons, code)
			return nil
		}
	}
	return core.ErrNotFound
}

// =============================================================================
// NOTIFIER
// =============================================================================

func (s *Store) Notify(ctx context.Context, owner core.OwnerID, title, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, Notification{
		ID:        core.NewID(),
		OwnerID:   owner,
		Title:     title,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (s *Store) NotificationsByOwner(owner core.OwnerID) []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Notification
	for _, n := range s.notifications {
		if n.OwnerID == owner {
			out = append(out, n)
		}
	}
	return out
}

// =============================================================================
// TRANSACTIONS - snapshot/restore
// =============================================================================

// WithTx runs fn against an unlocked view while holding the store lock,
// restoring the pre-transaction snapshot if fn fails.
func (s *Store) WithTx(ctx context.Context, fn func(raffle.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(&view{s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// WithPurchaseTx is the purchase unit of work over the same snapshot
// mechanism.
func (s *Store) WithPurchaseTx(ctx context.Context, fn func(shop.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(&view{s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type state struct {
	entries map[entryKey]wallet.Entry
	raffles map[core.RaffleID]raffle.Raffle
	tickets []raffle.Ticket
	coupons map[string]coupon.Coupon
}

func (s *Store) snapshot() state {
	st := state{
		entries: make(map[entryKey]wallet.Entry, len(s.entries)),
		raffles: make(map[core.RaffleID]raffle.Raffle, len(s.raffles)),
		tickets: make([]raffle.Ticket, len(s.tickets)),
		coupons: make(map[string]coupon.Coupon, len(s.coupons)),
	}
	for k, v := range s.entries {
		st.entries[k] = v
	}
	for k, v := range s.raffles {
		st.raffles[k] = v
	}
	copy(st.tickets, s.tickets)
	for k, v := range s.coupons {
		st.coupons[k] = v
	}
	return st
}

func (s *Store) restore(st state) {
	s.entries = st.entries
	s.raffles = st.raffles
	s.tickets = st.tickets
	s.coupons = st.coupons
}

// view exposes the store without locking; the lock is held by WithTx.
type view struct {
	s *Store
}

func (v *view) Entry(ctx context.Context, owner core.OwnerID, asset core.AssetID) (wallet.Entry, error) {
	return v.s.getEntry(owner, asset)
}

func (v *view) EntriesByOwner(ctx context.Context, owner core.OwnerID) ([]wallet.Entry, error) {
	return v.s.listEntries(owner), nil
}

func (v *view) PutEntry(ctx context.Context, e wallet.Entry) error {
	v.s.entries[entryKey{e.OwnerID, e.AssetID}] = e
	return nil
}

func (v *view) DeleteEntry(ctx context.Context, owner core.OwnerID, asset core.AssetID) error {
	delete(v.s.entries, entryKey{owner, asset})
	return nil
}

func (v *view) Assets(ctx context.Context) ([]wallet.Asset, error) {
	out := make([]wallet.Asset, 0, len(v.s.assets))
	for _, a := range v.s.assets {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *view) AssetByID(ctx context.Context, id core.AssetID) (wallet.Asset, error) {
	a, ok := v.s.assets[id]
	if !ok {
		return wallet.Asset{}, core.ErrNotFound
	}
	return a, nil
}

func (v *view) Raffle(ctx context.Context, id core.RaffleID) (raffle.Raffle, error) {
	return v.s.getRaffle(id)
}

func (v *view) InsertTickets(ctx context.Context, tickets []raffle.Ticket) error {
	return v.s.insertTickets(tickets)
}

func (v *view) CountTickets(ctx context.Context, id core.RaffleID) (int64, error) {
	return v.s.countTickets(id), nil
}

func (v *view) CouponByCode(ctx context.Context, code string) (coupon.Coupon, error) {
	return v.s.getCoupon(code)
}

func (v *view) IncrementCouponUsage(ctx context.Context, code string) (bool, error) {
	return v.s.incrementCoupon(code)
}

func (v *view) Coupons(ctx context.Context) ([]coupon.Coupon, error) {
	out := make([]coupon.Coupon, 0, len(v.s.coupons))
	for _, c := range v.s.coupons {
		out = append(out, c)
	}
	return out, nil
}

func (v *view) CreateCoupon(ctx context.Context, c coupon.Coupon) error {
	c.Code = strings.ToUpper(c.Code)
	if _, ok := v.s.coupons[c.Code]; ok {
		return core.ErrValidation
	}
	v.s.coupons[c.Code] = c
	return nil
}

func (v *view) DeleteCoupon(ctx context.Context, id string) error {
	for code, c := range v.s.coupons {
		if c.ID == id {
			delete(v.s.coupons, code)
			return nil
		}
	}
	return core.ErrNotFound
}
