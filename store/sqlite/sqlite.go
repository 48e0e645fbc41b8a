/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements all persistence interfaces (wallet.Store, raffle.Store,
  coupon.Store, shop.Store, raffle.Notifier) using SQLite. In
  production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

KEY TABLES:
  wallet_entries: per-(owner, asset) balances with versioned metadata
  assets:         the current catalog (price/definition for display)
  raffles:        prize drawings with the draw status machine
  tickets:        append-only draw sample space
  coupons:        discount codes with conditional usage counting
  notifications:  draw outcome records for winners

CONDITIONAL UPDATES:
  Two writes are compare-and-swap style and return whether a row was
  affected:
  - ClaimForDraw:         status active -> drawing
  - IncrementCouponUsage: used_count++ only while under the limit
  Losing either race is reported to the engine, never retried here.
  ReleaseClaim is the compensating swap (drawing -> active) for a draw
  that failed after claiming.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control (SELECT ... FOR UPDATE) handles
  this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better
  concurrency: multiple readers don't block, single writer at a time.

USAGE:
  store, err := sqlite.New("./data/raffle.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - wallet/ledger.go, raffle/store.go, coupon/engine.go: interfaces
  - store/memory/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/raffle-engine/core"
	"github.com/warp/raffle-engine/coupon"
	"github.com/warp/raffle-engine/raffle"
	"github.com/warp/raffle-engine/shop"
	"github.com/warp/raffle-engine/wallet"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Wallet entries: one row per (owner, asset), deleted at zero quantity
	CREATE TABLE IF NOT EXISTS wallet_entries (
		owner_id TEXT NOT NULL,
		asset_id TEXT NOT NULL,
		metadata_json TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity >= 0),
		PRIMARY KEY (owner_id, asset_id)
	);

	CREATE INDEX IF NOT EXISTS idx_wallet_entries_owner
		ON wallet_entries(owner_id);

	-- Asset catalog (current price/definition, display only)
	CREATE TABLE IF NOT EXISTS assets (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		rarity TEXT NOT NULL DEFAULT 'common',
		price TEXT NOT NULL,
		image_url TEXT
	);

	-- Raffles
	CREATE TABLE IF NOT EXISTS raffles (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT,
		image_url TEXT,
		category TEXT NOT NULL DEFAULT 'tech',
		rarity TEXT NOT NULL DEFAULT 'common',
		ticket_price TEXT NOT NULL,
		max_tickets INTEGER NOT NULL DEFAULT 0,
		prize_value TEXT NOT NULL DEFAULT '0',
		draw_deadline TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		winner_id TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_raffles_status_deadline
		ON raffles(status, draw_deadline);

	-- Tickets (append-only; no UPDATE or DELETE statements exist)
	CREATE TABLE IF NOT EXISTS tickets (
		id TEXT PRIMARY KEY,
		raffle_id TEXT NOT NULL REFERENCES raffles(id),
		owner_id TEXT NOT NULL,
		provenance_tag TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tickets_raffle
		ON tickets(raffle_id);
	CREATE INDEX IF NOT EXISTS idx_tickets_owner
		ON tickets(owner_id);

	-- Coupons
	CREATE TABLE IF NOT EXISTS coupons (
		id TEXT PRIMARY KEY,
		code TEXT UNIQUE NOT NULL,
		kind TEXT NOT NULL,
		value TEXT NOT NULL,
		min_purchase TEXT NOT NULL DEFAULT '0',
		usage_limit INTEGER,
		used_count INTEGER NOT NULL DEFAULT 0,
		expires_at TEXT,
		created_at TEXT NOT NULL
	);

	-- Notifications (draw outcomes; delivery transport is external)
	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		read INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_owner
		ON notifications(owner_id, created_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier abstracts *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// WALLET STORE (wallet.Store interface)
// =============================================================================

func (s *Store) Entry(ctx context.Context, owner core.OwnerID, asset core.AssetID) (wallet.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getEntry(ctx, s.db, owner, asset)
}

func (s *Store) getEntry(ctx context.Context, q querier, owner core.OwnerID, asset core.AssetID) (wallet.Entry, error) {
	var (
		e            wallet.Entry
		metadataJSON string
	)
	err := q.QueryRowContext(ctx,
		"SELECT owner_id, asset_id, metadata_json, quantity FROM wallet_entries WHERE owner_id = ? AND asset_id = ?",
		owner, asset,
	).Scan(&e.OwnerID, &e.AssetID, &metadataJSON, &e.Quantity)

	if err == sql.ErrNoRows {
		return wallet.Entry{}, core.ErrNotFound
	}
	if err != nil {
		return wallet.Entry{}, fmt.Errorf("%w: query wallet entry: %v", core.ErrPersistence, err)
	}

	if err := json.Unmarshal([]byte(metadataJSON), &e.Metadata); err != nil {
		return wallet.Entry{}, fmt.Errorf("%w: decode entry metadata: %v", core.ErrPersistence, err)
	}
	e.Metadata = e.Metadata.Upgrade()
	return e, nil
}

func (s *Store) EntriesByOwner(ctx context.Context, owner core.OwnerID) ([]wallet.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listEntries(ctx, s.db, owner)
}

func (s *Store) listEntries(ctx context.Context, q querier, owner core.OwnerID) ([]wallet.Entry, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT owner_id, asset_id, metadata_json, quantity FROM wallet_entries WHERE owner_id = ? ORDER BY asset_id",
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: query wallet entries: %v", core.ErrPersistence, err)
	}
	defer rows.Close()

	var entries []wallet.Entry
	for rows.Next() {
		var (
			e            wallet.Entry
			metadataJSON string
		)
		if err := rows.Scan(&e.OwnerID, &e.AssetID, &metadataJSON, &e.Quantity); err != nil {
			return nil, fmt.Errorf("%w: scan wallet entry: %v", core.ErrPersistence, err)
		}
		if err := json.Unmarshal([]byte(metadataJSON), &e.Metadata); err != nil {
			return nil, fmt.Errorf("%w: decode entry metadata: %v", core.ErrPersistence, err)
		}
		e.Metadata = e.Metadata.Upgrade()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) PutEntry(ctx context.Context, e wallet.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putEntry(ctx, s.db, e)
}

func (s *Store) putEntry(ctx context.Context, q querier, e wallet.Entry) error {
	metadataJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("%w: encode entry metadata: %v", core.ErrPersistence, err)
	}

	query := `
		INSERT INTO wallet_entries (owner_id, asset_id, metadata_json, quantity)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(owner_id, asset_id) DO UPDATE SET
			metadata_json = excluded.metadata_json,
			quantity = excluded.quantity
	`
	if _, err := q.ExecContext(ctx, query, e.OwnerID, e.AssetID, string(metadataJSON), e.Quantity); err != nil {
		return fmt.Errorf("%w: put wallet entry: %v", core.ErrPersistence, err)
	}
	return nil
}

func (s *Store) DeleteEntry(ctx context.Context, owner core.OwnerID, asset core.AssetID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteEntry(ctx, s.db, owner, asset)
}

func (s *Store) deleteEntry(ctx context.Context, q querier, owner core.OwnerID, asset core.AssetID) error {
	if _, err := q.ExecContext(ctx,
		"DELETE FROM wallet_entries WHERE owner_id = ? AND asset_id = ?", owner, asset,
	); err != nil {
		return fmt.Errorf("%w: delete wallet entry: %v", core.ErrPersistence, err)
	}
	return nil
}

// =============================================================================
// ASSET CATALOG
// =============================================================================

func (s *Store) Assets(ctx context.Context) ([]wallet.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listAssets(ctx, s.db)
}

func (s *Store) listAssets(ctx context.Context, q querier) ([]wallet.Asset, error) {
	rows, err := q.QueryContext(ctx, "SELECT id, name, rarity, price, image_url FROM assets ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("%w: query assets: %v", core.ErrPersistence, err)
	}
	defer rows.Close()

	var assets []wallet.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan asset: %v", core.ErrPersistence, err)
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

func (s *Store) AssetByID(ctx context.Context, id core.AssetID) (wallet.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getAsset(ctx, s.db, id)
}

func (s *Store) getAsset(ctx context.Context, q querier, id core.AssetID) (wallet.Asset, error) {
	row := q.QueryRowContext(ctx, "SELECT id, name, rarity, price, image_url FROM assets WHERE id = ?", id)
	a, err := scanAsset(row)
	if err == sql.ErrNoRows {
		return wallet.Asset{}, core.ErrNotFound
	}
	if err != nil {
		return wallet.Asset{}, fmt.Errorf("%w: query asset: %v", core.ErrPersistence, err)
	}
	return a, nil
}

// SaveAsset inserts or updates a catalog record.
func (s *Store) SaveAsset(ctx context.Context, a wallet.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO assets (id, name, rarity, price, image_url)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			rarity = excluded.rarity,
			price = excluded.price,
			image_url = excluded.image_url
	`
	if _, err := s.db.ExecContext(ctx, query, a.ID, a.Name, a.Rarity, a.Price.String(), a.ImageURL); err != nil {
		return fmt.Errorf("%w: save asset: %v", core.ErrPersistence, err)
	}
	return nil
}

// =============================================================================
// RAFFLE STORE (raffle.Store interface)
// =============================================================================

const raffleColumns = `id, title, description, image_url, category, rarity,
	ticket_price, max_tickets, prize_value, draw_deadline, status, winner_id, created_at`

func (s *Store) Raffle(ctx context.Context, id core.RaffleID) (raffle.Raffle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getRaffle(ctx, s.db, id)
}

func (s *Store) getRaffle(ctx context.Context, q querier, id core.RaffleID) (raffle.Raffle, error) {
	row := q.QueryRowContext(ctx, "SELECT "+raffleColumns+" FROM raffles WHERE id = ?", id)
	r, err := scanRaffle(row)
	if err == sql.ErrNoRows {
		return raffle.Raffle{}, core.ErrNotFound
	}
	if err != nil {
		return raffle.Raffle{}, fmt.Errorf("%w: query raffle: %v", core.ErrPersistence, err)
	}
	return r, nil
}

func (s *Store) ActiveRaffles(ctx context.Context) ([]raffle.Raffle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryRaffles(ctx,
		"SELECT "+raffleColumns+" FROM raffles WHERE status = ? ORDER BY created_at DESC",
		raffle.StatusActive)
}

func (s *Store) DueRaffles(ctx context.Context, now time.Time) ([]raffle.Raffle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryRaffles(ctx,
		"SELECT "+raffleColumns+" FROM raffles WHERE status = ? AND draw_deadline <= ? ORDER BY draw_deadline ASC",
		raffle.StatusActive, now.UTC().Format(time.RFC3339))
}

// AllRaffles returns every raffle, newest first (admin view).
func (s *Store) AllRaffles(ctx context.Context) ([]raffle.Raffle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryRaffles(ctx, "SELECT "+raffleColumns+" FROM raffles ORDER BY created_at DESC")
}

func (s *Store) queryRaffles(ctx context.Context, query string, args ...any) ([]raffle.Raffle, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query raffles: %v", core.ErrPersistence, err)
	}
	defer rows.Close()

	var raffles []raffle.Raffle
	for rows.Next() {
		r, err := scanRaffle(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan raffle: %v", core.ErrPersistence, err)
		}
		raffles = append(raffles, r)
	}
	return raffles, rows.Err()
}

// SaveRaffle inserts or updates a raffle (admin creation path). Status
// and winner are never overwritten here: draw completion owns those.
func (s *Store) SaveRaffle(ctx context.Context, r raffle.Raffle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO raffles (id, title, description, image_url, category, rarity,
			ticket_price, max_tickets, prize_value, draw_deadline, status, winner_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			image_url = excluded.image_url,
			category = excluded.category,
			rarity = excluded.rarity,
			ticket_price = excluded.ticket_price,
			max_tickets = excluded.max_tickets,
			prize_value = excluded.prize_value,
			draw_deadline = excluded.draw_deadline
	`

	var winner any
	if r.WinnerID != nil {
		winner = string(*r.WinnerID)
	}
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.Title, r.Description, r.ImageURL, r.Category, r.Rarity,
		r.TicketPrice.String(), r.MaxTickets, r.PrizeValue.String(),
		r.DrawDeadline.UTC().Format(time.RFC3339), r.Status, winner,
		r.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("%w: save raffle: %v", core.ErrPersistence, err)
	}
	return nil
}

// ClaimForDraw flips active -> drawing. The WHERE clause is the guard:
// zero affected rows means another caller already claimed the raffle.
func (s *Store) ClaimForDraw(ctx context.Context, id core.RaffleID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE raffles SET status = ? WHERE id = ? AND status = ?",
		raffle.StatusDrawing, id, raffle.StatusActive,
	)
	if err != nil {
		return false, fmt.Errorf("%w: claim raffle for draw: %v", core.ErrPersistence, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: claim raffle for draw: %v", core.ErrPersistence, err)
	}
	return n == 1, nil
}

func (s *Store) CompleteDraw(ctx context.Context, id core.RaffleID, status raffle.Status, winner *core.OwnerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var winnerVal any
	if winner != nil {
		winnerVal = string(*winner)
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE raffles SET status = ?, winner_id = ? WHERE id = ? AND status = ?",
		status, winnerVal, id, raffle.StatusDrawing,
	)
	if err != nil {
		return fmt.Errorf("%w: complete draw: %v", core.ErrPersistence, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: complete draw: %v", core.ErrPersistence, err)
	}
	if n == 0 {
		return core.ErrConcurrencyConflict
	}
	return nil
}

// ReleaseClaim flips drawing -> active, backing out of a claim whose
// draw failed before reaching a final status. A raffle already in a
// final status is left alone.
func (s *Store) ReleaseClaim(ctx context.Context, id core.RaffleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"UPDATE raffles SET status = ? WHERE id = ? AND status = ?",
		raffle.StatusActive, id, raffle.StatusDrawing,
	)
	if err != nil {
		return fmt.Errorf("%w: release draw claim: %v", core.ErrPersistence, err)
	}
	return nil
}

// =============================================================================
// TICKETS
// =============================================================================

func (s *Store) InsertTickets(ctx context.Context, tickets []raffle.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertTickets(ctx, s.db, tickets)
}

func (s *Store) insertTickets(ctx context.Context, q querier, tickets []raffle.Ticket) error {
	for _, t := range tickets {
		_, err := q.ExecContext(ctx,
			"INSERT INTO tickets (id, raffle_id, owner_id, provenance_tag, created_at) VALUES (?, ?, ?, ?, ?)",
			t.ID, t.RaffleID, t.OwnerID, t.ProvenanceTag, t.CreatedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("%w: insert ticket: %v", core.ErrPersistence, err)
		}
	}
	return nil
}

func (s *Store) TicketsByRaffle(ctx context.Context, id core.RaffleID) ([]raffle.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryTickets(ctx,
		"SELECT id, raffle_id, owner_id, provenance_tag, created_at FROM tickets WHERE raffle_id = ? ORDER BY created_at ASC, id ASC",
		id)
}

func (s *Store) TicketsByOwner(ctx context.Context, owner core.OwnerID) ([]raffle.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryTickets(ctx,
		"SELECT id, raffle_id, owner_id, provenance_tag, created_at FROM tickets WHERE owner_id = ? ORDER BY created_at ASC, id ASC",
		owner)
}

func (s *Store) queryTickets(ctx context.Context, query string, args ...any) ([]raffle.Ticket, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query tickets: %v", core.ErrPersistence, err)
	}
	defer rows.Close()

	var tickets []raffle.Ticket
	for rows.Next() {
		var (
			t         raffle.Ticket
			createdAt string
		)
		if err := rows.Scan(&t.ID, &t.RaffleID, &t.OwnerID, &t.ProvenanceTag, &createdAt); err != nil {
			return nil, fmt.Errorf("%w: scan ticket: %v", core.ErrPersistence, err)
		}
		t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

func (s *Store) CountTickets(ctx context.Context, id core.RaffleID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countTickets(ctx, s.db, id)
}

func (s *Store) countTickets(ctx context.Context, q querier, id core.RaffleID) (int64, error) {
	var n int64
	err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM tickets WHERE raffle_id = ?", id).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: count tickets: %v", core.ErrPersistence, err)
	}
	return n, nil
}

// =============================================================================
// COUPON STORE (coupon.Store interface)
// =============================================================================

func (s *Store) CouponByCode(ctx context.Context, code string) (coupon.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getCoupon(ctx, s.db, code)
}

func (s *Store) getCoupon(ctx context.Context, q querier, code string) (coupon.Coupon, error) {
	row := q.QueryRowContext(ctx,
		"SELECT id, code, kind, value, min_purchase, usage_limit, used_count, expires_at, created_at FROM coupons WHERE code = ?",
		strings.ToUpper(code))
	c, err := scanCoupon(row)
	if err == sql.ErrNoRows {
		return coupon.Coupon{}, core.ErrNotFound
	}
	if err != nil {
		return coupon.Coupon{}, fmt.Errorf("%w: query coupon: %v", core.ErrPersistence, err)
	}
	return c, nil
}

// IncrementCouponUsage bumps the counter while under the limit. A zero
// row count means exhausted; the database decides, not a value read
// earlier in the request.
func (s *Store) IncrementCouponUsage(ctx context.Context, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.incrementCoupon(ctx, s.db, code)
}

func (s *Store) incrementCoupon(ctx context.Context, q querier, code string) (bool, error) {
	res, err := q.ExecContext(ctx,
		"UPDATE coupons SET used_count = used_count + 1 WHERE code = ? AND (usage_limit IS NULL OR used_count < usage_limit)",
		strings.ToUpper(code),
	)
	if err != nil {
		return false, fmt.Errorf("%w: increment coupon usage: %v", core.ErrPersistence, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: increment coupon usage: %v", core.ErrPersistence, err)
	}
	return n == 1, nil
}

func (s *Store) Coupons(ctx context.Context) ([]coupon.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listCoupons(ctx, s.db)
}

func (s *Store) listCoupons(ctx context.Context, q querier) ([]coupon.Coupon, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT id, code, kind, value, min_purchase, usage_limit, used_count, expires_at, created_at FROM coupons ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("%w: query coupons: %v", core.ErrPersistence, err)
	}
	defer rows.Close()

	var coupons []coupon.Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan coupon: %v", core.ErrPersistence, err)
		}
		coupons = append(coupons, c)
	}
	return coupons, rows.Err()
}

func (s *Store) CreateCoupon(ctx context.Context, c coupon.Coupon) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createCoupon(ctx, s.db, c)
}

func (s *Store) createCoupon(ctx context.Context, q querier, c coupon.Coupon) error {
	var (
		limit     any
		expiresAt any
	)
	if c.UsageLimit != nil {
		limit = *c.UsageLimit
	}
	if c.ExpiresAt != nil {
		expiresAt = c.ExpiresAt.UTC().Format(time.RFC3339)
	}

	_, err := q.ExecContext(ctx,
		`INSERT INTO coupons (id, code, kind, value, min_purchase, usage_limit, used_count, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, strings.ToUpper(c.Code), c.Kind, c.Value.String(), c.MinPurchase.String(),
		limit, c.UsedCount, expiresAt, c.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: coupon code already exists", core.ErrValidation)
		}
		return fmt.Errorf("%w: create coupon: %v", core.ErrPersistence, err)
	}
	return nil
}

func (s *Store) DeleteCoupon(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteCoupon(ctx, s.db, id)
}

func (s *Store) deleteCoupon(ctx context.Context, q querier, id string) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM coupons WHERE id = ?", id); err != nil {
		return fmt.Errorf("%w: delete coupon: %v", core.ErrPersistence, err)
	}
	return nil
}

// =============================================================================
// NOTIFICATIONS (raffle.Notifier interface)
// =============================================================================

// Notification is a stored draw outcome record.
type Notification struct {
	ID        string
	OwnerID   core.OwnerID
	Title     string
	Message   string
	Read      bool
	CreatedAt time.Time
}

func (s *Store) Notify(ctx context.Context, owner core.OwnerID, title, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO notifications (id, owner_id, title, message, read, created_at) VALUES (?, ?, ?, ?, 0, ?)",
		core.NewID(), owner, title, message, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("%w: insert notification: %v", core.ErrPersistence, err)
	}
	return nil
}

// NotificationsByOwner returns the owner's notifications, newest first.
func (s *Store) NotificationsByOwner(ctx context.Context, owner core.OwnerID, limit int) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, owner_id, title, message, read, created_at FROM notifications WHERE owner_id = ? ORDER BY created_at DESC LIMIT ?",
		owner, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: query notifications: %v", core.ErrPersistence, err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var (
			n         Notification
			createdAt string
		)
		if err := rows.Scan(&n.ID, &n.OwnerID, &n.Title, &n.Message, &n.Read, &createdAt); err != nil {
			return nil, fmt.Errorf("%w: scan notification: %v", core.ErrPersistence, err)
		}
		n.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkNotificationRead flags one of the owner's notifications as read.
func (s *Store) MarkNotificationRead(ctx context.Context, owner core.OwnerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET read = 1 WHERE id = ? AND owner_id = ?", id, owner)
	if err != nil {
		return fmt.Errorf("%w: mark notification read: %v", core.ErrPersistence, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: mark notification read: %v", core.ErrPersistence, err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// =============================================================================
// TRANSACTIONAL UNITS OF WORK
// =============================================================================

// WithTx executes fn within a database transaction. The ticket exchange
// runs here: wallet debits and ticket inserts commit or roll back
// together.
func (s *Store) WithTx(ctx context.Context, fn func(raffle.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", core.ErrPersistence, err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx, parent: s}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("%w: commit transaction: %v", core.ErrPersistence, err)
	}
	return nil
}

// WithPurchaseTx executes fn within a database transaction covering the
// shop purchase: the coupon increment and wallet credits together.
func (s *Store) WithPurchaseTx(ctx context.Context, fn func(shop.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", core.ErrPersistence, err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx, parent: s}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("%w: commit transaction: %v", core.ErrPersistence, err)
	}
	return nil
}

// txStore is the transactional view handed to units of work. The parent
// mutex is held for the duration, so no further locking happens here.
type txStore struct {
	tx     *sql.Tx
	parent *Store
}

func (ts *txStore) Entry(ctx context.Context, owner core.OwnerID, asset core.AssetID) (wallet.Entry, error) {
	return ts.parent.getEntry(ctx, ts.tx, owner, asset)
}

func (ts *txStore) EntriesByOwner(ctx context.Context, owner core.OwnerID) ([]wallet.Entry, error) {
	return ts.parent.listEntries(ctx, ts.tx, owner)
}

func (ts *txStore) PutEntry(ctx context.Context, e wallet.Entry) error {
	return ts.parent.putEntry(ctx, ts.tx, e)
}

func (ts *txStore) DeleteEntry(ctx context.Context, owner core.OwnerID, asset core.AssetID) error {
	return ts.parent.deleteEntry(ctx, ts.tx, owner, asset)
}

func (ts *txStore) Assets(ctx context.Context) ([]wallet.Asset, error) {
	return ts.parent.listAssets(ctx, ts.tx)
}

func (ts *txStore) AssetByID(ctx context.Context, id core.AssetID) (wallet.Asset, error) {
	return ts.parent.getAsset(ctx, ts.tx, id)
}

func (ts *txStore) Raffle(ctx context.Context, id core.RaffleID) (raffle.Raffle, error) {
	return ts.parent.getRaffle(ctx, ts.tx, id)
}

func (ts *txStore) InsertTickets(ctx context.Context, tickets []raffle.Ticket) error {
	return ts.parent.insertTickets(ctx, ts.tx, tickets)
}

func (ts *txStore) CountTickets(ctx context.Context, id core.RaffleID) (int64, error) {
	return ts.parent.countTickets(ctx, ts.tx, id)
}

func (ts *txStore) CouponByCode(ctx context.Context, code string) (coupon.Coupon, error) {
	return ts.parent.getCoupon(ctx, ts.tx, code)
}

func (ts *txStore) IncrementCouponUsage(ctx context.Context, code string) (bool, error) {
	return ts.parent.incrementCoupon(ctx, ts.tx, code)
}

func (ts *txStore) Coupons(ctx context.Context) ([]coupon.Coupon, error) {
	return ts.parent.listCoupons(ctx, ts.tx)
}

func (ts *txStore) CreateCoupon(ctx context.Context, c coupon.Coupon) error {
	return ts.parent.createCoupon(ctx, ts.tx, c)
}

func (ts *txStore) DeleteCoupon(ctx context.Context, id string) error {
	return ts.parent.deleteCoupon(ctx, ts.tx, id)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"tickets", "notifications", "wallet_entries", "raffles", "coupons", "assets"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("%w: reset %s: %v", core.ErrPersistence, table, err)
		}
	}
	return nil
}

// Scan helpers

type rowScanner interface {
	Scan(dest ...any) error
}

// parseStoredDecimal re-hydrates a decimal column. A corrupt value is a
// persistence error, not a zero; zero prices would make downstream
// arithmetic silently wrong (or divide by zero).
func parseStoredDecimal(column, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: corrupt %s %q: %v", core.ErrPersistence, column, s, err)
	}
	return d, nil
}

func scanRaffle(row rowScanner) (raffle.Raffle, error) {
	var (
		r            raffle.Raffle
		description  sql.NullString
		imageURL     sql.NullString
		ticketPrice  string
		prizeValue   string
		drawDeadline string
		winnerID     sql.NullString
		createdAt    string
	)

	err := row.Scan(&r.ID, &r.Title, &description, &imageURL, &r.Category, &r.Rarity,
		&ticketPrice, &r.MaxTickets, &prizeValue, &drawDeadline, &r.Status, &winnerID, &createdAt)
	if err != nil {
		return r, err
	}

	r.Description = description.String
	r.ImageURL = imageURL.String
	if r.TicketPrice, err = parseStoredDecimal("ticket_price", ticketPrice); err != nil {
		return r, err
	}
	if r.PrizeValue, err = parseStoredDecimal("prize_value", prizeValue); err != nil {
		return r, err
	}
	r.DrawDeadline, _ = time.Parse(time.RFC3339, drawDeadline)
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if winnerID.Valid {
		w := core.OwnerID(winnerID.String)
		r.WinnerID = &w
	}
	return r, nil
}

func scanCoupon(row rowScanner) (coupon.Coupon, error) {
	var (
		c           coupon.Coupon
		value       string
		minPurchase string
		usageLimit  sql.NullInt64
		expiresAt   sql.NullString
		createdAt   string
	)

	err := row.Scan(&c.ID, &c.Code, &c.Kind, &value, &minPurchase,
		&usageLimit, &c.UsedCount, &expiresAt, &createdAt)
	if err != nil {
		return c, err
	}

	if c.Value, err = parseStoredDecimal("coupon value", value); err != nil {
		return c, err
	}
	if c.MinPurchase, err = parseStoredDecimal("min_purchase", minPurchase); err != nil {
		return c, err
	}
	if usageLimit.Valid {
		limit := usageLimit.Int64
		c.UsageLimit = &limit
	}
	if expiresAt.Valid && expiresAt.String != "" {
		t, _ := time.Parse(time.RFC3339, expiresAt.String)
		c.ExpiresAt = &t
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return c, nil
}

func scanAsset(row rowScanner) (wallet.Asset, error) {
	var (
		a        wallet.Asset
		price    string
		imageURL sql.NullString
	)
	if err := row.Scan(&a.ID, &a.Name, &a.Rarity, &price, &imageURL); err != nil {
		return a, err
	}
	var err error
	if a.Price, err = parseStoredDecimal("asset price", price); err != nil {
		return a, err
	}
	a.ImageURL = imageURL.String
	return a, nil
}
