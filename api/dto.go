/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types
  decouple the internal domain model from the external API contract,
  allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  All monetary fields are decimal.Decimal, which marshals to a JSON
  string ("12.50"). Clients must not parse these as floats.

VALIDATION:
  Validation is done in handlers and engines, not in DTOs. DTOs are
  pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/warp/raffle-engine/coupon"
	"github.com/warp/raffle-engine/raffle"
	"github.com/warp/raffle-engine/store/sqlite"
	"github.com/warp/raffle-engine/wallet"
)

// =============================================================================
// RAFFLE TYPES
// =============================================================================

// RaffleDTO represents a raffle in API responses.
type RaffleDTO struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Description  string          `json:"description,omitempty"`
	ImageURL     string          `json:"image_url,omitempty"`
	Category     string          `json:"category"`
	Rarity       string          `json:"rarity"`
	TicketPrice  decimal.Decimal `json:"ticket_price"`
	MaxTickets   int64           `json:"max_tickets"`
	TicketsSold  int64           `json:"tickets_sold"`
	PrizeValue   decimal.Decimal `json:"prize_value"`
	DrawDeadline string          `json:"draw_deadline"`
	Status       raffle.Status   `json:"status"`
	WinnerID     *string         `json:"winner_id,omitempty"`
	CreatedAt    string          `json:"created_at,omitempty"`
}

// CreateRaffleRequest is the admin request to create a raffle.
type CreateRaffleRequest struct {
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	ImageURL     string          `json:"image_url"`
	Category     string          `json:"category"`
	Rarity       string          `json:"rarity"`
	TicketPrice  decimal.Decimal `json:"ticket_price"`
	MaxTickets   int64           `json:"max_tickets"`
	PrizeValue   decimal.Decimal `json:"prize_value"`
	DrawDeadline string          `json:"draw_deadline"`
}

// JoinRaffleRequest selects wallet assets to exchange for tickets.
// Spend maps asset ID to the quantity to debit.
type JoinRaffleRequest struct {
	Spend map[string]int64 `json:"spend"`
}

// JoinRaffleResponse reports a completed exchange.
type JoinRaffleResponse struct {
	RaffleID      string          `json:"raffle_id"`
	TicketsIssued int64           `json:"tickets_issued"`
	TotalValue    decimal.Decimal `json:"total_value"`
}

// ParticipantDTO is one owner's aggregated stake in a raffle.
type ParticipantDTO struct {
	OwnerID     string `json:"owner_id"`
	TicketCount int64  `json:"ticket_count"`
}

// ParticipationDTO is one raffle the owner holds tickets in.
type ParticipationDTO struct {
	Raffle           RaffleDTO       `json:"raffle"`
	TicketsHeld      int64           `json:"tickets_held"`
	ValueContributed decimal.Decimal `json:"value_contributed"`
}

// DrawResultDTO reports the outcome of a draw invocation.
type DrawResultDTO struct {
	RaffleID     string             `json:"raffle_id"`
	Outcome      raffle.DrawOutcome `json:"outcome"`
	WinnerID     *string            `json:"winner_id,omitempty"`
	TotalTickets int64              `json:"total_tickets"`
	DrawnAt      string             `json:"drawn_at,omitempty"`
}

// =============================================================================
// WALLET TYPES
// =============================================================================

// WalletEntryDTO is a catalog-merged wallet row.
type WalletEntryDTO struct {
	AssetID      string          `json:"asset_id"`
	Name         string          `json:"name"`
	Rarity       string          `json:"rarity"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	PaidPrice    decimal.Decimal `json:"paid_price"`
	Quantity     int64           `json:"quantity"`
}

// AdjustWalletRequest credits or debits an owner's entry (admin).
type AdjustWalletRequest struct {
	AssetID  string `json:"asset_id"`
	Quantity int64  `json:"quantity"`
}

// AssetDTO is a catalog record.
type AssetDTO struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Rarity   string          `json:"rarity"`
	Price    decimal.Decimal `json:"price"`
	ImageURL string          `json:"image_url,omitempty"`
}

// =============================================================================
// SHOP TYPES
// =============================================================================

// BuyRequest purchases catalog assets, optionally with a coupon.
type BuyRequest struct {
	Items      []BuyItem `json:"items"`
	CouponCode string    `json:"coupon_code,omitempty"`
}

// BuyItem selects one catalog asset and a quantity.
type BuyItem struct {
	AssetID  string `json:"asset_id"`
	Quantity int64  `json:"quantity"`
}

// ReceiptDTO reports a completed purchase.
type ReceiptDTO struct {
	TotalCost decimal.Decimal `json:"total_cost"`
	Discount  decimal.Decimal `json:"discount"`
	FinalCost decimal.Decimal `json:"final_cost"`
	Coupon    string          `json:"coupon,omitempty"`
}

// =============================================================================
// COUPON TYPES
// =============================================================================

// ValidateCouponRequest checks a code against a cart total.
type ValidateCouponRequest struct {
	Code      string          `json:"code"`
	CartTotal decimal.Decimal `json:"cart_total"`
}

// QuoteDTO is the result of validating a coupon.
type QuoteDTO struct {
	Code     string          `json:"code"`
	Discount decimal.Decimal `json:"discount"`
	NewTotal decimal.Decimal `json:"new_total"`
}

// CouponDTO represents a coupon in admin responses.
type CouponDTO struct {
	ID          string          `json:"id"`
	Code        string          `json:"code"`
	Kind        string          `json:"kind"`
	Value       decimal.Decimal `json:"value"`
	MinPurchase decimal.Decimal `json:"min_purchase"`
	UsageLimit  *int64          `json:"usage_limit,omitempty"`
	UsedCount   int64           `json:"used_count"`
	ExpiresAt   *string         `json:"expires_at,omitempty"`
	CreatedAt   string          `json:"created_at,omitempty"`
}

// CreateCouponRequest is the admin request to create a coupon.
type CreateCouponRequest struct {
	Code        string          `json:"code"`
	Kind        string          `json:"kind"`
	Value       decimal.Decimal `json:"value"`
	MinPurchase decimal.Decimal `json:"min_purchase"`
	UsageLimit  *int64          `json:"usage_limit,omitempty"`
	ExpiresAt   *string         `json:"expires_at,omitempty"`
}

// =============================================================================
// NOTIFICATION TYPES
// =============================================================================

// NotificationDTO is a stored draw outcome record.
type NotificationDTO struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"created_at"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func raffleDTO(r raffle.Raffle, sold int64) RaffleDTO {
	dto := RaffleDTO{
		ID:           string(r.ID),
		Title:        r.Title,
		Description:  r.Description,
		ImageURL:     r.ImageURL,
		Category:     r.Category,
		Rarity:       r.Rarity,
		TicketPrice:  r.TicketPrice,
		MaxTickets:   r.MaxTickets,
		TicketsSold:  sold,
		PrizeValue:   r.PrizeValue,
		DrawDeadline: r.DrawDeadline.Format(timeFormat),
		Status:       r.Status,
		CreatedAt:    r.CreatedAt.Format(timeFormat),
	}
	if r.WinnerID != nil {
		w := string(*r.WinnerID)
		dto.WinnerID = &w
	}
	return dto
}

func walletEntryDTO(v wallet.View) WalletEntryDTO {
	return WalletEntryDTO{
		AssetID:      string(v.AssetID),
		Name:         v.Name,
		Rarity:       v.Rarity,
		CurrentPrice: v.CurrentPrice,
		PaidPrice:    v.PaidPrice,
		Quantity:     v.Quantity,
	}
}

func assetDTO(a wallet.Asset) AssetDTO {
	return AssetDTO{
		ID:       string(a.ID),
		Name:     a.Name,
		Rarity:   a.Rarity,
		Price:    a.Price,
		ImageURL: a.ImageURL,
	}
}

func couponDTO(c coupon.Coupon) CouponDTO {
	dto := CouponDTO{
		ID:          c.ID,
		Code:        c.Code,
		Kind:        string(c.Kind),
		Value:       c.Value,
		MinPurchase: c.MinPurchase,
		UsageLimit:  c.UsageLimit,
		UsedCount:   c.UsedCount,
		CreatedAt:   c.CreatedAt.Format(timeFormat),
	}
	if c.ExpiresAt != nil {
		s := c.ExpiresAt.Format(timeFormat)
		dto.ExpiresAt = &s
	}
	return dto
}

func notificationDTO(n sqlite.Notification) NotificationDTO {
	return NotificationDTO{
		ID:        n.ID,
		Title:     n.Title,
		Message:   n.Message,
		Read:      n.Read,
		CreatedAt: n.CreatedAt.Format(timeFormat),
	}
}
