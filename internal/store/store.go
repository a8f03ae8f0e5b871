// Package store defines the persistence interface for the price tracker.
// Implementations include PostgreSQL, MongoDB (document collections), Redis
// (read-through cache for reference data) and in-memory (for testing and
// demos).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/agromarket/price-tracker/internal/model"
)

var (
	// ErrNotFound is returned when a lookup by ID matches no document.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned when creating a document that already exists.
	ErrConflict = errors.New("store: already exists")
)

// Collection names, shared by every backend.
const (
	CollectionMarkets       = "markets"
	CollectionCommodities   = "commodities"
	CollectionPrices        = "prices"
	CollectionCategories    = "categories"
	CollectionUsers         = "users"
	CollectionNotifications = "notifications"
	CollectionFarmgate      = "farmgate_prices"
)

// PriceQuery selects price records. Zero fields are not filtered on.
// Results are always ordered by DateSubmitted descending, then ID
// descending.
type PriceQuery struct {
	TraderID    string
	CommodityID string
	MarketID    string
	Since       time.Time // DateSubmitted >= Since
	Before      time.Time // DateSubmitted < Before
	Limit       int
}

// Match reports whether p satisfies the filters (Limit aside).
func (q PriceQuery) Match(p model.PriceRecord) bool {
	if q.TraderID != "" && p.TraderID != q.TraderID {
		return false
	}
	if q.CommodityID != "" && p.CommodityID != q.CommodityID {
		return false
	}
	if q.MarketID != "" && p.MarketID != q.MarketID {
		return false
	}
	if !q.Since.IsZero() && p.DateSubmitted.Before(q.Since) {
		return false
	}
	if !q.Before.IsZero() && !p.DateSubmitted.Before(q.Before) {
		return false
	}
	return true
}

// Store is the persistence interface. Every method takes a context; lookups
// by ID return ErrNotFound, duplicate creates return ErrConflict. Writes are
// single-document; no backend is assumed to offer multi-document
// transactions.
type Store interface {
	// --- Markets ---

	CreateMarket(ctx context.Context, m *model.Market) error
	GetMarket(ctx context.Context, id string) (*model.Market, error)
	ListMarkets(ctx context.Context) ([]model.Market, error)
	UpdateMarket(ctx context.Context, m *model.Market) error
	DeleteMarket(ctx context.Context, id string) error

	// --- Categories (no update) ---

	CreateCategory(ctx context.Context, c *model.Category) error
	ListCategories(ctx context.Context) ([]model.Category, error)
	DeleteCategory(ctx context.Context, id string) error

	// --- Commodities ---

	CreateCommodity(ctx context.Context, c *model.Commodity) error
	GetCommodity(ctx context.Context, id string) (*model.Commodity, error)
	ListCommodities(ctx context.Context) ([]model.Commodity, error)
	UpdateCommodity(ctx context.Context, c *model.Commodity) error
	DeleteCommodity(ctx context.Context, id string) error

	// --- Price records ---

	// InsertPrice appends a price record.
	InsertPrice(ctx context.Context, p *model.PriceRecord) error

	// GetPrice retrieves a price record by its ID.
	GetPrice(ctx context.Context, id string) (*model.PriceRecord, error)

	// UpdatePrice overwrites price and DateSubmitted of an existing record.
	UpdatePrice(ctx context.Context, id string, price decimal.Decimal, at time.Time) (*model.PriceRecord, error)

	// ListPrices returns records matching q, newest first.
	ListPrices(ctx context.Context, q PriceQuery) ([]model.PriceRecord, error)

	// --- Farm-gate prices (append-only) ---

	InsertFarmgate(ctx context.Context, f *model.FarmgateRecord) error
	ListFarmgate(ctx context.Context, commodityID string) ([]model.FarmgateRecord, error)

	// --- Users ---

	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)

	// --- Notifications ---

	InsertNotification(ctx context.Context, n *model.Notification) error
	ListNotifications(ctx context.Context, userID string) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id string) error
}
