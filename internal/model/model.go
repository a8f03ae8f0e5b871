// Package model defines the core domain types shared across the price tracker.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Placeholders used when a price record references a market or commodity
// that no longer exists. Deletes never cascade, so joins must tolerate them.
const (
	UnknownName     = "Unknown"
	UnknownUnit     = "?"
	DefaultCategory = "Other"
)

// Market is a physical market where traders observe prices.
type Market struct {
	ID        string    `json:"id" bson:"_id" db:"id"`
	Name      string    `json:"name" bson:"name" db:"name"`
	Location  string    `json:"location" bson:"location" db:"location"`
	CreatedAt time.Time `json:"created_at" bson:"created_at" db:"created_at"`
}

// Category groups commodities. Commodities reference it by name.
type Category struct {
	ID   string `json:"id" bson:"_id" db:"id"`
	Name string `json:"name" bson:"name" db:"name"`
}

// Commodity is a tradable good. Unit is free text ("kg", "50kg Bag").
// Image is either an http(s) URL or a data URI.
type Commodity struct {
	ID       string `json:"id" bson:"_id" db:"id"`
	Name     string `json:"name" bson:"name" db:"name"`
	Unit     string `json:"unit" bson:"unit" db:"unit"`
	Category string `json:"category" bson:"category" db:"category"`
	Image    string `json:"image,omitempty" bson:"image,omitempty" db:"image"`
}

// PriceRecord is one observed price for a (commodity, market) pair.
// Records are never deleted; an update re-stamps DateSubmitted.
// Schema: {market, commodity, trader, price, dateSubmitted}
type PriceRecord struct {
	ID            string          `json:"id" db:"id"`
	MarketID      string          `json:"market_id" db:"market_id"`
	CommodityID   string          `json:"commodity_id" db:"commodity_id"`
	TraderID      string          `json:"trader_id" db:"trader_id"`
	Price         decimal.Decimal `json:"price" db:"price"`
	DateSubmitted time.Time       `json:"date_submitted" db:"date_submitted"`
}

// Pair identifies one comparable price series.
type Pair struct {
	CommodityID string
	MarketID    string
}

// Pair returns the (commodity, market) key of the record.
func (p PriceRecord) Pair() Pair {
	return Pair{CommodityID: p.CommodityID, MarketID: p.MarketID}
}

// Record returns the bare price record. Types embedding PriceRecord get it
// promoted, which lets the analytics helpers accept either form.
func (p PriceRecord) Record() PriceRecord {
	return p
}

// NewerThan reports whether p supersedes o: a later DateSubmitted, or the
// same instant and a greater ID.
func (p PriceRecord) NewerThan(o PriceRecord) bool {
	if !p.DateSubmitted.Equal(o.DateSubmitted) {
		return p.DateSubmitted.After(o.DateSubmitted)
	}
	return p.ID > o.ID
}

// PriceDataExpanded is a price record decorated with reference data.
type PriceDataExpanded struct {
	PriceRecord
	MarketName        string `json:"market_name"`
	CommodityName     string `json:"commodity_name"`
	CommodityUnit     string `json:"commodity_unit"`
	CommodityCategory string `json:"commodity_category"`
	CommodityImage    string `json:"commodity_image,omitempty"`
	TraderName        string `json:"trader_name,omitempty"`
}

// Direction is the qualitative movement between two observations.
type Direction string

const (
	DirectionUp     Direction = "up"
	DirectionDown   Direction = "down"
	DirectionStable Direction = "stable"
)

// TrendingPrice is a latest price together with its change against the
// baseline observed before the trend window.
type TrendingPrice struct {
	PriceDataExpanded
	Trend          float64         `json:"trend"` // signed percent
	TrendDirection Direction       `json:"trend_direction"`
	BaselinePrice  decimal.Decimal `json:"baseline_price"`
	HasBaseline    bool            `json:"has_baseline"`
}

// FarmgateRecord is a price quoted directly at the farm. Append-only.
type FarmgateRecord struct {
	ID            string          `json:"id" db:"id"`
	CommodityID   string          `json:"commodity_id" db:"commodity_id"`
	FarmerID      string          `json:"farmer_id,omitempty" db:"farmer_id"`
	Location      string          `json:"location" db:"location"`
	FarmGatePrice decimal.Decimal `json:"farm_gate_price" db:"farm_gate_price"`
	TransportCost decimal.Decimal `json:"transport_cost" db:"transport_cost"`
	DateSubmitted time.Time       `json:"date_submitted" db:"date_submitted"`
}

// User is the reference-data record that carries an identity's role.
// It shares its ID with the identity service account.
type User struct {
	ID        string    `json:"id" bson:"_id" db:"id"`
	Name      string    `json:"name" bson:"name" db:"name"`
	Email     string    `json:"email" bson:"email" db:"email"`
	Role      Role      `json:"role" bson:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" bson:"created_at" db:"created_at"`
}

// NotificationType classifies a notification.
type NotificationType string

const (
	NotificationAlert       NotificationType = "alert"
	NotificationInfo        NotificationType = "info"
	NotificationSuccess     NotificationType = "success"
	NotificationPriceUpdate NotificationType = "price_update"
	NotificationReport      NotificationType = "report"
)

// Notification is a message addressed to one user.
type Notification struct {
	ID        string           `json:"id" bson:"_id" db:"id"`
	UserID    string           `json:"user_id" bson:"user_id" db:"user_id"`
	Message   string           `json:"message" bson:"message" db:"message"`
	Type      NotificationType `json:"type" bson:"type" db:"type"`
	Read      bool             `json:"read" bson:"read" db:"read"`
	CreatedAt time.Time        `json:"created_at" bson:"created_at" db:"created_at"`
}
