package model

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

var (
	ErrNegativePrice = errors.New("model: price must not be negative")
	ErrUnitTooShort  = errors.New("model: unit must be at least 2 characters")
	ErrEmptyName     = errors.New("model: name is required")
	ErrMissingRef    = errors.New("model: reference id is required")
	ErrInvalidRole   = errors.New("model: invalid role")
	ErrBadQuantity   = errors.New("model: quantity must be positive")
)

// MinUnitLength is the shortest accepted commodity unit.
const MinUnitLength = 2

// ValidatePrice rejects negative amounts.
func ValidatePrice(field string, p decimal.Decimal) error {
	if p.IsNegative() {
		return fmt.Errorf("%w: %s=%s", ErrNegativePrice, field, p.String())
	}
	return nil
}

// Normalize trims whitespace and checks required fields.
func (m *Market) Normalize() error {
	m.Name = strings.TrimSpace(m.Name)
	m.Location = strings.TrimSpace(m.Location)
	if m.Name == "" {
		return fmt.Errorf("%w: market", ErrEmptyName)
	}
	return nil
}

// Normalize trims whitespace and checks required fields.
func (c *Category) Normalize() error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return fmt.Errorf("%w: category", ErrEmptyName)
	}
	return nil
}

// Normalize trims whitespace, enforces the minimum unit length and
// defaults an empty category.
func (c *Commodity) Normalize() error {
	c.Name = strings.TrimSpace(c.Name)
	c.Unit = strings.TrimSpace(c.Unit)
	c.Category = strings.TrimSpace(c.Category)
	if c.Name == "" {
		return fmt.Errorf("%w: commodity", ErrEmptyName)
	}
	if utf8.RuneCountInString(c.Unit) < MinUnitLength {
		return fmt.Errorf("%w: %q", ErrUnitTooShort, c.Unit)
	}
	if c.Category == "" {
		c.Category = DefaultCategory
	}
	return nil
}

// Validate checks references and the price of a new record.
func (p *PriceRecord) Validate() error {
	if p.MarketID == "" || p.CommodityID == "" || p.TraderID == "" {
		return fmt.Errorf("%w: market_id, commodity_id and trader_id", ErrMissingRef)
	}
	return ValidatePrice("price", p.Price)
}

// Validate checks a farm-gate submission.
func (f *FarmgateRecord) Validate() error {
	f.Location = strings.TrimSpace(f.Location)
	if f.CommodityID == "" {
		return fmt.Errorf("%w: commodity_id", ErrMissingRef)
	}
	if err := ValidatePrice("farm_gate_price", f.FarmGatePrice); err != nil {
		return err
	}
	return ValidatePrice("transport_cost", f.TransportCost)
}

// IsValidation reports whether err is one of the model validation errors.
func IsValidation(err error) bool {
	return errors.Is(err, ErrNegativePrice) ||
		errors.Is(err, ErrUnitTooShort) ||
		errors.Is(err, ErrEmptyName) ||
		errors.Is(err, ErrMissingRef) ||
		errors.Is(err, ErrInvalidRole) ||
		errors.Is(err, ErrBadQuantity)
}
