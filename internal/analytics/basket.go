package analytics

import (
	"github.com/shopspring/decimal"

	"github.com/agromarket/price-tracker/internal/model"
)

// BasketItem is one requested commodity and quantity.
type BasketItem struct {
	CommodityID string          `json:"commodity_id"`
	Quantity    decimal.Decimal `json:"quantity"`
}

// BasketLine is a priced basket item.
type BasketLine struct {
	CommodityID   string          `json:"commodity_id"`
	CommodityName string          `json:"commodity_name"`
	Unit          string          `json:"unit"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Markets       int             `json:"markets"` // markets averaged into UnitPrice
	Priced        bool            `json:"priced"`
}

// BasketSummary is the estimated cost of a basket.
type BasketSummary struct {
	Lines []BasketLine    `json:"lines"`
	Total decimal.Decimal `json:"total"`
}

// Basket prices each item at the arithmetic mean of the latest price in
// every market reporting the commodity, not the cheapest market. Items with
// no reported price are kept with a zero unit price and Priced=false.
// Total = Σ quantity × unit price.
func Basket(items []BasketItem, latest []model.PriceDataExpanded) BasketSummary {
	reduced := LatestPerPair(latest)
	summary := BasketSummary{Lines: make([]BasketLine, 0, len(items)), Total: decimal.Zero}

	for _, item := range items {
		line := BasketLine{
			CommodityID:   item.CommodityID,
			CommodityName: model.UnknownName,
			Unit:          model.UnknownUnit,
			Quantity:      item.Quantity,
			UnitPrice:     decimal.Zero,
		}
		prices := FilterCommodity(reduced, item.CommodityID)
		if mean, ok := Mean(prices); ok {
			line.UnitPrice = mean
			line.Markets = len(prices)
			line.Priced = true
			line.CommodityName = prices[0].CommodityName
			line.Unit = prices[0].CommodityUnit
		}
		line.Subtotal = item.Quantity.Mul(line.UnitPrice)
		summary.Total = summary.Total.Add(line.Subtotal)
		summary.Lines = append(summary.Lines, line)
	}
	return summary
}
