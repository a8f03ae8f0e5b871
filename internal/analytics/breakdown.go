package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/agromarket/price-tracker/internal/model"
)

// MarketPerformance summarises one trader's submissions at one market.
type MarketPerformance struct {
	MarketID   string          `json:"market_id"`
	MarketName string          `json:"market_name"`
	Count      int             `json:"count"`
	Min        decimal.Decimal `json:"min"`
	Max        decimal.Decimal `json:"max"`
	Average    decimal.Decimal `json:"average"`
	Earliest   time.Time       `json:"earliest"`
	Latest     time.Time       `json:"latest"`
}

// MarketBreakdown groups a trader's full history by market. An empty
// commodityID includes every commodity. The most active markets come first;
// ties are ordered by market name, then ID.
func MarketBreakdown(history []model.PriceDataExpanded, commodityID string) []MarketPerformance {
	type agg struct {
		perf  MarketPerformance
		total decimal.Decimal
	}
	groups := make(map[string]*agg)

	for _, h := range history {
		if commodityID != "" && h.CommodityID != commodityID {
			continue
		}
		g, ok := groups[h.MarketID]
		if !ok {
			g = &agg{perf: MarketPerformance{
				MarketID:   h.MarketID,
				MarketName: h.MarketName,
				Min:        h.Price,
				Max:        h.Price,
				Earliest:   h.DateSubmitted,
				Latest:     h.DateSubmitted,
			}}
			groups[h.MarketID] = g
		}
		g.perf.Count++
		g.total = g.total.Add(h.Price)
		if h.Price.LessThan(g.perf.Min) {
			g.perf.Min = h.Price
		}
		if h.Price.GreaterThan(g.perf.Max) {
			g.perf.Max = h.Price
		}
		if h.DateSubmitted.Before(g.perf.Earliest) {
			g.perf.Earliest = h.DateSubmitted
		}
		if h.DateSubmitted.After(g.perf.Latest) {
			g.perf.Latest = h.DateSubmitted
		}
	}

	out := make([]MarketPerformance, 0, len(groups))
	for _, g := range groups {
		g.perf.Average = g.total.Div(decimal.NewFromInt(int64(g.perf.Count)))
		out = append(out, g.perf)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].MarketName != out[j].MarketName {
			return out[i].MarketName < out[j].MarketName
		}
		return out[i].MarketID < out[j].MarketID
	})
	return out
}
