package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/agromarket/price-tracker/internal/model"
)

// CommodityStats summarises every record of one commodity.
type CommodityStats struct {
	CommodityID  string          `json:"commodity_id"`
	Name         string          `json:"name"`
	Unit         string          `json:"unit"`
	Category     string          `json:"category"`
	Image        string          `json:"image,omitempty"`
	Count        int             `json:"count"`
	Average      decimal.Decimal `json:"average"`
	Min          decimal.Decimal `json:"min"`
	Max          decimal.Decimal `json:"max"`
	LatestUpdate time.Time       `json:"latest_update"`
	Trend        model.Direction `json:"trend"`
}

// CommodityStatistics groups records by commodity. Output is sorted by name,
// then ID.
func CommodityStatistics(records []model.PriceDataExpanded) []CommodityStats {
	groups := make(map[string][]model.PriceDataExpanded)
	var order []string
	for _, r := range records {
		if _, ok := groups[r.CommodityID]; !ok {
			order = append(order, r.CommodityID)
		}
		groups[r.CommodityID] = append(groups[r.CommodityID], r)
	}

	out := make([]CommodityStats, 0, len(order))
	for _, id := range order {
		if s, ok := summarize(groups[id]); ok {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].CommodityID < out[j].CommodityID
	})
	return out
}

// StatsFor summarises one commodity. ok is false when it has no records.
func StatsFor(records []model.PriceDataExpanded, commodityID string) (CommodityStats, bool) {
	return summarize(FilterCommodity(records, commodityID))
}

func summarize(group []model.PriceDataExpanded) (CommodityStats, bool) {
	if len(group) == 0 {
		return CommodityStats{}, false
	}

	latest, _ := Newest(group)
	s := CommodityStats{
		CommodityID: latest.CommodityID,
		Name:        latest.CommodityName,
		Unit:        latest.CommodityUnit,
		Category:    latest.CommodityCategory,
		Image:       latest.CommodityImage,
		Min:         group[0].Price,
		Max:         group[0].Price,
	}

	total := decimal.Zero
	for _, r := range group {
		total = total.Add(r.Price)
		if r.Price.LessThan(s.Min) {
			s.Min = r.Price
		}
		if r.Price.GreaterThan(s.Max) {
			s.Max = r.Price
		}
		if r.DateSubmitted.After(s.LatestUpdate) {
			s.LatestUpdate = r.DateSubmitted
		}
	}
	s.Count = len(group)
	s.Average = total.Div(decimal.NewFromInt(int64(s.Count)))
	s.Trend = Trend(group)
	return s, true
}

// Mean returns the arithmetic mean of the record prices. ok is false for
// empty input.
func Mean[T Priced](records []T) (decimal.Decimal, bool) {
	if len(records) == 0 {
		return decimal.Zero, false
	}
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.Record().Price)
	}
	return total.Div(decimal.NewFromInt(int64(len(records)))), true
}
