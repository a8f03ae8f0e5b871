package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/agromarket/price-tracker/internal/model"
)

// uniformIntensity is reported when every reporting market quotes the same
// price.
const uniformIntensity = 0.5

// HeatmapCell is one market's position in the price range of a commodity.
type HeatmapCell struct {
	Market      model.Market    `json:"market"`
	HasData     bool            `json:"has_data"`
	Price       decimal.Decimal `json:"price"`
	Date        time.Time       `json:"date"`
	Intensity   float64         `json:"intensity"`     // 0 = cheapest, 1 = priciest
	DiffFromAvg float64         `json:"diff_from_avg"` // signed percent
}

// Heatmap places each market on the price range of one commodity.
//
// The latest price per market is taken from latest (reduced again, so a raw
// history works too). min, max and mean are computed over the listed markets
// that report a price: intensity = (price - min) / (max - min), or 0.5 for
// all cells when max == min. Cells are ordered cheapest first; markets
// without data follow, by name.
func Heatmap(latest []model.PriceDataExpanded, markets []model.Market, commodityID string) []HeatmapCell {
	byMarket := make(map[string]model.PriceDataExpanded)
	for _, p := range LatestPerPair(FilterCommodity(latest, commodityID)) {
		byMarket[p.MarketID] = p
	}

	cells := make([]HeatmapCell, 0, len(markets))
	var reporting []decimal.Decimal
	for _, m := range markets {
		cell := HeatmapCell{Market: m}
		if p, ok := byMarket[m.ID]; ok {
			cell.HasData = true
			cell.Price = p.Price
			cell.Date = p.DateSubmitted
			reporting = append(reporting, p.Price)
		}
		cells = append(cells, cell)
	}

	if len(reporting) > 0 {
		lo, hi, total := reporting[0], reporting[0], decimal.Zero
		for _, p := range reporting {
			total = total.Add(p)
			if p.LessThan(lo) {
				lo = p
			}
			if p.GreaterThan(hi) {
				hi = p
			}
		}
		mean := total.Div(decimal.NewFromInt(int64(len(reporting))))
		span := hi.Sub(lo)

		for i := range cells {
			if !cells[i].HasData {
				continue
			}
			if span.IsZero() {
				cells[i].Intensity = uniformIntensity
			} else {
				cells[i].Intensity = cells[i].Price.Sub(lo).Div(span).InexactFloat64()
			}
			cells[i].DiffFromAvg = PercentChange(mean, cells[i].Price)
		}
	}

	sort.SliceStable(cells, func(i, j int) bool {
		a, b := cells[i], cells[j]
		if a.HasData != b.HasData {
			return a.HasData
		}
		if a.HasData && !a.Price.Equal(b.Price) {
			return a.Price.LessThan(b.Price)
		}
		return a.Market.Name < b.Market.Name
	})
	return cells
}
