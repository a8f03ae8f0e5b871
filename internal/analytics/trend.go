package analytics

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/agromarket/price-tracker/internal/model"
)

var hundred = decimal.NewFromInt(100)

// Direction compares two observations.
func Direction(previous, current decimal.Decimal) model.Direction {
	switch current.Cmp(previous) {
	case 1:
		return model.DirectionUp
	case -1:
		return model.DirectionDown
	}
	return model.DirectionStable
}

// PercentChange returns (to - from) / from × 100. A zero baseline yields 0.
func PercentChange(from, to decimal.Decimal) float64 {
	if from.IsZero() {
		return 0
	}
	return to.Sub(from).Div(from).Mul(hundred).InexactFloat64()
}

// Trend compares the newest record with the newest record on a strictly
// earlier date. Only those two observations count; there is no smoothing.
// Fewer than two distinct dates yields DirectionStable.
func Trend[T Priced](records []T) model.Direction {
	latest, ok := Newest(records)
	if !ok {
		return model.DirectionStable
	}
	latestRec := latest.Record()

	var previous model.PriceRecord
	found := false
	for _, r := range records {
		rec := r.Record()
		if !rec.DateSubmitted.Before(latestRec.DateSubmitted) {
			continue
		}
		if !found || rec.NewerThan(previous) {
			previous = rec
			found = true
		}
	}
	if !found {
		return model.DirectionStable
	}
	return Direction(previous.Price, latestRec.Price)
}

// Trending pairs each current latest price with the baseline for the same
// pair (the latest record before the window opened) and computes the signed
// percentage change. Pairs without a baseline, or with a zero baseline,
// report 0 and DirectionStable. Results are sorted by absolute change
// descending, then newest first.
func Trending(current, baseline []model.PriceDataExpanded) []model.TrendingPrice {
	base := make(map[model.Pair]model.PriceRecord, len(baseline))
	for _, b := range LatestPerPair(baseline) {
		base[b.Pair()] = b.PriceRecord
	}

	out := make([]model.TrendingPrice, 0, len(current))
	for _, c := range LatestPerPair(current) {
		tp := model.TrendingPrice{
			PriceDataExpanded: c,
			TrendDirection:    model.DirectionStable,
		}
		if b, ok := base[c.Pair()]; ok {
			tp.HasBaseline = true
			tp.BaselinePrice = b.Price
			if !b.Price.IsZero() {
				tp.Trend = PercentChange(b.Price, c.Price)
				tp.TrendDirection = Direction(b.Price, c.Price)
			}
		}
		out = append(out, tp)
	}

	sort.SliceStable(out, func(i, j int) bool {
		ai, aj := abs(out[i].Trend), abs(out[j].Trend)
		if ai != aj {
			return ai > aj
		}
		return out[i].NewerThan(out[j].PriceRecord)
	})
	return out
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
