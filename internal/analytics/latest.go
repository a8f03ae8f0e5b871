// Package analytics turns raw price records into the derived views the
// frontend renders: latest price per pair, per-commodity statistics, trend
// direction, heatmap intensity, trader breakdowns and basket totals.
//
// Every function is pure and synchronous. None of them fail: empty input
// yields empty output, and groups with no records are omitted rather than
// reported with undefined averages.
//
// All monetary values use shopspring/decimal — never float64 for money.
// Ratios (intensity, percentages) are float64 because they are presentation
// values, not amounts.
package analytics

import (
	"sort"

	"github.com/agromarket/price-tracker/internal/model"
)

// Priced is satisfied by model.PriceRecord and every type embedding it.
type Priced interface {
	Record() model.PriceRecord
}

// LatestPerPair reduces records to one per (commodityID, marketID) pair,
// keeping the record with the greatest DateSubmitted. Equal timestamps are
// broken by the greater record ID so the result does not depend on input
// order. Output is sorted newest first.
func LatestPerPair[T Priced](records []T) []T {
	latest := make(map[model.Pair]T, len(records))
	for _, r := range records {
		rec := r.Record()
		existing, ok := latest[rec.Pair()]
		if !ok || rec.NewerThan(existing.Record()) {
			latest[rec.Pair()] = r
		}
	}

	out := make([]T, 0, len(latest))
	for _, r := range latest {
		out = append(out, r)
	}
	SortNewestFirst(out)
	return out
}

// SortNewestFirst orders records by DateSubmitted descending, then ID
// descending.
func SortNewestFirst[T Priced](records []T) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Record().NewerThan(records[j].Record())
	})
}

// Newest returns the newest record, or false for empty input.
func Newest[T Priced](records []T) (T, bool) {
	var best T
	found := false
	for _, r := range records {
		if !found || r.Record().NewerThan(best.Record()) {
			best = r
			found = true
		}
	}
	return best, found
}

// FilterCommodity keeps the records for one commodity.
func FilterCommodity[T Priced](records []T, commodityID string) []T {
	var out []T
	for _, r := range records {
		if r.Record().CommodityID == commodityID {
			out = append(out, r)
		}
	}
	return out
}

// FilterMarket keeps the records for one market.
func FilterMarket[T Priced](records []T, marketID string) []T {
	var out []T
	for _, r := range records {
		if r.Record().MarketID == marketID {
			out = append(out, r)
		}
	}
	return out
}
