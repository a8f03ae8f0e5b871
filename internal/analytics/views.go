package analytics

import (
	"sort"
	"strings"

	"github.com/agromarket/price-tracker/internal/model"
)

// CategoryGroup is the latest prices of one commodity category.
type CategoryGroup struct {
	Category string                    `json:"category"`
	Prices   []model.PriceDataExpanded `json:"prices"`
}

// GroupByCategory buckets prices by commodity category, categories sorted
// alphabetically. Records without a category land in "Other".
func GroupByCategory(prices []model.PriceDataExpanded) []CategoryGroup {
	idx := make(map[string]int)
	var groups []CategoryGroup
	for _, p := range prices {
		cat := p.CommodityCategory
		if cat == "" {
			cat = model.DefaultCategory
		}
		i, ok := idx[cat]
		if !ok {
			i = len(groups)
			idx[cat] = i
			groups = append(groups, CategoryGroup{Category: cat})
		}
		groups[i].Prices = append(groups[i].Prices, p)
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Category < groups[j].Category })
	return groups
}

// Search keeps prices whose commodity or market name contains q,
// case-insensitively. An empty query keeps everything.
func Search(prices []model.PriceDataExpanded, q string) []model.PriceDataExpanded {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return prices
	}
	out := make([]model.PriceDataExpanded, 0, len(prices))
	for _, p := range prices {
		if strings.Contains(strings.ToLower(p.CommodityName), q) ||
			strings.Contains(strings.ToLower(p.MarketName), q) {
			out = append(out, p)
		}
	}
	return out
}

// CatalogSummary counts the commodity catalogue for the admin dashboard.
type CatalogSummary struct {
	Total      int            `json:"total"`
	ByCategory map[string]int `json:"by_category"`
	WithImage  int            `json:"with_image"`
}

// SummarizeCatalog counts commodities per category and those with an image.
func SummarizeCatalog(commodities []model.Commodity) CatalogSummary {
	s := CatalogSummary{Total: len(commodities), ByCategory: make(map[string]int)}
	for _, c := range commodities {
		cat := c.Category
		if cat == "" {
			cat = model.DefaultCategory
		}
		s.ByCategory[cat]++
		if c.Image != "" {
			s.WithImage++
		}
	}
	return s
}
