package facade

import (
	"context"
	"fmt"

	"github.com/agromarket/price-tracker/internal/analytics"
	"github.com/agromarket/price-tracker/internal/model"
	"github.com/agromarket/price-tracker/internal/store"
)

// recentHistory is the most recent page of records, joined and unreduced.
func (s *Service) recentHistory(ctx context.Context, view string) ([]model.PriceDataExpanded, error) {
	recs, err := s.listPrices(ctx, store.PriceQuery{Limit: s.cfg.LatestPageSize})
	if err != nil {
		return nil, err
	}
	return s.expand(ctx, view, recs), nil
}

// CommodityStats summarises every commodity in the recent history.
func (s *Service) CommodityStats(ctx context.Context) ([]analytics.CommodityStats, error) {
	history, err := s.recentHistory(ctx, "stats")
	if err != nil {
		return nil, err
	}
	return analytics.CommodityStatistics(history), nil
}

// Heatmap places every market on the latest price range of commodityID.
func (s *Service) Heatmap(ctx context.Context, commodityID string) ([]analytics.HeatmapCell, error) {
	recs, err := s.listPrices(ctx, store.PriceQuery{CommodityID: commodityID, Limit: s.cfg.LatestPageSize})
	if err != nil {
		return nil, err
	}
	markets, err := s.ListMarkets(ctx)
	if err != nil {
		return nil, err
	}
	latest := s.expand(ctx, "heatmap", analytics.LatestPerPair(recs))
	return analytics.Heatmap(latest, markets, commodityID), nil
}

// TraderPerformance breaks a trader's history for one commodity down by
// market.
func (s *Service) TraderPerformance(ctx context.Context, traderID, commodityID string) ([]analytics.MarketPerformance, error) {
	history, err := s.GetTraderHistory(ctx, traderID)
	if err != nil {
		return nil, err
	}
	return analytics.MarketBreakdown(history, commodityID), nil
}

// Basket estimates the cost of items from the latest prices.
func (s *Service) Basket(ctx context.Context, items []analytics.BasketItem) (analytics.BasketSummary, error) {
	for _, it := range items {
		if it.CommodityID == "" {
			return analytics.BasketSummary{}, fmt.Errorf("%w: commodity_id", model.ErrMissingRef)
		}
		if !it.Quantity.IsPositive() {
			return analytics.BasketSummary{}, fmt.Errorf("%w: %s", model.ErrBadQuantity, it.Quantity)
		}
	}
	latest, err := s.ListLatestPrices(ctx)
	if err != nil {
		return analytics.BasketSummary{}, err
	}
	return analytics.Basket(items, latest), nil
}

// MarketView is one market with its latest prices grouped by category.
type MarketView struct {
	Market     model.Market              `json:"market"`
	Categories []analytics.CategoryGroup `json:"categories"`
}

// MarketPrices returns store.ErrNotFound for an unknown market.
func (s *Service) MarketPrices(ctx context.Context, marketID string) (*MarketView, error) {
	m, err := s.GetMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}
	recs, err := s.listPrices(ctx, store.PriceQuery{MarketID: marketID, Limit: s.cfg.LatestPageSize})
	if err != nil {
		return nil, err
	}
	latest := s.expand(ctx, "market", analytics.LatestPerPair(recs))
	return &MarketView{Market: *m, Categories: analytics.GroupByCategory(latest)}, nil
}

// CatalogSummary counts commodities by category.
func (s *Service) CatalogSummary(ctx context.Context) (analytics.CatalogSummary, error) {
	commodities, err := s.ListCommodities(ctx)
	if err != nil {
		return analytics.CatalogSummary{}, err
	}
	return analytics.SummarizeCatalog(commodities), nil
}
