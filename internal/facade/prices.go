package facade

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/agromarket/price-tracker/internal/analytics"
	"github.com/agromarket/price-tracker/internal/events"
	"github.com/agromarket/price-tracker/internal/metrics"
	"github.com/agromarket/price-tracker/internal/model"
	"github.com/agromarket/price-tracker/internal/store"
)

// baselineFanout bounds concurrent baseline lookups in GetTrendingPrices.
const baselineFanout = 8

const day = 24 * time.Hour

// ListLatestPrices returns the current price of every (commodity, market)
// pair found in the most recent page of records, newest first.
func (s *Service) ListLatestPrices(ctx context.Context) ([]model.PriceDataExpanded, error) {
	recs, err := s.listPrices(ctx, store.PriceQuery{Limit: s.cfg.LatestPageSize})
	if err != nil {
		return nil, err
	}
	return analytics.LatestPerPair(s.expand(ctx, "latest", recs)), nil
}

// SearchLatest filters the latest prices by commodity or market name.
func (s *Service) SearchLatest(ctx context.Context, q string) ([]model.PriceDataExpanded, error) {
	latest, err := s.ListLatestPrices(ctx)
	if err != nil {
		return nil, err
	}
	return analytics.Search(latest, q), nil
}

// GetTraderHistory returns every record submitted by traderID, newest
// first, without reduction.
func (s *Service) GetTraderHistory(ctx context.Context, traderID string) ([]model.PriceDataExpanded, error) {
	recs, err := s.listPrices(ctx, store.PriceQuery{TraderID: traderID})
	if err != nil {
		return nil, err
	}
	j := s.joiner(ctx, "trader_history")
	if u, err := call(ctx, s, "get user", func(ctx context.Context) (*model.User, error) {
		return s.store.GetUser(ctx, traderID)
	}); err == nil {
		j.WithTraders(map[string]string{u.ID: u.Name})
	}
	return s.expandWith(j, "trader_history", recs), nil
}

// GetHistoricalPrices returns the records of one pair submitted within the
// last days days, newest first.
func (s *Service) GetHistoricalPrices(ctx context.Context, commodityID, marketID string, days int) ([]model.PriceDataExpanded, error) {
	if days <= 0 {
		days = DefaultTrendDays
	}
	recs, err := s.listPrices(ctx, store.PriceQuery{
		CommodityID: commodityID,
		MarketID:    marketID,
		Since:       s.now().Add(-time.Duration(days) * day),
	})
	if err != nil {
		return nil, err
	}
	return s.expand(ctx, "history", recs), nil
}

// SubmitPrice records a new observation stamped with the current time.
func (s *Service) SubmitPrice(ctx context.Context, marketID, commodityID, traderID string, price decimal.Decimal) (*model.PriceRecord, error) {
	p := model.PriceRecord{
		MarketID:      marketID,
		CommodityID:   commodityID,
		TraderID:      traderID,
		Price:         price,
		DateSubmitted: s.now(),
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	err := exec(ctx, s, "insert price", func(ctx context.Context) error {
		return s.store.InsertPrice(ctx, &p)
	})
	if err != nil {
		return nil, err
	}
	metrics.SubmissionsTotal.WithLabelValues("price").Inc()
	s.publish(store.CollectionPrices, events.OpCreated, p.ID)
	return &p, nil
}

// UpdatePrice overwrites the price of an existing record and re-stamps it,
// so the edit becomes the pair's current price. When editorID is not the
// submitting trader, the trader is notified.
func (s *Service) UpdatePrice(ctx context.Context, editorID, id string, price decimal.Decimal) (*model.PriceRecord, error) {
	if err := model.ValidatePrice("price", price); err != nil {
		return nil, err
	}
	p, err := call(ctx, s, "update price", func(ctx context.Context) (*model.PriceRecord, error) {
		return s.store.UpdatePrice(ctx, id, price, s.now())
	})
	if err != nil {
		return nil, err
	}
	metrics.PriceUpdatesTotal.Inc()
	s.publish(store.CollectionPrices, events.OpUpdated, p.ID)

	if editorID != "" && editorID != p.TraderID {
		s.notify(ctx, p.TraderID, model.NotificationPriceUpdate,
			fmt.Sprintf("Your price submission %s was changed to %s", p.ID, p.Price.String()))
	}
	return p, nil
}

// notify stores a system notification. Failures are logged, not returned:
// the mutation that triggered it has already succeeded.
func (s *Service) notify(ctx context.Context, userID string, typ model.NotificationType, msg string) {
	n := model.Notification{UserID: userID, Message: msg, Type: typ, CreatedAt: s.now()}
	err := exec(ctx, s, "insert notification", func(ctx context.Context) error {
		return s.store.InsertNotification(ctx, &n)
	})
	if err != nil {
		slog.Error("notification not stored", "user_id", userID, "type", typ, "err", err)
		return
	}
	s.publish(store.CollectionNotifications, events.OpCreated, n.ID)
}

// --- Farm-gate prices ---

func (s *Service) SubmitFarmgatePrice(ctx context.Context, f model.FarmgateRecord) (*model.FarmgateRecord, error) {
	f.ID = ""
	f.DateSubmitted = s.now()
	if err := f.Validate(); err != nil {
		return nil, err
	}
	err := exec(ctx, s, "insert farmgate price", func(ctx context.Context) error {
		return s.store.InsertFarmgate(ctx, &f)
	})
	if err != nil {
		return nil, err
	}
	metrics.SubmissionsTotal.WithLabelValues("farmgate").Inc()
	s.publish(store.CollectionFarmgate, events.OpCreated, f.ID)
	return &f, nil
}

// ListFarmgatePrices lists farm-gate quotes, optionally for one commodity.
func (s *Service) ListFarmgatePrices(ctx context.Context, commodityID string) ([]model.FarmgateRecord, error) {
	return call(ctx, s, "list farmgate prices", func(ctx context.Context) ([]model.FarmgateRecord, error) {
		return s.store.ListFarmgate(ctx, commodityID)
	})
}

// --- Notifications ---

func (s *Service) GetNotifications(ctx context.Context, userID string) ([]model.Notification, error) {
	return call(ctx, s, "list notifications", func(ctx context.Context) ([]model.Notification, error) {
		return s.store.ListNotifications(ctx, userID)
	})
}

// MarkNotificationRead returns store.ErrNotFound unless userID owns id.
func (s *Service) MarkNotificationRead(ctx context.Context, userID, id string) error {
	err := exec(ctx, s, "mark notification read", func(ctx context.Context) error {
		return s.store.MarkNotificationRead(ctx, userID, id)
	})
	if err != nil {
		return err
	}
	s.publish(store.CollectionNotifications, events.OpUpdated, id)
	return nil
}

// --- Trends ---

// GetTrendingPrices compares the current price of each pair reported in the
// last windowDays days with that pair's latest price from before the window.
func (s *Service) GetTrendingPrices(ctx context.Context, windowDays int) ([]model.TrendingPrice, error) {
	if windowDays <= 0 {
		windowDays = DefaultTrendDays
	}
	cutoff := s.now().Add(-time.Duration(windowDays) * day)

	recent, err := s.listPrices(ctx, store.PriceQuery{Since: cutoff, Limit: s.cfg.LatestPageSize})
	if err != nil {
		return nil, err
	}
	current := analytics.LatestPerPair(recent)

	baselines := make([]model.PriceRecord, len(current))
	found := make([]bool, len(current))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(baselineFanout)
	for i, c := range current {
		i, c := i, c
		g.Go(func() error {
			recs, err := s.listPrices(gctx, store.PriceQuery{
				CommodityID: c.CommodityID,
				MarketID:    c.MarketID,
				Before:      cutoff,
				Limit:       1,
			})
			if err != nil {
				return err
			}
			if len(recs) > 0 {
				baselines[i], found[i] = recs[0], true
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var base []model.PriceRecord
	for i, ok := range found {
		if ok {
			base = append(base, baselines[i])
		}
	}

	j := s.joiner(ctx, "trending")
	return analytics.Trending(
		s.expandWith(j, "trending", current),
		s.expandWith(j, "trending", base),
	), nil
}

// GetPrice returns one raw price record.
func (s *Service) GetPrice(ctx context.Context, id string) (*model.PriceRecord, error) {
	return call(ctx, s, "get price", func(ctx context.Context) (*model.PriceRecord, error) {
		return s.store.GetPrice(ctx, id)
	})
}
