package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/agromarket/price-tracker/internal/model"
)

// CachedStore wraps a primary Store with a Redis read-through cache for
// reference data (markets, categories, commodities, users). Writes go to the
// primary store and invalidate the cache; reads check Redis first then fall
// back to the primary. Price history is never cached.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// readThrough returns the cached value under key, or loads, caches and
// returns it. Redis failures degrade to a plain primary read.
func readThrough[T any](ctx context.Context, s *CachedStore, key string, load func() (T, error)) (T, error) {
	if data, err := s.rdb.Get(ctx, key).Bytes(); err == nil {
		var v T
		if json.Unmarshal(data, &v) == nil {
			return v, nil
		}
	}

	// Cache miss.
	v, err := load()
	if err != nil {
		return v, err
	}
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
	return v, nil
}

func (s *CachedStore) invalidate(ctx context.Context, keys ...string) {
	s.rdb.Del(ctx, keys...)
}

// --- Markets ---

func (s *CachedStore) CreateMarket(ctx context.Context, m *model.Market) error {
	if err := s.primary.CreateMarket(ctx, m); err != nil {
		return err
	}
	s.invalidate(ctx, listKey(CollectionMarkets))
	return nil
}

func (s *CachedStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	return readThrough(ctx, s, docKey(CollectionMarkets, id), func() (*model.Market, error) {
		return s.primary.GetMarket(ctx, id)
	})
}

func (s *CachedStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	return readThrough(ctx, s, listKey(CollectionMarkets), func() ([]model.Market, error) {
		return s.primary.ListMarkets(ctx)
	})
}

func (s *CachedStore) UpdateMarket(ctx context.Context, m *model.Market) error {
	if err := s.primary.UpdateMarket(ctx, m); err != nil {
		return err
	}
	s.invalidate(ctx, docKey(CollectionMarkets, m.ID), listKey(CollectionMarkets))
	return nil
}

func (s *CachedStore) DeleteMarket(ctx context.Context, id string) error {
	if err := s.primary.DeleteMarket(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, docKey(CollectionMarkets, id), listKey(CollectionMarkets))
	return nil
}

// --- Categories ---

func (s *CachedStore) CreateCategory(ctx context.Context, c *model.Category) error {
	if err := s.primary.CreateCategory(ctx, c); err != nil {
		return err
	}
	s.invalidate(ctx, listKey(CollectionCategories))
	return nil
}

func (s *CachedStore) ListCategories(ctx context.Context) ([]model.Category, error) {
	return readThrough(ctx, s, listKey(CollectionCategories), func() ([]model.Category, error) {
		return s.primary.ListCategories(ctx)
	})
}

func (s *CachedStore) DeleteCategory(ctx context.Context, id string) error {
	if err := s.primary.DeleteCategory(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, listKey(CollectionCategories))
	return nil
}

// --- Commodities ---

func (s *CachedStore) CreateCommodity(ctx context.Context, c *model.Commodity) error {
	if err := s.primary.CreateCommodity(ctx, c); err != nil {
		return err
	}
	s.invalidate(ctx, listKey(CollectionCommodities))
	return nil
}

func (s *CachedStore) GetCommodity(ctx context.Context, id string) (*model.Commodity, error) {
	return readThrough(ctx, s, docKey(CollectionCommodities, id), func() (*model.Commodity, error) {
		return s.primary.GetCommodity(ctx, id)
	})
}

func (s *CachedStore) ListCommodities(ctx context.Context) ([]model.Commodity, error) {
	return readThrough(ctx, s, listKey(CollectionCommodities), func() ([]model.Commodity, error) {
		return s.primary.ListCommodities(ctx)
	})
}

func (s *CachedStore) UpdateCommodity(ctx context.Context, c *model.Commodity) error {
	if err := s.primary.UpdateCommodity(ctx, c); err != nil {
		return err
	}
	s.invalidate(ctx, docKey(CollectionCommodities, c.ID), listKey(CollectionCommodities))
	return nil
}

func (s *CachedStore) DeleteCommodity(ctx context.Context, id string) error {
	if err := s.primary.DeleteCommodity(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, docKey(CollectionCommodities, id), listKey(CollectionCommodities))
	return nil
}

// --- Users ---

func (s *CachedStore) CreateUser(ctx context.Context, u *model.User) error {
	if err := s.primary.CreateUser(ctx, u); err != nil {
		return err
	}
	s.invalidate(ctx, docKey(CollectionUsers, u.ID))
	return nil
}

func (s *CachedStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	return readThrough(ctx, s, docKey(CollectionUsers, id), func() (*model.User, error) {
		return s.primary.GetUser(ctx, id)
	})
}

// --- Passthrough (not cached) ---

func (s *CachedStore) InsertPrice(ctx context.Context, p *model.PriceRecord) error {
	return s.primary.InsertPrice(ctx, p)
}

func (s *CachedStore) GetPrice(ctx context.Context, id string) (*model.PriceRecord, error) {
	return s.primary.GetPrice(ctx, id)
}

func (s *CachedStore) UpdatePrice(ctx context.Context, id string, price decimal.Decimal, at time.Time) (*model.PriceRecord, error) {
	return s.primary.UpdatePrice(ctx, id, price, at)
}

func (s *CachedStore) ListPrices(ctx context.Context, q PriceQuery) ([]model.PriceRecord, error) {
	return s.primary.ListPrices(ctx, q)
}

func (s *CachedStore) InsertFarmgate(ctx context.Context, f *model.FarmgateRecord) error {
	return s.primary.InsertFarmgate(ctx, f)
}

func (s *CachedStore) ListFarmgate(ctx context.Context, commodityID string) ([]model.FarmgateRecord, error) {
	return s.primary.ListFarmgate(ctx, commodityID)
}

func (s *CachedStore) InsertNotification(ctx context.Context, n *model.Notification) error {
	return s.primary.InsertNotification(ctx, n)
}

func (s *CachedStore) ListNotifications(ctx context.Context, userID string) ([]model.Notification, error) {
	return s.primary.ListNotifications(ctx, userID)
}

func (s *CachedStore) MarkNotificationRead(ctx context.Context, userID, id string) error {
	return s.primary.MarkNotificationRead(ctx, userID, id)
}

// --- Cache keys ---

func docKey(collection, id string) string { return fmt.Sprintf("%s:%s", collection, id) }
func listKey(collection string) string    { return fmt.Sprintf("%s:all", collection) }
