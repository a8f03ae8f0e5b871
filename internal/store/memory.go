package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agromarket/price-tracker/internal/model"
)

// collection is one in-memory document collection with its own lock, so
// writes are serialised per collection rather than store-wide.
type collection[T any] struct {
	mu   sync.RWMutex
	docs map[string]T
}

func newCollection[T any]() *collection[T] {
	return &collection[T]{docs: make(map[string]T)}
}

func (c *collection[T]) get(id string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.docs[id]
	return doc, ok
}

func (c *collection[T]) all() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]T, 0, len(c.docs))
	for _, doc := range c.docs {
		out = append(out, doc)
	}
	return out
}

func (c *collection[T]) delete(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.docs[id]; !ok {
		return false
	}
	delete(c.docs, id)
	return true
}

// MemoryStore implements Store with in-memory maps. Used for testing
// and demos. Not suitable for production (no persistence).
type MemoryStore struct {
	markets       *collection[model.Market]
	categories    *collection[model.Category]
	commodities   *collection[model.Commodity]
	prices        *collection[model.PriceRecord]
	farmgate      *collection[model.FarmgateRecord]
	users         *collection[model.User]
	notifications *collection[model.Notification]
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		markets:       newCollection[model.Market](),
		categories:    newCollection[model.Category](),
		commodities:   newCollection[model.Commodity](),
		prices:        newCollection[model.PriceRecord](),
		farmgate:      newCollection[model.FarmgateRecord](),
		users:         newCollection[model.User](),
		notifications: newCollection[model.Notification](),
	}
}

func newID(id *string) {
	if *id == "" {
		*id = uuid.New().String()
	}
}

// --- Markets ---

func (s *MemoryStore) CreateMarket(_ context.Context, m *model.Market) error {
	newID(&m.ID)
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	s.markets.mu.Lock()
	defer s.markets.mu.Unlock()
	if _, ok := s.markets.docs[m.ID]; ok {
		return fmt.Errorf("market %s: %w", m.ID, ErrConflict)
	}
	s.markets.docs[m.ID] = *m
	return nil
}

func (s *MemoryStore) GetMarket(_ context.Context, id string) (*model.Market, error) {
	m, ok := s.markets.get(id)
	if !ok {
		return nil, fmt.Errorf("market %s: %w", id, ErrNotFound)
	}
	return &m, nil
}

func (s *MemoryStore) ListMarkets(_ context.Context) ([]model.Market, error) {
	markets := s.markets.all()
	sort.Slice(markets, func(i, j int) bool { return lessByName(markets[i].Name, markets[i].ID, markets[j].Name, markets[j].ID) })
	return markets, nil
}

func (s *MemoryStore) UpdateMarket(_ context.Context, m *model.Market) error {
	s.markets.mu.Lock()
	defer s.markets.mu.Unlock()
	existing, ok := s.markets.docs[m.ID]
	if !ok {
		return fmt.Errorf("market %s: %w", m.ID, ErrNotFound)
	}
	m.CreatedAt = existing.CreatedAt
	s.markets.docs[m.ID] = *m
	return nil
}

func (s *MemoryStore) DeleteMarket(_ context.Context, id string) error {
	if !s.markets.delete(id) {
		return fmt.Errorf("market %s: %w", id, ErrNotFound)
	}
	return nil
}

// --- Categories ---

func (s *MemoryStore) CreateCategory(_ context.Context, c *model.Category) error {
	newID(&c.ID)
	s.categories.mu.Lock()
	defer s.categories.mu.Unlock()
	for _, existing := range s.categories.docs {
		if strings.EqualFold(existing.Name, c.Name) {
			return fmt.Errorf("category %q: %w", c.Name, ErrConflict)
		}
	}
	s.categories.docs[c.ID] = *c
	return nil
}

func (s *MemoryStore) ListCategories(_ context.Context) ([]model.Category, error) {
	cats := s.categories.all()
	sort.Slice(cats, func(i, j int) bool { return lessByName(cats[i].Name, cats[i].ID, cats[j].Name, cats[j].ID) })
	return cats, nil
}

func (s *MemoryStore) DeleteCategory(_ context.Context, id string) error {
	if !s.categories.delete(id) {
		return fmt.Errorf("category %s: %w", id, ErrNotFound)
	}
	return nil
}

// --- Commodities ---

func (s *MemoryStore) CreateCommodity(_ context.Context, c *model.Commodity) error {
	newID(&c.ID)
	s.commodities.mu.Lock()
	defer s.commodities.mu.Unlock()
	if _, ok := s.commodities.docs[c.ID]; ok {
		return fmt.Errorf("commodity %s: %w", c.ID, ErrConflict)
	}
	s.commodities.docs[c.ID] = *c
	return nil
}

func (s *MemoryStore) GetCommodity(_ context.Context, id string) (*model.Commodity, error) {
	c, ok := s.commodities.get(id)
	if !ok {
		return nil, fmt.Errorf("commodity %s: %w", id, ErrNotFound)
	}
	return &c, nil
}

func (s *MemoryStore) ListCommodities(_ context.Context) ([]model.Commodity, error) {
	out := s.commodities.all()
	sort.Slice(out, func(i, j int) bool { return lessByName(out[i].Name, out[i].ID, out[j].Name, out[j].ID) })
	return out, nil
}

func (s *MemoryStore) UpdateCommodity(_ context.Context, c *model.Commodity) error {
	s.commodities.mu.Lock()
	defer s.commodities.mu.Unlock()
	if _, ok := s.commodities.docs[c.ID]; !ok {
		return fmt.Errorf("commodity %s: %w", c.ID, ErrNotFound)
	}
	s.commodities.docs[c.ID] = *c
	return nil
}

func (s *MemoryStore) DeleteCommodity(_ context.Context, id string) error {
	if !s.commodities.delete(id) {
		return fmt.Errorf("commodity %s: %w", id, ErrNotFound)
	}
	return nil
}

// --- Price records ---

func (s *MemoryStore) InsertPrice(_ context.Context, p *model.PriceRecord) error {
	newID(&p.ID)
	s.prices.mu.Lock()
	defer s.prices.mu.Unlock()
	if _, ok := s.prices.docs[p.ID]; ok {
		return fmt.Errorf("price %s: %w", p.ID, ErrConflict)
	}
	s.prices.docs[p.ID] = *p
	return nil
}

func (s *MemoryStore) GetPrice(_ context.Context, id string) (*model.PriceRecord, error) {
	p, ok := s.prices.get(id)
	if !ok {
		return nil, fmt.Errorf("price %s: %w", id, ErrNotFound)
	}
	return &p, nil
}

func (s *MemoryStore) UpdatePrice(_ context.Context, id string, price decimal.Decimal, at time.Time) (*model.PriceRecord, error) {
	s.prices.mu.Lock()
	defer s.prices.mu.Unlock()
	p, ok := s.prices.docs[id]
	if !ok {
		return nil, fmt.Errorf("price %s: %w", id, ErrNotFound)
	}
	p.Price = price
	p.DateSubmitted = at
	s.prices.docs[id] = p
	return &p, nil
}

func (s *MemoryStore) ListPrices(_ context.Context, q PriceQuery) ([]model.PriceRecord, error) {
	s.prices.mu.RLock()
	var result []model.PriceRecord
	for _, p := range s.prices.docs {
		if q.Match(p) {
			result = append(result, p)
		}
	}
	s.prices.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].NewerThan(result[j]) })
	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}
	return result, nil
}

// --- Farm-gate prices ---

func (s *MemoryStore) InsertFarmgate(_ context.Context, f *model.FarmgateRecord) error {
	newID(&f.ID)
	s.farmgate.mu.Lock()
	defer s.farmgate.mu.Unlock()
	s.farmgate.docs[f.ID] = *f
	return nil
}

func (s *MemoryStore) ListFarmgate(_ context.Context, commodityID string) ([]model.FarmgateRecord, error) {
	var out []model.FarmgateRecord
	for _, f := range s.farmgate.all() {
		if commodityID == "" || f.CommodityID == commodityID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DateSubmitted.Equal(out[j].DateSubmitted) {
			return out[i].DateSubmitted.After(out[j].DateSubmitted)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// --- Users ---

func (s *MemoryStore) CreateUser(_ context.Context, u *model.User) error {
	newID(&u.ID)
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	s.users.mu.Lock()
	defer s.users.mu.Unlock()
	if _, ok := s.users.docs[u.ID]; ok {
		return fmt.Errorf("user %s: %w", u.ID, ErrConflict)
	}
	s.users.docs[u.ID] = *u
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (*model.User, error) {
	u, ok := s.users.get(id)
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return &u, nil
}

// --- Notifications ---

func (s *MemoryStore) InsertNotification(_ context.Context, n *model.Notification) error {
	newID(&n.ID)
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	s.notifications.mu.Lock()
	defer s.notifications.mu.Unlock()
	s.notifications.docs[n.ID] = *n
	return nil
}

func (s *MemoryStore) ListNotifications(_ context.Context, userID string) ([]model.Notification, error) {
	var out []model.Notification
	for _, n := range s.notifications.all() {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) MarkNotificationRead(_ context.Context, userID, id string) error {
	s.notifications.mu.Lock()
	defer s.notifications.mu.Unlock()
	n, ok := s.notifications.docs[id]
	if !ok || n.UserID != userID {
		return fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	n.Read = true
	s.notifications.docs[id] = n
	return nil
}

func lessByName(nameA, idA, nameB, idB string) bool {
	if nameA != nameB {
		return nameA < nameB
	}
	return idA < idB
}
