package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/agromarket/price-tracker/internal/model"
	"github.com/agromarket/price-tracker/internal/store"
)

var t0 = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func insertPrice(t *testing.T, ms *store.MemoryStore, id, commodity, market, trader string, price int64, at time.Time) {
	t.Helper()
	p := &model.PriceRecord{
		ID:            id,
		CommodityID:   commodity,
		MarketID:      market,
		TraderID:      trader,
		Price:         decimal.NewFromInt(price),
		DateSubmitted: at,
	}
	if err := ms.InsertPrice(context.Background(), p); err != nil {
		t.Fatalf("insert price %s: %v", id, err)
	}
}

func TestMemoryStore_CreateAssignsID(t *testing.T) {
	ms := store.NewMemoryStore()
	m := &model.Market{Name: "Mile 12"}
	if err := ms.CreateMarket(context.Background(), m); err != nil {
		t.Fatalf("create: %v", err)
	}
	if m.ID == "" {
		t.Fatal("expected generated ID")
	}
	if m.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be stamped")
	}

	got, err := ms.GetMarket(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Mile 12" {
		t.Errorf("name = %q, want Mile 12", got.Name)
	}
}

func TestMemoryStore_NotFound(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	if _, err := ms.GetMarket(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetMarket err = %v, want ErrNotFound", err)
	}
	if err := ms.DeleteCommodity(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("DeleteCommodity err = %v, want ErrNotFound", err)
	}
	if _, err := ms.UpdatePrice(ctx, "nope", decimal.NewFromInt(1), t0); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("UpdatePrice err = %v, want ErrNotFound", err)
	}
	if err := ms.UpdateMarket(ctx, &model.Market{ID: "nope", Name: "x"}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("UpdateMarket err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_CategoryNamesCaseInsensitive(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	if err := ms.CreateCategory(ctx, &model.Category{Name: "Grains"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := ms.CreateCategory(ctx, &model.Category{Name: "grains"})
	if !errors.Is(err, store.ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}
}

func TestMemoryStore_ListMarketsSortedByName(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	for _, name := range []string{"Oyingbo", "Bodija", "Mile 12"} {
		if err := ms.CreateMarket(ctx, &model.Market{Name: name}); err != nil {
			t.Fatal(err)
		}
	}

	markets, err := ms.ListMarkets(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"Bodija", "Mile 12", "Oyingbo"}
	for i, m := range markets {
		if m.Name != want[i] {
			t.Errorf("markets[%d] = %q, want %q", i, m.Name, want[i])
		}
	}
}

func TestMemoryStore_ListPricesFiltersAndOrders(t *testing.T) {
	ms := store.NewMemoryStore()
	insertPrice(t, ms, "p1", "rice", "m1", "alice", 100, t0)
	insertPrice(t, ms, "p2", "rice", "m2", "bob", 110, t0.Add(time.Hour))
	insertPrice(t, ms, "p3", "beans", "m1", "alice", 90, t0.Add(2*time.Hour))
	insertPrice(t, ms, "p4", "rice", "m1", "alice", 105, t0.Add(2*time.Hour))

	ctx := context.Background()

	all, err := ms.ListPrices(ctx, store.PriceQuery{})
	if err != nil {
		t.Fatal(err)
	}
	wantOrder := []string{"p4", "p3", "p2", "p1"}
	for i, p := range all {
		if p.ID != wantOrder[i] {
			t.Errorf("all[%d] = %s, want %s", i, p.ID, wantOrder[i])
		}
	}

	rice, _ := ms.ListPrices(ctx, store.PriceQuery{CommodityID: "rice", TraderID: "alice"})
	if len(rice) != 2 {
		t.Errorf("rice by alice = %d records, want 2", len(rice))
	}

	window, _ := ms.ListPrices(ctx, store.PriceQuery{Since: t0.Add(time.Hour), Before: t0.Add(2 * time.Hour)})
	if len(window) != 1 || window[0].ID != "p2" {
		t.Errorf("window = %+v, want only p2", window)
	}

	limited, _ := ms.ListPrices(ctx, store.PriceQuery{Limit: 2})
	if len(limited) != 2 || limited[0].ID != "p4" {
		t.Errorf("limited = %+v, want p4 first of 2", limited)
	}
}

func TestMemoryStore_UpdatePriceRestamps(t *testing.T) {
	ms := store.NewMemoryStore()
	insertPrice(t, ms, "p1", "rice", "m1", "alice", 100, t0)

	later := t0.Add(24 * time.Hour)
	p, err := ms.UpdatePrice(context.Background(), "p1", decimal.NewFromInt(120), later)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Price.Equal(decimal.NewFromInt(120)) {
		t.Errorf("price = %s, want 120", p.Price)
	}
	if !p.DateSubmitted.Equal(later) {
		t.Errorf("date = %v, want %v", p.DateSubmitted, later)
	}
	if p.TraderID != "alice" {
		t.Errorf("trader changed to %q", p.TraderID)
	}
}

func TestMemoryStore_NotificationsOwnership(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	n := &model.Notification{UserID: "alice", Message: "hi", Type: model.NotificationInfo}
	if err := ms.InsertNotification(ctx, n); err != nil {
		t.Fatal(err)
	}

	if err := ms.MarkNotificationRead(ctx, "bob", n.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("foreign mark err = %v, want ErrNotFound", err)
	}
	if err := ms.MarkNotificationRead(ctx, "alice", n.ID); err != nil {
		t.Fatalf("mark: %v", err)
	}
	list, _ := ms.ListNotifications(ctx, "alice")
	if len(list) != 1 || !list[0].Read {
		t.Errorf("notifications = %+v, want one read", list)
	}
	if other, _ := ms.ListNotifications(ctx, "bob"); len(other) != 0 {
		t.Errorf("bob sees %d notifications", len(other))
	}
}

func TestMemoryStore_DuplicateUser(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	if err := ms.CreateUser(ctx, &model.User{ID: "u1", Role: model.RoleBuyer}); err != nil {
		t.Fatal(err)
	}
	if err := ms.CreateUser(ctx, &model.User{ID: "u1", Role: model.RoleAdmin}); !errors.Is(err, store.ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}
	u, _ := ms.GetUser(ctx, "u1")
	if u.Role != model.RoleBuyer {
		t.Errorf("role = %s, want buyer (first write wins)", u.Role)
	}
}

func TestMemoryStore_ConcurrentInserts(t *testing.T) {
	ms := store.NewMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = ms.InsertPrice(context.Background(), &model.PriceRecord{
				CommodityID: "rice", MarketID: "m1", Price: decimal.NewFromInt(1), DateSubmitted: t0,
			})
		}()
	}
	wg.Wait()

	all, _ := ms.ListPrices(context.Background(), store.PriceQuery{})
	if len(all) != 50 {
		t.Errorf("got %d records, want 50", len(all))
	}
}
