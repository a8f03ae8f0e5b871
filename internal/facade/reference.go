package facade

import (
	"context"

	"github.com/agromarket/price-tracker/internal/events"
	"github.com/agromarket/price-tracker/internal/media"
	"github.com/agromarket/price-tracker/internal/model"
	"github.com/agromarket/price-tracker/internal/store"
)

// --- Markets ---

func (s *Service) ListMarkets(ctx context.Context) ([]model.Market, error) {
	return call(ctx, s, "list markets", s.store.ListMarkets)
}

// GetMarket returns store.ErrNotFound for an unknown id.
func (s *Service) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	return call(ctx, s, "get market", func(ctx context.Context) (*model.Market, error) {
		return s.store.GetMarket(ctx, id)
	})
}

func (s *Service) AddMarket(ctx context.Context, m model.Market) (*model.Market, error) {
	m.ID = ""
	if err := m.Normalize(); err != nil {
		return nil, err
	}
	err := exec(ctx, s, "create market", func(ctx context.Context) error {
		return s.store.CreateMarket(ctx, &m)
	})
	if err != nil {
		return nil, err
	}
	s.publish(store.CollectionMarkets, events.OpCreated, m.ID)
	return &m, nil
}

func (s *Service) UpdateMarket(ctx context.Context, m model.Market) (*model.Market, error) {
	if err := m.Normalize(); err != nil {
		return nil, err
	}
	err := exec(ctx, s, "update market", func(ctx context.Context) error {
		return s.store.UpdateMarket(ctx, &m)
	})
	if err != nil {
		return nil, err
	}
	s.publish(store.CollectionMarkets, events.OpUpdated, m.ID)
	return &m, nil
}

// DeleteMarket removes the market only. Its price records stay and join to
// placeholders from then on.
func (s *Service) DeleteMarket(ctx context.Context, id string) error {
	err := exec(ctx, s, "delete market", func(ctx context.Context) error {
		return s.store.DeleteMarket(ctx, id)
	})
	if err != nil {
		return err
	}
	s.publish(store.CollectionMarkets, events.OpDeleted, id)
	return nil
}

// --- Commodities ---

func (s *Service) ListCommodities(ctx context.Context) ([]model.Commodity, error) {
	return call(ctx, s, "list commodities", s.store.ListCommodities)
}

func (s *Service) GetCommodity(ctx context.Context, id string) (*model.Commodity, error) {
	return call(ctx, s, "get commodity", func(ctx context.Context) (*model.Commodity, error) {
		return s.store.GetCommodity(ctx, id)
	})
}

func (s *Service) prepareCommodity(c *model.Commodity) error {
	if err := c.Normalize(); err != nil {
		return err
	}
	img, err := media.NormalizeImage(c.Image)
	if err != nil {
		return err
	}
	c.Image = img
	return nil
}

func (s *Service) AddCommodity(ctx context.Context, c model.Commodity) (*model.Commodity, error) {
	c.ID = ""
	if err := s.prepareCommodity(&c); err != nil {
		return nil, err
	}
	err := exec(ctx, s, "create commodity", func(ctx context.Context) error {
		return s.store.CreateCommodity(ctx, &c)
	})
	if err != nil {
		return nil, err
	}
	s.publish(store.CollectionCommodities, events.OpCreated, c.ID)
	return &c, nil
}

func (s *Service) UpdateCommodity(ctx context.Context, c model.Commodity) (*model.Commodity, error) {
	if err := s.prepareCommodity(&c); err != nil {
		return nil, err
	}
	err := exec(ctx, s, "update commodity", func(ctx context.Context) error {
		return s.store.UpdateCommodity(ctx, &c)
	})
	if err != nil {
		return nil, err
	}
	s.publish(store.CollectionCommodities, events.OpUpdated, c.ID)
	return &c, nil
}

// DeleteCommodity removes the commodity only; price history is kept.
func (s *Service) DeleteCommodity(ctx context.Context, id string) error {
	err := exec(ctx, s, "delete commodity", func(ctx context.Context) error {
		return s.store.DeleteCommodity(ctx, id)
	})
	if err != nil {
		return err
	}
	s.publish(store.CollectionCommodities, events.OpDeleted, id)
	return nil
}

// --- Categories (no update) ---

func (s *Service) ListCategories(ctx context.Context) ([]model.Category, error) {
	return call(ctx, s, "list categories", s.store.ListCategories)
}

func (s *Service) AddCategory(ctx context.Context, name string) (*model.Category, error) {
	c := model.Category{Name: name}
	if err := c.Normalize(); err != nil {
		return nil, err
	}
	err := exec(ctx, s, "create category", func(ctx context.Context) error {
		return s.store.CreateCategory(ctx, &c)
	})
	if err != nil {
		return nil, err
	}
	s.publish(store.CollectionCategories, events.OpCreated, c.ID)
	return &c, nil
}

func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	err := exec(ctx, s, "delete category", func(ctx context.Context) error {
		return s.store.DeleteCategory(ctx, id)
	})
	if err != nil {
		return err
	}
	s.publish(store.CollectionCategories, events.OpDeleted, id)
	return nil
}
