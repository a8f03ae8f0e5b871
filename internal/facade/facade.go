// Package facade is the single data access layer used by the HTTP API. It
// wraps the store with per-call timeouts, joins price records with
// reference data, runs the analytics engine over the results, and publishes
// a change event after every successful mutation.
package facade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agromarket/price-tracker/internal/analytics"
	"github.com/agromarket/price-tracker/internal/events"
	"github.com/agromarket/price-tracker/internal/metrics"
	"github.com/agromarket/price-tracker/internal/model"
	"github.com/agromarket/price-tracker/internal/store"
)

// ErrTimeout is returned when a store call exceeds the request timeout. It
// is safe to retry.
var ErrTimeout = errors.New("facade: request timed out")

const (
	DefaultRequestTimeout = 10 * time.Second
	DefaultLatestPageSize = 1000
	DefaultTrendDays      = 7
)

// Config tunes the facade.
type Config struct {
	RequestTimeout time.Duration
	LatestPageSize int
}

func (c Config) withDefaults() Config {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.LatestPageSize <= 0 {
		c.LatestPageSize = DefaultLatestPageSize
	}
	return c
}

// Service implements every data operation the application consumes.
type Service struct {
	store  store.Store
	events events.Publisher
	cfg    Config
	now    func() time.Time
}

// New creates a facade over st. pub may be nil.
func New(st store.Store, pub events.Publisher, cfg Config) *Service {
	return &Service{
		store:  st,
		events: pub,
		cfg:    cfg.withDefaults(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// call runs fn under the request timeout and maps an expired deadline to
// ErrTimeout. A cancelled parent context is returned as is.
func call[T any](ctx context.Context, s *Service, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	v, err := fn(cctx)
	if err != nil && errors.Is(cctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		metrics.StoreTimeouts.WithLabelValues(op).Inc()
		return v, fmt.Errorf("%s: %w", op, ErrTimeout)
	}
	return v, err
}

// exec is call for operations without a result.
func exec(ctx context.Context, s *Service, op string, fn func(ctx context.Context) error) error {
	_, err := call(ctx, s, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func (s *Service) publish(kind string, op events.Op, id string) {
	if s.events == nil {
		return
	}
	s.events.Publish(events.Change{Kind: kind, Op: op, ID: id, At: s.now()})
}

// joiner loads markets and commodities concurrently. A failed listing is
// logged and the join proceeds with placeholders for that side.
func (s *Service) joiner(ctx context.Context, view string) *analytics.Joiner {
	var (
		markets     []model.Market
		commodities []model.Commodity
		g           errgroup.Group
	)
	g.Go(func() error {
		var err error
		markets, err = call(ctx, s, "list markets", s.store.ListMarkets)
		if err != nil {
			slog.Warn("join: markets unavailable", "view", view, "err", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		commodities, err = call(ctx, s, "list commodities", s.store.ListCommodities)
		if err != nil {
			slog.Warn("join: commodities unavailable", "view", view, "err", err)
		}
		return nil
	})
	_ = g.Wait()
	return analytics.NewJoiner(markets, commodities)
}

// expand joins records for view and counts dangling references.
func (s *Service) expand(ctx context.Context, view string, records []model.PriceRecord) []model.PriceDataExpanded {
	return s.expandWith(s.joiner(ctx, view), view, records)
}

func (s *Service) expandWith(j *analytics.Joiner, view string, records []model.PriceRecord) []model.PriceDataExpanded {
	out, missing := j.ExpandAll(records)
	if missing > 0 {
		metrics.JoinPlaceholders.WithLabelValues(view).Add(float64(missing))
		slog.Debug("join: dangling references", "view", view, "records", missing)
	}
	return out
}

func (s *Service) listPrices(ctx context.Context, q store.PriceQuery) ([]model.PriceRecord, error) {
	return call(ctx, s, "list prices", func(ctx context.Context) ([]model.PriceRecord, error) {
		return s.store.ListPrices(ctx, q)
	})
}
