package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/agromarket/price-tracker/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// uniqueViolation is the PostgreSQL SQLSTATE for duplicate keys.
const uniqueViolation = "23505"

// PostgresStore implements Store using PostgreSQL.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the tables and indexes if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// pgErr maps driver errors onto the store sentinels.
func pgErr(what string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) && pe.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", what, ErrConflict)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// execOne runs a write that must touch exactly one row.
func (s *PostgresStore) execOne(ctx context.Context, what, sql string, args ...any) error {
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return pgErr(what, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

// --- Markets ---

func (s *PostgresStore) CreateMarket(ctx context.Context, m *model.Market) error {
	newID(&m.ID)
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO markets (id, name, location, created_at) VALUES ($1, $2, $3, $4)`,
		m.ID, m.Name, m.Location, m.CreatedAt)
	return pgErr("create market", err)
}

func (s *PostgresStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	var m model.Market
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, location, created_at FROM markets WHERE id = $1`, id).
		Scan(&m.ID, &m.Name, &m.Location, &m.CreatedAt)
	if err != nil {
		return nil, pgErr("get market "+id, err)
	}
	return &m, nil
}

func (s *PostgresStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, location, created_at FROM markets ORDER BY name, id`)
	if err != nil {
		return nil, pgErr("list markets", err)
	}
	defer rows.Close()

	var markets []model.Market
	for rows.Next() {
		var m model.Market
		if err := rows.Scan(&m.ID, &m.Name, &m.Location, &m.CreatedAt); err != nil {
			return nil, err
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

func (s *PostgresStore) UpdateMarket(ctx context.Context, m *model.Market) error {
	return s.execOne(ctx, "update market "+m.ID,
		`UPDATE markets SET name = $2, location = $3 WHERE id = $1`,
		m.ID, m.Name, m.Location)
}

func (s *PostgresStore) DeleteMarket(ctx context.Context, id string) error {
	return s.execOne(ctx, "delete market "+id, `DELETE FROM markets WHERE id = $1`, id)
}

// --- Categories ---

func (s *PostgresStore) CreateCategory(ctx context.Context, c *model.Category) error {
	newID(&c.ID)
	_, err := s.pool.Exec(ctx, `INSERT INTO categories (id, name) VALUES ($1, $2)`, c.ID, c.Name)
	return pgErr("create category", err)
}

func (s *PostgresStore) ListCategories(ctx context.Context) ([]model.Category, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name FROM categories ORDER BY name, id`)
	if err != nil {
		return nil, pgErr("list categories", err)
	}
	defer rows.Close()

	var cats []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

func (s *PostgresStore) DeleteCategory(ctx context.Context, id string) error {
	return s.execOne(ctx, "delete category "+id, `DELETE FROM categories WHERE id = $1`, id)
}

// --- Commodities ---

func (s *PostgresStore) CreateCommodity(ctx context.Context, c *model.Commodity) error {
	newID(&c.ID)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO commodities (id, name, unit, category, image) VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.Name, c.Unit, c.Category, c.Image)
	return pgErr("create commodity", err)
}

func (s *PostgresStore) GetCommodity(ctx context.Context, id string) (*model.Commodity, error) {
	var c model.Commodity
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, unit, category, image FROM commodities WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Unit, &c.Category, &c.Image)
	if err != nil {
		return nil, pgErr("get commodity "+id, err)
	}
	return &c, nil
}

func (s *PostgresStore) ListCommodities(ctx context.Context) ([]model.Commodity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, unit, category, image FROM commodities ORDER BY name, id`)
	if err != nil {
		return nil, pgErr("list commodities", err)
	}
	defer rows.Close()

	var out []model.Commodity
	for rows.Next() {
		var c model.Commodity
		if err := rows.Scan(&c.ID, &c.Name, &c.Unit, &c.Category, &c.Image); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateCommodity(ctx context.Context, c *model.Commodity) error {
	return s.execOne(ctx, "update commodity "+c.ID,
		`UPDATE commodities SET name = $2, unit = $3, category = $4, image = $5 WHERE id = $1`,
		c.ID, c.Name, c.Unit, c.Category, c.Image)
}

func (s *PostgresStore) DeleteCommodity(ctx context.Context, id string) error {
	return s.execOne(ctx, "delete commodity "+id, `DELETE FROM commodities WHERE id = $1`, id)
}

// --- Price records ---

const priceColumns = `id, market_id, commodity_id, trader_id, price::TEXT, date_submitted`

func (s *PostgresStore) InsertPrice(ctx context.Context, p *model.PriceRecord) error {
	newID(&p.ID)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO prices (id, market_id, commodity_id, trader_id, price, date_submitted)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6)`,
		p.ID, p.MarketID, p.CommodityID, p.TraderID, p.Price.String(), p.DateSubmitted)
	return pgErr("insert price", err)
}

func (s *PostgresStore) GetPrice(ctx context.Context, id string) (*model.PriceRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+priceColumns+` FROM prices WHERE id = $1`, id)
	p, err := scanPrice(row)
	if err != nil {
		return nil, pgErr("get price "+id, err)
	}
	return p, nil
}

func (s *PostgresStore) UpdatePrice(ctx context.Context, id string, price decimal.Decimal, at time.Time) (*model.PriceRecord, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE prices SET price = $2::NUMERIC, date_submitted = $3
		 WHERE id = $1
		 RETURNING `+priceColumns,
		id, price.String(), at)
	p, err := scanPrice(row)
	if err != nil {
		return nil, pgErr("update price "+id, err)
	}
	return p, nil
}

func (s *PostgresStore) ListPrices(ctx context.Context, q PriceQuery) ([]model.PriceRecord, error) {
	sql, args := listPricesSQL(q)
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, pgErr("list prices", err)
	}
	defer rows.Close()

	var out []model.PriceRecord
	for rows.Next() {
		p, err := scanPrice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// listPricesSQL builds the query for q. Ids tie-break in byte order, as
// model.PriceRecord.NewerThan does, whatever the database collation.
func listPricesSQL(q PriceQuery) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if q.TraderID != "" {
		add("trader_id = $%d", q.TraderID)
	}
	if q.CommodityID != "" {
		add("commodity_id = $%d", q.CommodityID)
	}
	if q.MarketID != "" {
		add("market_id = $%d", q.MarketID)
	}
	if !q.Since.IsZero() {
		add("date_submitted >= $%d", q.Since)
	}
	if !q.Before.IsZero() {
		add("date_submitted < $%d", q.Before)
	}

	sql := `SELECT ` + priceColumns + ` FROM prices`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += ` ORDER BY date_submitted DESC, id COLLATE "C" DESC`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		sql += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	return sql, args
}

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrice(row rowScanner) (*model.PriceRecord, error) {
	var p model.PriceRecord
	var priceS string
	if err := row.Scan(&p.ID, &p.MarketID, &p.CommodityID, &p.TraderID, &priceS, &p.DateSubmitted); err != nil {
		return nil, err
	}
	p.Price, _ = decimal.NewFromString(priceS)
	p.DateSubmitted = p.DateSubmitted.UTC()
	return &p, nil
}

// --- Farm-gate prices ---

func (s *PostgresStore) InsertFarmgate(ctx context.Context, f *model.FarmgateRecord) error {
	newID(&f.ID)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO farmgate_prices (id, commodity_id, farmer_id, location, farm_gate_price, transport_cost, date_submitted)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7)`,
		f.ID, f.CommodityID, f.FarmerID, f.Location,
		f.FarmGatePrice.String(), f.TransportCost.String(), f.DateSubmitted)
	return pgErr("insert farmgate price", err)
}

func (s *PostgresStore) ListFarmgate(ctx context.Context, commodityID string) ([]model.FarmgateRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, commodity_id, farmer_id, location,
		        farm_gate_price::TEXT, transport_cost::TEXT, date_submitted
		 FROM farmgate_prices
		 WHERE $1 = '' OR commodity_id = $1
		 ORDER BY date_submitted DESC, id COLLATE "C" DESC`, commodityID)
	if err != nil {
		return nil, pgErr("list farmgate prices", err)
	}
	defer rows.Close()

	var out []model.FarmgateRecord
	for rows.Next() {
		var f model.FarmgateRecord
		var priceS, costS string
		if err := rows.Scan(&f.ID, &f.CommodityID, &f.FarmerID, &f.Location,
			&priceS, &costS, &f.DateSubmitted); err != nil {
			return nil, err
		}
		f.FarmGatePrice, _ = decimal.NewFromString(priceS)
		f.TransportCost, _ = decimal.NewFromString(costS)
		out = append(out, f)
	}
	return out, rows.Err()
}

// --- Users ---

func (s *PostgresStore) CreateUser(ctx context.Context, u *model.User) error {
	newID(&u.ID)
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, name, email, role, created_at) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Name, u.Email, string(u.Role), u.CreatedAt)
	return pgErr("create user", err)
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	var role string
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, email, role, created_at FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Name, &u.Email, &role, &u.CreatedAt)
	if err != nil {
		return nil, pgErr("get user "+id, err)
	}
	u.Role = model.Role(role)
	return &u, nil
}

// --- Notifications ---

func (s *PostgresStore) InsertNotification(ctx context.Context, n *model.Notification) error {
	newID(&n.ID)
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO notifications (id, user_id, message, type, read, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		n.ID, n.UserID, n.Message, string(n.Type), n.Read, n.CreatedAt)
	return pgErr("insert notification", err)
}

func (s *PostgresStore) ListNotifications(ctx context.Context, userID string) ([]model.Notification, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, message, type, read, created_at
		 FROM notifications WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, pgErr("list notifications", err)
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		var n model.Notification
		var typ string
		if err := rows.Scan(&n.ID, &n.UserID, &n.Message, &typ, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Type = model.NotificationType(typ)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkNotificationRead(ctx context.Context, userID, id string) error {
	return s.execOne(ctx, "mark notification "+id,
		`UPDATE notifications SET read = true WHERE id = $1 AND user_id = $2`, id, userID)
}
