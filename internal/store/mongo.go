package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/agromarket/price-tracker/internal/model"
)

// MongoStore implements Store on a MongoDB database, one collection per
// entity. Money is stored as Decimal128.
type MongoStore struct {
	markets       *mongo.Collection
	categories    *mongo.Collection
	commodities   *mongo.Collection
	prices        *mongo.Collection
	farmgate      *mongo.Collection
	users         *mongo.Collection
	notifications *mongo.Collection
}

// NewMongoStore binds the store to the collections of db.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		markets:       db.Collection(CollectionMarkets),
		categories:    db.Collection(CollectionCategories),
		commodities:   db.Collection(CollectionCommodities),
		prices:        db.Collection(CollectionPrices),
		farmgate:      db.Collection(CollectionFarmgate),
		users:         db.Collection(CollectionUsers),
		notifications: db.Collection(CollectionNotifications),
	}
}

// EnsureIndexes creates the indexes the queries rely on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	caseless := options.Index().
		SetUnique(true).
		SetCollation(&options.Collation{Locale: "en", Strength: 2})
	if _, err := s.categories.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "name", Value: 1}}, Options: caseless,
	}); err != nil {
		return fmt.Errorf("categories index: %w", err)
	}
	if _, err := s.prices.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "date_submitted", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "trader_id", Value: 1}, {Key: "date_submitted", Value: -1}}},
		{Keys: bson.D{{Key: "commodity_id", Value: 1}, {Key: "market_id", Value: 1}, {Key: "date_submitted", Value: -1}}},
	}); err != nil {
		return fmt.Errorf("prices indexes: %w", err)
	}
	if _, err := s.notifications.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
	}); err != nil {
		return fmt.Errorf("notifications index: %w", err)
	}
	return nil
}

// priceDoc is the stored form of model.PriceRecord.
type priceDoc struct {
	ID            string               `bson:"_id"`
	MarketID      string               `bson:"market_id"`
	CommodityID   string               `bson:"commodity_id"`
	TraderID      string               `bson:"trader_id"`
	Price         primitive.Decimal128 `bson:"price"`
	DateSubmitted time.Time            `bson:"date_submitted"`
}

func toPriceDoc(p *model.PriceRecord) (priceDoc, error) {
	d, err := toDecimal128(p.Price)
	if err != nil {
		return priceDoc{}, err
	}
	return priceDoc{
		ID:            p.ID,
		MarketID:      p.MarketID,
		CommodityID:   p.CommodityID,
		TraderID:      p.TraderID,
		Price:         d,
		DateSubmitted: p.DateSubmitted,
	}, nil
}

func (d priceDoc) record() model.PriceRecord {
	return model.PriceRecord{
		ID:            d.ID,
		MarketID:      d.MarketID,
		CommodityID:   d.CommodityID,
		TraderID:      d.TraderID,
		Price:         fromDecimal128(d.Price),
		DateSubmitted: d.DateSubmitted.UTC(),
	}
}

// farmgateDoc is the stored form of model.FarmgateRecord.
type farmgateDoc struct {
	ID            string               `bson:"_id"`
	CommodityID   string               `bson:"commodity_id"`
	FarmerID      string               `bson:"farmer_id"`
	Location      string               `bson:"location"`
	FarmGatePrice primitive.Decimal128 `bson:"farm_gate_price"`
	TransportCost primitive.Decimal128 `bson:"transport_cost"`
	DateSubmitted time.Time            `bson:"date_submitted"`
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("decimal %s: %w", d, err)
	}
	return v, nil
}

func fromDecimal128(v primitive.Decimal128) decimal.Decimal {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}

// mongoErr maps driver errors onto the store sentinels.
func mongoErr(what string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s: %w", what, ErrConflict)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func byID(id string) bson.M { return bson.M{"_id": id} }

// findAll decodes every document matched by filter into T.
func findAll[T any](ctx context.Context, c *mongo.Collection, filter any, opts ...*options.FindOptions) ([]T, error) {
	cursor, err := c.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []T
	for cursor.Next(ctx) {
		var doc T
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, cursor.Err()
}

var byNameThenID = options.Find().SetSort(bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}})

// --- Markets ---

func (s *MongoStore) CreateMarket(ctx context.Context, m *model.Market) error {
	newID(&m.ID)
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := s.markets.InsertOne(ctx, m)
	return mongoErr("create market", err)
}

func (s *MongoStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	var m model.Market
	if err := s.markets.FindOne(ctx, byID(id)).Decode(&m); err != nil {
		return nil, mongoErr("get market "+id, err)
	}
	return &m, nil
}

func (s *MongoStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	out, err := findAll[model.Market](ctx, s.markets, bson.M{}, byNameThenID)
	return out, mongoErr("list markets", err)
}

func (s *MongoStore) UpdateMarket(ctx context.Context, m *model.Market) error {
	res, err := s.markets.UpdateOne(ctx, byID(m.ID), bson.M{"$set": bson.M{
		"name": m.Name, "location": m.Location,
	}})
	if err != nil {
		return mongoErr("update market "+m.ID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("market %s: %w", m.ID, ErrNotFound)
	}
	return nil
}

func (s *MongoStore) DeleteMarket(ctx context.Context, id string) error {
	return s.deleteOne(ctx, s.markets, "market", id)
}

func (s *MongoStore) deleteOne(ctx context.Context, c *mongo.Collection, kind, id string) error {
	res, err := c.DeleteOne(ctx, byID(id))
	if err != nil {
		return mongoErr("delete "+kind+" "+id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

// --- Categories ---

func (s *MongoStore) CreateCategory(ctx context.Context, c *model.Category) error {
	newID(&c.ID)
	_, err := s.categories.InsertOne(ctx, c)
	return mongoErr(fmt.Sprintf("category %q", c.Name), err)
}

func (s *MongoStore) ListCategories(ctx context.Context) ([]model.Category, error) {
	out, err := findAll[model.Category](ctx, s.categories, bson.M{}, byNameThenID)
	return out, mongoErr("list categories", err)
}

func (s *MongoStore) DeleteCategory(ctx context.Context, id string) error {
	return s.deleteOne(ctx, s.categories, "category", id)
}

// --- Commodities ---

func (s *MongoStore) CreateCommodity(ctx context.Context, c *model.Commodity) error {
	newID(&c.ID)
	_, err := s.commodities.InsertOne(ctx, c)
	return mongoErr("create commodity", err)
}

func (s *MongoStore) GetCommodity(ctx context.Context, id string) (*model.Commodity, error) {
	var c model.Commodity
	if err := s.commodities.FindOne(ctx, byID(id)).Decode(&c); err != nil {
		return nil, mongoErr("get commodity "+id, err)
	}
	return &c, nil
}

func (s *MongoStore) ListCommodities(ctx context.Context) ([]model.Commodity, error) {
	out, err := findAll[model.Commodity](ctx, s.commodities, bson.M{}, byNameThenID)
	return out, mongoErr("list commodities", err)
}

func (s *MongoStore) UpdateCommodity(ctx context.Context, c *model.Commodity) error {
	res, err := s.commodities.ReplaceOne(ctx, byID(c.ID), c)
	if err != nil {
		return mongoErr("update commodity "+c.ID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("commodity %s: %w", c.ID, ErrNotFound)
	}
	return nil
}

func (s *MongoStore) DeleteCommodity(ctx context.Context, id string) error {
	return s.deleteOne(ctx, s.commodities, "commodity", id)
}

// --- Price records ---

func (s *MongoStore) InsertPrice(ctx context.Context, p *model.PriceRecord) error {
	newID(&p.ID)
	doc, err := toPriceDoc(p)
	if err != nil {
		return err
	}
	_, err = s.prices.InsertOne(ctx, doc)
	return mongoErr("insert price", err)
}

func (s *MongoStore) GetPrice(ctx context.Context, id string) (*model.PriceRecord, error) {
	var doc priceDoc
	if err := s.prices.FindOne(ctx, byID(id)).Decode(&doc); err != nil {
		return nil, mongoErr("get price "+id, err)
	}
	p := doc.record()
	return &p, nil
}

func (s *MongoStore) UpdatePrice(ctx context.Context, id string, price decimal.Decimal, at time.Time) (*model.PriceRecord, error) {
	d, err := toDecimal128(price)
	if err != nil {
		return nil, err
	}
	var doc priceDoc
	err = s.prices.FindOneAndUpdate(ctx, byID(id),
		bson.M{"$set": bson.M{"price": d, "date_submitted": at}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return nil, mongoErr("update price "+id, err)
	}
	p := doc.record()
	return &p, nil
}

func (s *MongoStore) ListPrices(ctx context.Context, q PriceQuery) ([]model.PriceRecord, error) {
	filter := bson.M{}
	if q.TraderID != "" {
		filter["trader_id"] = q.TraderID
	}
	if q.CommodityID != "" {
		filter["commodity_id"] = q.CommodityID
	}
	if q.MarketID != "" {
		filter["market_id"] = q.MarketID
	}
	date := bson.M{}
	if !q.Since.IsZero() {
		date["$gte"] = q.Since
	}
	if !q.Before.IsZero() {
		date["$lt"] = q.Before
	}
	if len(date) > 0 {
		filter["date_submitted"] = date
	}

	opts := options.Find().SetSort(bson.D{{Key: "date_submitted", Value: -1}, {Key: "_id", Value: -1}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	docs, err := findAll[priceDoc](ctx, s.prices, filter, opts)
	if err != nil {
		return nil, mongoErr("list prices", err)
	}
	out := make([]model.PriceRecord, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.record())
	}
	return out, nil
}

// --- Farm-gate prices ---

func (s *MongoStore) InsertFarmgate(ctx context.Context, f *model.FarmgateRecord) error {
	newID(&f.ID)
	price, err := toDecimal128(f.FarmGatePrice)
	if err != nil {
		return err
	}
	cost, err := toDecimal128(f.TransportCost)
	if err != nil {
		return err
	}
	_, err = s.farmgate.InsertOne(ctx, farmgateDoc{
		ID:            f.ID,
		CommodityID:   f.CommodityID,
		FarmerID:      f.FarmerID,
		Location:      f.Location,
		FarmGatePrice: price,
		TransportCost: cost,
		DateSubmitted: f.DateSubmitted,
	})
	return mongoErr("insert farmgate price", err)
}

func (s *MongoStore) ListFarmgate(ctx context.Context, commodityID string) ([]model.FarmgateRecord, error) {
	filter := bson.M{}
	if commodityID != "" {
		filter["commodity_id"] = commodityID
	}
	docs, err := findAll[farmgateDoc](ctx, s.farmgate, filter,
		options.Find().SetSort(bson.D{{Key: "date_submitted", Value: -1}, {Key: "_id", Value: -1}}))
	if err != nil {
		return nil, mongoErr("list farmgate prices", err)
	}
	out := make([]model.FarmgateRecord, 0, len(docs))
	for _, d := range docs {
		out = append(out, model.FarmgateRecord{
			ID:            d.ID,
			CommodityID:   d.CommodityID,
			FarmerID:      d.FarmerID,
			Location:      d.Location,
			FarmGatePrice: fromDecimal128(d.FarmGatePrice),
			TransportCost: fromDecimal128(d.TransportCost),
			DateSubmitted: d.DateSubmitted.UTC(),
		})
	}
	return out, nil
}

// --- Users ---

func (s *MongoStore) CreateUser(ctx context.Context, u *model.User) error {
	newID(&u.ID)
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.users.InsertOne(ctx, u)
	return mongoErr("create user", err)
}

func (s *MongoStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	if err := s.users.FindOne(ctx, byID(id)).Decode(&u); err != nil {
		return nil, mongoErr("get user "+id, err)
	}
	return &u, nil
}

// --- Notifications ---

func (s *MongoStore) InsertNotification(ctx context.Context, n *model.Notification) error {
	newID(&n.ID)
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	_, err := s.notifications.InsertOne(ctx, n)
	return mongoErr("insert notification", err)
}

func (s *MongoStore) ListNotifications(ctx context.Context, userID string) ([]model.Notification, error) {
	out, err := findAll[model.Notification](ctx, s.notifications, bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}))
	return out, mongoErr("list notifications", err)
}

func (s *MongoStore) MarkNotificationRead(ctx context.Context, userID, id string) error {
	res, err := s.notifications.UpdateOne(ctx,
		bson.M{"_id": id, "user_id": userID},
		bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return mongoErr("mark notification "+id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	return nil
}
