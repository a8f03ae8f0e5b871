package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrAccountNotFound is returned by AccountStore lookups.
var ErrAccountNotFound = errors.New("identity: account not found")

// Account is an identity with its password hash.
type Account struct {
	Identity     `bson:",inline"`
	PasswordHash string `json:"-" bson:"password_hash"`
}

// AccountStore persists accounts. Create returns ErrAlreadyRegistered when
// the (normalised) email is taken.
type AccountStore interface {
	Create(ctx context.Context, a *Account) error
	ByEmail(ctx context.Context, email string) (*Account, error)
	ByID(ctx context.Context, id string) (*Account, error)
}

// --- Memory ---

// MemoryAccounts keeps accounts in process memory.
type MemoryAccounts struct {
	mu      sync.RWMutex
	byID    map[string]Account
	byEmail map[string]string
}

func NewMemoryAccounts() *MemoryAccounts {
	return &MemoryAccounts{byID: make(map[string]Account), byEmail: make(map[string]string)}
}

func (m *MemoryAccounts) Create(_ context.Context, a *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[a.Email]; ok {
		return ErrAlreadyRegistered
	}
	m.byID[a.ID] = *a
	m.byEmail[a.Email] = a.ID
	return nil
}

func (m *MemoryAccounts) ByEmail(_ context.Context, email string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byEmail[email]
	if !ok {
		return nil, ErrAccountNotFound
	}
	a := m.byID[id]
	return &a, nil
}

func (m *MemoryAccounts) ByID(_ context.Context, id string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.byID[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &a, nil
}

// --- MongoDB ---

// MongoAccounts stores accounts in a collection with a unique email index.
type MongoAccounts struct {
	coll *mongo.Collection
}

func NewMongoAccounts(db *mongo.Database) *MongoAccounts {
	return &MongoAccounts{coll: db.Collection("accounts")}
}

// EnsureIndexes creates the unique email index.
func (m *MongoAccounts) EnsureIndexes(ctx context.Context) error {
	_, err := m.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (m *MongoAccounts) Create(ctx context.Context, a *Account) error {
	_, err := m.coll.InsertOne(ctx, a)
	if mongo.IsDuplicateKeyError(err) {
		return ErrAlreadyRegistered
	}
	return err
}

func (m *MongoAccounts) find(ctx context.Context, filter bson.M) (*Account, error) {
	var a Account
	err := m.coll.FindOne(ctx, filter).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	return &a, nil
}

func (m *MongoAccounts) ByEmail(ctx context.Context, email string) (*Account, error) {
	return m.find(ctx, bson.M{"email": email})
}

func (m *MongoAccounts) ByID(ctx context.Context, id string) (*Account, error) {
	return m.find(ctx, bson.M{"_id": id})
}

// --- PostgreSQL ---

const accountsSchema = `
CREATE TABLE IF NOT EXISTS accounts (
    id             TEXT PRIMARY KEY,
    name           TEXT NOT NULL DEFAULT '',
    email          TEXT NOT NULL UNIQUE,
    password_hash  TEXT NOT NULL,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresAccounts stores accounts in the accounts table.
type PostgresAccounts struct {
	pool *pgxpool.Pool
}

func NewPostgresAccounts(pool *pgxpool.Pool) *PostgresAccounts {
	return &PostgresAccounts{pool: pool}
}

// Migrate creates the accounts table.
func (p *PostgresAccounts) Migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, accountsSchema)
	return err
}

func (p *PostgresAccounts) Create(ctx context.Context, a *Account) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO accounts (id, name, email, password_hash, created_at) VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.Name, a.Email, a.PasswordHash, a.CreatedAt)
	var pe *pgconn.PgError
	if errors.As(err, &pe) && pe.Code == "23505" {
		return ErrAlreadyRegistered
	}
	return err
}

func (p *PostgresAccounts) find(ctx context.Context, where string, arg string) (*Account, error) {
	var a Account
	err := p.pool.QueryRow(ctx,
		`SELECT id, name, email, password_hash, created_at FROM accounts WHERE `+where+` = $1`, arg).
		Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	return &a, nil
}

func (p *PostgresAccounts) ByEmail(ctx context.Context, email string) (*Account, error) {
	return p.find(ctx, "email", email)
}

func (p *PostgresAccounts) ByID(ctx context.Context, id string) (*Account, error) {
	return p.find(ctx, "id", id)
}
