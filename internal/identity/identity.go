// Package identity is the account and session service: password accounts,
// login sessions carried as signed tokens, and per-email throttling of
// credential checks. It knows nothing about roles.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/agromarket/price-tracker/internal/metrics"
)

var (
	ErrInvalidCredentials = errors.New("identity: invalid email or password")
	ErrAlreadyRegistered  = errors.New("identity: email already registered")
	ErrRateLimited        = errors.New("identity: too many attempts")
	ErrInvalidSession     = errors.New("identity: no valid session")
	ErrInvalidInput       = errors.New("identity: invalid account details")
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// DefaultSessionTTL is used when Config.SessionTTL is zero.
const DefaultSessionTTL = 7 * 24 * time.Hour

// Identity is the authenticated principal.
type Identity struct {
	ID        string    `json:"id" bson:"_id"`
	Name      string    `json:"name" bson:"name"`
	Email     string    `json:"email" bson:"email"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// Session is an issued login session.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Config configures the service.
type Config struct {
	Secret         []byte
	SessionTTL     time.Duration
	AttemptsPerMin int
}

// Service implements account creation and session management.
type Service struct {
	accounts AccountStore
	sessions SessionStore
	limiter  *Limiter
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
}

// NewService creates an identity service.
func NewService(accounts AccountStore, sessions SessionStore, cfg Config) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	return &Service{
		accounts: accounts,
		sessions: sessions,
		limiter:  NewLimiter(cfg.AttemptsPerMin),
		secret:   cfg.Secret,
		ttl:      cfg.SessionTTL,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateAccount registers a new password account.
func (s *Service) CreateAccount(ctx context.Context, name, email, password string) (*Identity, error) {
	email = NormalizeEmail(email)
	name = strings.TrimSpace(name)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: email", ErrInvalidInput)
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, MinPasswordLength)
	}
	if !s.limiter.Allow(email) {
		metrics.AuthFailures.WithLabelValues("rate_limited").Inc()
		return nil, ErrRateLimited
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	acc := &Account{
		Identity: Identity{
			ID:        uuid.New().String(),
			Name:      name,
			Email:     email,
			CreatedAt: s.now(),
		},
		PasswordHash: string(hash),
	}
	if err := s.accounts.Create(ctx, acc); err != nil {
		if errors.Is(err, ErrAlreadyRegistered) {
			metrics.AuthFailures.WithLabelValues("already_registered").Inc()
		}
		return nil, err
	}
	id := acc.Identity
	return &id, nil
}

// CreateSession checks credentials and issues a session token.
func (s *Service) CreateSession(ctx context.Context, email, password string) (*Session, error) {
	email = NormalizeEmail(email)
	if !s.limiter.Allow(email) {
		metrics.AuthFailures.WithLabelValues("rate_limited").Inc()
		return nil, ErrRateLimited
	}

	acc, err := s.accounts.ByEmail(ctx, email)
	if errors.Is(err, ErrAccountNotFound) {
		metrics.AuthFailures.WithLabelValues("invalid_credentials").Inc()
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)) != nil {
		metrics.AuthFailures.WithLabelValues("invalid_credentials").Inc()
		return nil, ErrInvalidCredentials
	}

	sid := uuid.New().String()
	now := s.now()
	exp := now.Add(s.ttl)
	if err := s.sessions.Put(ctx, sid, acc.ID, s.ttl); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        sid,
		Subject:   acc.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &Session{Token: token, UserID: acc.ID, ExpiresAt: exp}, nil
}

// parse verifies the token signature and expiry.
func (s *Service) parse(token string) (*jwt.RegisteredClaims, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || claims.ID == "" || claims.Subject == "" {
		return nil, ErrInvalidSession
	}
	return &claims, nil
}

// Current resolves a token to its identity. Revoked, expired and forged
// tokens all yield ErrInvalidSession.
func (s *Service) Current(ctx context.Context, token string) (*Identity, error) {
	claims, err := s.parse(token)
	if err != nil {
		return nil, err
	}
	uid, err := s.sessions.Get(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if uid != claims.Subject {
		return nil, ErrInvalidSession
	}
	acc, err := s.accounts.ByID(ctx, uid)
	if errors.Is(err, ErrAccountNotFound) {
		return nil, ErrInvalidSession
	}
	if err != nil {
		return nil, err
	}
	id := acc.Identity
	return &id, nil
}

// DeleteSession revokes the session behind token.
func (s *Service) DeleteSession(ctx context.Context, token string) error {
	claims, err := s.parse(token)
	if err != nil {
		return err
	}
	return s.sessions.Delete(ctx, claims.ID)
}
