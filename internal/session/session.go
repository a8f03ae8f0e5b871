// Package session resolves who is calling and with which role. A Manager is
// shared by the process; each client gets a Resolver that moves through
//
//	Uninitialized → Resolving → Authenticated | Anonymous
//
// Roles come from the user records in the reference store, keyed by the
// identity id. An identity without a record is a buyer, and a record with
// that role is provisioned for it on first resolution.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/agromarket/price-tracker/internal/identity"
	"github.com/agromarket/price-tracker/internal/metrics"
	"github.com/agromarket/price-tracker/internal/model"
	"github.com/agromarket/price-tracker/internal/store"
)

// IdentityService is the account and session backend.
type IdentityService interface {
	CreateAccount(ctx context.Context, name, email, password string) (*identity.Identity, error)
	CreateSession(ctx context.Context, email, password string) (*identity.Session, error)
	Current(ctx context.Context, token string) (*identity.Identity, error)
	DeleteSession(ctx context.Context, token string) error
}

// RoleDirectory holds the user records that carry roles.
type RoleDirectory interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
	CreateUser(ctx context.Context, u *model.User) error
}

// TokenStore is where a client keeps its session token between requests.
type TokenStore interface {
	Token() (string, bool)
	SetToken(token string)
	ClearToken()
}

// Principal is an authenticated caller.
type Principal struct {
	Identity identity.Identity `json:"identity"`
	Role     model.Role        `json:"role"`
}

// Manager resolves tokens to principals. Concurrent resolutions of the same
// token, and concurrent provisioning of the same identity, share one call.
type Manager struct {
	ids   IdentityService
	dir   RoleDirectory
	group singleflight.Group
}

// NewManager creates a manager.
func NewManager(ids IdentityService, dir RoleDirectory) *Manager {
	return &Manager{ids: ids, dir: dir}
}

// ResolveTimeout bounds one shared token resolution.
const ResolveTimeout = 10 * time.Second

// Resolve returns the principal behind token. The shared lookup is not
// tied to any single caller: a caller that gives up returns its own
// ctx.Err() while the others keep waiting.
func (m *Manager) Resolve(ctx context.Context, token string) (*Principal, error) {
	ch := m.group.DoChan("token:"+token, func() (any, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ResolveTimeout)
		defer cancel()
		ident, err := m.ids.Current(sctx, token)
		if err != nil {
			return nil, err
		}
		role, err := m.roleFor(sctx, ident)
		if err != nil {
			return nil, err
		}
		return Principal{Identity: *ident, Role: role}, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		p := res.Val.(Principal)
		return &p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// roleFor looks the role up by identity id, provisioning a default record
// when none exists. A stored role that does not parse falls back to the
// default without rewriting the record.
func (m *Manager) roleFor(ctx context.Context, ident *identity.Identity) (model.Role, error) {
	u, err := m.dir.GetUser(ctx, ident.ID)
	if errors.Is(err, store.ErrNotFound) {
		return m.provision(ctx, ident)
	}
	if err != nil {
		return "", fmt.Errorf("role lookup: %w", err)
	}
	role, err := model.ParseRole(string(u.Role))
	if err != nil {
		slog.Warn("unrecognised stored role", "user_id", ident.ID, "role", u.Role)
		return model.DefaultRole, nil
	}
	return role, nil
}

func (m *Manager) provision(ctx context.Context, ident *identity.Identity) (model.Role, error) {
	v, err, _ := m.group.Do("provision:"+ident.ID, func() (any, error) {
		if u, err := m.dir.GetUser(ctx, ident.ID); err == nil {
			return u.Role, nil
		}
		u := &model.User{ID: ident.ID, Name: ident.Name, Email: ident.Email, Role: model.DefaultRole}
		err := m.dir.CreateUser(ctx, u)
		switch {
		case err == nil:
			metrics.RolesProvisioned.Inc()
			slog.Info("provisioned user record", "user_id", ident.ID, "role", u.Role)
			return u.Role, nil
		case errors.Is(err, store.ErrConflict):
			existing, gerr := m.dir.GetUser(ctx, ident.ID)
			if gerr != nil {
				return nil, fmt.Errorf("role lookup: %w", gerr)
			}
			return existing.Role, nil
		}
		// Provisioning is optional; the caller still gets the default role.
		slog.Warn("user record not provisioned", "user_id", ident.ID, "err", err)
		return model.DefaultRole, nil
	})
	if err != nil {
		return "", err
	}
	role, perr := model.ParseRole(string(v.(model.Role)))
	if perr != nil {
		return model.DefaultRole, nil
	}
	return role, nil
}

// createRoleRecord stores the role chosen at registration, retrying once.
// The account already exists, so a record lost here would leave the
// identity to be provisioned later with the default role.
func (m *Manager) createRoleRecord(ctx context.Context, ident *identity.Identity, role model.Role) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		u := &model.User{ID: ident.ID, Name: ident.Name, Email: ident.Email, Role: role, CreatedAt: ident.CreatedAt}
		err = m.dir.CreateUser(ctx, u)
		if err == nil || errors.Is(err, store.ErrConflict) {
			return nil
		}
	}
	slog.Error("role record not created; identity will default to buyer",
		"user_id", ident.ID, "requested_role", role, "err", err)
	return fmt.Errorf("create role record: %w", err)
}

// State is a Resolver state.
type State int

const (
	Uninitialized State = iota
	Resolving
	Authenticated
	Anonymous
)

func (s State) String() string {
	switch s {
	case Resolving:
		return "resolving"
	case Authenticated:
		return "authenticated"
	case Anonymous:
		return "anonymous"
	}
	return "uninitialized"
}

// Resolver tracks one client's session.
type Resolver struct {
	m      *Manager
	tokens TokenStore

	mu        sync.Mutex
	state     State
	principal *Principal
}

// NewResolver creates a resolver in the Uninitialized state.
func (m *Manager) NewResolver(tokens TokenStore) *Resolver {
	return &Resolver{m: m, tokens: tokens}
}

// State returns the current state.
func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Principal returns the authenticated caller, or nil.
func (r *Resolver) Principal() *Principal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.principal
}

func (r *Resolver) set(state State, p *Principal) {
	r.mu.Lock()
	r.state, r.principal = state, p
	r.mu.Unlock()
}

// Start resolves the persisted token. A missing, expired or revoked token
// leaves the resolver Anonymous with a nil error; a stale token is
// discarded. Other failures are returned and the token is kept.
func (r *Resolver) Start(ctx context.Context) (*Principal, error) {
	r.set(Resolving, nil)

	token, ok := r.tokens.Token()
	if !ok || token == "" {
		r.set(Anonymous, nil)
		return nil, nil
	}
	p, err := r.m.Resolve(ctx, token)
	if errors.Is(err, identity.ErrInvalidSession) {
		slog.Debug("no active session", "err", err)
		r.tokens.ClearToken()
		r.set(Anonymous, nil)
		return nil, nil
	}
	if err != nil {
		r.set(Anonymous, nil)
		return nil, classify(err)
	}
	r.set(Authenticated, p)
	return p, nil
}

// Login opens a session for email and password.
func (r *Resolver) Login(ctx context.Context, email, password string) (*Principal, error) {
	r.set(Resolving, nil)
	sess, err := r.m.ids.CreateSession(ctx, email, password)
	if err != nil {
		r.set(Anonymous, nil)
		return nil, classify(err)
	}
	r.tokens.SetToken(sess.Token)

	p, err := r.m.Resolve(ctx, sess.Token)
	if err != nil {
		r.tokens.ClearToken()
		r.set(Anonymous, nil)
		return nil, classify(err)
	}
	r.set(Authenticated, p)
	return p, nil
}

// Register creates an account with the requested role and logs in. Admin
// cannot be self-assigned.
func (r *Resolver) Register(ctx context.Context, name, email, password, role string) (*Principal, error) {
	parsed := model.DefaultRole
	if role != "" {
		var err error
		if parsed, err = model.ParseRole(role); err != nil {
			return nil, classify(err)
		}
	}
	if parsed == model.RoleAdmin {
		return nil, &Error{Kind: KindInvalidInput, Err: fmt.Errorf("%w: admin cannot be self-assigned", model.ErrInvalidRole)}
	}

	ident, err := r.m.ids.CreateAccount(ctx, name, email, password)
	if err != nil {
		r.set(Anonymous, nil)
		return nil, classify(err)
	}
	if err := r.m.createRoleRecord(ctx, ident, parsed); err != nil {
		r.set(Anonymous, nil)
		return nil, classify(err)
	}
	return r.Login(ctx, email, password)
}

// Logout revokes the remote session if possible and always clears the
// local one.
func (r *Resolver) Logout(ctx context.Context) {
	if token, ok := r.tokens.Token(); ok && token != "" {
		if err := r.m.ids.DeleteSession(ctx, token); err != nil {
			slog.Warn("remote session not revoked", "err", err)
		}
	}
	r.tokens.ClearToken()
	r.set(Anonymous, nil)
}

// MemoryTokens is a TokenStore held in memory.
type MemoryTokens struct {
	mu    sync.Mutex
	token string
}

func (t *MemoryTokens) Token() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.token, t.token != ""
}

func (t *MemoryTokens) SetToken(token string) {
	t.mu.Lock()
	t.token = token
	t.mu.Unlock()
}

func (t *MemoryTokens) ClearToken() { t.SetToken("") }
