package session_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agromarket/price-tracker/internal/identity"
	"github.com/agromarket/price-tracker/internal/model"
	"github.com/agromarket/price-tracker/internal/session"
	"github.com/agromarket/price-tracker/internal/store"
)

const password = "correct horse"

// countingDir counts successful user record creations.
type countingDir struct {
	*store.MemoryStore
	created atomic.Int32
}

func (d *countingDir) CreateUser(ctx context.Context, u *model.User) error {
	err := d.MemoryStore.CreateUser(ctx, u)
	if err == nil {
		d.created.Add(1)
	}
	return err
}

func newIdentity() *identity.Service {
	return identity.NewService(identity.NewMemoryAccounts(), identity.NewMemorySessions(), identity.Config{
		Secret:     []byte("test-secret"),
		SessionTTL: time.Hour,
	})
}

func setup(t *testing.T) (*session.Manager, *identity.Service, *countingDir) {
	t.Helper()
	ids := newIdentity()
	dir := &countingDir{MemoryStore: store.NewMemoryStore()}
	return session.NewManager(ids, dir), ids, dir
}

func TestStart_NoToken(t *testing.T) {
	m, _, _ := setup(t)
	r := m.NewResolver(&session.MemoryTokens{})
	assert.Equal(t, session.Uninitialized, r.State())

	p, err := r.Start(context.Background())
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Equal(t, session.Anonymous, r.State())
}

func TestStart_StaleTokenDiscarded(t *testing.T) {
	m, _, _ := setup(t)
	tokens := &session.MemoryTokens{}
	tokens.SetToken("expired-or-forged")
	r := m.NewResolver(tokens)

	p, err := r.Start(context.Background())
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Equal(t, session.Anonymous, r.State())
	_, ok := tokens.Token()
	assert.False(t, ok)
}

func TestRegister_AssignsRequestedRole(t *testing.T) {
	m, _, dir := setup(t)
	tokens := &session.MemoryTokens{}
	r := m.NewResolver(tokens)

	p, err := r.Register(context.Background(), "Tunde", "tunde@example.com", password, "trader")
	require.NoError(t, err)
	assert.Equal(t, model.RoleTrader, p.Role)
	assert.Equal(t, session.Authenticated, r.State())
	_, ok := tokens.Token()
	assert.True(t, ok)

	u, err := dir.GetUser(context.Background(), p.Identity.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleTrader, u.Role)

	// a fresh resolver over the same token resolves the same principal
	again, err := m.NewResolver(tokens).Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, p, again)
}

func TestRegister_Failures(t *testing.T) {
	m, _, _ := setup(t)
	r := m.NewResolver(&session.MemoryTokens{})

	_, err := r.Register(context.Background(), "Root", "root@example.com", password, "admin")
	assert.Equal(t, session.KindInvalidInput, session.KindOf(err))

	_, err = r.Register(context.Background(), "X", "x@example.com", password, "superuser")
	assert.Equal(t, session.KindInvalidInput, session.KindOf(err))

	_, err = r.Register(context.Background(), "Ada", "ada@example.com", password, "viewer")
	require.NoError(t, err)
	assert.Equal(t, model.RoleBuyer, r.Principal().Role)

	_, err = m.NewResolver(&session.MemoryTokens{}).Register(context.Background(), "Ada", "ADA@example.com", password, "")
	assert.Equal(t, session.KindAlreadyRegistered, session.KindOf(err))
}

func TestLogin_InvalidCredentials(t *testing.T) {
	m, ids, _ := setup(t)
	_, err := ids.CreateAccount(context.Background(), "Ada", "ada@example.com", password)
	require.NoError(t, err)

	r := m.NewResolver(&session.MemoryTokens{})
	_, err = r.Login(context.Background(), "ada@example.com", "nope nope")
	var se *session.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, session.KindInvalidCredentials, se.Kind)
	assert.False(t, se.Retryable())
	assert.Equal(t, session.Anonymous, r.State())
}

func TestLogin_DefaultsAndProvisionsOnce(t *testing.T) {
	m, ids, dir := setup(t)
	acc, err := ids.CreateAccount(context.Background(), "Ada", "ada@example.com", password)
	require.NoError(t, err)

	var wg sync.WaitGroup
	roles := make([]model.Role, 8)
	for i := range roles {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := m.NewResolver(&session.MemoryTokens{}).Login(context.Background(), "ada@example.com", password)
			if assert.NoError(t, err) {
				roles[i] = p.Role
			}
		}()
	}
	wg.Wait()

	for _, role := range roles {
		assert.Equal(t, model.RoleBuyer, role)
	}
	assert.Equal(t, int32(1), dir.created.Load())
	u, err := dir.GetUser(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleBuyer, u.Role)
}

func TestResolve_LegacyAndUnknownStoredRoles(t *testing.T) {
	m, ids, dir := setup(t)
	ctx := context.Background()

	for email, stored := range map[string]model.Role{
		"legacy@example.com": "viewer",
		"broken@example.com": "superuser",
		"farmer@example.com": "Farmer",
	} {
		acc, err := ids.CreateAccount(ctx, "", email, password)
		require.NoError(t, err)
		require.NoError(t, dir.MemoryStore.CreateUser(ctx, &model.User{ID: acc.ID, Role: stored}))
	}

	want := map[string]model.Role{
		"legacy@example.com": model.RoleBuyer,
		"broken@example.com": model.RoleBuyer,
		"farmer@example.com": model.RoleFarmer,
	}
	for email, role := range want {
		p, err := m.NewResolver(&session.MemoryTokens{}).Login(ctx, email, password)
		require.NoError(t, err)
		assert.Equal(t, role, p.Role, email)
	}
}

// flakyIdentity fails remote calls with a transport error.
type flakyIdentity struct {
	*identity.Service
	failCurrent bool
}

var errNetwork = errors.New("connection reset")

func (f *flakyIdentity) Current(ctx context.Context, token string) (*identity.Identity, error) {
	if f.failCurrent {
		return nil, errNetwork
	}
	return f.Service.Current(ctx, token)
}

func (f *flakyIdentity) DeleteSession(context.Context, string) error {
	return errNetwork
}

func TestLogout_ClearsLocalStateWhenRemoteFails(t *testing.T) {
	ids := &flakyIdentity{Service: newIdentity()}
	m := session.NewManager(ids, store.NewMemoryStore())
	tokens := &session.MemoryTokens{}
	r := m.NewResolver(tokens)

	_, err := r.Register(context.Background(), "Ada", "ada@example.com", password, "")
	require.NoError(t, err)

	r.Logout(context.Background())
	assert.Equal(t, session.Anonymous, r.State())
	assert.Nil(t, r.Principal())
	_, ok := tokens.Token()
	assert.False(t, ok)
}

func TestStart_TransientFailureKeepsToken(t *testing.T) {
	ids := &flakyIdentity{Service: newIdentity()}
	m := session.NewManager(ids, store.NewMemoryStore())
	tokens := &session.MemoryTokens{}
	_, err := m.NewResolver(tokens).Register(context.Background(), "Ada", "ada@example.com", password, "")
	require.NoError(t, err)

	ids.failCurrent = true
	r := m.NewResolver(tokens)
	_, err = r.Start(context.Background())
	assert.Equal(t, session.KindUnknown, session.KindOf(err))
	assert.ErrorIs(t, err, errNetwork)
	assert.Equal(t, session.Anonymous, r.State())
	_, ok := tokens.Token()
	assert.True(t, ok, "a transport failure is not a reason to forget the session")
}

// slowIdentity delays Current until delay passes or ctx ends.
type slowIdentity struct {
	*identity.Service
	delay time.Duration
}

func (s *slowIdentity) Current(ctx context.Context, token string) (*identity.Identity, error) {
	select {
	case <-time.After(s.delay):
		return s.Service.Current(ctx, token)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestResolve_CancelledCallerDoesNotFailOthers(t *testing.T) {
	ids := &slowIdentity{Service: newIdentity(), delay: 200 * time.Millisecond}
	m := session.NewManager(ids, store.NewMemoryStore())
	tokens := &session.MemoryTokens{}
	_, err := m.NewResolver(tokens).Register(context.Background(), "Ada", "ada@example.com", password, "trader")
	require.NoError(t, err)
	token, _ := tokens.Token()

	ctxA, cancelA := context.WithCancel(context.Background())
	var (
		wg   sync.WaitGroup
		errA error
		pB   *session.Principal
		errB error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errA = m.Resolve(ctxA, token)
	}()
	time.Sleep(10 * time.Millisecond)
	go func() {
		defer wg.Done()
		pB, errB = m.Resolve(context.Background(), token)
	}()
	time.Sleep(30 * time.Millisecond)
	cancelA()
	wg.Wait()

	assert.ErrorIs(t, errA, context.Canceled)
	require.NoError(t, errB)
	require.NotNil(t, pB)
	assert.Equal(t, model.RoleTrader, pB.Role)
}

// failingDir fails the next n CreateUser calls with a transport error.
type failingDir struct {
	*store.MemoryStore
	n atomic.Int32
}

func (d *failingDir) CreateUser(ctx context.Context, u *model.User) error {
	if d.n.Add(-1) >= 0 {
		return errNetwork
	}
	return d.MemoryStore.CreateUser(ctx, u)
}

func TestRegister_RetriesRoleRecord(t *testing.T) {
	dir := &failingDir{MemoryStore: store.NewMemoryStore()}
	dir.n.Store(1)
	m := session.NewManager(newIdentity(), dir)

	p, err := m.NewResolver(&session.MemoryTokens{}).Register(context.Background(), "Ada", "ada@example.com", password, "farmer")
	require.NoError(t, err)
	assert.Equal(t, model.RoleFarmer, p.Role)

	u, err := dir.GetUser(context.Background(), p.Identity.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleFarmer, u.Role)
}

func TestRegister_RoleRecordFailureReported(t *testing.T) {
	dir := &failingDir{MemoryStore: store.NewMemoryStore()}
	dir.n.Store(2)
	m := session.NewManager(newIdentity(), dir)
	r := m.NewResolver(&session.MemoryTokens{})

	_, err := r.Register(context.Background(), "Ada", "ada@example.com", password, "trader")
	assert.Equal(t, session.KindUnknown, session.KindOf(err))
	assert.ErrorIs(t, err, errNetwork)
	assert.Equal(t, session.Anonymous, r.State())
}
