package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionStore maps live session ids to account ids. Get returns
// ErrInvalidSession for unknown or expired sessions.
type SessionStore interface {
	Put(ctx context.Context, sessionID, userID string, ttl time.Duration) error
	Get(ctx context.Context, sessionID string) (string, error)
	Delete(ctx context.Context, sessionID string) error
}

// --- Memory ---

type memSession struct {
	userID  string
	expires time.Time
}

// MemorySessions keeps sessions in process memory.
type MemorySessions struct {
	mu       sync.Mutex
	sessions map[string]memSession
}

func NewMemorySessions() *MemorySessions {
	return &MemorySessions{sessions: make(map[string]memSession)}
}

func (m *MemorySessions) Put(_ context.Context, sessionID, userID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionID] = memSession{userID: userID, expires: time.Now().Add(ttl)}
	return nil
}

func (m *MemorySessions) Get(_ context.Context, sessionID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return "", ErrInvalidSession
	}
	if time.Now().After(s.expires) {
		delete(m.sessions, sessionID)
		return "", ErrInvalidSession
	}
	return s.userID, nil
}

func (m *MemorySessions) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

// --- Redis ---

// RedisSessions stores sessions as expiring Redis keys.
type RedisSessions struct {
	rdb *redis.Client
}

func NewRedisSessions(rdb *redis.Client) *RedisSessions {
	return &RedisSessions{rdb: rdb}
}

func sessionKey(id string) string { return fmt.Sprintf("session:%s", id) }

func (r *RedisSessions) Put(ctx context.Context, sessionID, userID string, ttl time.Duration) error {
	return r.rdb.Set(ctx, sessionKey(sessionID), userID, ttl).Err()
}

func (r *RedisSessions) Get(ctx context.Context, sessionID string) (string, error) {
	uid, err := r.rdb.Get(ctx, sessionKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrInvalidSession
	}
	if err != nil {
		return "", fmt.Errorf("get session: %w", err)
	}
	return uid, nil
}

func (r *RedisSessions) Delete(ctx context.Context, sessionID string) error {
	return r.rdb.Del(ctx, sessionKey(sessionID)).Err()
}
