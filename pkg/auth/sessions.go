package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultSessionTTL is how long a login stays valid.
const DefaultSessionTTL = 24 * time.Hour

const sessionPrefix = "coworker:session:"

// Sessions maps opaque login tokens to usernames.
type Sessions interface {
	Create(ctx context.Context, username string) (string, error)
	Lookup(ctx context.Context, token string) (string, error)
	Delete(ctx context.Context, token string) error
}

type memorySession struct {
	username string
	expires  time.Time
}

// MemorySessions keeps sessions in process memory.
type MemorySessions struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]memorySession
}

// NewMemorySessions creates a MemorySessions. ttl <= 0 uses DefaultSessionTTL.
func NewMemorySessions(ttl time.Duration) *MemorySessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &MemorySessions{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]memorySession),
	}
}

// Create implements Sessions.
func (m *MemorySessions) Create(_ context.Context, username string) (string, error) {
	token := uuid.NewString()
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for t, s := range m.sessions {
		if now.After(s.expires) {
			delete(m.sessions, t)
		}
	}
	m.sessions[token] = memorySession{username: username, expires: now.Add(m.ttl)}
	return token, nil
}

// Lookup implements Sessions.
func (m *MemorySessions) Lookup(_ context.Context, token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	if !ok {
		return "", ErrSessionNotFound
	}
	if m.now().After(s.expires) {
		delete(m.sessions, token)
		return "", ErrSessionNotFound
	}
	return s.username, nil
}

// Delete implements Sessions.
func (m *MemorySessions) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	delete(m.sessions, token)
	m.mu.Unlock()
	return nil
}

// RedisSessions stores sessions as expiring Redis keys.
type RedisSessions struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisSessions creates RedisSessions on an existing client.
func NewRedisSessions(rdb *redis.Client, ttl time.Duration) *RedisSessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &RedisSessions{rdb: rdb, ttl: ttl}
}

// OpenRedisSessions parses redisURL, connects and pings.
func OpenRedisSessions(ctx context.Context, redisURL string, ttl time.Duration) (*RedisSessions, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("auth: invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("auth: ping redis: %w", err)
	}
	return NewRedisSessions(rdb, ttl), nil
}

// Create implements Sessions.
func (r *RedisSessions) Create(ctx context.Context, username string) (string, error) {
	token := uuid.NewString()
	if err := r.rdb.Set(ctx, sessionPrefix+token, username, r.ttl).Err(); err != nil {
		return "", fmt.Errorf("auth: save session: %w", err)
	}
	return token, nil
}

// Lookup implements Sessions.
func (r *RedisSessions) Lookup(ctx context.Context, token string) (string, error) {
	username, err := r.rdb.Get(ctx, sessionPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrSessionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("auth: load session: %w", err)
	}
	return username, nil
}

// Delete implements Sessions.
func (r *RedisSessions) Delete(ctx context.Context, token string) error {
	if err := r.rdb.Del(ctx, sessionPrefix+token).Err(); err != nil {
		return fmt.Errorf("auth: delete session: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (r *RedisSessions) Close() error {
	return r.rdb.Close()
}

var (
	_ Sessions = (*MemorySessions)(nil)
	_ Sessions = (*RedisSessions)(nil)
)
