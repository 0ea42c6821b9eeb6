package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/glossbook/auth-backend/internal/domain"
	"github.com/glossbook/auth-backend/pkg/config"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionStore provides persistent session storage.
// Implementations must be safe for concurrent use.
type SessionStore interface {
	// Save writes a session with the given TTL, creating or refreshing it.
	Save(ctx context.Context, session *domain.Session, ttl time.Duration) error

	// Get retrieves a live session by ID.
	Get(ctx context.Context, sessionID string) (*domain.Session, error)

	// Delete removes a session by ID. Deleting a missing session is not
	// an error.
	Delete(ctx context.Context, sessionID string) error

	// ListByUser returns all live sessions belonging to a user.
	ListByUser(ctx context.Context, userID string) ([]*domain.Session, error)

	// Close releases resources.
	Close() error
}

type memorySession struct {
	session   *domain.Session
	expiresAt time.Time
}

// MemorySessionStore is an in-memory session store for development/testing.
type MemorySessionStore struct {
	mu        sync.RWMutex
	sessions  map[string]memorySession
	userIndex map[string]map[string]struct{} // userID -> set of sessionIDs
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions:  make(map[string]memorySession),
		userIndex: make(map[string]map[string]struct{}),
	}
}

func (m *MemorySessionStore) Save(ctx context.Context, session *domain.Session, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[session.ID] = memorySession{
		session:   session,
		expiresAt: time.Now().Add(ttl),
	}
	userID := session.Identity.UserID
	if m.userIndex[userID] == nil {
		m.userIndex[userID] = make(map[string]struct{})
	}
	m.userIndex[userID][session.ID] = struct{}{}
	return nil
}

func (m *MemorySessionStore) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.sessions[sessionID]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, ErrSessionNotFound
	}
	return entry.session, nil
}

func (m *MemorySessionStore) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.sessions[sessionID]
	if !ok {
		return nil // Idempotent
	}

	delete(m.sessions, sessionID)
	if ids := m.userIndex[entry.session.Identity.UserID]; ids != nil {
		delete(ids, sessionID)
	}
	return nil
}

func (m *MemorySessionStore) ListByUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	result := make([]*domain.Session, 0)
	for id := range m.userIndex[userID] {
		entry, ok := m.sessions[id]
		if !ok || now.After(entry.expiresAt) {
			continue
		}
		result = append(result, entry.session)
	}
	return result, nil
}

func (m *MemorySessionStore) Close() error {
	return nil
}

// RedisSessionStore stores sessions in Redis for horizontal scaling.
// Expiry is delegated to Redis key TTLs, so a refreshed Save is all it
// takes to slide a session's lifetime forward.
type RedisSessionStore struct {
	client    *redis.Client
	keyPrefix string
	logger    *zap.Logger
}

// NewRedisSessionStore creates a new Redis session store.
func NewRedisSessionStore(cfg *config.RedisConfig, logger *zap.Logger) (*RedisSessionStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "auth:session:"
	}

	return &RedisSessionStore{
		client:    client,
		keyPrefix: prefix,
		logger:    logger.Named("redis_session_store"),
	}, nil
}

func (r *RedisSessionStore) sessionKey(sessionID string) string {
	return r.keyPrefix + sessionID
}

func (r *RedisSessionStore) userKey(userID string) string {
	return r.keyPrefix + "user:" + userID
}

func (r *RedisSessionStore) Save(ctx context.Context, session *domain.Session, ttl time.Duration) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}

	// The user index set outlives any single session, so it carries no
	// TTL; stale members are pruned on ListByUser.
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.sessionKey(session.ID), data, ttl)
	pipe.SAdd(ctx, r.userKey(session.Identity.UserID), session.ID)

	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisSessionStore) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	data, err := r.client.Get(ctx, r.sessionKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *RedisSessionStore) Delete(ctx context.Context, sessionID string) error {
	session, err := r.Get(ctx, sessionID)
	if err == ErrSessionNotFound {
		return nil // Idempotent
	}
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.sessionKey(sessionID))
	pipe.SRem(ctx, r.userKey(session.Identity.UserID), sessionID)

	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisSessionStore) ListByUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	sessionIDs, err := r.client.SMembers(ctx, r.userKey(userID)).Result()
	if err != nil {
		return nil, err
	}

	result := make([]*domain.Session, 0, len(sessionIDs))
	for _, id := range sessionIDs {
		session, err := r.Get(ctx, id)
		if err == ErrSessionNotFound {
			// Clean up stale reference
			r.client.SRem(ctx, r.userKey(userID), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		result = append(result, session)
	}

	return result, nil
}

func (r *RedisSessionStore) Close() error {
	return r.client.Close()
}
