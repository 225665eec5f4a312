package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smarttransit/ticket-bot/internal/models"
)

// SessionStore keeps the per-user dialog state between chat turns.
// Get returns nil, nil when the user has no live session.
type SessionStore interface {
	Get(ctx context.Context, userID int64) (*models.Session, error)
	Save(ctx context.Context, session *models.Session) error
	Delete(ctx context.Context, userID int64) error
}

// MemorySessionStore is a process-local SessionStore. Sessions idle longer than ttl are dropped.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[int64]models.Session
	ttl      time.Duration
	now      Clock
}

// NewMemorySessionStore creates an in-memory session store
func NewMemorySessionStore(ttl time.Duration, now Clock) *MemorySessionStore {
	if now == nil {
		now = time.Now
	}
	return &MemorySessionStore{
		sessions: make(map[int64]models.Session),
		ttl:      ttl,
		now:      now,
	}
}

// Get returns a copy of the user's session
func (s *MemorySessionStore) Get(ctx context.Context, userID int64) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[userID]
	if !ok {
		return nil, nil
	}
	if s.ttl > 0 && s.now().Sub(session.UpdatedAt) > s.ttl {
		delete(s.sessions, userID)
		return nil, nil
	}
	return &session, nil
}

// Save stores the session and refreshes its idle timer
func (s *MemorySessionStore) Save(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session.UpdatedAt = s.now()
	s.sessions[session.UserID] = *session
	return nil
}

// Delete clears the user's session
func (s *MemorySessionStore) Delete(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, userID)
	return nil
}

// RedisSessionStore keeps sessions in Redis as JSON with an idle TTL,
// so a restart or a second replica does not lose dialogs in flight.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisSessionStore creates a Redis-backed session store
func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{
		client: client,
		ttl:    ttl,
		prefix: "ticketbot:session:",
	}
}

func (s *RedisSessionStore) key(userID int64) string {
	return s.prefix + strconv.FormatInt(userID, 10)
}

// Get loads the user's session
func (s *RedisSessionStore) Get(ctx context.Context, userID int64) (*models.Session, error) {
	raw, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &session, nil
}

// Save stores the session and refreshes its TTL
func (s *RedisSessionStore) Save(ctx context.Context, session *models.Session) error {
	session.UpdatedAt = time.Now()
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(session.UserID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Delete clears the user's session
func (s *RedisSessionStore) Delete(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
