// Package redis stores encoded cart sessions in Redis.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/reboul/storefront/internal/domain/cart"
)

// DefaultTTL is how long an untouched cart session is kept.
const DefaultTTL = 7 * 24 * time.Hour

var _ cart.Store = (*SessionStore)(nil)

// SessionStore implements cart.Store. Every read or write pushes the
// session expiry forward by the TTL.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionStore returns a SessionStore. A non-positive ttl selects
// DefaultTTL.
func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SessionStore{client: client, ttl: ttl}
}

// Load returns the stored blob or cart.ErrSessionNotFound.
func (s *SessionStore) Load(ctx context.Context, session string) ([]byte, error) {
	data, err := s.client.GetEx(ctx, sessionKey(session), s.ttl).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, cart.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %q: %w", session, err)
	}
	return data, nil
}

// Save stores the blob.
func (s *SessionStore) Save(ctx context.Context, session string, blob []byte) error {
	if err := s.client.Set(ctx, sessionKey(session), blob, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", session, err)
	}
	return nil
}

// Delete forgets the session. Deleting an unknown session is not an error.
func (s *SessionStore) Delete(ctx context.Context, session string) error {
	if err := s.client.Del(ctx, sessionKey(session)).Err(); err != nil {
		return fmt.Errorf("redis delete %q: %w", session, err)
	}
	return nil
}

// Ping checks the connection.
func (s *SessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func sessionKey(session string) string {
	return "cart:" + session
}
