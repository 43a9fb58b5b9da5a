package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/climbing-points/internal/domain"
)

// SessionStore keeps signed-in identities in Redis hashes keyed by an
// opaque bearer token. Each read extends the session TTL.
type SessionStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewSessionStore creates a session store
func NewSessionStore(client *redis.Client, prefix string, ttl time.Duration, logger *slog.Logger) *SessionStore {
	return &SessionStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// sessionKey returns the Redis key for a session hash
func (s *SessionStore) sessionKey(token string) string {
	return s.prefix + token
}

// Create stores identity under a new token and returns the token
func (s *SessionStore) Create(ctx context.Context, identity domain.Identity) (string, error) {
	token := uuid.New().String()
	key := s.sessionKey(token)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"user_id", identity.ID,
		"display_name", identity.DisplayName,
		"email", identity.Email,
		"provider", identity.Provider.String(),
		"created_at", s.now().UnixMilli(),
	)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("creating session: %w", err)
	}

	s.logger.Debug("session created", "user_id", identity.ID, "provider", identity.Provider.String())
	return token, nil
}

// Get resolves token to the identity it was issued for
func (s *SessionStore) Get(ctx context.Context, token string) (*domain.Identity, error) {
	if token == "" {
		return nil, domain.ErrUnauthenticated
	}
	key := s.sessionKey(token)

	pipe := s.client.Pipeline()
	fieldsCmd := pipe.HGetAll(ctx, key)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("reading session: %w", err)
	}

	fields := fieldsCmd.Val()
	if len(fields) == 0 || fields["user_id"] == "" {
		return nil, domain.ErrUnauthenticated
	}

	var provider domain.Provider
	if err := provider.UnmarshalText([]byte(fields["provider"])); err != nil {
		s.logger.Warn("session has unknown provider", "provider", fields["provider"])
	}

	return &domain.Identity{
		ID:          fields["user_id"],
		DisplayName: fields["display_name"],
		Email:       fields["email"],
		Provider:    provider,
	}, nil
}

// Delete ends the session. Deleting an unknown token is not an error.
func (s *SessionStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.sessionKey(token)).Err(); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}
