package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RemoteConfigSource reads tunable values from a single Redis hash, one
// field per key (POINTS_PER_TICKET, SCORE_BOARD, BONUS_OPTIONS).
type RemoteConfigSource struct {
	client *redis.Client
	key    string
}

// NewRemoteConfigSource creates a source reading the hash at key
func NewRemoteConfigSource(client *redis.Client, key string) *RemoteConfigSource {
	return &RemoteConfigSource{client: client, key: key}
}

// Fetch returns every field of the configuration hash
func (s *RemoteConfigSource) Fetch(ctx context.Context) (map[string]string, error) {
	values, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}
	return values, nil
}
