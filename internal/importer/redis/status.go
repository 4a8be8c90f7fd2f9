package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-checkin/internal/importer"
)

const defaultStatusKey = "checkin:import:last"

// StatusCache keeps the summary of the last import run in Redis so the
// dashboard can show it without touching the database.
type StatusCache struct {
	Client *redis.Client
	Key    string
	TTL    time.Duration
}

func NewStatusCache(client *redis.Client, ttl time.Duration) *StatusCache {
	return &StatusCache{Client: client, Key: defaultStatusKey, TTL: ttl}
}

func (s *StatusCache) SaveLast(ctx context.Context, result importer.ImportResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal import status: %w", err)
	}
	if err := s.Client.Set(ctx, s.Key, payload, s.TTL).Err(); err != nil {
		return fmt.Errorf("save import status: %w", err)
	}
	return nil
}

// LoadLast returns nil, nil when no import has been recorded.
func (s *StatusCache) LoadLast(ctx context.Context) (*importer.ImportResult, error) {
	payload, err := s.Client.Get(ctx, s.Key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load import status: %w", err)
	}

	var result importer.ImportResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("decode import status: %w", err)
	}
	return &result, nil
}
