package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/deepgram/glmchat/internal/domain/chat/models"
	"github.com/deepgram/glmchat/internal/infrastructure/redis"
)

// HistoryStore persists conversation histories by key. Load returns a nil
// slice and no error for an unknown key.
type HistoryStore interface {
	Load(ctx context.Context, key string) ([]models.ChatMessage, error)
	Save(ctx context.Context, key string, history []models.ChatMessage) error
	Delete(ctx context.Context, key string) error
}

// KeyValue is the subset of the Redis service used for history persistence.
type KeyValue interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
}

const historyKeyPrefix = "glmchat:history:"

// RedisStore keeps histories as JSON documents that expire after ttl.
type RedisStore struct {
	kv  KeyValue
	ttl time.Duration
}

func NewRedisStore(kv KeyValue, ttl time.Duration) *RedisStore {
	return &RedisStore{kv: kv, ttl: ttl}
}

func (s *RedisStore) Load(ctx context.Context, key string) ([]models.ChatMessage, error) {
	raw, err := s.kv.Get(ctx, historyKeyPrefix+key)
	if errors.Is(err, redis.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var history []models.ChatMessage
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return history, nil
}

func (s *RedisStore) Save(ctx context.Context, key string, history []models.ChatMessage) error {
	if len(history) == 0 {
		return s.Delete(ctx, key)
	}

	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	return s.kv.Set(ctx, historyKeyPrefix+key, data, s.ttl)
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.kv.Delete(ctx, historyKeyPrefix+key)
}
