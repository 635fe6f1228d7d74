package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/deepgram/glmchat/internal/logger"
)

// ErrNotFound is returned by Get when the key does not exist
var ErrNotFound = errors.New("redis key not found")

type Service struct {
	client *redis.Client
}

// NewService connects to Redis. url may be a redis:// URL or a bare host:port.
// It returns an error when the server does not answer a ping.
func NewService(ctx context.Context, url, password string) (*Service, error) {
	opts, err := clientOptions(url, password)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		logger.For(logger.REDIS).Error().
			Err(err).
			Str("addr", opts.Addr).
			Msg("Failed to establish Redis connection")
		return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}

	logger.For(logger.REDIS).Info().Str("addr", opts.Addr).Msg("Connected to Redis")
	return &Service{client: client}, nil
}

// NewServiceFromClient wraps an existing client, used by tests.
func NewServiceFromClient(client *redis.Client) *Service {
	return &Service{client: client}
}

func clientOptions(url, password string) (*redis.Options, error) {
	if url == "" {
		return nil, errors.New("redis url is empty")
	}

	if strings.Contains(url, "://") {
		opts, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		if password != "" {
			opts.Password = password
		}
		return opts, nil
	}

	return &redis.Options{
		Addr:     url,
		Password: password,
		DB:       0,
	}, nil
}

// Set stores a value in Redis with an optional expiration
func (s *Service) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := s.client.Set(ctx, key, value, expiration).Err(); err != nil {
		logger.For(logger.REDIS).Error().
			Err(err).
			Str("key", key).
			Dur("expiration", expiration).
			Msg("Redis SET operation failed")
		return err
	}
	return nil
}

// Get retrieves a value from Redis
func (s *Service) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		logger.For(logger.REDIS).Error().
			Err(err).
			Str("key", key).
			Msg("Redis GET operation failed")
		return "", err
	}
	return val, nil
}

// Delete removes a key from Redis
func (s *Service) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// Ping checks if Redis is accessible
func (s *Service) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *Service) Close() error {
	return s.client.Close()
}
