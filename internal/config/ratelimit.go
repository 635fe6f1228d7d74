package config

import (
	"time"

	"github.com/deepgram/glmchat/internal/logger"
)

type RateLimitConfig struct {
	Enabled bool
	MaxHits int
	Window  time.Duration
}

func GetRateLimitConfig(key string) RateLimitConfig {
	enabled := GetEnvOrDefault("RATELIMIT_ENABLED", "false") == "true"

	configs := map[string]RateLimitConfig{
		"chat": {
			Enabled: enabled,
			MaxHits: parseEnvInt("RATELIMIT_CHAT", 60), // 60 requests per minute
			Window:  time.Minute,
		},
		"stream_chat": {
			Enabled: enabled,
			MaxHits: parseEnvInt("RATELIMIT_STREAM_CHAT", 60),
			Window:  time.Minute,
		},
		"clear_history": {
			Enabled: enabled,
			MaxHits: parseEnvInt("RATELIMIT_CLEAR_HISTORY", 30),
			Window:  time.Minute,
		},
	}

	if config, exists := configs[key]; exists {
		return config
	}

	logger.For(logger.CONFIG).Warn().Str("key", key).Msg("No rate limit config found")
	return RateLimitConfig{Enabled: false}
}
