package config

import (
	"github.com/deepgram/glmchat/internal/logger"
)

func GetRedisURL() string {
	l := logger.For(logger.CONFIG)
	l.Debug().Msg("Attempting to retrieve Redis URL from environment")
	value := GetEnvOrDefault("REDIS_URL", "")
	if value == "" {
		l.Debug().Msg("REDIS_URL not set - history will not be persisted")
	} else {
		l.Info().Msg("Redis URL successfully loaded")
	}
	return value
}

func GetRedisPassword() string {
	return GetEnvOrDefault("REDIS_PASSWORD", "")
}
