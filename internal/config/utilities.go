package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/deepgram/glmchat/internal/logger"
)

// GetEnvOrDefault returns the value of an environment variable or a default value
func GetEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// LoadDotEnv reads KEY=VALUE pairs from the given files (".env" when none are
// given) into the process environment. Variables already set are left alone and
// missing files are ignored.
func LoadDotEnv(files ...string) {
	l := logger.For(logger.CONFIG)
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			l.Warn().Err(err).Str("file", file).Msg("Failed to load env file")
			continue
		}
		l.Debug().Str("file", file).Msg("Loaded env file")
	}
}

func parseEnvInt(key string, defaultValue int) int {
	val := GetEnvOrDefault(key, "")
	if val == "" {
		return defaultValue
	}

	parsed, err := strconv.Atoi(val)
	if err != nil {
		logger.For(logger.CONFIG).Warn().Str("key", key).Int("default", defaultValue).Msg("Invalid integer value, using default")
		return defaultValue
	}
	return parsed
}

func parseEnvFloat(key string, defaultValue float32) float32 {
	val := GetEnvOrDefault(key, "")
	if val == "" {
		return defaultValue
	}

	parsed, err := strconv.ParseFloat(val, 32)
	if err != nil {
		logger.For(logger.CONFIG).Warn().Str("key", key).Float32("default", defaultValue).Msg("Invalid float value, using default")
		return defaultValue
	}
	return float32(parsed)
}

func parseEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := GetEnvOrDefault(key, "")
	if val == "" {
		return defaultValue
	}

	parsed, err := time.ParseDuration(val)
	if err != nil {
		logger.For(logger.CONFIG).Warn().Str("key", key).Dur("default", defaultValue).Msg("Invalid duration value, using default")
		return defaultValue
	}
	return parsed
}

// splitList splits a comma separated value and drops empty entries
func splitList(value string) []string {
	result := make([]string, 0)
	for _, s := range strings.Split(value, ",") {
		if s = strings.TrimSpace(s); s != "" {
			result = append(result, s)
		}
	}
	return result
}
