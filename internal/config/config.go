package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/deepgram/glmchat/internal/logger"
)

// Settings is the process configuration shared by every subcommand.
type Settings struct {
	Server   ServerSettings   `yaml:"server"`
	Runtime  RuntimeSettings  `yaml:"runtime"`
	Sampling SamplingSettings `yaml:"sampling"`
	Filter   FilterSettings   `yaml:"filter"`
	Redis    RedisSettings    `yaml:"redis"`
}

// ServerSettings defines the API and web UI listeners.
type ServerSettings struct {
	// Host is the API bind address; empty listens on every interface.
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	UIHost       string        `yaml:"ui_host"`
	UIPort       int           `yaml:"ui_port"`
	HistoryScope string        `yaml:"history_scope"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// RuntimeSettings points at the OpenAI-compatible inference server.
type RuntimeSettings struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// SamplingSettings are the defaults offered by the web UI sliders.
type SamplingSettings struct {
	TopP        float32 `yaml:"top_p"`
	Temperature float32 `yaml:"temperature"`
}

// FilterSettings lists words that abort a generation.
type FilterSettings struct {
	BadWords []string `yaml:"bad_words"`
}

// RedisSettings enables history persistence when URL is set.
type RedisSettings struct {
	URL        string        `yaml:"url"`
	Password   string        `yaml:"password"`
	HistoryTTL time.Duration `yaml:"history_ttl"`
}

// Default returns the settings used when nothing is configured.
func Default() Settings {
	return Settings{
		Server: ServerSettings{
			Port:         8000,
			UIHost:       "127.0.0.1",
			UIPort:       7860,
			HistoryScope: HistoryScopeShared,
			WriteTimeout: 5 * time.Minute,
		},
		Runtime: RuntimeSettings{
			BaseURL: "http://127.0.0.1:8001/v1",
			APIKey:  "EMPTY",
			Model:   "chatglm3-6b",
			Timeout: 2 * time.Minute,
		},
		Sampling: SamplingSettings{
			TopP:        0.8,
			Temperature: 0.6,
		},
		Filter: FilterSettings{
			BadWords: []string{},
		},
		Redis: RedisSettings{
			HistoryTTL: 24 * time.Hour,
		},
	}
}

// Load builds Settings from defaults, the optional YAML file at path and the
// environment, in that order of precedence (environment wins).
func Load(path string) (Settings, error) {
	settings := Default()

	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return Settings{}, fmt.Errorf("resolve config path: %w", err)
		}

		data, err := os.ReadFile(absPath)
		if err != nil {
			return Settings{}, fmt.Errorf("read config file %q: %w", absPath, err)
		}

		if err := yaml.Unmarshal(data, &settings); err != nil {
			return Settings{}, fmt.Errorf("parse config file %q: %w", absPath, err)
		}
		logger.For(logger.CONFIG).Info().Str("path", absPath).Msg("Loaded config file")
	}

	applyEnv(&settings)

	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

func applyEnv(s *Settings) {
	s.Server.Host = GetEnvOrDefault("API_HOST", s.Server.Host)
	s.Server.Port = parseEnvInt("API_PORT", s.Server.Port)
	s.Server.UIHost = GetEnvOrDefault("UI_HOST", s.Server.UIHost)
	s.Server.UIPort = parseEnvInt("UI_PORT", s.Server.UIPort)
	s.Server.HistoryScope = strings.ToLower(GetEnvOrDefault("HISTORY_SCOPE", s.Server.HistoryScope))
	s.Server.WriteTimeout = parseEnvDuration("SERVER_WRITE_TIMEOUT", s.Server.WriteTimeout)

	if v := GetRuntimeBaseURL(); v != "" {
		s.Runtime.BaseURL = v
	}
	if v := GetRuntimeAPIKey(); v != "" {
		s.Runtime.APIKey = v
	}
	if v := GetRuntimeModel(); v != "" {
		s.Runtime.Model = v
	}
	s.Runtime.Timeout = parseEnvDuration("RUNTIME_TIMEOUT", s.Runtime.Timeout)

	s.Sampling.TopP = parseEnvFloat("DEFAULT_TOP_P", s.Sampling.TopP)
	s.Sampling.Temperature = parseEnvFloat("DEFAULT_TEMPERATURE", s.Sampling.Temperature)

	if v := GetEnvOrDefault("BAD_WORDS", ""); v != "" {
		s.Filter.BadWords = splitList(v)
	}

	if v := GetRedisURL(); v != "" {
		s.Redis.URL = v
	}
	if v := GetRedisPassword(); v != "" {
		s.Redis.Password = v
	}
	s.Redis.HistoryTTL = parseEnvDuration("HISTORY_TTL", s.Redis.HistoryTTL)
}

// Validate performs sanity checks on the configuration.
func (s Settings) Validate() error {
	if s.Server.Port <= 0 || s.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", s.Server.Port)
	}
	if s.Server.UIPort <= 0 || s.Server.UIPort > 65535 {
		return fmt.Errorf("server.ui_port must be a valid TCP port, got %d", s.Server.UIPort)
	}
	switch s.Server.HistoryScope {
	case HistoryScopeShared, HistoryScopeSession:
	default:
		return fmt.Errorf("server.history_scope must be %q or %q, got %q", HistoryScopeShared, HistoryScopeSession, s.Server.HistoryScope)
	}
	if strings.TrimSpace(s.Runtime.BaseURL) == "" {
		return fmt.Errorf("runtime.base_url must be provided")
	}
	if strings.TrimSpace(s.Runtime.Model) == "" {
		return fmt.Errorf("runtime.model must be provided")
	}
	if s.Sampling.TopP < 0 || s.Sampling.TopP > 1 {
		return fmt.Errorf("sampling.top_p must be within [0, 1], got %v", s.Sampling.TopP)
	}
	if s.Sampling.Temperature <= 0 {
		return fmt.Errorf("sampling.temperature must be greater than 0, got %v", s.Sampling.Temperature)
	}
	return nil
}
