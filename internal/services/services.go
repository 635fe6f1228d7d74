package services

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/deepgram/glmchat/internal/config"
	chatdomain "github.com/deepgram/glmchat/internal/domain/chat"
	"github.com/deepgram/glmchat/internal/infrastructure/openai"
	"github.com/deepgram/glmchat/internal/infrastructure/redis"
	"github.com/deepgram/glmchat/internal/services/chat"
	"github.com/deepgram/glmchat/internal/services/session"
)

var (
	// Mutex for thread-safe initialization
	servicesMu sync.RWMutex
)

// Pinger is implemented by runtimes that can check their own reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Services struct {
	settings       config.Settings
	runtime        chatdomain.Runtime
	redisService   *redis.Service
	historyStore   chat.HistoryStore
	chatFactory    *chat.Factory
	sessionService *session.Service
}

// InitializeServices builds the runtime client, optional Redis persistence and
// the model factory from settings.
func InitializeServices(ctx context.Context, settings config.Settings) (*Services, error) {
	servicesMu.Lock()
	defer servicesMu.Unlock()

	log.Info().Msg("Initializing core services")

	var redisService *redis.Service
	if settings.Redis.URL != "" {
		svc, err := redis.NewService(ctx, settings.Redis.URL, settings.Redis.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis service: %w", err)
		}
		redisService = svc
		log.Info().Msg("Initializing Redis history store")
	}

	var store chat.HistoryStore
	if redisService != nil {
		store = chat.NewRedisStore(redisService, settings.Redis.HistoryTTL)
	}

	runtime := chat.NewFilteredRuntime(openai.NewService(settings.Runtime), settings.Filter.BadWords)
	if len(settings.Filter.BadWords) > 0 {
		log.Info().Int("words", len(settings.Filter.BadWords)).Msg("Content filter enabled")
	}

	s := newServices(settings, runtime, store)
	s.redisService = redisService
	s.sessionService = session.NewService(redisService)

	log.Info().Msg("All services initialized successfully")
	return s, nil
}

// NewWithRuntime builds Services over an existing runtime. store may be nil.
func NewWithRuntime(settings config.Settings, runtime chatdomain.Runtime, store chat.HistoryStore) *Services {
	s := newServices(settings, runtime, store)
	s.sessionService = session.NewService(nil)
	return s
}

func newServices(settings config.Settings, runtime chatdomain.Runtime, store chat.HistoryStore) *Services {
	s := &Services{
		settings:     settings,
		runtime:      runtime,
		historyStore: store,
	}
	s.chatFactory = chat.NewFactory(func(key string) (*chat.Model, error) {
		log.Info().Str("key", key).Msg("Building chat model")
		return chat.NewModel(context.Background(), s.runtime, s.historyStore, key)
	})
	return s
}

// Ping checks the runtime when it supports it.
func (s *Services) Ping(ctx context.Context) error {
	if s.runtime == nil {
		return chatdomain.ErrModelNotInitialized
	}
	if p, ok := unwrapPinger(s.runtime); ok {
		return p.Ping(ctx)
	}
	return nil
}

func unwrapPinger(rt chatdomain.Runtime) (Pinger, bool) {
	if f, ok := rt.(interface{ Unwrap() chatdomain.Runtime }); ok {
		rt = f.Unwrap()
	}
	p, ok := rt.(Pinger)
	return p, ok
}

// ModelFor returns the Model serving the request in ctx: the chat session's own
// Model when history is scoped per session, the shared one otherwise.
func (s *Services) ModelFor(ctx context.Context) (*chat.Model, error) {
	if s.settings.Server.HistoryScope == config.HistoryScopeSession {
		if id, ok := session.IDFromContext(ctx); ok {
			return s.chatFactory.GetSessionModel(id)
		}
	}
	return s.chatFactory.GetModel()
}

// EndSession forgets the chat session attached to r, if any: its Model is
// dropped and its cookie expired. It does nothing when history is shared.
func (s *Services) EndSession(w http.ResponseWriter, r *http.Request) {
	if s.settings.Server.HistoryScope != config.HistoryScopeSession {
		return
	}
	id, ok := session.IDFromContext(r.Context())
	if !ok {
		return
	}
	if s.chatFactory.DropSession(id) {
		log.Debug().Str("session_id", id).Msg("Dropped session model")
	}
	if s.sessionService != nil {
		s.sessionService.ClearSession(r.Context(), w, id)
	}
}

// Close releases the Redis connection if one was opened.
func (s *Services) Close() error {
	if s.redisService != nil {
		return s.redisService.Close()
	}
	return nil
}

// GetSettings returns the settings the services were built from
func (s *Services) GetSettings() config.Settings {
	return s.settings
}

// GetChatFactory returns the model factory
func (s *Services) GetChatFactory() *chat.Factory {
	return s.chatFactory
}

// GetSessionService returns the session service
func (s *Services) GetSessionService() *session.Service {
	return s.sessionService
}

// GetRuntime returns the inference runtime
func (s *Services) GetRuntime() chatdomain.Runtime {
	return s.runtime
}
