package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/deepgram/glmchat/internal/config"
	"github.com/deepgram/glmchat/internal/infrastructure/redis"
	"github.com/deepgram/glmchat/internal/logger"
)

const (
	cookieLifetime = 24 * time.Hour
	keyPrefix      = "glmchat:session:"
)

type SessionClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
}

type SessionStore interface {
	Set(ctx context.Context, sessionID string, claims *SessionClaims) error
	Get(ctx context.Context, sessionID string) (*SessionClaims, error)
	Delete(ctx context.Context, sessionID string) error
}

type RedisStore struct {
	redisService *redis.Service
}

// MemoryStore keeps sessions in process memory. Expired sessions are dropped
// on lookup and whenever a new session is stored.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*SessionClaims
	now      func() time.Time
}

type Service struct {
	store SessionStore
}

// NewService stores sessions in Redis when a service is given, in memory otherwise.
func NewService(redisService *redis.Service) *Service {
	var store SessionStore
	if redisService != nil {
		store = &RedisStore{redisService: redisService}
	} else {
		store = newMemoryStore()
	}
	return &Service{store: store}
}

func newMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*SessionClaims),
		now:      time.Now,
	}
}

// Redis Store implementation
func (rs *RedisStore) Set(ctx context.Context, sessionID string, claims *SessionClaims) error {
	data, err := json.Marshal(claims)
	if err != nil {
		return err
	}

	return rs.redisService.Set(ctx, keyPrefix+sessionID, string(data), cookieLifetime)
}

func (rs *RedisStore) Get(ctx context.Context, sessionID string) (*SessionClaims, error) {
	data, err := rs.redisService.Get(ctx, keyPrefix+sessionID)
	if errors.Is(err, redis.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var claims SessionClaims
	if err := json.Unmarshal([]byte(data), &claims); err != nil {
		return nil, err
	}

	return &claims, nil
}

func (rs *RedisStore) Delete(ctx context.Context, sessionID string) error {
	return rs.redisService.Delete(ctx, keyPrefix+sessionID)
}

// Memory Store implementation
func (ms *MemoryStore) Set(ctx context.Context, sessionID string, claims *SessionClaims) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	for id, c := range ms.sessions {
		if expired(c, now) {
			delete(ms.sessions, id)
		}
	}
	ms.sessions[sessionID] = claims
	return nil
}

func (ms *MemoryStore) Get(ctx context.Context, sessionID string) (*SessionClaims, error) {
	ms.mu.RLock()
	claims, exists := ms.sessions[sessionID]
	ms.mu.RUnlock()
	if !exists {
		return nil, nil
	}
	if expired(claims, ms.now()) {
		_ = ms.Delete(ctx, sessionID)
		return nil, nil
	}
	return claims, nil
}

// Len returns the number of stored sessions.
func (ms *MemoryStore) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.sessions)
}

func expired(claims *SessionClaims, now time.Time) bool {
	return claims.ExpiresAt != nil && !now.Before(claims.ExpiresAt.Time)
}

func (ms *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.sessions, sessionID)
	return nil
}

// CreateSession starts a chat session, sets its cookie on the response and
// returns the session id.
func (s *Service) CreateSession(ctx context.Context, w http.ResponseWriter) (string, error) {
	sessionID := uuid.New().String()
	now := time.Now()
	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(cookieLifetime)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        sessionID,
		},
		SessionID: sessionID,
	}

	if err := s.store.Set(ctx, sessionID, claims); err != nil {
		return "", err
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(config.GetJWTSecret())
	if err != nil {
		return "", err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     config.GetSessionCookieName(),
		Value:    signedToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   config.GetSessionCookieSecure(),
		SameSite: http.SameSiteStrictMode,
		Expires:  now.Add(cookieLifetime),
	})

	logger.For(logger.SESSION).Debug().Str("session_id", sessionID).Msg("Created chat session")
	return sessionID, nil
}

// ValidateSession returns the claims of the request's session cookie, or nil
// when there is no cookie or the session is unknown.
func (s *Service) ValidateSession(r *http.Request) (*SessionClaims, error) {
	claims, err := parseCookie(r)
	if err != nil || claims == nil {
		return nil, err
	}

	storedClaims, err := s.store.Get(r.Context(), claims.SessionID)
	if err != nil {
		return nil, err
	}
	if storedClaims == nil {
		return nil, nil
	}
	return claims, nil
}

// ClearSession removes a session from storage and expires its cookie.
func (s *Service) ClearSession(ctx context.Context, w http.ResponseWriter, sessionID string) {
	if err := s.store.Delete(ctx, sessionID); err != nil {
		logger.For(logger.SESSION).Warn().Err(err).Str("session_id", sessionID).Msg("Failed to delete session")
	}

	http.SetCookie(w, &http.Cookie{
		Name:     config.GetSessionCookieName(),
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   config.GetSessionCookieSecure(),
		SameSite: http.SameSiteStrictMode,
		Expires:  time.Now().Add(-1 * time.Hour),
		MaxAge:   -1,
	})
	logger.For(logger.SESSION).Debug().Str("session_id", sessionID).Msg("Ended chat session")
}

func parseCookie(r *http.Request) (*SessionClaims, error) {
	cookie, err := r.Cookie(config.GetSessionCookieName())
	if errors.Is(err, http.ErrNoCookie) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	token, err := jwt.ParseWithClaims(cookie.Value, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		return config.GetJWTSecret(), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*SessionClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, nil
}

type contextKey struct{}

// WithID returns a copy of ctx carrying the chat session id.
func WithID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, contextKey{}, sessionID)
}

// IDFromContext returns the chat session id stored by WithID.
func IDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok && id != ""
}
