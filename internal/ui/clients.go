package ui

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deepgram/glmchat/internal/logger"
)

const (
	// browserCookie identifies one browser to the UI server.
	browserCookie = "glmchat_ui"

	// browserIdle is how long an unused browser's API client is kept. It
	// matches the chat API's session lifetime.
	browserIdle = 24 * time.Hour
)

// clientPool keeps one Replier per browser and API address, so a chat API that
// scopes history per session sees every browser as its own session.
type clientPool struct {
	build func(apiURL string) Replier
	now   func() time.Time

	mu      sync.Mutex
	clients map[clientKey]*pooledClient
}

type clientKey struct {
	browser string
	apiURL  string
}

type pooledClient struct {
	replier  Replier
	lastUsed time.Time
}

func newClientPool(build func(apiURL string) Replier) *clientPool {
	return &clientPool{
		build:   build,
		now:     time.Now,
		clients: make(map[clientKey]*pooledClient),
	}
}

// get returns the browser's client for apiURL, building it on first use.
// Building a new client first evicts those idle for longer than browserIdle.
func (p *clientPool) get(browser, apiURL string) Replier {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	key := clientKey{browser: browser, apiURL: apiURL}
	if c, ok := p.clients[key]; ok {
		c.lastUsed = now
		return c.replier
	}

	cutoff := now.Add(-browserIdle)
	for k, c := range p.clients {
		if c.lastUsed.Before(cutoff) {
			delete(p.clients, k)
		}
	}

	c := &pooledClient{replier: p.build(apiURL), lastUsed: now}
	p.clients[key] = c
	logger.For(logger.UI).Debug().Str("api", apiURL).Int("clients", len(p.clients)).Msg("New browser client")
	return c.replier
}

// Len returns the number of pooled clients.
func (p *clientPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

// browserID returns the id in the request's browser cookie, setting a new one
// on w when it is missing or malformed.
func browserID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(browserCookie); err == nil {
		if id, err := uuid.Parse(c.Value); err == nil {
			return id.String()
		}
	}

	id := uuid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     browserCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(browserIdle / time.Second),
	})
	return id
}
