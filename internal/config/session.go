package config

import "sync"

const (
	// HistoryScopeShared keeps one conversation history for the whole process
	HistoryScopeShared = "shared"
	// HistoryScopeSession keeps one conversation history per chat session cookie
	HistoryScopeSession = "session"
)

var (
	sessionCookieMu   sync.RWMutex
	sessionCookieName string
)

// GetSessionCookieName returns the configured session cookie name
func GetSessionCookieName() string {
	sessionCookieMu.RLock()
	name := sessionCookieName
	sessionCookieMu.RUnlock()

	if name == "" {
		return GetEnvOrDefault("SESSION_COOKIE_NAME", "glmchat_session")
	}
	return name
}

// SetSessionCookieName temporarily changes the session cookie name and returns a function to restore it
// This is primarily used for testing
func SetSessionCookieName(name string) func() {
	sessionCookieMu.Lock()
	previous := sessionCookieName
	sessionCookieName = name
	sessionCookieMu.Unlock()

	return func() {
		sessionCookieMu.Lock()
		sessionCookieName = previous
		sessionCookieMu.Unlock()
	}
}

// GetSessionCookieSecure reports whether session cookies carry the Secure flag
func GetSessionCookieSecure() bool {
	return GetEnvOrDefault("SESSION_COOKIE_SECURE", "false") == "true"
}
