package config

import (
	"sync"
)

var (
	jwtSecretMu   sync.RWMutex
	jwtSecretOnce sync.Once
	jwtSecret     []byte
)

// SetJWTSecret temporarily changes the JWT secret and returns a function to restore it
// This is primarily used for testing
func SetJWTSecret(secret []byte) func() {
	previous := GetJWTSecret()

	jwtSecretMu.Lock()
	jwtSecret = secret
	jwtSecretMu.Unlock()

	return func() {
		jwtSecretMu.Lock()
		jwtSecret = previous
		jwtSecretMu.Unlock()
	}
}

// GetJWTSecret returns the secret used to sign chat session cookies. It is read
// from JWT_SECRET on first use.
func GetJWTSecret() []byte {
	jwtSecretOnce.Do(func() {
		jwtSecretMu.Lock()
		defer jwtSecretMu.Unlock()
		if jwtSecret == nil {
			jwtSecret = []byte(GetEnvOrDefault("JWT_SECRET", "glmchat-development-secret"))
		}
	})

	jwtSecretMu.RLock()
	defer jwtSecretMu.RUnlock()
	return jwtSecret
}
