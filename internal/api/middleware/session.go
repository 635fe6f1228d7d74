package middleware

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/deepgram/glmchat/internal/config"
	"github.com/deepgram/glmchat/internal/services/session"
	"github.com/deepgram/glmchat/pkg/httpext"
)

// SessionScope attaches a chat session to every request when history is kept
// per session. A request without a valid session cookie gets a new session.
func SessionScope(sessions *session.Service, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if scope != config.HistoryScopeSession || sessions == nil {
				next.ServeHTTP(w, r)
				return
			}

			log := zerolog.Ctx(r.Context())

			claims, err := sessions.ValidateSession(r)
			if err != nil {
				log.Debug().Err(err).Msg("Discarding invalid session cookie")
			}

			var sessionID string
			if claims != nil {
				sessionID = claims.SessionID
			} else {
				sessionID, err = sessions.CreateSession(r.Context(), w)
				if err != nil {
					log.Error().Err(err).Msg("Failed to create chat session")
					httpext.JsonError(w, "Failed to create session", http.StatusInternalServerError)
					return
				}
			}

			ctx := session.WithID(r.Context(), sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
