package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/deepgram/glmchat/internal/api/handlers"
	"github.com/deepgram/glmchat/internal/api/middleware"
	"github.com/deepgram/glmchat/internal/connections"
	"github.com/deepgram/glmchat/internal/services"
	"github.com/deepgram/glmchat/pkg/httpext"
)

// RegisterRoutes wires the chat API onto router.
func RegisterRoutes(router *mux.Router, services *services.Services, manager *connections.Manager) {
	router.Use(middleware.RequestLogger)
	router.NotFoundHandler = middleware.RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpext.JsonError(w, "Not found", http.StatusNotFound)
	}))
	router.MethodNotAllowedHandler = middleware.RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpext.JsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}))

	router.HandleFunc("/health", handlers.HandleHealth).Methods("GET")

	// Chat routes share one history per process, or one per session cookie
	chatRouter := router.NewRoute().Subrouter()
	chatRouter.Use(middleware.SessionScope(services.GetSessionService(), services.GetSettings().Server.HistoryScope))

	chatRouter.Handle("/chat", middleware.RateLimit("chat")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlers.HandleChat(services, w, r)
	}))).Methods("POST")

	chatRouter.Handle("/stream_chat", middleware.RateLimit("stream_chat")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlers.HandleStreamChat(services, w, r)
	}))).Methods("POST")

	chatRouter.Handle("/stream_regenerate", middleware.RateLimit("stream_chat")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlers.HandleStreamRegenerate(services, w, r)
	}))).Methods("POST")

	chatRouter.Handle("/clear_history", middleware.RateLimit("clear_history")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlers.HandleClearHistory(services, w, r)
	}))).Methods("DELETE")

	chatRouter.Handle("/ws/stream_chat", middleware.RateLimit("stream_chat")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlers.HandleStreamChatWebSocket(services, manager, w, r)
	}))).Methods("GET")
}
