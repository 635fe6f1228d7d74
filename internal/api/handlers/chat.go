package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	chatdomain "github.com/deepgram/glmchat/internal/domain/chat"
	"github.com/deepgram/glmchat/internal/domain/chat/models"
	"github.com/deepgram/glmchat/internal/services/chat"
	"github.com/deepgram/glmchat/pkg/httpext"
)

const (
	// maxRequestBytes bounds the size of a chat request body.
	maxRequestBytes = 4 << 20

	// nginx convention for a client that disconnected before the reply
	statusClientClosedRequest = 499
)

// use a single instance of Validate, it caches struct info
var validate = validator.New(validator.WithRequiredStructEnabled())

// ModelProvider resolves the Model that serves a request.
type ModelProvider interface {
	ModelFor(ctx context.Context) (*chat.Model, error)
}

// SessionEnder is implemented by providers that keep one Model per session and
// can forget it once its history is cleared.
type SessionEnder interface {
	EndSession(w http.ResponseWriter, r *http.Request)
}

// HandleChat answers the pending message with the complete reply.
func HandleChat(provider ModelProvider, w http.ResponseWriter, r *http.Request) {
	log := zerolog.Ctx(r.Context())

	req, ok := decodeChatRequest(w, r)
	if !ok {
		return
	}

	model, err := provider.ModelFor(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Chat model unavailable")
		httpext.JsonError(w, "Model not initialized", http.StatusServiceUnavailable)
		return
	}

	log.Info().
		Int("turns", len(req.ChatHistory)).
		Float32("top_p", req.TopP).
		Float32("temperature", req.Temperature).
		Msg("Received chat request")

	reply, err := model.Reply(r.Context(), req.ChatHistory, req.Sampling())
	if err != nil {
		writeChatError(w, r, err)
		return
	}

	httpext.JsonResponse(w, reply)
}

// HandleStreamChat streams every reply-so-far as one server-sent event.
// Errors raised before the first event produce an ordinary JSON error; later
// ones are sent as an "error" event and end the stream.
func HandleStreamChat(provider ModelProvider, w http.ResponseWriter, r *http.Request) {
	handleStream(provider, w, r, "stream chat", (*chat.Model).ReplyStream)
}

// HandleStreamRegenerate drops the last answered exchange and streams a new
// reply to the same query, framed like HandleStreamChat.
func HandleStreamRegenerate(provider ModelProvider, w http.ResponseWriter, r *http.Request) {
	handleStream(provider, w, r, "regenerate", (*chat.Model).RegenerateStream)
}

type streamFunc func(m *chat.Model, ctx context.Context, ui []models.ConversationTurn, params models.SamplingParameters) iter.Seq2[string, error]

func handleStream(provider ModelProvider, w http.ResponseWriter, r *http.Request, kind string, generate streamFunc) {
	log := zerolog.Ctx(r.Context())

	flusher, ok := w.(http.Flusher)
	if !ok {
		log.Error().Msg("Response writer does not support flushing")
		httpext.JsonError(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	req, ok := decodeChatRequest(w, r)
	if !ok {
		return
	}

	model, err := provider.ModelFor(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Chat model unavailable")
		httpext.JsonError(w, "Model not initialized", http.StatusServiceUnavailable)
		return
	}

	log.Info().Int("turns", len(req.ChatHistory)).Msgf("Received %s request", kind)

	started := false
	start := func() {
		httpext.SetSSEHeaders(w)
		w.WriteHeader(http.StatusOK)
		started = true
	}

	events := 0
	for chunk, err := range generate(model, r.Context(), req.ChatHistory, req.Sampling()) {
		if err != nil {
			if !started {
				writeChatError(w, r, err)
				return
			}
			log.Warn().Err(err).Int("events", events).Msg("Stream aborted by runtime error")
			_ = httpext.WriteSSEEvent(w, "error", err.Error())
			flusher.Flush()
			return
		}

		if !started {
			start()
		}
		if err := httpext.WriteSSEEvent(w, "", chunk); err != nil {
			log.Debug().Err(err).Msg("Client went away during stream")
			return
		}
		flusher.Flush()
		events++
	}

	if !started {
		start()
		flusher.Flush()
	}
	log.Debug().Int("events", events).Msg("Stream completed")
}

// HandleClearHistory forgets the conversation and answers true.
func HandleClearHistory(provider ModelProvider, w http.ResponseWriter, r *http.Request) {
	model, err := provider.ModelFor(r.Context())
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Chat model unavailable")
		httpext.JsonError(w, "Model not initialized", http.StatusServiceUnavailable)
		return
	}

	cleared := model.ClearHistory(r.Context())
	if ender, ok := provider.(SessionEnder); ok {
		ender.EndSession(w, r)
	}
	httpext.JsonResponse(w, cleared)
}

// HandleHealth reports that the server is up.
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	httpext.JsonResponse(w, map[string]string{"status": "ok"})
}

func decodeChatRequest(w http.ResponseWriter, r *http.Request) (models.ChatRequest, bool) {
	log := zerolog.Ctx(r.Context())

	var req models.ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		log.Warn().Err(err).Msg("Client sent malformed JSON request")
		httpext.JsonError(w, "Invalid request format", http.StatusBadRequest)
		return req, false
	}

	if err := validateChatRequest(req); err != nil {
		log.Warn().Err(err).Msg("Request validation failed")
		httpext.JsonError(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return req, false
	}

	if log.Trace().Enabled() {
		if body, err := json.Marshal(req); err == nil {
			log.Trace().RawJSON("request_body", body).Msg("Incoming chat request")
		}
	}
	return req, true
}

func validateChatRequest(req models.ChatRequest) error {
	return validate.Struct(req)
}

// statusFor maps a reply error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, chatdomain.ErrEmptyHistory), errors.Is(err, chatdomain.ErrNoPendingMessage),
		errors.Is(err, chatdomain.ErrNothingToRegenerate):
		return http.StatusBadRequest
	case errors.Is(err, chatdomain.ErrModelNotInitialized):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	default:
		return http.StatusBadGateway
	}
}

func writeChatError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	zerolog.Ctx(r.Context()).Error().Err(err).Int("status", code).Msg("Failed to generate reply")

	switch code {
	case http.StatusBadRequest:
		httpext.JsonError(w, err.Error(), code)
	case http.StatusServiceUnavailable:
		httpext.JsonError(w, "Model not initialized", code)
	case statusClientClosedRequest:
		httpext.JsonError(w, "Request cancelled", code)
	default:
		httpext.JsonError(w, "Failed to generate reply", code)
	}
}
