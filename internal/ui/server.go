package ui

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"iter"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/deepgram/glmchat/internal/api/middleware"
	"github.com/deepgram/glmchat/internal/apiclient"
	chatdomain "github.com/deepgram/glmchat/internal/domain/chat"
	"github.com/deepgram/glmchat/internal/domain/chat/models"
	"github.com/deepgram/glmchat/internal/markup"
	"github.com/deepgram/glmchat/pkg/httpext"
)

const maxRequestBytes = 4 << 20

//go:embed static/index.html
var static embed.FS

var page = template.Must(template.ParseFS(static, "static/index.html"))

var validate = validator.New(validator.WithRequiredStructEnabled())

// ServerOptions configures the web UI.
type ServerOptions struct {
	Title string
	// APIURL is the chat API a remote server calls. It is shown on the page.
	APIURL string
	// AllowAPIOverride lets a request name the API to call instead of the
	// default one, and shows an editable API address box. The UI server then
	// sends requests to any address a browser names, so leave it off unless
	// the UI is reachable only by trusted users.
	AllowAPIOverride bool
	Sampling         models.SamplingParameters
}

// Server is the browser chat UI.
type Server struct {
	// replier answers in-process; nil when every reply comes from a chat API
	replier Replier
	opts    ServerOptions
	clients *clientPool
}

// NewServer returns a UI answering through replier.
func NewServer(replier Replier, opts ServerOptions) *Server {
	if opts.Title == "" {
		opts.Title = "ChatGLM3-6B Web Demo"
	}
	return &Server{
		replier: replier,
		opts:    opts,
		clients: newClientPool(func(apiURL string) Replier {
			return apiclient.New(apiURL)
		}),
	}
}

// NewRemoteServer returns a UI calling the chat API at opts.APIURL. Each
// browser gets its own API client and so its own API session.
func NewRemoteServer(opts ServerOptions) *Server {
	return NewServer(nil, opts)
}

// DisplayTurn is one chat bubble pair rendered to HTML. Model is nil while
// the reply is pending.
type DisplayTurn struct {
	User  string  `json:"user"`
	Model *string `json:"model"`
}

type queryRequest struct {
	Text    string                    `json:"text"`
	History []models.ConversationTurn `json:"history"`
}

type queryResponse struct {
	Text    string                    `json:"text"`
	History []models.ConversationTurn `json:"history"`
}

type replyRequest struct {
	APIURL      string                    `json:"api_url"`
	History     []models.ConversationTurn `json:"history" validate:"required,min=1"`
	TopP        float32                   `json:"top_p" validate:"gte=0,lte=1"`
	Temperature float32                   `json:"temperature" validate:"gt=0"`
}

type replyResponse struct {
	History []models.ConversationTurn `json:"history"`
	Display []DisplayTurn             `json:"display"`
}

type regenerateRequest struct {
	APIURL      string                    `json:"api_url"`
	History     []models.ConversationTurn `json:"history"`
	TopP        float32                   `json:"top_p" validate:"gte=0,lte=1"`
	Temperature float32                   `json:"temperature" validate:"gt=0"`
}

type clearRequest struct {
	APIURL string `json:"api_url"`
}

type clearResponse struct {
	Notice string `json:"notice"`
}

// Handler returns the UI routes wrapped in request logging.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(middleware.RequestLogger)

	router.HandleFunc("/", s.handleIndex).Methods("GET")
	router.HandleFunc("/ui/query", s.handleQuery).Methods("POST")
	router.HandleFunc("/ui/reply", s.handleReply).Methods("POST")
	router.HandleFunc("/ui/stream_reply", s.handleStreamReply).Methods("POST")
	router.HandleFunc("/ui/regenerate", s.handleRegenerate).Methods("POST")
	router.HandleFunc("/ui/clear", s.handleClear).Methods("POST")
	return router
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := page.Execute(w, s.opts); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Failed to render page")
	}
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !decode(w, r, &req) {
		return
	}

	text, history := QueryUserInput(req.Text, req.History)
	httpext.JsonResponse(w, queryResponse{Text: text, History: history})
}

func (s *Server) handleReply(w http.ResponseWriter, r *http.Request) {
	var req replyRequest
	if !decode(w, r, &req) || !valid(w, r, req) {
		return
	}

	replier, overridden := s.replierFor(w, r, req.APIURL)
	history, err := LLMReply(r.Context(), replier, req.History, sampling(req.TopP, req.Temperature))
	if err != nil {
		writeReplyError(w, r, err, overridden)
		return
	}

	httpext.JsonResponse(w, replyResponse{History: history, Display: Display(history)})
}

func (s *Server) handleStreamReply(w http.ResponseWriter, r *http.Request) {
	var req replyRequest
	if !decode(w, r, &req) || !valid(w, r, req) {
		return
	}

	replier, overridden := s.replierFor(w, r, req.APIURL)
	s.streamUpdates(w, r, overridden, LLMStreamReply(r.Context(), replier, req.History, sampling(req.TopP, req.Temperature)))
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	var req regenerateRequest
	if !decode(w, r, &req) || !valid(w, r, req) {
		return
	}

	replier, overridden := s.replierFor(w, r, req.APIURL)
	s.streamUpdates(w, r, overridden, Regenerate(r.Context(), replier, req.History, sampling(req.TopP, req.Temperature)))
}

// streamUpdates sends every history of updates as one server-sent event
// carrying the history and its rendering.
func (s *Server) streamUpdates(w http.ResponseWriter, r *http.Request, overridden bool, updates iter.Seq2[[]models.ConversationTurn, error]) {
	log := zerolog.Ctx(r.Context())

	flusher, ok := w.(http.Flusher)
	if !ok {
		httpext.JsonError(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	started := false
	for history, err := range updates {
		if err != nil {
			if !started {
				writeReplyError(w, r, err, overridden)
				return
			}
			log.Warn().Err(err).Msg("UI stream aborted")
			_ = httpext.WriteSSEEvent(w, "error", replyErrorMessage(err, overridden, err.Error()))
			flusher.Flush()
			return
		}

		body, err := json.Marshal(replyResponse{History: history, Display: Display(history)})
		if err != nil {
			log.Error().Err(err).Msg("Failed to encode stream update")
			return
		}

		if !started {
			httpext.SetSSEHeaders(w)
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if err := httpext.WriteSSEEvent(w, "", string(body)); err != nil {
			return
		}
		flusher.Flush()
	}

	if !started {
		httpext.SetSSEHeaders(w)
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	var req clearRequest
	if !decode(w, r, &req) {
		return
	}

	replier, overridden := s.replierFor(w, r, req.APIURL)
	notice, err := ClearMessages(r.Context(), replier)
	if err != nil {
		writeReplyError(w, r, err, overridden)
		return
	}
	httpext.JsonResponse(w, clearResponse{Notice: notice})
}

// replierFor picks the replier for a request and reports whether it calls an
// API address named by the request rather than the configured one.
func (s *Server) replierFor(w http.ResponseWriter, r *http.Request, apiURL string) (Replier, bool) {
	apiURL = strings.TrimSpace(apiURL)
	overridden := s.opts.AllowAPIOverride && apiURL != "" && apiURL != s.opts.APIURL
	if !overridden {
		if s.replier != nil {
			return s.replier, false
		}
		apiURL = s.opts.APIURL
	} else {
		zerolog.Ctx(r.Context()).Info().Str("api", apiURL).Msg("Request overrides chat API address")
	}
	return s.clients.get(browserID(w, r), apiURL), overridden
}

// Display renders history for the chat widget: user text is already escaped,
// model replies are Markdown.
func Display(history []models.ConversationTurn) []DisplayTurn {
	out := make([]DisplayTurn, len(history))
	for i, turn := range history {
		out[i].User = turn.UserText()
		if turn.Pending() {
			continue
		}

		html, err := markup.RenderMarkdown(turn.ModelText())
		if err != nil {
			// the escaped text is always safe to show
			html = markup.Escape(turn.ModelText())
		}
		out[i].Model = &html
	}
	return out
}

func sampling(topP, temperature float32) models.SamplingParameters {
	return models.SamplingParameters{TopP: topP, Temperature: temperature}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(v); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Client sent malformed JSON request")
		httpext.JsonError(w, "Invalid request format", http.StatusBadRequest)
		return false
	}
	return true
}

func valid(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := validate.Struct(v); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Request validation failed")
		httpext.JsonError(w, "Invalid request: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeReplyError(w http.ResponseWriter, r *http.Request, err error, overridden bool) {
	zerolog.Ctx(r.Context()).Error().Err(err).Bool("api_override", overridden).Msg("UI reply failed")

	switch {
	case errors.Is(err, chatdomain.ErrEmptyHistory), errors.Is(err, chatdomain.ErrNoPendingMessage),
		errors.Is(err, chatdomain.ErrNothingToRegenerate):
		httpext.JsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, context.Canceled):
		httpext.JsonError(w, "Request cancelled", 499)
	default:
		httpext.JsonError(w, replyErrorMessage(err, overridden, "Failed to generate reply"), http.StatusBadGateway)
	}
}

// replyErrorMessage is the text shown for a failed reply. Error bodies are
// passed on only from the configured chat API; an address named by the
// request could be any service.
func replyErrorMessage(err error, overridden bool, fallback string) string {
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		if overridden {
			return fmt.Sprintf("Chat API returned status %d", apiErr.StatusCode)
		}
		return apiErr.Message
	}
	var streamErr *apiclient.StreamError
	if errors.As(err, &streamErr) {
		if overridden {
			return "Chat API stream failed"
		}
		return streamErr.Message
	}
	return fallback
}
