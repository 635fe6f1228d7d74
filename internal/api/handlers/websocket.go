package handlers

import (
	"encoding/json"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/deepgram/glmchat/internal/connections"
	"github.com/deepgram/glmchat/internal/domain/chat/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // demo server, reachable from any local page
	},
}

// HandleStreamChatWebSocket streams a reply over a WebSocket. The client sends
// one chat request; the server answers with a text frame per reply-so-far and
// then closes the connection normally.
func HandleStreamChatWebSocket(provider ModelProvider, manager *connections.Manager, w http.ResponseWriter, r *http.Request) {
	log := zerolog.Ctx(r.Context())

	model, err := provider.ModelFor(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Chat model unavailable")
		http.Error(w, "Model not initialized", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Could not upgrade connection")
		return
	}

	manager.AddConnection(conn)
	defer func() {
		manager.RemoveConnection(conn)
		conn.Close()
	}()

	done := make(chan struct{})
	defer close(done)
	manager.KeepAlive(conn, done)

	timeouts := manager.GetTimeouts()
	closeWith := func(code int, text string) {
		msg := websocket.FormatCloseMessage(code, text)
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(timeouts.WriteWait))
	}

	_, payload, err := conn.ReadMessage()
	if err != nil {
		log.Debug().Err(err).Msg("Client closed before sending a request")
		return
	}

	var req models.ChatRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		closeWith(websocket.CloseUnsupportedData, "Invalid request format")
		return
	}
	if err := validateChatRequest(req); err != nil {
		closeWith(websocket.ClosePolicyViolation, "Invalid request")
		return
	}

	// Drain control frames so pongs are processed while the reply streams.
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	frames := 0
	for chunk, err := range model.ReplyStream(r.Context(), req.ChatHistory, req.Sampling()) {
		if err != nil {
			log.Warn().Err(err).Int("frames", frames).Msg("WebSocket stream aborted")
			closeWith(websocket.CloseInternalServerErr, truncateReason(err.Error()))
			return
		}

		_ = conn.SetWriteDeadline(time.Now().Add(timeouts.WriteWait))
		if err := conn.WriteMessage(websocket.TextMessage, []byte(chunk)); err != nil {
			log.Debug().Err(err).Msg("Client went away during stream")
			return
		}
		frames++
	}

	closeWith(websocket.CloseNormalClosure, "")
	log.Debug().Int("frames", frames).Msg("WebSocket stream completed")
}

// truncateReason keeps a close reason within the 123 bytes a close frame allows.
func truncateReason(reason string) string {
	const max = 123
	if len(reason) <= max {
		return reason
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut]
}
