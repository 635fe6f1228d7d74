package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepgram/glmchat/internal/connections"
)

func dialStream(t *testing.T, provider ModelProvider, manager *connections.Manager) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		HandleStreamChatWebSocket(provider, manager, w, r)
	}))
	t.Cleanup(server.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readFrames(conn *websocket.Conn) ([]string, error) {
	var frames []string
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return frames, err
		}
		frames = append(frames, string(msg))
	}
}

func TestHandleStreamChatWebSocket(t *testing.T) {
	tests := []struct {
		name          string
		request       string
		replies       []string
		failAt        int
		expectFrames  []string
		expectCloseAs int
	}{
		{
			name:          "frame per reply then normal close",
			request:       `{"chat_history": [["hi", null]], "top_p": 0.8, "temperature": 0.6}`,
			replies:       []string{"h", "he", "hel"},
			failAt:        -1,
			expectFrames:  []string{"h", "he", "hel"},
			expectCloseAs: websocket.CloseNormalClosure,
		},
		{
			name:          "runtime failure closes with server error",
			request:       `{"chat_history": [["hi", null]], "top_p": 0.8, "temperature": 0.6}`,
			replies:       []string{"h", "he"},
			failAt:        1,
			expectFrames:  []string{"h"},
			expectCloseAs: websocket.CloseInternalServerErr,
		},
		{
			name:          "malformed request",
			request:       `not json`,
			expectCloseAs: websocket.CloseUnsupportedData,
		},
		{
			name:          "invalid request",
			request:       `{"chat_history": [], "top_p": 0.8, "temperature": 0.6}`,
			expectCloseAs: websocket.ClosePolicyViolation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := &MockRuntime{}
			rt.On("StreamChat", "hi").Return(scriptedSteps("hi", tt.replies, tt.failAt, errGeneration)).Maybe()
			manager := connections.NewManager(connections.DefaultTimeouts)

			conn := dialStream(t, newProvider(t, rt), manager)
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(tt.request)))

			frames, err := readFrames(conn)
			assert.Equal(t, tt.expectFrames, frames)
			assert.True(t, websocket.IsCloseError(err, tt.expectCloseAs), "unexpected close: %v", err)
		})
	}
}

func TestTruncateReason(t *testing.T) {
	assert.Equal(t, "short", truncateReason("short"))

	long := strings.Repeat("好", 60) // 180 bytes
	got := truncateReason(long)
	assert.LessOrEqual(t, len(got), 123)
	assert.Equal(t, strings.Repeat("好", 41), got)
}
