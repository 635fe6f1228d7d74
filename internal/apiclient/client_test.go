package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/simplifiedchinese"

	"github.com/deepgram/glmchat/internal/domain/chat/models"
	"github.com/deepgram/glmchat/pkg/httpext"
)

var testParams = models.SamplingParameters{TopP: 0.8, Temperature: 0.6}

func pendingHistory(text string) []models.ConversationTurn {
	return []models.ConversationTurn{models.NewTurn(text)}
}

func TestChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat", r.URL.Path)

		var req models.ChatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hi", req.ChatHistory[0].UserText())
		assert.Equal(t, float32(0.8), req.TopP)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`"Hello!"`))
	}))
	defer server.Close()

	reply, err := New(server.URL+"/").Chat(context.Background(), pendingHistory("hi"), testParams)
	require.NoError(t, err)
	assert.Equal(t, "Hello!", reply)
}

func TestChatAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Invalid request: empty history"}`))
	}))
	defer server.Close()

	_, err := New(server.URL).Chat(context.Background(), pendingHistory("hi"), testParams)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Invalid request: empty history", apiErr.Message)
}

func TestChatTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := New(server.URL, WithTimeouts(50*time.Millisecond, 50*time.Millisecond))
	_, err := client.Chat(context.Background(), pendingHistory("hi"), testParams)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStreamChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stream_chat", r.URL.Path)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))

		w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
		_, _ = w.Write([]byte("data: Hel\n\ndata: Hello\ndata: there\n\n"))
	}))
	defer server.Close()

	var chunks []string
	for chunk, err := range New(server.URL).StreamChat(context.Background(), pendingHistory("hi"), testParams) {
		require.NoError(t, err)
		chunks = append(chunks, chunk)
	}
	assert.Equal(t, []string{"Hel", "Hello\nthere"}, chunks)
}

func TestStreamChatLineBreaksRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpext.SetSSEHeaders(w)
		require.NoError(t, httpext.WriteSSEEvent(w, "", "one\r\ntwo\rthree\nfour"))
	}))
	defer server.Close()

	var chunks []string
	for chunk, err := range New(server.URL).StreamChat(context.Background(), pendingHistory("hi"), testParams) {
		require.NoError(t, err)
		chunks = append(chunks, chunk)
	}
	assert.Equal(t, []string{"one\ntwo\nthree\nfour"}, chunks)
}

func TestStreamRegenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stream_regenerate", r.URL.Path)

		var req models.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.ChatHistory, 1)
		assert.Equal(t, "Hi", req.ChatHistory[0].ModelText())

		httpext.SetSSEHeaders(w)
		_, _ = w.Write([]byte("data: Hey\n\n"))
	}))
	defer server.Close()

	history := []models.ConversationTurn{models.AnsweredTurn("hi", "Hi")}
	var chunks []string
	for chunk, err := range New(server.URL).StreamRegenerate(context.Background(), history, testParams) {
		require.NoError(t, err)
		chunks = append(chunks, chunk)
	}
	assert.Equal(t, []string{"Hey"}, chunks)
}

func TestClientKeepsCookies(t *testing.T) {
	var seen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("sid"); err == nil {
			seen = append(seen, c.Value)
		} else {
			http.SetCookie(w, &http.Cookie{Name: "sid", Value: "abc", Path: "/"})
		}
		_, _ = w.Write([]byte(`"ok"`))
	}))
	defer server.Close()

	client := New(server.URL)
	for range 3 {
		_, err := client.Chat(context.Background(), pendingHistory("hi"), testParams)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"abc", "abc"}, seen)
}

func TestStreamChatIsLazy(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: a\n\n"))
	}))
	defer server.Close()

	stream := New(server.URL).StreamChat(context.Background(), pendingHistory("hi"), testParams)
	assert.Equal(t, int32(0), calls.Load())

	for range stream {
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestStreamChatGBK(t *testing.T) {
	encoded, err := simplifiedchinese.GBK.NewEncoder().String("data: 你好\n\ndata: 你好，世界\n\n")
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream; charset=gbk")
		flusher := w.(http.Flusher)
		// one byte per write so characters straddle reads
		for i := 0; i < len(encoded); i++ {
			_, _ = w.Write([]byte{encoded[i]})
			flusher.Flush()
		}
	}))
	defer server.Close()

	var chunks []string
	for chunk, err := range New(server.URL).StreamChat(context.Background(), pendingHistory("你好"), testParams) {
		require.NoError(t, err)
		chunks = append(chunks, chunk)
	}
	assert.Equal(t, []string{"你好", "你好，世界"}, chunks)
}

func TestStreamChatErrorEvent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: partial\n\nevent: error\ndata: runtime went away\n\ndata: never\n\n"))
	}))
	defer server.Close()

	var chunks []string
	var streamErr error
	for chunk, err := range New(server.URL).StreamChat(context.Background(), pendingHistory("hi"), testParams) {
		if err != nil {
			streamErr = err
			break
		}
		chunks = append(chunks, chunk)
	}

	assert.Equal(t, []string{"partial"}, chunks)
	var se *StreamError
	require.True(t, errors.As(streamErr, &se))
	assert.Equal(t, "runtime went away", se.Message)
}

func TestStreamChatAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"Model not initialized"}`))
	}))
	defer server.Close()

	var got error
	for _, err := range New(server.URL).StreamChat(context.Background(), pendingHistory("hi"), testParams) {
		got = err
	}

	var apiErr *APIError
	require.ErrorAs(t, got, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "Model not initialized", apiErr.Message)
}

func TestClearHistory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/clear_history", r.URL.Path)
		_, _ = w.Write([]byte("true"))
	}))
	defer server.Close()

	cleared, err := New(server.URL).ClearHistory(context.Background())
	require.NoError(t, err)
	assert.True(t, cleared)
}
