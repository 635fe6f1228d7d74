// Package apiclient calls the chat HTTP API on behalf of the web UI and CLI.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/deepgram/glmchat/internal/domain/chat/models"
	"github.com/deepgram/glmchat/internal/logger"
)

const (
	defaultChatTimeout  = 60 * time.Second
	defaultClearTimeout = 5 * time.Second
)

// APIError is returned for a non-2xx answer from the chat API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chat api returned %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	baseURL      string
	httpClient   *http.Client
	chatTimeout  time.Duration
	clearTimeout time.Duration
}

type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithTimeouts overrides the chat and clear-history timeouts. For streams the
// chat timeout bounds the wait for response headers only.
func WithTimeouts(chat, clear time.Duration) Option {
	return func(cl *Client) {
		cl.chatTimeout = chat
		cl.clearTimeout = clear
	}
}

// New returns a client for the API at baseURL. The default HTTP client keeps
// cookies, so a server that scopes history per session sees one session per
// Client.
func New(baseURL string, opts ...Option) *Client {
	// cookiejar.New only fails on a bad PublicSuffixList
	jar, _ := cookiejar.New(nil)
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Jar: jar},
		chatTimeout:  defaultChatTimeout,
		clearTimeout: defaultClearTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API address the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Chat asks for the complete reply to the pending turn of history.
func (c *Client) Chat(ctx context.Context, history []models.ConversationTurn, params models.SamplingParameters) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.chatTimeout)
	defer cancel()

	resp, err := c.post(ctx, "/chat", history, params, "application/json")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var reply string
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "", fmt.Errorf("decode chat reply: %w", err)
	}
	return reply, nil
}

// StreamChat asks for a streamed reply and yields each reply-so-far. Every
// range over the sequence sends a new request; a stream cannot be resumed.
func (c *Client) StreamChat(ctx context.Context, history []models.ConversationTurn, params models.SamplingParameters) iter.Seq2[string, error] {
	return c.stream(ctx, "/stream_chat", history, params)
}

// StreamRegenerate asks the server to drop the last answered exchange and
// stream a new reply to the same query. history ends with that exchange.
func (c *Client) StreamRegenerate(ctx context.Context, history []models.ConversationTurn, params models.SamplingParameters) iter.Seq2[string, error] {
	return c.stream(ctx, "/stream_regenerate", history, params)
}

func (c *Client) stream(ctx context.Context, path string, history []models.ConversationTurn, params models.SamplingParameters) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		// Only the wait for headers is bounded; generation may take longer.
		timer := time.AfterFunc(c.chatTimeout, cancel)
		resp, err := c.post(ctx, path, history, params, "text/event-stream")
		timer.Stop()
		if err != nil {
			yield("", err)
			return
		}
		defer resp.Body.Close()

		for chunk, err := range decodeStream(resp.Body, resp.Header.Get("Content-Type")) {
			if !yield(chunk, err) || err != nil {
				return
			}
		}
	}
}

// ClearHistory asks the server to forget the conversation.
func (c *Client) ClearHistory(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.clearTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/clear_history", nil)
	if err != nil {
		return false, fmt.Errorf("build clear request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	var cleared bool
	if err := json.NewDecoder(resp.Body).Decode(&cleared); err != nil {
		return false, fmt.Errorf("decode clear reply: %w", err)
	}
	return cleared, nil
}

func (c *Client) post(ctx context.Context, path string, history []models.ConversationTurn, params models.SamplingParameters, accept string) (*http.Response, error) {
	body, err := json.Marshal(models.ChatRequest{
		ChatHistory: history,
		TopP:        params.TopP,
		Temperature: params.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)

	return c.do(req)
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	l := logger.For(logger.CLIENT)
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		l.Error().Err(err).Str("method", req.Method).Str("url", req.URL.String()).Msg("Chat API request failed")
		return nil, err
	}

	l.Debug().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Chat API responded")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	return resp, nil
}

func errorMessage(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, 4096))

	var parsed struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &parsed); err == nil && parsed.Error != "" {
		return parsed.Error
	}
	return strings.TrimSpace(string(data))
}
