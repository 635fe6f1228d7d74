package chat

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/deepgram/glmchat/internal/domain/chat"
	"github.com/deepgram/glmchat/internal/domain/chat/models"
	"github.com/deepgram/glmchat/internal/logger"
)

// Model wraps an inference runtime together with the conversation history it
// replies against.
//
// A single Model is shared by every caller that obtains it from the same key.
// The mutex keeps the history slice consistent but is not held while the
// runtime generates, so concurrent conversations on one Model interleave.
type Model struct {
	runtime chat.Runtime
	store   HistoryStore
	key     string

	mu           sync.Mutex
	history      []models.ChatMessage
	continuation string
}

// NewModel returns a Model over runtime. When store is non-nil the history is
// seeded from it under key and written back after every reply.
func NewModel(ctx context.Context, runtime chat.Runtime, store HistoryStore, key string) (*Model, error) {
	if runtime == nil {
		return nil, chat.ErrModelNotInitialized
	}

	m := &Model{
		runtime: runtime,
		store:   store,
		key:     key,
	}

	if store != nil {
		history, err := store.Load(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("load history %q: %w", key, err)
		}
		m.history = history
		if len(history) > 0 {
			logger.For(logger.CHAT).Info().
				Str("key", key).
				Int("messages", len(history)).
				Msg("Restored conversation history")
		}
	}

	return m, nil
}

// ReconcileHistory returns the pending user message of ui. A Model with no
// history of its own first adopts every answered turn of ui; otherwise its
// own history is trusted and only the last turn of ui is read.
func (m *Model) ReconcileHistory(ui []models.ConversationTurn) (string, error) {
	if len(ui) == 0 {
		return "", chat.ErrEmptyHistory
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.history) > 0 {
		pending := ui[len(ui)-1].UserText()
		if pending == "" {
			return "", chat.ErrNoPendingMessage
		}
		return pending, nil
	}

	var rebuilt []models.ChatMessage
	for i, turn := range ui {
		if i == len(ui)-1 && turn.Pending() {
			if turn.UserText() == "" {
				return "", chat.ErrNoPendingMessage
			}
			m.history = rebuilt
			return turn.UserText(), nil
		}
		if user := turn.UserText(); user != "" {
			rebuilt = append(rebuilt, models.UserMessage(user))
		}
		if reply := turn.ModelText(); reply != "" {
			rebuilt = append(rebuilt, models.AssistantMessage(reply))
		}
	}
	return "", chat.ErrNoPendingMessage
}

// Reply generates the complete answer to the pending message of ui.
func (m *Model) Reply(ctx context.Context, ui []models.ConversationTurn, params models.SamplingParameters) (string, error) {
	query, err := m.ReconcileHistory(ui)
	if err != nil {
		return "", err
	}

	reply, history, err := m.runtime.Chat(ctx, query, m.History(), params)
	if err != nil {
		logger.For(logger.CHAT).Error().Err(err).Msg("Failed to generate reply")
		return "", fmt.Errorf("generate reply: %w", err)
	}

	m.mu.Lock()
	m.history = cloneMessages(history)
	m.mu.Unlock()

	m.persist(ctx)
	return reply, nil
}

// ReplyStream generates the answer to the pending message of ui and yields
// each reply-so-far. Nothing runs until the sequence is ranged over.
//
// The history follows the last yielded step. If the runtime fails mid-stream
// the history from before the turn is restored and the error is yielded.
func (m *Model) ReplyStream(ctx context.Context, ui []models.ConversationTurn, params models.SamplingParameters) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		query, err := m.ReconcileHistory(ui)
		if err != nil {
			yield("", err)
			return
		}

		m.mu.Lock()
		before := cloneMessages(m.history)
		continuation := m.continuation
		m.mu.Unlock()

		m.stream(ctx, chat.StreamRequest{
			Query:        query,
			History:      cloneMessages(before),
			Params:       params,
			Continuation: continuation,
		}, before, continuation, yield)
	}
}

// RegenerateStream drops the last answered exchange and streams a new reply
// to the same query. A Model with no history of its own takes the exchange
// from the last turn of ui and adopts the turns before it.
//
// If the runtime fails the dropped exchange is restored.
func (m *Model) RegenerateStream(ctx context.Context, ui []models.ConversationTurn, params models.SamplingParameters) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		m.mu.Lock()
		before := cloneMessages(m.history)
		continuation := m.continuation
		query, base, err := lastExchange(before, ui)
		m.mu.Unlock()
		if err != nil {
			yield("", err)
			return
		}

		logger.For(logger.CHAT).Debug().Str("key", m.key).Int("messages", len(base)).Msg("Regenerating last reply")

		// the continuation belongs to the dropped reply
		m.stream(ctx, chat.StreamRequest{
			Query:   query,
			History: cloneMessages(base),
			Params:  params,
		}, before, continuation, yield)
	}
}

// lastExchange splits the final user and assistant pair off history, or off
// ui when history is empty.
func lastExchange(history []models.ChatMessage, ui []models.ConversationTurn) (string, []models.ChatMessage, error) {
	if n := len(history); n > 0 {
		if n < 2 || history[n-1].Role != models.RoleAssistant || history[n-2].Role != models.RoleUser {
			return "", nil, chat.ErrNothingToRegenerate
		}
		return history[n-2].Content, history[:n-2], nil
	}

	if len(ui) == 0 {
		return "", nil, chat.ErrEmptyHistory
	}
	last := ui[len(ui)-1]
	if last.UserText() == "" {
		return "", nil, chat.ErrNothingToRegenerate
	}

	var base []models.ChatMessage
	for _, turn := range ui[:len(ui)-1] {
		if user := turn.UserText(); user != "" {
			base = append(base, models.UserMessage(user))
		}
		if reply := turn.ModelText(); reply != "" {
			base = append(base, models.AssistantMessage(reply))
		}
	}
	return last.UserText(), base, nil
}

// stream runs req and makes the history follow each step. On a runtime error
// the history and continuation are reset to before and continuation.
func (m *Model) stream(ctx context.Context, req chat.StreamRequest, before []models.ChatMessage, continuation string, yield func(string, error) bool) {
	steps := 0
	defer func() {
		if steps > 0 {
			m.persist(ctx)
		}
	}()

	for step, err := range m.runtime.StreamChat(ctx, req) {
		if err != nil {
			m.mu.Lock()
			m.history = before
			m.continuation = continuation
			m.mu.Unlock()
			steps = 0

			logger.For(logger.CHAT).Error().Err(err).Msg("Stream generation failed")
			yield("", fmt.Errorf("generate reply: %w", err))
			return
		}

		m.mu.Lock()
		m.history = cloneMessages(step.History)
		m.continuation = step.Continuation
		m.mu.Unlock()
		steps++

		if !yield(step.Reply, nil) {
			logger.For(logger.CHAT).Debug().Int("steps", steps).Msg("Stream consumer stopped early")
			return
		}
	}
}

// ClearHistory forgets the conversation. It always reports true; a failure to
// remove the persisted copy is only logged.
func (m *Model) ClearHistory(ctx context.Context) bool {
	m.mu.Lock()
	m.history = nil
	m.continuation = ""
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.Delete(context.WithoutCancel(ctx), m.key); err != nil {
			logger.For(logger.CHAT).Error().Err(err).Str("key", m.key).Msg("Failed to delete persisted history")
		}
	}
	return true
}

// History returns a copy of the conversation history.
func (m *Model) History() []models.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneMessages(m.history)
}

// Continuation returns the runtime token carried between streamed replies.
func (m *Model) Continuation() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.continuation
}

func (m *Model) persist(ctx context.Context) {
	if m.store == nil {
		return
	}
	if err := m.store.Save(context.WithoutCancel(ctx), m.key, m.History()); err != nil {
		logger.For(logger.CHAT).Error().Err(err).Str("key", m.key).Msg("Failed to persist history")
	}
}

func cloneMessages(in []models.ChatMessage) []models.ChatMessage {
	if in == nil {
		return nil
	}
	out := make([]models.ChatMessage, len(in))
	copy(out, in)
	return out
}
