package chat

import (
	"context"
	"errors"
	"iter"

	"github.com/deepgram/glmchat/internal/domain/chat/models"
)

var (
	// ErrModelNotInitialized is returned when no inference runtime is available.
	ErrModelNotInitialized = errors.New("model not initialized")
	// ErrEmptyHistory is returned for a request without any conversation turns.
	ErrEmptyHistory = errors.New("chat history is empty")
	// ErrNoPendingMessage is returned when the last turn has already been answered
	// and there is nothing for the model to reply to.
	ErrNoPendingMessage = errors.New("no pending user message")
	// ErrNothingToRegenerate is returned when there is no answered exchange to
	// generate again.
	ErrNothingToRegenerate = errors.New("no answered exchange to regenerate")
	// ErrContentFiltered aborts a generation that produced a banned word.
	ErrContentFiltered = errors.New("reply contains filtered content")
)

// StreamStep is one increment of a streamed generation. Reply is the full
// reply generated so far, History the conversation including it.
type StreamStep struct {
	Reply        string
	History      []models.ChatMessage
	Continuation string
}

// Runtime is the external inference engine. Implementations must not retain
// or mutate the history slice they are given.
type Runtime interface {
	// Chat generates a complete reply to query.
	Chat(ctx context.Context, query string, history []models.ChatMessage, params models.SamplingParameters) (string, []models.ChatMessage, error)

	// StreamChat generates a reply incrementally. The sequence is lazy and
	// stops at the first error.
	StreamChat(ctx context.Context, req StreamRequest) iter.Seq2[StreamStep, error]
}

// StreamRequest carries the inputs of a streamed generation.
type StreamRequest struct {
	Query        string
	History      []models.ChatMessage
	Params       models.SamplingParameters
	Continuation string
}

// AppendExchange returns a copy of history with the query and reply appended.
func AppendExchange(history []models.ChatMessage, query, reply string) []models.ChatMessage {
	out := make([]models.ChatMessage, 0, len(history)+2)
	out = append(out, history...)
	return append(out, models.UserMessage(query), models.AssistantMessage(reply))
}
