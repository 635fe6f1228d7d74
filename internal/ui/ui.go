// Package ui holds the chat front-end operations shared by the web UI and the
// CLI, and the web UI server itself.
package ui

import (
	"context"
	"iter"

	chatdomain "github.com/deepgram/glmchat/internal/domain/chat"
	"github.com/deepgram/glmchat/internal/domain/chat/models"
	"github.com/deepgram/glmchat/internal/markup"
	"github.com/deepgram/glmchat/internal/services/chat"
)

// ClearedNotice is shown once the history has been cleared.
const ClearedNotice = "Chat history cleared!"

// Replier produces replies for a UI history. The API client and Local both
// satisfy it.
type Replier interface {
	Chat(ctx context.Context, history []models.ConversationTurn, params models.SamplingParameters) (string, error)
	StreamChat(ctx context.Context, history []models.ConversationTurn, params models.SamplingParameters) iter.Seq2[string, error]
	// StreamRegenerate replaces the reply of the answered last turn of history.
	StreamRegenerate(ctx context.Context, history []models.ConversationTurn, params models.SamplingParameters) iter.Seq2[string, error]
	ClearHistory(ctx context.Context) (bool, error)
}

// ModelSource resolves the model serving ctx.
type ModelSource func(ctx context.Context) (*chat.Model, error)

// Local replies in-process through a chat.Model.
type Local struct {
	source ModelSource
}

func NewLocal(source ModelSource) *Local {
	return &Local{source: source}
}

func (l *Local) Chat(ctx context.Context, history []models.ConversationTurn, params models.SamplingParameters) (string, error) {
	model, err := l.source(ctx)
	if err != nil {
		return "", err
	}
	return model.Reply(ctx, history, params)
}

func (l *Local) StreamChat(ctx context.Context, history []models.ConversationTurn, params models.SamplingParameters) iter.Seq2[string, error] {
	return l.stream(ctx, history, params, (*chat.Model).ReplyStream)
}

func (l *Local) StreamRegenerate(ctx context.Context, history []models.ConversationTurn, params models.SamplingParameters) iter.Seq2[string, error] {
	return l.stream(ctx, history, params, (*chat.Model).RegenerateStream)
}

func (l *Local) stream(ctx context.Context, history []models.ConversationTurn, params models.SamplingParameters,
	generate func(*chat.Model, context.Context, []models.ConversationTurn, models.SamplingParameters) iter.Seq2[string, error],
) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		model, err := l.source(ctx)
		if err != nil {
			yield("", err)
			return
		}
		for chunk, err := range generate(model, ctx, history, params) {
			if !yield(chunk, err) || err != nil {
				return
			}
		}
	}
}

func (l *Local) ClearHistory(ctx context.Context) (bool, error) {
	model, err := l.source(ctx)
	if err != nil {
		return false, err
	}
	return model.ClearHistory(ctx), nil
}

// QueryUserInput appends the escaped text as a pending turn. The first return
// value is always empty and replaces the input box contents. history itself is
// never modified.
func QueryUserInput(text string, history []models.ConversationTurn) (string, []models.ConversationTurn) {
	out := models.CloneTurns(history)
	if text != "" {
		out = append(out, models.NewTurn(markup.Escape(text)))
	}
	return "", out
}

// LLMReply writes the complete reply into the last turn of a copy of history.
func LLMReply(ctx context.Context, r Replier, history []models.ConversationTurn, params models.SamplingParameters) ([]models.ConversationTurn, error) {
	if len(history) == 0 {
		return nil, chatdomain.ErrEmptyHistory
	}

	reply, err := r.Chat(ctx, history, params)
	if err != nil {
		return nil, err
	}

	out := models.CloneTurns(history)
	out[len(out)-1] = out[len(out)-1].WithModel(reply)
	return out, nil
}

// LLMStreamReply yields a fresh copy of history for every reply-so-far, with
// the last turn's model slot set to it.
func LLMStreamReply(ctx context.Context, r Replier, history []models.ConversationTurn, params models.SamplingParameters) iter.Seq2[[]models.ConversationTurn, error] {
	return func(yield func([]models.ConversationTurn, error) bool) {
		if len(history) == 0 {
			yield(nil, chatdomain.ErrEmptyHistory)
			return
		}

		base := models.CloneTurns(history)
		last := len(base) - 1
		for chunk, err := range r.StreamChat(ctx, base, params) {
			if err != nil {
				yield(nil, err)
				return
			}
			out := models.CloneTurns(base)
			out[last] = out[last].WithModel(chunk)
			if !yield(out, nil) {
				return
			}
		}
	}
}

// Regenerate drops the reply of the last turn and streams a new one for the
// same user text, yielding a fresh copy of history per reply-so-far. With no
// answered last turn history is yielded once, unchanged.
func Regenerate(ctx context.Context, r Replier, history []models.ConversationTurn, params models.SamplingParameters) iter.Seq2[[]models.ConversationTurn, error] {
	return func(yield func([]models.ConversationTurn, error) bool) {
		if len(history) == 0 || history[len(history)-1].Pending() {
			yield(models.CloneTurns(history), nil)
			return
		}

		base := models.CloneTurns(history)
		last := len(base) - 1
		for chunk, err := range r.StreamRegenerate(ctx, base, params) {
			if err != nil {
				yield(nil, err)
				return
			}
			out := models.CloneTurns(base)
			out[last] = out[last].WithModel(chunk)
			if !yield(out, nil) {
				return
			}
		}
	}
}

// ClearMessages clears the conversation and returns the notice to display, or
// an empty notice when the replier declined.
func ClearMessages(ctx context.Context, r Replier) (string, error) {
	cleared, err := r.ClearHistory(ctx)
	if err != nil {
		return "", err
	}
	if !cleared {
		return "", nil
	}
	return ClearedNotice, nil
}
