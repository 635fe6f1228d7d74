package ui

import (
	"context"
	"iter"

	chatdomain "github.com/deepgram/glmchat/internal/domain/chat"
	"github.com/deepgram/glmchat/internal/domain/chat/models"
)

// fakeReplier replays fixed chunks and records what it was asked.
type fakeReplier struct {
	chunks    []string
	err       error
	failAfter int
	cleared   bool
	clearErr  error

	regenerated bool

	gotHistory []models.ConversationTurn
	gotParams  models.SamplingParameters
}

func (f *fakeReplier) Chat(_ context.Context, history []models.ConversationTurn, params models.SamplingParameters) (string, error) {
	f.gotHistory, f.gotParams = history, params
	if f.err != nil {
		return "", f.err
	}
	return f.chunks[len(f.chunks)-1], nil
}

func (f *fakeReplier) StreamChat(_ context.Context, history []models.ConversationTurn, params models.SamplingParameters) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		f.gotHistory, f.gotParams = history, params
		for i, chunk := range f.chunks {
			if f.err != nil && i == f.failAfter {
				yield("", f.err)
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

func (f *fakeReplier) StreamRegenerate(ctx context.Context, history []models.ConversationTurn, params models.SamplingParameters) iter.Seq2[string, error] {
	f.regenerated = true
	return f.StreamChat(ctx, history, params)
}

func (f *fakeReplier) ClearHistory(context.Context) (bool, error) {
	if f.clearErr != nil {
		return false, f.clearErr
	}
	f.cleared = true
	return true, nil
}

// echoRuntime answers "You said: <query>" in two steps.
type echoRuntime struct{}

func (echoRuntime) Chat(_ context.Context, query string, history []models.ChatMessage, _ models.SamplingParameters) (string, []models.ChatMessage, error) {
	reply := "You said: " + query
	return reply, chatdomain.AppendExchange(history, query, reply), nil
}

func (echoRuntime) StreamChat(_ context.Context, req chatdomain.StreamRequest) iter.Seq2[chatdomain.StreamStep, error] {
	return func(yield func(chatdomain.StreamStep, error) bool) {
		for _, reply := range []string{"You said:", "You said: " + req.Query} {
			step := chatdomain.StreamStep{
				Reply:        reply,
				History:      chatdomain.AppendExchange(req.History, req.Query, reply),
				Continuation: "cont",
			}
			if !yield(step, nil) {
				return
			}
		}
	}
}
