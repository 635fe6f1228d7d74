package chat

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/deepgram/glmchat/internal/domain/chat"
	"github.com/deepgram/glmchat/internal/domain/chat/models"
)

// FilteredRuntime aborts generations whose reply contains a banned word.
type FilteredRuntime struct {
	next  chat.Runtime
	words []string
}

// NewFilteredRuntime wraps next. With no usable words next is returned as is.
func NewFilteredRuntime(next chat.Runtime, words []string) chat.Runtime {
	var banned []string
	for _, w := range words {
		if w = strings.TrimSpace(w); w != "" {
			banned = append(banned, w)
		}
	}
	if len(banned) == 0 || next == nil {
		return next
	}
	return &FilteredRuntime{next: next, words: banned}
}

func (f *FilteredRuntime) Chat(ctx context.Context, query string, history []models.ChatMessage, params models.SamplingParameters) (string, []models.ChatMessage, error) {
	reply, updated, err := f.next.Chat(ctx, query, history, params)
	if err != nil {
		return "", nil, err
	}
	if err := f.check(reply); err != nil {
		return "", nil, err
	}
	return reply, updated, nil
}

func (f *FilteredRuntime) StreamChat(ctx context.Context, req chat.StreamRequest) iter.Seq2[chat.StreamStep, error] {
	return func(yield func(chat.StreamStep, error) bool) {
		for step, err := range f.next.StreamChat(ctx, req) {
			if err == nil {
				err = f.check(step.Reply)
			}
			if err != nil {
				yield(chat.StreamStep{}, err)
				return
			}
			if !yield(step, nil) {
				return
			}
		}
	}
}

func (f *FilteredRuntime) check(reply string) error {
	for _, w := range f.words {
		if strings.Contains(reply, w) {
			return fmt.Errorf("%w: %q", chat.ErrContentFiltered, w)
		}
	}
	return nil
}

// Unwrap returns the filtered runtime.
func (f *FilteredRuntime) Unwrap() chat.Runtime {
	return f.next
}
