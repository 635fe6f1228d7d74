package handlers

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	chatdomain "github.com/deepgram/glmchat/internal/domain/chat"
	"github.com/deepgram/glmchat/internal/domain/chat/models"
	"github.com/deepgram/glmchat/internal/services/chat"
)

var errGeneration = errors.New("generation failed")

// MockRuntime mocks the inference runtime
type MockRuntime struct {
	mock.Mock
}

func (m *MockRuntime) Chat(_ context.Context, query string, history []models.ChatMessage, params models.SamplingParameters) (string, []models.ChatMessage, error) {
	ret := m.Called(query, history, params)

	var reply string
	if rf, ok := ret.Get(0).(func(string, []models.ChatMessage, models.SamplingParameters) string); ok {
		reply = rf(query, history, params)
	} else {
		reply = ret.String(0)
	}

	var updated []models.ChatMessage
	if rf, ok := ret.Get(1).(func(string, []models.ChatMessage, models.SamplingParameters) []models.ChatMessage); ok {
		updated = rf(query, history, params)
	} else if v := ret.Get(1); v != nil {
		updated = v.([]models.ChatMessage)
	}

	return reply, updated, ret.Error(2)
}

func (m *MockRuntime) StreamChat(_ context.Context, req chatdomain.StreamRequest) iter.Seq2[chatdomain.StreamStep, error] {
	args := m.Called(req.Query)
	return args.Get(0).(iter.Seq2[chatdomain.StreamStep, error])
}

// scriptedSteps yields each reply-so-far and fails with err at index failAt.
func scriptedSteps(query string, replies []string, failAt int, err error) iter.Seq2[chatdomain.StreamStep, error] {
	return func(yield func(chatdomain.StreamStep, error) bool) {
		for i, reply := range replies {
			if i == failAt {
				yield(chatdomain.StreamStep{}, err)
				return
			}
			step := chatdomain.StreamStep{
				Reply:   reply,
				History: chatdomain.AppendExchange(nil, query, reply),
			}
			if !yield(step, nil) {
				return
			}
		}
	}
}

// echo makes the runtime answer every Chat call with its query.
func echo(rt *MockRuntime) {
	rt.On("Chat", mock.Anything, mock.Anything, mock.Anything).Return(
		func(query string, history []models.ChatMessage, _ models.SamplingParameters) string {
			return query
		},
		func(query string, history []models.ChatMessage, _ models.SamplingParameters) []models.ChatMessage {
			return chatdomain.AppendExchange(history, query, query)
		},
		nil,
	)
}

type staticProvider struct {
	model *chat.Model
	err   error
}

func (p staticProvider) ModelFor(context.Context) (*chat.Model, error) {
	return p.model, p.err
}

func newProvider(t *testing.T, rt chatdomain.Runtime) staticProvider {
	t.Helper()
	model, err := chat.NewModel(context.Background(), rt, nil, chat.SharedKey)
	require.NoError(t, err)
	return staticProvider{model: model}
}
