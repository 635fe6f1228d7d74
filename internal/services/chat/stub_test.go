package chat

import (
	"context"
	"errors"
	"iter"
	"sync"

	"github.com/deepgram/glmchat/internal/domain/chat"
	"github.com/deepgram/glmchat/internal/domain/chat/models"
)

var errRuntime = errors.New("runtime exploded")

// stubRuntime echoes the query by default and streams the scripted replies.
type stubRuntime struct {
	mu      sync.Mutex
	replies []string
	failAt  int // index of the stream step that fails; -1 never
	chatErr error

	lastQuery   string
	lastHistory []models.ChatMessage
	lastParams  models.SamplingParameters
	lastCont    string
	calls       int
}

func newStubRuntime(replies ...string) *stubRuntime {
	return &stubRuntime{replies: replies, failAt: -1}
}

func (s *stubRuntime) record(query string, history []models.ChatMessage, params models.SamplingParameters, cont string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastQuery = query
	s.lastHistory = history
	s.lastParams = params
	s.lastCont = cont
	s.calls++
}

func (s *stubRuntime) Chat(_ context.Context, query string, history []models.ChatMessage, params models.SamplingParameters) (string, []models.ChatMessage, error) {
	s.record(query, history, params, "")
	if s.chatErr != nil {
		return "", nil, s.chatErr
	}
	return query, chat.AppendExchange(history, query, query), nil
}

func (s *stubRuntime) StreamChat(_ context.Context, req chat.StreamRequest) iter.Seq2[chat.StreamStep, error] {
	return func(yield func(chat.StreamStep, error) bool) {
		s.record(req.Query, req.History, req.Params, req.Continuation)
		for i, reply := range s.replies {
			if i == s.failAt {
				yield(chat.StreamStep{}, errRuntime)
				return
			}
			step := chat.StreamStep{
				Reply:        reply,
				History:      chat.AppendExchange(req.History, req.Query, reply),
				Continuation: reply,
			}
			if !yield(step, nil) {
				return
			}
		}
	}
}

// failingStore fails every operation.
type failingStore struct{}

func (failingStore) Load(context.Context, string) ([]models.ChatMessage, error) {
	return nil, errors.New("store down")
}

func (failingStore) Save(context.Context, string, []models.ChatMessage) error {
	return errors.New("store down")
}

func (failingStore) Delete(context.Context, string) error {
	return errors.New("store down")
}

// memoryStore keeps histories in a map for tests.
type memoryStore struct {
	mu    sync.RWMutex
	items map[string][]models.ChatMessage
}

func newMemoryStore() *memoryStore {
	return &memoryStore{items: make(map[string][]models.ChatMessage)}
}

func (s *memoryStore) Load(_ context.Context, key string) ([]models.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneMessages(s.items[key]), nil
}

func (s *memoryStore) Save(_ context.Context, key string, history []models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = cloneMessages(history)
	return nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}
