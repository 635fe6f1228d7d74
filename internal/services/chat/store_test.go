package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepgram/glmchat/internal/domain/chat/models"
	"github.com/deepgram/glmchat/internal/infrastructure/redis"
)

// fakeKeyValue mimics the Redis service in memory.
type fakeKeyValue struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
	err  error
}

func newFakeKeyValue() *fakeKeyValue {
	return &fakeKeyValue{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeKeyValue) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	v, ok := f.data[key]
	if !ok {
		return "", redis.ErrNotFound
	}
	return v, nil
}

func (f *fakeKeyValue) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	default:
		return errors.New("unsupported value type")
	}
	f.ttls[key] = expiration
	return nil
}

func (f *fakeKeyValue) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return f.err
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	kv := newFakeKeyValue()
	store := NewRedisStore(kv, time.Hour)

	history, err := store.Load(ctx, SharedKey)
	require.NoError(t, err)
	assert.Nil(t, history)

	want := []models.ChatMessage{models.UserMessage("hi"), models.AssistantMessage("hello")}
	require.NoError(t, store.Save(ctx, SharedKey, want))
	assert.Equal(t, time.Hour, kv.ttls["glmchat:history:shared"])
	assert.JSONEq(t, `[{"role":"user","content":"hi"},{"role":"assistant","content":"hello"}]`, kv.data["glmchat:history:shared"])

	history, err = store.Load(ctx, SharedKey)
	require.NoError(t, err)
	assert.Equal(t, want, history)

	require.NoError(t, store.Save(ctx, SharedKey, nil))
	assert.NotContains(t, kv.data, "glmchat:history:shared")
}

func TestRedisStoreErrors(t *testing.T) {
	ctx := context.Background()
	kv := newFakeKeyValue()
	store := NewRedisStore(kv, time.Hour)

	kv.data["glmchat:history:session:x"] = "not json"
	_, err := store.Load(ctx, SessionKey("x"))
	assert.Error(t, err)

	kv.err = errors.New("connection refused")
	_, err = store.Load(ctx, SharedKey)
	assert.ErrorIs(t, err, kv.err)
}

func TestModelRestoresFromStore(t *testing.T) {
	ctx := context.Background()
	store := NewRedisStore(newFakeKeyValue(), time.Hour)

	first := newTestModel(t, newStubRuntime(), store)
	_, err := first.Reply(ctx, []models.ConversationTurn{models.NewTurn("hi")}, defaultParams)
	require.NoError(t, err)

	second := newTestModel(t, newStubRuntime(), store)
	assert.Equal(t, first.History(), second.History())

	second.ClearHistory(ctx)
	third := newTestModel(t, newStubRuntime(), store)
	assert.Empty(t, third.History())
}
