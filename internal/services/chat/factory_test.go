package chat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactoryGetModelBuildsOnce(t *testing.T) {
	var builds atomic.Int32
	factory := NewFactory(func(key string) (*Model, error) {
		builds.Add(1)
		return NewModel(context.Background(), newStubRuntime(), nil, key)
	})

	const workers = 32
	results := make([]*Model, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := factory.GetModel()
			assert.NoError(t, err)
			results[i] = m
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), builds.Load())
	for _, m := range results {
		assert.Same(t, results[0], m)
	}
}

func TestFactoryRetriesFailedBuild(t *testing.T) {
	attempts := 0
	factory := NewFactory(func(key string) (*Model, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("runtime unreachable")
		}
		return NewModel(context.Background(), newStubRuntime(), nil, key)
	})

	_, err := factory.GetModel()
	require.Error(t, err)

	m, err := factory.GetModel()
	require.NoError(t, err)
	assert.NotNil(t, m)
	assert.Equal(t, 2, attempts)
}

func TestFactorySessionModels(t *testing.T) {
	var keys []string
	var mu sync.Mutex
	factory := NewFactory(func(key string) (*Model, error) {
		mu.Lock()
		keys = append(keys, key)
		mu.Unlock()
		return NewModel(context.Background(), newStubRuntime(), nil, key)
	})

	a1, err := factory.GetSessionModel("a")
	require.NoError(t, err)
	a2, err := factory.GetSessionModel("a")
	require.NoError(t, err)
	b, err := factory.GetSessionModel("b")
	require.NoError(t, err)
	shared, err := factory.GetModel()
	require.NoError(t, err)

	assert.Same(t, a1, a2)
	assert.NotSame(t, a1, b)
	assert.NotSame(t, a1, shared)
	assert.Equal(t, 2, factory.Sessions())
	assert.ElementsMatch(t, []string{"session:a", "session:b", SharedKey}, keys)
}

func TestFactoryEvictsIdleSessions(t *testing.T) {
	factory := NewFactory(func(key string) (*Model, error) {
		return NewModel(context.Background(), newStubRuntime(), nil, key)
	})
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	factory.now = func() time.Time { return clock }

	stale, err := factory.GetSessionModel("stale")
	require.NoError(t, err)
	_, err = factory.GetSessionModel("active")
	require.NoError(t, err)

	clock = clock.Add(sessionIdle / 2)
	_, err = factory.GetSessionModel("active")
	require.NoError(t, err)

	clock = clock.Add(sessionIdle/2 + time.Minute)
	_, err = factory.GetSessionModel("new")
	require.NoError(t, err)

	assert.Equal(t, 2, factory.Sessions(), "stale session should be evicted")

	again, err := factory.GetSessionModel("stale")
	require.NoError(t, err)
	assert.NotSame(t, stale, again)
}

func TestFactoryDropSession(t *testing.T) {
	factory := NewFactory(func(key string) (*Model, error) {
		return NewModel(context.Background(), newStubRuntime(), nil, key)
	})

	_, err := factory.GetSessionModel("a")
	require.NoError(t, err)

	assert.True(t, factory.DropSession("a"))
	assert.False(t, factory.DropSession("a"))
	assert.Equal(t, 0, factory.Sessions())
}
