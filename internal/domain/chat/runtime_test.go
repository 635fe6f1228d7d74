package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/deepgram/glmchat/internal/domain/chat/models"
)

func TestAppendExchange(t *testing.T) {
	history := make([]models.ChatMessage, 1, 8)
	history[0] = models.UserMessage("first")

	got := AppendExchange(history, "hi", "hello")

	assert.Equal(t, []models.ChatMessage{
		models.UserMessage("first"),
		models.UserMessage("hi"),
		models.AssistantMessage("hello"),
	}, got)
	assert.Len(t, history, 1)

	// the input's spare capacity must not be shared with the result
	got[1].Content = "changed"
	assert.Equal(t, "first", history[:cap(history)][0].Content)
	assert.Equal(t, "", history[:cap(history)][1].Content)
}
