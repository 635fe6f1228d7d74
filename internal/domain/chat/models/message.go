package models

import (
	"encoding/json"
	"fmt"
)

// Chat roles understood by the inference runtime
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage represents a single message in a chat conversation
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UserMessage returns a ChatMessage with the user role
func UserMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content}
}

// AssistantMessage returns a ChatMessage with the assistant role
func AssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: content}
}

// ConversationTurn is one row of a displayed conversation. Either side may be
// absent; a turn without a model reply is awaiting one.
//
// On the wire a turn is a two element array: ["user text", "model text" | null].
type ConversationTurn struct {
	User  *string
	Model *string
}

// NewTurn returns a pending turn holding the user text.
func NewTurn(user string) ConversationTurn {
	return ConversationTurn{User: &user}
}

// AnsweredTurn returns a turn holding both sides.
func AnsweredTurn(user, model string) ConversationTurn {
	return ConversationTurn{User: &user, Model: &model}
}

// UserText returns the user side or "" when absent.
func (t ConversationTurn) UserText() string {
	if t.User == nil {
		return ""
	}
	return *t.User
}

// ModelText returns the model side or "" when absent.
func (t ConversationTurn) ModelText() string {
	if t.Model == nil {
		return ""
	}
	return *t.Model
}

// Pending reports whether the turn still awaits a model reply.
func (t ConversationTurn) Pending() bool {
	return t.ModelText() == ""
}

// WithModel returns a copy of the turn with the model side set to reply.
func (t ConversationTurn) WithModel(reply string) ConversationTurn {
	t.Model = &reply
	return t
}

func (t ConversationTurn) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]*string{t.User, t.Model})
}

func (t *ConversationTurn) UnmarshalJSON(data []byte) error {
	var pair []*string
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("conversation turn must be a [user, model] array: %w", err)
	}
	if len(pair) == 0 || len(pair) > 2 {
		return fmt.Errorf("conversation turn must have 1 or 2 elements, got %d", len(pair))
	}

	t.User = pair[0]
	t.Model = nil
	if len(pair) == 2 {
		t.Model = pair[1]
	}
	return nil
}

// CloneTurns returns a copy of turns that shares no slice storage with it.
func CloneTurns(turns []ConversationTurn) []ConversationTurn {
	out := make([]ConversationTurn, len(turns))
	copy(out, turns)
	return out
}

// SamplingParameters are forwarded to the runtime unchanged on every request
type SamplingParameters struct {
	TopP        float32 `json:"top_p" validate:"gte=0,lte=1"`
	Temperature float32 `json:"temperature" validate:"gt=0"`
}

// ChatRequest is the body of the /chat and /stream_chat endpoints
type ChatRequest struct {
	ChatHistory []ConversationTurn `json:"chat_history" validate:"required,min=1"`
	TopP        float32            `json:"top_p" validate:"gte=0,lte=1"`
	Temperature float32            `json:"temperature" validate:"gt=0"`
}

// Sampling returns the request's sampling parameters
func (r ChatRequest) Sampling() SamplingParameters {
	return SamplingParameters{TopP: r.TopP, Temperature: r.Temperature}
}
