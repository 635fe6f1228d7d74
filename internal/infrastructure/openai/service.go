package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/deepgram/glmchat/internal/config"
	"github.com/deepgram/glmchat/internal/domain/chat"
	"github.com/deepgram/glmchat/internal/domain/chat/models"
	"github.com/deepgram/glmchat/internal/logger"
)

// Service talks to an OpenAI-compatible inference server such as the ones
// shipped with ChatGLM3 and Qwen.
type Service struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

func NewService(settings config.RuntimeSettings) *Service {
	logger.For(logger.RUNTIME).Info().
		Str("base_url", settings.BaseURL).
		Str("model", settings.Model).
		Msg("Initialising inference runtime client")

	cfg := openai.DefaultConfig(settings.APIKey)
	cfg.BaseURL = strings.TrimRight(settings.BaseURL, "/")

	return &Service{
		client:  openai.NewClientWithConfig(cfg),
		model:   settings.Model,
		timeout: settings.Timeout,
	}
}

// Ping lists the server's models and checks that the configured one is among
// them. Servers that list nothing are accepted.
func (s *Service) Ping(ctx context.Context) error {
	list, err := s.client.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	if len(list.Models) == 0 {
		return nil
	}
	for _, m := range list.Models {
		if m.ID == s.model {
			return nil
		}
	}
	return fmt.Errorf("model %q not served by runtime", s.model)
}

func (s *Service) Chat(ctx context.Context, query string, history []models.ChatMessage, params models.SamplingParameters) (string, []models.ChatMessage, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	resp, err := s.client.CreateChatCompletion(ctx, s.request(query, history, params))
	if err != nil {
		logger.For(logger.RUNTIME).Error().Err(err).Msg("Failed to get chat completion")
		return "", nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil, errors.New("no response choices returned")
	}

	reply := resp.Choices[0].Message.Content
	logger.For(logger.RUNTIME).Debug().
		Str("id", resp.ID).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Msg("Chat completion finished")

	return reply, chat.AppendExchange(history, query, reply), nil
}

func (s *Service) StreamChat(ctx context.Context, req chat.StreamRequest) iter.Seq2[chat.StreamStep, error] {
	return func(yield func(chat.StreamStep, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		if req.Continuation != "" {
			logger.For(logger.RUNTIME).Debug().Str("previous", req.Continuation).Msg("Continuing conversation")
		}

		completion := s.request(req.Query, req.History, req.Params)
		completion.Stream = true

		stream, err := s.client.CreateChatCompletionStream(ctx, completion)
		if err != nil {
			logger.For(logger.RUNTIME).Error().Err(err).Msg("Failed to open completion stream")
			yield(chat.StreamStep{}, fmt.Errorf("open completion stream: %w", err))
			return
		}
		defer stream.Close()

		var reply strings.Builder
		continuation := req.Continuation
		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(chat.StreamStep{}, fmt.Errorf("receive completion chunk: %w", err))
				return
			}
			if chunk.ID != "" {
				continuation = chunk.ID
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}

			reply.WriteString(chunk.Choices[0].Delta.Content)
			step := chat.StreamStep{
				Reply:        reply.String(),
				History:      chat.AppendExchange(req.History, req.Query, reply.String()),
				Continuation: continuation,
			}
			if !yield(step, nil) {
				return
			}
		}
	}
}

func (s *Service) request(query string, history []models.ChatMessage, params models.SamplingParameters) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	for _, msg := range history {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: query,
	})

	return openai.ChatCompletionRequest{
		Model:       s.model,
		Messages:    messages,
		TopP:        params.TopP,
		Temperature: params.Temperature,
	}
}
