package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"

	"github.com/SEPPAN-hub/aikomon/internal/models"
)

// ErrNoChoiceInResponse is returned when the API response contains no usable message.
var ErrNoChoiceInResponse = errors.New("openai: no choice in response")

const (
	defaultChatModel       = "gpt-3.5-turbo"
	defaultMaxOutputTokens = 512
	defaultTemperature     = 0.7
)

// ChatClient calls the OpenAI chat completions API via the official SDK.
type ChatClient struct {
	sdk             openaisdk.Client
	model           string
	maxOutputTokens int64
	temperature     float64
}

// ChatClientOption configures the ChatClient.
type ChatClientOption func(*ChatClient)

// WithChatModel sets the completion model. Empty keeps the default.
func WithChatModel(model string) ChatClientOption {
	return func(c *ChatClient) {
		if model != "" {
			c.model = model
		}
	}
}

// NewChatClient creates an OpenAI chat completions client using the official SDK.
func NewChatClient(apiKey string, opts ...ChatClientOption) *ChatClient {
	client := &ChatClient{
		sdk:             openaisdk.NewClient(option.WithAPIKey(apiKey)),
		model:           defaultChatModel,
		maxOutputTokens: defaultMaxOutputTokens,
		temperature:     defaultTemperature,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Complete sends one chat completion request: the system prompt, the prior
// conversation turns in chronological order, and a final user prompt. It returns
// the first choice's text with surrounding whitespace trimmed.
func (c *ChatClient) Complete(
	ctx context.Context, systemPrompt string, turns []models.ConversationTurn, userPrompt string,
) (string, error) {
	messages := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(turns)+2)
	messages = append(messages, openaisdk.SystemMessage(systemPrompt))

	for _, turn := range turns {
		switch turn.Role {
		case models.RoleAssistant:
			messages = append(messages, openaisdk.AssistantMessage(turn.Content))
		case models.RoleUser:
			messages = append(messages, openaisdk.UserMessage(turn.Content))
		}
	}

	messages = append(messages, openaisdk.UserMessage(userPrompt))

	resp, err := c.sdk.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model:               openaisdk.ChatModel(c.model),
		Messages:            messages,
		MaxCompletionTokens: param.NewOpt(c.maxOutputTokens),
		Temperature:         param.NewOpt(c.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrNoChoiceInResponse
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrNoChoiceInResponse
	}

	return text, nil
}
