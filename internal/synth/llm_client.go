package synth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/openai/openai-go"
	ooption "github.com/openai/openai-go/option"
)

// Message roles understood by LLMClient.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat message sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LLMClient is the interface for LLM completion calls.
type LLMClient interface {
	// Complete sends the conversation to the model and returns its reply.
	Complete(ctx context.Context, messages []Message) (string, error)
}

// LLMFunc adapts a function to LLMClient.
type LLMFunc func(ctx context.Context, messages []Message) (string, error)

func (f LLMFunc) Complete(ctx context.Context, messages []Message) (string, error) {
	return f(ctx, messages)
}

// OpenAIOptions configures an OpenAIClient. BaseURL may point at any
// OpenAI-compatible endpoint.
type OpenAIOptions struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
	MaxRetries  int
}

// OpenAIClient implements LLMClient with chat completions.
type OpenAIClient struct {
	client      openai.Client
	model       string
	temperature float64
}

// NewOpenAIClient creates a client. An API key and a model name are required.
func NewOpenAIClient(o OpenAIOptions) (*OpenAIClient, error) {
	if strings.TrimSpace(o.APIKey) == "" {
		return nil, errors.New("missing provider api key")
	}
	if strings.TrimSpace(o.Model) == "" {
		return nil, errors.New("missing model name")
	}
	opts := []ooption.RequestOption{
		ooption.WithAPIKey(strings.TrimSpace(o.APIKey)),
		ooption.WithMaxRetries(o.MaxRetries),
	}
	if strings.TrimSpace(o.BaseURL) != "" {
		opts = append(opts, ooption.WithBaseURL(strings.TrimSpace(o.BaseURL)))
	}
	if o.Timeout > 0 {
		opts = append(opts, ooption.WithRequestTimeout(o.Timeout))
	}
	return &OpenAIClient{
		client:      openai.NewClient(opts...),
		model:       o.Model,
		temperature: o.Temperature,
	}, nil
}

func (c *OpenAIClient) Complete(ctx context.Context, messages []Message) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)),
		Temperature: openai.Float(c.temperature),
	}
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			params.Messages = append(params.Messages, openai.SystemMessage(m.Content))
		case RoleAssistant:
			params.Messages = append(params.Messages, openai.AssistantMessage(m.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(m.Content))
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

var _ LLMClient = (*OpenAIClient)(nil)
