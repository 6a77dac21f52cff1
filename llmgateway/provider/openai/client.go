// Package openai adapts github.com/openai/openai-go to the
// llmgateway.Provider interface. The go.mod pulls the official openai-go
// SDK rather than the community go-openai client the teacher's original
// adapter used, so the request/response shapes below follow openai-go's
// Chat Completions surface.
package openai

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/cortexmesh/orchestrator/eventbus"
	"github.com/cortexmesh/orchestrator/faults"
	"github.com/cortexmesh/orchestrator/llmgateway"
)

// ChatClient captures the subset of the openai-go client used by Client.
type ChatClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Client implements llmgateway.Provider via OpenAI Chat Completions.
type Client struct {
	chat         ChatClient
	defaultModel string
}

// New constructs a Client. defaultModel is used when Request.Model is empty.
func New(chat ChatClient, defaultModel string) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai: chat client is required")
	}
	if strings.TrimSpace(defaultModel) == "" {
		return nil, errors.New("openai: default model is required")
	}
	return &Client{chat: chat, defaultModel: defaultModel}, nil
}

// NewFromAPIKey constructs a Client from an API key using openai-go's
// default HTTP transport.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("openai: api key is required")
	}
	oc := openai.NewClient(option.WithAPIKey(apiKey))
	return New(&oc.Chat.Completions, defaultModel)
}

// Complete implements llmgateway.Provider.
func (c *Client) Complete(ctx context.Context, req llmgateway.Request) (llmgateway.Response, error) {
	modelID := strings.TrimSpace(req.Model)
	if modelID == "" {
		modelID = c.defaultModel
	}

	messages := []openai.ChatCompletionMessageParamUnion{}
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    modelID,
		Messages: messages,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := c.chat.New(ctx, params)
	if err != nil {
		if isRateLimited(err) {
			return llmgateway.Response{}, faults.Wrap(faults.KindLLMError, "openai: rate limited", err)
		}
		return llmgateway.Response{}, faults.Wrap(faults.KindLLMError, "openai: chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return llmgateway.Response{}, faults.New(faults.KindLLMError, "openai: empty choices in response")
	}

	return llmgateway.Response{
		Text: resp.Choices[0].Message.Content,
		Usage: eventbus.TokenUsage{
			Prompt:     int(resp.Usage.PromptTokens),
			Completion: int(resp.Usage.CompletionTokens),
			Total:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

func isRateLimited(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}
