// Package bedrock adapts the AWS Bedrock Converse API
// (github.com/aws/aws-sdk-go-v2/service/bedrockruntime) to the
// llmgateway.Provider interface.
package bedrock

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"

	"github.com/cortexmesh/orchestrator/eventbus"
	"github.com/cortexmesh/orchestrator/faults"
	"github.com/cortexmesh/orchestrator/llmgateway"
)

// RuntimeClient is the subset of *bedrockruntime.Client the adapter needs.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Client implements llmgateway.Provider via Bedrock Converse.
type Client struct {
	runtime      RuntimeClient
	defaultModel string
}

// New constructs a Client. defaultModel is used when Request.Model is empty.
func New(runtime RuntimeClient, defaultModel string) (*Client, error) {
	if runtime == nil {
		return nil, errors.New("bedrock: runtime client is required")
	}
	if defaultModel == "" {
		return nil, errors.New("bedrock: default model is required")
	}
	return &Client{runtime: runtime, defaultModel: defaultModel}, nil
}

// Complete implements llmgateway.Provider.
func (c *Client) Complete(ctx context.Context, req llmgateway.Request) (llmgateway.Response, error) {
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}

	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(modelID),
		Messages: []brtypes.Message{
			{
				Role:    brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: req.Prompt}},
			},
		},
	}
	if req.System != "" {
		input.System = []brtypes.SystemContentBlock{&brtypes.SystemContentBlockMemberText{Value: req.System}}
	}
	cfg := brtypes.InferenceConfiguration{}
	if req.Temperature > 0 {
		t := float32(req.Temperature)
		cfg.Temperature = &t
	}
	if req.MaxTokens > 0 {
		m := int32(req.MaxTokens)
		cfg.MaxTokens = &m
	}
	input.InferenceConfig = &cfg

	out, err := c.runtime.Converse(ctx, input)
	if err != nil {
		if isRateLimited(err) {
			return llmgateway.Response{}, faults.Wrap(faults.KindLLMError, "bedrock: rate limited", err)
		}
		return llmgateway.Response{}, faults.Wrap(faults.KindLLMError, "bedrock: converse", err)
	}

	var text string
	if msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			if tb, ok := block.(*brtypes.ContentBlockMemberText); ok {
				text += tb.Value
			}
		}
	}

	usage := eventbus.TokenUsage{}
	if out.Usage != nil {
		usage.Prompt = int(aws.ToInt32(out.Usage.InputTokens))
		usage.Completion = int(aws.ToInt32(out.Usage.OutputTokens))
		usage.Total = int(aws.ToInt32(out.Usage.TotalTokens))
	}

	return llmgateway.Response{Text: text, Usage: usage}, nil
}

// isRateLimited reports whether err represents Bedrock throttling: an API
// error whose code is ThrottlingException or TooManyRequestsException.
func isRateLimited(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return true
		}
	}
	return false
}
