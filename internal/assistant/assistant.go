// Package assistant generates automated inbound-message replies via Amazon
// Bedrock.
package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

const (
	// DefaultMaxTokens bounds reply generation.
	DefaultMaxTokens = 512
	// maxHistoryInput is the maximum recent-message chars sent to the model.
	maxHistoryInput = 4000
	// anthropicVersion is the required API version for Claude on Bedrock.
	anthropicVersion = "bedrock-2023-05-31"
)

// Replier generates an automated reply to an inbound message thread.
type Replier interface {
	Enabled() bool
	Reply(ctx context.Context, contact string, recent []string) (string, error)
}

// BedrockInvoker abstracts Bedrock model invocation for dependency inversion.
type BedrockInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockReplier generates replies via Bedrock Claude models. An empty model
// ID disables auto-reply entirely.
type BedrockReplier struct {
	client    BedrockInvoker
	modelID   string
	maxTokens int
}

// NewBedrockReplier creates a new BedrockReplier.
func NewBedrockReplier(client BedrockInvoker, modelID string) *BedrockReplier {
	return &BedrockReplier{
		client:    client,
		modelID:   modelID,
		maxTokens: DefaultMaxTokens,
	}
}

// Enabled reports whether auto-reply is configured.
func (r *BedrockReplier) Enabled() bool {
	return r != nil && r.modelID != ""
}

// claudeRequest is the Claude Messages API request format for Bedrock.
type claudeRequest struct {
	AnthropicVersion string    `json:"anthropic_version"`
	MaxTokens        int       `json:"max_tokens"`
	Messages         []message `json:"messages"`
}

// message represents a message in the Claude Messages API.
type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// claudeResponse is the Claude Messages API response format.
type claudeResponse struct {
	Content []contentBlock `json:"content"`
}

// contentBlock represents a content block in the response.
type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

const promptTemplate = `You are a customer support assistant answering a WhatsApp message.

- Reply in the language the customer uses
- Be brief and direct; this is a chat, not an email
- If the question needs a human, say a team member will follow up
- Output ONLY the reply text. No quotes, no preamble.

Customer: %s
Recent messages, oldest first:
%s`

// Reply generates a reply given the contact name and recent conversation
// messages, oldest first.
func (r *BedrockReplier) Reply(ctx context.Context, contact string, recent []string) (string, error) {
	if !r.Enabled() {
		return "", nil
	}

	history := strings.Join(recent, "\n")
	if len(history) > maxHistoryInput {
		history = history[len(history)-maxHistoryInput:]
	}

	prompt := fmt.Sprintf(promptTemplate, contact, history)

	reqBody, err := json.Marshal(claudeRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        r.maxTokens,
		Messages: []message{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	modelID := r.modelID
	output, err := r.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId: &modelID,
		Body:    reqBody,
	})
	if err != nil {
		return "", fmt.Errorf("invoke model: %w", err)
	}

	var resp claudeResponse
	if err := json.Unmarshal(output.Body, &resp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	if len(resp.Content) == 0 {
		return "", nil
	}

	return strings.TrimSpace(resp.Content[0].Text), nil
}
