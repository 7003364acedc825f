package provider

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/kitchenai/kitchen/pkg/types"
)

// Provider represents an LLM provider with an Eino chat model.
type Provider interface {
	// ID returns the provider identifier.
	ID() string

	// Name returns the human-readable provider name.
	Name() string

	// Models returns the list of known models.
	Models() []types.Model

	// ChatModel returns the Eino chat model for this provider.
	ChatModel() model.BaseChatModel

	// Stream starts a streaming completion.
	Stream(ctx context.Context, req *CompletionRequest) (*schema.StreamReader[*schema.Message], error)
}

// CompletionRequest represents a request to generate a completion.
type CompletionRequest struct {
	Model       string   `json:"model,omitempty"`
	System      string   `json:"system,omitempty"`
	User        string   `json:"user"`
	MaxTokens   int      `json:"maxTokens,omitempty"`
	Temperature *float32 `json:"temperature,omitempty"`
}

// Messages converts the request prompts to Eino messages.
func (r *CompletionRequest) Messages() []*schema.Message {
	msgs := make([]*schema.Message, 0, 2)
	if r.System != "" {
		msgs = append(msgs, schema.SystemMessage(r.System))
	}
	return append(msgs, schema.UserMessage(r.User))
}

// Options converts the request sampling settings to Eino options.
func (r *CompletionRequest) Options() []model.Option {
	var opts []model.Option
	if r.Model != "" {
		opts = append(opts, model.WithModel(r.Model))
	}
	if r.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(r.MaxTokens))
	}
	if r.Temperature != nil {
		opts = append(opts, model.WithTemperature(*r.Temperature))
	}
	return opts
}

// stream is shared by the concrete providers.
func stream(ctx context.Context, cm model.BaseChatModel, req *CompletionRequest, extra ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	opts := append(req.Options(), extra...)
	reader, err := cm.Stream(ctx, req.Messages(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}
	return reader, nil
}
