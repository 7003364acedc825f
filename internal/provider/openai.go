package provider

import (
	"context"
	"fmt"
	"os"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/kitchenai/kitchen/pkg/types"
)

// OpenAIProvider implements Provider for OpenAI and compatible endpoints.
type OpenAIProvider struct {
	chatModel model.BaseChatModel
	models    []types.Model
	config    *OpenAIConfig
}

// OpenAIConfig holds configuration for OpenAI provider.
type OpenAIConfig struct {
	// ID is the provider identifier (e.g., "openai", "qwen", "ollama").
	// If empty, defaults to "openai".
	ID        string
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(ctx context.Context, config *OpenAIConfig) (*OpenAIProvider, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}

	maxTokens := config.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	modelID := config.Model
	if modelID == "" {
		modelID = os.Getenv("OPENAI_MODEL_ID")
	}
	if modelID == "" {
		modelID = "gpt-4o-mini"
	}

	cfg := &openai.ChatModelConfig{
		APIKey:              apiKey,
		Model:               modelID,
		MaxCompletionTokens: &maxTokens,
	}
	if config.BaseURL != "" {
		cfg.BaseURL = config.BaseURL
	}

	chatModel, err := openai.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI model: %w", err)
	}

	id := config.ID
	if id == "" {
		id = "openai"
	}

	return &OpenAIProvider{
		chatModel: chatModel,
		models:    openAIModels(id, modelID),
		config:    config,
	}, nil
}

// ID returns the provider identifier.
func (p *OpenAIProvider) ID() string {
	if p.config.ID != "" {
		return p.config.ID
	}
	return "openai"
}

// Name returns the human-readable provider name.
func (p *OpenAIProvider) Name() string { return "OpenAI" }

// Models returns the list of known models.
func (p *OpenAIProvider) Models() []types.Model { return p.models }

// ChatModel returns the Eino chat model.
func (p *OpenAIProvider) ChatModel() model.BaseChatModel { return p.chatModel }

// Stream starts a streaming completion. The token limit is sent as
// max_completion_tokens, which newer models require.
func (p *OpenAIProvider) Stream(ctx context.Context, req *CompletionRequest) (*schema.StreamReader[*schema.Message], error) {
	var extra []model.Option
	if req.MaxTokens > 0 {
		extra = append(extra, openai.WithMaxCompletionTokens(req.MaxTokens))
	}
	limited := *req
	limited.MaxTokens = 0
	return stream(ctx, p.chatModel, &limited, extra...)
}

func openAIModels(providerID, configured string) []types.Model {
	models := []types.Model{
		{
			ID:              "gpt-4o-mini",
			Name:            "GPT-4o Mini",
			ProviderID:      providerID,
			ContextLength:   128000,
			MaxOutputTokens: 16384,
			InputPrice:      0.15,
			OutputPrice:     0.6,
		},
		{
			ID:              "gpt-4o",
			Name:            "GPT-4o",
			ProviderID:      providerID,
			ContextLength:   128000,
			MaxOutputTokens: 16384,
			InputPrice:      2.5,
			OutputPrice:     10.0,
		},
	}
	for _, m := range models {
		if m.ID == configured {
			return models
		}
	}
	return append(models, types.Model{ID: configured, Name: configured, ProviderID: providerID})
}
