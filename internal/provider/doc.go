// Package provider wraps LLM chat models behind a small streaming interface
// using the Eino framework.
//
// # Core Components
//
//   - Provider: a configured chat model that streams completions
//   - Registry: providers keyed by id, resolved from "provider/model" strings
//   - CompletionRequest: system and user prompts plus sampling options
//
// # Supported Providers
//
// ## Anthropic (Claude)
//
//	provider, err := NewAnthropicProvider(ctx, &AnthropicConfig{
//		APIKey:    "sk-...",
//		Model:     "claude-haiku-4-5",
//		MaxTokens: 4096,
//	})
//
// ## OpenAI (GPT) and compatible endpoints
//
// Any OpenAI-compatible endpoint (Ollama, vLLM, Qwen) works by setting BaseURL
// and an ID other than "openai".
//
//	provider, err := NewOpenAIProvider(ctx, &OpenAIConfig{
//		ID:      "ollama",
//		BaseURL: "http://localhost:11434/v1",
//		APIKey:  "ollama",
//		Model:   "llama3.1",
//	})
//
// ## Volcengine ARK
//
//	provider, err := NewArkProvider(ctx, &ArkConfig{
//		APIKey: "...",
//		Model:  "ep-2024...",
//	})
//
// # Configuration
//
// InitializeProviders builds a Registry from the "provider" section of the
// configuration. Providers without an API key are skipped, so a registry may be
// empty; generation then fails per task rather than at startup.
//
// # Streaming
//
// Provider.Stream returns an Eino StreamReader of message chunks. Each chunk
// carries the newly generated text in Content; callers concatenate them.
package provider
