package types

import "time"

// Config represents the kitchen configuration.
type Config struct {
	// Schema reference (for editor support)
	Schema string `json:"$schema,omitempty"`

	// Model selection, "provider/model" (e.g. "anthropic/claude-sonnet-4-20250514")
	Model      string `json:"model,omitempty"`
	SmallModel string `json:"small_model,omitempty"` // For token and placeholder suggestions

	// Provider configs
	Provider map[string]ProviderConfig `json:"provider,omitempty"`

	// Per-category model overrides, keyed by generation category name
	CategoryModel map[string]string `json:"categoryModel,omitempty"`

	// Directory with prompt template overrides (*.yaml)
	PromptsDir string `json:"promptsDir,omitempty"`

	// Data directory for persisted recipes, lists, preferences and snapshots
	StorageDir string `json:"storageDir,omitempty"`

	Server  *ServerConfig  `json:"server,omitempty"`
	Session *SessionConfig `json:"session,omitempty"`
}

// ProviderConfig holds configuration for a specific provider.
type ProviderConfig struct {
	APIKey  string `json:"apiKey,omitempty"`
	BaseURL string `json:"baseURL,omitempty"`

	// Model/Endpoint ID (ARK takes an endpoint id here)
	Model string `json:"model,omitempty"`

	// Nested options
	Options *ProviderOptions `json:"options,omitempty"`

	// Disable provider
	Disable bool `json:"disable,omitempty"`
}

// ProviderOptions holds nested provider options.
type ProviderOptions struct {
	APIKey  string `json:"apiKey,omitempty"`
	BaseURL string `json:"baseURL,omitempty"`
	Timeout *int   `json:"timeout,omitempty"` // ms, nil = default, 0 = disabled
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port        int    `json:"port,omitempty"`
	Hostname    string `json:"hostname,omitempty"`
	DisableCORS bool   `json:"disableCors,omitempty"`
}

// SessionConfig holds the session machine timings. All durations are milliseconds.
type SessionConfig struct {
	TokensDebounceMs       int `json:"tokensDebounceMs,omitempty"`
	PlaceholdersDebounceMs int `json:"placeholdersDebounceMs,omitempty"`
	PreferencesDebounceMs  int `json:"preferencesDebounceMs,omitempty"`
	RegistrationTimeoutMs  int `json:"registrationTimeoutMs,omitempty"`
	BatchSize              int `json:"batchSize,omitempty"`
	QueueSize              int `json:"queueSize,omitempty"`
}

// Model represents an LLM model available from a provider.
type Model struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	ProviderID      string  `json:"providerID"`
	ContextLength   int     `json:"contextLength"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	InputPrice      float64 `json:"inputPrice,omitempty"`  // per 1M tokens
	OutputPrice     float64 `json:"outputPrice,omitempty"` // per 1M tokens
}

// Millis converts a millisecond setting to a duration, falling back to def when unset.
func Millis(ms int, def time.Duration) time.Duration {
	if ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}
