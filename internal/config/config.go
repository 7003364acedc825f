package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"

	"github.com/kitchenai/kitchen/pkg/types"
)

var (
	envPattern  = regexp.MustCompile(`\{env:([^}]+)\}`)
	filePattern = regexp.MustCompile(`\{file:([^}]+)\}`)
)

// Load loads configuration from multiple sources (priority order):
// 1. .env in the directory (variables already set win)
// 2. Global config (~/.config/kitchen/)
// 3. Project config (kitchen.json[c], .kitchen/kitchen.json[c])
// 4. KITCHEN_CONFIG file
// 5. KITCHEN_CONFIG_CONTENT inline JSON
// 6. Environment variables
//
// Missing files are skipped. A file that exists but does not parse is an error.
func Load(directory string) (*types.Config, error) {
	config := &types.Config{
		Provider:      make(map[string]types.ProviderConfig),
		CategoryModel: make(map[string]string),
	}

	if directory != "" {
		if err := godotenv.Load(filepath.Join(directory, ".env")); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	loaded := make(map[string]bool)
	loadOnce := func(path string, baseDir string) error {
		absPath, err := filepath.Abs(path)
		if err != nil || loaded[absPath] {
			return nil
		}
		err = loadConfigFile(path, config, baseDir)
		if os.IsNotExist(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("config %s: %w", path, err)
		}
		loaded[absPath] = true
		return nil
	}

	var candidates [][2]string
	globalPath := GetPaths().Config
	candidates = append(candidates,
		[2]string{filepath.Join(globalPath, "kitchen.json"), globalPath},
		[2]string{filepath.Join(globalPath, "kitchen.jsonc"), globalPath},
	)
	if directory != "" {
		projectConfigDir := filepath.Join(directory, ".kitchen")
		candidates = append(candidates,
			[2]string{filepath.Join(directory, "kitchen.json"), directory},
			[2]string{filepath.Join(directory, "kitchen.jsonc"), directory},
			[2]string{filepath.Join(projectConfigDir, "kitchen.json"), projectConfigDir},
			[2]string{filepath.Join(projectConfigDir, "kitchen.jsonc"), projectConfigDir},
		)
	}
	if configPath := os.Getenv("KITCHEN_CONFIG"); configPath != "" {
		candidates = append(candidates, [2]string{configPath, filepath.Dir(configPath)})
	}
	for _, c := range candidates {
		if err := loadOnce(c[0], c[1]); err != nil {
			return nil, err
		}
	}

	if configContent := os.Getenv("KITCHEN_CONFIG_CONTENT"); configContent != "" {
		data := interpolate(jsonc.ToJSON([]byte(configContent)), directory)
		var inlineConfig types.Config
		if err := json.Unmarshal(data, &inlineConfig); err != nil {
			return nil, fmt.Errorf("KITCHEN_CONFIG_CONTENT: %w", err)
		}
		mergeConfig(config, &inlineConfig)
	}

	applyEnvOverrides(config)
	normalizeProviderConfig(config)

	return config, nil
}

// loadConfigFile loads a single config file with interpolation support.
func loadConfigFile(path string, config *types.Config, baseDir string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	data = jsonc.ToJSON(data)
	data = interpolate(data, baseDir)

	var fileConfig types.Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return err
	}

	mergeConfig(config, &fileConfig)
	return nil
}

// interpolate processes {env:VAR} and {file:path} placeholders.
func interpolate(data []byte, baseDir string) []byte {
	str := envPattern.ReplaceAllStringFunc(string(data), func(match string) string {
		return jsonEscape(os.Getenv(envPattern.FindStringSubmatch(match)[1]))
	})

	str = filePattern.ReplaceAllStringFunc(str, func(match string) string {
		filePath := filePattern.FindStringSubmatch(match)[1]
		if strings.HasPrefix(filePath, "~/") {
			filePath = filepath.Join(os.Getenv("HOME"), filePath[2:])
		} else if !filepath.IsAbs(filePath) {
			filePath = filepath.Join(baseDir, filePath)
		}

		content, err := os.ReadFile(filePath)
		if err != nil {
			return match
		}
		return jsonEscape(strings.TrimRight(string(content), "\r\n"))
	})

	return []byte(str)
}

// jsonEscape escapes s for use inside a JSON string literal.
func jsonEscape(s string) string {
	b, _ := json.Marshal(s)
	return string(b[1 : len(b)-1])
}

// normalizeProviderConfig merges Options fields into direct fields.
func normalizeProviderConfig(config *types.Config) {
	for name, provider := range config.Provider {
		if provider.Options != nil {
			if provider.Options.APIKey != "" {
				provider.APIKey = provider.Options.APIKey
			}
			if provider.Options.BaseURL != "" {
				provider.BaseURL = provider.Options.BaseURL
			}
		}
		config.Provider[name] = provider
	}
}

// mergeConfig merges source config into target.
func mergeConfig(target, source *types.Config) {
	if source.Schema != "" {
		target.Schema = source.Schema
	}
	if source.Model != "" {
		target.Model = source.Model
	}
	if source.SmallModel != "" {
		target.SmallModel = source.SmallModel
	}
	if source.PromptsDir != "" {
		target.PromptsDir = source.PromptsDir
	}
	if source.StorageDir != "" {
		target.StorageDir = source.StorageDir
	}

	if source.Provider != nil {
		if target.Provider == nil {
			target.Provider = make(map[string]types.ProviderConfig)
		}
		for k, v := range source.Provider {
			target.Provider[k] = v
		}
	}

	if source.CategoryModel != nil {
		if target.CategoryModel == nil {
			target.CategoryModel = make(map[string]string)
		}
		for k, v := range source.CategoryModel {
			target.CategoryModel[k] = v
		}
	}

	if source.Server != nil {
		if target.Server == nil {
			target.Server = &types.ServerConfig{}
		}
		mergeServer(target.Server, source.Server)
	}

	if source.Session != nil {
		if target.Session == nil {
			target.Session = &types.SessionConfig{}
		}
		mergeSession(target.Session, source.Session)
	}
}

func mergeServer(target, source *types.ServerConfig) {
	if source.Port != 0 {
		target.Port = source.Port
	}
	if source.Hostname != "" {
		target.Hostname = source.Hostname
	}
	if source.DisableCORS {
		target.DisableCORS = true
	}
}

// mergeSession overrides the timings set in source. Zero means unset.
func mergeSession(target, source *types.SessionConfig) {
	set := func(dst *int, v int) {
		if v != 0 {
			*dst = v
		}
	}
	set(&target.TokensDebounceMs, source.TokensDebounceMs)
	set(&target.PlaceholdersDebounceMs, source.PlaceholdersDebounceMs)
	set(&target.PreferencesDebounceMs, source.PreferencesDebounceMs)
	set(&target.RegistrationTimeoutMs, source.RegistrationTimeoutMs)
	set(&target.BatchSize, source.BatchSize)
	set(&target.QueueSize, source.QueueSize)
}

// providerEnv maps provider ids to the variable holding their API key.
var providerEnv = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"ark":       "ARK_API_KEY",
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(config *types.Config) {
	for provider, envVar := range providerEnv {
		if apiKey := os.Getenv(envVar); apiKey != "" {
			p := config.Provider[provider]
			if p.APIKey == "" {
				p.APIKey = apiKey
				config.Provider[provider] = p
			}
		}
	}

	if model := os.Getenv("ARK_MODEL_ID"); model != "" {
		p := config.Provider["ark"]
		if p.Model == "" {
			p.Model = model
			config.Provider["ark"] = p
		}
	}

	if model := os.Getenv("KITCHEN_MODEL"); model != "" {
		config.Model = model
	}
	if smallModel := os.Getenv("KITCHEN_SMALL_MODEL"); smallModel != "" {
		config.SmallModel = smallModel
	}
	if dir := os.Getenv("KITCHEN_STORAGE_DIR"); dir != "" {
		config.StorageDir = dir
	}
}

// Save saves the configuration to a file.
func Save(config *types.Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// StorageDir returns the configured storage directory or the default one.
func StorageDir(config *types.Config) string {
	if config.StorageDir != "" {
		return config.StorageDir
	}
	return GetPaths().StoragePath()
}

// PromptsDir returns the configured prompt override directory or the
// default one.
func PromptsDir(config *types.Config) string {
	if config.PromptsDir != "" {
		return config.PromptsDir
	}
	return GetPaths().PromptsPath()
}
