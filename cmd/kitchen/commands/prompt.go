package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kitchenai/kitchen/internal/config"
	"github.com/kitchenai/kitchen/internal/event"
	"github.com/kitchenai/kitchen/internal/generation"
	"github.com/kitchenai/kitchen/internal/prompt"
	"github.com/kitchenai/kitchen/internal/provider"
)

var (
	promptInput  string
	promptTokens []string
	promptCount  int
)

var promptCmd = &cobra.Command{
	Use:   "prompt <category>",
	Short: "Render the prompt of a generation category",
	Long: `Render the system and user prompt a generation category would send,
including template overrides from the prompts directory.

Categories: PLACEHOLDER, SUGGEST_TOKENS, INSTANT_RECIPE,
RECIPE_IDEAS_METADATA, FULL_RECIPE.`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if !slices.Contains(event.Categories, event.Category(strings.ToUpper(args[0]))) {
			return fmt.Errorf("unknown category %q", args[0])
		}
		return nil
	},
	RunE: runPrompt,
}

func init() {
	promptCmd.Flags().StringVar(&promptInput, "input", "something warm for a rainy day", "Prompt text")
	promptCmd.Flags().StringSliceVar(&promptTokens, "token", nil, "Ingredient tokens")
	promptCmd.Flags().IntVar(&promptCount, "count", 6, "Number of recipe ideas")
}

func runPrompt(cmd *cobra.Command, args []string) error {
	cat := event.Category(strings.ToUpper(args[0]))

	workDir, err := os.Getwd()
	if err != nil {
		return err
	}
	appConfig, err := config.Load(workDir)
	if err != nil {
		return err
	}

	library := prompt.NewLibrary()
	if _, err := library.LoadDir(config.PromptsDir(appConfig)); err != nil {
		return err
	}

	gen := generation.NewGenerator(provider.NewRegistry(appConfig), library, categoryModels(appConfig))
	creq, modelRef, err := gen.Render(generation.Request{
		Category: cat,
		Prompt:   promptInput,
		Tokens:   promptTokens,
		Count:    promptCount,
	})
	if err != nil {
		return err
	}

	if modelRef == "" {
		modelRef = appConfig.Model
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"model":       modelRef,
		"system":      creq.System,
		"user":        creq.User,
		"maxTokens":   creq.MaxTokens,
		"temperature": creq.Temperature,
	})
}
