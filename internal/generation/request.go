package generation

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kitchenai/kitchen/internal/event"
	"github.com/kitchenai/kitchen/pkg/types"
)

// Request is a copy of the session data one generation task needs.
type Request struct {
	Category event.Category `json:"category"`
	TaskID   string         `json:"taskId"`

	Prompt string   `json:"prompt,omitempty"`
	Tokens []string `json:"tokens,omitempty"`
	// Count is the number of items to generate, where the category yields a list.
	Count int `json:"count,omitempty"`
	// Recipe is the idea a FULL_RECIPE task expands.
	Recipe *types.Recipe `json:"recipe,omitempty"`
	// Exclude lists recipe names already suggested for this input.
	Exclude     []string                   `json:"exclude,omitempty"`
	Preferences map[string]json.RawMessage `json:"preferences,omitempty"`
}

// Vars returns the prompt template variables of the request.
func (r Request) Vars() map[string]string {
	vars := map[string]string{
		"prompt":      r.Prompt,
		"tokens":      strings.Join(r.Tokens, ", "),
		"count":       strconv.Itoa(r.Count),
		"exclude":     strings.Join(r.Exclude, "; "),
		"preferences": formatPreferences(r.Preferences),
	}
	if r.Recipe != nil {
		vars["recipe_name"] = r.Recipe.Name
		vars["recipe_description"] = r.Recipe.Description
	}
	return vars
}

func formatPreferences(prefs map[string]json.RawMessage) string {
	if len(prefs) == 0 {
		return ""
	}
	keys := make([]string, 0, len(prefs))
	for k := range prefs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString("Cook preferences:")
	for _, k := range keys {
		fmt.Fprintf(&sb, "\n- %s: %s", k, string(prefs[k]))
	}
	return sb.String()
}

// PayloadFor returns a zero payload of the category's result type.
func PayloadFor(cat event.Category) (any, error) {
	switch cat {
	case event.CategoryPlaceholder:
		return &types.PlaceholdersPayload{}, nil
	case event.CategorySuggestTokens:
		return &types.TokensPayload{}, nil
	case event.CategoryInstantRecipe, event.CategoryFullRecipe:
		return &types.RecipePayload{}, nil
	case event.CategoryRecipeIdeas:
		return &types.RecipeIdeasPayload{}, nil
	}
	return nil, fmt.Errorf("unknown generation category %q", cat)
}
