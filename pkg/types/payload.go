package types

import (
	"errors"
	"fmt"
)

// PlaceholdersPayload is produced by the PLACEHOLDER generator.
type PlaceholdersPayload struct {
	// Example prompts shown in the empty input.
	Placeholders []string `json:"placeholders"`
}

// Validate checks the complete payload.
func (p *PlaceholdersPayload) Validate() error {
	if len(p.Placeholders) == 0 {
		return errors.New("placeholders: empty")
	}
	return nil
}

// TokensPayload is produced by the SUGGEST_TOKENS generator.
type TokensPayload struct {
	// Short ingredient or style tokens that refine the prompt.
	Tokens []string `json:"tokens"`
}

// Validate checks the complete payload.
func (p *TokensPayload) Validate() error {
	if len(p.Tokens) == 0 {
		return errors.New("tokens: empty")
	}
	for i, t := range p.Tokens {
		if t == "" {
			return fmt.Errorf("tokens[%d]: empty", i)
		}
	}
	return nil
}

// RecipeIdea is the metadata of one suggested recipe.
type RecipeIdea struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	MatchPercent int    `json:"matchPercent"`
}

// RecipeIdeasPayload is produced by the RECIPE_IDEAS_METADATA generator.
type RecipeIdeasPayload struct {
	Recipes []RecipeIdea `json:"recipes"`
}

// Validate checks the complete payload.
func (p *RecipeIdeasPayload) Validate() error {
	if len(p.Recipes) == 0 {
		return errors.New("recipes: empty")
	}
	for i, r := range p.Recipes {
		if r.Name == "" {
			return fmt.Errorf("recipes[%d].name: required", i)
		}
		if r.Description == "" {
			return fmt.Errorf("recipes[%d].description: required", i)
		}
		if r.MatchPercent < 0 || r.MatchPercent > 100 {
			return fmt.Errorf("recipes[%d].matchPercent: %d out of range", i, r.MatchPercent)
		}
	}
	return nil
}

// RecipePayload is a full recipe, produced by INSTANT_RECIPE and FULL_RECIPE.
type RecipePayload struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	MatchPercent int      `json:"matchPercent,omitempty"`
	Yield        string   `json:"yield"`
	ActiveTime   string   `json:"activeTime,omitempty"`
	CookTime     string   `json:"cookTime,omitempty"`
	TotalTime    string   `json:"totalTime,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	Ingredients  []string `json:"ingredients"`
	Instructions []string `json:"instructions"`
}

// Validate checks the complete payload.
func (p *RecipePayload) Validate() error {
	switch {
	case p.Name == "":
		return errors.New("name: required")
	case len(p.Ingredients) == 0:
		return errors.New("ingredients: required")
	case len(p.Instructions) == 0:
		return errors.New("instructions: required")
	}
	return nil
}
