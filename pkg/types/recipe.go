// Package types provides the core data types shared by the kitchen packages.
package types

// Recipe is a cached recipe record. It starts as an empty skeleton slot and is
// filled in by generations; the completeness flags only ever move forward.
type Recipe struct {
	ID           string   `json:"id"`
	Slug         string   `json:"slug,omitempty"`
	Name         string   `json:"name,omitempty"`
	Description  string   `json:"description,omitempty"`
	MatchPercent int      `json:"matchPercent,omitempty"`
	Yield        string   `json:"yield,omitempty"`
	ActiveTime   string   `json:"activeTime,omitempty"`
	CookTime     string   `json:"cookTime,omitempty"`
	TotalTime    string   `json:"totalTime,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	Ingredients  []string `json:"ingredients,omitempty"`
	Instructions []string `json:"instructions,omitempty"`

	Started          bool `json:"started"`
	MetadataComplete bool `json:"metadataComplete"`
	FullStarted      bool `json:"fullStarted"`
	Complete         bool `json:"complete"`

	CreatedBy string `json:"createdBy,omitempty"`
	CreatedAt int64  `json:"createdAt,omitempty"`
}

// Result is the bucket of suggestions produced for one submitted input.
type Result struct {
	SuggestedRecipeIDs []string `json:"suggestedRecipeIds"`
	SuggestedTokens    []string `json:"suggestedTokens"`
}

// List is a user's named recipe collection.
type List struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	Count     int    `json:"count"`
	CreatedBy string `json:"createdBy,omitempty"`
	CreatedAt int64  `json:"createdAt,omitempty"`

	// RecipeIDs is only populated by the persistence layer.
	RecipeIDs []string `json:"recipeIds,omitempty"`
}

// SavedRecipe is the persisted form of a generated recipe.
type SavedRecipe struct {
	Recipe    Recipe   `json:"recipe"`
	Prompt    string   `json:"prompt"`
	Tokens    []string `json:"tokens"`
	CreatedBy string   `json:"createdBy,omitempty"`
}
