package machine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/kitchenai/kitchen/pkg/types"
)

// Context is the session document. It is only changed by Transition, which
// always works on a clone.
type Context struct {
	SessionID     string `json:"sessionId"`
	UserID        string `json:"userId,omitempty"`
	PageSessionID string `json:"pageSessionId"`
	// AccessTokens are opaque identity credentials and are never modified.
	AccessTokens map[string]string `json:"accessTokens,omitempty"`

	Prompt          string   `json:"prompt"`
	Tokens          []string `json:"tokens"`
	Placeholders    []string `json:"placeholders"`
	SuggestedTokens []string `json:"suggestedTokens"`

	CurrentResultID string                   `json:"currentResultId,omitempty"`
	Results         map[string]*types.Result `json:"results"`
	Recipes         map[string]*types.Recipe `json:"recipes"`
	FullRecipeQueue []string                 `json:"fullRecipeQueue"`

	ListsByID                map[string]*types.List     `json:"listsById"`
	ListRecipes              map[string]map[string]bool `json:"listRecipes"`
	CurrentListSlug          string                     `json:"currentListSlug,omitempty"`
	ChoosingListsForRecipeID string                     `json:"choosingListsForRecipeId,omitempty"`

	Preferences         map[string]json.RawMessage `json:"preferences"`
	ModifiedPreferences map[string]bool            `json:"modifiedPreferences"`
	// SavingPreferences holds the values of an upsert in flight.
	SavingPreferences map[string]json.RawMessage `json:"savingPreferences,omitempty"`

	UndoOperations []InputChange `json:"undoOperations"`
	RedoOperations []InputChange `json:"redoOperations"`
	History        []string      `json:"history"`
}

// NewContext returns an empty context for a session.
func NewContext(sessionID, pageSessionID string) *Context {
	c := &Context{SessionID: sessionID, PageSessionID: pageSessionID}
	c.ensure()
	return c
}

// ensure replaces nil collections so snapshots always have the same shape.
func (c *Context) ensure() {
	if c.Tokens == nil {
		c.Tokens = []string{}
	}
	if c.Placeholders == nil {
		c.Placeholders = []string{}
	}
	if c.SuggestedTokens == nil {
		c.SuggestedTokens = []string{}
	}
	if c.Results == nil {
		c.Results = map[string]*types.Result{}
	}
	if c.Recipes == nil {
		c.Recipes = map[string]*types.Recipe{}
	}
	if c.FullRecipeQueue == nil {
		c.FullRecipeQueue = []string{}
	}
	if c.ListsByID == nil {
		c.ListsByID = map[string]*types.List{}
	}
	if c.ListRecipes == nil {
		c.ListRecipes = map[string]map[string]bool{}
	}
	if c.Preferences == nil {
		c.Preferences = map[string]json.RawMessage{}
	}
	if c.ModifiedPreferences == nil {
		c.ModifiedPreferences = map[string]bool{}
	}
	if c.UndoOperations == nil {
		c.UndoOperations = []InputChange{}
	}
	if c.RedoOperations == nil {
		c.RedoOperations = []InputChange{}
	}
	if c.History == nil {
		c.History = []string{}
	}
}

// Clone returns a deep copy of c.
func (c *Context) Clone() *Context {
	out := *c
	out.AccessTokens = cloneMap(c.AccessTokens)
	out.Tokens = cloneSlice(c.Tokens)
	out.Placeholders = cloneSlice(c.Placeholders)
	out.SuggestedTokens = cloneSlice(c.SuggestedTokens)
	out.FullRecipeQueue = cloneSlice(c.FullRecipeQueue)
	out.History = cloneSlice(c.History)

	out.Results = make(map[string]*types.Result, len(c.Results))
	for id, r := range c.Results {
		out.Results[id] = &types.Result{
			SuggestedRecipeIDs: cloneSlice(r.SuggestedRecipeIDs),
			SuggestedTokens:    cloneSlice(r.SuggestedTokens),
		}
	}
	out.Recipes = make(map[string]*types.Recipe, len(c.Recipes))
	for id, r := range c.Recipes {
		out.Recipes[id] = cloneRecipe(r)
	}

	out.ListsByID = make(map[string]*types.List, len(c.ListsByID))
	for id, l := range c.ListsByID {
		copied := *l
		copied.RecipeIDs = cloneSlice(l.RecipeIDs)
		out.ListsByID[id] = &copied
	}
	out.ListRecipes = make(map[string]map[string]bool, len(c.ListRecipes))
	for id, set := range c.ListRecipes {
		out.ListRecipes[id] = cloneMap(set)
	}

	out.Preferences = cloneMap(c.Preferences)
	out.ModifiedPreferences = cloneMap(c.ModifiedPreferences)
	out.SavingPreferences = cloneMap(c.SavingPreferences)

	out.UndoOperations = make([]InputChange, len(c.UndoOperations))
	for i, op := range c.UndoOperations {
		out.UndoOperations[i] = op.clone()
	}
	out.RedoOperations = make([]InputChange, len(c.RedoOperations))
	for i, op := range c.RedoOperations {
		out.RedoOperations[i] = op.clone()
	}

	out.ensure()
	return &out
}

func cloneRecipe(r *types.Recipe) *types.Recipe {
	copied := *r
	copied.Tags = cloneSlice(r.Tags)
	copied.Ingredients = cloneSlice(r.Ingredients)
	copied.Instructions = cloneSlice(r.Instructions)
	return &copied
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	return append(make([]T, 0, len(s)), s...)
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return nil
	}
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// HasInput reports whether there is anything to generate from.
func (c *Context) HasInput() bool {
	return strings.TrimSpace(c.Prompt) != "" || len(c.Tokens) > 0
}

// ResultID derives the result id of a prompt and token combination.
func ResultID(prompt string, tokens []string) string {
	h := sha256.New()
	h.Write([]byte(strings.TrimSpace(prompt)))
	for _, t := range tokens {
		h.Write([]byte{0})
		h.Write([]byte(t))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// listBySlug finds one of the user's lists.
func (c *Context) listBySlug(slug string) *types.List {
	for _, l := range c.ListsByID {
		if l.Slug == slug {
			return l
		}
	}
	return nil
}

// addList stores a list and its recipe set. Count follows the set.
func (c *Context) addList(l types.List) {
	set := make(map[string]bool, len(l.RecipeIDs))
	for _, rid := range l.RecipeIDs {
		if rid != "" {
			set[rid] = true
		}
	}
	l.RecipeIDs = nil
	l.Count = len(set)
	c.ListsByID[l.ID] = &l
	c.ListRecipes[l.ID] = set
}

// setListRecipe adds or removes a recipe from a list and keeps Count equal to
// the size of the set.
func (c *Context) setListRecipe(listID, recipeID string, present bool) {
	set := c.ListRecipes[listID]
	if set == nil {
		set = map[string]bool{}
		c.ListRecipes[listID] = set
	}
	if present {
		set[recipeID] = true
	} else {
		delete(set, recipeID)
	}
	if l, ok := c.ListsByID[listID]; ok {
		l.Count = len(set)
	}
}

// recipeNames returns the names of the recipes already known for a result.
func (c *Context) recipeNames(ids []string) []string {
	var names []string
	for _, id := range ids {
		if r, ok := c.Recipes[id]; ok && r.Name != "" {
			names = append(names, r.Name)
		}
	}
	return names
}
