// Package persistence implements the one-shot operations a session invokes to
// store recipes, lists, preferences and hibernated snapshots.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/stoewer/go-strcase"

	"github.com/kitchenai/kitchen/pkg/types"
)

var (
	// ErrDuplicateName is returned by CreateList when the user already owns a
	// list with the same slug.
	ErrDuplicateName = errors.New("duplicate list name")

	// ErrNotFound is returned when an addressed record does not exist.
	ErrNotFound = errors.New("not found")
)

// Error codes reported on CREATE_LIST_ERROR.
const (
	CodeDuplicateName = "DUPLICATE_NAME"
	CodeUnknown       = "UNKNOWN"
)

// Classify maps a persistence error to its structured code.
func Classify(err error) string {
	if errors.Is(err, ErrDuplicateName) {
		return CodeDuplicateName
	}
	return CodeUnknown
}

// Recipes persists generated recipes.
type Recipes interface {
	CreateRecipe(ctx context.Context, recipe types.Recipe, prompt string, tokens []string, createdBy string) (string, error)
}

// Lists persists user recipe lists.
type Lists interface {
	CreateList(ctx context.Context, slug, name, userID string, initialRecipeIDs []string) (*types.List, error)
	SaveRecipeToList(ctx context.Context, userID, recipeID, listSlug string) error
	ListLists(ctx context.Context, userID string) ([]types.List, error)
}

// Preferences persists user preferences.
type Preferences interface {
	GetUserPreferences(ctx context.Context, userID string) (map[string]json.RawMessage, error)
	UpsertUserPreferences(ctx context.Context, userID string, prefs map[string]json.RawMessage) error
}

// Snapshots persists hibernated sessions.
type Snapshots interface {
	SaveSnapshot(ctx context.Context, sessionID string, data json.RawMessage) error
	LoadSnapshot(ctx context.Context, sessionID string) (json.RawMessage, error)
	DeleteSnapshot(ctx context.Context, sessionID string) error
	ListSnapshots(ctx context.Context) ([]string, error)
}

// Actors is everything a session actor needs.
type Actors interface {
	Recipes
	Lists
	Preferences
	Snapshots
}

var nonSlug = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// Slugify turns a display name into a URL-safe kebab-case slug.
func Slugify(name string) string {
	cleaned := strings.TrimSpace(nonSlug.ReplaceAllString(name, " "))
	if cleaned == "" {
		return ""
	}
	return strcase.KebabCase(cleaned)
}
