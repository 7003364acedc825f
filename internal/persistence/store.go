package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/kitchenai/kitchen/internal/logging"
	"github.com/kitchenai/kitchen/internal/storage"
	"github.com/kitchenai/kitchen/pkg/types"
)

// Store implements Actors on top of the JSON document storage.
//
// Layout:
//
//	recipes/<slug>.json
//	lists/<userID>/<slug>.json
//	preferences/<userID>.json
//	snapshots/<sessionID>.json
type Store struct {
	storage *storage.Storage
	now     func() time.Time
}

var _ Actors = (*Store)(nil)

// NewStore creates a Store.
func NewStore(s *storage.Storage) *Store {
	return &Store{storage: s, now: time.Now}
}

// CreateRecipe stores a generated recipe under a fresh slug and returns it.
func (s *Store) CreateRecipe(ctx context.Context, recipe types.Recipe, prompt string, tokens []string, createdBy string) (string, error) {
	base := Slugify(recipe.Name)
	if base == "" {
		base = "recipe"
	}
	slug := base + "-" + shortID()

	recipe.Slug = slug
	recipe.CreatedBy = createdBy
	recipe.CreatedAt = s.now().UnixMilli()

	saved := types.SavedRecipe{
		Recipe:    recipe,
		Prompt:    prompt,
		Tokens:    append([]string{}, tokens...),
		CreatedBy: createdBy,
	}
	if err := s.storage.Create(ctx, []string{"recipes", slug}, saved); err != nil {
		return "", fmt.Errorf("create recipe %s: %w", slug, err)
	}

	logging.Debug().Str("slug", slug).Str("recipeID", recipe.ID).Msg("Recipe created")
	return slug, nil
}

// CreateList creates a list owned by userID. The slug must be unique per user.
func (s *Store) CreateList(ctx context.Context, slug, name, userID string, initialRecipeIDs []string) (*types.List, error) {
	if slug == "" {
		return nil, errors.New("create list: empty slug")
	}
	list := types.List{
		ID:        ulid.Make().String(),
		Name:      name,
		Slug:      slug,
		CreatedBy: userID,
		CreatedAt: s.now().UnixMilli(),
		RecipeIDs: dedupe(initialRecipeIDs),
	}
	list.Count = len(list.RecipeIDs)

	err := s.storage.Create(ctx, []string{"lists", userID, slug}, list)
	if errors.Is(err, storage.ErrExists) {
		return nil, fmt.Errorf("create list %q: %w", slug, ErrDuplicateName)
	}
	if err != nil {
		return nil, fmt.Errorf("create list %q: %w", slug, err)
	}
	return &list, nil
}

// ListLists returns every list owned by userID, none when the user has no
// lists yet.
func (s *Store) ListLists(ctx context.Context, userID string) ([]types.List, error) {
	var lists []types.List
	err := s.storage.Scan(ctx, []string{"lists", userID}, func(key string, data json.RawMessage) error {
		var list types.List
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("decode list %s: %w", key, err)
		}
		lists = append(lists, list)
		return nil
	})
	return lists, err
}

// SaveRecipeToList adds a recipe to an existing list. Saving a recipe twice is
// a no-op.
func (s *Store) SaveRecipeToList(ctx context.Context, userID, recipeID, listSlug string) error {
	err := s.storage.Update(ctx, []string{"lists", userID, listSlug}, func(current json.RawMessage) (any, error) {
		if current == nil {
			return nil, ErrNotFound
		}
		var list types.List
		if err := json.Unmarshal(current, &list); err != nil {
			return nil, err
		}
		list.RecipeIDs = dedupe(append(list.RecipeIDs, recipeID))
		list.Count = len(list.RecipeIDs)
		return list, nil
	})
	if err != nil {
		return fmt.Errorf("save %s to list %q: %w", recipeID, listSlug, err)
	}
	return nil
}

// GetUserPreferences returns the stored preferences, empty when none exist.
func (s *Store) GetUserPreferences(ctx context.Context, userID string) (map[string]json.RawMessage, error) {
	prefs := map[string]json.RawMessage{}
	err := s.storage.Get(ctx, []string{"preferences", userID}, &prefs)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("get preferences: %w", err)
	}
	return prefs, nil
}

// UpsertUserPreferences merges prefs into the stored preferences.
func (s *Store) UpsertUserPreferences(ctx context.Context, userID string, prefs map[string]json.RawMessage) error {
	err := s.storage.Update(ctx, []string{"preferences", userID}, func(current json.RawMessage) (any, error) {
		merged := map[string]json.RawMessage{}
		if current != nil {
			if err := json.Unmarshal(current, &merged); err != nil {
				return nil, err
			}
		}
		for k, v := range prefs {
			merged[k] = v
		}
		return merged, nil
	})
	if err != nil {
		return fmt.Errorf("upsert preferences: %w", err)
	}
	return nil
}

// SaveSnapshot stores a hibernated session.
func (s *Store) SaveSnapshot(ctx context.Context, sessionID string, data json.RawMessage) error {
	if err := s.storage.Put(ctx, []string{"snapshots", sessionID}, data); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot loads a hibernated session. Returns ErrNotFound if none exists.
func (s *Store) LoadSnapshot(ctx context.Context, sessionID string) (json.RawMessage, error) {
	var data json.RawMessage
	if err := s.storage.Get(ctx, []string{"snapshots", sessionID}, &data); err != nil {
		return nil, wrapNotFound(err)
	}
	return data, nil
}

// DeleteSnapshot removes a hibernated session.
func (s *Store) DeleteSnapshot(ctx context.Context, sessionID string) error {
	return s.storage.Delete(ctx, []string{"snapshots", sessionID})
}

// ListSnapshots returns the ids of all hibernated sessions.
func (s *Store) ListSnapshots(ctx context.Context) ([]string, error) {
	return s.storage.List(ctx, []string{"snapshots"})
}

func wrapNotFound(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func shortID() string {
	id := ulid.Make().String()
	return strings.ToLower(id[len(id)-6:])
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
