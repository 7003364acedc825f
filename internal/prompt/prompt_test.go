package prompt

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitchenai/kitchen/internal/event"
	"github.com/kitchenai/kitchen/pkg/types"
)

func TestNewLibrary_Defaults(t *testing.T) {
	lib := NewLibrary()
	assert.Equal(t, event.Categories, lib.Categories())

	for _, c := range event.Categories {
		tmpl, err := lib.Get(c)
		require.NoError(t, err, c)
		assert.Equal(t, c, tmpl.Category)
		assert.NotEmpty(t, tmpl.User)
		require.NotNil(t, tmpl.Temperature)
	}
}

func TestLibrary_GetMissing(t *testing.T) {
	lib := &Library{templates: map[event.Category]*Template{}}
	_, err := lib.Get(event.CategoryFullRecipe)
	assert.True(t, errors.Is(err, ErrNoTemplate))
}

func TestTemplate_Render(t *testing.T) {
	tmpl := &Template{
		Category: event.CategorySuggestTokens,
		System:   "Refine {{prompt}}.\n",
		User:     "Request: {{prompt}}\nChosen: {{tokens}}\n{{missing}}",
		Model:    "anthropic/claude-haiku",
	}

	r := tmpl.Render(map[string]string{"prompt": "soup", "tokens": "leek, potato"}, `{"type":"object"}`)
	assert.Equal(t, "Refine soup.\n\nRespond with a single JSON object matching this JSON schema and nothing else:\n{\"type\":\"object\"}", r.System)
	assert.Equal(t, "Request: soup\nChosen: leek, potato\n{{missing}}", r.User)
	assert.Equal(t, "anthropic/claude-haiku", r.Model)

	r = tmpl.Render(nil, "")
	assert.Equal(t, "Refine {{prompt}}.\n", r.System)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte("category: DESSERT\nuser: hi\n"))
	assert.ErrorContains(t, err, "unknown category")

	_, err = Parse([]byte("category: FULL_RECIPE\nuser: \"  \"\n"))
	assert.ErrorContains(t, err, "user prompt is empty")

	_, err = Parse([]byte("category: [\n"))
	assert.Error(t, err)
}

func TestLibrary_LoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "full.yml"),
		[]byte("category: FULL_RECIPE\nsystem: custom\nuser: expand {{recipe_name}}\nmax_tokens: 99\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	lib := NewLibrary()
	n, err := lib.LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	tmpl, err := lib.Get(event.CategoryFullRecipe)
	require.NoError(t, err)
	assert.Equal(t, "custom", tmpl.System)
	assert.Equal(t, 99, tmpl.MaxTokens)

	// untouched categories keep their defaults
	_, err = lib.Get(event.CategoryPlaceholder)
	require.NoError(t, err)
}

func TestLibrary_LoadDirMissing(t *testing.T) {
	n, err := NewLibrary().LoadDir(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLibrary_LoadDirInvalidKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"),
		[]byte("category: PLACEHOLDER\nuser: new\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"),
		[]byte("category: NOPE\nuser: x\n"), 0644))

	lib := NewLibrary()
	before, err := lib.Get(event.CategoryPlaceholder)
	require.NoError(t, err)

	_, err = lib.LoadDir(dir)
	require.Error(t, err)

	after, err := lib.Get(event.CategoryPlaceholder)
	require.NoError(t, err)
	assert.Same(t, before, after)
}

func TestSchema(t *testing.T) {
	out, err := Schema(&types.RecipeIdeasPayload{})
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &schema))
	assert.Equal(t, "object", schema["type"])

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	recipes, ok := props["recipes"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "array", recipes["type"])

	items := recipes["items"].(map[string]any)
	itemProps := items["properties"].(map[string]any)
	assert.Contains(t, itemProps, "matchPercent")
	assert.Contains(t, itemProps, "name")

	again, err := Schema(&types.RecipeIdeasPayload{})
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestWatcher_Reload(t *testing.T) {
	dir := t.TempDir()
	lib := NewLibrary()

	w, err := NewWatcher(lib, dir)
	require.NoError(t, err)

	reloaded := make(chan error, 10)
	w.OnReload = func(n int, err error) { reloaded <- err }
	w.Start()
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "tokens.yaml"),
		[]byte("category: SUGGEST_TOKENS\nuser: watched {{prompt}}\n"), 0644))

	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for reload")
	}

	require.Eventually(t, func() bool {
		tmpl, err := lib.Get(event.CategorySuggestTokens)
		return err == nil && tmpl.User == "watched {{prompt}}"
	}, 5*time.Second, 10*time.Millisecond)
}
