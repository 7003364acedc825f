package machine

import (
	"encoding/json"
	"time"

	"github.com/kitchenai/kitchen/internal/generation"
	"github.com/kitchenai/kitchen/pkg/types"
)

// Effect is work a transition asks the session actor to perform. Effects
// complete by posting events back to the machine.
type Effect interface {
	effect()
}

// StartGeneration launches a streaming generation task.
type StartGeneration struct {
	Request generation.Request
}

// CancelTask cancels a generation task. Events it still emits are dropped.
type CancelTask struct {
	TaskID string
}

// Timer names.
const (
	TimerPlaceholders = "placeholders"
	TimerTokens       = "tokens"
	TimerPreferences  = "preferences"
	TimerRegistration = "registration"
)

// StartTimer schedules a TIMER event carrying Timer and ID after a delay.
// A newer timer for the same name supersedes older ones.
type StartTimer struct {
	Timer    string
	ID       string
	After    time.Duration
	Deadline time.Time
}

// PersistOp names a persistence actor call.
type PersistOp string

const (
	PersistCreateRecipe          PersistOp = "createRecipe"
	PersistCreateList            PersistOp = "createList"
	PersistSaveRecipeToList      PersistOp = "saveRecipeToList"
	PersistListLists             PersistOp = "listLists"
	PersistGetUserPreferences    PersistOp = "getUserPreferences"
	PersistUpsertUserPreferences PersistOp = "upsertUserPreferences"
)

// Persist invokes a persistence actor. Its completion or failure arrives as
// the matching *_COMPLETE / *_ERROR event.
type Persist struct {
	ID     string
	Op     PersistOp
	UserID string

	// createRecipe
	Recipe *types.Recipe
	Prompt string
	Tokens []string

	// createList, saveRecipeToList
	ListName  string
	ListSlug  string
	RecipeIDs []string
	RecipeID  string

	// upsertUserPreferences
	Preferences map[string]json.RawMessage
}

func (StartGeneration) effect() {}
func (CancelTask) effect()      {}
func (StartTimer) effect()      {}
func (Persist) effect()         {}
