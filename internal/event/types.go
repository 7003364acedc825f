package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kitchenai/kitchen/pkg/types"
)

// ErrUnknownEvent is returned when decoding an event whose type is not part
// of the vocabulary.
var ErrUnknownEvent = errors.New("unknown event type")

// Type identifies an inbound event.
type Type string

// User and input events.
const (
	SetInput    Type = "SET_INPUT"
	Submit      Type = "SUBMIT"
	NewRecipe   Type = "NEW_RECIPE"
	AddToken    Type = "ADD_TOKEN"
	RemoveToken Type = "REMOVE_TOKEN"
	Clear       Type = "CLEAR"
	Undo        Type = "UNDO"
	Redo        Type = "REDO"
	LoadMore    Type = "LOAD_MORE"
	ViewRecipe  Type = "VIEW_RECIPE"
	Navigate    Type = "NAVIGATE"
)

// List events.
const (
	ChooseLists      Type = "CHOOSE_LISTS"
	CloseLists       Type = "CLOSE_LISTS"
	SaveToList       Type = "SAVE_TO_LIST"
	OpenCreateList   Type = "OPEN_CREATE_LIST"
	SubmitListName   Type = "SUBMIT_LIST_NAME"
	CancelCreateList Type = "CANCEL_CREATE_LIST"
)

// Profile and auth events.
const (
	UpdatePreference     Type = "UPDATE_PREFERENCE"
	Authenticate         Type = "AUTHENTICATE"
	Register             Type = "REGISTER"
	RegistrationComplete Type = "REGISTRATION_COMPLETE"
	RetryRegistration    Type = "RETRY_REGISTRATION"
	SignOut              Type = "SIGN_OUT"
)

// Lifecycle events. Timer is posted by the session actor only.
const (
	SocketOpen  Type = "SOCKET_OPEN"
	SocketClose Type = "SOCKET_CLOSE"
	SocketError Type = "SOCKET_ERROR"
	Timer       Type = "TIMER"
)

// Persistence result events.
const (
	CreateRecipeComplete Type = "CREATE_RECIPE_COMPLETE"
	CreateRecipeError    Type = "CREATE_RECIPE_ERROR"
	CreateListComplete   Type = "CREATE_LIST_COMPLETE"
	CreateListError      Type = "CREATE_LIST_ERROR"
	SaveToListComplete   Type = "SAVE_TO_LIST_COMPLETE"
	SaveToListError      Type = "SAVE_TO_LIST_ERROR"
	PreferencesLoaded    Type = "PREFERENCES_LOADED"
	PreferencesLoadError Type = "PREFERENCES_LOAD_ERROR"
	PreferencesSaved     Type = "PREFERENCES_SAVED"
	PreferencesSaveError Type = "PREFERENCES_SAVE_ERROR"
	ListsLoaded          Type = "LISTS_LOADED"
	ListsLoadError       Type = "LISTS_LOAD_ERROR"
)

var known = map[Type]bool{
	SetInput: true, Submit: true, NewRecipe: true, AddToken: true, RemoveToken: true,
	Clear: true, Undo: true, Redo: true, LoadMore: true, ViewRecipe: true, Navigate: true,
	ChooseLists: true, CloseLists: true, SaveToList: true, OpenCreateList: true,
	SubmitListName: true, CancelCreateList: true,
	UpdatePreference: true, Authenticate: true, Register: true, RegistrationComplete: true,
	RetryRegistration: true, SignOut: true,
	SocketOpen: true, SocketClose: true, SocketError: true, Timer: true,
	CreateRecipeComplete: true, CreateRecipeError: true, CreateListComplete: true,
	CreateListError: true, SaveToListComplete: true, SaveToListError: true,
	PreferencesLoaded: true, PreferencesLoadError: true, PreferencesSaved: true,
	PreferencesSaveError: true, ListsLoaded: true, ListsLoadError: true,
}

// Category names a generation task family.
type Category string

const (
	CategoryPlaceholder   Category = "PLACEHOLDER"
	CategorySuggestTokens Category = "SUGGEST_TOKENS"
	CategoryInstantRecipe Category = "INSTANT_RECIPE"
	CategoryRecipeIdeas   Category = "RECIPE_IDEAS_METADATA"
	CategoryFullRecipe    Category = "FULL_RECIPE"
)

// Categories lists every generation category.
var Categories = []Category{
	CategoryPlaceholder,
	CategorySuggestTokens,
	CategoryInstantRecipe,
	CategoryRecipeIdeas,
	CategoryFullRecipe,
}

// Phase is the lifecycle step of a generation task.
type Phase string

const (
	PhaseStart    Phase = "START"
	PhaseProgress Phase = "PROGRESS"
	PhaseComplete Phase = "COMPLETE"
	PhaseError    Phase = "ERROR"
)

// GenerationType builds the event type for a category and phase, e.g.
// FULL_RECIPE_PROGRESS.
func GenerationType(c Category, p Phase) Type {
	return Type(string(c) + "_" + string(p))
}

// SplitGeneration parses a generation event type into its category and phase.
// Categories contain underscores, so the phase is taken from the last segment.
func SplitGeneration(t Type) (Category, Phase, bool) {
	s := string(t)
	idx := strings.LastIndexByte(s, '_')
	if idx <= 0 {
		return "", "", false
	}
	phase := Phase(s[idx+1:])
	switch phase {
	case PhaseStart, PhaseProgress, PhaseComplete, PhaseError:
	default:
		return "", "", false
	}
	cat := Category(s[:idx])
	for _, c := range Categories {
		if c == cat {
			return cat, phase, true
		}
	}
	return "", "", false
}

// Known reports whether t belongs to the inbound vocabulary.
func Known(t Type) bool {
	if known[t] {
		return true
	}
	_, _, ok := SplitGeneration(t)
	return ok
}

// Caller identifies the actor that originated an event.
type Caller struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Event is the flat inbound envelope: {type, caller?, ...payload}.
// Only the fields relevant to Type are set.
type Event struct {
	Type   Type    `json:"type"`
	Caller *Caller `json:"caller,omitempty"`

	// ID correlates generation, timer and persistence events with the task
	// that produced them.
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
	Raw  string          `json:"raw,omitempty"`

	Prompt   string `json:"prompt,omitempty"`
	Token    string `json:"token,omitempty"`
	RecipeID string `json:"recipeId,omitempty"`
	ListSlug string `json:"listSlug,omitempty"`
	Name     string `json:"name,omitempty"`
	URL      string `json:"url,omitempty"`
	UserID   string `json:"userId,omitempty"`
	Slug     string `json:"slug,omitempty"`

	Key   string          `json:"key,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`

	Timer string `json:"timer,omitempty"`

	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`

	Preferences map[string]json.RawMessage `json:"preferences,omitempty"`
	List        *types.List                `json:"list,omitempty"`
	Lists       []types.List               `json:"lists,omitempty"`
}

// Decode parses a single inbound event and rejects unknown types.
func Decode(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if !Known(ev.Type) {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
	}
	return ev, nil
}

// Generation builds a generation event for a task.
func Generation(c Category, p Phase, id string, data json.RawMessage) Event {
	return Event{Type: GenerationType(c, p), ID: id, Data: data}
}

// UpdateSuffix terminates every outbound update type.
const UpdateSuffix = "_UPDATE"

// PageSessionUpdate is the outbound update type for session snapshots.
const PageSessionUpdate = "PAGE_SESSION" + UpdateSuffix

// Operation is a single JSON-patch instruction.
type Operation struct {
	Op    string          `json:"op"`
	Path  string          `json:"path"`
	From  string          `json:"from,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Update is the outbound message sent to listeners. It carries either a full
// snapshot or the operations that transform snapshot Seq-1 into snapshot Seq.
type Update struct {
	Type       string          `json:"type"`
	SessionID  string          `json:"sessionId"`
	Seq        uint64          `json:"seq"`
	Snapshot   json.RawMessage `json:"snapshot,omitempty"`
	Operations []Operation     `json:"operations,omitempty"`
}

// IsSnapshot reports whether the update carries a full snapshot.
func (u Update) IsSnapshot() bool {
	return len(u.Snapshot) > 0
}
