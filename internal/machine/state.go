package machine

import (
	"encoding/json"
	"fmt"

	"github.com/kitchenai/kitchen/internal/event"
)

// AuthState is the value of the Auth region.
type AuthState string

const (
	AuthAnonymous          AuthState = "anonymous"
	AuthRegistering        AuthState = "registering"
	AuthAuthenticated      AuthState = "authenticated"
	AuthRegistrationFailed AuthState = "registrationFailed"
)

// InputState is the value of the Input region.
type InputState string

const (
	InputEmpty   InputState = "empty"
	InputEditing InputState = "editing"
)

// GenState is the value of one Generators sub-region.
type GenState string

const (
	GenIdle       GenState = "idle"
	GenHolding    GenState = "holding"
	GenGenerating GenState = "generating"
)

// ListCreatingState is the value of the ListCreating region.
type ListCreatingState string

const (
	ListClosed ListCreatingState = "closed"
	ListNaming ListCreatingState = "naming"
	ListSaving ListCreatingState = "saving"
	ListError  ListCreatingState = "error"
)

// ListErrorKind qualifies ListError.
type ListErrorKind string

const (
	ListErrorDuplicateName ListErrorKind = "duplicateName"
	ListErrorUnknown       ListErrorKind = "unknown"
)

// ProfileState is the value of the Profile region.
type ProfileState string

const (
	ProfileIdle    ProfileState = "idle"
	ProfileLoading ProfileState = "loading"
	ProfileHolding ProfileState = "holding"
	ProfileSaving  ProfileState = "saving"
)

// SocketState is the value of the Socket region.
type SocketState string

const (
	SocketConnected    SocketState = "connected"
	SocketDisconnected SocketState = "disconnected"
)

// Auth is the Auth region. Timer is the pending registration timeout and
// ListsCall the load of the user's lists in flight.
type Auth struct {
	State     AuthState `json:"state"`
	Timer     string    `json:"timer,omitempty"`
	ListsCall string    `json:"listsCall,omitempty"`
}

// Generator is one Generators sub-region.
type Generator struct {
	State GenState `json:"state"`
	// TaskID identifies the task in flight while Generating.
	TaskID string `json:"taskId,omitempty"`
	// Timer is the debounce token while Holding.
	Timer string `json:"timer,omitempty"`
	// Targets are the recipe ids the task in flight fills.
	Targets []string `json:"targets,omitempty"`
}

func (g Generator) clone() Generator {
	g.Targets = cloneSlice(g.Targets)
	return g
}

// Generators holds one sub-region per generation category.
type Generators struct {
	Placeholders  Generator `json:"placeholders"`
	Tokens        Generator `json:"tokens"`
	InstantRecipe Generator `json:"instantRecipe"`
	Recipes       Generator `json:"recipes"`
	FullRecipe    Generator `json:"fullRecipe"`
}

// For returns the sub-region that runs a category.
func (g *Generators) For(c event.Category) *Generator {
	switch c {
	case event.CategoryPlaceholder:
		return &g.Placeholders
	case event.CategorySuggestTokens:
		return &g.Tokens
	case event.CategoryInstantRecipe:
		return &g.InstantRecipe
	case event.CategoryRecipeIdeas:
		return &g.Recipes
	case event.CategoryFullRecipe:
		return &g.FullRecipe
	}
	return nil
}

// ListCreating is the ListCreating region. Call is the create call in
// flight while Saving.
type ListCreating struct {
	State ListCreatingState `json:"state"`
	Error ListErrorKind     `json:"error,omitempty"`
	Call  string            `json:"call,omitempty"`
}

// Profile is the Profile region. Timer is the save debounce token; Call is
// the persistence call in flight while Loading or Saving.
type Profile struct {
	State ProfileState `json:"state"`
	Timer string       `json:"timer,omitempty"`
	Call  string       `json:"call,omitempty"`
}

// Value is the active state of every parallel region.
type Value struct {
	Auth         Auth         `json:"auth"`
	Input        InputState   `json:"input"`
	Generators   Generators   `json:"generators"`
	ListCreating ListCreating `json:"listCreating"`
	Profile      Profile      `json:"profile"`
	Socket       SocketState  `json:"socket"`
	// Connections counts the open sockets; Socket is Disconnected at zero.
	Connections int `json:"connections"`
}

func (v Value) clone() Value {
	v.Generators.Placeholders = v.Generators.Placeholders.clone()
	v.Generators.Tokens = v.Generators.Tokens.clone()
	v.Generators.InstantRecipe = v.Generators.InstantRecipe.clone()
	v.Generators.Recipes = v.Generators.Recipes.clone()
	v.Generators.FullRecipe = v.Generators.FullRecipe.clone()
	return v
}

// State is a complete session state: region values plus the context document.
type State struct {
	Value   Value    `json:"value"`
	Context *Context `json:"context"`
}

// Initial returns the state of a fresh session.
func Initial(sessionID, pageSessionID string) State {
	idle := Generator{State: GenIdle}
	return State{
		Value: Value{
			Auth:  Auth{State: AuthAnonymous},
			Input: InputEmpty,
			Generators: Generators{
				Placeholders:  idle,
				Tokens:        idle,
				InstantRecipe: idle,
				Recipes:       idle,
				FullRecipe:    idle,
			},
			ListCreating: ListCreating{State: ListClosed},
			Profile:      Profile{State: ProfileIdle},
			Socket:       SocketDisconnected,
		},
		Context: NewContext(sessionID, pageSessionID),
	}
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	return State{Value: s.Value.clone(), Context: s.Context.Clone()}
}

// Regions lists the region names accepted by Matches.
var Regions = []string{
	"auth", "input", "listCreating", "profile", "socket",
	"placeholders", "tokens", "instantRecipe", "recipes", "fullRecipe",
}

// Matches reports whether a region is in the named state. Region names are
// auth, input, listCreating, profile, socket and the generator regions
// placeholders, tokens, instantRecipe, recipes, fullRecipe.
func (s State) Matches(region, state string) bool {
	switch region {
	case "auth":
		return string(s.Value.Auth.State) == state
	case "input":
		return string(s.Value.Input) == state
	case "listCreating":
		return string(s.Value.ListCreating.State) == state
	case "profile":
		return string(s.Value.Profile.State) == state
	case "socket":
		return string(s.Value.Socket) == state
	case "placeholders":
		return string(s.Value.Generators.Placeholders.State) == state
	case "tokens":
		return string(s.Value.Generators.Tokens.State) == state
	case "instantRecipe":
		return string(s.Value.Generators.InstantRecipe.State) == state
	case "recipes":
		return string(s.Value.Generators.Recipes.State) == state
	case "fullRecipe":
		return string(s.Value.Generators.FullRecipe.State) == state
	}
	return false
}

// SnapshotVersion is the version of the hibernation format.
const SnapshotVersion = 1

type snapshot struct {
	Version int `json:"version"`
	State
}

// Encode serializes a state for hibernation.
func Encode(s State) ([]byte, error) {
	return json.Marshal(snapshot{Version: SnapshotVersion, State: s})
}

// Decode restores a hibernated state. Work that cannot survive a restart
// (generations, timers, persistence calls) is settled so the restored state
// is quiescent.
func Decode(data []byte) (State, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return State{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Version != SnapshotVersion {
		return State{}, fmt.Errorf("decode snapshot: unsupported version %d", snap.Version)
	}
	if snap.Context == nil {
		return State{}, &InvariantError{Msg: "snapshot has no context"}
	}
	s := snap.State
	s.Context.ensure()
	if err := Validate(s); err != nil {
		return State{}, err
	}
	settle(&s)
	return s, nil
}

func settle(s *State) {
	for _, c := range event.Categories {
		g := s.Value.Generators.For(c)
		*g = Generator{State: GenIdle}
	}
	s.Context.FullRecipeQueue = []string{}
	if s.Value.Auth.State == AuthRegistering {
		s.Value.Auth = Auth{State: AuthRegistrationFailed}
	}
	s.Value.Auth.ListsCall = ""
	switch s.Value.Profile.State {
	case ProfileHolding, ProfileSaving, ProfileLoading:
		s.Value.Profile = Profile{State: ProfileIdle}
	}
	s.Context.SavingPreferences = nil
	if s.Value.ListCreating.State == ListSaving {
		s.Value.ListCreating = ListCreating{State: ListNaming}
	}
	s.Value.Socket = SocketDisconnected
	s.Value.Connections = 0
	s.Value.Input = inputState(s.Context)
}

// Validate checks the structural invariants of a state.
func Validate(s State) error {
	c := s.Context
	for rid, res := range c.Results {
		for _, id := range res.SuggestedRecipeIDs {
			if _, ok := c.Recipes[id]; !ok {
				return &InvariantError{Msg: fmt.Sprintf("result %s references unknown recipe %s", rid, id)}
			}
		}
	}
	if c.CurrentResultID != "" {
		if _, ok := c.Results[c.CurrentResultID]; !ok {
			return &InvariantError{Msg: "current result " + c.CurrentResultID + " does not exist"}
		}
	}
	for id, l := range c.ListsByID {
		if l.Count != len(c.ListRecipes[id]) {
			return &InvariantError{Msg: fmt.Sprintf("list %s count %d does not match %d recipes", l.Slug, l.Count, len(c.ListRecipes[id]))}
		}
	}
	for _, id := range c.FullRecipeQueue {
		if _, ok := c.Recipes[id]; !ok {
			return &InvariantError{Msg: "queued recipe " + id + " does not exist"}
		}
	}
	for _, cat := range event.Categories {
		g := s.Value.Generators.For(cat)
		if g.State == GenGenerating && g.TaskID == "" {
			return &InvariantError{Msg: fmt.Sprintf("%s generating without a task", cat)}
		}
	}
	return nil
}

func inputState(c *Context) InputState {
	if c.Prompt != "" || len(c.Tokens) > 0 {
		return InputEditing
	}
	return InputEmpty
}
