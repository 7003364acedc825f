package machine

import (
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/kitchenai/kitchen/internal/event"
	"github.com/kitchenai/kitchen/pkg/types"
)

// Default timings and batch sizes.
const (
	DefaultTokensDebounce       = 600 * time.Millisecond
	DefaultPlaceholdersDebounce = 500 * time.Millisecond
	DefaultPreferencesDebounce  = time.Second
	DefaultRegistrationTimeout  = 10 * time.Second
	DefaultBatchSize            = 6
	DefaultMoreSize             = 5
	DefaultPlaceholderCount     = 4
	DefaultTokenCount           = 8
)

// Config holds the machine timings.
type Config struct {
	TokensDebounce       time.Duration
	PlaceholdersDebounce time.Duration
	PreferencesDebounce  time.Duration
	RegistrationTimeout  time.Duration
	// BatchSize is the number of recipe slots seeded per submission: one
	// instant recipe plus BatchSize-1 ideas.
	BatchSize int
	// MoreSize is the number of idea slots LOAD_MORE appends.
	MoreSize int
}

// DefaultConfig returns the default timings.
func DefaultConfig() Config {
	return Config{
		TokensDebounce:       DefaultTokensDebounce,
		PlaceholdersDebounce: DefaultPlaceholdersDebounce,
		PreferencesDebounce:  DefaultPreferencesDebounce,
		RegistrationTimeout:  DefaultRegistrationTimeout,
		BatchSize:            DefaultBatchSize,
		MoreSize:             DefaultMoreSize,
	}
}

// ConfigFrom applies session settings over the defaults.
func ConfigFrom(sc *types.SessionConfig) Config {
	cfg := DefaultConfig()
	if sc == nil {
		return cfg
	}
	cfg.TokensDebounce = types.Millis(sc.TokensDebounceMs, cfg.TokensDebounce)
	cfg.PlaceholdersDebounce = types.Millis(sc.PlaceholdersDebounceMs, cfg.PlaceholdersDebounce)
	cfg.PreferencesDebounce = types.Millis(sc.PreferencesDebounceMs, cfg.PreferencesDebounce)
	cfg.RegistrationTimeout = types.Millis(sc.RegistrationTimeoutMs, cfg.RegistrationTimeout)
	if sc.BatchSize > 1 {
		cfg.BatchSize = sc.BatchSize
		cfg.MoreSize = sc.BatchSize - 1
	}
	return cfg
}

// Machine computes session transitions. It holds no session state; the same
// Machine serves every session.
type Machine struct {
	cfg Config
	// NewID mints recipe, task, timer and persistence ids.
	NewID func() string
}

// New creates a Machine.
func New(cfg Config) *Machine {
	return &Machine{cfg: cfg, NewID: func() string { return ulid.Make().String() }}
}

// Config returns the machine timings.
func (m *Machine) Config() Config { return m.cfg }

// step is the working set of one transition.
type step struct {
	m       *Machine
	ev      event.Event
	now     time.Time
	s       State
	effects []Effect
}

func (st *step) ctx() *Context { return st.s.Context }

func (st *step) emit(e Effect) { st.effects = append(st.effects, e) }

func (st *step) id() string { return st.m.NewID() }

// Transition computes the next state and the effects to run for an event. The
// input state is never modified. Events that do not apply to the current
// state are dropped: the returned state equals the input and no effects are
// returned. A violated precondition returns an *InvariantError and the input
// state.
func (m *Machine) Transition(s State, ev event.Event, now time.Time) (State, []Effect, error) {
	st := &step{m: m, ev: ev, now: now, s: s.Clone()}
	if err := st.dispatch(); err != nil {
		return s, nil, err
	}
	st.s.Value.Input = inputState(st.s.Context)
	return st.s, st.effects, nil
}

func (st *step) dispatch() error {
	if cat, phase, ok := event.SplitGeneration(st.ev.Type); ok {
		return st.generation(cat, phase)
	}

	switch st.ev.Type {
	case event.SetInput:
		st.setInput(st.ev.Prompt, st.ctx().Tokens)
	case event.Submit:
		st.submit()
	case event.NewRecipe:
		st.setInput(st.ev.Prompt, nil)
		st.submit()
	case event.AddToken:
		st.addToken()
	case event.RemoveToken:
		st.removeToken()
	case event.Clear:
		st.clear()
	case event.Undo:
		if undo(st.ctx()) {
			st.inputChanged()
		}
	case event.Redo:
		if redo(st.ctx()) {
			st.inputChanged()
		}
	case event.LoadMore:
		st.loadMore()
	case event.ViewRecipe:
		return st.viewRecipe()
	case event.Navigate:
		if st.ev.URL != "" {
			st.ctx().History = append(st.ctx().History, st.ev.URL)
		}
	case event.Timer:
		st.timer()

	case event.ChooseLists:
		return st.chooseLists()
	case event.CloseLists:
		st.ctx().ChoosingListsForRecipeID = ""
		st.s.Value.ListCreating = ListCreating{State: ListClosed}
	case event.SaveToList:
		return st.saveToList()
	case event.OpenCreateList:
		st.openCreateList()
	case event.SubmitListName:
		st.submitListName()
	case event.CancelCreateList:
		st.s.Value.ListCreating = ListCreating{State: ListClosed}
	case event.CreateListComplete:
		return st.createListComplete()
	case event.CreateListError:
		st.createListError()
	case event.SaveToListComplete:
	case event.SaveToListError:
		if st.ev.UserID == st.ctx().UserID {
			st.saveToListError()
		}
	case event.CreateRecipeComplete:
		return st.createRecipeComplete()
	case event.CreateRecipeError:

	case event.Authenticate:
		st.authenticate()
	case event.Register:
		st.register()
	case event.RegistrationComplete:
		st.registrationComplete()
	case event.RetryRegistration:
		if st.s.Value.Auth.State == AuthRegistrationFailed {
			st.register()
		}
	case event.SignOut:
		st.signOut()
	case event.UpdatePreference:
		st.updatePreference()
	case event.PreferencesLoaded:
		st.preferencesLoaded()
	case event.PreferencesLoadError:
		if st.profileCall(ProfileLoading) {
			st.profileSettled()
		}
	case event.PreferencesSaved:
		st.preferencesSaved()
	case event.PreferencesSaveError:
		if st.profileCall(ProfileSaving) {
			st.ctx().SavingPreferences = nil
			st.s.Value.Profile = Profile{State: ProfileIdle}
		}

	case event.ListsLoaded:
		st.listsLoaded()
	case event.ListsLoadError:
		if st.listsCall() {
			st.s.Value.Auth.ListsCall = ""
		}

	case event.SocketOpen:
		st.s.Value.Connections++
		st.s.Value.Socket = SocketConnected
	case event.SocketClose, event.SocketError:
		if st.s.Value.Connections > 0 {
			st.s.Value.Connections--
		}
		if st.s.Value.Connections == 0 {
			st.s.Value.Socket = SocketDisconnected
		}

	default:
		return invariant(st.ev.Type, "unknown event")
	}
	return nil
}

// timer handles an elapsed timer. Superseded timers are dropped.
func (st *step) timer() {
	v := &st.s.Value
	switch st.ev.Timer {
	case TimerPlaceholders:
		st.debounceElapsed(event.CategoryPlaceholder)
	case TimerTokens:
		st.debounceElapsed(event.CategorySuggestTokens)
	case TimerPreferences:
		if v.Profile.State == ProfileHolding && v.Profile.Timer == st.ev.ID {
			st.savePreferences()
		}
	case TimerRegistration:
		if v.Auth.State == AuthRegistering && v.Auth.Timer == st.ev.ID {
			v.Auth = Auth{State: AuthRegistrationFailed}
		}
	}
}

func (st *step) startTimer(name string, after time.Duration) string {
	id := st.id()
	st.emit(StartTimer{Timer: name, ID: id, After: after, Deadline: st.now.Add(after)})
	return id
}
