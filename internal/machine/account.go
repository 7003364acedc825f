package machine

import (
	"bytes"
	"encoding/json"
	"strings"
)

func (st *step) authenticate() {
	uid := strings.TrimSpace(st.ev.UserID)
	if uid == "" || st.s.Value.Auth.State == AuthAuthenticated && st.ctx().UserID == uid {
		return
	}
	st.authenticated(uid)
}

func (st *step) register() {
	switch st.s.Value.Auth.State {
	case AuthAnonymous, AuthRegistrationFailed:
		st.s.Value.Auth = Auth{
			State: AuthRegistering,
			Timer: st.startTimer(TimerRegistration, st.m.cfg.RegistrationTimeout),
		}
	}
}

func (st *step) registrationComplete() {
	switch st.s.Value.Auth.State {
	case AuthRegistering, AuthRegistrationFailed:
	default:
		return
	}
	uid := strings.TrimSpace(st.ev.UserID)
	if uid == "" {
		st.s.Value.Auth = Auth{State: AuthRegistrationFailed}
		return
	}
	st.authenticated(uid)
}

// authenticated enters Authenticated and loads the user's preferences and
// lists. Switching from another user first drops everything of theirs.
func (st *step) authenticated(uid string) {
	c := st.ctx()
	if c.UserID != "" && c.UserID != uid {
		st.signOut()
	}
	c.UserID = uid
	c.SavingPreferences = nil

	lists := st.id()
	st.s.Value.Auth = Auth{State: AuthAuthenticated, ListsCall: lists}
	st.emit(Persist{ID: lists, Op: PersistListLists, UserID: uid})

	prefs := st.id()
	st.s.Value.Profile = Profile{State: ProfileLoading, Call: prefs}
	st.emit(Persist{ID: prefs, Op: PersistGetUserPreferences, UserID: uid})
}

func (st *step) signOut() {
	c := st.ctx()
	c.UserID = ""
	c.ListsByID = nil
	c.ListRecipes = nil
	c.CurrentListSlug = ""
	c.ChoosingListsForRecipeID = ""
	c.Preferences = nil
	c.ModifiedPreferences = nil
	c.SavingPreferences = nil
	c.ensure()
	st.s.Value.Auth = Auth{State: AuthAnonymous}
	st.s.Value.Profile = Profile{State: ProfileIdle}
	st.s.Value.ListCreating = ListCreating{State: ListClosed}
}

func (st *step) updatePreference() {
	key := strings.TrimSpace(st.ev.Key)
	if key == "" || len(st.ev.Value) == 0 {
		return
	}
	c := st.ctx()
	c.Preferences[key] = append([]byte(nil), st.ev.Value...)
	c.ModifiedPreferences[key] = true
	switch st.s.Value.Profile.State {
	case ProfileIdle, ProfileHolding:
		st.holdPreferences()
	}
}

func (st *step) holdPreferences() {
	st.s.Value.Profile = Profile{
		State: ProfileHolding,
		Timer: st.startTimer(TimerPreferences, st.m.cfg.PreferencesDebounce),
	}
}

// savePreferences upserts the modified keys. Anonymous preferences stay local.
func (st *step) savePreferences() {
	c := st.ctx()
	if c.UserID == "" || len(c.ModifiedPreferences) == 0 {
		st.s.Value.Profile = Profile{State: ProfileIdle}
		return
	}
	sent := make(map[string]json.RawMessage, len(c.ModifiedPreferences))
	for k := range c.ModifiedPreferences {
		sent[k] = c.Preferences[k]
	}
	c.SavingPreferences = sent
	call := st.id()
	st.s.Value.Profile = Profile{State: ProfileSaving, Call: call}
	st.emit(Persist{
		ID:          call,
		Op:          PersistUpsertUserPreferences,
		UserID:      c.UserID,
		Preferences: cloneMap(sent),
	})
}

// profileCall reports whether the event completes the Profile call in flight.
// Results of calls made for an earlier state or identity do not.
func (st *step) profileCall(state ProfileState) bool {
	p := st.s.Value.Profile
	return p.State == state && p.Call != "" && p.Call == st.ev.ID
}

// preferencesLoaded merges stored preferences under the local edits.
func (st *step) preferencesLoaded() {
	if !st.profileCall(ProfileLoading) {
		return
	}
	c := st.ctx()
	for k, v := range st.ev.Preferences {
		if !c.ModifiedPreferences[k] {
			c.Preferences[k] = v
		}
	}
	st.profileSettled()
}

// preferencesSaved clears the flags of keys not edited again during the save.
func (st *step) preferencesSaved() {
	if !st.profileCall(ProfileSaving) {
		return
	}
	c := st.ctx()
	for k, v := range c.SavingPreferences {
		if bytes.Equal(c.Preferences[k], v) {
			delete(c.ModifiedPreferences, k)
		}
	}
	c.SavingPreferences = nil
	st.profileSettled()
}

// profileSettled leaves Loading or Saving, holding again if edits are pending.
func (st *step) profileSettled() {
	if len(st.ctx().ModifiedPreferences) > 0 && st.ctx().UserID != "" {
		st.holdPreferences()
		return
	}
	st.s.Value.Profile = Profile{State: ProfileIdle}
}
