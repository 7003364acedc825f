package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kitchenai/kitchen/internal/event"
	"github.com/kitchenai/kitchen/internal/machine"
	"github.com/kitchenai/kitchen/internal/session"
)

// DefaultWait is the /wait timeout when none is given.
const DefaultWait = 5 * time.Second

// maxEventBytes bounds an inbound event body or socket message.
const maxEventBytes = 1 << 20

var (
	errEventNotAccepted = errors.New("event type not accepted from clients")
	errIdentityRejected = errors.New("identity rejected")
)

// clientEvents are the events a client may send. Timers, generation and
// persistence results only come from the session itself.
var clientEvents = map[event.Type]bool{
	event.SetInput: true, event.Submit: true, event.NewRecipe: true,
	event.AddToken: true, event.RemoveToken: true, event.Clear: true,
	event.Undo: true, event.Redo: true, event.LoadMore: true,
	event.ViewRecipe: true, event.Navigate: true,
	event.ChooseLists: true, event.CloseLists: true, event.SaveToList: true,
	event.OpenCreateList: true, event.SubmitListName: true, event.CancelCreateList: true,
	event.UpdatePreference: true, event.Authenticate: true, event.Register: true,
	event.RegistrationComplete: true, event.RetryRegistration: true, event.SignOut: true,
}

// decodeClientEvent parses an event sent by a client.
func decodeClientEvent(data []byte) (event.Event, error) {
	ev, err := event.Decode(data)
	if err != nil {
		return event.Event{}, err
	}
	if !clientEvents[ev.Type] {
		return event.Event{}, fmt.Errorf("%w: %s", errEventNotAccepted, ev.Type)
	}
	return ev, nil
}

// clientEvent decodes a client event and vets the user id it asserts.
func (s *Server) clientEvent(r *http.Request, data []byte) (event.Event, error) {
	ev, err := decodeClientEvent(data)
	if err != nil {
		return event.Event{}, err
	}
	switch ev.Type {
	case event.Authenticate, event.RegistrationComplete:
		if err := s.identify(r, ev.UserID); err != nil {
			return event.Event{}, err
		}
	}
	return ev, nil
}

func (s *Server) identify(r *http.Request, userID string) error {
	if s.config.Identify == nil || userID == "" {
		return nil
	}
	if err := s.config.Identify(r, userID); err != nil {
		return fmt.Errorf("%w: %s: %v", errIdentityRejected, userID, err)
	}
	return nil
}

// clientEventError describes a rejected client event. Anything but an
// identity rejection is a malformed request.
func clientEventError(err error) (int, ErrorDetail) {
	if errors.Is(err, errIdentityRejected) {
		return http.StatusForbidden, ErrorDetail{Code: ErrCodeForbidden, Message: err.Error()}
	}
	return http.StatusBadRequest, ErrorDetail{Code: ErrCodeInvalidRequest, Message: err.Error()}
}

// SessionResponse is a session id with its state.
type SessionResponse struct {
	ID    string        `json:"id"`
	State machine.State `json:"state"`
}

// actor resolves the {sessionID} parameter, writing the error response on failure.
func (s *Server) actor(w http.ResponseWriter, r *http.Request) (*session.Actor, bool) {
	a, err := s.sessions.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeErr(w, err)
		return nil, false
	}
	return a, true
}

// listSessions handles GET /session
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	infos, err := s.sessions.List(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

// createSession handles POST /session
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var opts session.CreateOptions
	if r.Body != nil {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
			return
		}
		if len(body) > 0 {
			if err := json.Unmarshal(body, &opts); err != nil {
				writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
				return
			}
		}
	}

	if err := s.identify(r, opts.UserID); err != nil {
		writeErr(w, err)
		return
	}

	a, err := s.sessions.Create(r.Context(), opts)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, SessionResponse{ID: a.ID(), State: a.Snapshot()})
}

// getSession handles GET /session/{sessionID}
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	a, ok := s.actor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{ID: a.ID(), State: a.Snapshot()})
}

// deleteSession handles DELETE /session/{sessionID}
func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Remove(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		writeErr(w, err)
		return
	}
	writeSuccess(w)
}

// sendEvent handles POST /session/{sessionID}/event
func (s *Server) sendEvent(w http.ResponseWriter, r *http.Request) {
	a, ok := s.actor(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	ev, err := s.clientEvent(r, body)
	if err != nil {
		status, detail := clientEventError(err)
		writeError(w, status, detail.Code, detail.Message)
		return
	}
	if err := a.Dispatch(r.Context(), ev); err != nil {
		writeErr(w, err)
		return
	}
	writeSuccess(w)
}

// waitSession handles GET /session/{sessionID}/wait
func (s *Server) waitSession(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	region, state := q.Get("region"), q.Get("state")
	if !slices.Contains(machine.Regions, region) || state == "" {
		writeErrorWithDetails(w, http.StatusBadRequest, ErrCodeInvalidRequest,
			"region and state are required", map[string]any{"regions": machine.Regions})
		return
	}

	timeout := DefaultWait
	if v := q.Get("timeout"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid timeout "+v)
			return
		}
		timeout = d
	}
	if s.config.MaxWait > 0 && timeout > s.config.MaxWait {
		timeout = s.config.MaxWait
	}

	a, ok := s.actor(w, r)
	if !ok {
		return
	}
	st, err := a.WaitFor(r.Context(), func(st machine.State) bool {
		return st.Matches(region, state)
	}, timeout)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{ID: a.ID(), State: st})
}
