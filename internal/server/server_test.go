package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitchenai/kitchen/internal/event"
	"github.com/kitchenai/kitchen/internal/generation"
	"github.com/kitchenai/kitchen/internal/machine"
	"github.com/kitchenai/kitchen/internal/persistence"
	"github.com/kitchenai/kitchen/internal/session"
	"github.com/kitchenai/kitchen/internal/storage"
)

// idleTasks records generation requests and never emits.
type idleTasks struct {
	mu   sync.Mutex
	reqs []generation.Request
}

func (t *idleTasks) Start(ctx context.Context, req generation.Request, emit generation.Emit) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reqs = append(t.reqs, req)
}

type testEnv struct {
	server   *Server
	http     *httptest.Server
	sessions *session.Manager
	bus      *event.Bus
}

func newTestEnv(t *testing.T, configure ...func(*Config)) *testEnv {
	t.Helper()

	cfg := machine.DefaultConfig()
	cfg.TokensDebounce = 20 * time.Millisecond
	cfg.PlaceholdersDebounce = 20 * time.Millisecond
	cfg.PreferencesDebounce = 20 * time.Millisecond

	bus := event.NewBus()
	sessions := session.NewManager(session.Options{
		Machine: machine.New(cfg),
		Tasks:   &idleTasks{},
		Store:   persistence.NewStore(storage.NewMemory()),
		Bus:     bus,
	})

	srvCfg := DefaultConfig()
	srvCfg.MaxWait = 2 * time.Second
	for _, fn := range configure {
		fn(srvCfg)
	}
	srv := New(srvCfg, sessions)
	ts := httptest.NewServer(srv.Router())

	env := &testEnv{server: srv, http: ts, sessions: sessions, bus: bus}
	t.Cleanup(func() {
		ts.Close()
		_ = sessions.Close(context.Background())
		_ = bus.Close()
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req, err := http.NewRequest(method, e.http.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) create(t *testing.T, opts *session.CreateOptions) string {
	t.Helper()
	var body any
	if opts != nil {
		body = opts
	}
	resp := e.do(t, http.MethodPost, "/session", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out SessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.ID)
	return out.ID
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestCreateAndGetSession(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t, nil)

	resp := env.do(t, http.MethodGet, "/session/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeBody[SessionResponse](t, resp)

	assert.Equal(t, id, out.ID)
	assert.Equal(t, machine.AuthAnonymous, out.State.Value.Auth.State)
	assert.Equal(t, machine.InputEmpty, out.State.Value.Input)
	assert.NotEmpty(t, out.State.Context.PageSessionID)
}

func TestCreateSession_WithUser(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t, &session.CreateOptions{UserID: "u1", AccessTokens: map[string]string{"k": "v"}})

	resp := env.do(t, http.MethodGet, "/session/"+id+"/wait?region=auth&state=authenticated&timeout=1s", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeBody[SessionResponse](t, resp)
	assert.Equal(t, "u1", out.State.Context.UserID)
	assert.Equal(t, "v", out.State.Context.AccessTokens["k"])
}

func TestCreateSession_InvalidBody(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/session", "{not json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, ErrCodeInvalidRequest, decodeBody[ErrorResponse](t, resp).Error.Code)
}

func TestGetSession_NotFound(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/session/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, ErrCodeNotFound, decodeBody[ErrorResponse](t, resp).Error.Code)
}

func TestSendEvent(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t, nil)

	resp := env.do(t, http.MethodPost, "/session/"+id+"/event", event.Event{Type: event.SetInput, Prompt: "eggs"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Dispatch returns after the transition, so the state is already visible.
	out := decodeBody[SessionResponse](t, env.do(t, http.MethodGet, "/session/"+id, nil))
	assert.Equal(t, "eggs", out.State.Context.Prompt)
	assert.Equal(t, machine.InputEditing, out.State.Value.Input)
}

func TestSendEvent_Rejected(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t, nil)

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"malformed", `{"type":`, http.StatusBadRequest, ErrCodeInvalidRequest},
		{"unknown type", `{"type":"BAKE"}`, http.StatusBadRequest, ErrCodeInvalidRequest},
		{"timer", `{"type":"TIMER","timer":"tokens","id":"x"}`, http.StatusBadRequest, ErrCodeInvalidRequest},
		{"generation", `{"type":"INSTANT_RECIPE_COMPLETE","id":"x"}`, http.StatusBadRequest, ErrCodeInvalidRequest},
		{"persistence", `{"type":"CREATE_LIST_COMPLETE"}`, http.StatusBadRequest, ErrCodeInvalidRequest},
		{"invariant", `{"type":"VIEW_RECIPE","recipeId":"nope"}`, http.StatusConflict, ErrCodeInvariant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodPost, "/session/"+id+"/event", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, decodeBody[ErrorResponse](t, resp).Error.Code)
		})
	}
}

func TestWaitSession(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t, nil)

	t.Run("bad region", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/session/"+id+"/wait?region=oven&state=hot", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decodeBody[ErrorResponse](t, resp)
		assert.Contains(t, body.Error.Details, "regions")
	})

	t.Run("bad timeout", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/session/"+id+"/wait?region=input&state=editing&timeout=soon", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("times out", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/session/"+id+"/wait?region=input&state=editing&timeout=30ms", nil)
		assert.Equal(t, http.StatusRequestTimeout, resp.StatusCode)
		assert.Equal(t, ErrCodeWaitTimeout, decodeBody[ErrorResponse](t, resp).Error.Code)
	})

	t.Run("resolves", func(t *testing.T) {
		go func() {
			time.Sleep(20 * time.Millisecond)
			a, err := env.sessions.Get(context.Background(), id)
			if err == nil {
				_ = a.Send(event.Event{Type: event.SetInput, Prompt: "rice"})
			}
		}()
		resp := env.do(t, http.MethodGet, "/session/"+id+"/wait?region=input&state=editing&timeout=1s", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "rice", decodeBody[SessionResponse](t, resp).State.Context.Prompt)
	})
}

func TestDeleteAndListSessions(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, nil)
	b := env.create(t, nil)

	resp := env.do(t, http.MethodDelete, "/session/"+a, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	infos := decodeBody[[]session.Info](t, env.do(t, http.MethodGet, "/session", nil))
	active := map[string]bool{}
	for _, info := range infos {
		active[info.ID] = info.Active
	}
	assert.Equal(t, map[string]bool{a: false, b: true}, active)

	// A hibernated session comes back on access.
	resp = env.do(t, http.MethodGet, "/session/"+a, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/session/unknown", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCORSHeaders(t *testing.T) {
	env := newTestEnv(t)
	req, err := http.NewRequest(http.MethodOptions, env.http.URL+"/session", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.NotEmpty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	assert.True(t, strings.Contains(resp.Header.Get("Access-Control-Allow-Methods"), "POST"))
}

func TestIdentify(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Identify = func(r *http.Request, userID string) error {
			if r.Header.Get("Authorization") != "Bearer "+userID {
				return errors.New("token does not match")
			}
			return nil
		}
	})

	post := func(t *testing.T, path, token string, body any) *http.Response {
		t.Helper()
		data, err := json.Marshal(body)
		require.NoError(t, err)
		req, err := http.NewRequest(http.MethodPost, env.http.URL+path, bytes.NewReader(data))
		require.NoError(t, err)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	resp := post(t, "/session", "alice", session.CreateOptions{UserID: "bob"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, ErrCodeForbidden, decodeBody[ErrorResponse](t, resp).Error.Code)

	id := env.create(t, nil)
	path := fmt.Sprintf("/session/%s/event", id)

	resp = post(t, path, "alice", event.Event{Type: event.Authenticate, UserID: "bob"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp = post(t, path, "", event.Event{Type: event.RegistrationComplete, UserID: "bob"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	out := decodeBody[SessionResponse](t, env.do(t, http.MethodGet, "/session/"+id, nil))
	assert.Equal(t, machine.AuthAnonymous, out.State.Value.Auth.State)

	resp = post(t, path, "alice", event.Event{Type: event.Authenticate, UserID: "alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out = decodeBody[SessionResponse](t, env.do(t, http.MethodGet, "/session/"+id, nil))
	assert.Equal(t, "alice", out.State.Context.UserID)

	// Events without an identity are not vetted.
	resp = post(t, path, "", event.Event{Type: event.SetInput, Prompt: "soup"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
