package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitchenai/kitchen/internal/event"
	"github.com/kitchenai/kitchen/internal/machine"
	"github.com/kitchenai/kitchen/internal/patch"
)

// socketMessage is either an update or an error envelope.
type socketMessage struct {
	event.Update
	Error *ErrorDetail `json:"error,omitempty"`
}

func dial(t *testing.T, env *testEnv, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/session/" + id + "/socket"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) socketMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg socketMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// readUntil applies updates to shadow until pred holds for the decoded state.
func readUntil(t *testing.T, conn *websocket.Conn, shadow *patch.Shadow, pred func(machine.State) bool) machine.State {
	t.Helper()
	for {
		msg := readMessage(t, conn)
		require.Nil(t, msg.Error)
		require.NoError(t, shadow.Apply(msg.Update))
		var st machine.State
		require.NoError(t, shadow.Decode(&st))
		if pred(st) {
			return st
		}
	}
}

func TestSocket_SnapshotThenUpdates(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t, nil)
	conn := dial(t, env, id)

	first := readMessage(t, conn)
	require.True(t, first.IsSnapshot())
	assert.Equal(t, event.PageSessionUpdate, first.Type)
	assert.Equal(t, id, first.SessionID)

	var shadow patch.Shadow
	require.NoError(t, shadow.Apply(first.Update))

	readUntil(t, conn, &shadow, func(st machine.State) bool {
		return st.Value.Socket == machine.SocketConnected
	})

	msg, err := json.Marshal(event.Event{Type: event.SetInput, Prompt: "eggs"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, msg))

	st := readUntil(t, conn, &shadow, func(st machine.State) bool {
		return st.Context.Prompt == "eggs"
	})
	assert.Equal(t, machine.InputEditing, st.Value.Input)
	assert.Equal(t, machine.GenHolding, st.Value.Generators.Tokens.State)
}

func TestSocket_RejectsInternalEvents(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t, nil)
	conn := dial(t, env, id)

	var shadow patch.Shadow
	require.NoError(t, shadow.Apply(readMessage(t, conn).Update))
	readUntil(t, conn, &shadow, func(st machine.State) bool {
		return st.Value.Socket == machine.SocketConnected
	})

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"TIMER","timer":"tokens"}`)))
	msg := readMessage(t, conn)
	require.NotNil(t, msg.Error)
	assert.Equal(t, ErrCodeInvalidRequest, msg.Error.Code)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	msg = readMessage(t, conn)
	require.NotNil(t, msg.Error)
}

func TestSocket_CloseDisconnects(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t, nil)
	conn := dial(t, env, id)
	readMessage(t, conn)

	a, err := env.sessions.Get(context.Background(), id)
	require.NoError(t, err)
	_, err = a.WaitFor(context.Background(), func(st machine.State) bool {
		return st.Value.Socket == machine.SocketConnected
	}, 2*time.Second)
	require.NoError(t, err)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	_, err = a.WaitFor(context.Background(), func(st machine.State) bool {
		return st.Value.Socket == machine.SocketDisconnected
	}, 2*time.Second)
	assert.NoError(t, err)
}

func TestSocket_UnknownSession(t *testing.T) {
	env := newTestEnv(t)
	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/session/missing/socket"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessionEvents_Stream(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.http.URL+"/session/"+id+"/event", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	updates := make(chan event.Update, 16)
	go func() {
		defer close(updates)
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			line := scanner.Text()
			data, ok := strings.CutPrefix(line, "data: ")
			if !ok {
				continue
			}
			var u event.Update
			if json.Unmarshal([]byte(data), &u) == nil {
				updates <- u
			}
		}
	}()

	next := func() event.Update {
		select {
		case u, ok := <-updates:
			require.True(t, ok, "stream closed")
			return u
		case <-time.After(2 * time.Second):
			t.Fatal("no update received")
		}
		return event.Update{}
	}

	var shadow patch.Shadow
	first := next()
	require.True(t, first.IsSnapshot())
	require.NoError(t, shadow.Apply(first))

	a, err := env.sessions.Get(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, a.Dispatch(context.Background(), event.Event{Type: event.SetInput, Prompt: "rice"}))

	for {
		u := next()
		assert.False(t, u.IsSnapshot())
		require.NoError(t, shadow.Apply(u))
		var st machine.State
		require.NoError(t, shadow.Decode(&st))
		if st.Context.Prompt == "rice" {
			break
		}
	}
}

func TestSSEWriter_Format(t *testing.T) {
	w := &flushRecorder{header: http.Header{}}
	sse, err := newSSEWriter(w)
	require.NoError(t, err)

	require.NoError(t, sse.writeEvent(event.PageSessionUpdate, 7, map[string]string{"k": "v"}))
	sse.writeHeartbeat()

	body := w.body.String()
	assert.Contains(t, body, "event: PAGE_SESSION_UPDATE\nid: 7\ndata: {\"k\":\"v\"}\n\n")
	assert.Contains(t, body, ": heartbeat\n\n")
	assert.Positive(t, w.flushed)
}

func TestSSEWriter_NoFlusher(t *testing.T) {
	_, err := newSSEWriter(&noFlushWriter{})
	assert.Error(t, err)
}

type flushRecorder struct {
	header  http.Header
	body    strings.Builder
	flushed int
}

func (f *flushRecorder) Header() http.Header         { return f.header }
func (f *flushRecorder) Write(b []byte) (int, error) { return f.body.Write(b) }
func (f *flushRecorder) WriteHeader(int)             {}
func (f *flushRecorder) Flush()                      { f.flushed++ }

type noFlushWriter struct{}

func (n *noFlushWriter) Header() http.Header       { return http.Header{} }
func (n *noFlushWriter) Write([]byte) (int, error) { return 0, nil }
func (n *noFlushWriter) WriteHeader(int)           {}
