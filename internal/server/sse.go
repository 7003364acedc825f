package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kitchenai/kitchen/internal/event"
	"github.com/kitchenai/kitchen/internal/logging"
)

// SSEHeartbeatInterval is the interval for SSE heartbeats.
const SSEHeartbeatInterval = 30 * time.Second

// sseBuffer is the number of updates queued for a stream before it is
// closed. A dropped update would leave the client with a gap.
const sseBuffer = 64

// sseWriter wraps http.ResponseWriter for SSE.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	rc := http.NewResponseController(w)
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}
	return &sseWriter{w: w, flusher: flusher, rc: rc}, nil
}

// writeEvent writes one SSE event. The event id is the update sequence so
// a reconnecting client can tell where it left off.
func (s *sseWriter) writeEvent(eventType string, id uint64, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\nid: %d\ndata: %s\n\n", eventType, id, jsonData); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil {
		s.flusher.Flush()
	}
	return nil
}

func (s *sseWriter) writeHeartbeat() {
	fmt.Fprintf(s.w, ": heartbeat\n\n")
	s.flusher.Flush()
}

// sessionEvents handles GET /session/{sessionID}/event. It streams the full
// snapshot followed by every update in order.
func (srv *Server) sessionEvents(w http.ResponseWriter, r *http.Request) {
	a, ok := srv.actor(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	updates := make(chan event.Update, sseBuffer)
	overflow := make(chan struct{}, 1)
	full, unsubscribe := a.Subscribe(func(u event.Update) {
		select {
		case updates <- u:
		default:
			select {
			case overflow <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()

	w.WriteHeader(http.StatusOK)
	sse.flusher.Flush()

	if err := sse.writeEvent(full.Type, full.Seq, full); err != nil {
		return
	}

	ticker := time.NewTicker(SSEHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-a.Done():
			return
		case <-overflow:
			logging.Warn().Str("sessionID", a.ID()).Msg("SSE stream closed: update buffer full")
			return
		case u := <-updates:
			if err := sse.writeEvent(u.Type, u.Seq, u); err != nil {
				return
			}
		case <-ticker.C:
			sse.writeHeartbeat()
		}
	}
}
