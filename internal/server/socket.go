package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kitchenai/kitchen/internal/event"
	"github.com/kitchenai/kitchen/internal/logging"
)

const (
	socketWriteWait  = 10 * time.Second
	socketPongWait   = 60 * time.Second
	socketPingPeriod = socketPongWait * 9 / 10
	// socketBuffer is the number of updates queued for a slow client before
	// it is disconnected.
	socketBuffer = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// socket handles GET /session/{sessionID}/socket
func (s *Server) socket(w http.ResponseWriter, r *http.Request) {
	a, ok := s.actor(w, r)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	log := logging.ForSession(a.ID())
	out := make(chan any, socketBuffer)
	overflow := make(chan struct{})
	var once sync.Once

	full, unsubscribe := a.Subscribe(func(u event.Update) {
		select {
		case out <- u:
		default:
			once.Do(func() { close(overflow) })
		}
	})
	defer unsubscribe()

	if err := a.Send(event.Event{Type: event.SocketOpen}); err != nil {
		return
	}

	stop := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		socketWriter(conn, full, out, overflow, stop)
	}()

	closeEvent := event.SocketClose
	conn.SetReadLimit(maxEventBytes)
	_ = conn.SetReadDeadline(time.Now().Add(socketPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(socketPongWait))
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("socket read failed")
				closeEvent = event.SocketError
			}
			break
		}
		ev, err := s.clientEvent(r, data)
		if err != nil {
			_, detail := clientEventError(err)
			select {
			case out <- ErrorResponse{Error: detail}:
			default:
			}
			continue
		}
		if err := a.Send(ev); err != nil {
			break
		}
	}

	_ = a.Send(event.Event{Type: closeEvent})
	close(stop)
	<-writerDone
}

// socketWriter owns all writes to conn. The full snapshot goes first.
func socketWriter(conn *websocket.Conn, full event.Update, out <-chan any, overflow, stop <-chan struct{}) {
	ticker := time.NewTicker(socketPingPeriod)
	defer ticker.Stop()

	write := func(v any) error {
		_ = conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
		return conn.WriteJSON(v)
	}
	if err := write(full); err != nil {
		return
	}

	for {
		select {
		case msg := <-out:
			if err := write(msg); err != nil {
				conn.Close()
				return
			}
		case <-overflow:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "update buffer full"),
				time.Now().Add(socketWriteWait))
			conn.Close()
			return
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(socketWriteWait)); err != nil {
				conn.Close()
				return
			}
		}
	}
}
