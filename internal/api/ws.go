package api

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/websocket"

	"github.com/example/mathvideo/internal/orchestrator"
)

const writeTimeout = 10 * time.Second

// wsSubscriber writes hub events to one WebSocket connection.
type wsSubscriber struct {
	id   string
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsSubscriber) Send(ev orchestrator.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return websocket.JSON.Send(w.conn, ev)
}

// handleEvents streams a task's log and status events. The client may send
// "ping" and gets a pong back. After a quiet heartbeat interval the server
// sends a heartbeat frame.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	srv := websocket.Server{Handler: func(conn *websocket.Conn) {
		s.serveEvents(taskID, conn)
	}}
	srv.ServeHTTP(w, r)
}

func (s *Server) serveEvents(taskID string, conn *websocket.Conn) {
	defer conn.Close()
	sub := &wsSubscriber{id: uuid.NewString(), conn: conn}
	entry := log.WithFields(log.Fields{"task": taskID, "subscriber": sub.id})
	entry.Debug("subscriber connected")

	s.cfg.Hub.Subscribe(taskID, sub)
	defer s.cfg.Hub.Unsubscribe(taskID, sub)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(s.cfg.Heartbeat)); err != nil {
			return
		}
		var msg string
		err := websocket.Message.Receive(conn, &msg)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if sub.Send(orchestrator.Event{Type: orchestrator.EventHeartbeat}) != nil {
					return
				}
				continue
			}
			entry.WithError(err).Debug("subscriber disconnected")
			return
		}
		if strings.EqualFold(strings.TrimSpace(msg), "ping") {
			if sub.Send(orchestrator.Event{Type: orchestrator.EventPong}) != nil {
				return
			}
		}
	}
}
