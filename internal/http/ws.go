package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/example/carpool-client/internal/observability"
	"github.com/example/carpool-client/internal/views"
)

const writeWait = 5 * time.Second

// wsSession is one connected socket watching one view.
type wsSession struct {
	id   string
	view string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *wsSession) Send(u views.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(u)
}

func (s *wsSession) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
	_ = s.conn.Close()
}

// Hub holds the mounted sockets.
type Hub struct {
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*wsSession
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{logger: logger, sessions: make(map[string]*wsSession)}
}

func (h *Hub) add(s *wsSession) {
	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()
	observability.WSSubscribers.Inc()
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	_, ok := h.sessions[id]
	delete(h.sessions, id)
	h.mu.Unlock()
	if ok {
		observability.WSSubscribers.Dec()
	}
}

// Len is the number of mounted sockets.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Broadcast sends u to every socket watching u.View. Session changes go to
// every socket.
func (h *Hub) Broadcast(u views.Update) {
	h.mu.RLock()
	targets := make([]*wsSession, 0, len(h.sessions))
	for _, s := range h.sessions {
		if u.View == views.ViewSession || s.view == u.View {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()
	for _, s := range targets {
		if err := s.Send(u); err != nil {
			h.logger.Warn("ws_send_failed", "session", s.id, "view", s.view, "error", err)
		}
	}
}

// CloseAll closes every socket; their handlers then unmount the views.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	all := make([]*wsSession, 0, len(h.sessions))
	for _, s := range h.sessions {
		all = append(all, s)
	}
	h.mu.RUnlock()
	for _, s := range all {
		s.close()
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the gateway binds to localhost; any local page may connect
	CheckOrigin: func(r *http.Request) bool { return true },
}

// mounted is a view bound to one socket.
type mounted interface {
	Unmount()
}

// wsCommand is what an inbox socket may send: select a thread or post a
// message to the selected one.
type wsCommand struct {
	Action  string `json:"action"`
	UserID  int64  `json:"userId,omitempty"`
	Content string `json:"content,omitempty"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["view"]
	switch name {
	case views.ViewInbox, views.ViewConnections, views.ViewUnread:
	default:
		writeError(w, errUnknownViewFor(name))
		return
	}
	var openUser int64
	if raw := r.URL.Query().Get("user"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			badRequest(w, "user must be a positive id")
			return
		}
		openUser = id
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already replied
		s.logger.Warn("ws_upgrade_failed", "error", err)
		return
	}
	sess := &wsSession{id: uuid.NewString(), view: name, conn: conn}
	s.hub.add(sess)

	// polling lives exactly as long as the socket
	ctx, cancel := context.WithCancel(context.Background())
	notify := views.NotifierFunc(func(u views.Update) {
		if err := sess.Send(u); err != nil {
			s.logger.Debug("ws_send_failed", "session", sess.id, "error", err)
		}
		s.fanout.Publish(u)
	})
	deps := s.viewDeps(notify)

	var view mounted
	var inbox *views.MessagesView
	switch name {
	case views.ViewInbox:
		inbox = views.NewMessagesView(s.backend, deps)
		inbox.Mount(ctx, openUser)
		view = inbox
	case views.ViewConnections:
		cv := views.NewConnectionsView(s.backend, deps)
		cv.Mount(ctx)
		view = cv
	case views.ViewUnread:
		ub := views.NewUnreadBadge(s.backend, deps)
		ub.Mount(ctx)
		view = ub
	}
	s.logger.Info("view_mounted", "view", name, "session", sess.id)

	defer func() {
		cancel()
		view.Unmount()
		s.hub.remove(sess.id)
		_ = conn.Close()
		s.logger.Info("view_unmounted", "view", name, "session", sess.id)
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if inbox == nil {
			continue
		}
		var cmd wsCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			continue
		}
		switch cmd.Action {
		case "select":
			_ = inbox.Select(ctx, cmd.UserID)
		case "send":
			if cmd.UserID > 0 {
				_ = inbox.SendTo(ctx, cmd.UserID, cmd.Content)
			} else {
				_ = inbox.Send(ctx, cmd.Content)
			}
		case "dismiss":
			inbox.DismissError()
		}
	}
}
