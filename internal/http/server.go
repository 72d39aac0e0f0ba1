package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/carpool-client/internal/events"
	"github.com/example/carpool-client/internal/session"
	"github.com/example/carpool-client/internal/views"
)

// Backend is every backend operation the gateway needs. *api.Client
// satisfies it.
type Backend interface {
	session.Authenticator
	views.SearchAPI
	views.ConnectionsAPI
	views.MessagesAPI
	views.UnreadAPI
	views.GroupsAPI
}

// Session is the part of *session.Store the gateway drives.
type Session interface {
	views.Expirer
	Snapshot() session.Snapshot
	CheckAuth(ctx context.Context) error
	SignIn(ctx context.Context, auth session.Authenticator, email, password string) error
	Logout(ctx context.Context) error
}

type Options struct {
	Intervals         views.Intervals
	DefaultGroupSeats int
}

// Server is the local view gateway. REST routes drive one shared instance
// of each view; every websocket gets its own mounted view whose polling
// lives exactly as long as the socket.
type Server struct {
	backend Backend
	session Session
	fanout  *events.Fanout
	hub     *Hub
	logger  *slog.Logger
	opts    Options

	search      *views.SearchView
	connections *views.ConnectionsView
	messages    *views.MessagesView
	unread      *views.UnreadBadge
	groups      *views.GroupsView

	mux *mux.Router
}

func NewServer(backend Backend, sess Session, fanout *events.Fanout, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if fanout == nil {
		fanout = events.NewFanout(nil, logger)
	}
	s := &Server{
		backend: backend,
		session: sess,
		fanout:  fanout,
		hub:     NewHub(logger),
		logger:  logger,
		opts:    opts,
		mux:     mux.NewRouter(),
	}
	deps := s.viewDeps(fanout)
	s.search = views.NewSearchView(backend, deps)
	s.connections = views.NewConnectionsView(backend, deps)
	s.messages = views.NewMessagesView(backend, deps)
	s.unread = views.NewUnreadBadge(backend, deps)
	s.groups = views.NewGroupsView(backend, opts.DefaultGroupSeats, deps)

	// updates made through REST reach the sockets watching the same view
	fanout.Subscribe(s.hub.Broadcast)

	s.routes()
	s.registerMiddleware()
	return s
}

func (s *Server) viewDeps(n views.Notifier) views.Deps {
	return views.Deps{
		Notifier:  n,
		Session:   s.session,
		Logger:    s.logger,
		Intervals: s.opts.Intervals,
	}
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	s.mux.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler())

	s.mux.HandleFunc("/session", s.handleSession).Methods(http.MethodGet)
	s.mux.HandleFunc("/session/login", s.handleLogin).Methods(http.MethodPost)
	s.mux.HandleFunc("/session/logout", s.handleLogout).Methods(http.MethodPost)

	v := s.mux.PathPrefix("/views").Subrouter()
	v.HandleFunc("/search", s.handleSearch).Methods(http.MethodGet)
	v.HandleFunc("/search/connect", s.handleConnect).Methods(http.MethodPost)
	v.HandleFunc("/connections", s.handleConnections).Methods(http.MethodGet)
	v.HandleFunc("/connections/{id:[0-9]+}/accept", s.handleAccept).Methods(http.MethodPost)
	v.HandleFunc("/connections/{id:[0-9]+}/reject", s.handleReject).Methods(http.MethodPost)
	v.HandleFunc("/conversations", s.handleConversations).Methods(http.MethodGet)
	v.HandleFunc("/conversations/{userId:[0-9]+}", s.handleThread).Methods(http.MethodGet)
	v.HandleFunc("/conversations/{userId:[0-9]+}/messages", s.handleSend).Methods(http.MethodPost)
	v.HandleFunc("/unread", s.handleUnread).Methods(http.MethodGet)
	v.HandleFunc("/groups", s.handleGroups).Methods(http.MethodGet)
	v.HandleFunc("/groups", s.handleCreateGroup).Methods(http.MethodPost)
	v.HandleFunc("/groups/open", s.handleOpenGroups).Methods(http.MethodGet)
	v.HandleFunc("/groups/{id:[0-9]+}", s.handleGroup).Methods(http.MethodGet)
	v.HandleFunc("/groups/{id:[0-9]+}/join", s.handleJoin).Methods(http.MethodPost)
	v.HandleFunc("/groups/{id:[0-9]+}/requests/{rid:[0-9]+}/vote", s.handleVote).Methods(http.MethodPost)
	v.HandleFunc("/groups/{id:[0-9]+}/leave", s.handleLeave).Methods(http.MethodPost)
	v.HandleFunc("/groups/{id:[0-9]+}/close", s.handleClose).Methods(http.MethodPost)
	v.HandleFunc("/my-group-requests", s.handleMyGroupRequests).Methods(http.MethodGet)

	s.mux.HandleFunc("/ws/{view}", s.handleWS).Methods(http.MethodGet)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// Hub exposes the websocket registry, mostly for shutdown.
func (s *Server) Hub() *Hub { return s.hub }

// Shutdown stops the polling of the shared views and closes every socket.
func (s *Server) Shutdown() {
	s.connections.Unmount()
	s.messages.Unmount()
	s.unread.Unmount()
	s.hub.CloseAll()
}
