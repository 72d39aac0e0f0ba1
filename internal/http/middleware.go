package httpapi

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/example/carpool-client/internal/observability"
	"github.com/example/carpool-client/internal/views"
)

type contextKey string

const requestIDKey contextKey = "request-id"

func (s *Server) registerMiddleware() {
	s.mux.Use(s.recoverMiddleware)
	s.mux.Use(s.requestIDMiddleware)
	s.mux.Use(s.accessMiddleware)
}

// requestIDMiddleware keeps a caller's X-Request-ID or mints one and echoes
// it back.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		ctx := context.WithValue(r.Context(), requestIDKey, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// accessMiddleware counts and logs every request by the screen it touched.
// Health checks and scrapes log at debug.
func (s *Server) accessMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)

		view := viewLabel(r)
		status := strconv.Itoa(ww.status)
		observability.HTTPRequestsTotal.WithLabelValues(r.Method, view, status).Inc()
		observability.HTTPRequestDuration.WithLabelValues(r.Method, view, status).Observe(elapsed.Seconds())

		level := slog.LevelInfo
		if view == "system" {
			level = slog.LevelDebug
		}
		s.logger.Log(r.Context(), level, "gateway_request",
			"method", r.Method,
			"view", view,
			"route", routeTemplate(r),
			"status", ww.status,
			"duration_ms", elapsed.Milliseconds(),
			"authenticated", s.session.Snapshot().Authenticated,
			"request_id", requestIDFromContext(r.Context()),
			"remote_addr", remoteHost(r),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", "error", rec, "view", viewLabel(r), "path", r.URL.Path)
				writeJSON(w, http.StatusInternalServerError, errorPayload{Error: errorBody{Kind: "internal", Message: "internal error"}})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (r *responseWriter) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection.
func (r *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func requestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

func routeTemplate(r *http.Request) string {
	if current := mux.CurrentRoute(r); current != nil {
		if tmpl, err := current.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return r.URL.Path
}

// viewLabel names the screen a request belongs to: "conversations" for
// /views/conversations/7, "ws:inbox" for a mounted inbox socket, "session"
// for login and logout, and "system" for health checks and metrics. Unknown paths
// collapse to "other" to keep label cardinality bounded.
func viewLabel(r *http.Request) string {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch parts[0] {
	case "views":
		if len(parts) > 1 && knownRESTViews[parts[1]] {
			return parts[1]
		}
	case "ws":
		if len(parts) > 1 && wsViews[parts[1]] {
			return "ws:" + parts[1]
		}
	case "session":
		return "session"
	case "healthz", "ready", "metrics":
		return "system"
	}
	return "other"
}

var knownRESTViews = map[string]bool{
	"search":            true,
	"connections":       true,
	"conversations":     true,
	"unread":            true,
	"groups":            true,
	"my-group-requests": true,
}

var wsViews = map[string]bool{
	views.ViewInbox:       true,
	views.ViewConnections: true,
	views.ViewUnread:      true,
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
