package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/carpool-client/internal/api"
	"github.com/example/carpool-client/internal/events"
	"github.com/example/carpool-client/internal/logging"
	"github.com/example/carpool-client/internal/session"
	"github.com/example/carpool-client/internal/views"
)

// backendStub fakes the carpool backend just enough for the gateway.
type backendStub struct {
	mu    sync.Mutex
	calls map[string]int
	votes []string
	posts []string

	// holdThread, when set, blocks GET /conversations/5/messages until closed.
	holdThread chan struct{}
	held       chan struct{}
}

func (b *backendStub) hit(key string) {
	b.mu.Lock()
	b.calls[key]++
	b.mu.Unlock()
}

func (b *backendStub) count(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[key]
}

func (b *backendStub) handler() http.Handler {
	mux := http.NewServeMux()
	write := func(w http.ResponseWriter, body string) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("password") != "secret1" {
			w.WriteHeader(http.StatusUnauthorized)
			write(w, `{"detail":"Invalid email or password"}`)
			return
		}
		write(w, `{"access_token":"T","token_type":"bearer"}`)
	})
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer T" {
			w.WriteHeader(http.StatusUnauthorized)
			write(w, `{"detail":"Could not validate credentials"}`)
			return
		}
		write(w, `{"id":7,"firstName":"Ada","lastName":"L","role":"driver"}`)
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		b.hit("search:" + r.URL.Query().Get("type"))
		write(w, `[{"id":2,"firstName":"B","lastName":"C","matchScore":{"sameHomeCity":true}}]`)
	})
	mux.HandleFunc("/conversations", func(w http.ResponseWriter, r *http.Request) {
		b.hit("conversations")
		write(w, `[{"id":1,"otherUser":{"id":2,"firstName":"B","lastName":"C"},"unreadCount":2}]`)
	})
	mux.HandleFunc("/conversations/2/messages", func(w http.ResponseWriter, r *http.Request) {
		b.hit("messages:" + r.Method)
		if r.Method == http.MethodPost {
			write(w, `{"id":2,"senderId":7,"content":"hey"}`)
			return
		}
		write(w, `{"conversationId":1,"messages":[{"id":1,"senderId":2,"content":"hi"}]}`)
	})
	for _, id := range []string{"5", "7"} {
		path := "/conversations/" + id + "/messages"
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				b.mu.Lock()
				b.posts = append(b.posts, r.URL.Path)
				b.mu.Unlock()
				write(w, `{"id":3,"senderId":7,"content":"hey"}`)
				return
			}
			if path == "/conversations/5/messages" && b.holdThread != nil {
				b.held <- struct{}{}
				<-b.holdThread
			}
			write(w, `{"conversationId":1,"messages":[]}`)
		})
	}
	mux.HandleFunc("/groups/5/requests/9/vote", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		b.mu.Lock()
		b.votes = append(b.votes, r.PostForm.Get("vote"))
		b.mu.Unlock()
		write(w, `{"request_approved":false,"request_rejected":false,"votes_received":1,"votes_required":2}`)
	})
	mux.HandleFunc("/groups/5", func(w http.ResponseWriter, r *http.Request) {
		write(w, `{"id":5,"name":"Morning","status":"open","members":[{"id":1,"isSelf":true,"user":{"id":7,"name":"Ada"}}]}`)
	})
	mux.HandleFunc("/groups/5/requests", func(w http.ResponseWriter, r *http.Request) {
		write(w, `[]`)
	})
	return mux
}

type fixture struct {
	backend *backendStub
	store   *session.Store
	server  *Server
	gateway *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	stub := &backendStub{calls: map[string]int{}}
	upstream := httptest.NewServer(stub.handler())
	t.Cleanup(upstream.Close)

	logger := logging.Discard()
	store := session.New(session.NewMemoryTokens(), logger)
	client := api.NewClient(upstream.URL, store, api.WithLogger(logger))
	store.SetVerifier(client)

	fanout := events.NewFanout(nil, logger)
	t.Cleanup(func() { _ = fanout.Close() })
	srv := NewServer(client, store, fanout, logger, Options{
		Intervals:         views.Intervals{Messages: 10 * time.Millisecond, Connections: 10 * time.Millisecond, Unread: 10 * time.Millisecond},
		DefaultGroupSeats: 4,
	})
	gw := httptest.NewServer(srv)
	t.Cleanup(func() {
		srv.Shutdown()
		gw.Close()
	})
	return &fixture{backend: stub, store: store, server: srv, gateway: gw}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, f.gateway.URL+path, rdr)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	raw, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(raw, &out)
	return resp, out
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	resp, body := f.do(t, http.MethodPost, "/session/login", map[string]string{"email": "ada@example.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, resp.StatusCode, "%v", body)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.gateway.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, resp.Header.Get("X-Request-ID"), 36)
}

func TestReadyReflectsSession(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	f.login(t)
	resp, _ = f.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLoginAndLogout(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/session/login", map[string]string{"email": "ada@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Invalid email or password", body["error"].(map[string]any)["message"])

	f.login(t)
	_, body = f.do(t, http.MethodGet, "/session", nil)
	assert.Equal(t, true, body["authenticated"])
	assert.Equal(t, "Ada", body["user"].(map[string]any)["firstName"])

	resp, body = f.do(t, http.MethodPost, "/session/logout", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["authenticated"])
}

func TestViewsRequireSession(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/views/search?type=office", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	errBody := body["error"].(map[string]any)
	assert.Equal(t, "unauthenticated", errBody["kind"])
	assert.Equal(t, "Not authenticated", errBody["message"])
	assert.Zero(t, f.backend.count("search:office"))
}

func TestSearchView(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	resp, body := f.do(t, http.MethodGet, "/views/search?type=office", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, f.backend.count("search:office"))
	results := body["results"].(map[string]any)["value"].([]any)
	assert.Len(t, results, 1)

	resp, _ = f.do(t, http.MethodGet, "/views/search?type=planet", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSendMessageSelectsThread(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	resp, body := f.do(t, http.MethodPost, "/views/conversations/2/messages", map[string]string{"content": "hey"})
	require.Equal(t, http.StatusOK, resp.StatusCode, "%v", body)
	assert.Equal(t, float64(2), body["selected"])
	assert.Equal(t, 1, f.backend.count("messages:POST"))
	assert.Equal(t, 2, f.backend.count("messages:GET"), "initial load plus reload after send")
}

func TestSendGoesToPathUserWhileSelectionMoves(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.backend.holdThread = make(chan struct{})
	f.backend.held = make(chan struct{}, 1)

	sent := make(chan int, 1)
	go func() {
		resp, err := http.Post(f.gateway.URL+"/views/conversations/5/messages", "application/json", strings.NewReader(`{"content":"for five"}`))
		if err != nil {
			sent <- 0
			return
		}
		resp.Body.Close()
		sent <- resp.StatusCode
	}()

	select {
	case <-f.backend.held:
	case <-time.After(time.Second):
		t.Fatal("thread with user 5 was never requested")
	}
	resp, _ := f.do(t, http.MethodGet, "/views/conversations/7", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	close(f.backend.holdThread)

	require.Equal(t, http.StatusOK, <-sent)
	f.backend.mu.Lock()
	defer f.backend.mu.Unlock()
	assert.Equal(t, []string{"/conversations/5/messages"}, f.backend.posts)
}

func TestVoteThroughGateway(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	resp, body := f.do(t, http.MethodPost, "/views/groups/5/requests/9/vote", map[string]string{"vote": "approve"})
	require.Equal(t, http.StatusOK, resp.StatusCode, "%v", body)
	assert.Equal(t, "Vote recorded. 1/2 votes.", body["message"])
	f.backend.mu.Lock()
	assert.Equal(t, []string{"approve"}, f.backend.votes)
	f.backend.mu.Unlock()

	resp, _ = f.do(t, http.MethodPost, "/views/groups/5/requests/9/vote", map[string]string{"vote": "maybe"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUnknownWebsocketView(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/ws/payments", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"].(map[string]any)["message"], "unknown view")
}

func TestInboxSocketMountsAndUnmounts(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	url := "ws" + strings.TrimPrefix(f.gateway.URL, "http") + "/ws/inbox?user=2"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return f.server.Hub().Len() == 1 }, time.Second, time.Millisecond)

	// the inbox opens user 2's thread once the list shows it
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var selected bool
	for !selected {
		var u views.Update
		require.NoError(t, conn.ReadJSON(&u))
		assert.Equal(t, views.ViewInbox, u.View)
		payload, _ := u.Payload.(map[string]any)
		selected = payload["selected"] == float64(2)
	}
	require.Eventually(t, func() bool { return f.backend.count("conversations") >= 3 }, time.Second, time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return f.server.Hub().Len() == 0 }, time.Second, time.Millisecond)
	polled := f.backend.count("conversations")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, polled, f.backend.count("conversations"), "closing the socket stops polling")
}

func TestWriteErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		kind   string
	}{
		{api.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
		{&api.Error{Kind: api.KindInvalidInput, Message: "bad"}, http.StatusBadRequest, "invalid_input"},
		{&api.Error{Kind: api.KindDuplicateAccount, Message: "Account already exists"}, http.StatusConflict, "duplicate_account"},
		{&api.Error{Kind: api.KindHTTP, Status: 404, Message: "Group not found"}, http.StatusNotFound, "http"},
		{&api.Error{Kind: api.KindHTTP, Status: 500, Message: "boom"}, http.StatusBadGateway, "http"},
		{&api.Error{Kind: api.KindNetwork, Message: "Search failed"}, http.StatusBadGateway, "network"},
		{errors.New("other"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		writeError(rec, tt.err)
		assert.Equal(t, tt.status, rec.Code, tt.err.Error())
		var body errorPayload
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, tt.kind, body.Error.Kind)
		assert.Equal(t, tt.err.Error(), body.Error.Message)
	}
}

func TestHubBroadcastFiltersByView(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	url := "ws" + strings.TrimPrefix(f.gateway.URL, "http") + "/ws/unread"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return f.server.Hub().Len() == 1 }, time.Second, time.Millisecond)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var u views.Update
	require.NoError(t, conn.ReadJSON(&u))
	assert.Equal(t, views.ViewUnread, u.View)
	assert.Equal(t, map[string]any{"count": float64(2)}, u.Payload)

	// a logout is broadcast to every socket
	require.NoError(t, f.store.Logout(context.Background()))
	f.server.fanout.Notify(views.Update{View: views.ViewSession, Kind: views.UpdateState, Payload: f.store.Snapshot()})
	for {
		require.NoError(t, conn.ReadJSON(&u))
		if u.View == views.ViewSession {
			break
		}
	}
	assert.Equal(t, false, u.Payload.(map[string]any)["authenticated"])
}

func TestViewLabel(t *testing.T) {
	cases := map[string]string{
		"/views/conversations/7/messages": "conversations",
		"/views/groups/5/requests/9/vote": "groups",
		"/views/my-group-requests":        "my-group-requests",
		"/views/payments":                 "other",
		"/ws/inbox":                       "ws:inbox",
		"/ws/payments":                    "other",
		"/session/login":                  "session",
		"/healthz":                        "system",
		"/metrics":                        "system",
		"/":                               "other",
	}
	for path, want := range cases {
		r := httptest.NewRequest(http.MethodGet, path, nil)
		assert.Equal(t, want, viewLabel(r), path)
	}
}
