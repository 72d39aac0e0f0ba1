package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/carpool-client/internal/logging"
	"github.com/example/carpool-client/internal/models"
)

// recorder is a fake backend that remembers the last request it saw.
type recorder struct {
	hits     atomic.Int32
	method   string
	path     string
	query    string
	auth     string
	ctype    string
	body     string
	status   int
	response string
}

func (r *recorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.hits.Add(1)
	r.method = req.Method
	r.path = req.URL.Path
	r.query = req.URL.RawQuery
	r.auth = req.Header.Get("Authorization")
	r.ctype = req.Header.Get("Content-Type")
	b, _ := io.ReadAll(req.Body)
	r.body = string(b)
	status := r.status
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(r.response))
}

func newTestClient(t *testing.T, rec *recorder, token string) *Client {
	t.Helper()
	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, StaticToken(token), WithLogger(logging.Discard()))
}

func TestAuthenticatedCallsFailFastWithoutToken(t *testing.T) {
	rec := &recorder{response: `[]`}
	c := newTestClient(t, rec, "")
	ctx := context.Background()

	calls := map[string]func() error{
		"current user": func() error { _, err := c.GetCurrentUser(ctx); return err },
		"search":       func() error { _, err := c.SearchCarpools(ctx, models.SearchOffice); return err },
		"send request": func() error { _, err := c.SendConnectionRequest(ctx, 2); return err },
		"list requests": func() error {
			_, err := c.GetConnectionRequests(ctx)
			return err
		},
		"accept":        func() error { _, err := c.AcceptConnectionRequest(ctx, 1); return err },
		"reject":        func() error { _, err := c.RejectConnectionRequest(ctx, 1); return err },
		"connected":     func() error { _, err := c.GetConnectedUsers(ctx); return err },
		"conversations": func() error { _, err := c.GetConversations(ctx); return err },
		"messages":      func() error { _, err := c.GetMessages(ctx, 3); return err },
		"send message":  func() error { _, err := c.SendMessage(ctx, 3, "hi"); return err },
		"create group":  func() error { _, err := c.CreateCarpoolGroup(ctx, "Morning", 4); return err },
		"groups":        func() error { _, err := c.GetUserGroups(ctx); return err },
		"group detail":  func() error { _, err := c.GetGroupDetails(ctx, 5); return err },
		"open groups":   func() error { _, err := c.SearchOpenGroups(ctx, 3); return err },
		"join":          func() error { _, err := c.RequestToJoinGroup(ctx, 5); return err },
		"group requests": func() error {
			_, err := c.GetGroupRequests(ctx, 5)
			return err
		},
		"vote":        func() error { _, err := c.VoteOnGroupRequest(ctx, 5, 9, models.VoteApprove); return err },
		"leave":       func() error { return c.LeaveGroup(ctx, 5) },
		"close":       func() error { return c.CloseGroup(ctx, 5) },
		"my requests": func() error { _, err := c.GetMyGroupRequests(ctx); return err },

		// bad arguments still report the missing session first
		"search bad type":      func() error { _, err := c.SearchCarpools(ctx, "zip"); return err },
		"send blank message":   func() error { _, err := c.SendMessage(ctx, 3, " "); return err },
		"create unnamed group": func() error { _, err := c.CreateCarpoolGroup(ctx, "", 4); return err },
		"negative detour":      func() error { _, err := c.SearchOpenGroups(ctx, -1); return err },
		"vote maybe":           func() error { _, err := c.VoteOnGroupRequest(ctx, 5, 9, "maybe"); return err },
	}

	for name, fn := range calls {
		t.Run(name, func(t *testing.T) {
			err := fn()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUnauthenticated), "got %v", err)
			assert.Equal(t, "Not authenticated", err.Error())
		})
	}
	assert.Zero(t, rec.hits.Load(), "no request may reach the backend")
}

func TestSearchCarpoolsWithoutTokenNeverSends(t *testing.T) {
	rec := &recorder{response: `[]`}
	c := newTestClient(t, rec, "")

	_, err := c.SearchCarpools(context.Background(), "office")
	require.Error(t, err)
	assert.Equal(t, KindUnauthenticated, KindOf(err))
	assert.Zero(t, rec.hits.Load())
}

func TestLoginSendsFormAndReturnsToken(t *testing.T) {
	rec := &recorder{response: `{"access_token":"T","token_type":"bearer","user_id":7}`}
	c := newTestClient(t, rec, "")

	tok, err := c.Login(context.Background(), "a@b.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "T", tok.AccessToken)
	assert.Equal(t, int64(7), tok.UserID)

	assert.Equal(t, http.MethodPost, rec.method)
	assert.Equal(t, "/login", rec.path)
	assert.Equal(t, "application/x-www-form-urlencoded", rec.ctype)
	assert.Contains(t, rec.body, "username=a%40b.com")
	assert.Contains(t, rec.body, "password=secret1")
	assert.Empty(t, rec.auth)
}

func TestLoginFailureUsesDetail(t *testing.T) {
	rec := &recorder{status: http.StatusUnauthorized, response: `{"detail":"Invalid email or password"}`}
	c := newTestClient(t, rec, "")

	_, err := c.Login(context.Background(), "a@b.com", "nope")
	require.Error(t, err)
	assert.Equal(t, "Invalid email or password", err.Error())
	assert.Equal(t, http.StatusUnauthorized, StatusOf(err))
	assert.Equal(t, KindHTTP, KindOf(err))
}

func TestLoginWithoutTokenInBodyFails(t *testing.T) {
	rec := &recorder{response: `{"token_type":"bearer"}`}
	c := newTestClient(t, rec, "")

	_, err := c.Login(context.Background(), "a@b.com", "secret1")
	require.Error(t, err)
	assert.Equal(t, "Login failed", err.Error())
}

func TestGetCurrentUserSendsBearer(t *testing.T) {
	rec := &recorder{response: `{"id":7,"firstName":"Ada","lastName":"L","role":"driver","companyAddress":{"officeName":"HQ","city":"Austin"},"homeAddress":null}`}
	c := newTestClient(t, rec, "T")

	u, err := c.GetCurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer T", rec.auth)
	assert.Equal(t, "/me", rec.path)
	assert.Equal(t, int64(7), u.ID)
	assert.Equal(t, models.RoleDriver, u.Role)
	require.NotNil(t, u.CompanyAddress)
	assert.Equal(t, "HQ", u.CompanyAddress.OfficeName)
	assert.Nil(t, u.HomeAddress)
}

func TestErrorMessageExtraction(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		expected string
		detail   string
	}{
		{"detail string", 400, `{"detail":"Office name not set in your profile"}`, "Office name not set in your profile", "Office name not set in your profile"},
		{"message field", 500, `{"message":"boom"}`, "boom", "boom"},
		{"validation list", 422, `{"detail":[{"loc":["query","type"],"msg":"field required"}]}`, "field required", "field required"},
		{"empty body", 502, ``, "Search failed", ""},
		{"html body", 502, `<html>bad gateway</html>`, "Search failed", ""},
		{"empty detail", 400, `{"detail":""}`, "Search failed", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{status: tt.status, response: tt.body}
			c := newTestClient(t, rec, "T")

			_, err := c.SearchCarpools(context.Background(), models.SearchCity)
			require.Error(t, err)
			var apiErr *Error
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, KindHTTP, apiErr.Kind)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.expected, apiErr.Message)
			assert.Equal(t, tt.detail, apiErr.Detail)
		})
	}
}

func TestUndecodableSuccessIsNetworkFailure(t *testing.T) {
	rec := &recorder{response: `not json`}
	c := newTestClient(t, rec, "T")

	_, err := c.GetConversations(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindNetwork, KindOf(err))
	assert.Equal(t, "Failed to fetch conversations", err.Error())
}

func TestNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := NewClient(srv.URL, StaticToken("T"), WithLogger(logging.Discard()))

	_, err := c.GetConnectedUsers(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindNetwork, KindOf(err))
	assert.Equal(t, "Failed to fetch connected users", err.Error())
	assert.NotNil(t, errors.Unwrap(err))
}

func TestSearchCarpoolsQueryAndInvalidType(t *testing.T) {
	rec := &recorder{response: `[{"id":2,"firstName":"B","lastName":"C","matchScore":{"sameHomeCity":true,"sameHomeStreet":false,"sameHomeZipcode":true}}]`}
	c := newTestClient(t, rec, "T")

	res, err := c.SearchCarpools(context.Background(), models.SearchStreet)
	require.NoError(t, err)
	assert.Equal(t, "/search", rec.path)
	assert.Equal(t, "type=street", rec.query)
	require.Len(t, res, 1)
	assert.True(t, res[0].MatchScore.SameHomeCity)
	assert.True(t, res[0].MatchScore.SameHomeZipcode)

	hits := rec.hits.Load()
	_, err = c.SearchCarpools(context.Background(), "planet")
	assert.Equal(t, KindInvalidInput, KindOf(err))
	assert.Equal(t, hits, rec.hits.Load())
}

func TestConnectionRequestEndpoints(t *testing.T) {
	rec := &recorder{response: `{"id":11,"status":"pending","createdAt":"2024-01-02T03:04:05.000001"}`}
	c := newTestClient(t, rec, "T")
	ctx := context.Background()

	req, err := c.SendConnectionRequest(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(11), req.ID)
	assert.Equal(t, "/connection-requests", rec.path)
	assert.Equal(t, "receiverId=42", rec.body)

	_, err = c.AcceptConnectionRequest(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPatch, rec.method)
	assert.Equal(t, "/connection-requests/11/accept", rec.path)

	rec.response = `{"message":"Connection request rejected"}`
	msg, err := c.RejectConnectionRequest(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, "/connection-requests/11/reject", rec.path)
	assert.Equal(t, "Connection request rejected", msg)

	rec.response = `{"received":[{"id":1,"status":"pending","createdAt":"2024-01-02T03:04:05","sender":{"id":3,"firstName":"S","lastName":"T"}}],"sent":[]}`
	list, err := c.GetConnectionRequests(ctx)
	require.NoError(t, err)
	require.Len(t, list.Received, 1)
	assert.Equal(t, int64(3), list.Received[0].Sender.ID)
	assert.Empty(t, list.Sent)
}

func TestMessagingEndpoints(t *testing.T) {
	rec := &recorder{response: `{"conversationId":4,"messages":[{"id":1,"senderId":3,"content":"yo","isRead":true,"createdAt":"2024-01-02T03:04:05"}]}`}
	c := newTestClient(t, rec, "T")
	ctx := context.Background()

	th, err := c.GetMessages(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "/conversations/3/messages", rec.path)
	assert.Equal(t, int64(4), th.ConversationID)
	require.Len(t, th.Messages, 1)

	rec.response = `{"id":2,"conversationId":4,"senderId":7,"content":"hello there","isRead":false,"createdAt":"2024-01-02T03:04:06"}`
	m, err := c.SendMessage(ctx, 3, "hello there")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, rec.method)
	assert.Equal(t, "content=hello+there", rec.body)
	assert.Equal(t, "hello there", m.Content)

	hits := rec.hits.Load()
	_, err = c.SendMessage(ctx, 3, "   ")
	assert.Equal(t, KindInvalidInput, KindOf(err))
	assert.Equal(t, hits, rec.hits.Load())
}

func TestGetUnreadCountSums(t *testing.T) {
	rec := &recorder{response: `[{"id":1,"otherUser":{"id":2},"unreadCount":2},{"id":2,"otherUser":{"id":3},"unreadCount":0},{"id":3,"otherUser":{"id":4},"unreadCount":5}]`}
	c := newTestClient(t, rec, "T")
	assert.Equal(t, 7, c.GetUnreadCount(context.Background()))
}

func TestGetUnreadCountNeverFails(t *testing.T) {
	rec := &recorder{status: http.StatusInternalServerError, response: `{"detail":"db down"}`}
	c := newTestClient(t, rec, "T")
	assert.Equal(t, 0, c.GetUnreadCount(context.Background()))

	rec2 := &recorder{response: `[{"id":1,"otherUser":{"id":2},"unreadCount":2}]`}
	anon := newTestClient(t, rec2, "")
	assert.Equal(t, 0, anon.GetUnreadCount(context.Background()))
	assert.Zero(t, rec2.hits.Load())
}

func TestVoteOnGroupRequestPostsForm(t *testing.T) {
	rec := &recorder{response: `{"request_approved":false,"request_rejected":false,"votes_received":1,"votes_required":2}`}
	c := newTestClient(t, rec, "T")

	res, err := c.VoteOnGroupRequest(context.Background(), 5, 9, "approve")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, rec.method)
	assert.Equal(t, "/groups/5/requests/9/vote", rec.path)
	assert.Equal(t, "vote=approve", rec.body)
	assert.Equal(t, 1, res.VotesReceived)
	assert.Equal(t, 2, res.VotesRequired)

	_, err = c.VoteOnGroupRequest(context.Background(), 5, 9, "abstain")
	assert.Equal(t, KindInvalidInput, KindOf(err))
}

func TestGroupEndpoints(t *testing.T) {
	rec := &recorder{response: `{"id":5,"name":"Morning","maxSeats":4,"currentOccupancy":1,"status":"OPEN","detourMiles":0}`}
	c := newTestClient(t, rec, "T")
	ctx := context.Background()

	g, err := c.CreateCarpoolGroup(ctx, "Morning", 4)
	require.NoError(t, err)
	assert.Equal(t, "/groups", rec.path)
	assert.Contains(t, rec.body, "maxSeats=4")
	assert.Contains(t, rec.body, "name=Morning")
	assert.True(t, g.Status.IsOpen())

	rec.response = `{"groups":[{"id":5,"name":"Morning","detourMiles":1.5}]}`
	open, err := c.SearchOpenGroups(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "/groups/open", rec.path)
	assert.Equal(t, "max_detour_miles=3", rec.query)
	require.Len(t, open.Groups, 1)
	assert.Equal(t, 1.5, open.Groups[0].DetourMiles)

	rec.response = `{"message":"left"}`
	require.NoError(t, c.LeaveGroup(ctx, 5))
	assert.Equal(t, http.MethodDelete, rec.method)
	assert.Equal(t, "/groups/5/leave", rec.path)

	require.NoError(t, c.CloseGroup(ctx, 5))
	assert.Equal(t, http.MethodPatch, rec.method)
	assert.Equal(t, "/groups/5/close", rec.path)

	rec.response = `[{"id":9,"groupId":5,"user":{"id":3,"name":"Sam"},"votesReceived":1,"votesRequired":2,"hasVoted":false,"status":"pending"}]`
	reqs, err := c.GetGroupRequests(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "/groups/5/requests", rec.path)
	require.Len(t, reqs, 1)
	assert.Equal(t, "Sam", reqs[0].User.Name)

	_, err = c.GetMyGroupRequests(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/my-group-requests", rec.path)

	rec.response = `{"id":12,"groupId":5,"status":"pending"}`
	jr, err := c.RequestToJoinGroup(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, rec.method)
	assert.Equal(t, "/groups/5/requests", rec.path)
	assert.Equal(t, int64(12), jr.ID)
}

func TestCreateGroupValidatesLocally(t *testing.T) {
	rec := &recorder{}
	c := newTestClient(t, rec, "T")

	_, err := c.CreateCarpoolGroup(context.Background(), " ", 4)
	assert.Equal(t, KindInvalidInput, KindOf(err))
	_, err = c.CreateCarpoolGroup(context.Background(), "Morning", 0)
	assert.Equal(t, KindInvalidInput, KindOf(err))
	assert.Zero(t, rec.hits.Load())
}

func TestRequestIDHeader(t *testing.T) {
	var seen string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("X-Request-ID")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", StaticToken("T"))
	_, err := c.GetUserGroups(context.Background())
	require.NoError(t, err)
	assert.Len(t, seen, 36)
	assert.False(t, strings.HasSuffix(c.BaseURL(), "/"))
}
