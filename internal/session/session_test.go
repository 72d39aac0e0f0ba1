package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/carpool-client/internal/api"
	"github.com/example/carpool-client/internal/logging"
	"github.com/example/carpool-client/internal/models"
)

type fakeVerifier struct {
	user  *models.UserProfile
	err   error
	calls atomic.Int32
}

func (f *fakeVerifier) GetCurrentUser(context.Context) (*models.UserProfile, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	u := *f.user
	return &u, nil
}

type fakeAuth struct {
	token string
	err   error
}

func (f fakeAuth) Login(context.Context, string, string) (*models.TokenResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.TokenResponse{AccessToken: f.token}, nil
}

func newStore(t *testing.T, v UserVerifier) (*Store, *MemoryTokens) {
	t.Helper()
	tokens := NewMemoryTokens()
	s := New(tokens, logging.Discard())
	s.SetVerifier(v)
	return s, tokens
}

func TestLoadingUntilFirstCheck(t *testing.T) {
	s, _ := newStore(t, &fakeVerifier{})
	assert.True(t, s.Snapshot().Loading)

	err := s.CheckAuth(context.Background())
	assert.ErrorIs(t, err, api.ErrUnauthenticated)
	snap := s.Snapshot()
	assert.False(t, snap.Loading)
	assert.False(t, snap.Authenticated)
}

func TestCheckAuthSuccess(t *testing.T) {
	v := &fakeVerifier{user: &models.UserProfile{ID: 7, FirstName: "Ada"}}
	s, tokens := newStore(t, v)
	require.NoError(t, tokens.Save(context.Background(), "T"))

	require.NoError(t, s.CheckAuth(context.Background()))
	snap := s.Snapshot()
	assert.True(t, snap.Authenticated)
	require.NotNil(t, snap.User)
	assert.Equal(t, int64(7), snap.User.ID)

	// idempotent
	require.NoError(t, s.CheckAuth(context.Background()))
	assert.Equal(t, snap, s.Snapshot())
}

func TestCheckAuthFailureClearsToken(t *testing.T) {
	v := &fakeVerifier{err: &api.Error{Kind: api.KindHTTP, Status: 401, Message: "Could not validate credentials"}}
	s, tokens := newStore(t, v)
	require.NoError(t, tokens.Save(context.Background(), "stale"))

	err := s.CheckAuth(context.Background())
	require.Error(t, err)
	tok, _ := tokens.Load(context.Background())
	assert.Empty(t, tok)
	assert.False(t, s.Authenticated())
	assert.Nil(t, s.User())

	err = s.CheckAuth(context.Background())
	assert.ErrorIs(t, err, api.ErrUnauthenticated)
	assert.Equal(t, int32(1), v.calls.Load(), "no token means no backend call")
}

func TestCheckAuthCancelledKeepsToken(t *testing.T) {
	v := &fakeVerifier{err: context.Canceled}
	s, tokens := newStore(t, v)
	require.NoError(t, tokens.Save(context.Background(), "T"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, s.CheckAuth(ctx))
	tok, _ := tokens.Load(context.Background())
	assert.Equal(t, "T", tok)
}

func TestLoginWithUserSkipsVerification(t *testing.T) {
	v := &fakeVerifier{user: &models.UserProfile{ID: 1}}
	s, tokens := newStore(t, v)

	require.NoError(t, s.Login(context.Background(), "T", &models.UserProfile{ID: 9}))
	assert.Zero(t, v.calls.Load())
	assert.Equal(t, int64(9), s.User().ID)
	tok, _ := tokens.Load(context.Background())
	assert.Equal(t, "T", tok)
}

func TestLoginWithoutUserFetchesProfile(t *testing.T) {
	v := &fakeVerifier{user: &models.UserProfile{ID: 3}}
	s, _ := newStore(t, v)

	require.NoError(t, s.Login(context.Background(), "T", nil))
	assert.Equal(t, int32(1), v.calls.Load())
	assert.Equal(t, int64(3), s.User().ID)
	assert.True(t, s.Authenticated())
}

func TestLoginRejectsEmptyToken(t *testing.T) {
	s, _ := newStore(t, &fakeVerifier{})
	require.Error(t, s.Login(context.Background(), "", nil))
	assert.False(t, s.Authenticated())
}

func TestSignIn(t *testing.T) {
	v := &fakeVerifier{user: &models.UserProfile{ID: 3}}
	s, tokens := newStore(t, v)

	require.NoError(t, s.SignIn(context.Background(), fakeAuth{token: "T"}, "a@b.com", "pw"))
	tok, _ := tokens.Load(context.Background())
	assert.Equal(t, "T", tok)
	assert.True(t, s.Authenticated())

	s2, _ := newStore(t, v)
	loginErr := &api.Error{Kind: api.KindHTTP, Status: 401, Message: "Invalid email or password"}
	err := s2.SignIn(context.Background(), fakeAuth{err: loginErr}, "a@b.com", "bad")
	assert.Equal(t, "Invalid email or password", err.Error())
	assert.False(t, s2.Authenticated())
}

func TestLogoutIsLocal(t *testing.T) {
	v := &fakeVerifier{user: &models.UserProfile{ID: 3}}
	s, tokens := newStore(t, v)
	require.NoError(t, s.Login(context.Background(), "T", nil))
	calls := v.calls.Load()

	require.NoError(t, s.Logout(context.Background()))
	assert.False(t, s.Authenticated())
	assert.Nil(t, s.User())
	tok, _ := tokens.Load(context.Background())
	assert.Empty(t, tok)
	assert.Equal(t, calls, v.calls.Load())
}

func TestExpireOnlyOn401(t *testing.T) {
	s, tokens := newStore(t, &fakeVerifier{})
	require.NoError(t, s.Login(context.Background(), "T", &models.UserProfile{ID: 1}))

	assert.False(t, s.Expire(context.Background(), &api.Error{Kind: api.KindHTTP, Status: 500}))
	assert.False(t, s.Expire(context.Background(), &api.Error{Kind: api.KindNetwork}))
	assert.False(t, s.Expire(context.Background(), errors.New("other")))
	assert.True(t, s.Authenticated())

	assert.True(t, s.Expire(context.Background(), &api.Error{Kind: api.KindHTTP, Status: 401}))
	assert.False(t, s.Authenticated())
	tok, _ := tokens.Load(context.Background())
	assert.Empty(t, tok)
}

func TestRefreshUserKeepsSessionOnFailure(t *testing.T) {
	v := &fakeVerifier{user: &models.UserProfile{ID: 1, FirstName: "Old"}}
	s, _ := newStore(t, v)
	require.NoError(t, s.Login(context.Background(), "T", nil))

	v.user = &models.UserProfile{ID: 1, FirstName: "New"}
	s.RefreshUser(context.Background())
	assert.Equal(t, "New", s.User().FirstName)

	v.err = errors.New("down")
	s.RefreshUser(context.Background())
	assert.True(t, s.Authenticated())
	assert.Equal(t, "New", s.User().FirstName)
}

func TestOnChangeHook(t *testing.T) {
	s, _ := newStore(t, &fakeVerifier{user: &models.UserProfile{ID: 1}})
	var got []Snapshot
	s.OnChange(func(snap Snapshot) { got = append(got, snap) })

	require.NoError(t, s.Login(context.Background(), "T", &models.UserProfile{ID: 1}))
	require.NoError(t, s.Logout(context.Background()))

	require.Len(t, got, 2)
	assert.True(t, got[0].Authenticated)
	assert.False(t, got[1].Authenticated)
}

func TestSnapshotIsACopy(t *testing.T) {
	s, _ := newStore(t, &fakeVerifier{})
	require.NoError(t, s.Login(context.Background(), "T", &models.UserProfile{FirstName: "A"}))
	snap := s.Snapshot()
	snap.User.FirstName = "B"
	assert.Equal(t, "A", s.User().FirstName)
}

func TestClaims(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second).UTC()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":     "ada@example.com",
		"user_id": 7,
		"exp":     exp.Unix(),
	}).SignedString([]byte("server-only-secret"))
	require.NoError(t, err)

	s, _ := newStore(t, &fakeVerifier{})
	_, err = s.Claims(context.Background())
	assert.ErrorIs(t, err, api.ErrUnauthenticated)

	require.NoError(t, s.Login(context.Background(), signed, &models.UserProfile{ID: 7}))
	c, err := s.Claims(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", c.Subject)
	assert.Equal(t, int64(7), c.UserID)
	assert.Equal(t, exp, c.ExpiresAt)
	assert.False(t, c.Expired(time.Now()))
	assert.True(t, c.Expired(exp.Add(time.Second)))

	_, err = ParseClaims("not-a-jwt")
	assert.Error(t, err)
}

// The store is the client's token source: no token, no request.
func TestStoreGatesClientCalls(t *testing.T) {
	var hits atomic.Int32
	var auth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		auth.Store(r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":7,"firstName":"Ada","lastName":"L"}`))
	}))
	defer srv.Close()

	tokens := NewMemoryTokens()
	s := New(tokens, logging.Discard())
	client := api.NewClient(srv.URL, s, api.WithLogger(logging.Discard()))
	s.SetVerifier(client)

	_, err := client.SearchCarpools(context.Background(), models.SearchOffice)
	assert.ErrorIs(t, err, api.ErrUnauthenticated)
	assert.Zero(t, hits.Load())

	require.NoError(t, s.Login(context.Background(), "T", nil))
	assert.Equal(t, "Bearer T", auth.Load())
	assert.Equal(t, int64(7), s.User().ID)

	require.NoError(t, s.Logout(context.Background()))
	_, err = client.GetCurrentUser(context.Background())
	assert.ErrorIs(t, err, api.ErrUnauthenticated)
	assert.Equal(t, int32(1), hits.Load())
}
