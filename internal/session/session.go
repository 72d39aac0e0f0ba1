package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/carpool-client/internal/api"
	"github.com/example/carpool-client/internal/models"
	"github.com/example/carpool-client/internal/observability"
)

// UserVerifier resolves the token holder. *api.Client satisfies it.
type UserVerifier interface {
	GetCurrentUser(ctx context.Context) (*models.UserProfile, error)
}

// Authenticator exchanges credentials for a token. *api.Client satisfies it.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*models.TokenResponse, error)
}

// Snapshot is a point-in-time copy of the session.
type Snapshot struct {
	Authenticated bool                `json:"authenticated" yaml:"authenticated"`
	Loading       bool                `json:"loading" yaml:"loading"`
	User          *models.UserProfile `json:"user,omitempty" yaml:"user,omitempty"`
}

// ChangeFunc is called after every session state change.
type ChangeFunc func(Snapshot)

// Store owns the session: the persisted token plus the in-memory user and
// flags. It is the api.TokenSource handed to the client, so every
// authenticated call reads the token persisted here.
type Store struct {
	tokens TokenStore
	logger *slog.Logger

	mu            sync.RWMutex
	verifier      UserVerifier
	user          *models.UserProfile
	authenticated bool
	loading       bool
	onChange      []ChangeFunc
}

func New(tokens TokenStore, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{tokens: tokens, logger: logger, loading: true}
}

// SetVerifier wires the client used by CheckAuth. The client itself reads
// tokens from the store, so the two are built in sequence.
func (s *Store) SetVerifier(v UserVerifier) {
	s.mu.Lock()
	s.verifier = v
	s.mu.Unlock()
}

// OnChange registers fn to run after every state change.
func (s *Store) OnChange(fn ChangeFunc) {
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}

// Token implements api.TokenSource.
func (s *Store) Token(ctx context.Context) (string, error) {
	return s.tokens.Load(ctx)
}

// CheckAuth validates the persisted token against the backend. Any failure
// clears the token. Calling it twice in a row yields the same state.
func (s *Store) CheckAuth(ctx context.Context) error {
	token, err := s.tokens.Load(ctx)
	if err != nil {
		s.logger.Warn("session_token_load_failed", "error", err)
	}
	if token == "" {
		s.set(nil, false)
		return api.ErrUnauthenticated
	}

	s.mu.RLock()
	v := s.verifier
	s.mu.RUnlock()
	if v == nil {
		s.set(nil, false)
		return errors.New("session has no verifier")
	}

	user, err := v.GetCurrentUser(ctx)
	if err != nil {
		if ctx.Err() != nil {
			// cancelled by the caller, not rejected by the backend
			return err
		}
		s.logger.Info("session_check_failed", "error", err)
		if cerr := s.tokens.Clear(ctx); cerr != nil {
			s.logger.Warn("session_token_clear_failed", "error", cerr)
		}
		s.set(nil, false)
		return err
	}
	s.set(user, true)
	return nil
}

// Login persists token and marks the session authenticated. With a nil user
// the profile is fetched through CheckAuth.
func (s *Store) Login(ctx context.Context, token string, user *models.UserProfile) error {
	if token == "" {
		return errors.New("empty token")
	}
	if err := s.tokens.Save(ctx, token); err != nil {
		return err
	}
	if user == nil {
		return s.CheckAuth(ctx)
	}
	s.set(user, true)
	return nil
}

// SignIn runs the login call and stores the resulting token.
func (s *Store) SignIn(ctx context.Context, auth Authenticator, email, password string) error {
	tok, err := auth.Login(ctx, email, password)
	if err != nil {
		return err
	}
	return s.Login(ctx, tok.AccessToken, nil)
}

// Logout forgets the token locally. The backend is not told.
func (s *Store) Logout(ctx context.Context) error {
	err := s.tokens.Clear(ctx)
	s.set(nil, false)
	return err
}

// Expire ends the session after the backend rejected the token mid-use.
// Errors other than an HTTP 401 are ignored.
func (s *Store) Expire(ctx context.Context, err error) bool {
	if api.KindOf(err) != api.KindHTTP || api.StatusOf(err) != 401 {
		return false
	}
	s.logger.Info("session_expired", "error", err)
	if cerr := s.tokens.Clear(ctx); cerr != nil {
		s.logger.Warn("session_token_clear_failed", "error", cerr)
	}
	s.set(nil, false)
	return true
}

// RefreshUser re-fetches the profile after it changed. A failure is logged
// and the current session kept.
func (s *Store) RefreshUser(ctx context.Context) {
	s.mu.RLock()
	v, authed := s.verifier, s.authenticated
	s.mu.RUnlock()
	if v == nil || !authed {
		return
	}
	user, err := v.GetCurrentUser(ctx)
	if err != nil {
		s.logger.Warn("session_refresh_failed", "error", err)
		return
	}
	s.set(user, true)
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) User() *models.UserProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

func (s *Store) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{Authenticated: s.authenticated, Loading: s.loading}
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	return snap
}

func (s *Store) set(user *models.UserProfile, authenticated bool) {
	s.mu.Lock()
	s.user = user
	s.authenticated = authenticated
	s.loading = false
	snap := s.snapshotLocked()
	hooks := append([]ChangeFunc(nil), s.onChange...)
	s.mu.Unlock()

	if authenticated {
		observability.SessionAuthenticated.Set(1)
	} else {
		observability.SessionAuthenticated.Set(0)
	}
	for _, fn := range hooks {
		fn(snap)
	}
}

// Claims is the unverified content of the bearer token.
type Claims struct {
	Subject   string    `json:"subject,omitempty" yaml:"subject,omitempty"`
	UserID    int64     `json:"userId,omitempty" yaml:"userId,omitempty"`
	ExpiresAt time.Time `json:"expiresAt,omitempty" yaml:"expiresAt,omitempty"`
}

func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// Claims decodes the persisted token without checking its signature; the
// client never holds the signing key. Only the backend's answer to /me
// decides whether the token is valid.
func (s *Store) Claims(ctx context.Context) (*Claims, error) {
	token, err := s.tokens.Load(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, api.ErrUnauthenticated
	}
	return ParseClaims(token)
}

func ParseClaims(token string) (*Claims, error) {
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mc); err != nil {
		return nil, err
	}
	out := &Claims{}
	if sub, err := mc.GetSubject(); err == nil {
		out.Subject = sub
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time.UTC()
	}
	if v, ok := mc["user_id"].(float64); ok {
		out.UserID = int64(v)
	}
	return out, nil
}
