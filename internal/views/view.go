package views

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/carpool-client/internal/api"
	"github.com/example/carpool-client/internal/poll"
)

// View names, also used as update keys and websocket paths.
const (
	ViewSearch      = "search"
	ViewConnections = "connections"
	ViewInbox       = "inbox"
	ViewUnread      = "unread"
	ViewGroups      = "groups"
	ViewSession     = "session"
)

type UpdateKind string

const (
	// UpdateState carries a fresh snapshot of the view.
	UpdateState UpdateKind = "state"
	// UpdateNotice carries a transient success message.
	UpdateNotice UpdateKind = "notice"
)

// Update is published after every view state change.
type Update struct {
	View    string     `json:"view"`
	Kind    UpdateKind `json:"kind"`
	Payload any        `json:"payload"`
	At      time.Time  `json:"at"`
}

type Notifier interface {
	Notify(Update)
}

type NotifierFunc func(Update)

func (f NotifierFunc) Notify(u Update) { f(u) }

type nopNotifier struct{}

func (nopNotifier) Notify(Update) {}

// Expirer ends the session when the backend rejects the token.
// *session.Store satisfies it.
type Expirer interface {
	Expire(ctx context.Context, err error) bool
}

// Intervals are the polling periods of the mounted views.
type Intervals struct {
	Messages    time.Duration
	Connections time.Duration
	Unread      time.Duration
}

func DefaultIntervals() Intervals {
	return Intervals{
		Messages:    3 * time.Second,
		Connections: 5 * time.Second,
		Unread:      10 * time.Second,
	}
}

// Deps are shared by every view.
type Deps struct {
	Notifier  Notifier
	Session   Expirer
	Logger    *slog.Logger
	Intervals Intervals
	// NoticeTTL is how long success messages stay visible.
	NoticeTTL time.Duration
	Now       func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Notifier == nil {
		d.Notifier = nopNotifier{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	def := DefaultIntervals()
	if d.Intervals.Messages <= 0 {
		d.Intervals.Messages = def.Messages
	}
	if d.Intervals.Connections <= 0 {
		d.Intervals.Connections = def.Connections
	}
	if d.Intervals.Unread <= 0 {
		d.Intervals.Unread = def.Unread
	}
	if d.NoticeTTL <= 0 {
		d.NoticeTTL = 3 * time.Second
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

type base struct {
	name  string
	deps  Deps
	coord *poll.Coordinator

	noticeMu  sync.Mutex
	notice    string
	noticeExp time.Time
}

func newBase(name string, deps Deps) base {
	deps = deps.withDefaults()
	return base{name: name, deps: deps, coord: poll.NewCoordinator(deps.Logger.With("view", name))}
}

func (b *base) publish(payload any) {
	b.deps.Notifier.Notify(Update{View: b.name, Kind: UpdateState, Payload: payload, At: b.deps.Now()})
}

// failure turns err into the banner text and expires the session on a 401.
func (b *base) failure(ctx context.Context, err error) string {
	if b.deps.Session != nil {
		b.deps.Session.Expire(ctx, err)
	}
	return err.Error()
}

// quiet handles a polling failure: the session may expire, nothing is shown.
func (b *base) quiet(ctx context.Context, err error) error {
	if b.deps.Session != nil {
		b.deps.Session.Expire(ctx, err)
	}
	return err
}

func (b *base) setNotice(msg string) {
	b.noticeMu.Lock()
	b.notice = msg
	b.noticeExp = b.deps.Now().Add(b.deps.NoticeTTL)
	b.noticeMu.Unlock()
	b.deps.Notifier.Notify(Update{View: b.name, Kind: UpdateNotice, Payload: msg, At: b.deps.Now()})
}

// Notice returns the current success message, or "" once it has expired.
func (b *base) Notice() string {
	b.noticeMu.Lock()
	defer b.noticeMu.Unlock()
	if b.notice == "" || !b.deps.Now().Before(b.noticeExp) {
		return ""
	}
	return b.notice
}

// Unmount stops every polling task of the view.
func (b *base) Unmount() { b.coord.StopAll() }

// Unauthorized reports whether err means the session is gone.
func Unauthorized(err error) bool {
	return api.IsKind(err, api.KindUnauthenticated) || (api.IsKind(err, api.KindHTTP) && api.StatusOf(err) == 401)
}
