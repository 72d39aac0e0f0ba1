package views

import (
	"context"
	"sync"

	"github.com/example/carpool-client/internal/observability"
	"github.com/example/carpool-client/internal/poll"
)

type UnreadAPI interface {
	GetUnreadCount(ctx context.Context) int
}

type UnreadSnapshot struct {
	Count int `json:"count" yaml:"count"`
}

const taskUnread = "unread-count"

// UnreadBadge tracks the total unread message count. Subscribers hear about
// it only when the number changes.
type UnreadBadge struct {
	base
	api UnreadAPI

	mu      sync.Mutex
	count   int
	fetched bool
}

func NewUnreadBadge(a UnreadAPI, deps Deps) *UnreadBadge {
	return &UnreadBadge{base: newBase(ViewUnread, deps), api: a}
}

// Mount refreshes the count now and then on every unread interval.
func (b *UnreadBadge) Mount(ctx context.Context) {
	b.coord.Start(ctx, taskUnread, b.deps.Intervals.Unread, func(ctx context.Context) error {
		b.Refresh(ctx)
		return nil
	}, poll.WithImmediate())
}

// Refresh fetches the count once. It reports whether the count changed.
func (b *UnreadBadge) Refresh(ctx context.Context) bool {
	n := b.api.GetUnreadCount(ctx)
	if ctx.Err() != nil {
		return false
	}
	b.mu.Lock()
	changed := !b.fetched || n != b.count
	b.count = n
	b.fetched = true
	b.mu.Unlock()

	observability.UnreadMessages.Set(float64(n))
	if changed {
		b.publish(UnreadSnapshot{Count: n})
	}
	return changed
}

func (b *UnreadBadge) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (b *UnreadBadge) Snapshot() UnreadSnapshot {
	return UnreadSnapshot{Count: b.Count()}
}
