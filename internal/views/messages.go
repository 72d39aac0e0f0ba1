package views

import (
	"context"
	"strings"
	"sync"

	"github.com/example/carpool-client/internal/api"
	"github.com/example/carpool-client/internal/models"
)

type MessagesAPI interface {
	GetConversations(ctx context.Context) ([]models.Conversation, error)
	GetMessages(ctx context.Context, otherUserID int64) (*models.Thread, error)
	SendMessage(ctx context.Context, otherUserID int64, content string) (*models.Message, error)
}

type MessagesSnapshot struct {
	Conversations Snapshot[[]models.Conversation] `json:"conversations" yaml:"conversations"`
	Selected      int64                           `json:"selected,omitempty" yaml:"selected,omitempty"`
	Thread        Snapshot[models.Thread]         `json:"thread" yaml:"thread"`
	Sending       bool                            `json:"sending" yaml:"sending"`
}

const (
	taskConversations = "conversations"
	taskThread        = "thread"
)

// MessagesView is the inbox: the conversation list plus the thread with the
// selected user. Background reloads never raise the loading flag.
type MessagesView struct {
	base
	api           MessagesAPI
	conversations State[[]models.Conversation]
	thread        State[models.Thread]

	// threadMu orders selection changes against thread poll restarts.
	threadMu sync.Mutex

	mu       sync.Mutex
	ctx      context.Context
	mounted  bool
	selected int64
	// pending is a user to open as soon as their conversation shows up.
	pending int64
	sending bool
}

func NewMessagesView(a MessagesAPI, deps Deps) *MessagesView {
	return &MessagesView{base: newBase(ViewInbox, deps), api: a, ctx: context.Background()}
}

// Mount loads the conversation list and polls it. A non-zero openUserID
// selects that user's conversation once it appears in the list.
func (v *MessagesView) Mount(ctx context.Context, openUserID int64) {
	v.mu.Lock()
	v.ctx = ctx
	v.mounted = true
	v.pending = openUserID
	v.mu.Unlock()

	v.LoadConversations(ctx)
	v.coord.Start(ctx, taskConversations, v.deps.Intervals.Messages, v.pollConversations)
}

// LoadConversations fetches the list with the loading flag raised.
func (v *MessagesView) LoadConversations(ctx context.Context) {
	v.conversations.Begin()
	v.publish(v.Snapshot())
	convs, err := v.api.GetConversations(ctx)
	if err != nil {
		v.conversations.Fail(v.failure(ctx, err))
		v.publish(v.Snapshot())
		return
	}
	v.conversations.Succeed(convs)
	v.publish(v.Snapshot())
	v.autoSelect(ctx, convs)
}

func (v *MessagesView) pollConversations(ctx context.Context) error {
	convs, err := v.api.GetConversations(ctx)
	if err != nil {
		return v.quiet(ctx, err)
	}
	v.conversations.Succeed(convs)
	v.publish(v.Snapshot())
	v.autoSelect(ctx, convs)
	return nil
}

func (v *MessagesView) autoSelect(ctx context.Context, convs []models.Conversation) {
	v.mu.Lock()
	target := v.pending
	v.mu.Unlock()
	if target == 0 {
		return
	}
	for _, c := range convs {
		if c.OtherUser.ID == target {
			v.mu.Lock()
			v.pending = 0
			v.mu.Unlock()
			_ = v.Select(ctx, target)
			return
		}
	}
}

// Unmount stops both the list and the thread polls.
func (v *MessagesView) Unmount() {
	v.threadMu.Lock()
	v.mu.Lock()
	v.mounted = false
	v.mu.Unlock()
	v.threadMu.Unlock()
	v.base.Unmount()
}

// Select opens the thread with otherUserID. While mounted it also restarts
// the thread poll; the poll of the previous selection stops before the new
// one starts.
func (v *MessagesView) Select(ctx context.Context, otherUserID int64) error {
	v.threadMu.Lock()
	v.mu.Lock()
	v.selected = otherUserID
	v.mu.Unlock()
	v.coord.Stop(taskThread)
	v.thread.Reset()
	v.threadMu.Unlock()

	err := v.loadThread(ctx, otherUserID, false)

	v.threadMu.Lock()
	defer v.threadMu.Unlock()
	v.mu.Lock()
	pollCtx, current := v.ctx, v.mounted && v.selected == otherUserID
	v.mu.Unlock()
	// a later selection owns the thread poll
	if current {
		v.coord.Start(pollCtx, taskThread, v.deps.Intervals.Messages, func(ctx context.Context) error {
			return v.loadThread(ctx, otherUserID, true)
		})
	}
	return err
}

// Deselect closes the thread.
func (v *MessagesView) Deselect() {
	v.threadMu.Lock()
	v.mu.Lock()
	v.selected = 0
	v.mu.Unlock()
	v.coord.Stop(taskThread)
	v.thread.Reset()
	v.threadMu.Unlock()
	v.publish(v.Snapshot())
}

func (v *MessagesView) Selected() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.selected
}

func (v *MessagesView) loadThread(ctx context.Context, otherUserID int64, silent bool) error {
	if !silent {
		v.thread.Begin()
		v.publish(v.Snapshot())
	}
	th, err := v.api.GetMessages(ctx, otherUserID)
	if v.Selected() != otherUserID {
		// the user moved on while the request was in flight
		return nil
	}
	if err != nil {
		if silent {
			return v.quiet(ctx, err)
		}
		v.thread.Fail(v.failure(ctx, err))
		v.publish(v.Snapshot())
		return err
	}
	v.thread.Succeed(*th)
	v.publish(v.Snapshot())
	return nil
}

// Send posts content to the selected user.
func (v *MessagesView) Send(ctx context.Context, content string) error {
	to := v.Selected()
	if to == 0 {
		return &api.Error{Kind: api.KindInvalidInput, Op: "message_send", Message: "No conversation selected"}
	}
	return v.SendTo(ctx, to, content)
}

// SendTo posts content to user to regardless of the current selection. It
// then reloads the conversation list, and the thread when to is still
// selected, without the loading flag.
func (v *MessagesView) SendTo(ctx context.Context, to int64, content string) error {
	if strings.TrimSpace(content) == "" {
		return &api.Error{Kind: api.KindInvalidInput, Op: "message_send", Message: "Message content cannot be empty"}
	}
	if to <= 0 {
		return &api.Error{Kind: api.KindInvalidInput, Op: "message_send", Message: "No conversation selected"}
	}
	v.mu.Lock()
	v.sending = true
	v.mu.Unlock()
	v.publish(v.Snapshot())

	defer func() {
		v.mu.Lock()
		v.sending = false
		v.mu.Unlock()
		v.publish(v.Snapshot())
	}()

	if _, err := v.api.SendMessage(ctx, to, content); err != nil {
		msg := v.failure(ctx, err)
		if v.Selected() == to {
			v.thread.Fail(msg)
		}
		return err
	}
	if v.Selected() == to {
		_ = v.loadThread(ctx, to, true)
	}
	_ = v.pollConversations(ctx)
	return nil
}

func (v *MessagesView) DismissError() {
	v.conversations.Dismiss()
	v.thread.Dismiss()
	v.publish(v.Snapshot())
}

func (v *MessagesView) Snapshot() MessagesSnapshot {
	v.mu.Lock()
	selected, sending := v.selected, v.sending
	v.mu.Unlock()
	return MessagesSnapshot{
		Conversations: v.conversations.Snapshot(),
		Selected:      selected,
		Thread:        v.thread.Snapshot(),
		Sending:       sending,
	}
}
