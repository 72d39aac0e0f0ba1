package views

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/carpool-client/internal/logging"
	"github.com/example/carpool-client/internal/models"
)

// fakeAPI backs every view interface with canned data and call counters.
type fakeAPI struct {
	mu    sync.Mutex
	calls map[string]int
	args  map[string][]any
	errs  map[string]error

	searchResults []models.SearchResult
	requests      models.ConnectionRequests
	connected     []models.ConnectedUser
	conversations []models.Conversation
	threads       map[int64][]models.Message
	unread        int
	groups        []models.CarpoolGroup
	open          []models.CarpoolGroup
	details       map[int64]models.CarpoolGroup
	groupRequests []models.JoinRequest
	myRequests    []models.JoinRequest
	vote          models.VoteResult
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		calls:   map[string]int{},
		args:    map[string][]any{},
		errs:    map[string]error{},
		threads: map[int64][]models.Message{},
		details: map[int64]models.CarpoolGroup{},
	}
}

func (f *fakeAPI) record(op string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	f.args[op] = args
	return f.errs[op]
}

func (f *fakeAPI) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeAPI) lastArgs(op string) []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.args[op]
}

func (f *fakeAPI) fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[op] = err
}

func (f *fakeAPI) SearchCarpools(_ context.Context, t models.SearchType) ([]models.SearchResult, error) {
	if err := f.record("search", t); err != nil {
		return nil, err
	}
	return f.searchResults, nil
}

func (f *fakeAPI) SendConnectionRequest(_ context.Context, id int64) (*models.ConnectionRequest, error) {
	if err := f.record("connect", id); err != nil {
		return nil, err
	}
	return &models.ConnectionRequest{ID: 1, Status: models.StatusPending}, nil
}

func (f *fakeAPI) GetConnectionRequests(context.Context) (*models.ConnectionRequests, error) {
	if err := f.record("requests"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.requests
	return &r, nil
}

func (f *fakeAPI) GetConnectedUsers(context.Context) ([]models.ConnectedUser, error) {
	if err := f.record("connected"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected, nil
}

func (f *fakeAPI) AcceptConnectionRequest(_ context.Context, id int64) (*models.ConnectionRequest, error) {
	if err := f.record("accept", id); err != nil {
		return nil, err
	}
	return &models.ConnectionRequest{ID: id, Status: models.StatusAccepted}, nil
}

func (f *fakeAPI) RejectConnectionRequest(_ context.Context, id int64) (string, error) {
	if err := f.record("reject", id); err != nil {
		return "", err
	}
	return "Connection request rejected", nil
}

func (f *fakeAPI) GetConversations(context.Context) ([]models.Conversation, error) {
	if err := f.record("conversations"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conversations, nil
}

func (f *fakeAPI) GetMessages(_ context.Context, id int64) (*models.Thread, error) {
	if err := f.record("messages", id); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["messages:"+itoa(id)]++
	return &models.Thread{ConversationID: id * 10, Messages: f.threads[id]}, nil
}

func (f *fakeAPI) SendMessage(_ context.Context, id int64, content string) (*models.Message, error) {
	if err := f.record("send", id, content); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	m := models.Message{ID: int64(len(f.threads[id]) + 1), Content: content}
	f.threads[id] = append(append([]models.Message(nil), f.threads[id]...), m)
	return &m, nil
}

func (f *fakeAPI) GetUnreadCount(context.Context) int {
	_ = f.record("unread")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unread
}

func (f *fakeAPI) setUnread(n int) {
	f.mu.Lock()
	f.unread = n
	f.mu.Unlock()
}

func (f *fakeAPI) CreateCarpoolGroup(_ context.Context, name string, seats int) (*models.CarpoolGroup, error) {
	if err := f.record("create", name, seats); err != nil {
		return nil, err
	}
	return &models.CarpoolGroup{ID: 99, Name: name, MaxSeats: seats}, nil
}

func (f *fakeAPI) GetUserGroups(context.Context) ([]models.CarpoolGroup, error) {
	if err := f.record("groups"); err != nil {
		return nil, err
	}
	return f.groups, nil
}

func (f *fakeAPI) GetGroupDetails(_ context.Context, id int64) (*models.CarpoolGroup, error) {
	if err := f.record("detail", id); err != nil {
		return nil, err
	}
	g := f.details[id]
	return &g, nil
}

func (f *fakeAPI) SearchOpenGroups(_ context.Context, miles float64) (*models.OpenGroups, error) {
	if err := f.record("open", miles); err != nil {
		return nil, err
	}
	return &models.OpenGroups{Groups: f.open}, nil
}

func (f *fakeAPI) RequestToJoinGroup(_ context.Context, id int64) (*models.JoinRequest, error) {
	if err := f.record("join", id); err != nil {
		return nil, err
	}
	return &models.JoinRequest{ID: 1, GroupID: id}, nil
}

func (f *fakeAPI) GetGroupRequests(_ context.Context, id int64) ([]models.JoinRequest, error) {
	if err := f.record("group_requests", id); err != nil {
		return nil, err
	}
	return f.groupRequests, nil
}

func (f *fakeAPI) VoteOnGroupRequest(_ context.Context, gid, rid int64, vote models.Vote) (*models.VoteResult, error) {
	if err := f.record("vote", gid, rid, vote); err != nil {
		return nil, err
	}
	r := f.vote
	return &r, nil
}

func (f *fakeAPI) LeaveGroup(_ context.Context, id int64) error { return f.record("leave", id) }

func (f *fakeAPI) CloseGroup(_ context.Context, id int64) error { return f.record("close", id) }

func (f *fakeAPI) GetMyGroupRequests(context.Context) ([]models.JoinRequest, error) {
	if err := f.record("my_requests"); err != nil {
		return nil, err
	}
	return f.myRequests, nil
}

func itoa(n int64) string {
	return fmt.Sprint(n)
}

// updates records every update a view publishes.
type updates struct {
	mu  sync.Mutex
	all []Update
}

func (u *updates) Notify(up Update) {
	u.mu.Lock()
	u.all = append(u.all, up)
	u.mu.Unlock()
}

func (u *updates) list() []Update {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]Update(nil), u.all...)
}

func (u *updates) reset() {
	u.mu.Lock()
	u.all = nil
	u.mu.Unlock()
}

type fakeSession struct {
	mu      sync.Mutex
	expired []error
}

func (s *fakeSession) Expire(_ context.Context, err error) bool {
	if !Unauthorized(err) {
		return false
	}
	s.mu.Lock()
	s.expired = append(s.expired, err)
	s.mu.Unlock()
	return true
}

func (s *fakeSession) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expired)
}

const fastPoll = 5 * time.Millisecond

func testDeps(n Notifier, s Expirer) Deps {
	return Deps{
		Notifier:  n,
		Session:   s,
		Logger:    logging.Discard(),
		Intervals: Intervals{Messages: fastPoll, Connections: fastPoll, Unread: fastPoll},
	}
}
