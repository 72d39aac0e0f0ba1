package views

import (
	"context"
	"sync"

	"github.com/example/carpool-client/internal/models"
)

type SearchAPI interface {
	SearchCarpools(ctx context.Context, t models.SearchType) ([]models.SearchResult, error)
	SendConnectionRequest(ctx context.Context, receiverID int64) (*models.ConnectionRequest, error)
}

// ConnectStatus is the per-result state of the "connect" button.
type ConnectStatus string

const (
	ConnectSending ConnectStatus = "sending"
	ConnectSent    ConnectStatus = "sent"
	ConnectFailed  ConnectStatus = "failed"
)

type SearchSnapshot struct {
	Type    models.SearchType               `json:"type" yaml:"type"`
	Results Snapshot[[]models.SearchResult] `json:"results" yaml:"results"`
	Connect map[int64]ConnectStatus         `json:"connect,omitempty" yaml:"connect,omitempty"`
}

type SearchView struct {
	base
	api     SearchAPI
	results State[[]models.SearchResult]

	mu      sync.Mutex
	typ     models.SearchType
	connect map[int64]ConnectStatus
}

func NewSearchView(a SearchAPI, deps Deps) *SearchView {
	return &SearchView{
		base:    newBase(ViewSearch, deps),
		api:     a,
		typ:     models.SearchAll,
		connect: make(map[int64]ConnectStatus),
	}
}

// Search runs a search; the response replaces the previous results.
func (v *SearchView) Search(ctx context.Context, t models.SearchType) error {
	v.mu.Lock()
	v.typ = t
	v.mu.Unlock()

	v.results.Begin()
	v.publish(v.Snapshot())
	res, err := v.api.SearchCarpools(ctx, t)
	if err != nil {
		v.results.Fail(v.failure(ctx, err))
		v.publish(v.Snapshot())
		return err
	}
	v.results.Succeed(res)
	v.publish(v.Snapshot())
	return nil
}

// Connect sends a connection request to a search result.
func (v *SearchView) Connect(ctx context.Context, receiverID int64) error {
	v.setConnect(receiverID, ConnectSending)
	if _, err := v.api.SendConnectionRequest(ctx, receiverID); err != nil {
		v.setConnect(receiverID, ConnectFailed)
		v.results.Fail(v.failure(ctx, err))
		v.publish(v.Snapshot())
		return err
	}
	v.setConnect(receiverID, ConnectSent)
	v.setNotice("Connection request sent!")
	return nil
}

func (v *SearchView) setConnect(id int64, s ConnectStatus) {
	v.mu.Lock()
	v.connect[id] = s
	v.mu.Unlock()
	v.publish(v.Snapshot())
}

func (v *SearchView) DismissError() {
	v.results.Dismiss()
	v.publish(v.Snapshot())
}

func (v *SearchView) Snapshot() SearchSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	connect := make(map[int64]ConnectStatus, len(v.connect))
	for k, s := range v.connect {
		connect[k] = s
	}
	return SearchSnapshot{Type: v.typ, Results: v.results.Snapshot(), Connect: connect}
}
