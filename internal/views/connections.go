package views

import (
	"context"

	"github.com/example/carpool-client/internal/models"
)

type ConnectionsAPI interface {
	GetConnectionRequests(ctx context.Context) (*models.ConnectionRequests, error)
	GetConnectedUsers(ctx context.Context) ([]models.ConnectedUser, error)
	AcceptConnectionRequest(ctx context.Context, requestID int64) (*models.ConnectionRequest, error)
	RejectConnectionRequest(ctx context.Context, requestID int64) (string, error)
}

type ConnectionsSnapshot struct {
	Requests  Snapshot[models.ConnectionRequests] `json:"requests" yaml:"requests"`
	Connected Snapshot[[]models.ConnectedUser]    `json:"connected" yaml:"connected"`
	Notice    string                              `json:"notice,omitempty" yaml:"notice,omitempty"`
}

const (
	taskRequests  = "connection-requests"
	taskConnected = "connected-users"
)

// ConnectionsView lists pending requests and established connections.
// Accept and reject never edit the lists locally; both are re-fetched.
type ConnectionsView struct {
	base
	api       ConnectionsAPI
	requests  State[models.ConnectionRequests]
	connected State[[]models.ConnectedUser]
}

func NewConnectionsView(a ConnectionsAPI, deps Deps) *ConnectionsView {
	return &ConnectionsView{base: newBase(ViewConnections, deps), api: a}
}

// Mount loads both lists and polls them until Unmount.
func (v *ConnectionsView) Mount(ctx context.Context) {
	v.Load(ctx)
	every := v.deps.Intervals.Connections
	v.coord.Start(ctx, taskRequests, every, v.pollRequests)
	v.coord.Start(ctx, taskConnected, every, v.pollConnected)
}

// Load fetches both lists with the loading flag raised.
func (v *ConnectionsView) Load(ctx context.Context) {
	v.requests.Begin()
	v.connected.Begin()
	v.publish(v.Snapshot())

	if reqs, err := v.api.GetConnectionRequests(ctx); err != nil {
		v.requests.Fail(v.failure(ctx, err))
	} else {
		v.requests.Succeed(*reqs)
	}
	if users, err := v.api.GetConnectedUsers(ctx); err != nil {
		v.connected.Fail(v.failure(ctx, err))
	} else {
		v.connected.Succeed(users)
	}
	v.publish(v.Snapshot())
}

func (v *ConnectionsView) pollRequests(ctx context.Context) error {
	reqs, err := v.api.GetConnectionRequests(ctx)
	if err != nil {
		return v.quiet(ctx, err)
	}
	v.requests.Succeed(*reqs)
	v.publish(v.Snapshot())
	return nil
}

func (v *ConnectionsView) pollConnected(ctx context.Context) error {
	users, err := v.api.GetConnectedUsers(ctx)
	if err != nil {
		return v.quiet(ctx, err)
	}
	v.connected.Succeed(users)
	v.publish(v.Snapshot())
	return nil
}

func (v *ConnectionsView) Accept(ctx context.Context, requestID int64) error {
	if _, err := v.api.AcceptConnectionRequest(ctx, requestID); err != nil {
		v.requests.Fail(v.failure(ctx, err))
		v.publish(v.Snapshot())
		return err
	}
	v.setNotice("Connection request accepted")
	v.Load(ctx)
	return nil
}

func (v *ConnectionsView) Reject(ctx context.Context, requestID int64) error {
	msg, err := v.api.RejectConnectionRequest(ctx, requestID)
	if err != nil {
		v.requests.Fail(v.failure(ctx, err))
		v.publish(v.Snapshot())
		return err
	}
	if msg == "" {
		msg = "Connection request rejected"
	}
	v.setNotice(msg)
	v.Load(ctx)
	return nil
}

func (v *ConnectionsView) DismissError() {
	v.requests.Dismiss()
	v.connected.Dismiss()
	v.publish(v.Snapshot())
}

func (v *ConnectionsView) Snapshot() ConnectionsSnapshot {
	return ConnectionsSnapshot{
		Requests:  v.requests.Snapshot(),
		Connected: v.connected.Snapshot(),
		Notice:    v.Notice(),
	}
}
