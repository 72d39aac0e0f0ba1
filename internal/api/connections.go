package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/example/carpool-client/internal/models"
)

const (
	opSendConnectionRequest   = "connection_request_create"
	opGetConnectionRequests   = "connection_requests_list"
	opAcceptConnectionRequest = "connection_request_accept"
	opRejectConnectionRequest = "connection_request_reject"
	opGetConnectedUsers       = "connected_users"
)

func (c *Client) SendConnectionRequest(ctx context.Context, receiverID int64) (*models.ConnectionRequest, error) {
	form := url.Values{}
	form.Set("receiverId", strconv.FormatInt(receiverID, 10))

	var out models.ConnectionRequest
	err := c.do(ctx, call{
		op:       opSendConnectionRequest,
		method:   http.MethodPost,
		path:     "/connection-requests",
		form:     form,
		auth:     true,
		fallback: "Failed to send connection request",
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetConnectionRequests(ctx context.Context) (*models.ConnectionRequests, error) {
	var out models.ConnectionRequests
	err := c.do(ctx, call{
		op:       opGetConnectionRequests,
		method:   http.MethodGet,
		path:     "/connection-requests",
		auth:     true,
		fallback: "Failed to fetch connection requests",
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AcceptConnectionRequest(ctx context.Context, requestID int64) (*models.ConnectionRequest, error) {
	var out models.ConnectionRequest
	err := c.do(ctx, call{
		op:       opAcceptConnectionRequest,
		method:   http.MethodPatch,
		path:     idPath("/connection-requests/%d/accept", requestID),
		auth:     true,
		fallback: "Failed to accept connection request",
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RejectConnectionRequest returns the backend's acknowledgement message.
func (c *Client) RejectConnectionRequest(ctx context.Context, requestID int64) (string, error) {
	var out struct {
		Message string `json:"message"`
	}
	err := c.do(ctx, call{
		op:       opRejectConnectionRequest,
		method:   http.MethodPatch,
		path:     idPath("/connection-requests/%d/reject", requestID),
		auth:     true,
		fallback: "Failed to reject connection request",
	}, &out)
	if err != nil {
		return "", err
	}
	return out.Message, nil
}

func (c *Client) GetConnectedUsers(ctx context.Context) ([]models.ConnectedUser, error) {
	var out []models.ConnectedUser
	err := c.do(ctx, call{
		op:       opGetConnectedUsers,
		method:   http.MethodGet,
		path:     "/connected-users",
		auth:     true,
		fallback: "Failed to fetch connected users",
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}
