package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/example/carpool-client/internal/models"
)

const (
	opCreateGroup        = "group_create"
	opGetUserGroups      = "groups_list"
	opGetGroupDetails    = "group_detail"
	opSearchOpenGroups   = "groups_open"
	opRequestToJoinGroup = "group_join_request"
	opGetGroupRequests   = "group_requests"
	opVote               = "group_vote"
	opLeaveGroup         = "group_leave"
	opCloseGroup         = "group_close"
	opGetMyGroupRequests = "my_group_requests"
)

func (c *Client) CreateCarpoolGroup(ctx context.Context, name string, maxSeats int) (*models.CarpoolGroup, error) {
	form := url.Values{}
	form.Set("name", name)
	form.Set("maxSeats", strconv.Itoa(maxSeats))

	var out models.CarpoolGroup
	err := c.do(ctx, call{
		op:       opCreateGroup,
		method:   http.MethodPost,
		path:     "/groups",
		form:     form,
		auth:     true,
		fallback: "Failed to create group",
		check: func() error {
			if strings.TrimSpace(name) == "" {
				return &Error{Kind: KindInvalidInput, Op: opCreateGroup, Message: "Group name is required"}
			}
			if maxSeats <= 0 {
				return &Error{Kind: KindInvalidInput, Op: opCreateGroup, Message: "Seats must be a positive number"}
			}
			return nil
		},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetUserGroups(ctx context.Context) ([]models.CarpoolGroup, error) {
	var out []models.CarpoolGroup
	err := c.do(ctx, call{
		op:       opGetUserGroups,
		method:   http.MethodGet,
		path:     "/groups",
		auth:     true,
		fallback: "Failed to fetch groups",
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetGroupDetails(ctx context.Context, groupID int64) (*models.CarpoolGroup, error) {
	var out models.CarpoolGroup
	err := c.do(ctx, call{
		op:       opGetGroupDetails,
		method:   http.MethodGet,
		path:     idPath("/groups/%d", groupID),
		auth:     true,
		fallback: "Failed to fetch group details",
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchOpenGroups lists open groups whose detour for the caller stays
// within maxDetourMiles.
func (c *Client) SearchOpenGroups(ctx context.Context, maxDetourMiles float64) (*models.OpenGroups, error) {
	var out models.OpenGroups
	err := c.do(ctx, call{
		op:       opSearchOpenGroups,
		method:   http.MethodGet,
		path:     "/groups/open",
		query:    url.Values{"max_detour_miles": {strconv.FormatFloat(maxDetourMiles, 'f', -1, 64)}},
		auth:     true,
		fallback: "Failed to search groups",
		check: func() error {
			if maxDetourMiles < 0 {
				return &Error{Kind: KindInvalidInput, Op: opSearchOpenGroups, Message: "Max detour must not be negative"}
			}
			return nil
		},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RequestToJoinGroup(ctx context.Context, groupID int64) (*models.JoinRequest, error) {
	var out models.JoinRequest
	err := c.do(ctx, call{
		op:       opRequestToJoinGroup,
		method:   http.MethodPost,
		path:     idPath("/groups/%d/requests", groupID),
		auth:     true,
		fallback: "Failed to request to join group",
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetGroupRequests(ctx context.Context, groupID int64) ([]models.JoinRequest, error) {
	var out []models.JoinRequest
	err := c.do(ctx, call{
		op:       opGetGroupRequests,
		method:   http.MethodGet,
		path:     idPath("/groups/%d/requests", groupID),
		auth:     true,
		fallback: "Failed to fetch group requests",
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) VoteOnGroupRequest(ctx context.Context, groupID, requestID int64, vote models.Vote) (*models.VoteResult, error) {
	form := url.Values{}
	form.Set("vote", string(vote))

	var out models.VoteResult
	err := c.do(ctx, call{
		op:       opVote,
		method:   http.MethodPost,
		path:     idPath("/groups/%d/requests/%d/vote", groupID, requestID),
		form:     form,
		auth:     true,
		fallback: "Failed to vote",
		check: func() error {
			if _, err := models.ParseVote(string(vote)); err != nil {
				return &Error{Kind: KindInvalidInput, Op: opVote, Message: err.Error()}
			}
			return nil
		},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) LeaveGroup(ctx context.Context, groupID int64) error {
	return c.do(ctx, call{
		op:       opLeaveGroup,
		method:   http.MethodDelete,
		path:     idPath("/groups/%d/leave", groupID),
		auth:     true,
		fallback: "Failed to leave group",
	}, nil)
}

func (c *Client) CloseGroup(ctx context.Context, groupID int64) error {
	return c.do(ctx, call{
		op:       opCloseGroup,
		method:   http.MethodPatch,
		path:     idPath("/groups/%d/close", groupID),
		auth:     true,
		fallback: "Failed to close group",
	}, nil)
}

func (c *Client) GetMyGroupRequests(ctx context.Context) ([]models.JoinRequest, error) {
	var out []models.JoinRequest
	err := c.do(ctx, call{
		op:       opGetMyGroupRequests,
		method:   http.MethodGet,
		path:     "/my-group-requests",
		auth:     true,
		fallback: "Failed to fetch your requests",
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}
