package views

import (
	"context"
	"fmt"
	"sync"

	"github.com/example/carpool-client/internal/models"
)

type GroupsAPI interface {
	CreateCarpoolGroup(ctx context.Context, name string, maxSeats int) (*models.CarpoolGroup, error)
	GetUserGroups(ctx context.Context) ([]models.CarpoolGroup, error)
	GetGroupDetails(ctx context.Context, groupID int64) (*models.CarpoolGroup, error)
	SearchOpenGroups(ctx context.Context, maxDetourMiles float64) (*models.OpenGroups, error)
	RequestToJoinGroup(ctx context.Context, groupID int64) (*models.JoinRequest, error)
	GetGroupRequests(ctx context.Context, groupID int64) ([]models.JoinRequest, error)
	VoteOnGroupRequest(ctx context.Context, groupID, requestID int64, vote models.Vote) (*models.VoteResult, error)
	LeaveGroup(ctx context.Context, groupID int64) error
	CloseGroup(ctx context.Context, groupID int64) error
	GetMyGroupRequests(ctx context.Context) ([]models.JoinRequest, error)
}

type GroupsTab string

const (
	TabMyGroups   GroupsTab = "my-groups"
	TabFindGroups GroupsTab = "find-groups"
	TabMyRequests GroupsTab = "my-requests"
)

func ParseGroupsTab(s string) (GroupsTab, error) {
	switch t := GroupsTab(s); t {
	case TabMyGroups, TabFindGroups, TabMyRequests:
		return t, nil
	}
	return "", fmt.Errorf("invalid tab %q: must be one of my-groups, find-groups, my-requests", s)
}

const DefaultMaxDetourMiles = 3.0

// GroupsPage is everything the groups screen shows. Loading and error are
// page wide, as on the original screen.
type GroupsPage struct {
	Tab        GroupsTab             `json:"tab" yaml:"tab"`
	MaxDetour  float64               `json:"maxDetourMiles" yaml:"maxDetourMiles"`
	MyGroups   []models.CarpoolGroup `json:"myGroups" yaml:"myGroups"`
	OpenGroups []models.CarpoolGroup `json:"openGroups" yaml:"openGroups"`
	MyRequests []models.JoinRequest  `json:"myRequests" yaml:"myRequests"`
	Selected   *models.CarpoolGroup  `json:"selected,omitempty" yaml:"selected,omitempty"`
	Pending    []models.JoinRequest  `json:"pending" yaml:"pending"`
}

type GroupsSnapshot struct {
	Page   Snapshot[GroupsPage] `json:"page" yaml:"page"`
	Notice string               `json:"notice,omitempty" yaml:"notice,omitempty"`
}

type GroupsView struct {
	base
	api          GroupsAPI
	page         State[GroupsPage]
	defaultSeats int

	// serializes user actions so a refresh never races the action it follows
	actionMu sync.Mutex
}

func NewGroupsView(a GroupsAPI, defaultSeats int, deps Deps) *GroupsView {
	if defaultSeats <= 0 {
		defaultSeats = 4
	}
	v := &GroupsView{base: newBase(ViewGroups, deps), api: a, defaultSeats: defaultSeats}
	v.page.Apply(func(p *GroupsPage) {
		p.Tab = TabMyGroups
		p.MaxDetour = DefaultMaxDetourMiles
	})
	return v
}

// run wraps a user action with the page loading flag and error banner.
func (v *GroupsView) run(ctx context.Context, fn func() error) error {
	v.actionMu.Lock()
	defer v.actionMu.Unlock()

	v.page.Begin()
	v.publish(v.Snapshot())
	if err := fn(); err != nil {
		v.page.Fail(v.failure(ctx, err))
		v.publish(v.Snapshot())
		return err
	}
	v.page.End()
	v.publish(v.Snapshot())
	return nil
}

// SetTab switches tabs and loads the tab's list.
func (v *GroupsView) SetTab(ctx context.Context, tab GroupsTab) error {
	if _, err := ParseGroupsTab(string(tab)); err != nil {
		return err
	}
	v.page.Apply(func(p *GroupsPage) { p.Tab = tab })
	v.page.Dismiss()
	return v.run(ctx, func() error { return v.fetchTab(ctx, tab) })
}

// Refresh reloads the current tab.
func (v *GroupsView) Refresh(ctx context.Context) error {
	tab := v.page.Value().Tab
	return v.run(ctx, func() error { return v.fetchTab(ctx, tab) })
}

// SetMaxDetour changes the detour limit; the open-group list is re-fetched
// when that tab is showing.
func (v *GroupsView) SetMaxDetour(ctx context.Context, miles float64) error {
	if miles < 0 {
		return fmt.Errorf("max detour must not be negative")
	}
	v.page.Apply(func(p *GroupsPage) { p.MaxDetour = miles })
	if v.page.Value().Tab != TabFindGroups {
		v.publish(v.Snapshot())
		return nil
	}
	return v.run(ctx, func() error { return v.fetchOpen(ctx) })
}

func (v *GroupsView) fetchTab(ctx context.Context, tab GroupsTab) error {
	switch tab {
	case TabFindGroups:
		return v.fetchOpen(ctx)
	case TabMyRequests:
		return v.fetchMyRequests(ctx)
	default:
		return v.fetchMine(ctx)
	}
}

func (v *GroupsView) fetchMine(ctx context.Context) error {
	groups, err := v.api.GetUserGroups(ctx)
	if err != nil {
		return err
	}
	v.page.Apply(func(p *GroupsPage) { p.MyGroups = groups })
	return nil
}

func (v *GroupsView) fetchOpen(ctx context.Context) error {
	res, err := v.api.SearchOpenGroups(ctx, v.page.Value().MaxDetour)
	if err != nil {
		return err
	}
	v.page.Apply(func(p *GroupsPage) { p.OpenGroups = res.Groups })
	return nil
}

func (v *GroupsView) fetchMyRequests(ctx context.Context) error {
	reqs, err := v.api.GetMyGroupRequests(ctx)
	if err != nil {
		return err
	}
	v.page.Apply(func(p *GroupsPage) { p.MyRequests = reqs })
	return nil
}

// SelectGroup loads a group's details. Pending join requests are only
// visible to members, so they are fetched only when the caller is one.
func (v *GroupsView) SelectGroup(ctx context.Context, groupID int64) error {
	return v.run(ctx, func() error { return v.selectGroup(ctx, groupID) })
}

func (v *GroupsView) selectGroup(ctx context.Context, groupID int64) error {
	g, err := v.api.GetGroupDetails(ctx, groupID)
	if err != nil {
		return err
	}
	var pending []models.JoinRequest
	if g.IsMember() {
		if pending, err = v.api.GetGroupRequests(ctx, groupID); err != nil {
			return err
		}
	}
	v.page.Apply(func(p *GroupsPage) {
		p.Selected = g
		p.Pending = pending
	})
	return nil
}

func (v *GroupsView) ClearSelection() {
	v.page.Apply(func(p *GroupsPage) {
		p.Selected = nil
		p.Pending = nil
	})
	v.publish(v.Snapshot())
}

// CreateGroup creates a group; seats <= 0 means the default seat count.
func (v *GroupsView) CreateGroup(ctx context.Context, name string, seats int) (*models.CarpoolGroup, error) {
	if seats <= 0 {
		seats = v.defaultSeats
	}
	var created *models.CarpoolGroup
	err := v.run(ctx, func() error {
		g, err := v.api.CreateCarpoolGroup(ctx, name, seats)
		if err != nil {
			return err
		}
		created = g
		v.setNotice("Group created successfully!")
		return v.fetchMine(ctx)
	})
	return created, err
}

func (v *GroupsView) Join(ctx context.Context, groupID int64) error {
	return v.run(ctx, func() error {
		if _, err := v.api.RequestToJoinGroup(ctx, groupID); err != nil {
			return err
		}
		v.setNotice("Join request sent! Waiting for member approval.")
		if err := v.fetchOpen(ctx); err != nil {
			return err
		}
		return v.fetchMyRequests(ctx)
	})
}

// Vote votes on a join request and reloads the group it belongs to.
func (v *GroupsView) Vote(ctx context.Context, groupID, requestID int64, vote models.Vote) (*models.VoteResult, error) {
	var result *models.VoteResult
	err := v.run(ctx, func() error {
		res, err := v.api.VoteOnGroupRequest(ctx, groupID, requestID, vote)
		if err != nil {
			return err
		}
		result = res
		v.setNotice(res.Summary())
		return v.selectGroup(ctx, groupID)
	})
	return result, err
}

func (v *GroupsView) Leave(ctx context.Context, groupID int64) error {
	return v.run(ctx, func() error {
		if err := v.api.LeaveGroup(ctx, groupID); err != nil {
			return err
		}
		v.setNotice("Left group successfully.")
		v.page.Apply(func(p *GroupsPage) {
			p.Selected = nil
			p.Pending = nil
		})
		return v.fetchMine(ctx)
	})
}

func (v *GroupsView) Close(ctx context.Context, groupID int64) error {
	return v.run(ctx, func() error {
		if err := v.api.CloseGroup(ctx, groupID); err != nil {
			return err
		}
		v.setNotice("Group closed.")
		v.page.Apply(func(p *GroupsPage) {
			p.Selected = nil
			p.Pending = nil
		})
		return v.fetchMine(ctx)
	})
}

func (v *GroupsView) DismissError() {
	v.page.Dismiss()
	v.publish(v.Snapshot())
}

func (v *GroupsView) Snapshot() GroupsSnapshot {
	return GroupsSnapshot{Page: v.page.Snapshot(), Notice: v.Notice()}
}
