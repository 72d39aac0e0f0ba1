package models

import (
	"fmt"
	"strings"
)

// GroupStatus arrives in either case from the backend ("OPEN", "open").
type GroupStatus string

const (
	GroupOpen   GroupStatus = "open"
	GroupClosed GroupStatus = "closed"
)

func (s GroupStatus) IsOpen() bool { return strings.EqualFold(string(s), string(GroupOpen)) }

type MemberUser struct {
	ID           int64  `json:"id" yaml:"id"`
	Name         string `json:"name" yaml:"name"`
	ProfileImage string `json:"profileImage,omitempty" yaml:"profileImage,omitempty"`
}

type GroupMember struct {
	ID          int64      `json:"id" yaml:"id"`
	Role        string     `json:"role" yaml:"role"`
	DetourMiles float64    `json:"detourMiles" yaml:"detourMiles"`
	IsSelf      bool       `json:"isSelf" yaml:"isSelf"`
	User        MemberUser `json:"user" yaml:"user"`
}

type Destination struct {
	OfficeName string `json:"officeName,omitempty" yaml:"officeName,omitempty"`
	City       string `json:"city,omitempty" yaml:"city,omitempty"`
}

// CarpoolGroup carries only backend-computed values; seat and detour
// numbers are displayed, never derived locally.
type CarpoolGroup struct {
	ID                int64         `json:"id" yaml:"id"`
	Name              string        `json:"name" yaml:"name"`
	MaxSeats          int           `json:"maxSeats" yaml:"maxSeats"`
	CurrentOccupancy  int           `json:"currentOccupancy" yaml:"currentOccupancy"`
	Status            GroupStatus   `json:"status" yaml:"status"`
	Driver            *UserProfile  `json:"driver,omitempty" yaml:"driver,omitempty"`
	Members           []GroupMember `json:"members,omitempty" yaml:"members,omitempty"`
	DetourMiles       float64       `json:"detourMiles" yaml:"detourMiles"`
	BaseDistanceMiles float64       `json:"baseDistanceMiles,omitempty" yaml:"baseDistanceMiles,omitempty"`
	Destination       *Destination  `json:"destination,omitempty" yaml:"destination,omitempty"`
	IsDriver          bool          `json:"isDriver,omitempty" yaml:"isDriver,omitempty"`
	AlreadyRequested  bool          `json:"alreadyRequested,omitempty" yaml:"alreadyRequested,omitempty"`
	MatchType         string        `json:"matchType,omitempty" yaml:"matchType,omitempty"`
}

// IsMember reports whether the authenticated user appears in Members.
func (g CarpoolGroup) IsMember() bool {
	for _, m := range g.Members {
		if m.IsSelf {
			return true
		}
	}
	return false
}

type OpenGroups struct {
	Groups []CarpoolGroup `json:"groups" yaml:"groups"`
}

type JoinRequest struct {
	ID            int64         `json:"id" yaml:"id"`
	GroupID       int64         `json:"groupId" yaml:"groupId"`
	Group         *CarpoolGroup `json:"group,omitempty" yaml:"group,omitempty"`
	User          MemberUser    `json:"user" yaml:"user"`
	VotesReceived int           `json:"votesReceived" yaml:"votesReceived"`
	VotesRequired int           `json:"votesRequired" yaml:"votesRequired"`
	HasVoted      bool          `json:"hasVoted" yaml:"hasVoted"`
	Status        RequestStatus `json:"status" yaml:"status"`
	DetourMiles   float64       `json:"detourMiles,omitempty" yaml:"detourMiles,omitempty"`
}

type Vote string

const (
	VoteApprove Vote = "approve"
	VoteReject  Vote = "reject"
)

func ParseVote(s string) (Vote, error) {
	v := Vote(strings.ToLower(strings.TrimSpace(s)))
	switch v {
	case VoteApprove, VoteReject:
		return v, nil
	}
	return "", fmt.Errorf("invalid vote %q: must be approve or reject", s)
}

type VoteResult struct {
	RequestApproved bool `json:"request_approved" yaml:"request_approved"`
	RequestRejected bool `json:"request_rejected" yaml:"request_rejected"`
	VotesReceived   int  `json:"votes_received" yaml:"votes_received"`
	VotesRequired   int  `json:"votes_required" yaml:"votes_required"`
}

// Summary renders the outcome line shown after a vote.
func (v VoteResult) Summary() string {
	switch {
	case v.RequestApproved:
		return "Request approved! New member added."
	case v.RequestRejected:
		return "Request rejected."
	default:
		return fmt.Sprintf("Vote recorded. %d/%d votes.", v.VotesReceived, v.VotesRequired)
	}
}
