package models

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleDriver    Role = "driver"
	RolePassenger Role = "passenger"
)

type Address struct {
	OfficeName string `json:"officeName,omitempty" yaml:"officeName,omitempty"`
	Street     string `json:"street,omitempty" yaml:"street,omitempty"`
	City       string `json:"city,omitempty" yaml:"city,omitempty"`
	Zipcode    string `json:"zipcode,omitempty" yaml:"zipcode,omitempty"`
}

// UserProfile mirrors the user payload returned by /me, /search and the
// connection endpoints. Fields the backend withholds (home street in search
// results, for instance) are simply left empty.
type UserProfile struct {
	ID                int64    `json:"id" yaml:"id"`
	FirstName         string   `json:"firstName" yaml:"firstName"`
	LastName          string   `json:"lastName" yaml:"lastName"`
	Email             string   `json:"email,omitempty" yaml:"email,omitempty"`
	Phone             string   `json:"phone,omitempty" yaml:"phone,omitempty"`
	Role              Role     `json:"role,omitempty" yaml:"role,omitempty"`
	WillingToTake     []int    `json:"willingToTake,omitempty" yaml:"willingToTake,omitempty"`
	HasDriversLicense *bool    `json:"hasDriversLicense,omitempty" yaml:"hasDriversLicense,omitempty"`
	ProfilePath       string   `json:"profilePath,omitempty" yaml:"profilePath,omitempty"`
	CompanyAddress    *Address `json:"companyAddress,omitempty" yaml:"companyAddress,omitempty"`
	HomeAddress       *Address `json:"homeAddress,omitempty" yaml:"homeAddress,omitempty"`
}

func (u UserProfile) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

type SearchType string

const (
	SearchAll    SearchType = "all"
	SearchOffice SearchType = "office"
	SearchStreet SearchType = "street"
	SearchCity   SearchType = "city"
)

func ParseSearchType(s string) (SearchType, error) {
	t := SearchType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case SearchAll, SearchOffice, SearchStreet, SearchCity:
		return t, nil
	}
	return "", fmt.Errorf("invalid search type %q: must be one of all, office, street, city", s)
}

type MatchScore struct {
	SameHomeCity    bool `json:"sameHomeCity" yaml:"sameHomeCity"`
	SameHomeStreet  bool `json:"sameHomeStreet" yaml:"sameHomeStreet"`
	SameHomeZipcode bool `json:"sameHomeZipcode" yaml:"sameHomeZipcode"`
}

type SearchResult struct {
	UserProfile `yaml:",inline"`
	MatchScore  MatchScore `json:"matchScore" yaml:"matchScore"`
}

type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusAccepted RequestStatus = "accepted"
	StatusRejected RequestStatus = "rejected"
)

type ConnectionRequest struct {
	ID        int64         `json:"id" yaml:"id"`
	Status    RequestStatus `json:"status" yaml:"status"`
	CreatedAt Timestamp     `json:"createdAt" yaml:"createdAt"`
	Sender    *UserProfile  `json:"sender,omitempty" yaml:"sender,omitempty"`
	Receiver  *UserProfile  `json:"receiver,omitempty" yaml:"receiver,omitempty"`
}

type ConnectionRequests struct {
	Received []ConnectionRequest `json:"received" yaml:"received"`
	Sent     []ConnectionRequest `json:"sent" yaml:"sent"`
}

type ConnectedUser struct {
	UserProfile `yaml:",inline"`
	ConnectedAt Timestamp `json:"connectedAt" yaml:"connectedAt"`
}

type LastMessage struct {
	Content   string    `json:"content" yaml:"content"`
	CreatedAt Timestamp `json:"createdAt" yaml:"createdAt"`
	SenderID  int64     `json:"senderId" yaml:"senderId"`
}

type Conversation struct {
	ID          int64        `json:"id" yaml:"id"`
	OtherUser   UserProfile  `json:"otherUser" yaml:"otherUser"`
	LastMessage *LastMessage `json:"lastMessage" yaml:"lastMessage"`
	UnreadCount int          `json:"unreadCount" yaml:"unreadCount"`
	UpdatedAt   Timestamp    `json:"updatedAt" yaml:"updatedAt"`
}

type Message struct {
	ID             int64     `json:"id" yaml:"id"`
	ConversationID int64     `json:"conversationId,omitempty" yaml:"conversationId,omitempty"`
	SenderID       int64     `json:"senderId" yaml:"senderId"`
	Content        string    `json:"content" yaml:"content"`
	IsRead         bool      `json:"isRead" yaml:"isRead"`
	CreatedAt      Timestamp `json:"createdAt" yaml:"createdAt"`
}

// Thread is the payload of GET /conversations/{userId}/messages.
type Thread struct {
	ConversationID int64     `json:"conversationId" yaml:"conversationId"`
	Messages       []Message `json:"messages" yaml:"messages"`
}

type TokenResponse struct {
	ID          int64  `json:"id,omitempty" yaml:"id,omitempty"`
	UserID      int64  `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	AccessToken string `json:"access_token" yaml:"access_token"`
	TokenType   string `json:"token_type" yaml:"token_type"`
}
