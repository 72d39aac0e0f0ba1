package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestampAcceptsZonelessISO(t *testing.T) {
	var m Message
	err := json.Unmarshal([]byte(`{"id":1,"senderId":2,"content":"hi","isRead":false,"createdAt":"2024-05-01T08:30:00.123456"}`), &m)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 8, 30, 0, 123456000, time.UTC), m.CreatedAt.Time)
}

func TestTimestampAcceptsRFC3339AndNull(t *testing.T) {
	var c Conversation
	err := json.Unmarshal([]byte(`{"id":3,"otherUser":{"id":9,"firstName":"A","lastName":"B"},"lastMessage":null,"unreadCount":2,"updatedAt":"2024-05-01T08:30:00+02:00"}`), &c)
	require.NoError(t, err)
	assert.Nil(t, c.LastMessage)
	assert.Equal(t, 2, c.UnreadCount)
	assert.Equal(t, 6, c.UpdatedAt.UTC().Hour())

	var ts Timestamp
	require.NoError(t, json.Unmarshal([]byte("null"), &ts))
	assert.True(t, ts.IsZero())
}

func TestTimestampRejectsGarbage(t *testing.T) {
	var ts Timestamp
	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
}

func TestParseSearchType(t *testing.T) {
	for _, in := range []string{"all", "office", " Street ", "CITY"} {
		_, err := ParseSearchType(in)
		assert.NoError(t, err, in)
	}
	_, err := ParseSearchType("zip")
	assert.Error(t, err)
}

func TestParseVote(t *testing.T) {
	v, err := ParseVote("Approve")
	require.NoError(t, err)
	assert.Equal(t, VoteApprove, v)

	_, err = ParseVote("maybe")
	assert.Error(t, err)
}

func TestVoteResultSummary(t *testing.T) {
	assert.Equal(t, "Request approved! New member added.", VoteResult{RequestApproved: true}.Summary())
	assert.Equal(t, "Request rejected.", VoteResult{RequestRejected: true}.Summary())
	assert.Equal(t, "Vote recorded. 1/3 votes.", VoteResult{VotesReceived: 1, VotesRequired: 3}.Summary())
}

func TestGroupHelpers(t *testing.T) {
	g := CarpoolGroup{Status: "OPEN", Members: []GroupMember{{ID: 1}, {ID: 2, IsSelf: true}}}
	assert.True(t, g.Status.IsOpen())
	assert.True(t, g.IsMember())

	g = CarpoolGroup{Status: GroupClosed}
	assert.False(t, g.Status.IsOpen())
	assert.False(t, g.IsMember())
}
