package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/example/carpool-client/internal/models"
)

const (
	opGetConversations = "conversations"
	opGetMessages      = "messages_list"
	opSendMessage      = "message_send"
)

func (c *Client) GetConversations(ctx context.Context) ([]models.Conversation, error) {
	var out []models.Conversation
	err := c.do(ctx, call{
		op:       opGetConversations,
		method:   http.MethodGet,
		path:     "/conversations",
		auth:     true,
		fallback: "Failed to fetch conversations",
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetMessages loads the thread with otherUserID. The backend marks the other
// user's messages as read as a side effect.
func (c *Client) GetMessages(ctx context.Context, otherUserID int64) (*models.Thread, error) {
	var out models.Thread
	err := c.do(ctx, call{
		op:       opGetMessages,
		method:   http.MethodGet,
		path:     idPath("/conversations/%d/messages", otherUserID),
		auth:     true,
		fallback: "Failed to fetch messages",
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SendMessage(ctx context.Context, otherUserID int64, content string) (*models.Message, error) {
	form := url.Values{}
	form.Set("content", content)

	var out models.Message
	err := c.do(ctx, call{
		op:       opSendMessage,
		method:   http.MethodPost,
		path:     idPath("/conversations/%d/messages", otherUserID),
		form:     form,
		auth:     true,
		fallback: "Failed to send message",
		check: func() error {
			if strings.TrimSpace(content) == "" {
				return &Error{Kind: KindInvalidInput, Op: opSendMessage, Message: "Message content cannot be empty"}
			}
			return nil
		},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetUnreadCount sums unreadCount across all conversations. It never fails:
// no token or a failed call both yield 0.
func (c *Client) GetUnreadCount(ctx context.Context) int {
	if t, err := c.token(ctx); err != nil || t == "" {
		return 0
	}
	convs, err := c.GetConversations(ctx)
	if err != nil {
		c.logger.Warn("unread_count_failed", "error", err)
		return 0
	}
	total := 0
	for _, conv := range convs {
		total += conv.UnreadCount
	}
	return total
}
