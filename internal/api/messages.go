package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/omochice/taskflow-chat/pkg/protocol"
)

// SendRequest is the body of a new message.
type SendRequest struct {
	Text string   `json:"text"`
	Tags []string `json:"tags,omitempty"`
}

// SearchUsers returns users matching the query substring.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]protocol.User, error) {
	var users []protocol.User
	if _, err := c.do(ctx, http.MethodGet, "/users/search?q="+url.QueryEscape(query), nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// CreateConversation creates a conversation between the caller and the given
// participants.
func (c *Client) CreateConversation(ctx context.Context, participantIDs []string) (protocol.Conversation, error) {
	body := struct {
		Participants []string `json:"participants"`
	}{Participants: participantIDs}

	var conv protocol.Conversation
	ok, err := c.do(ctx, http.MethodPost, "/conversations", body, &conv)
	if err != nil {
		return protocol.Conversation{}, err
	}
	if !ok || conv.ID == "" {
		return protocol.Conversation{}, fmt.Errorf("create conversation: %w", ErrEmptyResponse)
	}
	return conv, nil
}

// ListConversations returns the caller's conversation summaries.
func (c *Client) ListConversations(ctx context.Context) ([]protocol.Conversation, error) {
	var convs []protocol.Conversation
	if _, err := c.do(ctx, http.MethodGet, "/conversations", nil, &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

// ListMessages returns a conversation's messages, oldest first.
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]protocol.Message, error) {
	var msgs []protocol.Message
	if _, err := c.do(ctx, http.MethodGet, messagesPath(conversationID), nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// SendMessage appends a message to a conversation and returns it as persisted.
func (c *Client) SendMessage(ctx context.Context, conversationID string, req SendRequest) (protocol.Message, error) {
	var msg protocol.Message
	ok, err := c.do(ctx, http.MethodPost, messagesPath(conversationID), req, &msg)
	if err != nil {
		return protocol.Message{}, err
	}
	if !ok || msg.ID == "" {
		return protocol.Message{}, fmt.Errorf("send message: %w", ErrEmptyResponse)
	}
	return msg, nil
}

func messagesPath(conversationID string) string {
	return "/conversations/" + url.PathEscape(conversationID) + "/messages"
}
