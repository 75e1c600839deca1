package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/omochice/taskflow-chat/pkg/protocol"
)

// FriendRequest is a pending or answered friendship request.
type FriendRequest struct {
	ID         string         `json:"id"`
	SenderID   string         `json:"senderId"`
	ReceiverID string         `json:"receiverId"`
	Status     string         `json:"status"`
	Sender     *protocol.User `json:"sender,omitempty"`
	Receiver   *protocol.User `json:"receiver,omitempty"`
}

// SendFriendRequest asks receiverID to become a friend.
func (c *Client) SendFriendRequest(ctx context.Context, receiverID string) error {
	body := struct {
		ReceiverID string `json:"receiverId"`
	}{ReceiverID: receiverID}
	_, err := c.do(ctx, http.MethodPost, "/friends/requests", body, nil)
	return err
}

// FriendRequests returns the caller's incoming and outgoing requests.
func (c *Client) FriendRequests(ctx context.Context) ([]FriendRequest, error) {
	var reqs []FriendRequest
	if _, err := c.do(ctx, http.MethodGet, "/friends/requests", nil, &reqs); err != nil {
		return nil, err
	}
	return reqs, nil
}

// RespondToFriendRequest accepts or rejects a request.
func (c *Client) RespondToFriendRequest(ctx context.Context, requestID string, accept bool) error {
	action := "reject"
	if accept {
		action = "accept"
	}
	body := struct {
		Action string `json:"action"`
	}{Action: action}
	_, err := c.do(ctx, http.MethodPatch, "/friends/requests/"+url.PathEscape(requestID), body, nil)
	return err
}

// Friends returns the confirmed friends of userID.
func (c *Client) Friends(ctx context.Context, userID string) ([]protocol.User, error) {
	var users []protocol.User
	if _, err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(userID)+"/friends", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// FriendStatus returns the friendship state with targetID. Lookup failures
// are logged and reported as FriendStatusNone.
func (c *Client) FriendStatus(ctx context.Context, targetID string) protocol.FriendStatus {
	var resp struct {
		Status string `json:"status"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/friends/status/"+url.PathEscape(targetID), nil, &resp); err != nil {
		c.logger.Warn("friend status lookup failed", "target", targetID, "error", err)
		return protocol.FriendStatusNone
	}
	return protocol.ParseFriendStatus(resp.Status)
}
