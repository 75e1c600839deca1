package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/omochice/taskflow-chat/pkg/protocol"
)

// LoginResponse is returned by a successful login.
type LoginResponse struct {
	Token string        `json:"token"`
	User  protocol.User `json:"user"`
}

// Login exchanges credentials for a bearer token. The token is not installed
// on the client; call SetToken.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResponse, error) {
	body := struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}{Email: email, Password: password}

	var resp LoginResponse
	ok, err := c.do(ctx, http.MethodPost, "/auth/login", body, &resp)
	if err != nil {
		return LoginResponse{}, err
	}
	if !ok || resp.Token == "" {
		return LoginResponse{}, fmt.Errorf("login: %w", ErrEmptyResponse)
	}
	return resp, nil
}
