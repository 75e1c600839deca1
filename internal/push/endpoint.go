package push

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// EndpointURL derives the push socket address from a page origin: the scheme
// becomes wss for https origins and ws otherwise, the origin's port is
// replaced by port, and the user id is carried in the userId query parameter.
func EndpointURL(origin string, port int, path, userID string) (string, error) {
	if userID == "" {
		return "", errors.New("user id is required")
	}
	u, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("invalid origin %q: %w", origin, err)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("origin %q has no host", origin)
	}
	if port <= 0 || port > 65535 {
		return "", fmt.Errorf("port out of range: %d", port)
	}

	scheme := "ws"
	if u.Scheme == "https" {
		scheme = "wss"
	}
	if path == "" {
		path = "/"
	}

	out := url.URL{
		Scheme:   scheme,
		Host:     net.JoinHostPort(host, strconv.Itoa(port)),
		Path:     path,
		RawQuery: url.Values{"userId": {userID}}.Encode(),
	}
	return out.String(), nil
}
