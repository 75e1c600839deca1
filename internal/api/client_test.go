package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/taskflow-chat/internal/api"
	"github.com/omochice/taskflow-chat/pkg/protocol"
)

func newTestServer(t *testing.T, h http.HandlerFunc) (*httptest.Server, *api.Client) {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	return server, api.New(server.URL + "/api")
}

func TestClient_BearerToken(t *testing.T) {
	var got []string
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	})

	_, err := client.ListConversations(context.Background())
	require.NoError(t, err)

	client.SetToken("secret")
	assert.Equal(t, "secret", client.Token())
	_, err = client.ListConversations(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"", "Bearer secret"}, got)
}

func TestClient_NoContent(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	convs, err := client.ListConversations(context.Background())
	require.NoError(t, err)
	assert.Nil(t, convs)

	_, err = client.SendMessage(context.Background(), "c1", api.SendRequest{Text: "hi"})
	assert.ErrorIs(t, err, api.ErrEmptyResponse)
}

func TestClient_StatusErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"json message", http.StatusBadRequest, `{"message":"text is required"}`, "text is required"},
		{"json error", http.StatusForbidden, `{"error":"not a participant"}`, "not a participant"},
		{"raw body", http.StatusInternalServerError, "boom", "boom"},
		{"json without known fields", http.StatusConflict, `{"code":7}`, `{"code":7}`},
		{"empty body", http.StatusNotFound, "", "An error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})

			_, err := client.ListMessages(context.Background(), "c1")
			require.Error(t, err)

			var apiErr *api.Error
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.wantMsg, apiErr.Message)
			assert.False(t, errors.Is(err, api.ErrNetwork))
			assert.Equal(t, tt.status, api.StatusOf(err))
		})
	}
}

func TestClient_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := api.New(url)
	_, err := client.SearchUsers(context.Background(), "al")
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrNetwork)
	assert.Equal(t, 0, api.StatusOf(err))
	assert.Equal(t, "Network error. Please check your connection.", err.Error())
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := api.New(server.URL, api.WithTimeout(50*time.Millisecond))

	start := time.Now()
	_, err := client.ListConversations(context.Background())
	assert.ErrorIs(t, err, api.ErrNetwork)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestClient_RateLimit(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	limited := api.New(client.BaseURL(), api.WithRateLimit(1, 1))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := limited.ListConversations(ctx)
	require.NoError(t, err)

	_, err = limited.ListConversations(ctx)
	assert.ErrorIs(t, err, api.ErrNetwork, "second call must wait past the deadline")
}

func TestClient_Messaging(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/users/search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "al ice", r.URL.Query().Get("q"))
		json.NewEncoder(w).Encode([]protocol.User{{ID: "u2", FirstName: "Alice"}})
	})
	mux.HandleFunc("POST /api/conversations", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Participants []string `json:"participants"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"u2"}, body.Participants)
		json.NewEncoder(w).Encode(protocol.Conversation{
			ID:           "c9",
			Participants: []protocol.User{{ID: "u1"}, {ID: "u2"}},
		})
	})
	mux.HandleFunc("GET /api/conversations", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]protocol.Conversation{{ID: "c1", UnreadCount: 2}})
	})
	mux.HandleFunc("GET /api/conversations/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "c1", r.PathValue("id"))
		json.NewEncoder(w).Encode([]protocol.Message{
			{ID: "m1", Text: "first", CreatedAt: created},
			{ID: "m2", Text: "second", CreatedAt: created.Add(time.Minute)},
		})
	})
	mux.HandleFunc("POST /api/conversations/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		var req api.SendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hello @frank", req.Text)
		assert.Equal(t, []string{"frank"}, req.Tags)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(protocol.Message{ID: "m77", AuthorID: "u1", Text: req.Text, Tags: req.Tags, CreatedAt: created})
	})

	server := httptest.NewServer(mux)
	defer server.Close()
	client := api.New(server.URL+"/api/", api.WithToken("t"))
	ctx := context.Background()

	users, err := client.SearchUsers(ctx, "al ice")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Alice", users[0].DisplayName())

	conv, err := client.CreateConversation(ctx, []string{"u2"})
	require.NoError(t, err)
	assert.Equal(t, "c9", conv.ID)

	convs, err := client.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, 2, convs[0].UnreadCount)

	msgs, err := client.ListMessages(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.True(t, msgs[0].CreatedAt.Equal(created))

	msg, err := client.SendMessage(ctx, "c1", api.SendRequest{Text: "hello @frank", Tags: []string{"frank"}})
	require.NoError(t, err)
	assert.Equal(t, "m77", msg.ID)
	assert.Equal(t, []string{"frank"}, msg.Tags)
}

func TestClient_DecodeError(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "{not json")
	})

	_, err := client.ListConversations(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, api.ErrNetwork))
	assert.Equal(t, 0, api.StatusOf(err))
}
