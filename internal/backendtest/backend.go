// Package backendtest runs an in-memory messaging backend with the REST routes
// and the push socket the client talks to. It is meant for tests and local
// demos, not production.
package backendtest

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/omochice/taskflow-chat/internal/api"
	"github.com/omochice/taskflow-chat/internal/logger"
	"github.com/omochice/taskflow-chat/pkg/protocol"
)

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) { b.logger = logger.OrDiscard(l) }
}

// WithSenderEcho controls whether a new message is also pushed to its author.
// On by default.
func WithSenderEcho(enabled bool) Option {
	return func(b *Backend) { b.echo = enabled }
}

type account struct {
	user     protocol.User
	password string
}

type conversation struct {
	protocol.Conversation
	messages []protocol.Message
	unread   map[string]int
}

// Backend is an in-memory backend. Create one with New and stop it with
// Close.
type Backend struct {
	logger *slog.Logger
	secret []byte
	echo   bool

	mu        sync.Mutex
	accounts  map[string]*account
	convs     []*conversation
	requests  []*api.FriendRequest
	seq       int
	lastStamp time.Time
	failSends int
	calls     map[string]int

	hub  *hub
	rest *httptest.Server
	push *httptest.Server
}

// New starts the REST and push servers.
func New(opts ...Option) *Backend {
	b := &Backend{
		logger:   logger.Discard(),
		secret:   []byte("backendtest-secret"),
		echo:     true,
		accounts: make(map[string]*account),
		calls:    make(map[string]int),
		hub:      newHub(),
	}
	for _, opt := range opts {
		opt(b)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", b.handleLogin)
	mux.HandleFunc("GET /users/search", b.authed(b.handleSearch))
	mux.HandleFunc("GET /users/{id}/friends", b.authed(b.handleFriends))
	mux.HandleFunc("POST /conversations", b.authed(b.handleCreateConversation))
	mux.HandleFunc("GET /conversations", b.authed(b.handleListConversations))
	mux.HandleFunc("GET /conversations/{id}/messages", b.authed(b.handleListMessages))
	mux.HandleFunc("POST /conversations/{id}/messages", b.authed(b.handleSendMessage))
	mux.HandleFunc("POST /friends/requests", b.authed(b.handleSendFriendRequest))
	mux.HandleFunc("GET /friends/requests", b.authed(b.handleFriendRequests))
	mux.HandleFunc("PATCH /friends/requests/{id}", b.authed(b.handleRespondFriendRequest))
	mux.HandleFunc("GET /friends/status/{id}", b.authed(b.handleFriendStatus))
	b.rest = httptest.NewServer(b.count(mux))

	pushMux := http.NewServeMux()
	pushMux.HandleFunc("GET /ws", b.handlePush)
	b.push = httptest.NewServer(pushMux)

	return b
}

// Close stops both servers and every push socket.
func (b *Backend) Close() {
	b.rest.Close()
	b.hub.shutdown()
	b.push.Close()
}

// URL returns the REST base URL.
func (b *Backend) URL() string { return b.rest.URL }

// PushOrigin returns an origin whose host serves the push socket.
func (b *Backend) PushOrigin() string { return "http://127.0.0.1" }

// PushPort returns the port of the push socket.
func (b *Backend) PushPort() int {
	u, err := url.Parse(b.push.URL)
	if err != nil {
		return 0
	}
	port, _ := strconv.Atoi(u.Port())
	return port
}

// AddUser registers an account. An empty user id is assigned.
func (b *Backend) AddUser(u protocol.User, password string) protocol.User {
	b.mu.Lock()
	defer b.mu.Unlock()
	if u.ID == "" {
		u.ID = b.nextID("u")
	}
	b.accounts[u.ID] = &account{user: u, password: password}
	return u
}

// Token issues a bearer token for userID.
func (b *Backend) Token(userID string) string {
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.secret)
	if err != nil {
		panic(fmt.Sprintf("failed to sign token: %v", err))
	}
	return token
}

// AddConversation stores a conversation between the given users.
func (b *Backend) AddConversation(participantIDs ...string) protocol.Conversation {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.createConversation(participantIDs)
	return c.Clone()
}

// Post persists a message written by authorID, as if sent from another
// device, and pushes it.
func (b *Backend) Post(conversationID, authorID, text string) (protocol.Message, error) {
	b.mu.Lock()
	c := b.conversation(conversationID)
	if c == nil {
		b.mu.Unlock()
		return protocol.Message{}, fmt.Errorf("unknown conversation %q", conversationID)
	}
	msg := b.appendMessage(c, authorID, text, protocol.ExtractTags(text))
	targets := b.pushTargets(c, authorID)
	b.mu.Unlock()

	b.deliver(c.ID, msg, targets)
	return msg, nil
}

// Messages returns the stored messages of a conversation.
func (b *Backend) Messages(conversationID string) []protocol.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.conversation(conversationID)
	if c == nil {
		return nil
	}
	out := make([]protocol.Message, len(c.messages))
	for i, m := range c.messages {
		out[i] = m.Clone()
	}
	return out
}

// FailSends makes the next n message posts fail with a 500.
func (b *Backend) FailSends(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failSends = n
}

// Calls returns how many requests matched the route pattern, for example
// "POST /conversations".
func (b *Backend) Calls(pattern string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[pattern]
}

func (b *Backend) count(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, pattern := mux.Handler(r); pattern != "" {
			b.mu.Lock()
			b.calls[pattern]++
			b.mu.Unlock()
		}
		mux.ServeHTTP(w, r)
	})
}

type userHandler func(w http.ResponseWriter, r *http.Request, userID string)

func (b *Backend) authed(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, "missing token")
			return
		}
		userID, err := b.validate(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next(w, r, userID)
	}
}

func (b *Backend) validate(raw string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return b.secret, nil
	})
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.accounts[claims.Subject]; !ok {
		return "", errors.New("unknown user")
	}
	return claims.Subject, nil
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	b.mu.Lock()
	var found *account
	for _, a := range b.accounts {
		if strings.EqualFold(a.user.Email, req.Email) {
			found = a
			break
		}
	}
	b.mu.Unlock()

	if found == nil || found.password != req.Password {
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	writeJSON(w, http.StatusOK, api.LoginResponse{Token: b.Token(found.user.ID), User: found.user})
}

func (b *Backend) handleSearch(w http.ResponseWriter, r *http.Request, _ string) {
	q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))

	b.mu.Lock()
	users := make([]protocol.User, 0)
	if q != "" {
		for _, a := range b.accounts {
			u := a.user
			fields := []string{u.FirstName, u.LastName, u.Email, u.Username}
			if slices.ContainsFunc(fields, func(f string) bool { return strings.Contains(strings.ToLower(f), q) }) {
				users = append(users, u)
			}
		}
	}
	b.mu.Unlock()

	slices.SortFunc(users, func(a, b protocol.User) int { return strings.Compare(a.ID, b.ID) })
	writeJSON(w, http.StatusOK, users)
}

func (b *Backend) handleCreateConversation(w http.ResponseWriter, r *http.Request, userID string) {
	var req struct {
		Participants []string `json:"participants"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	ids := req.Participants
	if !slices.Contains(ids, userID) {
		ids = append([]string{userID}, ids...)
	}

	b.mu.Lock()
	for _, id := range ids {
		if _, ok := b.accounts[id]; !ok {
			b.mu.Unlock()
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown participant %s", id))
			return
		}
	}
	conv := b.createConversation(ids).Conversation.Clone()
	b.mu.Unlock()

	writeJSON(w, http.StatusCreated, conv)
}

func (b *Backend) handleListConversations(w http.ResponseWriter, r *http.Request, userID string) {
	b.mu.Lock()
	out := make([]protocol.Conversation, 0)
	for _, c := range b.convs {
		if !c.HasParticipant(userID) {
			continue
		}
		conv := c.Conversation.Clone()
		conv.UnreadCount = c.unread[userID]
		out = append(out, conv)
	}
	b.mu.Unlock()

	slices.SortStableFunc(out, func(x, y protocol.Conversation) int {
		return lastActivity(y).Compare(lastActivity(x))
	})
	writeJSON(w, http.StatusOK, out)
}

func lastActivity(c protocol.Conversation) time.Time {
	if c.LastMessage == nil {
		return time.Time{}
	}
	return c.LastMessage.CreatedAt
}

func (b *Backend) handleListMessages(w http.ResponseWriter, r *http.Request, userID string) {
	b.mu.Lock()
	c := b.conversation(r.PathValue("id"))
	if c == nil || !c.HasParticipant(userID) {
		b.mu.Unlock()
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	delete(c.unread, userID)
	msgs := slices.Clone(c.messages)
	b.mu.Unlock()

	if msgs == nil {
		msgs = []protocol.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (b *Backend) handleSendMessage(w http.ResponseWriter, r *http.Request, userID string) {
	var req api.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	b.mu.Lock()
	if b.failSends > 0 {
		b.failSends--
		b.mu.Unlock()
		writeError(w, http.StatusInternalServerError, "Failed to send message")
		return
	}
	c := b.conversation(r.PathValue("id"))
	if c == nil || !c.HasParticipant(userID) {
		b.mu.Unlock()
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	msg := b.appendMessage(c, userID, req.Text, req.Tags)
	targets := b.pushTargets(c, userID)
	b.mu.Unlock()

	b.deliver(c.ID, msg, targets)
	writeJSON(w, http.StatusCreated, msg)
}

// createConversation must be called with b.mu held.
func (b *Backend) createConversation(participantIDs []string) *conversation {
	c := &conversation{unread: make(map[string]int)}
	c.ID = b.nextID("c")
	for _, id := range participantIDs {
		if c.HasParticipant(id) {
			continue
		}
		u := protocol.User{ID: id}
		if a, ok := b.accounts[id]; ok {
			u = a.user
		}
		c.Participants = append(c.Participants, u)
	}
	b.convs = append(b.convs, c)
	return c
}

// conversation must be called with b.mu held.
func (b *Backend) conversation(id string) *conversation {
	for _, c := range b.convs {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// appendMessage must be called with b.mu held.
func (b *Backend) appendMessage(c *conversation, authorID, text string, tags []string) protocol.Message {
	stamp := time.Now().UTC()
	if !stamp.After(b.lastStamp) {
		stamp = b.lastStamp.Add(time.Millisecond)
	}
	b.lastStamp = stamp

	msg := protocol.Message{
		ID:        b.nextID("m"),
		AuthorID:  authorID,
		Text:      text,
		Tags:      tags,
		CreatedAt: stamp,
	}
	c.messages = append(c.messages, msg)
	lm := msg.Clone()
	c.LastMessage = &lm
	for _, p := range c.Participants {
		if p.ID != authorID {
			c.unread[p.ID]++
		}
	}
	return msg
}

// pushTargets must be called with b.mu held.
func (b *Backend) pushTargets(c *conversation, authorID string) []string {
	var ids []string
	for _, p := range c.Participants {
		if p.ID == authorID && !b.echo {
			continue
		}
		ids = append(ids, p.ID)
	}
	return ids
}

func (b *Backend) deliver(conversationID string, msg protocol.Message, userIDs []string) {
	data, err := protocol.EncodeFrame(protocol.NewMessageFrame(conversationID, msg))
	if err != nil {
		b.logger.Error("failed to encode push frame", "error", err)
		return
	}
	b.hub.send(userIDs, data)
}

// nextID must be called with b.mu held.
func (b *Backend) nextID(prefix string) string {
	b.seq++
	return fmt.Sprintf("%s%d", prefix, b.seq)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
