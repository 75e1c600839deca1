// Package reconcile merges optimistic writes, request results and push frames
// into the conversation store. It is the only writer of the store.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/omochice/taskflow-chat/internal/api"
	"github.com/omochice/taskflow-chat/internal/debounce"
	"github.com/omochice/taskflow-chat/internal/logger"
	"github.com/omochice/taskflow-chat/internal/metrics"
	"github.com/omochice/taskflow-chat/internal/push"
	"github.com/omochice/taskflow-chat/internal/store"
	"github.com/omochice/taskflow-chat/internal/transport"
	"github.com/omochice/taskflow-chat/pkg/protocol"
)

var (
	ErrNoSelection      = errors.New("no conversation selected")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrEmptyMessage     = errors.New("message is empty")
	ErrAlreadyMounted   = errors.New("already mounted")
)

// DefaultSearchDelay is the quiet period before a search is issued.
const DefaultSearchDelay = 350 * time.Millisecond

// API is the subset of the request channel the reconciler uses.
type API interface {
	ListConversations(ctx context.Context) ([]protocol.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]protocol.Message, error)
	SearchUsers(ctx context.Context, query string) ([]protocol.User, error)
	CreateConversation(ctx context.Context, participantIDs []string) (protocol.Conversation, error)
	SendMessage(ctx context.Context, conversationID string, req api.SendRequest) (protocol.Message, error)
	FriendStatus(ctx context.Context, targetID string) protocol.FriendStatus
}

var _ API = (*api.Client)(nil)

// Deps are the collaborators of a Reconciler. API and Store are required.
type Deps struct {
	API     API
	Store   *store.Store
	Dialer  transport.Dialer
	Self    protocol.User
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Clock   clockwork.Clock
	// IDs generates provisional message ids.
	IDs func() string
}

// Options tune a Reconciler.
type Options struct {
	// PushURL is the socket endpoint. Empty disables the push channel.
	PushURL     string
	SearchDelay time.Duration
	Reconnect   bool
}

// SearchResult is a user returned by a search, with the friendship state
// relative to the current user.
type SearchResult struct {
	User         protocol.User
	FriendStatus protocol.FriendStatus
}

// Reconciler applies user intents and server events to the store.
type Reconciler struct {
	api     API
	store   *store.Store
	dialer  transport.Dialer
	self    protocol.User
	logger  *slog.Logger
	metrics *metrics.Metrics
	clock   clockwork.Clock
	newID   func() string
	opts    Options

	mu        sync.Mutex
	mounted   bool
	mountGen  uint64
	ctx       context.Context
	cancel    context.CancelFunc
	channel   *push.Channel
	debouncer *debounce.Debouncer
	fetchGen  uint64
	searchSeq uint64
	results   []SearchResult
	wg        sync.WaitGroup
}

// New creates a Reconciler.
func New(deps Deps, opts Options) *Reconciler {
	if opts.SearchDelay <= 0 {
		opts.SearchDelay = DefaultSearchDelay
	}
	r := &Reconciler{
		api:     deps.API,
		store:   deps.Store,
		dialer:  deps.Dialer,
		self:    deps.Self,
		logger:  logger.OrDiscard(deps.Logger),
		metrics: deps.Metrics,
		clock:   deps.Clock,
		newID:   deps.IDs,
		opts:    opts,
	}
	if r.clock == nil {
		r.clock = clockwork.NewRealClock()
	}
	if r.newID == nil {
		r.newID = func() string { return "tmp-" + uuid.NewString() }
	}
	return r
}

// Store returns the store the reconciler writes to.
func (r *Reconciler) Store() *store.Store { return r.store }

// Self returns the current user.
func (r *Reconciler) Self() protocol.User { return r.self }

// Mount loads the conversation list and opens the push channel. Neither
// failure is returned: the view starts with an empty list or without live
// updates, and the failure is logged. An Unmount that happens while Mount is
// waiting on the network wins: the late results are dropped and a socket
// opened in the meantime is closed.
func (r *Reconciler) Mount(ctx context.Context) error {
	r.mu.Lock()
	if r.mounted {
		r.mu.Unlock()
		return ErrAlreadyMounted
	}
	r.mounted = true
	r.mountGen++
	gen := r.mountGen
	r.ctx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))
	r.debouncer = debounce.New(r.opts.SearchDelay, r.clock)
	mountCtx, stop := context.WithCancel(ctx)
	defer stop()
	defer context.AfterFunc(r.ctx, stop)()
	r.mu.Unlock()

	convs, err := r.api.ListConversations(mountCtx)
	r.mu.Lock()
	if r.mountGen != gen {
		r.mu.Unlock()
		r.logger.Debug("mount abandoned", "stage", "conversations")
		return nil
	}
	if err != nil {
		r.store.SetConversations(nil)
	} else {
		r.store.SetConversations(convs)
	}
	r.mu.Unlock()
	if err != nil {
		r.logger.Error("failed to load conversations", "error", err)
	}

	if r.self.ID == "" || r.opts.PushURL == "" || r.dialer == nil {
		r.logger.Debug("push channel disabled", "user", r.self.ID)
		return nil
	}

	ch := push.New(r.dialer, r.opts.PushURL,
		push.WithLogger(r.logger),
		push.WithMetrics(r.metrics),
		push.WithReconnect(r.opts.Reconnect),
	)
	if err := ch.Open(mountCtx); err != nil {
		r.logger.Warn("push channel unavailable", "error", err)
		return nil
	}

	r.mu.Lock()
	if r.mountGen != gen {
		r.mu.Unlock()
		r.logger.Debug("mount abandoned", "stage", "push")
		ch.Close()
		return nil
	}
	r.channel = ch
	r.wg.Add(1)
	r.mu.Unlock()

	go r.consume(ch)

	return nil
}

func (r *Reconciler) consume(ch *push.Channel) {
	defer r.wg.Done()
	for frame := range ch.Events() {
		r.HandleFrame(frame)
	}
	r.logger.Debug("push consumer stopped")
}

// Unmount closes the push channel, drops pending work and clears the store.
func (r *Reconciler) Unmount() {
	r.mu.Lock()
	if !r.mounted {
		r.mu.Unlock()
		return
	}
	r.mounted = false
	r.mountGen++
	ch := r.channel
	r.channel = nil
	r.cancel()
	r.debouncer.Stop()
	r.fetchGen++
	r.searchSeq++
	r.results = nil
	r.mu.Unlock()

	if ch != nil {
		ch.Close()
	}
	r.wg.Wait()
	r.store.Reset()
}

// Connected reports whether the push socket is up.
func (r *Reconciler) Connected() bool {
	r.mu.Lock()
	ch := r.channel
	r.mu.Unlock()
	return ch != nil && ch.IsConnected()
}

// RefreshConversations replaces the conversation list with the server's.
// On failure the list is emptied.
func (r *Reconciler) RefreshConversations(ctx context.Context) error {
	convs, err := r.api.ListConversations(ctx)
	if err != nil {
		r.store.SetConversations(nil)
		return fmt.Errorf("failed to list conversations: %w", err)
	}
	r.store.SetConversations(convs)
	return nil
}

// Select makes conversationID current and loads its history. A history
// response that arrives after another Select is discarded. On failure the
// message list stays empty.
func (r *Reconciler) Select(ctx context.Context, conversationID string) error {
	r.mu.Lock()
	r.fetchGen++
	gen := r.fetchGen
	r.store.Select(conversationID)
	r.mu.Unlock()

	if conversationID == "" {
		return nil
	}
	r.store.MarkRead(conversationID)

	msgs, err := r.api.ListMessages(ctx, conversationID)
	if err != nil {
		r.logger.Error("failed to load messages", "conversation", conversationID, "error", err)
		return fmt.Errorf("failed to load messages: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.fetchGen || !r.store.SetMessages(conversationID, msgs) {
		r.metrics.StaleFetch()
		r.logger.Debug("discarding stale history", "conversation", conversationID)
		return nil
	}
	r.logger.Debug("history loaded", "conversation", conversationID, "count", len(msgs))
	return nil
}

// Search schedules a user search after the quiet period. Each call restarts
// the period. A blank query clears the results without a request.
func (r *Reconciler) Search(query string) {
	q := strings.TrimSpace(query)

	r.mu.Lock()
	d := r.debouncer
	if q == "" {
		r.searchSeq++
		r.results = nil
	}
	r.mu.Unlock()

	if d == nil {
		return
	}
	if q == "" {
		d.Cancel()
		return
	}
	d.Trigger(func() {
		r.mu.Lock()
		ctx := r.ctx
		r.mu.Unlock()
		if _, err := r.SearchNow(ctx, q); err != nil {
			r.logger.Warn("search failed", "query", q, "error", err)
		}
	})
}

// SearchNow runs a search immediately. Its results are published to
// SearchResults only if no later search was issued in the meantime; on
// failure the previous results stay.
func (r *Reconciler) SearchNow(ctx context.Context, query string) ([]SearchResult, error) {
	r.mu.Lock()
	r.searchSeq++
	seq := r.searchSeq
	r.mu.Unlock()

	users, err := r.api.SearchUsers(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}

	results := make([]SearchResult, 0, len(users))
	for _, u := range users {
		if u.ID == r.self.ID {
			continue
		}
		results = append(results, SearchResult{User: u, FriendStatus: r.api.FriendStatus(ctx, u.ID)})
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if seq != r.searchSeq {
		r.metrics.StaleSearch()
		r.logger.Debug("discarding stale search", "query", query)
		return results, nil
	}
	r.results = results
	return results, nil
}

// SearchResults returns the latest published search results.
func (r *Reconciler) SearchResults() []SearchResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SearchResult(nil), r.results...)
}

// StartConversation selects the existing two-party conversation with target,
// or creates one, puts it first in the list and selects it.
func (r *Reconciler) StartConversation(ctx context.Context, targetID string) (protocol.Conversation, error) {
	if r.self.ID == "" {
		return protocol.Conversation{}, ErrNotAuthenticated
	}

	for _, c := range r.store.Conversations() {
		if c.IsPairOf(r.self.ID, targetID) {
			return c, r.Select(ctx, c.ID)
		}
	}

	conv, err := r.api.CreateConversation(ctx, []string{r.self.ID, targetID})
	if err != nil {
		return protocol.Conversation{}, fmt.Errorf("failed to create conversation: %w", err)
	}
	r.store.PrependConversation(conv)
	r.logger.Info("conversation created", "conversation", conv.ID, "with", targetID)

	return conv, r.Select(ctx, conv.ID)
}

// Send shows text as a provisional message in the selected conversation and
// persists it. On success the provisional entry is replaced in place; on
// failure it is removed and the error returned.
func (r *Reconciler) Send(ctx context.Context, text string) (protocol.Message, error) {
	conversationID := r.store.SelectedID()
	if conversationID == "" {
		return protocol.Message{}, ErrNoSelection
	}
	if r.self.ID == "" {
		return protocol.Message{}, ErrNotAuthenticated
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return protocol.Message{}, ErrEmptyMessage
	}

	tags := protocol.ExtractTags(text)
	localID := r.newID()
	r.store.AppendMessage(conversationID, protocol.Message{
		LocalID:   localID,
		AuthorID:  r.self.ID,
		Text:      text,
		Tags:      tags,
		CreatedAt: r.clock.Now(),
	})

	saved, err := r.api.SendMessage(ctx, conversationID, api.SendRequest{Text: text, Tags: tags})
	if err != nil {
		r.store.RemoveMessage(protocol.ProvisionalKey(localID))
		r.metrics.Sent(metrics.OutcomeRolledBack)
		r.logger.Error("failed to send message", "conversation", conversationID, "error", err)
		return protocol.Message{}, fmt.Errorf("failed to send message: %w", err)
	}

	r.store.ReplaceMessage(localID, saved)
	r.store.PatchConversationLastMessage(conversationID, saved)
	r.metrics.Sent(metrics.OutcomePersisted)
	return saved, nil
}

// HandleFrame applies a push frame. The conversation's last message is
// patched; the message is appended when its conversation is selected and no
// message with its id is shown, otherwise the unread count grows for
// messages written by someone else.
func (r *Reconciler) HandleFrame(frame protocol.Frame) {
	if !frame.IsMessage() {
		return
	}
	msg := *frame.Message
	conversationID := frame.ConversationID

	r.store.PatchConversationLastMessage(conversationID, msg)

	if r.store.AppendMessage(conversationID, msg) {
		r.metrics.Applied()
		return
	}
	if r.store.SelectedID() == conversationID {
		r.metrics.Duplicate()
		r.logger.Debug("dropping duplicate push", "message", msg.ID)
		return
	}
	if msg.AuthorID != r.self.ID {
		r.store.IncrementUnread(conversationID)
	}
	r.metrics.Applied()
}
