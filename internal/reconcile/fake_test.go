package reconcile_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/omochice/taskflow-chat/internal/api"
	"github.com/omochice/taskflow-chat/internal/reconcile"
	"github.com/omochice/taskflow-chat/internal/transport"
	"github.com/omochice/taskflow-chat/pkg/protocol"
)

// fakeAPI records calls and lets tests decide each response. A gate, when
// set for a key, blocks the matching call until the test closes it.
type fakeAPI struct {
	mu sync.Mutex

	conversations []protocol.Conversation
	listErr       error
	history       map[string][]protocol.Message
	historyErr    error
	users         map[string][]protocol.User
	statuses      map[string]protocol.FriendStatus
	sendErr       error
	sendReply     func(conversationID string, req api.SendRequest) protocol.Message
	created       protocol.Conversation

	gates map[string]chan struct{}

	lists    int
	searches []string
	creates  [][]string
	sends    []api.SendRequest
	fetches  []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		history:  make(map[string][]protocol.Message),
		users:    make(map[string][]protocol.User),
		statuses: make(map[string]protocol.FriendStatus),
		gates:    make(map[string]chan struct{}),
	}
}

func (f *fakeAPI) gate(key string) chan struct{} {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[key] = ch
	f.mu.Unlock()
	return ch
}

func (f *fakeAPI) wait(ctx context.Context, key string) error {
	f.mu.Lock()
	ch := f.gates[key]
	f.mu.Unlock()
	if ch == nil {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeAPI) ListConversations(ctx context.Context) ([]protocol.Conversation, error) {
	f.mu.Lock()
	f.lists++
	f.mu.Unlock()

	if err := f.wait(ctx, "conversations"); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]protocol.Conversation(nil), f.conversations...), nil
}

func (f *fakeAPI) ListMessages(ctx context.Context, conversationID string) ([]protocol.Message, error) {
	f.mu.Lock()
	f.fetches = append(f.fetches, conversationID)
	f.mu.Unlock()

	if err := f.wait(ctx, "messages:"+conversationID); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return append([]protocol.Message(nil), f.history[conversationID]...), nil
}

func (f *fakeAPI) SearchUsers(ctx context.Context, query string) ([]protocol.User, error) {
	f.mu.Lock()
	f.searches = append(f.searches, query)
	f.mu.Unlock()

	if err := f.wait(ctx, "search:"+query); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	users, ok := f.users[query]
	if !ok {
		return nil, &api.Error{Status: 500, Message: "search unavailable"}
	}
	return users, nil
}

func (f *fakeAPI) CreateConversation(ctx context.Context, participantIDs []string) (protocol.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, participantIDs)
	if f.created.ID == "" {
		return protocol.Conversation{}, errors.New("create not configured")
	}
	return f.created, nil
}

func (f *fakeAPI) SendMessage(ctx context.Context, conversationID string, req api.SendRequest) (protocol.Message, error) {
	f.mu.Lock()
	f.sends = append(f.sends, req)
	f.mu.Unlock()

	if err := f.wait(ctx, "send:"+req.Text); err != nil {
		return protocol.Message{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return protocol.Message{}, f.sendErr
	}
	return f.sendReply(conversationID, req), nil
}

func (f *fakeAPI) FriendStatus(ctx context.Context, targetID string) protocol.FriendStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.statuses[targetID]; ok {
		return s
	}
	return protocol.FriendStatusNone
}

func (f *fakeAPI) Searches() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.searches...)
}

func (f *fakeAPI) Lists() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists
}

func (f *fakeAPI) Creates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.creates)
}

var _ reconcile.API = (*fakeAPI)(nil)

// pushConn is a transport.Conn fed by the test.
type pushConn struct {
	frames    chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newPushConn() *pushConn {
	return &pushConn{frames: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *pushConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, io.EOF
	case data := <-c.frames:
		return data, nil
	}
}

func (c *pushConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *pushConn) RemoteAddr() string { return "push.test:4000" }

func (c *pushConn) push(conversationID string, m protocol.Message) {
	data, err := protocol.EncodeFrame(protocol.NewMessageFrame(conversationID, m))
	if err != nil {
		panic(err)
	}
	c.frames <- data
}

// blockingDialer hands out conn only after release is closed, ignoring the
// dial context. entered is closed once a dial starts.
func blockingDialer(conn *pushConn, entered, release chan struct{}) transport.Dialer {
	var once sync.Once
	return transport.DialerFunc(func(ctx context.Context, url string) (transport.Conn, error) {
		once.Do(func() { close(entered) })
		<-release
		return conn, nil
	})
}

func dialerFor(conn *pushConn) transport.Dialer {
	return transport.DialerFunc(func(ctx context.Context, url string) (transport.Conn, error) {
		if conn == nil {
			return nil, fmt.Errorf("dial %s: connection refused", url)
		}
		return conn, nil
	})
}
