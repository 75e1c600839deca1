package backendtest_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/taskflow-chat/internal/api"
	"github.com/omochice/taskflow-chat/internal/backendtest"
	"github.com/omochice/taskflow-chat/internal/push"
	"github.com/omochice/taskflow-chat/internal/transport/ws"
	"github.com/omochice/taskflow-chat/pkg/protocol"
)

func setup(t *testing.T, opts ...backendtest.Option) (*backendtest.Backend, protocol.User, protocol.User) {
	t.Helper()
	b := backendtest.New(opts...)
	t.Cleanup(b.Close)

	ada := b.AddUser(protocol.User{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"}, "secret")
	bob := b.AddUser(protocol.User{FirstName: "Bob", Email: "bob@example.com"}, "hunter2")
	return b, ada, bob
}

func clientFor(b *backendtest.Backend, userID string) *api.Client {
	return api.New(b.URL(), api.WithToken(b.Token(userID)))
}

func TestLogin(t *testing.T) {
	b, ada, _ := setup(t)
	c := api.New(b.URL())

	resp, err := c.Login(context.Background(), "ADA@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, ada, resp.User)
	assert.NotEmpty(t, resp.Token)

	_, err = c.Login(context.Background(), "ada@example.com", "wrong")
	require.Error(t, err)
	assert.Equal(t, 401, api.StatusOf(err))
	assert.Contains(t, err.Error(), "Invalid email or password")
}

func TestRequiresToken(t *testing.T) {
	b, _, _ := setup(t)

	_, err := api.New(b.URL()).ListConversations(context.Background())
	assert.Equal(t, 401, api.StatusOf(err))

	_, err = api.New(b.URL(), api.WithToken("garbage")).ListConversations(context.Background())
	assert.Equal(t, 401, api.StatusOf(err))
}

func TestConversationFlow(t *testing.T) {
	b, ada, bob := setup(t)
	ctx := context.Background()
	c := clientFor(b, ada.ID)

	users, err := c.SearchUsers(ctx, "bo")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, bob.ID, users[0].ID)

	conv, err := c.CreateConversation(ctx, []string{bob.ID})
	require.NoError(t, err)
	assert.True(t, conv.IsPairOf(ada.ID, bob.ID))
	assert.Equal(t, 1, b.Calls("POST /conversations"))

	sent, err := c.SendMessage(ctx, conv.ID, api.SendRequest{Text: "hi @bob", Tags: []string{"bob"}})
	require.NoError(t, err)
	assert.NotEmpty(t, sent.ID)
	assert.Equal(t, []string{"bob"}, sent.Tags)

	reply, err := b.Post(conv.ID, bob.ID, "hello")
	require.NoError(t, err)
	assert.True(t, reply.CreatedAt.After(sent.CreatedAt))

	convs, err := clientFor(b, bob.ID).ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, reply.ID, convs[0].LastMessage.ID)
	assert.Equal(t, 1, convs[0].UnreadCount)

	msgs, err := c.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, sent.ID, msgs[0].ID)
	assert.Equal(t, reply.ID, msgs[1].ID)

	_, err = c.ListMessages(ctx, "missing")
	assert.Equal(t, 404, api.StatusOf(err))
}

func TestFailSends(t *testing.T) {
	b, ada, bob := setup(t)
	conv := b.AddConversation(ada.ID, bob.ID)
	c := clientFor(b, ada.ID)

	b.FailSends(1)
	_, err := c.SendMessage(context.Background(), conv.ID, api.SendRequest{Text: "lost"})
	assert.Equal(t, 500, api.StatusOf(err))

	_, err = c.SendMessage(context.Background(), conv.ID, api.SendRequest{Text: "kept"})
	require.NoError(t, err)
	assert.Len(t, b.Messages(conv.ID), 1)
}

func TestFriendFlow(t *testing.T) {
	b, ada, bob := setup(t)
	ctx := context.Background()
	adaClient := clientFor(b, ada.ID)
	bobClient := clientFor(b, bob.ID)

	assert.Equal(t, protocol.FriendStatusNone, adaClient.FriendStatus(ctx, bob.ID))

	require.NoError(t, adaClient.SendFriendRequest(ctx, bob.ID))
	assert.Equal(t, protocol.FriendStatusPending, adaClient.FriendStatus(ctx, bob.ID))
	assert.Equal(t, protocol.FriendStatusRequested, bobClient.FriendStatus(ctx, ada.ID))

	err := adaClient.SendFriendRequest(ctx, bob.ID)
	assert.Equal(t, 409, api.StatusOf(err))

	reqs, err := bobClient.FriendRequests(ctx)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	require.NotNil(t, reqs[0].Sender)
	assert.Equal(t, "Ada", reqs[0].Sender.FirstName)

	err = adaClient.RespondToFriendRequest(ctx, reqs[0].ID, true)
	assert.Equal(t, 403, api.StatusOf(err))

	require.NoError(t, bobClient.RespondToFriendRequest(ctx, reqs[0].ID, true))
	assert.Equal(t, protocol.FriendStatusFriends, adaClient.FriendStatus(ctx, bob.ID))

	friends, err := adaClient.Friends(ctx, ada.ID)
	require.NoError(t, err)
	require.Len(t, friends, 1)
	assert.Equal(t, bob.ID, friends[0].ID)
}

func TestPushDelivery(t *testing.T) {
	b, ada, bob := setup(t, backendtest.WithSenderEcho(false))
	conv := b.AddConversation(ada.ID, bob.ID)

	url, err := push.EndpointURL(b.PushOrigin(), b.PushPort(), "/ws", ada.ID)
	require.NoError(t, err)

	ch := push.New(ws.NewDialer(), url)
	require.NoError(t, ch.Open(context.Background()))
	defer ch.Close()
	require.Eventually(t, func() bool { return b.PushClients(ada.ID) == 1 }, 2*time.Second, 10*time.Millisecond)

	b.SendRaw(ada.ID, []byte("{not json"))
	_, err = clientFor(b, ada.ID).SendMessage(context.Background(), conv.ID, api.SendRequest{Text: "no echo"})
	require.NoError(t, err)
	msg, err := b.Post(conv.ID, bob.ID, "from bob")
	require.NoError(t, err)

	select {
	case frame := <-ch.Events():
		assert.Equal(t, conv.ID, frame.ConversationID)
		assert.Equal(t, msg.ID, frame.Message.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for push frame")
	}

	b.DropPush(ada.ID)
	select {
	case _, ok := <-ch.Events():
		assert.False(t, ok, "events should close after the socket drops")
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for push channel to close")
	}
}
