package backendtest

import (
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handlePush upgrades /ws?userId=<id>. Like the real backend it trusts the
// query parameter.
func (b *Backend) handlePush(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("failed to upgrade push socket", "error", err)
		return
	}

	sub := &subscriber{
		userID:   userID,
		outgoing: make(chan []byte, 16),
		closeFn:  func() { conn.Close() },
	}
	if !b.hub.register(sub) {
		conn.Close()
		return
	}
	b.logger.Debug("push socket opened", "user", userID)

	go b.servePush(conn, sub)
}

func (b *Backend) servePush(conn *websocket.Conn, sub *subscriber) {
	done := make(chan struct{})
	writerDone := make(chan struct{})
	defer func() {
		close(done)
		<-writerDone
		conn.Close()
		b.hub.unregister(sub)
		b.logger.Debug("push socket closed", "user", sub.userID)
	}()

	go func() {
		defer close(writerDone)
		for {
			select {
			case data := <-sub.outgoing:
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					b.logger.Debug("failed to write push frame", "error", err)
					conn.Close()
					return
				}
			case <-done:
				return
			}
		}
	}()

	// The client never writes; reading only observes the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				b.logger.Debug("push socket error", "error", err)
			}
			return
		}
	}
}

// SendRaw writes data verbatim to every push socket of userID.
func (b *Backend) SendRaw(userID string, data []byte) {
	b.hub.send([]string{userID}, data)
}

// DropPush closes every push socket of userID.
func (b *Backend) DropPush(userID string) {
	b.hub.drop(userID)
}

// PushClients returns the number of open push sockets of userID.
func (b *Backend) PushClients(userID string) int {
	return b.hub.count(userID)
}
