package backendtest

import (
	"sync"
)

// subscriber is one open push socket.
type subscriber struct {
	userID   string
	outgoing chan []byte
	closeFn  func()
}

// hub tracks push sockets by user and fans frames out to them.
type hub struct {
	subs   map[string]map[*subscriber]bool
	closed bool
	mu     sync.RWMutex
	wg     sync.WaitGroup
}

func newHub() *hub {
	return &hub{
		subs: make(map[string]map[*subscriber]bool),
	}
}

// register adds s and reports false once the hub is shut down. Every
// successful register must be paired with unregister.
func (h *hub) register(s *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	if h.subs[s.userID] == nil {
		h.subs[s.userID] = make(map[*subscriber]bool)
	}
	h.subs[s.userID][s] = true
	h.wg.Add(1)
	return true
}

func (h *hub) unregister(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[s.userID], s)
	if len(h.subs[s.userID]) == 0 {
		delete(h.subs, s.userID)
	}
	h.wg.Done()
}

// send queues data for every socket of the given users. Slow sockets miss
// the frame.
func (h *hub) send(userIDs []string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, id := range userIDs {
		for s := range h.subs[id] {
			select {
			case s.outgoing <- data:
			default:
			}
		}
	}
}

// drop closes every socket of userID.
func (h *hub) drop(userID string) {
	h.mu.RLock()
	var victims []*subscriber
	for s := range h.subs[userID] {
		victims = append(victims, s)
	}
	h.mu.RUnlock()

	for _, s := range victims {
		s.closeFn()
	}
}

// shutdown refuses new sockets, closes the open ones and waits for their
// handlers to finish.
func (h *hub) shutdown() {
	h.mu.Lock()
	h.closed = true
	var victims []*subscriber
	for _, set := range h.subs {
		for s := range set {
			victims = append(victims, s)
		}
	}
	h.mu.Unlock()

	for _, s := range victims {
		s.closeFn()
	}
	h.wg.Wait()
}

func (h *hub) count(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}
