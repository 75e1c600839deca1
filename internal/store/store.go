// Package store holds the in-memory conversation state of a mounted
// messaging view. Every mutation is atomic with respect to Snapshot.
package store

import (
	"sync"

	"github.com/omochice/taskflow-chat/pkg/protocol"
)

// ChangeKind tells subscribers which part of the state changed.
type ChangeKind int

const (
	ChangeConversations ChangeKind = iota + 1
	ChangeSelection
	ChangeMessages
	ChangeReset
)

// String returns the string representation of ChangeKind
func (k ChangeKind) String() string {
	switch k {
	case ChangeConversations:
		return "CONVERSATIONS"
	case ChangeSelection:
		return "SELECTION"
	case ChangeMessages:
		return "MESSAGES"
	case ChangeReset:
		return "RESET"
	default:
		return "UNKNOWN"
	}
}

// Change is a coalescible notification for the view.
type Change struct {
	Kind           ChangeKind
	ConversationID string
	// ScrollToLatest asks the view to bring the newest message into view.
	ScrollToLatest bool
}

// Snapshot is a deep copy of the store state.
type Snapshot struct {
	Conversations []protocol.Conversation
	SelectedID    string
	Messages      []protocol.Message
}

const subscriberBuffer = 64

// Store is the conversation store. The zero value is not usable; use New.
type Store struct {
	mu            sync.RWMutex
	conversations []protocol.Conversation
	selectedID    string
	messages      []protocol.Message

	subMu sync.Mutex
	subs  map[chan Change]struct{}
}

// New creates an empty Store.
func New() *Store {
	return &Store{subs: make(map[chan Change]struct{})}
}

// Subscribe returns a change feed and a function that cancels it. Changes are
// dropped when the subscriber falls behind; a reader should re-read the
// Snapshot on every change it does receive.
func (s *Store) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, subscriberBuffer)
	s.subMu.Lock()
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, ch)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

func (s *Store) notify(c Change) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- c:
		default:
		}
	}
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Conversations: cloneConversations(s.conversations),
		SelectedID:    s.selectedID,
		Messages:      cloneMessages(s.messages),
	}
}

// Conversations returns a copy of the conversation list.
func (s *Store) Conversations() []protocol.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneConversations(s.conversations)
}

// Conversation returns a copy of the conversation with the given id.
func (s *Store) Conversation(id string) (protocol.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.conversationIndex(id); i >= 0 {
		return s.conversations[i].Clone(), true
	}
	return protocol.Conversation{}, false
}

// SelectedID returns the selected conversation id, or "".
func (s *Store) SelectedID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedID
}

// Messages returns a copy of the displayed message list.
func (s *Store) Messages() []protocol.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneMessages(s.messages)
}

// SetConversations replaces the conversation list. Later duplicates of an id
// are dropped.
func (s *Store) SetConversations(convs []protocol.Conversation) {
	seen := make(map[string]struct{}, len(convs))
	list := make([]protocol.Conversation, 0, len(convs))
	for _, c := range convs {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		list = append(list, c.Clone())
	}

	s.mu.Lock()
	s.conversations = list
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeConversations})
}

// PrependConversation puts conv at the front of the list. It reports false
// and changes nothing when a conversation with the same id exists.
func (s *Store) PrependConversation(conv protocol.Conversation) bool {
	s.mu.Lock()
	if s.conversationIndex(conv.ID) >= 0 {
		s.mu.Unlock()
		return false
	}
	s.conversations = append([]protocol.Conversation{conv.Clone()}, s.conversations...)
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeConversations, ConversationID: conv.ID})
	return true
}

// PatchConversationLastMessage records msg as the conversation's last message
// unless the stored one is newer. An updated conversation moves to the front
// of the list. It reports whether the conversation changed.
func (s *Store) PatchConversationLastMessage(conversationID string, msg protocol.Message) bool {
	s.mu.Lock()
	i := s.conversationIndex(conversationID)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	conv := s.conversations[i]
	if conv.LastMessage != nil && msg.CreatedAt.Before(conv.LastMessage.CreatedAt) {
		s.mu.Unlock()
		return false
	}
	lm := msg.Clone()
	conv.LastMessage = &lm

	copy(s.conversations[1:i+1], s.conversations[:i])
	s.conversations[0] = conv
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeConversations, ConversationID: conversationID})
	return true
}

// MarkRead resets the unread count of a conversation.
func (s *Store) MarkRead(conversationID string) {
	s.mu.Lock()
	i := s.conversationIndex(conversationID)
	if i < 0 || s.conversations[i].UnreadCount == 0 {
		s.mu.Unlock()
		return
	}
	s.conversations[i].UnreadCount = 0
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeConversations, ConversationID: conversationID})
}

// IncrementUnread bumps the unread count of a conversation.
func (s *Store) IncrementUnread(conversationID string) {
	s.mu.Lock()
	i := s.conversationIndex(conversationID)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	s.conversations[i].UnreadCount++
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeConversations, ConversationID: conversationID})
}

// Select makes conversationID the current selection and clears the message
// list. An empty id clears the selection.
func (s *Store) Select(conversationID string) {
	s.mu.Lock()
	s.selectedID = conversationID
	s.messages = nil
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeSelection, ConversationID: conversationID})
}

// SetMessages replaces the message list if conversationID is still the
// current selection. It reports whether the list was replaced.
func (s *Store) SetMessages(conversationID string, msgs []protocol.Message) bool {
	list := make([]protocol.Message, 0, len(msgs))
	seen := make(map[protocol.MessageKey]struct{}, len(msgs))
	for _, m := range msgs {
		k := m.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		list = append(list, m.Clone())
	}

	s.mu.Lock()
	if conversationID == "" || conversationID != s.selectedID {
		s.mu.Unlock()
		return false
	}
	s.messages = list
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeMessages, ConversationID: conversationID, ScrollToLatest: true})
	return true
}

// AppendMessage appends msg to the list of the selected conversation. It is a
// no-op when conversationID is not selected or a message with the same key is
// already displayed.
func (s *Store) AppendMessage(conversationID string, msg protocol.Message) bool {
	s.mu.Lock()
	if conversationID == "" || conversationID != s.selectedID || s.messageIndex(msg.Key()) >= 0 {
		s.mu.Unlock()
		return false
	}
	s.messages = append(s.messages, msg.Clone())
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeMessages, ConversationID: conversationID, ScrollToLatest: true})
	return true
}

// ReplaceMessage swaps the provisional message localID for its persisted
// form, keeping its position. A copy of the persisted message that is already
// displayed elsewhere, such as a pushed echo, is removed. It reports false
// when no provisional message with localID exists.
func (s *Store) ReplaceMessage(localID string, real protocol.Message) bool {
	s.mu.Lock()
	i := s.messageIndex(protocol.ProvisionalKey(localID))
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	j := -1
	if real.ID != "" {
		j = s.messageIndex(real.Key())
	}
	s.messages[i] = real.Clone()
	if j >= 0 {
		s.messages = append(s.messages[:j], s.messages[j+1:]...)
	}
	conversationID := s.selectedID
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeMessages, ConversationID: conversationID})
	return true
}

// RemoveMessage deletes the message with the given key.
func (s *Store) RemoveMessage(key protocol.MessageKey) bool {
	s.mu.Lock()
	i := s.messageIndex(key)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.messages = append(s.messages[:i], s.messages[i+1:]...)
	conversationID := s.selectedID
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeMessages, ConversationID: conversationID})
	return true
}

// Reset clears all state.
func (s *Store) Reset() {
	s.mu.Lock()
	s.conversations = nil
	s.selectedID = ""
	s.messages = nil
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeReset})
}

func (s *Store) conversationIndex(id string) int {
	for i := range s.conversations {
		if s.conversations[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) messageIndex(key protocol.MessageKey) int {
	for i := range s.messages {
		if s.messages[i].Key() == key {
			return i
		}
	}
	return -1
}

func cloneConversations(in []protocol.Conversation) []protocol.Conversation {
	if in == nil {
		return nil
	}
	out := make([]protocol.Conversation, len(in))
	for i, c := range in {
		out[i] = c.Clone()
	}
	return out
}

func cloneMessages(in []protocol.Message) []protocol.Message {
	if in == nil {
		return nil
	}
	out := make([]protocol.Message, len(in))
	for i, m := range in {
		out[i] = m.Clone()
	}
	return out
}
