// Package protocol defines the messaging data model shared with the backend
// and the JSON push frames delivered over the socket.
package protocol

import (
	"strings"
	"time"
)

// User is an identity reference as returned by the backend.
type User struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Email     string `json:"email,omitempty"`
	Username  string `json:"username,omitempty"`
}

// DisplayName returns a human readable name for the user.
func (u User) DisplayName() string {
	if u.FirstName != "" || u.LastName != "" {
		return strings.TrimSpace(u.FirstName + " " + u.LastName)
	}
	if u.Email != "" {
		if local, _, _ := strings.Cut(u.Email, "@"); local != "" {
			return local
		}
	}
	return "User"
}

type keyKind int

const (
	keyProvisional keyKind = iota + 1
	keyPersisted
)

// MessageKey identifies a message either by its local provisional id or by
// its server-assigned id. Keys of different kinds never compare equal.
type MessageKey struct {
	kind keyKind
	id   string
}

// ProvisionalKey returns the key of a message that has not been persisted yet.
func ProvisionalKey(localID string) MessageKey {
	return MessageKey{kind: keyProvisional, id: localID}
}

// PersistedKey returns the key of a message carrying a server id.
func PersistedKey(serverID string) MessageKey {
	return MessageKey{kind: keyPersisted, id: serverID}
}

// IsProvisional reports whether the key refers to an unpersisted message.
func (k MessageKey) IsProvisional() bool { return k.kind == keyProvisional }

// ID returns the raw id held by the key.
func (k MessageKey) ID() string { return k.id }

// String returns the string representation of MessageKey
func (k MessageKey) String() string {
	switch k.kind {
	case keyProvisional:
		return "provisional:" + k.id
	case keyPersisted:
		return "persisted:" + k.id
	default:
		return "unknown"
	}
}

// Message is an immutable chat message.
// ID is empty until the backend has persisted the message; until then LocalID
// identifies the optimistic copy.
type Message struct {
	ID        string    `json:"id"`
	LocalID   string    `json:"-"`
	AuthorID  string    `json:"authorId"`
	Text      string    `json:"text"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Key returns the persisted key when the message has a server id and the
// provisional key otherwise.
func (m Message) Key() MessageKey {
	if m.ID != "" {
		return PersistedKey(m.ID)
	}
	return ProvisionalKey(m.LocalID)
}

// IsProvisional reports whether the message is still awaiting persistence.
func (m Message) IsProvisional() bool { return m.ID == "" }

// Clone returns a copy that does not share the tag slice.
func (m Message) Clone() Message {
	if m.Tags != nil {
		m.Tags = append([]string(nil), m.Tags...)
	}
	return m
}

// Conversation is a thread between a fixed set of participants.
type Conversation struct {
	ID           string   `json:"id"`
	Participants []User   `json:"participants"`
	LastMessage  *Message `json:"lastMessage,omitempty"`
	UnreadCount  int      `json:"unreadCount,omitempty"`
}

// HasParticipant reports whether userID takes part in the conversation.
func (c Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}

// IsPairOf reports whether the conversation has exactly two participants and
// they are a and b.
func (c Conversation) IsPairOf(a, b string) bool {
	if len(c.Participants) != 2 {
		return false
	}
	return c.HasParticipant(a) && c.HasParticipant(b)
}

// Other returns the first participant that is not selfID.
func (c Conversation) Other(selfID string) (User, bool) {
	for _, p := range c.Participants {
		if p.ID != selfID {
			return p, true
		}
	}
	return User{}, false
}

// Clone returns a deep copy of the conversation.
func (c Conversation) Clone() Conversation {
	if c.Participants != nil {
		c.Participants = append([]User(nil), c.Participants...)
	}
	if c.LastMessage != nil {
		lm := c.LastMessage.Clone()
		c.LastMessage = &lm
	}
	return c
}

// FriendStatus is the friendship state between the current user and another.
type FriendStatus string

const (
	FriendStatusNone      FriendStatus = "none"
	FriendStatusPending   FriendStatus = "pending"
	FriendStatusRequested FriendStatus = "requested"
	FriendStatusFriends   FriendStatus = "friends"
)

// ParseFriendStatus maps unknown values to FriendStatusNone.
func ParseFriendStatus(s string) FriendStatus {
	switch FriendStatus(s) {
	case FriendStatusPending, FriendStatusRequested, FriendStatusFriends:
		return FriendStatus(s)
	default:
		return FriendStatusNone
	}
}
