package backendtest

import (
	"encoding/json"
	"net/http"

	"github.com/omochice/taskflow-chat/internal/api"
	"github.com/omochice/taskflow-chat/pkg/protocol"
)

const (
	requestPending  = "pending"
	requestAccepted = "accepted"
	requestRejected = "rejected"
)

// AddFriendship records an accepted friendship between a and c.
func (b *Backend) AddFriendship(a, c string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, &api.FriendRequest{
		ID:         b.nextID("f"),
		SenderID:   a,
		ReceiverID: c,
		Status:     requestAccepted,
	})
}

func (b *Backend) handleSendFriendRequest(w http.ResponseWriter, r *http.Request, userID string) {
	var req struct {
		ReceiverID string `json:"receiverId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ReceiverID == "" {
		writeError(w, http.StatusBadRequest, "receiverId is required")
		return
	}
	if req.ReceiverID == userID {
		writeError(w, http.StatusBadRequest, "Cannot send a friend request to yourself")
		return
	}

	b.mu.Lock()
	if _, ok := b.accounts[req.ReceiverID]; !ok {
		b.mu.Unlock()
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if b.statusLocked(userID, req.ReceiverID) != protocol.FriendStatusNone {
		b.mu.Unlock()
		writeError(w, http.StatusConflict, "Friend request already exists")
		return
	}
	fr := &api.FriendRequest{
		ID:         b.nextID("f"),
		SenderID:   userID,
		ReceiverID: req.ReceiverID,
		Status:     requestPending,
	}
	b.requests = append(b.requests, fr)
	out := *fr
	b.mu.Unlock()

	writeJSON(w, http.StatusCreated, out)
}

func (b *Backend) handleFriendRequests(w http.ResponseWriter, r *http.Request, userID string) {
	b.mu.Lock()
	out := make([]api.FriendRequest, 0)
	for _, fr := range b.requests {
		if fr.Status != requestPending || (fr.SenderID != userID && fr.ReceiverID != userID) {
			continue
		}
		item := *fr
		if a, ok := b.accounts[fr.SenderID]; ok {
			u := a.user
			item.Sender = &u
		}
		if a, ok := b.accounts[fr.ReceiverID]; ok {
			u := a.user
			item.Receiver = &u
		}
		out = append(out, item)
	}
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) handleRespondFriendRequest(w http.ResponseWriter, r *http.Request, userID string) {
	var req struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var fr *api.FriendRequest
	for _, candidate := range b.requests {
		if candidate.ID == r.PathValue("id") {
			fr = candidate
			break
		}
	}
	switch {
	case fr == nil:
		writeError(w, http.StatusNotFound, "Friend request not found")
		return
	case fr.ReceiverID != userID:
		writeError(w, http.StatusForbidden, "Not allowed to answer this request")
		return
	case fr.Status != requestPending:
		writeError(w, http.StatusConflict, "Friend request already answered")
		return
	}

	switch req.Action {
	case "accept":
		fr.Status = requestAccepted
	case "reject":
		fr.Status = requestRejected
	default:
		writeError(w, http.StatusBadRequest, "action must be accept or reject")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) handleFriends(w http.ResponseWriter, r *http.Request, _ string) {
	target := r.PathValue("id")

	b.mu.Lock()
	out := make([]protocol.User, 0)
	for _, fr := range b.requests {
		if fr.Status != requestAccepted {
			continue
		}
		var other string
		switch target {
		case fr.SenderID:
			other = fr.ReceiverID
		case fr.ReceiverID:
			other = fr.SenderID
		default:
			continue
		}
		if a, ok := b.accounts[other]; ok {
			out = append(out, a.user)
		}
	}
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) handleFriendStatus(w http.ResponseWriter, r *http.Request, userID string) {
	b.mu.Lock()
	status := b.statusLocked(userID, r.PathValue("id"))
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

// statusLocked is seen from self: pending means self asked, requested means
// other asked. It must be called with b.mu held.
func (b *Backend) statusLocked(self, other string) protocol.FriendStatus {
	for _, fr := range b.requests {
		mine := fr.SenderID == self && fr.ReceiverID == other
		theirs := fr.SenderID == other && fr.ReceiverID == self
		if !mine && !theirs {
			continue
		}
		switch {
		case fr.Status == requestAccepted:
			return protocol.FriendStatusFriends
		case fr.Status == requestPending && mine:
			return protocol.FriendStatusPending
		case fr.Status == requestPending && theirs:
			return protocol.FriendStatusRequested
		}
	}
	return protocol.FriendStatusNone
}
