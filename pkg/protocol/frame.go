package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// FrameTypeMessage is the only push frame type the client acts upon.
const FrameTypeMessage = "message"

// ErrMalformedFrame is returned when a push frame is not valid JSON.
var ErrMalformedFrame = errors.New("malformed frame")

// Frame is a server-to-client push payload.
type Frame struct {
	Type           string   `json:"type"`
	Message        *Message `json:"message,omitempty"`
	ConversationID string   `json:"conversationId,omitempty"`
}

// IsMessage reports whether the frame is a complete "message" frame.
// Frames of other types, or message frames missing their payload, are to be
// ignored by receivers.
func (f Frame) IsMessage() bool {
	return f.Type == FrameTypeMessage &&
		f.Message != nil &&
		f.Message.ID != "" &&
		f.ConversationID != ""
}

// DecodeFrame parses a push frame.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return f, nil
}

// EncodeFrame serializes a push frame.
func EncodeFrame(f Frame) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return data, nil
}

// NewMessageFrame builds a "message" frame for conversationID.
func NewMessageFrame(conversationID string, m Message) Frame {
	return Frame{Type: FrameTypeMessage, Message: &m, ConversationID: conversationID}
}
