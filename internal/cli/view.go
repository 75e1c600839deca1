package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/omochice/taskflow-chat/pkg/protocol"
)

// conversationTitle names a conversation by its other participants.
func conversationTitle(c protocol.Conversation, selfID string) string {
	var names []string
	for _, p := range c.Participants {
		if p.ID != selfID {
			names = append(names, p.DisplayName())
		}
	}
	if len(names) == 0 {
		return "(just you)"
	}
	return strings.Join(names, ", ")
}

func authorName(c protocol.Conversation, selfID, authorID string) string {
	if authorID == selfID {
		return "you"
	}
	for _, p := range c.Participants {
		if p.ID == authorID {
			return p.DisplayName()
		}
	}
	return authorID
}

func printConversations(w io.Writer, convs []protocol.Conversation, selfID string, now time.Time) {
	if len(convs) == 0 {
		fmt.Fprintln(w, "No conversations yet.")
		return
	}
	for _, c := range convs {
		line := fmt.Sprintf("%-12s %s", c.ID, conversationTitle(c, selfID))
		if c.UnreadCount > 0 {
			line += fmt.Sprintf(" (%s unread)", humanize.Comma(int64(c.UnreadCount)))
		}
		if lm := c.LastMessage; lm != nil {
			line += fmt.Sprintf(" | %s: %s, %s", authorName(c, selfID, lm.AuthorID), truncate(lm.Text, 40), humanize.RelTime(lm.CreatedAt, now, "ago", "from now"))
		}
		fmt.Fprintln(w, line)
	}
}

func printMessage(w io.Writer, c protocol.Conversation, selfID string, m protocol.Message) {
	fmt.Fprintf(w, "[%s]: %s\n", authorName(c, selfID, m.AuthorID), m.Text)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
