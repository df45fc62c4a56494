package commands

import (
	"fmt"
	"io"
	"sync"

	"bazaar/internal/chat"
	"bazaar/internal/content"
	"bazaar/internal/models"
)

// renderer prints the changes between successive room views as lines of
// text. It is shared by the room goroutine and the input loop.
type renderer struct {
	mu      sync.Mutex
	out     io.Writer
	localID string
	peerID  string

	seen       map[string]models.MessageStatus
	connKnown  bool
	connected  bool
	peerTyping bool
}

func newRenderer(out io.Writer, localID, peerID string) *renderer {
	return &renderer{
		out:     out,
		localID: localID,
		peerID:  peerID,
		seen:    make(map[string]models.MessageStatus),
	}
}

func messageKey(m models.Message) string {
	if m.ClientID != "" {
		return m.ClientID
	}
	return m.ID.String()
}

func (r *renderer) Render(v chat.View) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v.Connected != r.connected || !r.connKnown {
		switch {
		case v.Connected:
			fmt.Fprintln(r.out, "* connected")
		case r.connKnown:
			fmt.Fprintln(r.out, "* connection lost")
		}
		r.connKnown = true
		r.connected = v.Connected
	}

	for _, m := range v.Messages {
		key := messageKey(m)
		status, ok := r.seen[key]
		r.seen[key] = m.Status
		switch {
		case !ok:
			r.printMessage(m)
		case status != m.Status && m.SenderID == r.localID:
			fmt.Fprintf(r.out, "* %s: %s\n", m.Status, excerpt(m))
		}
	}

	if v.PeerTyping != r.peerTyping {
		r.peerTyping = v.PeerTyping
		if v.PeerTyping {
			fmt.Fprintf(r.out, "* %s is typing...\n", content.Printable(r.peerID))
		}
	}
}

func (r *renderer) printMessage(m models.Message) {
	who := m.SenderID
	if who == r.localID {
		who = "me"
	}
	line := fmt.Sprintf("[%s] %s: %s", m.CreatedAt.Format("15:04"), content.Printable(who), excerpt(m))
	if m.ID.IsPending() {
		line += " (sending)"
	}
	fmt.Fprintln(r.out, line)
}

// Errorf prints a problem the user should see without ending the chat.
func (r *renderer) Errorf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "! "+format+"\n", args...)
}

func excerpt(m models.Message) string {
	if m.MediaURL != "" {
		media := "[media " + content.Printable(m.MediaURL) + "]"
		if m.Content != "" {
			return content.Sanitize(m.Content) + " " + media
		}
		return media
	}
	return content.Sanitize(m.Content)
}
