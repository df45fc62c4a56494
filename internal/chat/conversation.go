package chat

import (
	"errors"
	"log/slog"
	"slices"
	"time"

	"bazaar/internal/clock"
	"bazaar/internal/models"

	"github.com/google/uuid"
)

const DefaultTypingTimeout = 3 * time.Second

// Sender transmits frames on the session socket. Send reports false when
// the frame was dropped.
type Sender interface {
	Send(frame models.Frame) bool
}

type Config struct {
	LocalUserID   string
	ThreadID      string
	PeerID        string
	Sender        Sender
	Clock         clock.Clock
	TypingTimeout time.Duration
	Logger        *slog.Logger

	// AfterFunc schedules the typing timers. Defaults to Clock.AfterFunc.
	AfterFunc func(d time.Duration, f func()) clock.Timer
}

// Conversation is the timeline of one (thread, peer) pair. It merges the
// REST history, optimistic local sends and realtime events into a single
// ordered list without duplicates.
//
// Conversation is not safe for concurrent use; Room confines it to one
// goroutine.
type Conversation struct {
	localID  string
	threadID string
	peerID   string
	sender   Sender
	clock    clock.Clock
	after    afterFunc
	timeout  time.Duration
	log      *slog.Logger

	messages []models.Message
	seq      uint64
	typing   *typingIndicator

	peerTyping bool
	peerTimer  clock.Timer
	peerGen    uint64
}

func NewConversation(cfg Config) (*Conversation, error) {
	if cfg.LocalUserID == "" || cfg.ThreadID == "" || cfg.PeerID == "" {
		return nil, errors.New("conversation needs local user, thread and peer ids")
	}
	if cfg.Sender == nil {
		return nil, errors.New("conversation needs a sender")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.TypingTimeout <= 0 {
		cfg.TypingTimeout = DefaultTypingTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.AfterFunc == nil {
		cfg.AfterFunc = cfg.Clock.AfterFunc
	}

	c := &Conversation{
		localID:  cfg.LocalUserID,
		threadID: cfg.ThreadID,
		peerID:   cfg.PeerID,
		sender:   cfg.Sender,
		clock:    cfg.Clock,
		after:    cfg.AfterFunc,
		timeout:  cfg.TypingTimeout,
		log:      cfg.Logger.With("thread", cfg.ThreadID, "peer", cfg.PeerID),
	}
	c.typing = &typingIndicator{
		after:   c.after,
		timeout: c.timeout,
		emit:    c.send,
		start:   models.TypingFrame(c.threadID, c.peerID),
		stop:    models.StopTypingFrame(c.threadID, c.peerID),
	}
	return c, nil
}

func (c *Conversation) send(frame models.Frame) {
	if !c.sender.Send(frame) {
		c.log.Debug("frame dropped", "type", frame.Type)
	}
}

// LoadHistory replaces the timeline with msgs and marks the
// conversation as read if any of them still waits for the local user.
func (c *Conversation) LoadHistory(msgs []models.Message) {
	c.messages = slices.Clone(msgs)

	for _, m := range c.messages {
		if m.ReceiverID == c.localID && m.Status != models.StatusRead {
			c.markAsRead()
			return
		}
	}
}

// SendLocal appends an optimistic message and hands its frame to the
// socket. The returned message carries a pending id until the server
// echoes it back.
func (c *Conversation) SendLocal(content string) models.Message {
	c.seq++
	msg := models.Message{
		ID:         models.PendingID(c.seq),
		ClientID:   uuid.NewString(),
		SenderID:   c.localID,
		ReceiverID: c.peerID,
		ThreadID:   c.threadID,
		Content:    content,
		CreatedAt:  c.clock.Now(),
		Status:     models.StatusSent,
	}
	c.messages = append(c.messages, msg)

	c.typing.Stop()
	c.send(models.NewMessageFrame(models.SendMessagePayload{
		ReceiverID: c.peerID,
		ThreadID:   c.threadID,
		Content:    content,
		ClientID:   msg.ClientID,
	}))
	return msg
}

// OnInboundMessage merges a message received from the server. It reports
// whether the timeline changed.
func (c *Conversation) OnInboundMessage(msg models.Message) bool {
	if msg.ThreadID != c.threadID || !c.involvesPeer(msg) {
		return false
	}

	if i := c.matchIndex(msg); i >= 0 {
		if msg.ClientID == "" {
			msg.ClientID = c.messages[i].ClientID
		}
		c.messages[i] = msg
	} else {
		c.messages = append(c.messages, msg)
	}

	if msg.SenderID == c.peerID {
		c.setPeerTyping(false)
		if msg.Status != models.StatusRead {
			c.markAsRead()
		}
	}
	return true
}

func (c *Conversation) involvesPeer(msg models.Message) bool {
	return (msg.SenderID == c.localID && msg.ReceiverID == c.peerID) ||
		(msg.SenderID == c.peerID && msg.ReceiverID == c.localID)
}

// matchIndex finds the entry an inbound message supersedes: the same
// confirmed id, else the pending entry with the echoed client id, else
// (for servers that do not echo client ids) the oldest pending text
// entry with identical content.
func (c *Conversation) matchIndex(msg models.Message) int {
	if id, ok := msg.ID.Confirmed(); ok {
		for i := range c.messages {
			if have, ok := c.messages[i].ID.Confirmed(); ok && have == id {
				return i
			}
		}
	}

	if msg.SenderID != c.localID {
		return -1
	}

	if msg.ClientID != "" {
		return slices.IndexFunc(c.messages, func(m models.Message) bool {
			return m.ID.IsPending() && m.ClientID == msg.ClientID
		})
	}

	if msg.MediaURL != "" {
		return -1
	}
	return slices.IndexFunc(c.messages, func(m models.Message) bool {
		return m.ID.IsPending() && m.MediaURL == "" && m.Content == msg.Content
	})
}

// OnStatusUpdate sets status on every confirmed message listed in ids.
func (c *Conversation) OnStatusUpdate(ids []string, status models.MessageStatus) bool {
	if len(ids) == 0 {
		return false
	}

	changed := false
	for i := range c.messages {
		id, ok := c.messages[i].ID.Confirmed()
		if !ok || !slices.Contains(ids, id) || c.messages[i].Status == status {
			continue
		}
		c.messages[i].Status = status
		changed = true
	}
	return changed
}

// OnTypingEvent updates the peer's typing indicator. A true indicator
// clears by itself after the typing timeout.
func (c *Conversation) OnTypingEvent(senderID, threadID string, isTyping bool) bool {
	if senderID != c.peerID || threadID != c.threadID {
		return false
	}

	changed := c.setPeerTyping(isTyping)
	if isTyping {
		gen := c.peerGen
		c.peerTimer = c.after(c.timeout, func() {
			if gen == c.peerGen {
				c.peerTimer = nil
				c.setPeerTyping(false)
			}
		})
	}
	return changed
}

func (c *Conversation) setPeerTyping(typing bool) bool {
	c.peerGen++
	if c.peerTimer != nil {
		c.peerTimer.Stop()
		c.peerTimer = nil
	}

	if c.peerTyping == typing {
		return false
	}
	c.peerTyping = typing
	return true
}

// Keystroke reports local input activity.
func (c *Conversation) Keystroke() {
	c.typing.Keystroke()
}

// Apply routes a realtime event to the matching handler.
func (c *Conversation) Apply(ev models.Event) bool {
	switch ev := ev.(type) {
	case models.NewMessage:
		return c.OnInboundMessage(ev.Message)
	case models.TypingStatus:
		return c.OnTypingEvent(ev.SenderID, ev.ThreadID, ev.IsTyping)
	case models.MessageStatusChanged:
		return c.OnStatusUpdate(ev.MessageIDs, ev.Status)
	}
	return false
}

// Close stops the typing timers, emitting stopTyping if needed.
func (c *Conversation) Close() {
	c.typing.Stop()
	c.setPeerTyping(false)
}

func (c *Conversation) markAsRead() {
	c.send(models.MarkAsReadFrame(c.threadID, c.peerID))
}

func (c *Conversation) Messages() []models.Message {
	return slices.Clone(c.messages)
}

func (c *Conversation) PeerTyping() bool {
	return c.peerTyping
}

func (c *Conversation) Typing() bool {
	return c.typing.Active()
}
