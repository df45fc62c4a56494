package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
)

type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

const pendingPrefix = "local-"

// MessageID is either an id assigned by the server or a local sequence
// number for a message that has not been confirmed yet.
type MessageID struct {
	confirmed string
	pending   uint64
}

func ConfirmedID(id string) MessageID {
	return MessageID{confirmed: id}
}

func PendingID(seq uint64) MessageID {
	return MessageID{pending: seq}
}

func (id MessageID) IsPending() bool {
	return id.pending != 0
}

func (id MessageID) IsZero() bool {
	return id.pending == 0 && id.confirmed == ""
}

// Confirmed returns the server id. ok is false for pending ids.
func (id MessageID) Confirmed() (string, bool) {
	if id.IsPending() || id.confirmed == "" {
		return "", false
	}
	return id.confirmed, true
}

// Seq returns the local sequence number of a pending id.
func (id MessageID) Seq() (uint64, bool) {
	return id.pending, id.IsPending()
}

func (id MessageID) String() string {
	if id.IsPending() {
		return pendingPrefix + strconv.FormatUint(id.pending, 10)
	}
	return id.confirmed
}

func (id MessageID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

// UnmarshalJSON accepts the server's string ids. Pending ids exist only
// in memory, so every decoded id is confirmed, even one that looks like
// the local form.
func (id *MessageID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("message id: %w", err)
	}
	*id = ConfirmedID(s)
	return nil
}

// Message represents a chat message attached to a listing.
type Message struct {
	ID         MessageID     `json:"id"`
	ClientID   string        `json:"clientId,omitempty"` // correlation id of a locally sent message, echoed by the server
	SenderID   string        `json:"senderId"`
	ReceiverID string        `json:"receiverId"`
	ThreadID   string        `json:"advertId"`
	Content    string        `json:"content,omitempty"`
	MediaURL   string        `json:"mediaUrl,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
	Status     MessageStatus `json:"status"`
}

// Conversation is a summary row of the conversation list.
type Conversation struct {
	ThreadID    string    `json:"advertId"`
	ThreadTitle string    `json:"advertTitle,omitempty"`
	PeerID      string    `json:"otherUserId"`
	PeerName    string    `json:"otherUserName,omitempty"`
	LastMessage *Message  `json:"lastMessage,omitempty"`
	UnreadCount int       `json:"unreadCount"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Counters are the session-wide badge numbers pushed by the server.
type Counters struct {
	Unread    int       `json:"unread"`
	Reviews   int       `json:"reviews"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MediaUpload is a file attached to a conversation.
type MediaUpload struct {
	ThreadID   string
	ReceiverID string
	FileName   string
	Data       []byte
}

// Session is the authenticated user of this client.
type Session struct {
	UserID    string
	Token     string
	ExpiresAt time.Time // zero when the token does not expire
}

func (s Session) Valid(now time.Time) bool {
	return s.Token != "" && (s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt))
}
