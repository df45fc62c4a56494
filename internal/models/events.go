package models

import "encoding/json"

// Envelope wraps every websocket frame in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type FrameType string

// Outbound frame types.
const (
	FrameNewMessage FrameType = "newMessage"
	FrameTyping     FrameType = "typing"
	FrameStopTyping FrameType = "stopTyping"
	FrameMarkAsRead FrameType = "markAsRead"
)

// Inbound frame types.
const (
	FrameIncomingMessage FrameType = "newMessage"
	FrameTypingNotice    FrameType = "typingNotification"
	FrameStatusUpdate    FrameType = "messageStatusUpdate"
	FrameUnreadCount     FrameType = "unreadCountUpdate"
	FrameReviewCount     FrameType = "reviewCountUpdate"
)

// Frame is an outbound message to the server.
type Frame struct {
	Type    FrameType `json:"type"`
	Payload any       `json:"payload"`
}

type SendMessagePayload struct {
	ReceiverID string `json:"receiverId"`
	ThreadID   string `json:"advertId"`
	Content    string `json:"content"`
	ClientID   string `json:"clientId,omitempty"`
}

type TypingPayload struct {
	ThreadID   string `json:"advertId"`
	ReceiverID string `json:"receiverId"`
}

type MarkAsReadPayload struct {
	ThreadID    string `json:"advertId"`
	OtherUserID string `json:"otherUserId"`
}

func NewMessageFrame(p SendMessagePayload) Frame {
	return Frame{Type: FrameNewMessage, Payload: p}
}

func TypingFrame(threadID, receiverID string) Frame {
	return Frame{Type: FrameTyping, Payload: TypingPayload{ThreadID: threadID, ReceiverID: receiverID}}
}

func StopTypingFrame(threadID, receiverID string) Frame {
	return Frame{Type: FrameStopTyping, Payload: TypingPayload{ThreadID: threadID, ReceiverID: receiverID}}
}

func MarkAsReadFrame(threadID, otherUserID string) Frame {
	return Frame{Type: FrameMarkAsRead, Payload: MarkAsReadPayload{ThreadID: threadID, OtherUserID: otherUserID}}
}

// Event is a decoded inbound frame or a connection state change.
type Event interface {
	isEvent()
}

type NewMessage struct {
	Message Message
}

type TypingStatus struct {
	SenderID string `json:"senderId"`
	ThreadID string `json:"advertId"`
	IsTyping bool   `json:"isTyping"`
}

type MessageStatusChanged struct {
	MessageIDs []string      `json:"messageIds"`
	Status     MessageStatus `json:"status"`
}

type UnreadCountChanged struct {
	Count int `json:"unreadCount"`
}

type ReviewCountChanged struct {
	Count int `json:"reviewCount"`
}

// ConnectionStatus is published by the connection manager whenever the
// socket opens or is lost.
type ConnectionStatus struct {
	Connected bool
}

func (NewMessage) isEvent()           {}
func (TypingStatus) isEvent()         {}
func (MessageStatusChanged) isEvent() {}
func (UnreadCountChanged) isEvent()   {}
func (ReviewCountChanged) isEvent()   {}
func (ConnectionStatus) isEvent()     {}
