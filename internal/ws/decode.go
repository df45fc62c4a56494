package ws

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"bazaar/internal/models"
)

var (
	ErrUnknownFrame   = errors.New("unknown frame type")
	ErrMissingPayload = errors.New("frame has no payload")
)

// Decode parses one inbound frame. Errors describe why the frame was
// rejected; callers log them and drop the frame.
func Decode(raw []byte) (models.Event, error) {
	var env models.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch models.FrameType(env.Type) {
	case models.FrameIncomingMessage:
		var msg models.Message
		if err := decodePayload(env, &msg); err != nil {
			return nil, err
		}
		if msg.ID.IsZero() {
			return nil, fmt.Errorf("%s: message without id", env.Type)
		}
		if msg.Status == "" {
			msg.Status = models.StatusSent
		}
		return models.NewMessage{Message: msg}, nil

	case models.FrameTypingNotice:
		var ev models.TypingStatus
		if err := decodePayload(env, &ev); err != nil {
			return nil, err
		}
		return ev, nil

	case models.FrameStatusUpdate:
		var ev models.MessageStatusChanged
		if err := decodePayload(env, &ev); err != nil {
			return nil, err
		}
		if ev.Status == "" {
			return nil, fmt.Errorf("%s: missing status", env.Type)
		}
		return ev, nil

	case models.FrameUnreadCount:
		var ev models.UnreadCountChanged
		if err := decodePayload(env, &ev); err != nil {
			return nil, err
		}
		return ev, nil

	case models.FrameReviewCount:
		var ev models.ReviewCountChanged
		if err := decodePayload(env, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, env.Type)
}

func decodePayload(env models.Envelope, v any) error {
	payload := bytes.TrimSpace(env.Payload)
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		return fmt.Errorf("%s: %w", env.Type, ErrMissingPayload)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%s: decode payload: %w", env.Type, err)
	}
	return nil
}

// SocketURL rewrites the HTTP endpoint to its websocket scheme and adds
// the token as the query credential.
func SocketURL(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported base url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("base url %q has no host", base)
	}

	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func redact(socketURL string) string {
	u, err := url.Parse(socketURL)
	if err != nil {
		return "<invalid url>"
	}
	q := u.Query()
	if q.Has("token") {
		q.Set("token", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
