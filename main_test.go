package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"bazaar/internal/auth"
	"bazaar/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// backend is a minimal marketplace chat server: REST history plus a
// websocket that echoes sent messages and answers with one from the peer.
type backend struct {
	t     *testing.T
	token string

	mu      sync.Mutex
	frames  []models.FrameType
	started bool
}

func (b *backend) received() []models.FrameType {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.FrameType(nil), b.frames...)
}

func (b *backend) authorized(r *http.Request) bool {
	return r.Header.Get("Authorization") == "Bearer "+b.token
}

func (b *backend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/chat/messages", func(w http.ResponseWriter, r *http.Request) {
		if !b.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("advertId") != "T42" || r.URL.Query().Get("otherUserId") != "u2" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, `[{"id":"m1","senderId":"u2","receiverId":"u1","advertId":"T42",`+
			`"content":"hello there","createdAt":"2024-05-01T12:00:00Z","status":"read"}]`)
	})
	mux.HandleFunc("GET /api/chat/conversations", func(w http.ResponseWriter, r *http.Request) {
		if !b.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `[{"advertId":"T42","advertTitle":"Road bike","otherUserId":"u2",`+
			`"otherUserName":"Anna","unreadCount":1,"lastMessage":{"id":"m1","content":"hello there"}}]`)
	})
	mux.HandleFunc("POST /api/chat/conversations", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.started = true
		b.mu.Unlock()
		_, _ = io.WriteString(w, `{"advertId":"T42","otherUserId":"u2"}`)
	})
	mux.HandleFunc("/", b.serveSocket)
	return mux
}

func (b *backend) serveSocket(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("token") != b.token {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	for {
		var env models.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		b.mu.Lock()
		b.frames = append(b.frames, models.FrameType(env.Type))
		b.mu.Unlock()

		if models.FrameType(env.Type) != models.FrameNewMessage {
			continue
		}
		var sent models.SendMessagePayload
		if err := json.Unmarshal(env.Payload, &sent); err != nil {
			b.t.Errorf("bad newMessage payload: %v", err)
			return
		}

		echo := models.Message{
			ID: models.ConfirmedID("m2"), ClientID: sent.ClientID, SenderID: "u1", ReceiverID: sent.ReceiverID,
			ThreadID: sent.ThreadID, Content: sent.Content, CreatedAt: time.Now(), Status: models.StatusSent,
		}
		reply := models.Message{
			ID: models.ConfirmedID("m3"), SenderID: "u2", ReceiverID: "u1",
			ThreadID: sent.ThreadID, Content: "great, see you", CreatedAt: time.Now(), Status: models.StatusSent,
		}
		for _, m := range []models.Message{echo, reply} {
			if err := conn.WriteJSON(models.Frame{Type: models.FrameIncomingMessage, Payload: m}); err != nil {
				return
			}
		}
	}
}

func setupBackend(t *testing.T) (*backend, string) {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{UserID: "u1"}).SignedString([]byte("secret"))
	require.NoError(t, err)

	b := &backend{t: t, token: token}
	srv := httptest.NewServer(b.handler())
	t.Cleanup(srv.Close)

	t.Setenv("BAZAAR_BASE_URL", srv.URL)
	t.Setenv("BAZAAR_DB", filepath.Join(t.TempDir(), "bazaar.db"))
	t.Setenv("BAZAAR_LOG_LEVEL", "error")
	t.Setenv("BAZAAR_TOKEN", "")
	return b, token
}

func waitFor(t *testing.T, out *syncBuffer, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), want)
	}, 5*time.Second, 10*time.Millisecond, "output never contained %q", want)
}

func TestRun_Chat(t *testing.T) {
	b, token := setupBackend(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	stdin, input := io.Pipe()
	defer func() { _ = input.Close() }()
	out := &syncBuffer{}

	done := make(chan error, 1)
	go func() {
		done <- run(ctx, []string{"--thread", "T42", "--peer", "u2", "--token", token, "--start"}, stdin, out, io.Discard)
	}()

	waitFor(t, out, "* connected")
	waitFor(t, out, "u2: hello there")

	_, err := io.WriteString(input, "hi, is it still for sale?\n")
	require.NoError(t, err)

	waitFor(t, out, "u2: great, see you")
	require.Eventually(t, func() bool {
		frames := b.received()
		return len(frames) >= 2 && frames[len(frames)-1] == models.FrameMarkAsRead
	}, 5*time.Second, 10*time.Millisecond, "reply from the peer was not marked as read")
	assert.Contains(t, b.received(), models.FrameNewMessage)
	assert.Equal(t, 1, strings.Count(out.String(), "me: hi, is it still for sale?"))

	b.mu.Lock()
	assert.True(t, b.started, "--start creates the conversation")
	b.mu.Unlock()

	_, err = io.WriteString(input, "/quit\n")
	require.NoError(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("run did not return after /quit")
	}
}

func TestRun_ListRemembersToken(t *testing.T) {
	_, token := setupBackend(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	var out bytes.Buffer
	require.NoError(t, run(ctx, []string{"--list", "--token", token}, strings.NewReader(""), &out, io.Discard))
	assert.Contains(t, out.String(), "unread: 0  reviews: 0")
	assert.Contains(t, out.String(), "Road bike")
	assert.Contains(t, out.String(), "Anna")

	// Second run finds the token in the store.
	out.Reset()
	require.NoError(t, run(ctx, []string{"--list"}, strings.NewReader(""), &out, io.Discard))
	assert.Contains(t, out.String(), "T42")
}

func TestRun_NoSession(t *testing.T) {
	setupBackend(t)
	err := run(context.Background(), []string{"--list"}, strings.NewReader(""), io.Discard, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BAZAAR_TOKEN")
}

func TestRun_BadFlag(t *testing.T) {
	err := run(context.Background(), []string{"--nope"}, strings.NewReader(""), io.Discard, io.Discard)
	require.Error(t, err)
}
