package ws

import (
	"context"
	"errors"
	"testing"
	"time"

	"bazaar/internal/clock"
	"bazaar/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnection_Lifecycle(t *testing.T) {
	sock := newMockSocket()
	frames := make(chan []byte, 10)
	conn := newConnection(sock, clock.Fake(testEpoch), 0, testLogger, func(b []byte) {
		frames <- b
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error)
	go func() {
		done <- conn.Handle(ctx)
	}()

	// Server -> client
	sock.readCh <- []byte(`{"type":"unreadCountUpdate","payload":{"unreadCount":1}}`)
	select {
	case got := <-frames:
		assert.JSONEq(t, `{"type":"unreadCountUpdate","payload":{"unreadCount":1}}`, string(got))
	case <-time.After(time.Second):
		t.Fatal("frame was not delivered")
	}

	// Client -> server
	require.True(t, conn.enqueue(models.TypingFrame("t1", "u2")))
	select {
	case got := <-sock.writeCh:
		frame, ok := got.(models.Frame)
		require.True(t, ok, "unexpected write %T", got)
		assert.Equal(t, models.FrameTyping, frame.Type)
	case <-time.After(time.Second):
		t.Fatal("frame was not written")
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Handle did not return after cancel")
	}

	assert.True(t, sock.isClosed())
	assert.False(t, conn.enqueue(models.TypingFrame("t1", "u2")), "enqueue after close must drop")
}

func TestConnection_ReadError(t *testing.T) {
	sock := newMockSocket()
	conn := newConnection(sock, clock.Fake(testEpoch), 0, testLogger, func([]byte) {})

	readErr := errors.New("read error")
	sock.readErr <- readErr

	done := make(chan error)
	go func() {
		done <- conn.Handle(context.Background())
	}()

	select {
	case err := <-done:
		require.ErrorIs(t, err, readErr)
	case <-time.After(time.Second):
		t.Fatal("Handle did not return on error")
	}
	assert.True(t, sock.isClosed())
}

func TestConnection_QueueFull(t *testing.T) {
	sock := newMockSocket()
	conn := newConnection(sock, clock.Fake(testEpoch), 0, testLogger, func([]byte) {})

	// No writer running: the queue fills up and further frames are dropped.
	for range sendQueueSize {
		require.True(t, conn.enqueue(models.TypingFrame("t1", "u2")))
	}
	assert.False(t, conn.enqueue(models.TypingFrame("t1", "u2")))
}
