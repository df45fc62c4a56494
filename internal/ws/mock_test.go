package ws

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"bazaar/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

var (
	testEpoch  = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	testLogger = slog.New(slog.DiscardHandler)
	errClosed  = errors.New("use of closed network connection")
)

type controlFrame struct {
	messageType int
	data        []byte
}

type mockSocket struct {
	readCh    chan []byte
	readErr   chan error
	writeCh   chan any
	controlCh chan controlFrame
	closeCh   chan struct{}
	closeOnce sync.Once

	mu   sync.Mutex
	pong func(string) error
}

func newMockSocket() *mockSocket {
	return &mockSocket{
		readCh:    make(chan []byte, 10),
		readErr:   make(chan error, 1),
		writeCh:   make(chan any, 64),
		controlCh: make(chan controlFrame, 10),
		closeCh:   make(chan struct{}),
	}
}

func (m *mockSocket) ReadMessage() (int, []byte, error) {
	select {
	case data := <-m.readCh:
		return websocket.TextMessage, data, nil
	case err := <-m.readErr:
		return 0, nil, err
	case <-m.closeCh:
		return 0, nil, errClosed
	}
}

func (m *mockSocket) WriteJSON(v any) error {
	select {
	case <-m.closeCh:
		return errClosed
	default:
	}
	m.writeCh <- v
	return nil
}

func (m *mockSocket) WriteControl(messageType int, data []byte, _ time.Time) error {
	select {
	case <-m.closeCh:
		return errClosed
	default:
	}
	m.controlCh <- controlFrame{messageType: messageType, data: data}
	return nil
}

func (m *mockSocket) SetReadDeadline(time.Time) error {
	return nil
}

func (m *mockSocket) SetPongHandler(h func(string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pong = h
}

func (m *mockSocket) Close() error {
	m.closeOnce.Do(func() { close(m.closeCh) })
	return nil
}

func (m *mockSocket) isClosed() bool {
	select {
	case <-m.closeCh:
		return true
	default:
		return false
	}
}

type mockDialer struct {
	mu      sync.Mutex
	fail    bool
	urls    []string
	sockets []*mockSocket
}

func (d *mockDialer) dial(_ context.Context, url string) (Socket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.urls = append(d.urls, url)
	if d.fail {
		return nil, errors.New("connection refused")
	}
	s := newMockSocket()
	d.sockets = append(d.sockets, s)
	return s, nil
}

func (d *mockDialer) setFail(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = fail
}

func (d *mockDialer) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *mockDialer) last() *mockSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sockets) == 0 {
		return nil
	}
	return d.sockets[len(d.sockets)-1]
}

func nextEvent(t *testing.T, ch <-chan models.Event) models.Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "event channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}
