package ws

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"bazaar/internal/clock"
	"bazaar/internal/models"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

const (
	writeWait      = 10 * time.Second
	sendQueueSize  = 64
	pongWaitFactor = 2
)

// Socket is the part of *websocket.Conn the manager drives.
type Socket interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v any) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// connection runs one open socket: a read pump delivering raw frames in
// arrival order, a single writer draining the send queue, and a ping
// heartbeat.
type connection struct {
	ws        Socket
	clock     clock.Clock
	heartbeat time.Duration
	log       *slog.Logger
	onFrame   func([]byte)
	out       chan models.Frame
	done      chan struct{}

	mu      sync.Mutex
	ping    clock.Timer
	stopped bool
}

func newConnection(
	ws Socket,
	clk clock.Clock,
	heartbeat time.Duration,
	log *slog.Logger,
	onFrame func([]byte),
) *connection {
	return &connection{
		ws:        ws,
		clock:     clk,
		heartbeat: heartbeat,
		log:       log,
		onFrame:   onFrame,
		out:       make(chan models.Frame, sendQueueSize),
		done:      make(chan struct{}),
	}
}

// Handle blocks until the socket fails or ctx is cancelled and returns
// the error that ended it.
func (c *connection) Handle(ctx context.Context) error {
	defer close(c.done)

	g, gCtx := errgroup.WithContext(ctx)
	c.startHeartbeat()

	g.Go(c.readLoop)
	g.Go(func() error {
		return c.writeLoop(gCtx)
	})
	g.Go(func() error {
		<-gCtx.Done()
		c.stopHeartbeat()
		_ = c.ws.Close()
		return nil
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func (c *connection) readLoop() error {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return err
		}
		c.extendDeadline()
		c.onFrame(data)
	}
}

func (c *connection) writeLoop(ctx context.Context) error {
	for {
		select {
		case frame := <-c.out:
			if err := c.ws.WriteJSON(frame); err != nil {
				return fmt.Errorf("write %s frame: %w", frame.Type, err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// enqueue hands a frame to the writer without blocking. Frames are
// dropped when the connection is gone or the queue is full.
func (c *connection) enqueue(frame models.Frame) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.out <- frame:
		return true
	default:
		c.log.Warn("send queue full, dropping frame", "type", frame.Type)
		return false
	}
}

// closeNormal sends a 1000 close frame and releases the socket.
func (c *connection) closeNormal() {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		c.log.Debug("write close frame", "error", err)
	}
	c.stopHeartbeat()
	_ = c.ws.Close()
}

func (c *connection) pongWait() time.Duration {
	return pongWaitFactor * c.heartbeat
}

func (c *connection) extendDeadline() {
	if c.heartbeat <= 0 {
		return
	}
	_ = c.ws.SetReadDeadline(time.Now().Add(c.pongWait()))
}

func (c *connection) startHeartbeat() {
	if c.heartbeat <= 0 {
		return
	}
	c.extendDeadline()
	c.ws.SetPongHandler(func(string) error {
		c.extendDeadline()
		return nil
	})
	c.armPing()
}

func (c *connection) armPing() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}
	c.ping = c.clock.AfterFunc(c.heartbeat, c.sendPing)
}

func (c *connection) sendPing() {
	if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
		c.log.Debug("heartbeat ping failed", "error", err)
		_ = c.ws.Close()
		return
	}
	c.armPing()
}

func (c *connection) stopHeartbeat() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopped = true
	if c.ping != nil {
		c.ping.Stop()
		c.ping = nil
	}
}
