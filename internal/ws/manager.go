package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"bazaar/internal/clock"
	"bazaar/internal/models"

	"github.com/gorilla/websocket"
)

const DefaultHeartbeat = 20 * time.Second

var (
	ErrEmptyToken = errors.New("empty auth token")
	ErrClosed     = errors.New("connection manager closed")
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateBackoff
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateBackoff:
		return "backoff"
	case StateClosing:
		return "closing"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Status is a snapshot of the manager's state machine. Attempt counts
// consecutive failures since the last successful open; RetryAt is set
// while waiting in Backoff. Exhausted marks the terminal Disconnected
// state reached when the reconnect budget ran out.
type Status struct {
	State     State
	Attempt   int
	RetryAt   time.Time
	Exhausted bool
}

// DialFunc opens a socket to the given URL.
type DialFunc func(ctx context.Context, url string) (Socket, error)

// GorillaDialer dials with gorilla/websocket, honouring proxy settings
// from the environment.
func GorillaDialer(handshakeTimeout time.Duration) DialFunc {
	d := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}
	return func(ctx context.Context, url string) (Socket, error) {
		conn, resp, err := d.DialContext(ctx, url, nil)
		if err != nil {
			if resp != nil {
				return nil, fmt.Errorf("dial %s: %w (status %d)", redact(url), err, resp.StatusCode)
			}
			return nil, fmt.Errorf("dial %s: %w", redact(url), err)
		}
		return conn, nil
	}
}

type Config struct {
	BaseURL          string
	Heartbeat        time.Duration
	Backoff          Backoff
	Dial             DialFunc
	Clock            clock.Clock
	Logger           *slog.Logger
	SubscriberBuffer int
}

// Manager owns the session's single websocket. It reconnects on its own
// after transport failures and broadcasts decoded events to subscribers.
type Manager struct {
	baseURL   string
	heartbeat time.Duration
	backoff   Backoff
	dial      DialFunc
	clock     clock.Clock
	log       *slog.Logger
	buffer    int
	events    *Broadcaster

	mu     sync.Mutex
	status Status
	token  string
	gen    uint64 // bumped whenever the current connection attempt is superseded
	conn   *connection
	cancel context.CancelFunc
	retry  clock.Timer
	closed bool

	wg sync.WaitGroup
}

func NewManager(cfg Config) (*Manager, error) {
	if _, err := SocketURL(cfg.BaseURL, ""); err != nil {
		return nil, err
	}
	if cfg.Heartbeat == 0 {
		cfg.Heartbeat = DefaultHeartbeat
	}
	if cfg.Backoff == (Backoff{}) {
		cfg.Backoff = DefaultBackoff()
	}
	if cfg.Dial == nil {
		cfg.Dial = GorillaDialer(websocket.DefaultDialer.HandshakeTimeout)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Manager{
		baseURL:   cfg.BaseURL,
		heartbeat: cfg.Heartbeat,
		backoff:   cfg.Backoff,
		dial:      cfg.Dial,
		clock:     cfg.Clock,
		log:       cfg.Logger,
		buffer:    cfg.SubscriberBuffer,
		events:    NewBroadcaster(cfg.Logger),
	}, nil
}

// Connect stores the token and opens the socket unless it is already
// open or being opened. It also restarts a manager that gave up
// reconnecting.
func (m *Manager) Connect(token string) error {
	if token == "" {
		return ErrEmptyToken
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.token = token

	switch m.status.State {
	case StateOpen, StateConnecting:
		return nil
	}

	m.stopRetryLocked()
	return m.startLocked(0)
}

func (m *Manager) startLocked(attempt int) error {
	url, err := SocketURL(m.baseURL, m.token)
	if err != nil {
		m.status = Status{State: StateDisconnected}
		return err
	}

	m.gen++
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.status = Status{State: StateConnecting, Attempt: attempt}

	m.wg.Add(1)
	go m.run(ctx, m.gen, url)
	return nil
}

func (m *Manager) run(ctx context.Context, gen uint64, url string) {
	defer m.wg.Done()

	sock, err := m.dial(ctx, url)
	if err != nil {
		m.log.Warn("websocket dial failed", "error", err)
		m.connectionLost(gen, err)
		return
	}

	conn := newConnection(sock, m.clock, m.heartbeat, m.log, m.dispatch)

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		_ = sock.Close()
		return
	}
	m.conn = conn
	m.status = Status{State: StateOpen}
	m.events.Publish(models.ConnectionStatus{Connected: true})
	m.mu.Unlock()

	m.log.Info("websocket connected", "url", redact(url))

	err = conn.Handle(ctx)
	m.connectionLost(gen, err)
}

func (m *Manager) connectionLost(gen uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen {
		return
	}

	wasOpen := m.status.State == StateOpen
	m.conn = nil
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.events.Publish(models.ConnectionStatus{Connected: false})

	var closeErr *websocket.CloseError
	if wasOpen && errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure {
		m.log.Info("websocket closed by server")
		m.status = Status{State: StateDisconnected}
		return
	}
	if wasOpen {
		m.log.Warn("websocket connection lost", "error", err)
	}

	m.scheduleRetryLocked()
}

func (m *Manager) scheduleRetryLocked() {
	delay, ok := m.backoff.Delay(m.status.Attempt)
	if !ok {
		m.log.Error("giving up reconnecting", "attempts", m.status.Attempt)
		m.status = Status{State: StateDisconnected, Attempt: m.status.Attempt, Exhausted: true}
		return
	}

	attempt := m.status.Attempt + 1
	m.status = Status{
		State:   StateBackoff,
		Attempt: attempt,
		RetryAt: m.clock.Now().Add(delay),
	}

	gen := m.gen
	m.retry = m.clock.AfterFunc(delay, func() {
		m.reconnect(gen)
	})
	m.log.Info("reconnect scheduled", "attempt", attempt, "delay", delay)
}

func (m *Manager) reconnect(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen || m.status.State != StateBackoff {
		return
	}
	m.retry = nil
	if err := m.startLocked(m.status.Attempt); err != nil {
		m.log.Error("reconnect", "error", err)
	}
}

func (m *Manager) stopRetryLocked() {
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
}

// Disconnect closes the socket with a normal closure and cancels any
// pending reconnect. It is a no-op when already disconnected.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.status.State == StateDisconnected {
		m.mu.Unlock()
		return
	}

	m.stopRetryLocked()
	m.gen++
	m.status = Status{State: StateClosing}
	conn, cancel := m.conn, m.cancel
	m.conn, m.cancel = nil, nil
	if conn != nil {
		m.events.Publish(models.ConnectionStatus{Connected: false})
	}
	m.mu.Unlock()

	if conn != nil {
		conn.closeNormal()
	}
	if cancel != nil {
		cancel()
	}

	m.mu.Lock()
	if m.status.State == StateClosing {
		m.status = Status{State: StateDisconnected}
	}
	m.mu.Unlock()
}

// Close disconnects, waits for the connection goroutines and closes
// every subscription. The manager cannot be reused.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.Disconnect()
	m.wg.Wait()
	m.events.Close()
}

// Send queues a frame for the writer. When the socket is not open the
// frame is dropped and Send reports false.
func (m *Manager) Send(frame models.Frame) bool {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		m.log.Debug("not connected, dropping frame", "type", frame.Type)
		return false
	}
	return conn.enqueue(frame)
}

func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status.State == StateOpen
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Subscribe returns a channel of decoded events and connection changes.
func (m *Manager) Subscribe() (<-chan models.Event, func()) {
	return m.events.Subscribe(m.buffer)
}

func (m *Manager) dispatch(raw []byte) {
	ev, err := Decode(raw)
	if err != nil {
		m.log.Warn("dropping inbound frame", "error", err)
		return
	}
	m.events.Publish(ev)
}
