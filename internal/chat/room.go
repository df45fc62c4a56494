package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bazaar/internal/clock"
	"bazaar/internal/content"
	"bazaar/internal/models"
)

var (
	ErrRoomClosed     = errors.New("chat room closed")
	ErrNoMediaSupport = errors.New("media upload is not configured")
)

// EventSource is the session socket as seen by a room.
type EventSource interface {
	Subscribe() (<-chan models.Event, func())
	Connected() bool
}

type HistoryFetcher interface {
	Messages(ctx context.Context, threadID, peerID string) ([]models.Message, error)
}

type MediaUploader interface {
	UploadMedia(ctx context.Context, upload models.MediaUpload) (models.Message, error)
}

// View is what a screen renders.
type View struct {
	Messages   []models.Message
	PeerTyping bool
	Connected  bool
}

type RoomConfig struct {
	Config

	Events   EventSource
	History  HistoryFetcher
	Uploader MediaUploader

	// OnChange is called from the room goroutine after every change.
	OnChange func(View)
}

// Room owns one open conversation. A single goroutine (Run) applies
// realtime events, caller commands and timer callbacks to the timeline
// in the order they arrive.
type Room struct {
	conv     *Conversation
	threadID string
	peerID   string
	events   <-chan models.Event
	leave    func()
	history  HistoryFetcher
	uploader MediaUploader
	onChange func(View)
	log      *slog.Logger

	connected bool

	cmds   chan func() bool
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRoom subscribes to events right away so nothing published between
// construction and Run is lost.
func NewRoom(cfg RoomConfig) (*Room, error) {
	if cfg.Events == nil || cfg.History == nil {
		return nil, errors.New("room needs an event source and a history fetcher")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Room{
		threadID: cfg.ThreadID,
		peerID:   cfg.PeerID,
		history:  cfg.History,
		uploader: cfg.Uploader,
		onChange: cfg.OnChange,
		log:      cfg.Logger,
		cmds:     make(chan func() bool),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	clk := cfg.Clock
	cfg.AfterFunc = func(d time.Duration, f func()) clock.Timer {
		return clk.AfterFunc(d, func() {
			r.post(func() bool {
				f()
				return true
			})
		})
	}

	conv, err := NewConversation(cfg.Config)
	if err != nil {
		cancel()
		return nil, err
	}
	r.conv = conv

	// Subscribe before sampling the state so an open racing with
	// construction is seen one way or the other.
	r.events, r.leave = cfg.Events.Subscribe()
	r.connected = cfg.Events.Connected()
	return r, nil
}

// Run processes the room until ctx is cancelled or Close is called. The
// shared socket stays open; only this room's subscription and timers
// are released.
func (r *Room) Run(ctx context.Context) error {
	defer close(r.done)
	defer r.leave()
	defer r.conv.Close()
	defer r.cancel()

	r.notify()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.ctx.Done():
			return nil
		case ev, ok := <-r.events:
			if !ok {
				r.log.Info("event source closed")
				return nil
			}
			if r.apply(ev) {
				r.notify()
			}
		case fn := <-r.cmds:
			if fn() {
				r.notify()
			}
		}
	}
}

func (r *Room) apply(ev models.Event) bool {
	if cs, ok := ev.(models.ConnectionStatus); ok {
		changed := r.connected != cs.Connected
		r.connected = cs.Connected
		return changed
	}
	return r.conv.Apply(ev)
}

func (r *Room) notify() {
	if r.onChange != nil {
		r.onChange(r.view())
	}
}

func (r *Room) view() View {
	return View{
		Messages:   r.conv.Messages(),
		PeerTyping: r.conv.PeerTyping(),
		Connected:  r.connected,
	}
}

// post queues work for the room goroutine without waiting for it.
func (r *Room) post(fn func() bool) {
	select {
	case r.cmds <- fn:
	case <-r.ctx.Done():
	}
}

// do runs fn on the room goroutine and waits for it to finish.
func (r *Room) do(ctx context.Context, fn func() bool) error {
	ran := make(chan struct{})
	cmd := func() bool {
		defer close(ran)
		return fn()
	}

	select {
	case r.cmds <- cmd:
		<-ran
		return nil
	case <-r.ctx.Done():
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LoadHistory fetches the conversation from the REST API and replaces
// the timeline with it. Closing the room cancels the request.
func (r *Room) LoadHistory(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(r.ctx, cancel)
	defer stop()

	msgs, err := r.history.Messages(ctx, r.threadID, r.peerID)
	if err != nil {
		if r.ctx.Err() != nil {
			return ErrRoomClosed
		}
		return fmt.Errorf("load history: %w", err)
	}

	return r.do(ctx, func() bool {
		r.conv.LoadHistory(msgs)
		return true
	})
}

// Send validates text and appends it as an optimistic message. The
// message is shown even if the socket is down; its frame is then lost.
func (r *Room) Send(ctx context.Context, text string) (models.Message, error) {
	text, err := content.ValidateMessage(text)
	if err != nil {
		return models.Message{}, err
	}

	var msg models.Message
	err = r.do(ctx, func() bool {
		msg = r.conv.SendLocal(text)
		return true
	})
	return msg, err
}

func (r *Room) Keystroke(ctx context.Context) error {
	return r.do(ctx, func() bool {
		r.conv.Keystroke()
		return false
	})
}

// SendMedia uploads an attachment and merges the message the server
// created for it.
func (r *Room) SendMedia(ctx context.Context, name string, data []byte) (models.Message, error) {
	if r.uploader == nil {
		return models.Message{}, ErrNoMediaSupport
	}

	msg, err := r.uploader.UploadMedia(ctx, models.MediaUpload{
		ThreadID:   r.threadID,
		ReceiverID: r.peerID,
		FileName:   name,
		Data:       data,
	})
	if err != nil {
		return models.Message{}, fmt.Errorf("upload %s: %w", name, err)
	}

	err = r.do(ctx, func() bool {
		return r.conv.OnInboundMessage(msg)
	})
	return msg, err
}

func (r *Room) Messages(ctx context.Context) ([]models.Message, error) {
	var msgs []models.Message
	err := r.do(ctx, func() bool {
		msgs = r.conv.Messages()
		return false
	})
	return msgs, err
}

func (r *Room) View(ctx context.Context) (View, error) {
	var v View
	err := r.do(ctx, func() bool {
		v = r.view()
		return false
	})
	return v, err
}

// Close stops the room. It does not wait for Run to return; use Done.
func (r *Room) Close() {
	r.cancel()
}

func (r *Room) Done() <-chan struct{} {
	return r.done
}
