package ws

import (
	"log/slog"
	"sync"

	"bazaar/internal/models"
)

const DefaultSubscriberBuffer = 100

// Broadcaster fans decoded events out to every subscriber. There is no
// flow control: a subscriber whose buffer is full misses the event.
type Broadcaster struct {
	log *slog.Logger

	// Map of subscription id -> event channel
	subscribers map[uint64]chan models.Event
	nextID      uint64
	closed      bool

	mu sync.RWMutex
}

func NewBroadcaster(log *slog.Logger) *Broadcaster {
	if log == nil {
		log = slog.Default()
	}
	return &Broadcaster{
		log:         log,
		subscribers: make(map[uint64]chan models.Event),
	}
}

// Subscribe registers a new subscriber. The returned function removes it
// and closes its channel; it is safe to call more than once.
func (b *Broadcaster) Subscribe(buffer int) (<-chan models.Event, func()) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan models.Event, buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	b.nextID++
	id := b.nextID
	b.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() { b.leave(id) })
	}
}

func (b *Broadcaster) leave(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
}

func (b *Broadcaster) Publish(ev models.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			b.log.Warn("subscriber buffer full, dropping event", "subscriber", id, "event", eventName(ev))
		}
	}
}

// Close closes every subscriber channel. Later subscriptions receive an
// already closed channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}

func eventName(ev models.Event) string {
	switch ev.(type) {
	case models.NewMessage:
		return "newMessage"
	case models.TypingStatus:
		return "typing"
	case models.MessageStatusChanged:
		return "status"
	case models.UnreadCountChanged:
		return "unreadCount"
	case models.ReviewCountChanged:
		return "reviewCount"
	case models.ConnectionStatus:
		return "connection"
	}
	return "unknown"
}
