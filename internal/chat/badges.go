package chat

import (
	"context"
	"log/slog"
	"sync"

	"bazaar/internal/clock"
	"bazaar/internal/models"
)

type CountStore interface {
	SaveCounters(c models.Counters) error
}

// Badges keeps the session-wide unread and review counters pushed by the
// server and persists the latest values.
type Badges struct {
	store CountStore
	clock clock.Clock
	log   *slog.Logger

	mu     sync.RWMutex
	counts models.Counters
}

func NewBadges(initial models.Counters, store CountStore, clk clock.Clock, log *slog.Logger) *Badges {
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Badges{
		store:  store,
		clock:  clk,
		log:    log,
		counts: initial,
	}
}

func (b *Badges) Apply(ev models.Event) bool {
	b.mu.Lock()
	switch ev := ev.(type) {
	case models.UnreadCountChanged:
		b.counts.Unread = ev.Count
	case models.ReviewCountChanged:
		b.counts.Reviews = ev.Count
	default:
		b.mu.Unlock()
		return false
	}
	b.counts.UpdatedAt = b.clock.Now()
	counts := b.counts
	b.mu.Unlock()

	if b.store != nil {
		if err := b.store.SaveCounters(counts); err != nil {
			b.log.Error("failed to save badge counters", "error", err)
		}
	}
	return true
}

// Run applies events until ctx is done or the channel is closed.
func (b *Badges) Run(ctx context.Context, events <-chan models.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			b.Apply(ev)
		}
	}
}

func (b *Badges) Counts() models.Counters {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.counts
}
