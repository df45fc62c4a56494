package ws

import (
	"testing"

	"bazaar/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_FanOut(t *testing.T) {
	b := NewBroadcaster(testLogger)

	ch1, leave1 := b.Subscribe(10)
	ch2, leave2 := b.Subscribe(10)
	defer leave2()

	b.Publish(models.UnreadCountChanged{Count: 1})
	assert.Equal(t, models.UnreadCountChanged{Count: 1}, nextEvent(t, ch1))
	assert.Equal(t, models.UnreadCountChanged{Count: 1}, nextEvent(t, ch2))

	leave1()
	leave1()
	_, ok := <-ch1
	assert.False(t, ok, "channel must be closed after leave")

	b.Publish(models.ReviewCountChanged{Count: 2})
	assert.Equal(t, models.ReviewCountChanged{Count: 2}, nextEvent(t, ch2))
}

func TestBroadcaster_SlowSubscriberMissesEvents(t *testing.T) {
	b := NewBroadcaster(testLogger)

	slow, leaveSlow := b.Subscribe(1)
	defer leaveSlow()
	fast, leaveFast := b.Subscribe(10)
	defer leaveFast()

	for i := 1; i <= 3; i++ {
		b.Publish(models.UnreadCountChanged{Count: i})
	}

	for i := 1; i <= 3; i++ {
		assert.Equal(t, models.UnreadCountChanged{Count: i}, nextEvent(t, fast))
	}

	assert.Equal(t, models.UnreadCountChanged{Count: 1}, nextEvent(t, slow))
	select {
	case ev := <-slow:
		t.Fatalf("unexpected event %v", ev)
	default:
	}
}

func TestBroadcaster_Close(t *testing.T) {
	b := NewBroadcaster(testLogger)
	ch, leave := b.Subscribe(0)

	b.Close()
	b.Close()
	leave()

	_, ok := <-ch
	require.False(t, ok)

	late, _ := b.Subscribe(1)
	_, ok = <-late
	require.False(t, ok)
}
