package chat

import (
	"time"

	"bazaar/internal/clock"
	"bazaar/internal/models"
)

type afterFunc func(d time.Duration, f func()) clock.Timer

// typingIndicator is the outbound typing state of one conversation.
// Idle -> Typing on the first keystroke emits start; further keystrokes
// only push the deadline back. Typing -> Idle (timeout, send or close)
// emits stop exactly once.
type typingIndicator struct {
	after   afterFunc
	timeout time.Duration
	emit    func(models.Frame)
	start   models.Frame
	stop    models.Frame

	active bool
	timer  clock.Timer
	gen    uint64
}

func (t *typingIndicator) Keystroke() {
	if !t.active {
		t.active = true
		t.emit(t.start)
	}
	t.arm()
}

func (t *typingIndicator) arm() {
	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	gen := t.gen
	t.timer = t.after(t.timeout, func() {
		t.expire(gen)
	})
}

// expire ignores callbacks of timers that were replaced or stopped after
// they had already fired.
func (t *typingIndicator) expire(gen uint64) {
	if gen != t.gen {
		return
	}
	t.timer = nil
	t.Stop()
}

func (t *typingIndicator) Stop() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++

	if !t.active {
		return
	}
	t.active = false
	t.emit(t.stop)
}

func (t *typingIndicator) Active() bool {
	return t.active
}
