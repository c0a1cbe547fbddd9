package album

import (
	"sync"
	"time"

	kit "albumbot/internal/transport"
)

// debouncer arms a single-shot quiet timer per chat. Every Arm bumps the
// chat's generation; a timer that fires with a stale generation is a no-op.
// That guarantees only the most recently armed timer for a chat can ever
// fire, without any explicit timer-handle cancellation race.
type debouncer struct {
	quiet time.Duration
	fire  func(chat kit.ChatTarget)

	mu  sync.Mutex
	gen map[kit.ChatTarget]uint64
}

func newDebouncer(quiet time.Duration, fire func(kit.ChatTarget)) *debouncer {
	return &debouncer{
		quiet: quiet,
		fire:  fire,
		gen:   make(map[kit.ChatTarget]uint64),
	}
}

// Arm (re)starts the chat's quiet timer.
func (d *debouncer) Arm(chat kit.ChatTarget) {
	d.mu.Lock()
	d.gen[chat]++
	g := d.gen[chat]
	d.mu.Unlock()

	time.AfterFunc(d.quiet, func() {
		d.mu.Lock()
		live := d.gen[chat] == g
		d.mu.Unlock()
		if live {
			d.fire(chat)
		}
	})
}

// Cancel suppresses any armed timer for the chat.
func (d *debouncer) Cancel(chat kit.ChatTarget) {
	d.mu.Lock()
	d.gen[chat]++
	d.mu.Unlock()
}
