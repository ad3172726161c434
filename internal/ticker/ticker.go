package ticker

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Ticker fires a worker at a fixed interval, compensating for scheduling
// drift by tracking the absolute expected fire time instead of an
// accumulated delay. Firings are serialized: the next one is scheduled
// only after the worker returns, so two firings of one ticker never
// overlap.
type Ticker struct {
	worker    func()
	interval  time.Duration
	onOverrun func(drift time.Duration)
	clock     clockwork.Clock

	mu       sync.Mutex
	timer    clockwork.Timer
	expected time.Time
	running  bool
}

// New builds a stopped ticker. onOverrun may be nil; when set it is called
// whenever a firing lands more than one full interval late.
func New(clock clockwork.Clock, interval time.Duration, worker func(), onOverrun func(drift time.Duration)) *Ticker {
	return &Ticker{
		worker:    worker,
		interval:  interval,
		onOverrun: onOverrun,
		clock:     clock,
	}
}

// Start schedules the first firing one interval from now. Starting a
// running ticker is a no-op.
func (t *Ticker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.running = true
	t.expected = t.clock.Now().Add(t.interval)
	t.timer = t.clock.AfterFunc(t.interval, t.step)
}

// Stop cancels the pending firing. A worker already underway runs to
// completion but does not reschedule.
func (t *Ticker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.running = false
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *Ticker) step() {
	drift := t.clock.Since(t.expected)
	if drift > t.interval && t.onOverrun != nil {
		t.onOverrun(drift)
	}

	t.worker()

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.expected = t.expected.Add(t.interval)
	delay := t.interval - drift
	if delay < 0 {
		delay = 0
	}
	t.timer = t.clock.AfterFunc(delay, t.step)
}
