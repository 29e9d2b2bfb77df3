package acquisition

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Debouncer is a restartable one-shot timer. Every Arm invalidates the previous
// one: a firing is only current if its sequence number matches the last Arm.
// Methods other than the fire callback run on the session goroutine.
type Debouncer struct {
	clock    clockwork.Clock
	duration time.Duration
	fire     func(seq uint64)

	timer clockwork.Timer
	seq   uint64
}

func NewDebouncer(clock clockwork.Clock, d time.Duration, fire func(seq uint64)) *Debouncer {
	return &Debouncer{clock: clock, duration: d, fire: fire}
}

// Arm (re)starts the quiet period and returns the sequence number of this arm.
func (d *Debouncer) Arm() uint64 {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	seq := d.seq
	d.timer = d.clock.AfterFunc(d.duration, func() { d.fire(seq) })
	return seq
}

// Stop cancels the pending firing. A firing already in flight becomes stale.
func (d *Debouncer) Stop() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
}

// Current reports whether seq belongs to the live arm.
func (d *Debouncer) Current(seq uint64) bool {
	return d.timer != nil && seq == d.seq
}

// TimeoutGuard counts down a fixed number of ticks and expires at zero.
// Like the Debouncer, its ticks are tagged so that late deliveries are dropped.
type TimeoutGuard struct {
	clock clockwork.Clock
	tick  time.Duration
	total int
	fire  func(seq uint64)

	timer     clockwork.Timer
	seq       uint64
	remaining int
}

func NewTimeoutGuard(clock clockwork.Clock, tick time.Duration, ticks int, fire func(seq uint64)) *TimeoutGuard {
	return &TimeoutGuard{clock: clock, tick: tick, total: ticks, fire: fire}
}

// Start begins the countdown from the full number of ticks.
func (g *TimeoutGuard) Start() {
	g.Stop()
	g.remaining = g.total
	g.schedule()
}

func (g *TimeoutGuard) schedule() {
	g.seq++
	seq := g.seq
	g.timer = g.clock.AfterFunc(g.tick, func() { g.fire(seq) })
}

// Tick consumes one delivered tick. ok is false for stale ticks; expired is true
// once the countdown reached zero, after which the guard is stopped.
func (g *TimeoutGuard) Tick(seq uint64) (remaining int, expired bool, ok bool) {
	if g.timer == nil || seq != g.seq {
		return g.remaining, false, false
	}
	g.remaining--
	if g.remaining <= 0 {
		g.remaining = 0
		g.timer = nil
		g.seq++
		return 0, true, true
	}
	g.schedule()
	return g.remaining, false, true
}

func (g *TimeoutGuard) Remaining() int { return g.remaining }

func (g *TimeoutGuard) Total() int { return g.total }

func (g *TimeoutGuard) Stop() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.seq++
}
