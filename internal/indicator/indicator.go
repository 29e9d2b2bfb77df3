// Package indicator mirrors the session state on a GPIO status LED.
package indicator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/Aquilesorei/talon/internal/acquisition"
)

type Mode int

const (
	ModeOff Mode = iota
	ModeSlowBlink
	ModeFastBlink
	ModeOn
)

const (
	slowBlink = 500 * time.Millisecond
	fastBlink = 125 * time.Millisecond
)

func (m Mode) String() string {
	return [...]string{"off", "slow_blink", "fast_blink", "on"}[m]
}

// ModeFor maps a session event to the LED pattern.
func ModeFor(ev acquisition.Event) Mode {
	switch ev.Kind {
	case acquisition.EventDiscovering, acquisition.EventCandidates:
		return ModeSlowBlink
	case acquisition.EventLocked, acquisition.EventLiveReading, acquisition.EventCountdown:
		return ModeFastBlink
	case acquisition.EventResult:
		return ModeOn
	default:
		return ModeOff
	}
}

type outPin interface {
	Out(l gpio.Level) error
	String() string
}

type LED struct {
	pin    outPin
	clock  clockwork.Clock
	logger *slog.Logger
	modes  chan Mode
}

// Open initializes the periph host drivers and claims the named GPIO pin.
func Open(pinName string, logger *slog.Logger) (*LED, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	p := gpioreg.ByName(pinName)
	if p == nil {
		return nil, fmt.Errorf("gpio pin %q not found", pinName)
	}
	return newLED(p, clockwork.NewRealClock(), logger), nil
}

func newLED(pin outPin, clock clockwork.Clock, logger *slog.Logger) *LED {
	if logger == nil {
		logger = slog.Default()
	}
	return &LED{pin: pin, clock: clock, logger: logger, modes: make(chan Mode, 1)}
}

// Observe never blocks; only the latest mode is kept.
func (l *LED) Observe(ev acquisition.Event) {
	m := ModeFor(ev)
	for {
		select {
		case l.modes <- m:
			return
		default:
		}
		select {
		case <-l.modes:
		default:
		}
	}
}

// Run drives the pin until ctx is done and leaves the LED off.
func (l *LED) Run(ctx context.Context) {
	mode := ModeOff
	level := gpio.Low
	l.set(level)

	var ticker clockwork.Ticker
	tick := func() <-chan time.Time {
		if ticker == nil {
			return nil
		}
		return ticker.Chan()
	}
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
		l.set(gpio.Low)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case m := <-l.modes:
			if m == mode {
				continue
			}
			mode = m
			if ticker != nil {
				ticker.Stop()
				ticker = nil
			}
			switch mode {
			case ModeSlowBlink:
				ticker = l.clock.NewTicker(slowBlink)
				level = gpio.High
			case ModeFastBlink:
				ticker = l.clock.NewTicker(fastBlink)
				level = gpio.High
			case ModeOn:
				level = gpio.High
			default:
				level = gpio.Low
			}
			l.set(level)
		case <-tick():
			level = !level
			l.set(level)
		}
	}
}

func (l *LED) set(level gpio.Level) {
	if err := l.pin.Out(level); err != nil {
		l.logger.Warn("indicator: gpio write failed", "pin", l.pin.String(), "error", err)
	}
}
