package acquisition

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aquilesorei/talon/internal/scale"
)

const scaleAddr = "C8:47:8C:10:22:33"

type fakeTransport struct {
	mu       sync.Mutex
	starts   int
	stops    int
	startErr error
}

func (f *fakeTransport) StartDiscovery(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.starts++
	return nil
}

func (f *fakeTransport) StopDiscovery() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeTransport) counts() (starts, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

type fakeSink struct{ ch chan scale.AcquisitionResult }

func (f *fakeSink) Deliver(res scale.AcquisitionResult) { f.ch <- res }

type harness struct {
	session   *Session
	clock     *clockwork.FakeClock
	transport *fakeTransport
	sink      *fakeSink
	events    chan Event
	cancel    context.CancelFunc
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		clock:     clockwork.NewFakeClock(),
		transport: &fakeTransport{},
		sink:      &fakeSink{ch: make(chan scale.AcquisitionResult, 4)},
		events:    make(chan Event, 1024),
	}
	opts.Clock = h.clock
	opts.Sink = h.sink
	opts.Observer = func(ev Event) { h.events <- ev }
	h.session = NewSession(h.transport, opts)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go h.session.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-h.session.Done()
	})
	return h
}

// waitFor skips events until one of the given kind arrives.
func (h *harness) waitFor(t *testing.T, kind EventKind) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-h.events:
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %s event", kind)
			return Event{}
		}
	}
}

// never fails if an event of the given kind arrives within a short window.
func (h *harness) never(t *testing.T, kind EventKind) {
	t.Helper()
	deadline := time.After(50 * time.Millisecond)
	for {
		select {
		case ev := <-h.events:
			if ev.Kind == kind {
				t.Fatalf("unexpected %s event", kind)
			}
		case <-deadline:
			return
		}
	}
}

// noTerminal fails if any terminal event arrives within a short window.
func (h *harness) noTerminal(t *testing.T) {
	t.Helper()
	deadline := time.After(100 * time.Millisecond)
	for {
		select {
		case ev := <-h.events:
			if ev.Kind.Terminal() {
				t.Fatalf("second terminal event %s", ev.Kind)
			}
		case <-deadline:
			return
		}
	}
}

func (h *harness) quiet(t *testing.T) {
	t.Helper()
	select {
	case ev := <-h.events:
		t.Fatalf("unexpected %s event", ev.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func (h *harness) lock(t *testing.T) Event {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.session.Begin(ctx))
	h.waitFor(t, EventDiscovering)
	h.session.Ingest(scale.AdvertisementEvent{SenderID: scaleAddr, Name: "MIBFS", SignalStrength: -60})
	h.waitFor(t, EventCandidates)
	require.NoError(t, h.session.SelectTarget(ctx, scaleAddr))
	return h.waitFor(t, EventLocked)
}

func (h *harness) sample(t *testing.T, weight, impedance float64) Event {
	t.Helper()
	h.session.Ingest(scale.AdvertisementEvent{
		SenderID: scaleAddr,
		Name:     "MIBFS",
		Payload:  encode(weight, impedance),
	})
	return h.waitFor(t, EventLiveReading)
}

func encode(weight, impedance float64) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint16(b[0:2], uint16(math.Round(weight*100)))
	binary.BigEndian.PutUint16(b[2:4], uint16(math.Round(impedance*10)))
	return b
}

func TestSessionDiscoveryListsCandidates(t *testing.T) {
	h := newHarness(t, Options{})

	require.NoError(t, h.session.Begin(context.Background()))
	ev := h.waitFor(t, EventDiscovering)
	assert.Equal(t, StateDiscovering, ev.State)
	assert.NotEmpty(t, ev.SessionID)

	h.session.Ingest(scale.AdvertisementEvent{SenderID: "AA", Name: "MIBFS", SignalStrength: -50})
	first := h.waitFor(t, EventCandidates)
	require.Len(t, first.Candidates, 1)
	assert.Equal(t, scale.CandidateDevice{SenderID: "AA", DisplayName: "MIBFS", SignalStrength: -50}, first.Candidates[0])

	h.session.Ingest(scale.AdvertisementEvent{SenderID: "AA", Name: "MIBFS", SignalStrength: -40})
	h.session.Ingest(scale.AdvertisementEvent{SenderID: "BB"})
	second := h.waitFor(t, EventCandidates)
	require.Len(t, second.Candidates, 2)
	assert.Equal(t, "BB", second.Candidates[1].SenderID)
	assert.Equal(t, "Unknown Device", second.Candidates[1].DisplayName)
	h.never(t, EventCandidates)

	starts, _ := h.transport.counts()
	assert.Equal(t, 1, starts)
}

func TestSessionDebounceCompletes(t *testing.T) {
	h := newHarness(t, Options{Tick: time.Minute})

	locked := h.lock(t)
	assert.Equal(t, StateLocked, locked.State)
	assert.Equal(t, scaleAddr, locked.Target.SenderID)
	assert.Equal(t, "MIBFS", locked.Target.DisplayName)
	assert.Equal(t, DefaultTimeoutTicks, locked.Remaining)

	var winner scale.DecodedSample
	for i, imp := range []float64{0, 500, 612, 612, 612, 0} {
		ev := h.sample(t, 80+float64(i)/10, imp)
		if i == 2 {
			winner = ev.Sample
		}
	}

	h.clock.Advance(DefaultDebounce - time.Millisecond)
	h.never(t, EventResult)

	h.clock.Advance(time.Millisecond)
	ev := h.waitFor(t, EventResult)
	require.NotNil(t, ev.Result)
	assert.Equal(t, StateFinished, ev.State)

	res := *ev.Result
	assert.Equal(t, winner.Weight, res.Weight)
	assert.Equal(t, 612.0, res.Impedance)
	assert.True(t, res.Trusted)
	assert.Equal(t, TriggerDebounce, res.Trigger)
	assert.Equal(t, 6, res.SampleCount)
	assert.Equal(t, scaleAddr, res.SenderID)
	assert.Equal(t, ev.SessionID, res.SessionID)

	select {
	case delivered := <-h.sink.ch:
		assert.Equal(t, res, delivered)
	case <-time.After(2 * time.Second):
		t.Fatal("result not delivered")
	}

	_, stops := h.transport.counts()
	assert.Equal(t, 1, stops)
}

func TestSessionDebounceNeverFiresInsideQuietPeriod(t *testing.T) {
	h := newHarness(t, Options{Tick: time.Minute})
	h.lock(t)

	h.sample(t, 80, 600)
	h.clock.Advance(1500 * time.Millisecond)
	h.sample(t, 80, 600)
	h.clock.Advance(1500 * time.Millisecond)
	h.never(t, EventResult)

	h.clock.Advance(500 * time.Millisecond)
	ev := h.waitFor(t, EventResult)
	assert.Equal(t, 2, ev.Result.SampleCount)
}

func TestSessionTimeoutDominatesDebounce(t *testing.T) {
	h := newHarness(t, Options{Debounce: 5 * time.Second, Tick: time.Second, TimeoutTicks: 3})
	locked := h.lock(t)
	assert.Equal(t, 3, locked.Remaining)

	impedances := []float64{600, 610, 610}
	var second scale.DecodedSample
	for i, imp := range impedances {
		ev := h.sample(t, 75+float64(i), imp)
		if i == 1 {
			second = ev.Sample
		}
		h.clock.Advance(time.Second)
		countdown := h.waitFor(t, EventCountdown)
		assert.Equal(t, len(impedances)-1-i, countdown.Remaining)
	}

	ev := h.waitFor(t, EventResult)
	require.NotNil(t, ev.Result)
	assert.Equal(t, TriggerTimeout, ev.Result.Trigger)
	assert.Equal(t, second.Weight, ev.Result.Weight)
	assert.Equal(t, 610.0, ev.Result.Impedance)
	assert.Equal(t, 3, ev.Result.SampleCount)
}

func TestSessionDebounceAndTimeoutAtSameInstant(t *testing.T) {
	// Both timer goroutines fire on the same Advance, so the order in which the
	// session sees them varies between runs.
	for i := range 10 {
		t.Run(fmt.Sprintf("run%d", i), func(t *testing.T) {
			h := newHarness(t, Options{Debounce: 3 * time.Second, Tick: time.Second, TimeoutTicks: 3})
			h.lock(t)
			h.sample(t, 80, 612)

			for remaining := 2; remaining >= 1; remaining-- {
				h.clock.Advance(time.Second)
				assert.Equal(t, remaining, h.waitFor(t, EventCountdown).Remaining)
			}
			h.clock.Advance(time.Second)

			ev := h.waitFor(t, EventResult)
			require.NotNil(t, ev.Result)
			assert.Equal(t, StateFinished, ev.State)
			assert.Contains(t, []string{TriggerDebounce, TriggerTimeout}, ev.Result.Trigger)
			assert.Equal(t, 1, ev.Result.SampleCount)

			h.noTerminal(t)

			select {
			case <-h.sink.ch:
			case <-time.After(2 * time.Second):
				t.Fatal("result not delivered")
			}
			select {
			case res := <-h.sink.ch:
				t.Fatalf("second delivery %+v", res)
			case <-time.After(50 * time.Millisecond):
			}
			_, stops := h.transport.counts()
			assert.Equal(t, 1, stops)
		})
	}
}

func TestSessionNoDataAtTimeout(t *testing.T) {
	h := newHarness(t, Options{Tick: time.Second, TimeoutTicks: 2})
	h.lock(t)

	h.clock.Advance(time.Second)
	assert.Equal(t, 1, h.waitFor(t, EventCountdown).Remaining)
	h.clock.Advance(time.Second)
	ev := h.waitFor(t, EventNoData)
	assert.Equal(t, StateFinished, ev.State)

	select {
	case res := <-h.sink.ch:
		t.Fatalf("unexpected delivery %+v", res)
	case <-time.After(50 * time.Millisecond):
	}
	_, stops := h.transport.counts()
	assert.Equal(t, 1, stops)
}

func TestSessionFinishedIsTerminal(t *testing.T) {
	h := newHarness(t, Options{Tick: time.Minute})
	h.lock(t)
	h.sample(t, 80, 612)
	h.clock.Advance(DefaultDebounce)
	h.waitFor(t, EventResult)

	ctx := context.Background()
	assert.ErrorIs(t, h.session.Begin(ctx), ErrSessionFinished)
	assert.ErrorIs(t, h.session.SelectTarget(ctx, scaleAddr), ErrSessionFinished)
	assert.NoError(t, h.session.Cancel(ctx))

	h.session.Ingest(scale.AdvertisementEvent{SenderID: scaleAddr, Payload: encode(81, 612)})
	h.clock.Advance(10 * time.Minute)
	h.quiet(t)
}

func TestSessionCancelWhileLocked(t *testing.T) {
	h := newHarness(t, Options{Tick: time.Minute})
	first := h.lock(t)
	h.sample(t, 80, 612)

	require.NoError(t, h.session.Cancel(context.Background()))
	ev := h.waitFor(t, EventCancelled)
	assert.Equal(t, StateIdle, ev.State)

	h.clock.Advance(DefaultDebounce)
	h.quiet(t)
	select {
	case res := <-h.sink.ch:
		t.Fatalf("unexpected delivery %+v", res)
	default:
	}

	require.NoError(t, h.session.Begin(context.Background()))
	again := h.waitFor(t, EventDiscovering)
	assert.NotEqual(t, first.SessionID, again.SessionID)

	starts, stops := h.transport.counts()
	assert.Equal(t, 2, starts)
	assert.Equal(t, 1, stops)
}

func TestSessionCancelWhenIdleIsNoop(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.session.Cancel(context.Background()))
	h.quiet(t)
}

func TestSessionBeginWhileBusy(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	require.NoError(t, h.session.Begin(ctx))
	assert.ErrorIs(t, h.session.Begin(ctx), ErrSessionBusy)
}

func TestSessionSelectTargetPreconditions(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	assert.ErrorIs(t, h.session.SelectTarget(ctx, scaleAddr), ErrNotDiscovering)

	require.NoError(t, h.session.Begin(ctx))
	assert.ErrorIs(t, h.session.SelectTarget(ctx, ""), ErrEmptyTarget)
	assert.ErrorIs(t, h.session.BeginWithTarget(ctx, ""), ErrEmptyTarget)
}

func TestSessionBeginWithTargetIgnoresOtherSenders(t *testing.T) {
	h := newHarness(t, Options{Tick: time.Minute})

	require.NoError(t, h.session.BeginWithTarget(context.Background(), scaleAddr))
	h.waitFor(t, EventDiscovering)
	locked := h.waitFor(t, EventLocked)
	assert.Equal(t, scaleAddr, locked.Target.SenderID)

	h.session.Ingest(scale.AdvertisementEvent{SenderID: "11:22:33:44:55:66", Payload: encode(70, 500)})
	h.never(t, EventLiveReading)

	ev := h.sample(t, 70.2, 520)
	assert.Equal(t, 70.2, ev.Sample.Weight)
	assert.Equal(t, 520.0, ev.Sample.Impedance)
}

func TestSessionDropsMalformedPayload(t *testing.T) {
	h := newHarness(t, Options{Tick: time.Minute})
	h.lock(t)

	h.session.Ingest(scale.AdvertisementEvent{SenderID: scaleAddr, Payload: []byte{0x1F, 0x40, 0x17}})
	h.never(t, EventLiveReading)
	h.clock.Advance(DefaultDebounce)
	h.never(t, EventResult)

	h.sample(t, 80, 612)
	h.clock.Advance(DefaultDebounce)
	ev := h.waitFor(t, EventResult)
	assert.Equal(t, 1, ev.Result.SampleCount)
}

func TestSessionTransportUnavailableOnBegin(t *testing.T) {
	h := newHarness(t, Options{})
	h.transport.startErr = errors.New("adapter powered off")

	err := h.session.Begin(context.Background())
	require.ErrorIs(t, err, ErrTransportUnavailable)
	assert.Contains(t, err.Error(), "adapter powered off")
	h.quiet(t)

	h.transport.mu.Lock()
	h.transport.startErr = nil
	h.transport.mu.Unlock()
	assert.NoError(t, h.session.Begin(context.Background()))
}

func TestSessionTransportLost(t *testing.T) {
	h := newHarness(t, Options{Tick: time.Minute})
	h.lock(t)
	h.sample(t, 80, 612)

	h.session.TransportLost(errors.New("hci0 removed"))
	ev := h.waitFor(t, EventAborted)
	assert.Equal(t, StateIdle, ev.State)
	assert.ErrorIs(t, ev.Err, ErrTransportUnavailable)

	h.clock.Advance(DefaultDebounce)
	h.quiet(t)
	_, stops := h.transport.counts()
	assert.Equal(t, 0, stops)
}

func TestSessionRunExitCancelsActiveRun(t *testing.T) {
	h := newHarness(t, Options{Tick: time.Minute})
	h.lock(t)

	h.cancel()
	ev := h.waitFor(t, EventCancelled)
	assert.Equal(t, StateIdle, ev.State)
	<-h.session.Done()

	assert.ErrorIs(t, h.session.Begin(context.Background()), ErrSessionClosed)
}
