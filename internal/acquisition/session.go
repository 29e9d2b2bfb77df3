package acquisition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/Aquilesorei/talon/internal/scale"
	"github.com/Aquilesorei/talon/internal/utils"
)

const (
	DefaultDebounce     = 2 * time.Second
	DefaultTick         = time.Second
	DefaultTimeoutTicks = 60

	inboxSize = 256
)

const (
	TriggerDebounce = "debounce"
	TriggerTimeout  = "timeout"
)

var (
	ErrSessionBusy          = errors.New("session already running")
	ErrNotDiscovering       = errors.New("session is not discovering")
	ErrSessionFinished      = errors.New("session finished")
	ErrSessionClosed        = errors.New("session closed")
	ErrEmptyTarget          = errors.New("empty target address")
	ErrTransportUnavailable = errors.New("transport unavailable")
)

type Options struct {
	Debounce          time.Duration // quiet period that ends a burst
	Tick              time.Duration // countdown unit
	TimeoutTicks      int           // hard deadline, in ticks, counted from lock
	SentinelImpedance float64
	BufferSize        int

	Clock    clockwork.Clock
	Observer Observer
	Sink     Sink
	Logger   *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	if o.Tick <= 0 {
		o.Tick = DefaultTick
	}
	if o.TimeoutTicks <= 0 {
		o.TimeoutTicks = DefaultTimeoutTicks
	}
	if o.SentinelImpedance == 0 {
		o.SentinelImpedance = scale.SentinelImpedance
	}
	if o.BufferSize <= 0 {
		o.BufferSize = defaultBufferSize
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

type commandKind int

const (
	cmdBegin commandKind = iota
	cmdSelect
	cmdCancel
)

type command struct {
	kind   commandKind
	target string
	reply  chan error
}

type advertisement struct{ ev scale.AdvertisementEvent }

type transportLost struct{ err error }

type debounceFired struct{ seq uint64 }

type guardTick struct{ seq uint64 }

// Session acquires one sample from a broadcast-only scale.
//
// All inputs (caller commands, advertisements, timer firings) are serialized
// through a single inbox consumed by Run; no session field is touched from any
// other goroutine. Timer firings carry a sequence number and are re-checked
// against the current state when they are dequeued, so a firing that races a
// cancel or a completion is a no-op.
type Session struct {
	transport Transport
	opts      Options
	clock     clockwork.Clock
	logger    *slog.Logger

	inbox chan any
	done  chan struct{}

	// Owned by the Run goroutine.
	ctx         context.Context
	state       State
	id          string
	target      scale.CandidateDevice
	candidates  []scale.CandidateDevice
	seen        map[string]struct{}
	buffer      *Buffer
	debounce    *Debouncer
	guard       *TimeoutGuard
	discovering bool
}

func NewSession(transport Transport, opts Options) *Session {
	opts = opts.withDefaults()
	s := &Session{
		transport: transport,
		opts:      opts,
		clock:     opts.Clock,
		logger:    opts.Logger,
		inbox:     make(chan any, inboxSize),
		done:      make(chan struct{}),
		buffer:    NewBuffer(opts.BufferSize),
		ctx:       context.Background(),
	}
	s.debounce = NewDebouncer(opts.Clock, opts.Debounce, func(seq uint64) { s.post(debounceFired{seq: seq}) })
	s.guard = NewTimeoutGuard(opts.Clock, opts.Tick, opts.TimeoutTicks, func(seq uint64) { s.post(guardTick{seq: seq}) })
	return s
}

// Run processes the inbox until ctx is done. An active run is cancelled on exit.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)
	s.ctx = ctx
	for {
		select {
		case <-ctx.Done():
			if s.state == StateDiscovering || s.state == StateLocked {
				s.abandon(EventCancelled, nil)
			}
			return ctx.Err()
		case m := <-s.inbox:
			s.handle(m)
		}
	}
}

// Done is closed once Run has returned.
func (s *Session) Done() <-chan struct{} { return s.done }

// Begin starts discovery. It fails with ErrSessionBusy unless the session is idle.
func (s *Session) Begin(ctx context.Context) error {
	return s.command(ctx, cmdBegin, "")
}

// BeginWithTarget starts discovery and locks onto target immediately.
func (s *Session) BeginWithTarget(ctx context.Context, target string) error {
	if target == "" {
		return ErrEmptyTarget
	}
	return s.command(ctx, cmdBegin, target)
}

// SelectTarget locks the session onto one discovered sender.
func (s *Session) SelectTarget(ctx context.Context, target string) error {
	return s.command(ctx, cmdSelect, target)
}

// Cancel abandons the current run without producing a result. Cancelling an
// idle or finished session is a no-op.
func (s *Session) Cancel(ctx context.Context) error {
	return s.command(ctx, cmdCancel, "")
}

// Ingest queues one advertisement. It never blocks; when the inbox is full the
// advertisement is dropped.
func (s *Session) Ingest(ev scale.AdvertisementEvent) {
	select {
	case s.inbox <- advertisement{ev: ev}:
	case <-s.done:
	default:
		s.logger.Debug("acquisition: inbox full, advertisement dropped", "addr", ev.SenderID)
	}
}

// TransportLost aborts the current run because the radio went away.
func (s *Session) TransportLost(err error) {
	s.post(transportLost{err: err})
}

func (s *Session) post(m any) {
	select {
	case s.inbox <- m:
	case <-s.done:
	}
}

func (s *Session) command(ctx context.Context, kind commandKind, target string) error {
	reply := make(chan error, 1)
	select {
	case s.inbox <- command{kind: kind, target: target, reply: reply}:
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		select {
		case err := <-reply:
			return err
		default:
			return ErrSessionClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) handle(m any) {
	switch m := m.(type) {
	case command:
		m.reply <- s.handleCommand(m)
	case advertisement:
		s.handleAdvertisement(m.ev)
	case debounceFired:
		s.handleDebounce(m.seq)
	case guardTick:
		s.handleTick(m.seq)
	case transportLost:
		s.handleTransportLost(m.err)
	}
}

func (s *Session) handleCommand(c command) error {
	switch c.kind {
	case cmdBegin:
		return s.begin(c.target)
	case cmdSelect:
		return s.selectTarget(c.target)
	case cmdCancel:
		if s.state == StateDiscovering || s.state == StateLocked {
			s.logger.Info("acquisition: cancelled", "session_id", s.id, "state", s.state.String())
			s.abandon(EventCancelled, nil)
		}
		return nil
	}
	return fmt.Errorf("unknown command %d", c.kind)
}

func (s *Session) begin(target string) error {
	switch s.state {
	case StateIdle:
	case StateFinished:
		return ErrSessionFinished
	default:
		return ErrSessionBusy
	}

	s.id = uuid.NewString()
	s.candidates = nil
	s.seen = make(map[string]struct{})
	s.buffer.Reset()

	if err := s.transport.StartDiscovery(s.ctx); err != nil {
		s.logger.Warn("acquisition: start discovery failed", "session_id", s.id, "error", err)
		return fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
	}
	s.discovering = true
	s.state = StateDiscovering
	s.logger.Info("acquisition: discovering", "session_id", s.id)
	s.emit(Event{Kind: EventDiscovering})

	if target != "" {
		return s.lock(target)
	}
	return nil
}

func (s *Session) selectTarget(target string) error {
	switch s.state {
	case StateDiscovering:
	case StateFinished:
		return ErrSessionFinished
	default:
		return ErrNotDiscovering
	}
	if target == "" {
		return ErrEmptyTarget
	}
	return s.lock(target)
}

func (s *Session) lock(target string) error {
	s.target = scale.CandidateDevice{SenderID: target}
	for _, c := range s.candidates {
		if c.SenderID == target {
			s.target = c
			break
		}
	}
	s.candidates = nil
	s.seen = nil

	s.buffer.Reset()
	s.debounce.Stop()
	s.guard.Start()
	s.state = StateLocked

	s.logger.Info("acquisition: target locked",
		"session_id", s.id,
		"addr", s.target.SenderID,
		"name", s.target.DisplayName,
		"timeout_ticks", s.guard.Total(),
	)
	s.emit(Event{Kind: EventLocked, Target: s.target, Remaining: s.guard.Remaining()})
	return nil
}

func (s *Session) handleAdvertisement(ev scale.AdvertisementEvent) {
	switch s.state {
	case StateDiscovering:
		s.upsertCandidate(ev)
	case StateLocked:
		if ev.SenderID != s.target.SenderID {
			return
		}
		reading, err := scale.Decode(ev.Payload)
		if err != nil {
			s.logger.Warn("acquisition: dropping advertisement",
				"session_id", s.id,
				"addr", ev.SenderID,
				"data", utils.BytesToHex(ev.Payload),
				"error", err,
			)
			return
		}
		ts := ev.Timestamp
		if ts.IsZero() {
			ts = s.clock.Now()
		}
		sample := scale.DecodedSample{
			Weight:    reading.Weight,
			Impedance: reading.Impedance,
			Payload:   append([]byte(nil), ev.Payload...),
			Timestamp: ts,
		}
		s.buffer.Add(sample)
		s.debounce.Arm()

		s.logger.Debug("acquisition: sample",
			"session_id", s.id,
			"weight", sample.Weight,
			"impedance", sample.Impedance,
			"rssi", ev.SignalStrength,
			"data", utils.BytesToHex(sample.Payload),
		)
		s.emit(Event{Kind: EventLiveReading, Sample: sample})
	}
}

func (s *Session) upsertCandidate(ev scale.AdvertisementEvent) {
	if _, ok := s.seen[ev.SenderID]; ok {
		return
	}
	s.seen[ev.SenderID] = struct{}{}
	name := ev.Name
	if name == "" {
		name = "Unknown Device"
	}
	s.candidates = append(s.candidates, scale.CandidateDevice{
		SenderID:       ev.SenderID,
		DisplayName:    name,
		SignalStrength: ev.SignalStrength,
	})
	list := make([]scale.CandidateDevice, len(s.candidates))
	copy(list, s.candidates)
	s.emit(Event{Kind: EventCandidates, Candidates: list})
}

func (s *Session) handleDebounce(seq uint64) {
	if s.state != StateLocked || !s.debounce.Current(seq) {
		return
	}
	if s.buffer.Len() == 0 {
		return
	}
	s.complete(TriggerDebounce)
}

func (s *Session) handleTick(seq uint64) {
	if s.state != StateLocked {
		return
	}
	remaining, expired, ok := s.guard.Tick(seq)
	if !ok {
		return
	}
	s.emit(Event{Kind: EventCountdown, Remaining: remaining})
	if !expired {
		return
	}
	if s.buffer.Len() == 0 {
		s.finishNoData()
		return
	}
	s.logger.Info("acquisition: timeout reached, forcing selection", "session_id", s.id, "samples", s.buffer.Len())
	s.complete(TriggerTimeout)
}

func (s *Session) handleTransportLost(err error) {
	if s.state != StateDiscovering && s.state != StateLocked {
		return
	}
	s.logger.Warn("acquisition: transport lost", "session_id", s.id, "error", err)
	s.discovering = false
	s.abandon(EventAborted, fmt.Errorf("%w: %w", ErrTransportUnavailable, err))
}

func (s *Session) complete(trigger string) {
	s.state = StateCompleting
	s.debounce.Stop()
	s.guard.Stop()

	samples := s.buffer.Samples()
	winner, trusted, _ := Select(samples, s.opts.SentinelImpedance)
	s.stopDiscovery()

	res := scale.AcquisitionResult{
		SessionID:   s.id,
		SenderID:    s.target.SenderID,
		Weight:      winner.Weight,
		Impedance:   winner.Impedance,
		Payload:     winner.Payload,
		Timestamp:   winner.Timestamp,
		Trusted:     trusted,
		Trigger:     trigger,
		SampleCount: len(samples),
	}
	s.state = StateFinished

	if trusted {
		s.logger.Info("acquisition: sample selected",
			"session_id", s.id,
			"trigger", trigger,
			"samples", len(samples),
			"weight", res.Weight,
			"impedance", res.Impedance,
		)
	} else {
		s.logger.Warn("acquisition: no stable impedance, using last sample",
			"session_id", s.id,
			"trigger", trigger,
			"samples", len(samples),
			"weight", res.Weight,
			"impedance", res.Impedance,
		)
	}
	s.emit(Event{Kind: EventResult, Result: &res})

	if s.opts.Sink != nil {
		s.opts.Sink.Deliver(res)
	}
}

func (s *Session) finishNoData() {
	s.debounce.Stop()
	s.guard.Stop()
	s.stopDiscovery()
	s.buffer.Reset()
	s.state = StateFinished
	s.logger.Warn("acquisition: no data before timeout", "session_id", s.id, "addr", s.target.SenderID)
	s.emit(Event{Kind: EventNoData})
}

// abandon leaves Discovering or Locked for Idle without a result.
func (s *Session) abandon(kind EventKind, err error) {
	s.debounce.Stop()
	s.guard.Stop()
	s.stopDiscovery()
	s.buffer.Reset()
	s.candidates = nil
	s.seen = nil
	s.target = scale.CandidateDevice{}
	s.state = StateIdle
	s.emit(Event{Kind: kind, Err: err})
}

func (s *Session) stopDiscovery() {
	if !s.discovering {
		return
	}
	s.discovering = false
	if err := s.transport.StopDiscovery(); err != nil {
		s.logger.Warn("acquisition: stop discovery failed", "session_id", s.id, "error", err)
	}
}

func (s *Session) emit(ev Event) {
	ev.SessionID = s.id
	ev.State = s.state
	ev.At = s.clock.Now()
	if s.opts.Observer != nil {
		s.opts.Observer(ev)
	}
}
