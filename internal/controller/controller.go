// Package controller keeps one acquisition session available at all times and
// exposes its progress as a snapshot.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Aquilesorei/talon/internal/acquisition"
	"github.com/Aquilesorei/talon/internal/scale"
	"github.com/Aquilesorei/talon/internal/store"
)

var (
	ErrNotRunning   = errors.New("controller not running")
	ErrNoSavedScale = errors.New("no saved scale")
)

type scaleLookup interface {
	GetScaleDevice(ctx context.Context) (store.ScaleDevice, bool, error)
}

// Snapshot is the externally visible state of the current session.
type Snapshot struct {
	State      string                   `json:"state"`
	SessionID  string                   `json:"session_id,omitempty"`
	Candidates []scale.CandidateDevice  `json:"candidates"`
	Target     *scale.CandidateDevice   `json:"target,omitempty"`
	LastSample *scale.DecodedSample     `json:"last_sample,omitempty"`
	Samples    int                      `json:"samples"`
	Remaining  int                      `json:"remaining_s"`
	Outcome    string                   `json:"outcome,omitempty"`
	Result     *scale.AcquisitionResult `json:"result,omitempty"`
	Error      string                   `json:"error,omitempty"`
	UpdatedAt  time.Time                `json:"updated_at"`
}

type Controller struct {
	transport acquisition.Transport
	opts      acquisition.Options
	scales    scaleLookup
	observers []acquisition.Observer
	logger    *slog.Logger

	mu       sync.Mutex
	ctx      context.Context
	current  *acquisition.Session
	stop     context.CancelFunc
	snapshot Snapshot
}

// New builds a controller. opts.Observer is replaced; pass extra observers
// instead. They are called on the session goroutine and must not block.
func New(transport acquisition.Transport, opts acquisition.Options, scales scaleLookup, logger *slog.Logger, observers ...acquisition.Observer) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	opts.Logger = logger
	c := &Controller{
		transport: transport,
		opts:      opts,
		scales:    scales,
		observers: observers,
		logger:    logger,
		snapshot:  Snapshot{State: acquisition.StateIdle.String(), Candidates: []scale.CandidateDevice{}},
	}
	c.opts.Observer = c.observe
	return c
}

// Run owns the session goroutines until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	c.mu.Lock()
	c.ctx = ctx
	c.startLocked()
	c.mu.Unlock()

	<-ctx.Done()

	c.mu.Lock()
	s, stop := c.current, c.stop
	c.current, c.stop, c.ctx = nil, nil, nil
	c.mu.Unlock()
	if stop != nil {
		stop()
		<-s.Done()
	}
	return ctx.Err()
}

func (c *Controller) startLocked() {
	ctx, cancel := context.WithCancel(c.ctx)
	s := acquisition.NewSession(c.transport, c.opts)
	c.current, c.stop = s, cancel
	go func() { _ = s.Run(ctx) }()
}

func (c *Controller) session() (*acquisition.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil, ErrNotRunning
	}
	return c.current, nil
}

// renew replaces a finished session with a fresh one.
func (c *Controller) renew(old *acquisition.Session) (*acquisition.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil, ErrNotRunning
	}
	if c.current == old {
		c.stop()
		c.startLocked()
	}
	return c.current, nil
}

// Begin starts a new run. With auto set the saved scale is used as target;
// with a target the run locks immediately; otherwise it starts in discovery.
func (c *Controller) Begin(ctx context.Context, target string, auto bool) error {
	if auto {
		dev, ok, err := c.scales.GetScaleDevice(ctx)
		if err != nil {
			return fmt.Errorf("saved scale: %w", err)
		}
		if !ok {
			return ErrNoSavedScale
		}
		target = dev.Address
	}

	begin := func(s *acquisition.Session) error {
		if target != "" {
			return s.BeginWithTarget(ctx, target)
		}
		return s.Begin(ctx)
	}

	s, err := c.session()
	if err != nil {
		return err
	}
	err = begin(s)
	if !errors.Is(err, acquisition.ErrSessionFinished) {
		return err
	}
	if s, err = c.renew(s); err != nil {
		return err
	}
	return begin(s)
}

func (c *Controller) Select(ctx context.Context, target string) error {
	s, err := c.session()
	if err != nil {
		return err
	}
	return s.SelectTarget(ctx, target)
}

func (c *Controller) Cancel(ctx context.Context) error {
	s, err := c.session()
	if err != nil {
		return err
	}
	return s.Cancel(ctx)
}

// Ingest routes one advertisement to the current session.
func (c *Controller) Ingest(ev scale.AdvertisementEvent) {
	if s, err := c.session(); err == nil {
		s.Ingest(ev)
	}
}

// TransportLost aborts the current run.
func (c *Controller) TransportLost(err error) {
	if s, serr := c.session(); serr == nil {
		s.TransportLost(err)
	}
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.snapshot
	out.Candidates = append([]scale.CandidateDevice{}, c.snapshot.Candidates...)
	return out
}

func (c *Controller) observe(ev acquisition.Event) {
	c.mu.Lock()
	c.apply(ev)
	c.mu.Unlock()

	for _, o := range c.observers {
		o(ev)
	}
}

func (c *Controller) apply(ev acquisition.Event) {
	s := &c.snapshot
	s.State = ev.State.String()
	s.UpdatedAt = ev.At

	switch ev.Kind {
	case acquisition.EventDiscovering:
		*s = Snapshot{
			State:      ev.State.String(),
			SessionID:  ev.SessionID,
			Candidates: []scale.CandidateDevice{},
			UpdatedAt:  ev.At,
		}
	case acquisition.EventCandidates:
		s.Candidates = ev.Candidates
	case acquisition.EventLocked:
		target := ev.Target
		s.Target = &target
		s.Candidates = []scale.CandidateDevice{}
		s.LastSample = nil
		s.Samples = 0
		s.Remaining = ev.Remaining
	case acquisition.EventLiveReading:
		sample := ev.Sample
		s.LastSample = &sample
		s.Samples++
	case acquisition.EventCountdown:
		s.Remaining = ev.Remaining
	case acquisition.EventResult:
		s.Outcome = ev.Kind.String()
		s.Result = ev.Result
		s.Remaining = 0
	case acquisition.EventNoData, acquisition.EventCancelled:
		s.Outcome = ev.Kind.String()
		s.Remaining = 0
	case acquisition.EventAborted:
		s.Outcome = ev.Kind.String()
		s.Remaining = 0
		if ev.Err != nil {
			s.Error = ev.Err.Error()
		}
	}
}
