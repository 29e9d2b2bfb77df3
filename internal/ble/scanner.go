package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/Aquilesorei/talon/internal/scale"
	"github.com/Aquilesorei/talon/internal/utils"
)

var ErrAdapterUnavailable = errors.New("bluetooth adapter unavailable")

// defaultStopWait bounds how long StartDiscovery waits for a stopping scan.
const defaultStopWait = 2 * time.Second

type Options struct {
	Adapter string // "hci0" by default
	Filter  Filter
	Logger  *slog.Logger
}

// radio is the part of the adapter the scanner drives. Scan blocks until
// StopScan is called or scanning fails; StopScan must not block.
type radio interface {
	Enable() error
	Scan(fn func(advert)) error
	StopScan() error
}

type adapterRadio struct {
	adapter *bluetooth.Adapter
}

func (r adapterRadio) Enable() error { return r.adapter.Enable() }
func (r adapterRadio) StopScan() error { return r.adapter.StopScan() }

func (r adapterRadio) Scan(fn func(advert)) error {
	return r.adapter.Scan(func(_ *bluetooth.Adapter, res bluetooth.ScanResult) {
		a := advert{
			address:   res.Address.String(),
			rssi:      res.RSSI,
			localName: res.LocalName(),
		}
		for _, md := range res.ManufacturerData() {
			a.mfg = append(a.mfg, mfgBlock{companyID: md.CompanyID, data: md.Data})
		}
		fn(a)
	})
}

// scanRun is one Scan call. done is closed once Scan has returned.
type scanRun struct {
	done       chan struct{}
	stopping   bool
	stopFailed bool
}

// Scanner wraps BlueZ scanning and feeds every matching advertisement to a
// handler. It implements acquisition.Transport.
type Scanner struct {
	radio    radio
	opts     Options
	logger   *slog.Logger
	stopWait time.Duration

	mu      sync.Mutex
	enabled bool
	run     *scanRun
	onEvent func(scale.AdvertisementEvent)
	onLost  func(error)
}

func NewScanner(opts Options) *Scanner {
	if opts.Adapter == "" {
		opts.Adapter = "hci0"
	}
	return newScanner(adapterRadio{adapter: bluetooth.NewAdapter(opts.Adapter)}, opts)
}

func newScanner(r radio, opts Options) *Scanner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scanner{
		radio:    r,
		opts:     opts,
		logger:   opts.Logger,
		stopWait: defaultStopWait,
	}
}

// SetHandlers registers the advertisement handler and the callback invoked when
// scanning ends without StopDiscovery having been called.
func (s *Scanner) SetHandlers(onEvent func(scale.AdvertisementEvent), onLost func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvent = onEvent
	s.onLost = onLost
}

// StartDiscovery enables the adapter on first use and starts scanning in the
// background. Scanning stops on StopDiscovery or when ctx is done. A scan that
// is still stopping is waited for before the new one starts.
func (s *Scanner) StartDiscovery(ctx context.Context) error {
	s.mu.Lock()
	for s.run != nil && s.run.stopping {
		done := s.run.done
		s.mu.Unlock()
		if err := s.awaitStopped(ctx, done); err != nil {
			return err
		}
		s.mu.Lock()
	}
	defer s.mu.Unlock()

	if s.run != nil {
		return nil
	}
	if !s.enabled {
		s.logger.Info("ble: enabling adapter", "adapter", s.opts.Adapter)
		if err := s.radio.Enable(); err != nil {
			return fmt.Errorf("%w: enable %s: %w", ErrAdapterUnavailable, s.opts.Adapter, err)
		}
		s.enabled = true
		s.logger.Info("ble: adapter enabled", "adapter", s.opts.Adapter)
	}

	run := &scanRun{done: make(chan struct{})}
	s.run = run

	s.logger.Info("ble: scanning started",
		"filter_name", s.opts.Filter.LocalName,
		"filter_company", "0x"+utils.Hex4(s.opts.Filter.CompanyID),
		"filter_prefix", utils.BytesToHex(s.opts.Filter.ManufacturerDataPref),
	)

	go func() {
		select {
		case <-ctx.Done():
			_ = s.stop(run)
		case <-run.done:
		}
	}()
	go s.scan(run)
	return nil
}

func (s *Scanner) awaitStopped(ctx context.Context, done <-chan struct{}) error {
	timer := time.NewTimer(s.stopWait)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w: previous scan on %s did not stop", ErrAdapterUnavailable, s.opts.Adapter)
	}
}

// StopDiscovery stops the active scan. Stopping an idle scanner is a no-op.
func (s *Scanner) StopDiscovery() error {
	s.mu.Lock()
	run := s.run
	s.mu.Unlock()
	return s.stop(run)
}

// stop only acts on run while it is still the current scan, so a late context
// watcher cannot stop a newer one.
func (s *Scanner) stop(run *scanRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run == nil || s.run != run || run.stopping {
		return nil
	}
	run.stopping = true
	if err := s.radio.StopScan(); err != nil {
		// Scan has not registered yet; the scan callback retries.
		run.stopFailed = true
		return fmt.Errorf("ble stop scan: %w", err)
	}
	return nil
}

func (s *Scanner) scan(run *scanRun) {
	err := s.radio.Scan(func(a advert) {
		ev, ok := match(s.opts.Filter, a, time.Now())
		if !ok {
			return
		}
		s.mu.Lock()
		if run.stopping {
			if run.stopFailed {
				run.stopFailed = false
				_ = s.radio.StopScan()
			}
			s.mu.Unlock()
			return
		}
		onEvent := s.onEvent
		s.mu.Unlock()
		if onEvent != nil {
			onEvent(ev)
		}
	})

	s.mu.Lock()
	requested := run.stopping
	if s.run == run {
		s.run = nil
	}
	onLost := s.onLost
	close(run.done)
	s.mu.Unlock()

	if requested {
		s.logger.Info("ble: scanning stopped")
		return
	}
	if err == nil {
		err = errors.New("scan ended unexpectedly")
	}
	s.logger.Warn("ble: scanning failed", "adapter", s.opts.Adapter, "error", err)
	if onLost != nil {
		onLost(fmt.Errorf("ble scan: %w", err))
	}
}
