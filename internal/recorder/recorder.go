// Package recorder turns acquisition results into stored measurements.
package recorder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Aquilesorei/talon/internal/acquisition"
	"github.com/Aquilesorei/talon/internal/composition"
	"github.com/Aquilesorei/talon/internal/goals"
	"github.com/Aquilesorei/talon/internal/mqtt"
	"github.com/Aquilesorei/talon/internal/scale"
	"github.com/Aquilesorei/talon/internal/store"
	"github.com/Aquilesorei/talon/internal/utils"
)

const opTimeout = 10 * time.Second

type measurementStore interface {
	GetProfile(ctx context.Context) (composition.Profile, error)
	InsertMeasurement(ctx context.Context, m store.Measurement) (int64, error)
	SaveScaleDevice(ctx context.Context, d store.ScaleDevice) error
	ListGoals(ctx context.Context, status goals.Status) ([]goals.Goal, error)
	SetGoalStatus(ctx context.Context, id int64, status goals.Status, at time.Time) error
}

type measurementPublisher interface {
	PublishMeasurement(msg mqtt.MeasurementMessage) error
}

// Recorder implements acquisition.Sink. Failures are logged and never retried.
type Recorder struct {
	store     measurementStore
	publisher measurementPublisher
	logger    *slog.Logger

	wg sync.WaitGroup
}

// New returns a Recorder. publisher may be nil.
func New(st measurementStore, publisher measurementPublisher, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: st, publisher: publisher, logger: logger}
}

// Deliver records res in the background. The delivery is counted before
// Deliver returns, so a later Wait covers it.
func (r *Recorder) Deliver(res scale.AcquisitionResult) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.record(res)
	}()
}

func (r *Recorder) record(res scale.AcquisitionResult) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	profile, err := r.store.GetProfile(ctx)
	if err != nil {
		r.logger.Warn("recorder: profile unavailable, using default", "session_id", res.SessionID, "error", err)
		profile = composition.DefaultProfile()
	}

	m := store.Measurement{
		SessionID:   res.SessionID,
		Timestamp:   res.Timestamp,
		SenderID:    res.SenderID,
		Weight:      res.Weight,
		Impedance:   res.Impedance,
		Trusted:     res.Trusted,
		Trigger:     res.Trigger,
		SampleCount: res.SampleCount,
		Composition: composition.Compute(res.Weight, res.Impedance, profile),
		RawData:     utils.BytesToHex(res.Payload),
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}

	id, err := r.store.InsertMeasurement(ctx, m)
	if err != nil {
		r.logger.Error("recorder: measurement not stored", "session_id", res.SessionID, "error", err)
		return
	}
	m.ID = id
	r.logger.Info("recorder: measurement stored",
		"id", id,
		"session_id", m.SessionID,
		"weight", m.Weight,
		"impedance", m.Impedance,
		"body_fat", m.Composition.BodyFat,
		"trusted", m.Trusted,
	)

	r.checkGoals(ctx, m)

	if r.publisher == nil {
		return
	}
	if err := r.publisher.PublishMeasurement(MessageFor(m)); err != nil {
		r.logger.Warn("recorder: measurement not published", "id", id, "error", err)
	}
}

// checkGoals marks every active goal that m reaches as achieved.
func (r *Recorder) checkGoals(ctx context.Context, m store.Measurement) {
	active, err := r.store.ListGoals(ctx, goals.StatusActive)
	if err != nil {
		r.logger.Warn("recorder: goals not checked", "id", m.ID, "error", err)
		return
	}
	for _, g := range active {
		current, ok := goals.Current(g.Type, m.Weight, m.Composition)
		if !ok || !g.Achieved(current) {
			continue
		}
		if err := r.store.SetGoalStatus(ctx, g.ID, goals.StatusAchieved, m.Timestamp); err != nil {
			r.logger.Warn("recorder: goal not updated", "goal_id", g.ID, "error", err)
			continue
		}
		r.logger.Info("recorder: goal achieved",
			"goal_id", g.ID,
			"type", g.Type,
			"target", g.Target,
			"value", current,
			"measurement_id", m.ID,
		)
	}
}

// Observe remembers the scale a session locked onto, for later auto-connect.
// Targets without a display name were locked by address and are already known.
func (r *Recorder) Observe(ev acquisition.Event) {
	if ev.Kind != acquisition.EventLocked || ev.Target.DisplayName == "" {
		return
	}
	dev := store.ScaleDevice{Address: ev.Target.SenderID, Name: ev.Target.DisplayName}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		if err := r.store.SaveScaleDevice(ctx, dev); err != nil {
			r.logger.Warn("recorder: scale not remembered", "addr", dev.Address, "error", err)
			return
		}
		r.logger.Debug("recorder: scale remembered", "addr", dev.Address, "name", dev.Name)
	}()
}

// Wait blocks until in-flight deliveries and saves have finished.
func (r *Recorder) Wait() {
	r.wg.Wait()
}

func MessageFor(m store.Measurement) mqtt.MeasurementMessage {
	return mqtt.MeasurementMessage{
		ID:          m.ID,
		SessionID:   m.SessionID,
		Timestamp:   m.Timestamp,
		Weight:      m.Weight,
		Impedance:   m.Impedance,
		Trusted:     m.Trusted,
		Composition: m.Composition,
		BMICategory: string(m.Composition.BMICategory()),
	}
}
