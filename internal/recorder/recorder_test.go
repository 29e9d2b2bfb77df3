package recorder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aquilesorei/talon/internal/acquisition"
	"github.com/Aquilesorei/talon/internal/composition"
	"github.com/Aquilesorei/talon/internal/goals"
	"github.com/Aquilesorei/talon/internal/mqtt"
	"github.com/Aquilesorei/talon/internal/scale"
	"github.com/Aquilesorei/talon/internal/store"
)

type fakeStore struct {
	mu         sync.Mutex
	profile    composition.Profile
	profileErr error
	insertErr  error
	slowInsert time.Duration
	inserted   []store.Measurement
	devices    []store.ScaleDevice
	goals      []goals.Goal
	achieved   map[int64]time.Time
}

func (f *fakeStore) GetProfile(context.Context) (composition.Profile, error) {
	return f.profile, f.profileErr
}

func (f *fakeStore) InsertMeasurement(_ context.Context, m store.Measurement) (int64, error) {
	time.Sleep(f.slowInsert)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	f.inserted = append(f.inserted, m)
	return int64(len(f.inserted)), nil
}

func (f *fakeStore) SaveScaleDevice(_ context.Context, d store.ScaleDevice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices = append(f.devices, d)
	return nil
}

func (f *fakeStore) ListGoals(_ context.Context, status goals.Status) ([]goals.Goal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []goals.Goal
	for _, g := range f.goals {
		if status == "" || g.Status == status {
			out = append(out, g)
		}
	}
	return out, nil
}

func (f *fakeStore) SetGoalStatus(_ context.Context, id int64, status goals.Status, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.achieved == nil {
		f.achieved = map[int64]time.Time{}
	}
	for i := range f.goals {
		if f.goals[i].ID == id {
			f.goals[i].Status = status
			f.achieved[id] = at
			return nil
		}
	}
	return store.ErrNotFound
}

type fakePublisher struct {
	msgs []mqtt.MeasurementMessage
	err  error
}

func (f *fakePublisher) PublishMeasurement(msg mqtt.MeasurementMessage) error {
	f.msgs = append(f.msgs, msg)
	return f.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func result() scale.AcquisitionResult {
	return scale.AcquisitionResult{
		SessionID:   "s-1",
		SenderID:    "C8:47:8C:10:22:33",
		Weight:      80,
		Impedance:   450,
		Payload:     []byte{0x1F, 0x40, 0x11, 0x94},
		Timestamp:   time.Date(2026, 2, 3, 7, 0, 0, 0, time.UTC),
		Trusted:     true,
		Trigger:     acquisition.TriggerDebounce,
		SampleCount: 9,
	}
}

func TestDeliverStoresAndPublishes(t *testing.T) {
	profile := composition.Profile{HeightCm: 180, Age: 30, Male: true}
	st := &fakeStore{profile: profile}
	pub := &fakePublisher{}
	r := New(st, pub, quietLogger())

	r.Deliver(result())
	r.Wait()

	require.Len(t, st.inserted, 1)
	m := st.inserted[0]
	assert.Equal(t, "s-1", m.SessionID)
	assert.Equal(t, "1F401194", m.RawData)
	assert.Equal(t, 9, m.SampleCount)
	assert.Equal(t, composition.Compute(80, 450, profile), m.Composition)

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, int64(1), pub.msgs[0].ID)
	assert.Equal(t, "Normal", pub.msgs[0].BMICategory)
}

func TestDeliverFallsBackToDefaultProfile(t *testing.T) {
	st := &fakeStore{profileErr: errors.New("db locked")}
	r := New(st, nil, quietLogger())

	r.Deliver(result())
	r.Wait()

	require.Len(t, st.inserted, 1)
	assert.Equal(t, composition.Compute(80, 450, composition.DefaultProfile()), st.inserted[0].Composition)
}

func TestDeliverDoesNotPublishWhenInsertFails(t *testing.T) {
	st := &fakeStore{insertErr: errors.New("disk full")}
	pub := &fakePublisher{}
	r := New(st, pub, quietLogger())

	r.Deliver(result())
	r.Wait()

	assert.Empty(t, pub.msgs)
}

func TestDeliverUntrustedFallbackKeepsBMIOnly(t *testing.T) {
	st := &fakeStore{profile: composition.DefaultProfile()}
	r := New(st, nil, quietLogger())

	res := result()
	res.Impedance = 0
	res.Trusted = false
	r.Deliver(res)
	r.Wait()

	require.Len(t, st.inserted, 1)
	got := st.inserted[0]
	assert.False(t, got.Trusted)
	assert.Positive(t, got.Composition.BMI)
	assert.Zero(t, got.Composition.BodyFat)
}

func TestWaitCoversDeliveryStillRunning(t *testing.T) {
	st := &fakeStore{profile: composition.DefaultProfile(), slowInsert: 50 * time.Millisecond}
	r := New(st, nil, quietLogger())

	r.Deliver(result())
	r.Wait()

	st.mu.Lock()
	defer st.mu.Unlock()
	require.Len(t, st.inserted, 1, "Wait returned before the measurement was stored")
}

func TestDeliverMarksReachedGoals(t *testing.T) {
	st := &fakeStore{
		profile: composition.Profile{HeightCm: 180, Age: 30, Male: true},
		goals: []goals.Goal{
			{ID: 1, Type: goals.TypeWeight, Start: 86, Target: 81, Status: goals.StatusActive},
			{ID: 2, Type: goals.TypeWeight, Start: 86, Target: 78, Status: goals.StatusActive},
			{ID: 3, Type: goals.TypeBodyFat, Start: 30, Target: 25, Status: goals.StatusActive},
			{ID: 4, Type: goals.TypeWeight, Start: 86, Target: 81, Status: goals.StatusAbandoned},
		},
	}
	r := New(st, nil, quietLogger())

	r.Deliver(result())
	r.Wait()

	require.Less(t, composition.Compute(80, 450, st.profile).BodyFat, 25.0)
	assert.Equal(t, goals.StatusAchieved, st.goals[0].Status)
	assert.Equal(t, goals.StatusActive, st.goals[1].Status)
	assert.Equal(t, goals.StatusAchieved, st.goals[2].Status)
	assert.Equal(t, goals.StatusAbandoned, st.goals[3].Status)
	assert.Equal(t, result().Timestamp, st.achieved[1])
	assert.Len(t, st.achieved, 2)
}

func TestDeliverSkipsCompositionGoalsWhenUntrusted(t *testing.T) {
	st := &fakeStore{
		profile: composition.DefaultProfile(),
		goals:   []goals.Goal{{ID: 1, Type: goals.TypeBodyFat, Start: 30, Target: 25, Status: goals.StatusActive}},
	}
	r := New(st, nil, quietLogger())

	res := result()
	res.Impedance = 0
	res.Trusted = false
	r.Deliver(res)
	r.Wait()

	assert.Equal(t, goals.StatusActive, st.goals[0].Status)
}

func TestObserveRemembersNamedTarget(t *testing.T) {
	st := &fakeStore{}
	r := New(st, nil, quietLogger())

	r.Observe(acquisition.Event{Kind: acquisition.EventLocked, Target: scale.CandidateDevice{SenderID: "AA", DisplayName: "MIBFS"}})
	r.Observe(acquisition.Event{Kind: acquisition.EventLocked, Target: scale.CandidateDevice{SenderID: "BB"}})
	r.Observe(acquisition.Event{Kind: acquisition.EventCandidates})
	r.Wait()

	assert.Equal(t, []store.ScaleDevice{{Address: "AA", Name: "MIBFS"}}, st.devices)
}
