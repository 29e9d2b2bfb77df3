package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aquilesorei/talon/internal/composition"
	"github.com/Aquilesorei/talon/internal/goals"
)

//go:embed sql/insert-measurement.sql
var insertMeasurementSQL string

//go:embed sql/list-measurements.sql
var listMeasurementsSQL string

//go:embed sql/get-measurement.sql
var getMeasurementSQL string

//go:embed sql/delete-measurement.sql
var deleteMeasurementSQL string

//go:embed sql/update-measurement-notes.sql
var updateMeasurementNotesSQL string

//go:embed sql/get-profile.sql
var getProfileSQL string

//go:embed sql/upsert-profile.sql
var upsertProfileSQL string

//go:embed sql/get-scale-device.sql
var getScaleDeviceSQL string

//go:embed sql/upsert-scale-device.sql
var upsertScaleDeviceSQL string

// tsLayout has a fixed-width fraction so stored timestamps sort as text.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

const (
	DefaultListLimit = 50
	MaxListLimit     = 1000
)

type Repository interface {
	InsertMeasurement(ctx context.Context, m Measurement) (int64, error)
	ListMeasurements(ctx context.Context, limit int) ([]Measurement, error)
	GetMeasurement(ctx context.Context, id int64) (Measurement, error)
	DeleteMeasurement(ctx context.Context, id int64) error
	UpdateMeasurementNotes(ctx context.Context, id int64, notes string) (Measurement, error)

	GetProfile(ctx context.Context) (composition.Profile, error)
	SaveProfile(ctx context.Context, p composition.Profile) error

	GetScaleDevice(ctx context.Context) (ScaleDevice, bool, error)
	SaveScaleDevice(ctx context.Context, d ScaleDevice) error
	ForgetScaleDevice(ctx context.Context) error

	CreateGoal(ctx context.Context, g goals.Goal) (goals.Goal, error)
	ListGoals(ctx context.Context, status goals.Status) ([]goals.Goal, error)
	GetGoal(ctx context.Context, id int64) (goals.Goal, error)
	UpdateGoal(ctx context.Context, g goals.Goal) (goals.Goal, error)
	SetGoalStatus(ctx context.Context, id int64, status goals.Status, at time.Time) error
	DeleteGoal(ctx context.Context, id int64) error
}

type repositoryImpl struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) InsertMeasurement(ctx context.Context, m Measurement) (int64, error) {
	c := m.Composition
	res, err := r.db.ExecContext(ctx, insertMeasurementSQL,
		m.SessionID, formatTS(m.Timestamp), m.SenderID, m.Weight, m.Impedance, m.Trusted, m.Trigger, m.SampleCount,
		c.BMI, c.BodyFat, c.Water, c.Muscle, c.BoneMass, c.MetabolicAge, c.BMR, m.RawData, m.Notes,
	)
	if err != nil {
		return 0, fmt.Errorf("insert measurement: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert measurement id: %w", err)
	}
	return id, nil
}

// ListMeasurements returns the newest measurements first. A non-positive limit
// means DefaultListLimit; limits above MaxListLimit are capped.
func (r *repositoryImpl) ListMeasurements(ctx context.Context, limit int) ([]Measurement, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)

	rows, err := r.db.QueryContext(ctx, listMeasurementsSQL, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close measurements rows", "error", err)
		}
	}()

	out := []Measurement{}
	for rows.Next() {
		m, err := scanMeasurement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) GetMeasurement(ctx context.Context, id int64) (Measurement, error) {
	m, err := scanMeasurement(r.db.QueryRowContext(ctx, getMeasurementSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Measurement{}, fmt.Errorf("measurement %d: %w", id, ErrNotFound)
	}
	return m, err
}

func (r *repositoryImpl) DeleteMeasurement(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, deleteMeasurementSQL, id)
	if err != nil {
		return fmt.Errorf("delete measurement: %w", err)
	}
	return requireAffected(res, "measurement", id)
}

// UpdateMeasurementNotes replaces the free-text notes of a stored measurement
// and returns the updated row.
func (r *repositoryImpl) UpdateMeasurementNotes(ctx context.Context, id int64, notes string) (Measurement, error) {
	res, err := r.db.ExecContext(ctx, updateMeasurementNotesSQL, notes, id)
	if err != nil {
		return Measurement{}, fmt.Errorf("update measurement notes: %w", err)
	}
	if err := requireAffected(res, "measurement", id); err != nil {
		return Measurement{}, err
	}
	return r.GetMeasurement(ctx, id)
}

// GetProfile returns the saved profile, or composition.DefaultProfile when
// none has been saved yet.
func (r *repositoryImpl) GetProfile(ctx context.Context) (composition.Profile, error) {
	var p composition.Profile
	err := r.db.QueryRowContext(ctx, getProfileSQL).Scan(&p.HeightCm, &p.Age, &p.Male, &p.Athlete)
	if errors.Is(err, sql.ErrNoRows) {
		return composition.DefaultProfile(), nil
	}
	if err != nil {
		return composition.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

func (r *repositoryImpl) SaveProfile(ctx context.Context, p composition.Profile) error {
	if err := ValidateProfile(p); err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, upsertProfileSQL, p.HeightCm, p.Age, p.Male, p.Athlete); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

// GetScaleDevice reports the remembered scale; ok is false when none is saved.
func (r *repositoryImpl) GetScaleDevice(ctx context.Context) (ScaleDevice, bool, error) {
	var addr, name sql.NullString
	err := r.db.QueryRowContext(ctx, getScaleDeviceSQL).Scan(&addr, &name)
	if errors.Is(err, sql.ErrNoRows) {
		return ScaleDevice{}, false, nil
	}
	if err != nil {
		return ScaleDevice{}, false, fmt.Errorf("get scale device: %w", err)
	}
	if !addr.Valid || addr.String == "" {
		return ScaleDevice{}, false, nil
	}
	return ScaleDevice{Address: addr.String, Name: name.String}, true, nil
}

func (r *repositoryImpl) SaveScaleDevice(ctx context.Context, d ScaleDevice) error {
	if d.Address == "" {
		return errors.New("save scale device: empty address")
	}
	if _, err := r.db.ExecContext(ctx, upsertScaleDeviceSQL, d.Address, d.Name); err != nil {
		return fmt.Errorf("save scale device: %w", err)
	}
	return nil
}

func (r *repositoryImpl) ForgetScaleDevice(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, upsertScaleDeviceSQL, nil, nil); err != nil {
		return fmt.Errorf("forget scale device: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMeasurement(row rowScanner) (Measurement, error) {
	var m Measurement
	var ts string
	c := &m.Composition
	err := row.Scan(
		&m.ID, &m.SessionID, &ts, &m.SenderID, &m.Weight, &m.Impedance, &m.Trusted, &m.Trigger, &m.SampleCount,
		&c.BMI, &c.BodyFat, &c.Water, &c.Muscle, &c.BoneMass, &c.MetabolicAge, &c.BMR, &m.RawData, &m.Notes,
	)
	if err != nil {
		return Measurement{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return Measurement{}, fmt.Errorf("parse timestamp %q: %w", ts, err)
	}
	m.Timestamp = t
	return m, nil
}

func requireAffected(res sql.Result, what string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %d: rows affected: %w", what, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
	}
	return nil
}

func formatTS(t time.Time) string {
	return t.UTC().Format(tsLayout)
}
