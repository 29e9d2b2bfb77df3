package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aquilesorei/talon/internal/goals"
)

//go:embed sql/insert-goal.sql
var insertGoalSQL string

//go:embed sql/list-goals.sql
var listGoalsSQL string

//go:embed sql/get-goal.sql
var getGoalSQL string

//go:embed sql/update-goal.sql
var updateGoalSQL string

//go:embed sql/update-goal-status.sql
var updateGoalStatusSQL string

//go:embed sql/delete-goal.sql
var deleteGoalSQL string

// CreateGoal stores a new goal. Status defaults to active and CreatedAt to now.
func (r *repositoryImpl) CreateGoal(ctx context.Context, g goals.Goal) (goals.Goal, error) {
	if g.Status == "" {
		g.Status = goals.StatusActive
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}
	if err := goals.Validate(g); err != nil {
		return goals.Goal{}, err
	}
	res, err := r.db.ExecContext(ctx, insertGoalSQL,
		g.Type, g.Target, g.Start, nullTS(g.Deadline), formatTS(g.CreatedAt), g.Status, nullTS(g.AchievedAt),
	)
	if err != nil {
		return goals.Goal{}, fmt.Errorf("insert goal: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return goals.Goal{}, fmt.Errorf("insert goal id: %w", err)
	}
	return r.GetGoal(ctx, id)
}

// ListGoals returns the newest goals first. An empty status lists every goal.
func (r *repositoryImpl) ListGoals(ctx context.Context, status goals.Status) ([]goals.Goal, error) {
	rows, err := r.db.QueryContext(ctx, listGoalsSQL, status, status)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close goals rows", "error", err)
		}
	}()

	out := []goals.Goal{}
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) GetGoal(ctx context.Context, id int64) (goals.Goal, error) {
	g, err := scanGoal(r.db.QueryRowContext(ctx, getGoalSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return goals.Goal{}, fmt.Errorf("goal %d: %w", id, ErrNotFound)
	}
	return g, err
}

// UpdateGoal rewrites the target, start and deadline of an existing goal.
// Type and status are left untouched.
func (r *repositoryImpl) UpdateGoal(ctx context.Context, g goals.Goal) (goals.Goal, error) {
	cur, err := r.GetGoal(ctx, g.ID)
	if err != nil {
		return goals.Goal{}, err
	}
	cur.Target, cur.Start, cur.Deadline = g.Target, g.Start, g.Deadline
	if err := goals.Validate(cur); err != nil {
		return goals.Goal{}, err
	}
	res, err := r.db.ExecContext(ctx, updateGoalSQL, cur.Target, cur.Start, nullTS(cur.Deadline), cur.ID)
	if err != nil {
		return goals.Goal{}, fmt.Errorf("update goal: %w", err)
	}
	if err := requireAffected(res, "goal", cur.ID); err != nil {
		return goals.Goal{}, err
	}
	return r.GetGoal(ctx, cur.ID)
}

// SetGoalStatus moves a goal to status. achieved_at is set to at for achieved
// goals and cleared otherwise.
func (r *repositoryImpl) SetGoalStatus(ctx context.Context, id int64, status goals.Status, at time.Time) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", goals.ErrInvalidGoal, status)
	}
	var achievedAt *time.Time
	if status == goals.StatusAchieved {
		achievedAt = &at
	}
	res, err := r.db.ExecContext(ctx, updateGoalStatusSQL, status, nullTS(achievedAt), id)
	if err != nil {
		return fmt.Errorf("set goal status: %w", err)
	}
	return requireAffected(res, "goal", id)
}

func (r *repositoryImpl) DeleteGoal(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, deleteGoalSQL, id)
	if err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	return requireAffected(res, "goal", id)
}

func scanGoal(row rowScanner) (goals.Goal, error) {
	var g goals.Goal
	var created string
	var deadline, achieved sql.NullString
	err := row.Scan(&g.ID, &g.Type, &g.Target, &g.Start, &deadline, &created, &g.Status, &achieved)
	if err != nil {
		return goals.Goal{}, err
	}
	if g.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return goals.Goal{}, fmt.Errorf("parse created_at %q: %w", created, err)
	}
	if g.Deadline, err = parseNullTS(deadline); err != nil {
		return goals.Goal{}, fmt.Errorf("parse deadline: %w", err)
	}
	if g.AchievedAt, err = parseNullTS(achieved); err != nil {
		return goals.Goal{}, fmt.Errorf("parse achieved_at: %w", err)
	}
	return g, nil
}

func nullTS(t *time.Time) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTS(*t), Valid: true}
}

func parseNullTS(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
