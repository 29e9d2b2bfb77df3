// Package goals tracks body targets and decides when a measurement reaches them.
package goals

import (
	"errors"
	"fmt"
	"time"

	"github.com/Aquilesorei/talon/internal/composition"
)

var ErrInvalidGoal = errors.New("invalid goal")

type Type string

const (
	TypeWeight     Type = "weight"
	TypeBodyFat    Type = "body_fat"
	TypeMuscleMass Type = "muscle_mass"
)

func (t Type) Valid() bool {
	switch t {
	case TypeWeight, TypeBodyFat, TypeMuscleMass:
		return true
	}
	return false
}

type Status string

const (
	StatusActive    Status = "active"
	StatusAchieved  Status = "achieved"
	StatusAbandoned Status = "abandoned"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusAchieved, StatusAbandoned:
		return true
	}
	return false
}

type Goal struct {
	ID         int64      `json:"id"`
	Type       Type       `json:"type"`
	Target     float64    `json:"target"`
	Start      float64    `json:"start"`
	Deadline   *time.Time `json:"deadline,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	Status     Status     `json:"status"`
	AchievedAt *time.Time `json:"achieved_at,omitempty"`
}

// Validate checks a goal before it is stored.
func Validate(g Goal) error {
	switch {
	case !g.Type.Valid():
		return fmt.Errorf("%w: unknown type %q", ErrInvalidGoal, g.Type)
	case g.Target <= 0:
		return fmt.Errorf("%w: target must be positive", ErrInvalidGoal)
	case g.Start <= 0:
		return fmt.Errorf("%w: start must be positive", ErrInvalidGoal)
	case g.Status != "" && !g.Status.Valid():
		return fmt.Errorf("%w: unknown status %q", ErrInvalidGoal, g.Status)
	}
	return nil
}

// Progress is the share of the distance from Start to Target already covered,
// in percent and clamped to [0, 100]. A goal whose start equals its target is
// complete.
func (g Goal) Progress(current float64) float64 {
	total := g.Target - g.Start
	if total == 0 {
		return 100
	}
	p := (current - g.Start) / total * 100
	return min(max(p, 0), 100)
}

// Achieved reports whether current meets the target. Weight goals go in the
// direction set by Start; body fat must drop to the target and muscle must
// reach it.
func (g Goal) Achieved(current float64) bool {
	switch g.Type {
	case TypeWeight:
		if g.Target < g.Start {
			return current <= g.Target
		}
		return current >= g.Target
	case TypeBodyFat:
		return current <= g.Target
	case TypeMuscleMass:
		return current >= g.Target
	}
	return false
}

// Current extracts the value a goal of type t is measured against.
func Current(t Type, weightKg float64, c composition.Composition) (float64, bool) {
	switch t {
	case TypeWeight:
		return weightKg, weightKg > 0
	case TypeBodyFat:
		return c.BodyFat, c.BodyFat > 0
	case TypeMuscleMass:
		return c.Muscle, c.Muscle > 0
	}
	return 0, false
}
