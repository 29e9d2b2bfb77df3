package store

import (
	"errors"
	"time"

	"github.com/Aquilesorei/talon/internal/composition"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidProfile = errors.New("invalid profile")
)

type Measurement struct {
	ID          int64                   `json:"id"`
	SessionID   string                  `json:"session_id"`
	Timestamp   time.Time               `json:"timestamp"`
	SenderID    string                  `json:"address"`
	Weight      float64                 `json:"weight_kg"`
	Impedance   float64                 `json:"impedance_ohm"`
	Trusted     bool                    `json:"trusted"`
	Trigger     string                  `json:"trigger"`
	SampleCount int                     `json:"sample_count"`
	Composition composition.Composition `json:"composition"`
	RawData     string                  `json:"raw_data"`
	Notes       string                  `json:"notes,omitempty"`
}

// ScaleDevice is the scale remembered for automatic reconnection.
type ScaleDevice struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// ValidateProfile rejects profiles the composition model cannot use.
func ValidateProfile(p composition.Profile) error {
	switch {
	case p.HeightCm < 50 || p.HeightCm > 272:
		return errors.Join(ErrInvalidProfile, errors.New("height_cm must be between 50 and 272"))
	case p.Age < 1 || p.Age > 120:
		return errors.Join(ErrInvalidProfile, errors.New("age must be between 1 and 120"))
	}
	return nil
}
