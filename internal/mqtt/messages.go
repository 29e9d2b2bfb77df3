package mqtt

import (
	"time"

	"github.com/Aquilesorei/talon/internal/acquisition"
	"github.com/Aquilesorei/talon/internal/composition"
	"github.com/Aquilesorei/talon/internal/scale"
)

const (
	TopicSession      = "session"
	TopicMeasurements = "measurements"
	TopicStatus       = "status"
)

// Retained payloads on the status topic. Offline is also the last will.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Topic builds "<prefix>/<station>/<kind>".
func Topic(prefix, stationID, kind string) string {
	return prefix + "/" + stationID + "/" + kind
}

type SessionMessage struct {
	StationID  string                  `json:"station_id"`
	SessionID  string                  `json:"session_id,omitempty"`
	Event      string                  `json:"event"`
	State      string                  `json:"state"`
	Timestamp  time.Time               `json:"timestamp"`
	Candidates []scale.CandidateDevice `json:"candidates,omitempty"`
	Target     *scale.CandidateDevice  `json:"target,omitempty"`
	Weight     *float64                `json:"weight_kg,omitempty"`
	Impedance  *float64                `json:"impedance_ohm,omitempty"`
	Remaining  *int                    `json:"remaining_s,omitempty"`
	Trusted    *bool                   `json:"trusted,omitempty"`
	Error      string                  `json:"error,omitempty"`
}

// NewSessionMessage flattens a session event into its wire form.
func NewSessionMessage(ev acquisition.Event) SessionMessage {
	msg := SessionMessage{
		SessionID: ev.SessionID,
		Event:     ev.Kind.String(),
		State:     ev.State.String(),
		Timestamp: ev.At,
	}
	switch ev.Kind {
	case acquisition.EventCandidates:
		msg.Candidates = ev.Candidates
	case acquisition.EventLocked:
		target := ev.Target
		remaining := ev.Remaining
		msg.Target = &target
		msg.Remaining = &remaining
	case acquisition.EventLiveReading:
		weight, impedance := ev.Sample.Weight, ev.Sample.Impedance
		msg.Weight = &weight
		msg.Impedance = &impedance
	case acquisition.EventCountdown:
		remaining := ev.Remaining
		msg.Remaining = &remaining
	case acquisition.EventResult:
		if ev.Result != nil {
			weight, impedance, trusted := ev.Result.Weight, ev.Result.Impedance, ev.Result.Trusted
			msg.Weight = &weight
			msg.Impedance = &impedance
			msg.Trusted = &trusted
		}
	case acquisition.EventAborted:
		if ev.Err != nil {
			msg.Error = ev.Err.Error()
		}
	}
	return msg
}

type MeasurementMessage struct {
	StationID   string                  `json:"station_id"`
	ID          int64                   `json:"id"`
	SessionID   string                  `json:"session_id"`
	Timestamp   time.Time               `json:"timestamp"`
	Weight      float64                 `json:"weight_kg"`
	Impedance   float64                 `json:"impedance_ohm"`
	Trusted     bool                    `json:"trusted"`
	Composition composition.Composition `json:"composition"`
	BMICategory string                  `json:"bmi_category"`
}
