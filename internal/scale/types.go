package scale

import "time"

// AdvertisementEvent is one raw advertisement delivered by the transport.
type AdvertisementEvent struct {
	SenderID       string
	Name           string
	SignalStrength int
	Payload        []byte
	Timestamp      time.Time
}

// DecodedSample is a decoded advertisement from the locked target.
type DecodedSample struct {
	Weight    float64   `json:"weight_kg"`
	Impedance float64   `json:"impedance_ohm"`
	Payload   []byte    `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

// CandidateDevice is a sender seen during discovery.
type CandidateDevice struct {
	SenderID       string `json:"address"`
	DisplayName    string `json:"name"`
	SignalStrength int    `json:"rssi"`
}

// AcquisitionResult is the single sample handed off at the end of a session.
type AcquisitionResult struct {
	SessionID   string    `json:"session_id"`
	SenderID    string    `json:"address"`
	Weight      float64   `json:"weight_kg"`
	Impedance   float64   `json:"impedance_ohm"`
	Payload     []byte    `json:"-"`
	Timestamp   time.Time `json:"timestamp"`
	Trusted     bool      `json:"trusted"`
	Trigger     string    `json:"trigger"`
	SampleCount int       `json:"sample_count"`
}
