package messaging

import (
	"time"

	"github.com/google/uuid"
)

// Event routing keys as constants
const (
	// Prescription events
	EventPrescriptionAnalyzed = "prescription.analyzed"
	EventPrescriptionHighRisk = "prescription.high_risk"

	// Patient events
	EventPatientRegistered = "patient.registered"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventType   string    `json:"event_type"`
	EventID     string    `json:"event_id"`
	Timestamp   time.Time `json:"timestamp"`
	ServiceName string    `json:"service_name"`
}

// PrescriptionAnalyzedEvent is published after a prescription record and
// its predictions commit as one unit.
type PrescriptionAnalyzedEvent struct {
	BaseEvent
	Data PrescriptionAnalyzedData `json:"data"`
}

type PrescriptionAnalyzedData struct {
	PrescriptionSerial string    `json:"prescription_serial"`
	PatientID          string    `json:"patient_id"`
	DiseasesDetected   int       `json:"diseases_detected"`
	MaxFutureRisk      float64   `json:"max_future_risk"`
	CreatedAt          time.Time `json:"created_at"`
}

// PrescriptionHighRiskEvent flags a committed prescription whose maximum
// future risk crosses the review threshold.
type PrescriptionHighRiskEvent struct {
	BaseEvent
	Data PrescriptionHighRiskData `json:"data"`
}

type PrescriptionHighRiskData struct {
	PrescriptionSerial string  `json:"prescription_serial"`
	PatientID          string  `json:"patient_id"`
	Disease            string  `json:"disease"`
	FutureRisk         float64 `json:"future_risk"`
}

// PatientRegisteredEvent is published when intake creates a new patient.
type PatientRegisteredEvent struct {
	BaseEvent
	Data PatientRegisteredData `json:"data"`
}

type PatientRegisteredData struct {
	PatientID   string    `json:"patient_id"`
	Name        string    `json:"name"`
	PhoneNumber string    `json:"phone_number,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewBaseEvent creates a base event with common fields
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventType:   eventType,
		EventID:     uuid.NewString(),
		Timestamp:   time.Now().UTC(), // Explicitly set to UTC
		ServiceName: "prescription-service",
	}
}
