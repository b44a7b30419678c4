package prescription

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/WailSalutem-Health-Care/prescription-service/internal/extract"
	"github.com/WailSalutem-Health-Care/prescription-service/internal/messaging"
)

// Resolver attaches each analyzed prescription to a stable patient
// identity. Resolution order: authenticated patient id, then the id
// printed on the document, then the phone/name contact heuristic. A
// fresh identity is minted only when all three miss.
type Resolver struct {
	repo      RepositoryInterface
	publisher messaging.PublisherInterface
}

func NewResolver(repo RepositoryInterface, publisher messaging.PublisherInterface) *Resolver {
	return &Resolver{repo: repo, publisher: publisher}
}

// Resolve returns the patient for a record and whether it was created on
// this call. callerPatientID comes from an authenticated patient token
// and, when set, pins resolution: a patient can only file under their
// own history.
func (r *Resolver) Resolve(ctx context.Context, callerPatientID string, rec *extract.Record) (*Patient, bool, error) {
	if callerPatientID != "" {
		patient, err := r.repo.FindPatientByID(ctx, callerPatientID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to resolve caller patient: %w", err)
		}
		r.refreshContact(ctx, patient.PatientID, rec)
		return patient, false, nil
	}

	if rec.PatientID != "" {
		patient, err := r.repo.FindPatientByID(ctx, rec.PatientID)
		if err == nil {
			r.refreshContact(ctx, patient.PatientID, rec)
			return patient, false, nil
		}
		if err != ErrPatientNotFound {
			return nil, false, fmt.Errorf("failed to resolve patient by document id: %w", err)
		}
		// The document carries an id we have never seen. Keep it so the
		// printed id and the stored one stay in agreement.
		return r.create(ctx, rec.PatientID, rec)
	}

	patient, err := r.repo.FindPatientByContact(ctx, rec.Phone, rec.Name)
	if err == nil {
		r.refreshContact(ctx, patient.PatientID, rec)
		return patient, false, nil
	}
	if err != ErrPatientNotFound {
		return nil, false, fmt.Errorf("failed to resolve patient by contact: %w", err)
	}

	return r.create(ctx, "PID-"+uuid.NewString(), rec)
}

func (r *Resolver) create(ctx context.Context, patientID string, rec *extract.Record) (*Patient, bool, error) {
	patient, err := r.repo.CreatePatient(ctx, &Patient{
		PatientID: patientID,
		Name:      rec.Name,
		Phone:     rec.Phone,
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to create patient: %w", err)
	}

	event := messaging.PatientRegisteredEvent{
		BaseEvent: messaging.NewBaseEvent(messaging.EventPatientRegistered),
		Data: messaging.PatientRegisteredData{
			PatientID:   patient.PatientID,
			Name:        patient.Name,
			PhoneNumber: patient.Phone,
			CreatedAt:   patient.CreatedAt,
		},
	}
	if err := r.publisher.Publish(ctx, messaging.EventPatientRegistered, event); err != nil {
		log.Printf("Warning: failed to publish patient.registered event: %v", err)
	}

	return patient, true, nil
}

// refreshContact is best effort. A stale name never blocks an intake.
func (r *Resolver) refreshContact(ctx context.Context, patientID string, rec *extract.Record) {
	if rec.Name == "" && rec.Phone == "" {
		return
	}
	if err := r.repo.UpdatePatientContact(ctx, patientID, rec.Name, rec.Phone); err != nil {
		log.Printf("Warning: failed to refresh contact for %s: %v", patientID, err)
	}
}
