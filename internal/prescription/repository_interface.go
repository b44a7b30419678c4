package prescription

import "context"

// RepositoryInterface defines the storage operations for patients and
// committed prescription records.
type RepositoryInterface interface {
	FindPatientByID(ctx context.Context, patientID string) (*Patient, error)
	FindPatientByContact(ctx context.Context, phone, name string) (*Patient, error)
	CreatePatient(ctx context.Context, p *Patient) (*Patient, error)
	UpdatePatientContact(ctx context.Context, patientID, name, phone string) error

	CommitRecord(ctx context.Context, rec *Record) error
	GetRecord(ctx context.Context, serial string) (*Record, error)
	ListRecords(ctx context.Context, filter HistoryFilter, limit, offset int) ([]Record, int, error)
	GetPatientsByIDs(ctx context.Context, patientIDs []string) (map[string]*Patient, error)
}
