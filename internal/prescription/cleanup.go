package prescription

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"
)

// RetentionPeriod defines how long committed prescription records are
// retained (10 years, the clinical records retention floor).
const RetentionPeriod = 10 * 365 * 24 * time.Hour

// CleanupService permanently deletes prescription records past the
// retention period. Patients are never deleted here; only their expired
// visit records are.
type CleanupService struct {
	db *sql.DB
}

// NewCleanupService creates a new cleanup service
func NewCleanupService(db *sql.DB) *CleanupService {
	return &CleanupService{db: db}
}

// GetExpiredRecordsCount returns how many records are eligible for
// permanent deletion.
func (s *CleanupService) GetExpiredRecordsCount(ctx context.Context) (int, error) {
	cutoffDate := time.Now().UTC().Add(-RetentionPeriod)

	var count int
	query := `
		SELECT COUNT(*)
		FROM prescriptions
		WHERE created_at < $1
	`

	err := s.db.QueryRowContext(ctx, query, cutoffDate).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count expired records: %w", err)
	}

	return count, nil
}

// CleanupExpiredRecords hard-deletes expired prescriptions together with
// their disease predictions in one transaction.
func (s *CleanupService) CleanupExpiredRecords(ctx context.Context) (int, error) {
	cutoffDate := time.Now().UTC().Add(-RetentionPeriod)
	log.Printf("Starting cleanup of prescriptions created before %s", cutoffDate.Format(time.RFC3339))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	deletePredictions := `
		DELETE FROM disease_predictions
		WHERE prescription_serial IN (
			SELECT prescription_serial FROM prescriptions WHERE created_at < $1
		)
	`
	if _, err := tx.ExecContext(ctx, deletePredictions, cutoffDate); err != nil {
		return 0, fmt.Errorf("failed to delete expired predictions: %w", err)
	}

	deletePrescriptions := `
		DELETE FROM prescriptions
		WHERE created_at < $1
	`
	result, err := tx.ExecContext(ctx, deletePrescriptions, cutoffDate)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired prescriptions: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit cleanup: %w", err)
	}

	log.Printf("Successfully cleaned up %d expired prescription records", rows)
	return int(rows), nil
}
