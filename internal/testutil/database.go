package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/lib/pq"
)

// SetupTestDB creates a connection to the test database and ensures the
// service tables exist. Override the DSN with TEST_DATABASE_URL.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	connStr := os.Getenv("TEST_DATABASE_URL")
	if connStr == "" {
		connStr = "host=localhost port=5432 user=localadmin password=Stoplying! dbname=prescriptions_test sslmode=disable"
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Fatalf("Failed to ping test database: %v", err)
	}

	ensureSchema(t, db)

	return db
}

// SetupTestTransaction creates a test database connection and begins a transaction
// The transaction is automatically rolled back when the test ends
// This ensures test isolation without needing cleanup
func SetupTestTransaction(t *testing.T) (*sql.DB, *sql.Tx) {
	t.Helper()

	db := SetupTestDB(t)

	tx, err := db.BeginTx(context.Background(), nil)
	if err != nil {
		db.Close()
		t.Fatalf("Failed to begin transaction: %v", err)
	}

	// Ensure transaction is rolled back when test ends
	t.Cleanup(func() {
		tx.Rollback()
		db.Close()
	})

	return db, tx
}

func ensureSchema(t *testing.T, db *sql.DB) {
	t.Helper()

	statements := []string{
		`CREATE TABLE IF NOT EXISTS patients (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			patient_id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			phone TEXT,
			email TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS prescriptions (
			prescription_serial TEXT PRIMARY KEY,
			patient_id TEXT NOT NULL REFERENCES patients(patient_id),
			clean_text TEXT NOT NULL DEFAULT '',
			symptoms TEXT NOT NULL DEFAULT '',
			medicines TEXT NOT NULL DEFAULT '',
			tests TEXT NOT NULL DEFAULT '',
			age INT,
			gender TEXT,
			height_cm DOUBLE PRECISION,
			weight_kg DOUBLE PRECISION,
			bmi DOUBLE PRECISION,
			bp_systolic INT,
			bp_diastolic INT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS disease_predictions (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			prescription_serial TEXT NOT NULL REFERENCES prescriptions(prescription_serial) ON DELETE CASCADE,
			disease TEXT NOT NULL,
			prediction INT NOT NULL,
			confidence DOUBLE PRECISION,
			future_risk DOUBLE PRECISION,
			features_used JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("Failed to ensure test schema: %v", err)
		}
	}
}

// CleanupTestDB cleans up test data from the database
// Use this if you're not using transactions
func CleanupTestDB(t *testing.T, db *sql.DB) {
	t.Helper()

	_, err := db.Exec("TRUNCATE TABLE disease_predictions, prescriptions, patients CASCADE")
	if err != nil {
		t.Logf("Warning: Failed to clean up test tables: %v", err)
	}
}

// CreateTestPatient inserts a patient row and returns its public patient id
func CreateTestPatient(t *testing.T, db *sql.DB, patientID, name, phone string) string {
	t.Helper()

	query := `
		INSERT INTO patients (patient_id, name, phone, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING patient_id
	`

	err := db.QueryRow(query, patientID, name, phone).Scan(&patientID)
	if err != nil {
		t.Fatalf("Failed to create test patient: %v", err)
	}

	return patientID
}
