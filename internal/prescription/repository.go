package prescription

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/WailSalutem-Health-Care/prescription-service/internal/extract"
	"github.com/WailSalutem-Health-Care/prescription-service/internal/screening"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) FindPatientByID(ctx context.Context, patientID string) (*Patient, error) {
	query := `
		SELECT id, patient_id, name, phone, email, created_at, updated_at
		FROM patients
		WHERE patient_id = $1
	`

	patient, err := scanPatient(r.db.QueryRowContext(ctx, query, patientID))
	if err == sql.ErrNoRows {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query patient: %w", err)
	}

	return patient, nil
}

// FindPatientByContact matches on phone first and name second. Phone is
// the stronger signal; OCR mangles names far more often than digits.
func (r *Repository) FindPatientByContact(ctx context.Context, phone, name string) (*Patient, error) {
	if phone != "" {
		query := `
			SELECT id, patient_id, name, phone, email, created_at, updated_at
			FROM patients
			WHERE phone = $1
			ORDER BY created_at DESC
			LIMIT 1
		`
		patient, err := scanPatient(r.db.QueryRowContext(ctx, query, phone))
		if err == nil {
			return patient, nil
		}
		if err != sql.ErrNoRows {
			return nil, fmt.Errorf("failed to query patient by phone: %w", err)
		}
	}

	if name != "" {
		query := `
			SELECT id, patient_id, name, phone, email, created_at, updated_at
			FROM patients
			WHERE LOWER(name) = LOWER($1)
			ORDER BY created_at DESC
			LIMIT 1
		`
		patient, err := scanPatient(r.db.QueryRowContext(ctx, query, name))
		if err == nil {
			return patient, nil
		}
		if err != sql.ErrNoRows {
			return nil, fmt.Errorf("failed to query patient by name: %w", err)
		}
	}

	return nil, ErrPatientNotFound
}

func (r *Repository) CreatePatient(ctx context.Context, p *Patient) (*Patient, error) {
	id := uuid.New()
	createdAt := time.Now().UTC()

	query := `
		INSERT INTO patients (id, patient_id, name, phone, email, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, patient_id, name, phone, email, created_at, updated_at
	`

	patient, err := scanPatient(r.db.QueryRowContext(ctx, query,
		id, p.PatientID, p.Name, p.Phone, p.Email, createdAt,
	))
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" { // unique_violation
				return nil, fmt.Errorf("patient with this patient_id already exists")
			}
		}
		return nil, fmt.Errorf("failed to insert patient: %w", err)
	}

	return patient, nil
}

// UpdatePatientContact refreshes name/phone from the latest prescription.
// Empty values are left untouched so a partial extraction never blanks a
// known identity.
func (r *Repository) UpdatePatientContact(ctx context.Context, patientID, name, phone string) error {
	var updates []string
	var args []interface{}
	argIndex := 1

	if name != "" {
		updates = append(updates, fmt.Sprintf("name = $%d", argIndex))
		args = append(args, name)
		argIndex++
	}
	if phone != "" {
		updates = append(updates, fmt.Sprintf("phone = $%d", argIndex))
		args = append(args, phone)
		argIndex++
	}

	if len(updates) == 0 {
		return nil
	}

	updates = append(updates, fmt.Sprintf("updated_at = $%d", argIndex))
	args = append(args, time.Now().UTC())
	argIndex++

	args = append(args, patientID)

	query := fmt.Sprintf(`
		UPDATE patients
		SET %s
		WHERE patient_id = $%d
	`, strings.Join(updates, ", "), argIndex)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update patient contact: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrPatientNotFound
	}

	return nil
}

// CommitRecord writes the prescription row and all of its disease
// predictions in one transaction. The UNIQUE constraint on
// prescription_serial is the dedup mechanism: a concurrent double
// upload loses the race here and surfaces as ErrDuplicatePrescription.
func (r *Repository) CommitRecord(ctx context.Context, rec *Record) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	createdAt := time.Now().UTC()
	v := rec.Vitals

	var systolic, diastolic *int
	if v.BloodPressure != nil {
		systolic = &v.BloodPressure.Systolic
		diastolic = &v.BloodPressure.Diastolic
	}

	insertPrescription := `
		INSERT INTO prescriptions
		(prescription_serial, patient_id, clean_text, symptoms, medicines, tests,
		 age, gender, height_cm, weight_kg, bmi, bp_systolic, bp_diastolic, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err = tx.ExecContext(ctx, insertPrescription,
		rec.PrescriptionSerial,
		rec.PatientID,
		rec.CleanText,
		rec.Symptoms,
		rec.Medicines,
		rec.Tests,
		v.Age,
		string(v.Gender),
		v.HeightCM,
		v.WeightKG,
		v.BMI,
		systolic,
		diastolic,
		createdAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" { // unique_violation
				return ErrDuplicatePrescription
			}
		}
		return fmt.Errorf("failed to insert prescription: %w", err)
	}

	insertPrediction := `
		INSERT INTO disease_predictions
		(id, prescription_serial, disease, prediction, confidence, future_risk, features_used, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	for _, p := range rec.Predictions {
		features, err := json.Marshal(p.FeaturesUsed)
		if err != nil {
			return fmt.Errorf("failed to marshal features for %s: %w", p.Disease, err)
		}

		_, err = tx.ExecContext(ctx, insertPrediction,
			uuid.New(),
			rec.PrescriptionSerial,
			string(p.Disease),
			p.Prediction,
			p.Confidence,
			p.FutureRisk,
			features,
			createdAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert prediction for %s: %w", p.Disease, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit prescription: %w", err)
	}

	rec.CreatedAt = createdAt
	return nil
}

func (r *Repository) GetRecord(ctx context.Context, serial string) (*Record, error) {
	query := `
		SELECT prescription_serial, patient_id, clean_text, symptoms, medicines, tests,
		       age, gender, height_cm, weight_kg, bmi, bp_systolic, bp_diastolic, created_at
		FROM prescriptions
		WHERE prescription_serial = $1
	`

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, serial))
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query prescription: %w", err)
	}

	predictions, err := r.loadPredictions(ctx, []string{serial})
	if err != nil {
		return nil, err
	}
	rec.Predictions = predictions[serial]

	return rec, nil
}

func (r *Repository) ListRecords(ctx context.Context, filter HistoryFilter, limit, offset int) ([]Record, int, error) {
	var conditions []string
	var args []interface{}
	argIndex := 1

	if filter.PatientID != "" {
		conditions = append(conditions, fmt.Sprintf("p.patient_id = $%d", argIndex))
		args = append(args, filter.PatientID)
		argIndex++
	}
	if filter.Phone != "" {
		conditions = append(conditions, fmt.Sprintf("pt.phone = $%d", argIndex))
		args = append(args, filter.Phone)
		argIndex++
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("p.created_at >= $%d", argIndex))
		args = append(args, *filter.From)
		argIndex++
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("p.created_at <= $%d", argIndex))
		args = append(args, *filter.To)
		argIndex++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM prescriptions p
		LEFT JOIN patients pt ON pt.patient_id = p.patient_id
		%s
	`, where)

	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count prescriptions: %w", err)
	}

	pageQuery := fmt.Sprintf(`
		SELECT p.prescription_serial, p.patient_id, p.clean_text, p.symptoms, p.medicines, p.tests,
		       p.age, p.gender, p.height_cm, p.weight_kg, p.bmi, p.bp_systolic, p.bp_diastolic, p.created_at
		FROM prescriptions p
		LEFT JOIN patients pt ON pt.patient_id = p.patient_id
		%s
		ORDER BY p.created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, argIndex, argIndex+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, pageQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query prescriptions: %w", err)
	}
	defer rows.Close()

	var records []Record
	var serials []string
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan prescription: %w", err)
		}
		records = append(records, *rec)
		serials = append(serials, rec.PrescriptionSerial)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating prescriptions: %w", err)
	}

	if len(serials) > 0 {
		predictions, err := r.loadPredictions(ctx, serials)
		if err != nil {
			return nil, 0, err
		}
		for i := range records {
			records[i].Predictions = predictions[records[i].PrescriptionSerial]
		}
	}

	return records, total, nil
}

func (r *Repository) GetPatientsByIDs(ctx context.Context, patientIDs []string) (map[string]*Patient, error) {
	if len(patientIDs) == 0 {
		return map[string]*Patient{}, nil
	}

	query := `
		SELECT id, patient_id, name, phone, email, created_at, updated_at
		FROM patients
		WHERE patient_id = ANY($1)
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(patientIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query patients: %w", err)
	}
	defer rows.Close()

	patients := make(map[string]*Patient)
	for rows.Next() {
		patient, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan patient: %w", err)
		}
		patients[patient.PatientID] = patient
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating patients: %w", err)
	}

	return patients, nil
}

// loadPredictions fetches the disease rows for a batch of serials in a
// single query and groups them, preserving the canonical disease order.
func (r *Repository) loadPredictions(ctx context.Context, serials []string) (map[string][]screening.Prediction, error) {
	query := `
		SELECT prescription_serial, disease, prediction, confidence, future_risk, features_used
		FROM disease_predictions
		WHERE prescription_serial = ANY($1)
		ORDER BY prescription_serial, created_at
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(serials))
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	grouped := make(map[string]map[screening.Disease]screening.Prediction)
	for rows.Next() {
		var serial, disease string
		var prediction int
		var confidence, futureRisk sql.NullFloat64
		var featuresRaw []byte

		if err := rows.Scan(&serial, &disease, &prediction, &confidence, &futureRisk, &featuresRaw); err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}

		p := screening.Prediction{
			Disease:      screening.Disease(disease),
			Prediction:   screening.Category(prediction),
			FeaturesUsed: map[string]float64{},
		}
		if confidence.Valid {
			c := confidence.Float64
			p.Confidence = &c
		}
		if futureRisk.Valid {
			fr := futureRisk.Float64
			p.FutureRisk = &fr
		}
		if len(featuresRaw) > 0 {
			if err := json.Unmarshal(featuresRaw, &p.FeaturesUsed); err != nil {
				return nil, fmt.Errorf("failed to unmarshal features for %s: %w", serial, err)
			}
		}

		if grouped[serial] == nil {
			grouped[serial] = make(map[screening.Disease]screening.Prediction)
		}
		grouped[serial][p.Disease] = p
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating predictions: %w", err)
	}

	ordered := make(map[string][]screening.Prediction, len(grouped))
	for serial, byDisease := range grouped {
		for _, d := range screening.AllDiseases() {
			if p, ok := byDisease[d]; ok {
				ordered[serial] = append(ordered[serial], p)
			}
		}
	}

	return ordered, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPatient(row rowScanner) (*Patient, error) {
	var patient Patient
	var email sql.NullString
	var updatedAt sql.NullTime

	err := row.Scan(
		&patient.ID,
		&patient.PatientID,
		&patient.Name,
		&patient.Phone,
		&email,
		&patient.CreatedAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if email.Valid {
		patient.Email = &email.String
	}
	if updatedAt.Valid {
		patient.UpdatedAt = &updatedAt.Time
	}

	return &patient, nil
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var age sql.NullInt64
	var gender sql.NullString
	var heightCM, weightKG, bmi sql.NullFloat64
	var systolic, diastolic sql.NullInt64

	err := row.Scan(
		&rec.PrescriptionSerial,
		&rec.PatientID,
		&rec.CleanText,
		&rec.Symptoms,
		&rec.Medicines,
		&rec.Tests,
		&age,
		&gender,
		&heightCM,
		&weightKG,
		&bmi,
		&systolic,
		&diastolic,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if age.Valid {
		a := int(age.Int64)
		rec.Vitals.Age = &a
	}
	if gender.Valid {
		rec.Vitals.Gender = extract.Gender(gender.String)
	} else {
		rec.Vitals.Gender = extract.GenderUnknown
	}
	if heightCM.Valid {
		rec.Vitals.HeightCM = &heightCM.Float64
	}
	if weightKG.Valid {
		rec.Vitals.WeightKG = &weightKG.Float64
	}
	if bmi.Valid {
		rec.Vitals.BMI = &bmi.Float64
	}
	if systolic.Valid && diastolic.Valid {
		rec.Vitals.BloodPressure = &extract.BloodPressure{
			Systolic:  int(systolic.Int64),
			Diastolic: int(diastolic.Int64),
		}
	}

	return &rec, nil
}
