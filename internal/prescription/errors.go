package prescription

import "errors"

var (
	// ErrDuplicatePrescription is returned when a prescription serial has
	// already been committed. Uploading the same physical prescription
	// twice is rejected, never merged.
	ErrDuplicatePrescription = errors.New("prescription with this serial already exists")

	// ErrPatientNotFound is returned when no patient matches the given
	// identifier.
	ErrPatientNotFound = errors.New("patient not found")

	// ErrRecordNotFound is returned when no prescription matches the given
	// serial.
	ErrRecordNotFound = errors.New("prescription record not found")

	// ErrForbidden is returned when a caller reads a record that belongs to
	// another patient.
	ErrForbidden = errors.New("access to this record is forbidden")
)
