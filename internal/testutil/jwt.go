package testutil

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// GenerateTestJWT creates a valid HS256 token with the given identity and
// roles, signed with TestSigningSecret.
func GenerateTestJWT(t *testing.T, userID, patientID string, roles []string) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub":   userID,
		"iss":   "https://test-accounts.wailsalutem.local",
		"exp":   time.Now().Add(1 * time.Hour).Unix(),
		"iat":   time.Now().Unix(),
		"roles": interfaceSlice(roles),
	}
	if patientID != "" {
		claims["patient_id"] = patientID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(TestSigningSecret))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}

	return tokenString
}

// GenerateExpiredJWT creates a token whose expiry is in the past.
func GenerateExpiredJWT(t *testing.T, userID string) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(-1 * time.Hour).Unix(),
		"iat": time.Now().Add(-2 * time.Hour).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(TestSigningSecret))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}

	return tokenString
}

// GenerateReceptionistToken creates a RECEPTIONIST token for testing
func GenerateReceptionistToken(t *testing.T) string {
	t.Helper()
	return GenerateTestJWT(t, "receptionist-123", "", []string{"RECEPTIONIST"})
}

// GenerateDoctorToken creates a DOCTOR token for testing
func GenerateDoctorToken(t *testing.T) string {
	t.Helper()
	return GenerateTestJWT(t, "doctor-123", "", []string{"DOCTOR"})
}

// GeneratePatientToken creates a PATIENT token bound to a patient id
func GeneratePatientToken(t *testing.T, patientID string) string {
	t.Helper()
	return GenerateTestJWT(t, "patient-123", patientID, []string{"PATIENT"})
}

// interfaceSlice converts []string to []interface{} for JWT claims
func interfaceSlice(strings []string) []interface{} {
	result := make([]interface{}, len(strings))
	for i, s := range strings {
		result[i] = s
	}
	return result
}
