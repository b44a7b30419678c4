package testutil

import (
	"testing"

	"github.com/WailSalutem-Health-Care/prescription-service/internal/auth"
)

// TestSigningSecret signs every token generated by this package.
const TestSigningSecret = "test-signing-secret"

// CreateTestVerifier creates a verifier configured for testing. Tokens
// produced by GenerateTestJWT validate against it.
func CreateTestVerifier(t *testing.T) *auth.Verifier {
	t.Helper()

	cfg := auth.Config{
		Secret: TestSigningSecret,
		Issuer: "https://test-accounts.wailsalutem.local",
	}
	return auth.NewVerifier(cfg)
}
