package auth

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

// Principal holds the caller identity extracted from a validated token.
// It is passed explicitly through request context; there is no ambient
// session state anywhere in the service.
type Principal struct {
	UserID    string
	PatientID string
	Roles     []string
	Claims    jwt.MapClaims
}

var (
	ErrNoToken      = errors.New("no token provided")
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrMissingSub   = errors.New("missing sub claim")
)

// Verifier validates HS256 bearer tokens issued by the account service.
type Verifier struct {
	cfg Config
}

// NewVerifier constructs a verifier from config.
func NewVerifier(cfg Config) *Verifier {
	return &Verifier{cfg: cfg}
}

// ParseAndVerifyToken verifies a bearer token, validates signature and
// expiry and returns the Principal. Expired tokens are reported distinctly
// so handlers can answer 401 with a precise reason.
func (v *Verifier) ParseAndVerifyToken(tokenString string) (*Principal, error) {
	if tokenString == "" {
		return nil, ErrNoToken
	}
	tokenString = strings.TrimSpace(tokenString)

	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(v.cfg.Secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, ErrMissingSub
	}

	var roles []string
	if role, ok := claims["role"].(string); ok && role != "" {
		roles = append(roles, role)
	}
	if rr, ok := claims["roles"].([]interface{}); ok {
		for _, r := range rr {
			if s, ok := r.(string); ok {
				roles = append(roles, s)
			}
		}
	}

	patientID, _ := claims["patient_id"].(string)

	return &Principal{
		UserID:    sub,
		PatientID: patientID,
		Roles:     roles,
		Claims:    claims,
	}, nil
}
