package auth

import (
	"fmt"
	"os"
)

// Config holds auth configuration
type Config struct {
	Secret   string
	Issuer   string
	Audience string
}

// LoadConfig reads config from env. JWT_SECRET_KEY is required; tokens are
// minted by the account service with the same shared secret.
func LoadConfig() (Config, error) {
	secret := os.Getenv("JWT_SECRET_KEY")
	if secret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET_KEY not set")
	}
	return Config{
		Secret:   secret,
		Issuer:   os.Getenv("AUTH_ISSUER"),   // optional
		Audience: os.Getenv("AUTH_AUDIENCE"), // optional
	}, nil
}
