package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// CSRFGenerator generates and validates CSRF tokens using HMAC-SHA256.
// Tokens are derived from the visitor ID and the link code, so no shared
// state is required across replicas.
type CSRFGenerator struct {
	secret []byte
}

// NewCSRFGenerator creates a new stateless HMAC-based CSRF generator.
func NewCSRFGenerator(secret string) *CSRFGenerator {
	return &CSRFGenerator{secret: []byte(secret)}
}

// GenerateToken returns the CSRF token for a visitor submitting the form behind code.
func (g *CSRFGenerator) GenerateToken(visitorID, code string) (string, error) {
	if visitorID == "" {
		return "", fmt.Errorf("visitor ID is required")
	}
	mac := hmac.New(sha256.New, g.secret)
	mac.Write([]byte("csrf:"))
	mac.Write([]byte(code))
	mac.Write([]byte{0})
	mac.Write([]byte(visitorID))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// ValidateToken reports whether token is valid for the visitor and code.
func (g *CSRFGenerator) ValidateToken(visitorID, code, token string) bool {
	if visitorID == "" || token == "" {
		return false
	}
	expected, err := g.GenerateToken(visitorID, code)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(token))
}
