package security

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"vocabcue/internal/models"
)

const (
	// ParticipantCookie carries the signed participant token
	ParticipantCookie = "vc_participant"
	// VisitorCookie identifies a browser before consent, for CSRF binding
	VisitorCookie = "vc_visitor"

	tokenIssuer = "vocabcue"
)

// ErrInvalidToken is returned for tokens that fail signature, expiry or claim checks
var ErrInvalidToken = errors.New("invalid participant token")

// GenerateSessionID creates a new UUID for participant and visitor identification
func GenerateSessionID() string {
	return uuid.New().String()
}

type participantClaims struct {
	jwt.RegisteredClaims
	Name        string `json:"name"`
	Email       string `json:"email"`
	Group       string `json:"group"`
	Code        string `json:"code"`
	ConsentedAt int64  `json:"consented_at"`
}

// TokenIssuer signs and verifies participant tokens with HS256
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer creates an issuer whose tokens expire after ttl
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for p
func (i *TokenIssuer) Issue(p models.Participant) (string, error) {
	if p.ID == "" {
		return "", fmt.Errorf("participant ID is required")
	}
	now := i.now()
	claims := participantClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Name:        p.Name,
		Email:       p.Email,
		Group:       p.Group,
		Code:        p.Code,
		ConsentedAt: p.ConsentedAt.Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Parse verifies raw and returns the participant it names
func (i *TokenIssuer) Parse(raw string) (models.Participant, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(i.now),
	)
	claims := &participantClaims{}
	token, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	})
	if err != nil || !token.Valid || claims.Subject == "" {
		return models.Participant{}, ErrInvalidToken
	}
	return models.Participant{
		ID:          claims.Subject,
		Name:        claims.Name,
		Email:       claims.Email,
		Group:       claims.Group,
		Code:        claims.Code,
		ConsentedAt: time.Unix(claims.ConsentedAt, 0).UTC(),
	}, nil
}

// IsSecureRequest determines if the request is over HTTPS
// Checks TLS connection, X-Forwarded-Proto header (for reverse proxies), and URL scheme
func IsSecureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "https" {
		return true
	}
	return r.URL.Scheme == "https"
}

// CreateSessionCookie creates a browser-session cookie: no Expires or MaxAge,
// so it is cleared when the browser session ends
func CreateSessionCookie(r *http.Request, name, value string, forceSecure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   forceSecure || IsSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
	}
}

// CreateDeleteCookie creates a cookie for deletion with proper security flags
func CreateDeleteCookie(r *http.Request, name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   IsSecureRequest(r),
	}
}
