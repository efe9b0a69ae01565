package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"vocabcue/internal/models"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

const (
	maxNameLength     = 100
	maxResponseLength = 500
	minRating         = 1
	maxRating         = 5
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateEmail checks if an email address is valid
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ValidationError{Field: "email", Message: "email is required"}
	}
	if !emailRegex.MatchString(email) {
		return ValidationError{Field: "email", Message: "invalid email format"}
	}
	return nil
}

// ValidatePassword checks the admin password handed to the hash command
func ValidatePassword(password string) error {
	if password == "" {
		return ValidationError{Field: "password", Message: "password is required"}
	}
	if len(password) < 8 {
		return ValidationError{Field: "password", Message: "password must be at least 8 characters"}
	}
	return nil
}

// ValidateName checks if a name is valid
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ValidationError{Field: "name", Message: "name is required"}
	}
	if utf8.RuneCountInString(name) < 2 {
		return ValidationError{Field: "name", Message: "name must be at least 2 characters"}
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return ValidationError{Field: "name", Message: "name is too long"}
	}
	return nil
}

// ValidateConsent checks an intake record received by the collector
func ValidateConsent(c models.Consent) error {
	if strings.TrimSpace(c.UserID) == "" {
		return ValidationError{Field: "user_id", Message: "user_id is required"}
	}
	if err := ValidateName(c.Name); err != nil {
		return err
	}
	if err := ValidateEmail(c.Email); err != nil {
		return err
	}
	if strings.TrimSpace(c.Group) == "" {
		return ValidationError{Field: "group", Message: "group is required"}
	}
	return nil
}

// ValidateResponse checks a per-word response received by the collector
func ValidateResponse(ev models.ResponseEvent) error {
	if strings.TrimSpace(ev.UserID) == "" {
		return ValidationError{Field: "user_id", Message: "user_id is required"}
	}
	if strings.TrimSpace(ev.Group) == "" {
		return ValidationError{Field: "group", Message: "group is required"}
	}
	if ev.PageType == models.PageTypeFinalSummary {
		return nil
	}
	if !models.Phase(ev.PageType).Valid() {
		return ValidationError{Field: "page_type", Message: "unknown page_type"}
	}
	if strings.TrimSpace(ev.Word) == "" {
		return ValidationError{Field: "word", Message: "word is required"}
	}
	if ev.EntryTime.IsZero() || ev.ExitTime.IsZero() {
		return ValidationError{Field: "entry_time", Message: "timestamps are required"}
	}
	if ev.ExitTime.Before(ev.EntryTime) {
		return ValidationError{Field: "exit_time", Message: "exit_time precedes entry_time"}
	}
	if ev.Duration < 0 {
		return ValidationError{Field: "duration", Message: "duration must not be negative"}
	}
	if ev.Response != nil && utf8.RuneCountInString(*ev.Response) > maxResponseLength {
		return ValidationError{Field: "response", Message: "response is too long"}
	}
	for key, v := range ev.Ratings {
		if v < minRating || v > maxRating {
			return ValidationError{Field: "ratings", Message: fmt.Sprintf("%s must be between %d and %d", key, minRating, maxRating)}
		}
	}
	return nil
}
