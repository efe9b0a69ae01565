package validation

import (
	"testing"
	"time"

	"vocabcue/internal/models"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		wantErr bool
	}{
		{
			name:    "valid email",
			email:   "test@example.com",
			wantErr: false,
		},
		{
			name:    "valid email with subdomain",
			email:   "user@mail.example.com",
			wantErr: false,
		},
		{
			name:    "valid email with plus",
			email:   "user+tag@example.com",
			wantErr: false,
		},
		{
			name:    "missing @",
			email:   "testexample.com",
			wantErr: true,
		},
		{
			name:    "missing domain",
			email:   "test@",
			wantErr: true,
		},
		{
			name:    "missing local part",
			email:   "@example.com",
			wantErr: true,
		},
		{
			name:    "empty string",
			email:   "",
			wantErr: true,
		},
		{
			name:    "spaces in email",
			email:   "test @example.com",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEmail(%q) error = %v, wantErr %v", tt.email, err, tt.wantErr)
			}
		})
	}
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{
			name:    "valid name",
			input:   "John Doe",
			wantErr: false,
		},
		{
			name:    "single name",
			input:   "John",
			wantErr: false,
		},
		{
			name:    "empty name",
			input:   "",
			wantErr: true,
		},
		{
			name:    "name too short",
			input:   "J",
			wantErr: true,
		},
		{
			name:    "name with hyphen",
			input:   "Mary-Jane",
			wantErr: false,
		},
		{
			name:    "name with apostrophe",
			input:   "O'Brien",
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{
			name:     "valid password",
			password: "password123",
			wantErr:  false,
		},
		{
			name:     "password exactly 8 characters",
			password: "pass1234",
			wantErr:  false,
		},
		{
			name:     "password too short",
			password: "pass123",
			wantErr:  true,
		},
		{
			name:     "empty password",
			password: "",
			wantErr:  true,
		},
		{
			name:     "long password",
			password: "thisIsAVeryLongPasswordThatShouldBeValid123",
			wantErr:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePassword() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateConsent(t *testing.T) {
	valid := models.Consent{UserID: "p-1", Name: "Kim Minji", Email: "kim@example.com", Group: "keyword"}

	tests := []struct {
		name    string
		mutate  func(c *models.Consent)
		wantErr bool
	}{
		{name: "valid consent", mutate: func(c *models.Consent) {}},
		{name: "korean name", mutate: func(c *models.Consent) { c.Name = "김민지" }},
		{name: "missing user", mutate: func(c *models.Consent) { c.UserID = "" }, wantErr: true},
		{name: "bad email", mutate: func(c *models.Consent) { c.Email = "kim" }, wantErr: true},
		{name: "missing group", mutate: func(c *models.Consent) { c.Group = " " }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := ValidateConsent(c)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateConsent() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateResponse(t *testing.T) {
	entry := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	valid := models.ResponseEvent{
		UserID:    "p-1",
		Group:     "control",
		Word:      "cat",
		Round:     1,
		PageType:  "generation",
		EntryTime: entry,
		ExitTime:  entry.Add(3 * time.Second),
		Duration:  3,
	}

	tests := []struct {
		name    string
		mutate  func(ev *models.ResponseEvent)
		wantErr bool
	}{
		{name: "valid response", mutate: func(ev *models.ResponseEvent) {}},
		{name: "unknown page type", mutate: func(ev *models.ResponseEvent) { ev.PageType = "quiz" }, wantErr: true},
		{name: "exit before entry", mutate: func(ev *models.ResponseEvent) { ev.ExitTime = entry.Add(-time.Second) }, wantErr: true},
		{name: "missing timestamps", mutate: func(ev *models.ResponseEvent) { ev.EntryTime = time.Time{} }, wantErr: true},
		{name: "rating out of range", mutate: func(ev *models.ResponseEvent) {
			ev.PageType = "survey"
			ev.Ratings = map[string]int{"familiarity": 9}
		}, wantErr: true},
		{name: "final summary needs no word", mutate: func(ev *models.ResponseEvent) {
			ev.PageType = models.PageTypeFinalSummary
			ev.Word = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := valid
			tt.mutate(&ev)
			err := ValidateResponse(ev)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateResponse() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
