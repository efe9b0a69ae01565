package handlers

const (
	ErrInvalidFormData     = "Invalid form data"
	ErrInvalidJSON         = "Invalid JSON body"
	ErrForbidden           = "Forbidden"
	ErrNotFound            = "Not found"
	ErrInternalServerError = "Internal server error"

	ErrContentUnavailable = "The study materials could not be loaded. Please try again in a moment."
	ErrConsentNotSaved    = "Your consent could not be recorded. Please try again."
	ErrSummaryNotSaved    = "Your final results could not be sent yet. Reload this page to try again."

	maxBodyBytes = 64 << 10
)
