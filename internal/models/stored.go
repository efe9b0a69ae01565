package models

import "time"

// StoredConsent is a consent row as persisted by the collector
type StoredConsent struct {
	ID int64 `json:"id"`
	Consent
	ReceiptSent bool      `json:"receipt_sent"`
	CreatedAt   time.Time `json:"created_at"`
}

// StoredResponse is a response row as persisted by the collector
type StoredResponse struct {
	ID int64 `json:"id"`
	ResponseEvent
	CreatedAt time.Time `json:"created_at"`
}

// ResponseFilter narrows a response listing; zero values match everything
type ResponseFilter struct {
	UserID   string
	Group    string
	PageType string
}
