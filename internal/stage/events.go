package stage

import "vocabcue/internal/models"

// Event types streamed to the page
const (
	EventItem       = "item"
	EventTick       = "tick"
	EventAudio      = "audio"
	EventUnlock     = "unlock"
	EventSubmitting = "submitting"
	EventNotice     = "notice"
	EventRedirect   = "redirect"
)

// Event is one message for the page
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// ItemPayload announces a newly entered item
type ItemPayload struct {
	Index       int             `json:"index"`
	Total       int             `json:"total"`
	Phase       models.Phase    `json:"phase"`
	Round       int             `json:"round"`
	Item        models.WordItem `json:"item"`
	Remaining   int             `json:"remaining"`
	CanAdvance  bool            `json:"can_advance"`
	CaptureText bool            `json:"capture_text"`
	RatingKeys  []string        `json:"rating_keys,omitempty"`
}

// TickPayload carries the countdown
type TickPayload struct {
	Remaining  int  `json:"remaining"`
	CanAdvance bool `json:"can_advance"`
}

// AudioPayload asks the page to play the word audio
type AudioPayload struct {
	Src    string `json:"src"`
	Offset int    `json:"offset"`
}

// NoticePayload is a transient message; CanAdvance re-enables the advance control
type NoticePayload struct {
	Message    string `json:"message"`
	CanAdvance bool   `json:"can_advance"`
}

// RedirectPayload sends the page onward
type RedirectPayload struct {
	URL string `json:"url"`
}
