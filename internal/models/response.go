package models

import "time"

// Phase identifies a stage of one experiment round
type Phase string

const (
	PhaseLearning    Phase = "learning"
	PhaseRecognition Phase = "recognition"
	PhaseGeneration  Phase = "generation"
	PhaseSurvey      Phase = "survey"
)

// PageTypeFinalSummary tags the closing summary event
const PageTypeFinalSummary = "final_summary"

// Phases lists the per-round phases in the order they run
var Phases = []Phase{PhaseLearning, PhaseRecognition, PhaseGeneration}

// Valid reports whether p is a known phase
func (p Phase) Valid() bool {
	switch p {
	case PhaseLearning, PhaseRecognition, PhaseGeneration, PhaseSurvey:
		return true
	}
	return false
}

// CapturesText reports whether the phase records a free-text answer
func (p Phase) CapturesText() bool {
	return p == PhaseRecognition || p == PhaseGeneration
}

// Trigger records what caused an advance
type Trigger string

const (
	TriggerManual  Trigger = "manual"
	TriggerTimeout Trigger = "timeout"
)

// ResponseEvent is a single per-word, per-phase record sent to the response API
type ResponseEvent struct {
	UserID    string         `json:"user_id"`
	Group     string         `json:"group"`
	Word      string         `json:"word"`
	Round     int            `json:"round"`
	PageType  string         `json:"page_type"`
	EntryTime time.Time      `json:"entry_time"`
	ExitTime  time.Time      `json:"exit_time"`
	Duration  int            `json:"duration"` // whole seconds
	Response  *string        `json:"response,omitempty"`
	Ratings   map[string]int `json:"ratings,omitempty"`
	Trigger   Trigger        `json:"-"` // logged only, so timeout and manual payloads match
	Summary   map[string]int `json:"summary,omitempty"`
}

// DurationSeconds returns the whole seconds between entry and exit, never negative
func DurationSeconds(entry, exit time.Time) int {
	if exit.Before(entry) {
		return 0
	}
	return int(exit.Sub(entry) / time.Second)
}

// Consent is the participant intake record
type Consent struct {
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Group       string    `json:"group"`
	ConsentedAt time.Time `json:"consented_at"`
}
