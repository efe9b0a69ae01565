package models

import "time"

// LoadStatus tracks whether a session's word lists are usable
type LoadStatus string

const (
	LoadStatusLoading LoadStatus = "loading"
	LoadStatusReady   LoadStatus = "ready"
	LoadStatusFailed  LoadStatus = "failed"
)

// Participant is the identity handed to each stage explicitly
type Participant struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Group       string    `json:"group"`
	Code        string    `json:"code"`
	ConsentedAt time.Time `json:"consented_at"`
}

// Progress is the furthest point a participant has reached
type Progress struct {
	Round     int   `json:"round"`
	Phase     Phase `json:"phase"`
	ItemIndex int   `json:"item_index"`
	Complete  bool  `json:"complete,omitempty"` // survey finished
}

// SessionState holds everything the experiment keeps per participant
type SessionState struct {
	Participant Participant        `json:"participant"`
	Progress    Progress           `json:"progress"`
	Rounds      map[int][]WordItem `json:"rounds"`
	Status      LoadStatus         `json:"status"`
	LoadError   string             `json:"load_error,omitempty"`
	Completed   map[string]int     `json:"completed,omitempty"` // submitted events per phase
	SummarySent bool               `json:"summary_sent,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// Words returns the resolved list for a round
func (s *SessionState) Words(round int) []WordItem {
	if s.Rounds == nil {
		return nil
	}
	return s.Rounds[round]
}

// IsReady reports whether content finished loading
func (s *SessionState) IsReady() bool {
	return s.Status == LoadStatusReady
}
