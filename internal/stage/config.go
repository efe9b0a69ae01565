package stage

import (
	"vocabcue/internal/config"
	"vocabcue/internal/models"
)

// Config describes how one phase runs over its word list
type Config struct {
	Phase        models.Phase
	Round        int
	ItemSeconds  int   // 0 leaves items untimed
	UnlockAfter  int   // seconds before a manual advance is accepted
	AudioOffsets []int // seconds after entry at which the word audio plays
	CaptureText  bool
	RatingKeys   []string
	NextPath     string
}

// ConfigFor builds the stage configuration for a phase
func ConfigFor(phase models.Phase, round int, timings config.StageTimings, nextPath string) Config {
	cfg := Config{
		Phase:       phase,
		Round:       round,
		ItemSeconds: timings.ItemSeconds,
		CaptureText: phase.CapturesText(),
		NextPath:    nextPath,
	}
	switch phase {
	case models.PhaseLearning:
		cfg.UnlockAfter = timings.LearningUnlockAfter
		cfg.AudioOffsets = append([]int(nil), timings.LearningAudioOffsets...)
	case models.PhaseSurvey:
		cfg.ItemSeconds = 0
		cfg.RatingKeys = append([]string(nil), timings.RatingKeys...)
	}
	return cfg
}

// Timed reports whether items count down
func (c Config) Timed() bool {
	return c.ItemSeconds > 0
}
