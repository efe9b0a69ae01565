package experiment

import (
	"fmt"
	"strconv"
	"strings"

	"vocabcue/internal/models"
)

// Rounds is the number of learning/testing rounds in one run
const Rounds = 3

// InvalidPath is where unknown link codes are sent
const InvalidPath = "/invalid"

// Step is one entry of the progress indicator
type Step struct {
	Index int
	Label string
	Round int
	Phase models.Phase
}

// Steps is the fixed sequence a participant walks through
var Steps = buildSteps()

func buildSteps() []Step {
	steps := []Step{
		{Label: "Consent"},
		{Label: "Instructions"},
	}
	for round := 1; round <= Rounds; round++ {
		for _, phase := range models.Phases {
			steps = append(steps, Step{
				Label: fmt.Sprintf("Round %d %s", round, phaseLabel(phase)),
				Round: round,
				Phase: phase,
			})
		}
	}
	steps = append(steps,
		Step{Label: "Survey", Phase: models.PhaseSurvey},
		Step{Label: "Complete"},
	)
	for i := range steps {
		steps[i].Index = i
	}
	return steps
}

func phaseLabel(phase models.Phase) string {
	switch phase {
	case models.PhaseLearning:
		return "Learning"
	case models.PhaseRecognition:
		return "Recognition"
	case models.PhaseGeneration:
		return "Generation"
	case models.PhaseSurvey:
		return "Survey"
	}
	return string(phase)
}

// StepFromPath derives the current step purely from the URL path.
// It is presentational only; progress lives in the session store.
func StepFromPath(path string) (Step, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 3 || parts[0] != "e" {
		return Step{}, false
	}
	rest := parts[2:]

	switch rest[0] {
	case "consent":
		return Steps[0], true
	case "instructions":
		return Steps[1], true
	case "survey":
		return Steps[len(Steps)-2], true
	case "complete":
		return Steps[len(Steps)-1], true
	case "round":
		if len(rest) < 3 {
			return Step{}, false
		}
		round, err := strconv.Atoi(rest[1])
		if err != nil || round < 1 || round > Rounds {
			return Step{}, false
		}
		for i, phase := range models.Phases {
			if string(phase) == rest[2] {
				return Steps[2+(round-1)*len(models.Phases)+i], true
			}
		}
	}
	return Step{}, false
}

// BasePath returns the root of a participant's link
func BasePath(code string) string {
	return "/e/" + code
}

// ConsentPath returns the consent page for code
func ConsentPath(code string) string {
	return BasePath(code) + "/consent"
}

// InstructionsPath returns the instruction page for code
func InstructionsPath(code string) string {
	return BasePath(code) + "/instructions"
}

// CompletePath returns the closing page for code
func CompletePath(code string) string {
	return BasePath(code) + "/complete"
}

// LandingPath returns the landing page that precedes a phase
func LandingPath(code string, round int, phase models.Phase) string {
	if phase == models.PhaseSurvey {
		return BasePath(code) + "/survey"
	}
	return fmt.Sprintf("%s/round/%d/%s", BasePath(code), round, phase)
}

// PlayPath returns the page that runs a phase
func PlayPath(code string, round int, phase models.Phase) string {
	return LandingPath(code, round, phase) + "/play"
}

// SocketPath returns the WebSocket endpoint of a phase
func SocketPath(code string, round int, phase models.Phase) string {
	return LandingPath(code, round, phase) + "/ws"
}

// Next returns the round and phase that follow, and false once the survey is done
func Next(round int, phase models.Phase) (int, models.Phase, bool) {
	switch phase {
	case models.PhaseLearning:
		return round, models.PhaseRecognition, true
	case models.PhaseRecognition:
		return round, models.PhaseGeneration, true
	case models.PhaseGeneration:
		if round < Rounds {
			return round + 1, models.PhaseLearning, true
		}
		return 0, models.PhaseSurvey, true
	}
	return 0, "", false
}

// NextPath returns where a participant lands after finishing a phase
func NextPath(code string, round int, phase models.Phase) string {
	nextRound, nextPhase, ok := Next(round, phase)
	if !ok {
		return CompletePath(code)
	}
	return LandingPath(code, nextRound, nextPhase)
}

// Reached reports whether progress has already passed the given round and phase
func Reached(progress models.Progress, round int, phase models.Phase) bool {
	return order(progress.Round, progress.Phase) >= order(round, phase)
}

func order(round int, phase models.Phase) int {
	if phase == models.PhaseSurvey {
		return Rounds*len(models.Phases) + 1
	}
	if phase == "" {
		return 0
	}
	for i, p := range models.Phases {
		if p == phase {
			return (round-1)*len(models.Phases) + i + 1
		}
	}
	return 0
}
