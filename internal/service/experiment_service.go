package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"vocabcue/internal/config"
	"vocabcue/internal/experiment"
	"vocabcue/internal/logging"
	"vocabcue/internal/models"
	"vocabcue/internal/security"
	"vocabcue/internal/session"
	"vocabcue/internal/stage"
	"vocabcue/internal/validation"
)

var (
	// ErrNotReached is returned when a participant opens a phase ahead of their progress
	ErrNotReached = errors.New("phase not reached yet")
	// ErrNotFinished is returned when the closing summary is requested before the survey is done
	ErrNotFinished = errors.New("experiment not finished")
	// ErrStageBusy is returned when the phase is already running for the participant, e.g. in another tab
	ErrStageBusy = errors.New("phase already open")
)

// ContentSource yields the per-round word lists for a group
type ContentSource interface {
	Rounds(ctx context.Context, group string) (map[int][]models.WordItem, error)
}

// ResponseAPI is the remote API the experiment reports to
type ResponseAPI interface {
	PostConsent(ctx context.Context, consent models.Consent) error
	PostResponse(ctx context.Context, event models.ResponseEvent) error
}

// AudioLocator finds generated audio for words whose row has no audio_path
type AudioLocator interface {
	Existing(word string) (string, bool)
}

// ExperimentService owns participant state between page loads
type ExperimentService struct {
	groups  *experiment.GroupResolver
	content ContentSource
	store   session.Store
	api     ResponseAPI
	audio   AudioLocator
	timings config.StageTimings
	logger  *zap.Logger
	now     func() time.Time

	// mu serializes read-modify-write cycles on stored state
	mu sync.Mutex

	liveMu sync.Mutex
	live   map[string]bool // participant/round/phase with a running stage
}

// ExperimentDeps gathers the collaborators of an ExperimentService
type ExperimentDeps struct {
	Groups  *experiment.GroupResolver
	Content ContentSource
	Store   session.Store
	API     ResponseAPI
	Audio   AudioLocator // optional
	Timings config.StageTimings
	Logger  *zap.Logger
}

// NewExperimentService creates an experiment service
func NewExperimentService(deps ExperimentDeps) *ExperimentService {
	return &ExperimentService{
		groups:  deps.Groups,
		content: deps.Content,
		store:   deps.Store,
		api:     deps.API,
		audio:   deps.Audio,
		timings: deps.Timings,
		logger:  logging.OrNop(deps.Logger),
		now:     time.Now,
		live:    make(map[string]bool),
	}
}

// ResolveGroup maps a link code to its group
func (s *ExperimentService) ResolveGroup(code string) (string, error) {
	return s.groups.Resolve(code)
}

// RegisterConsent validates the intake form, reports it to the API and opens a session.
// Nothing is stored when the API rejects the consent.
func (s *ExperimentService) RegisterConsent(ctx context.Context, code, name, email string) (models.Participant, error) {
	group, err := s.groups.Resolve(code)
	if err != nil {
		return models.Participant{}, err
	}
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if err := validation.ValidateName(name); err != nil {
		return models.Participant{}, err
	}
	if err := validation.ValidateEmail(email); err != nil {
		return models.Participant{}, err
	}

	p := models.Participant{
		ID:          security.GenerateSessionID(),
		Name:        name,
		Email:       email,
		Group:       group,
		Code:        code,
		ConsentedAt: s.now().UTC(),
	}

	err = s.api.PostConsent(ctx, models.Consent{
		UserID:      p.ID,
		Name:        p.Name,
		Email:       p.Email,
		Group:       p.Group,
		ConsentedAt: p.ConsentedAt,
	})
	if err != nil {
		return models.Participant{}, err
	}

	if err := s.store.Save(ctx, p.ID, s.newState(p)); err != nil {
		return models.Participant{}, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Info("Participant consented", zap.String("participant", p.ID), zap.String("group", p.Group))
	return p, nil
}

func (s *ExperimentService) newState(p models.Participant) *models.SessionState {
	now := s.now().UTC()
	return &models.SessionState{
		Participant: p,
		Progress:    models.Progress{Round: 1, Phase: models.PhaseLearning},
		Status:      models.LoadStatusLoading,
		Completed:   make(map[string]int),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// State returns the stored state for p, recreating it when the store has lost it
func (s *ExperimentService) State(ctx context.Context, p models.Participant) (*models.SessionState, error) {
	state, err := s.store.Get(ctx, p.ID)
	if errors.Is(err, session.ErrNotFound) {
		s.logger.Warn("Session state missing, starting over", zap.String("participant", p.ID))
		state = s.newState(p)
		if err := s.store.Save(ctx, p.ID, state); err != nil {
			return nil, err
		}
		return state, nil
	}
	return state, err
}

// EnsureContent loads and partitions the word lists for p's group if not done yet.
// A failed load is retried on the next call.
func (s *ExperimentService) EnsureContent(ctx context.Context, p models.Participant) (*models.SessionState, error) {
	state, err := s.State(ctx, p)
	if err != nil {
		return nil, err
	}
	if state.IsReady() {
		return state, nil
	}

	rounds, loadErr := s.content.Rounds(ctx, p.Group)

	s.mu.Lock()
	defer s.mu.Unlock()

	// re-read so a concurrent progress update is not overwritten
	state, err = s.State(ctx, p)
	if err != nil {
		return nil, err
	}
	if state.IsReady() {
		return state, nil
	}

	if loadErr != nil {
		state.Status = models.LoadStatusFailed
		state.LoadError = "The word list could not be loaded."
		s.save(ctx, state)
		if !errors.Is(loadErr, experiment.ErrContentLoad) {
			loadErr = experiment.Wrap(experiment.ErrContentLoad, "load rounds", loadErr)
		}
		return state, loadErr
	}

	state.Rounds = s.withAudio(rounds)
	state.Status = models.LoadStatusReady
	state.LoadError = ""
	s.save(ctx, state)
	return state, nil
}

func (s *ExperimentService) withAudio(rounds map[int][]models.WordItem) map[int][]models.WordItem {
	out := make(map[int][]models.WordItem, len(rounds))
	for round, items := range rounds {
		copied := append([]models.WordItem(nil), items...)
		if s.audio != nil {
			for i := range copied {
				if copied[i].AudioPath != "" {
					continue
				}
				if url, ok := s.audio.Existing(copied[i].Word); ok {
					copied[i].AudioPath = url
				}
			}
		}
		out[round] = copied
	}
	return out
}

// Items returns the word list a phase walks over. The survey covers every round's words once.
func Items(state *models.SessionState, round int, phase models.Phase) []models.WordItem {
	if phase != models.PhaseSurvey {
		return state.Words(round)
	}
	var items []models.WordItem
	seen := make(map[string]bool)
	for r := 1; r <= experiment.Rounds; r++ {
		for _, item := range state.Words(r) {
			key := strings.ToLower(item.Word)
			if seen[key] {
				continue
			}
			seen[key] = true
			items = append(items, item)
		}
	}
	return items
}

// StartIndex returns where a phase resumes: the saved index for the current phase,
// the end of the list for finished phases, and ErrNotReached for later ones.
func StartIndex(progress models.Progress, round int, phase models.Phase, total int) (int, error) {
	if progress.Complete {
		return total, nil
	}
	if phase == models.PhaseSurvey {
		round = 0
	}
	if progress.Round == round && progress.Phase == phase {
		return progress.ItemIndex, nil
	}
	if experiment.Reached(progress, round, phase) {
		return total, nil
	}
	return 0, ErrNotReached
}

// OpenStage builds the runner for one phase, resuming from stored progress.
// Only one runner per participant and phase may be open; release frees the slot
// and must be called once the runner is done or was never started.
func (s *ExperimentService) OpenStage(ctx context.Context, p models.Participant, round int, phase models.Phase, interval time.Duration) (runner *stage.Runner, release func(), err error) {
	state, err := s.EnsureContent(ctx, p)
	if err != nil {
		return nil, nil, err
	}

	items := Items(state, round, phase)
	start, err := StartIndex(state.Progress, round, phase, len(items))
	if err != nil {
		return nil, nil, err
	}
	if len(items) == 0 {
		// nothing will be submitted, so the phase is done as soon as it is entered
		if err := s.skipEmpty(ctx, p, round, phase); err != nil {
			return nil, nil, err
		}
	}

	release, ok := s.claim(p.ID, round, phase)
	if !ok {
		return nil, nil, ErrStageBusy
	}

	cfg := stage.ConfigFor(phase, round, s.timings, experiment.NextPath(p.Code, round, phase))
	ctrl := stage.NewController(cfg, p, items, start, s.now)

	logger := s.logger.With(
		zap.String("participant", p.ID),
		zap.String("phase", string(phase)),
		zap.Int("round", round))

	return stage.NewRunner(ctrl, s.api, stage.RunnerOptions{
		Interval: interval,
		Logger:   logger,
		OnProgress: func(ctx context.Context, event models.ResponseEvent, next int) {
			if err := s.RecordProgress(ctx, p, round, phase, next, len(items)); err != nil {
				logger.Error("Failed to record progress", zap.Error(err))
			}
		},
	}), release, nil
}

func (s *ExperimentService) claim(participant string, round int, phase models.Phase) (func(), bool) {
	key := fmt.Sprintf("%s/%d/%s", participant, round, phase)
	s.liveMu.Lock()
	defer s.liveMu.Unlock()
	if s.live[key] {
		return nil, false
	}
	s.live[key] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			s.liveMu.Lock()
			delete(s.live, key)
			s.liveMu.Unlock()
		})
	}, true
}

// skipEmpty moves progress past a phase with no words, if the participant is on it
func (s *ExperimentService) skipEmpty(ctx context.Context, p models.Participant, round int, phase models.Phase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.State(ctx, p)
	if err != nil {
		return err
	}
	current := round
	if phase == models.PhaseSurvey {
		current = 0
	}
	if state.Progress.Complete || state.Progress.Round != current || state.Progress.Phase != phase {
		return nil
	}
	s.logger.Warn("Skipping phase with no words",
		zap.String("participant", p.ID), zap.Int("round", round), zap.String("phase", string(phase)))
	return s.advance(ctx, p, state, round, phase, 0, 0)
}

// RecordProgress stores that the item before next was submitted
func (s *ExperimentService) RecordProgress(ctx context.Context, p models.Participant, round int, phase models.Phase, next, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.State(ctx, p)
	if err != nil {
		return err
	}
	if state.Completed == nil {
		state.Completed = make(map[string]int)
	}
	state.Completed[string(phase)]++
	return s.advance(ctx, p, state, round, phase, next, total)
}

// advance points progress at next, or at the following phase once total is reached. Callers hold mu.
func (s *ExperimentService) advance(ctx context.Context, p models.Participant, state *models.SessionState, round int, phase models.Phase, next, total int) error {
	if phase == models.PhaseSurvey {
		round = 0
	}
	if next < total {
		state.Progress = models.Progress{Round: round, Phase: phase, ItemIndex: next}
	} else if nextRound, nextPhase, ok := experiment.Next(round, phase); ok {
		state.Progress = models.Progress{Round: nextRound, Phase: nextPhase}
	} else {
		state.Progress = models.Progress{Round: round, Phase: phase, ItemIndex: total, Complete: true}
	}

	state.UpdatedAt = s.now().UTC()
	return s.store.Save(ctx, p.ID, state)
}

// Finish sends the closing summary once the survey is done. Repeated calls send nothing.
func (s *ExperimentService) Finish(ctx context.Context, p models.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.State(ctx, p)
	if err != nil {
		return err
	}
	if !state.Progress.Complete {
		return ErrNotFinished
	}
	if state.SummarySent {
		return nil
	}

	exit := s.now().UTC()
	entry := p.ConsentedAt
	if entry.IsZero() || exit.Before(entry) {
		entry = exit
	}
	summary := make(map[string]int, len(state.Completed))
	for k, v := range state.Completed {
		summary[k] = v
	}

	err = s.api.PostResponse(ctx, models.ResponseEvent{
		UserID:    p.ID,
		Group:     p.Group,
		PageType:  models.PageTypeFinalSummary,
		EntryTime: entry,
		ExitTime:  exit,
		Duration:  models.DurationSeconds(entry, exit),
		Summary:   summary,
	})
	if err != nil {
		return err
	}

	state.SummarySent = true
	state.UpdatedAt = exit
	s.logger.Info("Participant finished", zap.String("participant", p.ID), zap.String("group", p.Group))
	return s.store.Save(ctx, p.ID, state)
}

// Forget drops a participant's stored state
func (s *ExperimentService) Forget(ctx context.Context, p models.Participant) error {
	return s.store.Delete(ctx, p.ID)
}

// CleanupLoop removes expired state every interval until ctx is done
func (s *ExperimentService) CleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.store.Cleanup(ctx)
			if err != nil {
				s.logger.Warn("Session cleanup failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				s.logger.Debug("Expired sessions removed", zap.Int("count", removed))
			}
		}
	}
}

func (s *ExperimentService) save(ctx context.Context, state *models.SessionState) {
	state.UpdatedAt = s.now().UTC()
	if err := s.store.Save(ctx, state.Participant.ID, state); err != nil {
		s.logger.Error("Failed to save session", zap.String("participant", state.Participant.ID), zap.Error(err))
	}
}
