package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vocabcue/internal/config"
	"vocabcue/internal/experiment"
	"vocabcue/internal/models"
	"vocabcue/internal/session"
	"vocabcue/internal/stage"
)

type fakeContent struct {
	mu     sync.Mutex
	calls  int
	err    error
	rounds map[int][]models.WordItem
}

func (f *fakeContent) Rounds(_ context.Context, _ string) (map[int][]models.WordItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.rounds, nil
}

type fakeAPI struct {
	mu         sync.Mutex
	consents   []models.Consent
	responses  []models.ResponseEvent
	consentErr error
}

func (f *fakeAPI) PostConsent(_ context.Context, c models.Consent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.consentErr != nil {
		return f.consentErr
	}
	f.consents = append(f.consents, c)
	return nil
}

func (f *fakeAPI) PostResponse(_ context.Context, ev models.ResponseEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, ev)
	return nil
}

func (f *fakeAPI) posted() []models.ResponseEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ResponseEvent(nil), f.responses...)
}

type fakeAudio map[string]string

func (f fakeAudio) Existing(word string) (string, bool) {
	url, ok := f[word]
	return url, ok
}

func sampleRounds() map[int][]models.WordItem {
	return map[int][]models.WordItem{
		1: {{Word: "apple", Meaning: "사과", Round: 1}, {Word: "river", Meaning: "강", Round: 1, AudioPath: "/static/audio/river.mp3"}},
		2: {{Word: "cloud", Meaning: "구름", Round: 2}},
		3: {{Word: "Apple", Meaning: "사과", Round: 3}, {Word: "stone", Meaning: "돌", Round: 3}},
	}
}

func newTestService(content *fakeContent, api *fakeAPI) (*ExperimentService, session.Store) {
	store := session.NewMemoryStore(time.Hour)
	svc := NewExperimentService(ExperimentDeps{
		Groups:  experiment.NewGroupResolver(map[string]string{"k7q2": "keyword", "v3m8": "verbal"}),
		Content: content,
		Store:   store,
		API:     api,
		Audio:   fakeAudio{"apple": "/static/audio/word_apple.mp3"},
		Timings: config.Default().Stages,
	})
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	return svc, store
}

func TestRegisterConsent(t *testing.T) {
	api := &fakeAPI{}
	svc, store := newTestService(&fakeContent{rounds: sampleRounds()}, api)

	p, err := svc.RegisterConsent(context.Background(), "k7q2", "  Kim Minji ", "minji@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "keyword", p.Group)
	assert.Equal(t, "Kim Minji", p.Name)

	require.Len(t, api.consents, 1)
	assert.Equal(t, p.ID, api.consents[0].UserID)
	assert.Equal(t, "keyword", api.consents[0].Group)

	state, err := store.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Progress{Round: 1, Phase: models.PhaseLearning}, state.Progress)
	assert.Equal(t, models.LoadStatusLoading, state.Status)
}

func TestRegisterConsentUnknownCodeLoadsNothing(t *testing.T) {
	content := &fakeContent{rounds: sampleRounds()}
	api := &fakeAPI{}
	svc, _ := newTestService(content, api)

	_, err := svc.RegisterConsent(context.Background(), "zzz", "Kim", "kim@example.com")
	assert.ErrorIs(t, err, experiment.ErrUnknownGroup)
	assert.Zero(t, content.calls)
	assert.Empty(t, api.consents)
}

func TestRegisterConsentRejected(t *testing.T) {
	tests := []struct {
		name  string
		pname string
		email string
		api   error
	}{
		{name: "short name", pname: "K", email: "kim@example.com"},
		{name: "bad email", pname: "Kim", email: "kim@"},
		{name: "api failure", pname: "Kim", email: "kim@example.com", api: experiment.Wrap(experiment.ErrSubmission, "consent", errors.New("503"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{consentErr: tt.api}
			svc, _ := newTestService(&fakeContent{}, api)
			p, err := svc.RegisterConsent(context.Background(), "k7q2", tt.pname, tt.email)
			require.Error(t, err)
			assert.Empty(t, p.ID)
			assert.Empty(t, api.consents)
		})
	}
}

func TestEnsureContentFillsAudio(t *testing.T) {
	content := &fakeContent{rounds: sampleRounds()}
	svc, _ := newTestService(content, &fakeAPI{})
	p, err := svc.RegisterConsent(context.Background(), "k7q2", "Kim", "kim@example.com")
	require.NoError(t, err)

	state, err := svc.EnsureContent(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, state.IsReady())
	assert.Equal(t, "/static/audio/word_apple.mp3", state.Words(1)[0].AudioPath)
	assert.Equal(t, "/static/audio/river.mp3", state.Words(1)[1].AudioPath)

	// already loaded
	_, err = svc.EnsureContent(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 1, content.calls)
}

func TestEnsureContentFailureIsRetried(t *testing.T) {
	content := &fakeContent{err: errors.New("connection refused")}
	svc, _ := newTestService(content, &fakeAPI{})
	p, err := svc.RegisterConsent(context.Background(), "k7q2", "Kim", "kim@example.com")
	require.NoError(t, err)

	state, err := svc.EnsureContent(context.Background(), p)
	assert.ErrorIs(t, err, experiment.ErrContentLoad)
	assert.Equal(t, models.LoadStatusFailed, state.Status)
	assert.NotEmpty(t, state.LoadError)

	_, _, err = svc.OpenStage(context.Background(), p, 1, models.PhaseLearning, time.Second)
	assert.ErrorIs(t, err, experiment.ErrContentLoad)

	content.err = nil
	content.rounds = sampleRounds()
	state, err = svc.EnsureContent(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, state.IsReady())
}

func TestItemsSurveyDeduplicates(t *testing.T) {
	state := &models.SessionState{Rounds: sampleRounds(), Status: models.LoadStatusReady}

	var words []string
	for _, item := range Items(state, 0, models.PhaseSurvey) {
		words = append(words, item.Word)
	}
	assert.Equal(t, []string{"apple", "river", "cloud", "stone"}, words)
	assert.Len(t, Items(state, 3, models.PhaseGeneration), 2)
}

func TestStartIndex(t *testing.T) {
	current := models.Progress{Round: 2, Phase: models.PhaseRecognition, ItemIndex: 1}
	tests := []struct {
		name    string
		round   int
		phase   models.Phase
		want    int
		wantErr error
	}{
		{name: "current phase resumes", round: 2, phase: models.PhaseRecognition, want: 1},
		{name: "earlier phase is done", round: 1, phase: models.PhaseGeneration, want: 5},
		{name: "later phase", round: 2, phase: models.PhaseGeneration, wantErr: ErrNotReached},
		{name: "survey not reached", round: 0, phase: models.PhaseSurvey, wantErr: ErrNotReached},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := StartIndex(current, tt.round, tt.phase, 5)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	done := models.Progress{Phase: models.PhaseSurvey, ItemIndex: 4, Complete: true}
	got, err := StartIndex(done, 0, models.PhaseSurvey, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, got)
}

func TestRecordProgressWalksPhases(t *testing.T) {
	svc, store := newTestService(&fakeContent{rounds: sampleRounds()}, &fakeAPI{})
	ctx := context.Background()
	p, err := svc.RegisterConsent(ctx, "k7q2", "Kim", "kim@example.com")
	require.NoError(t, err)

	require.NoError(t, svc.RecordProgress(ctx, p, 1, models.PhaseLearning, 1, 2))
	state, _ := store.Get(ctx, p.ID)
	assert.Equal(t, models.Progress{Round: 1, Phase: models.PhaseLearning, ItemIndex: 1}, state.Progress)

	require.NoError(t, svc.RecordProgress(ctx, p, 1, models.PhaseLearning, 2, 2))
	state, _ = store.Get(ctx, p.ID)
	assert.Equal(t, models.Progress{Round: 1, Phase: models.PhaseRecognition}, state.Progress)

	require.NoError(t, svc.RecordProgress(ctx, p, 3, models.PhaseGeneration, 2, 2))
	state, _ = store.Get(ctx, p.ID)
	assert.Equal(t, models.Progress{Phase: models.PhaseSurvey}, state.Progress)

	require.NoError(t, svc.RecordProgress(ctx, p, 0, models.PhaseSurvey, 4, 4))
	state, _ = store.Get(ctx, p.ID)
	assert.True(t, state.Progress.Complete)
	assert.Equal(t, map[string]int{"learning": 2, "generation": 1, "survey": 1}, state.Completed)
}

func TestOpenStageRunsAndRecordsProgress(t *testing.T) {
	api := &fakeAPI{}
	svc, store := newTestService(&fakeContent{rounds: sampleRounds()}, api)
	ctx := context.Background()
	p, err := svc.RegisterConsent(ctx, "k7q2", "Kim", "kim@example.com")
	require.NoError(t, err)
	require.NoError(t, svc.RecordProgress(ctx, p, 1, models.PhaseLearning, 2, 2))

	_, _, err = svc.OpenStage(ctx, p, 1, models.PhaseGeneration, time.Hour)
	assert.ErrorIs(t, err, ErrNotReached)

	runner, release, err := svc.OpenStage(ctx, p, 1, models.PhaseRecognition, time.Hour)
	require.NoError(t, err)
	defer release()

	errCh := make(chan error, 1)
	go func() { errCh <- runner.Run(ctx) }()

	var redirect string
	for ev := range runner.Events() {
		switch ev.Type {
		case stage.EventItem:
			go runner.Advance(stage.Input{Text: "답"})
		case stage.EventRedirect:
			redirect = ev.Payload.(stage.RedirectPayload).URL
		}
	}
	require.NoError(t, <-errCh)
	assert.Equal(t, "/e/k7q2/round/1/generation", redirect)
	assert.Len(t, api.posted(), 2)

	state, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Progress{Round: 1, Phase: models.PhaseGeneration}, state.Progress)

	// a finished phase redirects straight on
	again, releaseAgain, err := svc.OpenStage(ctx, p, 1, models.PhaseLearning, time.Hour)
	require.NoError(t, err)
	defer releaseAgain()
	go func() { errCh <- again.Run(ctx) }()
	first := <-again.Events()
	assert.Equal(t, stage.EventRedirect, first.Type)
	assert.Equal(t, "/e/k7q2/round/1/recognition", first.Payload.(stage.RedirectPayload).URL)
	require.NoError(t, <-errCh)
}

// firstEvent runs the runner until its first event and waits for it to stop
func firstEvent(t *testing.T, runner *stage.Runner) stage.Event {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- runner.Run(context.Background()) }()
	ev := <-runner.Events()
	for range runner.Events() {
	}
	require.NoError(t, <-errCh)
	return ev
}

func TestOpenStageSkipsEmptyRound(t *testing.T) {
	rounds := sampleRounds()
	delete(rounds, 1)
	svc, store := newTestService(&fakeContent{rounds: rounds}, &fakeAPI{})
	ctx := context.Background()
	p, err := svc.RegisterConsent(ctx, "k7q2", "Kim", "kim@example.com")
	require.NoError(t, err)

	runner, release, err := svc.OpenStage(ctx, p, 1, models.PhaseLearning, time.Hour)
	require.NoError(t, err)
	defer release()
	ev := firstEvent(t, runner)
	require.Equal(t, stage.EventRedirect, ev.Type)
	assert.Equal(t, "/e/k7q2/round/1/recognition", ev.Payload.(stage.RedirectPayload).URL)

	state, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Progress{Round: 1, Phase: models.PhaseRecognition}, state.Progress)
	assert.Empty(t, state.Completed)

	// the redirect target is now open
	next, releaseNext, err := svc.OpenStage(ctx, p, 1, models.PhaseRecognition, time.Hour)
	require.NoError(t, err)
	defer releaseNext()
	assert.Equal(t, stage.EventRedirect, firstEvent(t, next).Type)

	state, err = store.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Progress{Round: 1, Phase: models.PhaseGeneration}, state.Progress)
}

func TestEmptySurveyCompletesExperiment(t *testing.T) {
	api := &fakeAPI{}
	svc, store := newTestService(&fakeContent{rounds: map[int][]models.WordItem{}}, api)
	ctx := context.Background()
	p, err := svc.RegisterConsent(ctx, "k7q2", "Kim", "kim@example.com")
	require.NoError(t, err)

	for round := 1; round <= experiment.Rounds; round++ {
		for _, phase := range []models.Phase{models.PhaseLearning, models.PhaseRecognition, models.PhaseGeneration} {
			runner, release, err := svc.OpenStage(ctx, p, round, phase, time.Hour)
			require.NoError(t, err)
			assert.Equal(t, stage.EventRedirect, firstEvent(t, runner).Type)
			release()
		}
	}
	assert.ErrorIs(t, svc.Finish(ctx, p), ErrNotFinished)

	runner, release, err := svc.OpenStage(ctx, p, 0, models.PhaseSurvey, time.Hour)
	require.NoError(t, err)
	defer release()
	assert.Equal(t, stage.EventRedirect, firstEvent(t, runner).Type)

	state, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, state.Progress.Complete)
	require.NoError(t, svc.Finish(ctx, p))
	assert.Len(t, api.posted(), 1)
}

func TestOpenStageAllowsOneLiveRunner(t *testing.T) {
	svc, _ := newTestService(&fakeContent{rounds: sampleRounds()}, &fakeAPI{})
	ctx := context.Background()
	p, err := svc.RegisterConsent(ctx, "k7q2", "Kim", "kim@example.com")
	require.NoError(t, err)

	_, release, err := svc.OpenStage(ctx, p, 1, models.PhaseLearning, time.Hour)
	require.NoError(t, err)

	_, _, err = svc.OpenStage(ctx, p, 1, models.PhaseLearning, time.Hour)
	assert.ErrorIs(t, err, ErrStageBusy)

	other, err := svc.RegisterConsent(ctx, "k7q2", "Lee", "lee@example.com")
	require.NoError(t, err)
	_, releaseOther, err := svc.OpenStage(ctx, other, 1, models.PhaseLearning, time.Hour)
	require.NoError(t, err)
	defer releaseOther()

	release()
	release()
	_, releaseAgain, err := svc.OpenStage(ctx, p, 1, models.PhaseLearning, time.Hour)
	require.NoError(t, err)
	releaseAgain()
}

func TestFinishSendsSummaryOnce(t *testing.T) {
	api := &fakeAPI{}
	svc, _ := newTestService(&fakeContent{rounds: sampleRounds()}, api)
	ctx := context.Background()
	p, err := svc.RegisterConsent(ctx, "k7q2", "Kim", "kim@example.com")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Finish(ctx, p), ErrNotFinished)

	require.NoError(t, svc.RecordProgress(ctx, p, 0, models.PhaseSurvey, 1, 1))
	require.NoError(t, svc.Finish(ctx, p))
	require.NoError(t, svc.Finish(ctx, p))

	posted := api.posted()
	require.Len(t, posted, 1)
	assert.Equal(t, models.PageTypeFinalSummary, posted[0].PageType)
	assert.Equal(t, map[string]int{"survey": 1}, posted[0].Summary)
	assert.Equal(t, p.ID, posted[0].UserID)
	assert.Zero(t, posted[0].Duration)
}

func TestStateRecreatedWhenLost(t *testing.T) {
	svc, store := newTestService(&fakeContent{rounds: sampleRounds()}, &fakeAPI{})
	ctx := context.Background()
	p, err := svc.RegisterConsent(ctx, "k7q2", "Kim", "kim@example.com")
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, p.ID))

	state, err := svc.State(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 1, state.Progress.Round)
	assert.Equal(t, p.ID, state.Participant.ID)
}
