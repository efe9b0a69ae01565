package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"vocabcue/internal/experiment"
	"vocabcue/internal/logging"
	"vocabcue/internal/models"
	"vocabcue/internal/security"
	"vocabcue/internal/service"
	"vocabcue/internal/validation"
)

// ExperimentHandler serves the experiment pages
type ExperimentHandler struct {
	experiments   *service.ExperimentService
	tokens        *security.TokenIssuer
	csrf          *security.CSRFGenerator
	templates     *template.Template
	secureCookies bool
	logger        *zap.Logger
}

// NewExperimentHandler creates a new experiment handler
func NewExperimentHandler(experiments *service.ExperimentService, tokens *security.TokenIssuer, csrf *security.CSRFGenerator, templates *template.Template, secureCookies bool, logger *zap.Logger) *ExperimentHandler {
	return &ExperimentHandler{
		experiments:   experiments,
		tokens:        tokens,
		csrf:          csrf,
		templates:     templates,
		secureCookies: secureCookies,
		logger:        logging.OrNop(logger),
	}
}

func (h *ExperimentHandler) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := h.templates.ExecuteTemplate(&buf, name, data); err != nil {
		respondWithError(h.logger, w, http.StatusInternalServerError, ErrInternalServerError, "Error rendering "+name, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// resolve redirects unknown codes to the invalid-link page and reports whether the code is usable
func (h *ExperimentHandler) resolve(w http.ResponseWriter, r *http.Request) (string, bool) {
	code := r.PathValue("code")
	if _, err := h.experiments.ResolveGroup(code); err != nil {
		h.logger.Debug("Unknown link code", zap.String("code", code))
		http.Redirect(w, r, experiment.InvalidPath, http.StatusSeeOther)
		return "", false
	}
	return code, true
}

// ShowInvalid explains that the link is not valid
func (h *ExperimentHandler) ShowInvalid(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusNotFound, "invalid.tmpl", InvalidViewData{
		PageData: PageData{Title: "Invalid link"},
	})
}

// Entry sends a returning participant back to where they left off, and anyone else to consent
func (h *ExperimentHandler) Entry(w http.ResponseWriter, r *http.Request) {
	code, ok := h.resolve(w, r)
	if !ok {
		return
	}
	if p, ok := h.participantFromCookie(r); ok && p.Code == code {
		state, err := h.experiments.State(r.Context(), p)
		if err == nil {
			http.Redirect(w, r, resumePath(code, state.Progress), http.StatusSeeOther)
			return
		}
		h.logger.Warn("Failed to read session", zap.String("participant", p.ID), zap.Error(err))
	}
	http.Redirect(w, r, experiment.ConsentPath(code), http.StatusSeeOther)
}

func (h *ExperimentHandler) participantFromCookie(r *http.Request) (models.Participant, bool) {
	cookie, err := r.Cookie(security.ParticipantCookie)
	if err != nil {
		return models.Participant{}, false
	}
	p, err := h.tokens.Parse(cookie.Value)
	if err != nil {
		return models.Participant{}, false
	}
	return p, true
}

func (h *ExperimentHandler) visitorID(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(security.VisitorCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	id := security.GenerateSessionID()
	http.SetCookie(w, security.CreateSessionCookie(r, security.VisitorCookie, id, h.secureCookies))
	return id
}

// ShowConsent displays the consent form
func (h *ExperimentHandler) ShowConsent(w http.ResponseWriter, r *http.Request) {
	code, ok := h.resolve(w, r)
	if !ok {
		return
	}
	h.renderConsent(w, r, http.StatusOK, code, "", "", "")
}

func (h *ExperimentHandler) renderConsent(w http.ResponseWriter, r *http.Request, status int, code, name, email, errMsg string) {
	token, err := h.csrf.GenerateToken(h.visitorID(w, r), code)
	if err != nil {
		respondWithError(h.logger, w, http.StatusInternalServerError, ErrInternalServerError, "Failed to generate CSRF token", err)
		return
	}
	h.render(w, status, "consent.tmpl", ConsentViewData{
		PageData:  newPageData("Consent", code, experiment.ConsentPath(code)),
		CSRFToken: token,
		Name:      name,
		Email:     email,
		Error:     errMsg,
	})
}

// SubmitConsent records consent and starts the participant's session
func (h *ExperimentHandler) SubmitConsent(w http.ResponseWriter, r *http.Request) {
	code, ok := h.resolve(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, ErrInvalidFormData, http.StatusBadRequest)
		return
	}

	visitor, err := r.Cookie(security.VisitorCookie)
	if err != nil || !h.csrf.ValidateToken(visitor.Value, code, r.FormValue("csrf_token")) {
		http.Error(w, ErrForbidden, http.StatusForbidden)
		return
	}

	name := r.FormValue("name")
	email := r.FormValue("email")
	if r.FormValue("agree") != "yes" {
		h.renderConsent(w, r, http.StatusBadRequest, code, name, email, "Please confirm that you agree to take part.")
		return
	}

	p, err := h.experiments.RegisterConsent(r.Context(), code, name, email)
	if err != nil {
		var verr validation.ValidationError
		switch {
		case errors.As(err, &verr):
			h.renderConsent(w, r, http.StatusBadRequest, code, name, email, verr.Message)
		case errors.Is(err, experiment.ErrUnknownGroup):
			http.Redirect(w, r, experiment.InvalidPath, http.StatusSeeOther)
		default:
			h.logger.Warn("Consent not recorded", zap.String("code", code), zap.Error(err))
			h.renderConsent(w, r, http.StatusBadGateway, code, name, email, ErrConsentNotSaved)
		}
		return
	}

	token, err := h.tokens.Issue(p)
	if err != nil {
		respondWithError(h.logger, w, http.StatusInternalServerError, ErrInternalServerError, "Failed to issue participant token", err)
		return
	}
	http.SetCookie(w, security.CreateSessionCookie(r, security.ParticipantCookie, token, h.secureCookies))
	http.Redirect(w, r, experiment.InstructionsPath(code), http.StatusSeeOther)
}

// ShowInstructions loads the word lists and explains the task
func (h *ExperimentHandler) ShowInstructions(w http.ResponseWriter, r *http.Request) {
	p, _ := GetParticipantFromContext(r.Context())
	if _, err := h.experiments.EnsureContent(r.Context(), p); err != nil {
		h.renderContentError(w, r, p.Code, err)
		return
	}
	h.render(w, http.StatusOK, "instructions.tmpl", InstructionsViewData{
		PageData: newPageData("Instructions", p.Code, r.URL.Path),
		Name:     p.Name,
		StartURL: experiment.LandingPath(p.Code, 1, models.PhaseLearning),
		Rounds:   experiment.Rounds,
	})
}

func (h *ExperimentHandler) renderContentError(w http.ResponseWriter, r *http.Request, code string, err error) {
	h.logger.Error("Content unavailable", zap.String("code", code), zap.Error(err))
	h.render(w, http.StatusServiceUnavailable, "error.tmpl", ErrorViewData{
		PageData: newPageData("Unavailable", code, r.URL.Path),
		Message:  ErrContentUnavailable,
		RetryURL: r.URL.Path,
	})
}

// ShowLanding introduces a phase
func (h *ExperimentHandler) ShowLanding(w http.ResponseWriter, r *http.Request) {
	p, round, phase, ok := h.openPhase(w, r)
	if !ok {
		return
	}
	heading, description := phaseCopy(round, phase)
	h.render(w, http.StatusOK, "landing.tmpl", LandingViewData{
		PageData:    newPageData(heading, p.Code, r.URL.Path),
		Round:       round,
		Phase:       string(phase),
		Heading:     heading,
		Description: description,
		PlayURL:     experiment.PlayPath(p.Code, round, phase),
	})
}

// ShowPlay renders the page that the stage socket drives
func (h *ExperimentHandler) ShowPlay(w http.ResponseWriter, r *http.Request) {
	p, round, phase, ok := h.openPhase(w, r)
	if !ok {
		return
	}
	heading, _ := phaseCopy(round, phase)
	h.render(w, http.StatusOK, "play.tmpl", PlayViewData{
		PageData:  newPageData(heading, p.Code, r.URL.Path),
		Round:     round,
		Phase:     string(phase),
		Heading:   heading,
		SocketURL: experiment.SocketPath(p.Code, round, phase),
	})
}

// openPhase checks that content is loaded and that the participant has reached the phase in the path.
// A participant ahead of their progress is sent to their current landing page.
func (h *ExperimentHandler) openPhase(w http.ResponseWriter, r *http.Request) (models.Participant, int, models.Phase, bool) {
	p, _ := GetParticipantFromContext(r.Context())
	round, phase, ok := phaseFromRequest(r)
	if !ok {
		http.NotFound(w, r)
		return p, 0, "", false
	}

	state, err := h.experiments.EnsureContent(r.Context(), p)
	if err != nil {
		h.renderContentError(w, r, p.Code, err)
		return p, 0, "", false
	}
	if _, err := service.StartIndex(state.Progress, round, phase, 0); errors.Is(err, service.ErrNotReached) {
		http.Redirect(w, r, resumePath(p.Code, state.Progress), http.StatusSeeOther)
		return p, 0, "", false
	}
	return p, round, phase, true
}

// ShowComplete sends the closing summary and thanks the participant
func (h *ExperimentHandler) ShowComplete(w http.ResponseWriter, r *http.Request) {
	p, _ := GetParticipantFromContext(r.Context())
	data := CompleteViewData{
		PageData: newPageData("Complete", p.Code, r.URL.Path),
		Name:     p.Name,
	}

	err := h.experiments.Finish(r.Context(), p)
	switch {
	case errors.Is(err, service.ErrNotFinished):
		state, serr := h.experiments.State(r.Context(), p)
		if serr != nil {
			respondWithError(h.logger, w, http.StatusInternalServerError, ErrInternalServerError, "Failed to read session", serr)
			return
		}
		http.Redirect(w, r, resumePath(p.Code, state.Progress), http.StatusSeeOther)
		return
	case err != nil:
		h.logger.Warn("Final summary not sent", zap.String("participant", p.ID), zap.Error(err))
		data.Error = ErrSummaryNotSaved
		h.render(w, http.StatusBadGateway, "complete.tmpl", data)
		return
	}
	h.render(w, http.StatusOK, "complete.tmpl", data)
}

// phaseFromRequest reads the round and phase from the path; survey routes carry no round
func phaseFromRequest(r *http.Request) (int, models.Phase, bool) {
	if strings.HasPrefix(r.URL.Path, experiment.BasePath(r.PathValue("code"))+"/survey") {
		return 0, models.PhaseSurvey, true
	}
	round, err := strconv.Atoi(r.PathValue("round"))
	if err != nil || round < 1 || round > experiment.Rounds {
		return 0, "", false
	}
	phase := models.Phase(r.PathValue("phase"))
	if !phase.Valid() || phase == models.PhaseSurvey {
		return 0, "", false
	}
	return round, phase, true
}

func resumePath(code string, progress models.Progress) string {
	if progress.Complete {
		return experiment.CompletePath(code)
	}
	if progress.Phase == "" {
		return experiment.InstructionsPath(code)
	}
	return experiment.LandingPath(code, progress.Round, progress.Phase)
}

func phaseCopy(round int, phase models.Phase) (string, string) {
	switch phase {
	case models.PhaseLearning:
		return fmt.Sprintf("Round %d: Learning", round),
			"Study each English word with its Korean meaning and memory cue. The word is read aloud twice. You can continue after 15 seconds."
	case models.PhaseRecognition:
		return fmt.Sprintf("Round %d: Recognition", round),
			"Type the Korean meaning of each English word. You have 30 seconds per word."
	case models.PhaseGeneration:
		return fmt.Sprintf("Round %d: Generation", round),
			"Type the English word for each Korean meaning. You have 30 seconds per word."
	case models.PhaseSurvey:
		return "Questionnaire",
			"For each word, rate how familiar it was before the study and how helpful its memory cue was."
	}
	return string(phase), ""
}
