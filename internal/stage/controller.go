package stage

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"vocabcue/internal/models"
)

var (
	// ErrNotActive is returned when no item is showing
	ErrNotActive = errors.New("no active item")
	// ErrAdvanceInFlight is returned while the current item's submission is pending
	ErrAdvanceInFlight = errors.New("advance already in progress")
	// ErrLocked is returned for a manual advance before the unlock threshold
	ErrLocked = errors.New("advance not yet unlocked")
	// ErrIncompleteRatings is returned when a survey item is missing a rating
	ErrIncompleteRatings = errors.New("every rating is required")
)

// State is the controller's position in the item lifecycle
type State string

const (
	StateEntering  State = "entering"
	StateTicking   State = "ticking"
	StateAdvancing State = "advancing"
	StateTerminal  State = "terminal"
)

// Input is what the participant has entered for the current item
type Input struct {
	Text    string         `json:"text"`
	Ratings map[string]int `json:"ratings,omitempty"`
}

// Controller walks one phase's word list, one item at a time.
// It is not safe for concurrent use; a Runner owns it.
type Controller struct {
	cfg         Config
	participant models.Participant
	items       []models.WordItem
	now         func() time.Time

	state     State
	index     int
	entry     time.Time
	remaining int
	elapsed   int
	unlocked  bool
	frozen    bool
	draft     Input
	nextAudio int
}

// NewController creates a controller that resumes at index start
func NewController(cfg Config, participant models.Participant, items []models.WordItem, start int, now func() time.Time) *Controller {
	if now == nil {
		now = time.Now
	}
	if start < 0 {
		start = 0
	}
	return &Controller{
		cfg:         cfg,
		participant: participant,
		items:       items,
		now:         now,
		state:       StateEntering,
		index:       start,
	}
}

// State returns the current lifecycle state
func (c *Controller) State() State {
	return c.state
}

// Index returns the position of the current item
func (c *Controller) Index() int {
	return c.index
}

// Remaining returns the seconds left on the current item
func (c *Controller) Remaining() int {
	return c.remaining
}

// CanAdvance reports whether a manual advance would be accepted now
func (c *Controller) CanAdvance() bool {
	return c.state == StateTicking && c.unlocked
}

// Enter shows the item at the current index, or finishes the phase when none remain
func (c *Controller) Enter() []Event {
	if c.index >= len(c.items) {
		c.state = StateTerminal
		return []Event{{Type: EventRedirect, Payload: RedirectPayload{URL: c.cfg.NextPath}}}
	}

	c.state = StateTicking
	c.entry = c.now()
	c.remaining = c.cfg.ItemSeconds
	c.elapsed = 0
	c.unlocked = c.cfg.UnlockAfter <= 0
	c.frozen = false
	c.draft = Input{}
	c.nextAudio = 0

	return []Event{{Type: EventItem, Payload: ItemPayload{
		Index:       c.index,
		Total:       len(c.items),
		Phase:       c.cfg.Phase,
		Round:       c.cfg.Round,
		Item:        c.items[c.index],
		Remaining:   c.remaining,
		CanAdvance:  c.unlocked,
		CaptureText: c.cfg.CaptureText,
		RatingKeys:  c.cfg.RatingKeys,
	}}}
}

// Tick advances the countdown by one second.
// timedOut is true when the item's time ran out and a timeout advance is due.
func (c *Controller) Tick() (events []Event, timedOut bool) {
	if c.state != StateTicking || c.frozen || !c.cfg.Timed() {
		return nil, false
	}

	c.elapsed++
	c.remaining--

	for c.nextAudio < len(c.cfg.AudioOffsets) && c.cfg.AudioOffsets[c.nextAudio] <= c.elapsed {
		if src := c.items[c.index].AudioPath; src != "" {
			events = append(events, Event{Type: EventAudio, Payload: AudioPayload{Src: src, Offset: c.cfg.AudioOffsets[c.nextAudio]}})
		}
		c.nextAudio++
	}

	if !c.unlocked && c.elapsed >= c.cfg.UnlockAfter {
		c.unlocked = true
		events = append(events, Event{Type: EventUnlock})
	}

	if c.remaining < 0 {
		c.remaining = 0
	}
	events = append(events, Event{Type: EventTick, Payload: TickPayload{Remaining: c.remaining, CanAdvance: c.unlocked}})
	return events, c.remaining == 0
}

// SetDraft records the latest input so a timeout can capture it
func (c *Controller) SetDraft(input Input) {
	if c.state == StateTicking {
		c.draft = input
	}
}

// BeginAdvance freezes the timer and builds the response for the current item.
// Only one advance per item may be in flight.
func (c *Controller) BeginAdvance(trigger models.Trigger, input *Input) (models.ResponseEvent, error) {
	switch c.state {
	case StateAdvancing:
		return models.ResponseEvent{}, ErrAdvanceInFlight
	case StateTicking:
	default:
		return models.ResponseEvent{}, ErrNotActive
	}
	if trigger == models.TriggerManual && !c.unlocked {
		return models.ResponseEvent{}, ErrLocked
	}
	if input == nil {
		input = &c.draft
	}
	if trigger == models.TriggerManual && !c.ratingsComplete(input.Ratings) {
		return models.ResponseEvent{}, ErrIncompleteRatings
	}

	exit := c.now()
	if exit.Before(c.entry) {
		exit = c.entry
	}
	item := c.items[c.index]
	event := models.ResponseEvent{
		UserID:    c.participant.ID,
		Group:     c.participant.Group,
		Word:      item.Word,
		Round:     c.cfg.Round,
		PageType:  string(c.cfg.Phase),
		EntryTime: c.entry,
		ExitTime:  exit,
		Duration:  models.DurationSeconds(c.entry, exit),
		Trigger:   trigger,
	}
	if c.cfg.CaptureText {
		answer := normalizeAnswer(input.Text)
		event.Response = &answer
	}
	if len(c.cfg.RatingKeys) > 0 && len(input.Ratings) > 0 {
		event.Ratings = make(map[string]int, len(input.Ratings))
		for _, key := range c.cfg.RatingKeys {
			if v, ok := input.Ratings[key]; ok {
				event.Ratings[key] = v
			}
		}
	}

	c.state = StateAdvancing
	c.frozen = true
	return event, nil
}

// CompleteAdvance applies the submission outcome.
// On failure the item stays, frozen, with the advance control re-enabled.
func (c *Controller) CompleteAdvance(err error) []Event {
	if c.state != StateAdvancing {
		return nil
	}
	if err != nil {
		c.state = StateTicking
		c.unlocked = true
		return []Event{{Type: EventNotice, Payload: NoticePayload{
			Message:    "Your answer could not be saved. Please try again.",
			CanAdvance: true,
		}}}
	}
	c.index++
	return c.Enter()
}

func (c *Controller) ratingsComplete(ratings map[string]int) bool {
	for _, key := range c.cfg.RatingKeys {
		if _, ok := ratings[key]; !ok {
			return false
		}
	}
	return true
}

// normalizeAnswer trims and NFC-composes typed text; IME input can arrive decomposed
func normalizeAnswer(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}
