package stage

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"vocabcue/internal/logging"
	"vocabcue/internal/models"
)

// Submitter sends one response event to the response API
type Submitter interface {
	PostResponse(ctx context.Context, event models.ResponseEvent) error
}

// ProgressFunc is called after a successful submission with the index of the next item
type ProgressFunc func(ctx context.Context, event models.ResponseEvent, next int)

// RunnerOptions tunes a Runner; zero values are replaced with defaults
type RunnerOptions struct {
	Interval   time.Duration
	Logger     *zap.Logger
	OnProgress ProgressFunc
}

type commandKind int

const (
	cmdAdvance commandKind = iota
	cmdDraft
)

type command struct {
	kind  commandKind
	input Input
}

// Runner owns a Controller, its ticker and its submissions.
// Every controller call happens on the Run goroutine.
type Runner struct {
	ctrl       *Controller
	submitter  Submitter
	onProgress ProgressFunc
	logger     *zap.Logger
	interval   time.Duration

	// pending is the event of the submission in flight
	pending models.ResponseEvent

	commands chan command
	results  chan error
	events   chan Event
	done     chan struct{}
}

// NewRunner wires a controller to a submitter
func NewRunner(ctrl *Controller, submitter Submitter, opts RunnerOptions) *Runner {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	return &Runner{
		ctrl:       ctrl,
		submitter:  submitter,
		onProgress: opts.OnProgress,
		logger:     logging.OrNop(opts.Logger),
		interval:   opts.Interval,
		commands:   make(chan command),
		results:    make(chan error),
		events:     make(chan Event, 16),
		done:       make(chan struct{}),
	}
}

// Events streams page events; it is closed when Run returns
func (r *Runner) Events() <-chan Event {
	return r.events
}

// Done is closed when Run returns
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// Advance asks for a manual advance with the given input
func (r *Runner) Advance(input Input) {
	r.send(command{kind: cmdAdvance, input: input})
}

// SetDraft updates the text a timeout advance would capture
func (r *Runner) SetDraft(input Input) {
	r.send(command{kind: cmdDraft, input: input})
}

func (r *Runner) send(cmd command) {
	select {
	case r.commands <- cmd:
	case <-r.done:
	}
}

// Run drives the stage until the list is exhausted or ctx is cancelled.
// Submissions still in flight when Run returns complete, but their outcome is discarded.
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.events)
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	if !r.emit(ctx, r.ctrl.Enter()) {
		return ctx.Err()
	}

	for r.ctrl.State() != StateTerminal {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			events, timedOut := r.ctrl.Tick()
			if !r.emit(ctx, events) {
				return ctx.Err()
			}
			if timedOut {
				if !r.advance(ctx, models.TriggerTimeout, nil) {
					return ctx.Err()
				}
			}

		case cmd := <-r.commands:
			switch cmd.kind {
			case cmdDraft:
				r.ctrl.SetDraft(cmd.input)
			case cmdAdvance:
				input := cmd.input
				if !r.advance(ctx, models.TriggerManual, &input) {
					return ctx.Err()
				}
			}

		case err := <-r.results:
			if !r.finish(ctx, err) {
				return ctx.Err()
			}
		}
	}
	return nil
}

func (r *Runner) advance(ctx context.Context, trigger models.Trigger, input *Input) bool {
	event, err := r.ctrl.BeginAdvance(trigger, input)
	switch {
	case errors.Is(err, ErrAdvanceInFlight), errors.Is(err, ErrNotActive):
		return true
	case errors.Is(err, ErrLocked):
		return r.emit(ctx, []Event{{Type: EventNotice, Payload: NoticePayload{Message: "Please wait before continuing.", CanAdvance: false}}})
	case errors.Is(err, ErrIncompleteRatings):
		return r.emit(ctx, []Event{{Type: EventNotice, Payload: NoticePayload{Message: "Please answer every question.", CanAdvance: true}}})
	case err != nil:
		r.logger.Error("Advance rejected", zap.Error(err))
		return true
	}

	r.logger.Debug("Submitting response",
		zap.String("participant", event.UserID),
		zap.String("word", event.Word),
		zap.String("phase", event.PageType),
		zap.String("trigger", string(event.Trigger)),
		zap.Int("duration", event.Duration))

	r.pending = event
	go func() {
		err := r.submitter.PostResponse(context.WithoutCancel(ctx), event)
		select {
		case r.results <- err:
		case <-r.done:
		}
	}()

	return r.emit(ctx, []Event{{Type: EventSubmitting}})
}

func (r *Runner) finish(ctx context.Context, err error) bool {
	event := r.pending
	if err != nil {
		r.logger.Warn("Response submission failed",
			zap.String("participant", event.UserID),
			zap.String("word", event.Word),
			zap.Error(err))
	}
	events := r.ctrl.CompleteAdvance(err)
	if err == nil && r.onProgress != nil {
		r.onProgress(ctx, event, r.ctrl.Index())
	}
	return r.emit(ctx, events)
}

func (r *Runner) emit(ctx context.Context, events []Event) bool {
	for _, ev := range events {
		select {
		case r.events <- ev:
		case <-ctx.Done():
			return false
		}
	}
	return true
}
