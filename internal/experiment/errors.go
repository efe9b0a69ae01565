package experiment

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrContentLoad marks failures fetching or parsing the word CSV. Blocks entry to every phase.
	ErrContentLoad = errors.New("content load failed")
	// ErrUnknownGroup marks a link code that maps to no group.
	ErrUnknownGroup = errors.New("unknown group code")
	// ErrSubmission marks a response that did not reach the API. The participant may retry.
	ErrSubmission = errors.New("submission failed")
	// ErrCueData marks a malformed cue cell. A default is substituted and the flow continues.
	ErrCueData = errors.New("malformed cue data")
)

// Wrap tags err with a marker and a short operation description
func Wrap(marker error, operation string, err error) error {
	operation = strings.TrimSpace(operation)
	if operation == "" {
		operation = "experiment"
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, operation, err)
	}
	return fmt.Errorf("%w: %s", marker, operation)
}

// Recoverable reports whether the participant can continue after err
func Recoverable(err error) bool {
	return errors.Is(err, ErrSubmission) || errors.Is(err, ErrCueData)
}
