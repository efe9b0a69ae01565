package content

import (
	"fmt"
	"strings"

	"vocabcue/internal/models"
)

// MarkupError lists verbal cue markers that were never closed.
// The text they covered is still returned as plain segments.
type MarkupError struct {
	Offsets []int
}

func (e *MarkupError) Error() string {
	return fmt.Sprintf("verbal cue: %d unterminated marker(s) at offsets %v", len(e.Offsets), e.Offsets)
}

// ParseVerbalCue splits cue text into styled segments: /text/ is emphasis, {text} is bold.
// Spans do not nest and must be non-empty; anything else stays plain.
func ParseVerbalCue(raw string) ([]models.CueSegment, error) {
	src := []rune(raw)
	segments := []models.CueSegment{}
	var plain strings.Builder
	var unterminated []int

	flushPlain := func() {
		if plain.Len() > 0 {
			segments = append(segments, models.CueSegment{Text: plain.String(), Style: models.CueStylePlain})
			plain.Reset()
		}
	}

	for i := 0; i < len(src); i++ {
		var closer rune
		var style models.CueStyle
		switch src[i] {
		case '/':
			closer, style = '/', models.CueStyleEmphasis
		case '{':
			closer, style = '}', models.CueStyleBold
		default:
			plain.WriteRune(src[i])
			continue
		}

		end := indexRune(src, i+1, closer)
		if end < 0 {
			unterminated = append(unterminated, i)
			plain.WriteRune(src[i])
			continue
		}
		if end == i+1 {
			// empty span such as "//" or "{}" is literal text
			plain.WriteString(string(src[i : end+1]))
			i = end
			continue
		}
		flushPlain()
		segments = append(segments, models.CueSegment{Text: string(src[i+1 : end]), Style: style})
		i = end
	}
	flushPlain()

	if len(unterminated) > 0 {
		return segments, &MarkupError{Offsets: unterminated}
	}
	return segments, nil
}

func indexRune(src []rune, from int, r rune) int {
	for i := from; i < len(src); i++ {
		if src[i] == r {
			return i
		}
	}
	return -1
}
