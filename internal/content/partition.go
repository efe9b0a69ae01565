package content

import (
	"strings"

	"go.uber.org/zap"

	"vocabcue/internal/experiment"
	"vocabcue/internal/logging"
	"vocabcue/internal/models"
)

// Partition buckets records into rounds 1..3 for one group.
// Rows whose round is missing or outside that range are left out of every bucket.
// A word repeated inside a round keeps its first position and its last row's content.
func Partition(records []models.WordRecord, group string, logger *zap.Logger) map[int][]models.WordItem {
	logger = logging.OrNop(logger)
	group = strings.ToLower(strings.TrimSpace(group))
	rounds := make(map[int][]models.WordItem, experiment.Rounds)
	positions := make(map[int]map[string]int, experiment.Rounds)
	excluded := 0

	for _, rec := range records {
		if rec.Round < 1 || rec.Round > experiment.Rounds {
			excluded++
			continue
		}
		item := resolveItem(rec, group, logger)

		seen := positions[rec.Round]
		if seen == nil {
			seen = make(map[string]int)
			positions[rec.Round] = seen
		}
		key := strings.ToLower(item.Word)
		if at, ok := seen[key]; ok {
			rounds[rec.Round][at] = item
			continue
		}
		seen[key] = len(rounds[rec.Round])
		rounds[rec.Round] = append(rounds[rec.Round], item)
	}
	if excluded > 0 {
		logger.Info("Rows outside rounds 1-3 excluded", zap.String("group", group), zap.Int("rows", excluded))
	}
	return rounds
}

func resolveItem(rec models.WordRecord, group string, logger *zap.Logger) models.WordItem {
	cues := rec.CueFor(group)
	item := models.WordItem{
		Word:          rec.Word,
		Meaning:       rec.Meaning,
		Round:         rec.Round,
		AudioPath:     rec.AudioPath,
		Phonetic:      rec.Phonetic,
		Pronunciation: rec.Pronunciation,
		VerbalCue:     cues.VerbalCue,
	}

	spans, err := ParseKeywordIndex(cues.KeywordRefined)
	if err != nil {
		logger.Warn("Malformed keyword index, rendering without underline",
			zap.String("word", rec.Word),
			zap.String("group", group),
			zap.String("cell", cues.KeywordRefined),
			zap.Error(experiment.Wrap(experiment.ErrCueData, "keyword index", err)))
	}
	item.KeywordSpans = clampSpans(spans, rec.Word)
	item.Keyword = keywordLabels(item.KeywordSpans)

	segments, err := ParseVerbalCue(cues.VerbalCue)
	if err != nil {
		logger.Warn("Verbal cue has unterminated markup, kept as plain text",
			zap.String("word", rec.Word),
			zap.String("group", group),
			zap.Error(experiment.Wrap(experiment.ErrCueData, "verbal cue", err)))
	}
	item.CueSegments = segments
	return item
}

// clampSpans drops spans that run past the end of the word
func clampSpans(spans []models.KeywordSpan, word string) []models.KeywordSpan {
	length := len([]rune(word))
	kept := make([]models.KeywordSpan, 0, len(spans))
	for _, span := range spans {
		if span.End > length {
			continue
		}
		kept = append(kept, span)
	}
	return kept
}

func keywordLabels(spans []models.KeywordSpan) string {
	labels := make([]string, 0, len(spans))
	for _, span := range spans {
		labels = append(labels, span.Label)
	}
	return strings.Join(labels, ", ")
}
