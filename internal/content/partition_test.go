package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"vocabcue/internal/models"
)

func record(word string, round int, keyword, cue string) models.WordRecord {
	return models.WordRecord{
		Word:    word,
		Meaning: word + "-ko",
		Round:   round,
		Cues: map[string]models.CueFields{
			"keyword": {KeywordRefined: keyword, VerbalCue: cue},
		},
	}
}

func TestPartitionBucketsByRound(t *testing.T) {
	records := []models.WordRecord{
		record("one", 1, "", ""),
		record("two", 2, "", ""),
		record("three", 3, "", ""),
		record("also-one", 1, "", ""),
		record("zero", 0, "", ""),
		record("four", 4, "", ""),
		record("negative", -1, "", ""),
	}

	rounds := Partition(records, "keyword", zap.NewNop())

	assert.Len(t, rounds, 3)
	assert.Equal(t, []string{"one", "also-one"}, words(rounds[1]))
	assert.Equal(t, []string{"two"}, words(rounds[2]))
	assert.Equal(t, []string{"three"}, words(rounds[3]))

	// every in-range row lands in exactly its own bucket, out-of-range rows in none
	for _, rec := range records {
		count := 0
		for round, items := range rounds {
			for _, item := range items {
				if item.Word == rec.Word {
					count++
					assert.Equal(t, rec.Round, round)
				}
			}
		}
		if rec.Round >= 1 && rec.Round <= 3 {
			assert.Equal(t, 1, count, rec.Word)
		} else {
			assert.Equal(t, 0, count, rec.Word)
		}
	}
}

func TestPartitionLastRowWins(t *testing.T) {
	records := []models.WordRecord{
		record("banana", 1, "", "first"),
		record("apple", 1, "", ""),
		record("Banana", 1, "", "second"),
	}

	rounds := Partition(records, "keyword", zap.NewNop())
	require.Len(t, rounds[1], 2)
	assert.Equal(t, "Banana", rounds[1][0].Word)
	assert.Equal(t, "second", rounds[1][0].VerbalCue)
	assert.Equal(t, "apple", rounds[1][1].Word)
}

func TestPartitionSelectsGroupFields(t *testing.T) {
	rec := record("banana", 1, "[{'ban': '0:3'}]", "A {ban}")
	rec.Cues["verbal"] = models.CueFields{VerbalCue: "Monkeys /love/ it"}

	keyword := Partition([]models.WordRecord{rec}, "Keyword", zap.NewNop())[1][0]
	assert.Equal(t, []models.KeywordSpan{{Label: "ban", Start: 0, End: 3}}, keyword.KeywordSpans)
	assert.Equal(t, "ban", keyword.Keyword)
	assert.Equal(t, "A {ban}", keyword.VerbalCue)
	assert.Len(t, keyword.CueSegments, 2)

	verbal := Partition([]models.WordRecord{rec}, "verbal", zap.NewNop())[1][0]
	assert.Empty(t, verbal.KeywordSpans)
	assert.Equal(t, "Monkeys /love/ it", verbal.VerbalCue)
	assert.Len(t, verbal.CueSegments, 3)

	control := Partition([]models.WordRecord{rec}, "control", zap.NewNop())[1][0]
	assert.Empty(t, control.KeywordSpans)
	assert.Empty(t, control.CueSegments)
}

func TestPartitionMalformedCueIsLoggedNotFatal(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	records := []models.WordRecord{record("banana", 1, "[{'ban: '0:3'}]", "")}

	rounds := Partition(records, "keyword", zap.New(core))

	require.Len(t, rounds[1], 1)
	assert.Empty(t, rounds[1][0].KeywordSpans)
	assert.Equal(t, 1, logs.FilterMessage("Malformed keyword index, rendering without underline").Len())
}

func TestPartitionDropsSpansPastWordEnd(t *testing.T) {
	records := []models.WordRecord{record("cat", 1, "[{'ca': '0:2'}, {'cats': '0:4'}]", "")}
	rounds := Partition(records, "keyword", zap.NewNop())
	assert.Equal(t, []models.KeywordSpan{{Label: "ca", Start: 0, End: 2}}, rounds[1][0].KeywordSpans)
}

func words(items []models.WordItem) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Word)
	}
	return out
}
