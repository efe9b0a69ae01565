package content

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"vocabcue/internal/models"
)

const (
	keywordSuffix = "_keyword_refined"
	verbalSuffix  = "_verbal_cue"
)

// ParseResult is the outcome of reading one CSV document
type ParseResult struct {
	Records []models.WordRecord
	Dropped int // malformed or short lines
	Minimal bool
}

// columns maps normalized header names to positions
type columns struct {
	index map[string]int
	width int
	// cue columns keyed by group
	keyword map[string]int
	verbal  map[string]int
}

// normalizeHeader trims and lowercases a header cell
func normalizeHeader(cell string) string {
	cell = strings.TrimPrefix(cell, "\ufeff")
	return strings.ToLower(strings.TrimSpace(cell))
}

func newColumns(header []string) columns {
	cols := columns{
		index:   make(map[string]int, len(header)),
		width:   len(header),
		keyword: make(map[string]int),
		verbal:  make(map[string]int),
	}
	for i, cell := range header {
		name := normalizeHeader(cell)
		if name == "" {
			continue
		}
		cols.index[name] = i
		switch {
		case strings.HasSuffix(name, keywordSuffix):
			cols.keyword[strings.TrimSuffix(name, keywordSuffix)] = i
		case strings.HasSuffix(name, verbalSuffix):
			cols.verbal[strings.TrimSuffix(name, verbalSuffix)] = i
		}
	}
	return cols
}

func (c columns) has(name string) bool {
	_, ok := c.index[name]
	return ok
}

func (c columns) get(record []string, name string) string {
	i, ok := c.index[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// Parse reads a header row followed by word rows.
// Both the wide experiment layout and the minimal english,korean layout are accepted.
func Parse(r io.Reader) (*ParseResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("csv has no header row")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	cols := newColumns(header)
	result := &ParseResult{}

	switch {
	case cols.has("word"):
	case cols.has("english") && cols.has("korean"):
		result.Minimal = true
	default:
		return nil, fmt.Errorf("csv header has neither a word column nor english,korean columns")
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				result.Dropped++
				continue
			}
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		if len(record) < cols.width || blank(record) {
			result.Dropped++
			continue
		}

		var rec models.WordRecord
		if result.Minimal {
			rec = models.WordRecord{
				Word:    cols.get(record, "english"),
				Meaning: cols.get(record, "korean"),
			}
		} else {
			rec = wideRecord(cols, record)
		}
		if rec.Word == "" {
			result.Dropped++
			continue
		}
		result.Records = append(result.Records, rec)
	}

	return result, nil
}

func wideRecord(cols columns, record []string) models.WordRecord {
	rec := models.WordRecord{
		Word:          cols.get(record, "word"),
		Meaning:       cols.get(record, "meaning"),
		Round:         parseRound(cols.get(record, "round")),
		AudioPath:     cols.get(record, "audio_path"),
		Phonetic:      cols.get(record, "phonetic"),
		Pronunciation: cols.get(record, "pronunciation"),
		Cues:          make(map[string]models.CueFields),
	}
	for group, i := range cols.keyword {
		fields := rec.Cues[group]
		fields.KeywordRefined = strings.TrimSpace(record[i])
		rec.Cues[group] = fields
	}
	for group, i := range cols.verbal {
		fields := rec.Cues[group]
		fields.VerbalCue = strings.TrimSpace(record[i])
		rec.Cues[group] = fields
	}
	return rec
}

// parseRound accepts "2" and "2.0"; anything else is round 0
func parseRound(cell string) int {
	if cell == "" {
		return 0
	}
	if n, err := strconv.Atoi(cell); err == nil {
		return n
	}
	f, err := strconv.ParseFloat(cell, 64)
	if err != nil || f != float64(int(f)) {
		return 0
	}
	return int(f)
}

func blank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
