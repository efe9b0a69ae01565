package models

// WordRecord is one parsed row of the experiment content CSV
type WordRecord struct {
	Word          string
	Meaning       string
	Round         int // 0 when the row carries no usable round
	AudioPath     string
	Phonetic      string
	Pronunciation string
	Cues          map[string]CueFields // keyed by group name
}

// CueFields holds the group-specific cells of a row
type CueFields struct {
	KeywordRefined string
	VerbalCue      string
}

// CueFor returns the cue cells for a group, empty when the row has none
func (w WordRecord) CueFor(group string) CueFields {
	if w.Cues == nil {
		return CueFields{}
	}
	return w.Cues[group]
}

// KeywordSpan is a labeled rune range inside an English word, used for underlining
type KeywordSpan struct {
	Label string `json:"label"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// CueStyle is the emphasis applied to a verbal cue segment
type CueStyle string

const (
	CueStylePlain    CueStyle = "plain"
	CueStyleEmphasis CueStyle = "emphasis"
	CueStyleBold     CueStyle = "bold"
)

// CueSegment is one styled run of a verbal cue sentence
type CueSegment struct {
	Text  string   `json:"text"`
	Style CueStyle `json:"style"`
}

// WordItem is a word resolved for one group and one round
type WordItem struct {
	Word          string        `json:"word"`
	Meaning       string        `json:"meaning"`
	Round         int           `json:"round"`
	AudioPath     string        `json:"audio_path,omitempty"`
	Phonetic      string        `json:"phonetic,omitempty"`
	Pronunciation string        `json:"pronunciation,omitempty"`
	Keyword       string        `json:"keyword,omitempty"`
	KeywordSpans  []KeywordSpan `json:"keyword_spans"`
	VerbalCue     string        `json:"verbal_cue,omitempty"`
	CueSegments   []CueSegment  `json:"cue_segments"`
}
