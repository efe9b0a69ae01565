package content

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"vocabcue/internal/models"
)

// SyntaxError reports where a keyword index cell stopped parsing
type SyntaxError struct {
	Offset  int
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("keyword index: %s at offset %d", e.Message, e.Offset)
}

// ParseKeywordIndex parses a cell such as [{'abc': '0:3'}, {"de": "3:5"}].
//
//	list   = "[" [ object { "," object } ] "]"
//	object = "{" string ":" range "}"
//	range  = string holding "start:end"
//
// Strings may be single or double quoted. An empty cell yields no spans.
// On any error the returned list is empty.
func ParseKeywordIndex(raw string) ([]models.KeywordSpan, error) {
	if strings.TrimSpace(raw) == "" {
		return []models.KeywordSpan{}, nil
	}
	p := &keywordParser{src: []rune(raw)}
	spans, err := p.list()
	if err != nil {
		return []models.KeywordSpan{}, err
	}
	return spans, nil
}

type keywordParser struct {
	src []rune
	pos int
}

func (p *keywordParser) fail(format string, args ...any) error {
	return &SyntaxError{Offset: p.pos, Message: fmt.Sprintf(format, args...)}
}

func (p *keywordParser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(p.src[p.pos]) {
		p.pos++
	}
}

func (p *keywordParser) peek() (rune, bool) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0, false
	}
	return p.src[p.pos], true
}

func (p *keywordParser) expect(r rune) error {
	c, ok := p.peek()
	if !ok {
		return p.fail("expected %q, got end of input", r)
	}
	if c != r {
		return p.fail("expected %q, got %q", r, c)
	}
	p.pos++
	return nil
}

func (p *keywordParser) list() ([]models.KeywordSpan, error) {
	if err := p.expect('['); err != nil {
		return nil, err
	}
	spans := []models.KeywordSpan{}
	if c, ok := p.peek(); ok && c == ']' {
		p.pos++
		return spans, p.end()
	}
	for {
		span, err := p.object()
		if err != nil {
			return nil, err
		}
		spans = append(spans, span)

		c, ok := p.peek()
		if !ok {
			return nil, p.fail("unterminated list")
		}
		p.pos++
		switch c {
		case ',':
			continue
		case ']':
			return spans, p.end()
		default:
			p.pos--
			return nil, p.fail("expected ',' or ']', got %q", c)
		}
	}
}

func (p *keywordParser) end() error {
	if _, ok := p.peek(); ok {
		return p.fail("trailing characters")
	}
	return nil
}

func (p *keywordParser) object() (models.KeywordSpan, error) {
	if err := p.expect('{'); err != nil {
		return models.KeywordSpan{}, err
	}
	label, err := p.str()
	if err != nil {
		return models.KeywordSpan{}, err
	}
	if err := p.expect(':'); err != nil {
		return models.KeywordSpan{}, err
	}
	rangeOffset := p.pos
	value, err := p.str()
	if err != nil {
		return models.KeywordSpan{}, err
	}
	if err := p.expect('}'); err != nil {
		return models.KeywordSpan{}, err
	}

	start, end, err := parseRange(value)
	if err != nil {
		return models.KeywordSpan{}, &SyntaxError{Offset: rangeOffset, Message: err.Error()}
	}
	return models.KeywordSpan{Label: label, Start: start, End: end}, nil
}

func (p *keywordParser) str() (string, error) {
	quote, ok := p.peek()
	if !ok {
		return "", p.fail("expected string, got end of input")
	}
	if quote != '\'' && quote != '"' {
		return "", p.fail("expected string, got %q", quote)
	}
	p.pos++

	var b strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		p.pos++
		switch {
		case c == '\\' && p.pos < len(p.src):
			b.WriteRune(p.src[p.pos])
			p.pos++
		case c == quote:
			return b.String(), nil
		default:
			b.WriteRune(c)
		}
	}
	return "", p.fail("unterminated string")
}

func parseRange(value string) (int, int, error) {
	left, right, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok {
		return 0, 0, fmt.Errorf("range %q is not start:end", value)
	}
	start, err := strconv.Atoi(strings.TrimSpace(left))
	if err != nil {
		return 0, 0, fmt.Errorf("range %q has a bad start", value)
	}
	end, err := strconv.Atoi(strings.TrimSpace(right))
	if err != nil {
		return 0, 0, fmt.Errorf("range %q has a bad end", value)
	}
	if start < 0 || end < start {
		return 0, 0, fmt.Errorf("range %q is out of order", value)
	}
	return start, end, nil
}
