// Package segment splits a stream of text tokens into complete sentences as
// they become available. Boundaries follow Unicode sentence segmentation
// (UAX #29), with per-language abbreviation handling for the locales listed in
// abbreviations.
package segment

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/clipperhouse/uax29/v2/sentences"
	"golang.org/x/text/language"
)

// Sentence is one complete sentence extracted from the token stream.
// Seq starts at 0 and increases by one per emitted sentence.
type Sentence struct {
	Seq  int
	Text string
}

// Segmenter accumulates streamed text and emits sentences once a boundary
// is confirmed by following text. It is not safe for concurrent use.
type Segmenter struct {
	locale language.Tag
	abbrev abbrevList
	buf    string
	next   int
}

// New returns a Segmenter for the given BCP 47 locale. A malformed locale is
// treated as undetermined, which resolves to the most likely language (en).
// Languages without an abbreviation list use plain Unicode rules.
func New(locale string) *Segmenter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.Und
	}
	return &Segmenter{
		locale: tag,
		abbrev: abbreviationsFor(tag),
	}
}

// Locale reports the parsed locale tag.
func (s *Segmenter) Locale() language.Tag {
	return s.locale
}

// Feed appends token to the buffer and returns every sentence that is now
// known to be complete. The trailing, possibly unfinished span stays buffered.
func (s *Segmenter) Feed(token string) []Sentence {
	if token == "" {
		return nil
	}
	s.buf += token

	spans := s.split(s.buf)
	if len(spans) < 2 {
		return nil
	}
	s.buf = spans[len(spans)-1]

	var out []Sentence
	for _, span := range spans[:len(spans)-1] {
		if sent, ok := s.emit(span); ok {
			out = append(out, sent)
		}
	}
	return out
}

// Flush returns whatever remains in the buffer as a final sentence. The
// buffer is cleared, so a second call returns false.
func (s *Segmenter) Flush() (Sentence, bool) {
	rest := s.buf
	s.buf = ""
	return s.emit(rest)
}

// Reset drops buffered text and restarts sequence numbering at 0.
func (s *Segmenter) Reset() {
	s.buf = ""
	s.next = 0
}

// Pending returns the buffered text that has not been emitted yet.
func (s *Segmenter) Pending() string {
	return s.buf
}

func (s *Segmenter) emit(span string) (Sentence, bool) {
	text := strings.TrimSpace(span)
	if text == "" {
		return Sentence{}, false
	}
	sent := Sentence{Seq: s.next, Text: text}
	s.next++
	return sent, true
}

// split segments text into sentence spans, joining a span with its successor
// when it ends in a known abbreviation.
func (s *Segmenter) split(text string) []string {
	var raw []string
	it := sentences.FromString(text)
	for it.Next() {
		raw = append(raw, it.Value())
	}

	var spans []string
	pending := ""
	for i, r := range raw {
		pending += r
		if i+1 < len(raw) && s.continues(pending, raw[i+1]) {
			continue
		}
		spans = append(spans, pending)
		pending = ""
	}
	return spans
}

// continues reports whether span ends in an abbreviation that next carries on.
func (s *Segmenter) continues(span, next string) bool {
	tail := " " + strings.ToLower(strings.TrimSpace(span))
	if endsWithAny(tail, s.abbrev.always) {
		return true
	}
	if !endsWithAny(tail, s.abbrev.medial) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(strings.TrimSpace(next))
	return unicode.IsLower(r) || unicode.IsDigit(r)
}

func endsWithAny(tail string, abbrev []string) bool {
	for _, a := range abbrev {
		if strings.HasSuffix(tail, " "+a) {
			return true
		}
	}
	return false
}
