package stt

import (
	"context"
	"fmt"

	"golang.org/x/text/language"
)

// Format identifies the container of an uploaded utterance.
type Format string

const (
	FormatWAV  Format = "wav"
	FormatMP3  Format = "mp3"
	FormatWebM Format = "webm"
)

// DefaultFormat is assumed when a request does not name one.
const DefaultFormat = FormatWAV

// ParseFormat validates s. Empty input yields DefaultFormat.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "":
		return DefaultFormat, nil
	case FormatWAV, FormatMP3, FormatWebM:
		return Format(s), nil
	}
	return "", fmt.Errorf("unsupported audio format %q", s)
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatMP3:
		return "audio/mpeg"
	case FormatWebM:
		return "audio/webm"
	default:
		return "audio/wav"
	}
}

// Transcriber converts one recorded utterance to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, format Format) (string, error)
}

type languageKey struct{}

// WithLanguage attaches an ISO-639-1 language hint for the transcription made
// with ctx. Without a hint the providers detect the language themselves.
func WithLanguage(ctx context.Context, lang string) context.Context {
	if lang == "" {
		return ctx
	}
	return context.WithValue(ctx, languageKey{}, lang)
}

// LanguageFrom returns the hint set by WithLanguage, or "".
func LanguageFrom(ctx context.Context) string {
	lang, _ := ctx.Value(languageKey{}).(string)
	return lang
}

// LanguageHint reduces a locale like "de-AT" to the ISO-639-1 code the
// providers take. Malformed or undetermined locales give no hint.
func LanguageHint(locale string) string {
	tag, err := language.Parse(locale)
	if err != nil || tag == language.Und {
		return ""
	}
	base, conf := tag.Base()
	if conf == language.No {
		return ""
	}
	return base.String()
}
