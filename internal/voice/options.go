package voice

import (
	"time"

	"github.com/lukasbauer/kaskada/internal/llm"
	"github.com/lukasbauer/kaskada/internal/stt"
	"github.com/lukasbauer/kaskada/internal/tts"
)

const (
	DefaultTextModel   = "gpt-5"
	DefaultLocale      = "en"
	DefaultChunkBuffer = 100
)

// Options configures one voice turn. The zero value is usable.
type Options struct {
	// TurnID labels logs and traces of the turn.
	TurnID string

	Voice        tts.Voice
	InputFormat  stt.Format
	SystemPrompt string
	ChatHistory  []llm.Message
	TextModel    string
	Locale       string

	// MaxConcurrentSynthesis caps in-flight synthesis calls. 0 means no cap.
	MaxConcurrentSynthesis int
	// ChunkBuffer is the per-sentence audio buffer in chunks.
	ChunkBuffer int
	// ChunkTimeout bounds the wait for the next chunk of the sentence being
	// played. 0 disables the bound.
	ChunkTimeout time.Duration
	// AbortOnSynthesisError ends the turn with an Error event when a
	// sentence fails to synthesize instead of skipping that sentence.
	AbortOnSynthesisError bool

	Observer Observer
}

func (o Options) withDefaults() Options {
	if o.Voice == "" {
		o.Voice = tts.DefaultVoice
	}
	if o.InputFormat == "" {
		o.InputFormat = stt.DefaultFormat
	}
	if o.SystemPrompt == "" {
		o.SystemPrompt = llm.DefaultSystemPrompt
	}
	if o.TextModel == "" {
		o.TextModel = DefaultTextModel
	}
	if o.Locale == "" {
		o.Locale = DefaultLocale
	}
	if o.ChunkBuffer <= 0 {
		o.ChunkBuffer = DefaultChunkBuffer
	}
	if o.MaxConcurrentSynthesis < 0 {
		o.MaxConcurrentSynthesis = 0
	}
	if o.Observer == nil {
		o.Observer = NopObserver{}
	}
	return o
}
