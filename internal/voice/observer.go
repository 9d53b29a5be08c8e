package voice

import "time"

// Stats summarizes a finished turn.
type Stats struct {
	UserText        string
	ReplyText       string
	Tokens          int
	Sentences       int
	SpokenChars     int
	AudioChunks     int
	AudioBytes      int
	FailedSentences int
	FirstToken      time.Duration // since the turn started, 0 if none
	FirstAudio      time.Duration // since the turn started, 0 if none
	Duration        time.Duration
}

// Observer receives progress callbacks of a turn. All callbacks run on the
// goroutine that consumes the event sequence, never concurrently.
type Observer interface {
	Transcribed(text string, took time.Duration)
	FirstToken(after time.Duration)
	SentenceReady(seq int, text string)
	FirstAudio(seq int, after time.Duration)
	SynthesisFailed(seq int, err error)
	// Finished is called exactly once; err is nil for a completed turn.
	Finished(stats Stats, err error)
}

// NopObserver ignores every callback. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) Transcribed(string, time.Duration) {}
func (NopObserver) FirstToken(time.Duration)          {}
func (NopObserver) SentenceReady(int, string)         {}
func (NopObserver) FirstAudio(int, time.Duration)     {}
func (NopObserver) SynthesisFailed(int, error)        {}
func (NopObserver) Finished(Stats, error)             {}

type multiObserver []Observer

// Observers fans callbacks out to every non-nil observer in order.
func Observers(obs ...Observer) Observer {
	var m multiObserver
	for _, o := range obs {
		if o != nil {
			m = append(m, o)
		}
	}
	return m
}

func (m multiObserver) Transcribed(text string, took time.Duration) {
	for _, o := range m {
		o.Transcribed(text, took)
	}
}

func (m multiObserver) FirstToken(after time.Duration) {
	for _, o := range m {
		o.FirstToken(after)
	}
}

func (m multiObserver) SentenceReady(seq int, text string) {
	for _, o := range m {
		o.SentenceReady(seq, text)
	}
}

func (m multiObserver) FirstAudio(seq int, after time.Duration) {
	for _, o := range m {
		o.FirstAudio(seq, after)
	}
}

func (m multiObserver) SynthesisFailed(seq int, err error) {
	for _, o := range m {
		o.SynthesisFailed(seq, err)
	}
}

func (m multiObserver) Finished(stats Stats, err error) {
	for _, o := range m {
		o.Finished(stats, err)
	}
}
