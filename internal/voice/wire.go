package voice

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/lukasbauer/kaskada/internal/sse"
)

// Wire type names, shared with the browser client.
const (
	TypeUserTranscript = "user_transcript"
	TypeSentence       = "sentence"
	TypeAudio          = "audio"
	TypeTranscript     = "transcript"
	TypeDone           = "done"
	TypeError          = "error"
)

type textFrame struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

type sentenceFrame struct {
	Type string `json:"type"`
	Seq  int    `json:"seq"`
	Text string `json:"text"`
}

// audioFrame carries PCM as standard base64 ([]byte marshals that way).
type audioFrame struct {
	Type string `json:"type"`
	Seq  int    `json:"seq"`
	Data []byte `json:"data"`
}

type errorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// MarshalEvent encodes ev as a single-line JSON object.
func MarshalEvent(ev Event) ([]byte, error) {
	switch e := ev.(type) {
	case UserTranscript:
		return json.Marshal(textFrame{Type: TypeUserTranscript, Data: e.Text})
	case Sentence:
		return json.Marshal(sentenceFrame{Type: TypeSentence, Seq: e.Seq, Text: e.Text})
	case Audio:
		return json.Marshal(audioFrame{Type: TypeAudio, Seq: e.Seq, Data: e.Data})
	case Transcript:
		return json.Marshal(textFrame{Type: TypeTranscript, Data: e.Text})
	case Done:
		return json.Marshal(struct {
			Type string `json:"type"`
		}{TypeDone})
	case Error:
		return json.Marshal(errorFrame{Type: TypeError, Error: e.Message})
	}
	return nil, fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
}

// UnmarshalEvent decodes one wire record. Records that are not valid JSON
// wrap ErrMalformedFrame; valid records of an unknown type wrap
// ErrUnknownEvent.
func UnmarshalEvent(data []byte) (Event, error) {
	var f struct {
		Type  string          `json:"type"`
		Seq   *int            `json:"seq"`
		Text  string          `json:"text"`
		Data  json.RawMessage `json:"data"`
		Error string          `json:"error"`
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}

	switch f.Type {
	case TypeUserTranscript, TypeTranscript:
		var text string
		if len(f.Data) > 0 {
			if err := json.Unmarshal(f.Data, &text); err != nil {
				return nil, fmt.Errorf("%w: data: %w", ErrMalformedFrame, err)
			}
		}
		if f.Type == TypeUserTranscript {
			return UserTranscript{Text: text}, nil
		}
		return Transcript{Text: text}, nil
	case TypeSentence:
		if f.Seq == nil {
			return nil, fmt.Errorf("%w: sentence without seq", ErrMalformedFrame)
		}
		return Sentence{Seq: *f.Seq, Text: f.Text}, nil
	case TypeAudio:
		if f.Seq == nil {
			return nil, fmt.Errorf("%w: audio without seq", ErrMalformedFrame)
		}
		var pcm []byte
		if err := json.Unmarshal(f.Data, &pcm); err != nil {
			return nil, fmt.Errorf("%w: audio data: %w", ErrMalformedFrame, err)
		}
		return Audio{Seq: *f.Seq, Data: pcm}, nil
	case TypeDone:
		return Done{}, nil
	case TypeError:
		return Error{Message: f.Error}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, f.Type)
}

// ReadEvents decodes an event stream. Records that fail to decode are
// yielded as errors wrapping ErrMalformedFrame or ErrUnknownEvent and
// iteration continues; a read failure is yielded last. Iteration ends after
// a Done or Error event or at the end of the stream.
func ReadEvents(r io.Reader) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		sr := sse.NewReader(r)
		for {
			data, err := sr.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}

			ev, err := UnmarshalEvent(data)
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			if !yield(ev, nil) {
				return
			}
			switch ev.(type) {
			case Done, Error:
				return
			}
		}
	}
}
