package voice

import "errors"

var (
	// ErrTranscription wraps failures of the speech-to-text call.
	ErrTranscription = errors.New("transcription failed")
	// ErrCompletion wraps failures to open or read the completion stream.
	ErrCompletion = errors.New("completion stream failed")
	// ErrSynthesisStart wraps failures to start synthesis of a sentence.
	ErrSynthesisStart = errors.New("speech synthesis failed to start")
	// ErrSynthesisChunk wraps failures while reading synthesized audio.
	ErrSynthesisChunk = errors.New("speech synthesis stream failed")
	// ErrSynthesisTimeout is reported when a sentence produced no audio
	// within the configured chunk timeout.
	ErrSynthesisTimeout = errors.New("speech synthesis timed out")
	// ErrMalformedFrame marks a wire record that could not be decoded.
	ErrMalformedFrame = errors.New("malformed event frame")
	// ErrUnknownEvent marks a well-formed record of an unknown type.
	ErrUnknownEvent = errors.New("unknown event type")
)

// ErrAbandoned is reported to observers when the consumer stopped reading
// events before the turn ended.
var ErrAbandoned = errors.New("turn abandoned by consumer")
