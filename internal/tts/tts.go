package tts

import (
	"context"
	"fmt"
	"io"
)

// Voice is one of the synthesis voices exposed to clients.
type Voice string

const (
	VoiceAlloy   Voice = "alloy"
	VoiceEcho    Voice = "echo"
	VoiceFable   Voice = "fable"
	VoiceOnyx    Voice = "onyx"
	VoiceNova    Voice = "nova"
	VoiceShimmer Voice = "shimmer"
)

// DefaultVoice is used when a request does not name a voice.
const DefaultVoice = VoiceAlloy

// Voices lists every supported voice in display order.
var Voices = []Voice{VoiceAlloy, VoiceEcho, VoiceFable, VoiceOnyx, VoiceNova, VoiceShimmer}

// ParseVoice validates s against the supported voices. Empty input yields
// DefaultVoice.
func ParseVoice(s string) (Voice, error) {
	if s == "" {
		return DefaultVoice, nil
	}
	for _, v := range Voices {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("unsupported voice %q", s)
}

// Stream yields audio chunks of one synthesis in provider order.
// Next returns io.EOF after the last chunk.
type Stream interface {
	Next() ([]byte, error)
	Close() error
}

// Synthesizer defines the interface for text-to-speech providers. Audio is
// 16-bit little-endian mono PCM at SampleRate.
type Synthesizer interface {
	// Synthesize converts text to speech and returns the whole clip.
	Synthesize(ctx context.Context, text string, voice Voice) ([]byte, error)

	// SynthesizeStream starts synthesis and returns as soon as the provider
	// accepted the request. Chunks are pulled with Stream.Next.
	SynthesizeStream(ctx context.Context, text string, voice Voice) (Stream, error)
}

// SampleRate of the PCM produced by every Synthesizer in this package.
const SampleRate = 24000

// bodyStream reads a streaming HTTP response body in fixed-size chunks.
type bodyStream struct {
	body      io.ReadCloser
	chunkSize int
	done      bool
}

func newBodyStream(body io.ReadCloser, chunkSize int) *bodyStream {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &bodyStream{body: body, chunkSize: chunkSize}
}

// defaultChunkSize is 100ms of 24kHz 16-bit mono audio.
const defaultChunkSize = 4800

func (s *bodyStream) Next() ([]byte, error) {
	if s.done {
		return nil, io.EOF
	}
	buf := make([]byte, s.chunkSize)
	n, err := io.ReadFull(s.body, buf)
	switch {
	case err == io.EOF:
		s.done = true
		return nil, io.EOF
	case err == io.ErrUnexpectedEOF:
		s.done = true
		return buf[:n], nil
	case err != nil:
		s.done = true
		return nil, err
	}
	return buf, nil
}

func (s *bodyStream) Close() error {
	s.done = true
	return s.body.Close()
}
