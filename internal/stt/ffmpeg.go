package stt

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// ffmpegPath is the binary used for container conversion.
var ffmpegPath = "ffmpeg"

// ConvertWebmToWav transcodes a WebM/Opus recording into 16kHz mono
// 16-bit PCM WAV by piping it through ffmpeg.
func ConvertWebmToWav(ctx context.Context, webm []byte) ([]byte, error) {
	// ffmpeg -i pipe:0 -f wav -ar 16000 -ac 1 -acodec pcm_s16le pipe:1
	cmd := exec.CommandContext(ctx, ffmpegPath,
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-f", "wav",
		"-ar", "16000",
		"-ac", "1",
		"-acodec", "pcm_s16le",
		"pipe:1",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(webm)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// Converting wraps a Transcriber so WebM input is converted to WAV first.
type Converting struct {
	Next    Transcriber
	Convert func(ctx context.Context, webm []byte) ([]byte, error)
}

// NewConverting returns a Converting transcriber backed by ffmpeg.
func NewConverting(next Transcriber) *Converting {
	return &Converting{Next: next, Convert: ConvertWebmToWav}
}

func (c *Converting) Transcribe(ctx context.Context, audio []byte, format Format) (string, error) {
	if format == FormatWebM {
		wav, err := c.Convert(ctx, audio)
		if err != nil {
			return "", fmt.Errorf("convert webm: %w", err)
		}
		audio, format = wav, FormatWAV
	}
	return c.Next.Transcribe(ctx, audio, format)
}
