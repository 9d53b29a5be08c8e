package stt

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
)

// OpenAIConfig holds configuration for the OpenAI transcription client.
type OpenAIConfig struct {
	Model    string // e.g. "gpt-4o-mini-transcribe"
	Language string // optional ISO-639-1 hint, overridden by WithLanguage
}

// OpenAITranscriber implements Transcriber using the OpenAI audio
// transcription API.
type OpenAITranscriber struct {
	client   openai.Client
	model    string
	language string
}

// NewOpenAITranscriber creates a transcriber on top of a configured OpenAI client.
func NewOpenAITranscriber(client openai.Client, cfg OpenAIConfig) *OpenAITranscriber {
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini-transcribe"
	}
	return &OpenAITranscriber{
		client:   client,
		model:    model,
		language: cfg.Language,
	}
}

// Transcribe uploads the utterance and returns the recognized text.
func (t *OpenAITranscriber) Transcribe(ctx context.Context, audio []byte, format Format) (string, error) {
	if format == "" {
		format = DefaultFormat
	}
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(audio), "audio."+string(format), format.ContentType()),
		Model: openai.AudioModel(t.model),
	}
	lang := LanguageFrom(ctx)
	if lang == "" {
		lang = t.language
	}
	if lang != "" {
		params.Language = openai.String(lang)
	}

	res, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai transcription: %w", err)
	}
	return strings.TrimSpace(res.Text), nil
}
