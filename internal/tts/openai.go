package tts

import (
	"context"
	"fmt"
	"io"

	"github.com/openai/openai-go"
)

// OpenAIConfig holds configuration for the OpenAI speech client.
type OpenAIConfig struct {
	Model     string // e.g. "gpt-4o-mini-tts"
	ChunkSize int    // bytes per streamed chunk, defaults to 100ms of audio
}

// OpenAIClient implements Synthesizer using the OpenAI audio speech API with
// raw PCM output.
type OpenAIClient struct {
	client    openai.Client
	model     string
	chunkSize int
}

// NewOpenAIClient creates a speech client on top of a configured OpenAI client.
func NewOpenAIClient(client openai.Client, cfg OpenAIConfig) *OpenAIClient {
	model := cfg.Model
	if model == "" {
		model = openai.SpeechModelGPT4oMiniTTS
	}
	return &OpenAIClient{
		client:    client,
		model:     model,
		chunkSize: cfg.ChunkSize,
	}
}

func (c *OpenAIClient) params(text string, voice Voice) openai.AudioSpeechNewParams {
	if voice == "" {
		voice = DefaultVoice
	}
	return openai.AudioSpeechNewParams{
		Input:          text,
		Model:          c.model,
		Voice:          openai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatPCM,
	}
}

// Synthesize converts text to speech and returns the complete PCM clip.
func (c *OpenAIClient) Synthesize(ctx context.Context, text string, voice Voice) ([]byte, error) {
	resp, err := c.client.Audio.Speech.New(ctx, c.params(text, voice))
	if err != nil {
		return nil, fmt.Errorf("openai speech: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai speech: read body: %w", err)
	}
	return audio, nil
}

// SynthesizeStream starts synthesis and streams the response body as it arrives.
func (c *OpenAIClient) SynthesizeStream(ctx context.Context, text string, voice Voice) (Stream, error) {
	resp, err := c.client.Audio.Speech.New(ctx, c.params(text, voice))
	if err != nil {
		return nil, fmt.Errorf("openai speech: %w", err)
	}
	return newBodyStream(resp.Body, c.chunkSize), nil
}
