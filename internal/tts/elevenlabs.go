package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const elevenLabsAPIURL = "https://api.elevenlabs.io/v1/text-to-speech"

// elevenLabsVoices maps the public voice names onto ElevenLabs premade voices.
var elevenLabsVoices = map[Voice]string{
	VoiceAlloy:   "21m00Tcm4TlvDq8ikWAM", // Rachel
	VoiceEcho:    "ErXwobaYiN019PkySvjV", // Antoni
	VoiceFable:   "MF3mGyEYCl7XYWbV9V6O", // Elli
	VoiceOnyx:    "pNInz6obpgDQGcFmaJgB", // Adam
	VoiceNova:    "EXAVITQu4vr4xnSDxMaL", // Sarah
	VoiceShimmer: "9BWtsMINqrJLrRacOk9x", // Aria
}

// ElevenLabsClient implements Synthesizer using ElevenLabs' API.
type ElevenLabsClient struct {
	apiKey     string
	baseURL    string
	modelID    string
	voiceIDs   map[Voice]string
	stability  float64
	similarity float64
	chunkSize  int
	httpClient *http.Client
}

// ElevenLabsConfig holds configuration for the ElevenLabs client.
type ElevenLabsConfig struct {
	APIKey     string
	BaseURL    string           // defaults to the public API
	ModelID    string           // e.g., "eleven_flash_v2_5" for low latency
	VoiceIDs   map[Voice]string // overrides for the built-in voice mapping
	Stability  float64          // 0.0-1.0, -1 for default (0.5)
	Similarity float64          // 0.0-1.0, -1 for default (0.75)
	ChunkSize  int
	HTTPClient *http.Client
}

// NewElevenLabsClient creates a new ElevenLabs client.
func NewElevenLabsClient(cfg ElevenLabsConfig) *ElevenLabsClient {
	modelID := cfg.ModelID
	if modelID == "" {
		modelID = "eleven_flash_v2_5"
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = elevenLabsAPIURL
	}
	stability := cfg.Stability
	if stability < 0 {
		stability = 0.5
	}
	similarity := cfg.Similarity
	if similarity < 0 {
		similarity = 0.75
	}
	voiceIDs := make(map[Voice]string, len(elevenLabsVoices))
	for v, id := range elevenLabsVoices {
		voiceIDs[v] = id
	}
	for v, id := range cfg.VoiceIDs {
		voiceIDs[v] = id
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &ElevenLabsClient{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		modelID:    modelID,
		voiceIDs:   voiceIDs,
		stability:  stability,
		similarity: similarity,
		chunkSize:  cfg.ChunkSize,
		httpClient: httpClient,
	}
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

func (c *ElevenLabsClient) do(ctx context.Context, path, text string, voice Voice) (*http.Response, error) {
	if voice == "" {
		voice = DefaultVoice
	}
	voiceID, ok := c.voiceIDs[voice]
	if !ok {
		return nil, fmt.Errorf("no ElevenLabs voice for %q", voice)
	}
	url := fmt.Sprintf("%s/%s%s?output_format=pcm_24000", c.baseURL, voiceID, path)

	body, err := json.Marshal(ttsRequest{
		Text:    text,
		ModelID: c.modelID,
		VoiceSettings: voiceSettings{
			Stability:       c.stability,
			SimilarityBoost: c.similarity,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("ElevenLabs API error: %s - %s", resp.Status, string(respBody))
	}
	return resp, nil
}

// Synthesize converts text to speech and returns 24kHz PCM audio.
func (c *ElevenLabsClient) Synthesize(ctx context.Context, text string, voice Voice) ([]byte, error) {
	resp, err := c.do(ctx, "", text, voice)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// SynthesizeStream converts text to speech and streams audio chunks.
func (c *ElevenLabsClient) SynthesizeStream(ctx context.Context, text string, voice Voice) (Stream, error) {
	resp, err := c.do(ctx, "/stream", text, voice)
	if err != nil {
		return nil, err
	}
	return newBodyStream(resp.Body, c.chunkSize), nil
}
