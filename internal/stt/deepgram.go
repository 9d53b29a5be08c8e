package stt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const deepgramWSURL = "wss://api.deepgram.com/v1/listen"

// deepgramFrameSize bounds a single binary websocket message.
const deepgramFrameSize = 8 * 1024

// DeepgramConfig holds configuration for the Deepgram transcriber.
type DeepgramConfig struct {
	APIKey    string
	BaseURL   string // defaults to the public streaming endpoint
	Model     string // e.g., "nova-3"
	Language  string // e.g., "en"; overridden by WithLanguage
	Punctuate bool
	// ReadTimeout bounds the wait for each server message.
	ReadTimeout time.Duration
}

// DeepgramTranscriber implements Transcriber over Deepgram's live websocket
// API. The whole utterance is streamed in frames, the stream is closed, and
// final results are joined in arrival order.
type DeepgramTranscriber struct {
	cfg    DeepgramConfig
	dialer *websocket.Dialer
}

// deepgramResponse represents a Deepgram WebSocket response.
type deepgramResponse struct {
	Type    string `json:"type"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
	IsFinal     bool `json:"is_final"`
	SpeechFinal bool `json:"speech_final"`
}

// NewDeepgramTranscriber creates a Deepgram transcriber.
func NewDeepgramTranscriber(cfg DeepgramConfig) *DeepgramTranscriber {
	if cfg.BaseURL == "" {
		cfg.BaseURL = deepgramWSURL
	}
	if cfg.Model == "" {
		cfg.Model = "nova-3"
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	return &DeepgramTranscriber{cfg: cfg, dialer: websocket.DefaultDialer}
}

func (d *DeepgramTranscriber) listenURL(lang string) string {
	if lang == "" {
		lang = d.cfg.Language
	}
	q := url.Values{}
	q.Set("model", d.cfg.Model)
	if lang != "" {
		q.Set("language", lang)
	}
	q.Set("punctuate", strconv.FormatBool(d.cfg.Punctuate))
	return d.cfg.BaseURL + "?" + q.Encode()
}

// Transcribe streams audio to Deepgram and returns the final transcript.
// Containerized input (wav, mp3, webm) is detected by Deepgram itself.
func (d *DeepgramTranscriber) Transcribe(ctx context.Context, audio []byte, format Format) (string, error) {
	headers := http.Header{}
	headers.Set("Authorization", "Token "+d.cfg.APIKey)

	conn, _, err := d.dialer.DialContext(ctx, d.listenURL(LanguageFrom(ctx)), headers)
	if err != nil {
		return "", fmt.Errorf("failed to connect to Deepgram: %w", err)
	}
	defer conn.Close()

	// Unblock reads when the caller gives up.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	writeErr := make(chan error, 1)
	go func() {
		writeErr <- writeUtterance(conn, audio)
	}()

	var parts []string
	for {
		_ = conn.SetReadDeadline(time.Now().Add(d.cfg.ReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) || errors.Is(err, websocket.ErrCloseSent) {
				break
			}
			return "", fmt.Errorf("deepgram read: %w", err)
		}

		var resp deepgramResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			continue
		}
		if resp.Type != "Results" || !resp.IsFinal || len(resp.Channel.Alternatives) == 0 {
			continue
		}
		if text := strings.TrimSpace(resp.Channel.Alternatives[0].Transcript); text != "" {
			parts = append(parts, text)
		}
	}

	if err := <-writeErr; err != nil {
		return "", fmt.Errorf("deepgram write: %w", err)
	}
	return strings.Join(parts, " "), nil
}

func writeUtterance(conn *websocket.Conn, audio []byte) error {
	for len(audio) > 0 {
		n := min(len(audio), deepgramFrameSize)
		if err := conn.WriteMessage(websocket.BinaryMessage, audio[:n]); err != nil {
			return err
		}
		audio = audio[n:]
	}
	return conn.WriteMessage(websocket.TextMessage, []byte(`{"type": "CloseStream"}`))
}
