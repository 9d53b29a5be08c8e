package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/lukasbauer/kaskada/internal/costs"
	"github.com/lukasbauer/kaskada/internal/eventlog"
	"github.com/lukasbauer/kaskada/internal/llm"
	"github.com/lukasbauer/kaskada/internal/sse"
	"github.com/lukasbauer/kaskada/internal/store"
	"github.com/lukasbauer/kaskada/internal/stt"
	"github.com/lukasbauer/kaskada/internal/tts"
	"github.com/lukasbauer/kaskada/internal/voice"
)

const defaultMaxAudioBytes = 10 * 1024 * 1024 // 10MB decoded recording

type voiceStreamRequest struct {
	Audio       string `json:"audio"` // base64
	Voice       string `json:"voice"`
	InputFormat string `json:"inputFormat"`
	Locale      string `json:"locale"`
}

// voiceUpload is a validated voice request body.
type voiceUpload struct {
	audio  []byte
	voice  tts.Voice
	format stt.Format
	// locale is what the client sent, possibly empty.
	locale string
}

// decodeVoiceUpload reads and validates a voice request body. It writes the
// error response itself and reports whether the handler may go on.
func (r *Router) decodeVoiceUpload(w http.ResponseWriter, req *http.Request) (voiceUpload, bool) {
	// base64 grows the payload by a third; leave room for the other fields.
	req.Body = http.MaxBytesReader(w, req.Body, int64(r.cfg.MaxAudioBytes)/3*4+4096)
	var body voiceStreamRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "audio too large")
			return voiceUpload{}, false
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return voiceUpload{}, false
	}
	if body.Audio == "" {
		writeError(w, http.StatusBadRequest, "audio data (base64) is required")
		return voiceUpload{}, false
	}
	audio, err := base64.StdEncoding.DecodeString(body.Audio)
	if err != nil {
		writeError(w, http.StatusBadRequest, "audio is not valid base64")
		return voiceUpload{}, false
	}
	if len(audio) > r.cfg.MaxAudioBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "audio too large")
		return voiceUpload{}, false
	}
	voiceName, err := tts.ParseVoice(body.Voice)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return voiceUpload{}, false
	}
	format, err := stt.ParseFormat(body.InputFormat)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return voiceUpload{}, false
	}
	return voiceUpload{
		audio:  audio,
		voice:  voiceName,
		format: format,
		locale: strings.TrimSpace(body.Locale),
	}, true
}

// loadHistory checks the caller owns the conversation and returns its
// messages as chat history.
func (r *Router) loadHistory(w http.ResponseWriter, req *http.Request, component, ownerID, convID string) ([]llm.Message, bool) {
	ctx := req.Context()
	if _, err := r.store.GetConversation(ctx, ownerID, convID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return nil, false
		}
		r.logger.Printf("%s: failed to load conversation %s: %v", component, convID, err)
		captureError(req, err, "load conversation")
		writeError(w, http.StatusInternalServerError, strings.ReplaceAll(component, "_", " ")+" failed")
		return nil, false
	}
	stored, err := r.store.ListMessages(ctx, convID)
	if err != nil {
		r.logger.Printf("%s: failed to load history for %s: %v", component, convID, err)
		captureError(req, err, "load history")
		writeError(w, http.StatusInternalServerError, strings.ReplaceAll(component, "_", " ")+" failed")
		return nil, false
	}
	return chatHistory(stored), true
}

func (r *Router) systemPrompt() string {
	if r.cfg.SystemPrompt == "" {
		return llm.DefaultSystemPrompt
	}
	return r.cfg.SystemPrompt
}

// handleVoiceStream runs one voice turn against a conversation and streams
// its events as SSE. The user message is stored once transcribed and the
// assistant reply only after the turn completed.
func (r *Router) handleVoiceStream(w http.ResponseWriter, req *http.Request) {
	user := getAuthUser(req.Context())
	convID := req.PathValue("id")

	up, ok := r.decodeVoiceUpload(w, req)
	if !ok {
		return
	}
	locale := up.locale
	if locale == "" {
		locale = r.cfg.Locale
	}
	history, ok := r.loadHistory(w, req, "voice_stream", user.ID, convID)
	if !ok {
		return
	}
	ctx := req.Context()
	audio, format := up.audio, up.format

	turnID := uuid.NewString()
	systemPrompt := r.systemPrompt()
	opts := voice.Options{
		TurnID:                 turnID,
		Voice:                  up.voice,
		InputFormat:            format,
		SystemPrompt:           systemPrompt,
		ChatHistory:            history,
		TextModel:              r.cfg.TextModel,
		Locale:                 locale,
		MaxConcurrentSynthesis: r.cfg.MaxConcurrentSynthesis,
		ChunkTimeout:           r.cfg.ChunkTimeout,
		AbortOnSynthesisError:  r.cfg.AbortOnSynthesisError,
		Observer:               r.turnObservers(turnID, convID, audio, format, systemPrompt, history),
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !r.turns.Add(turnID, user.ID, cancel) {
		writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}
	defer r.turns.Done(turnID)
	// Only a locale the client chose is passed on as a transcription hint.
	ctx = stt.WithLanguage(ctx, stt.LanguageHint(up.locale))

	sse.SetHeaders(w.Header())
	w.Header().Set("X-Turn-ID", turnID)
	w.WriteHeader(http.StatusOK)
	sw := sse.NewWriter(w)
	_ = sw.Comment("turn " + turnID)

	// Persistence outlives a client that hangs up right after the last event.
	persistCtx := context.WithoutCancel(ctx)
	var reply string
	completed := false

	for ev := range r.pipeline.Run(ctx, audio, opts) {
		switch e := ev.(type) {
		case voice.UserTranscript:
			if _, err := r.store.CreateMessage(persistCtx, convID, store.RoleUser, e.Text); err != nil {
				r.logger.Printf("voice_stream: failed to save user message for %s: %v", convID, err)
				captureError(req, err, "save user message")
			}
		case voice.Transcript:
			reply = e.Text
		case voice.Done:
			completed = true
		case voice.Error:
			r.logger.Printf("voice_stream: turn %s failed: %v", turnID, e.Err)
			if !errors.Is(e.Err, context.Canceled) {
				captureError(req, e, "voice turn")
			}
		}

		payload, err := voice.MarshalEvent(ev)
		if err != nil {
			r.logger.Printf("voice_stream: failed to encode %T: %v", ev, err)
			continue
		}
		if err := sw.Data(payload); err != nil {
			// Client went away; leaving the loop cancels the turn.
			r.logger.Printf("voice_stream: client disconnected from turn %s: %v", turnID, err)
			break
		}
	}

	if completed {
		if _, err := r.store.CreateMessage(persistCtx, convID, store.RoleAssistant, reply); err != nil {
			r.logger.Printf("voice_stream: failed to save assistant message for %s: %v", convID, err)
			captureError(req, err, "save assistant message")
		}
	}
}

func chatHistory(msgs []store.Message) []llm.Message {
	history := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		role := llm.RoleUser
		if m.Role == store.RoleAssistant {
			role = llm.RoleAssistant
		}
		history = append(history, llm.Message{Role: role, Content: m.Content})
	}
	return history
}

func (r *Router) turnObservers(turnID, convID string, audio []byte, format stt.Format, systemPrompt string, history []llm.Message) voice.Observer {
	var observers []voice.Observer
	if r.metrics != nil {
		observers = append(observers, r.metrics.TurnObserver())
	}
	if r.eventLog != nil {
		var prompt strings.Builder
		prompt.WriteString(systemPrompt)
		for _, m := range history {
			prompt.WriteString(m.Content)
		}
		observers = append(observers, r.eventLog.TurnObserver(eventlog.Turn{
			ID:             turnID,
			ConversationID: convID,
			STTProvider:    r.cfg.STTProvider,
			TTSProvider:    r.cfg.TTSProvider,
			AudioSeconds:   uploadSeconds(audio, format),
			PromptText:     prompt.String(),
		}))
	}
	if r.alerts.Enabled() {
		observers = append(observers, r.alerts.TurnObserver(turnID, convID))
	}
	return voice.Observers(observers...)
}

// uploadSeconds returns the recording length, or -1 when it is unknown.
// Only WAV headers give the length up front.
func uploadSeconds(audio []byte, format stt.Format) float64 {
	if format != stt.FormatWAV {
		return -1
	}
	if d := costs.WAVSeconds(audio); d > 0 {
		return d
	}
	return -1
}
