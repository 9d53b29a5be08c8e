package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/lukasbauer/kaskada/internal/llm"
	"github.com/lukasbauer/kaskada/internal/sse"
	"github.com/lukasbauer/kaskada/internal/store"
	"github.com/lukasbauer/kaskada/internal/stt"
	"github.com/lukasbauer/kaskada/internal/voice"
)

// handleVoiceMessage answers a recording with a single speech-capable chat
// model instead of the sentence pipeline. Audio arrives as pcm16 chunks
// numbered from 0; each transcript event carries the reply so far.
func (r *Router) handleVoiceMessage(w http.ResponseWriter, req *http.Request) {
	user := getAuthUser(req.Context())
	convID := req.PathValue("id")

	up, ok := r.decodeVoiceUpload(w, req)
	if !ok {
		return
	}
	history, ok := r.loadHistory(w, req, "voice_message", user.ID, convID)
	if !ok {
		return
	}

	turnID := uuid.NewString()
	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()
	if !r.turns.Add(turnID, user.ID, cancel) {
		writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}
	defer r.turns.Done(turnID)

	text, err := r.transcriber.Transcribe(stt.WithLanguage(ctx, stt.LanguageHint(up.locale)), up.audio, up.format)
	if err != nil {
		r.logger.Printf("voice_message: transcription failed for %s: %v", convID, err)
		captureError(req, err, "transcribe voice message")
		writeError(w, http.StatusInternalServerError, "failed to transcribe audio")
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		writeError(w, http.StatusUnprocessableEntity, "no speech detected")
		return
	}

	persistCtx := context.WithoutCancel(ctx)
	if _, err := r.store.CreateMessage(persistCtx, convID, store.RoleUser, text); err != nil {
		r.logger.Printf("voice_message: failed to save user message for %s: %v", convID, err)
		captureError(req, err, "save user message")
	}

	sse.SetHeaders(w.Header())
	w.Header().Set("X-Turn-ID", turnID)
	w.WriteHeader(http.StatusOK)
	sw := sse.NewWriter(w)

	send := func(ev voice.Event) bool {
		payload, err := voice.MarshalEvent(ev)
		if err != nil {
			r.logger.Printf("voice_message: failed to encode %T: %v", ev, err)
			return true
		}
		if err := sw.Data(payload); err != nil {
			r.logger.Printf("voice_message: client disconnected from turn %s: %v", turnID, err)
			return false
		}
		return true
	}
	fail := func(err error) {
		r.logger.Printf("voice_message: turn %s failed: %v", turnID, err)
		if !errors.Is(err, context.Canceled) {
			captureError(req, err, "voice message")
		}
		send(voice.Error{Message: "failed to process voice message", Err: err})
	}

	if !send(voice.UserTranscript{Text: text}) {
		return
	}

	stream, err := r.audioReplier.StreamAudio(ctx, "", string(up.voice), llm.BuildMessages(r.systemPrompt(), history, text))
	if err != nil {
		fail(err)
		return
	}
	defer stream.Close()

	var reply strings.Builder
	seq := 0
	for {
		d, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			fail(err)
			return
		}
		if d.Transcript != "" {
			reply.WriteString(d.Transcript)
			if !send(voice.Transcript{Text: reply.String()}) {
				return
			}
		}
		if len(d.PCM) > 0 {
			if !send(voice.Audio{Seq: seq, Data: d.PCM}) {
				return
			}
			seq++
		}
	}

	if _, err := r.store.CreateMessage(persistCtx, convID, store.RoleAssistant, reply.String()); err != nil {
		r.logger.Printf("voice_message: failed to save assistant message for %s: %v", convID, err)
		captureError(req, err, "save assistant message")
	}
	send(voice.Done{})
}
