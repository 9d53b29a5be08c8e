package eventlog

import (
	"time"

	"github.com/lukasbauer/kaskada/internal/costs"
	"github.com/lukasbauer/kaskada/internal/voice"
)

// Turn identifies a voice turn and carries what the cost estimate needs
// beyond the turn's own stats.
type Turn struct {
	ID             string
	ConversationID string
	STTProvider    string
	TTSProvider    string
	AudioSeconds   float64 // negative when the upload's length is unknown
	PromptText     string  // system prompt and history sent with the turn
}

// TurnObserver logs turn_started immediately and the remaining latency
// events as the pipeline reports them.
func (l *Logger) TurnObserver(t Turn) voice.Observer {
	o := &turnObserver{
		turn: t,
		emit: func(ev EventType, data map[string]any) {
			l.LogAsync(t.ID, t.ConversationID, ev, data)
		},
	}
	started := map[string]any{
		"stt_provider": t.STTProvider,
		"tts_provider": t.TTSProvider,
	}
	if t.AudioSeconds >= 0 {
		started["audio_seconds"] = t.AudioSeconds
	}
	o.emit(EventTurnStarted, started)
	return o
}

type turnObserver struct {
	turn Turn
	emit func(EventType, map[string]any)
}

func (o *turnObserver) Transcribed(text string, took time.Duration) {
	o.emit(EventUserTranscript, map[string]any{
		"text_length": len(text),
		"latency_ms":  took.Milliseconds(),
	})
}

func (o *turnObserver) FirstToken(after time.Duration) {
	o.emit(EventLLMFirstToken, map[string]any{"latency_ms": after.Milliseconds()})
}

func (o *turnObserver) SentenceReady(seq int, text string) {
	o.emit(EventSentenceExtracted, map[string]any{
		"seq":         seq,
		"text_length": len(text),
	})
}

func (o *turnObserver) FirstAudio(seq int, after time.Duration) {
	o.emit(EventTTSFirstChunk, map[string]any{
		"seq":        seq,
		"latency_ms": after.Milliseconds(),
	})
}

func (o *turnObserver) SynthesisFailed(seq int, err error) {
	o.emit(EventTTSError, map[string]any{
		"seq":   seq,
		"error": err.Error(),
	})
}

func (o *turnObserver) Finished(stats voice.Stats, err error) {
	data := map[string]any{
		"sentences":        stats.Sentences,
		"failed_sentences": stats.FailedSentences,
		"audio_chunks":     stats.AudioChunks,
		"audio_bytes":      stats.AudioBytes,
		"first_token_ms":   stats.FirstToken.Milliseconds(),
		"first_audio_ms":   stats.FirstAudio.Milliseconds(),
		"duration_ms":      stats.Duration.Milliseconds(),
	}
	if err != nil {
		data["error"] = err.Error()
		o.emit(EventTurnFailed, data)
		return
	}
	data["costs"] = costs.CalculateTurnCosts(costs.TurnMetrics{
		STTProvider:   o.turn.STTProvider,
		TTSProvider:   o.turn.TTSProvider,
		AudioSeconds:  o.turn.AudioSeconds,
		InputTokens:   costs.EstimateTokens(o.turn.PromptText) + costs.EstimateTokens(stats.UserText),
		OutputTokens:  stats.Tokens,
		TTSCharacters: stats.SpokenChars,
	})
	o.emit(EventTurnCompleted, data)
}
