package eventlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EventType represents the type of voice turn event
type EventType string

const (
	EventTurnStarted       EventType = "turn_started"
	EventUserTranscript    EventType = "user_transcript"
	EventLLMFirstToken     EventType = "llm_first_token"
	EventSentenceExtracted EventType = "sentence_extracted"
	EventTTSFirstChunk     EventType = "tts_first_chunk"
	EventTTSError          EventType = "tts_error"
	EventTurnCompleted     EventType = "turn_completed"
	EventTurnFailed        EventType = "turn_failed"
)

// Logger provides async event logging to the database
type Logger struct {
	db  *pgxpool.Pool
	now func() time.Time
}

// New creates a new event logger. A nil db disables logging.
func New(db *pgxpool.Pool) *Logger {
	return &Logger{db: db, now: time.Now}
}

// Log writes an event to the database synchronously
func (l *Logger) Log(ctx context.Context, turnID, conversationID string, eventType EventType, data map[string]any) error {
	return l.log(ctx, l.now(), turnID, conversationID, eventType, data)
}

func (l *Logger) log(ctx context.Context, at time.Time, turnID, conversationID string, eventType EventType, data map[string]any) error {
	if l == nil || l.db == nil || turnID == "" {
		return nil // Silently skip if no DB or turn ID
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		dataJSON = []byte("{}")
	}

	var convID *string
	if conversationID != "" {
		convID = &conversationID
	}

	_, err = l.db.Exec(ctx, `
		INSERT INTO voice_events (turn_id, conversation_id, event_type, event_data, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, turnID, convID, string(eventType), dataJSON, at)

	return err
}

// LogAsync logs an event without blocking the caller. The event keeps the
// time of this call so concurrent inserts still sort correctly.
func (l *Logger) LogAsync(turnID, conversationID string, eventType EventType, data map[string]any) {
	if l == nil || l.db == nil || turnID == "" {
		return
	}

	at := l.now()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.log(ctx, at, turnID, conversationID, eventType, data)
	}()
}

// Prune deletes events recorded before cutoff and returns how many were
// removed.
func (l *Logger) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	if l == nil || l.db == nil {
		return 0, nil
	}
	tag, err := l.db.Exec(ctx, `DELETE FROM voice_events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
