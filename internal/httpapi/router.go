package httpapi

import (
	"context"
	"encoding/json"
	"iter"
	"log"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/lukasbauer/kaskada/internal/eventlog"
	"github.com/lukasbauer/kaskada/internal/llm"
	"github.com/lukasbauer/kaskada/internal/metrics"
	"github.com/lukasbauer/kaskada/internal/notifications"
	"github.com/lukasbauer/kaskada/internal/store"
	"github.com/lukasbauer/kaskada/internal/stt"
	"github.com/lukasbauer/kaskada/internal/tts"
	"github.com/lukasbauer/kaskada/internal/voice"
)

type RouterConfig struct {
	// JWT Authentication. Empty disables auth and every request acts as the
	// anonymous owner.
	JWTSecret string

	// Provider names, recorded with each turn for cost estimates
	STTProvider string
	TTSProvider string

	// Voice turn defaults
	TextModel              string
	SystemPrompt           string
	Locale                 string
	MaxConcurrentSynthesis int
	ChunkTimeout           time.Duration
	AbortOnSynthesisError  bool

	// MaxAudioBytes limits the decoded size of an uploaded recording.
	MaxAudioBytes int
}

// ConversationStore is the persistence the handlers need.
type ConversationStore interface {
	CreateConversation(ctx context.Context, ownerID, title string) (*store.Conversation, error)
	ListConversations(ctx context.Context, ownerID string, limit int) ([]store.Conversation, error)
	GetConversation(ctx context.Context, ownerID, id string) (*store.Conversation, error)
	GetConversationDetail(ctx context.Context, ownerID, id string) (*store.ConversationDetail, error)
	DeleteConversation(ctx context.Context, ownerID, id string) error
	CreateMessage(ctx context.Context, conversationID, role, content string) (*store.Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]store.Message, error)
}

// TurnRunner runs one voice turn; *voice.Pipeline implements it.
type TurnRunner interface {
	Run(ctx context.Context, audio []byte, opts voice.Options) iter.Seq[voice.Event]
}

// Services are the collaborators behind the routes. EventLog, Metrics and
// Alerts may be nil. A nil Turns gets a private registry. The voice message
// route needs both Transcriber and AudioReplier.
type Services struct {
	Store        ConversationStore
	Pipeline     TurnRunner
	Synthesizer  tts.Synthesizer
	Transcriber  stt.Transcriber
	AudioReplier llm.AudioReplier
	EventLog     *eventlog.Logger
	Metrics      *metrics.Metrics
	Alerts       *notifications.Discord
	Turns        *TurnRegistry
}

type Router struct {
	cfg      RouterConfig
	logger   *log.Logger
	store    ConversationStore
	pipeline TurnRunner
	synth    tts.Synthesizer
	eventLog *eventlog.Logger
	metrics  *metrics.Metrics
	alerts   *notifications.Discord
	turns    *TurnRegistry
	previews *previewCache
	mux      *http.ServeMux

	// speech-to-speech route
	transcriber  stt.Transcriber
	audioReplier llm.AudioReplier
}

func NewRouter(cfg RouterConfig, logger *log.Logger, svc Services) http.Handler {
	if cfg.MaxAudioBytes <= 0 {
		cfg.MaxAudioBytes = defaultMaxAudioBytes
	}
	if svc.Turns == nil {
		svc.Turns = NewTurnRegistry()
	}
	r := &Router{
		cfg:      cfg,
		logger:   logger,
		store:    svc.Store,
		pipeline: svc.Pipeline,
		synth:    svc.Synthesizer,
		eventLog: svc.EventLog,
		metrics:  svc.Metrics,
		alerts:   svc.Alerts,
		turns:    svc.Turns,
		previews: newPreviewCache(previewCacheDuration),
		mux:      http.NewServeMux(),

		transcriber:  svc.Transcriber,
		audioReplier: svc.AudioReplier,
	}

	r.routes()
	return withSentryRecovery(withCORS(otelhttp.NewHandler(r.withMetrics(r.mux), "kaskada")))
}

func (r *Router) routes() {
	// Health check
	r.mux.HandleFunc("GET /healthz", r.handleHealthz)
	r.mux.HandleFunc("GET /readyz", r.handleReadyz)
	if r.metrics != nil {
		r.mux.Handle("GET /metrics", r.metrics.Handler())
	}

	// Voices
	r.mux.HandleFunc("GET /api/voices", r.handleListVoices)
	r.mux.HandleFunc("POST /api/voices/preview", r.withAuth(r.handlePreviewVoice))

	// Conversations
	r.mux.HandleFunc("GET /api/conversations", r.withAuth(r.handleListConversations))
	r.mux.HandleFunc("POST /api/conversations", r.withAuth(r.handleCreateConversation))
	r.mux.HandleFunc("GET /api/conversations/{id}", r.withAuth(r.handleGetConversation))
	r.mux.HandleFunc("DELETE /api/conversations/{id}", r.withAuth(r.handleDeleteConversation))
	r.mux.HandleFunc("POST /api/conversations/{id}/voice-stream", r.withAuth(r.handleVoiceStream))
	if r.transcriber != nil && r.audioReplier != nil {
		r.mux.HandleFunc("POST /api/conversations/{id}/messages", r.withAuth(r.handleVoiceMessage))
	}

	// Barge-in: stop a running turn
	r.mux.HandleFunc("DELETE /api/turns/{id}", r.withAuth(r.handleCancelTurn))
}

func (r *Router) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReadyz fails once the server started draining so load balancers stop
// sending new turns.
func (r *Router) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if r.turns.IsDraining() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("draining"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Router) handleCancelTurn(w http.ResponseWriter, req *http.Request) {
	user := getAuthUser(req.Context())
	if !r.turns.Cancel(user.ID, req.PathValue("id")) {
		writeError(w, http.StatusNotFound, "turn not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func withSentryRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(req)
				hub.RecoverWithContext(req.Context(), err)
				hub.Flush(2 * time.Second)
				http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, req)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// statusRecorder captures the response status and keeps streaming working.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

// withMetrics records every request by its matched route pattern.
func (r *Router) withMetrics(next http.Handler) http.Handler {
	if r.metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, req)

		route := req.Pattern
		if route == "" {
			route = "unmatched"
		}
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		r.metrics.RecordHTTPRequest(req.Method, route, rec.status, time.Since(start))
	})
}

// captureError sends an error to Sentry with request context
func captureError(req *http.Request, err error, msg string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetRequest(req)
		scope.SetExtra("message", msg)
		sentry.CaptureException(err)
	})
}
