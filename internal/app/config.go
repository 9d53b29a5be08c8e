package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr    string
	DatabaseURL string
	LogLevel    string
	SentryDSN   string
	Environment string
	// TracesExporter is "none" or "stdout".
	TracesExporter string

	// JWT Authentication. Empty runs the server without auth.
	JWTSecret string

	// Providers
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	STTProvider      string // openai or deepgram
	STTModel         string
	DeepgramAPIKey   string
	TTSProvider      string // openai or elevenlabs
	TTSModel         string
	ElevenLabsAPIKey string
	TTSStability     float64
	TTSSimilarity    float64

	// Voice turn defaults
	TextModel              string
	AudioModel             string // speech-to-speech messages route
	SystemPrompt           string
	VoiceGuardrails        bool // prepend speakable-reply instructions
	Locale                 string
	MaxConcurrentSynthesis int // 0 dispatches every sentence at once
	ChunkTimeout           time.Duration
	AbortOnSynthesisError  bool
	MaxAudioBytes          int

	// DrainTimeout bounds how long shutdown waits for running turns.
	DrainTimeout time.Duration

	// Operations
	DiscordWebhookURL string
	EventRetention    time.Duration // 0 keeps events forever
	RetentionInterval time.Duration
}

func LoadConfigFromEnv() Config {
	return Config{
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		DatabaseURL: getenv("DATABASE_URL", ""),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		SentryDSN:   getenv("SENTRY_DSN", ""),
		Environment: getenv("ENVIRONMENT", "development"),

		TracesExporter: strings.ToLower(getenv("OTEL_TRACES_EXPORTER", "none")),

		JWTSecret: os.Getenv("JWT_SECRET"),

		OpenAIAPIKey:     getenv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:    getenv("OPENAI_BASE_URL", ""),
		STTProvider:      strings.ToLower(getenv("STT_PROVIDER", "openai")),
		STTModel:         getenv("STT_MODEL", ""),
		DeepgramAPIKey:   getenv("DEEPGRAM_API_KEY", ""),
		TTSProvider:      strings.ToLower(getenv("TTS_PROVIDER", "openai")),
		TTSModel:         getenv("TTS_MODEL", ""),
		ElevenLabsAPIKey: getenv("ELEVENLABS_API_KEY", ""),
		TTSStability:     getenvFloatClamped("TTS_STABILITY", 0.5, 0.0, 1.0),
		TTSSimilarity:    getenvFloatClamped("TTS_SIMILARITY", 0.75, 0.0, 1.0),

		TextModel:              getenv("TEXT_MODEL", "gpt-5"),
		AudioModel:             getenv("AUDIO_MODEL", "gpt-audio-mini"),
		SystemPrompt:           getenv("SYSTEM_PROMPT", ""),
		VoiceGuardrails:        getenvBool("VOICE_GUARDRAILS", true),
		Locale:                 getenv("VOICE_LOCALE", "en"),
		MaxConcurrentSynthesis: getenvIntClamped("VOICE_MAX_CONCURRENT_TTS", 0, 0, 32),
		ChunkTimeout:           getenvDuration("VOICE_CHUNK_TIMEOUT", 0),
		AbortOnSynthesisError:  getenvBool("VOICE_ABORT_ON_TTS_ERROR", false),
		MaxAudioBytes:          getenvIntClamped("MAX_AUDIO_BYTES", 10*1024*1024, 1024, 100*1024*1024),

		DrainTimeout: getenvDuration("DRAIN_TIMEOUT", 30*time.Second),

		DiscordWebhookURL: getenv("DISCORD_WEBHOOK_URL", ""),
		EventRetention:    getenvDuration("EVENT_RETENTION", 30*24*time.Hour),
		RetentionInterval: getenvDuration("EVENT_RETENTION_INTERVAL", time.Hour),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// getenvIntClamped parses an int and clamps it to [min, max]. Unset or
// invalid values yield def.
func getenvIntClamped(k string, def, min, max int) int {
	v, err := strconv.Atoi(os.Getenv(k))
	if err != nil {
		return def
	}
	return clamp(v, min, max)
}

func getenvFloatClamped(k string, def, min, max float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(k), 64)
	if err != nil {
		return def
	}
	return clamp(v, min, max)
}

func getenvDuration(k string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(k))
	if err != nil || v < 0 {
		return def
	}
	return v
}

func getenvBool(k string, def bool) bool {
	v, err := strconv.ParseBool(os.Getenv(k))
	if err != nil {
		return def
	}
	return v
}

func clamp[T int | float64](v, lo, hi T) T {
	return min(max(v, lo), hi)
}
