package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/lukasbauer/kaskada/internal/eventlog"
	"github.com/lukasbauer/kaskada/internal/httpapi"
	"github.com/lukasbauer/kaskada/internal/jobs"
	"github.com/lukasbauer/kaskada/internal/llm"
	"github.com/lukasbauer/kaskada/internal/metrics"
	"github.com/lukasbauer/kaskada/internal/notifications"
	"github.com/lukasbauer/kaskada/internal/store"
	"github.com/lukasbauer/kaskada/internal/stt"
	"github.com/lukasbauer/kaskada/internal/tts"
	"github.com/lukasbauer/kaskada/internal/voice"
)

type App struct {
	cfg         Config
	logger      *log.Logger
	db          *pgxpool.Pool
	store       *store.Store
	eventLog    *eventlog.Logger
	metrics     *metrics.Metrics
	alerts      *notifications.Discord
	retention   *jobs.RetentionJob
	synthesizer tts.Synthesizer
	transcriber stt.Transcriber
	completer   *llm.OpenAIClient
	pipeline    *voice.Pipeline
	turns       *httpapi.TurnRegistry
}

func New(cfg Config, logger *log.Logger) (*App, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	// Shared transport with connection pooling; providers are called once
	// per sentence so keeping connections warm cuts first-audio latency.
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	// Streaming completions are bounded by the request context instead of
	// a client timeout.
	oai := openai.NewClient(openAIOptions(cfg, &http.Client{Transport: transport})...)

	transcriber, err := newTranscriber(cfg, oai)
	if err != nil {
		return nil, err
	}
	synthesizer, err := newSynthesizer(cfg, oai, &http.Client{Timeout: 30 * time.Second, Transport: transport})
	if err != nil {
		return nil, err
	}
	completer := llm.NewOpenAIClient(oai, llm.OpenAIConfig{
		Model:      cfg.TextModel,
		AudioModel: cfg.AudioModel,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}

	s := store.New(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	el := eventlog.New(db)
	var retention *jobs.RetentionJob
	if cfg.EventRetention > 0 {
		retention = jobs.NewRetentionJob(el, logger, cfg.EventRetention, cfg.RetentionInterval)
		retention.Start()
	}

	return &App{
		cfg:         cfg,
		logger:      logger,
		db:          db,
		store:       s,
		eventLog:    el,
		metrics:     metrics.NewMetrics(nil),
		alerts:      notifications.NewDiscord(cfg.DiscordWebhookURL, logger),
		retention:   retention,
		synthesizer: synthesizer,
		transcriber: transcriber,
		completer:   completer,
		pipeline:    voice.New(transcriber, completer, synthesizer),
		turns:       httpapi.NewTurnRegistry(),
	}, nil
}

func openAIOptions(cfg Config, client *http.Client) []option.RequestOption {
	opts := []option.RequestOption{option.WithHTTPClient(client)}
	if cfg.OpenAIAPIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.OpenAIAPIKey))
	}
	if cfg.OpenAIBaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.OpenAIBaseURL))
	}
	return opts
}

// newTranscriber builds the configured speech-to-text provider. WebM uploads
// are converted with ffmpeg for every provider. No language is configured:
// providers detect it unless a request passes a hint via stt.WithLanguage.
func newTranscriber(cfg Config, client openai.Client) (stt.Transcriber, error) {
	switch cfg.STTProvider {
	case "", "openai":
		return stt.NewConverting(stt.NewOpenAITranscriber(client, stt.OpenAIConfig{
			Model: cfg.STTModel,
		})), nil
	case "deepgram":
		if cfg.DeepgramAPIKey == "" {
			return nil, errors.New("DEEPGRAM_API_KEY is required for STT_PROVIDER=deepgram")
		}
		return stt.NewConverting(stt.NewDeepgramTranscriber(stt.DeepgramConfig{
			APIKey:    cfg.DeepgramAPIKey,
			Model:     cfg.STTModel,
			Punctuate: true,
		})), nil
	}
	return nil, fmt.Errorf("unknown STT_PROVIDER %q", cfg.STTProvider)
}

func newSynthesizer(cfg Config, client openai.Client, httpClient *http.Client) (tts.Synthesizer, error) {
	switch cfg.TTSProvider {
	case "", "openai":
		return tts.NewOpenAIClient(client, tts.OpenAIConfig{Model: cfg.TTSModel}), nil
	case "elevenlabs":
		if cfg.ElevenLabsAPIKey == "" {
			return nil, errors.New("ELEVENLABS_API_KEY is required for TTS_PROVIDER=elevenlabs")
		}
		return tts.NewElevenLabsClient(tts.ElevenLabsConfig{
			APIKey:     cfg.ElevenLabsAPIKey,
			ModelID:    cfg.TTSModel,
			Stability:  cfg.TTSStability,
			Similarity: cfg.TTSSimilarity,
			HTTPClient: httpClient,
		}), nil
	}
	return nil, fmt.Errorf("unknown TTS_PROVIDER %q", cfg.TTSProvider)
}

func (a *App) Router() http.Handler {
	systemPrompt := a.cfg.SystemPrompt
	if a.cfg.VoiceGuardrails {
		systemPrompt = llm.WithGuardrails(systemPrompt)
	}
	routerCfg := httpapi.RouterConfig{
		JWTSecret:              a.cfg.JWTSecret,
		STTProvider:            a.cfg.STTProvider,
		TTSProvider:            a.cfg.TTSProvider,
		TextModel:              a.cfg.TextModel,
		SystemPrompt:           systemPrompt,
		Locale:                 a.cfg.Locale,
		MaxConcurrentSynthesis: a.cfg.MaxConcurrentSynthesis,
		ChunkTimeout:           a.cfg.ChunkTimeout,
		AbortOnSynthesisError:  a.cfg.AbortOnSynthesisError,
		MaxAudioBytes:          a.cfg.MaxAudioBytes,
	}
	return httpapi.NewRouter(routerCfg, a.logger, httpapi.Services{
		Store:        a.store,
		Pipeline:     a.pipeline,
		Synthesizer:  a.synthesizer,
		Transcriber:  a.transcriber,
		AudioReplier: a.completer,
		EventLog:     a.eventLog,
		Metrics:      a.metrics,
		Alerts:       a.alerts,
		Turns:        a.turns,
	})
}

// Drain stops accepting turns and waits for running ones. Turns still
// running when ctx ends are canceled.
func (a *App) Drain(ctx context.Context) {
	a.turns.StartDraining()
	done := make(chan struct{})
	go func() {
		a.turns.Wait()
		close(done)
	}()

	a.logger.Printf("draining %d active turns", a.turns.ActiveCount())
	select {
	case <-done:
		a.logger.Printf("all turns finished")
	case <-ctx.Done():
		a.logger.Printf("drain timeout, canceling %d turns", a.turns.ActiveCount())
		a.turns.CancelAll()
		<-done
	}
}

func (a *App) Close() error {
	if a.retention != nil {
		a.retention.Stop()
	}
	if a.db != nil {
		a.db.Close()
	}
	return nil
}
