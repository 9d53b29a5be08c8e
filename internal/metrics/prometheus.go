package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lukasbauer/kaskada/internal/voice"
)

// Metrics contains all Prometheus metrics of the voice service
type Metrics struct {
	gatherer prometheus.Gatherer

	// Turn metrics
	ActiveTurns     prometheus.Gauge
	Turns           *prometheus.CounterVec
	TurnDuration    prometheus.Histogram
	TranscribeTime  prometheus.Histogram
	FirstTokenTime  prometheus.Histogram
	FirstAudioTime  prometheus.Histogram
	Sentences       prometheus.Counter
	SynthesisErrors prometheus.Counter
	AudioChunks     prometheus.Counter
	AudioBytes      prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates the metrics and registers them with reg. A nil reg uses
// the default registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if reg != nil {
		registerer, gatherer = reg, reg
	}
	f := promauto.With(registerer)

	return &Metrics{
		gatherer: gatherer,

		ActiveTurns: f.NewGauge(prometheus.GaugeOpts{
			Name: "voice_active_turns",
			Help: "Current number of voice turns being streamed",
		}),
		Turns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_turns_total",
			Help: "Total number of voice turns by outcome",
		}, []string{"outcome"}),
		TurnDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_turn_duration_seconds",
			Help:    "Wall time of a voice turn",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s to ~1 minute
		}),
		TranscribeTime: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_transcription_duration_seconds",
			Help:    "Time spent transcribing the user's utterance",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 8), // 100ms to ~13s
		}),
		FirstTokenTime: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_first_token_seconds",
			Help:    "Time from turn start to the first reply token",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 8),
		}),
		FirstAudioTime: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_first_audio_seconds",
			Help:    "Time from turn start to the first audio chunk",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 8),
		}),
		Sentences: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_sentences_total",
			Help: "Total number of sentences sent to speech synthesis",
		}),
		SynthesisErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_synthesis_failures_total",
			Help: "Total number of sentences whose synthesis failed",
		}),
		AudioChunks: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_audio_chunks_total",
			Help: "Total number of audio chunks streamed to clients",
		}),
		AudioBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_audio_bytes_total",
			Help: "Total PCM bytes streamed to clients",
		}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status_code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voice_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Handler serves the registered metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records a served HTTP request
func (m *Metrics) RecordHTTPRequest(method, route string, status int, took time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(took.Seconds())
}

// TurnObserver returns a voice.Observer recording one turn. It marks the turn
// active until Finished is called.
func (m *Metrics) TurnObserver() voice.Observer {
	m.ActiveTurns.Inc()
	return &turnObserver{m: m}
}

type turnObserver struct {
	voice.NopObserver
	m *Metrics
}

func (o *turnObserver) Transcribed(_ string, took time.Duration) {
	o.m.TranscribeTime.Observe(took.Seconds())
}

func (o *turnObserver) FirstToken(after time.Duration) {
	o.m.FirstTokenTime.Observe(after.Seconds())
}

func (o *turnObserver) SentenceReady(int, string) {
	o.m.Sentences.Inc()
}

func (o *turnObserver) FirstAudio(_ int, after time.Duration) {
	o.m.FirstAudioTime.Observe(after.Seconds())
}

func (o *turnObserver) SynthesisFailed(int, error) {
	o.m.SynthesisErrors.Inc()
}

func (o *turnObserver) Finished(stats voice.Stats, err error) {
	o.m.ActiveTurns.Dec()
	o.m.Turns.WithLabelValues(Outcome(err)).Inc()
	o.m.TurnDuration.Observe(stats.Duration.Seconds())
	o.m.AudioChunks.Add(float64(stats.AudioChunks))
	o.m.AudioBytes.Add(float64(stats.AudioBytes))
}

// Outcome classifies how a turn ended for the turns counter.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "completed"
	case errors.Is(err, voice.ErrAbandoned):
		return "abandoned"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, voice.ErrTranscription):
		return "transcription_failed"
	case errors.Is(err, voice.ErrCompletion):
		return "completion_failed"
	case errors.Is(err, voice.ErrSynthesisStart),
		errors.Is(err, voice.ErrSynthesisChunk),
		errors.Is(err, voice.ErrSynthesisTimeout):
		return "synthesis_failed"
	}
	return "failed"
}
