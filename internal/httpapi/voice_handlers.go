package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/text/language"

	"github.com/lukasbauer/kaskada/internal/tts"
)

// VoiceInfo describes a voice option for the client's picker
type VoiceInfo struct {
	ID          tts.Voice `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
}

var voiceCatalog = []VoiceInfo{
	{ID: tts.VoiceAlloy, Name: "Alloy", Description: "Neutral, balanced"},
	{ID: tts.VoiceEcho, Name: "Echo", Description: "Warm, measured"},
	{ID: tts.VoiceFable, Name: "Fable", Description: "Expressive storyteller"},
	{ID: tts.VoiceOnyx, Name: "Onyx", Description: "Deep, authoritative"},
	{ID: tts.VoiceNova, Name: "Nova", Description: "Bright, friendly"},
	{ID: tts.VoiceShimmer, Name: "Shimmer", Description: "Soft, calm"},
}

const (
	previewCacheDuration = 24 * time.Hour
	previewTimeout       = 30 * time.Second
)

// Preview sentences by language; English is the fallback.
var previewTexts = map[language.Base]string{
	language.MustParseBase("en"): "Hi there! I'm your voice assistant. How can I help you today?",
	language.MustParseBase("de"): "Hallo! Ich bin dein Sprachassistent. Wie kann ich helfen?",
	language.MustParseBase("cs"): "Dobrý den, jsem váš hlasový asistent. Jak vám mohu pomoci?",
}

func previewText(locale string) (string, language.Base) {
	tag, err := language.Parse(locale)
	if err == nil {
		if base, conf := tag.Base(); conf != language.No {
			if text, ok := previewTexts[base]; ok {
				return text, base
			}
		}
	}
	en := language.MustParseBase("en")
	return previewTexts[en], en
}

// previewCache stores rendered preview clips to reduce synthesis calls
type previewCache struct {
	mu   sync.RWMutex
	data map[string]cachedAudio
	ttl  time.Duration
	now  func() time.Time
}

type cachedAudio struct {
	audio     []byte
	expiresAt time.Time
}

func newPreviewCache(ttl time.Duration) *previewCache {
	return &previewCache{data: make(map[string]cachedAudio), ttl: ttl, now: time.Now}
}

func (c *previewCache) get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cached, ok := c.data[key]
	if !ok || !c.now().Before(cached.expiresAt) {
		return nil, false
	}
	return cached.audio, true
}

func (c *previewCache) put(key string, audio []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = cachedAudio{audio: audio, expiresAt: c.now().Add(c.ttl)}
}

// handleListVoices returns the available voices
func (r *Router) handleListVoices(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"voices":  voiceCatalog,
		"default": tts.DefaultVoice,
	})
}

// handlePreviewVoice synthesizes a short greeting in the requested voice and
// returns it as WAV.
func (r *Router) handlePreviewVoice(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Voice  string `json:"voice"`
		Locale string `json:"locale"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Voice == "" {
		writeError(w, http.StatusBadRequest, "voice is required")
		return
	}
	voice, err := tts.ParseVoice(body.Voice)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid voice")
		return
	}

	text, base := previewText(body.Locale)
	key := string(voice) + "/" + base.String()

	if audio, ok := r.previews.get(key); ok {
		writeWAV(w, audio, "HIT")
		return
	}

	ctx, cancel := context.WithTimeout(req.Context(), previewTimeout)
	defer cancel()
	pcm, err := r.synth.Synthesize(ctx, text, voice)
	if err != nil {
		r.logger.Printf("voice: failed to generate preview: %v", err)
		captureError(req, err, "voice preview")
		writeError(w, http.StatusInternalServerError, "failed to generate preview")
		return
	}

	audio := tts.WAV(pcm, tts.SampleRate)
	r.previews.put(key, audio)
	writeWAV(w, audio, "MISS")
}

func writeWAV(w http.ResponseWriter, audio []byte, cache string) {
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(audio)))
	w.Header().Set("X-Cache", cache)
	_, _ = w.Write(audio)
}
