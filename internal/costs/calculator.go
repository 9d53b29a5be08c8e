// Package costs estimates what a voice turn cost in provider fees.
package costs

import (
	"encoding/binary"
	"os"
	"strconv"
	"unicode/utf8"
)

// Pricing in cents per unit. Defaults are list prices and can be overridden
// via environment variables.
var (
	// OpenAISTTCentsPerMinute is gpt-4o-mini-transcribe.
	// Default: $0.003/min = 0.3 cents/min
	OpenAISTTCentsPerMinute = getEnvFloat("COST_OPENAI_STT_CENTS_PER_MIN", 0.3)

	// DeepgramCentsPerMinute is Nova-3 streaming STT.
	// Default: $0.0077/min = 0.77 cents/min
	DeepgramCentsPerMinute = getEnvFloat("COST_DEEPGRAM_CENTS_PER_MIN", 0.77)

	// TextInputCentsPerThousandTokens is the text model's prompt price.
	// Default: $1.25/1M = 0.125 cents/1K tokens
	TextInputCentsPerThousandTokens = getEnvFloat("COST_TEXT_INPUT_CENTS_PER_1K", 0.125)

	// TextOutputCentsPerThousandTokens is the text model's completion price.
	// Default: $10/1M = 1 cent/1K tokens
	TextOutputCentsPerThousandTokens = getEnvFloat("COST_TEXT_OUTPUT_CENTS_PER_1K", 1.0)

	// OpenAITTSCentsPerThousandChars is gpt-4o-mini-tts, approximated per character.
	// Default: $15/1M chars = 1.5 cents/1K chars
	OpenAITTSCentsPerThousandChars = getEnvFloat("COST_OPENAI_TTS_CENTS_PER_1K_CHARS", 1.5)

	// ElevenLabsCentsPerThousandChars is ElevenLabs streaming TTS.
	// Default: $0.18/1K chars = 18 cents/1K chars
	ElevenLabsCentsPerThousandChars = getEnvFloat("COST_ELEVENLABS_CENTS_PER_1K_CHARS", 18.0)
)

// TurnMetrics contains the raw usage of one turn.
type TurnMetrics struct {
	STTProvider   string  // "openai" or "deepgram"
	TTSProvider   string  // "openai" or "elevenlabs"
	AudioSeconds  float64 // Length of the user's recording; negative if unknown
	InputTokens   int     // Prompt tokens, including history
	OutputTokens  int     // Streamed completion tokens
	TTSCharacters int     // Characters sent to synthesis
}

// TurnCosts are in millicents (1/1000 of a cent); a single turn rarely
// costs a whole cent.
type TurnCosts struct {
	STTMillicents   int `json:"stt_millicents"`
	LLMMillicents   int `json:"llm_millicents"`
	TTSMillicents   int `json:"tts_millicents"`
	TotalMillicents int `json:"total_millicents"`
	// STTUnknown is set when the recording length was unknown; STT is then
	// left out of the total.
	STTUnknown bool `json:"stt_unknown,omitempty"`
}

// CalculateTurnCosts computes the costs for a turn based on usage metrics.
func CalculateTurnCosts(m TurnMetrics) TurnCosts {
	sttRate := OpenAISTTCentsPerMinute
	if m.STTProvider == "deepgram" {
		sttRate = DeepgramCentsPerMinute
	}
	ttsRate := OpenAITTSCentsPerThousandChars
	if m.TTSProvider == "elevenlabs" {
		ttsRate = ElevenLabsCentsPerThousandChars
	}

	sttCents := (m.AudioSeconds / 60.0) * sttRate
	llmCents := (float64(m.InputTokens)/1000.0)*TextInputCentsPerThousandTokens +
		(float64(m.OutputTokens)/1000.0)*TextOutputCentsPerThousandTokens
	ttsCents := (float64(m.TTSCharacters) / 1000.0) * ttsRate

	c := TurnCosts{
		STTMillicents: roundToInt(sttCents * 1000),
		LLMMillicents: roundToInt(llmCents * 1000),
		TTSMillicents: roundToInt(ttsCents * 1000),
	}
	if m.AudioSeconds < 0 {
		c.STTMillicents = 0
		c.STTUnknown = true
	}
	c.TotalMillicents = c.STTMillicents + c.LLMMillicents + c.TTSMillicents
	return c
}

// EstimateTokens approximates the token count of text at four characters
// per token.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// WAVSeconds returns the duration of a RIFF/WAVE recording from its header
// byte rate, or 0 when audio is not a WAV file.
func WAVSeconds(audio []byte) float64 {
	if len(audio) < 44 || string(audio[0:4]) != "RIFF" || string(audio[8:12]) != "WAVE" {
		return 0
	}
	byteRate := binary.LittleEndian.Uint32(audio[28:32])
	if byteRate == 0 {
		return 0
	}
	return float64(len(audio)-44) / float64(byteRate)
}

// roundToInt rounds a float to the nearest integer.
func roundToInt(f float64) int {
	if f < 0 {
		return int(f - 0.5)
	}
	return int(f + 0.5)
}

// getEnvFloat returns an environment variable as float64, or the default if not set.
func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
