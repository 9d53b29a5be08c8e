package costs

import (
	"encoding/binary"
	"testing"
)

func TestCalculateTurnCosts(t *testing.T) {
	tests := []struct {
		name    string
		metrics TurnMetrics
		want    TurnCosts
	}{
		{
			name: "openai providers, short question",
			metrics: TurnMetrics{
				STTProvider:   "openai",
				TTSProvider:   "openai",
				AudioSeconds:  30,
				InputTokens:   400,
				OutputTokens:  200,
				TTSCharacters: 400,
			},
			// STT: 0.5 min * 0.3 = 0.15 cents -> 150
			// LLM: 0.4*0.125 + 0.2*1.0 = 0.25 cents -> 250
			// TTS: 0.4 * 1.5 = 0.6 cents -> 600
			want: TurnCosts{
				STTMillicents:   150,
				LLMMillicents:   250,
				TTSMillicents:   600,
				TotalMillicents: 1000,
			},
		},
		{
			name: "deepgram and elevenlabs",
			metrics: TurnMetrics{
				STTProvider:   "deepgram",
				TTSProvider:   "elevenlabs",
				AudioSeconds:  60,
				TTSCharacters: 100,
			},
			// STT: 1 min * 0.77 = 0.77 cents -> 770
			// TTS: 0.1 * 18 = 1.8 cents -> 1800
			want: TurnCosts{
				STTMillicents:   770,
				LLMMillicents:   0,
				TTSMillicents:   1800,
				TotalMillicents: 2570,
			},
		},
		{
			name: "recording length unknown",
			metrics: TurnMetrics{
				STTProvider:   "openai",
				TTSProvider:   "openai",
				AudioSeconds:  -1,
				TTSCharacters: 100,
			},
			// TTS: 0.1 * 1.5 = 0.15 cents -> 150; STT left out
			want: TurnCosts{
				TTSMillicents:   150,
				TotalMillicents: 150,
				STTUnknown:      true,
			},
		},
		{
			name:    "empty turn (edge case)",
			metrics: TurnMetrics{},
			want:    TurnCosts{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateTurnCosts(tt.metrics)
			if got != tt.want {
				t.Errorf("CalculateTurnCosts() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abcd", 1},
		{"abcde", 2},
		{"čšžř", 1}, // counted in runes, not bytes
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func wavHeader(byteRate uint32, dataLen int) []byte {
	b := make([]byte, 44+dataLen)
	copy(b[0:4], "RIFF")
	copy(b[8:12], "WAVE")
	binary.LittleEndian.PutUint32(b[28:32], byteRate)
	return b
}

func TestWAVSeconds(t *testing.T) {
	tests := []struct {
		name  string
		audio []byte
		want  float64
	}{
		{"16kHz mono s16le, 2s", wavHeader(32000, 64000), 2},
		{"zero byte rate", wavHeader(0, 100), 0},
		{"not wav", []byte("OggS............................................"), 0},
		{"too short", []byte("RIFF"), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WAVSeconds(tt.audio); got != tt.want {
				t.Errorf("WAVSeconds() = %v, want %v", got, tt.want)
			}
		})
	}
}
