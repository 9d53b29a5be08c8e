package commands

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lukasbauer/kaskada/internal/httpapi"
	"github.com/lukasbauer/kaskada/internal/voice"
)

func sseBody(t *testing.T, events ...voice.Event) string {
	t.Helper()
	var b strings.Builder
	for _, ev := range events {
		payload, err := voice.MarshalEvent(ev)
		if err != nil {
			t.Fatalf("MarshalEvent(%T) error = %v", ev, err)
		}
		b.WriteString("data: ")
		b.Write(payload)
		b.WriteString("\n\n")
	}
	return b.String()
}

func TestRenderTurn(t *testing.T) {
	stream := sseBody(t,
		voice.UserTranscript{Text: "Hi"},
		voice.Sentence{Seq: 0, Text: "Hello."},
		voice.Audio{Seq: 0, Data: []byte{1, 0}},
		voice.Sentence{Seq: 1, Text: "How are you?"},
		voice.Audio{Seq: 0, Data: []byte{2, 0}},
		voice.Audio{Seq: 1, Data: []byte{3, 0}},
		voice.Transcript{Text: "Hello. How are you?"},
		voice.Done{},
	)
	// A broken record in the middle is skipped.
	stream = strings.Replace(stream, "data: {\"type\":\"transcript\"", "data: {oops\n\ndata: {\"type\":\"transcript\"", 1)

	var out, diag bytes.Buffer
	res, err := renderTurn(strings.NewReader(stream), &out, &diag)
	if err != nil {
		t.Fatalf("renderTurn() error = %v", err)
	}
	if res.userText != "Hi" {
		t.Errorf("userText = %q, want %q", res.userText, "Hi")
	}
	if res.reply != "Hello. How are you?" {
		t.Errorf("reply = %q, want %q", res.reply, "Hello. How are you?")
	}
	if res.sentences != 2 {
		t.Errorf("sentences = %d, want 2", res.sentences)
	}
	if got, want := res.audio.Bytes(), []byte{1, 0, 2, 0, 3, 0}; !bytes.Equal(got, want) {
		t.Errorf("audio = %v, want %v", got, want)
	}
	want := "you: Hi\n  [0] Hello.\n  [1] How are you?\nassistant: Hello. How are you?\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestRenderTurnErrors(t *testing.T) {
	tests := []struct {
		name    string
		stream  string
		wantErr string
	}{
		{
			name:    "error event",
			stream:  sseBody(t, voice.UserTranscript{Text: "Hi"}, voice.Error{Message: "transcription failed"}),
			wantErr: "turn failed: transcription failed",
		},
		{
			name:    "truncated",
			stream:  sseBody(t, voice.UserTranscript{Text: "Hi"}, voice.Sentence{Seq: 0, Text: "Hel"}),
			wantErr: "stream ended before the turn completed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			_, err := renderTurn(strings.NewReader(tt.stream), &out, &out)
			if err == nil || err.Error() != tt.wantErr {
				t.Errorf("renderTurn() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestFormatFromPath(t *testing.T) {
	tests := map[string]string{
		"a.wav":        "wav",
		"a.WEBM":       "webm",
		"dir/a.mp3":    "mp3",
		"no-extension": "wav",
	}
	for in, want := range tests {
		if got := formatFromPath(in); got != want {
			t.Errorf("formatFromPath(%q) = %q, want %q", in, got, want)
		}
	}
}

// fakeServer serves the routes the CLI uses.
func fakeServer(t *testing.T, events ...voice.Event) (*httptest.Server, *[]string) {
	t.Helper()
	var seen []string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/conversations", func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, "create:"+r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"conv-1","title":"New Chat","created_at":"2025-01-01T00:00:00Z"}`))
	})
	mux.HandleFunc("GET /api/conversations", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid token"}`))
	})
	mux.HandleFunc("POST /api/conversations/{id}/voice-stream", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Audio       string `json:"audio"`
			InputFormat string `json:"inputFormat"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		audio, _ := base64.StdEncoding.DecodeString(body.Audio)
		seen = append(seen, "stream:"+r.PathValue("id")+":"+body.InputFormat+":"+string(audio))
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("X-Turn-ID", "turn-1")
		_, _ = w.Write([]byte(sseBody(t, events...)))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestStreamCommand(t *testing.T) {
	srv, seen := fakeServer(t,
		voice.UserTranscript{Text: "Hi"},
		voice.Sentence{Seq: 0, Text: "Hello."},
		voice.Audio{Seq: 0, Data: []byte{1, 0, 2, 0}},
		voice.Transcript{Text: "Hello."},
		voice.Done{},
	)
	dir := t.TempDir()
	in := filepath.Join(dir, "question.webm")
	if err := os.WriteFile(in, []byte("webm-bytes"), 0644); err != nil {
		t.Fatal(err)
	}
	outPath := filepath.Join(dir, "reply.wav")

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs([]string{"stream", in, "-o", outPath, "--server", srv.URL, "--token", "tok"})
	t.Cleanup(func() { rootCmd.SetArgs(nil); streamOutput = "" })

	if err := Execute(); err != nil {
		t.Fatalf("Execute() error = %v (stderr %s)", err, stderr.String())
	}

	wantSeen := []string{"create:Bearer tok", "stream:conv-1:webm:webm-bytes"}
	if strings.Join(*seen, ",") != strings.Join(wantSeen, ",") {
		t.Errorf("requests = %v, want %v", *seen, wantSeen)
	}
	if !strings.Contains(stdout.String(), "assistant: Hello.") {
		t.Errorf("stdout = %q, want the reply", stdout.String())
	}

	wav, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if len(wav) != 44+4 || string(wav[:4]) != "RIFF" {
		t.Errorf("output = %d bytes, want a 48 byte WAV", len(wav))
	}
}

func TestConversationsListReportsServerError(t *testing.T) {
	srv, _ := fakeServer(t)

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetArgs([]string{"conversations", "list", "--server", srv.URL})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := Execute()
	if err == nil || err.Error() != "server returned 401: invalid token" {
		t.Errorf("Execute() error = %v, want the server's message", err)
	}
}

func TestTokenCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs([]string{"token", "--secret", "s3cret", "--subject", "alice"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	if err := Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	subject, err := httpapi.ParseToken("s3cret", strings.TrimSpace(stdout.String()))
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if subject != "alice" {
		t.Errorf("subject = %q, want %q", subject, "alice")
	}
}
