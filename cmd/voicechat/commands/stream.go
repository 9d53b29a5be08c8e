package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lukasbauer/kaskada/internal/tts"
	"github.com/lukasbauer/kaskada/internal/voice"
)

var (
	streamConversation  string
	streamVoice         string
	streamFormat        string
	streamLocale        string
	streamOutput        string
	streamShowMalformed bool
)

var streamCmd = &cobra.Command{
	Use:   "stream <audio-file>",
	Short: "Send a recording and receive the spoken reply",
	Long: `Send a recorded utterance (wav, mp3 or webm) to a conversation and print
the reply while it streams. The reply audio is written as WAV with -o.

Without -c a new conversation is created. Ctrl-C cancels the turn on the
server.

Example:
  voicechat stream question.wav -o reply.wav --voice shimmer`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		audio, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read audio: %w", err)
		}
		format := streamFormat
		if format == "" {
			format = formatFromPath(args[0])
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		c := newAPIClient()
		convID := streamConversation
		if convID == "" {
			conv, err := c.createConversation(ctx, "")
			if err != nil {
				return fmt.Errorf("create conversation: %w", err)
			}
			convID = conv.ID
			fmt.Fprintf(cmd.ErrOrStderr(), "conversation %s\n", convID)
		}

		body, turnID, err := c.startTurn(ctx, convID, turnRequest{
			Audio:       audio,
			Voice:       streamVoice,
			InputFormat: format,
			Locale:      streamLocale,
		})
		if err != nil {
			return err
		}
		defer body.Close()

		res, err := renderTurn(body, cmd.OutOrStdout(), cmd.ErrOrStderr())
		if ctx.Err() != nil && turnID != "" {
			// The server stops synthesis once it notices the closed stream;
			// canceling explicitly frees it right away.
			cancelCtx, cancelReq := context.WithTimeout(context.Background(), 5*time.Second)
			_ = c.cancelTurn(cancelCtx, turnID)
			cancelReq()
		}

		if streamOutput != "" && res.audio.Len() > 0 {
			if werr := os.WriteFile(streamOutput, tts.WAV(res.audio.Bytes(), tts.SampleRate), 0644); werr != nil {
				return errors.Join(err, fmt.Errorf("write audio: %w", werr))
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%.1fs)\n", streamOutput, res.seconds())
		}
		return err
	},
}

func init() {
	streamCmd.Flags().StringVarP(&streamConversation, "conversation", "c", "", "conversation ID (default: create one)")
	streamCmd.Flags().StringVar(&streamVoice, "voice", "", "reply voice (alloy, echo, fable, onyx, nova, shimmer)")
	streamCmd.Flags().StringVar(&streamFormat, "format", "", "input format (default: from file extension)")
	streamCmd.Flags().StringVar(&streamLocale, "locale", "", "reply locale, e.g. en-US")
	streamCmd.Flags().StringVarP(&streamOutput, "output", "o", "", "write the reply audio to this WAV file")
	streamCmd.Flags().BoolVar(&streamShowMalformed, "show-malformed", false, "report records that fail to decode")

	rootCmd.AddCommand(streamCmd)
}

func formatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".webm":
		return "webm"
	case ".mp3":
		return "mp3"
	}
	return "wav"
}

type turnResult struct {
	userText  string
	reply     string
	sentences int
	audio     bytes.Buffer
	done      bool
}

func (r *turnResult) seconds() float64 {
	// 16-bit mono
	return float64(r.audio.Len()) / 2 / tts.SampleRate
}

// renderTurn prints a turn's events as they arrive and collects its audio.
// It returns an error when the turn ended with an Error event or the stream
// broke before Done.
func renderTurn(stream io.Reader, out, diag io.Writer) (*turnResult, error) {
	res := &turnResult{}
	for ev, err := range voice.ReadEvents(stream) {
		if err != nil {
			if errors.Is(err, voice.ErrMalformedFrame) || errors.Is(err, voice.ErrUnknownEvent) {
				if streamShowMalformed {
					fmt.Fprintf(diag, "skipped record: %v\n", err)
				}
				continue
			}
			return res, fmt.Errorf("read stream: %w", err)
		}

		switch e := ev.(type) {
		case voice.UserTranscript:
			res.userText = e.Text
			fmt.Fprintf(out, "you: %s\n", e.Text)
		case voice.Sentence:
			res.sentences++
			fmt.Fprintf(out, "  [%d] %s\n", e.Seq, e.Text)
		case voice.Audio:
			res.audio.Write(e.Data)
		case voice.Transcript:
			res.reply = e.Text
			fmt.Fprintf(out, "assistant: %s\n", e.Text)
		case voice.Done:
			res.done = true
		case voice.Error:
			return res, fmt.Errorf("turn failed: %s", e.Message)
		}
	}
	if !res.done {
		return res, errors.New("stream ended before the turn completed")
	}
	return res, nil
}
