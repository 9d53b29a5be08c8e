// Package voice runs one cascading voice-chat turn: transcribe the user's
// utterance, stream a text completion, split it into sentences, synthesize
// every sentence concurrently and hand the audio back in sentence order.
package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lukasbauer/kaskada/internal/llm"
	"github.com/lukasbauer/kaskada/internal/segment"
	"github.com/lukasbauer/kaskada/internal/stt"
	"github.com/lukasbauer/kaskada/internal/tts"
)

// State is the phase a turn is in.
type State int

const (
	StateTranscribing State = iota
	StateGenerating
	StateDraining
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateTranscribing:
		return "transcribing"
	case StateGenerating:
		return "generating"
	case StateDraining:
		return "draining"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Pipeline wires the three speech and text capabilities together. It holds
// no per-turn state and may run any number of turns concurrently.
type Pipeline struct {
	transcriber stt.Transcriber
	completer   llm.Completer
	synthesizer tts.Synthesizer
	now         func() time.Time
}

// New returns a Pipeline using the given providers.
func New(transcriber stt.Transcriber, completer llm.Completer, synthesizer tts.Synthesizer) *Pipeline {
	return &Pipeline{
		transcriber: transcriber,
		completer:   completer,
		synthesizer: synthesizer,
		now:         time.Now,
	}
}

// Run returns the event sequence of one turn for the recorded utterance.
// Work starts when the sequence is ranged over. The sequence ends after a
// Done or Error event; breaking out of the loop early cancels outstanding
// generation and synthesis and waits for them to release their resources.
func (p *Pipeline) Run(ctx context.Context, audio []byte, opts Options) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		t := &turn{
			p:     p,
			opts:  opts.withDefaults(),
			yield: yield,
			start: p.now(),
		}
		t.run(ctx, audio)
	}
}

// turn is the state of a single Run. Every method runs on the consuming
// goroutine.
type turn struct {
	p     *Pipeline
	opts  Options
	yield func(Event) bool
	start time.Time
	state State
	reply strings.Builder
	stats Stats
}

func (t *turn) since() time.Duration {
	return t.p.now().Sub(t.start)
}

func (t *turn) run(ctx context.Context, audio []byte) {
	ctx, span := tracer.Start(ctx, "voice turn",
		trace.WithAttributes(
			attribute.String("turn.id", t.opts.TurnID),
			attribute.String("turn.voice", string(t.opts.Voice)),
			attribute.String("turn.model", t.opts.TextModel),
			attribute.String("turn.locale", t.opts.Locale),
			attribute.Int("turn.audio_bytes", len(audio)),
		))
	defer span.End()

	err := t.execute(ctx, audio)

	t.stats.Duration = t.since()
	span.SetAttributes(
		attribute.String("turn.state", t.state.String()),
		attribute.Int("turn.sentences", t.stats.Sentences),
		attribute.Int("turn.failed_sentences", t.stats.FailedSentences),
	)
	switch {
	case err == nil:
		logger.InfoContext(ctx, "turn completed",
			"turn_id", t.opts.TurnID,
			"sentences", t.stats.Sentences,
			"audio_bytes", t.stats.AudioBytes,
			"duration_ms", t.stats.Duration.Milliseconds())
	case errors.Is(err, ErrAbandoned):
		logger.InfoContext(ctx, "turn abandoned", "turn_id", t.opts.TurnID, "state", t.state.String())
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	t.opts.Observer.Finished(t.stats, err)
}

func (t *turn) execute(ctx context.Context, audio []byte) error {
	t.state = StateTranscribing
	text, err := t.p.transcriber.Transcribe(ctx, audio, t.opts.InputFormat)
	if err != nil {
		return t.fail(ctx, "transcription failed", fmt.Errorf("%w: %w", ErrTranscription, err))
	}
	t.stats.UserText = text
	t.opts.Observer.Transcribed(text, t.since())
	if !t.yield(UserTranscript{Text: text}) {
		return ErrAbandoned
	}

	t.state = StateGenerating
	seg := segment.New(t.opts.Locale)
	disp := newDispatcher(t.p.synthesizer, t.opts.Voice, t.opts.ChunkBuffer, t.opts.MaxConcurrentSynthesis)
	asm := newReassembler(t.opts.ChunkTimeout, t.synthesisFailed)
	defer func() {
		asm.close()
		disp.wait()
	}()

	messages := llm.BuildMessages(t.opts.SystemPrompt, t.opts.ChatHistory, text)
	stream, err := t.p.completer.Stream(ctx, t.opts.TextModel, messages)
	if err != nil {
		return t.fail(ctx, "completion failed", fmt.Errorf("%w: %w", ErrCompletion, err))
	}
	defer stream.Close()

	for {
		token, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return t.fail(ctx, "completion failed", fmt.Errorf("%w: %w", ErrCompletion, err))
		}
		if token == "" {
			continue
		}
		if t.stats.Tokens == 0 {
			t.stats.FirstToken = t.since()
			t.opts.Observer.FirstToken(t.stats.FirstToken)
		}
		t.stats.Tokens++
		t.reply.WriteString(token)

		for _, s := range seg.Feed(token) {
			if err := t.sentence(ctx, s, disp, asm); err != nil {
				return err
			}
		}
		if err := asm.drainReady(t.audio); err != nil {
			return t.drainFailed(ctx, err)
		}
	}

	t.state = StateDraining
	if s, ok := seg.Flush(); ok {
		if err := t.sentence(ctx, s, disp, asm); err != nil {
			return err
		}
	}
	if err := asm.drainAll(ctx, t.audio); err != nil {
		return t.drainFailed(ctx, err)
	}

	t.state = StateDone
	t.stats.ReplyText = t.reply.String()
	if !t.yield(Transcript{Text: t.stats.ReplyText}) {
		return ErrAbandoned
	}
	if !t.yield(Done{}) {
		return ErrAbandoned
	}
	return nil
}

// sentence announces s and starts its synthesis.
func (t *turn) sentence(ctx context.Context, s segment.Sentence, disp *dispatcher, asm *reassembler) error {
	t.stats.Sentences++
	t.stats.SpokenChars += utf8.RuneCountInString(s.Text)
	t.opts.Observer.SentenceReady(s.Seq, s.Text)
	if !t.yield(Sentence{Seq: s.Seq, Text: s.Text}) {
		return ErrAbandoned
	}
	asm.add(disp.dispatch(ctx, s))
	return nil
}

func (t *turn) audio(a Audio) bool {
	if t.stats.AudioChunks == 0 {
		t.stats.FirstAudio = t.since()
		t.opts.Observer.FirstAudio(a.Seq, t.stats.FirstAudio)
	}
	t.stats.AudioChunks++
	t.stats.AudioBytes += len(a.Data)
	return t.yield(a)
}

func (t *turn) synthesisFailed(seq int, err error) error {
	t.stats.FailedSentences++
	t.opts.Observer.SynthesisFailed(seq, err)
	if t.opts.AbortOnSynthesisError {
		return err
	}
	logger.Warn("skipping sentence after synthesis failure",
		"turn_id", t.opts.TurnID, "seq", seq, "error", err)
	return nil
}

func (t *turn) drainFailed(ctx context.Context, err error) error {
	if errors.Is(err, ErrAbandoned) {
		return err
	}
	if ctx.Err() != nil {
		return t.fail(ctx, "turn canceled", err)
	}
	return t.fail(ctx, "speech synthesis failed", err)
}

// fail emits the terminal Error event.
func (t *turn) fail(ctx context.Context, message string, err error) error {
	state := t.state
	t.state = StateFailed
	logger.ErrorContext(ctx, "turn failed",
		"turn_id", t.opts.TurnID, "state", state.String(), "error", err)
	t.yield(Error{Message: message, Err: err})
	return err
}
