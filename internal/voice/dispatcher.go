package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/lukasbauer/kaskada/internal/segment"
	"github.com/lukasbauer/kaskada/internal/tts"
)

// synthesisStream is the audio of one sentence. A single producer goroutine
// fills chunks and closes it when done; err is written before the close and
// may be read once chunks is drained.
type synthesisStream struct {
	seq    int
	chunks chan []byte
	err    error
	cancel context.CancelFunc
}

// dispatcher starts synthesis for each sentence on its own goroutine.
type dispatcher struct {
	synth  tts.Synthesizer
	voice  tts.Voice
	buffer int

	// With a concurrency cap, sentences take permits strictly in sequence
	// order: each waits for its predecessor to hold one first.
	sem  *semaphore.Weighted
	prev chan struct{}

	wg sync.WaitGroup
}

func newDispatcher(synth tts.Synthesizer, voice tts.Voice, buffer, maxConcurrent int) *dispatcher {
	d := &dispatcher{synth: synth, voice: voice, buffer: buffer}
	if maxConcurrent > 0 {
		d.sem = semaphore.NewWeighted(int64(maxConcurrent))
		d.prev = make(chan struct{})
		close(d.prev)
	}
	return d
}

// dispatch registers synthesis of s and returns immediately.
func (d *dispatcher) dispatch(ctx context.Context, s segment.Sentence) *synthesisStream {
	ctx, cancel := context.WithCancel(ctx)
	st := &synthesisStream{
		seq:    s.Seq,
		chunks: make(chan []byte, d.buffer),
		cancel: cancel,
	}

	var prev, mine chan struct{}
	if d.sem != nil {
		prev, mine = d.prev, make(chan struct{})
		d.prev = mine
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer close(st.chunks)

		if d.sem != nil {
			if err := d.acquire(ctx, prev, mine); err != nil {
				st.err = fmt.Errorf("%w: %w", ErrSynthesisStart, err)
				return
			}
			defer d.sem.Release(1)
		}
		st.err = d.produce(ctx, st, s.Text)
	}()
	return st
}

func (d *dispatcher) acquire(ctx context.Context, prev <-chan struct{}, mine chan struct{}) error {
	defer close(mine)
	select {
	case <-prev:
	case <-ctx.Done():
		return ctx.Err()
	}
	return d.sem.Acquire(ctx, 1)
}

func (d *dispatcher) produce(ctx context.Context, st *synthesisStream, text string) (err error) {
	ctx, span := tracer.Start(ctx, "synthesize sentence",
		trace.WithAttributes(
			attribute.Int("sentence.seq", st.seq),
			attribute.Int("sentence.chars", len(text)),
		))
	chunks := 0
	defer func() {
		span.SetAttributes(attribute.Int("audio.chunks", chunks))
		if err != nil && ctx.Err() == nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	stream, err := d.synth.SynthesizeStream(ctx, text, d.voice)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSynthesisStart, err)
	}
	defer stream.Close()

	for {
		chunk, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSynthesisChunk, err)
		}
		if len(chunk) == 0 {
			continue
		}
		select {
		case st.chunks <- chunk:
			chunks++
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// wait blocks until every producer has exited.
func (d *dispatcher) wait() {
	d.wg.Wait()
}
