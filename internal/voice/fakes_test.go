package voice

import (
	"context"
	"fmt"
	"io"
	"iter"
	"sync"
	"time"

	"github.com/lukasbauer/kaskada/internal/llm"
	"github.com/lukasbauer/kaskada/internal/stt"
	"github.com/lukasbauer/kaskada/internal/tts"
)

type fakeTranscriber struct {
	text   string
	err    error
	format stt.Format
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ []byte, format stt.Format) (string, error) {
	f.format = format
	return f.text, f.err
}

type fakeCompleter struct {
	tokens  []string
	openErr error
	// failAfter > 0 makes Next fail once that many tokens were returned.
	failAfter int

	model    string
	messages []llm.Message
	closed   bool
}

func (f *fakeCompleter) Stream(_ context.Context, model string, messages []llm.Message) (llm.TokenStream, error) {
	f.model, f.messages = model, messages
	if f.openErr != nil {
		return nil, f.openErr
	}
	return &sliceTokens{f: f}, nil
}

type sliceTokens struct {
	f *fakeCompleter
	i int
}

func (s *sliceTokens) Next() (string, error) {
	if s.f.failAfter > 0 && s.i == s.f.failAfter {
		return "", fmt.Errorf("stream reset")
	}
	if s.i >= len(s.f.tokens) {
		return "", io.EOF
	}
	tok := s.f.tokens[s.i]
	s.i++
	return tok, nil
}

func (s *sliceTokens) Close() error {
	s.f.closed = true
	return nil
}

// fakeSynth produces chunksPer chunks named "<text>#<i>" for every sentence.
type fakeSynth struct {
	chunksPer int

	mu        sync.Mutex
	startErr  map[string]error
	gates     map[string]chan struct{} // Next waits for the gate first
	finished  map[string]chan struct{} // closed when the stream hits EOF
	hang      map[string]bool          // Next blocks until cancellation
	opened    int
	closed    int
	active    int
	maxActive int
	voices    []tts.Voice
}

func newFakeSynth(chunksPer int) *fakeSynth {
	return &fakeSynth{
		chunksPer: chunksPer,
		startErr:  map[string]error{},
		gates:     map[string]chan struct{}{},
		finished:  map[string]chan struct{}{},
		hang:      map[string]bool{},
	}
}

// finishedChan returns a channel closed once text has been fully produced.
func (f *fakeSynth) finishedChan(text string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.finished[text]
	if !ok {
		ch = make(chan struct{})
		f.finished[text] = ch
	}
	return ch
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string, voice tts.Voice) ([]byte, error) {
	return []byte(text), nil
}

func (f *fakeSynth) SynthesizeStream(ctx context.Context, text string, voice tts.Voice) (tts.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.voices = append(f.voices, voice)
	if err := f.startErr[text]; err != nil {
		return nil, err
	}
	f.opened++
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	done, ok := f.finished[text]
	if !ok {
		done = make(chan struct{})
		f.finished[text] = done
	}
	return &fakeStream{
		f:    f,
		ctx:  ctx,
		text: text,
		n:    f.chunksPer,
		gate: f.gates[text],
		hang: f.hang[text],
		done: done,
	}, nil
}

func (f *fakeSynth) counts() (opened, closed, maxActive int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened, f.closed, f.maxActive
}

type fakeStream struct {
	f        *fakeSynth
	ctx      context.Context
	text     string
	n, i     int
	gate     chan struct{}
	hang     bool
	done     chan struct{}
	doneOnce sync.Once
	closed   bool
}

func (s *fakeStream) Next() ([]byte, error) {
	if s.hang {
		<-s.ctx.Done()
		return nil, s.ctx.Err()
	}
	if s.gate != nil {
		select {
		case <-s.gate:
			s.gate = nil
		case <-s.ctx.Done():
			return nil, s.ctx.Err()
		}
	}
	if s.i >= s.n {
		s.doneOnce.Do(func() { close(s.done) })
		return nil, io.EOF
	}
	chunk := []byte(fmt.Sprintf("%s#%d", s.text, s.i))
	s.i++
	return chunk, nil
}

func (s *fakeStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.f.mu.Lock()
	s.f.closed++
	s.f.active--
	s.f.mu.Unlock()
	return nil
}

// recordingObserver captures callbacks for assertions.
type recordingObserver struct {
	NopObserver
	sentences []int
	failed    map[int]error
	firstSeq  int
	finished  int
	stats     Stats
	err       error
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{failed: map[int]error{}, firstSeq: -1}
}

func (o *recordingObserver) SentenceReady(seq int, _ string)    { o.sentences = append(o.sentences, seq) }
func (o *recordingObserver) SynthesisFailed(seq int, err error) { o.failed[seq] = err }
func (o *recordingObserver) FirstAudio(seq int, _ time.Duration) {
	o.firstSeq = seq
}
func (o *recordingObserver) Finished(stats Stats, err error) {
	o.finished++
	o.stats, o.err = stats, err
}

func collect(events iter.Seq[Event]) []Event {
	var out []Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}
