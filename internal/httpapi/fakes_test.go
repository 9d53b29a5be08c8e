package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/lukasbauer/kaskada/internal/llm"
	"github.com/lukasbauer/kaskada/internal/store"
	"github.com/lukasbauer/kaskada/internal/stt"
	"github.com/lukasbauer/kaskada/internal/tts"
	"github.com/lukasbauer/kaskada/internal/voice"
)

// memStore is an in-memory ConversationStore.
type memStore struct {
	mu       sync.Mutex
	next     int
	convs    map[string]store.Conversation
	messages map[string][]store.Message
	failList error
}

func newMemStore() *memStore {
	return &memStore{
		convs:    make(map[string]store.Conversation),
		messages: make(map[string][]store.Message),
	}
}

func (s *memStore) id(prefix string) string {
	s.next++
	return fmt.Sprintf("%s-%d", prefix, s.next)
}

func (s *memStore) CreateConversation(_ context.Context, ownerID, title string) (*store.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := store.Conversation{ID: s.id("conv"), OwnerID: ownerID, Title: title, CreatedAt: time.Now()}
	s.convs[c.ID] = c
	return &c, nil
}

func (s *memStore) ListConversations(_ context.Context, ownerID string, limit int) ([]store.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failList != nil {
		return nil, s.failList
	}
	out := []store.Conversation{}
	for _, c := range s.convs {
		if c.OwnerID == ownerID && len(out) < limit {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memStore) GetConversation(_ context.Context, ownerID, id string) (*store.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok || c.OwnerID != ownerID {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *memStore) GetConversationDetail(ctx context.Context, ownerID, id string) (*store.ConversationDetail, error) {
	c, err := s.GetConversation(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	msgs, _ := s.ListMessages(ctx, id)
	return &store.ConversationDetail{Conversation: *c, Messages: msgs}, nil
}

func (s *memStore) DeleteConversation(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok || c.OwnerID != ownerID {
		return store.ErrNotFound
	}
	delete(s.convs, id)
	delete(s.messages, id)
	return nil
}

func (s *memStore) CreateMessage(_ context.Context, conversationID, role, content string) (*store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := store.Message{ID: s.id("msg"), ConversationID: conversationID, Role: role, Content: content, CreatedAt: time.Now()}
	s.messages[conversationID] = append(s.messages[conversationID], m)
	return &m, nil
}

func (s *memStore) ListMessages(_ context.Context, conversationID string) ([]store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.Message(nil), s.messages[conversationID]...), nil
}

// scriptedRunner replays events. With block set it emits the first event,
// then waits for cancellation and ends with an Error.
type scriptedRunner struct {
	events  []voice.Event
	block   bool
	started chan voice.Options

	mu    sync.Mutex
	opts  voice.Options
	audio []byte
	lang  string
}

func (r *scriptedRunner) Run(ctx context.Context, audio []byte, opts voice.Options) iter.Seq[voice.Event] {
	r.mu.Lock()
	r.opts = opts
	r.audio = audio
	r.lang = stt.LanguageFrom(ctx)
	r.mu.Unlock()
	return func(yield func(voice.Event) bool) {
		if r.started != nil {
			r.started <- opts
		}
		for _, ev := range r.events {
			if !yield(ev) {
				return
			}
		}
		if r.block {
			<-ctx.Done()
			yield(voice.Error{Message: "turn canceled", Err: ctx.Err()})
		}
	}
}

func (r *scriptedRunner) lastOptions() voice.Options {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opts
}

func (r *scriptedRunner) lastLanguage() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lang
}

// countingSynth returns fixed PCM and counts calls.
type countingSynth struct {
	mu    sync.Mutex
	calls int
	pcm   []byte
	err   error
}

func (s *countingSynth) Synthesize(_ context.Context, _ string, _ tts.Voice) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.pcm, nil
}

func (s *countingSynth) SynthesizeStream(context.Context, string, tts.Voice) (tts.Stream, error) {
	return nil, errors.New("not used")
}

func (s *countingSynth) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type testServer struct {
	handler http.Handler
	store   *memStore
	runner  *scriptedRunner
	synth   *countingSynth
	turns   *TurnRegistry
}

func newTestServer(cfg RouterConfig, svc Services) *testServer {
	ts := &testServer{
		store:  newMemStore(),
		runner: &scriptedRunner{},
		synth:  &countingSynth{pcm: []byte{0, 0, 1, 0}},
		turns:  NewTurnRegistry(),
	}
	if svc.Store == nil {
		svc.Store = ts.store
	}
	if svc.Pipeline == nil {
		svc.Pipeline = ts.runner
	} else if r, ok := svc.Pipeline.(*scriptedRunner); ok {
		ts.runner = r
	}
	if svc.Synthesizer == nil {
		svc.Synthesizer = ts.synth
	}
	if svc.Turns == nil {
		svc.Turns = ts.turns
	}
	ts.handler = NewRouter(cfg, log.New(io.Discard, "", 0), svc)
	return ts
}

// fixedTranscriber returns text or err and records the language hint.
type fixedTranscriber struct {
	text string
	err  error

	mu   sync.Mutex
	lang string
}

func (f *fixedTranscriber) Transcribe(ctx context.Context, _ []byte, _ stt.Format) (string, error) {
	f.mu.Lock()
	f.lang = stt.LanguageFrom(ctx)
	f.mu.Unlock()
	return f.text, f.err
}

// scriptedAudio replays deltas, then ends with err or io.EOF.
type scriptedAudio struct {
	deltas []llm.AudioDelta
	err    error

	mu       sync.Mutex
	voice    string
	messages []llm.Message
}

func (s *scriptedAudio) StreamAudio(_ context.Context, _ string, voice string, messages []llm.Message) (llm.AudioStream, error) {
	s.mu.Lock()
	s.voice = voice
	s.messages = messages
	s.mu.Unlock()
	return &scriptedAudioStream{deltas: s.deltas, err: s.err}, nil
}

type scriptedAudioStream struct {
	deltas []llm.AudioDelta
	err    error
}

func (s *scriptedAudioStream) Next() (llm.AudioDelta, error) {
	if len(s.deltas) == 0 {
		if s.err != nil {
			return llm.AudioDelta{}, s.err
		}
		return llm.AudioDelta{}, io.EOF
	}
	d := s.deltas[0]
	s.deltas = s.deltas[1:]
	return d, nil
}

func (s *scriptedAudioStream) Close() error { return nil }
