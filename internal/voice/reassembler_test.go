package voice

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// readyStream returns a finished stream holding the given chunks.
func readyStream(seq int, err error, chunks ...string) *synthesisStream {
	st := &synthesisStream{
		seq:    seq,
		chunks: make(chan []byte, len(chunks)),
		err:    err,
		cancel: func() {},
	}
	for _, c := range chunks {
		st.chunks <- []byte(c)
	}
	close(st.chunks)
	return st
}

func openStream(seq int) *synthesisStream {
	return &synthesisStream{seq: seq, chunks: make(chan []byte, 4), cancel: func() {}}
}

type audioLog []string

func (l *audioLog) yield(a Audio) bool {
	*l = append(*l, string(a.Data))
	return true
}

func TestDrainReadyDoesNotWait(t *testing.T) {
	r := newReassembler(0, nil)
	head := openStream(0)
	head.chunks <- []byte("a0")
	r.add(head)
	r.add(readyStream(1, nil, "b0", "b1"))

	var got audioLog
	if err := r.drainReady(got.yield); err != nil {
		t.Fatalf("drainReady() error = %v", err)
	}
	if strings.Join(got, ",") != "a0" {
		t.Errorf("emitted %q, want [a0]", got)
	}
	if r.next != 0 || r.pending() != 2 {
		t.Errorf("next = %d, pending = %d, want 0 and 2", r.next, r.pending())
	}

	head.chunks <- []byte("a1")
	close(head.chunks)
	if err := r.drainReady(got.yield); err != nil {
		t.Fatalf("drainReady() error = %v", err)
	}
	if strings.Join(got, ",") != "a0,a1,b0,b1" {
		t.Errorf("emitted %q, want [a0 a1 b0 b1]", got)
	}
	if r.pending() != 0 {
		t.Errorf("pending = %d, want 0", r.pending())
	}
}

func TestDrainAllOrder(t *testing.T) {
	r := newReassembler(0, nil)
	// Added out of order and complete before the head.
	r.add(readyStream(2, nil, "c0"))
	r.add(readyStream(1, nil, "b0", "b1"))
	head := openStream(0)
	r.add(head)
	go func() {
		time.Sleep(10 * time.Millisecond)
		head.chunks <- []byte("a0")
		close(head.chunks)
	}()

	var got audioLog
	if err := r.drainAll(context.Background(), got.yield); err != nil {
		t.Fatalf("drainAll() error = %v", err)
	}
	if strings.Join(got, ",") != "a0,b0,b1,c0" {
		t.Errorf("emitted %q, want [a0 b0 b1 c0]", got)
	}
}

func TestDrainAllSkipsGap(t *testing.T) {
	r := newReassembler(0, nil)
	r.next = 1
	r.add(readyStream(4, nil, "e0"))
	r.add(readyStream(3, nil, "d0"))

	var got audioLog
	if err := r.drainAll(context.Background(), got.yield); err != nil {
		t.Fatalf("drainAll() error = %v", err)
	}
	if strings.Join(got, ",") != "d0,e0" {
		t.Errorf("emitted %q, want [d0 e0]", got)
	}
}

func TestDrainFailureCallback(t *testing.T) {
	boom := errors.New("boom")
	var failedSeq []int
	r := newReassembler(0, func(seq int, err error) error {
		failedSeq = append(failedSeq, seq)
		return nil
	})
	r.add(readyStream(0, boom))
	r.add(readyStream(1, context.Canceled))
	r.add(readyStream(2, nil, "c0"))

	var got audioLog
	if err := r.drainAll(context.Background(), got.yield); err != nil {
		t.Fatalf("drainAll() error = %v", err)
	}
	if len(failedSeq) != 1 || failedSeq[0] != 0 {
		t.Errorf("failures reported for %v, want [0]", failedSeq)
	}
	if strings.Join(got, ",") != "c0" {
		t.Errorf("emitted %q, want [c0]", got)
	}
}

func TestDrainFailureAborts(t *testing.T) {
	boom := errors.New("boom")
	r := newReassembler(0, func(int, error) error { return boom })
	r.add(readyStream(0, boom))
	r.add(readyStream(1, nil, "b0"))

	var got audioLog
	if err := r.drainAll(context.Background(), got.yield); !errors.Is(err, boom) {
		t.Fatalf("drainAll() error = %v, want boom", err)
	}
	if len(got) != 0 {
		t.Errorf("emitted %q after abort", got)
	}
}

func TestDrainAllTimeout(t *testing.T) {
	var failure error
	r := newReassembler(20*time.Millisecond, func(_ int, err error) error {
		failure = err
		return nil
	})
	canceled := false
	stuck := openStream(0)
	stuck.cancel = func() { canceled = true }
	r.add(stuck)
	r.add(readyStream(1, nil, "b0"))

	var got audioLog
	if err := r.drainAll(context.Background(), got.yield); err != nil {
		t.Fatalf("drainAll() error = %v", err)
	}
	if !canceled {
		t.Error("stuck stream was not canceled")
	}
	if !errors.Is(failure, ErrSynthesisTimeout) {
		t.Errorf("failure = %v, want ErrSynthesisTimeout", failure)
	}
	if strings.Join(got, ",") != "b0" {
		t.Errorf("emitted %q, want [b0]", got)
	}
}

func TestDrainAbandoned(t *testing.T) {
	r := newReassembler(0, nil)
	r.add(readyStream(0, nil, "a0", "a1"))

	stop := func(Audio) bool { return false }
	if err := r.drainReady(stop); !errors.Is(err, ErrAbandoned) {
		t.Errorf("drainReady() error = %v, want ErrAbandoned", err)
	}
	if err := r.drainAll(context.Background(), stop); !errors.Is(err, ErrAbandoned) {
		t.Errorf("drainAll() error = %v, want ErrAbandoned", err)
	}
}

func TestReassemblerClose(t *testing.T) {
	r := newReassembler(0, nil)
	n := 0
	for seq := range 3 {
		st := openStream(seq)
		st.cancel = func() { n++ }
		r.add(st)
	}
	r.close()
	if n != 3 || r.pending() != 0 {
		t.Errorf("canceled %d, pending %d, want 3 and 0", n, r.pending())
	}
}
