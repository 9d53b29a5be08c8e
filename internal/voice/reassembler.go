package voice

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// reassembler re-serializes concurrently produced sentence audio into
// sequence order. It is owned by the consuming goroutine.
type reassembler struct {
	next    int
	streams map[int]*synthesisStream
	timeout time.Duration

	// onFailure is told about sentences whose synthesis failed. A non-nil
	// return aborts the drain with that error.
	onFailure func(seq int, err error) error
}

func newReassembler(timeout time.Duration, onFailure func(int, error) error) *reassembler {
	return &reassembler{
		streams:   make(map[int]*synthesisStream),
		timeout:   timeout,
		onFailure: onFailure,
	}
}

func (r *reassembler) add(st *synthesisStream) {
	r.streams[st.seq] = st
}

func (r *reassembler) pending() int {
	return len(r.streams)
}

// drainReady emits chunks of the head-of-line sentence that are already
// buffered, advancing past sentences that have finished. It never waits.
func (r *reassembler) drainReady(yield func(Audio) bool) error {
	for {
		st, ok := r.streams[r.next]
		if !ok {
			return nil
		}
		select {
		case chunk, open := <-st.chunks:
			if !open {
				if err := r.finish(st, st.err); err != nil {
					return err
				}
				continue
			}
			if !yield(Audio{Seq: st.seq, Data: chunk}) {
				return ErrAbandoned
			}
		default:
			return nil
		}
	}
}

// drainAll waits for and emits every remaining chunk in sequence order.
func (r *reassembler) drainAll(ctx context.Context, yield func(Audio) bool) error {
	for len(r.streams) > 0 {
		st, ok := r.streams[r.next]
		if !ok {
			r.next = r.lowest()
			continue
		}

		chunk, open, err := r.receive(ctx, st)
		switch {
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			st.cancel()
			if ferr := r.finish(st, err); ferr != nil {
				return ferr
			}
		case !open:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if ferr := r.finish(st, st.err); ferr != nil {
				return ferr
			}
		default:
			if !yield(Audio{Seq: st.seq, Data: chunk}) {
				return ErrAbandoned
			}
		}
	}
	return nil
}

func (r *reassembler) receive(ctx context.Context, st *synthesisStream) ([]byte, bool, error) {
	if r.timeout <= 0 {
		select {
		case chunk, open := <-st.chunks:
			return chunk, open, nil
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()
	select {
	case chunk, open := <-st.chunks:
		return chunk, open, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case <-timer.C:
		return nil, false, fmt.Errorf("%w: no audio for %s", ErrSynthesisTimeout, r.timeout)
	}
}

// finish removes st and moves the cursor past it.
func (r *reassembler) finish(st *synthesisStream, err error) error {
	delete(r.streams, st.seq)
	if st.seq >= r.next {
		r.next = st.seq + 1
	}
	if err == nil || errors.Is(err, context.Canceled) || r.onFailure == nil {
		return nil
	}
	return r.onFailure(st.seq, err)
}

func (r *reassembler) lowest() int {
	first := true
	low := 0
	for seq := range r.streams {
		if first || seq < low {
			low, first = seq, false
		}
	}
	return low
}

// close cancels every outstanding producer.
func (r *reassembler) close() {
	for seq, st := range r.streams {
		st.cancel()
		delete(r.streams, seq)
	}
}
