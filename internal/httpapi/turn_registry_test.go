package httpapi

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

func noopCancel() {}

func TestTurnRegistry_AddAndDone(t *testing.T) {
	tr := NewTurnRegistry()

	if tr.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d, want 0", tr.ActiveCount())
	}

	if !tr.Add("a", "", noopCancel) {
		t.Error("Add() should return true when not draining")
	}
	if !tr.Add("b", "", noopCancel) {
		t.Error("Add() should return true when not draining")
	}
	if tr.ActiveCount() != 2 {
		t.Errorf("ActiveCount() = %d, want 2", tr.ActiveCount())
	}

	tr.Done("a")
	if tr.ActiveCount() != 1 {
		t.Errorf("ActiveCount() = %d, want 1 after one Done()", tr.ActiveCount())
	}
	tr.Done("b")
	if tr.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d, want 0 after all Done()", tr.ActiveCount())
	}
}

func TestTurnRegistry_Draining(t *testing.T) {
	tr := NewTurnRegistry()

	if tr.IsDraining() {
		t.Error("IsDraining() should be false initially")
	}
	if !tr.Add("before", "", noopCancel) {
		t.Error("Add() should succeed before draining")
	}

	tr.StartDraining()

	if !tr.IsDraining() {
		t.Error("IsDraining() should be true after StartDraining()")
	}
	if tr.Add("after", "", noopCancel) {
		t.Error("Add() should return false when draining")
	}
	if tr.ActiveCount() != 1 {
		t.Errorf("ActiveCount() = %d, want 1", tr.ActiveCount())
	}

	tr.Done("before")
	if tr.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d, want 0", tr.ActiveCount())
	}
}

func TestTurnRegistry_WaitBlocksUntilDone(t *testing.T) {
	tr := NewTurnRegistry()
	tr.Add("a", "", noopCancel)
	tr.Add("b", "", noopCancel)

	done := make(chan struct{})
	go func() {
		tr.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.Error("Wait() should block while turns are active")
	default:
	}

	tr.Done("a")
	select {
	case <-done:
		t.Error("Wait() should block while turns are active")
	default:
	}

	tr.Done("b")
	<-done
}

func TestTurnRegistry_Cancel(t *testing.T) {
	tr := NewTurnRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr.Add("turn-1", "alice", cancel)

	if tr.Cancel("bob", "turn-1") {
		t.Error("Cancel() by another owner should return false")
	}
	if ctx.Err() != nil {
		t.Fatal("turn canceled by another owner")
	}
	if tr.Cancel("alice", "missing") {
		t.Error("Cancel() of unknown turn should return false")
	}
	if !tr.Cancel("alice", "turn-1") {
		t.Error("Cancel() by owner should return true")
	}
	if ctx.Err() != context.Canceled {
		t.Errorf("ctx.Err() = %v, want %v", ctx.Err(), context.Canceled)
	}
}

func TestTurnRegistry_CancelAll(t *testing.T) {
	tr := NewTurnRegistry()
	var ctxs []context.Context
	for i := range 3 {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		ctxs = append(ctxs, ctx)
		tr.Add(fmt.Sprintf("turn-%d", i), "", cancel)
	}

	tr.CancelAll()

	for i, ctx := range ctxs {
		if ctx.Err() == nil {
			t.Errorf("turn %d still running after CancelAll()", i)
		}
	}
}

func TestTurnRegistry_DrainDuringConcurrentAdds(t *testing.T) {
	tr := NewTurnRegistry()
	const n = 100

	var wg sync.WaitGroup
	var accepted, rejected int64
	var mu sync.Mutex

	wg.Add(n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("turn-%d", i)
		go func() {
			defer wg.Done()
			if tr.Add(id, "", noopCancel) {
				mu.Lock()
				accepted++
				mu.Unlock()
				defer tr.Done(id)
			} else {
				mu.Lock()
				rejected++
				mu.Unlock()
			}
		}()

		if i == n/2 {
			tr.StartDraining()
		}
	}

	wg.Wait()

	if accepted+rejected != n {
		t.Errorf("accepted(%d) + rejected(%d) != %d", accepted, rejected, n)
	}
	if rejected == 0 {
		t.Error("expected some turns to be rejected after draining started")
	}
	if tr.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d, want 0", tr.ActiveCount())
	}
}

func TestReadyzEndpoint(t *testing.T) {
	tr := NewTurnRegistry()
	r := &Router{
		logger: log.New(io.Discard, "", 0),
		turns:  tr,
	}

	t.Run("returns 200 when not draining", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
		rec := httptest.NewRecorder()
		r.handleReadyz(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		if body := rec.Body.String(); body != "ok" {
			t.Errorf("body = %q, want %q", body, "ok")
		}
	})

	t.Run("returns 503 when draining", func(t *testing.T) {
		tr.StartDraining()

		req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
		rec := httptest.NewRecorder()
		r.handleReadyz(rec, req)

		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
		}
		if body := rec.Body.String(); body != "draining" {
			t.Errorf("body = %q, want %q", body, "draining")
		}
	})
}
