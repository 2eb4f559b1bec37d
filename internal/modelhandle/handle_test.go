package modelhandle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

var errUnavailable = errors.New("unavailable")

type model struct{ id int }

func TestGetInitializesOnceUnderConcurrency(t *testing.T) {
	release := make(chan struct{})
	h := New("test", errUnavailable, func(ctx context.Context) (*model, error) {
		<-release
		return &model{id: 7}, nil
	})

	const callers = 16
	var wg sync.WaitGroup
	results := make(chan *model, callers)
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := h.Get(context.Background())
			if err != nil {
				errs <- err
				return
			}
			results <- m
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		t.Fatalf("expected success, got error: %v", err)
	}
	var first *model
	for m := range results {
		if first == nil {
			first = m
		}
		if m != first {
			t.Fatalf("expected every caller to share one handle, got %p and %p", first, m)
		}
	}
	if got := h.Loads(); got != 1 {
		t.Fatalf("expected 1 load, got %d", got)
	}

	if _, err := h.Get(context.Background()); err != nil {
		t.Fatalf("expected cached success, got %v", err)
	}
	if got := h.Loads(); got != 1 {
		t.Fatalf("expected cached value to be reused, got %d loads", got)
	}
}

func TestGetWrapsFailureAndRetries(t *testing.T) {
	attempts := 0
	h := New("flaky", errUnavailable, func(ctx context.Context) (int, error) {
		attempts++
		if attempts == 1 {
			return 0, errors.New("missing weights")
		}
		return 42, nil
	})

	_, err := h.Get(context.Background())
	if !errors.Is(err, errUnavailable) {
		t.Fatalf("expected wrapped unavailable error, got %v", err)
	}

	v, err := h.Get(context.Background())
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
}

func TestGetHonoursCallerContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	h := New("slow", errUnavailable, func(ctx context.Context) (int, error) {
		<-release
		return 1, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := h.Get(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestGetReportsLoaderPanicAsUnavailable(t *testing.T) {
	var calls int
	h := New("test", errUnavailable, func(ctx context.Context) (*model, error) {
		calls++
		if calls == 1 {
			var table []int
			_ = table[3]
		}
		return &model{id: 1}, nil
	})

	if _, err := h.Get(context.Background()); !errors.Is(err, errUnavailable) {
		t.Fatalf("expected errUnavailable after a loader panic, got %v", err)
	}
	m, err := h.Get(context.Background())
	if err != nil || m.id != 1 {
		t.Fatalf("expected the retry to load, got %v, %v", m, err)
	}
}

func TestProbeHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := ProbeHTTP(context.Background(), srv.Client(), srv.URL+"/health"); err != nil {
		t.Fatalf("expected healthy service, got %v", err)
	}
	if err := ProbeHTTP(context.Background(), srv.Client(), srv.URL+"/other"); err == nil {
		t.Fatal("expected non-200 answer to fail the probe")
	}
}
