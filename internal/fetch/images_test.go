package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"
)

func TestAllToleratesIndividualFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "bad.jpg") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, "imagebytes-"+r.URL.Path)
	}))
	defer srv.Close()

	d := NewDownloader(4, zap.NewNop())
	urls := []string{
		srv.URL + "/a.jpg",
		srv.URL + "/bad.jpg",
		srv.URL + "/c.jpg",
	}

	results := d.All(context.Background(), urls)
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0] == nil || results[2] == nil {
		t.Error("successful downloads should be non-nil")
	}
	if results[1] != nil {
		t.Error("failed download should be nil, not an error")
	}

	valid := Valid(results)
	if len(valid) != 2 {
		t.Errorf("got %d valid results, want 2", len(valid))
	}
}

func TestAllRespectsConcurrencyLimit(t *testing.T) {
	var inflight, peak int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inflight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		fmt.Fprint(w, "ok")
		atomic.AddInt32(&inflight, -1)
	}))
	defer srv.Close()

	d := NewDownloader(2, zap.NewNop())
	urls := make([]string, 8)
	for i := range urls {
		urls[i] = fmt.Sprintf("%s/%d.jpg", srv.URL, i)
	}

	d.All(context.Background(), urls)
	if p := atomic.LoadInt32(&peak); p > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", p)
	}
}

func TestAllEmptyInput(t *testing.T) {
	d := NewDownloader(2, zap.NewNop())
	results := d.All(context.Background(), nil)
	if len(results) != 0 {
		t.Errorf("got %d results for empty input", len(results))
	}
}

func TestOneRejectsEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	d := NewDownloader(1, zap.NewNop())
	if got := d.One(context.Background(), srv.URL); got != nil {
		t.Errorf("expected nil for empty body, got %d bytes", len(got))
	}
}
