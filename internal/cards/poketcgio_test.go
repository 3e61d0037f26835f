package cards

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/guarzo/pokepack/internal/model"
)

// catalogServer serves totalCount cards, one id per card, "card-0001" style.
func catalogServer(t *testing.T, totalCount int, handler func(w http.ResponseWriter, r *http.Request) bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler != nil && handler(w, r) {
			return
		}
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))

		var data []string
		for i := (page - 1) * pageSize; i < page*pageSize && i < totalCount; i++ {
			data = append(data, fmt.Sprintf(`{"id":"card-%04d","name":"Card %d"}`, i, i))
		}
		body := "["
		for i, d := range data {
			if i > 0 {
				body += ","
			}
			body += d
		}
		body += "]"
		fmt.Fprintf(w, `{"data":%s,"page":%d,"pageSize":%d,"count":%d,"totalCount":%d}`,
			body, page, pageSize, len(data), totalCount)
	}))
}

func TestPokeTCGIO_TotalCount(t *testing.T) {
	srv := catalogServer(t, 1234, nil)
	defer srv.Close()

	p := NewPokeTCGIO(srv.URL, "", nil)
	total, err := p.TotalCount(context.Background())
	if err != nil {
		t.Fatalf("TotalCount failed: %v", err)
	}
	if total != 1234 {
		t.Errorf("expected 1234, got %d", total)
	}
}

func TestPokeTCGIO_FetchPage(t *testing.T) {
	srv := catalogServer(t, 7, nil)
	defer srv.Close()

	p := NewPokeTCGIO(srv.URL, "", nil)

	tests := []struct {
		name     string
		page     int
		pageSize int
		want     int
		firstID  string
	}{
		{name: "first page", page: 1, pageSize: 3, want: 3, firstID: "card-0000"},
		{name: "last partial page", page: 3, pageSize: 3, want: 1, firstID: "card-0006"},
		{name: "past the end", page: 4, pageSize: 3, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.FetchPage(context.Background(), tt.page, tt.pageSize, time.Second)
			if err != nil {
				t.Fatalf("FetchPage failed: %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("expected %d cards, got %d", tt.want, len(got))
			}
			if tt.want > 0 && got[0].ID != tt.firstID {
				t.Errorf("expected first id %q, got %q", tt.firstID, got[0].ID)
			}
		})
	}
}

func TestPokeTCGIO_RequestHeaders(t *testing.T) {
	var gotKey, gotPageSize string
	srv := catalogServer(t, 1, func(w http.ResponseWriter, r *http.Request) bool {
		gotKey = r.Header.Get("X-Api-Key")
		gotPageSize = r.URL.Query().Get("pageSize")
		return false
	})
	defer srv.Close()

	p := NewPokeTCGIO(srv.URL, "test-key", nil)
	if _, err := p.FetchPage(context.Background(), 1, 1000, time.Second); err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}

	if gotKey != "test-key" {
		t.Errorf("expected X-Api-Key test-key, got %q", gotKey)
	}
	if gotPageSize != "250" {
		t.Errorf("expected pageSize clamped to 250, got %q", gotPageSize)
	}
}

func TestPokeTCGIO_ErrorScenarios(t *testing.T) {
	tests := []struct {
		name    string
		handler func(w http.ResponseWriter, r *http.Request) bool
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) bool {
				w.WriteHeader(http.StatusInternalServerError)
				return true
			},
		},
		{
			name: "missing data",
			handler: func(w http.ResponseWriter, r *http.Request) bool {
				fmt.Fprint(w, `{"totalCount":10}`)
				return true
			},
		},
		{
			name: "malformed json",
			handler: func(w http.ResponseWriter, r *http.Request) bool {
				fmt.Fprint(w, `{"data":[`)
				return true
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := catalogServer(t, 10, tt.handler)
			defer srv.Close()

			p := NewPokeTCGIO(srv.URL, "", nil)
			_, err := p.FetchPage(context.Background(), 2, 5, time.Second)
			if err == nil {
				t.Fatal("expected error")
			}
			var fe *FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("expected *FetchError, got %T", err)
			}
			if fe.Page != 2 {
				t.Errorf("expected page 2 in error, got %d", fe.Page)
			}
		})
	}
}

func TestFetchWithRetry_RetrySuccess(t *testing.T) {
	var calls int32
	srv := catalogServer(t, 5, func(w http.ResponseWriter, r *http.Request) bool {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return true
		}
		return false
	})
	defer srv.Close()

	p := NewPokeTCGIO(srv.URL, "", nil)
	policy := RetryPolicy{Attempts: 3, Delay: time.Millisecond, Timeout: time.Second}

	got, err := FetchWithRetry(context.Background(), p, 1, 5, policy)
	if err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if len(got) != 5 {
		t.Errorf("expected 5 cards, got %d", len(got))
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestFetchWithRetry_Exhausted(t *testing.T) {
	var calls int32
	srv := catalogServer(t, 5, func(w http.ResponseWriter, r *http.Request) bool {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		return true
	})
	defer srv.Close()

	p := NewPokeTCGIO(srv.URL, "", nil)
	policy := RetryPolicy{Attempts: 4, Delay: time.Millisecond, Timeout: time.Second}

	_, err := FetchWithRetry(context.Background(), p, 7, 5, policy)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
	if fe.Page != 7 {
		t.Errorf("expected page 7, got %d", fe.Page)
	}
	if calls != 4 {
		t.Errorf("expected 4 attempts, got %d", calls)
	}
}

type stubFetcher struct {
	err error
}

func (s stubFetcher) TotalCount(context.Context) (int, error) { return 0, nil }

func (s stubFetcher) FetchPage(context.Context, int, int, time.Duration) ([]model.Card, error) {
	return nil, s.err
}

func TestFetchWithRetry_WrapsPlainErrors(t *testing.T) {
	cause := errors.New("boom")
	_, err := FetchWithRetry(context.Background(), stubFetcher{err: cause}, 3, 10, RetryPolicy{Attempts: 1})

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %T", err)
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable with errors.Is")
	}
}

func TestFetchWithRetry_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, err := FetchWithRetry(ctx, stubFetcher{err: errors.New("down")}, 1, 10,
		RetryPolicy{Attempts: 5, Delay: time.Hour})
	if err == nil {
		t.Fatal("expected error")
	}
	if time.Since(start) > time.Second {
		t.Error("retry loop did not stop on cancelled context")
	}
}

func TestTotalPages(t *testing.T) {
	tests := []struct {
		total, pageSize, want int
	}{
		{total: 0, pageSize: 250, want: 0},
		{total: 1, pageSize: 250, want: 1},
		{total: 250, pageSize: 250, want: 1},
		{total: 251, pageSize: 250, want: 2},
		{total: 18000, pageSize: 250, want: 72},
		{total: 10, pageSize: 0, want: 1},
		{total: 10, pageSize: 3, want: 4},
	}

	for _, tt := range tests {
		if got := TotalPages(tt.total, tt.pageSize); got != tt.want {
			t.Errorf("TotalPages(%d, %d) = %d, want %d", tt.total, tt.pageSize, got, tt.want)
		}
	}
}
