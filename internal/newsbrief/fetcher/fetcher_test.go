package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief/sources"
	"github.com/RobinCoderZhao/newsbrief/pkg/scraper"
)

// fakePages serves canned page text per URL with optional per-URL delays.
type fakePages struct {
	texts  map[string]string
	errs   map[string]error
	delays map[string]time.Duration

	mu       sync.Mutex
	inFlight int32
	peak     int32
}

func (p *fakePages) Fetch(ctx context.Context, url string) (*scraper.FetchResult, error) {
	n := atomic.AddInt32(&p.inFlight, 1)
	defer atomic.AddInt32(&p.inFlight, -1)
	p.mu.Lock()
	if n > p.peak {
		p.peak = n
	}
	p.mu.Unlock()

	if d := p.delays[url]; d > 0 {
		time.Sleep(d)
	}
	if err := p.errs[url]; err != nil {
		return nil, err
	}
	return &scraper.FetchResult{URL: url, StatusCode: 200, CleanText: p.texts[url]}, nil
}

func body(word string) string {
	return strings.TrimSpace(strings.Repeat(word+" ", 60))
}

func refs(urls ...string) []sources.ArticleRef {
	out := make([]sources.ArticleRef, len(urls))
	for i, u := range urls {
		out[i] = sources.ArticleRef{Title: "title " + u, SourceName: "src", URL: u}
	}
	return out
}

func TestFetch_Success(t *testing.T) {
	pages := &fakePages{texts: map[string]string{"u1": body("alpha")}}
	f := NewWithScraper(pages, DefaultConfig())

	got := f.Fetch(context.Background(), refs("u1")[0])
	if !got.OK() {
		t.Fatalf("unexpected error: %v", got.Err)
	}
	if got.Body != body("alpha") {
		t.Errorf("body = %q", got.Body)
	}
}

func TestFetch_FailureIsCarriedNotReturned(t *testing.T) {
	pages := &fakePages{errs: map[string]error{"u1": &scraper.StatusError{URL: "u1", StatusCode: 403}}}
	f := NewWithScraper(pages, DefaultConfig())

	got := f.Fetch(context.Background(), refs("u1")[0])
	if got.OK() || got.Body != "" {
		t.Fatalf("expected failure without body, got %+v", got)
	}
	var fe *FetchError
	if !errors.As(got.Err, &fe) {
		t.Fatalf("expected *FetchError, got %T", got.Err)
	}
	if fe.URL != "u1" || fe.Title != "title u1" {
		t.Errorf("unexpected FetchError fields: %+v", fe)
	}
	var se *scraper.StatusError
	if !errors.As(got.Err, &se) || se.StatusCode != 403 {
		t.Errorf("expected wrapped StatusError, got %v", got.Err)
	}
}

func TestFetch_TooShort(t *testing.T) {
	pages := &fakePages{texts: map[string]string{"u1": "Subscribe now"}}
	f := NewWithScraper(pages, DefaultConfig())

	got := f.Fetch(context.Background(), refs("u1")[0])
	if !errors.Is(got.Err, ErrTooShort) {
		t.Fatalf("expected ErrTooShort, got %v", got.Err)
	}
}

func TestFetch_Truncates(t *testing.T) {
	pages := &fakePages{texts: map[string]string{"u1": strings.Repeat("ü", 500)}}
	cfg := DefaultConfig()
	cfg.MaxChars = 300
	f := NewWithScraper(pages, cfg)

	got := f.Fetch(context.Background(), refs("u1")[0])
	if n := len([]rune(got.Body)); n != 300 {
		t.Fatalf("expected 300 runes, got %d", n)
	}
}

func TestFetch_CanceledContext(t *testing.T) {
	f := NewWithScraper(&fakePages{}, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := f.Fetch(ctx, refs("u1")[0])
	if !errors.Is(got.Err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", got.Err)
	}
}

func TestFetchAll_PreservesOrder(t *testing.T) {
	pages := &fakePages{
		texts: map[string]string{"u1": body("one"), "u2": body("two"), "u3": body("three")},
		// The first ref finishes last.
		delays: map[string]time.Duration{"u1": 30 * time.Millisecond, "u2": 10 * time.Millisecond},
	}
	f := NewWithScraper(pages, DefaultConfig())

	got := f.FetchAll(context.Background(), refs("u1", "u2", "u3"))
	if len(got) != 3 {
		t.Fatalf("expected 3 results, got %d", len(got))
	}
	for i, want := range []string{"one", "two", "three"} {
		if !strings.HasPrefix(got[i].Body, want+" ") {
			t.Errorf("result %d: expected %q body, got %q", i, want, got[i].Body)
		}
	}
}

func TestFetchAll_IsolatesFailures(t *testing.T) {
	pages := &fakePages{
		texts: map[string]string{"u1": body("one"), "u3": body("three"), "u5": body("five")},
		errs: map[string]error{
			"u2": errors.New("connection reset"),
			"u4": scraper.ErrBlocked,
		},
	}
	f := NewWithScraper(pages, DefaultConfig())

	got := f.FetchAll(context.Background(), refs("u1", "u2", "u3", "u4", "u5"))
	wantOK := []bool{true, false, true, false, true}
	for i, ok := range wantOK {
		if got[i].OK() != ok {
			t.Errorf("result %d: OK() = %v, want %v (err %v)", i, got[i].OK(), ok, got[i].Err)
		}
		if got[i].Ref.URL != fmt.Sprintf("u%d", i+1) {
			t.Errorf("result %d has ref %s", i, got[i].Ref.URL)
		}
	}
}

func TestFetchAll_RespectsConcurrency(t *testing.T) {
	urls := make([]string, 12)
	pages := &fakePages{texts: map[string]string{}, delays: map[string]time.Duration{}}
	for i := range urls {
		urls[i] = fmt.Sprintf("u%d", i)
		pages.texts[urls[i]] = body("x")
		pages.delays[urls[i]] = 10 * time.Millisecond
	}
	cfg := DefaultConfig()
	cfg.Concurrency = 2
	f := NewWithScraper(pages, cfg)

	f.FetchAll(context.Background(), refs(urls...))
	if pages.peak > 2 {
		t.Fatalf("expected at most 2 concurrent fetches, saw %d", pages.peak)
	}
}

func TestNewWithScraper_ClampsConcurrency(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Concurrency = 50
	if f := NewWithScraper(&fakePages{}, cfg); f.cfg.Concurrency != 10 {
		t.Errorf("expected clamp to 10, got %d", f.cfg.Concurrency)
	}
	cfg.Concurrency = 0
	if f := NewWithScraper(&fakePages{}, cfg); f.cfg.Concurrency != 5 {
		t.Errorf("expected default 5, got %d", f.cfg.Concurrency)
	}
}

func TestArticleText_JSONRoundTripKeepsError(t *testing.T) {
	in := ArticleText{
		Ref: refs("u1")[0],
		Err: &FetchError{URL: "u1", Title: "title u1", Err: errors.New("timeout")},
	}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"error":`) {
		t.Fatalf("error not serialized: %s", data)
	}

	var out ArticleText
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out.OK() || out.Ref.URL != "u1" {
		t.Fatalf("unexpected decode: %+v", out)
	}
}

func TestNew_FetchesOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, "<html><body><article><p>%s</p><p>%s</p></article></body></html>", body("cinema,"), body("release,"))
	}))
	defer srv.Close()

	f := New(DefaultConfig())
	got := f.Fetch(context.Background(), sources.ArticleRef{Title: "t", URL: srv.URL})
	if !got.OK() {
		t.Fatalf("unexpected error: %v", got.Err)
	}
	if !strings.Contains(got.Body, "cinema") {
		t.Errorf("unexpected body: %q", got.Body)
	}
}
