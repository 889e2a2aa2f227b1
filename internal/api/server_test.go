package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief"
	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief/runner"
	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief/sources"
	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief/store"
	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief/summarizer"
)

type fakeRunner struct {
	briefing *newsbrief.Briefing
	err      error
	reqs     []newsbrief.Request
	last     *newsbrief.Briefing
}

func (f *fakeRunner) TryRun(_ context.Context, req newsbrief.Request) (*newsbrief.Briefing, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	f.last = f.briefing
	return f.briefing, nil
}

func (f *fakeRunner) Last() *newsbrief.Briefing { return f.last }

type fakeHistory struct {
	briefings map[int64]*newsbrief.Briefing
	list      []store.Summary
}

func (f *fakeHistory) Latest(context.Context) (*newsbrief.Briefing, error) {
	var latest *newsbrief.Briefing
	for id, b := range f.briefings {
		if latest == nil || id > latest.ID {
			latest = b
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	return latest, nil
}

func (f *fakeHistory) Get(_ context.Context, id int64) (*newsbrief.Briefing, error) {
	if b, ok := f.briefings[id]; ok {
		return b, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeHistory) List(context.Context, int) ([]store.Summary, error) { return f.list, nil }

func sampleBriefing() *newsbrief.Briefing {
	return &newsbrief.Briefing{
		ID:    7,
		Topic: "Tollywood",
		Query: sources.DefaultQuery(),
		Headlines: []sources.ArticleRef{
			{Title: "Blockbuster opens big", SourceName: "Film Daily", URL: "https://a.example/1"},
		},
		Summary:    &summarizer.Result{Draft: "draft", Polished: "First paragraph.\n\nSecond paragraph."},
		FinishedAt: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}
}

func do(t *testing.T, h http.Handler, method, target, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	h := NewServer(&fakeRunner{}, nil, "").Routes()
	w := do(t, h, "GET", "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestCreateBriefing(t *testing.T) {
	r := &fakeRunner{briefing: sampleBriefing()}
	h := NewServer(r, nil, "").Routes()

	w := do(t, h, "POST", "/api/briefings", `{"topic":"Telugu cinema","days":3}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body)
	}
	var got newsbrief.Briefing
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Summary == nil || got.Summary.Polished != "First paragraph.\n\nSecond paragraph." {
		t.Errorf("unexpected briefing: %+v", got)
	}

	req := r.reqs[0]
	if req.Topic != "Telugu cinema" || req.Query.Expression != `"Telugu cinema"` || req.Query.Days != 3 {
		t.Errorf("unexpected run request: %+v", req)
	}
}

func TestCreateBriefing_EmptyBodyUsesDefaults(t *testing.T) {
	r := &fakeRunner{briefing: sampleBriefing()}
	h := NewServer(r, nil, "").Routes()

	if w := do(t, h, "POST", "/api/briefings", "", nil); w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body)
	}
	if r.reqs[0].Query.Expression != "" || r.reqs[0].Topic != "" {
		t.Errorf("expected empty request for runner defaults, got %+v", r.reqs[0])
	}
}

func TestCreateBriefing_BadInput(t *testing.T) {
	h := NewServer(&fakeRunner{}, nil, "").Routes()
	for _, body := range []string{`{not json`, `{"page_size":500}`, `{"sort_by":"newest"}`, `{"days":-1}`} {
		if w := do(t, h, "POST", "/api/briefings", body, nil); w.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d", body, w.Code)
		}
	}
}

func TestCreateBriefing_ErrorStatuses(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{runner.ErrRunInProgress, http.StatusConflict},
		{&sources.RetrievalError{StatusCode: 401, Message: "Your API key is invalid."}, http.StatusBadGateway},
		{&summarizer.GenerationError{Stage: summarizer.StageDraft, Err: errors.New("quota")}, http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		h := NewServer(&fakeRunner{err: tt.err}, nil, "").Routes()
		w := do(t, h, "POST", "/api/briefings", "", nil)
		if w.Code != tt.want {
			t.Errorf("%v: status = %d, want %d", tt.err, w.Code, tt.want)
		}
		var body map[string]string
		json.Unmarshal(w.Body.Bytes(), &body)
		if body["error"] == "" {
			t.Errorf("%v: expected error message", tt.err)
		}
	}
}

func TestAuth(t *testing.T) {
	const secret = "s3cret"
	h := NewServer(&fakeRunner{briefing: sampleBriefing()}, nil, secret).Routes()

	if w := do(t, h, "POST", "/api/briefings", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	bad, _ := IssueToken("other-secret", "cli", time.Hour)
	if w := do(t, h, "POST", "/api/briefings", "", http.Header{"Authorization": {"Bearer " + bad}}); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for foreign token, got %d", w.Code)
	}

	expired, _ := IssueToken(secret, "cli", -time.Hour)
	if w := do(t, h, "POST", "/api/briefings", "", http.Header{"Authorization": {"Bearer " + expired}}); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %d", w.Code)
	}

	good, err := IssueToken(secret, "cli", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if w := do(t, h, "POST", "/api/briefings", "", http.Header{"Authorization": {"Bearer " + good}}); w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", w.Code)
	}
	if w := do(t, h, "POST", "/api/briefings", "", http.Header{"Cookie": {"token=" + good}}); w.Code != http.StatusOK {
		t.Fatalf("expected 200 with cookie, got %d", w.Code)
	}

	// Reads stay public.
	if w := do(t, h, "GET", "/api/briefings", "", nil); w.Code != http.StatusOK {
		t.Fatalf("expected public list, got %d", w.Code)
	}
}

func TestIssueToken_EmptySecret(t *testing.T) {
	if _, err := IssueToken("", "cli", time.Hour); err == nil {
		t.Fatal("expected error")
	}
}

func TestLatestBriefing(t *testing.T) {
	r := &fakeRunner{}
	h := NewServer(r, nil, "").Routes()

	if w := do(t, h, "GET", "/api/briefings/latest", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before any run, got %d", w.Code)
	}

	r.last = sampleBriefing()
	w := do(t, h, "GET", "/api/briefings/latest", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Blockbuster opens big") {
		t.Fatalf("status = %d body=%s", w.Code, w.Body)
	}
}

func TestLatestBriefing_PrefersHistory(t *testing.T) {
	archived := sampleBriefing()
	archived.Topic = "archived"
	hist := &fakeHistory{briefings: map[int64]*newsbrief.Briefing{7: archived}}
	h := NewServer(&fakeRunner{}, hist, "").Routes()

	w := do(t, h, "GET", "/api/briefings/latest", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"topic":"archived"`) {
		t.Fatalf("status = %d body=%s", w.Code, w.Body)
	}
}

func TestGetBriefing(t *testing.T) {
	hist := &fakeHistory{briefings: map[int64]*newsbrief.Briefing{7: sampleBriefing()}}
	h := NewServer(&fakeRunner{}, hist, "").Routes()

	if w := do(t, h, "GET", "/api/briefings/7", "", nil); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if w := do(t, h, "GET", "/api/briefings/8", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	if w := do(t, h, "GET", "/api/briefings/abc", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestListBriefings(t *testing.T) {
	h := NewServer(&fakeRunner{}, nil, "").Routes()
	w := do(t, h, "GET", "/api/briefings", "", nil)
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != `{"briefings":[]}` {
		t.Fatalf("status = %d body=%s", w.Code, w.Body)
	}
	if w := do(t, h, "GET", "/api/briefings?limit=0", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", w.Code)
	}

	hist := &fakeHistory{list: []store.Summary{{ID: 1, Topic: "Tollywood", Status: newsbrief.StatusOK}}}
	h = NewServer(&fakeRunner{}, hist, "").Routes()
	w = do(t, h, "GET", "/api/briefings?limit=5", "", nil)
	if !strings.Contains(w.Body.String(), `"topic":"Tollywood"`) {
		t.Fatalf("body = %s", w.Body)
	}
}

func TestDashboard(t *testing.T) {
	r := &fakeRunner{last: sampleBriefing()}
	h := NewServer(r, nil, "").Routes()

	w := do(t, h, "GET", "/", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{"Blockbuster opens big", "Source: Film Daily", "<p>First paragraph.</p>", "<p>Second paragraph.</p>", "Fetch &amp; Summarize"} {
		if !strings.Contains(body, want) {
			t.Errorf("dashboard missing %q", want)
		}
	}
}

func TestDashboard_NoArticles(t *testing.T) {
	r := &fakeRunner{last: &newsbrief.Briefing{Topic: "Tollywood", Query: sources.Query{Days: 7}}}
	h := NewServer(r, nil, "").Routes()

	w := do(t, h, "GET", "/", "", nil)
	if !strings.Contains(w.Body.String(), "No articles found in the last 7 days.") {
		t.Fatalf("body = %s", w.Body)
	}
}

func TestDashboard_UnknownPath(t *testing.T) {
	h := NewServer(&fakeRunner{}, nil, "").Routes()
	if w := do(t, h, "GET", "/nope", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestRefresh(t *testing.T) {
	r := &fakeRunner{briefing: sampleBriefing()}
	h := NewServer(r, nil, "").Routes()

	form := url.Values{"topic": {"Kollywood"}}.Encode()
	w := do(t, h, "POST", "/refresh", form, http.Header{"Content-Type": {"application/x-www-form-urlencoded"}})
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/" {
		t.Fatalf("status = %d location=%q", w.Code, w.Header().Get("Location"))
	}
	if r.reqs[0].Topic != "Kollywood" {
		t.Errorf("topic = %q", r.reqs[0].Topic)
	}
}

func TestRefresh_ErrorRendersDashboard(t *testing.T) {
	h := NewServer(&fakeRunner{err: runner.ErrRunInProgress}, nil, "").Routes()

	w := do(t, h, "POST", "/refresh", "", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "already being generated") {
		t.Fatalf("body = %s", w.Body)
	}
}

func TestLogin_SetsCookieForDashboard(t *testing.T) {
	const secret = "s3cret"
	r := &fakeRunner{briefing: sampleBriefing()}
	h := NewServer(r, nil, secret).Routes()

	if w := do(t, h, "POST", "/refresh", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 before login, got %d", w.Code)
	}
	if w := do(t, h, "GET", "/login?token=garbage", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", w.Code)
	}

	token, err := IssueToken(secret, "browser", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	w := do(t, h, "GET", "/login?token="+token, "", nil)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d", w.Code)
	}
	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "token" || cookies[0].Value != token || !cookies[0].HttpOnly {
		t.Fatalf("unexpected cookies: %+v", cookies)
	}

	w = do(t, h, "POST", "/refresh", "", http.Header{"Cookie": {cookies[0].Name + "=" + cookies[0].Value}})
	if w.Code != http.StatusSeeOther {
		t.Fatalf("expected refresh to succeed with login cookie, got %d", w.Code)
	}
}
