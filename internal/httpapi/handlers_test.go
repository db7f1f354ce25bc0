package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"shopcalls/internal/calls"
	"shopcalls/internal/ingest"
	"shopcalls/internal/jobs"
	"shopcalls/internal/reporting"
	"shopcalls/internal/transcription"
)

type fakeIngest struct {
	ctxErr   error
	from, to time.Time
	daysBack int
	res      ingest.SyncResult
	err      error
}

func (f *fakeIngest) SyncCallRecords(ctx context.Context, from, to time.Time) (ingest.SyncResult, error) {
	f.ctxErr = ctx.Err()
	f.from, f.to = from, to
	return f.res, f.err
}

func (f *fakeIngest) BackfillSessionIDs(ctx context.Context, daysBack int) (ingest.BackfillResult, error) {
	f.ctxErr = ctx.Err()
	f.daysBack = daysBack
	return ingest.BackfillResult{Updated: 2, Message: "ok"}, nil
}

type fakeTranscriber struct {
	ctxErr error
	limit  int
	delay  time.Duration
	res    transcription.Result
	err    error
}

func (f *fakeTranscriber) TranscribePending(ctx context.Context, limit int, delay time.Duration) (jobs.BatchResult, error) {
	f.ctxErr = ctx.Err()
	f.limit, f.delay = limit, delay
	return jobs.BatchResult{Processed: limit}, nil
}

func (f *fakeTranscriber) TranscribeCall(_ context.Context, _ string) (transcription.Result, error) {
	return f.res, f.err
}

type fakeReporter struct {
	req reporting.SummaryRequest
}

func (f *fakeReporter) CallsSummary(_ context.Context, req reporting.SummaryRequest) (reporting.CallsSummary, error) {
	f.req = req
	if !req.Range.From.Before(req.Range.To) {
		return reporting.CallsSummary{}, reporting.ErrInvalidRequest
	}
	return reporting.CallsSummary{TotalCalls: 3}, nil
}

func newRouter(h Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	Register(r, h)
	return r
}

func serve(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	out := map[string]any{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return out
}

func TestHealthz(t *testing.T) {
	r := newRouter(Handlers{})
	if w := serve(r, http.MethodGet, "/healthz", ""); w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	r = newRouter(Handlers{Health: func(context.Context) error { return errors.New("db down") }})
	if w := serve(r, http.MethodGet, "/healthz", ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestSync_ParsesDatesAndReturnsCounts(t *testing.T) {
	ing := &fakeIngest{res: ingest.SyncResult{Synced: 4, Skipped: 1}}
	r := newRouter(Handlers{Ingest: ing})

	w := serve(r, http.MethodPost, "/api/ringcentral/sync", `{"dateFrom":"2026-01-01","dateTo":"2026-01-02T12:00:00Z"}`)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["synced"] != float64(4) || body["skipped"] != float64(1) {
		t.Fatalf("unexpected body: %v", body)
	}
	if !ing.from.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected from: %v", ing.from)
	}
	if !ing.to.Equal(time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected to: %v", ing.to)
	}
}

func TestSync_EmptyBodyUsesDefaultWindow(t *testing.T) {
	ing := &fakeIngest{}
	r := newRouter(Handlers{Ingest: ing})

	if w := serve(r, http.MethodPost, "/api/ringcentral/sync", ""); w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !ing.from.IsZero() || !ing.to.IsZero() {
		t.Fatalf("expected zero window, got %v..%v", ing.from, ing.to)
	}
}

func TestSync_ErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		body string
		err  error
		want int
	}{
		{name: "bad date", body: `{"dateFrom":"yesterday"}`, want: http.StatusBadRequest},
		{name: "bad json", body: `{`, want: http.StatusBadRequest},
		{name: "invalid range", body: `{}`, err: ingest.ErrInvalidRequest, want: http.StatusBadRequest},
		{name: "provider failure", body: `{}`, err: errors.New("call log fetch failed"), want: http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newRouter(Handlers{Ingest: &fakeIngest{err: tc.err}})
			w := serve(r, http.MethodPost, "/api/ringcentral/sync", tc.body)
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, w.Code)
			}
			if _, ok := decode(t, w)["error"]; !ok {
				t.Fatalf("expected error field")
			}
		})
	}
}

func TestSmartTranscribe_LimitDefaultsAndBounds(t *testing.T) {
	tr := &fakeTranscriber{}
	r := newRouter(Handlers{Transcriber: tr, TranscribeDelay: 2 * time.Second})

	if w := serve(r, http.MethodPost, "/api/ringcentral/smart-transcribe", ""); w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if tr.limit != defaultTranscribeLimit || tr.delay != 2*time.Second {
		t.Fatalf("unexpected limit/delay: %d %v", tr.limit, tr.delay)
	}

	if w := serve(r, http.MethodPost, "/api/ringcentral/smart-transcribe", `{"limit":25}`); w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if tr.limit != 25 {
		t.Fatalf("expected limit 25, got %d", tr.limit)
	}

	if w := serve(r, http.MethodPost, "/api/ringcentral/smart-transcribe", `{"limit":500}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

type recordedBackfill struct {
	actor, message string
}

func (r *recordedBackfill) SessionBackfill(_ context.Context, actor, message string, _ any) error {
	r.actor, r.message = actor, message
	return nil
}

func TestBackfillSessionIDs(t *testing.T) {
	ing := &fakeIngest{}
	aud := &recordedBackfill{}
	r := newRouter(Handlers{Ingest: ing, Audit: aud})

	w := serve(r, http.MethodPost, "/api/ringcentral/backfill-session-ids", `{"daysBack":30}`)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ing.daysBack != 30 {
		t.Fatalf("expected daysBack 30, got %d", ing.daysBack)
	}
	if decode(t, w)["updated"] != float64(2) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
	if aud.actor != "api" || aud.message != "ok" {
		t.Fatalf("expected audited backfill, got %+v", aud)
	}

	if w := serve(r, http.MethodPost, "/api/ringcentral/backfill-session-ids", `{"daysBack":-1}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestTranscribeCall_RendersOutcome(t *testing.T) {
	tr := &fakeTranscriber{res: transcription.Success{TranscriptText: "hi", IsSalesCall: true, Source: "deepgram"}}
	r := newRouter(Handlers{Transcriber: tr})

	w := serve(r, http.MethodPost, "/api/ringcentral/calls/c1/transcribe", "")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decode(t, w)
	if body["status"] != "success" || body["transcriptText"] != "hi" || body["isSalesCall"] != true {
		t.Fatalf("unexpected body: %v", body)
	}

	tr.res = transcription.Skipped{Reason: transcription.ReasonTooShort}
	body = decode(t, serve(r, http.MethodPost, "/api/ringcentral/calls/c1/transcribe", ""))
	if body["status"] != "skipped" || body["reason"] != transcription.ReasonTooShort {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestTranscribeCall_NotFound(t *testing.T) {
	r := newRouter(Handlers{Transcriber: &fakeTranscriber{err: calls.ErrNotFound}})
	if w := serve(r, http.MethodPost, "/api/ringcentral/calls/missing/transcribe", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

type staticStatus jobs.Status

func (s staticStatus) Status() jobs.Status { return jobs.Status(s) }

func TestSchedulerStatus(t *testing.T) {
	r := newRouter(Handlers{Scheduler: staticStatus{Enabled: true, Runs: 3, Interval: "5m0s"}})
	body := decode(t, serve(r, http.MethodGet, "/api/ringcentral/scheduler", ""))
	if body["enabled"] != true || body["runs"] != float64(3) {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestSummary_DefaultsToLastWeek(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	rep := &fakeReporter{}
	r := newRouter(Handlers{Reports: rep, Now: func() time.Time { return now }})

	w := serve(r, http.MethodGet, "/api/ringcentral/summary?shopId=s1", "")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !rep.req.Range.To.Equal(now) || !rep.req.Range.From.Equal(now.Add(-7*24*time.Hour)) {
		t.Fatalf("unexpected range: %+v", rep.req.Range)
	}
	if rep.req.ShopID != "s1" {
		t.Fatalf("expected shop filter, got %q", rep.req.ShopID)
	}
	if decode(t, w)["total_calls"] != float64(3) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}

	w = serve(r, http.MethodGet, "/api/ringcentral/summary?from=2026-03-05&to=2026-03-01", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for inverted range, got %d", w.Code)
	}
}

func TestBatchRoutes_OutliveClientDisconnect(t *testing.T) {
	ing := &fakeIngest{}
	tr := &fakeTranscriber{}
	r := newRouter(Handlers{Ingest: ing, Transcriber: tr})

	for _, path := range []string{
		"/api/ringcentral/sync",
		"/api/ringcentral/smart-transcribe",
		"/api/ringcentral/backfill-session-ids",
	} {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		req := httptest.NewRequest(http.MethodPost, path, nil).WithContext(ctx)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", path, w.Code, w.Body.String())
		}
	}
	if ing.ctxErr != nil || tr.ctxErr != nil {
		t.Fatalf("batch saw a cancelled context: ingest=%v transcriber=%v", ing.ctxErr, tr.ctxErr)
	}
}

// chunkedEmpty has no length, like a chunked request with an empty body.
type chunkedEmpty struct{}

func (chunkedEmpty) Read([]byte) (int, error) { return 0, io.EOF }

func TestSmartTranscribe_ChunkedEmptyBodyUsesDefaults(t *testing.T) {
	tr := &fakeTranscriber{}
	r := newRouter(Handlers{Transcriber: tr})

	req := httptest.NewRequest(http.MethodPost, "/api/ringcentral/smart-transcribe", chunkedEmpty{})
	req.ContentLength = -1
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if tr.limit != defaultTranscribeLimit {
		t.Fatalf("expected default limit %d, got %d", defaultTranscribeLimit, tr.limit)
	}
}
