package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRC struct {
	mux         *http.ServeMux
	tokenHits   atomic.Int32
	callLogHits atomic.Int32
}

func newFakeRC() *fakeRC {
	f := &fakeRC{mux: http.NewServeMux()}
	f.mux.HandleFunc("/restapi/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenHits.Add(1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "cid" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = r.ParseForm()
		if r.PostForm.Get("grant_type") != grantTypeJWTBearer {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"access_token": "tok", "expires_in": 3600})
	})
	return f
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return nil
}

func newTestClient(t *testing.T, f *fakeRC, credential string) (*RingCentral, *sleepRecorder) {
	t.Helper()
	srv := httptest.NewServer(f.mux)
	t.Cleanup(srv.Close)

	c, err := NewRingCentral(RingCentralOptions{
		ClientID:        "cid",
		ClientSecret:    "secret",
		JWT:             credential,
		ServerURL:       srv.URL,
		MediaURL:        srv.URL,
		PageSize:        2,
		STTPollInterval: time.Millisecond,
	})
	require.NoError(t, err)
	rec := &sleepRecorder{}
	c.sleep = rec.sleep
	return c, rec
}

func callLogHandler(f *fakeRC, pages [][]map[string]any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.callLogHits.Add(1)
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		page := 1
		if p := r.URL.Query().Get("page"); p != "" {
			_ = json.Unmarshal([]byte(p), &page)
		}
		body := map[string]any{"records": []any{}, "navigation": map[string]any{}}
		if page <= len(pages) {
			body["records"] = pages[page-1]
			if page < len(pages) {
				body["navigation"] = map[string]any{"nextPage": map[string]any{"uri": "next"}}
			}
		}
		writeJSON(w, http.StatusOK, body)
	}
}

func TestFetchCallLogs_FollowsPagination(t *testing.T) {
	f := newFakeRC()
	f.mux.HandleFunc("/restapi/v1.0/account/~/call-log", callLogHandler(f, [][]map[string]any{
		{{"id": "a", "direction": "Inbound"}, {"id": "b", "direction": "Outbound"}},
		{{"id": "c", "direction": "Inbound", "recording": map[string]any{"id": "r1"}}},
	}))
	c, _ := newTestClient(t, f, "opaque-credential")

	got, err := c.FetchCallLogs(context.Background(), CallLogQuery{
		DateFrom: time.Now().Add(-time.Hour),
		DateTo:   time.Now(),
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "c", got[2].ID)
	require.NotNil(t, got[2].Recording)
	assert.Equal(t, "r1", got[2].Recording.ID)
	assert.EqualValues(t, 2, f.callLogHits.Load())
	assert.EqualValues(t, 1, f.tokenHits.Load(), "token should be cached across pages")
}

func TestFetchCallLogs_ExtensionScoped(t *testing.T) {
	f := newFakeRC()
	f.mux.HandleFunc("/restapi/v1.0/account/~/extension/101/call-log", callLogHandler(f, [][]map[string]any{
		{{"id": "x"}},
	}))
	c, _ := newTestClient(t, f, "opaque-credential")

	got, err := c.FetchCallLogs(context.Background(), CallLogQuery{ExtensionID: "101"})
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestFetchCallLogs_EmptyIsNotAnError(t *testing.T) {
	f := newFakeRC()
	f.mux.HandleFunc("/restapi/v1.0/account/~/call-log", callLogHandler(f, nil))
	c, _ := newTestClient(t, f, "opaque-credential")

	got, err := c.FetchCallLogs(context.Background(), CallLogQuery{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFetchCallLogs_RateLimitRetryIsBounded(t *testing.T) {
	f := newFakeRC()
	f.mux.HandleFunc("/restapi/v1.0/account/~/call-log", func(w http.ResponseWriter, r *http.Request) {
		f.callLogHits.Add(1)
		writeJSON(w, http.StatusTooManyRequests, map[string]any{"errorCode": "CMN-301", "message": "Request rate exceeded"})
	})
	c, sleeps := newTestClient(t, f, "opaque-credential")

	_, err := c.FetchCallLogs(context.Background(), CallLogQuery{})
	require.Error(t, err)
	assert.True(t, IsRateLimit(err))
	assert.EqualValues(t, 4, f.callLogHits.Load(), "one request plus three retries")
	assert.Equal(t, []time.Duration{defaultRateLimitDelay, defaultRateLimitDelay, defaultRateLimitDelay}, sleeps.waits)
}

func TestFetchCallLogs_RetriesSamePageHonoringRetryAfter(t *testing.T) {
	f := newFakeRC()
	var pagesSeen []string
	inner := callLogHandler(f, [][]map[string]any{{{"id": "a"}}})
	f.mux.HandleFunc("/restapi/v1.0/account/~/call-log", func(w http.ResponseWriter, r *http.Request) {
		pagesSeen = append(pagesSeen, r.URL.Query().Get("page"))
		if len(pagesSeen) == 1 {
			w.Header().Set("Retry-After", "7")
			writeJSON(w, http.StatusTooManyRequests, map[string]any{"message": "slow down"})
			return
		}
		inner(w, r)
	})
	c, sleeps := newTestClient(t, f, "opaque-credential")

	got, err := c.FetchCallLogs(context.Background(), CallLogQuery{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"1", "1"}, pagesSeen)
	assert.Equal(t, []time.Duration{7 * time.Second}, sleeps.waits)
}

func TestFetchCallLogs_OtherErrorsFailFast(t *testing.T) {
	f := newFakeRC()
	f.mux.HandleFunc("/restapi/v1.0/account/~/call-log", func(w http.ResponseWriter, r *http.Request) {
		f.callLogHits.Add(1)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"errorCode": "CMN-500", "message": "boom"})
	})
	c, sleeps := newTestClient(t, f, "opaque-credential")

	_, err := c.FetchCallLogs(context.Background(), CallLogQuery{})
	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.EqualValues(t, 1, f.callLogHits.Load())
	assert.Empty(t, sleeps.waits)
}

func TestAccessToken_RejectsExpiredCredential(t *testing.T) {
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}).SignedString([]byte("k"))
	require.NoError(t, err)

	f := newFakeRC()
	c, _ := newTestClient(t, f, expired)

	_, err = c.FetchCallLogs(context.Background(), CallLogQuery{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
	assert.EqualValues(t, 0, f.tokenHits.Load())
}

func TestFetchRecordingContent(t *testing.T) {
	f := newFakeRC()
	f.mux.HandleFunc("/restapi/v1.0/account/~/recording/r1/content", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3audio"))
	})
	c, _ := newTestClient(t, f, "opaque-credential")

	b, err := c.FetchRecordingContent(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "ID3audio", string(b))

	_, err = c.FetchRecordingContent(context.Background(), "missing")
	require.Error(t, err)
}

func TestListExtensions(t *testing.T) {
	f := newFakeRC()
	f.mux.HandleFunc("/restapi/v1.0/account/~/extension", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"records": []map[string]any{
				{"id": "101", "extensionNumber": "1001", "name": "Front Desk", "type": "User", "status": "Enabled"},
			},
			"navigation": map[string]any{},
		})
	})
	c, _ := newTestClient(t, f, "opaque-credential")

	got, err := c.ListExtensions(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Front Desk", got[0].Name)
}

func TestTranscribeRecording_PollsUntilDone(t *testing.T) {
	f := newFakeRC()
	var polls atomic.Int32
	f.mux.HandleFunc("/ai/audio/v1/async/speech-to-text", func(w http.ResponseWriter, r *http.Request) {
		var req sttRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.ContentURI == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"jobId": "job-1", "status": "InProgress"})
	})
	f.mux.HandleFunc("/ai/status/v1/jobs/job-1", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) < 3 {
			writeJSON(w, http.StatusOK, map[string]any{"jobId": "job-1", "status": "InProgress"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"jobId":    "job-1",
			"status":   "Success",
			"response": map[string]any{"transcript": "hello there"},
		})
	})
	c, _ := newTestClient(t, f, "opaque-credential")

	text, err := c.TranscribeRecording(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "hello there", text)
	assert.EqualValues(t, 3, polls.Load())
}

func TestTranscribeRecording_GivesUpAfterPollCap(t *testing.T) {
	f := newFakeRC()
	var polls atomic.Int32
	f.mux.HandleFunc("/ai/audio/v1/async/speech-to-text", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusAccepted, map[string]any{"jobId": "job-2"})
	})
	f.mux.HandleFunc("/ai/status/v1/jobs/job-2", func(w http.ResponseWriter, r *http.Request) {
		polls.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{"jobId": "job-2", "status": "InProgress"})
	})
	c, _ := newTestClient(t, f, "opaque-credential")

	_, err := c.TranscribeRecording(context.Background(), "r1")
	require.Error(t, err)
	assert.EqualValues(t, defaultSTTPollAttempts, polls.Load())
}

func TestNewRingCentral_RequiresCredentials(t *testing.T) {
	_, err := NewRingCentral(RingCentralOptions{ServerURL: "https://platform.ringcentral.com"})
	assert.ErrorIs(t, err, ErrNotConfigured)

	c, err := NewRingCentral(RingCentralOptions{ClientID: "a", ClientSecret: "b", JWT: "c", ServerURL: "https://platform.ringcentral.com/"})
	require.NoError(t, err)
	assert.Equal(t, "https://media.ringcentral.com", c.opts.MediaURL)
}
