package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopcalls/internal/calls"
	"shopcalls/internal/ingest"
	"shopcalls/internal/telephony"
	"shopcalls/internal/transcription"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// engineFunc adapts a function to Engine.
type engineFunc func(req transcription.Request) transcription.Result

func (f engineFunc) SmartTranscribeCall(_ context.Context, req transcription.Request) transcription.Result {
	return f(req)
}

func newTestTranscriber(repo calls.Store, e Engine) (*Transcriber, *[]time.Duration) {
	tr := NewTranscriber(repo, e, nil)
	tr.now = func() time.Time { return t0 }
	var waits []time.Duration
	tr.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return tr, &waits
}

func seed(t *testing.T, repo *calls.MemoryRepo, recs ...calls.CallRecord) {
	t.Helper()
	for _, r := range recs {
		_, err := repo.CreateCallRecording(context.Background(), r)
		require.NoError(t, err)
	}
}

func TestPatchFor(t *testing.T) {
	c := calls.CallRecord{ID: "c1"}

	p, err := PatchFor(c, transcription.Success{TranscriptText: "hi", IsSalesCall: true, SampleOnly: true, Source: "deepgram"}, t0)
	require.NoError(t, err)
	require.NotNil(t, p.TranscriptText)
	assert.Equal(t, "hi", *p.TranscriptText)
	assert.True(t, *p.IsSalesCall)
	assert.True(t, p.TranscriptMetadata.SampleOnly)
	assert.Equal(t, "deepgram", p.TranscriptMetadata.Source)

	p, err = PatchFor(c, transcription.Skipped{Reason: transcription.ReasonNoRecording}, t0)
	require.NoError(t, err)
	assert.Nil(t, p.TranscriptText)
	assert.True(t, p.TranscriptMetadata.Skipped)
	assert.Equal(t, transcription.ReasonNoRecording, p.TranscriptMetadata.Reason)

	p, err = PatchFor(c, transcription.Failed{Reason: "boom"}, t0)
	require.NoError(t, err)
	assert.Equal(t, 1, p.TranscriptMetadata.Attempts)

	c.TranscriptMetadata = &calls.TranscriptMetadata{Failed: true, Attempts: 2}
	p, err = PatchFor(c, transcription.Failed{Reason: "boom"}, t0)
	require.NoError(t, err)
	assert.Equal(t, 3, p.TranscriptMetadata.Attempts)

	_, err = PatchFor(c, nil, t0)
	assert.Error(t, err)
}

func TestTranscribePending_PersistsAndPaces(t *testing.T) {
	repo := calls.NewMemoryRepo()
	seed(t, repo,
		calls.CallRecord{ProviderCallID: "a", ProviderRecordingID: "r-a", DurationSeconds: 60, CallStartTime: t0.Add(-3 * time.Minute)},
		calls.CallRecord{ProviderCallID: "b", DurationSeconds: 60, CallStartTime: t0.Add(-2 * time.Minute)},
		calls.CallRecord{ProviderCallID: "c", ProviderRecordingID: "r-c", DurationSeconds: 60, CallStartTime: t0.Add(-1 * time.Minute)},
	)
	e := engineFunc(func(req transcription.Request) transcription.Result {
		switch req.RecordingID {
		case "":
			return transcription.Skipped{Reason: transcription.ReasonNoRecording}
		case "r-a":
			return transcription.Failed{Reason: "provider down", Source: "whisper"}
		default:
			return transcription.Success{TranscriptText: "text", Source: "whisper"}
		}
	})
	tr, waits := newTestTranscriber(repo, e)

	res, err := tr.TranscribePending(context.Background(), 20, 15*time.Second)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Processed: 3, Transcribed: 1, Skipped: 1, Failed: 1}, res)
	assert.Equal(t, []time.Duration{15 * time.Second, 15 * time.Second}, *waits, "delay only between calls")

	ctx := context.Background()
	c, _, _ := repo.GetCallRecordingByProviderID(ctx, "c")
	require.NotNil(t, c.TranscriptText)
	assert.Equal(t, "text", *c.TranscriptText)

	pending, err := repo.GetCallsNeedingTranscription(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1, "only the failed call is retried")
	assert.Equal(t, "a", pending[0].ProviderCallID)
}

func TestTranscribePending_FailedCallsStopAfterMaxAttempts(t *testing.T) {
	repo := calls.NewMemoryRepo()
	seed(t, repo, calls.CallRecord{ProviderCallID: "a", ProviderRecordingID: "r", DurationSeconds: 60, CallStartTime: t0})
	tr, _ := newTestTranscriber(repo, engineFunc(func(transcription.Request) transcription.Result {
		return transcription.Failed{Reason: "nope"}
	}))

	for i := 0; i < calls.MaxTranscriptionAttempts; i++ {
		res, err := tr.TranscribePending(context.Background(), 5, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Failed)
	}
	res, err := tr.TranscribePending(context.Background(), 5, 0)
	require.NoError(t, err)
	assert.Zero(t, res.Processed)
}

type fakeCallLogs struct {
	records []telephony.CallLogRecord
}

func (f *fakeCallLogs) Name() string { return "fake" }

func (f *fakeCallLogs) FetchCallLogs(context.Context, telephony.CallLogQuery) ([]telephony.CallLogRecord, error) {
	return f.records, nil
}

func (f *fakeCallLogs) FetchRecordingContent(_ context.Context, id string) ([]byte, error) {
	return []byte("audio:" + id), nil
}

type stubProvider struct{ calls int }

func (p *stubProvider) Name() string     { return "stub" }
func (p *stubProvider) NeedsAudio() bool { return true }
func (p *stubProvider) Transcribe(_ context.Context, in transcription.Input) (string, error) {
	p.calls++
	return "Customer wants a quote and an appointment for brake repair", nil
}

type stubResolver struct{ p transcription.Provider }

func (r stubResolver) ResolveProvider(context.Context) (transcription.Provider, error) {
	return r.p, nil
}

func TestSyncThenTranscribe_HappyPath(t *testing.T) {
	repo := calls.NewMemoryRepo()
	logs := &fakeCallLogs{records: []telephony.CallLogRecord{
		{ID: "with-rec", Direction: "Inbound", Duration: 120, StartTime: t0.Add(-time.Hour), Recording: &telephony.RecordingRef{ID: "rec-1"}},
		{ID: "no-rec", Direction: "Outbound", Duration: 45, StartTime: t0.Add(-2 * time.Hour)},
	}}
	syncer := ingest.NewService(logs, repo, nil)
	provider := &stubProvider{}
	engine := transcription.NewEngine(logs, stubResolver{p: provider}, transcription.DefaultPolicy(), nil, nil)
	tr, _ := newTestTranscriber(repo, engine)
	ctx := context.Background()

	syncRes, err := syncer.SyncCallRecords(ctx, t0.Add(-24*time.Hour), t0)
	require.NoError(t, err)
	assert.Equal(t, ingest.SyncResult{Synced: 2}, syncRes)
	require.Len(t, repo.Calls(), 2)

	batch, err := tr.TranscribePending(ctx, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Processed: 2, Transcribed: 1, Skipped: 1}, batch)
	assert.Equal(t, 1, provider.calls)

	withRec, _, _ := repo.GetCallRecordingByProviderID(ctx, "with-rec")
	require.NotNil(t, withRec.TranscriptText)
	require.NotNil(t, withRec.IsSalesCall)
	assert.True(t, *withRec.IsSalesCall)
	assert.Equal(t, "stub", withRec.TranscriptMetadata.Source)

	noRec, _, _ := repo.GetCallRecordingByProviderID(ctx, "no-rec")
	assert.Nil(t, noRec.TranscriptText)
	require.NotNil(t, noRec.TranscriptMetadata)
	assert.True(t, noRec.TranscriptMetadata.Skipped)
	assert.Equal(t, transcription.ReasonNoRecording, noRec.TranscriptMetadata.Reason)
}

type blockingSyncer struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSyncer) SyncCallRecords(context.Context, time.Time, time.Time) (ingest.SyncResult, error) {
	close(b.entered)
	<-b.release
	return ingest.SyncResult{Synced: 1}, nil
}

func TestScheduler_SkipsOverlappingRun(t *testing.T) {
	bs := &blockingSyncer{entered: make(chan struct{}), release: make(chan struct{})}
	s := NewScheduler(bs, nil, nil, SchedulerOptions{}, nil)

	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		firstErr = s.RunOnce(context.Background())
	}()
	<-bs.entered

	assert.ErrorIs(t, s.RunOnce(context.Background()), ErrAlreadyRunning)
	assert.True(t, s.Status().Running)

	close(bs.release)
	wg.Wait()
	require.NoError(t, firstErr)

	st := s.Status()
	assert.False(t, st.Running)
	assert.Equal(t, 1, st.Runs)
	assert.Equal(t, 1, st.SkippedTicks)
	require.NotNil(t, st.LastSync)
	assert.Equal(t, 1, st.LastSync.Synced)
	assert.Equal(t, "5m0s", st.Interval)
}

type fakeLocker struct {
	held     bool
	released int
}

func (l *fakeLocker) TryLock(context.Context) (func(), bool, error) {
	if l.held {
		return nil, false, nil
	}
	return func() { l.released++ }, true, nil
}

type errSyncer struct{}

func (errSyncer) SyncCallRecords(context.Context, time.Time, time.Time) (ingest.SyncResult, error) {
	return ingest.SyncResult{}, errors.New("provider unreachable")
}

func TestScheduler_LockAndErrors(t *testing.T) {
	repo := calls.NewMemoryRepo()
	tr, _ := newTestTranscriber(repo, engineFunc(func(transcription.Request) transcription.Result {
		return transcription.Skipped{Reason: "x"}
	}))
	lock := &fakeLocker{held: true}
	s := NewScheduler(errSyncer{}, tr, lock, SchedulerOptions{BatchSize: 20}, nil)

	assert.ErrorIs(t, s.RunOnce(context.Background()), ErrAlreadyRunning)
	assert.Equal(t, 0, s.Status().Runs)

	lock.held = false
	err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider unreachable")
	assert.Equal(t, 1, lock.released)

	st := s.Status()
	assert.Equal(t, 1, st.Runs)
	assert.Nil(t, st.LastSync)
	require.NotNil(t, st.LastBatch, "transcription still runs when sync fails")
	assert.Contains(t, st.LastError, "provider unreachable")
}

func TestScheduler_StartStops(t *testing.T) {
	repo := calls.NewMemoryRepo()
	tr, _ := newTestTranscriber(repo, engineFunc(func(transcription.Request) transcription.Result {
		return transcription.Skipped{Reason: "x"}
	}))
	s := NewScheduler(nil, tr, nil, SchedulerOptions{Interval: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := s.Start(ctx)
	require.Eventually(t, func() bool { return s.Status().Runs == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, s.Status().Enabled)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.False(t, s.Status().Enabled)
}

func TestRunner_BacksOffOnFailingBatchesUntilWorkIsExhausted(t *testing.T) {
	repo := calls.NewMemoryRepo()
	seed(t, repo, calls.CallRecord{ProviderCallID: "a", ProviderRecordingID: "r", DurationSeconds: 60, CallStartTime: t0})
	tr, _ := newTestTranscriber(repo, engineFunc(func(transcription.Request) transcription.Result {
		return transcription.Failed{Reason: "rate limited"}
	}))

	r := NewRunner(tr, nil, RunnerOptions{Name: "test", BatchSize: 5, Delay: 2 * time.Second, MaxBackoff: 3 * time.Second}, nil)
	var pauses []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		pauses = append(pauses, d)
		return nil
	}

	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, calls.MaxTranscriptionAttempts, sum.Batches)
	assert.Equal(t, calls.MaxTranscriptionAttempts, sum.Failed)
	assert.Equal(t, []time.Duration{2 * time.Second, 3 * time.Second, 3 * time.Second}, pauses)
}

func TestRunner_ProgressUsesFixedDelay(t *testing.T) {
	repo := calls.NewMemoryRepo()
	for _, id := range []string{"a", "b", "c"} {
		seed(t, repo, calls.CallRecord{ProviderCallID: id, CallStartTime: t0})
	}
	tr, _ := newTestTranscriber(repo, engineFunc(func(transcription.Request) transcription.Result {
		return transcription.Success{TranscriptText: "ok"}
	}))
	r := NewRunner(tr, &fakeLocker{}, RunnerOptions{Name: "test", BatchSize: 2, Delay: time.Second}, nil)
	var pauses []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		pauses = append(pauses, d)
		return nil
	}

	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Batches)
	assert.Equal(t, 3, sum.Transcribed)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, pauses)
}
