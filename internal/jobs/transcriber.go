package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"shopcalls/internal/calls"
	"shopcalls/internal/transcription"
	"shopcalls/pkg/logger"
)

// Engine runs the transcription decision for one call.
type Engine interface {
	SmartTranscribeCall(ctx context.Context, req transcription.Request) transcription.Result
}

// BatchResult counts one transcribe pass. It is not persisted.
type BatchResult struct {
	Processed   int `json:"processed"`
	Transcribed int `json:"transcribed"`
	Skipped     int `json:"skipped"`
	Failed      int `json:"failed"`
	Errors      int `json:"errors"`
}

func (b *BatchResult) add(o BatchResult) {
	b.Processed += o.Processed
	b.Transcribed += o.Transcribed
	b.Skipped += o.Skipped
	b.Failed += o.Failed
	b.Errors += o.Errors
}

// Transcriber pulls calls needing a transcript, runs the engine and writes the outcome back.
// Each call commits on its own.
type Transcriber struct {
	store  calls.Store
	engine Engine
	log    *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewTranscriber(store calls.Store, engine Engine, l *slog.Logger) *Transcriber {
	if l == nil {
		l = slog.Default()
	}
	return &Transcriber{
		store:  store,
		engine: engine,
		log:    logger.Component(l, "transcriber"),
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// logFor prefers the request or run scoped logger carried by ctx.
func (t *Transcriber) logFor(ctx context.Context) *slog.Logger {
	if l := logger.FromOr(ctx, nil); l != nil {
		return logger.Component(l, "transcriber")
	}
	return t.log
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// TranscribePending handles up to limit calls, newest first, pausing delay between calls.
// Only a failure to list work is returned as an error.
func (t *Transcriber) TranscribePending(ctx context.Context, limit int, delay time.Duration) (BatchResult, error) {
	pending, err := t.store.GetCallsNeedingTranscription(ctx, limit)
	if err != nil {
		return BatchResult{}, fmt.Errorf("jobs: list calls needing transcription: %w", err)
	}

	var out BatchResult
	for i, c := range pending {
		if i > 0 {
			if err := t.sleep(ctx, delay); err != nil {
				break
			}
		}
		res := t.engine.SmartTranscribeCall(ctx, requestFor(c))
		out.Processed++
		if err := t.apply(ctx, c, res); err != nil {
			out.Errors++
			t.logFor(ctx).Warn("persist transcription result failed", "call_id", c.ID, "err", err)
			continue
		}
		switch res.(type) {
		case transcription.Success:
			out.Transcribed++
		case transcription.Skipped:
			out.Skipped++
		case transcription.Failed:
			out.Failed++
		}
	}
	if len(pending) > 0 {
		t.logFor(ctx).Info("transcribe batch finished",
			"processed", out.Processed,
			"transcribed", out.Transcribed,
			"skipped", out.Skipped,
			"failed", out.Failed,
			"errors", out.Errors,
		)
	}
	return out, nil
}

// TranscribeCall runs one stored call regardless of its current transcript state.
func (t *Transcriber) TranscribeCall(ctx context.Context, id string) (transcription.Result, error) {
	c, err := t.store.GetCallRecording(ctx, id)
	if err != nil {
		return nil, err
	}
	res := t.engine.SmartTranscribeCall(ctx, requestFor(c))
	if err := t.apply(ctx, c, res); err != nil {
		return nil, err
	}
	return res, nil
}

func requestFor(c calls.CallRecord) transcription.Request {
	return transcription.Request{
		CallID:          c.ID,
		RecordingID:     c.ProviderRecordingID,
		DurationSeconds: c.DurationSeconds,
		CustomerName:    c.CustomerName,
	}
}

func (t *Transcriber) apply(ctx context.Context, c calls.CallRecord, res transcription.Result) error {
	patch, err := PatchFor(c, res, t.now().UTC())
	if err != nil {
		return err
	}
	return t.store.UpdateCallRecording(ctx, c.ID, patch)
}

// PatchFor maps a result to the stored transcript fields. Failed attempts are
// counted so GetCallsNeedingTranscription can stop retrying.
func PatchFor(c calls.CallRecord, res transcription.Result, now time.Time) (calls.CallPatch, error) {
	switch r := res.(type) {
	case transcription.Success:
		text, sales := r.TranscriptText, r.IsSalesCall
		return calls.CallPatch{
			TranscriptText: &text,
			IsSalesCall:    &sales,
			TranscriptMetadata: &calls.TranscriptMetadata{
				Source:      r.Source,
				IsSalesCall: &sales,
				SampleOnly:  r.SampleOnly,
				Timestamp:   now,
			},
		}, nil
	case transcription.Skipped:
		return calls.CallPatch{
			TranscriptMetadata: &calls.TranscriptMetadata{
				Skipped:   true,
				Reason:    r.Reason,
				Timestamp: now,
			},
		}, nil
	case transcription.Failed:
		attempts := 1
		if m := c.TranscriptMetadata; m != nil && m.Failed {
			attempts = m.Attempts + 1
		}
		return calls.CallPatch{
			TranscriptMetadata: &calls.TranscriptMetadata{
				Source:    r.Source,
				Failed:    true,
				Reason:    r.Reason,
				Attempts:  attempts,
				Timestamp: now,
			},
		}, nil
	default:
		return calls.CallPatch{}, fmt.Errorf("jobs: unexpected transcription result %T", res)
	}
}
