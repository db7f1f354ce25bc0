package transcription

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"shopcalls/pkg/logger"
)

// Request identifies one call to transcribe.
type Request struct {
	CallID          string
	RecordingID     string
	DurationSeconds int
	CustomerName    string
}

type RecordingFetcher interface {
	FetchRecordingContent(ctx context.Context, recordingID string) ([]byte, error)
}

type ProviderResolver interface {
	ResolveProvider(ctx context.Context) (Provider, error)
}

// Engine decides whether and how much of a call to transcribe, runs the active
// provider and classifies the text. It never persists anything.
type Engine struct {
	recordings RecordingFetcher
	providers  ProviderResolver
	policy     Policy
	classifier *Classifier
	log        *slog.Logger
}

func NewEngine(recordings RecordingFetcher, providers ProviderResolver, policy Policy, classifier *Classifier, l *slog.Logger) *Engine {
	if classifier == nil {
		classifier = NewClassifier(nil)
	}
	if l == nil {
		l = slog.Default()
	}
	return &Engine{
		recordings: recordings,
		providers:  providers,
		policy:     policy,
		classifier: classifier,
		log:        logger.Component(l, "transcription"),
	}
}

// SmartTranscribeCall always returns a Result. Provider errors and panics become Failed.
func (e *Engine) SmartTranscribeCall(ctx context.Context, req Request) (res Result) {
	if strings.TrimSpace(req.RecordingID) == "" {
		return Skipped{Reason: ReasonNoRecording}
	}
	decision := e.policy.Decide(req.DurationSeconds)
	if decision == DecisionSkip {
		return Skipped{Reason: ReasonTooShort}
	}

	base := e.log
	if l := logger.FromOr(ctx, nil); l != nil {
		base = logger.Component(l, "transcription")
	}
	log := base.With("call_id", req.CallID, "recording_id", req.RecordingID)
	source := ""
	defer func() {
		if r := recover(); r != nil {
			log.Error("transcription panicked", "panic", r)
			res = Failed{Reason: fmt.Sprintf("panic: %v", r), Source: source}
		}
	}()

	provider, err := e.providers.ResolveProvider(ctx)
	if err != nil {
		log.Warn("no transcription provider", "err", err)
		return Failed{Reason: err.Error()}
	}
	source = provider.Name()

	in := Input{RecordingID: req.RecordingID}
	sampled := false
	if provider.NeedsAudio() {
		audio, err := e.recordings.FetchRecordingContent(ctx, req.RecordingID)
		if err != nil {
			log.Warn("recording download failed", "err", err)
			return Failed{Reason: err.Error(), Source: source}
		}
		if decision == DecisionSample {
			audio = e.policy.Sample(audio, req.DurationSeconds)
			sampled = true
		}
		in.Audio = audio
	}

	text, err := provider.Transcribe(ctx, in)
	if err != nil {
		log.Warn("transcription failed", "provider", source, "err", err)
		return Failed{Reason: err.Error(), Source: source}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Failed{Reason: ReasonEmptyTranscript, Source: source}
	}

	out := Success{
		TranscriptText: text,
		IsSalesCall:    e.classifier.IsSalesCall(text),
		SampleOnly:     sampled,
		Source:         source,
	}
	log.Info("call transcribed", "provider", source, "sample_only", sampled, "sales_call", out.IsSalesCall, "chars", len(text))
	return out
}
