package transcription

import (
	"context"
	"errors"
)

var (
	ErrUnknownProvider       = errors.New("transcription: unknown provider")
	ErrProviderNotConfigured = errors.New("transcription: provider not configured")
)

// Provider names accepted by the transcription_provider setting.
const (
	ProviderAssemblyAI  = "assemblyai"
	ProviderDeepgram    = "deepgram"
	ProviderWhisper     = "whisper"
	ProviderRingCentral = "ringcentral"
)

// Input is what a provider transcribes. Audio is empty for providers that
// read the recording themselves.
type Input struct {
	RecordingID string
	Audio       []byte
}

type Provider interface {
	Name() string
	// NeedsAudio is false when the provider fetches the recording on its own side.
	NeedsAudio() bool
	Transcribe(ctx context.Context, in Input) (string, error)
}
