package transcription

import (
	"context"
	"fmt"
)

// RecordingSpeechToText is implemented by telephony clients with a server-side speech service.
type RecordingSpeechToText interface {
	TranscribeRecording(ctx context.Context, recordingID string) (string, error)
}

// RingCentralProvider uses the telephony provider's own async speech-to-text job.
// It reads the full recording remotely, so it is never sampled.
type RingCentralProvider struct {
	stt RecordingSpeechToText
}

func NewRingCentralSTT(stt RecordingSpeechToText) (*RingCentralProvider, error) {
	if stt == nil {
		return nil, fmt.Errorf("%w: ringcentral client is not available", ErrProviderNotConfigured)
	}
	return &RingCentralProvider{stt: stt}, nil
}

func (p *RingCentralProvider) Name() string     { return ProviderRingCentral }
func (p *RingCentralProvider) NeedsAudio() bool { return false }

func (p *RingCentralProvider) Transcribe(ctx context.Context, in Input) (string, error) {
	if in.RecordingID == "" {
		return "", fmt.Errorf("ringcentral speech-to-text: recording id is required")
	}
	return p.stt.TranscribeRecording(ctx, in.RecordingID)
}
