package transcription

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/AssemblyAI/assemblyai-go-sdk"
)

type AssemblyAIProvider struct {
	client *assemblyai.Client
}

// NewAssemblyAI builds a diarizing AssemblyAI provider. baseURL is optional.
func NewAssemblyAI(apiKey, baseURL string) (*AssemblyAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: ASSEMBLYAI_API_KEY is not set", ErrProviderNotConfigured)
	}
	opts := []assemblyai.ClientOption{assemblyai.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, assemblyai.WithBaseURL(baseURL))
	}
	return &AssemblyAIProvider{client: assemblyai.NewClientWithOptions(opts...)}, nil
}

func (p *AssemblyAIProvider) Name() string     { return ProviderAssemblyAI }
func (p *AssemblyAIProvider) NeedsAudio() bool { return true }

// Transcribe uploads the audio and waits for the transcript. Speaker turns are
// rendered one per line when diarization returned utterances.
func (p *AssemblyAIProvider) Transcribe(ctx context.Context, in Input) (string, error) {
	params := &assemblyai.TranscriptOptionalParams{
		SpeakerLabels: assemblyai.Bool(true),
		Punctuate:     assemblyai.Bool(true),
		FormatText:    assemblyai.Bool(true),
	}
	tr, err := p.client.Transcripts.TranscribeFromReader(ctx, bytes.NewReader(in.Audio), params)
	if err != nil {
		return "", fmt.Errorf("assemblyai: %w", err)
	}
	if tr.Status == assemblyai.TranscriptStatusError {
		return "", fmt.Errorf("assemblyai: transcript failed: %s", assemblyai.ToString(tr.Error))
	}

	if len(tr.Utterances) > 0 {
		var b strings.Builder
		for _, u := range tr.Utterances {
			text := strings.TrimSpace(assemblyai.ToString(u.Text))
			if text == "" {
				continue
			}
			fmt.Fprintf(&b, "Speaker %s: %s\n", assemblyai.ToString(u.Speaker), text)
		}
		if s := strings.TrimSpace(b.String()); s != "" {
			return s, nil
		}
	}
	return strings.TrimSpace(assemblyai.ToString(tr.Text)), nil
}
