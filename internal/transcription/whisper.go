package transcription

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// whisperMaxBytes is the upload limit of the OpenAI transcription endpoint.
const whisperMaxBytes = 25 << 20

type WhisperProvider struct {
	client *openai.Client
}

func NewWhisper(apiKey, baseURL string) (*WhisperProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY is not set", ErrProviderNotConfigured)
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &WhisperProvider{client: openai.NewClientWithConfig(cfg)}, nil
}

func (p *WhisperProvider) Name() string     { return ProviderWhisper }
func (p *WhisperProvider) NeedsAudio() bool { return true }

func (p *WhisperProvider) Transcribe(ctx context.Context, in Input) (string, error) {
	if len(in.Audio) > whisperMaxBytes {
		return "", fmt.Errorf("whisper: audio is %d bytes, limit is %d", len(in.Audio), whisperMaxBytes)
	}
	resp, err := p.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: "recording.mp3",
		Reader:   bytes.NewReader(in.Audio),
		Language: "en",
	})
	if err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
