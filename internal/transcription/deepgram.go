package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const defaultDeepgramURL = "https://api.deepgram.com"

type DeepgramProvider struct {
	apiKey  string
	baseURL string
	hc      *http.Client

	// MaxElapsed bounds retries of 5xx and network failures.
	MaxElapsed time.Duration
}

func NewDeepgram(apiKey, baseURL string, hc *http.Client) (*DeepgramProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: DEEPGRAM_API_KEY is not set", ErrProviderNotConfigured)
	}
	if baseURL == "" {
		baseURL = defaultDeepgramURL
	}
	if hc == nil {
		hc = &http.Client{Timeout: 5 * time.Minute}
	}
	return &DeepgramProvider{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		hc:         hc,
		MaxElapsed: 30 * time.Second,
	}, nil
}

func (p *DeepgramProvider) Name() string     { return ProviderDeepgram }
func (p *DeepgramProvider) NeedsAudio() bool { return true }

type deepgramResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
				Paragraphs *struct {
					Transcript string `json:"transcript"`
				} `json:"paragraphs,omitempty"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func (p *DeepgramProvider) Transcribe(ctx context.Context, in Input) (string, error) {
	q := url.Values{}
	q.Set("model", "nova-2")
	q.Set("smart_format", "true")
	q.Set("diarize", "true")
	q.Set("punctuate", "true")
	endpoint := p.baseURL + "/v1/listen?" + q.Encode()

	var out deepgramResponse
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(in.Audio))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Token "+p.apiKey)
		req.Header.Set("Content-Type", "audio/mpeg")

		resp, err := p.hc.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)

		switch {
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("deepgram: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		case resp.StatusCode >= 300:
			return backoff.Permanent(fmt.Errorf("deepgram: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
		}
		if err := json.Unmarshal(body, &out); err != nil {
			return backoff.Permanent(fmt.Errorf("deepgram: decode response: %w", err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = p.MaxElapsed
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return "", err
	}

	if len(out.Results.Channels) == 0 || len(out.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	alt := out.Results.Channels[0].Alternatives[0]
	if alt.Paragraphs != nil && strings.TrimSpace(alt.Paragraphs.Transcript) != "" {
		return strings.TrimSpace(alt.Paragraphs.Transcript), nil
	}
	return strings.TrimSpace(alt.Transcript), nil
}
