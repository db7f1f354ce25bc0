package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultSTTPollAttempts = 12
	defaultSTTPollInterval = 5 * time.Second
)

var errJobPending = errors.New("speech-to-text job still in progress")

type sttRequest struct {
	ContentURI               string `json:"contentUri"`
	Encoding                 string `json:"encoding,omitempty"`
	LanguageCode             string `json:"languageCode"`
	Source                   string `json:"source"`
	AudioType                string `json:"audioType"`
	EnablePunctuation        bool   `json:"enablePunctuation"`
	EnableSpeakerDiarization bool   `json:"enableSpeakerDiarization"`
}

type sttJob struct {
	JobID    string `json:"jobId"`
	Status   string `json:"status"`
	Response *struct {
		Transcript string  `json:"transcript"`
		Confidence float64 `json:"confidence"`
	} `json:"response,omitempty"`
	Error *struct {
		Code    string `json:"errorCode"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// TranscribeRecording runs the async speech-to-text job over a stored recording
// and polls for completion, STTPollAttempts times STTPollInterval apart.
func (c *RingCentral) TranscribeRecording(ctx context.Context, recordingID string) (string, error) {
	if recordingID == "" {
		return "", fmt.Errorf("ringcentral: recording id is required")
	}
	jobID, err := c.submitSpeechToText(ctx, recordingID)
	if err != nil {
		return "", err
	}

	var transcript string
	op := func() error {
		job, err := c.speechToTextJob(ctx, jobID)
		if err != nil {
			if IsRateLimit(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		switch strings.ToLower(job.Status) {
		case "success", "completed":
			if job.Response != nil {
				transcript = job.Response.Transcript
			}
			return nil
		case "fail", "failed":
			msg := "job failed"
			if job.Error != nil && job.Error.Message != "" {
				msg = job.Error.Message
			}
			return backoff.Permanent(fmt.Errorf("ringcentral: speech-to-text job %s: %s", jobID, msg))
		default:
			return errJobPending
		}
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.opts.STTPollInterval), uint64(c.opts.STTPollAttempts-1)),
		ctx,
	)
	if err := backoff.Retry(op, bo); err != nil {
		if errors.Is(err, errJobPending) {
			return "", fmt.Errorf("ringcentral: speech-to-text job %s not done after %d polls", jobID, c.opts.STTPollAttempts)
		}
		return "", err
	}
	return transcript, nil
}

func (c *RingCentral) submitSpeechToText(ctx context.Context, recordingID string) (string, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return "", err
	}
	// The speech service fetches the audio itself, so the content URI carries the token.
	content := c.opts.MediaURL + recordingContentPath(recordingID) + "?access_token=" + url.QueryEscape(token)

	body, err := c.do(ctx, http.MethodPost, c.opts.ServerURL, "/ai/audio/v1/async/speech-to-text", nil, "application/json", sttRequest{
		ContentURI:               content,
		Encoding:                 "Mpeg",
		LanguageCode:             "en-US",
		Source:                   "RingCentral",
		AudioType:                "CallCenter",
		EnablePunctuation:        true,
		EnableSpeakerDiarization: true,
	})
	if err != nil {
		return "", fmt.Errorf("ringcentral: submit speech-to-text: %w", err)
	}
	var job sttJob
	if err := json.Unmarshal(body, &job); err != nil {
		return "", fmt.Errorf("ringcentral: decode speech-to-text job: %w", err)
	}
	if job.JobID == "" {
		return "", fmt.Errorf("ringcentral: speech-to-text job id missing")
	}
	return job.JobID, nil
}

func (c *RingCentral) speechToTextJob(ctx context.Context, jobID string) (sttJob, error) {
	var job sttJob
	if err := c.getJSON(ctx, "/ai/status/v1/jobs/"+url.PathEscape(jobID), nil, &job); err != nil {
		return sttJob{}, err
	}
	return job, nil
}
