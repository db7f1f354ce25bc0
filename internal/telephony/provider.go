package telephony

import (
	"context"
	"time"
)

// CallLogProvider is the provider-agnostic surface the ingestion pipeline depends on.
//
// Rules:
// - No provider SDK or REST calls outside telephony adapters.
// - Throttling is always reported as *RateLimitError.
type CallLogProvider interface {
	Name() string

	// FetchCallLogs returns every call leg in [DateFrom, DateTo), following pagination.
	// It never returns partial results: any fatal error aborts the whole fetch.
	FetchCallLogs(ctx context.Context, q CallLogQuery) ([]CallLogRecord, error)

	// FetchRecordingContent downloads the raw audio of a recording. No retries.
	FetchRecordingContent(ctx context.Context, recordingID string) ([]byte, error)
}

// CallLogQuery selects a date window, optionally scoped to one extension.
type CallLogQuery struct {
	DateFrom time.Time
	DateTo   time.Time

	// ExtensionID is optional; empty means account-wide.
	ExtensionID string
}

// CallLogRecord is one raw call leg as returned by the provider.
type CallLogRecord struct {
	ID                 string        `json:"id"`
	SessionID          string        `json:"sessionId,omitempty"`
	TelephonySessionID string        `json:"telephonySessionId,omitempty"`
	StartTime          time.Time     `json:"startTime"`
	Duration           int           `json:"duration"`
	Type               string        `json:"type,omitempty"`
	Direction          string        `json:"direction"`
	Result             string        `json:"result,omitempty"`
	From               Party         `json:"from"`
	To                 Party         `json:"to"`
	Recording          *RecordingRef `json:"recording,omitempty"`
}

// EndTime derives the end of the leg from start + duration.
func (r CallLogRecord) EndTime() *time.Time {
	if r.StartTime.IsZero() {
		return nil
	}
	t := r.StartTime.Add(time.Duration(r.Duration) * time.Second)
	return &t
}

// Party is one side of a call leg.
type Party struct {
	PhoneNumber     string `json:"phoneNumber,omitempty"`
	Name            string `json:"name,omitempty"`
	ExtensionID     string `json:"extensionId,omitempty"`
	ExtensionNumber string `json:"extensionNumber,omitempty"`
}

// RecordingRef points at recorded audio for a leg.
type RecordingRef struct {
	ID         string `json:"id"`
	URI        string `json:"uri,omitempty"`
	Type       string `json:"type,omitempty"`
	ContentURI string `json:"contentUri,omitempty"`
}

// Extension is a provider phone extension (user, department, IVR...).
type Extension struct {
	ID              string `json:"id"`
	ExtensionNumber string `json:"extensionNumber"`
	Name            string `json:"name"`
	Type            string `json:"type"`
	Status          string `json:"status"`
}
