package calls

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// CallRecord is one provider-side call leg.
//
// Invariants:
//   - ProviderCallID is globally unique (upsert key, enforced by a unique constraint).
//   - Rows are never deleted. The transcription pipeline mutates transcript fields in place,
//     and the session linker sets ProviderSessionID once, from empty.
//   - InternalUserID/ShopID stay empty when the employee extension has no mapping;
//     the call is still recorded.
type CallRecord struct {
	ID string `json:"id" db:"id"`

	ProviderCallID      string `json:"provider_call_id" db:"provider_call_id"`
	ProviderRecordingID string `json:"provider_recording_id,omitempty" db:"provider_recording_id"`
	ProviderSessionID   string `json:"provider_session_id,omitempty" db:"provider_session_id"`

	Direction       Direction       `json:"direction" db:"direction"`
	CustomerPhone   string          `json:"customer_phone" db:"customer_phone"`
	CustomerName    string          `json:"customer_name,omitempty" db:"customer_name"`
	DurationSeconds int             `json:"duration_seconds" db:"duration_seconds"`
	RecordingStatus RecordingStatus `json:"recording_status" db:"recording_status"`

	CallStartTime time.Time  `json:"call_start_time" db:"call_start_time"`
	CallEndTime   *time.Time `json:"call_end_time,omitempty" db:"call_end_time"`

	InternalUserID string `json:"internal_user_id,omitempty" db:"internal_user_id"`
	ShopID         string `json:"shop_id,omitempty" db:"shop_id"`

	TranscriptText     *string             `json:"transcript_text,omitempty" db:"transcript_text"`
	TranscriptMetadata *TranscriptMetadata `json:"transcript_metadata,omitempty" db:"transcript_metadata"`
	// IsSalesCall is tri-state: nil means unknown.
	IsSalesCall *bool `json:"is_sales_call,omitempty" db:"is_sales_call"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// HasRecording reports whether audio exists for this leg.
func (c CallRecord) HasRecording() bool {
	return c.ProviderRecordingID != ""
}

// NeedsTranscription mirrors the GetCallsNeedingTranscription predicate.
func (c CallRecord) NeedsTranscription() bool {
	if c.TranscriptText != nil {
		return false
	}
	m := c.TranscriptMetadata
	if m == nil {
		return true
	}
	return m.Failed && m.Attempts < MaxTranscriptionAttempts
}

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

type RecordingStatus string

const (
	RecordingStatusNone      RecordingStatus = "none"
	RecordingStatusAvailable RecordingStatus = "available"
)

// MaxTranscriptionAttempts bounds retries of failed transcriptions.
const MaxTranscriptionAttempts = 3

// TranscriptMetadata is the persisted outcome of the last transcription attempt.
// Exactly one of the success, Skipped or Failed shapes is meaningful at a time.
type TranscriptMetadata struct {
	Source      string    `json:"source,omitempty"`
	Skipped     bool      `json:"skipped,omitempty"`
	Failed      bool      `json:"failed,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	IsSalesCall *bool     `json:"isSalesCall,omitempty"`
	SampleOnly  bool      `json:"sampleOnly,omitempty"`
	Attempts    int       `json:"attempts,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Value implements driver.Valuer so metadata is stored as JSONB.
func (m TranscriptMetadata) Value() (driver.Value, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (m *TranscriptMetadata) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = TranscriptMetadata{}
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return errors.New("calls: unsupported transcript_metadata type")
	}
}

// ExtensionMapping maps a provider phone extension to an internal user and shop.
// Read-only for the pipeline; maintained by admin tooling.
type ExtensionMapping struct {
	ExtensionID string `json:"extension_id" db:"extension_id"`
	UserID      string `json:"user_id" db:"user_id"`
	ShopID      string `json:"shop_id,omitempty" db:"shop_id"`
}

// CallPatch is a partial update. Nil fields are left unchanged.
type CallPatch struct {
	TranscriptText     *string
	TranscriptMetadata *TranscriptMetadata
	IsSalesCall        *bool
	// ProviderSessionID is only applied when the stored value is empty.
	ProviderSessionID *string
}

func (p CallPatch) IsEmpty() bool {
	return p.TranscriptText == nil && p.TranscriptMetadata == nil && p.IsSalesCall == nil && p.ProviderSessionID == nil
}
