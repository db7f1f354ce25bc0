package calls

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("calls: not found")
	ErrInvalidArgument = errors.New("calls: invalid argument")
)

// Store is the persistence contract consumed by the sync, transcription and session-linking
// pipeline. Every method commits independently; nothing spans a batch.
type Store interface {
	// GetCallsNeedingTranscription returns calls without a transcript that were never skipped
	// and have not exhausted their failed attempts, newest first.
	GetCallsNeedingTranscription(ctx context.Context, limit int) ([]CallRecord, error)

	// CreateCallRecording inserts rec unless a row with the same ProviderCallID exists.
	// created is false when the insert was ignored.
	CreateCallRecording(ctx context.Context, rec CallRecord) (created bool, err error)

	UpdateCallRecording(ctx context.Context, id string, patch CallPatch) error

	// GetCallRecordingByProviderID returns (CallRecord{}, false, nil) when absent.
	GetCallRecordingByProviderID(ctx context.Context, providerCallID string) (CallRecord, bool, error)

	GetCallRecording(ctx context.Context, id string) (CallRecord, error)

	// GetExtensionMapping returns (ExtensionMapping{}, false, nil) when the extension is unmapped.
	GetExtensionMapping(ctx context.Context, extensionID string) (ExtensionMapping, bool, error)

	ListCallsMissingSessionID(ctx context.Context) ([]CallRecord, error)
	CountCallsWithSessionID(ctx context.Context) (int, error)

	// ListCalls returns calls whose start time is in [from, to).
	ListCalls(ctx context.Context, from, to time.Time) ([]CallRecord, error)
}
