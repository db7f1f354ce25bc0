package audit

import (
	"encoding/json"
	"time"
)

// Event is one append-only record of an operator action that changes pipeline behavior.
//
// Invariants:
// - Events are never updated or deleted.
// - Actor is best-effort (the OS user running callsync); audit failures never block the action.
type Event struct {
	ID   string    `json:"id" db:"id"`
	Type EventType `json:"type" db:"type"`

	Actor string `json:"actor,omitempty" db:"actor"`
	// Target names what changed: a settings key, an extension id, "call_recordings".
	Target  string `json:"target,omitempty" db:"target"`
	Message string `json:"message,omitempty" db:"message"`

	Metadata json.RawMessage `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventSettingChanged  EventType = "setting_changed"
	EventExtensionMapped EventType = "extension_mapped"
	EventSessionBackfill EventType = "session_backfill"
)
