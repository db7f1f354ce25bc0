package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"shopcalls/internal/calls"
)

// Repository is the persistence contract for audit events. Append-only.
type Repository interface {
	Append(ctx context.Context, e Event) error
	List(ctx context.Context, limit int) ([]Event, error)
}

// Service records operator actions.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" || e.Target == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// Recent returns the newest events first.
func (s *Service) Recent(ctx context.Context, limit int) ([]Event, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	return s.repo.List(ctx, limit)
}

func (s *Service) SettingChanged(ctx context.Context, actor, key, value string) error {
	return s.Append(ctx, Event{
		Type:    EventSettingChanged,
		Actor:   actor,
		Target:  key,
		Message: fmt.Sprintf("%s set to %q", key, value),
	})
}

func (s *Service) ExtensionMapped(ctx context.Context, actor string, m calls.ExtensionMapping) error {
	meta, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return s.Append(ctx, Event{
		Type:     EventExtensionMapped,
		Actor:    actor,
		Target:   m.ExtensionID,
		Message:  "extension attributed to " + m.UserID,
		Metadata: meta,
	})
}

// SessionBackfill records a backfill run with its counts as metadata.
func (s *Service) SessionBackfill(ctx context.Context, actor, message string, result any) error {
	meta, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return s.Append(ctx, Event{
		Type:     EventSessionBackfill,
		Actor:    actor,
		Target:   "call_recordings",
		Message:  message,
		Metadata: meta,
	})
}
