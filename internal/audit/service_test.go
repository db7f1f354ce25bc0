package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"shopcalls/internal/calls"
)

func TestService_AppendRequiresTypeAndTarget(t *testing.T) {
	svc := NewService(NewMemoryRepo())

	if err := svc.Append(context.Background(), Event{Type: EventSettingChanged}); err == nil {
		t.Fatalf("expected error")
	}
	if err := svc.Append(context.Background(), Event{Target: "x"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestService_RecordsOperatorActions(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	svc.clock = func() time.Time { return now }
	ctx := context.Background()

	if err := svc.SettingChanged(ctx, "ops", "transcription_provider", "deepgram"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	m := calls.ExtensionMapping{ExtensionID: "101", UserID: "u-1", ShopID: "s-1"}
	if err := svc.ExtensionMapped(ctx, "ops", m); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs, err := svc.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(evs) != 2 {
		t.Fatalf("expected 2 events, got %d", len(evs))
	}
	if evs[0].Type != EventExtensionMapped || evs[0].Target != "101" {
		t.Fatalf("expected newest first, got %+v", evs[0])
	}
	var got calls.ExtensionMapping
	if err := json.Unmarshal(evs[0].Metadata, &got); err != nil || got != m {
		t.Fatalf("metadata mismatch: %v %+v", err, got)
	}
	if evs[1].ID == "" || !evs[1].CreatedAt.Equal(now) {
		t.Fatalf("expected id and timestamp filled, got %+v", evs[1])
	}
}
