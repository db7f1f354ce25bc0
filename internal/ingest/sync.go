package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"shopcalls/internal/calls"
	"shopcalls/internal/telephony"
	"shopcalls/pkg/logger"
)

var ErrInvalidRequest = errors.New("ingest: invalid request")

// SyncResult is returned to the caller of a sync pass. It is not persisted.
type SyncResult struct {
	Synced  int `json:"synced"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// Service pulls provider call logs into the calls store.
type Service struct {
	provider telephony.CallLogProvider
	store    calls.Store
	log      *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	// backfill tuning
	chunk         time.Duration
	rateLimitWait time.Duration
}

func NewService(provider telephony.CallLogProvider, store calls.Store, l *slog.Logger) *Service {
	if l == nil {
		l = slog.Default()
	}
	return &Service{
		provider:      provider,
		store:         store,
		log:           logger.Component(l, "ingest"),
		now:           time.Now,
		sleep:         sleepCtx,
		chunk:         backfillChunk,
		rateLimitWait: backfillRateLimitWait,
	}
}

// logFor prefers the request or run scoped logger carried by ctx.
func (s *Service) logFor(ctx context.Context) *slog.Logger {
	if l := logger.FromOr(ctx, nil); l != nil {
		return logger.Component(l, "ingest")
	}
	return s.log
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SyncCallRecords inserts every provider call leg in [from, to) that is not stored yet.
// Zero bounds default to the last 24 hours. Only a fetch failure is returned as an error;
// per-record failures are counted.
func (s *Service) SyncCallRecords(ctx context.Context, from, to time.Time) (SyncResult, error) {
	if s.provider == nil || s.store == nil {
		return SyncResult{}, telephony.ErrNotConfigured
	}
	defFrom, defTo := telephony.DefaultWindow(s.now().UTC())
	if from.IsZero() {
		from = defFrom
	}
	if to.IsZero() {
		to = defTo
	}
	if !to.After(from) {
		return SyncResult{}, fmt.Errorf("%w: dateTo must be after dateFrom", ErrInvalidRequest)
	}

	records, err := s.provider.FetchCallLogs(ctx, telephony.CallLogQuery{DateFrom: from, DateTo: to})
	if err != nil {
		s.logFor(ctx).Error("call log fetch failed", "err", err)
		return SyncResult{}, err
	}

	var res SyncResult
	for _, raw := range records {
		created, err := s.upsert(ctx, raw)
		switch {
		case err != nil:
			res.Errors++
			s.logFor(ctx).Warn("call record sync failed", "provider_call_id", raw.ID, "err", err)
		case created:
			res.Synced++
		default:
			res.Skipped++
		}
	}
	s.logFor(ctx).Info("call sync finished",
		"from", from.Format(time.RFC3339),
		"to", to.Format(time.RFC3339),
		"fetched", len(records),
		"synced", res.Synced,
		"skipped", res.Skipped,
		"errors", res.Errors,
	)
	return res, nil
}

// upsert returns created=false when the call already exists, either from the cheap
// lookup or from the store ignoring a conflicting insert.
func (s *Service) upsert(ctx context.Context, raw telephony.CallLogRecord) (bool, error) {
	if raw.ID == "" {
		return false, fmt.Errorf("%w: record without id", ErrInvalidRequest)
	}
	if _, found, err := s.store.GetCallRecordingByProviderID(ctx, raw.ID); err != nil {
		return false, err
	} else if found {
		return false, nil
	}

	rec := Normalize(raw)
	if ext := EmployeeExtension(raw); ext != "" {
		m, ok, err := s.store.GetExtensionMapping(ctx, ext)
		if err != nil {
			return false, fmt.Errorf("extension mapping %s: %w", ext, err)
		}
		if ok {
			rec.InternalUserID = m.UserID
			rec.ShopID = m.ShopID
		}
	}
	return s.store.CreateCallRecording(ctx, rec)
}

// Normalize maps a provider call leg to a CallRecord without identity resolution.
func Normalize(raw telephony.CallLogRecord) calls.CallRecord {
	dir := direction(raw.Direction)
	customer := raw.To
	if dir == calls.DirectionInbound {
		customer = raw.From
	}

	rec := calls.CallRecord{
		ProviderCallID:    raw.ID,
		ProviderSessionID: sessionID(raw),
		Direction:         dir,
		CustomerPhone:     customer.PhoneNumber,
		CustomerName:      customer.Name,
		DurationSeconds:   raw.Duration,
		RecordingStatus:   calls.RecordingStatusNone,
		CallStartTime:     raw.StartTime.UTC(),
		CallEndTime:       raw.EndTime(),
	}
	if raw.Recording != nil && raw.Recording.ID != "" {
		rec.ProviderRecordingID = raw.Recording.ID
		rec.RecordingStatus = calls.RecordingStatusAvailable
	}
	return rec
}

// EmployeeExtension is the shop-side extension of a leg: the callee on inbound
// calls, the caller on outbound calls.
func EmployeeExtension(raw telephony.CallLogRecord) string {
	if direction(raw.Direction) == calls.DirectionInbound {
		return raw.To.ExtensionID
	}
	return raw.From.ExtensionID
}

func direction(v string) calls.Direction {
	if strings.EqualFold(v, "inbound") {
		return calls.DirectionInbound
	}
	return calls.DirectionOutbound
}

func sessionID(raw telephony.CallLogRecord) string {
	if raw.TelephonySessionID != "" {
		return raw.TelephonySessionID
	}
	return raw.SessionID
}
