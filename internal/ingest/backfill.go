package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shopcalls/internal/calls"
	"shopcalls/internal/telephony"
)

const (
	DefaultBackfillDays = 90

	backfillChunk         = 7 * 24 * time.Hour
	backfillRateLimitWait = 2 * time.Minute
)

// errBackfillRateLimited ends a walk that stayed rate limited after the pause.
var errBackfillRateLimited = errors.New("ingest: backfill rate limited")

// BackfillResult reports a session-id backfill. Partial runs are reported, not failed.
type BackfillResult struct {
	Updated    int    `json:"updated"`
	NotFound   int    `json:"notFound"`
	AlreadySet int    `json:"alreadySet"`
	Errors     int    `json:"errors"`
	Message    string `json:"message"`
}

// BackfillSessionIDs links stored legs to their provider session by re-reading the call
// log backward from now in 7-day chunks. A rate limit pauses the walk for two minutes
// and retries the chunk once; a second rate limit ends the walk and the ids collected
// so far are applied. Cancelling ctx also ends the walk early, but the ids already
// collected are still written. Expect this to run for minutes.
func (s *Service) BackfillSessionIDs(ctx context.Context, daysBack int) (BackfillResult, error) {
	if s.provider == nil || s.store == nil {
		return BackfillResult{}, telephony.ErrNotConfigured
	}
	if daysBack <= 0 {
		daysBack = DefaultBackfillDays
	}

	missing, err := s.store.ListCallsMissingSessionID(ctx)
	if err != nil {
		return BackfillResult{}, err
	}
	alreadySet, err := s.store.CountCallsWithSessionID(ctx)
	if err != nil {
		return BackfillResult{}, err
	}
	res := BackfillResult{AlreadySet: alreadySet}
	if len(missing) == 0 {
		res.Message = fmt.Sprintf("All %d calls already have session IDs", alreadySet)
		return res, nil
	}

	needed := make(map[string]struct{}, len(missing))
	for _, c := range missing {
		needed[c.ProviderCallID] = struct{}{}
	}

	found, chunkErrs, stopped := s.collectSessionIDs(ctx, needed, daysBack)
	res.Errors += chunkErrs

	// Found ids are committed even when the caller has gone away.
	wctx := context.WithoutCancel(ctx)
	for _, c := range missing {
		sid, ok := found[c.ProviderCallID]
		if !ok {
			res.NotFound++
			continue
		}
		if err := s.store.UpdateCallRecording(wctx, c.ID, calls.CallPatch{ProviderSessionID: &sid}); err != nil {
			res.Errors++
			s.logFor(ctx).Warn("session id update failed", "call_id", c.ID, "err", err)
			continue
		}
		res.Updated++
	}

	res.Message = fmt.Sprintf("Updated %d calls with session IDs. %d not found in the last %d days. %d already had session IDs.",
		res.Updated, res.NotFound, daysBack, res.AlreadySet)
	switch {
	case errors.Is(stopped, errBackfillRateLimited):
		res.Message += " Stopped early due to rate limiting; re-run to continue."
	case stopped != nil:
		res.Message += " Stopped early because the run was cancelled; re-run to continue."
	}
	if res.Errors > 0 {
		res.Message += fmt.Sprintf(" %d errors.", res.Errors)
	}
	s.logFor(ctx).Info("session backfill finished",
		"updated", res.Updated,
		"not_found", res.NotFound,
		"already_set", res.AlreadySet,
		"errors", res.Errors,
		"stopped_early", stopped != nil,
	)
	return res, nil
}

// collectSessionIDs walks [now-daysBack, now) newest chunk first and keeps only ids in needed.
// stopped is errBackfillRateLimited or the ctx error when the walk ended early.
func (s *Service) collectSessionIDs(ctx context.Context, needed map[string]struct{}, daysBack int) (found map[string]string, errs int, stopped error) {
	found = make(map[string]string, len(needed))
	now := s.now().UTC()
	oldest := now.Add(-time.Duration(daysBack) * 24 * time.Hour)

	for end := now; end.After(oldest) && len(found) < len(needed); end = end.Add(-s.chunk) {
		if err := ctx.Err(); err != nil {
			return found, errs, err
		}
		start := end.Add(-s.chunk)
		if start.Before(oldest) {
			start = oldest
		}
		q := telephony.CallLogQuery{DateFrom: start, DateTo: end}

		records, err := s.provider.FetchCallLogs(ctx, q)
		if err != nil && telephony.IsRateLimit(err) {
			s.logFor(ctx).Warn("backfill rate limited, pausing", "wait", s.rateLimitWait.String(), "chunk_end", end.Format(time.RFC3339))
			if serr := s.sleep(ctx, s.rateLimitWait); serr != nil {
				return found, errs, serr
			}
			records, err = s.provider.FetchCallLogs(ctx, q)
			if err != nil && telephony.IsRateLimit(err) {
				s.logFor(ctx).Warn("backfill still rate limited, keeping partial results", "collected", len(found))
				return found, errs, errBackfillRateLimited
			}
		}
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return found, errs, cerr
			}
			errs++
			s.logFor(ctx).Warn("backfill chunk failed", "chunk_end", end.Format(time.RFC3339), "err", err)
			continue
		}

		for _, r := range records {
			if _, ok := needed[r.ID]; !ok {
				continue
			}
			if sid := sessionID(r); sid != "" {
				found[r.ID] = sid
			}
		}
	}
	return found, errs, nil
}
