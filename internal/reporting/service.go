package reporting

import (
	"context"
	"errors"
	"time"

	"shopcalls/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository is the read side reporting needs. calls.Store satisfies it.
type Repository interface {
	ListCalls(ctx context.Context, from, to time.Time) ([]calls.CallRecord, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) list(ctx context.Context, req SummaryRequest) ([]calls.CallRecord, error) {
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return nil, ErrInvalidRequest
	}
	if s.repo == nil {
		return nil, errors.New("reporting: repository not configured")
	}
	rows, err := s.repo.ListCalls(ctx, req.Range.From, req.Range.To)
	if err != nil {
		return nil, err
	}
	if req.ShopID == "" {
		return rows, nil
	}
	out := rows[:0:0]
	for _, c := range rows {
		if c.ShopID == req.ShopID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Service) CallsSummary(ctx context.Context, req SummaryRequest) (CallsSummary, error) {
	rows, err := s.list(ctx, req)
	if err != nil {
		return CallsSummary{}, err
	}
	return Summarize(rows, req.Range), nil
}

// Summarize aggregates rows already filtered to r.
func Summarize(rows []calls.CallRecord, r TimeRange) CallsSummary {
	out := CallsSummary{From: r.From, To: r.To, ByShop: map[string]int{}}
	for _, c := range rows {
		out.TotalCalls++
		out.TotalDurationSeconds += c.DurationSeconds
		switch c.Direction {
		case calls.DirectionInbound:
			out.InboundCalls++
		case calls.DirectionOutbound:
			out.OutboundCalls++
		}
		if c.HasRecording() {
			out.RecordedCalls++
		}
		if c.ShopID == "" {
			out.UnattributedCalls++
		} else {
			out.ByShop[c.ShopID]++
		}
		if c.IsSalesCall != nil && *c.IsSalesCall {
			out.SalesCalls++
		}

		m := c.TranscriptMetadata
		switch {
		case c.TranscriptText != nil:
			out.TranscribedCalls++
			if m != nil && m.SampleOnly {
				out.SampleOnlyCalls++
			}
		case m != nil && m.Skipped:
			out.SkippedCalls++
		case m != nil && m.Failed:
			out.FailedCalls++
		default:
			out.PendingCalls++
		}
	}
	if out.TotalCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.TotalCalls
	}
	if len(out.ByShop) == 0 {
		out.ByShop = nil
	}
	return out
}
