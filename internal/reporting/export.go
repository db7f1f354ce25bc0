package reporting

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"shopcalls/internal/calls"
)

const (
	SheetCalls   = "Calls"
	SheetSummary = "Summary"
)

var callHeader = []any{
	"Call ID", "Provider Call ID", "Session ID", "Start (UTC)", "Direction", "Customer Phone",
	"Customer Name", "Duration (s)", "Recording", "User", "Shop", "Status", "Sales Call", "Sample Only", "Transcript",
}

// ExportWorkbook writes the calls in req and their summary as an XLSX workbook.
func (s *Service) ExportWorkbook(ctx context.Context, req SummaryRequest, w io.Writer) (CallsSummary, error) {
	rows, err := s.list(ctx, req)
	if err != nil {
		return CallsSummary{}, err
	}
	sum := Summarize(rows, req.Range)

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetCalls); err != nil {
		return CallsSummary{}, err
	}
	if err := f.SetSheetRow(SheetCalls, "A1", &callHeader); err != nil {
		return CallsSummary{}, err
	}
	for i, c := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return CallsSummary{}, err
		}
		row := callRow(c)
		if err := f.SetSheetRow(SheetCalls, cell, &row); err != nil {
			return CallsSummary{}, err
		}
	}
	_ = f.SetColWidth(SheetCalls, "A", "C", 38)
	_ = f.SetColWidth(SheetCalls, "O", "O", 80)

	if _, err := f.NewSheet(SheetSummary); err != nil {
		return CallsSummary{}, err
	}
	for i, kv := range summaryRows(sum) {
		row := kv
		if err := f.SetSheetRow(SheetSummary, fmt.Sprintf("A%d", i+1), &row); err != nil {
			return CallsSummary{}, err
		}
	}
	_ = f.SetColWidth(SheetSummary, "A", "A", 28)

	if _, err := f.WriteTo(w); err != nil {
		return CallsSummary{}, fmt.Errorf("reporting: write workbook: %w", err)
	}
	return sum, nil
}

func callRow(c calls.CallRecord) []any {
	sales := ""
	if c.IsSalesCall != nil {
		sales = fmt.Sprintf("%t", *c.IsSalesCall)
	}
	transcript := ""
	if c.TranscriptText != nil {
		transcript = *c.TranscriptText
	}
	sample := false
	if c.TranscriptMetadata != nil {
		sample = c.TranscriptMetadata.SampleOnly
	}
	return []any{
		c.ID,
		c.ProviderCallID,
		c.ProviderSessionID,
		c.CallStartTime.UTC().Format(time.RFC3339),
		string(c.Direction),
		c.CustomerPhone,
		c.CustomerName,
		c.DurationSeconds,
		c.ProviderRecordingID,
		c.InternalUserID,
		c.ShopID,
		transcriptStatus(c),
		sales,
		sample,
		transcript,
	}
}

func transcriptStatus(c calls.CallRecord) string {
	m := c.TranscriptMetadata
	switch {
	case c.TranscriptText != nil:
		return "transcribed"
	case m != nil && m.Skipped:
		return "skipped: " + m.Reason
	case m != nil && m.Failed:
		return fmt.Sprintf("failed (%d): %s", m.Attempts, m.Reason)
	default:
		return "pending"
	}
}

func summaryRows(s CallsSummary) [][]any {
	return [][]any{
		{"From", s.From.UTC().Format(time.RFC3339)},
		{"To", s.To.UTC().Format(time.RFC3339)},
		{"Total calls", s.TotalCalls},
		{"Inbound", s.InboundCalls},
		{"Outbound", s.OutboundCalls},
		{"Recorded", s.RecordedCalls},
		{"Transcribed", s.TranscribedCalls},
		{"Sample only", s.SampleOnlyCalls},
		{"Skipped", s.SkippedCalls},
		{"Failed", s.FailedCalls},
		{"Pending", s.PendingCalls},
		{"Sales calls", s.SalesCalls},
		{"Unattributed", s.UnattributedCalls},
		{"Average duration (s)", s.AverageDurationSeconds},
	}
}
