package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"shopcalls/internal/app"
	"shopcalls/internal/reporting"
)

type workbookExporter interface {
	ExportWorkbook(ctx context.Context, req reporting.SummaryRequest, w io.Writer) (reporting.CallsSummary, error)
}

type exportFlags struct {
	from, to, shop, out string
	days                int
}

func runExport(ctx context.Context, stdout io.Writer, e workbookExporter, f exportFlags, now time.Time) (err error) {
	if f.out == "" {
		return errors.New("--out is required")
	}
	to, err := parseDate("to", f.to)
	if err != nil {
		return err
	}
	if to.IsZero() {
		to = now.UTC()
	}
	from, err := parseDate("from", f.from)
	if err != nil {
		return err
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -f.days)
	}

	file, err := os.Create(f.out)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(f.out)
		}
	}()

	sum, err := e.ExportWorkbook(ctx, reporting.SummaryRequest{
		Range:  reporting.TimeRange{From: from, To: to},
		ShopID: f.shop,
	}, file)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %s: %d calls\n", f.out, sum.TotalCalls)
	return nil
}

// NewExportCommand creates the 'export' command.
func NewExportCommand(ctx context.Context, load Loader) *cobra.Command {
	var f exportFlags
	cmd := &cobra.Command{
		Use:     "export",
		Example: "$ callsync export --from 2026-01-01 --to 2026-02-01 --out january.xlsx",
		Short:   "Write calls and a summary sheet to an Excel workbook",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(ctx, load, func(a *app.App) error {
				return runExport(ctx, cmd.OutOrStdout(), a.Reports, f, time.Now())
			})
		},
	}
	cmd.Flags().StringVar(&f.from, "from", "", "start of the range (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.to, "to", "", "end of the range, exclusive; defaults to now")
	cmd.Flags().IntVar(&f.days, "days", 7, "range length when --from is not set")
	cmd.Flags().StringVar(&f.shop, "shop", "", "only calls attributed to this shop")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "output .xlsx path")
	return cmd
}
