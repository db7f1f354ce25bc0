package main

import (
	"context"
	"io"
	"time"

	"github.com/spf13/cobra"

	"shopcalls/internal/app"
	"shopcalls/internal/audit"
	"shopcalls/internal/ingest"
)

type callSyncer interface {
	SyncCallRecords(ctx context.Context, from, to time.Time) (ingest.SyncResult, error)
}

type sessionBackfiller interface {
	BackfillSessionIDs(ctx context.Context, daysBack int) (ingest.BackfillResult, error)
}

func runSync(ctx context.Context, out io.Writer, s callSyncer, fromFlag, toFlag string) error {
	from, err := parseDate("from", fromFlag)
	if err != nil {
		return err
	}
	to, err := parseDate("to", toFlag)
	if err != nil {
		return err
	}
	res, err := s.SyncCallRecords(ctx, from, to)
	if err != nil {
		return err
	}
	return printJSON(out, res)
}

// NewSyncCommand creates the 'sync' command.
func NewSyncCommand(ctx context.Context, load Loader) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:     "sync",
		Example: "$ callsync sync --from 2026-01-01 --to 2026-01-08",
		Short:   "Import call logs into the calls table",
		Long:    "Import every call leg in [from, to) that is not stored yet. Without flags the last 24 hours are synced.",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(ctx, load, func(a *app.App) error {
				return runSync(ctx, cmd.OutOrStdout(), a.Ingest, from, to)
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "start of the window (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "end of the window, exclusive")
	return cmd
}

func runBackfill(ctx context.Context, out io.Writer, b sessionBackfiller, days int) (ingest.BackfillResult, error) {
	res, err := b.BackfillSessionIDs(ctx, days)
	if err != nil {
		return ingest.BackfillResult{}, err
	}
	return res, printJSON(out, res)
}

// NewBackfillSessionsCommand creates the 'backfill-sessions' command.
func NewBackfillSessionsCommand(ctx context.Context, load Loader) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:     "backfill-sessions",
		Example: "$ callsync backfill-sessions --days 30",
		Short:   "Fill in missing telephony session ids on stored calls",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(ctx, load, func(a *app.App) error {
				res, err := runBackfill(ctx, cmd.OutOrStdout(), a.Ingest, days)
				if err != nil {
					return err
				}
				if res.Updated > 0 {
					a.Audited(ctx, func(ctx context.Context, s *audit.Service) error {
						return s.SessionBackfill(ctx, actorOf(cmd), res.Message, res)
					})
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", ingest.DefaultBackfillDays, "how many days of call logs to search")
	return cmd
}
