package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"shopcalls/internal/app"
	"shopcalls/internal/audit"
)

type auditReader interface {
	Recent(ctx context.Context, limit int) ([]audit.Event, error)
}

func runListAudit(ctx context.Context, out io.Writer, r auditReader, limit int) error {
	evs, err := r.Recent(ctx, limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tTYPE\tACTOR\tTARGET\tMESSAGE")
	for _, e := range evs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.CreatedAt.Format(time.RFC3339), e.Type, e.Actor, e.Target, e.Message)
	}
	return tw.Flush()
}

// NewAuditCommand creates the 'audit' command.
func NewAuditCommand(ctx context.Context, load Loader) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent operator changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(ctx, load, func(a *app.App) error {
				return runListAudit(ctx, cmd.OutOrStdout(), a.Audit, limit)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "events to show")
	return cmd
}
