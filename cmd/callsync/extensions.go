package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"shopcalls/internal/app"
	"shopcalls/internal/audit"
	"shopcalls/internal/calls"
	"shopcalls/internal/telephony"
)

type extensionLister interface {
	ListExtensions(ctx context.Context) ([]telephony.Extension, error)
}

type mappingReader interface {
	GetExtensionMapping(ctx context.Context, extensionID string) (calls.ExtensionMapping, bool, error)
}

type mappingWriter interface {
	UpsertExtensionMapping(ctx context.Context, m calls.ExtensionMapping) error
}

func runListExtensions(ctx context.Context, out io.Writer, l extensionLister, m mappingReader, unmappedOnly bool) error {
	exts, err := l.ListExtensions(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNUMBER\tNAME\tTYPE\tSTATUS\tUSER\tSHOP")
	for _, e := range exts {
		mp, ok, err := m.GetExtensionMapping(ctx, e.ID)
		if err != nil {
			return fmt.Errorf("mapping for extension %s: %w", e.ID, err)
		}
		if ok && unmappedOnly {
			continue
		}
		user, shop := "-", "-"
		if ok {
			user = mp.UserID
			if mp.ShopID != "" {
				shop = mp.ShopID
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", e.ID, e.ExtensionNumber, e.Name, e.Type, e.Status, user, shop)
	}
	return tw.Flush()
}

func runMapExtension(ctx context.Context, out io.Writer, w mappingWriter, args []string) (calls.ExtensionMapping, error) {
	m := calls.ExtensionMapping{ExtensionID: args[0], UserID: args[1]}
	if len(args) > 2 {
		m.ShopID = args[2]
	}
	if err := w.UpsertExtensionMapping(ctx, m); err != nil {
		return calls.ExtensionMapping{}, err
	}
	return m, printJSON(out, m)
}

// NewExtensionsCommand creates the 'extensions' command and its 'map' subcommand.
func NewExtensionsCommand(ctx context.Context, load Loader) *cobra.Command {
	var unmapped bool
	cmd := &cobra.Command{
		Use:     "extensions",
		Example: "$ callsync extensions --unmapped",
		Short:   "List account extensions and who they are attributed to",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(ctx, load, func(a *app.App) error {
				return runListExtensions(ctx, cmd.OutOrStdout(), a.RingCentral, a.Calls, unmapped)
			})
		},
	}
	cmd.Flags().BoolVar(&unmapped, "unmapped", false, "only show extensions without a mapping")

	cmd.AddCommand(&cobra.Command{
		Use:     "map [extension-id] [user-id] [shop-id]",
		Example: "$ callsync extensions map 62145001 u-42 shop-7",
		Short:   "Attribute an extension to a user and optional shop",
		Args:    cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(ctx, load, func(a *app.App) error {
				m, err := runMapExtension(ctx, cmd.OutOrStdout(), a.Calls, args)
				if err != nil {
					return err
				}
				a.Audited(ctx, func(ctx context.Context, s *audit.Service) error {
					return s.ExtensionMapped(ctx, actorOf(cmd), m)
				})
				return nil
			})
		},
	})
	return cmd
}
