package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"shopcalls/internal/app"
	"shopcalls/internal/audit"
	"shopcalls/internal/settings"
	"shopcalls/internal/transcription"
)

type providerRegistry interface {
	Known(name string) bool
}

func runSetProvider(ctx context.Context, out io.Writer, w settings.Writer, reg providerRegistry, name string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if !reg.Known(name) {
		return fmt.Errorf("%w: %q", transcription.ErrUnknownProvider, name)
	}
	if err := w.Put(ctx, settings.KeyTranscriptionProvider, name); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s = %s\n", settings.KeyTranscriptionProvider, name)
	return nil
}

// NewSettingsCommand creates the 'settings' command group.
func NewSettingsCommand(ctx context.Context, load Loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read or change runtime settings shared by all processes",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "provider",
		Short: "Print the effective transcription provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(ctx, load, func(a *app.App) error {
				fmt.Fprintln(cmd.OutOrStdout(), a.Providers.ProviderName(ctx))
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:     "set-provider [name]",
		Example: "$ callsync settings set-provider deepgram",
		Short:   "Switch the transcription provider without restarting",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(ctx, load, func(a *app.App) error {
				if err := runSetProvider(ctx, cmd.OutOrStdout(), a.Settings, a.Providers, args[0]); err != nil {
					return err
				}
				a.Audited(ctx, func(ctx context.Context, s *audit.Service) error {
					return s.SettingChanged(ctx, actorOf(cmd), settings.KeyTranscriptionProvider, a.Providers.ProviderName(ctx))
				})
				return nil
			})
		},
	})
	return cmd
}
