package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"shopcalls/internal/app"
)

// Loader builds the service graph on demand so --help works without a database.
type Loader func(ctx context.Context) (*app.App, error)

// NewRootCommand returns the root command with all subcommands attached.
func NewRootCommand(ctx context.Context, load Loader) *cobra.Command {
	cobra.EnableCommandSorting = false
	rootCmd := &cobra.Command{
		Use:   "callsync",
		Short: "Operate the call recording pipeline.",
		Long: `callsync pulls call logs from RingCentral into Postgres, transcribes recorded calls
with the configured provider and exports call reports. Each command is one batch run;
the api process runs the same sync and transcription on a schedule.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("actor", os.Getenv("USER"), "name recorded in the audit log for changes")
	rootCmd.AddCommand(NewSyncCommand(ctx, load))
	rootCmd.AddCommand(NewTranscribeCommand(ctx, load))
	rootCmd.AddCommand(NewTranscribeAllCommand(ctx, load))
	rootCmd.AddCommand(NewTranscribeSlowCommand(ctx, load))
	rootCmd.AddCommand(NewBackfillSessionsCommand(ctx, load))
	rootCmd.AddCommand(NewScheduleCommand(ctx, load))
	rootCmd.AddCommand(NewExtensionsCommand(ctx, load))
	rootCmd.AddCommand(NewExportCommand(ctx, load))
	rootCmd.AddCommand(NewSettingsCommand(ctx, load))
	rootCmd.AddCommand(NewAuditCommand(ctx, load))
	return rootCmd
}

// withApp loads the app for one command run and closes it afterwards.
func withApp(ctx context.Context, load Loader, fn func(a *app.App) error) error {
	a, err := load(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func actorOf(cmd *cobra.Command) string {
	v, _ := cmd.Flags().GetString("actor")
	if v == "" {
		return "callsync"
	}
	return v
}
