package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"shopcalls/internal/app"
	"shopcalls/internal/jobs"
	"shopcalls/internal/transcription"
)

type pendingTranscriber interface {
	TranscribePending(ctx context.Context, limit int, delay time.Duration) (jobs.BatchResult, error)
	TranscribeCall(ctx context.Context, id string) (transcription.Result, error)
}

type batchRunner interface {
	Run(ctx context.Context) (jobs.RunSummary, error)
}

func runTranscribe(ctx context.Context, out io.Writer, t pendingTranscriber, callID string, limit int, delay time.Duration) error {
	if callID != "" {
		res, err := t.TranscribeCall(ctx, callID)
		if err != nil {
			return err
		}
		return printJSON(out, describeResult(callID, res))
	}
	if limit <= 0 {
		return fmt.Errorf("--limit must be positive, got %d", limit)
	}
	res, err := t.TranscribePending(ctx, limit, delay)
	if err != nil {
		return err
	}
	return printJSON(out, res)
}

type resultView struct {
	CallID      string `json:"callId"`
	Status      string `json:"status"`
	Reason      string `json:"reason,omitempty"`
	Source      string `json:"source,omitempty"`
	SampleOnly  bool   `json:"sampleOnly,omitempty"`
	IsSalesCall bool   `json:"isSalesCall,omitempty"`
	Chars       int    `json:"chars,omitempty"`
}

func describeResult(id string, res transcription.Result) resultView {
	v := resultView{CallID: id}
	switch r := res.(type) {
	case transcription.Success:
		v.Status, v.Source, v.SampleOnly, v.IsSalesCall = "success", r.Source, r.SampleOnly, r.IsSalesCall
		v.Chars = len(r.TranscriptText)
	case transcription.Skipped:
		v.Status, v.Reason = "skipped", r.Reason
	case transcription.Failed:
		v.Status, v.Reason, v.Source = "failed", r.Reason, r.Source
	}
	return v
}

// NewTranscribeCommand creates the 'transcribe' command.
func NewTranscribeCommand(ctx context.Context, load Loader) *cobra.Command {
	var (
		callID string
		limit  int
		delay  time.Duration
	)
	cmd := &cobra.Command{
		Use:     "transcribe",
		Example: "$ callsync transcribe --limit 10\n$ callsync transcribe --id 6f1c...",
		Short:   "Transcribe one batch of pending calls, or a single call",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(ctx, load, func(a *app.App) error {
				return runTranscribe(ctx, cmd.OutOrStdout(), a.Transcriber, callID, limit, delay)
			})
		},
	}
	cmd.Flags().StringVar(&callID, "id", "", "transcribe only this call")
	cmd.Flags().IntVar(&limit, "limit", 10, "calls to process")
	cmd.Flags().DurationVar(&delay, "delay", 15*time.Second, "pause between calls")
	return cmd
}

func runRunner(ctx context.Context, out io.Writer, r batchRunner) error {
	sum, err := r.Run(ctx)
	if perr := printJSON(out, sum); perr != nil && err == nil {
		err = perr
	}
	return err
}

func newRunnerCommand(ctx context.Context, load Loader, defaults jobs.RunnerOptions, short string) *cobra.Command {
	opts := defaults
	cmd := &cobra.Command{
		Use:     defaults.Name,
		Example: "$ callsync " + defaults.Name,
		Short:   short,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(ctx, load, func(a *app.App) error {
				r := jobs.NewRunner(a.Transcriber, a.Locker, opts, a.Log)
				return runRunner(ctx, cmd.OutOrStdout(), r)
			})
		},
	}
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", defaults.BatchSize, "calls per batch")
	cmd.Flags().DurationVar(&opts.Delay, "delay", defaults.Delay, "pause between calls and between batches")
	cmd.Flags().DurationVar(&opts.MaxBackoff, "max-backoff", defaults.MaxBackoff, "cap on the pause after failing batches")
	cmd.Flags().IntVar(&opts.MaxBatches, "max-batches", 0, "stop after this many batches (0 = until done)")
	return cmd
}

// NewTranscribeAllCommand creates the 'transcribe-all' command.
func NewTranscribeAllCommand(ctx context.Context, load Loader) *cobra.Command {
	return newRunnerCommand(ctx, load, jobs.TranscribeAllOptions, "Transcribe every pending call in large batches")
}

// NewTranscribeSlowCommand creates the 'transcribe-slow' command.
func NewTranscribeSlowCommand(ctx context.Context, load Loader) *cobra.Command {
	return newRunnerCommand(ctx, load, jobs.TranscribeSlowOptions, "Transcribe pending calls in small, widely spaced batches")
}

// NewScheduleCommand creates the 'schedule' command, a worker without the HTTP surface.
func NewScheduleCommand(ctx context.Context, load Loader) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run the periodic sync and transcribe loop until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(ctx, load, func(a *app.App) error {
				s := a.NewScheduler()
				<-s.Start(ctx)
				return printJSON(cmd.OutOrStdout(), s.Status())
			})
		},
	}
}
