package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"shopcalls/pkg/logger"
)

// RunnerOptions shapes a standalone transcribe loop.
type RunnerOptions struct {
	Name      string
	BatchSize int
	// Delay is the pause between calls inside a batch and between batches.
	Delay time.Duration
	// MaxBackoff caps the doubling pause after consecutive failing batches.
	MaxBackoff time.Duration
	// MaxBatches stops the loop early; zero means until no work is left.
	MaxBatches int
	// MaxConsecutiveErrors aborts the loop; zero means 10.
	MaxConsecutiveErrors int
}

var (
	TranscribeAllOptions  = RunnerOptions{Name: "transcribe-all", BatchSize: 50, Delay: 2 * time.Second, MaxBackoff: 5 * time.Minute}
	TranscribeSlowOptions = RunnerOptions{Name: "transcribe-slow", BatchSize: 5, Delay: 30 * time.Second, MaxBackoff: 5 * time.Minute}
)

var errNoProgress = errors.New("no call in the batch was transcribed or skipped")

type RunSummary struct {
	Batches int `json:"batches"`
	BatchResult
}

// Runner polls for calls needing transcription until none are left.
type Runner struct {
	transcriber *Transcriber
	locker      Locker
	opts        RunnerOptions
	log         *slog.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewRunner(transcriber *Transcriber, locker Locker, opts RunnerOptions, l *slog.Logger) *Runner {
	if l == nil {
		l = slog.Default()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 5 * time.Minute
	}
	if opts.MaxConsecutiveErrors <= 0 {
		opts.MaxConsecutiveErrors = 10
	}
	return &Runner{
		transcriber: transcriber,
		locker:      locker,
		opts:        opts,
		log:         logger.Component(l, "runner").With("runner", opts.Name),
		sleep:       sleepCtx,
	}
}

func (r *Runner) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.opts.Delay
	if bo.InitialInterval <= 0 {
		bo.InitialInterval = time.Second
	}
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = r.opts.MaxBackoff
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

// Run loops until a batch finds no work, MaxBatches is reached or ctx is done.
// A batch that fails to list work or makes no progress counts as an error; consecutive
// errors back off exponentially up to MaxBackoff.
func (r *Runner) Run(ctx context.Context) (RunSummary, error) {
	var (
		sum     RunSummary
		streak  int
		lastErr = errNoProgress
	)
	bo := r.newBackOff()

	for r.opts.MaxBatches == 0 || sum.Batches < r.opts.MaxBatches {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		res, held, err := r.batch(ctx)
		if held {
			r.log.Info("another process holds the transcription lock, waiting")
			if err := r.sleep(ctx, bo.NextBackOff()); err != nil {
				return sum, err
			}
			continue
		}
		if err == nil && res.Processed == 0 {
			r.log.Info("no calls left to transcribe", "batches", sum.Batches)
			return sum, nil
		}
		sum.Batches++
		sum.add(res)

		pause := r.opts.Delay
		if err != nil || res.Transcribed+res.Skipped == 0 {
			streak++
			if err != nil {
				lastErr = err
			}
			if streak >= r.opts.MaxConsecutiveErrors {
				return sum, fmt.Errorf("jobs: %s gave up after %d failing batches: %w", r.opts.Name, streak, lastErr)
			}
			pause = bo.NextBackOff()
			r.log.Warn("batch made no progress, backing off", "pause", pause.String(), "streak", streak, "err", err)
		} else {
			streak = 0
			bo.Reset()
		}
		if err := r.sleep(ctx, pause); err != nil {
			return sum, err
		}
	}
	return sum, nil
}

func (r *Runner) batch(ctx context.Context) (BatchResult, bool, error) {
	if r.locker != nil {
		release, ok, err := r.locker.TryLock(ctx)
		if err != nil {
			return BatchResult{}, false, err
		}
		if !ok {
			return BatchResult{}, true, nil
		}
		defer release()
	}
	res, err := r.transcriber.TranscribePending(ctx, r.opts.BatchSize, r.opts.Delay)
	return res, false, err
}
