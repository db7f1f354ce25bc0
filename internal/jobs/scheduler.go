package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"shopcalls/internal/ingest"
	"shopcalls/pkg/logger"
)

var ErrAlreadyRunning = errors.New("jobs: run already in progress")

// Syncer pulls recent provider calls into the store.
type Syncer interface {
	SyncCallRecords(ctx context.Context, from, to time.Time) (ingest.SyncResult, error)
}

type SchedulerOptions struct {
	Interval  time.Duration
	BatchSize int
	CallDelay time.Duration
}

func (o SchedulerOptions) withDefaults() SchedulerOptions {
	if o.Interval <= 0 {
		o.Interval = 5 * time.Minute
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 20
	}
	if o.CallDelay < 0 {
		o.CallDelay = 0
	}
	return o
}

// Status is a snapshot of the scheduler for operators.
type Status struct {
	Enabled      bool               `json:"enabled"`
	Running      bool               `json:"running"`
	Interval     string             `json:"interval"`
	Runs         int                `json:"runs"`
	SkippedTicks int                `json:"skippedTicks"`
	LastStarted  *time.Time         `json:"lastStarted,omitempty"`
	LastFinished *time.Time         `json:"lastFinished,omitempty"`
	LastSync     *ingest.SyncResult `json:"lastSync,omitempty"`
	LastBatch    *BatchResult       `json:"lastBatch,omitempty"`
	LastError    string             `json:"lastError,omitempty"`
}

// Scheduler runs sync then transcribe on a fixed interval. A tick that fires while
// a run is in progress is dropped; the next tick picks the work up from the store.
type Scheduler struct {
	syncer      Syncer
	transcriber *Transcriber
	locker      Locker
	opts        SchedulerOptions
	log         *slog.Logger
	root        *slog.Logger
	now         func() time.Time

	running  atomic.Bool
	started  atomic.Bool
	inflight sync.WaitGroup

	mu     sync.Mutex
	status Status
}

// NewScheduler builds a scheduler. locker may be nil for single-process deployments.
func NewScheduler(syncer Syncer, transcriber *Transcriber, locker Locker, opts SchedulerOptions, l *slog.Logger) *Scheduler {
	if l == nil {
		l = slog.Default()
	}
	opts = opts.withDefaults()
	return &Scheduler{
		syncer:      syncer,
		transcriber: transcriber,
		locker:      locker,
		opts:        opts,
		log:         logger.Component(l, "scheduler"),
		root:        l,
		now:         time.Now,
		status:      Status{Interval: opts.Interval.String()},
	}
}

// Start runs the loop in a goroutine until ctx is done. The first run happens immediately.
// The returned channel is closed once the loop and any in-flight run have exited.
func (s *Scheduler) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	if !s.started.CompareAndSwap(false, true) {
		close(done)
		return done
	}
	s.mu.Lock()
	s.status.Enabled = true
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.status.Enabled = false
			s.mu.Unlock()
		}()

		ticker := time.NewTicker(s.opts.Interval)
		defer ticker.Stop()

		s.log.Info("scheduler started", "interval", s.opts.Interval.String(), "batch_size", s.opts.BatchSize)
		s.tick(ctx)
		for {
			select {
			case <-ctx.Done():
				s.inflight.Wait()
				s.log.Info("scheduler stopped")
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
	return done
}

func (s *Scheduler) tick(ctx context.Context) {
	// runs are detached from the ticker; RunOnce drops overlapping ticks
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		if err := s.RunOnce(ctx); err != nil && !errors.Is(err, ErrAlreadyRunning) {
			s.log.Error("scheduled run failed", "err", err)
		}
	}()
}

// RunOnce performs one sync + transcribe pass. It returns ErrAlreadyRunning without
// doing anything when another run holds the in-process guard or the shared lock.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		s.skipped("previous run still in progress")
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	if s.locker != nil {
		release, ok, err := s.locker.TryLock(ctx)
		if err != nil {
			return err
		}
		if !ok {
			s.skipped("lock held by another process")
			return ErrAlreadyRunning
		}
		defer release()
	}

	ctx = logger.With(ctx, s.root.With("run_id", uuid.NewString()))

	started := s.now().UTC()
	s.mu.Lock()
	s.status.LastStarted = &started
	s.mu.Unlock()

	var errs []error
	var syncRes *ingest.SyncResult
	if s.syncer != nil {
		res, err := s.syncer.SyncCallRecords(ctx, time.Time{}, time.Time{})
		if err != nil {
			errs = append(errs, err)
		} else {
			syncRes = &res
		}
	}

	var batch *BatchResult
	if s.transcriber != nil {
		res, err := s.transcriber.TranscribePending(ctx, s.opts.BatchSize, s.opts.CallDelay)
		if err != nil {
			errs = append(errs, err)
		} else {
			batch = &res
		}
	}

	err := errors.Join(errs...)
	finished := s.now().UTC()
	s.mu.Lock()
	s.status.Runs++
	s.status.LastFinished = &finished
	s.status.LastSync = syncRes
	s.status.LastBatch = batch
	s.status.LastError = ""
	if err != nil {
		s.status.LastError = err.Error()
	}
	s.mu.Unlock()
	return err
}

func (s *Scheduler) skipped(reason string) {
	s.mu.Lock()
	s.status.SkippedTicks++
	s.mu.Unlock()
	s.log.Info("scheduled run skipped", "reason", reason)
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.status
	out.Running = s.running.Load()
	return out
}
