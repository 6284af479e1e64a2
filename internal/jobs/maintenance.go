// Package jobs implements the maintenance jobs behind the cron trigger
// endpoint. Jobs run synchronously within the triggering request;
// scheduling is the external cron invoker's responsibility.
package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/session-hub/session-webhook-bot/internal/domain/settings"
	"github.com/session-hub/session-webhook-bot/internal/login"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOBS
// ══════════════════════════════════════════════════════════════════════════════

// Job names accepted by the cron trigger endpoint.
const (
	JobAccountCheck = "account-check"
	JobDailyCleanup = "daily-cleanup"
)

var (
	// ErrUnknownJob is returned for job names the runner does not know.
	ErrUnknownJob = errors.New("jobs: unknown job name")
)

// initialCheckDelay is how far in the future a stuck account's fresh
// confirmation check is scheduled.
const initialCheckDelay = 10 * time.Minute

// Store is the subset of the settings store the jobs read.
type Store interface {
	GetAccountsForReprocessing(ctx context.Context) ([]settings.Account, error)
	GetStuckPendingAccounts(ctx context.Context) ([]settings.Account, error)
	ClearOldTopics(ctx context.Context) (int64, error)
}

// Runner executes maintenance jobs by name.
type Runner struct {
	store         Store
	processor     login.Processor
	schedulerFile string
	logger        *slog.Logger
}

// NewRunner creates a job runner.
func NewRunner(store Store, processor login.Processor, schedulerFile string, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		store:         store,
		processor:     processor,
		schedulerFile: schedulerFile,
		logger:        logger,
	}
}

// Run executes the named job synchronously and returns once it has
// fully completed. Unknown names return ErrUnknownJob.
func (r *Runner) Run(ctx context.Context, name string) error {
	runID := uuid.NewString()
	logger := r.logger.With("job", name, "run_id", runID)

	switch name {
	case JobAccountCheck:
		return r.runAccountCheck(ctx, logger)
	case JobDailyCleanup:
		return r.runDailyCleanup(ctx, logger)
	default:
		return ErrUnknownJob
	}
}

// Known reports whether name is a runnable job.
func Known(name string) bool {
	return name == JobAccountCheck || name == JobDailyCleanup
}

// ─────────────────────────────────────────────────────────────────────────────
// Account check
// ─────────────────────────────────────────────────────────────────────────────

// runAccountCheck reprocesses accounts due for their periodic check and
// reschedules accounts stuck in pending. Each phase fans out
// concurrently and the job waits for every invocation; reprocessing
// completes before any stuck account is rescheduled. Per-account
// failures are the collaborator's to report; the job only logs counts.
func (r *Runner) runAccountCheck(ctx context.Context, logger *slog.Logger) error {
	due, err := r.store.GetAccountsForReprocessing(ctx)
	if err != nil {
		logger.Error("loading accounts for reprocessing failed", "error", err)
		return err
	}

	stuck, err := r.store.GetStuckPendingAccounts(ctx)
	if err != nil {
		logger.Error("loading stuck accounts failed", "error", err)
		return err
	}

	if len(due) == 0 && len(stuck) == 0 {
		logger.Info("account check: nothing to do")
		return nil
	}

	var wg sync.WaitGroup

	for _, account := range due {
		wg.Add(1)
		go func(a settings.Account) {
			defer wg.Done()
			if err := r.processor.ReprocessAccount(ctx, a); err != nil {
				logger.Error("account reprocessing failed",
					"phone", a.PhoneNumber,
					"error", err,
				)
			}
		}(account)
	}
	wg.Wait()

	// Stuck accounts get a fresh delayed check rather than an
	// immediate re-check, so a burst of stuck accounts cannot
	// stampede the external worker.
	for _, account := range stuck {
		wg.Add(1)
		go func(a settings.Account) {
			defer wg.Done()
			params := login.CheckParams{
				UserID:        a.UserID,
				PhoneNumber:   a.PhoneNumber,
				JobID:         a.JobID,
				Delay:         initialCheckDelay,
				SchedulerFile: r.schedulerFile,
			}
			if err := r.processor.ScheduleInitialCheck(ctx, params); err != nil {
				logger.Error("rescheduling stuck account failed",
					"phone", a.PhoneNumber,
					"error", err,
				)
			}
		}(account)
	}

	wg.Wait()

	logger.Info("account check completed",
		"reprocessed", len(due),
		"rescheduled", len(stuck),
	)

	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Daily cleanup
// ─────────────────────────────────────────────────────────────────────────────

// runDailyCleanup clears stale topic records. Idempotent: a second
// immediate run removes nothing.
func (r *Runner) runDailyCleanup(ctx context.Context, logger *slog.Logger) error {
	removed, err := r.store.ClearOldTopics(ctx)
	if err != nil {
		logger.Error("clearing old topics failed", "error", err)
		return err
	}

	if removed > 0 {
		logger.Info("daily cleanup removed stale topics", "removed", removed)
	}

	logger.Info("daily cleanup completed")
	return nil
}
