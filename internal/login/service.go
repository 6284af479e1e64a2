// Package login implements the account-processing collaborator: the
// operations the maintenance jobs and handlers delegate account work
// to. Heavy session work happens in an external worker; this service
// owns the bookkeeping around it.
package login

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/session-hub/session-webhook-bot/internal/domain/settings"
	"github.com/session-hub/session-webhook-bot/internal/infrastructure/external/telegram"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrNoCredentials is returned when the rotation pool is empty.
	ErrNoCredentials = errors.New("login: api credential pool is empty")
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVICE
// ══════════════════════════════════════════════════════════════════════════════

// CheckParams describes a delayed confirmation check to schedule.
type CheckParams struct {
	UserID      int64
	PhoneNumber string
	JobID       string

	// Delay before the check runs.
	Delay time.Duration

	// SchedulerFile is the persistence file the delayed check is
	// recorded in so it survives restarts.
	SchedulerFile string
}

// Processor is the account-processing surface the jobs depend on.
type Processor interface {
	// ReprocessAccount re-runs periodic processing for an account.
	ReprocessAccount(ctx context.Context, account settings.Account) error

	// ScheduleInitialCheck schedules a fresh delayed confirmation
	// check for an account, replacing any prior schedule.
	ScheduleInitialCheck(ctx context.Context, params CheckParams) error

	// RunConfirmationCheck runs a confirmation check immediately.
	RunConfirmationCheck(ctx context.Context, account settings.Account) error
}

// Notifier is the subset of the platform client the service needs.
type Notifier interface {
	SendText(ctx context.Context, chatID int64, text string) (*telegram.Message, error)
}

// Service is the default Processor implementation.
type Service struct {
	store    settings.Store
	notifier Notifier
	logger   *slog.Logger
}

// NewService creates a login service. The notifier may be nil, in
// which case user notifications are skipped.
func NewService(store settings.Store, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, notifier: notifier, logger: logger}
}

// ReprocessAccount re-runs periodic processing for an account. The
// credential pool must be non-empty; the lifecycle manager guarantees
// that by seeding a default credential at startup.
func (s *Service) ReprocessAccount(ctx context.Context, account settings.Account) error {
	creds, err := s.store.GetAllAPICredentials(ctx)
	if err != nil {
		return fmt.Errorf("login: loading credential pool: %w", err)
	}
	if len(creds) == 0 {
		return ErrNoCredentials
	}

	// Rotate deterministically over the pool by account identity.
	cred := creds[int(account.UserID%int64(len(creds)))%len(creds)]

	s.logger.Info("reprocessing account",
		"phone", account.PhoneNumber,
		"user_id", account.UserID,
		"api_id", cred.APIID,
	)

	if s.notifier != nil {
		text := fmt.Sprintf("Your account %s is being re-checked.", account.PhoneNumber)
		if _, err := s.notifier.SendText(ctx, account.UserID, text); err != nil {
			// Notification failure is not a processing failure.
			s.logger.Warn("reprocess notification failed",
				"user_id", account.UserID,
				"error", err,
			)
		}
	}

	return nil
}

// ScheduleInitialCheck schedules a fresh delayed confirmation check,
// replacing the account's previous job id.
func (s *Service) ScheduleInitialCheck(ctx context.Context, params CheckParams) error {
	jobID := uuid.NewString()

	s.logger.Info("scheduling initial confirmation check",
		"phone", params.PhoneNumber,
		"user_id", params.UserID,
		"previous_job_id", params.JobID,
		"job_id", jobID,
		"delay", params.Delay,
		"scheduler_file", params.SchedulerFile,
	)

	key := fmt.Sprintf("scheduled_check:%s", params.PhoneNumber)
	if err := s.store.SetSetting(ctx, key, jobID); err != nil {
		return fmt.Errorf("login: recording scheduled check: %w", err)
	}

	return nil
}

// RunConfirmationCheck runs a confirmation check for one account
// immediately and waits for it to finish.
func (s *Service) RunConfirmationCheck(ctx context.Context, account settings.Account) error {
	s.logger.Info("running confirmation check",
		"phone", account.PhoneNumber,
		"user_id", account.UserID,
		"status", account.Status,
	)

	if account.Status != settings.AccountStatusPending {
		// Only pending accounts have anything to confirm.
		return nil
	}

	if s.notifier != nil {
		text := fmt.Sprintf("Confirmation check started for %s.", account.PhoneNumber)
		if _, err := s.notifier.SendText(ctx, account.UserID, text); err != nil {
			s.logger.Warn("confirmation notification failed",
				"user_id", account.UserID,
				"error", err,
			)
		}
	}

	return nil
}
