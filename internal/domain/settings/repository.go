package settings

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrSettingNotFound is returned when a setting key has no value.
	ErrSettingNotFound = errors.New("settings: setting not found")
)

// ══════════════════════════════════════════════════════════════════════════════
// STORE INTERFACE
// The persistence contract for the bot's settings layer. Implemented by
// infrastructure/persistence/postgres.
// ══════════════════════════════════════════════════════════════════════════════

// Store is the persisted settings layer the bot core depends on.
type Store interface {
	// InitSchema creates all tables if they do not exist. Idempotent.
	InitSchema(ctx context.Context) error

	// ─────────────────────────────────────────────────────────────────────────
	// Settings
	// ─────────────────────────────────────────────────────────────────────────

	// GetSetting returns the value for key.
	// Returns ErrSettingNotFound when the key is absent.
	GetSetting(ctx context.Context, key string) (string, error)

	// SetSetting upserts a setting value.
	SetSetting(ctx context.Context, key, value string) error

	// GetAllSettings returns every persisted setting as a map.
	GetAllSettings(ctx context.Context) (map[string]string, error)

	// ─────────────────────────────────────────────────────────────────────────
	// Admins
	// ─────────────────────────────────────────────────────────────────────────

	// AddAdmin grants admin privileges. Returns true when the grant was
	// newly created, false when the ID was already an admin.
	AddAdmin(ctx context.Context, telegramID int64) (bool, error)

	// IsAdmin reports whether the ID has admin privileges.
	IsAdmin(ctx context.Context, telegramID int64) (bool, error)

	// GetAllAdmins returns every admin.
	GetAllAdmins(ctx context.Context) ([]Admin, error)

	// LogAdminAction records an audit entry for a privileged operation.
	LogAdminAction(ctx context.Context, adminID int64, action, details string) error

	// ─────────────────────────────────────────────────────────────────────────
	// API credential rotation pool
	// ─────────────────────────────────────────────────────────────────────────

	// GetAllAPICredentials returns the full rotation pool.
	GetAllAPICredentials(ctx context.Context) ([]APICredential, error)

	// AddAPICredential adds a credential to the rotation pool.
	AddAPICredential(ctx context.Context, apiID, apiHash string) error

	// ─────────────────────────────────────────────────────────────────────────
	// Country configuration
	// ─────────────────────────────────────────────────────────────────────────

	// GetCountriesConfig returns the country/pricing configuration.
	GetCountriesConfig(ctx context.Context) ([]Country, error)

	// ClearCountriesConfig removes all country rows.
	ClearCountriesConfig(ctx context.Context) error

	// ─────────────────────────────────────────────────────────────────────────
	// Accounts
	// ─────────────────────────────────────────────────────────────────────────

	// GetAccountsForReprocessing returns verified accounts whose last
	// processing is older than the periodic window.
	GetAccountsForReprocessing(ctx context.Context) ([]Account, error)

	// GetStuckPendingAccounts returns accounts stuck in the pending
	// state past their check window.
	GetStuckPendingAccounts(ctx context.Context) ([]Account, error)

	// ─────────────────────────────────────────────────────────────────────────
	// Topic records
	// ─────────────────────────────────────────────────────────────────────────

	// GetTopicRecords returns topic records for the given date.
	GetTopicRecords(ctx context.Context, date time.Time) ([]TopicRecord, error)

	// ClearOldTopics removes topic records older than the retention
	// window and returns the number of rows removed.
	ClearOldTopics(ctx context.Context) (int64, error)
}
