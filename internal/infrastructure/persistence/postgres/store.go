package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/session-hub/session-webhook-bot/internal/domain/settings"
)

// ══════════════════════════════════════════════════════════════════════════════
// SETTINGS STORE IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

const (
	// defaultReprocessWindow is how long a verified account may go
	// without processing before the periodic job picks it up again.
	defaultReprocessWindow = 24 * time.Hour

	// defaultStuckWindow is how long an account may sit in pending
	// before it is considered stuck.
	defaultStuckWindow = time.Hour

	// defaultTopicRetention is how long daily topic rows are kept.
	defaultTopicRetention = 7 * 24 * time.Hour
)

// StoreOptions tune the maintenance query windows.
type StoreOptions struct {
	ReprocessWindow time.Duration
	StuckWindow     time.Duration
	TopicRetention  time.Duration
}

// DefaultStoreOptions returns the standard maintenance windows.
func DefaultStoreOptions() StoreOptions {
	return StoreOptions{
		ReprocessWindow: defaultReprocessWindow,
		StuckWindow:     defaultStuckWindow,
		TopicRetention:  defaultTopicRetention,
	}
}

// Store implements settings.Store for PostgreSQL.
type Store struct {
	conn *Connection
	opts StoreOptions
}

// NewStore creates a new Store.
func NewStore(conn *Connection, opts StoreOptions) *Store {
	if opts.ReprocessWindow <= 0 {
		opts.ReprocessWindow = defaultReprocessWindow
	}
	if opts.StuckWindow <= 0 {
		opts.StuckWindow = defaultStuckWindow
	}
	if opts.TopicRetention <= 0 {
		opts.TopicRetention = defaultTopicRetention
	}
	return &Store{conn: conn, opts: opts}
}

// InitSchema creates all tables if they do not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	return NewMigrator(s.conn).Up(ctx)
}

// ─────────────────────────────────────────────────────────────────────────────
// Settings
// ─────────────────────────────────────────────────────────────────────────────

// GetSetting returns the value for key.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.conn.QueryRow(ctx,
		"SELECT value FROM settings WHERE key = $1",
		key,
	).Scan(&value)

	if IsNoRows(err) {
		return "", settings.ErrSettingNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting %q: %w", key, err)
	}

	return value, nil
}

// SetSetting upserts a setting value.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT(key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = NOW()
	`

	if _, err := s.conn.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set setting %q: %w", key, err)
	}

	return nil
}

// GetAllSettings returns every persisted setting as a map.
func (s *Store) GetAllSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.conn.Query(ctx, "SELECT key, value FROM settings")
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	defer rows.Close()

	all := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		all[key] = value
	}

	return all, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Admins
// ─────────────────────────────────────────────────────────────────────────────

// AddAdmin grants admin privileges. Returns true when the grant was
// newly created, false when the ID was already an admin.
func (s *Store) AddAdmin(ctx context.Context, telegramID int64) (bool, error) {
	query := `
		INSERT INTO admins (telegram_id, added_at)
		VALUES ($1, NOW())
		ON CONFLICT(telegram_id) DO NOTHING
	`

	tag, err := s.conn.Exec(ctx, query, telegramID)
	if err != nil {
		return false, fmt.Errorf("failed to add admin %d: %w", telegramID, err)
	}

	return tag.RowsAffected() > 0, nil
}

// IsAdmin reports whether the ID has admin privileges.
func (s *Store) IsAdmin(ctx context.Context, telegramID int64) (bool, error) {
	var exists bool
	err := s.conn.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM admins WHERE telegram_id = $1)",
		telegramID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check admin %d: %w", telegramID, err)
	}
	return exists, nil
}

// GetAllAdmins returns every admin.
func (s *Store) GetAllAdmins(ctx context.Context) ([]settings.Admin, error) {
	rows, err := s.conn.Query(ctx,
		"SELECT telegram_id, added_at FROM admins ORDER BY added_at ASC",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get admins: %w", err)
	}
	defer rows.Close()

	var admins []settings.Admin
	for rows.Next() {
		var a settings.Admin
		if err := rows.Scan(&a.TelegramID, &a.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan admin: %w", err)
		}
		admins = append(admins, a)
	}

	return admins, rows.Err()
}

// LogAdminAction records an audit entry for a privileged operation.
func (s *Store) LogAdminAction(ctx context.Context, adminID int64, action, details string) error {
	query := `
		INSERT INTO admin_actions (id, admin_id, action, details, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`

	if _, err := s.conn.Exec(ctx, query, uuid.NewString(), adminID, action, details); err != nil {
		return fmt.Errorf("failed to log admin action: %w", err)
	}

	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// API credential rotation pool
// ─────────────────────────────────────────────────────────────────────────────

// GetAllAPICredentials returns the full rotation pool.
func (s *Store) GetAllAPICredentials(ctx context.Context) ([]settings.APICredential, error) {
	rows, err := s.conn.Query(ctx,
		"SELECT api_id, api_hash, added_at FROM api_credentials ORDER BY added_at ASC",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get api credentials: %w", err)
	}
	defer rows.Close()

	var creds []settings.APICredential
	for rows.Next() {
		var c settings.APICredential
		if err := rows.Scan(&c.APIID, &c.APIHash, &c.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan api credential: %w", err)
		}
		creds = append(creds, c)
	}

	return creds, rows.Err()
}

// AddAPICredential adds a credential to the rotation pool.
func (s *Store) AddAPICredential(ctx context.Context, apiID, apiHash string) error {
	query := `
		INSERT INTO api_credentials (api_id, api_hash, added_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT(api_id, api_hash) DO NOTHING
	`

	if _, err := s.conn.Exec(ctx, query, apiID, apiHash); err != nil {
		return fmt.Errorf("failed to add api credential: %w", err)
	}

	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Country configuration
// ─────────────────────────────────────────────────────────────────────────────

// GetCountriesConfig returns the country/pricing configuration.
func (s *Store) GetCountriesConfig(ctx context.Context) ([]settings.Country, error) {
	rows, err := s.conn.Query(ctx,
		"SELECT code, name, rate, capacity FROM countries ORDER BY code ASC",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get countries config: %w", err)
	}
	defer rows.Close()

	var countries []settings.Country
	for rows.Next() {
		var c settings.Country
		if err := rows.Scan(&c.Code, &c.Name, &c.Rate, &c.Capacity); err != nil {
			return nil, fmt.Errorf("failed to scan country: %w", err)
		}
		countries = append(countries, c)
	}

	return countries, rows.Err()
}

// ClearCountriesConfig removes all country rows.
func (s *Store) ClearCountriesConfig(ctx context.Context) error {
	if _, err := s.conn.Exec(ctx, "DELETE FROM countries"); err != nil {
		return fmt.Errorf("failed to clear countries config: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Accounts
// ─────────────────────────────────────────────────────────────────────────────

const accountColumns = "user_id, phone_number, job_id, status, last_processed_at, created_at"

// GetAccountsForReprocessing returns verified accounts whose last
// processing is older than the periodic window.
func (s *Store) GetAccountsForReprocessing(ctx context.Context) ([]settings.Account, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM accounts
		WHERE status = $1 AND last_processed_at < $2
		ORDER BY last_processed_at ASC
	`, accountColumns)

	cutoff := time.Now().UTC().Add(-s.opts.ReprocessWindow)
	rows, err := s.conn.Query(ctx, query, settings.AccountStatusVerified, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to get accounts for reprocessing: %w", err)
	}
	defer rows.Close()

	return scanAccounts(rows)
}

// GetStuckPendingAccounts returns accounts stuck in the pending state
// past their check window.
func (s *Store) GetStuckPendingAccounts(ctx context.Context) ([]settings.Account, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM accounts
		WHERE status = $1 AND last_processed_at < $2
		ORDER BY last_processed_at ASC
	`, accountColumns)

	cutoff := time.Now().UTC().Add(-s.opts.StuckWindow)
	rows, err := s.conn.Query(ctx, query, settings.AccountStatusPending, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to get stuck pending accounts: %w", err)
	}
	defer rows.Close()

	return scanAccounts(rows)
}

func scanAccounts(rows pgx.Rows) ([]settings.Account, error) {
	var accounts []settings.Account
	for rows.Next() {
		var a settings.Account
		err := rows.Scan(
			&a.UserID,
			&a.PhoneNumber,
			&a.JobID,
			&a.Status,
			&a.LastProcessedAt,
			&a.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}

	return accounts, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Topic records
// ─────────────────────────────────────────────────────────────────────────────

// GetTopicRecords returns topic records for the given date.
func (s *Store) GetTopicRecords(ctx context.Context, date time.Time) ([]settings.TopicRecord, error) {
	dateOnly := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

	query := `
		SELECT id, topic_date, payload, created_at
		FROM daily_topics
		WHERE topic_date = $1
		ORDER BY created_at ASC
	`

	rows, err := s.conn.Query(ctx, query, dateOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to get topic records: %w", err)
	}
	defer rows.Close()

	var records []settings.TopicRecord
	for rows.Next() {
		var r settings.TopicRecord
		if err := rows.Scan(&r.ID, &r.TopicDate, &r.Payload, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan topic record: %w", err)
		}
		records = append(records, r)
	}

	return records, rows.Err()
}

// ClearOldTopics removes topic records older than the retention window
// and returns the number of rows removed.
func (s *Store) ClearOldTopics(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-s.opts.TopicRetention)

	tag, err := s.conn.Exec(ctx,
		"DELETE FROM daily_topics WHERE topic_date < $1",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to clear old topics: %w", err)
	}

	return tag.RowsAffected(), nil
}
