// Package lifecycle implements the startup and shutdown sequences that
// bracket the HTTP server: schema init, settings seeding, admin
// bootstrap, command menu publication, and webhook registration.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/session-hub/session-webhook-bot/config"
	"github.com/session-hub/session-webhook-bot/internal/dispatch"
	"github.com/session-hub/session-webhook-bot/internal/domain/settings"
	"github.com/session-hub/session-webhook-bot/internal/infrastructure/external/telegram"
)

// ══════════════════════════════════════════════════════════════════════════════
// SETTING KEYS AND DEFAULTS
// ══════════════════════════════════════════════════════════════════════════════

// Setting keys written by the lifecycle manager. The deployment-derived
// keys are authoritative from process configuration and overwrite any
// persisted value at every startup.
const (
	SettingSessionLogChannel = "session_log_channel_id"
	SettingForwardingEnabled = "session_forwarding_enabled"
	SettingSupportID         = "support_id"
	SettingAPIID             = "api_id"
	SettingAPIHash           = "api_hash"
)

// Fallback credential seeded when the rotation pool is empty and no
// api_id/api_hash settings are persisted, so downstream login flows
// never start without one.
const (
	defaultAPIID   = "2040"
	defaultAPIHash = "b18441a1ff607e10a989891a5462e627"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMMAND MENUS
// ══════════════════════════════════════════════════════════════════════════════

// UserCommands is the default command menu published platform-wide.
var UserCommands = []telegram.BotCommand{
	{Command: "start", Description: "Start working with the bot"},
	{Command: "balance", Description: "Show your balance"},
	{Command: "cap", Description: "Show country capacity and rates"},
	{Command: "help", Description: "How the bot works"},
	{Command: "rules", Description: "Service rules"},
	{Command: "cancel", Description: "Cancel the current operation"},
}

// AdminCommands extends the user menu for admin chats.
var AdminCommands = append(append([]telegram.BotCommand{}, UserCommands...),
	telegram.BotCommand{Command: "admin", Description: "Open the admin panel"},
	telegram.BotCommand{Command: "zip", Description: "Export collected sessions"},
)

// ══════════════════════════════════════════════════════════════════════════════
// MANAGER
// ══════════════════════════════════════════════════════════════════════════════

// Platform is the subset of the bot client the manager drives.
type Platform interface {
	SetMyCommands(ctx context.Context, commands []telegram.BotCommand, scope telegram.BotCommandScope) error
	SetWebhook(ctx context.Context, url string, allowedUpdates []string, dropPending bool) error
	DeleteWebhook(ctx context.Context) error
}

// Manager runs the startup sequence before the server accepts traffic
// and the shutdown sequence after it stops.
type Manager struct {
	cfg      *config.Config
	store    settings.Store
	platform Platform
	botData  *dispatch.BotData
	logger   *slog.Logger
}

// NewManager creates a lifecycle manager.
func NewManager(cfg *config.Config, store settings.Store, platform Platform, botData *dispatch.BotData, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:      cfg,
		store:    store,
		platform: platform,
		botData:  botData,
		logger:   logger,
	}
}

// Startup runs the full startup sequence. Any returned error is fatal:
// the process must not serve traffic with an uninitialized settings
// layer or an unregistered webhook.
func (m *Manager) Startup(ctx context.Context) error {
	// 1. Schema.
	if err := m.store.InitSchema(ctx); err != nil {
		return fmt.Errorf("lifecycle: schema init: %w", err)
	}

	// 2. Deployment-derived settings are authoritative.
	if err := m.writeDeploymentSettings(ctx); err != nil {
		return fmt.Errorf("lifecycle: writing deployment settings: %w", err)
	}

	// 3. Initial admin bootstrap.
	if err := m.grantInitialAdmin(ctx); err != nil {
		return fmt.Errorf("lifecycle: granting initial admin: %w", err)
	}

	// 4. Seed the process context.
	if err := m.seedBotData(ctx); err != nil {
		return fmt.Errorf("lifecycle: seeding process context: %w", err)
	}

	// 5. Guarantee a non-empty credential pool.
	if err := m.ensureCredentialPool(ctx); err != nil {
		return fmt.Errorf("lifecycle: seeding credential pool: %w", err)
	}

	// 6. Command menus. Per-admin failures are logged, never fatal.
	m.publishCommandMenus(ctx)

	// 7. Webhook registration, discarding anything queued before now.
	if err := m.platform.SetWebhook(ctx, m.cfg.Telegram.WebhookURL, telegram.AllUpdateTypes, true); err != nil {
		return fmt.Errorf("lifecycle: registering webhook: %w", err)
	}

	m.logger.Info("startup complete", "webhook_url", m.cfg.Telegram.WebhookURL)
	return nil
}

// Shutdown unregisters the webhook. Best-effort: a failure is logged
// and never blocks the rest of shutdown.
func (m *Manager) Shutdown(ctx context.Context) {
	if err := m.platform.DeleteWebhook(ctx); err != nil {
		m.logger.Error("webhook removal failed", "error", err)
		return
	}
	m.logger.Info("webhook removed")
}

// ─────────────────────────────────────────────────────────────────────────────
// Startup steps
// ─────────────────────────────────────────────────────────────────────────────

func (m *Manager) writeDeploymentSettings(ctx context.Context) error {
	channelID := fmt.Sprintf("%d", m.cfg.Session.LogChannelID)
	if err := m.store.SetSetting(ctx, SettingSessionLogChannel, channelID); err != nil {
		return err
	}

	enabled := "false"
	if m.cfg.Session.ForwardingEnabled {
		enabled = "true"
	}
	return m.store.SetSetting(ctx, SettingForwardingEnabled, enabled)
}

func (m *Manager) grantInitialAdmin(ctx context.Context) error {
	adminID := m.cfg.Telegram.InitialAdminID
	if adminID == 0 {
		return nil
	}

	created, err := m.store.AddAdmin(ctx, adminID)
	if err != nil {
		return err
	}

	if created {
		// Audit only the first grant, re-deploys stay quiet.
		if err := m.store.LogAdminAction(ctx, adminID, "initial_admin_granted", "seeded from configuration"); err != nil {
			return err
		}
		m.logger.Info("initial admin granted", "admin_id", adminID)
	}

	return nil
}

func (m *Manager) seedBotData(ctx context.Context) error {
	all, err := m.store.GetAllSettings(ctx)
	if err != nil {
		return err
	}
	m.botData.SeedSettings(all)

	countries, err := m.store.GetCountriesConfig(ctx)
	if err != nil {
		return err
	}
	m.botData.SetCountries(countries)

	m.botData.SetSchedulerFile(m.cfg.Session.SchedulerFile)
	m.botData.SetInitialAdminID(m.cfg.Telegram.InitialAdminID)

	return nil
}

func (m *Manager) ensureCredentialPool(ctx context.Context) error {
	creds, err := m.store.GetAllAPICredentials(ctx)
	if err != nil {
		return err
	}
	if len(creds) > 0 {
		return nil
	}

	// Persisted api_id/api_hash settings take precedence over the
	// built-in fallback.
	apiID, apiHash := defaultAPIID, defaultAPIHash
	if id, err := m.store.GetSetting(ctx, SettingAPIID); err == nil && id != "" {
		if hash, err := m.store.GetSetting(ctx, SettingAPIHash); err == nil && hash != "" {
			apiID, apiHash = id, hash
		}
	}

	if err := m.store.AddAPICredential(ctx, apiID, apiHash); err != nil {
		return err
	}

	m.logger.Info("seeded api credential pool", "api_id", apiID)
	return nil
}

func (m *Manager) publishCommandMenus(ctx context.Context) {
	if err := m.platform.SetMyCommands(ctx, UserCommands, telegram.ScopeDefault()); err != nil {
		m.logger.Warn("publishing default command menu failed", "error", err)
	}

	admins, err := m.store.GetAllAdmins(ctx)
	if err != nil {
		m.logger.Warn("listing admins for menu publication failed", "error", err)
		return
	}

	for _, admin := range admins {
		if err := m.platform.SetMyCommands(ctx, AdminCommands, telegram.ScopeChat(admin.TelegramID)); err != nil {
			m.logger.Warn("publishing admin command menu failed",
				"admin_id", admin.TelegramID,
				"error", err,
			)
		}
	}
}
