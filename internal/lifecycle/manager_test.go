package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/session-hub/session-webhook-bot/config"
	"github.com/session-hub/session-webhook-bot/internal/dispatch"
	"github.com/session-hub/session-webhook-bot/internal/domain/settings"
	"github.com/session-hub/session-webhook-bot/internal/infrastructure/external/telegram"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────────────────────────────────────

type fakeStore struct {
	schemaInits int
	settings    map[string]string
	admins      map[int64]bool
	auditLog    []string
	credentials []settings.APICredential
	countries   []settings.Country
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		settings: make(map[string]string),
		admins:   make(map[int64]bool),
	}
}

func (f *fakeStore) InitSchema(_ context.Context) error {
	f.schemaInits++
	return nil
}

func (f *fakeStore) GetSetting(_ context.Context, key string) (string, error) {
	v, ok := f.settings[key]
	if !ok {
		return "", settings.ErrSettingNotFound
	}
	return v, nil
}

func (f *fakeStore) SetSetting(_ context.Context, key, value string) error {
	f.settings[key] = value
	return nil
}

func (f *fakeStore) GetAllSettings(_ context.Context) (map[string]string, error) {
	out := make(map[string]string, len(f.settings))
	for k, v := range f.settings {
		out[k] = v
	}
	return out, nil
}

func (f *fakeStore) AddAdmin(_ context.Context, id int64) (bool, error) {
	if f.admins[id] {
		return false, nil
	}
	f.admins[id] = true
	return true, nil
}

func (f *fakeStore) IsAdmin(_ context.Context, id int64) (bool, error) {
	return f.admins[id], nil
}

func (f *fakeStore) GetAllAdmins(_ context.Context) ([]settings.Admin, error) {
	var admins []settings.Admin
	for id := range f.admins {
		admins = append(admins, settings.Admin{TelegramID: id, AddedAt: time.Now()})
	}
	return admins, nil
}

func (f *fakeStore) LogAdminAction(_ context.Context, _ int64, action, _ string) error {
	f.auditLog = append(f.auditLog, action)
	return nil
}

func (f *fakeStore) GetAllAPICredentials(_ context.Context) ([]settings.APICredential, error) {
	return f.credentials, nil
}

func (f *fakeStore) AddAPICredential(_ context.Context, apiID, apiHash string) error {
	f.credentials = append(f.credentials, settings.APICredential{APIID: apiID, APIHash: apiHash})
	return nil
}

func (f *fakeStore) GetCountriesConfig(_ context.Context) ([]settings.Country, error) {
	return f.countries, nil
}

func (f *fakeStore) ClearCountriesConfig(_ context.Context) error {
	f.countries = nil
	return nil
}

func (f *fakeStore) GetAccountsForReprocessing(_ context.Context) ([]settings.Account, error) {
	return nil, nil
}

func (f *fakeStore) GetStuckPendingAccounts(_ context.Context) ([]settings.Account, error) {
	return nil, nil
}

func (f *fakeStore) GetTopicRecords(_ context.Context, _ time.Time) ([]settings.TopicRecord, error) {
	return nil, nil
}

func (f *fakeStore) ClearOldTopics(_ context.Context) (int64, error) {
	return 0, nil
}

type setWebhookCall struct {
	url         string
	dropPending bool
}

type fakePlatform struct {
	setCommandsCalls []telegram.BotCommandScope
	commandsErr      map[int64]error

	setWebhookCalls []setWebhookCall
	deleteCalls     int
}

func (f *fakePlatform) SetMyCommands(_ context.Context, _ []telegram.BotCommand, scope telegram.BotCommandScope) error {
	f.setCommandsCalls = append(f.setCommandsCalls, scope)
	if err, ok := f.commandsErr[scope.ChatID]; ok {
		return err
	}
	return nil
}

func (f *fakePlatform) SetWebhook(_ context.Context, url string, _ []string, dropPending bool) error {
	f.setWebhookCalls = append(f.setWebhookCalls, setWebhookCall{url: url, dropPending: dropPending})
	return nil
}

func (f *fakePlatform) DeleteWebhook(_ context.Context) error {
	f.deleteCalls++
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Telegram: config.TelegramConfig{
			Token:          "test-token",
			WebhookURL:     "https://bot.example.com/",
			InitialAdminID: 100,
		},
		Session: config.SessionConfig{
			LogChannelID:      -100123,
			ForwardingEnabled: true,
			SchedulerFile:     "scheduler_jobs.sqlite",
		},
	}
}

func newTestManager(store *fakeStore, platform *fakePlatform) (*Manager, *dispatch.BotData) {
	botData := dispatch.NewBotData()
	return NewManager(testConfig(), store, platform, botData, nil), botData
}

// ─────────────────────────────────────────────────────────────────────────────
// Startup
// ─────────────────────────────────────────────────────────────────────────────

func TestStartup_SeedsCredentialPoolExactlyOnce(t *testing.T) {
	store := newFakeStore()
	platform := &fakePlatform{}
	m, _ := newTestManager(store, platform)

	require.NoError(t, m.Startup(context.Background()))
	require.Len(t, store.credentials, 1)

	// A second startup with a populated pool adds nothing.
	m2, _ := newTestManager(store, &fakePlatform{})
	require.NoError(t, m2.Startup(context.Background()))
	assert.Len(t, store.credentials, 1)
}

func TestStartup_SeedsCredentialPoolFromPersistedSettings(t *testing.T) {
	store := newFakeStore()
	store.settings[SettingAPIID] = "555"
	store.settings[SettingAPIHash] = "beefbeefbeef"

	m, _ := newTestManager(store, &fakePlatform{})
	require.NoError(t, m.Startup(context.Background()))

	require.Len(t, store.credentials, 1)
	assert.Equal(t, "555", store.credentials[0].APIID)
	assert.Equal(t, "beefbeefbeef", store.credentials[0].APIHash)
}

func TestStartup_ExistingCredentialsNotDuplicated(t *testing.T) {
	store := newFakeStore()
	store.credentials = []settings.APICredential{{APIID: "111", APIHash: "aaa"}}
	m, _ := newTestManager(store, &fakePlatform{})

	require.NoError(t, m.Startup(context.Background()))
	assert.Len(t, store.credentials, 1)
	assert.Equal(t, "111", store.credentials[0].APIID)
}

func TestStartup_RegistersWebhookOnceWithDropPending(t *testing.T) {
	store := newFakeStore()
	platform := &fakePlatform{}
	m, _ := newTestManager(store, platform)

	require.NoError(t, m.Startup(context.Background()))

	require.Len(t, platform.setWebhookCalls, 1)
	assert.Equal(t, "https://bot.example.com/", platform.setWebhookCalls[0].url)
	assert.True(t, platform.setWebhookCalls[0].dropPending)
}

func TestStartup_DeploymentSettingsOverwritePersisted(t *testing.T) {
	store := newFakeStore()
	store.settings[SettingSessionLogChannel] = "stale"
	store.settings[SettingForwardingEnabled] = "false"

	m, botData := newTestManager(store, &fakePlatform{})
	require.NoError(t, m.Startup(context.Background()))

	assert.Equal(t, "-100123", store.settings[SettingSessionLogChannel])
	assert.Equal(t, "true", store.settings[SettingForwardingEnabled])

	// The process context sees the fresh values.
	v, ok := botData.Setting(SettingSessionLogChannel)
	assert.True(t, ok)
	assert.Equal(t, "-100123", v)
}

func TestStartup_InitialAdminAuditedOnlyOnFirstGrant(t *testing.T) {
	store := newFakeStore()
	m, _ := newTestManager(store, &fakePlatform{})

	require.NoError(t, m.Startup(context.Background()))
	assert.True(t, store.admins[100])
	assert.Equal(t, []string{"initial_admin_granted"}, store.auditLog)

	// Second startup: admin already present, no new audit entry.
	m2, _ := newTestManager(store, &fakePlatform{})
	require.NoError(t, m2.Startup(context.Background()))
	assert.Len(t, store.auditLog, 1)
}

func TestStartup_AdminMenuFailureIsNonFatal(t *testing.T) {
	store := newFakeStore()
	store.admins[100] = true
	store.admins[200] = true

	platform := &fakePlatform{
		commandsErr: map[int64]error{200: errors.New("chat not found")},
	}
	m, _ := newTestManager(store, platform)

	require.NoError(t, m.Startup(context.Background()))

	// Webhook registration still happened after the menu failure.
	assert.Len(t, platform.setWebhookCalls, 1)

	// Default scope + one call per admin, failure included.
	assert.Len(t, platform.setCommandsCalls, 3)
}

func TestStartup_SeedsBotDataFromStore(t *testing.T) {
	store := newFakeStore()
	store.settings["support_id"] = "-100555"
	store.countries = []settings.Country{{Code: "US", Name: "United States", Rate: 2.5, Capacity: 10}}

	m, botData := newTestManager(store, &fakePlatform{})
	require.NoError(t, m.Startup(context.Background()))

	v, ok := botData.Setting("support_id")
	assert.True(t, ok)
	assert.Equal(t, "-100555", v)

	require.Len(t, botData.Countries(), 1)
	assert.Equal(t, "US", botData.Countries()[0].Code)
	assert.Equal(t, "scheduler_jobs.sqlite", botData.SchedulerFile())
	assert.Equal(t, int64(100), botData.InitialAdminID())
}

// ─────────────────────────────────────────────────────────────────────────────
// Shutdown
// ─────────────────────────────────────────────────────────────────────────────

func TestShutdown_DeletesWebhookExactlyOnce(t *testing.T) {
	store := newFakeStore()
	store.admins[200] = true
	platform := &fakePlatform{
		commandsErr: map[int64]error{200: errors.New("blocked")},
	}
	m, _ := newTestManager(store, platform)

	require.NoError(t, m.Startup(context.Background()))
	m.Shutdown(context.Background())

	assert.Equal(t, 1, platform.deleteCalls)
}
