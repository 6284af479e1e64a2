// Package dispatch implements the update dispatch core: the handler
// registry with its group ordering and conversation exclusivity, the
// dispatcher that turns a raw webhook body into handler invocations,
// and the shared process context seeded at startup.
package dispatch

import (
	"sync"

	"github.com/session-hub/session-webhook-bot/internal/domain/settings"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROCESS CONTEXT
// ══════════════════════════════════════════════════════════════════════════════

// BotData is the process-wide read-mostly state. The lifecycle manager
// populates it once at startup; handlers and jobs read it afterwards.
// Runtime writes go through the setters so concurrent dispatches never
// race on the maps.
type BotData struct {
	mu sync.RWMutex

	settings       map[string]string
	countries      []settings.Country
	schedulerFile  string
	initialAdminID int64
}

// NewBotData creates an empty process context.
func NewBotData() *BotData {
	return &BotData{settings: make(map[string]string)}
}

// SeedSettings replaces the settings snapshot wholesale.
func (b *BotData) SeedSettings(all map[string]string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.settings = make(map[string]string, len(all))
	for k, v := range all {
		b.settings[k] = v
	}
}

// Setting returns the value for key and whether it is present.
func (b *BotData) Setting(key string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	v, ok := b.settings[key]
	return v, ok
}

// SetSetting updates a single setting in the snapshot.
func (b *BotData) SetSetting(key, value string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.settings[key] = value
}

// Countries returns the country configuration snapshot.
func (b *BotData) Countries() []settings.Country {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]settings.Country, len(b.countries))
	copy(out, b.countries)
	return out
}

// SetCountries replaces the country configuration snapshot.
func (b *BotData) SetCountries(countries []settings.Country) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.countries = make([]settings.Country, len(countries))
	copy(b.countries, countries)
}

// SchedulerFile returns the scheduler persistence file path.
func (b *BotData) SchedulerFile() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.schedulerFile
}

// SetSchedulerFile sets the scheduler persistence file path.
func (b *BotData) SetSchedulerFile(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.schedulerFile = path
}

// InitialAdminID returns the configured initial admin (0 = none).
func (b *BotData) InitialAdminID() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.initialAdminID
}

// SetInitialAdminID sets the configured initial admin.
func (b *BotData) SetInitialAdminID(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initialAdminID = id
}
