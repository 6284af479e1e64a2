// Package settings defines the persisted state this bot depends on:
// key/value settings, the admin list with its audit trail, the API
// credential rotation pool, country pricing configuration, managed
// accounts, and daily topic records.
package settings

import "time"

// Setting is a single persisted key/value configuration entry.
type Setting struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

// Admin is a user granted access to the admin command surface.
type Admin struct {
	TelegramID int64
	AddedAt    time.Time
}

// AdminAction is an audit entry for a privileged operation.
type AdminAction struct {
	ID        string // uuid
	AdminID   int64
	Action    string
	Details   string
	CreatedAt time.Time
}

// APICredential is one entry in the credential rotation pool used by
// downstream login flows. The pool must never be empty once the bot
// has started.
type APICredential struct {
	APIID   string
	APIHash string
	AddedAt time.Time
}

// Country is one row of the country/pricing configuration shown to
// users and consumed by login flows.
type Country struct {
	Code     string
	Name     string
	Rate     float64
	Capacity int
}

// Account statuses. Pending accounts that outlive their check window
// are considered stuck and get rescheduled by the maintenance job.
const (
	AccountStatusPending  = "pending"
	AccountStatusVerified = "verified"
	AccountStatusFailed   = "failed"
)

// Account is a managed account handled by the login collaborator.
type Account struct {
	UserID          int64
	PhoneNumber     string
	JobID           string
	Status          string
	LastProcessedAt time.Time
	CreatedAt       time.Time
}

// TopicRecord is a daily topic row subject to periodic cleanup.
type TopicRecord struct {
	ID        int64
	TopicDate time.Time
	Payload   string
	CreatedAt time.Time
}
