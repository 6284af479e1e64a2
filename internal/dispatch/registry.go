package dispatch

import (
	"context"
	"log/slog"
	"sort"

	"github.com/session-hub/session-webhook-bot/internal/infrastructure/external/telegram"
)

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER REGISTRY
// ══════════════════════════════════════════════════════════════════════════════

// Predicate reports whether a handler wants the update.
type Predicate func(u *telegram.Update) bool

// Action processes an update a predicate matched.
type Action func(ctx context.Context, u *telegram.Update) error

// Handler is one matcher+action pair in the registry.
type Handler struct {
	// Name identifies the handler in logs.
	Name string

	// Group is the handler's priority group. Groups run in ascending
	// numeric order.
	Group int

	// Conversation marks the handler as an exclusive multi-step flow.
	// When the update's chat has an open conversation, a matching
	// conversation handler claims the update exclusively within its
	// group and suppresses all lower-priority groups.
	Conversation bool

	Match Predicate
	Run   Action
}

// Registry holds the frozen set of handlers built at startup.
// Register all handlers before serving traffic; Resolve never mutates.
type Registry struct {
	byGroup map[int][]Handler
	groups  []int

	conversations ConversationStore
	logger        *slog.Logger
}

// NewRegistry creates a registry. The conversation store may be nil
// when no handler uses conversations.
func NewRegistry(conversations ConversationStore, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		byGroup:       make(map[int][]Handler),
		conversations: conversations,
		logger:        logger,
	}
}

// Register adds a handler to its group.
func (r *Registry) Register(h Handler) {
	if _, ok := r.byGroup[h.Group]; !ok {
		r.groups = append(r.groups, h.Group)
		sort.Ints(r.groups)
	}
	r.byGroup[h.Group] = append(r.byGroup[h.Group], h)
}

// Resolve returns the handlers to invoke for an update, in group order.
//
// Within the lowest-numbered matching group, a matching conversation
// handler whose chat has an open conversation fires alone and all
// lower-priority groups are skipped. Otherwise every matching handler
// across all groups is returned, preserving group order.
func (r *Registry) Resolve(ctx context.Context, u *telegram.Update) []Handler {
	convOpen := r.conversationOpen(ctx, u)

	var resolved []Handler
	for _, group := range r.groups {
		matched := r.matchGroup(u, r.byGroup[group])
		if len(matched) == 0 {
			continue
		}

		// Lowest-numbered matching group: conversation exclusivity.
		if len(resolved) == 0 && convOpen {
			for _, h := range matched {
				if h.Conversation {
					return []Handler{h}
				}
			}
		}

		resolved = append(resolved, matched...)
	}

	return resolved
}

// matchGroup evaluates predicates, treating a panicking predicate as
// non-matching so one broken handler never blocks the others.
func (r *Registry) matchGroup(u *telegram.Update, handlers []Handler) []Handler {
	var matched []Handler
	for _, h := range handlers {
		if r.safeMatch(u, h) {
			matched = append(matched, h)
		}
	}
	return matched
}

func (r *Registry) safeMatch(u *telegram.Update, h Handler) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("handler predicate panicked",
				"handler", h.Name,
				"group", h.Group,
				"update_id", u.UpdateID,
				"panic", p,
			)
			ok = false
		}
	}()

	return h.Match(u)
}

// conversationOpen reports whether the update's chat has an open
// conversation. Store failures are logged and treated as closed.
func (r *Registry) conversationOpen(ctx context.Context, u *telegram.Update) bool {
	if r.conversations == nil {
		return false
	}

	chatID := u.ChatID()
	if chatID == 0 {
		return false
	}

	state, _, err := r.conversations.Get(ctx, chatID)
	if err != nil {
		r.logger.Error("conversation state lookup failed",
			"chat_id", chatID,
			"error", err,
		)
		return false
	}

	return state != ""
}
