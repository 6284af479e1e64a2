package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/session-hub/session-webhook-bot/internal/infrastructure/external/telegram"
)

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCHER
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrMalformedUpdate is returned when the webhook body cannot be
	// parsed into an update. No handler runs in that case.
	ErrMalformedUpdate = errors.New("dispatch: malformed update payload")
)

// Dispatcher parses raw webhook bodies and fans them out to the
// registered handlers.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher over the given registry.
func NewDispatcher(registry *Registry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{registry: registry, logger: logger}
}

// Dispatch parses raw into an update and runs every resolved handler.
//
// A body that does not parse returns ErrMalformedUpdate without
// invoking any handler. Handler actions run sequentially in group
// order; every failure is logged with the update id and handler
// identity, and the joined error is returned so the HTTP layer can
// signal failure to the platform.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) error {
	var update telegram.Update
	if err := json.Unmarshal(raw, &update); err != nil {
		d.logger.Warn("dropping unparsable update payload", "error", err)
		return fmt.Errorf("%w: %v", ErrMalformedUpdate, err)
	}

	handlers := d.registry.Resolve(ctx, &update)
	if len(handlers) == 0 {
		d.logger.Debug("no handler matched update", "update_id", update.UpdateID)
		return nil
	}

	var errs []error
	for _, h := range handlers {
		if err := d.runHandler(ctx, h, &update); err != nil {
			d.logger.Error("handler failed",
				"handler", h.Name,
				"group", h.Group,
				"update_id", update.UpdateID,
				"chat_id", update.ChatID(),
				"error", err,
			)
			errs = append(errs, fmt.Errorf("handler %s: %w", h.Name, err))
		}
	}

	return errors.Join(errs...)
}

// runHandler invokes one action, converting a panic into an error so a
// single broken handler cannot take the process down.
func (d *Dispatcher) runHandler(ctx context.Context, h Handler, u *telegram.Update) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panicked: %v", p)
		}
	}()

	return h.Run(ctx, u)
}
