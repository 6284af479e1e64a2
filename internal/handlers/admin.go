package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/session-hub/session-webhook-bot/internal/dispatch"
	"github.com/session-hub/session-webhook-bot/internal/infrastructure/external/telegram"
)

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN HANDLERS (GROUP 0)
// ══════════════════════════════════════════════════════════════════════════════

func registerAdminHandlers(registry *dispatch.Registry, deps Deps) {
	registry.Register(dispatch.Handler{
		Name:  "admin.panel",
		Group: GroupAdmin,
		Match: isCommand("admin"),
		Run:   requireAdmin(deps, adminPanelHandler(deps)),
	})

	registry.Register(dispatch.Handler{
		Name:  "admin.zip",
		Group: GroupAdmin,
		Match: isCommand("zip"),
		Run:   requireAdmin(deps, zipHandler(deps)),
	})
}

// requireAdmin silently ignores the command for non-admins so the
// admin surface stays invisible to regular users.
func requireAdmin(deps Deps, next dispatch.Action) dispatch.Action {
	return func(ctx context.Context, u *telegram.Update) error {
		isAdmin, err := deps.Store.IsAdmin(ctx, u.FromID())
		if err != nil {
			return fmt.Errorf("admin check: %w", err)
		}
		if !isAdmin {
			return nil
		}
		return next(ctx, u)
	}
}

func adminPanelHandler(deps Deps) dispatch.Action {
	return func(ctx context.Context, u *telegram.Update) error {
		all, err := deps.Store.GetAllSettings(ctx)
		if err != nil {
			return fmt.Errorf("loading settings: %w", err)
		}

		admins, err := deps.Store.GetAllAdmins(ctx)
		if err != nil {
			return fmt.Errorf("loading admins: %w", err)
		}

		var b strings.Builder
		fmt.Fprintf(&b, "Admin panel\nAdmins: %d\nSettings: %d\nCountries: %d\n",
			len(admins), len(all), len(deps.BotData.Countries()))

		if err := deps.Store.LogAdminAction(ctx, u.FromID(), "admin_panel_opened", ""); err != nil {
			deps.Logger.Warn("audit log failed", "admin_id", u.FromID(), "error", err)
		}

		_, err = deps.Client.SendText(ctx, u.ChatID(), b.String())
		return err
	}
}

// zipHandler kicks off a session export. The export itself runs in the
// external worker; the command records the request and confirms.
func zipHandler(deps Deps) dispatch.Action {
	return func(ctx context.Context, u *telegram.Update) error {
		args := telegram.ExtractCommandArgs(u.Message)

		if err := deps.Store.LogAdminAction(ctx, u.FromID(), "session_export_requested", args); err != nil {
			return fmt.Errorf("recording export request: %w", err)
		}

		_, err := deps.Client.SendText(ctx, u.ChatID(), "Export queued. You will receive the archive here.")
		return err
	}
}
