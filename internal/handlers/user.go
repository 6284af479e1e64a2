package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/session-hub/session-webhook-bot/internal/dispatch"
	"github.com/session-hub/session-webhook-bot/internal/infrastructure/external/telegram"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER HANDLERS (GROUP 2)
// ══════════════════════════════════════════════════════════════════════════════

// Withdrawal conversation states.
const (
	stateAwaitingAmount  = "withdraw_awaiting_amount"
	stateAwaitingAddress = "withdraw_awaiting_address"
)

const balanceKeyPrefix = "balance:"

func registerUserHandlers(registry *dispatch.Registry, deps Deps) {
	registry.Register(dispatch.Handler{
		Name:  "user.start",
		Group: GroupUser,
		Match: isCommand("start"),
		Run:   startHandler(deps),
	})

	registry.Register(dispatch.Handler{
		Name:  "user.balance",
		Group: GroupUser,
		Match: isCommand("balance"),
		Run:   balanceHandler(deps),
	})

	registry.Register(dispatch.Handler{
		Name:  "user.cap",
		Group: GroupUser,
		Match: isCommand("cap"),
		Run:   capHandler(deps),
	})

	registry.Register(dispatch.Handler{
		Name:  "user.help",
		Group: GroupUser,
		Match: isCommand("help"),
		Run:   staticReply(deps, helpText),
	})

	registry.Register(dispatch.Handler{
		Name:  "user.rules",
		Group: GroupUser,
		Match: isCommand("rules"),
		Run:   staticReply(deps, rulesText),
	})

	registry.Register(dispatch.Handler{
		Name:  "user.cancel",
		Group: GroupUser,
		Match: isCommand("cancel"),
		Run:   cancelHandler(deps),
	})

	registry.Register(dispatch.Handler{
		Name:  "user.callback",
		Group: GroupUser,
		Match: func(u *telegram.Update) bool { return u.CallbackQuery != nil },
		Run:   callbackHandler(deps),
	})

	registry.Register(dispatch.Handler{
		Name:         "user.withdrawal",
		Group:        GroupUser,
		Conversation: true,
		Match: func(u *telegram.Update) bool {
			return u.Message != nil &&
				telegram.IsPrivateChat(u.Message) &&
				!telegram.IsCommand(u.Message) &&
				u.Message.Text != ""
		},
		Run: withdrawalHandler(deps),
	})
}

const helpText = `Send /start to begin.
Use /cap to see supported countries and rates.
Use /balance to check your balance and request a withdrawal.
Use /cancel to abort whatever you are in the middle of.`

const rulesText = `One account per phone number.
Accounts are verified before they count toward your balance.
Abuse leads to a permanent ban.`

// ─────────────────────────────────────────────────────────────────────────────
// Commands
// ─────────────────────────────────────────────────────────────────────────────

func startHandler(deps Deps) dispatch.Action {
	return func(ctx context.Context, u *telegram.Update) error {
		name := "there"
		if u.Message.From != nil {
			name = u.Message.From.FullName()
		}

		text := fmt.Sprintf("Hello, %s! Use /cap to see what we are buying today.", name)
		_, err := deps.Client.SendText(ctx, u.ChatID(), text)
		return err
	}
}

func balanceHandler(deps Deps) dispatch.Action {
	return func(ctx context.Context, u *telegram.Update) error {
		balance := userBalance(deps.BotData, u.FromID())

		keyboard := [][]telegram.InlineKeyboardButton{{
			{Text: "Withdraw", CallbackData: "withdraw"},
		}}

		text := fmt.Sprintf("Your balance: $%.2f", balance)
		_, err := deps.Client.SendWithKeyboard(ctx, u.ChatID(), text, keyboard)
		return err
	}
}

func capHandler(deps Deps) dispatch.Action {
	return func(ctx context.Context, u *telegram.Update) error {
		countries := deps.BotData.Countries()
		if len(countries) == 0 {
			_, err := deps.Client.SendText(ctx, u.ChatID(), "No countries are open right now.")
			return err
		}

		var b strings.Builder
		b.WriteString("Current capacity:\n")
		for _, c := range countries {
			fmt.Fprintf(&b, "%s %s — $%.2f (%d slots)\n", c.Code, c.Name, c.Rate, c.Capacity)
		}

		_, err := deps.Client.SendText(ctx, u.ChatID(), b.String())
		return err
	}
}

func staticReply(deps Deps, text string) dispatch.Action {
	return func(ctx context.Context, u *telegram.Update) error {
		_, err := deps.Client.SendText(ctx, u.ChatID(), text)
		return err
	}
}

func cancelHandler(deps Deps) dispatch.Action {
	return func(ctx context.Context, u *telegram.Update) error {
		if err := deps.Conversations.Clear(ctx, u.ChatID()); err != nil {
			return err
		}
		_, err := deps.Client.SendText(ctx, u.ChatID(), "Cancelled.")
		return err
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Callbacks
// ─────────────────────────────────────────────────────────────────────────────

func callbackHandler(deps Deps) dispatch.Action {
	return func(ctx context.Context, u *telegram.Update) error {
		cq := u.CallbackQuery
		if err := deps.Client.AnswerCallbackQuery(ctx, cq.ID, "", false); err != nil {
			deps.Logger.Warn("answering callback failed", "callback_id", cq.ID, "error", err)
		}

		if cq.Data != "withdraw" {
			return nil
		}

		chatID := u.ChatID()
		if err := deps.Conversations.Set(ctx, chatID, stateAwaitingAmount, nil); err != nil {
			return err
		}

		_, err := deps.Client.SendText(ctx, chatID, "How much would you like to withdraw?")
		return err
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Withdrawal conversation
// ─────────────────────────────────────────────────────────────────────────────

// withdrawalHandler advances the withdrawal flow one step per message:
// amount, then destination address, then confirmation.
func withdrawalHandler(deps Deps) dispatch.Action {
	return func(ctx context.Context, u *telegram.Update) error {
		chatID := u.ChatID()
		state, data, err := deps.Conversations.Get(ctx, chatID)
		if err != nil {
			return err
		}
		if data == nil {
			data = make(map[string]string)
		}

		text := strings.TrimSpace(u.Message.Text)

		switch state {
		case stateAwaitingAmount:
			amount, err := strconv.ParseFloat(text, 64)
			if err != nil || amount <= 0 {
				_, err := deps.Client.SendText(ctx, chatID, "Please send a positive number.")
				return err
			}

			if amount > userBalance(deps.BotData, u.FromID()) {
				_, err := deps.Client.SendText(ctx, chatID, "That is more than your balance.")
				return err
			}

			data["amount"] = text
			if err := deps.Conversations.Set(ctx, chatID, stateAwaitingAddress, data); err != nil {
				return err
			}

			_, err = deps.Client.SendText(ctx, chatID, "Where should we send it? Paste your address.")
			return err

		case stateAwaitingAddress:
			if len(text) < 10 {
				_, err := deps.Client.SendText(ctx, chatID, "That address looks too short, try again.")
				return err
			}

			key := fmt.Sprintf("withdrawal:%d", u.FromID())
			value := fmt.Sprintf("amount=%s address=%s", data["amount"], text)
			if err := deps.Store.SetSetting(ctx, key, value); err != nil {
				deps.Logger.Error("recording withdrawal request failed", "user_id", u.FromID(), "error", err)
			}

			if err := deps.Conversations.Clear(ctx, chatID); err != nil {
				return err
			}

			msg := fmt.Sprintf("Withdrawal of $%s requested. You will be notified once it is processed.", data["amount"])
			_, err := deps.Client.SendText(ctx, chatID, msg)
			return err

		default:
			// No open conversation: nothing for free text to do.
			return nil
		}
	}
}

// userBalance reads the user's balance from the settings snapshot.
func userBalance(botData *dispatch.BotData, userID int64) float64 {
	raw, ok := botData.Setting(balanceKeyPrefix + strconv.FormatInt(userID, 10))
	if !ok {
		return 0
	}

	balance, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return balance
}
