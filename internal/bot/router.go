// Package bot implements the menu router, one-shot menu actions, the
// notification fan-out, and component lifecycle for the Telegram bot.
package bot

import (
	"context"
	"errors"
	"strings"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/usmnv/gdbot/internal/database"
	"github.com/usmnv/gdbot/internal/dialog"
)

const (
	msgNoAccess     = "⛔ У вас нет доступа."
	msgRegisterHint = "Пожалуйста, сначала зарегистрируйтесь через /start"
	msgMainMenu     = "Главное меню:"
	msgUseButtons   = "Используйте кнопки меню для навигации."
	msgStorageDown  = "⚠️ Сервис временно недоступен. Попробуйте позже."
)

// NewRouter returns the default message handler. It classifies each inbound
// message in priority order: an active dialog claims it unconditionally,
// then exact label matches to one-shot actions (role gated), then prefix
// and substring heuristics for dynamically generated labels, then the main
// menu fallback.
func NewRouter(deps Deps) tgbot.HandlerFunc {
	return router{deps}.Handle
}

type router struct {
	deps Deps
}

func (r router) Handle(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	msg := update.Message
	from := msg.From
	chatID := msg.Chat.ID

	in := dialog.Input{
		UserID:    from.ID,
		Username:  from.Username,
		FirstName: from.FirstName,
		LastName:  from.LastName,
		Text:      strings.TrimSpace(msg.Text),
	}
	if msg.Contact != nil {
		in.Contact = &dialog.Contact{
			UserID:      msg.Contact.UserID,
			PhoneNumber: msg.Contact.PhoneNumber,
		}
	}

	// An active dialog claims the message unconditionally.
	if reply, ok := r.deps.Engine.Advance(ctx, in); ok {
		r.send(ctx, b, chatID, from.ID, reply)
		return
	}

	log := r.deps.Logger.With("handler", "router", "user_id", from.ID)

	switch in.Text {
	case "/start":
		r.handleStart(ctx, b, chatID, in)
	case "/admin":
		r.startFlow(ctx, b, chatID, in.UserID, dialog.FlowAdminCode)
	case "/cancel", dialog.BackLabel:
		r.send(ctx, b, chatID, from.ID, dialog.Reply{Text: msgMainMenu})

	case labelCabinet:
		r.handleCabinet(ctx, b, chatID, in.UserID)
	case labelRates:
		r.handleRates(ctx, b, chatID, in.UserID)
	case labelExchange:
		if r.requireRegistered(ctx, b, chatID, in.UserID) {
			r.startFlow(ctx, b, chatID, in.UserID, dialog.FlowExchange)
		}
	case labelDelivery:
		r.handleDeliveryMenu(ctx, b, chatID, in.UserID)
	case labelWarehouses:
		r.handleWarehousesMenu(ctx, b, chatID)
	case labelSupport:
		r.send(ctx, b, chatID, from.ID, dialog.Reply{Text: r.deps.Config.SupportText})
	case labelAdminPanel:
		if r.requireAdmin(ctx, b, chatID, in.UserID) {
			r.sendWithMarkup(ctx, b, chatID, "⚙️ Админ-панель:\n\nВыберите действие:", adminPanelKeyboard())
		}
	case labelStatistics:
		if r.requireAdmin(ctx, b, chatID, in.UserID) {
			r.handleStatistics(ctx, b, chatID, in.UserID)
		}
	case labelRateEdit:
		if r.requireAdmin(ctx, b, chatID, in.UserID) {
			r.startFlow(ctx, b, chatID, in.UserID, dialog.FlowRateEdit)
		}
	case labelPriceEdit:
		if r.requireAdmin(ctx, b, chatID, in.UserID) {
			r.startFlow(ctx, b, chatID, in.UserID, dialog.FlowPriceEdit)
		}
	case labelManageOrders:
		if r.requireAdmin(ctx, b, chatID, in.UserID) {
			r.startFlow(ctx, b, chatID, in.UserID, dialog.FlowStatusEdit)
		}
	case labelAddShipment:
		if r.requireAdmin(ctx, b, chatID, in.UserID) {
			r.startFlow(ctx, b, chatID, in.UserID, dialog.FlowAddShipment)
		}
	case labelBroadcast:
		if r.requireAdmin(ctx, b, chatID, in.UserID) {
			r.startFlow(ctx, b, chatID, in.UserID, dialog.FlowBroadcast)
		}
	case labelUsers:
		if r.requireAdmin(ctx, b, chatID, in.UserID) {
			r.handleUsers(ctx, b, chatID, in.UserID)
		}

	default:
		r.handleDynamicLabel(ctx, b, chatID, in)
	}

	log.DebugContext(ctx, "Message routed", "text_len", len(in.Text))
}

// handleDynamicLabel resolves labels generated at runtime: warehouse names,
// delivery methods with icon prefixes, and "trackcode - status" composites.
func (r router) handleDynamicLabel(ctx context.Context, b *tgbot.Bot, chatID int64, in dialog.Input) {
	text := strings.TrimSpace(in.Text)

	if strings.HasPrefix(text, "🏭 Склад") {
		r.handleWarehouseDetail(ctx, b, chatID, in.UserID, text)
		return
	}

	if r.handleDeliveryDetail(ctx, b, chatID, in.UserID, text) {
		return
	}

	// Stale shipment-list button tapped outside a dialog: restart the
	// status flow for admins.
	if strings.Contains(text, " - ") {
		if isAdmin, err := r.deps.Store.IsAdmin(ctx, in.UserID); err == nil && isAdmin {
			r.startFlow(ctx, b, chatID, in.UserID, dialog.FlowStatusEdit)
			return
		}
	}

	r.send(ctx, b, chatID, in.UserID, dialog.Reply{Text: msgUseButtons})
}

// requireAdmin gates admin-only actions. The role is looked up fresh on
// every message so a promotion takes effect immediately.
func (r router) requireAdmin(ctx context.Context, b *tgbot.Bot, chatID, userID int64) bool {
	isAdmin, err := r.deps.Store.IsAdmin(ctx, userID)
	if err != nil {
		r.deps.Logger.ErrorContext(ctx, "Role lookup failed", "user_id", userID, "error", err)
		r.send(ctx, b, chatID, userID, dialog.Reply{Text: msgStorageDown})
		return false
	}
	if !isAdmin {
		r.send(ctx, b, chatID, userID, dialog.Reply{Text: msgNoAccess})
		return false
	}
	return true
}

func (r router) requireRegistered(ctx context.Context, b *tgbot.Bot, chatID, userID int64) bool {
	_, err := r.deps.Store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			r.send(ctx, b, chatID, userID, dialog.Reply{Text: msgRegisterHint})
			return false
		}
		r.deps.Logger.ErrorContext(ctx, "User lookup failed", "user_id", userID, "error", err)
		r.send(ctx, b, chatID, userID, dialog.Reply{Text: msgStorageDown})
		return false
	}
	return true
}

func (r router) startFlow(ctx context.Context, b *tgbot.Bot, chatID, userID int64, flow string) {
	reply, err := r.deps.Engine.Start(ctx, userID, flow)
	if err != nil {
		r.deps.Logger.ErrorContext(ctx, "Failed to start flow", "flow", flow, "user_id", userID, "error", err)
		r.send(ctx, b, chatID, userID, dialog.Reply{Text: msgStorageDown})
		return
	}
	r.send(ctx, b, chatID, userID, reply)
}

// send delivers a dialog reply. When the reply carries no button layout the
// main menu keyboard is attached, built for the user's current role.
func (r router) send(ctx context.Context, b *tgbot.Bot, chatID, userID int64, reply dialog.Reply) {
	markup := replyMarkup(reply)
	if markup == nil {
		isAdmin, err := r.deps.Store.IsAdmin(ctx, userID)
		if err != nil {
			r.deps.Logger.WarnContext(ctx, "Role lookup for keyboard failed", "user_id", userID, "error", err)
		}
		markup = mainMenuKeyboard(isAdmin)
	}
	r.sendWithMarkup(ctx, b, chatID, reply.Text, markup)
}

func (r router) sendWithMarkup(ctx context.Context, b *tgbot.Bot, chatID int64, text string, markup models.ReplyMarkup) {
	_, err := b.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID:      chatID,
		Text:        text,
		ReplyMarkup: markup,
	})
	if err != nil {
		r.deps.Logger.ErrorContext(ctx, "Failed to send message", "chat_id", chatID, "error", err)
	}
}
