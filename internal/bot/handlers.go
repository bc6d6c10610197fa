package bot

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/shopspring/decimal"

	"github.com/usmnv/gdbot/internal/database"
	"github.com/usmnv/gdbot/internal/dialog"
)

func (r router) handleStart(ctx context.Context, b *tgbot.Bot, chatID int64, in dialog.Input) {
	user, err := r.deps.Store.GetUser(ctx, in.UserID)
	switch {
	case err == nil:
		r.send(ctx, b, chatID, in.UserID, dialog.Reply{
			Text: fmt.Sprintf("🏮 Добро пожаловать в Golden Dragon!\n\nВаш код клиента: %s\n\nИспользуйте меню.", user.CustomerCode),
		})
	case errors.Is(err, database.ErrNotFound):
		r.startFlow(ctx, b, chatID, in.UserID, dialog.FlowRegistration)
	default:
		r.deps.Logger.ErrorContext(ctx, "User lookup failed", "user_id", in.UserID, "error", err)
		r.send(ctx, b, chatID, in.UserID, dialog.Reply{Text: msgStorageDown})
	}
}

func (r router) handleCabinet(ctx context.Context, b *tgbot.Bot, chatID, userID int64) {
	user, err := r.deps.Store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			r.send(ctx, b, chatID, userID, dialog.Reply{Text: msgRegisterHint})
			return
		}
		r.deps.Logger.ErrorContext(ctx, "User lookup failed", "user_id", userID, "error", err)
		r.send(ctx, b, chatID, userID, dialog.Reply{Text: msgStorageDown})
		return
	}

	shipments, err := r.deps.Store.ListShipmentsForUser(ctx, userID)
	if err != nil {
		r.deps.Logger.ErrorContext(ctx, "Failed to list shipments", "user_id", userID, "error", err)
		r.send(ctx, b, chatID, userID, dialog.Reply{Text: msgStorageDown})
		return
	}

	status := "Клиент"
	if user.IsAdmin {
		status = "Администратор"
	}

	var sb strings.Builder
	sb.WriteString("👤 Личный кабинет\n\n")
	fmt.Fprintf(&sb, "📋 Код клиента: %s\n", user.CustomerCode)
	fmt.Fprintf(&sb, "💳 Баланс: %s руб\n", user.Balance.StringFixed(2))
	fmt.Fprintf(&sb, "📦 Заказов: %d\n", len(shipments))
	fmt.Fprintf(&sb, "📅 Регистрация: %s\n", user.RegisteredAt.Format("02.01.2006"))
	fmt.Fprintf(&sb, "👑 Статус: %s\n", status)
	for _, s := range shipments {
		fmt.Fprintf(&sb, "\n%s %s - %s", s.Status.Icon(), s.TrackCode, s.Status.Label())
	}
	sb.WriteString("\n\nНажмите кнопку ниже для доступа к полному функционалу:")

	cabinetURL := fmt.Sprintf("%s?code=%s", r.deps.Config.WebAppURL, url.QueryEscape(user.CustomerCode))
	markup := &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{{
			{Text: "📱 Открыть мини-приложение", WebApp: &models.WebAppInfo{URL: cabinetURL}},
		}},
	}
	r.sendWithMarkup(ctx, b, chatID, sb.String(), markup)
}

func (r router) handleRates(ctx context.Context, b *tgbot.Bot, chatID, userID int64) {
	rates, err := r.deps.Store.ListExchangeRates(ctx)
	if err != nil {
		r.deps.Logger.ErrorContext(ctx, "Failed to list rates", "error", err)
		r.send(ctx, b, chatID, userID, dialog.Reply{Text: msgStorageDown})
		return
	}

	var sb strings.Builder
	sb.WriteString("💱 Текущие курсы валют:\n\n")
	for _, rate := range rates {
		fmt.Fprintf(&sb, "%s %s: %s RUB\n", rate.Flag, rate.Name, rate.Rate.String())
	}
	r.send(ctx, b, chatID, userID, dialog.Reply{Text: sb.String()})
}

func (r router) handleDeliveryMenu(ctx context.Context, b *tgbot.Bot, chatID, userID int64) {
	methods, err := r.deps.Store.ListDeliveryMethods(ctx, "")
	if err != nil {
		r.deps.Logger.ErrorContext(ctx, "Failed to list delivery methods", "error", err)
		r.send(ctx, b, chatID, userID, dialog.Reply{Text: msgStorageDown})
		return
	}

	keyboard := make([][]string, 0, len(methods)+1)
	for _, m := range methods {
		keyboard = append(keyboard, []string{m.Icon + " " + m.MethodName})
	}
	keyboard = append(keyboard, []string{dialog.BackLabel})

	r.send(ctx, b, chatID, userID, dialog.Reply{
		Text:     "🚚 Выберите способ доставки:",
		Keyboard: keyboard,
	})
}

// handleDeliveryDetail matches the message against known delivery method
// names and, on a hit, replies with the full method description. Returns
// false when no method matches.
func (r router) handleDeliveryDetail(ctx context.Context, b *tgbot.Bot, chatID, userID int64, text string) bool {
	methods, err := r.deps.Store.ListDeliveryMethods(ctx, "")
	if err != nil {
		r.deps.Logger.WarnContext(ctx, "Failed to list delivery methods", "error", err)
		return false
	}

	for _, m := range methods {
		if !strings.Contains(text, m.MethodName) {
			continue
		}
		example := m.PricePerKg.Mul(decimal.NewFromInt(5))
		msg := fmt.Sprintf(
			"%s %s\n\n💰 Цена: $%s за кг\n📅 Срок: %s\n📝 %s\n\nПример: 5 кг = $%s",
			m.Icon, m.MethodName,
			m.PricePerKg.String(),
			formatDays(m.MinDays, m.MaxDays),
			m.Description,
			example.String(),
		)
		r.send(ctx, b, chatID, userID, dialog.Reply{Text: msg})
		return true
	}
	return false
}

func formatDays(minDays, maxDays int) string {
	if minDays == maxDays {
		return fmt.Sprintf("%d дней", minDays)
	}
	return fmt.Sprintf("%d-%d дней", minDays, maxDays)
}

// Warehouse details are static: they change a few times a year and are
// edited in code, not in storage.
var warehouses = map[string]string{
	"🏭 Склад Иу": "🏭 Склад Иу\n\n" +
		"📍 Адрес: 浙江省义乌市国际商贸城, 义乌, 322000, Китай\n" +
		"📦 Условия: ✅ Минимальный вес: 5 кг\n✅ Приёмка: 0.5$/кг\n✅ Хранение: 3 дня бесплатно\n" +
		"📞 Менеджер: +86 123 4567 8901",
	"🏭 Склад Гуанчжоу": "🏭 Склад Гуанчжоу\n\n" +
		"📍 Адрес: 广州市白云区机场路, 广州, 510000, Китай\n" +
		"📦 Условия: ✅ Минимальный вес: 10 кг\n✅ Приёмка: 0.3$/кг\n✅ Хранение: 5 дней бесплатно\n" +
		"📞 Менеджер: +86 123 4567 8902",
	"🏭 Склад Урумчи": "🏭 Склад Урумчи\n\n" +
		"📍 Адрес: 新疆乌鲁木齐市经济开发区, 乌鲁木齐, 830000, Китай\n" +
		"📦 Условия: ✅ Минимальный вес: 3 кг\n✅ Приёмка: 0.4$/кг\n✅ Хранение: 7 дней бесплатно\n" +
		"📞 Менеджер: +86 123 4567 8903",
}

func (r router) handleWarehousesMenu(ctx context.Context, b *tgbot.Bot, chatID int64) {
	keyboard := [][]string{
		{"🏭 Склад Иу"},
		{"🏭 Склад Гуанчжоу"},
		{"🏭 Склад Урумчи"},
		{dialog.BackLabel},
	}
	reply := dialog.Reply{
		Text:     "Выберите склад для получения информации:",
		Keyboard: keyboard,
	}
	r.send(ctx, b, chatID, 0, reply)
}

func (r router) handleWarehouseDetail(ctx context.Context, b *tgbot.Bot, chatID, userID int64, label string) {
	info, ok := warehouses[label]
	if !ok {
		r.handleWarehousesMenu(ctx, b, chatID)
		return
	}
	r.send(ctx, b, chatID, userID, dialog.Reply{Text: info})
}

func (r router) handleStatistics(ctx context.Context, b *tgbot.Bot, chatID, userID int64) {
	stats, err := r.deps.Store.ComputeStatistics(ctx)
	if err != nil {
		r.deps.Logger.ErrorContext(ctx, "Failed to compute statistics", "error", err)
		r.send(ctx, b, chatID, userID, dialog.Reply{Text: msgStorageDown})
		return
	}

	msg := fmt.Sprintf(
		"📊 Статистика:\n\n👥 Пользователей: %d\n👑 Админов: %d\n📦 Трек-кодов: %d\n✅ Доставлено: %d",
		stats.UserCount, stats.AdminCount, stats.ShipmentCount, stats.DeliveredCount,
	)
	r.send(ctx, b, chatID, userID, dialog.Reply{Text: msg})
}

func (r router) handleUsers(ctx context.Context, b *tgbot.Bot, chatID, userID int64) {
	stats, err := r.deps.Store.ComputeStatistics(ctx)
	if err != nil {
		r.deps.Logger.ErrorContext(ctx, "Failed to compute statistics", "error", err)
		r.send(ctx, b, chatID, userID, dialog.Reply{Text: msgStorageDown})
		return
	}

	regular := stats.UserCount - stats.AdminCount
	msg := fmt.Sprintf(
		"👥 Пользователи:\n\nВсего: %d\nАдминов: %d\nОбычных: %d",
		stats.UserCount, stats.AdminCount, regular,
	)
	r.send(ctx, b, chatID, userID, dialog.Reply{Text: msg})
}
