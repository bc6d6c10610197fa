package bot

import (
	"github.com/go-telegram/bot/models"

	"github.com/usmnv/gdbot/internal/dialog"
)

// Main menu and admin panel button labels. The router classifies inbound
// free text against these.
const (
	labelCabinet     = "👤 Личный кабинет"
	labelRates       = "💰 Курсы валют"
	labelExchange    = "💱 Обмен валют"
	labelDelivery    = "🚚 Доставка"
	labelWarehouses  = "🏭 Склады в Китае"
	labelSupport     = "🆘 Поддержка"
	labelAddShipment = "➕ Добавить трек-код"
	labelAdminPanel  = "⚙️ Админ-панель"

	labelStatistics   = "📊 Статистика"
	labelRateEdit     = "💱 Изменить курс валют"
	labelPriceEdit    = "🚚 Изменить цены доставки"
	labelManageOrders = "📦 Управление заказами"
	labelBroadcast    = "📢 Сделать рассылку"
	labelUsers        = "👥 Пользователи"
)

// mainMenuKeyboard builds the top-level reply keyboard. Admins get an extra
// panel row.
func mainMenuKeyboard(isAdmin bool) *models.ReplyKeyboardMarkup {
	rows := [][]models.KeyboardButton{
		{{Text: labelCabinet}},
		{{Text: labelRates}, {Text: labelExchange}},
		{{Text: labelDelivery}},
		{{Text: labelWarehouses}},
		{{Text: labelSupport}},
	}
	if isAdmin {
		rows = append(rows, []models.KeyboardButton{{Text: labelAdminPanel}})
	}
	return &models.ReplyKeyboardMarkup{Keyboard: rows, ResizeKeyboard: true}
}

func adminPanelKeyboard() *models.ReplyKeyboardMarkup {
	return &models.ReplyKeyboardMarkup{
		Keyboard: [][]models.KeyboardButton{
			{{Text: labelStatistics}},
			{{Text: labelRateEdit}},
			{{Text: labelPriceEdit}},
			{{Text: labelManageOrders}},
			{{Text: labelAddShipment}},
			{{Text: labelBroadcast}},
			{{Text: labelUsers}},
			{{Text: dialog.BackLabel}},
		},
		ResizeKeyboard: true,
	}
}

// replyMarkup renders a dialog reply's button layout into transport
// keyboard types. A nil return means the caller decides (main menu).
func replyMarkup(r dialog.Reply) models.ReplyMarkup {
	if r.RequestContact {
		return &models.ReplyKeyboardMarkup{
			Keyboard: [][]models.KeyboardButton{
				{{Text: "📱 Отправить контакт", RequestContact: true}},
			},
			ResizeKeyboard:  true,
			OneTimeKeyboard: true,
		}
	}
	if len(r.Keyboard) == 0 {
		return nil
	}

	rows := make([][]models.KeyboardButton, 0, len(r.Keyboard))
	for _, row := range r.Keyboard {
		buttons := make([]models.KeyboardButton, 0, len(row))
		for _, label := range row {
			buttons = append(buttons, models.KeyboardButton{Text: label})
		}
		rows = append(rows, buttons)
	}
	return &models.ReplyKeyboardMarkup{Keyboard: rows, ResizeKeyboard: true}
}
