package dialog

import (
	"context"
	"fmt"
	"strings"

	"github.com/usmnv/gdbot/internal/database"
	"github.com/usmnv/gdbot/internal/session"
)

const (
	stepPriceMethod = "method"
	stepPriceField  = "field"
	stepPriceValue  = "price"
	stepPriceDays   = "days"

	fieldPriceLabel = "💰 Изменить цену за кг"
	fieldDaysLabel  = "📅 Изменить сроки доставки"
)

// priceEditFlow lets an admin pick a delivery method, choose the price or
// day-range sub-field, and commit a new value.
func priceEditFlow() *Flow {
	return &Flow{
		Name:  FlowPriceEdit,
		Entry: stepPriceMethod,
		Steps: map[string]*Step{
			stepPriceMethod: {
				Prompt: promptPriceMethod,
				Handle: handlePriceMethod,
			},
			stepPriceField: {
				Prompt: promptPriceField,
				Handle: handlePriceField,
				Back:   stepPriceMethod,
			},
			stepPriceValue: {
				Prompt: promptPriceValue,
				Handle: handlePriceValue,
				Back:   stepPriceField,
			},
			stepPriceDays: {
				Prompt: promptPriceDays,
				Handle: handlePriceDays,
				Back:   stepPriceField,
			},
		},
	}
}

func methodLabel(m database.DeliveryMethod) string {
	return strings.TrimSpace(m.Icon + " " + m.MethodName)
}

func selectedMethod(s *session.Session) (database.DeliveryMethod, bool) {
	for _, m := range s.Methods {
		if m.MethodCode == s.MethodCode {
			return m, true
		}
	}
	return database.DeliveryMethod{}, false
}

func promptPriceMethod(ctx context.Context, e *Engine, s *session.Session) (Reply, error) {
	methods, err := e.store.ListDeliveryMethods(ctx, "")
	if err != nil {
		return Reply{}, err
	}
	if len(methods) == 0 {
		return Reply{}, fmt.Errorf("price edit: no delivery methods: %w", database.ErrNotFound)
	}
	s.Methods = methods

	rows := make([][]string, 0, len(methods)+1)
	for _, m := range methods {
		rows = append(rows, []string{fmt.Sprintf("%s ($%s/кг)", methodLabel(m), m.PricePerKg.String())})
	}
	rows = append(rows, []string{BackLabel})

	return Reply{
		Text:     "🚚 Выберите способ доставки для изменения:",
		Keyboard: rows,
	}, nil
}

func handlePriceMethod(_ context.Context, _ *Engine, s *session.Session, in Input) (Result, error) {
	text := strings.TrimSpace(in.Text)
	for _, m := range s.Methods {
		if strings.Contains(text, methodLabel(m)) {
			s.MethodCode = m.MethodCode
			return Result{Next: stepPriceField}, nil
		}
	}
	return Result{Retry: true, Reply: Reply{
		Text: "Способ доставки не найден. Выберите из списка.",
	}}, nil
}

func promptPriceField(_ context.Context, _ *Engine, s *session.Session) (Reply, error) {
	m, ok := selectedMethod(s)
	if !ok {
		return Reply{}, fmt.Errorf("price edit: method %q not in scratch: %w", s.MethodCode, database.ErrNotFound)
	}
	return Reply{
		Text: fmt.Sprintf(
			"📝 Выбран способ: %s\n\n💰 Текущая цена: $%s/кг\n📅 Текущие сроки: %d-%d дней\n\nЧто хотите изменить?",
			methodLabel(m), m.PricePerKg.String(), m.MinDays, m.MaxDays),
		Keyboard: [][]string{{fieldPriceLabel}, {fieldDaysLabel}, {BackLabel}},
	}, nil
}

func handlePriceField(_ context.Context, _ *Engine, _ *session.Session, in Input) (Result, error) {
	switch strings.TrimSpace(in.Text) {
	case fieldPriceLabel:
		return Result{Next: stepPriceValue}, nil
	case fieldDaysLabel:
		return Result{Next: stepPriceDays}, nil
	default:
		return Result{Retry: true, Reply: Reply{
			Text: "Выберите, что изменить, кнопкой ниже.",
		}}, nil
	}
}

func promptPriceValue(_ context.Context, _ *Engine, s *session.Session) (Reply, error) {
	m, ok := selectedMethod(s)
	if !ok {
		return Reply{}, fmt.Errorf("price edit: method %q not in scratch: %w", s.MethodCode, database.ErrNotFound)
	}
	return Reply{
		Text: fmt.Sprintf("Введите новую цену за кг для %s:\nТекущая цена: $%s",
			m.MethodName, m.PricePerKg.String()),
		Keyboard: [][]string{{BackLabel}},
	}, nil
}

func handlePriceValue(ctx context.Context, e *Engine, s *session.Session, in Input) (Result, error) {
	price, err := ParsePositiveAmount(in.Text)
	if err != nil {
		return Result{Retry: true, Reply: Reply{
			Text: "Пожалуйста, введите корректное число (например 15.50).",
		}}, nil
	}

	if err := e.store.UpdateDeliveryPrice(ctx, s.MethodCode, price); err != nil {
		return Result{}, err
	}

	return Result{Done: true, Reply: Reply{
		Text: fmt.Sprintf("✅ Цена обновлена!\n\n💰 Стало: $%s/кг", price.String()),
	}}, nil
}

func promptPriceDays(_ context.Context, _ *Engine, s *session.Session) (Reply, error) {
	m, ok := selectedMethod(s)
	if !ok {
		return Reply{}, fmt.Errorf("price edit: method %q not in scratch: %w", s.MethodCode, database.ErrNotFound)
	}
	return Reply{
		Text: fmt.Sprintf(
			"Введите новые сроки для %s:\nТекущие сроки: %d-%d дней\nФормат: минимальные-максимальные дни (например 5-10)",
			m.MethodName, m.MinDays, m.MaxDays),
		Keyboard: [][]string{{BackLabel}},
	}, nil
}

func handlePriceDays(ctx context.Context, e *Engine, s *session.Session, in Input) (Result, error) {
	minDays, maxDays, err := ParseDayRange(in.Text)
	if err != nil {
		return Result{Retry: true, Reply: Reply{
			Text: "Пожалуйста, введите корректные сроки (например 5-10), минимум не больше максимума.",
		}}, nil
	}

	if err := e.store.UpdateDeliveryDays(ctx, s.MethodCode, minDays, maxDays); err != nil {
		return Result{}, err
	}

	return Result{Done: true, Reply: Reply{
		Text: fmt.Sprintf("✅ Сроки обновлены!\n\n📅 Стало: %d-%d дней", minDays, maxDays),
	}}, nil
}
