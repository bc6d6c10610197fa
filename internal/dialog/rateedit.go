package dialog

import (
	"context"
	"fmt"

	"github.com/usmnv/gdbot/internal/database"
	"github.com/usmnv/gdbot/internal/session"
)

const (
	stepRateCurrency = "currency"
	stepRateValue    = "rate"
)

// rateEditFlow lets an admin pick a currency and overwrite its rate.
func rateEditFlow() *Flow {
	return &Flow{
		Name:  FlowRateEdit,
		Entry: stepRateCurrency,
		Steps: map[string]*Step{
			stepRateCurrency: {
				Prompt: promptRateCurrency,
				Handle: handleRateCurrency,
			},
			stepRateValue: {
				Prompt: promptRateValue,
				Handle: handleRateValue,
				Back:   stepRateCurrency,
			},
		},
	}
}

func promptRateCurrency(ctx context.Context, e *Engine, s *session.Session) (Reply, error) {
	rates, err := e.store.ListExchangeRates(ctx)
	if err != nil {
		return Reply{}, err
	}
	if len(rates) == 0 {
		return Reply{}, fmt.Errorf("rate edit: no rates configured: %w", database.ErrNotFound)
	}
	s.Rates = rates

	rows := make([][]string, 0, len(rates)+1)
	for _, r := range rates {
		rows = append(rows, []string{fmt.Sprintf("%s (текущий: %s RUB)", currencyLabel(r), r.Rate.String())})
	}
	rows = append(rows, []string{BackLabel})

	return Reply{
		Text:     "💱 Выберите валюту для изменения курса:",
		Keyboard: rows,
	}, nil
}

func handleRateCurrency(_ context.Context, _ *Engine, s *session.Session, in Input) (Result, error) {
	code, ok := matchCurrency(s.Rates, in.Text, baseCurrency)
	if !ok {
		return Result{Retry: true, Reply: Reply{
			Text: "Валюта не найдена. Выберите из списка.",
		}}, nil
	}
	s.FromCurrency = code
	return Result{Next: stepRateValue}, nil
}

func promptRateValue(_ context.Context, _ *Engine, s *session.Session) (Reply, error) {
	current := "?"
	for _, r := range s.Rates {
		if r.CurrencyCode == s.FromCurrency {
			current = r.Rate.String()
		}
	}
	return Reply{
		Text: fmt.Sprintf("Выбрана валюта: %s\nТекущий курс: %s RUB\n\nВведите новый курс:",
			s.FromCurrency, current),
		Keyboard: [][]string{{BackLabel}},
	}, nil
}

func handleRateValue(ctx context.Context, e *Engine, s *session.Session, in Input) (Result, error) {
	rate, err := ParsePositiveAmount(in.Text)
	if err != nil {
		return Result{Retry: true, Reply: Reply{
			Text: "Пожалуйста, введите корректное число (например 95.50).",
		}}, nil
	}

	if err := e.store.UpdateExchangeRate(ctx, s.FromCurrency, rate); err != nil {
		return Result{}, err
	}

	return Result{Done: true, Reply: Reply{
		Text: fmt.Sprintf("✅ Курс обновлен!\n\n%s\n📈 Стало: %s RUB", s.FromCurrency, rate.String()),
	}}, nil
}
