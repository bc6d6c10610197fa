package dialog

import (
	"context"
	"fmt"
	"strings"

	"github.com/usmnv/gdbot/internal/database"
	"github.com/usmnv/gdbot/internal/session"
)

const (
	stepExchangeFrom   = "from"
	stepExchangeTo     = "to"
	stepExchangeAmount = "amount"

	rubLabel = "🇷🇺 RUB (Российский рубль)"
)

// exchangeFlow quotes a currency conversion: pick the source currency, pick
// the target excluding the source, enter a positive amount, report the
// converted value through base-currency normalization.
func exchangeFlow() *Flow {
	return &Flow{
		Name:  FlowExchange,
		Entry: stepExchangeFrom,
		Steps: map[string]*Step{
			stepExchangeFrom: {
				Prompt: promptExchangeFrom,
				Handle: handleExchangeFrom,
			},
			stepExchangeTo: {
				Prompt: promptExchangeTo,
				Handle: handleExchangeTo,
				Back:   stepExchangeFrom,
			},
			stepExchangeAmount: {
				Prompt: promptExchangeAmount,
				Handle: handleExchangeAmount,
				Back:   stepExchangeTo,
			},
		},
	}
}

func currencyLabel(r database.ExchangeRate) string {
	return strings.TrimSpace(r.Flag + " " + r.Name)
}

// matchCurrency resolves a button label back to a currency code. Labels may
// carry icon glyphs and stray whitespace, so matching is by containment the
// same way the labels were built.
func matchCurrency(rates []database.ExchangeRate, text string, exclude string) (string, bool) {
	text = strings.TrimSpace(text)
	for _, r := range rates {
		if r.CurrencyCode == exclude {
			continue
		}
		if strings.Contains(text, currencyLabel(r)) || strings.Contains(text, r.CurrencyCode) {
			return r.CurrencyCode, true
		}
	}
	if exclude != baseCurrency && strings.Contains(text, baseCurrency) {
		return baseCurrency, true
	}
	return "", false
}

// currencyKeyboard lays out currency labels two per row plus the back row.
func currencyKeyboard(rates []database.ExchangeRate, exclude string) [][]string {
	var labels []string
	for _, r := range rates {
		if r.CurrencyCode != exclude {
			labels = append(labels, currencyLabel(r))
		}
	}
	if exclude != baseCurrency {
		labels = append(labels, rubLabel)
	}

	var rows [][]string
	for i := 0; i < len(labels); i += 2 {
		end := i + 2
		if end > len(labels) {
			end = len(labels)
		}
		rows = append(rows, labels[i:end])
	}
	return append(rows, []string{BackLabel})
}

func promptExchangeFrom(ctx context.Context, e *Engine, s *session.Session) (Reply, error) {
	rates, err := e.store.ListExchangeRates(ctx)
	if err != nil {
		return Reply{}, err
	}
	if len(rates) == 0 {
		return Reply{}, fmt.Errorf("exchange: no rates configured: %w", database.ErrNotFound)
	}
	s.Rates = rates

	return Reply{
		Text:     "💱 Выберите валюту, которую хотите обменять (отдаёте):",
		Keyboard: currencyKeyboard(rates, ""),
	}, nil
}

func handleExchangeFrom(_ context.Context, _ *Engine, s *session.Session, in Input) (Result, error) {
	code, ok := matchCurrency(s.Rates, in.Text, "")
	if !ok {
		return Result{Retry: true, Reply: Reply{
			Text:     "Валюта не найдена. Выберите из списка.",
			Keyboard: currencyKeyboard(s.Rates, ""),
		}}, nil
	}
	s.FromCurrency = code
	return Result{Next: stepExchangeTo, Reply: Reply{
		Text: "Выбрано: " + code,
	}}, nil
}

func promptExchangeTo(_ context.Context, _ *Engine, s *session.Session) (Reply, error) {
	return Reply{
		Text:     "Теперь выберите валюту, которую хотите получить:",
		Keyboard: currencyKeyboard(s.Rates, s.FromCurrency),
	}, nil
}

func handleExchangeTo(_ context.Context, _ *Engine, s *session.Session, in Input) (Result, error) {
	code, ok := matchCurrency(s.Rates, in.Text, s.FromCurrency)
	if !ok || code == s.FromCurrency {
		return Result{Retry: true, Reply: Reply{
			Text:     "Валюта не найдена или совпадает с исходной. Попробуйте снова.",
			Keyboard: currencyKeyboard(s.Rates, s.FromCurrency),
		}}, nil
	}
	s.ToCurrency = code
	return Result{Next: stepExchangeAmount}, nil
}

func promptExchangeAmount(_ context.Context, _ *Engine, s *session.Session) (Reply, error) {
	return Reply{
		Text: fmt.Sprintf("💱 Конвертация: %s → %s\n\nВведите сумму в %s:",
			s.FromCurrency, s.ToCurrency, s.FromCurrency),
		Keyboard: [][]string{{BackLabel}},
	}, nil
}

func handleExchangeAmount(_ context.Context, _ *Engine, s *session.Session, in Input) (Result, error) {
	amount, err := ParsePositiveAmount(in.Text)
	if err != nil {
		return Result{Retry: true, Reply: Reply{
			Text: "Пожалуйста, введите положительное число (например 100.50).",
		}}, nil
	}

	result, err := Convert(s.Rates, s.FromCurrency, s.ToCurrency, amount)
	if err != nil {
		return Result{}, err
	}

	rate := result.DivRound(amount, 4)
	return Result{Done: true, Reply: Reply{
		Text: fmt.Sprintf(
			"✅ Результат конвертации:\n\n%s: %s\n%s: %s\n\nКурс: 1 %s = %s %s",
			s.FromCurrency, amount.StringFixed(2),
			s.ToCurrency, result.StringFixed(2),
			s.FromCurrency, rate.String(), s.ToCurrency),
	}}, nil
}
