package dialog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/usmnv/gdbot/internal/database"
)

// ErrBadInput marks user-input validation failures. It never escapes the
// engine; handlers translate it into a retry of the same step.
var ErrBadInput = errors.New("bad input")

// ParsePositiveAmount parses a decimal number accepting either "." or ","
// as the separator. Non-numeric and non-positive values are rejected.
func ParsePositiveAmount(text string) (decimal.Decimal, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(text), ",", ".")
	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", ErrBadInput, text)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: amount must be positive", ErrBadInput)
	}
	return d, nil
}

// ParseDayRange parses a transit day range written as "min-max" or as a
// single integer applied to both ends. min > max is rejected.
func ParseDayRange(text string) (minDays, maxDays int, err error) {
	text = strings.TrimSpace(text)

	if before, after, found := strings.Cut(text, "-"); found {
		minDays, err = strconv.Atoi(strings.TrimSpace(before))
		if err != nil {
			return 0, 0, fmt.Errorf("%w: %q is not a day range", ErrBadInput, text)
		}
		maxDays, err = strconv.Atoi(strings.TrimSpace(after))
		if err != nil {
			return 0, 0, fmt.Errorf("%w: %q is not a day range", ErrBadInput, text)
		}
	} else {
		minDays, err = strconv.Atoi(text)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: %q is not a number of days", ErrBadInput, text)
		}
		maxDays = minDays
	}

	if minDays <= 0 {
		return 0, 0, fmt.Errorf("%w: days must be positive", ErrBadInput)
	}
	if minDays > maxDays {
		return 0, 0, fmt.Errorf("%w: min days exceed max days", ErrBadInput)
	}
	return minDays, maxDays, nil
}

// baseCurrency is the currency all rates are stored against.
const baseCurrency = "RUB"

// Convert computes amount in from-currency expressed in to-currency through
// base-currency normalization: source to base by multiplying its rate, base
// to target by dividing by the target's rate. The result is rounded to two
// decimal places at the final step only.
func Convert(rates []database.ExchangeRate, from, to string, amount decimal.Decimal) (decimal.Decimal, error) {
	rateOf := func(code string) (decimal.Decimal, error) {
		if code == baseCurrency {
			return decimal.NewFromInt(1), nil
		}
		for _, r := range rates {
			if r.CurrencyCode == code {
				return r.Rate, nil
			}
		}
		return decimal.Zero, fmt.Errorf("convert: no rate for %s: %w", code, database.ErrNotFound)
	}

	rateFrom, err := rateOf(from)
	if err != nil {
		return decimal.Zero, err
	}
	rateTo, err := rateOf(to)
	if err != nil {
		return decimal.Zero, err
	}

	inBase := amount.Mul(rateFrom)
	return inBase.DivRound(rateTo, 2), nil
}
