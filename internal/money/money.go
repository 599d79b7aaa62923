// Package money holds the quantization rules and raw-amount parsing shared by
// every ledger computation. All arithmetic is decimal, never binary floating
// point, so truncation and half-up rounding are exact.
package money

import (
	"fmt"
	"strings"

	"github.com/api-sage/settlement-ledger/internal/domain"
	"github.com/shopspring/decimal"
)

// TruncateTo2 scales by 100, floors, and scales back. Used for deposit
// conversions and the headline totals: fractional cents on inbound funds are
// discarded in the account operator's favour.
func TruncateTo2(d decimal.Decimal) decimal.Decimal {
	return d.RoundFloor(2)
}

// RoundHalfUpTo2 rounds half away from zero at two decimal places. Used for
// withdrawal and disbursement conversions so payouts are never underpaid by a
// discarded fraction.
func RoundHalfUpTo2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// unit suffixes accepted on raw amounts: 1千 / 1k = 1000, 2万 / 2w = 20000.
var unitMultipliers = map[string]decimal.Decimal{
	"千": decimal.NewFromInt(1_000),
	"k": decimal.NewFromInt(1_000),
	"K": decimal.NewFromInt(1_000),
	"万": decimal.NewFromInt(10_000),
	"w": decimal.NewFromInt(10_000),
	"W": decimal.NewFromInt(10_000),
}

// ParseAmount parses a raw amount string, honouring an optional sign and an
// optional unit suffix. Unparseable input fails with ErrInvalidAmount.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("%w: empty amount", domain.ErrInvalidAmount)
	}

	multiplier := decimal.NewFromInt(1)
	for suffix, m := range unitMultipliers {
		if strings.HasSuffix(s, suffix) {
			multiplier = m
			s = strings.TrimSpace(strings.TrimSuffix(s, suffix))
			break
		}
	}

	value, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q is not numeric", domain.ErrInvalidAmount, raw)
	}

	return value.Mul(multiplier), nil
}
