package ledger

import (
	"github.com/api-sage/settlement-ledger/internal/domain"
	"github.com/shopspring/decimal"
)

// ResolveRates returns the effective fee rate and exchange rate for one
// transaction. A scope override wins field by field; anything it leaves unset
// falls through to the account default for the direction. A zero exchange
// rate is the "never configured" sentinel and fails the resolution; a zero
// fee rate is a valid no-fee configuration.
func ResolveRates(account domain.Account, direction domain.Direction, scope string) (decimal.Decimal, decimal.Decimal, error) {
	var rate, fx decimal.Decimal

	switch direction {
	case domain.DirectionDeposit:
		rate = account.Defaults.Deposit.Rate
		fx = account.Defaults.Deposit.ExchangeRate
	case domain.DirectionWithdrawal:
		rate = account.Defaults.Withdrawal.Rate
		fx = account.Defaults.Withdrawal.ExchangeRate
	default:
		return decimal.Decimal{}, decimal.Decimal{}, domain.ErrRatesUnconfigured
	}

	if scope != "" {
		if override, ok := account.ScopeOverrides[scope]; ok {
			var fields *domain.RateOverride
			switch direction {
			case domain.DirectionDeposit:
				fields = override.Deposit
			case domain.DirectionWithdrawal:
				fields = override.Withdrawal
			}
			if fields != nil {
				if fields.Rate.Valid {
					rate = fields.Rate.Decimal
				}
				if fields.ExchangeRate.Valid {
					fx = fields.ExchangeRate.Decimal
				}
			}
		}
	}

	if fx.IsZero() {
		return decimal.Decimal{}, decimal.Decimal{}, domain.ErrRatesUnconfigured
	}

	return rate, fx, nil
}
