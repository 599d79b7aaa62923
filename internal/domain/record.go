package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindDeposit      Kind = "deposit"
	KindWithdrawal   Kind = "withdrawal"
	KindDisbursement Kind = "disbursement"
)

func (k Kind) Valid() bool {
	switch k {
	case KindDeposit, KindWithdrawal, KindDisbursement:
		return true
	}
	return false
}

// Direction returns the rate-resolution direction for the kind.
// Disbursements bypass rate resolution and have no direction.
func (k Kind) Direction() (Direction, bool) {
	switch k {
	case KindDeposit:
		return DirectionDeposit, true
	case KindWithdrawal:
		return DirectionWithdrawal, true
	}
	return "", false
}

// Record is one ledger entry. Immutable once created: the rate and exchange
// rate actually applied are frozen in, so later configuration changes never
// alter historical records.
type Record struct {
	ID           string          `json:"id"`
	Seq          int64           `json:"seq"`
	Kind         Kind            `json:"kind"`
	RawAmount    decimal.Decimal `json:"rawAmount"`
	Rate         decimal.Decimal `json:"rate"`
	ExchangeRate decimal.Decimal `json:"exchangeRate"`
	Settled      decimal.Decimal `json:"settled"`
	Timestamp    time.Time       `json:"timestamp"`
	Scope        string          `json:"scope,omitempty"`
	Note         string          `json:"note,omitempty"`
	Reference    string          `json:"reference,omitempty"`
}
