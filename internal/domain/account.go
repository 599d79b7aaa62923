package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Direction string

const (
	DirectionDeposit    Direction = "deposit"
	DirectionWithdrawal Direction = "withdrawal"
)

// DefaultUTCOffsetMinutes anchors new accounts at UTC+8, the offset the
// settlement day has always been booked against.
const DefaultUTCOffsetMinutes = 8 * 60

// RateConfig holds a fee rate and an exchange rate for one direction. An
// exchange rate of zero means the direction was never configured.
type RateConfig struct {
	Rate         decimal.Decimal `json:"rate"`
	ExchangeRate decimal.Decimal `json:"exchangeRate"`
}

// WithdrawalConfig adds the optional per-transaction flat fee, charged in
// settlement currency on withdrawals only.
type WithdrawalConfig struct {
	Rate         decimal.Decimal `json:"rate"`
	ExchangeRate decimal.Decimal `json:"exchangeRate"`
	FlatFee      decimal.Decimal `json:"flatFee"`
}

type Defaults struct {
	Deposit    RateConfig       `json:"deposit"`
	Withdrawal WithdrawalConfig `json:"withdrawal"`
}

// RateOverride is a partial override: unset fields fall through to the
// account default individually.
type RateOverride struct {
	Rate         decimal.NullDecimal `json:"rate"`
	ExchangeRate decimal.NullDecimal `json:"exchangeRate"`
}

type ScopeOverride struct {
	Deposit    *RateOverride `json:"deposit,omitempty"`
	Withdrawal *RateOverride `json:"withdrawal,omitempty"`
}

// PeriodBoundary is the daily cut-over time in the account's fixed offset.
// It serializes as "HH:MM".
type PeriodBoundary struct {
	Hour   int
	Minute int
}

func (b PeriodBoundary) String() string {
	return fmt.Sprintf("%02d:%02d", b.Hour, b.Minute)
}

func (b PeriodBoundary) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

func (b *PeriodBoundary) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParsePeriodBoundary(raw)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

func (b PeriodBoundary) Valid() bool {
	return b.Hour >= 0 && b.Hour <= 23 && b.Minute >= 0 && b.Minute <= 59
}

func ParsePeriodBoundary(raw string) (PeriodBoundary, error) {
	var b PeriodBoundary
	if _, err := fmt.Sscanf(raw, "%d:%d", &b.Hour, &b.Minute); err != nil {
		return PeriodBoundary{}, fmt.Errorf("parse period boundary %q: %w", raw, err)
	}
	if !b.Valid() {
		return PeriodBoundary{}, fmt.Errorf("parse period boundary %q: out of range", raw)
	}
	return b, nil
}

type Records struct {
	Deposits      []Record `json:"deposit"`
	Withdrawals   []Record `json:"withdrawal"`
	Disbursements []Record `json:"disbursement"`
}

// ForKind returns the slice holding records of the given kind, most recent
// first. The pointer lets callers mutate in place.
func (r *Records) ForKind(kind Kind) *[]Record {
	switch kind {
	case KindDeposit:
		return &r.Deposits
	case KindWithdrawal:
		return &r.Withdrawals
	case KindDisbursement:
		return &r.Disbursements
	}
	return nil
}

func (r *Records) Clear() {
	r.Deposits = nil
	r.Withdrawals = nil
	r.Disbursements = nil
}

// Account is the per-chat-group unit of ledger isolation.
type Account struct {
	ID               string                   `json:"accountID"`
	DisplayName      string                   `json:"displayName"`
	Defaults         Defaults                 `json:"defaults"`
	ScopeOverrides   map[string]ScopeOverride `json:"scopeOverrides"`
	PeriodBoundary   PeriodBoundary           `json:"periodBoundary"`
	UTCOffsetMinutes int                      `json:"utcOffsetMinutes"`
	CurrentPeriodID  string                   `json:"currentPeriodID"`
	RecordSeq        int64                    `json:"recordSeq"`
	Records          Records                  `json:"records"`
	CreatedAt        time.Time                `json:"createdAt"`
	UpdatedAt        time.Time                `json:"updatedAt"`
}

// NewAccount returns a fresh account with all rates at the zero
// "unconfigured" sentinel. Deposits and withdrawals are rejected until an
// operator configures an exchange rate.
func NewAccount(id string) Account {
	return Account{
		ID:               id,
		ScopeOverrides:   map[string]ScopeOverride{},
		UTCOffsetMinutes: DefaultUTCOffsetMinutes,
	}
}

func (a Account) Location() *time.Location {
	return time.FixedZone("", a.UTCOffsetMinutes*60)
}

// Clone deep-copies the account so callers can mutate a working copy and
// abandon it if persistence fails.
func (a Account) Clone() Account {
	out := a

	out.ScopeOverrides = make(map[string]ScopeOverride, len(a.ScopeOverrides))
	for scope, override := range a.ScopeOverrides {
		cloned := ScopeOverride{}
		if override.Deposit != nil {
			dep := *override.Deposit
			cloned.Deposit = &dep
		}
		if override.Withdrawal != nil {
			wd := *override.Withdrawal
			cloned.Withdrawal = &wd
		}
		out.ScopeOverrides[scope] = cloned
	}

	out.Records.Deposits = append([]Record(nil), a.Records.Deposits...)
	out.Records.Withdrawals = append([]Record(nil), a.Records.Withdrawals...)
	out.Records.Disbursements = append([]Record(nil), a.Records.Disbursements...)

	return out
}
