package service_interfaces

import (
	"context"

	"github.com/api-sage/settlement-ledger/internal/domain"
	"github.com/api-sage/settlement-ledger/internal/ledger"
	"github.com/shopspring/decimal"
)

// ConfigField names the configurable value in a Configure call.
type ConfigField string

const (
	FieldRate         ConfigField = "rate"
	FieldExchangeRate ConfigField = "exchangeRate"
	FieldFlatFee      ConfigField = "flatFee"
)

// RecordRequest carries one parsed transaction instruction. Amount is the
// raw input string: an absolute currency-of-origin amount for deposits and
// withdrawals (unit suffixes allowed), a signed settlement-currency amount
// for disbursements.
type RecordRequest struct {
	AccountID string
	Kind      domain.Kind
	Amount    string
	Scope     string
	Reference string
	Note      string
}

// RecordResult is the outcome of a mutating ledger operation: the record
// touched and the recomputed totals.
type RecordResult struct {
	Record  domain.Record
	Summary ledger.Summary
}

// SummaryView is the full read model for one account's open period.
type SummaryView struct {
	AccountID     string          `json:"accountID"`
	DisplayName   string          `json:"displayName"`
	PeriodID      string          `json:"periodID"`
	Totals        ledger.Summary  `json:"totals"`
	Deposits      []domain.Record `json:"deposit"`
	Withdrawals   []domain.Record `json:"withdrawal"`
	Disbursements []domain.Record `json:"disbursement"`
}

// ClearedKind reports what ClearPeriod dropped for one record kind.
type ClearedKind struct {
	Count   int             `json:"count"`
	Settled decimal.Decimal `json:"settled"`
}

type LedgerService interface {
	Configure(ctx context.Context, accountID string, direction domain.Direction, field ConfigField, scope string, value decimal.Decimal) (domain.Account, error)
	SetPeriodBoundary(ctx context.Context, accountID string, hour, minute int) (domain.Account, error)
	SetDisplayName(ctx context.Context, accountID, name string) (domain.Account, error)
	ResetDefaults(ctx context.Context, accountID string) (domain.Account, error)
	RemoveScope(ctx context.Context, accountID, scope string) (domain.Account, error)
	RecordTransaction(ctx context.Context, req RecordRequest) (RecordResult, error)
	UndoLast(ctx context.Context, accountID string, kind domain.Kind) (RecordResult, error)
	UndoByReference(ctx context.Context, accountID, reference string) (RecordResult, error)
	ClearPeriod(ctx context.Context, accountID string) (map[domain.Kind]ClearedKind, error)
	GetSummary(ctx context.Context, accountID string) (SummaryView, error)
	GetAccount(ctx context.Context, accountID string) (domain.Account, error)
}
