package ledger

import (
	"github.com/api-sage/settlement-ledger/internal/domain"
	"github.com/api-sage/settlement-ledger/internal/money"
	"github.com/shopspring/decimal"
)

// Summary holds the three derived headline totals for the open period.
type Summary struct {
	ShouldSettle   decimal.Decimal `json:"shouldSettle"`
	AlreadySettled decimal.Decimal `json:"alreadySettled"`
	Outstanding    decimal.Decimal `json:"outstanding"`
}

// Recompute derives the totals from the record lists. It is invoked after
// every mutation and is the only code path allowed to produce these figures;
// nothing increments them incrementally, which is what keeps repeated
// undo/redo from drifting.
func Recompute(account *domain.Account) Summary {
	should := decimal.Zero
	for _, record := range account.Records.Deposits {
		should = should.Add(record.Settled)
	}
	should = money.TruncateTo2(should)

	already := decimal.Zero
	for _, record := range account.Records.Withdrawals {
		already = already.Add(record.Settled)
	}
	for _, record := range account.Records.Disbursements {
		already = already.Add(record.Settled)
	}
	already = money.TruncateTo2(already)

	return Summary{
		ShouldSettle:   should,
		AlreadySettled: already,
		Outstanding:    money.TruncateTo2(should.Sub(already)),
	}
}
