// Package ledger holds the in-memory ledger operations: rate resolution,
// settlement conversion, per-kind record lists, and the total recomputation
// that is the only source of truth for the headline figures.
package ledger

import (
	"github.com/api-sage/settlement-ledger/internal/domain"
	"github.com/api-sage/settlement-ledger/internal/money"
	"github.com/shopspring/decimal"
)

// Record lists are stored oldest-first so append and undo are O(1) at the
// tail; All presents them most recent first.

// Append adds a record to its kind's list for the account's open period.
func Append(account *domain.Account, record domain.Record) {
	list := account.Records.ForKind(record.Kind)
	*list = append(*list, record)
}

// MostRecent returns the latest record of the given kind, if any.
func MostRecent(account *domain.Account, kind domain.Kind) (domain.Record, bool) {
	list := *account.Records.ForKind(kind)
	if len(list) == 0 {
		return domain.Record{}, false
	}
	return list[len(list)-1], true
}

// RemoveMostRecent pops and returns the latest record of the given kind.
func RemoveMostRecent(account *domain.Account, kind domain.Kind) (domain.Record, bool) {
	list := account.Records.ForKind(kind)
	if len(*list) == 0 {
		return domain.Record{}, false
	}
	record := (*list)[len(*list)-1]
	*list = (*list)[:len(*list)-1]
	return record, true
}

// RemoveByReference removes the first record matching the correlation
// reference, scanning kinds in deposit, withdrawal, disbursement order.
// At most one record is removed. When further records share the reference the
// caller has broken the correlation contract: the removal still happens and
// the removed record is returned, alongside ErrDuplicateReference.
func RemoveByReference(account *domain.Account, reference string) (domain.Record, error) {
	if reference == "" {
		return domain.Record{}, domain.ErrRecordNotFound
	}

	var removed domain.Record
	found := false
	matches := 0

	for _, kind := range []domain.Kind{domain.KindDeposit, domain.KindWithdrawal, domain.KindDisbursement} {
		list := account.Records.ForKind(kind)
		for i := len(*list) - 1; i >= 0; i-- {
			if (*list)[i].Reference != reference {
				continue
			}
			matches++
			if !found {
				removed = (*list)[i]
				*list = append((*list)[:i:i], (*list)[i+1:]...)
				found = true
			}
		}
	}

	if !found {
		return domain.Record{}, domain.ErrRecordNotFound
	}
	if matches > 1 {
		return removed, domain.ErrDuplicateReference
	}
	return removed, nil
}

// All returns a copy of the records of one kind, most recent first.
func All(account *domain.Account, kind domain.Kind) []domain.Record {
	list := *account.Records.ForKind(kind)
	out := make([]domain.Record, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		out = append(out, list[i])
	}
	return out
}

// DepositSettlement converts a raw deposit amount: a·(1−rate)/fx, truncated.
func DepositSettlement(amount, rate, fx decimal.Decimal) decimal.Decimal {
	return money.TruncateTo2(amount.Mul(decimal.NewFromInt(1).Sub(rate)).Div(fx))
}

// WithdrawalSettlement converts a raw withdrawal amount: a·(1+rate)/fx
// rounded half-up, then the flat fee (itself rounded to 2 decimals) on top.
func WithdrawalSettlement(amount, rate, fx, flatFee decimal.Decimal) decimal.Decimal {
	settled := money.RoundHalfUpTo2(amount.Mul(decimal.NewFromInt(1).Add(rate)).Div(fx))
	if !flatFee.IsZero() {
		settled = settled.Add(money.RoundHalfUpTo2(flatFee))
	}
	return settled
}
