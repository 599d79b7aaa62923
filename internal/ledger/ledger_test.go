package ledger_test

import (
	"errors"
	"testing"

	"github.com/api-sage/settlement-ledger/internal/domain"
	"github.com/api-sage/settlement-ledger/internal/ledger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestDepositSettlement(t *testing.T) {
	// 10000 · (1−0.10) / 153 = 58.8235…, truncated, never rounded up
	got := ledger.DepositSettlement(d("10000"), d("0.10"), d("153"))
	assert.True(t, got.Equal(d("58.82")), "got %s", got)
}

func TestWithdrawalSettlement(t *testing.T) {
	// 1000 · (1+0.02) / 137 = 7.4452…, rounded half-up
	got := ledger.WithdrawalSettlement(d("1000"), d("0.02"), d("137"), decimal.Zero)
	assert.True(t, got.Equal(d("7.45")), "got %s", got)
}

func TestWithdrawalSettlementFlatFeeAfterRounding(t *testing.T) {
	// the flat fee is rounded to 2 decimals and added after the conversion
	// has already been rounded
	got := ledger.WithdrawalSettlement(d("1000"), d("0.02"), d("137"), d("0.505"))
	assert.True(t, got.Equal(d("7.96")), "got %s", got) // 7.45 + 0.51
}

func TestAppendMostRecentFirst(t *testing.T) {
	account := domain.NewAccount("g1")
	ledger.Append(&account, domain.Record{ID: "a", Seq: 1, Kind: domain.KindDeposit})
	ledger.Append(&account, domain.Record{ID: "b", Seq: 2, Kind: domain.KindDeposit})

	latest, ok := ledger.MostRecent(&account, domain.KindDeposit)
	require.True(t, ok)
	assert.Equal(t, "b", latest.ID)

	all := ledger.All(&account, domain.KindDeposit)
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].ID)
	assert.Equal(t, "a", all[1].ID)
}

func TestRemoveMostRecent(t *testing.T) {
	account := domain.NewAccount("g1")
	ledger.Append(&account, domain.Record{ID: "a", Kind: domain.KindWithdrawal})
	ledger.Append(&account, domain.Record{ID: "b", Kind: domain.KindWithdrawal})

	removed, ok := ledger.RemoveMostRecent(&account, domain.KindWithdrawal)
	require.True(t, ok)
	assert.Equal(t, "b", removed.ID)
	assert.Len(t, account.Records.Withdrawals, 1)

	_, ok = ledger.RemoveMostRecent(&account, domain.KindDisbursement)
	assert.False(t, ok)
}

func TestRemoveByReference(t *testing.T) {
	account := domain.NewAccount("g1")
	ledger.Append(&account, domain.Record{ID: "a", Kind: domain.KindDeposit, Reference: "msg-1"})
	ledger.Append(&account, domain.Record{ID: "b", Kind: domain.KindWithdrawal, Reference: "msg-2"})

	removed, err := ledger.RemoveByReference(&account, "msg-2")
	require.NoError(t, err)
	assert.Equal(t, "b", removed.ID)
	assert.Empty(t, account.Records.Withdrawals)
	assert.Len(t, account.Records.Deposits, 1)

	_, err = ledger.RemoveByReference(&account, "msg-2")
	assert.True(t, errors.Is(err, domain.ErrRecordNotFound))
}

func TestRemoveByReferenceDuplicateFlagged(t *testing.T) {
	account := domain.NewAccount("g1")
	ledger.Append(&account, domain.Record{ID: "a", Kind: domain.KindDeposit, Reference: "msg-1"})
	ledger.Append(&account, domain.Record{ID: "b", Kind: domain.KindWithdrawal, Reference: "msg-1"})

	removed, err := ledger.RemoveByReference(&account, "msg-1")
	assert.True(t, errors.Is(err, domain.ErrDuplicateReference))
	// exactly one record is removed despite the duplicate
	assert.Equal(t, "a", removed.ID)
	assert.Empty(t, account.Records.Deposits)
	assert.Len(t, account.Records.Withdrawals, 1)
}

func TestRecomputeThreeDepositScenario(t *testing.T) {
	account := domain.NewAccount("g1")
	rate, fx := d("0.10"), d("153")
	for _, raw := range []string{"10000", "5000", "1000"} {
		amount := d(raw)
		ledger.Append(&account, domain.Record{
			Kind:      domain.KindDeposit,
			RawAmount: amount,
			Rate:      rate, ExchangeRate: fx,
			Settled: ledger.DepositSettlement(amount, rate, fx),
		})
	}

	summary := ledger.Recompute(&account)
	// 58.82 + 29.41 + 5.88, derived from the records, not kept incrementally
	assert.True(t, summary.ShouldSettle.Equal(d("94.11")), "got %s", summary.ShouldSettle)
	assert.True(t, summary.AlreadySettled.IsZero())
	assert.True(t, summary.Outstanding.Equal(d("94.11")))
}

func TestRecomputeDisbursementCorrection(t *testing.T) {
	account := domain.NewAccount("g1")
	ledger.Append(&account, domain.Record{Kind: domain.KindDeposit, Settled: d("150.00")})
	ledger.Append(&account, domain.Record{Kind: domain.KindDisbursement, Settled: d("100.00")})

	before := ledger.Recompute(&account)
	require.True(t, before.AlreadySettled.Equal(d("100.00")))

	// a negative disbursement is a correction reducing prior disbursement
	ledger.Append(&account, domain.Record{Kind: domain.KindDisbursement, Settled: d("-35.04")})

	after := ledger.Recompute(&account)
	assert.True(t, after.AlreadySettled.Equal(d("64.96")), "got %s", after.AlreadySettled)
	assert.True(t, after.Outstanding.Equal(d("85.04")), "got %s", after.Outstanding)
}

func TestRecomputeIdempotent(t *testing.T) {
	account := domain.NewAccount("g1")
	ledger.Append(&account, domain.Record{Kind: domain.KindDeposit, Settled: d("58.82")})
	ledger.Append(&account, domain.Record{Kind: domain.KindWithdrawal, Settled: d("7.45")})

	first := ledger.Recompute(&account)
	second := ledger.Recompute(&account)
	assert.True(t, first.ShouldSettle.Equal(second.ShouldSettle))
	assert.True(t, first.AlreadySettled.Equal(second.AlreadySettled))
	assert.True(t, first.Outstanding.Equal(second.Outstanding))
}
