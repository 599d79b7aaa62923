package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/api-sage/settlement-ledger/internal/adapter/repository/memory"
	"github.com/api-sage/settlement-ledger/internal/domain"
	"github.com/api-sage/settlement-ledger/internal/usecase/service_interfaces"
	"github.com/api-sage/settlement-ledger/internal/usecase/services"
	"github.com/shopspring/decimal"
)

type failingRepo struct {
	*memory.AccountRepository
	failSave bool
}

func (r *failingRepo) Save(ctx context.Context, account domain.Account) error {
	if r.failSave {
		return errors.New("boom")
	}
	return r.AccountRepository.Save(ctx, account)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var baseTime = time.Date(2024, 3, 15, 12, 0, 0, 0, time.FixedZone("", 8*3600))

func newConfiguredService(t *testing.T) *services.LedgerService {
	t.Helper()
	svc := services.NewLedgerService(memory.NewAccountRepository()).WithClock(fixedClock(baseTime))
	ctx := context.Background()

	mustConfigure := func(direction domain.Direction, field service_interfaces.ConfigField, value string) {
		t.Helper()
		if _, err := svc.Configure(ctx, "g1", direction, field, "", decimal.RequireFromString(value)); err != nil {
			t.Fatalf("configure %s %s: %v", direction, field, err)
		}
	}

	mustConfigure(domain.DirectionDeposit, service_interfaces.FieldRate, "0.10")
	mustConfigure(domain.DirectionDeposit, service_interfaces.FieldExchangeRate, "153")
	mustConfigure(domain.DirectionWithdrawal, service_interfaces.FieldRate, "0.02")
	mustConfigure(domain.DirectionWithdrawal, service_interfaces.FieldExchangeRate, "137")

	return svc
}

func record(t *testing.T, svc *services.LedgerService, kind domain.Kind, amount string) service_interfaces.RecordResult {
	t.Helper()
	result, err := svc.RecordTransaction(context.Background(), service_interfaces.RecordRequest{
		AccountID: "g1",
		Kind:      kind,
		Amount:    amount,
	})
	if err != nil {
		t.Fatalf("record %s %s: %v", kind, amount, err)
	}
	return result
}

func TestRecordDepositTruncates(t *testing.T) {
	svc := newConfiguredService(t)

	result := record(t, svc, domain.KindDeposit, "10000")
	if !result.Record.Settled.Equal(decimal.RequireFromString("58.82")) {
		t.Fatalf("expected settled 58.82, got %s", result.Record.Settled)
	}
	if !result.Record.Rate.Equal(decimal.RequireFromString("0.10")) {
		t.Fatalf("expected frozen rate 0.10, got %s", result.Record.Rate)
	}
}

func TestRecordWithdrawalRoundsHalfUp(t *testing.T) {
	svc := newConfiguredService(t)

	result := record(t, svc, domain.KindWithdrawal, "1000")
	if !result.Record.Settled.Equal(decimal.RequireFromString("7.45")) {
		t.Fatalf("expected settled 7.45, got %s", result.Record.Settled)
	}
}

func TestRecordThreeDepositsSummary(t *testing.T) {
	svc := newConfiguredService(t)

	record(t, svc, domain.KindDeposit, "1万")
	record(t, svc, domain.KindDeposit, "5千")
	var result = record(t, svc, domain.KindDeposit, "1000")

	if !result.Summary.ShouldSettle.Equal(decimal.RequireFromString("94.11")) {
		t.Fatalf("expected shouldSettle 94.11, got %s", result.Summary.ShouldSettle)
	}

	summary, err := svc.GetSummary(context.Background(), "g1")
	if err != nil {
		t.Fatalf("get summary: %v", err)
	}
	if !summary.Totals.ShouldSettle.Equal(result.Summary.ShouldSettle) {
		t.Fatal("summary totals must match the recompute returned on record")
	}
	if len(summary.Deposits) != 3 {
		t.Fatalf("expected 3 deposit records, got %d", len(summary.Deposits))
	}
	if !summary.Deposits[0].RawAmount.Equal(decimal.RequireFromString("1000")) {
		t.Fatal("expected most recent deposit first")
	}
}

func TestRecordRejectedWhenRatesUnconfigured(t *testing.T) {
	svc := services.NewLedgerService(memory.NewAccountRepository()).WithClock(fixedClock(baseTime))

	_, err := svc.RecordTransaction(context.Background(), service_interfaces.RecordRequest{
		AccountID: "fresh",
		Kind:      domain.KindDeposit,
		Amount:    "10000",
	})
	if !errors.Is(err, domain.ErrRatesUnconfigured) {
		t.Fatalf("expected ErrRatesUnconfigured, got %v", err)
	}

	// the rejected operation must leave no state behind
	summary, err := svc.GetSummary(context.Background(), "fresh")
	if err != nil {
		t.Fatalf("get summary: %v", err)
	}
	if len(summary.Deposits) != 0 {
		t.Fatal("rejected deposit must not be recorded")
	}
}

func TestRecordInvalidAmounts(t *testing.T) {
	svc := newConfiguredService(t)
	ctx := context.Background()

	cases := []struct {
		kind   domain.Kind
		amount string
	}{
		{domain.KindDeposit, "abc"},
		{domain.KindDeposit, "0"},
		{domain.KindWithdrawal, "-100"},
		{domain.KindDisbursement, "0"},
	}

	for _, tc := range cases {
		_, err := svc.RecordTransaction(ctx, service_interfaces.RecordRequest{
			AccountID: "g1",
			Kind:      tc.kind,
			Amount:    tc.amount,
		})
		if !errors.Is(err, domain.ErrInvalidAmount) {
			t.Fatalf("%s %q: expected ErrInvalidAmount, got %v", tc.kind, tc.amount, err)
		}
	}
}

func TestDisbursementSignedAndCorrection(t *testing.T) {
	svc := newConfiguredService(t)

	record(t, svc, domain.KindDisbursement, "100.00")
	result := record(t, svc, domain.KindDisbursement, "-35.04")

	if !result.Summary.AlreadySettled.Equal(decimal.RequireFromString("64.96")) {
		t.Fatalf("expected alreadySettled 64.96, got %s", result.Summary.AlreadySettled)
	}
	if !result.Record.Rate.IsZero() || !result.Record.ExchangeRate.IsZero() {
		t.Fatal("disbursements must bypass rate resolution")
	}
}

func TestFlatFeeAppliesToWithdrawalsOnly(t *testing.T) {
	svc := newConfiguredService(t)
	ctx := context.Background()

	if _, err := svc.Configure(ctx, "g1", domain.DirectionWithdrawal, service_interfaces.FieldFlatFee, "", decimal.RequireFromString("0.5")); err != nil {
		t.Fatalf("configure flat fee: %v", err)
	}

	withdrawal := record(t, svc, domain.KindWithdrawal, "1000")
	if !withdrawal.Record.Settled.Equal(decimal.RequireFromString("7.95")) {
		t.Fatalf("expected 7.45 + 0.50 flat fee, got %s", withdrawal.Record.Settled)
	}

	disbursement := record(t, svc, domain.KindDisbursement, "10")
	if !disbursement.Record.Settled.Equal(decimal.RequireFromString("10")) {
		t.Fatalf("flat fee must not apply to disbursements, got %s", disbursement.Record.Settled)
	}
}

func TestConfigureRejectsNegativeValue(t *testing.T) {
	svc := newConfiguredService(t)

	_, err := svc.Configure(context.Background(), "g1", domain.DirectionDeposit, service_interfaces.FieldRate, "", decimal.RequireFromString("-0.1"))
	if !errors.Is(err, domain.ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue, got %v", err)
	}
}

func TestConfigureScopeDoesNotTouchOtherScopes(t *testing.T) {
	svc := newConfiguredService(t)
	ctx := context.Background()

	if _, err := svc.Configure(ctx, "g1", domain.DirectionDeposit, service_interfaces.FieldRate, "JP", decimal.RequireFromString("0.2")); err != nil {
		t.Fatalf("configure scope: %v", err)
	}

	scoped, err := svc.RecordTransaction(ctx, service_interfaces.RecordRequest{
		AccountID: "g1", Kind: domain.KindDeposit, Amount: "10000", Scope: "JP",
	})
	if err != nil {
		t.Fatalf("record scoped: %v", err)
	}
	if !scoped.Record.Rate.Equal(decimal.RequireFromString("0.2")) {
		t.Fatalf("expected scoped rate 0.2, got %s", scoped.Record.Rate)
	}

	unscoped := record(t, svc, domain.KindDeposit, "10000")
	if !unscoped.Record.Rate.Equal(decimal.RequireFromString("0.10")) {
		t.Fatalf("scope override leaked into the default, got %s", unscoped.Record.Rate)
	}
}

func TestUndoThenRedoEquivalence(t *testing.T) {
	svc := newConfiguredService(t)
	ctx := context.Background()

	record(t, svc, domain.KindDeposit, "10000")
	before, err := svc.GetSummary(ctx, "g1")
	if err != nil {
		t.Fatalf("get summary: %v", err)
	}

	for _, kind := range []domain.Kind{domain.KindDeposit, domain.KindWithdrawal, domain.KindDisbursement} {
		amount := "500"
		if kind == domain.KindDisbursement {
			amount = "12.34"
		}
		record(t, svc, kind, amount)

		if _, err := svc.UndoLast(ctx, "g1", kind); err != nil {
			t.Fatalf("undo %s: %v", kind, err)
		}

		after, err := svc.GetSummary(ctx, "g1")
		if err != nil {
			t.Fatalf("get summary: %v", err)
		}
		if !after.Totals.ShouldSettle.Equal(before.Totals.ShouldSettle) ||
			!after.Totals.AlreadySettled.Equal(before.Totals.AlreadySettled) ||
			!after.Totals.Outstanding.Equal(before.Totals.Outstanding) {
			t.Fatalf("%s: undo did not restore totals", kind)
		}
		if len(after.Deposits) != len(before.Deposits) ||
			len(after.Withdrawals) != len(before.Withdrawals) ||
			len(after.Disbursements) != len(before.Disbursements) {
			t.Fatalf("%s: undo did not restore record lists", kind)
		}
	}
}

func TestUndoLastNothingToUndo(t *testing.T) {
	svc := newConfiguredService(t)

	_, err := svc.UndoLast(context.Background(), "g1", domain.KindDisbursement)
	if !errors.Is(err, domain.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestUndoByReference(t *testing.T) {
	svc := newConfiguredService(t)
	ctx := context.Background()

	if _, err := svc.RecordTransaction(ctx, service_interfaces.RecordRequest{
		AccountID: "g1", Kind: domain.KindDeposit, Amount: "10000", Reference: "msg-77",
	}); err != nil {
		t.Fatalf("record: %v", err)
	}
	record(t, svc, domain.KindDeposit, "5000")

	result, err := svc.UndoByReference(ctx, "g1", "msg-77")
	if err != nil {
		t.Fatalf("undo by reference: %v", err)
	}
	if !result.Record.RawAmount.Equal(decimal.RequireFromString("10000")) {
		t.Fatalf("removed the wrong record: %s", result.Record.RawAmount)
	}

	_, err = svc.UndoByReference(ctx, "g1", "msg-77")
	if !errors.Is(err, domain.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestUndoByReferenceDuplicateFlaggedButPersisted(t *testing.T) {
	svc := newConfiguredService(t)
	ctx := context.Background()

	for _, amount := range []string{"10000", "5000"} {
		if _, err := svc.RecordTransaction(ctx, service_interfaces.RecordRequest{
			AccountID: "g1", Kind: domain.KindDeposit, Amount: amount, Reference: "dup",
		}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	result, err := svc.UndoByReference(ctx, "g1", "dup")
	if !errors.Is(err, domain.ErrDuplicateReference) {
		t.Fatalf("expected ErrDuplicateReference, got %v", err)
	}
	if result.Record.ID == "" {
		t.Fatal("expected the removed record to be returned alongside the flag")
	}

	summary, err := svc.GetSummary(ctx, "g1")
	if err != nil {
		t.Fatalf("get summary: %v", err)
	}
	if len(summary.Deposits) != 1 {
		t.Fatalf("exactly one record must be removed, %d left", len(summary.Deposits))
	}
}

func TestRolloverClearsRecordsKeepsConfig(t *testing.T) {
	repo := memory.NewAccountRepository()
	now := baseTime
	svc := services.NewLedgerService(repo).WithClock(func() time.Time { return now })
	ctx := context.Background()

	if _, err := svc.Configure(ctx, "g1", domain.DirectionDeposit, service_interfaces.FieldRate, "", decimal.RequireFromString("0.10")); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if _, err := svc.Configure(ctx, "g1", domain.DirectionDeposit, service_interfaces.FieldExchangeRate, "", decimal.RequireFromString("153")); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if _, err := svc.RecordTransaction(ctx, service_interfaces.RecordRequest{
		AccountID: "g1", Kind: domain.KindDeposit, Amount: "10000",
	}); err != nil {
		t.Fatalf("record: %v", err)
	}

	now = now.AddDate(0, 0, 1)

	summary, err := svc.GetSummary(ctx, "g1")
	if err != nil {
		t.Fatalf("get summary: %v", err)
	}
	if len(summary.Deposits) != 0 {
		t.Fatal("expired period records must be cleared on next touch")
	}
	if !summary.Totals.ShouldSettle.IsZero() {
		t.Fatalf("expected zero totals after rollover, got %s", summary.Totals.ShouldSettle)
	}

	account, err := svc.GetAccount(ctx, "g1")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if !account.Defaults.Deposit.Rate.Equal(decimal.RequireFromString("0.10")) {
		t.Fatal("rollover must not touch configuration")
	}
	if account.CurrentPeriodID != "2024-03-16" {
		t.Fatalf("expected period 2024-03-16, got %s", account.CurrentPeriodID)
	}
}

func TestFailedPersistAbortsOperation(t *testing.T) {
	repo := &failingRepo{AccountRepository: memory.NewAccountRepository()}
	svc := services.NewLedgerService(repo).WithClock(fixedClock(baseTime))
	ctx := context.Background()

	if _, err := svc.Configure(ctx, "g1", domain.DirectionDeposit, service_interfaces.FieldRate, "", decimal.RequireFromString("0.10")); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if _, err := svc.Configure(ctx, "g1", domain.DirectionDeposit, service_interfaces.FieldExchangeRate, "", decimal.RequireFromString("153")); err != nil {
		t.Fatalf("configure: %v", err)
	}

	repo.failSave = true
	_, err := svc.RecordTransaction(ctx, service_interfaces.RecordRequest{
		AccountID: "g1", Kind: domain.KindDeposit, Amount: "10000",
	})
	if err == nil {
		t.Fatal("expected persist failure to surface")
	}

	repo.failSave = false
	summary, err := svc.GetSummary(ctx, "g1")
	if err != nil {
		t.Fatalf("get summary: %v", err)
	}
	if len(summary.Deposits) != 0 {
		t.Fatal("failed persist must leave prior state authoritative")
	}
}

func TestSetPeriodBoundaryValidation(t *testing.T) {
	svc := newConfiguredService(t)
	ctx := context.Background()

	if _, err := svc.SetPeriodBoundary(ctx, "g1", 6, 30); err != nil {
		t.Fatalf("set boundary: %v", err)
	}

	_, err := svc.SetPeriodBoundary(ctx, "g1", 24, 0)
	if !errors.Is(err, domain.ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue, got %v", err)
	}
}

func TestClearPeriodKeepsConfiguration(t *testing.T) {
	svc := newConfiguredService(t)
	ctx := context.Background()

	record(t, svc, domain.KindDeposit, "10000")
	record(t, svc, domain.KindDisbursement, "20")

	cleared, err := svc.ClearPeriod(ctx, "g1")
	if err != nil {
		t.Fatalf("clear period: %v", err)
	}
	if cleared[domain.KindDeposit].Count != 1 || cleared[domain.KindDisbursement].Count != 1 {
		t.Fatalf("unexpected clear stats: %+v", cleared)
	}
	if !cleared[domain.KindDeposit].Settled.Equal(decimal.RequireFromString("58.82")) {
		t.Fatalf("expected cleared deposit total 58.82, got %s", cleared[domain.KindDeposit].Settled)
	}

	summary, err := svc.GetSummary(ctx, "g1")
	if err != nil {
		t.Fatalf("get summary: %v", err)
	}
	if len(summary.Deposits) != 0 || len(summary.Disbursements) != 0 {
		t.Fatal("clear period must drop all current records")
	}

	// rates survive, so recording still works
	record(t, svc, domain.KindDeposit, "1000")
}

func TestResetDefaultsReturnsToUnconfigured(t *testing.T) {
	svc := newConfiguredService(t)
	ctx := context.Background()

	if _, err := svc.ResetDefaults(ctx, "g1"); err != nil {
		t.Fatalf("reset defaults: %v", err)
	}

	_, err := svc.RecordTransaction(ctx, service_interfaces.RecordRequest{
		AccountID: "g1", Kind: domain.KindDeposit, Amount: "10000",
	})
	if !errors.Is(err, domain.ErrRatesUnconfigured) {
		t.Fatalf("expected ErrRatesUnconfigured after reset, got %v", err)
	}
}
