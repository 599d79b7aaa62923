package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/api-sage/settlement-ledger/internal/adapter/repository/repo_interfaces"
	"github.com/api-sage/settlement-ledger/internal/domain"
	"github.com/api-sage/settlement-ledger/internal/ledger"
	"github.com/api-sage/settlement-ledger/internal/logger"
	"github.com/api-sage/settlement-ledger/internal/money"
	"github.com/api-sage/settlement-ledger/internal/period"
	"github.com/api-sage/settlement-ledger/internal/usecase/service_interfaces"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Verify that LedgerService implements the service_interfaces.LedgerService interface
var _ service_interfaces.LedgerService = (*LedgerService)(nil)

// LedgerService is the synchronous core behind the command-handling layer.
// Every operation runs under a per-account mutex: rollover check, mutation,
// recompute, and persist form one read-modify-write unit that must not
// interleave with a concurrent call against the same account. Different
// accounts never share a lock.
type LedgerService struct {
	accountRepo repo_interfaces.AccountRepository
	now         func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLedgerService(accountRepo repo_interfaces.AccountRepository) *LedgerService {
	return &LedgerService{
		accountRepo: accountRepo,
		now:         time.Now,
		locks:       make(map[string]*sync.Mutex),
	}
}

// WithClock overrides the time source, pinning the open period in tests.
func (s *LedgerService) WithClock(now func() time.Time) *LedgerService {
	s.now = now
	return s
}

func (s *LedgerService) accountLock(accountID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[accountID] = lock
	}
	return lock
}

// update runs fn against the lazily rolled-over account and persists the
// result as one unit. A failed persist aborts the whole operation, leaving
// the previously persisted state authoritative.
func (s *LedgerService) update(ctx context.Context, accountID string, fn func(*domain.Account) error) (domain.Account, error) {
	lock := s.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	account, err := s.accountRepo.Load(ctx, accountID)
	if err != nil {
		return domain.Account{}, err
	}

	period.Rollover(&account, s.now())

	if err := fn(&account); err != nil {
		return domain.Account{}, err
	}

	if err := s.accountRepo.Save(ctx, account); err != nil {
		return domain.Account{}, fmt.Errorf("persist account %q: %w", accountID, err)
	}

	return account, nil
}

// view runs fn against the rolled-over account without mutating it; state is
// persisted only when the lazy rollover itself advanced the period.
func (s *LedgerService) view(ctx context.Context, accountID string, fn func(*domain.Account)) error {
	lock := s.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	account, err := s.accountRepo.Load(ctx, accountID)
	if err != nil {
		return err
	}

	if period.Rollover(&account, s.now()) {
		if err := s.accountRepo.Save(ctx, account); err != nil {
			return fmt.Errorf("persist account %q: %w", accountID, err)
		}
	}

	fn(&account)
	return nil
}

func (s *LedgerService) Configure(ctx context.Context, accountID string, direction domain.Direction, field service_interfaces.ConfigField, scope string, value decimal.Decimal) (domain.Account, error) {
	logger.Info("ledger service configure request", logger.Fields{
		"accountId": accountID,
		"direction": direction,
		"field":     field,
		"scope":     scope,
		"value":     value,
	})

	if direction != domain.DirectionDeposit && direction != domain.DirectionWithdrawal {
		return domain.Account{}, fmt.Errorf("%w: unknown direction %q", domain.ErrInvalidValue, direction)
	}
	if value.IsNegative() {
		return domain.Account{}, fmt.Errorf("%w: %s must not be negative", domain.ErrInvalidValue, field)
	}

	account, err := s.update(ctx, accountID, func(account *domain.Account) error {
		switch field {
		case service_interfaces.FieldFlatFee:
			// The flat fee is a default-only, withdrawal-only setting.
			if direction != domain.DirectionWithdrawal || scope != "" {
				return fmt.Errorf("%w: flat fee applies to the withdrawal default only", domain.ErrInvalidValue)
			}
			account.Defaults.Withdrawal.FlatFee = value
			return nil
		case service_interfaces.FieldRate, service_interfaces.FieldExchangeRate:
		default:
			return fmt.Errorf("%w: unknown field %q", domain.ErrInvalidValue, field)
		}

		if scope == "" {
			switch {
			case direction == domain.DirectionDeposit && field == service_interfaces.FieldRate:
				account.Defaults.Deposit.Rate = value
			case direction == domain.DirectionDeposit:
				account.Defaults.Deposit.ExchangeRate = value
			case field == service_interfaces.FieldRate:
				account.Defaults.Withdrawal.Rate = value
			default:
				account.Defaults.Withdrawal.ExchangeRate = value
			}
			return nil
		}

		override := account.ScopeOverrides[scope]
		var fields *domain.RateOverride
		if direction == domain.DirectionDeposit {
			if override.Deposit == nil {
				override.Deposit = &domain.RateOverride{}
			}
			fields = override.Deposit
		} else {
			if override.Withdrawal == nil {
				override.Withdrawal = &domain.RateOverride{}
			}
			fields = override.Withdrawal
		}

		set := decimal.NullDecimal{Decimal: value, Valid: true}
		if field == service_interfaces.FieldRate {
			fields.Rate = set
		} else {
			fields.ExchangeRate = set
		}
		account.ScopeOverrides[scope] = override
		return nil
	})
	if err != nil {
		logger.Error("ledger service configure failed", err, logger.Fields{"accountId": accountID})
		return domain.Account{}, err
	}

	return account, nil
}

func (s *LedgerService) SetPeriodBoundary(ctx context.Context, accountID string, hour, minute int) (domain.Account, error) {
	boundary := domain.PeriodBoundary{Hour: hour, Minute: minute}
	if !boundary.Valid() {
		return domain.Account{}, fmt.Errorf("%w: period boundary %02d:%02d out of range", domain.ErrInvalidValue, hour, minute)
	}

	return s.update(ctx, accountID, func(account *domain.Account) error {
		account.PeriodBoundary = boundary
		return nil
	})
}

func (s *LedgerService) SetDisplayName(ctx context.Context, accountID, name string) (domain.Account, error) {
	return s.update(ctx, accountID, func(account *domain.Account) error {
		account.DisplayName = name
		return nil
	})
}

// ResetDefaults puts every default rate back to the zero "unconfigured"
// sentinel. Records and scope overrides are untouched.
func (s *LedgerService) ResetDefaults(ctx context.Context, accountID string) (domain.Account, error) {
	return s.update(ctx, accountID, func(account *domain.Account) error {
		account.Defaults = domain.Defaults{}
		return nil
	})
}

func (s *LedgerService) RemoveScope(ctx context.Context, accountID, scope string) (domain.Account, error) {
	return s.update(ctx, accountID, func(account *domain.Account) error {
		delete(account.ScopeOverrides, scope)
		return nil
	})
}

func (s *LedgerService) RecordTransaction(ctx context.Context, req service_interfaces.RecordRequest) (service_interfaces.RecordResult, error) {
	logger.Info("ledger service record transaction request", logger.Fields{
		"accountId": req.AccountID,
		"kind":      req.Kind,
		"amount":    req.Amount,
		"scope":     req.Scope,
		"reference": req.Reference,
	})

	if !req.Kind.Valid() {
		return service_interfaces.RecordResult{}, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidValue, req.Kind)
	}

	amount, err := money.ParseAmount(req.Amount)
	if err != nil {
		logger.Error("ledger service record transaction rejected", err, logger.Fields{"accountId": req.AccountID})
		return service_interfaces.RecordResult{}, err
	}

	var result service_interfaces.RecordResult
	_, err = s.update(ctx, req.AccountID, func(account *domain.Account) error {
		record, err := s.buildRecord(account, req, amount)
		if err != nil {
			return err
		}

		account.RecordSeq++
		record.Seq = account.RecordSeq
		ledger.Append(account, record)

		result = service_interfaces.RecordResult{
			Record:  record,
			Summary: ledger.Recompute(account),
		}
		return nil
	})
	if err != nil {
		logger.Error("ledger service record transaction failed", err, logger.Fields{
			"accountId": req.AccountID,
			"kind":      req.Kind,
		})
		return service_interfaces.RecordResult{}, err
	}

	logger.Info("ledger service record transaction success", logger.Fields{
		"accountId": req.AccountID,
		"recordId":  result.Record.ID,
		"settled":   result.Record.Settled,
	})

	return result, nil
}

func (s *LedgerService) buildRecord(account *domain.Account, req service_interfaces.RecordRequest, amount decimal.Decimal) (domain.Record, error) {
	record := domain.Record{
		ID:        uuid.NewString(),
		Kind:      req.Kind,
		Timestamp: s.now().In(account.Location()),
		Scope:     req.Scope,
		Note:      req.Note,
		Reference: req.Reference,
	}

	if req.Kind == domain.KindDisbursement {
		// Disbursements carry a signed settlement amount directly and
		// bypass rate resolution: positive = funds sent out, negative =
		// a correction reducing prior disbursement.
		if amount.IsZero() {
			return domain.Record{}, fmt.Errorf("%w: disbursement amount must be non-zero", domain.ErrInvalidAmount)
		}
		record.Settled = money.RoundHalfUpTo2(amount)
		return record, nil
	}

	if !amount.IsPositive() {
		return domain.Record{}, fmt.Errorf("%w: %s amount must be positive", domain.ErrInvalidAmount, req.Kind)
	}

	direction, _ := req.Kind.Direction()
	rate, fx, err := ledger.ResolveRates(*account, direction, req.Scope)
	if err != nil {
		return domain.Record{}, err
	}

	record.RawAmount = amount
	record.Rate = rate
	record.ExchangeRate = fx

	switch req.Kind {
	case domain.KindDeposit:
		record.Settled = ledger.DepositSettlement(amount, rate, fx)
	case domain.KindWithdrawal:
		record.Settled = ledger.WithdrawalSettlement(amount, rate, fx, account.Defaults.Withdrawal.FlatFee)
	}

	return record, nil
}

func (s *LedgerService) UndoLast(ctx context.Context, accountID string, kind domain.Kind) (service_interfaces.RecordResult, error) {
	if !kind.Valid() {
		return service_interfaces.RecordResult{}, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidValue, kind)
	}

	var result service_interfaces.RecordResult
	_, err := s.update(ctx, accountID, func(account *domain.Account) error {
		record, ok := ledger.RemoveMostRecent(account, kind)
		if !ok {
			return domain.ErrRecordNotFound
		}
		result = service_interfaces.RecordResult{
			Record:  record,
			Summary: ledger.Recompute(account),
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrRecordNotFound) {
			logger.Error("ledger service undo last failed", err, logger.Fields{
				"accountId": accountID,
				"kind":      kind,
			})
		}
		return service_interfaces.RecordResult{}, err
	}

	logger.Info("ledger service undo last success", logger.Fields{
		"accountId": accountID,
		"recordId":  result.Record.ID,
	})

	return result, nil
}

func (s *LedgerService) UndoByReference(ctx context.Context, accountID, reference string) (service_interfaces.RecordResult, error) {
	var result service_interfaces.RecordResult
	duplicate := false

	_, err := s.update(ctx, accountID, func(account *domain.Account) error {
		record, err := ledger.RemoveByReference(account, reference)
		if errors.Is(err, domain.ErrDuplicateReference) {
			// Caller-contract violation: flagged after the removal is
			// persisted, never silently tolerated.
			duplicate = true
		} else if err != nil {
			return err
		}

		result = service_interfaces.RecordResult{
			Record:  record,
			Summary: ledger.Recompute(account),
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrRecordNotFound) {
			logger.Error("ledger service undo by reference failed", err, logger.Fields{
				"accountId": accountID,
				"reference": reference,
			})
		}
		return service_interfaces.RecordResult{}, err
	}

	if duplicate {
		logger.Warn("ledger service undo by reference matched multiple records", logger.Fields{
			"accountId": accountID,
			"reference": reference,
			"recordId":  result.Record.ID,
		})
		return result, fmt.Errorf("%w: reference %q", domain.ErrDuplicateReference, reference)
	}

	return result, nil
}

// ClearPeriod drops all current-period records, keeping configuration.
// Returns per-kind counts and truncated settled sums of what was dropped.
func (s *LedgerService) ClearPeriod(ctx context.Context, accountID string) (map[domain.Kind]service_interfaces.ClearedKind, error) {
	cleared := make(map[domain.Kind]service_interfaces.ClearedKind)

	_, err := s.update(ctx, accountID, func(account *domain.Account) error {
		for _, kind := range []domain.Kind{domain.KindDeposit, domain.KindWithdrawal, domain.KindDisbursement} {
			records := *account.Records.ForKind(kind)
			if len(records) == 0 {
				continue
			}
			sum := decimal.Zero
			for _, record := range records {
				sum = sum.Add(record.Settled)
			}
			cleared[kind] = service_interfaces.ClearedKind{
				Count:   len(records),
				Settled: money.TruncateTo2(sum),
			}
		}

		account.Records.Clear()
		account.RecordSeq = 0
		return nil
	})
	if err != nil {
		logger.Error("ledger service clear period failed", err, logger.Fields{"accountId": accountID})
		return nil, err
	}

	logger.Info("ledger service clear period success", logger.Fields{
		"accountId": accountID,
		"kinds":     len(cleared),
	})

	return cleared, nil
}

func (s *LedgerService) GetSummary(ctx context.Context, accountID string) (service_interfaces.SummaryView, error) {
	var summary service_interfaces.SummaryView

	err := s.view(ctx, accountID, func(account *domain.Account) {
		summary = service_interfaces.SummaryView{
			AccountID:     account.ID,
			DisplayName:   account.DisplayName,
			PeriodID:      account.CurrentPeriodID,
			Totals:        ledger.Recompute(account),
			Deposits:      ledger.All(account, domain.KindDeposit),
			Withdrawals:   ledger.All(account, domain.KindWithdrawal),
			Disbursements: ledger.All(account, domain.KindDisbursement),
		}
	})
	if err != nil {
		logger.Error("ledger service get summary failed", err, logger.Fields{"accountId": accountID})
		return service_interfaces.SummaryView{}, err
	}

	return summary, nil
}

func (s *LedgerService) GetAccount(ctx context.Context, accountID string) (domain.Account, error) {
	var account domain.Account

	err := s.view(ctx, accountID, func(loaded *domain.Account) {
		account = loaded.Clone()
	})
	if err != nil {
		logger.Error("ledger service get account failed", err, logger.Fields{"accountId": accountID})
		return domain.Account{}, err
	}

	return account, nil
}
