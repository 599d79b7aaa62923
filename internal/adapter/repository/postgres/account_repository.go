package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/api-sage/settlement-ledger/internal/adapter/repository/repo_interfaces"
	"github.com/api-sage/settlement-ledger/internal/domain"
	"github.com/api-sage/settlement-ledger/internal/logger"
)

// Verify that AccountRepository implements the repository interface
var _ repo_interfaces.AccountRepository = (*AccountRepository)(nil)

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Load(ctx context.Context, accountID string) (domain.Account, error) {
	const query = `
SELECT account_id, display_name,
       deposit_rate, deposit_fx,
       withdrawal_rate, withdrawal_fx, withdrawal_flat_fee,
       boundary_hour, boundary_minute, utc_offset_minutes,
       current_period_id, record_seq, created_at, updated_at
FROM accounts
WHERE account_id = $1`

	account := domain.NewAccount(accountID)
	err := r.db.QueryRowContext(ctx, query, accountID).Scan(
		&account.ID,
		&account.DisplayName,
		&account.Defaults.Deposit.Rate,
		&account.Defaults.Deposit.ExchangeRate,
		&account.Defaults.Withdrawal.Rate,
		&account.Defaults.Withdrawal.ExchangeRate,
		&account.Defaults.Withdrawal.FlatFee,
		&account.PeriodBoundary.Hour,
		&account.PeriodBoundary.Minute,
		&account.UTCOffsetMinutes,
		&account.CurrentPeriodID,
		&account.RecordSeq,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewAccount(accountID), nil
	}
	if err != nil {
		logger.Error("account repository load failed", err, logger.Fields{"accountId": accountID})
		return domain.Account{}, fmt.Errorf("load account %q: %w", accountID, err)
	}

	if err := r.loadScopeOverrides(ctx, &account); err != nil {
		return domain.Account{}, err
	}
	if err := r.loadRecords(ctx, &account); err != nil {
		return domain.Account{}, err
	}

	return account, nil
}

func (r *AccountRepository) loadScopeOverrides(ctx context.Context, account *domain.Account) error {
	const query = `
SELECT scope, direction, rate, exchange_rate
FROM scope_overrides
WHERE account_id = $1
ORDER BY scope, direction`

	rows, err := r.db.QueryContext(ctx, query, account.ID)
	if err != nil {
		return fmt.Errorf("load scope overrides for %q: %w", account.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var scope string
		var direction domain.Direction
		var fields domain.RateOverride
		if err := rows.Scan(&scope, &direction, &fields.Rate, &fields.ExchangeRate); err != nil {
			return fmt.Errorf("scan scope override for %q: %w", account.ID, err)
		}

		override := account.ScopeOverrides[scope]
		switch direction {
		case domain.DirectionDeposit:
			override.Deposit = &fields
		case domain.DirectionWithdrawal:
			override.Withdrawal = &fields
		}
		account.ScopeOverrides[scope] = override
	}

	return rows.Err()
}

func (r *AccountRepository) loadRecords(ctx context.Context, account *domain.Account) error {
	const query = `
SELECT id, seq, kind, raw_amount, rate, exchange_rate, settled, ts, scope, note, reference
FROM records
WHERE account_id = $1
ORDER BY seq ASC`

	rows, err := r.db.QueryContext(ctx, query, account.ID)
	if err != nil {
		return fmt.Errorf("load records for %q: %w", account.ID, err)
	}
	defer rows.Close()

	loc := account.Location()
	for rows.Next() {
		var record domain.Record
		if err := rows.Scan(
			&record.ID,
			&record.Seq,
			&record.Kind,
			&record.RawAmount,
			&record.Rate,
			&record.ExchangeRate,
			&record.Settled,
			&record.Timestamp,
			&record.Scope,
			&record.Note,
			&record.Reference,
		); err != nil {
			return fmt.Errorf("scan record for %q: %w", account.ID, err)
		}

		record.Timestamp = record.Timestamp.In(loc)
		list := account.Records.ForKind(record.Kind)
		if list == nil {
			return fmt.Errorf("load records for %q: unknown kind %q", account.ID, record.Kind)
		}
		*list = append(*list, record)
	}

	return rows.Err()
}

// Save writes the whole account state in one transaction: upsert the account
// row, then replace its scope overrides and records wholesale. A failed
// commit leaves the previously persisted state authoritative.
func (r *AccountRepository) Save(ctx context.Context, account domain.Account) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save for %q: %w", account.ID, err)
	}

	if err := r.saveTx(ctx, tx, account); err != nil {
		_ = tx.Rollback()
		logger.Error("account repository save failed", err, logger.Fields{"accountId": account.ID})
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save for %q: %w", account.ID, err)
	}

	return nil
}

func (r *AccountRepository) saveTx(ctx context.Context, tx *sql.Tx, account domain.Account) error {
	const upsert = `
INSERT INTO accounts (
	account_id, display_name,
	deposit_rate, deposit_fx,
	withdrawal_rate, withdrawal_fx, withdrawal_flat_fee,
	boundary_hour, boundary_minute, utc_offset_minutes,
	current_period_id, record_seq
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (account_id) DO UPDATE SET
	display_name = EXCLUDED.display_name,
	deposit_rate = EXCLUDED.deposit_rate,
	deposit_fx = EXCLUDED.deposit_fx,
	withdrawal_rate = EXCLUDED.withdrawal_rate,
	withdrawal_fx = EXCLUDED.withdrawal_fx,
	withdrawal_flat_fee = EXCLUDED.withdrawal_flat_fee,
	boundary_hour = EXCLUDED.boundary_hour,
	boundary_minute = EXCLUDED.boundary_minute,
	utc_offset_minutes = EXCLUDED.utc_offset_minutes,
	current_period_id = EXCLUDED.current_period_id,
	record_seq = EXCLUDED.record_seq,
	updated_at = NOW()`

	if _, err := tx.ExecContext(ctx, upsert,
		account.ID,
		account.DisplayName,
		account.Defaults.Deposit.Rate,
		account.Defaults.Deposit.ExchangeRate,
		account.Defaults.Withdrawal.Rate,
		account.Defaults.Withdrawal.ExchangeRate,
		account.Defaults.Withdrawal.FlatFee,
		account.PeriodBoundary.Hour,
		account.PeriodBoundary.Minute,
		account.UTCOffsetMinutes,
		account.CurrentPeriodID,
		account.RecordSeq,
	); err != nil {
		return fmt.Errorf("upsert account %q: %w", account.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM scope_overrides WHERE account_id = $1`, account.ID); err != nil {
		return fmt.Errorf("clear scope overrides for %q: %w", account.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE account_id = $1`, account.ID); err != nil {
		return fmt.Errorf("clear records for %q: %w", account.ID, err)
	}

	const insertOverride = `
INSERT INTO scope_overrides (account_id, scope, direction, rate, exchange_rate)
VALUES ($1, $2, $3, $4, $5)`

	for scope, override := range account.ScopeOverrides {
		if override.Deposit != nil {
			if _, err := tx.ExecContext(ctx, insertOverride,
				account.ID, scope, domain.DirectionDeposit,
				override.Deposit.Rate, override.Deposit.ExchangeRate,
			); err != nil {
				return fmt.Errorf("insert scope override for %q: %w", account.ID, err)
			}
		}
		if override.Withdrawal != nil {
			if _, err := tx.ExecContext(ctx, insertOverride,
				account.ID, scope, domain.DirectionWithdrawal,
				override.Withdrawal.Rate, override.Withdrawal.ExchangeRate,
			); err != nil {
				return fmt.Errorf("insert scope override for %q: %w", account.ID, err)
			}
		}
	}

	const insertRecord = `
INSERT INTO records (account_id, id, seq, kind, raw_amount, rate, exchange_rate, settled, ts, scope, note, reference)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	for _, kind := range []domain.Kind{domain.KindDeposit, domain.KindWithdrawal, domain.KindDisbursement} {
		for _, record := range *account.Records.ForKind(kind) {
			if _, err := tx.ExecContext(ctx, insertRecord,
				account.ID,
				record.ID,
				record.Seq,
				record.Kind,
				record.RawAmount,
				record.Rate,
				record.ExchangeRate,
				record.Settled,
				record.Timestamp.UTC(),
				record.Scope,
				record.Note,
				record.Reference,
			); err != nil {
				return fmt.Errorf("insert record for %q: %w", account.ID, err)
			}
		}
	}

	return nil
}
