// Package sqlite is the single-file storage backend, for deployments without
// a postgres instance. Decimal columns are declared TEXT and written in
// string form so values round-trip without float conversion.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/api-sage/settlement-ledger/internal/adapter/repository/repo_interfaces"
	"github.com/api-sage/settlement-ledger/internal/domain"
	"github.com/api-sage/settlement-ledger/internal/logger"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// Verify that AccountRepository implements the repository interface
var _ repo_interfaces.AccountRepository = (*AccountRepository)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	account_id TEXT PRIMARY KEY,
	display_name TEXT NOT NULL DEFAULT '',
	deposit_rate TEXT NOT NULL DEFAULT '0',
	deposit_fx TEXT NOT NULL DEFAULT '0',
	withdrawal_rate TEXT NOT NULL DEFAULT '0',
	withdrawal_fx TEXT NOT NULL DEFAULT '0',
	withdrawal_flat_fee TEXT NOT NULL DEFAULT '0',
	boundary_hour INTEGER NOT NULL DEFAULT 0,
	boundary_minute INTEGER NOT NULL DEFAULT 0,
	utc_offset_minutes INTEGER NOT NULL DEFAULT 480,
	current_period_id TEXT NOT NULL DEFAULT '',
	record_seq INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS scope_overrides (
	account_id TEXT NOT NULL REFERENCES accounts(account_id) ON DELETE CASCADE,
	scope TEXT NOT NULL,
	direction TEXT NOT NULL,
	rate TEXT,
	exchange_rate TEXT,
	PRIMARY KEY (account_id, scope, direction)
);

CREATE TABLE IF NOT EXISTS records (
	account_id TEXT NOT NULL REFERENCES accounts(account_id) ON DELETE CASCADE,
	id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	kind TEXT NOT NULL,
	raw_amount TEXT NOT NULL DEFAULT '0',
	rate TEXT NOT NULL DEFAULT '0',
	exchange_rate TEXT NOT NULL DEFAULT '0',
	settled TEXT NOT NULL,
	ts TIMESTAMP NOT NULL,
	scope TEXT NOT NULL DEFAULT '',
	note TEXT NOT NULL DEFAULT '',
	reference TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (account_id, id)
);

CREATE INDEX IF NOT EXISTS idx_records_account_seq ON records (account_id, seq DESC);
`

// Open opens (creating if needed) the database file with WAL mode and foreign
// keys enabled, and initializes the schema.
func Open(ctx context.Context, dbPath string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL", dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema: %w", err)
	}

	return db, nil
}

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
       current_period_id, record_seq
FROM accounts
WHERE account_id = ?`

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
WHERE account_id = ?
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
WHERE account_id = ?
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
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (account_id) DO UPDATE SET
	display_name = excluded.display_name,
	deposit_rate = excluded.deposit_rate,
	deposit_fx = excluded.deposit_fx,
	withdrawal_rate = excluded.withdrawal_rate,
	withdrawal_fx = excluded.withdrawal_fx,
	withdrawal_flat_fee = excluded.withdrawal_flat_fee,
	boundary_hour = excluded.boundary_hour,
	boundary_minute = excluded.boundary_minute,
	utc_offset_minutes = excluded.utc_offset_minutes,
	current_period_id = excluded.current_period_id,
	record_seq = excluded.record_seq`

	if _, err := tx.ExecContext(ctx, upsert,
		account.ID,
		account.DisplayName,
		account.Defaults.Deposit.Rate.String(),
		account.Defaults.Deposit.ExchangeRate.String(),
		account.Defaults.Withdrawal.Rate.String(),
		account.Defaults.Withdrawal.ExchangeRate.String(),
		account.Defaults.Withdrawal.FlatFee.String(),
		account.PeriodBoundary.Hour,
		account.PeriodBoundary.Minute,
		account.UTCOffsetMinutes,
		account.CurrentPeriodID,
		account.RecordSeq,
	); err != nil {
		return fmt.Errorf("upsert account %q: %w", account.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM scope_overrides WHERE account_id = ?`, account.ID); err != nil {
		return fmt.Errorf("clear scope overrides for %q: %w", account.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE account_id = ?`, account.ID); err != nil {
		return fmt.Errorf("clear records for %q: %w", account.ID, err)
	}

	const insertOverride = `
INSERT INTO scope_overrides (account_id, scope, direction, rate, exchange_rate)
VALUES (?, ?, ?, ?, ?)`

	for scope, override := range account.ScopeOverrides {
		if override.Deposit != nil {
			if _, err := tx.ExecContext(ctx, insertOverride,
				account.ID, scope, domain.DirectionDeposit,
				nullDecimalString(override.Deposit.Rate), nullDecimalString(override.Deposit.ExchangeRate),
			); err != nil {
				return fmt.Errorf("insert scope override for %q: %w", account.ID, err)
			}
		}
		if override.Withdrawal != nil {
			if _, err := tx.ExecContext(ctx, insertOverride,
				account.ID, scope, domain.DirectionWithdrawal,
				nullDecimalString(override.Withdrawal.Rate), nullDecimalString(override.Withdrawal.ExchangeRate),
			); err != nil {
				return fmt.Errorf("insert scope override for %q: %w", account.ID, err)
			}
		}
	}

	const insertRecord = `
INSERT INTO records (account_id, id, seq, kind, raw_amount, rate, exchange_rate, settled, ts, scope, note, reference)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	for _, kind := range []domain.Kind{domain.KindDeposit, domain.KindWithdrawal, domain.KindDisbursement} {
		for _, record := range *account.Records.ForKind(kind) {
			if _, err := tx.ExecContext(ctx, insertRecord,
				account.ID,
				record.ID,
				record.Seq,
				record.Kind,
				record.RawAmount.String(),
				record.Rate.String(),
				record.ExchangeRate.String(),
				record.Settled.String(),
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

func nullDecimalString(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}
