/*
Copyright 2025 Hisaab Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hisaab-io/hisaab/internal/apierror"
	"github.com/hisaab-io/hisaab/model"
)

// CreateTopupLock persists an amount reservation. At most one LOCKED row may
// exist per (user, amount); the caller checks before inserting and the
// generated transaction reference is unique by construction.
func (d Datasource) CreateTopupLock(ctx context.Context, lock *model.WalletTopupLock) (*model.WalletTopupLock, error) {
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO wallet_topup_locks (lock_id, user_id, amount, currency, status, transaction_reference, locked_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, lock.LockID, lock.UserID, lock.Amount, lock.Currency, lock.Status,
		lock.TransactionReference, lock.LockedAt, lock.ExpiresAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, apierror.NewAPIError(apierror.ErrConflict,
				fmt.Sprintf("Lock reference '%s' already exists", lock.TransactionReference), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create top-up lock", err)
	}
	return lock, nil
}

// GetActiveLockByAmount returns the oldest unexpired LOCKED reservation for
// exactly this amount and currency. When several users locked the same amount,
// the earliest reservation wins the payment.
func (d Datasource) GetActiveLockByAmount(ctx context.Context, amount model.Money) (*model.WalletTopupLock, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT id, lock_id, user_id, amount, currency, status, transaction_reference, locked_at, expires_at
		FROM wallet_topup_locks
		WHERE status = 'LOCKED' AND amount = $1 AND currency = $2 AND expires_at > $3
		ORDER BY locked_at ASC, id ASC
		LIMIT 1
	`, amount.Amount, amount.Currency, time.Now())
	lock, err := scanLockRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound,
				fmt.Sprintf("No active lock for %s", amount), model.ErrLockNotActive)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve lock", err)
	}
	return lock, nil
}

// GetActiveLockByUserAndAmount returns the user's active reservation for this
// exact amount, if one exists. Initiation uses it to keep at most one active
// lock per (user, amount).
func (d Datasource) GetActiveLockByUserAndAmount(ctx context.Context, userID string, amount model.Money) (*model.WalletTopupLock, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT id, lock_id, user_id, amount, currency, status, transaction_reference, locked_at, expires_at
		FROM wallet_topup_locks
		WHERE status = 'LOCKED' AND user_id = $1 AND amount = $2 AND currency = $3 AND expires_at > $4
		ORDER BY locked_at ASC, id ASC
		LIMIT 1
	`, userID, amount.Amount, amount.Currency, time.Now())
	lock, err := scanLockRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound,
				fmt.Sprintf("No active lock for user '%s'", userID), model.ErrLockNotActive)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve lock", err)
	}
	return lock, nil
}

// GetLockByReference retrieves a reservation by its WTU transaction reference.
func (d Datasource) GetLockByReference(ctx context.Context, transactionReference string) (*model.WalletTopupLock, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT id, lock_id, user_id, amount, currency, status, transaction_reference, locked_at, expires_at
		FROM wallet_topup_locks
		WHERE transaction_reference = $1
	`, transactionReference)
	lock, err := scanLockRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound,
				fmt.Sprintf("Lock with reference '%s' not found", transactionReference), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve lock", err)
	}
	return lock, nil
}

// CompleteLock moves a reservation from LOCKED to COMPLETED. The status guard
// in the WHERE clause makes this a compare-and-set: if the sweep expired the
// lock first, zero rows match and the caller gets a conflict.
func (d Datasource) CompleteLock(ctx context.Context, lockID string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE wallet_topup_locks SET status = 'COMPLETED'
		WHERE lock_id = $1 AND status = 'LOCKED'
	`, lockID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to complete lock", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read update result", err)
	}
	if affected == 0 {
		return apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("Lock '%s' is not active", lockID), model.ErrLockNotActive)
	}
	return nil
}

// ExpireStaleLocks flips every LOCKED reservation past its expiry to EXPIRED
// and returns how many rows changed. COMPLETED locks are never touched.
func (d Datasource) ExpireStaleLocks(ctx context.Context) (int64, error) {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE wallet_topup_locks SET status = 'EXPIRED'
		WHERE status = 'LOCKED' AND expires_at <= $1
	`, time.Now())
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to expire locks", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read update result", err)
	}
	return affected, nil
}

func scanLockRow(row *sql.Row) (*model.WalletTopupLock, error) {
	lock := model.WalletTopupLock{}
	err := row.Scan(&lock.ID, &lock.LockID, &lock.UserID, &lock.Amount, &lock.Currency,
		&lock.Status, &lock.TransactionReference, &lock.LockedAt, &lock.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &lock, nil
}
