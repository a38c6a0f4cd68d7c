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
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/hisaab-io/hisaab/internal/apierror"
	"github.com/hisaab-io/hisaab/model"
)

func newTestLock(t *testing.T) *model.WalletTopupLock {
	t.Helper()
	amount, err := model.MoneyFromString("2500", "PKR")
	assert.NoError(t, err)
	return model.NewWalletTopupLock(gofakeit.UUID(), amount, 10*time.Minute)
}

func lockRows(lock *model.WalletTopupLock) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "lock_id", "user_id", "amount", "currency", "status",
		"transaction_reference", "locked_at", "expires_at",
	}).AddRow(1, lock.LockID, lock.UserID, lock.Amount.String(), lock.Currency,
		lock.Status, lock.TransactionReference, lock.LockedAt, lock.ExpiresAt)
}

func TestCreateTopupLock_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	lock := newTestLock(t)

	mock.ExpectExec("INSERT INTO wallet_topup_locks").
		WithArgs(lock.LockID, lock.UserID, sqlmock.AnyArg(), lock.Currency,
			model.LockStatusLocked, lock.TransactionReference, lock.LockedAt, lock.ExpiresAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	created, err := ds.CreateTopupLock(context.Background(), lock)
	assert.NoError(t, err)
	assert.Regexp(t, `^WTU\d{18}$`, created.TransactionReference)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTopupLock_DuplicateReference(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	lock := newTestLock(t)

	mock.ExpectExec("INSERT INTO wallet_topup_locks").
		WillReturnError(&pq.Error{Code: "23505", Message: "unique_violation"})

	_, err = ds.CreateTopupLock(context.Background(), lock)
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrConflict, apiErr.Code)
}

func TestGetActiveLockByAmount_OldestWins(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	lock := newTestLock(t)
	amount := lock.AmountMoney()

	mock.ExpectQuery("SELECT .* FROM wallet_topup_locks").
		WithArgs(sqlmock.AnyArg(), amount.Currency, sqlmock.AnyArg()).
		WillReturnRows(lockRows(lock))

	found, err := ds.GetActiveLockByAmount(context.Background(), amount)
	assert.NoError(t, err)
	assert.Equal(t, lock.LockID, found.LockID)
	assert.True(t, found.Amount.Equal(amount.Amount))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetActiveLockByAmount_NoneActive(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	amount, _ := model.MoneyFromString("999", "PKR")

	mock.ExpectQuery("SELECT .* FROM wallet_topup_locks").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = ds.GetActiveLockByAmount(context.Background(), amount)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrLockNotActive))
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrNotFound, apiErr.Code)
}

func TestCompleteLock_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE wallet_topup_locks SET status = 'COMPLETED'").
		WithArgs("lck_1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = ds.CompleteLock(context.Background(), "lck_1")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteLock_AlreadyExpired(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	// The sweep flipped the row to EXPIRED first; the guarded update matches
	// nothing.
	mock.ExpectExec("UPDATE wallet_topup_locks SET status = 'COMPLETED'").
		WithArgs("lck_1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = ds.CompleteLock(context.Background(), "lck_1")
	assert.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrLockNotActive))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpireStaleLocks(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE wallet_topup_locks SET status = 'EXPIRED'").
		WillReturnResult(sqlmock.NewResult(0, 3))

	expired, err := ds.ExpireStaleLocks(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int64(3), expired)
	assert.NoError(t, mock.ExpectationsWereMet())
}
