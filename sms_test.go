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

package hisaab

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"

	"github.com/hisaab-io/hisaab/internal/apierror"
	"github.com/hisaab-io/hisaab/model"
)

func TestParseSmsAmount(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		want   string
		wantOK bool
	}{
		{"pkr with thousands separator", "Dear customer, PKR 5,000.00 has been credited to your account", "5000", true},
		{"rs with dot", "Rs. 500 received from 0300xxxxxxx", "500", true},
		{"lowercase rs decimal", "rs 12,500.50 transferred via IBFT", "12500.5", true},
		{"no amount", "Your OTP is 123456", "", false},
		{"zero amount", "PKR 0 received", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, ok := ParseSmsAmount(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				want, err := model.MoneyFromString(tt.want, "PKR")
				assert.NoError(t, err)
				assert.True(t, amount.Equals(want), "got %s want %s", amount, want)
			}
		})
	}
}

func TestParseSmsReference(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"txn id", "PKR 5,000 credited. Txn ID: FT24001234", "FT24001234"},
		{"ref hash", "Rs 500 received Ref # 98765432", "98765432"},
		{"wtu code wins", "PKR 2,500 for WTU202401151030450001 Txn ID: FT9999", "WTU202401151030450001"},
		{"no reference", "PKR 100 received", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseSmsReference(tt.text))
		})
	}
}

func TestProcessIncomingSms_InvalidSecret(t *testing.T) {
	service, mock := newTestHisaab(t)

	_, _, err := service.ProcessIncomingSms(context.Background(), "PKR 500 received", "wrong-secret")
	assert.Error(t, err)

	var apiErr apierror.APIError
	assert.True(t, errors.As(err, &apiErr))
	assert.Equal(t, apierror.ErrUnauthorized, apiErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessIncomingSms_NoAmountStoredForReconciliation(t *testing.T) {
	service, mock := newTestHisaab(t)

	mock.ExpectExec("INSERT INTO bank_sms_payments").
		WillReturnResult(sqlmock.NewResult(1, 1))

	ok, message, err := service.ProcessIncomingSms(context.Background(), "Your OTP is 123456", "relay-secret")
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, message, "no amount")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessIncomingSms_DuplicateDeliveryAcknowledged(t *testing.T) {
	service, mock := newTestHisaab(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("FT24001234").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec("INSERT INTO bank_sms_payments").
		WillReturnResult(sqlmock.NewResult(1, 1))

	ok, message, err := service.ProcessIncomingSms(context.Background(),
		"PKR 5,000 credited. Txn ID: FT24001234", "relay-secret")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "already processed", message)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessIncomingSms_NoMatchingLock(t *testing.T) {
	service, mock := newTestHisaab(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("FT24001234").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("SELECT .* FROM wallet_topup_locks").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec("INSERT INTO bank_sms_payments").
		WillReturnResult(sqlmock.NewResult(1, 1))

	ok, message, err := service.ProcessIncomingSms(context.Background(),
		"PKR 5,000 credited. Txn ID: FT24001234", "relay-secret")
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, message, "no matching lock")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessIncomingSms_LockAlreadyConsumed(t *testing.T) {
	service, mock := newTestHisaab(t)

	amount, err := model.MoneyFromString("5000", "PKR")
	assert.NoError(t, err)
	lock := model.NewWalletTopupLock(gofakeit.UUID(), amount, 10*time.Minute)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("FT24001234").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("SELECT .* FROM wallet_topup_locks").
		WillReturnRows(lockRows(lock))
	mock.ExpectExec("UPDATE wallet_topup_locks").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO bank_sms_payments").
		WillReturnResult(sqlmock.NewResult(1, 1))

	ok, message, err := service.ProcessIncomingSms(context.Background(),
		"PKR 5,000 credited. Txn ID: FT24001234", "relay-secret")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "already processed", message)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessIncomingSms_MatchesLockAndConfirms(t *testing.T) {
	service, mock := newTestHisaab(t)

	amount, err := model.MoneyFromString("5000", "PKR")
	assert.NoError(t, err)
	userID := gofakeit.UUID()
	lock := model.NewWalletTopupLock(userID, amount, 10*time.Minute)

	topUp, err := model.NewTopUp(userID, model.GenerateUUIDWithSuffix("wlt"), amount, model.ChannelBankSms)
	assert.NoError(t, err)
	topUp.ExternalReference = lock.TransactionReference

	wallet := model.NewWallet(userID, "PKR")
	wallet.WalletID = topUp.WalletID

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("FT24001234").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("SELECT .* FROM wallet_topup_locks").
		WillReturnRows(lockRows(lock))
	mock.ExpectExec("UPDATE wallet_topup_locks").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT .* FROM top_ups").
		WithArgs(lock.TransactionReference).
		WillReturnRows(topUpRows(topUp))

	// TopUpConfirm: row locks, credit, settle, outbox insert, one transaction.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM top_ups WHERE top_up_id = .* FOR UPDATE").
		WithArgs(topUp.TopUpID).
		WillReturnRows(topUpRows(topUp))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("FT24001234", topUp.TopUpID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("SELECT .* FROM wallets WHERE wallet_id = .* FOR UPDATE").
		WithArgs(topUp.WalletID).
		WillReturnRows(walletRows(wallet))
	mock.ExpectExec("UPDATE wallets SET balance").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO wallet_transactions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE top_ups").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO outbox_messages").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	mock.ExpectExec("INSERT INTO bank_sms_payments").
		WillReturnResult(sqlmock.NewResult(1, 1))

	ok, message, err := service.ProcessIncomingSms(context.Background(),
		"PKR 5,000 credited to your account. Txn ID: FT24001234", "relay-secret")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "payment applied", message)
	assert.NoError(t, mock.ExpectationsWereMet())
}
