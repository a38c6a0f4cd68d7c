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
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/hisaab-io/hisaab/config"
	"github.com/hisaab-io/hisaab/database"
	"github.com/hisaab-io/hisaab/internal/cache"
	"github.com/hisaab-io/hisaab/model"
)

// newTestHisaab builds a service instance backed by sqlmock and an in-process
// redis. The webhook URL is left empty so outbound notifications are no-ops.
func newTestHisaab(t *testing.T) (*Hisaab, sqlmock.Sqlmock) {
	t.Helper()

	mr := miniredis.RunT(t)
	config.MockConfig(&config.Configuration{
		Redis:     config.RedisConfig{Dns: mr.Addr()},
		BankSms:   config.BankSmsConfig{Secret: "relay-secret"},
		JazzCash:  config.JazzCashConfig{IntegritySalt: "salt123"},
		Easypaisa: config.EasypaisaConfig{HashKey: "hashkey"},
	})
	conf, err := config.Fetch()
	require.NoError(t, err)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	newCache, err := cache.NewCache()
	require.NoError(t, err)

	return &Hisaab{
		datasource: database.Datasource{Conn: db},
		redis:      redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		cache:      newCache,
		queue:      NewQueue(conf),
	}, mock
}

func topUpRows(topUp *model.TopUp) *sqlmock.Rows {
	var confirmedAt, failedAt interface{}
	if topUp.ConfirmedAt != nil {
		confirmedAt = *topUp.ConfirmedAt
	}
	if topUp.FailedAt != nil {
		failedAt = *topUp.FailedAt
	}
	return sqlmock.NewRows([]string{
		"id", "top_up_id", "user_id", "wallet_id", "amount", "currency", "channel", "status",
		"external_reference", "failure_reason", "transaction_id", "requested_at", "confirmed_at", "failed_at",
	}).AddRow(1, topUp.TopUpID, topUp.UserID, topUp.WalletID, topUp.Amount.String(),
		topUp.Currency, topUp.Channel, topUp.Status, topUp.ExternalReference,
		topUp.FailureReason, topUp.TransactionID, topUp.RequestedAt, confirmedAt, failedAt)
}

func walletRows(wallet *model.Wallet) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "wallet_id", "user_id", "currency", "balance", "is_active", "created_at", "updated_at",
	}).AddRow(1, wallet.WalletID, wallet.UserID, wallet.Currency, wallet.Balance.String(),
		wallet.IsActive, wallet.CreatedAt, wallet.UpdatedAt)
}

func lockRows(lock *model.WalletTopupLock) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "lock_id", "user_id", "amount", "currency", "status",
		"transaction_reference", "locked_at", "expires_at",
	}).AddRow(1, lock.LockID, lock.UserID, lock.Amount.String(), lock.Currency,
		lock.Status, lock.TransactionReference, lock.LockedAt, lock.ExpiresAt)
}
