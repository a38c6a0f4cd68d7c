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
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"

	"github.com/hisaab-io/hisaab/internal/apierror"
	"github.com/hisaab-io/hisaab/model"
)

func newTestTopUp(t *testing.T, channel string) *model.TopUp {
	t.Helper()
	amount, err := model.MoneyFromString("5000", "PKR")
	assert.NoError(t, err)
	topUp, err := model.NewTopUp(gofakeit.UUID(), model.GenerateUUIDWithSuffix("wlt"), amount, channel)
	assert.NoError(t, err)
	return topUp
}

func TestComputeJazzCashSecureHash(t *testing.T) {
	fields := map[string]string{
		"pp_TxnRefNo":      "T20240101120000",
		"pp_BillReference": "tpu_1",
		"pp_Amount":        "500000",
		"pp_ResponseCode":  "000",
	}

	hash := ComputeJazzCashSecureHash(fields, "salt123")
	assert.Len(t, hash, 64)
	assert.Equal(t, strings.ToUpper(hash), hash)

	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t, hash, ComputeJazzCashSecureHash(fields, "salt123"))
	})

	t.Run("field change changes hash", func(t *testing.T) {
		changed := map[string]string{
			"pp_TxnRefNo":      "T20240101120000",
			"pp_BillReference": "tpu_1",
			"pp_Amount":        "999999",
			"pp_ResponseCode":  "000",
		}
		assert.NotEqual(t, hash, ComputeJazzCashSecureHash(changed, "salt123"))
	})

	t.Run("secure hash field excluded", func(t *testing.T) {
		withHash := map[string]string{
			"pp_TxnRefNo":      "T20240101120000",
			"pp_BillReference": "tpu_1",
			"pp_Amount":        "500000",
			"pp_ResponseCode":  "000",
			"pp_SecureHash":    "SOMETHING",
		}
		assert.Equal(t, hash, ComputeJazzCashSecureHash(withHash, "salt123"))
	})

	t.Run("empty values excluded", func(t *testing.T) {
		withEmpty := map[string]string{
			"pp_TxnRefNo":      "T20240101120000",
			"pp_BillReference": "tpu_1",
			"pp_Amount":        "500000",
			"pp_ResponseCode":  "000",
			"pp_Language":      "",
		}
		assert.Equal(t, hash, ComputeJazzCashSecureHash(withEmpty, "salt123"))
	})

	t.Run("salt change changes hash", func(t *testing.T) {
		assert.NotEqual(t, hash, ComputeJazzCashSecureHash(fields, "othersalt"))
	})
}

func TestVerifyEasypaisaSignature(t *testing.T) {
	body := []byte(`{"orderId":"tpu_1","transactionAmount":"5000","responseCode":"0000"}`)
	mac := hmac.New(sha256.New, []byte("hashkey"))
	mac.Write(body)
	signature := hex.EncodeToString(mac.Sum(nil))

	assert.True(t, VerifyEasypaisaSignature(body, signature, "hashkey"))
	assert.True(t, VerifyEasypaisaSignature(body, strings.ToUpper(signature), "hashkey"))
	assert.False(t, VerifyEasypaisaSignature(body, signature, "wrongkey"))
	assert.False(t, VerifyEasypaisaSignature([]byte("tampered"), signature, "hashkey"))
}

func TestConfirmJazzCashCallback_InvalidSignature(t *testing.T) {
	service, mock := newTestHisaab(t)

	_, err := service.ConfirmJazzCashCallback(context.Background(), JazzCashCallback{
		TxnRefNo:      "T20240101",
		BillReference: "tpu_1",
		Amount:        "5000",
		ResponseCode:  "000",
		SecureHash:    "DEADBEEF",
	})
	assert.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrInvalidSignature))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmJazzCashCallback_ChannelMismatch(t *testing.T) {
	service, mock := newTestHisaab(t)
	topUp := newTestTopUp(t, model.ChannelEasypaisa)

	callback := JazzCashCallback{
		TxnRefNo:      "T20240101",
		BillReference: topUp.TopUpID,
		Amount:        "5000",
		ResponseCode:  "000",
	}
	callback.SecureHash = ComputeJazzCashSecureHash(map[string]string{
		"pp_TxnRefNo":      callback.TxnRefNo,
		"pp_BillReference": callback.BillReference,
		"pp_Amount":        callback.Amount,
		"pp_ResponseCode":  callback.ResponseCode,
	}, "salt123")

	mock.ExpectQuery("SELECT .* FROM top_ups WHERE top_up_id =").
		WithArgs(topUp.TopUpID).
		WillReturnRows(topUpRows(topUp))

	_, err := service.ConfirmJazzCashCallback(context.Background(), callback)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrChannelMismatch))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmJazzCashCallback_ReplayAcknowledged(t *testing.T) {
	service, mock := newTestHisaab(t)
	topUp := newTestTopUp(t, model.ChannelJazzCash)
	assert.NoError(t, topUp.Confirm("T20240101"))

	callback := JazzCashCallback{
		TxnRefNo:      "T20240101",
		BillReference: topUp.TopUpID,
		Amount:        "5000",
		ResponseCode:  "000",
	}
	callback.SecureHash = ComputeJazzCashSecureHash(map[string]string{
		"pp_TxnRefNo":      callback.TxnRefNo,
		"pp_BillReference": callback.BillReference,
		"pp_Amount":        callback.Amount,
		"pp_ResponseCode":  callback.ResponseCode,
	}, "salt123")

	mock.ExpectQuery("SELECT .* FROM top_ups WHERE top_up_id =").
		WithArgs(topUp.TopUpID).
		WillReturnRows(topUpRows(topUp))

	resp, err := service.ConfirmJazzCashCallback(context.Background(), callback)
	assert.NoError(t, err)
	assert.Equal(t, model.TopUpStatusConfirmed, resp.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmJazzCashCallback_PendingApprovalShortCircuits(t *testing.T) {
	service, mock := newTestHisaab(t)
	topUp := newTestTopUp(t, model.ChannelJazzCash)
	assert.NoError(t, topUp.RequireAdminApproval())

	callback := JazzCashCallback{
		TxnRefNo:      "T20240101",
		BillReference: topUp.TopUpID,
		Amount:        "5000",
		ResponseCode:  "000",
	}
	callback.SecureHash = ComputeJazzCashSecureHash(map[string]string{
		"pp_TxnRefNo":      callback.TxnRefNo,
		"pp_BillReference": callback.BillReference,
		"pp_Amount":        callback.Amount,
		"pp_ResponseCode":  callback.ResponseCode,
	}, "salt123")

	mock.ExpectQuery("SELECT .* FROM top_ups WHERE top_up_id =").
		WithArgs(topUp.TopUpID).
		WillReturnRows(topUpRows(topUp))

	resp, err := service.ConfirmJazzCashCallback(context.Background(), callback)
	assert.NoError(t, err)
	assert.Equal(t, model.TopUpStatusPendingAdminApproval, resp.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmJazzCashCallback_AmountMismatch(t *testing.T) {
	service, mock := newTestHisaab(t)
	topUp := newTestTopUp(t, model.ChannelJazzCash)

	callback := JazzCashCallback{
		TxnRefNo:      "T20240101",
		BillReference: topUp.TopUpID,
		Amount:        "4999",
		ResponseCode:  "000",
	}
	callback.SecureHash = ComputeJazzCashSecureHash(map[string]string{
		"pp_TxnRefNo":      callback.TxnRefNo,
		"pp_BillReference": callback.BillReference,
		"pp_Amount":        callback.Amount,
		"pp_ResponseCode":  callback.ResponseCode,
	}, "salt123")

	mock.ExpectQuery("SELECT .* FROM top_ups WHERE top_up_id =").
		WithArgs(topUp.TopUpID).
		WillReturnRows(topUpRows(topUp))

	_, err := service.ConfirmJazzCashCallback(context.Background(), callback)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrAmountMismatch))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmJazzCashCallback_GatewayFailureFailsTopUp(t *testing.T) {
	service, mock := newTestHisaab(t)
	topUp := newTestTopUp(t, model.ChannelJazzCash)

	callback := JazzCashCallback{
		TxnRefNo:      "T20240101",
		BillReference: topUp.TopUpID,
		Amount:        "5000",
		ResponseCode:  "124",
	}
	callback.SecureHash = ComputeJazzCashSecureHash(map[string]string{
		"pp_TxnRefNo":      callback.TxnRefNo,
		"pp_BillReference": callback.BillReference,
		"pp_Amount":        callback.Amount,
		"pp_ResponseCode":  callback.ResponseCode,
	}, "salt123")

	mock.ExpectQuery("SELECT .* FROM top_ups WHERE top_up_id =").
		WithArgs(topUp.TopUpID).
		WillReturnRows(topUpRows(topUp))
	mock.ExpectExec("UPDATE top_ups").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO outbox_messages").
		WillReturnResult(sqlmock.NewResult(1, 1))

	resp, err := service.ConfirmJazzCashCallback(context.Background(), callback)
	assert.NoError(t, err)
	assert.Equal(t, model.TopUpStatusFailed, resp.Status)
	assert.Contains(t, resp.FailureReason, "124")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmEasypaisaCallback_InvalidSignature(t *testing.T) {
	service, mock := newTestHisaab(t)

	rawBody := []byte(`{"orderId":"tpu_1","transactionAmount":"5000","responseCode":"0000"}`)
	_, err := service.ConfirmEasypaisaCallback(context.Background(), rawBody, "bad", EasypaisaCallback{
		OrderID:      "tpu_1",
		Amount:       "5000",
		ResponseCode: "0000",
	})
	assert.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrInvalidSignature))

	var apiErr apierror.APIError
	assert.True(t, errors.As(err, &apiErr))
	assert.Equal(t, apierror.ErrUnauthorized, apiErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
