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
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/hisaab-io/hisaab/config"
	"github.com/hisaab-io/hisaab/internal/apierror"
	"github.com/hisaab-io/hisaab/model"
)

// JazzCashCallback is the settlement notification JazzCash posts after a
// mobile-account payment.
type JazzCashCallback struct {
	TxnRefNo      string `json:"pp_TxnRefNo"`
	BillReference string `json:"pp_BillReference"`
	Amount        string `json:"pp_Amount"`
	ResponseCode  string `json:"pp_ResponseCode"`
	SecureHash    string `json:"pp_SecureHash"`
}

// EasypaisaCallback is the settlement notification Easypaisa posts. The
// signature is an HMAC over the raw request body, so the handler must hand
// both through unparsed.
type EasypaisaCallback struct {
	OrderID       string `json:"orderId"`
	TransactionID string `json:"transactionId"`
	Amount        string `json:"transactionAmount"`
	ResponseCode  string `json:"responseCode"`
}

const (
	jazzCashSuccessCode  = "000"
	easypaisaSuccessCode = "0000"
)

// ComputeJazzCashSecureHash builds the pp_SecureHash for a set of callback
// fields: the integrity salt and the non-empty pp_* values, sorted by field
// name, joined with '&', hashed with HMAC-SHA256 keyed on the salt, uppercase
// hex. pp_SecureHash itself is excluded.
func ComputeJazzCashSecureHash(fields map[string]string, integritySalt string) string {
	keys := make([]string, 0, len(fields))
	for k, v := range fields {
		if k == "pp_SecureHash" || v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys)+1)
	parts = append(parts, integritySalt)
	for _, k := range keys {
		parts = append(parts, fields[k])
	}
	mac := hmac.New(sha256.New, []byte(integritySalt))
	mac.Write([]byte(strings.Join(parts, "&")))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}

// VerifyEasypaisaSignature checks the HMAC-SHA256 signature Easypaisa sends
// over the raw request body.
func VerifyEasypaisaSignature(rawBody []byte, signature, hashKey string) bool {
	mac := hmac.New(sha256.New, []byte(hashKey))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected))
}

// ConfirmJazzCashCallback runs the JazzCash settlement pipeline: secure-hash
// verification, top-up resolution via the bill reference, channel safety,
// idempotency, the admin-approval short-circuit and the amount equality
// check, then the actual confirm. Validation failures come back as typed
// errors; the HTTP handler decides which acknowledge codes the gateway sees.
func (l *Hisaab) ConfirmJazzCashCallback(ctx context.Context, callback JazzCashCallback) (*model.TopUp, error) {
	ctx, span := tracer.Start(ctx, "Processing JazzCash callback")
	defer span.End()

	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	expected := ComputeJazzCashSecureHash(map[string]string{
		"pp_TxnRefNo":      callback.TxnRefNo,
		"pp_BillReference": callback.BillReference,
		"pp_Amount":        callback.Amount,
		"pp_ResponseCode":  callback.ResponseCode,
	}, cfg.JazzCash.IntegritySalt)
	if !hmac.Equal([]byte(expected), []byte(strings.ToUpper(callback.SecureHash))) {
		return nil, apierror.NewAPIError(apierror.ErrUnauthorized,
			"JazzCash secure hash verification failed", model.ErrInvalidSignature)
	}

	if callback.ResponseCode != jazzCashSuccessCode {
		logrus.Warnf("JazzCash callback for %s reported failure code %s", callback.BillReference, callback.ResponseCode)
		return l.TopUpFail(ctx, callback.BillReference,
			fmt.Sprintf("Gateway reported failure (code %s)", callback.ResponseCode))
	}

	return l.settleGatewayCallback(ctx, callback.BillReference, model.ChannelJazzCash, callback.Amount, callback.TxnRefNo)
}

// ConfirmEasypaisaCallback verifies the HMAC signature over the raw body and
// runs the shared settlement pipeline.
func (l *Hisaab) ConfirmEasypaisaCallback(ctx context.Context, rawBody []byte, signature string, callback EasypaisaCallback) (*model.TopUp, error) {
	ctx, span := tracer.Start(ctx, "Processing Easypaisa callback")
	defer span.End()

	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	if !VerifyEasypaisaSignature(rawBody, signature, cfg.Easypaisa.HashKey) {
		return nil, apierror.NewAPIError(apierror.ErrUnauthorized,
			"Easypaisa signature verification failed", model.ErrInvalidSignature)
	}

	if callback.ResponseCode != easypaisaSuccessCode {
		logrus.Warnf("Easypaisa callback for %s reported failure code %s", callback.OrderID, callback.ResponseCode)
		return l.TopUpFail(ctx, callback.OrderID,
			fmt.Sprintf("Gateway reported failure (code %s)", callback.ResponseCode))
	}

	return l.settleGatewayCallback(ctx, callback.OrderID, model.ChannelEasypaisa, callback.Amount, callback.TransactionID)
}

// settleGatewayCallback is the channel-independent tail of the webhook
// pipeline. Order matters:
//
//  1. Resolve the top-up from the merchant reference.
//  2. Channel safety: a JazzCash callback must not confirm an
//     Easypaisa-initiated top-up.
//  3. Idempotency: already confirmed acknowledges without reprocessing.
//  4. Admin-approval short-circuit: pending review acknowledges receipt but
//     never auto-confirms.
//  5. Amount equality against the stored top-up amount.
//  6. Confirm.
func (l *Hisaab) settleGatewayCallback(ctx context.Context, topUpID, channel, callbackAmount, externalReference string) (*model.TopUp, error) {
	topUp, err := l.datasource.GetTopUpByID(ctx, topUpID)
	if err != nil {
		return nil, err
	}

	if topUp.Channel != channel {
		return nil, apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("Top-up '%s' belongs to channel %s, callback came from %s", topUpID, topUp.Channel, channel),
			model.ErrChannelMismatch)
	}

	if topUp.Status == model.TopUpStatusConfirmed {
		logrus.Infof("top-up %s already confirmed, acknowledging replay", topUpID)
		return topUp, nil
	}

	if topUp.Status == model.TopUpStatusPendingAdminApproval {
		logrus.Infof("top-up %s is pending admin approval, callback acknowledged without confirm", topUpID)
		return topUp, nil
	}

	if callbackAmount != "" {
		amount, err := model.MoneyFromString(callbackAmount, topUp.Currency)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInvalidInput,
				fmt.Sprintf("Unparseable callback amount %q", callbackAmount), err)
		}
		if !amount.Equals(topUp.AmountMoney()) {
			return nil, apierror.NewAPIError(apierror.ErrConflict,
				fmt.Sprintf("Callback amount %s does not match top-up amount %s", amount, topUp.AmountMoney()),
				model.ErrAmountMismatch)
		}
	}

	return l.TopUpConfirm(ctx, topUpID, externalReference)
}
