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
	"crypto/subtle"
	"errors"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/hisaab-io/hisaab/config"
	"github.com/hisaab-io/hisaab/internal/apierror"
	"github.com/hisaab-io/hisaab/internal/notification"
	"github.com/hisaab-io/hisaab/model"
)

var (
	// Matches "PKR 5,000.00", "Rs. 5000", "rs 12,500.5" and the like.
	smsAmountPattern = regexp.MustCompile(`(?i)(?:PKR|Rs\.?)\s*([0-9,]+(?:\.[0-9]{1,2})?)`)
	// Bank reference formats: "Txn ID: ABC123", "Ref # 456789", plus our own
	// WTU codes when the sender quoted them.
	smsRefPattern = regexp.MustCompile(`(?i)(?:Txn\s*(?:ID|No)\.?|Ref(?:erence)?\s*(?:#|No\.?|:)?)[:\s]*([A-Za-z0-9\-]{4,})`)
	smsWtuPattern = regexp.MustCompile(`WTU\d{18}`)
)

// ParseSmsAmount extracts the first currency amount from free-form SMS text.
func ParseSmsAmount(text string) (model.Money, bool) {
	match := smsAmountPattern.FindStringSubmatch(text)
	if match == nil {
		return model.Money{}, false
	}
	raw := strings.ReplaceAll(match[1], ",", "")
	amount, err := model.MoneyFromString(raw, config.DEFAULT_CURRENCY)
	if err != nil || !amount.IsPositive() {
		return model.Money{}, false
	}
	return amount, true
}

// ParseSmsReference extracts a bank transaction reference from SMS text. A
// quoted WTU code wins over generic Txn ID / Ref # formats.
func ParseSmsReference(text string) string {
	if wtu := smsWtuPattern.FindString(text); wtu != "" {
		return wtu
	}
	match := smsRefPattern.FindStringSubmatch(text)
	if match == nil {
		return ""
	}
	return match[1]
}

// ProcessIncomingSms handles a bank SMS forwarded by the phone relay. The
// relay authenticates with a shared secret; the text carries no user id, so
// the payment is matched to a user through the active amount locks. Every
// message is recorded whether it matches or not; unmatched ones are the
// manual reconciliation queue.
//
// Returns ok=true when the payment was applied (or had already been applied;
// duplicate deliveries are acknowledged, not re-credited) and a short
// human-readable outcome. The error return is reserved for infrastructure
// failures the relay should retry on.
func (l *Hisaab) ProcessIncomingSms(ctx context.Context, smsText, secret string) (bool, string, error) {
	ctx, span := tracer.Start(ctx, "Processing incoming bank SMS")
	defer span.End()

	cfg, err := config.Fetch()
	if err != nil {
		return false, "", err
	}
	if cfg.BankSms.Secret == "" ||
		subtle.ConstantTimeCompare([]byte(secret), []byte(cfg.BankSms.Secret)) != 1 {
		return false, "", apierror.NewAPIError(apierror.ErrUnauthorized,
			"Invalid bank SMS relay secret", nil)
	}

	sms := model.NewBankSmsPayment(smsText)

	amount, amountOK := ParseSmsAmount(smsText)
	reference := ParseSmsReference(smsText)
	if amountOK {
		sms.Amount = amount.Amount
		sms.Currency = amount.Currency
	}
	sms.TransactionRef = reference

	if !amountOK {
		sms.ProcessingResult = "no amount found in message"
		if _, err := l.datasource.RecordBankSmsPayment(ctx, sms); err != nil {
			return false, "", err
		}
		return false, "no amount found, stored for manual reconciliation", nil
	}

	// The relay redelivers on flaky networks. A bank reference we already
	// applied means this exact payment was processed before.
	if reference != "" {
		processed, err := l.datasource.ProcessedSmsExistsByRef(ctx, reference)
		if err != nil {
			return false, "", err
		}
		if processed {
			sms.ProcessingResult = "duplicate delivery, already processed"
			if _, err := l.datasource.RecordBankSmsPayment(ctx, sms); err != nil {
				logrus.Error(err)
			}
			return true, "already processed", nil
		}
	}

	lock, err := l.datasource.GetActiveLockByAmount(ctx, amount)
	if err != nil {
		if errors.Is(err, model.ErrLockNotActive) {
			sms.ProcessingResult = "no matching lock"
			if _, recErr := l.datasource.RecordBankSmsPayment(ctx, sms); recErr != nil {
				return false, "", recErr
			}
			return false, "no matching lock, stored for manual reconciliation", nil
		}
		return false, "", err
	}

	// Compare-and-set LOCKED -> COMPLETED. Losing the race to another
	// delivery of the same payment means it was already applied.
	if err := l.datasource.CompleteLock(ctx, lock.LockID); err != nil {
		if errors.Is(err, model.ErrLockNotActive) {
			sms.ProcessingResult = "lock already consumed"
			if _, recErr := l.datasource.RecordBankSmsPayment(ctx, sms); recErr != nil {
				logrus.Error(recErr)
			}
			return true, "already processed", nil
		}
		return false, "", err
	}

	topUp, err := l.datasource.GetTopUpByExternalReference(ctx, lock.TransactionReference)
	if err != nil {
		notification.NotifyError(err)
		sms.ProcessingResult = "lock matched but paired top-up missing"
		sms.LockID = lock.LockID
		sms.UserID = lock.UserID
		if _, recErr := l.datasource.RecordBankSmsPayment(ctx, sms); recErr != nil {
			logrus.Error(recErr)
		}
		return false, "", err
	}

	confirmRef := reference
	if confirmRef == "" {
		confirmRef = lock.TransactionReference
	}
	confirmed, err := l.TopUpConfirm(ctx, topUp.TopUpID, confirmRef)
	if err != nil {
		return false, "", err
	}

	sms.Processed = true
	sms.ProcessingResult = "matched and confirmed"
	sms.LockID = lock.LockID
	sms.UserID = lock.UserID
	sms.WalletID = confirmed.WalletID
	if _, err := l.datasource.RecordBankSmsPayment(ctx, sms); err != nil {
		logrus.Error(err)
	}
	return true, "payment applied", nil
}
