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
	"fmt"

	"github.com/hisaab-io/hisaab/internal/apierror"
	"github.com/hisaab-io/hisaab/model"
)

// RecordBankSmsPayment stores an incoming SMS record. Every forwarded message
// is kept, matched or not, so unmatched payments can be reconciled by hand.
func (d Datasource) RecordBankSmsPayment(ctx context.Context, sms *model.BankSmsPayment) (*model.BankSmsPayment, error) {
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO bank_sms_payments (sms_id, raw_text, amount, currency, transaction_ref, sender_name, sender_phone, paid_at, processed, processing_result, lock_id, user_id, wallet_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, sms.SmsID, sms.RawText, sms.Amount, sms.Currency, sms.TransactionRef,
		sms.SenderName, sms.SenderPhone, sms.PaidAt, sms.Processed,
		sms.ProcessingResult, sms.LockID, sms.UserID, sms.WalletID, sms.CreatedAt)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record bank SMS payment", err)
	}
	return sms, nil
}

// UpdateBankSmsPayment writes back the processing outcome of an SMS record.
func (d Datasource) UpdateBankSmsPayment(ctx context.Context, sms *model.BankSmsPayment) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE bank_sms_payments
		SET amount = $2, currency = $3, transaction_ref = $4, processed = $5,
			processing_result = $6, lock_id = $7, user_id = $8, wallet_id = $9
		WHERE sms_id = $1
	`, sms.SmsID, sms.Amount, sms.Currency, sms.TransactionRef, sms.Processed,
		sms.ProcessingResult, sms.LockID, sms.UserID, sms.WalletID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update bank SMS payment", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read update result", err)
	}
	if affected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound,
			fmt.Sprintf("Bank SMS payment '%s' not found", sms.SmsID), nil)
	}
	return nil
}

// ProcessedSmsExistsByRef reports whether an SMS carrying this bank
// transaction reference was already processed successfully. The relay app
// redelivers on flaky networks; this is the dedupe check.
func (d Datasource) ProcessedSmsExistsByRef(ctx context.Context, transactionRef string) (bool, error) {
	var exists bool
	err := d.Conn.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bank_sms_payments
			WHERE transaction_ref = $1 AND processed = TRUE
		)
	`, transactionRef).Scan(&exists)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to check SMS reference", err)
	}
	return exists, nil
}
