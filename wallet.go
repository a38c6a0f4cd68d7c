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
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/hisaab-io/hisaab/internal/notification"
	"github.com/hisaab-io/hisaab/model"
)

var tracer = otel.Tracer("hisaab")

func logAndRecordError(span trace.Span, msg string, err error) error {
	wrapped := fmt.Errorf("%s: %w", msg, err)
	span.RecordError(wrapped)
	return wrapped
}

func (l *Hisaab) postWalletActions(_ context.Context, event string, payload interface{}) {
	go func() {
		err := SendWebhook(NewWebhook{
			Event:   event,
			Payload: payload,
		})
		if err != nil {
			notification.NotifyError(err)
		}
	}()
}

// CreateWallet opens a wallet for a user in the given currency. A user holds
// at most one wallet per currency.
func (l *Hisaab) CreateWallet(ctx context.Context, userID, currency string) (*model.Wallet, error) {
	ctx, span := tracer.Start(ctx, "Creating wallet")
	defer span.End()

	wallet := model.NewWallet(userID, currency)
	created, err := l.datasource.CreateWallet(ctx, wallet)
	if err != nil {
		return nil, logAndRecordError(span, "create wallet error", err)
	}
	l.postWalletActions(ctx, "wallet.created", created)
	return created, nil
}

// GetWallet retrieves a wallet by its ID.
func (l *Hisaab) GetWallet(ctx context.Context, walletID string) (*model.Wallet, error) {
	return l.datasource.GetWalletByID(ctx, walletID)
}

// GetWalletByUserID retrieves the wallet a user holds in the given currency.
func (l *Hisaab) GetWalletByUserID(ctx context.Context, userID, currency string) (*model.Wallet, error) {
	return l.datasource.GetWalletByUserID(ctx, userID, currency)
}

// GetWalletTransactions lists a wallet's ledger entries, newest first.
func (l *Hisaab) GetWalletTransactions(ctx context.Context, walletID string, limit, offset int) ([]model.WalletTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return l.datasource.GetWalletTransactions(ctx, walletID, limit, offset)
}

// CreditWallet credits a wallet and queues a wallet.credited event in the
// same database transaction.
func (l *Hisaab) CreditWallet(ctx context.Context, walletID string, amount model.Money, reason, referenceID, referenceType string) (*model.WalletTransaction, error) {
	ctx, span := tracer.Start(ctx, "Crediting wallet")
	defer span.End()

	msg, err := model.NewOutboxMessage(model.OutboxTypeWalletCredited, map[string]interface{}{
		"wallet_id":    walletID,
		"amount":       amount.Amount,
		"currency":     amount.Currency,
		"reason":       reason,
		"reference_id": referenceID,
	})
	if err != nil {
		return nil, logAndRecordError(span, "build outbox message error", err)
	}

	txn, err := l.datasource.CreditWallet(ctx, walletID, amount, reason, referenceID, referenceType, msg)
	if err != nil {
		return nil, logAndRecordError(span, "credit wallet error", err)
	}
	if err := l.queue.EnqueueOutboxDispatch(ctx); err != nil {
		notification.NotifyError(err)
	}
	return txn, nil
}

// DebitWallet debits a wallet and queues a wallet.debited event in the same
// database transaction. The balance check runs on the locked wallet row, so
// overdrafts are impossible even under concurrent debits.
func (l *Hisaab) DebitWallet(ctx context.Context, walletID string, amount model.Money, reason, referenceID, referenceType string) (*model.WalletTransaction, error) {
	ctx, span := tracer.Start(ctx, "Debiting wallet")
	defer span.End()

	msg, err := model.NewOutboxMessage(model.OutboxTypeWalletDebited, map[string]interface{}{
		"wallet_id":    walletID,
		"amount":       amount.Amount,
		"currency":     amount.Currency,
		"reason":       reason,
		"reference_id": referenceID,
	})
	if err != nil {
		return nil, logAndRecordError(span, "build outbox message error", err)
	}

	txn, err := l.datasource.DebitWallet(ctx, walletID, amount, reason, referenceID, referenceType, msg)
	if err != nil {
		return nil, logAndRecordError(span, "debit wallet error", err)
	}
	if err := l.queue.EnqueueOutboxDispatch(ctx); err != nil {
		notification.NotifyError(err)
	}
	return txn, nil
}
