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

	"github.com/lib/pq"

	"github.com/hisaab-io/hisaab/internal/apierror"
	"github.com/hisaab-io/hisaab/model"
)

// CreateWallet inserts a new wallet record. A user may hold at most one
// wallet per currency; a second insert for the same pair returns a conflict.
//
// Parameters:
// - ctx: Context for cancellation.
// - wallet: The wallet to persist, as produced by model.NewWallet.
//
// Returns:
// - *model.Wallet: The persisted wallet.
// - error: An APIError on conflict or database failure.
func (d Datasource) CreateWallet(ctx context.Context, wallet *model.Wallet) (*model.Wallet, error) {
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO wallets (wallet_id, user_id, currency, balance, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, wallet.WalletID, wallet.UserID, wallet.Currency, wallet.Balance, wallet.IsActive, wallet.CreatedAt, wallet.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, apierror.NewAPIError(apierror.ErrConflict,
				fmt.Sprintf("Wallet for user '%s' in %s already exists", wallet.UserID, wallet.Currency), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create wallet", err)
	}
	return wallet, nil
}

// GetWalletByID retrieves a wallet by its public wallet ID.
func (d Datasource) GetWalletByID(ctx context.Context, walletID string) (*model.Wallet, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT id, wallet_id, user_id, currency, balance, is_active, created_at, updated_at
		FROM wallets WHERE wallet_id = $1
	`, walletID)
	return scanWalletRow(row, walletID)
}

// GetWalletByUserID retrieves the wallet a user holds in the given currency.
func (d Datasource) GetWalletByUserID(ctx context.Context, userID, currency string) (*model.Wallet, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT id, wallet_id, user_id, currency, balance, is_active, created_at, updated_at
		FROM wallets WHERE user_id = $1 AND currency = $2
	`, userID, currency)
	return scanWalletRow(row, userID)
}

func scanWalletRow(row *sql.Row, identifier string) (*model.Wallet, error) {
	wallet := model.Wallet{}
	err := row.Scan(&wallet.ID, &wallet.WalletID, &wallet.UserID, &wallet.Currency,
		&wallet.Balance, &wallet.IsActive, &wallet.CreatedAt, &wallet.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound,
				fmt.Sprintf("Wallet '%s' not found", identifier), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve wallet", err)
	}
	return &wallet, nil
}

// GetWalletTransactions lists ledger entries for a wallet, newest first.
func (d Datasource) GetWalletTransactions(ctx context.Context, walletID string, limit, offset int) ([]model.WalletTransaction, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT id, transaction_id, wallet_id, type, amount, currency, reason,
			COALESCE(reference_id, ''), COALESCE(reference_type, ''), created_at
		FROM wallet_transactions
		WHERE wallet_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, walletID, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve wallet transactions", err)
	}
	defer rows.Close()

	transactions := []model.WalletTransaction{}
	for rows.Next() {
		txn := model.WalletTransaction{}
		err = rows.Scan(&txn.ID, &txn.TransactionID, &txn.WalletID, &txn.Type, &txn.Amount,
			&txn.Currency, &txn.Reason, &txn.ReferenceID, &txn.ReferenceType, &txn.CreatedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan wallet transaction", err)
		}
		transactions = append(transactions, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error iterating wallet transactions", err)
	}
	return transactions, nil
}

// CreditWallet atomically increases a wallet balance and appends the matching
// CREDIT ledger entry. The wallet row is locked for the duration of the
// transaction so concurrent mutations serialize. When outboxMsg is non-nil it
// is inserted in the same transaction, so the event is queued if and only if
// the credit committed.
//
// Returns the created ledger entry, or an APIError if the wallet is missing,
// inactive or the currencies differ.
func (d Datasource) CreditWallet(ctx context.Context, walletID string, amount model.Money, reason, referenceID, referenceType string, outboxMsg *model.OutboxMessage) (*model.WalletTransaction, error) {
	return d.mutateWallet(ctx, walletID, amount, reason, referenceID, referenceType, outboxMsg, false)
}

// DebitWallet atomically decreases a wallet balance and appends the matching
// DEBIT ledger entry, under the same locking discipline as CreditWallet. The
// balance check happens on the locked row, so the balance can never go
// negative even under concurrent debits.
func (d Datasource) DebitWallet(ctx context.Context, walletID string, amount model.Money, reason, referenceID, referenceType string, outboxMsg *model.OutboxMessage) (*model.WalletTransaction, error) {
	return d.mutateWallet(ctx, walletID, amount, reason, referenceID, referenceType, outboxMsg, true)
}

func (d Datasource) mutateWallet(ctx context.Context, walletID string, amount model.Money, reason, referenceID, referenceType string, outboxMsg *model.OutboxMessage, debit bool) (*model.WalletTransaction, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	wallet, err := lockWalletRow(ctx, tx, walletID)
	if err != nil {
		return nil, err
	}

	var txn *model.WalletTransaction
	if debit {
		txn, err = wallet.Debit(amount, reason, referenceID, referenceType)
	} else {
		txn, err = wallet.Credit(amount, reason, referenceID, referenceType)
	}
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrBadRequest, err.Error(), err)
	}

	if err := updateWalletBalance(ctx, tx, wallet); err != nil {
		return nil, err
	}
	if err := insertWalletTransaction(ctx, tx, txn); err != nil {
		return nil, err
	}
	if outboxMsg != nil {
		if err := insertOutboxMessageTx(ctx, tx, outboxMsg); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit wallet mutation", err)
	}
	return txn, nil
}

// lockWalletRow selects a wallet FOR UPDATE within tx, blocking concurrent
// writers until the surrounding transaction resolves.
func lockWalletRow(ctx context.Context, tx *sql.Tx, walletID string) (*model.Wallet, error) {
	wallet := model.Wallet{}
	err := tx.QueryRowContext(ctx, `
		SELECT id, wallet_id, user_id, currency, balance, is_active, created_at, updated_at
		FROM wallets WHERE wallet_id = $1 FOR UPDATE
	`, walletID).Scan(&wallet.ID, &wallet.WalletID, &wallet.UserID, &wallet.Currency,
		&wallet.Balance, &wallet.IsActive, &wallet.CreatedAt, &wallet.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound,
				fmt.Sprintf("Wallet '%s' not found", walletID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to lock wallet", err)
	}
	return &wallet, nil
}

func updateWalletBalance(ctx context.Context, tx *sql.Tx, wallet *model.Wallet) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE wallets SET balance = $2, updated_at = $3 WHERE wallet_id = $1
	`, wallet.WalletID, wallet.Balance, wallet.UpdatedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update wallet balance", err)
	}
	return nil
}

func insertWalletTransaction(ctx context.Context, tx *sql.Tx, txn *model.WalletTransaction) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO wallet_transactions (transaction_id, wallet_id, type, amount, currency, reason, reference_id, reference_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, txn.TransactionID, txn.WalletID, txn.Type, txn.Amount, txn.Currency, txn.Reason,
		txn.ReferenceID, txn.ReferenceType, txn.CreatedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to insert wallet transaction", err)
	}
	return nil
}
