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

const topUpColumns = `id, top_up_id, user_id, wallet_id, amount, currency, channel, status,
	COALESCE(external_reference, ''), COALESCE(failure_reason, ''), COALESCE(transaction_id, ''),
	requested_at, confirmed_at, failed_at`

// CreateTopUp persists a new top-up in its initial state.
func (d Datasource) CreateTopUp(ctx context.Context, topUp *model.TopUp) (*model.TopUp, error) {
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO top_ups (top_up_id, user_id, wallet_id, amount, currency, channel, status, external_reference, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, topUp.TopUpID, topUp.UserID, topUp.WalletID, topUp.Amount, topUp.Currency,
		topUp.Channel, topUp.Status, topUp.ExternalReference, topUp.RequestedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, apierror.NewAPIError(apierror.ErrConflict,
				fmt.Sprintf("Top-up '%s' already exists", topUp.TopUpID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create top-up", err)
	}
	return topUp, nil
}

// GetTopUpByID retrieves a top-up by its public ID.
func (d Datasource) GetTopUpByID(ctx context.Context, topUpID string) (*model.TopUp, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+topUpColumns+` FROM top_ups WHERE top_up_id = $1
	`, topUpID)
	topUp, err := scanTopUpRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound,
				fmt.Sprintf("Top-up '%s' not found", topUpID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve top-up", err)
	}
	return topUp, nil
}

// GetTopUpByExternalReference retrieves the most recent top-up carrying this
// reference. Used to resolve the top-up paired with a lock's WTU reference.
func (d Datasource) GetTopUpByExternalReference(ctx context.Context, externalReference string) (*model.TopUp, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+topUpColumns+` FROM top_ups
		WHERE external_reference = $1
		ORDER BY requested_at DESC, id DESC
		LIMIT 1
	`, externalReference)
	topUp, err := scanTopUpRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound,
				fmt.Sprintf("Top-up with reference '%s' not found", externalReference), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve top-up", err)
	}
	return topUp, nil
}

// GetTopUpsByUserID lists a user's top-ups, newest first.
func (d Datasource) GetTopUpsByUserID(ctx context.Context, userID string, limit, offset int) ([]model.TopUp, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+topUpColumns+` FROM top_ups
		WHERE user_id = $1
		ORDER BY requested_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve top-ups", err)
	}
	defer rows.Close()

	topUps := []model.TopUp{}
	for rows.Next() {
		topUp := model.TopUp{}
		var confirmedAt, failedAt sql.NullTime
		err = rows.Scan(&topUp.ID, &topUp.TopUpID, &topUp.UserID, &topUp.WalletID,
			&topUp.Amount, &topUp.Currency, &topUp.Channel, &topUp.Status,
			&topUp.ExternalReference, &topUp.FailureReason, &topUp.TransactionID,
			&topUp.RequestedAt, &confirmedAt, &failedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan top-up", err)
		}
		if confirmedAt.Valid {
			topUp.ConfirmedAt = &confirmedAt.Time
		}
		if failedAt.Valid {
			topUp.FailedAt = &failedAt.Time
		}
		topUps = append(topUps, topUp)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error iterating top-ups", err)
	}
	return topUps, nil
}

// UpdateTopUp writes back the mutable fields of a top-up. Used for the
// transitions that do not touch the wallet (pending approval, failed,
// cancelled); confirmation goes through ConfirmTopUp instead.
func (d Datasource) UpdateTopUp(ctx context.Context, topUp *model.TopUp) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE top_ups
		SET status = $2, external_reference = $3, failure_reason = $4, transaction_id = $5,
			confirmed_at = $6, failed_at = $7
		WHERE top_up_id = $1
	`, topUp.TopUpID, topUp.Status, topUp.ExternalReference, topUp.FailureReason,
		topUp.TransactionID, topUp.ConfirmedAt, topUp.FailedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update top-up", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read update result", err)
	}
	if affected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound,
			fmt.Sprintf("Top-up '%s' not found", topUp.TopUpID), nil)
	}
	return nil
}

// ConfirmTopUp settles a top-up and credits the wallet in a single database
// transaction. The sequence:
//
//  1. Lock the top-up row (SELECT ... FOR UPDATE).
//  2. Recheck the status under the lock. Already CONFIRMED is a no-op:
//     the top-up is returned with a nil transaction and nil error, and the
//     wallet is not credited again. Other terminal states are conflicts.
//  3. Reject the settlement reference if another confirmed top-up already
//     consumed it. A partial unique index backs this check up at the
//     storage level.
//  4. Lock the wallet row, credit it, insert the ledger entry and link it
//     back to the top-up.
//  5. Insert the outbox message, if any, so the event is queued exactly when
//     the credit commits.
//
// Duplicate gateway deliveries racing each other serialize on the row lock;
// the loser of the race sees CONFIRMED at step 2 and no-ops.
func (d Datasource) ConfirmTopUp(ctx context.Context, topUpID, externalReference string, outboxMsg *model.OutboxMessage) (*model.TopUp, *model.WalletTransaction, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row := tx.QueryRowContext(ctx, `
		SELECT `+topUpColumns+` FROM top_ups WHERE top_up_id = $1 FOR UPDATE
	`, topUpID)
	topUp, err := scanTopUpRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, apierror.NewAPIError(apierror.ErrNotFound,
				fmt.Sprintf("Top-up '%s' not found", topUpID), err)
		}
		return nil, nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to lock top-up", err)
	}

	if topUp.Status == model.TopUpStatusConfirmed {
		return topUp, nil, nil
	}

	if externalReference != "" {
		var taken bool
		err = tx.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM top_ups
				WHERE external_reference = $1 AND status = 'CONFIRMED' AND top_up_id <> $2
			)
		`, externalReference, topUpID).Scan(&taken)
		if err != nil {
			return nil, nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to check settlement reference", err)
		}
		if taken {
			return nil, nil, apierror.NewAPIError(apierror.ErrConflict,
				fmt.Sprintf("Settlement reference '%s' already confirmed another top-up", externalReference),
				model.ErrDuplicateReference)
		}
	}

	if err := topUp.Confirm(externalReference); err != nil {
		return nil, nil, apierror.NewAPIError(apierror.ErrConflict, err.Error(), err)
	}

	wallet, err := lockWalletRow(ctx, tx, topUp.WalletID)
	if err != nil {
		return nil, nil, err
	}
	txn, err := wallet.Credit(topUp.AmountMoney(),
		fmt.Sprintf("Top-up confirmed via %s", topUp.Channel), topUp.TopUpID, "topup")
	if err != nil {
		return nil, nil, apierror.NewAPIError(apierror.ErrBadRequest, err.Error(), err)
	}
	if err := topUp.SetTransactionID(txn.TransactionID); err != nil {
		return nil, nil, apierror.NewAPIError(apierror.ErrInternalServer, err.Error(), err)
	}

	if err := updateWalletBalance(ctx, tx, wallet); err != nil {
		return nil, nil, err
	}
	if err := insertWalletTransaction(ctx, tx, txn); err != nil {
		return nil, nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE top_ups
		SET status = $2, external_reference = $3, transaction_id = $4, confirmed_at = $5
		WHERE top_up_id = $1
	`, topUp.TopUpID, topUp.Status, topUp.ExternalReference, topUp.TransactionID, topUp.ConfirmedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, nil, apierror.NewAPIError(apierror.ErrConflict,
				fmt.Sprintf("Settlement reference '%s' already confirmed another top-up", externalReference),
				model.ErrDuplicateReference)
		}
		return nil, nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to confirm top-up", err)
	}

	if outboxMsg != nil {
		if err := insertOutboxMessageTx(ctx, tx, outboxMsg); err != nil {
			return nil, nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit confirmation", err)
	}
	return topUp, txn, nil
}

func scanTopUpRow(row *sql.Row) (*model.TopUp, error) {
	topUp := model.TopUp{}
	var confirmedAt, failedAt sql.NullTime
	err := row.Scan(&topUp.ID, &topUp.TopUpID, &topUp.UserID, &topUp.WalletID,
		&topUp.Amount, &topUp.Currency, &topUp.Channel, &topUp.Status,
		&topUp.ExternalReference, &topUp.FailureReason, &topUp.TransactionID,
		&topUp.RequestedAt, &confirmedAt, &failedAt)
	if err != nil {
		return nil, err
	}
	if confirmedAt.Valid {
		topUp.ConfirmedAt = &confirmedAt.Time
	}
	if failedAt.Valid {
		topUp.FailedAt = &failedAt.Time
	}
	return &topUp, nil
}
