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
	"fmt"
	"time"

	"github.com/hisaab-io/hisaab/internal/apierror"
	"github.com/hisaab-io/hisaab/model"
)

// InsertOutboxMessage queues a message outside any financial transaction.
// Ledger writes queue their messages through the outboxMsg arguments on
// CreditWallet, DebitWallet and ConfirmTopUp instead, so queueing shares
// their transaction.
func (d Datasource) InsertOutboxMessage(ctx context.Context, msg *model.OutboxMessage) error {
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO outbox_messages (message_id, type, payload, occurred_on, processed)
		VALUES ($1, $2, $3, $4, $5)
	`, msg.MessageID, msg.Type, msg.Payload, msg.OccurredOn, msg.Processed)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to insert outbox message", err)
	}
	return nil
}

func insertOutboxMessageTx(ctx context.Context, tx *sql.Tx, msg *model.OutboxMessage) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO outbox_messages (message_id, type, payload, occurred_on, processed)
		VALUES ($1, $2, $3, $4, $5)
	`, msg.MessageID, msg.Type, msg.Payload, msg.OccurredOn, msg.Processed)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to insert outbox message", err)
	}
	return nil
}

// GetUnprocessedOutboxMessages returns pending messages oldest first, capped
// at limit, for the dispatcher to deliver.
func (d Datasource) GetUnprocessedOutboxMessages(ctx context.Context, limit int) ([]model.OutboxMessage, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT id, message_id, type, payload, occurred_on, processed, processed_on, COALESCE(error, '')
		FROM outbox_messages
		WHERE processed = FALSE
		ORDER BY occurred_on ASC, id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve outbox messages", err)
	}
	defer rows.Close()

	messages := []model.OutboxMessage{}
	for rows.Next() {
		msg := model.OutboxMessage{}
		var processedOn sql.NullTime
		err = rows.Scan(&msg.ID, &msg.MessageID, &msg.Type, &msg.Payload,
			&msg.OccurredOn, &msg.Processed, &processedOn, &msg.Error)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan outbox message", err)
		}
		if processedOn.Valid {
			msg.ProcessedOn = &processedOn.Time
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error iterating outbox messages", err)
	}
	return messages, nil
}

// MarkOutboxProcessed records a successful dispatch and clears any previous
// dispatch error.
func (d Datasource) MarkOutboxProcessed(ctx context.Context, messageID string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE outbox_messages SET processed = TRUE, processed_on = $2, error = NULL
		WHERE message_id = $1
	`, messageID, time.Now())
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark outbox message processed", err)
	}
	return checkOutboxAffected(result, messageID)
}

// MarkOutboxFailed records a dispatch error. The row stays unprocessed and
// is picked up again on the next dispatcher run; messages are never deleted.
func (d Datasource) MarkOutboxFailed(ctx context.Context, messageID string, dispatchErr string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE outbox_messages SET error = $2 WHERE message_id = $1
	`, messageID, dispatchErr)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark outbox message failed", err)
	}
	return checkOutboxAffected(result, messageID)
}

func checkOutboxAffected(result sql.Result, messageID string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read update result", err)
	}
	if affected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound,
			fmt.Sprintf("Outbox message '%s' not found", messageID), nil)
	}
	return nil
}
