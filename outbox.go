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
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/hisaab-io/hisaab/config"
	"github.com/hisaab-io/hisaab/internal/notification"
	"github.com/hisaab-io/hisaab/model"
)

// DispatchOutbox delivers a batch of unprocessed outbox messages to the
// configured notification webhook. Each delivery is retried with exponential
// backoff; a message that still fails keeps its row with the error recorded
// and is picked up again on the next round. Messages are never deleted.
//
// Returns how many messages were successfully dispatched.
func (l *Hisaab) DispatchOutbox(ctx context.Context, batchSize int) (int, error) {
	ctx, span := tracer.Start(ctx, "Dispatching outbox")
	defer span.End()

	if batchSize <= 0 {
		cfg, err := config.Fetch()
		if err != nil {
			return 0, err
		}
		batchSize = cfg.Queue.OutboxBatchSize
	}

	messages, err := l.datasource.GetUnprocessedOutboxMessages(ctx, batchSize)
	if err != nil {
		return 0, logAndRecordError(span, "fetch outbox messages error", err)
	}

	dispatched := 0
	for i := range messages {
		msg := &messages[i]
		if err := l.deliverOutboxMessage(ctx, msg); err != nil {
			logrus.Warnf("outbox message %s delivery failed: %v", msg.MessageID, err)
			if markErr := l.datasource.MarkOutboxFailed(ctx, msg.MessageID, err.Error()); markErr != nil {
				notification.NotifyError(markErr)
			}
			continue
		}
		if err := l.datasource.MarkOutboxProcessed(ctx, msg.MessageID); err != nil {
			notification.NotifyError(err)
			continue
		}
		dispatched++
	}
	return dispatched, nil
}

func (l *Hisaab) deliverOutboxMessage(ctx context.Context, msg *model.OutboxMessage) error {
	var payload interface{}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return err
	}

	operation := func() error {
		return processHTTP(NewWebhook{Event: msg.Type, Payload: payload})
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	return backoff.Retry(operation, policy)
}

// SweepExpiredLocks expires every stale amount reservation. Runs as a
// periodic background task; it only touches rows that are already past their
// expiry and still LOCKED, so it never contends with foreground confirms.
func (l *Hisaab) SweepExpiredLocks(ctx context.Context) (int64, error) {
	ctx, span := tracer.Start(ctx, "Sweeping expired top-up locks")
	defer span.End()

	start := time.Now()
	expired, err := l.datasource.ExpireStaleLocks(ctx)
	if err != nil {
		return 0, logAndRecordError(span, "expire locks error", err)
	}
	if expired > 0 {
		logrus.Infof("expired %d stale top-up locks in %s", expired, time.Since(start))
	}
	return expired, nil
}
