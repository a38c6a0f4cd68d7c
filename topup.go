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
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hisaab-io/hisaab/config"
	"github.com/hisaab-io/hisaab/internal/apierror"
	redlock "github.com/hisaab-io/hisaab/internal/lock"
	"github.com/hisaab-io/hisaab/internal/notification"
	"github.com/hisaab-io/hisaab/model"
)

// AdminApprovedReference marks confirmations that came from an admin review
// rather than a gateway settlement.
const AdminApprovedReference = "AdminApproved"

// getOrCreateWallet returns the user's wallet in the given currency, creating
// it on first use.
func (l *Hisaab) getOrCreateWallet(ctx context.Context, userID, currency string) (*model.Wallet, error) {
	wallet, err := l.datasource.GetWalletByUserID(ctx, userID, currency)
	if err == nil {
		return wallet, nil
	}
	var apiErr apierror.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != apierror.ErrNotFound {
		return nil, err
	}
	return l.datasource.CreateWallet(ctx, model.NewWallet(userID, currency))
}

// TopUpInitiate starts a top-up for a user. The wallet is created lazily on
// first use.
func (l *Hisaab) TopUpInitiate(ctx context.Context, userID string, amount model.Money, channel string) (*model.TopUp, error) {
	ctx, span := tracer.Start(ctx, "Initiating top-up")
	defer span.End()

	wallet, err := l.getOrCreateWallet(ctx, userID, amount.Currency)
	if err != nil {
		return nil, logAndRecordError(span, "resolve wallet error", err)
	}
	if !wallet.IsActive {
		return nil, apierror.NewAPIError(apierror.ErrBadRequest,
			fmt.Sprintf("Wallet '%s' is inactive", wallet.WalletID), model.ErrWalletInactive)
	}

	topUp, err := model.NewTopUp(userID, wallet.WalletID, amount, channel)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), err)
	}
	created, err := l.datasource.CreateTopUp(ctx, topUp)
	if err != nil {
		return nil, logAndRecordError(span, "create top-up error", err)
	}
	return created, nil
}

// TopUpLockInitiate reserves an expected incoming amount for a bank-transfer
// top-up. It creates a WalletTopupLock with a generated WTU reference and a
// paired top-up in the initiated state; an incoming bank SMS for the same
// amount is later matched back through the lock. At most one active lock per
// (user, amount) is allowed.
func (l *Hisaab) TopUpLockInitiate(ctx context.Context, userID string, amount model.Money) (*model.WalletTopupLock, *model.TopUp, error) {
	ctx, span := tracer.Start(ctx, "Initiating top-up lock")
	defer span.End()

	cfg, err := config.Fetch()
	if err != nil {
		return nil, nil, err
	}

	existing, err := l.datasource.GetActiveLockByUserAndAmount(ctx, userID, amount)
	if err == nil {
		return nil, nil, apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("An active lock for %s already exists (reference %s)", amount, existing.TransactionReference), nil)
	}
	var apiErr apierror.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != apierror.ErrNotFound {
		return nil, nil, logAndRecordError(span, "check existing lock error", err)
	}

	wallet, err := l.getOrCreateWallet(ctx, userID, amount.Currency)
	if err != nil {
		return nil, nil, logAndRecordError(span, "resolve wallet error", err)
	}

	ttl := time.Duration(cfg.TopupLock.ExpiryMinutes) * time.Minute
	lock := model.NewWalletTopupLock(userID, amount, ttl)
	if _, err := l.datasource.CreateTopupLock(ctx, lock); err != nil {
		return nil, nil, logAndRecordError(span, "create lock error", err)
	}

	topUp, err := model.NewTopUp(userID, wallet.WalletID, amount, model.ChannelBankSms)
	if err != nil {
		return nil, nil, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), err)
	}
	// The paired top-up carries the lock's WTU reference from the start so
	// the SMS processor can resolve it later.
	topUp.ExternalReference = lock.TransactionReference
	if _, err := l.datasource.CreateTopUp(ctx, topUp); err != nil {
		return nil, nil, logAndRecordError(span, "create paired top-up error", err)
	}
	return lock, topUp, nil
}

// GetTopUp retrieves a top-up by its ID. Terminal top-ups are immutable and
// served from cache on repeated reads; live ones always hit the database.
func (l *Hisaab) GetTopUp(ctx context.Context, topUpID string) (*model.TopUp, error) {
	cacheKey := fmt.Sprintf("topup:final:%s", topUpID)
	var cached model.TopUp
	if err := l.cache.Get(ctx, cacheKey, &cached); err == nil && cached.TopUpID != "" {
		return &cached, nil
	}

	topUp, err := l.datasource.GetTopUpByID(ctx, topUpID)
	if err != nil {
		return nil, err
	}
	if topUp.IsTerminal() {
		if err := l.cache.Set(ctx, cacheKey, topUp, 1*time.Hour); err != nil {
			logrus.Error(err)
		}
	}
	return topUp, nil
}

// GetTopUpsByUserID lists a user's top-ups, newest first.
func (l *Hisaab) GetTopUpsByUserID(ctx context.Context, userID string, limit, offset int) ([]model.TopUp, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return l.datasource.GetTopUpsByUserID(ctx, userID, limit, offset)
}

// TopUpConfirm settles a top-up and credits the wallet. Idempotent: a top-up
// that is already confirmed is returned as-is without re-crediting, so
// gateway retries and webhook replays are safe. Concurrent confirms for the
// same top-up serialize on a redis lock in front of the database row lock.
func (l *Hisaab) TopUpConfirm(ctx context.Context, topUpID, externalReference string) (*model.TopUp, error) {
	ctx, span := tracer.Start(ctx, "Confirming top-up")
	defer span.End()

	locker := redlock.NewLocker(l.redis, fmt.Sprintf("topup:%s", topUpID), model.GenerateUUIDWithSuffix("loc"))
	if err := locker.WaitLock(ctx, 30*time.Second, 10*time.Second); err != nil {
		return nil, logAndRecordError(span, "acquire confirm lock error", err)
	}
	defer func(locker *redlock.Locker, ctx context.Context) {
		if err := locker.Unlock(ctx); err != nil {
			logrus.Error(err)
		}
	}(locker, ctx)

	msg, err := model.NewOutboxMessage(model.OutboxTypeTopUpConfirmed, map[string]interface{}{
		"top_up_id":          topUpID,
		"external_reference": externalReference,
	})
	if err != nil {
		return nil, logAndRecordError(span, "build outbox message error", err)
	}

	topUp, txn, err := l.datasource.ConfirmTopUp(ctx, topUpID, externalReference, msg)
	if err != nil {
		return nil, logAndRecordError(span, "confirm top-up error", err)
	}
	if txn == nil {
		logrus.Infof("top-up %s already confirmed, skipping credit", topUpID)
		return topUp, nil
	}

	l.postWalletActions(ctx, "topup.confirmed", topUp)
	if err := l.queue.EnqueueOutboxDispatch(ctx); err != nil {
		notification.NotifyError(err)
	}
	return topUp, nil
}

// TopUpFail moves a top-up to the failed state. No wallet mutation.
func (l *Hisaab) TopUpFail(ctx context.Context, topUpID, reason string) (*model.TopUp, error) {
	ctx, span := tracer.Start(ctx, "Failing top-up")
	defer span.End()

	topUp, err := l.datasource.GetTopUpByID(ctx, topUpID)
	if err != nil {
		return nil, err
	}
	if err := topUp.Fail(reason); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrConflict, err.Error(), err)
	}
	if err := l.datasource.UpdateTopUp(ctx, topUp); err != nil {
		return nil, logAndRecordError(span, "update top-up error", err)
	}

	msg, err := model.NewOutboxMessage(model.OutboxTypeTopUpFailed, topUp)
	if err == nil {
		if err := l.datasource.InsertOutboxMessage(ctx, msg); err != nil {
			notification.NotifyError(err)
		}
	}
	return topUp, nil
}

// TopUpCancel cancels a pending top-up at the user's request. Terminal, like
// a failure, but recorded with its own status.
func (l *Hisaab) TopUpCancel(ctx context.Context, topUpID, reason string) (*model.TopUp, error) {
	ctx, span := tracer.Start(ctx, "Cancelling top-up")
	defer span.End()

	topUp, err := l.datasource.GetTopUpByID(ctx, topUpID)
	if err != nil {
		return nil, err
	}
	if err := topUp.Cancel(reason); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrConflict, err.Error(), err)
	}
	if err := l.datasource.UpdateTopUp(ctx, topUp); err != nil {
		return nil, logAndRecordError(span, "update top-up error", err)
	}
	return topUp, nil
}

// TopUpRequireApproval parks an initiated top-up for admin review. Gateways
// keep acknowledging callbacks for it but nothing auto-confirms until an
// admin rules on it through ReviewTopUp.
func (l *Hisaab) TopUpRequireApproval(ctx context.Context, topUpID string) (*model.TopUp, error) {
	topUp, err := l.datasource.GetTopUpByID(ctx, topUpID)
	if err != nil {
		return nil, err
	}
	if err := topUp.RequireAdminApproval(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrConflict, err.Error(), err)
	}
	if err := l.datasource.UpdateTopUp(ctx, topUp); err != nil {
		return nil, err
	}
	return topUp, nil
}

// ReviewTopUp settles an admin review. Approval confirms the top-up with the
// AdminApproved reference and credits the wallet; rejection fails it with the
// reviewer's notes.
func (l *Hisaab) ReviewTopUp(ctx context.Context, topUpID string, approve bool, notes string) (*model.TopUp, error) {
	ctx, span := tracer.Start(ctx, "Reviewing top-up")
	defer span.End()

	topUp, err := l.datasource.GetTopUpByID(ctx, topUpID)
	if err != nil {
		return nil, err
	}
	if topUp.IsTerminal() {
		return nil, apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("Top-up '%s' is already %s", topUpID, topUp.Status), model.ErrInvalidTransition)
	}

	if approve {
		// Suffix with the top-up id so admin approvals never collide on the
		// confirmed-reference uniqueness rule.
		reference := fmt.Sprintf("%s-%s", AdminApprovedReference, topUpID)
		return l.TopUpConfirm(ctx, topUpID, reference)
	}
	reason := notes
	if reason == "" {
		reason = "Rejected by admin"
	}
	return l.TopUpFail(ctx, topUpID, reason)
}
