package model

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
)

const (
	LockStatusLocked    = "LOCKED"
	LockStatusCompleted = "COMPLETED"
	LockStatusExpired   = "EXPIRED"
)

// WalletTopupLock reserves an expected incoming amount for a short window so
// unstructured payment notifications (bank SMS carries no user id) can be
// matched back to the user who initiated the top-up. At most one active lock
// may exist per (user, amount); ambiguity between users is settled
// oldest-lock-first.
type WalletTopupLock struct {
	ID                   int64           `json:"-"`
	LockID               string          `json:"lock_id"`
	UserID               string          `json:"user_id"`
	Amount               decimal.Decimal `json:"amount"`
	Currency             string          `json:"currency"`
	Status               string          `json:"status"`
	TransactionReference string          `json:"transaction_reference"`
	LockedAt             time.Time       `json:"locked_at"`
	ExpiresAt            time.Time       `json:"expires_at"`
}

// NewWalletTopupLock reserves amount for userID until ttl elapses. The
// transaction reference ("WTU<timestamp><rand>") is shown to the user so they
// can quote it in the payment description when their bank supports it.
func NewWalletTopupLock(userID string, amount Money, ttl time.Duration) *WalletTopupLock {
	now := time.Now()
	return &WalletTopupLock{
		LockID:               GenerateUUIDWithSuffix("lck"),
		UserID:               userID,
		Amount:               amount.Amount,
		Currency:             amount.Currency,
		Status:               LockStatusLocked,
		TransactionReference: generateLockReference(now),
		LockedAt:             now,
		ExpiresAt:            now.Add(ttl),
	}
}

func generateLockReference(now time.Time) string {
	return fmt.Sprintf("WTU%s%04d", now.UTC().Format("20060102150405"), rand.Intn(10000))
}

// AmountMoney returns the reserved amount as a Money value.
func (l *WalletTopupLock) AmountMoney() Money {
	return Money{Amount: l.Amount, Currency: l.Currency}
}

// IsExpired reports whether the reservation window has passed.
func (l *WalletTopupLock) IsExpired() bool {
	return time.Now().After(l.ExpiresAt)
}

// IsActive reports whether the lock can still be consumed by a payment.
func (l *WalletTopupLock) IsActive() bool {
	return l.Status == LockStatusLocked && !l.IsExpired()
}

// MarkCompleted consumes the lock after a matching payment arrived.
func (l *WalletTopupLock) MarkCompleted() error {
	if l.Status != LockStatusLocked {
		return fmt.Errorf("%w: status is %s", ErrLockNotActive, l.Status)
	}
	if l.IsExpired() {
		return fmt.Errorf("%w: expired at %s", ErrLockNotActive, l.ExpiresAt.Format(time.RFC3339))
	}
	l.Status = LockStatusCompleted
	return nil
}

// MarkExpired retires the lock. Completed locks stay completed.
func (l *WalletTopupLock) MarkExpired() error {
	if l.Status == LockStatusCompleted {
		return fmt.Errorf("%w: cannot expire a completed lock", ErrLockNotActive)
	}
	l.Status = LockStatusExpired
	return nil
}
