package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	ChannelJazzCash  = "JAZZCASH"
	ChannelEasypaisa = "EASYPAISA"
	ChannelBankSms   = "BANK_SMS"
)

const (
	TopUpStatusInitiated            = "INITIATED"
	TopUpStatusPendingAdminApproval = "PENDING_ADMIN_APPROVAL"
	TopUpStatusConfirmed            = "CONFIRMED"
	TopUpStatusFailed               = "FAILED"
	TopUpStatusCancelled            = "CANCELLED"
)

// TopUp is a pending external payment into a wallet. Status moves forward
// only: INITIATED -> PENDING_ADMIN_APPROVAL -> CONFIRMED, or to FAILED /
// CANCELLED from any non-terminal state. Once CONFIRMED the amount, channel
// and external reference are frozen.
type TopUp struct {
	ID                int64           `json:"-"`
	TopUpID           string          `json:"top_up_id"`
	UserID            string          `json:"user_id"`
	WalletID          string          `json:"wallet_id"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Channel           string          `json:"channel"`
	Status            string          `json:"status"`
	ExternalReference string          `json:"external_reference,omitempty"`
	FailureReason     string          `json:"failure_reason,omitempty"`
	TransactionID     string          `json:"transaction_id,omitempty"`
	RequestedAt       time.Time       `json:"requested_at"`
	ConfirmedAt       *time.Time      `json:"confirmed_at,omitempty"`
	FailedAt          *time.Time      `json:"failed_at,omitempty"`
}

// NewTopUp creates a top-up in INITIATED for the given wallet and channel.
func NewTopUp(userID, walletID string, amount Money, channel string) (*TopUp, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("top-up amount must be positive, got %s", amount)
	}
	return &TopUp{
		TopUpID:     GenerateUUIDWithSuffix("tpu"),
		UserID:      userID,
		WalletID:    walletID,
		Amount:      amount.Amount,
		Currency:    amount.Currency,
		Channel:     channel,
		Status:      TopUpStatusInitiated,
		RequestedAt: time.Now(),
	}, nil
}

// AmountMoney returns the requested amount as a Money value.
func (t *TopUp) AmountMoney() Money {
	return Money{Amount: t.Amount, Currency: t.Currency}
}

// IsTerminal reports whether the top-up can no longer change state.
func (t *TopUp) IsTerminal() bool {
	switch t.Status {
	case TopUpStatusConfirmed, TopUpStatusFailed, TopUpStatusCancelled:
		return true
	}
	return false
}

// RequireAdminApproval parks the top-up until an admin reviews it. Only valid
// from INITIATED.
func (t *TopUp) RequireAdminApproval() error {
	if t.Status != TopUpStatusInitiated {
		return fmt.Errorf("%w: cannot require approval in status %s", ErrInvalidTransition, t.Status)
	}
	t.Status = TopUpStatusPendingAdminApproval
	return nil
}

// Confirm settles the top-up with the settlement reference from the payment
// channel. Confirming an already-confirmed top-up is a no-op so duplicate
// gateway deliveries converge on the same state.
func (t *TopUp) Confirm(externalReference string) error {
	if t.Status == TopUpStatusConfirmed {
		return nil
	}
	if t.Status != TopUpStatusInitiated && t.Status != TopUpStatusPendingAdminApproval {
		return fmt.Errorf("%w: cannot confirm in status %s", ErrInvalidTransition, t.Status)
	}
	now := time.Now()
	t.Status = TopUpStatusConfirmed
	t.ExternalReference = externalReference
	t.ConfirmedAt = &now
	return nil
}

// Fail marks the top-up failed with a reason. Valid only from non-terminal
// states.
func (t *TopUp) Fail(reason string) error {
	if t.IsTerminal() {
		return fmt.Errorf("%w: cannot fail in status %s", ErrInvalidTransition, t.Status)
	}
	now := time.Now()
	t.Status = TopUpStatusFailed
	t.FailureReason = reason
	t.FailedAt = &now
	return nil
}

// Cancel marks the top-up cancelled by the user. Valid only from non-terminal
// states.
func (t *TopUp) Cancel(reason string) error {
	if t.IsTerminal() {
		return fmt.Errorf("%w: cannot cancel in status %s", ErrInvalidTransition, t.Status)
	}
	now := time.Now()
	t.Status = TopUpStatusCancelled
	t.FailureReason = reason
	t.FailedAt = &now
	return nil
}

// SetTransactionID links the wallet transaction created by the confirmation
// credit. Only valid once confirmed.
func (t *TopUp) SetTransactionID(transactionID string) error {
	if t.Status != TopUpStatusConfirmed {
		return fmt.Errorf("%w: transaction can only be linked after confirmation, status is %s", ErrInvalidTransition, t.Status)
	}
	t.TransactionID = transactionID
	return nil
}
