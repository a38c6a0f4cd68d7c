package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BankSmsPayment is the raw record of an SMS forwarded by the phone relay,
// kept whether or not it matched a lock. Unmatched messages are the admin's
// manual reconciliation queue.
type BankSmsPayment struct {
	ID               int64           `json:"-"`
	SmsID            string          `json:"sms_id"`
	RawText          string          `json:"raw_text"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	TransactionRef   string          `json:"transaction_ref,omitempty"`
	SenderName       string          `json:"sender_name,omitempty"`
	SenderPhone      string          `json:"sender_phone,omitempty"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
	Processed        bool            `json:"processed"`
	ProcessingResult string          `json:"processing_result,omitempty"`
	LockID           string          `json:"lock_id,omitempty"`
	UserID           string          `json:"user_id,omitempty"`
	WalletID         string          `json:"wallet_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// NewBankSmsPayment records an incoming SMS before any parsing happened.
func NewBankSmsPayment(rawText string) *BankSmsPayment {
	return &BankSmsPayment{
		SmsID:     GenerateUUIDWithSuffix("sms"),
		RawText:   rawText,
		CreatedAt: time.Now(),
	}
}
