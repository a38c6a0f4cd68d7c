package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	TransactionTypeCredit = "CREDIT"
	TransactionTypeDebit  = "DEBIT"
)

// Wallet holds a user's balance in a single currency together with its
// append-only transaction log. Balance mutations happen only through Credit
// and Debit, which adjust the balance and append the matching transaction in
// one step, so `balance == sum(credits) - sum(debits)` holds at all times.
type Wallet struct {
	ID           int64               `json:"-"`
	WalletID     string              `json:"wallet_id"`
	UserID       string              `json:"user_id"`
	Currency     string              `json:"currency"`
	Balance      decimal.Decimal     `json:"balance"`
	IsActive     bool                `json:"is_active"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
	Transactions []WalletTransaction `json:"transactions,omitempty"`
}

// WalletTransaction is a single immutable ledger entry. ReferenceID and
// ReferenceType link the entry to the domain object that caused it (a top-up,
// an order, a dispute settlement).
type WalletTransaction struct {
	ID            int64           `json:"-"`
	TransactionID string          `json:"transaction_id"`
	WalletID      string          `json:"wallet_id"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Reason        string          `json:"reason"`
	ReferenceID   string          `json:"reference_id,omitempty"`
	ReferenceType string          `json:"reference_type,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// NewWallet creates an empty active wallet for a user in the given currency.
func NewWallet(userID, currency string) *Wallet {
	now := time.Now()
	return &Wallet{
		WalletID:  GenerateUUIDWithSuffix("wlt"),
		UserID:    userID,
		Currency:  currency,
		Balance:   decimal.Zero,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// BalanceMoney returns the current balance as a Money value.
func (w *Wallet) BalanceMoney() Money {
	return Money{Amount: w.Balance, Currency: w.Currency}
}

func (w *Wallet) checkMutable(amount Money) error {
	if !w.IsActive {
		return ErrWalletInactive
	}
	if !amount.IsPositive() {
		return fmt.Errorf("amount must be positive, got %s", amount)
	}
	if amount.Currency != w.Currency {
		return fmt.Errorf("%w: wallet is %s, amount is %s", ErrCurrencyMismatch, w.Currency, amount.Currency)
	}
	return nil
}

func (w *Wallet) appendTransaction(txnType string, amount Money, reason, referenceID, referenceType string) *WalletTransaction {
	txn := WalletTransaction{
		TransactionID: GenerateUUIDWithSuffix("txn"),
		WalletID:      w.WalletID,
		Type:          txnType,
		Amount:        amount.Amount,
		Currency:      amount.Currency,
		Reason:        reason,
		ReferenceID:   referenceID,
		ReferenceType: referenceType,
		CreatedAt:     time.Now(),
	}
	w.Transactions = append(w.Transactions, txn)
	w.UpdatedAt = txn.CreatedAt
	return &w.Transactions[len(w.Transactions)-1]
}

// Credit increases the balance and appends a CREDIT entry. Pure in-memory
// mutation; durability is the caller's transaction to manage.
func (w *Wallet) Credit(amount Money, reason, referenceID, referenceType string) (*WalletTransaction, error) {
	if err := w.checkMutable(amount); err != nil {
		return nil, err
	}
	w.Balance = w.Balance.Add(amount.Amount)
	return w.appendTransaction(TransactionTypeCredit, amount, reason, referenceID, referenceType), nil
}

// Debit decreases the balance and appends a DEBIT entry. Fails with
// ErrInsufficientFunds when the balance would go negative.
func (w *Wallet) Debit(amount Money, reason, referenceID, referenceType string) (*WalletTransaction, error) {
	if err := w.checkMutable(amount); err != nil {
		return nil, err
	}
	if w.Balance.LessThan(amount.Amount) {
		return nil, fmt.Errorf("%w: available %s, required %s", ErrInsufficientFunds, w.Balance, amount.Amount)
	}
	w.Balance = w.Balance.Sub(amount.Amount)
	return w.appendTransaction(TransactionTypeDebit, amount, reason, referenceID, referenceType), nil
}

// HasSufficientFunds reports whether a debit of amount can succeed right now.
func (w *Wallet) HasSufficientFunds(amount Money) bool {
	return w.IsActive && amount.Currency == w.Currency && !w.Balance.LessThan(amount.Amount)
}
