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

	"github.com/hisaab-io/hisaab/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	wallet    // Interface for wallet and ledger operations
	topUp     // Interface for top-up lifecycle operations
	topupLock // Interface for amount-reservation locks
	outbox    // Interface for the transactional outbox
	bankSms   // Interface for raw bank SMS records
}

// wallet defines methods for wallets and their transaction log. CreditWallet
// and DebitWallet run as single database transactions: the wallet row is
// locked, the balance updated and the ledger entry inserted atomically,
// together with an optional outbox message.
type wallet interface {
	CreateWallet(ctx context.Context, wallet *model.Wallet) (*model.Wallet, error)
	GetWalletByID(ctx context.Context, walletID string) (*model.Wallet, error)
	GetWalletByUserID(ctx context.Context, userID, currency string) (*model.Wallet, error)
	GetWalletTransactions(ctx context.Context, walletID string, limit, offset int) ([]model.WalletTransaction, error)
	CreditWallet(ctx context.Context, walletID string, amount model.Money, reason, referenceID, referenceType string, outboxMsg *model.OutboxMessage) (*model.WalletTransaction, error)
	DebitWallet(ctx context.Context, walletID string, amount model.Money, reason, referenceID, referenceType string, outboxMsg *model.OutboxMessage) (*model.WalletTransaction, error)
}

// topUp defines methods for the top-up state machine. ConfirmTopUp is the
// critical section: it locks the top-up row (SELECT ... FOR UPDATE), rechecks
// the status under the lock so a racing duplicate delivery no-ops, rejects
// settlement references already consumed by another confirmed top-up, and
// credits the wallet and links the ledger entry in one transaction.
type topUp interface {
	CreateTopUp(ctx context.Context, topUp *model.TopUp) (*model.TopUp, error)
	GetTopUpByID(ctx context.Context, topUpID string) (*model.TopUp, error)
	// GetTopUpByExternalReference resolves the top-up paired with a lock's
	// WTU reference during SMS matching.
	GetTopUpByExternalReference(ctx context.Context, externalReference string) (*model.TopUp, error)
	GetTopUpsByUserID(ctx context.Context, userID string, limit, offset int) ([]model.TopUp, error)
	// ConfirmTopUp returns the confirmed top-up and the credit transaction.
	// A nil transaction with a nil error means the top-up was already
	// confirmed and nothing was re-credited.
	ConfirmTopUp(ctx context.Context, topUpID, externalReference string, outboxMsg *model.OutboxMessage) (*model.TopUp, *model.WalletTransaction, error)
	UpdateTopUp(ctx context.Context, topUp *model.TopUp) error
}

// topupLock defines methods for WalletTopupLock rows. CompleteLock and
// ExpireStaleLocks are conditional updates guarded by the current status, so
// the background sweep and foreground confirms coordinate purely through row
// state.
type topupLock interface {
	CreateTopupLock(ctx context.Context, lock *model.WalletTopupLock) (*model.WalletTopupLock, error)
	// GetActiveLockByAmount returns the oldest active lock reserving exactly
	// this amount; first-come-first-served among equal-amount locks.
	GetActiveLockByAmount(ctx context.Context, amount model.Money) (*model.WalletTopupLock, error)
	// GetActiveLockByUserAndAmount enforces the one-active-lock-per-(user,
	// amount) invariant at initiation time.
	GetActiveLockByUserAndAmount(ctx context.Context, userID string, amount model.Money) (*model.WalletTopupLock, error)
	GetLockByReference(ctx context.Context, transactionReference string) (*model.WalletTopupLock, error)
	CompleteLock(ctx context.Context, lockID string) error
	ExpireStaleLocks(ctx context.Context) (int64, error)
}

// outbox defines methods for the transactional outbox. Messages are inserted
// inside the financial transaction (via the outboxMsg arguments above) and
// only ever flipped to processed or annotated with a dispatch error here,
// never deleted.
type outbox interface {
	InsertOutboxMessage(ctx context.Context, msg *model.OutboxMessage) error
	GetUnprocessedOutboxMessages(ctx context.Context, limit int) ([]model.OutboxMessage, error)
	MarkOutboxProcessed(ctx context.Context, messageID string) error
	MarkOutboxFailed(ctx context.Context, messageID string, dispatchErr string) error
}

// bankSms defines methods for raw SMS payment records kept for reconciliation.
type bankSms interface {
	RecordBankSmsPayment(ctx context.Context, sms *model.BankSmsPayment) (*model.BankSmsPayment, error)
	UpdateBankSmsPayment(ctx context.Context, sms *model.BankSmsPayment) error
	ProcessedSmsExistsByRef(ctx context.Context, transactionRef string) (bool, error)
}
