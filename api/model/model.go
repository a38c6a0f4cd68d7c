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
package model

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/hisaab-io/hisaab/config"
	"github.com/hisaab-io/hisaab/model"
)

// CreateWallet is the request body for opening a wallet.
type CreateWallet struct {
	UserID   string `json:"user_id"`
	Currency string `json:"currency"`
}

func (w *CreateWallet) ValidateCreateWallet() error {
	return validation.ValidateStruct(w,
		validation.Field(&w.UserID, validation.Required),
		validation.Field(&w.Currency, validation.Length(3, 3)),
	)
}

func (w *CreateWallet) CurrencyOrDefault() string {
	if w.Currency == "" {
		return config.DEFAULT_CURRENCY
	}
	return w.Currency
}

// InitiateTopUp is the request body for starting a top-up.
type InitiateTopUp struct {
	UserID   string `json:"user_id"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	Channel  string `json:"channel"`
}

func (t *InitiateTopUp) ValidateInitiateTopUp() error {
	return validation.ValidateStruct(t,
		validation.Field(&t.UserID, validation.Required),
		validation.Field(&t.Amount, validation.Required),
		validation.Field(&t.Channel, validation.Required, validation.In(
			model.ChannelJazzCash, model.ChannelEasypaisa, model.ChannelBankSms)),
	)
}

func (t *InitiateTopUp) ToMoney() (model.Money, error) {
	currency := t.Currency
	if currency == "" {
		currency = config.DEFAULT_CURRENCY
	}
	return model.MoneyFromString(t.Amount, currency)
}

// InitiateTopUpLock is the request body for reserving an expected bank
// transfer amount.
type InitiateTopUpLock struct {
	UserID   string `json:"user_id"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func (t *InitiateTopUpLock) ValidateInitiateTopUpLock() error {
	return validation.ValidateStruct(t,
		validation.Field(&t.UserID, validation.Required),
		validation.Field(&t.Amount, validation.Required),
	)
}

func (t *InitiateTopUpLock) ToMoney() (model.Money, error) {
	currency := t.Currency
	if currency == "" {
		currency = config.DEFAULT_CURRENCY
	}
	return model.MoneyFromString(t.Amount, currency)
}

// ReviewTopUp is the admin verdict on a top-up held for approval.
type ReviewTopUp struct {
	Verdict string `json:"verdict"`
	Notes   string `json:"notes"`
}

const (
	VerdictApprove = "approve"
	VerdictReject  = "reject"
)

func (r *ReviewTopUp) ValidateReviewTopUp() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Verdict, validation.Required, validation.In(VerdictApprove, VerdictReject)),
	)
}

// LedgerEntry is the request body for the generic credit/debit entry points.
type LedgerEntry struct {
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Reason        string `json:"reason"`
	ReferenceID   string `json:"reference_id"`
	ReferenceType string `json:"reference_type"`
}

func (e *LedgerEntry) ValidateLedgerEntry() error {
	return validation.ValidateStruct(e,
		validation.Field(&e.Amount, validation.Required),
		validation.Field(&e.Reason, validation.Required),
	)
}

func (e *LedgerEntry) ToMoney() (model.Money, error) {
	currency := e.Currency
	if currency == "" {
		currency = config.DEFAULT_CURRENCY
	}
	return model.MoneyFromString(e.Amount, currency)
}

// BankSms is the payload the phone relay posts for every forwarded message.
type BankSms struct {
	Sms    string `json:"sms"`
	Secret string `json:"secret"`
}

func (b *BankSms) ValidateBankSms() error {
	return validation.ValidateStruct(b,
		validation.Field(&b.Sms, validation.Required),
		validation.Field(&b.Secret, validation.Required),
	)
}
