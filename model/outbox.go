package model

import (
	"encoding/json"
	"time"
)

const (
	OutboxTypeTopUpConfirmed = "topup.confirmed"
	OutboxTypeTopUpFailed    = "topup.failed"
	OutboxTypeWalletCredited = "wallet.credited"
	OutboxTypeWalletDebited  = "wallet.debited"
)

// OutboxMessage is a side effect queued in the same database transaction as
// the ledger write and delivered later by the dispatcher. Messages are never
// deleted on failure; the error is recorded and the row retried.
type OutboxMessage struct {
	ID          int64           `json:"-"`
	MessageID   string          `json:"message_id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	OccurredOn  time.Time       `json:"occurred_on"`
	Processed   bool            `json:"processed"`
	ProcessedOn *time.Time      `json:"processed_on,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// NewOutboxMessage serializes payload and wraps it in an unprocessed message.
func NewOutboxMessage(msgType string, payload interface{}) (*OutboxMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &OutboxMessage{
		MessageID:  GenerateUUIDWithSuffix("obx"),
		Type:       msgType,
		Payload:    raw,
		OccurredOn: time.Now(),
	}, nil
}

// MarkProcessed records a successful dispatch.
func (m *OutboxMessage) MarkProcessed() {
	now := time.Now()
	m.Processed = true
	m.ProcessedOn = &now
	m.Error = ""
}

// MarkFailed records a dispatch failure; the message stays queued for retry.
func (m *OutboxMessage) MarkFailed(err error) {
	m.Processed = false
	m.Error = err.Error()
}
