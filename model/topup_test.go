package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTopUp(t *testing.T) *TopUp {
	t.Helper()
	topUp, err := NewTopUp("usr_1", "wlt_1", MoneyFromFloat(5000, "PKR"), ChannelJazzCash)
	require.NoError(t, err)
	return topUp
}

func TestNewTopUpRejectsNonPositiveAmount(t *testing.T) {
	_, err := NewTopUp("usr_1", "wlt_1", MoneyFromFloat(0, "PKR"), ChannelJazzCash)
	assert.Error(t, err)
}

func TestTopUpConfirmFromInitiated(t *testing.T) {
	topUp := newTestTopUp(t)

	require.NoError(t, topUp.Confirm("REF123"))
	assert.Equal(t, TopUpStatusConfirmed, topUp.Status)
	assert.Equal(t, "REF123", topUp.ExternalReference)
	assert.NotNil(t, topUp.ConfirmedAt)
}

func TestTopUpConfirmIsIdempotent(t *testing.T) {
	topUp := newTestTopUp(t)
	require.NoError(t, topUp.Confirm("REF123"))
	confirmedAt := *topUp.ConfirmedAt

	// Second confirm (gateway retry) is a no-op, even with another reference.
	require.NoError(t, topUp.Confirm("REF456"))
	assert.Equal(t, "REF123", topUp.ExternalReference)
	assert.Equal(t, confirmedAt, *topUp.ConfirmedAt)
}

func TestTopUpConfirmFromPendingAdminApproval(t *testing.T) {
	topUp := newTestTopUp(t)
	require.NoError(t, topUp.RequireAdminApproval())
	assert.Equal(t, TopUpStatusPendingAdminApproval, topUp.Status)

	require.NoError(t, topUp.Confirm("AdminApproved"))
	assert.Equal(t, TopUpStatusConfirmed, topUp.Status)
}

func TestTopUpConfirmAfterFailure(t *testing.T) {
	topUp := newTestTopUp(t)
	require.NoError(t, topUp.Fail("gateway declined"))

	err := topUp.Confirm("REF123")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, TopUpStatusFailed, topUp.Status)
}

func TestTopUpFailAndCancelAreTerminal(t *testing.T) {
	topUp := newTestTopUp(t)
	require.NoError(t, topUp.Fail("declined"))
	assert.ErrorIs(t, topUp.Fail("again"), ErrInvalidTransition)
	assert.ErrorIs(t, topUp.Cancel("changed my mind"), ErrInvalidTransition)

	topUp = newTestTopUp(t)
	require.NoError(t, topUp.Cancel("user cancelled"))
	assert.Equal(t, TopUpStatusCancelled, topUp.Status)
	assert.NotNil(t, topUp.FailedAt)
	assert.ErrorIs(t, topUp.Fail("late failure"), ErrInvalidTransition)
}

func TestTopUpSetTransactionID(t *testing.T) {
	topUp := newTestTopUp(t)

	// Linking before confirmation is a bug in the caller.
	assert.ErrorIs(t, topUp.SetTransactionID("txn_1"), ErrInvalidTransition)

	require.NoError(t, topUp.Confirm("REF123"))
	require.NoError(t, topUp.SetTransactionID("txn_1"))
	assert.Equal(t, "txn_1", topUp.TransactionID)
}

func TestTopupLockLifecycle(t *testing.T) {
	lock := NewWalletTopupLock("usr_1", MoneyFromFloat(2500, "PKR"), 10*time.Minute)

	assert.Equal(t, LockStatusLocked, lock.Status)
	assert.True(t, lock.IsActive())
	assert.Contains(t, lock.TransactionReference, "WTU")

	require.NoError(t, lock.MarkCompleted())
	assert.Equal(t, LockStatusCompleted, lock.Status)
	assert.False(t, lock.IsActive())

	// A consumed lock cannot be completed again or expired.
	assert.ErrorIs(t, lock.MarkCompleted(), ErrLockNotActive)
	assert.ErrorIs(t, lock.MarkExpired(), ErrLockNotActive)
}

func TestTopupLockExpiry(t *testing.T) {
	lock := NewWalletTopupLock("usr_1", MoneyFromFloat(2500, "PKR"), -time.Minute)

	assert.True(t, lock.IsExpired())
	assert.False(t, lock.IsActive())
	assert.ErrorIs(t, lock.MarkCompleted(), ErrLockNotActive)

	require.NoError(t, lock.MarkExpired())
	assert.Equal(t, LockStatusExpired, lock.Status)
}

func TestOutboxMessage(t *testing.T) {
	msg, err := NewOutboxMessage(OutboxTypeTopUpConfirmed, map[string]string{"top_up_id": "tpu_1"})
	require.NoError(t, err)
	assert.False(t, msg.Processed)
	assert.JSONEq(t, `{"top_up_id":"tpu_1"}`, string(msg.Payload))

	msg.MarkFailed(assert.AnError)
	assert.False(t, msg.Processed)
	assert.NotEmpty(t, msg.Error)

	msg.MarkProcessed()
	assert.True(t, msg.Processed)
	assert.NotNil(t, msg.ProcessedOn)
	assert.Empty(t, msg.Error)
}
