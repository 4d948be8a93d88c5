package billing

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/MemberFox/app/models"
)

func captureEvent(eventID, orderID, customID string) RawEvent {
	payload := fmt.Sprintf(`{
		"id": %q,
		"event_type": "PAYMENT.CAPTURE.COMPLETED",
		"resource": {
			"id": "CAP-1",
			"status": "COMPLETED",
			"custom_id": %q,
			"supplementary_data": {"related_ids": {"order_id": %q}}
		}
	}`, eventID, customID, orderID)
	return RawEvent{EventID: eventID, Payload: []byte(payload), SignatureValid: true}
}

func subscriptionEvent(eventID, eventType, subID, customID string) RawEvent {
	payload := fmt.Sprintf(`{
		"id": %q,
		"event_type": %q,
		"resource": {"id": %q, "status": "ACTIVE", "custom_id": %q}
	}`, eventID, eventType, subID, customID)
	return RawEvent{EventID: eventID, Payload: []byte(payload), SignatureValid: true}
}

func newTestProcessor(repo *fakeRepo) *Processor {
	return NewProcessor(repo, NewStore(repo))
}

func TestWebhookCaptureCompletedActivatesViaIntent(t *testing.T) {
	repo := newFakeRepo()
	require.NoError(t, repo.CreateIntent(&models.PurchaseIntent{
		GatewayRef: "ORDER-9", PurchaseType: models.PurchaseTypeOrder,
		UserID: 21, Plan: "bronze", BillingCycle: "monthly",
	}))

	outcome, err := newTestProcessor(repo).Handle(context.Background(), captureEvent("WH-1", "ORDER-9", ""))
	require.NoError(t, err)
	assert.NoError(t, outcome.Err)
	assert.False(t, outcome.Duplicate)

	m := repo.membership(21)
	require.NotNil(t, m)
	assert.Equal(t, "bronze", m.Tier)
	assert.Equal(t, models.MembershipStatusActive, m.Status)
}

func TestWebhookDuplicateEventActivatesOnce(t *testing.T) {
	repo := newFakeRepo()
	require.NoError(t, repo.CreateIntent(&models.PurchaseIntent{
		GatewayRef: "ORDER-9", PurchaseType: models.PurchaseTypeOrder,
		UserID: 22, Plan: "silver", BillingCycle: "annual",
	}))
	p := newTestProcessor(repo)

	first, err := p.Handle(context.Background(), captureEvent("WH-2", "ORDER-9", ""))
	require.NoError(t, err)
	require.NoError(t, first.Err)

	firstExpiry := *repo.membership(22).ExpiresAt

	second, err := p.Handle(context.Background(), captureEvent("WH-2", "ORDER-9", ""))
	require.NoError(t, err)
	assert.True(t, second.Duplicate)

	// The membership was not touched again.
	assert.Equal(t, firstExpiry, *repo.membership(22).ExpiresAt)
}

func TestWebhookCaptureRetryAfterFailedActivation(t *testing.T) {
	repo := newFakeRepo()
	require.NoError(t, repo.CreateIntent(&models.PurchaseIntent{
		GatewayRef: "ORDER-RETRY", PurchaseType: models.PurchaseTypeOrder,
		UserID: 99, Plan: "gold", BillingCycle: "annual",
	}))
	p := newTestProcessor(repo)

	// First delivery consumes the intent but the activation write fails.
	repo.failMembershipOnce = true
	first, err := p.Handle(context.Background(), captureEvent("WH-RETRY", "ORDER-RETRY", ""))
	require.NoError(t, err)
	require.Error(t, first.Err)
	require.Nil(t, repo.membership(99))
	require.Nil(t, repo.event("WH-RETRY").ProcessedAt)

	// The redelivery sees a consumed intent; it must still activate instead
	// of treating the consumed row as done.
	second, err := p.Handle(context.Background(), captureEvent("WH-RETRY", "ORDER-RETRY", ""))
	require.NoError(t, err)
	assert.False(t, second.Duplicate)
	require.NoError(t, second.Err)

	m := repo.membership(99)
	require.NotNil(t, m, "the payer must be upgraded on retry")
	assert.Equal(t, "gold", m.Tier)
	assert.Equal(t, models.MembershipStatusActive, m.Status)
	assert.NotNil(t, repo.event("WH-RETRY").ProcessedAt)
}

func TestWebhookCaptureFallsBackToCorrelationTag(t *testing.T) {
	repo := newFakeRepo()

	outcome, err := newTestProcessor(repo).Handle(context.Background(),
		captureEvent("WH-3", "ORDER-MISSING", "33:gold:monthly"))
	require.NoError(t, err)
	require.NoError(t, outcome.Err)

	m := repo.membership(33)
	require.NotNil(t, m)
	assert.Equal(t, "gold", m.Tier)
}

func TestWebhookSubscriptionActivated(t *testing.T) {
	repo := newFakeRepo()
	require.NoError(t, repo.CreateIntent(&models.PurchaseIntent{
		GatewayRef: "I-SUB-7", PurchaseType: models.PurchaseTypeSubscription,
		UserID: 41, Plan: "silver", BillingCycle: "monthly",
	}))

	outcome, err := newTestProcessor(repo).Handle(context.Background(),
		subscriptionEvent("WH-4", "BILLING.SUBSCRIPTION.ACTIVATED", "I-SUB-7", ""))
	require.NoError(t, err)
	require.NoError(t, outcome.Err)

	m := repo.membership(41)
	require.NotNil(t, m)
	assert.Equal(t, "silver", m.Tier)
	assert.Equal(t, models.MembershipStatusActive, m.Status)
	assert.Equal(t, "I-SUB-7", m.GatewaySubscriptionID)
}

func TestWebhookRedeliveryWithFreshTransmissionIDIsDuplicate(t *testing.T) {
	repo := newFakeRepo()
	require.NoError(t, repo.CreateIntent(&models.PurchaseIntent{
		GatewayRef: "I-SUB-12", PurchaseType: models.PurchaseTypeSubscription,
		UserID: 62, Plan: "silver", BillingCycle: "annual",
	}))
	p := newTestProcessor(repo)

	// The gateway issues a new transmission id on every delivery attempt;
	// dedup has to key on the envelope's stable event id instead.
	first := subscriptionEvent("WH-12", "BILLING.SUBSCRIPTION.ACTIVATED", "I-SUB-12", "")
	first.EventID = "TRANS-1"
	out, err := p.Handle(context.Background(), first)
	require.NoError(t, err)
	require.NoError(t, out.Err)
	firstExpiry := *repo.membership(62).ExpiresAt

	second := subscriptionEvent("WH-12", "BILLING.SUBSCRIPTION.ACTIVATED", "I-SUB-12", "")
	second.EventID = "TRANS-2"
	out, err = p.Handle(context.Background(), second)
	require.NoError(t, err)
	assert.True(t, out.Duplicate)
	assert.Equal(t, firstExpiry, *repo.membership(62).ExpiresAt, "a redelivery must not extend the paid period")
}

func TestWebhookCancellationKeepsTierUntilExpiry(t *testing.T) {
	repo := newFakeRepo()
	store := NewStore(repo)
	_, err := store.Activate(context.Background(), 42, "gold", "annual", "I-SUB-8")
	require.NoError(t, err)

	outcome, err := newTestProcessor(repo).Handle(context.Background(),
		subscriptionEvent("WH-5", "BILLING.SUBSCRIPTION.CANCELLED", "I-SUB-8", ""))
	require.NoError(t, err)
	require.NoError(t, outcome.Err)

	m := repo.membership(42)
	assert.Equal(t, models.MembershipStatusCancelled, m.Status)
	assert.Equal(t, "gold", m.Tier, "paid period keeps running after cancellation")
	assert.NotNil(t, m.ExpiresAt)
}

func TestWebhookExpiryDowngradesImmediately(t *testing.T) {
	repo := newFakeRepo()
	store := NewStore(repo)
	_, err := store.Activate(context.Background(), 43, "bronze", "monthly", "I-SUB-9")
	require.NoError(t, err)

	outcome, err := newTestProcessor(repo).Handle(context.Background(),
		subscriptionEvent("WH-6", "BILLING.SUBSCRIPTION.EXPIRED", "I-SUB-9", ""))
	require.NoError(t, err)
	require.NoError(t, outcome.Err)

	m := repo.membership(43)
	assert.Equal(t, "free", m.Tier)
	assert.Equal(t, models.MembershipStatusNone, m.Status)
}

func TestWebhookSuspensionBlocksWithoutDowngrade(t *testing.T) {
	repo := newFakeRepo()
	store := NewStore(repo)
	_, err := store.Activate(context.Background(), 44, "silver", "monthly", "I-SUB-10")
	require.NoError(t, err)

	outcome, err := newTestProcessor(repo).Handle(context.Background(),
		subscriptionEvent("WH-7", "BILLING.SUBSCRIPTION.SUSPENDED", "I-SUB-10", ""))
	require.NoError(t, err)
	require.NoError(t, outcome.Err)

	m := repo.membership(44)
	assert.Equal(t, models.MembershipStatusSuspended, m.Status)
	assert.Equal(t, "silver", m.Tier)
}

func TestWebhookUnknownEventTypeIsAcked(t *testing.T) {
	repo := newFakeRepo()
	raw := RawEvent{
		EventID:        "WH-8",
		Payload:        []byte(`{"id":"WH-8","event_type":"BILLING.PLAN.UPDATED","resource":{}}`),
		SignatureValid: true,
	}

	outcome, err := newTestProcessor(repo).Handle(context.Background(), raw)
	require.NoError(t, err)
	assert.True(t, outcome.Ignored)

	// Acked events are marked processed so redeliveries are duplicates.
	e := repo.event("WH-8")
	require.NotNil(t, e)
	assert.NotNil(t, e.ProcessedAt)
}

func TestWebhookInvalidSignatureIsRecordedNotProcessed(t *testing.T) {
	repo := newFakeRepo()
	require.NoError(t, repo.CreateIntent(&models.PurchaseIntent{
		GatewayRef: "ORDER-SIG", PurchaseType: models.PurchaseTypeOrder,
		UserID: 51, Plan: "gold", BillingCycle: "monthly",
	}))

	raw := captureEvent("WH-9", "ORDER-SIG", "")
	raw.SignatureValid = false

	outcome, err := newTestProcessor(repo).Handle(context.Background(), raw)
	require.NoError(t, err)
	assert.Error(t, outcome.Err)

	assert.Nil(t, repo.membership(51), "unsigned delivery must not mutate entitlements")
	e := repo.event("WH-9")
	require.NotNil(t, e)
	assert.Nil(t, e.ProcessedAt)
	assert.NotEmpty(t, e.ProcessingError)
}

func TestWebhookLedgerInsertFailurePropagates(t *testing.T) {
	repo := newFakeRepo()
	repo.failCreateEvent = true

	_, err := newTestProcessor(repo).Handle(context.Background(), captureEvent("WH-10", "ORDER-X", ""))
	assert.Error(t, err, "ledger persist failure must bubble up so the delivery is not acked")
}

func TestWebhookFailedMutationRetriesOnRedelivery(t *testing.T) {
	repo := newFakeRepo()
	p := newTestProcessor(repo)

	// No intent and no usable correlation tag: processing fails, ledger row
	// stays unprocessed.
	first, err := p.Handle(context.Background(), captureEvent("WH-11", "ORDER-GONE", "not-a-tag"))
	require.NoError(t, err)
	require.Error(t, first.Err)
	assert.Nil(t, repo.event("WH-11").ProcessedAt)

	// Intent shows up before the redelivery; the retry succeeds.
	require.NoError(t, repo.CreateIntent(&models.PurchaseIntent{
		GatewayRef: "ORDER-GONE", PurchaseType: models.PurchaseTypeOrder,
		UserID: 61, Plan: "bronze", BillingCycle: "monthly",
	}))

	second, err := p.Handle(context.Background(), captureEvent("WH-11", "ORDER-GONE", "not-a-tag"))
	require.NoError(t, err)
	assert.False(t, second.Duplicate)
	require.NoError(t, second.Err)
	assert.NotNil(t, repo.membership(61))
}
