package billing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/MemberFox/app/models"
)

func TestStoreActivateSetsTierStatusAndExpiry(t *testing.T) {
	repo := newFakeRepo()
	store := NewStore(repo)

	m, err := store.Activate(context.Background(), 7, "silver", "monthly", "")
	require.NoError(t, err)

	assert.Equal(t, "silver", m.Tier)
	assert.Equal(t, "silver", m.Plan)
	assert.Equal(t, models.BillingCycleMonthly, m.BillingCycle)
	assert.Equal(t, models.MembershipStatusActive, m.Status)
	require.NotNil(t, m.ExpiresAt)
	require.NotNil(t, m.StartedAt)
	assert.True(t, m.ExpiresAt.After(time.Now().AddDate(0, 0, 27)), "monthly expiry should be ~1 month out")
	assert.Empty(t, m.GatewaySubscriptionID)
}

func TestStoreActivateStoresSubscriptionID(t *testing.T) {
	store := NewStore(newFakeRepo())

	m, err := store.Activate(context.Background(), 8, "gold", "annual", "I-SUB123")
	require.NoError(t, err)

	assert.Equal(t, "I-SUB123", m.GatewaySubscriptionID)
	assert.True(t, m.ExpiresAt.After(time.Now().AddDate(0, 11, 0)), "annual expiry should be ~1 year out")
}

func TestStoreActivateRenewalExtendsExpiry(t *testing.T) {
	repo := newFakeRepo()
	store := NewStore(repo)

	first, err := store.Activate(context.Background(), 9, "bronze", "monthly", "")
	require.NoError(t, err)
	firstExpiry := *first.ExpiresAt

	time.Sleep(5 * time.Millisecond)

	second, err := store.Activate(context.Background(), 9, "bronze", "monthly", "")
	require.NoError(t, err)

	assert.True(t, second.ExpiresAt.After(firstExpiry) || second.ExpiresAt.Equal(firstExpiry))
}

func TestStoreActivateRejectsInvalidInput(t *testing.T) {
	store := NewStore(newFakeRepo())

	_, err := store.Activate(context.Background(), 0, "silver", "monthly", "")
	assert.Error(t, err)

	_, err = store.Activate(context.Background(), 1, "silver", "weekly", "")
	assert.Error(t, err)
}

func TestStoreActivateRejectsUnknownPlan(t *testing.T) {
	repo := newFakeRepo()
	store := NewStore(repo)

	_, err := store.Activate(context.Background(), 13, "platinum", "monthly", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownPlan)
	assert.Nil(t, repo.membership(13), "a forged plan must not write any entitlement")
}

func TestStoreDowngradeClearsEverything(t *testing.T) {
	repo := newFakeRepo()
	store := NewStore(repo)

	_, err := store.Activate(context.Background(), 11, "gold", "annual", "I-SUB999")
	require.NoError(t, err)

	require.NoError(t, store.Downgrade(context.Background(), 11))

	m := repo.membership(11)
	require.NotNil(t, m)
	assert.Equal(t, "free", m.Tier)
	assert.Empty(t, m.Plan)
	assert.Empty(t, m.BillingCycle)
	assert.Equal(t, models.MembershipStatusNone, m.Status)
	assert.Empty(t, m.GatewaySubscriptionID)
	assert.Nil(t, m.ExpiresAt)
}

func TestStoreSetStatusBySubscription(t *testing.T) {
	repo := newFakeRepo()
	store := NewStore(repo)

	_, err := store.Activate(context.Background(), 12, "silver", "monthly", "I-ABC")
	require.NoError(t, err)

	updated, err := store.SetStatusBySubscription(context.Background(), "I-ABC", models.MembershipStatusCancelled)
	require.NoError(t, err)
	require.Len(t, updated, 1)

	m := repo.membership(12)
	assert.Equal(t, models.MembershipStatusCancelled, m.Status)
	// The tier is kept: access runs until the paid period ends.
	assert.Equal(t, "silver", m.Tier)
}

// renewalRacingRepo fires a callback once, right after the subscription index
// read, to interleave a mutation between that read and the status write.
type renewalRacingRepo struct {
	*fakeRepo
	renew func()
	once  sync.Once
}

func (r *renewalRacingRepo) FindMembershipsBySubscriptionID(id string) ([]models.Membership, error) {
	ms, err := r.fakeRepo.FindMembershipsBySubscriptionID(id)
	if r.renew != nil {
		r.once.Do(r.renew)
	}
	return ms, err
}

func TestStoreSetStatusBySubscriptionNotClobberedByConcurrentRenewal(t *testing.T) {
	base := newFakeRepo()
	racing := &renewalRacingRepo{fakeRepo: base}
	store := NewStore(racing)

	_, err := store.Activate(context.Background(), 14, "bronze", "monthly", "I-RACE")
	require.NoError(t, err)

	// A renewal upgrade lands between the cancellation's index read and its
	// status write.
	racing.renew = func() {
		_, err := store.Activate(context.Background(), 14, "gold", "annual", "I-RACE")
		require.NoError(t, err)
	}

	updated, err := store.SetStatusBySubscription(context.Background(), "I-RACE", models.MembershipStatusCancelled)
	require.NoError(t, err)
	require.Len(t, updated, 1)

	m := base.membership(14)
	assert.Equal(t, models.MembershipStatusCancelled, m.Status)
	assert.Equal(t, "gold", m.Tier, "the interleaved renewal must survive the status write")
	assert.Equal(t, models.BillingCycleAnnual, m.BillingCycle)
}

func TestStoreSetStatusBySubscriptionUnknownIDIsNoop(t *testing.T) {
	store := NewStore(newFakeRepo())

	updated, err := store.SetStatusBySubscription(context.Background(), "I-NOPE", models.MembershipStatusCancelled)
	require.NoError(t, err)
	assert.Empty(t, updated)
}
