package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuelReschke/MemberFox/app/models"
)

// userLocks serializes membership mutations per user across the whole
// process. Capture, webhook-activate and webhook-cancel can all race for the
// same user; the lock table is package level because services are constructed
// per request.
var userLocks = struct {
	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}{locks: make(map[uint]*sync.Mutex)}

func lockUser(userID uint) func() {
	userLocks.mu.Lock()
	l, ok := userLocks.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		userLocks.locks[userID] = l
	}
	userLocks.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Store is the durable record of each user's tier, status and expiry. All
// mutations go through here so they are serialized per user.
type Store struct {
	repo Repository
}

func NewStore(repo Repository) *Store {
	return &Store{repo: repo}
}

// Activate grants the entitlement for a confirmed payment: tier from plan,
// status active, expiry now plus one cycle. Renewals recompute the expiry.
// The gateway subscription id is only stored for subscription purchases.
func (s *Store) Activate(ctx context.Context, userID uint, plan, cycle, subscriptionID string) (*models.Membership, error) {
	_ = ctx
	if userID == 0 {
		return nil, errors.New("user_id is required")
	}
	cycle, ok := NormalizeCycle(cycle)
	if !ok {
		return nil, errors.New("invalid billing cycle")
	}
	normPlan, ok := NormalizePlan(plan)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlan, plan)
	}

	unlock := lockUser(userID)
	defer unlock()

	m, err := s.repo.GetOrCreateMembership(userID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	expires := models.CycleDuration(cycle, now)

	m.Tier = normPlan
	m.Plan = normPlan
	m.BillingCycle = cycle
	m.Status = models.MembershipStatusActive
	m.StartedAt = &now
	m.ExpiresAt = &expires
	if subscriptionID != "" {
		m.GatewaySubscriptionID = subscriptionID
	}

	if err := s.repo.SaveMembership(m); err != nil {
		return nil, err
	}
	return m, nil
}

// SetStatusByUser updates only the status field of a user's membership.
func (s *Store) SetStatusByUser(ctx context.Context, userID uint, status string) (*models.Membership, error) {
	_ = ctx
	unlock := lockUser(userID)
	defer unlock()

	m, err := s.repo.FindMembershipByUser(userID)
	if err != nil {
		return nil, err
	}
	m.Status = status
	if err := s.repo.SaveMembership(m); err != nil {
		return nil, err
	}
	return m, nil
}

// SetStatusBySubscription updates the status of every membership joined to
// the given gateway subscription id. Webhook lifecycle events identify the
// subscriber this way, not by internal user id.
func (s *Store) SetStatusBySubscription(ctx context.Context, subscriptionID, status string) ([]models.Membership, error) {
	_ = ctx
	ms, err := s.repo.FindMembershipsBySubscriptionID(subscriptionID)
	if err != nil {
		return nil, err
	}

	updated := make([]models.Membership, 0, len(ms))
	for i := range ms {
		userID := ms[i].UserID
		unlock := lockUser(userID)
		// The index read above ran outside the lock; a concurrent Activate
		// may have rewritten the row since. Re-read under the lock so only
		// the status column changes on the current state.
		m, err := s.repo.FindMembershipByUser(userID)
		if err != nil {
			unlock()
			return updated, err
		}
		if m.GatewaySubscriptionID != subscriptionID {
			unlock()
			continue
		}
		m.Status = status
		err = s.repo.SaveMembership(m)
		unlock()
		if err != nil {
			return updated, err
		}
		updated = append(updated, *m)
	}
	return updated, nil
}

// Downgrade resets the user to the free tier and clears plan, cycle and
// expiry. Called after cancellation or expiry has been reconciled.
func (s *Store) Downgrade(ctx context.Context, userID uint) error {
	_ = ctx
	unlock := lockUser(userID)
	defer unlock()

	m, err := s.repo.FindMembershipByUser(userID)
	if err != nil {
		return err
	}

	m.Tier = "free"
	m.Plan = ""
	m.BillingCycle = ""
	m.Status = models.MembershipStatusNone
	m.GatewaySubscriptionID = ""
	m.StartedAt = nil
	m.ExpiresAt = nil

	return s.repo.SaveMembership(m)
}

// Expire marks an overdue membership as expired without touching the tier;
// the downgrade sweep picks it up afterwards.
func (s *Store) Expire(ctx context.Context, userID uint) (*models.Membership, error) {
	return s.SetStatusByUser(ctx, userID, models.MembershipStatusExpired)
}
