package billing

import (
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/MemberFox/app/models"
)

// fakeRepo is an in-memory Repository for unit tests.
type fakeRepo struct {
	mu sync.Mutex

	memberships map[uint]*models.Membership
	intents     map[string]*models.PurchaseIntent
	mappings    map[string]*models.BillingPlanMapping
	events      map[string]*models.BillingWebhookEvent
	users       map[uint]*models.User

	nextEventID uint

	failCreateEvent    bool
	failMembershipOnce bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		memberships: make(map[uint]*models.Membership),
		intents:     make(map[string]*models.PurchaseIntent),
		mappings:    make(map[string]*models.BillingPlanMapping),
		events:      make(map[string]*models.BillingWebhookEvent),
		users:       make(map[uint]*models.User),
	}
}

func (f *fakeRepo) GetOrCreateMembership(userID uint) (*models.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMembershipOnce {
		f.failMembershipOnce = false
		return nil, gorm.ErrInvalidTransaction
	}
	if m, ok := f.memberships[userID]; ok {
		return m, nil
	}
	m := &models.Membership{UserID: userID, Tier: "free", Status: models.MembershipStatusNone}
	f.memberships[userID] = m
	return m, nil
}

func (f *fakeRepo) FindMembershipByUser(userID uint) (*models.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.memberships[userID]; ok {
		return m, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) FindMembershipsBySubscriptionID(subscriptionID string) ([]models.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Membership
	for _, m := range f.memberships {
		if m.GatewaySubscriptionID == subscriptionID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *fakeRepo) SaveMembership(m *models.Membership) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *m
	f.memberships[m.UserID] = &copied
	return nil
}

func (f *fakeRepo) CreateIntent(intent *models.PurchaseIntent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *intent
	f.intents[intent.GatewayRef] = &copied
	return nil
}

func (f *fakeRepo) ConsumeIntent(gatewayRef string) (*models.PurchaseIntent, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	intent, ok := f.intents[gatewayRef]
	if !ok {
		return nil, false, gorm.ErrRecordNotFound
	}
	if intent.ConsumedAt != nil {
		return intent, true, nil
	}
	now := time.Now()
	intent.ConsumedAt = &now
	return intent, false, nil
}

func (f *fakeRepo) FindPlanMapping(plan, cycle string) (*models.BillingPlanMapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.mappings[plan+"/"+cycle]; ok {
		return m, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) SavePlanMapping(m *models.BillingPlanMapping) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *m
	f.mappings[m.Plan+"/"+m.BillingCycle] = &copied
	return nil
}

func (f *fakeRepo) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreateEvent {
		return false, nil, gorm.ErrInvalidTransaction
	}
	if existing, ok := f.events[event.GatewayEventID]; ok {
		return false, existing, nil
	}
	f.nextEventID++
	copied := *event
	copied.ID = f.nextEventID
	f.events[event.GatewayEventID] = &copied
	return true, &copied, nil
}

func (f *fakeRepo) MarkWebhookProcessed(id uint, processingError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e.ID == id {
			e.ProcessingError = processingError
			if processingError == "" {
				now := time.Now()
				e.ProcessedAt = &now
			}
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (f *fakeRepo) ListExpiredActiveMemberships(now time.Time, limit int) ([]models.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Membership
	for _, m := range f.memberships {
		if len(out) >= limit {
			break
		}
		if m.Status == models.MembershipStatusActive && m.ExpiresAt != nil && m.ExpiresAt.Before(now) {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListDowngradeCandidates(now time.Time, limit int) ([]models.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Membership
	for _, m := range f.memberships {
		if len(out) >= limit {
			break
		}
		if m.Tier == "free" {
			continue
		}
		if m.Status == models.MembershipStatusExpired {
			out = append(out, *m)
			continue
		}
		if m.Status == models.MembershipStatusCancelled && m.ExpiresAt != nil && m.ExpiresAt.Before(now) {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *fakeRepo) FindUserByEmail(email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) FindUserByID(userID uint) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[userID]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) membership(userID uint) *models.Membership {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.memberships[userID]
}

func (f *fakeRepo) event(eventID string) *models.BillingWebhookEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events[eventID]
}
