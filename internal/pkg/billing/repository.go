package billing

import (
	"time"

	"github.com/ManuelReschke/MemberFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the entitlement engine.
type Repository interface {
	GetOrCreateMembership(userID uint) (*models.Membership, error)
	FindMembershipByUser(userID uint) (*models.Membership, error)
	FindMembershipsBySubscriptionID(subscriptionID string) ([]models.Membership, error)
	SaveMembership(m *models.Membership) error

	CreateIntent(intent *models.PurchaseIntent) error
	ConsumeIntent(gatewayRef string) (*models.PurchaseIntent, bool, error)

	FindPlanMapping(plan, cycle string) (*models.BillingPlanMapping, error)
	SavePlanMapping(m *models.BillingPlanMapping) error

	CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error

	ListExpiredActiveMemberships(now time.Time, limit int) ([]models.Membership, error)
	ListDowngradeCandidates(now time.Time, limit int) ([]models.Membership, error)

	FindUserByEmail(email string) (*models.User, error)
	FindUserByID(userID uint) (*models.User, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetOrCreateMembership(userID uint) (*models.Membership, error) {
	return models.GetOrCreateMembership(r.db, userID)
}

func (r *gormRepository) FindMembershipByUser(userID uint) (*models.Membership, error) {
	var m models.Membership
	if err := r.db.Where("user_id = ?", userID).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *gormRepository) FindMembershipsBySubscriptionID(subscriptionID string) ([]models.Membership, error) {
	var ms []models.Membership
	err := r.db.Where("gateway_subscription_id = ?", subscriptionID).Find(&ms).Error
	return ms, err
}

func (r *gormRepository) SaveMembership(m *models.Membership) error {
	return r.db.Save(m).Error
}

func (r *gormRepository) CreateIntent(intent *models.PurchaseIntent) error {
	return r.db.Create(intent).Error
}

// ConsumeIntent atomically claims the intent for the given gateway reference.
// The conditional UPDATE is what guarantees consume-once when capture and
// webhook race: exactly one caller sees rows affected. The bool reports
// whether the intent had already been consumed.
func (r *gormRepository) ConsumeIntent(gatewayRef string) (*models.PurchaseIntent, bool, error) {
	now := time.Now()
	tx := r.db.Model(&models.PurchaseIntent{}).
		Where("gateway_ref = ? AND consumed_at IS NULL", gatewayRef).
		Update("consumed_at", &now)
	if tx.Error != nil {
		return nil, false, tx.Error
	}

	var intent models.PurchaseIntent
	if err := r.db.Where("gateway_ref = ?", gatewayRef).First(&intent).Error; err != nil {
		return nil, false, err
	}
	return &intent, tx.RowsAffected == 0, nil
}

func (r *gormRepository) FindPlanMapping(plan, cycle string) (*models.BillingPlanMapping, error) {
	var m models.BillingPlanMapping
	err := r.db.
		Where("plan = ? AND billing_cycle = ? AND is_active = ?", plan, cycle, true).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *gormRepository) SavePlanMapping(m *models.BillingPlanMapping) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "plan"},
			{Name: "billing_cycle"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"gateway_plan_id",
			"is_active",
			"updated_at",
		}),
	}).Create(m).Error; err != nil {
		return err
	}

	return r.db.Where("plan = ? AND billing_cycle = ?", m.Plan, m.BillingCycle).
		First(m).Error
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "gateway_event_id"}},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := r.db.Where("gateway_event_id = ?", event.GatewayEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	updates := map[string]interface{}{
		"processing_error": processingError,
	}
	if processingError == "" {
		now := time.Now()
		updates["processed_at"] = &now
	}
	return r.db.Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) ListExpiredActiveMemberships(now time.Time, limit int) ([]models.Membership, error) {
	var ms []models.Membership
	err := r.db.
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", models.MembershipStatusActive, now).
		Limit(limit).
		Find(&ms).Error
	return ms, err
}

func (r *gormRepository) ListDowngradeCandidates(now time.Time, limit int) ([]models.Membership, error) {
	var ms []models.Membership
	err := r.db.
		Where("tier <> ?", "free").
		Where(
			r.db.Where("status = ?", models.MembershipStatusExpired).
				Or("status = ? AND expires_at IS NOT NULL AND expires_at < ?", models.MembershipStatusCancelled, now),
		).
		Limit(limit).
		Find(&ms).Error
	return ms, err
}

func (r *gormRepository) FindUserByEmail(email string) (*models.User, error) {
	return models.FindUserByEmail(r.db, email)
}

func (r *gormRepository) FindUserByID(userID uint) (*models.User, error) {
	var u models.User
	if err := r.db.First(&u, userID).Error; err != nil {
		return nil, err
	}
	return &u, nil
}
