package models

import (
	"time"

	"gorm.io/gorm"
)

// Membership status constants. Cancelled and expired memberships keep their
// tier until the reconciliation sweep downgrades them to free.
const (
	MembershipStatusNone      = "none"
	MembershipStatusActive    = "active"
	MembershipStatusCancelled = "cancelled"
	MembershipStatusExpired   = "expired"
	MembershipStatusSuspended = "suspended"
)

const (
	BillingCycleMonthly = "monthly"
	BillingCycleAnnual  = "annual"
)

// Membership is the single source of truth for a user's paid access: tier,
// status and expiry. One row per user.
type Membership struct {
	ID                    uint       `gorm:"primaryKey" json:"id"`
	UserID                uint       `gorm:"uniqueIndex" json:"user_id"`
	Tier                  string     `gorm:"type:varchar(20);not null;default:'free';index" json:"tier"`
	Plan                  string     `gorm:"type:varchar(50);default:''" json:"plan"`
	BillingCycle          string     `gorm:"type:varchar(16);default:''" json:"billing_cycle"`
	Status                string     `gorm:"type:varchar(20);not null;default:'none';index" json:"status"`
	GatewaySubscriptionID string     `gorm:"type:varchar(191);default:'';index" json:"gateway_subscription_id"`
	StartedAt             *time.Time `gorm:"type:timestamp;default:null" json:"started_at,omitempty"`
	ExpiresAt             *time.Time `gorm:"type:timestamp;default:null;index" json:"expires_at,omitempty"`
	CreatedAt             time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// GetOrCreateMembership returns the user's membership row, creating the free
// default on first access.
func GetOrCreateMembership(db *gorm.DB, userID uint) (*Membership, error) {
	var m Membership
	if err := db.Where("user_id = ?", userID).First(&m).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			m = Membership{UserID: userID, Tier: "free", Status: MembershipStatusNone}
			if err := db.Create(&m).Error; err != nil {
				return nil, err
			}
			return &m, nil
		}
		return nil, err
	}
	return &m, nil
}

// CycleDuration returns the entitlement length granted per billing cycle.
func CycleDuration(cycle string, from time.Time) time.Time {
	if cycle == BillingCycleAnnual {
		return from.AddDate(1, 0, 0)
	}
	return from.AddDate(0, 1, 0)
}
