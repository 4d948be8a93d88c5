package models

import "time"

const (
	PurchaseTypeOrder        = "order"
	PurchaseTypeSubscription = "subscription"
)

// PurchaseIntent records what a user was about to buy before being redirected
// to the gateway for approval. It is consumed exactly once, either by the
// synchronous capture step or by the first matching webhook.
type PurchaseIntent struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	GatewayRef   string     `gorm:"type:varchar(191);not null;uniqueIndex" json:"gateway_ref"`
	PurchaseType string     `gorm:"type:varchar(16);not null" json:"purchase_type"`
	UserID       uint       `gorm:"not null;index" json:"user_id"`
	Plan         string     `gorm:"type:varchar(50);not null" json:"plan"`
	BillingCycle string     `gorm:"type:varchar(16);not null" json:"billing_cycle"`
	ConsumedAt   *time.Time `gorm:"type:timestamp;default:null" json:"consumed_at,omitempty"`
	CreatedAt    time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
}
