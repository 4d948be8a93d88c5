package models

import "time"

// BillingPlanMapping caches the gateway-side billing plan id created for a
// (plan, cycle) pair. The gateway does not deduplicate plan creation by
// content, so this local mapping is what keeps EnsureBillingPlan idempotent.
type BillingPlanMapping struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Plan          string    `gorm:"type:varchar(50);not null;index:ux_billing_plan_mappings_plan_cycle,unique,priority:1" json:"plan"`
	BillingCycle  string    `gorm:"type:varchar(16);not null;index:ux_billing_plan_mappings_plan_cycle,unique,priority:2" json:"billing_cycle"`
	GatewayPlanID string    `gorm:"type:varchar(191);not null;index" json:"gateway_plan_id"`
	IsActive      bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
