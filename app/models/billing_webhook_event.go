package models

import "time"

// BillingWebhookEvent is the idempotency ledger for gateway webhooks. The
// unique event id suppresses redeliveries; ProcessedAt is only set after the
// entitlement mutation succeeded, so a failed mutation is retried when the
// gateway redelivers.
type BillingWebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	GatewayEventID  string     `gorm:"type:varchar(191);not null;uniqueIndex" json:"gateway_event_id"`
	EventType       string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	ResourceID      string     `gorm:"type:varchar(191);default:'';index" json:"resource_id"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payload_json"`
	SignatureValid  bool       `gorm:"default:false;index" json:"signature_valid"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
