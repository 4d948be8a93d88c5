package models

import "time"

// BillingEventStat holds aggregated billing counters (webhook events by type,
// checkout outcomes). Rows are incremented in batches from the Redis-backed
// counter flush.
type BillingEventStat struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Metric    string    `gorm:"type:varchar(100);not null;uniqueIndex" json:"metric"`
	Count     int64     `gorm:"not null;default:0" json:"count"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
