package models

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProviderAccount stores external OAuth login identities linked to a user.
type ProviderAccount struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	UserID         uint       `gorm:"index" json:"user_id"`
	Provider       string     `gorm:"index:provider_uid,unique;type:varchar(50)" json:"provider"`
	ProviderUserID string     `gorm:"index:provider_uid,unique;type:varchar(191)" json:"provider_user_id"`
	AccessToken    string     `gorm:"type:text" json:"-"`
	RefreshToken   string     `gorm:"type:text" json:"-"`
	ExpiresAt      *time.Time `gorm:"type:timestamp;default:null" json:"expires_at,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// UpsertProviderAccount links an OAuth identity to a user, updating tokens on
// repeat logins.
func UpsertProviderAccount(db *gorm.DB, pa *ProviderAccount) error {
	if err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_user_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id",
			"access_token",
			"refresh_token",
			"expires_at",
			"updated_at",
		}),
	}).Create(pa).Error; err != nil {
		return err
	}

	return db.Where("provider = ? AND provider_user_id = ?", pa.Provider, pa.ProviderUserID).
		First(pa).Error
}
