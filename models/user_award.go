package models

import "time"

// UserAward tracks one pilot's progress on one award.
type UserAward struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UserID    uint       `gorm:"not null;uniqueIndex:idx_user_award" json:"user_id"`
	AwardID   uint       `gorm:"not null;uniqueIndex:idx_user_award;index" json:"award_id"`
	Progress  int        `gorm:"not null;default:0" json:"progress"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Award     Award      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
}
