package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"gorm.io/gorm"
)

// Notification is a message shown to one user. (user, message) is unique.
type Notification struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_notification_dedup;index:idx_notification_unread" json:"user_id"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	Image     string    `gorm:"size:512" json:"image,omitempty"`
	DedupKey  string    `gorm:"size:64;not null;uniqueIndex:idx_notification_dedup" json:"-"`
	IsRead    bool      `gorm:"not null;default:false;index:idx_notification_unread" json:"is_read"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	n.DedupKey = MessageKey(n.Message)
	return nil
}

// MessageKey is the dedup key for a message body.
func MessageKey(message string) string {
	sum := sha256.Sum256([]byte(message))
	return hex.EncodeToString(sum[:])
}
