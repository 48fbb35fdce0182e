package models

import (
	"time"

	"gorm.io/gorm"
)

// User is a crew member. Credentials live with the identity service that issues tokens.
type User struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Username    string         `gorm:"size:64;uniqueIndex;not null" json:"username"`
	Email       string         `gorm:"size:200;uniqueIndex;not null" json:"email"`
	FirstName   string         `gorm:"size:200" json:"first_name"`
	LastName    string         `gorm:"size:240" json:"last_name"`
	UsernameIFC string         `gorm:"column:username_ifc;size:240" json:"username_ifc"`
	Country     string         `gorm:"size:240" json:"country"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}
