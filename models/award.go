package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Award is a tour: a set of legs a pilot flies for credit, optionally
// restricted to some aircraft types and operators.
type Award struct {
	ID               uint                  `gorm:"primaryKey" json:"id"`
	Name             string                `gorm:"size:128;not null" json:"name"`
	Description      string                `gorm:"type:text" json:"description"`
	LinkImage        string                `gorm:"size:512" json:"link_image"`
	StartDate        *time.Time            `json:"start_date"`
	EndDate          *time.Time            `json:"end_date"`
	Legs             []Leg                 `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"legs"`
	AllowedAircraft  []AllowedAircraft     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"allowed_aircraft"`
	AllowedOperators []AllowedOperatorCode `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"allowed_operators"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
}

// Leg is one required route segment of an award.
type Leg struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	AwardID     uint   `gorm:"index;not null" json:"award_id"`
	Sequence    int    `gorm:"not null;default:0" json:"sequence"`
	FromAirport string `gorm:"size:8;not null;index:idx_leg_route" json:"from_airport"`
	ToAirport   string `gorm:"size:8;not null;index:idx_leg_route" json:"to_airport"`
}

// BeforeSave stores airport codes in canonical uppercase form.
func (l *Leg) BeforeSave(tx *gorm.DB) error {
	l.FromAirport = NormalizeCode(l.FromAirport)
	l.ToAirport = NormalizeCode(l.ToAirport)
	return nil
}

// AllowedAircraft whitelists an aircraft type code for an award.
type AllowedAircraft struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	AwardID uint   `gorm:"not null;uniqueIndex:idx_award_aircraft" json:"award_id"`
	Code    string `gorm:"size:32;not null;uniqueIndex:idx_award_aircraft" json:"code"`
}

func (a *AllowedAircraft) BeforeSave(tx *gorm.DB) error {
	a.Code = strings.TrimSpace(a.Code)
	return nil
}

// AllowedOperatorCode whitelists an operator (airline ICAO) for an award.
type AllowedOperatorCode struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	AwardID uint   `gorm:"not null;uniqueIndex:idx_award_operator" json:"award_id"`
	Code    string `gorm:"size:8;not null;uniqueIndex:idx_award_operator" json:"code"`
}

func (o *AllowedOperatorCode) BeforeSave(tx *gorm.DB) error {
	o.Code = NormalizeCode(o.Code)
	return nil
}

// NormalizeCode trims and uppercases airport and operator codes.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
