package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	PirepInReview = "In Review"
	PirepApproved = "Approved"
	PirepRejected = "Rejected"
)

// PirepFlight is a pilot report for one flown flight.
type PirepFlight struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	PilotID          uint       `gorm:"index:idx_pirep_pilot_status;not null" json:"pilot_id"`
	FlightICAO       string     `gorm:"column:flight_icao;size:8;not null" json:"flight_icao"`
	FlightNumber     string     `gorm:"size:16;not null" json:"flight_number"`
	DepartureAirport string     `gorm:"size:8;not null" json:"departure_airport"`
	ArrivalAirport   string     `gorm:"size:8;not null" json:"arrival_airport"`
	Aircraft         string     `gorm:"size:32;not null" json:"aircraft"`
	FlightDuration   string     `gorm:"size:8" json:"flight_duration"`
	Network          string     `gorm:"size:32" json:"network"`
	Status           string     `gorm:"size:16;not null;default:'In Review';index:idx_pirep_pilot_status" json:"status"`
	RegisteredAt     time.Time  `json:"registered_at"`
	ReviewedAt       *time.Time `json:"reviewed_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	Pilot            User       `gorm:"foreignKey:PilotID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
}

// BeforeSave normalizes codes and stamps the registration time.
func (p *PirepFlight) BeforeSave(tx *gorm.DB) error {
	p.FlightICAO = NormalizeCode(p.FlightICAO)
	p.DepartureAirport = NormalizeCode(p.DepartureAirport)
	p.ArrivalAirport = NormalizeCode(p.ArrivalAirport)
	if p.RegisteredAt.IsZero() {
		p.RegisteredAt = time.Now()
	}
	if p.Status == "" {
		p.Status = PirepInReview
	}
	return nil
}
