package awards

import (
	"github.com/Dalmocabral/crewcenter/events"
	"github.com/Dalmocabral/crewcenter/models"
)

const (
	EventFlightReviewed = "pirep.reviewed"
	EventAwardCreated   = "award.created"
)

// FlightReviewed is published after a PIREP review decision is committed.
type FlightReviewed struct {
	events.BaseEvent
	PirepID          uint   `json:"pirep_id" validate:"required"`
	PilotID          uint   `json:"pilot_id" validate:"required"`
	OperatorCode     string `json:"operator_code" validate:"required,max=8"`
	FlightNumber     string `json:"flight_number" validate:"required,max=16"`
	DepartureAirport string `json:"departure_airport" validate:"required,min=3,max=8"`
	ArrivalAirport   string `json:"arrival_airport" validate:"required,min=3,max=8"`
	Approved         bool   `json:"approved"`
}

func (FlightReviewed) EventName() string { return EventFlightReviewed }

// NewFlightReviewed builds the event from a reviewed report.
func NewFlightReviewed(p models.PirepFlight) FlightReviewed {
	return FlightReviewed{
		BaseEvent:        events.NewBaseEvent(),
		PirepID:          p.ID,
		PilotID:          p.PilotID,
		OperatorCode:     models.NormalizeCode(p.FlightICAO),
		FlightNumber:     p.FlightNumber,
		DepartureAirport: models.NormalizeCode(p.DepartureAirport),
		ArrivalAirport:   models.NormalizeCode(p.ArrivalAirport),
		Approved:         p.Status == models.PirepApproved,
	}
}

// AwardCreated is published once a new award and its legs are stored.
type AwardCreated struct {
	events.BaseEvent
	AwardID uint   `json:"award_id" validate:"required"`
	Name    string `json:"name" validate:"required"`
}

func (AwardCreated) EventName() string { return EventAwardCreated }

func NewAwardCreated(a models.Award) AwardCreated {
	return AwardCreated{BaseEvent: events.NewBaseEvent(), AwardID: a.ID, Name: a.Name}
}
