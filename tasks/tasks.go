package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/Dalmocabral/crewcenter/awards"
	"github.com/Dalmocabral/crewcenter/events"
)

const TaskReconcileFlight = "awards.reconcile_flight"

// ReconcileFlightPayload carries an approved flight whose reconciliation failed.
type ReconcileFlightPayload struct {
	EventID          string `json:"eventId"`
	PirepID          uint   `json:"pirepId"`
	PilotID          uint   `json:"pilotId"`
	OperatorCode     string `json:"operatorCode"`
	FlightNumber     string `json:"flightNumber"`
	DepartureAirport string `json:"departureAirport"`
	ArrivalAirport   string `json:"arrivalAirport"`
}

func PayloadFromFlight(f awards.FlightReviewed) ReconcileFlightPayload {
	return ReconcileFlightPayload{
		EventID:          f.EventID(),
		PirepID:          f.PirepID,
		PilotID:          f.PilotID,
		OperatorCode:     f.OperatorCode,
		FlightNumber:     f.FlightNumber,
		DepartureAirport: f.DepartureAirport,
		ArrivalAirport:   f.ArrivalAirport,
	}
}

// Flight rebuilds the approved-flight event. The event id is kept
// so replays can be correlated in logs.
func (p ReconcileFlightPayload) Flight() awards.FlightReviewed {
	base := events.NewBaseEvent()
	if p.EventID != "" {
		base.ID = p.EventID
	}
	return awards.FlightReviewed{
		BaseEvent:        base,
		PirepID:          p.PirepID,
		PilotID:          p.PilotID,
		OperatorCode:     p.OperatorCode,
		FlightNumber:     p.FlightNumber,
		DepartureAirport: p.DepartureAirport,
		ArrivalAirport:   p.ArrivalAirport,
		Approved:         true,
	}
}

func NewReconcileFlightTask(payload ReconcileFlightPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconcileFlight, data), nil
}

func ParseReconcileFlightPayload(task *asynq.Task) (ReconcileFlightPayload, error) {
	var payload ReconcileFlightPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ReconcileFlightPayload{}, err
	}
	return payload, nil
}

// replayTaskID makes repeated failures of one PIREP collapse into one queued task.
func replayTaskID(pirepID uint) string {
	return fmt.Sprintf("reconcile-flight-%d", pirepID)
}
