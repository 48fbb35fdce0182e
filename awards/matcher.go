package awards

import (
	"strings"

	"github.com/Dalmocabral/crewcenter/models"
)

// ApprovedFlight is the slice of an approved PIREP the engine reads.
type ApprovedFlight struct {
	ID               uint
	PilotID          uint
	DepartureAirport string
	ArrivalAirport   string
	Aircraft         string
	OperatorCode     string
}

// FlightFromPirep converts a stored report into matcher input.
func FlightFromPirep(p models.PirepFlight) ApprovedFlight {
	return ApprovedFlight{
		ID:               p.ID,
		PilotID:          p.PilotID,
		DepartureAirport: models.NormalizeCode(p.DepartureAirport),
		ArrivalAirport:   models.NormalizeCode(p.ArrivalAirport),
		Aircraft:         strings.TrimSpace(p.Aircraft),
		OperatorCode:     models.NormalizeCode(p.FlightICAO),
	}
}

// Mismatch names the criterion a flight failed for a leg. Empty means match.
type Mismatch string

const (
	MismatchNone     Mismatch = ""
	MismatchRoute    Mismatch = "route"
	MismatchAircraft Mismatch = "aircraft"
	MismatchOperator Mismatch = "operator"
)

// Criteria holds an award's whitelists. An empty whitelist matches anything.
type Criteria struct {
	aircraft  map[string]struct{}
	operators map[string]struct{}
}

func NewCriteria(award *models.Award) Criteria {
	c := Criteria{
		aircraft:  make(map[string]struct{}, len(award.AllowedAircraft)),
		operators: make(map[string]struct{}, len(award.AllowedOperators)),
	}
	for _, a := range award.AllowedAircraft {
		c.aircraft[strings.TrimSpace(a.Code)] = struct{}{}
	}
	for _, o := range award.AllowedOperators {
		c.operators[models.NormalizeCode(o.Code)] = struct{}{}
	}
	return c
}

// Check returns the first criterion the flight fails for leg.
func (c Criteria) Check(leg models.Leg, f ApprovedFlight) Mismatch {
	if f.DepartureAirport != leg.FromAirport || f.ArrivalAirport != leg.ToAirport {
		return MismatchRoute
	}
	if len(c.aircraft) > 0 {
		if _, ok := c.aircraft[f.Aircraft]; !ok {
			return MismatchAircraft
		}
	}
	if len(c.operators) > 0 {
		if _, ok := c.operators[models.NormalizeCode(f.OperatorCode)]; !ok {
			return MismatchOperator
		}
	}
	return MismatchNone
}

// Matches reports whether f satisfies leg.
func (c Criteria) Matches(leg models.Leg, f ApprovedFlight) bool {
	return c.Check(leg, f) == MismatchNone
}
