package awards

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Dalmocabral/crewcenter/models"
)

func TestCriteriaCheck(t *testing.T) {
	leg := models.Leg{ID: 1, FromAirport: "KJFK", ToAirport: "EGLL"}
	restricted := &models.Award{
		AllowedAircraft:  []models.AllowedAircraft{{Code: "B77W"}, {Code: "A359"}},
		AllowedOperators: []models.AllowedOperatorCode{{Code: "BAW"}},
	}
	flight := func(dep, arr, aircraft, op string) ApprovedFlight {
		return ApprovedFlight{DepartureAirport: dep, ArrivalAirport: arr, Aircraft: aircraft, OperatorCode: op}
	}

	tests := []struct {
		name   string
		award  *models.Award
		flight ApprovedFlight
		want   Mismatch
	}{
		{"wildcard award matches on route alone", &models.Award{}, flight("KJFK", "EGLL", "C172", "XXX"), MismatchNone},
		{"wrong departure", &models.Award{}, flight("KBOS", "EGLL", "B77W", "BAW"), MismatchRoute},
		{"reversed route", &models.Award{}, flight("EGLL", "KJFK", "B77W", "BAW"), MismatchRoute},
		{"all criteria pass", restricted, flight("KJFK", "EGLL", "A359", "BAW"), MismatchNone},
		{"aircraft not allowed", restricted, flight("KJFK", "EGLL", "B738", "BAW"), MismatchAircraft},
		{"operator not allowed", restricted, flight("KJFK", "EGLL", "B77W", "VIR"), MismatchOperator},
		{"operator is case insensitive", restricted, flight("KJFK", "EGLL", "B77W", "baw"), MismatchNone},
		{"route checked before whitelists", restricted, flight("KJFK", "LFPG", "B738", "VIR"), MismatchRoute},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := NewCriteria(tc.award)
			assert.Equal(t, tc.want, c.Check(leg, tc.flight))
			assert.Equal(t, tc.want == MismatchNone, c.Matches(leg, tc.flight))
		})
	}
}

func TestCriteriaOnlyAircraftRestricted(t *testing.T) {
	award := &models.Award{AllowedAircraft: []models.AllowedAircraft{{Code: "A320"}}}
	leg := models.Leg{FromAirport: "SBGR", ToAirport: "SBRJ"}
	c := NewCriteria(award)

	assert.True(t, c.Matches(leg, ApprovedFlight{DepartureAirport: "SBGR", ArrivalAirport: "SBRJ", Aircraft: "A320", OperatorCode: "AZU"}))
	assert.True(t, c.Matches(leg, ApprovedFlight{DepartureAirport: "SBGR", ArrivalAirport: "SBRJ", Aircraft: "A320", OperatorCode: "GLO"}))
	assert.False(t, c.Matches(leg, ApprovedFlight{DepartureAirport: "SBGR", ArrivalAirport: "SBRJ", Aircraft: "E195", OperatorCode: "AZU"}))
}

func TestFlightFromPirepNormalizes(t *testing.T) {
	f := FlightFromPirep(models.PirepFlight{
		ID: 9, PilotID: 3, FlightICAO: " tap ", DepartureAirport: "lppt", ArrivalAirport: "sbgr ", Aircraft: " A339 ",
	})
	assert.Equal(t, ApprovedFlight{ID: 9, PilotID: 3, DepartureAirport: "LPPT", ArrivalAirport: "SBGR", Aircraft: "A339", OperatorCode: "TAP"}, f)
}
