package awards

import (
	"go.uber.org/zap"

	"github.com/Dalmocabral/crewcenter/models"
)

// Result is the outcome of recomputing one pilot's progress on one award.
type Result struct {
	Progress       int
	CompletedLegs  int
	TotalLegs      int
	NewlyCompleted bool
}

// Aggregator computes award progress from a pilot's full approved-flight set.
type Aggregator struct {
	log *zap.Logger
}

func NewAggregator(log *zap.Logger) *Aggregator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{log: log}
}

// Recompute counts the legs satisfied by at least one flight. One flight may
// satisfy several legs. Progress is floored to an integer percentage and is 0
// for an award without legs. NewlyCompleted is set only when the record has
// no end date yet.
func (a *Aggregator) Recompute(award *models.Award, record models.UserAward, flights []ApprovedFlight) Result {
	res := Result{TotalLegs: len(award.Legs)}
	if res.TotalLegs == 0 {
		return res
	}

	criteria := NewCriteria(award)
	for _, leg := range award.Legs {
		matchedBy, reason := a.firstMatch(criteria, leg, flights)
		fields := []zap.Field{
			zap.Uint("pilot_id", record.UserID),
			zap.Uint("award_id", award.ID),
			zap.Uint("leg_id", leg.ID),
			zap.String("route", leg.FromAirport+"-"+leg.ToAirport),
		}
		if matchedBy != nil {
			res.CompletedLegs++
			a.log.Debug("leg matched", append(fields, zap.Bool("matched", true), zap.Uint("flight_id", matchedBy.ID))...)
			continue
		}
		a.log.Debug("leg not matched", append(fields, zap.Bool("matched", false), zap.String("failed", string(reason)))...)
	}

	res.Progress = res.CompletedLegs * 100 / res.TotalLegs
	res.NewlyCompleted = res.Progress == 100 && record.EndDate == nil
	return res
}

// firstMatch returns the first flight that satisfies leg. When none does, the
// reason is the furthest criterion reached by any flight on the leg's route.
func (a *Aggregator) firstMatch(c Criteria, leg models.Leg, flights []ApprovedFlight) (*ApprovedFlight, Mismatch) {
	reason := MismatchRoute
	for i := range flights {
		switch m := c.Check(leg, flights[i]); m {
		case MismatchNone:
			return &flights[i], MismatchNone
		case MismatchOperator:
			reason = MismatchOperator
		case MismatchAircraft:
			if reason == MismatchRoute {
				reason = MismatchAircraft
			}
		}
	}
	return nil, reason
}
