package matcher

import (
	"fmt"

	"github.com/lintang-b-s/transitx/pkg/datastructure"
)

// TemporalMatch is a spatial match that has been confirmed to make sense
// in time, together with how far off the vehicle is from where it is
// expected to be.
type TemporalMatch struct {
	*SpatialMatch
	temporalDifference datastructure.TemporalDifference
}

func NewTemporalMatch(spatialMatch *SpatialMatch,
	temporalDifference datastructure.TemporalDifference) *TemporalMatch {
	return &TemporalMatch{
		SpatialMatch:       spatialMatch,
		temporalDifference: temporalDifference,
	}
}

func (tm *TemporalMatch) TemporalDifference() datastructure.TemporalDifference {
	return tm.temporalDifference
}

func (tm *TemporalMatch) String() string {
	return fmt.Sprintf("%s temporalDifference=%s",
		tm.SpatialMatch.String(), tm.temporalDifference.String())
}
