package tracker

import (
	"time"

	"github.com/lintang-b-s/transitx/pkg/datastructure"
	"github.com/lintang-b-s/transitx/pkg/matcher"
	"github.com/lintang-b-s/transitx/pkg/routemodel"
	"go.uber.org/zap"
)

// SchedAdhProcessor derives real-time schedule adherence from a confirmed
// match. Positive differences mean the vehicle is early.
type SchedAdhProcessor struct {
	log         *zap.Logger
	cfg         matcher.Config
	travelTimes *matcher.TravelTimes
}

func NewSchedAdhProcessor(log *zap.Logger, cfg matcher.Config,
	travelTimes *matcher.TravelTimes) *SchedAdhProcessor {
	return &SchedAdhProcessor{
		log:         log,
		cfg:         cfg,
		travelTimes: travelTimes,
	}
}

func (p *SchedAdhProcessor) newDifference(msec int64) *datastructure.TemporalDifference {
	d := datastructure.NewTemporalDifference(msec, p.cfg.EarlyToLateRatio)
	return &d
}

// Generate computes adherence for the match. At a scheduled stop it is the
// difference between the scheduled departure and the report time, with wait
// stops reading zero until the scheduled time passes since waiting there is
// not lateness. Between stops the expected arrival at the next scheduled
// stop is projected and compared instead. Returns nil when the trip has no
// schedule.
func (p *SchedAdhProcessor) Generate(vehicleID string, avlTime time.Time,
	match *matcher.SpatialMatch) *datastructure.TemporalDifference {
	if match.Trip().IsNoSchedule() {
		return nil
	}

	if atStop := match.AtStop(); atStop != nil {
		indices := atStop.Indices()
		if st := indices.ScheduleTime(); st.HasTime() {
			departureEpoch := routemodel.EpochForSecondsIntoDay(st.Time(), avlTime)
			if atStop.IsWaitStop() && avlTime.Before(departureEpoch) {
				return p.newDifference(0)
			}
			return p.newDifference(departureEpoch.Sub(avlTime).Milliseconds())
		}
	}

	// Not at a scheduled stop. Find the next stop with a schedule time and
	// project the expected arrival there.
	matchAtNextStop := match.MatchAtNextStopWithScheduleTime()
	if matchAtNextStop == nil {
		p.log.Debug("no upcoming scheduled stop for schedule adherence",
			zap.String("vehicleId", vehicleID))
		return nil
	}
	travelMsec := p.travelTimes.ExpectedTravelTimeBetweenMatchesAtMsec(vehicleID,
		avlTime, match, matchAtNextStop)
	indices := matchAtNextStop.Indices()
	st := indices.ScheduleTime()
	if !st.HasTime() {
		return nil
	}
	// The scheduled time is a departure, so the expected dwell at the stop
	// counts toward reaching it.
	travelMsec += indices.StopTimeForPathMsec()

	departureEpoch := routemodel.EpochForSecondsIntoDay(st.Time(), avlTime)
	adherenceMsec := departureEpoch.Sub(avlTime).Milliseconds() - travelMsec
	return p.newDifference(adherenceMsec)
}

// scheduledSecsForStopPath returns the scheduled time for the stop at the
// end of the stop path, or ok=false when the trip defines none there.
func scheduledSecsForStopPath(trip *routemodel.Trip, stopPathIndex int) (int, bool) {
	if stopPathIndex < 0 || stopPathIndex >= trip.NumStopPaths() {
		return 0, false
	}
	st := trip.StopPath(stopPathIndex).ScheduleTime()
	if !st.HasTime() {
		return 0, false
	}
	return st.Time(), true
}

// EffectiveScheduleDifference measures how far along the schedule the
// vehicle actually is, interpolating between surrounding scheduled stops by
// distance. Sign is flipped relative to Generate: positive means late.
// Returns nil for no-schedule trips.
func (p *SchedAdhProcessor) EffectiveScheduleDifference(vehicleID string,
	avlTime time.Time, match *matcher.SpatialMatch) *datastructure.TemporalDifference {
	trip := match.Trip()
	if trip.IsNoSchedule() {
		return nil
	}

	// Before the first stop of the trip the schedule has not started yet.
	// Early arrivals read as zero unless the previous trip of the block is
	// still scheduled to be running.
	if match.StopPathIndex() == 0 && !match.IsAtStop() {
		tripStartEpoch := routemodel.EpochForSecondsIntoDay(trip.StartTimeSecs(), avlTime)
		diffMsec := avlTime.Sub(tripStartEpoch).Milliseconds()
		if diffMsec < 0 {
			diffMsec = 0
			if match.TripIndex() > 0 {
				prevTrip := match.Block().Trip(match.TripIndex() - 1)
				prevEndEpoch := routemodel.EpochForSecondsIntoDay(prevTrip.EndTimeSecs(), avlTime)
				if avlTime.Before(prevEndEpoch) {
					diffMsec = avlTime.Sub(prevEndEpoch).Milliseconds()
				}
			}
		}
		return p.newDifference(diffMsec)
	}

	if atStop := match.AtStop(); atStop != nil {
		if secs, ok := scheduledSecsForStopPath(trip, atStop.StopPathIndex()); ok {
			epoch := routemodel.EpochForSecondsIntoDay(secs, avlTime)
			return p.newDifference(avlTime.Sub(epoch).Milliseconds())
		}
	}

	// Between stops: interpolate the scheduled time at the vehicle's
	// position from the schedule times of the surrounding stops.
	nextSecs, ok := scheduledSecsForStopPath(trip, match.StopPathIndex())
	if !ok {
		return nil
	}
	prevSecs, ok := scheduledSecsForStopPath(trip, match.StopPathIndex()-1)
	if !ok {
		prevSecs = trip.StartTimeSecs()
	}

	pathLength := match.StopPath().Length()
	fraction := 0.0
	if pathLength > 0 {
		fraction = match.DistanceAlongStopPath() / pathLength
	}
	interpolatedSecs := float64(prevSecs) + fraction*float64(nextSecs-prevSecs)
	epoch := routemodel.EpochForSecondsIntoDay(int(interpolatedSecs), avlTime)
	return p.newDifference(avlTime.Sub(epoch).Milliseconds())
}
