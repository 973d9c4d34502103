package matcher

import (
	"time"

	"github.com/lintang-b-s/transitx/pkg/datastructure"
	"github.com/lintang-b-s/transitx/pkg/geo"
	"github.com/lintang-b-s/transitx/pkg/routemodel"
	"go.uber.org/zap"
)

const msecPerDay = int64(24 * time.Hour / time.Millisecond)

// TemporalMatcher decides which of the spatial match candidates makes the
// most sense in time, by comparing the elapsed time between reports with
// the expected travel time between the previous match and each candidate.
type TemporalMatcher struct {
	log         *zap.Logger
	cfg         Config
	travelTimes *TravelTimes
}

func NewTemporalMatcher(log *zap.Logger, cfg Config, travelTimes *TravelTimes) *TemporalMatcher {
	return &TemporalMatcher{
		log:         log,
		cfg:         cfg,
		travelTimes: travelTimes,
	}
}

func (tm *TemporalMatcher) newDifference(msec int64) datastructure.TemporalDifference {
	return datastructure.NewTemporalDifference(msec, tm.cfg.EarlyToLateRatio)
}

// determineHowFarOffScheduledTime compares the report time against the
// trip start time plus the expected travel time from the start of the trip
// to the match. Used when first matching a vehicle to an assignment, where
// there is no previous match to anchor on. Returns nil when the difference
// is beyond the allowable bounds for initial matching.
func (tm *TemporalMatcher) determineHowFarOffScheduledTime(vehicleID string,
	avlTime time.Time, spatialMatch *SpatialMatch,
	isFirstSpatialMatch bool) *datastructure.TemporalDifference {
	// Frequency based trips have no schedule so cannot be late.
	if spatialMatch.Trip().IsNoSchedule() {
		diff := tm.newDifference(0)
		return &diff
	}

	beginningOfTrip := NewSpatialMatch(avlTime, spatialMatch.Block(),
		spatialMatch.TripIndex(), 0, 0, 0.0, 0.0)
	tripStartTimeSecs := spatialMatch.Trip().StartTimeSecs()
	travelTimeForCurrentTrip := tm.travelTimes.ExpectedTravelTimeBetweenMatchesMsec(
		vehicleID, tripStartTimeSecs, beginningOfTrip, spatialMatch)

	msecIntoDayExpectedAtMatch := int64(tripStartTimeSecs)*1000 + travelTimeForCurrentTrip
	avlMsecIntoDay := int64(routemodel.SecondsIntoDay(avlTime)) * 1000
	earlyMsec := msecIntoDayExpectedAtMatch - avlMsecIntoDay

	// Trips can start before midnight or run past it, so also consider the
	// difference shifted by a day in each direction and keep the best.
	deltaFromSchedule := tm.newDifference(earlyMsec)
	beforeMidnightDelta := tm.newDifference(earlyMsec - msecPerDay)
	afterMidnightDelta := tm.newDifference(earlyMsec + msecPerDay)
	if beforeMidnightDelta.BetterThan(&deltaFromSchedule) {
		deltaFromSchedule = beforeMidnightDelta
	}
	if afterMidnightDelta.BetterThan(&deltaFromSchedule) {
		deltaFromSchedule = afterMidnightDelta
	}

	if !deltaFromSchedule.IsWithinBounds(tm.cfg.AllowableEarlyInitial,
		tm.cfg.AllowableLateInitial) {
		tm.log.Debug("match not within bounds for initial matching",
			zap.String("vehicleId", vehicleID),
			zap.String("difference", deltaFromSchedule.String()),
			zap.String("match", spatialMatch.String()))
		return nil
	}

	// Favor regular matches over layovers when the vehicle could match to
	// both a middle of a trip and a layover. Important when the system
	// starts up while vehicles are already running. The first spatial
	// match is exempt so a vehicle actually waiting at the layover at the
	// beginning of its trip still matches there.
	if spatialMatch.IsLayover() && !isFirstSpatialMatch {
		deltaFromSchedule = deltaFromSchedule.AddTime(
			tm.cfg.AllowableLateInitial.Milliseconds())
	}
	return &deltaFromSchedule
}

// temporalDifferenceForSpecialLayover handles a match to a layover stop
// when the vehicle had enough time to get there. If it was already at this
// layover the expected travel time is 0 and the vehicle is only late once
// the scheduled departure has passed. Otherwise having had enough time to
// reach the layover means the difference is simply 0.
func (tm *TemporalMatcher) temporalDifferenceForSpecialLayover(vehicleID string,
	avlTime time.Time, spatialMatch *SpatialMatch,
	expectedTravelTimeMsec int64) datastructure.TemporalDifference {
	if expectedTravelTimeMsec == 0 {
		scheduledDeparture := spatialMatch.ScheduledWaitStopTime()
		if !scheduledDeparture.IsZero() && avlTime.After(scheduledDeparture) {
			tm.log.Debug("vehicle still at layover after scheduled departure",
				zap.String("vehicleId", vehicleID),
				zap.Time("avlTime", avlTime),
				zap.Time("scheduledDeparture", scheduledDeparture))
			return tm.newDifference(scheduledDeparture.Sub(avlTime).Milliseconds())
		}
		return tm.newDifference(0)
	}
	return tm.newDifference(0)
}

// currentMatchIsBetter decides whether the current spatial match with its
// temporal difference should replace the best temporal match so far.
func (tm *TemporalMatcher) currentMatchIsBetter(bestSoFar *TemporalMatch,
	currentMatch *SpatialMatch,
	differenceFromExpectedTime *datastructure.TemporalDifference) bool {
	if currentMatch == nil || differenceFromExpectedTime == nil {
		return false
	}
	if bestSoFar == nil {
		return true
	}
	best := bestSoFar.TemporalDifference()
	if differenceFromExpectedTime.BetterThanOrEqualTo(&best) {
		return true
	}

	// The current match does not look better, but if the vehicle departed
	// the layover early it should still be used. Otherwise the vehicle
	// would stay stuck on the layover match because late is considered
	// better than early.
	earlyDeparture := bestSoFar.IsLayover() &&
		currentMatch.DistanceFromBeginningOfTrip() > tm.cfg.DistanceFromLayoverForED &&
		differenceFromExpectedTime.Msec() >= 0 &&
		differenceFromExpectedTime.Msec() < tm.cfg.AllowableEarlyDeparture.Milliseconds()
	return earlyDeparture
}

// isProblematicLayover detects the case where a vehicle left a layover
// slightly early and the expected travel time back to the layover and then
// forward makes the system keep wrongly matching it to the layover. Such a
// layover match must be skipped, but only when the scheduled wait time has
// passed, the vehicle is moving away from the layover, and there is a
// subsequent non-layover match to use instead.
func (tm *TemporalMatcher) isProblematicLayover(previousMatch *TemporalMatch,
	spatialMatches []*SpatialMatch, matchIdx int) bool {
	spatialMatch := spatialMatches[matchIdx]

	if !previousMatch.IsLayover() {
		return false
	}
	prevIndices := previousMatch.Indices()
	if !prevIndices.EqualStopPath(spatialMatch.Indices()) {
		return false
	}

	scheduledDeparture := spatialMatch.ScheduledWaitStopTime()
	if scheduledDeparture.IsZero() || spatialMatch.AvlTime().Before(scheduledDeparture) {
		return false
	}

	if spatialMatch.DistanceToSegment() <= previousMatch.DistanceToSegment() {
		return false
	}

	for i := matchIdx + 1; i < len(spatialMatches); i++ {
		if !spatialMatches[i].IsLayover() {
			return true
		}
	}
	return false
}

// BestTemporalMatch determines which spatial match makes the most sense
// for an already predictable vehicle by comparing the elapsed time since
// the previous report with the expected travel time from the previous
// match to each candidate. Returns nil when no candidate is adequate.
func (tm *TemporalMatcher) BestTemporalMatch(avlReport datastructure.AvlReport,
	previousAvlTime time.Time, previousMatch *TemporalMatch,
	spatialMatches []*SpatialMatch) *TemporalMatch {
	avlTimeDifferenceMsec := avlReport.Time.Sub(previousAvlTime).Milliseconds()

	// A single candidate on a frequency based trip is trusted outright.
	if len(spatialMatches) == 1 && spatialMatches[0].Trip().IsNoSchedule() {
		return NewTemporalMatch(spatialMatches[0], tm.newDifference(0))
	}

	var bestTemporalMatchSoFar *TemporalMatch
	for matchIdx, spatialMatch := range spatialMatches {
		if tm.isProblematicLayover(previousMatch, spatialMatches, matchIdx) {
			tm.log.Warn("ignoring layover match that would block matching past the layover",
				zap.String("vehicleId", avlReport.VehicleID),
				zap.String("match", spatialMatch.String()))
			continue
		}

		expectedTravelTimeMsec := tm.travelTimes.ExpectedTravelTimeBetweenMatchesAtMsec(
			avlReport.VehicleID, previousAvlTime,
			previousMatch.SpatialMatch, spatialMatch)

		// A layover match on a different stop path means the vehicle is
		// expected to have arrived at the layover and possibly moved off
		// route, so add the crow flies time from the layover to the
		// reported location.
		if spatialMatch.IsLayover() &&
			!previousMatch.Indices().EqualStopPath(spatialMatch.Indices()) {
			expectedTravelTimeMsec += tm.travelTimes.TravelTimeFromLayoverArrivalToNewLocMsec(
				spatialMatch, avlReport.Location())
		}

		var differenceFromExpectedTime *datastructure.TemporalDifference
		if !spatialMatch.IsLayover() || avlTimeDifferenceMsec <= expectedTravelTimeMsec {
			diff := tm.newDifference(expectedTravelTimeMsec - avlTimeDifferenceMsec)
			differenceFromExpectedTime = &diff
		} else {
			diff := tm.temporalDifferenceForSpecialLayover(avlReport.VehicleID,
				avlReport.Time, spatialMatch, expectedTravelTimeMsec)
			differenceFromExpectedTime = &diff
		}

		// Only reject out of bounds differences when the expected travel
		// time is significant, small ones are just noise.
		if differenceFromExpectedTime != nil &&
			expectedTravelTimeMsec > tm.cfg.TemporalBoundExemption.Milliseconds() &&
			!differenceFromExpectedTime.IsWithinBounds(tm.cfg.AllowableEarly, tm.cfg.AllowableLate) {
			tm.log.Debug("rejecting temporal match outside allowable bounds",
				zap.String("vehicleId", avlReport.VehicleID),
				zap.String("difference", differenceFromExpectedTime.String()))
			differenceFromExpectedTime = nil
		}

		if tm.currentMatchIsBetter(bestTemporalMatchSoFar, spatialMatch,
			differenceFromExpectedTime) {
			bestTemporalMatchSoFar = NewTemporalMatch(spatialMatch,
				*differenceFromExpectedTime)
		} else if bestTemporalMatchSoFar != nil {
			// The matches only get worse further along the block, so once
			// one has been found there is no point continuing.
			break
		}
	}

	return bestTemporalMatchSoFar
}

// BestTemporalMatchComparedToSchedule picks the candidate whose position
// best agrees with where the schedule says the vehicle should be. Used
// when first matching a vehicle to an assignment, where there is no
// previous report to compare against. Returns nil when no candidate is
// adequate.
func (tm *TemporalMatcher) BestTemporalMatchComparedToSchedule(
	avlReport datastructure.AvlReport, spatialMatches []*SpatialMatch) *TemporalMatch {
	if len(spatialMatches) == 1 && spatialMatches[0].Trip().IsNoSchedule() {
		return NewTemporalMatch(spatialMatches[0], tm.newDifference(0))
	}

	var bestDifference *datastructure.TemporalDifference
	var bestSpatialMatch *SpatialMatch
	for i, spatialMatch := range spatialMatches {
		isFirstSpatialMatch := i == 0
		differenceFromExpectedTime := tm.determineHowFarOffScheduledTime(
			avlReport.VehicleID, avlReport.Time, spatialMatch, isFirstSpatialMatch)

		if differenceFromExpectedTime != nil &&
			(bestDifference == nil || differenceFromExpectedTime.BetterThan(bestDifference)) {
			bestDifference = differenceFromExpectedTime
			bestSpatialMatch = spatialMatch
		}
	}

	if bestSpatialMatch == nil || bestDifference == nil {
		tm.log.Debug("no adequate temporal match against schedule",
			zap.String("vehicleId", avlReport.VehicleID))
		return nil
	}
	return NewTemporalMatch(bestSpatialMatch, *bestDifference)
}

// canDeadheadToBeginningOfTripInTime determines whether the vehicle could
// travel as the crow flies to the start of the trip before the trip's
// scheduled start time.
func (tm *TemporalMatcher) canDeadheadToBeginningOfTripInTime(
	avlReport datastructure.AvlReport, trip *routemodel.Trip) bool {
	tripStartTimeMsec := int64(trip.StartTimeSecs()) * 1000
	msecIntoDay := int64(avlReport.SecondsIntoDay()) * 1000
	if msecIntoDay >= tripStartTimeMsec {
		return false
	}

	availableTimeMsec := tripStartTimeMsec - msecIntoDay
	tripStartLoc := trip.StopPath(0).EndLocation()
	distance := geo.DistanceMeters(avlReport.Location(), tripStartLoc)
	crowFliesTimeMsec := tm.travelTimes.TravelTimeAsTheCrowFliesMsec(distance)
	return crowFliesTimeMsec < availableTimeMsec
}

// MatchToLayoverStopEvenIfOffRoute returns the first of the potential
// trips whose start the vehicle could still reach in time, nil when there
// is none. Only upcoming trips should be passed in, otherwise a vehicle
// could get matched to the first trip of the next day.
func (tm *TemporalMatcher) MatchToLayoverStopEvenIfOffRoute(
	avlReport datastructure.AvlReport, potentialTrips []*routemodel.Trip) *routemodel.Trip {
	for _, trip := range potentialTrips {
		if tm.canDeadheadToBeginningOfTripInTime(avlReport, trip) {
			return trip
		}
	}
	return nil
}
