package matcher

import (
	"time"

	"github.com/lintang-b-s/transitx/pkg/geo"
	"github.com/lintang-b-s/transitx/pkg/routemodel"
	"go.uber.org/zap"
)

// TravelTimes estimates expected elapsed time between positions on a block
// from the per stop path travel-time tables. Read only, no side effects.
type TravelTimes struct {
	log *zap.Logger
	cfg Config
}

func NewTravelTimes(log *zap.Logger, cfg Config) *TravelTimes {
	return &TravelTimes{
		log: log,
		cfg: cfg,
	}
}

// TravelTimeAsTheCrowFliesMsec is a crude straight-line estimate using a
// two-tier speed model: the first part of the distance at a slow in-terminal
// speed, the remainder at a faster deadheading speed.
func (tt *TravelTimes) TravelTimeAsTheCrowFliesMsec(distance float64) int64 {
	shortDistanceTravel := distance
	longDistanceTravel := 0.0
	if distance > tt.cfg.DeadheadShortDistance {
		shortDistanceTravel = tt.cfg.DeadheadShortDistance
		longDistanceTravel = distance - tt.cfg.DeadheadShortDistance
	}

	roughTravelSecs := shortDistanceTravel/tt.cfg.DeadheadShortSpeed +
		longDistanceTravel/tt.cfg.DeadheadLongSpeed
	return int64(roughTravelSecs * 1000.0)
}

// TravelTimeFromLayoverArrivalToNewLocMsec estimates how long it takes to
// get from the layover stop preceding match to the current raw location.
// Used when a vehicle left a layover and matched further down the path.
func (tt *TravelTimes) TravelTimeFromLayoverArrivalToNewLocMsec(match *SpatialMatch,
	newLoc geo.Coordinate) int64 {
	previousStop := match.MatchAtPreviousStop()
	if previousStop == nil {
		return 0
	}
	endOfTripLocation := previousStop.StopPath().EndLocation()
	distance := geo.DistanceMeters(endOfTripLocation, newLoc)
	return tt.TravelTimeAsTheCrowFliesMsec(distance)
}

// adjustTravelTimeForWaitStop clamps the travel time forward so a vehicle
// is never expected to leave a wait stop before its scheduled departure.
func adjustTravelTimeForWaitStop(timeOfDaySecs int, travelTimeMsec int64,
	indices routemodel.Indices) int64 {
	scheduleTime := indices.ScheduleTime()
	if scheduleTime.DepartureSecs == routemodel.NoScheduleTime {
		return travelTimeMsec
	}
	if int64(timeOfDaySecs)*1000+travelTimeMsec <
		int64(scheduleTime.DepartureSecs)*1000 {
		return int64(scheduleTime.DepartureSecs-timeOfDaySecs) * 1000
	}
	return travelTimeMsec
}

// ScheduledDepartureTime returns the scheduled departure of the wait stop
// at indices as an absolute time, zero time when no schedule time exists.
func (tt *TravelTimes) ScheduledDepartureTime(indices routemodel.Indices,
	referenceTime time.Time) time.Time {
	if !indices.IsWaitStop() {
		tt.log.Error("scheduled departure requested for stop that is not a wait stop",
			zap.String("indices", indices.String()))
		return time.Time{}
	}
	scheduleTime := indices.ScheduleTime()
	if scheduleTime.DepartureSecs == routemodel.NoScheduleTime {
		return time.Time{}
	}
	return routemodel.EpochForSecondsIntoDay(scheduleTime.DepartureSecs, referenceTime)
}

type partialPathInfo struct {
	indexOfPartialSegment int
	fractionCompleted     float64
}

// travelTimeInfoForPartialPath locates the travel-time sub-segment the
// match falls on. Segment length is path length divided by the number of
// travel-time segments so older tables survive small geometry changes.
func travelTimeInfoForPartialPath(match *SpatialMatch) partialPathInfo {
	stopPath := match.StopPath()
	numSegments := stopPath.NumTravelSegments()
	segmentLength := stopPath.Length() / float64(numSegments)

	distanceAlongStopPath := match.DistanceAlongStopPath()
	index := 0
	fraction := 0.0
	if segmentLength > 0 {
		index = int(distanceAlongStopPath / segmentLength)
		if index >= numSegments {
			index = numSegments - 1
		}
		completed := distanceAlongStopPath - float64(index)*segmentLength
		fraction = completed / segmentLength
	}
	return partialPathInfo{
		indexOfPartialSegment: index,
		fractionCompleted:     fraction,
	}
}

// ExpectedTravelTimeFromMatchToEndOfStopPathMsec excludes the dwell at the
// stop ending the path.
func (tt *TravelTimes) ExpectedTravelTimeFromMatchToEndOfStopPathMsec(match *SpatialMatch) int64 {
	stopPath := match.StopPath()
	info := travelTimeInfoForPartialPath(match)

	partialSegTime := stopPath.TravelSegMsec(info.indexOfPartialSegment)
	travelTimeMsec := int64(float64(partialSegTime) * (1 - info.fractionCompleted))
	for i := info.indexOfPartialSegment + 1; i < stopPath.NumTravelSegments(); i++ {
		travelTimeMsec += stopPath.TravelSegMsec(i)
	}
	return travelTimeMsec
}

// ExpectedTravelTimeFromBeginningOfStopPathToMatchMsec excludes dwell.
func (tt *TravelTimes) ExpectedTravelTimeFromBeginningOfStopPathToMatchMsec(match *SpatialMatch) int64 {
	stopPath := match.StopPath()
	info := travelTimeInfoForPartialPath(match)

	var travelTimeMsec int64
	for i := 0; i < info.indexOfPartialSegment; i++ {
		travelTimeMsec += stopPath.TravelSegMsec(i)
	}
	partialSegTime := stopPath.TravelSegMsec(info.indexOfPartialSegment)
	travelTimeMsec += int64(float64(partialSegTime) * info.fractionCompleted)
	return travelTimeMsec
}

// ExpectedTravelTimeBetweenMatchesMsec determines the expected travel time
// between the two matches, including dwell and wait-stop clamping at every
// crossed stop boundary. Returns 0 when match2 is before match1, which for
// schedule based blocks indicates a matching error and is logged.
func (tt *TravelTimes) ExpectedTravelTimeBetweenMatchesMsec(vehicleID string,
	timeOfDaySecs int, match1, match2 *SpatialMatch) int64 {
	indices := match1.Indices()
	endIndices := match2.Indices()

	if !match2.Block().IsNoSchedule() && match2.LessThan(match1) {
		tt.log.Error("match2 is before match1, returning travel time of 0",
			zap.String("vehicleId", vehicleID),
			zap.String("match1", match1.String()),
			zap.String("match2", match2.String()))
		return 0
	}

	// Travel time from the start location to the end of its stop path.
	travelTimeMsec := tt.ExpectedTravelTimeFromMatchToEndOfStopPathMsec(match1)

	// When both matches are on the same stop path the first-partial plus
	// last-partial additions double count the full path, subtract it out.
	if indices.EqualStopPath(endIndices) {
		travelTimeMsec -= indices.TravelTimeForPathMsec()
	} else {
		travelTimeMsec += indices.StopTimeForPathMsec()
	}

	if !indices.Equal(endIndices) && indices.IsWaitStop() {
		travelTimeMsec = adjustTravelTimeForWaitStop(timeOfDaySecs, travelTimeMsec, indices)
	}

	// No-schedule blocks loop back on themselves so the stop path walk must
	// be skipped when match2 is simply further along the same path.
	epoch := routemodel.EpochForSecondsIntoDay(timeOfDaySecs, match1.AvlTime())
	specialNoSchedCase := indices.Block().IsNoSchedule() &&
		indices.StopPathIndex() == endIndices.StopPathIndex() &&
		match1.DistanceAlongStopPath() < match2.DistanceAlongStopPath()

	if !specialNoSchedCase {
		indices.IncrementStopPath(epoch)
		for indices.IsEarlierStopPathThan(endIndices) {
			travelTimeMsec += indices.TravelTimeForPathMsec()
			travelTimeMsec += indices.StopTimeForPathMsec()
			if indices.IsWaitStop() {
				travelTimeMsec = adjustTravelTimeForWaitStop(timeOfDaySecs, travelTimeMsec, indices)
			}
			indices.IncrementStopPath(epoch)
		}
	}

	travelTimeMsec += tt.ExpectedTravelTimeFromBeginningOfStopPathToMatchMsec(match2)
	return travelTimeMsec
}

// ExpectedTravelTimeBetweenMatchesAtMsec is the time.Time convenience form.
func (tt *TravelTimes) ExpectedTravelTimeBetweenMatchesAtMsec(vehicleID string,
	t time.Time, match1, match2 *SpatialMatch) int64 {
	return tt.ExpectedTravelTimeBetweenMatchesMsec(vehicleID,
		routemodel.SecondsIntoDay(t), match1, match2)
}
