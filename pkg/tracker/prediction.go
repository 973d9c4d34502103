package tracker

import (
	"time"

	"github.com/lintang-b-s/transitx/pkg/datastructure"
	"github.com/lintang-b-s/transitx/pkg/geo"
	"github.com/lintang-b-s/transitx/pkg/matcher"
	"github.com/lintang-b-s/transitx/pkg/routemodel"
	"go.uber.org/zap"
)

// PredictionGenerator walks the block forward from a vehicle's match and
// produces per-stop predicted times up to the configured horizon. Wait
// stops are the involved part: a vehicle is expected to sit until the max
// of its scheduled departure, its arrival plus historic dwell, and the
// driver's break.
type PredictionGenerator struct {
	log         *zap.Logger
	cfg         Config
	matcherCfg  matcher.Config
	travelTimes *matcher.TravelTimes
	clock       Clock
}

func NewPredictionGenerator(log *zap.Logger, cfg Config, matcherCfg matcher.Config,
	travelTimes *matcher.TravelTimes, clock Clock) *PredictionGenerator {
	return &PredictionGenerator{
		log:         log,
		cfg:         cfg,
		matcherCfg:  matcherCfg,
		travelTimes: travelTimes,
		clock:       clock,
	}
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

// predictionForStop builds the prediction for one stop. The returned
// walkTime is the time to continue the block walk from, which for wait
// stops can differ from the published time when configured to show users
// the exact schedule time.
func (g *PredictionGenerator) predictionForStop(vs *VehicleState,
	indices routemodel.Indices, predictionTime time.Time, useArrivalTimes,
	affectedByWaitStop, uncertain bool) (datastructure.Prediction, time.Time) {
	report := vs.AvlReport()
	stopPath := indices.StopPath()
	trip := indices.Trip()

	pred := datastructure.Prediction{
		VehicleID:          vs.VehicleID(),
		StopID:             stopPath.StopID(),
		GtfsStopSequence:   stopPath.GtfsStopSeq(),
		TripID:             trip.ID(),
		RouteID:            trip.RouteID(),
		AffectedByWaitStop: affectedByWaitStop,
		Uncertain:          uncertain,
		SchedBased:         vs.IsSchedBased(),
		AvlTime:            report.Time,
	}

	// Arrival prediction at end of trip or when configured for normal
	// stops, but never at a wait stop where the departure is what matters.
	if (indices.AtEndOfTrip() || useArrivalTimes) && !indices.IsWaitStop() {
		pred.IsArrival = true
		pred.Time = predictionTime
		return pred, predictionTime
	}

	expectedStopMsec := indices.StopTimeForPathMsec()

	if !indices.IsWaitStop() {
		pred.Time = addMsec(predictionTime, expectedStopMsec)
		return pred, pred.Time
	}

	// Wait stop. Start from the projected arrival and make sure the
	// vehicle can even physically get there in time.
	arrivalTime := predictionTime
	deadheading := false
	distanceToStop := geo.DistanceMeters(report.Location(), stopPath.EndLocation())
	crowFliesMsec := g.travelTimes.TravelTimeAsTheCrowFliesMsec(distanceToStop)
	if earliest := addMsec(report.Time, crowFliesMsec); earliest.After(arrivalTime) {
		arrivalTime = earliest
		deadheading = true
	}

	scheduledDeparture := g.travelTimes.ScheduledDepartureTime(indices, arrivalTime)
	expectedDeparture := addMsec(arrivalTime, expectedStopMsec)
	if !scheduledDeparture.IsZero() {
		expectedDeparture = maxTime(expectedDeparture, scheduledDeparture)
	}

	// Deadheading drivers are assumed to have had their break elsewhere.
	if !deadheading && stopPath.BreakTimeSecs() > 0 {
		withBreak := addMsec(predictionTime, int64(stopPath.BreakTimeSecs())*1000)
		expectedDeparture = maxTime(expectedDeparture, withBreak)
	}

	if g.cfg.UseExactSchedTimeForLayover && !scheduledDeparture.IsZero() {
		// Publish the schedule time, which is what riders expect at a
		// timepoint, but keep walking from the expected departure.
		userTime := maxTime(arrivalTime, scheduledDeparture)
		if !deadheading && stopPath.BreakTimeSecs() > 0 {
			userTime = maxTime(userTime,
				addMsec(predictionTime, int64(stopPath.BreakTimeSecs())*1000))
		}
		pred.Time = userTime
		return pred, expectedDeparture
	}

	pred.Time = expectedDeparture
	return pred, expectedDeparture
}

// Generate produces the prediction list for the vehicle's current match.
func (g *PredictionGenerator) Generate(vs *VehicleState) []datastructure.Prediction {
	match := vs.Match()
	if match == nil {
		return nil
	}
	report := vs.AvlReport()
	avlTime := report.Time
	schedBased := vs.IsSchedBased()
	now := g.clock.Now()
	horizon := avlTime.Add(g.cfg.PredictionHorizon)

	// Vehicles far behind schedule may have their later trips taken over
	// by another vehicle, so those predictions are marked uncertain.
	lateSoUncertain := false
	if adh := vs.RealTimeSchedAdh(); adh != nil && g.cfg.MaxLateForNextTrips > 0 {
		lateSoUncertain = adh.IsLate() &&
			-adh.Msec() > msec(g.cfg.MaxLateForNextTrips)
	}
	currentTripIndex := match.TripIndex()

	indices := match.Indices()
	predictionTime := addMsec(avlTime,
		g.travelTimes.ExpectedTravelTimeFromMatchToEndOfStopPathMsec(match.SpatialMatch))

	affectedByWaitStop := false
	var predictions []datastructure.Prediction

	for schedBased || predictionTime.Before(horizon) {
		if indices.IsWaitStop() {
			affectedByWaitStop = true
		}
		uncertain := lateSoUncertain && indices.TripIndex() > currentTripIndex

		pred, walkTime := g.predictionForStop(vs, indices, predictionTime,
			g.cfg.UseArrivalPredsNormalStops, affectedByWaitStop, uncertain)

		// Departure predictions add dwell on top of the arrival so they
		// can overshoot the horizon even when the walk itself has not.
		if !schedBased && pred.Time.After(horizon) {
			break
		}

		// For frequency based blocks the last stop of a trip duplicates
		// the first stop of the next one.
		lastStopOfNoSchedTrip := indices.Block().IsNoSchedule() && indices.AtEndOfTrip()
		if !lastStopOfNoSchedTrip && pred.Time.After(now) {
			predictions = append(predictions, pred)
		}

		predictionTime = walkTime
		if pred.IsArrival {
			predictionTime = addMsec(predictionTime, indices.StopTimeForPathMsec())
		}
		indices.IncrementStopPath(predictionTime)
		if indices.PastEndOfBlock(predictionTime) {
			g.log.Debug("reached end of block generating predictions",
				zap.String("vehicleId", vs.VehicleID()))
			break
		}
		predictionTime = addMsec(predictionTime, indices.TravelTimeForPathMsec())
	}
	return predictions
}
