package tracker

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/lintang-b-s/transitx/pkg/datastructure"
	"github.com/lintang-b-s/transitx/pkg/matcher"
	"github.com/lintang-b-s/transitx/pkg/routemodel"
	"go.uber.org/zap"
)

// ArrivalDepartureGenerator derives the arrival/departure events for every
// stop boundary a vehicle traversed between its previous and new confirmed
// match. It only returns the events, persistence and publication are the
// caller's concern.
type ArrivalDepartureGenerator struct {
	log         *zap.Logger
	cfg         Config
	matcherCfg  matcher.Config
	travelTimes *matcher.TravelTimes
}

func NewArrivalDepartureGenerator(log *zap.Logger, cfg Config,
	matcherCfg matcher.Config, travelTimes *matcher.TravelTimes) *ArrivalDepartureGenerator {
	return &ArrivalDepartureGenerator{
		log:         log,
		cfg:         cfg,
		matcherCfg:  matcherCfg,
		travelTimes: travelTimes,
	}
}

func msec(d time.Duration) int64 { return d.Milliseconds() }

func addMsec(t time.Time, m int64) time.Time {
	return t.Add(time.Duration(m) * time.Millisecond)
}

func (g *ArrivalDepartureGenerator) arrival(vs *VehicleState, t time.Time,
	block *routemodel.Block, tripIndex, stopPathIndex int) datastructure.ArrivalDeparture {
	ad := datastructure.ArrivalDeparture{
		VehicleID:     vs.VehicleID(),
		BlockID:       block.ID(),
		TripID:        block.Trip(tripIndex).ID(),
		TripIndex:     tripIndex,
		StopPathIndex: stopPathIndex,
		StopID:        block.StopPath(tripIndex, stopPathIndex).StopID(),
		IsArrival:     true,
		Time:          t,
		AvlTime:       vs.AvlReport().Time,
	}
	vs.NoteArrival(t, stopPathIndex)
	return ad
}

func (g *ArrivalDepartureGenerator) departure(vs *VehicleState, t time.Time,
	block *routemodel.Block, tripIndex, stopPathIndex int,
	dwellMsec int64) datastructure.ArrivalDeparture {
	ad := datastructure.ArrivalDeparture{
		VehicleID:     vs.VehicleID(),
		BlockID:       block.ID(),
		TripID:        block.Trip(tripIndex).ID(),
		TripIndex:     tripIndex,
		StopPathIndex: stopPathIndex,
		StopID:        block.StopPath(tripIndex, stopPathIndex).StopID(),
		IsArrival:     false,
		Time:          t,
		AvlTime:       vs.AvlReport().Time,
		DwellMsec:     dwellMsec,
	}
	vs.NoteDeparture(t)
	return ad
}

// tooManyStopsTraversed flags matches that imply crossing implausibly many
// stops for the elapsed time, which indicates a matching error rather than
// real travel.
func (g *ArrivalDepartureGenerator) tooManyStopsTraversed(vs *VehicleState,
	oldMatch, newMatch *matcher.SpatialMatch,
	previousReport *datastructure.AvlReport) bool {
	if oldMatch == nil || previousReport == nil {
		return false
	}
	report := vs.AvlReport()
	deltaMsec := msec(report.Time.Sub(previousReport.Time))

	indices := oldMatch.Indices()
	newIndices := newMatch.Indices()
	stopsTraversed := 0
	for !indices.PastEndOfBlock(report.Time) && indices.IsEarlierStopPathThan(newIndices) {
		indices.IncrementStopPath(report.Time)
		stopsTraversed++
	}

	// More than a stop every 15 seconds, with a floor of 4 stops so noisy
	// GPS over short intervals is not flagged.
	if stopsTraversed >= 4 && int64(stopsTraversed) > deltaMsec/15000 {
		g.log.Error("implausibly many stops traversed between reports",
			zap.String("vehicleId", vs.VehicleID()),
			zap.Int("stopsTraversed", stopsTraversed),
			zap.Int64("elapsedSecs", deltaMsec/1000))
		return true
	}
	return false
}

// shouldProcess reports whether the pair of matches actually crossed a stop
// boundary and is sane enough to derive events from.
func (g *ArrivalDepartureGenerator) shouldProcess(vs *VehicleState,
	oldMatch, newMatch *matcher.SpatialMatch) bool {
	if oldMatch == nil {
		return true
	}
	stopsTraversed := matcher.NumberStopsBetweenMatches(oldMatch, newMatch)
	if stopsTraversed > g.cfg.MaxStopsBetweenMatches {
		g.log.Error("too many stops between matches, skipping arrival/departure generation",
			zap.String("vehicleId", vs.VehicleID()),
			zap.Int("stopsTraversed", stopsTraversed),
			zap.Int("max", g.cfg.MaxStopsBetweenMatches))
		return false
	}

	oldStopInfo := oldMatch.AtStop()
	newStopInfo := newMatch.AtStop()
	switch {
	case oldStopInfo != nil && newStopInfo != nil:
		return oldStopInfo.TripIndex() != newStopInfo.TripIndex() ||
			oldStopInfo.StopPathIndex() != newStopInfo.StopPathIndex()
	case oldStopInfo != nil || newStopInfo != nil:
		return true
	default:
		return oldMatch.TripIndex() != newMatch.TripIndex() ||
			oldMatch.StopPathIndex() != newMatch.StopPathIndex()
	}
}

// estimateWithoutPreviousMatch synthesizes events backward from the trip
// start for a vehicle that became predictable a few stops into its first
// trip. Not done for later trips since the vehicle likely joined mid-block
// and never actually served the earlier stops.
func (g *ArrivalDepartureGenerator) estimateWithoutPreviousMatch(
	vs *VehicleState) []datastructure.ArrivalDeparture {
	if vs.VehicleNewlyAssignedToSameBlock(vs.AvlReport().Time) {
		g.log.Info("vehicle reassigned to same block, not backfilling arrivals/departures",
			zap.String("vehicleId", vs.VehicleID()),
			zap.String("blockId", vs.Block().ID()))
		return nil
	}

	newMatch := vs.Match()
	if newMatch.TripIndex() != 0 || newMatch.StopPathIndex() == 0 ||
		newMatch.StopPathIndex() >= g.cfg.MaxStopsWhenNoPreviousMatch {
		g.log.Debug("no previous match and new match too far along, not backfilling",
			zap.String("vehicleId", vs.VehicleID()))
		return nil
	}

	avlTime := vs.AvlReport().Time
	block := newMatch.Block()
	const tripIndex = 0
	var out []datastructure.ArrivalDeparture

	beginningOfTrip := matcher.NewSpatialMatch(avlTime, block, tripIndex, 0, 0, 0, 0)
	travelFromStartMsec := g.travelTimes.ExpectedTravelTimeBetweenMatchesAtMsec(
		vs.VehicleID(), avlTime, beginningOfTrip, newMatch.SpatialMatch)
	departureTime := addMsec(avlTime, -travelFromStartMsec)

	if !newMatch.IsAtStopAt(tripIndex, 0) {
		out = append(out, g.departure(vs, departureTime, block, tripIndex, 0, 0))
	}

	for stopPathIndex := 1; stopPathIndex < newMatch.StopPathIndex(); stopPathIndex++ {
		arrivalTime := addMsec(departureTime,
			block.StopPathTravelTimeMsec(tripIndex, stopPathIndex))
		out = append(out, g.arrival(vs, arrivalTime, block, tripIndex, stopPathIndex))

		if !newMatch.IsAtStopAt(tripIndex, stopPathIndex) {
			stopMsec := block.PathStopTimeMsec(tripIndex, stopPathIndex)
			departureTime = addMsec(arrivalTime, stopMsec)
			out = append(out, g.departure(vs, departureTime, block,
				tripIndex, stopPathIndex, stopMsec))
		}
	}

	if newMatch.IsAtStopAt(tripIndex, newMatch.StopPathIndex()) {
		out = append(out, g.arrival(vs, avlTime, block, tripIndex,
			newMatch.StopPathIndex()))
	}
	return out
}

// terminalDepartureEvent emits an event when a departure from the first
// stop of a trip is outside the allowed early/late windows.
func (g *ArrivalDepartureGenerator) terminalDepartureEvent(vs *VehicleState,
	departure datastructure.ArrivalDeparture) *datastructure.VehicleEvent {
	if departure.StopPathIndex != 0 {
		return nil
	}
	block := vs.Block()
	st := block.ScheduleTime(departure.TripIndex, 0)
	if !st.HasTime() {
		return nil
	}
	scheduledEpoch := routemodel.EpochForSecondsIntoDay(st.Time(), departure.Time)
	diff := scheduledEpoch.Sub(departure.Time)

	var reason datastructure.EventReason
	switch {
	case diff > g.cfg.AllowableEarlyDepartureEvent:
		reason = datastructure.EventEarlyDeparture
	case -diff > g.cfg.AllowableLateDepartureEvent:
		reason = datastructure.EventLateDeparture
	default:
		return nil
	}

	report := vs.AvlReport()
	return &datastructure.VehicleEvent{
		VehicleID:     vs.VehicleID(),
		Reason:        reason,
		Description:   fmt.Sprintf("vehicle %s left stop %s %s relative to scheduled departure", vs.VehicleID(), departure.StopID, diff),
		Time:          departure.Time,
		AvlTime:       report.Time,
		BlockID:       block.ID(),
		TripIndex:     departure.TripIndex,
		StopPathIndex: departure.StopPathIndex,
		Lat:           report.Lat,
		Lon:           report.Lon,
		Predictable:   true,
	}
}

// departurePostArrival orders the departure strictly after the pending or
// last recorded arrival, redistributing both times between the AVL reports
// when they conflict.
func (g *ArrivalDepartureGenerator) departurePostArrival(vs *VehicleState,
	departureTime time.Time, block *routemodel.Block, tripIndex, stopPathIndex int,
	departureBasedOnNewMatch time.Time,
	out *[]datastructure.ArrivalDeparture) datastructure.ArrivalDeparture {
	report := vs.AvlReport()
	var arrivalTime time.Time

	if pending := vs.ArrivalToStore(); pending != nil {
		arrivalTime = pending.Time
		if !arrivalTime.Before(departureTime) {
			// The held-back arrival conflicts with the departure. Spread
			// both proportionally between the two AVL reports.
			previousReport := vs.PreviousAvlReportFromSuccessfulMatch()
			originalToArrival := float64(msec(pending.Time.Sub(previousReport.Time)))
			originalFromDeparture := float64(msec(report.Time.Sub(departureBasedOnNewMatch)))
			betweenReports := float64(msec(report.Time.Sub(previousReport.Time)))
			ratio := betweenReports / (originalToArrival + originalFromDeparture)

			arrivalTime = addMsec(previousReport.Time,
				int64(math.Round(ratio*originalToArrival)))
			departureTime = addMsec(arrivalTime, 1)
			pending.Time = arrivalTime
			vs.NoteArrival(arrivalTime, pending.StopPathIndex)

			if arrivalTime.Before(vs.LastDepartureTime()) {
				g.log.Error("adjusted arrival is before the previous departure",
					zap.String("vehicleId", vs.VehicleID()),
					zap.Time("arrival", arrivalTime),
					zap.Time("previousDeparture", vs.LastDepartureTime()))
			}
		}
		*out = append(*out, *pending)
		vs.SetArrivalToStore(nil)
	} else {
		arrivalTime = vs.LastArrivalTime()
		if !departureTime.After(arrivalTime) {
			departureTime = addMsec(arrivalTime, 1)
		}
	}

	if !departureTime.Before(report.Time) {
		g.log.Error("departure pushed past the triggering report time",
			zap.String("vehicleId", vs.VehicleID()),
			zap.Time("departure", departureTime),
			zap.Time("avlTime", report.Time))
	}

	dwellMsec := int64(0)
	if !arrivalTime.IsZero() && departureTime.After(arrivalTime) {
		dwellMsec = msec(departureTime.Sub(arrivalTime))
	}
	return g.departure(vs, departureTime, block, tripIndex, stopPathIndex, dwellMsec)
}

// handleDepartingStop emits the departure for the stop the old match was
// sitting at, if any, and returns the begin time for interpolating the
// intermediate stops.
func (g *ArrivalDepartureGenerator) handleDepartingStop(vs *VehicleState,
	out *[]datastructure.ArrivalDeparture,
	events *[]datastructure.VehicleEvent) time.Time {
	oldMatch := vs.PreviousMatch()
	previousReport := vs.PreviousAvlReportFromSuccessfulMatch()
	oldStopInfo := oldMatch.AtStop()
	if oldStopInfo == nil {
		return previousReport.Time
	}

	report := vs.AvlReport()
	newMatch := vs.Match()

	// Anchor at the adjusted match just past the departed stop so the time
	// from the actual stop to the new match is fully counted.
	matchJustAfterStop := oldMatch.MatchAdjustedToBeginningOfPath()
	travelToNewMsec := g.travelTimes.ExpectedTravelTimeBetweenMatchesAtMsec(
		vs.VehicleID(), previousReport.Time, matchJustAfterStop, newMatch.SpatialMatch)
	departureBasedOnNewMatch := addMsec(report.Time, -travelToNewMsec)

	// Also derive a departure from the old report alone. It wins when
	// later, since the vehicle was provably still at the stop then.
	var departureBasedOnOldMatch time.Time
	if matchJustAfterStop.LessThanOrEqualTo(oldMatch.SpatialMatch) {
		travelMsec := g.travelTimes.ExpectedTravelTimeBetweenMatchesAtMsec(
			vs.VehicleID(), previousReport.Time, matchJustAfterStop, oldMatch.SpatialMatch)
		departureBasedOnOldMatch = addMsec(previousReport.Time, -travelMsec)
	} else {
		matchJustBeforeStop := oldMatch.MatchAdjustedToEndOfPath()
		travelMsec := g.travelTimes.ExpectedTravelTimeBetweenMatchesAtMsec(
			vs.VehicleID(), previousReport.Time, oldMatch.SpatialMatch, matchJustBeforeStop)
		departureBasedOnOldMatch = addMsec(previousReport.Time, travelMsec)
	}

	departureTime := departureBasedOnNewMatch
	if departureBasedOnOldMatch.After(departureBasedOnNewMatch) {
		departureTime = departureBasedOnOldMatch
	}

	// The vehicle has demonstrably left the stop, so the departure must be
	// strictly before the new report.
	if !departureTime.Before(report.Time) {
		departureTime = addMsec(report.Time, -1)
	}

	departure := g.departurePostArrival(vs, departureTime,
		oldStopInfo.Block(), oldStopInfo.TripIndex(), oldStopInfo.StopPathIndex(),
		departureBasedOnNewMatch, out)
	*out = append(*out, departure)

	if event := g.terminalDepartureEvent(vs, departure); event != nil {
		*events = append(*events, *event)
	}
	return departure.Time
}

// handleArrivingAtStop emits, or holds back, the arrival for the stop the
// new match is at, if any, and returns the end time for interpolating the
// intermediate stops.
func (g *ArrivalDepartureGenerator) handleArrivingAtStop(vs *VehicleState,
	beginTime time.Time, out *[]datastructure.ArrivalDeparture) time.Time {
	newMatch := vs.Match()
	newStopInfo := newMatch.AtStop()
	report := vs.AvlReport()
	if newStopInfo == nil {
		return report.Time
	}

	oldMatch := vs.PreviousMatch()
	matchJustBeforeStop := newMatch.MatchAdjustedToEndOfPath()

	travelFromOldMsec := g.travelTimes.ExpectedTravelTimeBetweenMatchesAtMsec(
		vs.VehicleID(), report.Time, oldMatch.SpatialMatch, matchJustBeforeStop)
	// beginTime already accounts for a departure at the old stop, so the
	// projection starts there rather than at the previous report.
	arrivalBasedOnOldMatch := addMsec(beginTime, travelFromOldMsec)

	var arrivalBasedOnNewMatch time.Time
	if newMatch.LessThanOrEqualTo(matchJustBeforeStop) {
		travelMsec := g.travelTimes.ExpectedTravelTimeBetweenMatchesAtMsec(
			vs.VehicleID(), report.Time, newMatch.SpatialMatch, matchJustBeforeStop)
		arrivalBasedOnNewMatch = addMsec(report.Time, travelMsec)
	} else {
		matchJustAfterStop := newMatch.MatchAdjustedToBeginningOfPath()
		travelMsec := g.travelTimes.ExpectedTravelTimeBetweenMatchesAtMsec(
			vs.VehicleID(), report.Time, matchJustAfterStop, newMatch.SpatialMatch)
		arrivalBasedOnNewMatch = addMsec(report.Time, -travelMsec)
	}

	// The vehicle has provably arrived by the new-match time, so an
	// old-match projection further in the future loses.
	arrivalTime := arrivalBasedOnOldMatch
	if arrivalBasedOnNewMatch.Before(arrivalBasedOnOldMatch) {
		arrivalTime = arrivalBasedOnNewMatch
	}

	previousReport := vs.PreviousAvlReportFromSuccessfulMatch()
	if !arrivalTime.After(previousReport.Time) {
		arrivalTime = addMsec(previousReport.Time, 1)
	}
	if arrivalTime.Before(vs.LastDepartureTime()) {
		arrivalTime = addMsec(vs.LastDepartureTime(), 1)
	}

	arrival := g.arrival(vs, arrivalTime, newStopInfo.Block(),
		newStopInfo.TripIndex(), newStopInfo.StopPathIndex())

	// An arrival in the future could end up after the next report, putting
	// events out of order. Hold it back until the matching departure,
	// except at the last stop of the trip where there may be no next match.
	atLastStopOfTrip := newStopInfo.StopPathIndex() ==
		newMatch.Trip().NumStopPaths()-1
	if arrival.Time.After(report.Time) && !atLastStopOfTrip {
		vs.SetArrivalToStore(&arrival)
	} else {
		vs.SetArrivalToStore(nil)
		*out = append(*out, arrival)
	}
	return arrivalTime
}

// numberOfZeroTravelOrStopTimes counts zero-length travel and stop times
// between the matches. Each needs a 1 msec spacer so a vehicle's events
// stay strictly ordered.
func numberOfZeroTravelOrStopTimes(oldMatch, newMatch *matcher.SpatialMatch) int {
	counter := 0
	indices := oldMatch.Indices()
	newIndices := newMatch.Indices()
	for indices.IsEarlierStopPathThan(newIndices) {
		if indices.TravelTimeForPathMsec() == 0 {
			counter++
		}
		if indices.StopTimeForPathMsec() == 0 {
			counter++
		}
		indices.IncrementStopPath(newMatch.AvlTime())
	}
	return counter
}

// handleIntermediateStops interpolates arrivals/departures for every stop
// fully traversed between the matches, scaling expected travel and dwell
// times by how fast the vehicle actually covered the span.
func (g *ArrivalDepartureGenerator) handleIntermediateStops(vs *VehicleState,
	beginTime, endTime time.Time, out *[]datastructure.ArrivalDeparture) {
	// Keep interpolated times strictly inside the departure/arrival that
	// bound them, even with zero travel or wait times.
	beginTime = addMsec(beginTime, 1)
	endTime = addMsec(endTime, -1)

	oldMatch := vs.PreviousMatch()
	newMatch := vs.Match()
	previousReport := vs.PreviousAvlReportFromSuccessfulMatch()

	numZeroTimes := numberOfZeroTravelOrStopTimes(oldMatch.SpatialMatch, newMatch.SpatialMatch)

	totalExpectedMsec := g.travelTimes.ExpectedTravelTimeBetweenMatchesAtMsec(
		vs.VehicleID(), previousReport.Time, oldMatch.SpatialMatch, newMatch.SpatialMatch)
	elapsedMsec := msec(endTime.Sub(beginTime)) - int64(numZeroTimes)

	// Schedule based travel times can be zero or tiny. Fall back to ratio
	// 1.0 rather than dividing by nearly nothing.
	speedRatio := 1.0
	if totalExpectedMsec > 5 {
		speedRatio = float64(elapsedMsec) / float64(totalExpectedMsec)
	}

	// Walk from just past the old stop to the new stop. Use the at-stop
	// info when present so a match just beyond a stop doesn't shift the
	// path index.
	var indices routemodel.Indices
	if oldStopInfo := oldMatch.AtStop(); oldStopInfo != nil {
		indices = oldStopInfo.Indices()
		indices.IncrementStopPath(endTime)
	} else {
		indices = oldMatch.Indices()
	}
	var endIndices routemodel.Indices
	if newStopInfo := newMatch.AtStop(); newStopInfo != nil {
		endIndices = newStopInfo.Indices()
	} else {
		endIndices = newMatch.Indices()
	}

	matchAtNextStop := oldMatch.MatchAtJustBeforeNextStop()
	travelToFirstStopMsec := g.travelTimes.ExpectedTravelTimeBetweenMatchesAtMsec(
		vs.VehicleID(), vs.AvlReport().Time, oldMatch.SpatialMatch, matchAtNextStop)

	block := newMatch.Block()
	timeWithoutSpeedRatio := float64(travelToFirstStopMsec)
	arrivalTime := addMsec(beginTime, int64(math.Round(timeWithoutSpeedRatio*speedRatio)))

	for indices.IsEarlierStopPathThan(endIndices) {
		tripIndex, stopPathIndex := indices.TripIndex(), indices.StopPathIndex()
		*out = append(*out, g.arrival(vs, arrivalTime, block, tripIndex, stopPathIndex))

		stopMsec := float64(block.PathStopTimeMsec(tripIndex, stopPathIndex))
		if stopMsec*speedRatio < 1.0 {
			stopMsec = 1.0 / speedRatio
		}
		timeWithoutSpeedRatio += stopMsec
		departureTime := addMsec(beginTime, int64(math.Round(timeWithoutSpeedRatio*speedRatio)))
		*out = append(*out, g.departure(vs, departureTime, block,
			tripIndex, stopPathIndex, msec(departureTime.Sub(arrivalTime))))

		indices.IncrementStopPath(departureTime)
		travelMsec := float64(block.StopPathTravelTimeMsec(indices.TripIndex(), indices.StopPathIndex()))
		if travelMsec*speedRatio < 1.0 {
			travelMsec = 1.0 / speedRatio
		}
		timeWithoutSpeedRatio += travelMsec
		arrivalTime = addMsec(beginTime, int64(math.Round(timeWithoutSpeedRatio*speedRatio)))
	}
}

// Generate produces the ordered arrival/departure events implied by the
// vehicle's previous and new matches, plus any terminal early/late
// departure events.
func (g *ArrivalDepartureGenerator) Generate(
	vs *VehicleState) ([]datastructure.ArrivalDeparture, []datastructure.VehicleEvent) {
	if !vs.IsPredictable() || vs.Match() == nil {
		g.log.Error("arrival/departure generation requires a predictable, matched vehicle",
			zap.String("vehicleId", vs.VehicleID()))
		return nil, nil
	}

	newMatch := vs.Match()
	oldMatch := vs.PreviousMatch()
	if oldMatch == nil {
		return g.estimateWithoutPreviousMatch(vs), nil
	}

	// A layover match far off the path means the vehicle was jumped ahead
	// to the layover without actually being there, so derived times would
	// be fiction.
	oldProblematic := oldMatch.IsLayover() &&
		oldMatch.DistanceToSegment() > g.matcherCfg.LayoverDistance
	newProblematic := newMatch.IsLayover() &&
		newMatch.DistanceToSegment() > g.matcherCfg.LayoverDistance
	if oldProblematic || newProblematic {
		g.log.Warn("layover match too far from path, not generating arrivals/departures",
			zap.String("vehicleId", vs.VehicleID()))
		return nil, nil
	}

	previousReport := vs.PreviousAvlReportFromSuccessfulMatch()
	if g.tooManyStopsTraversed(vs, oldMatch.SpatialMatch, newMatch.SpatialMatch, previousReport) {
		return nil, nil
	}
	if !g.shouldProcess(vs, oldMatch.SpatialMatch, newMatch.SpatialMatch) {
		return nil, nil
	}

	var out []datastructure.ArrivalDeparture
	var events []datastructure.VehicleEvent

	beginTime := g.handleDepartingStop(vs, &out, &events)
	endTime := g.handleArrivingAtStop(vs, beginTime, &out)
	g.handleIntermediateStops(vs, beginTime, endTime, &out)

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Time.Before(out[j].Time)
	})
	return out, events
}
