package matcher

import (
	"math"
	"time"

	"github.com/lintang-b-s/transitx/pkg/datastructure"
	"github.com/lintang-b-s/transitx/pkg/geo"
	"github.com/lintang-b-s/transitx/pkg/routemodel"
	"github.com/lintang-b-s/transitx/pkg/util"
	"go.uber.org/zap"
)

// MatchingType distinguishes normal matching from the stricter matching
// used when automatically assigning a vehicle to a block.
type MatchingType uint8

const (
	StandardMatching MatchingType = iota
	AutoAssigningMatching
)

// SpatialMatcher finds where along a block a raw vehicle position could
// be. A spatial match is a local minimum of the perpendicular distance to
// a path segment where the heading and distance are acceptable.
type SpatialMatcher struct {
	log *zap.Logger
	cfg Config
}

func NewSpatialMatcher(log *zap.Logger, cfg Config) *SpatialMatcher {
	return &SpatialMatcher{
		log: log,
		cfg: cfg,
	}
}

// spatialSearch is the cursor state for one pass over consecutive
// segments. A fresh one is needed per pass since it tracks whether the
// distance to segment is still decreasing.
type spatialSearch struct {
	// Search never returns matches before this one. GPS noise could
	// otherwise produce a best match behind the previous one, which
	// breaks arrival/departure generation.
	startSearchMatch *SpatialMatch

	previousDistanceToSegment float64
	previousPotentialMatch    *SpatialMatch

	// Best match regardless of allowable distance, kept for logging when
	// nothing qualifies.
	smallestDistanceMatch *SpatialMatch
}

func newSpatialSearch() *spatialSearch {
	return &spatialSearch{
		previousDistanceToSegment: math.MaxFloat64,
	}
}

// segmentProjection returns the distance from loc to the segment and the
// distance from the segment start to the projected point. The projection
// is clamped to the segment so both values are well defined even when the
// vehicle is beyond an endpoint.
func segmentProjection(seg routemodel.Segment, loc geo.Coordinate) (distanceTo, distanceAlong float64) {
	if seg.Length() <= 0 {
		return geo.DistanceMeters(loc, seg.Start()), 0
	}
	projection := geo.ProjectPointToLineCoord(seg.Start(), seg.End(), loc)
	distanceTo = geo.DistanceMeters(loc, projection)
	distanceAlong = geo.DistanceMeters(seg.Start(), projection)
	return distanceTo, distanceAlong
}

// segmentHeadingOK reports whether the vehicle heading is close enough to
// the segment heading. A report without heading always passes.
func segmentHeadingOK(seg routemodel.Segment, heading, maxOffset float64) bool {
	if math.IsNaN(heading) {
		return true
	}
	if seg.Length() <= 0 {
		return true
	}
	return geo.HeadingDelta(seg.Heading(), heading) < maxOffset
}

// maxAllowableDistanceFromSegment is the per stop path override when set,
// otherwise the configured distance for the matching type.
func (sm *SpatialMatcher) maxAllowableDistanceFromSegment(indices routemodel.Indices,
	matchingType MatchingType) float64 {
	if override := indices.StopPath().MaxSegmentDistance(); override > 0 {
		return override
	}
	if matchingType == AutoAssigningMatching {
		return sm.cfg.MaxDistanceForAutoAssigning
	}
	return sm.cfg.MaxDistanceFromSegment
}

// withinAllowableDistanceOfLayover decides whether a vehicle can be
// matched to a layover stop. Matching to layovers has to be limited,
// otherwise vehicles still on the route would get pulled to them. A
// vehicle deadheading to the first layover of the block always matches.
// For later layovers it must be within 150% of the distance from the
// previous trip's last stop, or within the configured layover distance,
// whichever is greater.
func (sm *SpatialMatcher) withinAllowableDistanceOfLayover(vehicleID string,
	avlLoc geo.Coordinate, indices routemodel.Indices) bool {
	if !indices.IsLayover() {
		return false
	}

	previousStopPath := indices.PreviousStopPath(1)
	if previousStopPath == nil {
		return true
	}

	layoverLoc := indices.StopPath().EndLocation()
	distanceToLayover := geo.DistanceMeters(avlLoc, layoverLoc)

	distanceBtwnStops := geo.DistanceMeters(layoverLoc, previousStopPath.EndLocation())
	allowableDistance := math.Max(distanceBtwnStops*1.5, sm.cfg.LayoverDistance)

	within := distanceToLayover < allowableDistance
	if !within {
		sm.log.Debug("vehicle not within allowable distance of layover",
			zap.String("vehicleId", vehicleID),
			zap.Float64("distanceToLayover", distanceToLayover),
			zap.Float64("allowableDistance", allowableDistance),
			zap.String("indices", indices.String()))
	}
	return within
}

// processPossibleMatch looks at one segment of the block and updates the
// search state, appending to matches when a local distance minimum has
// been passed. Layovers are always appended when close enough since the
// vehicle is allowed off route there.
func (sm *SpatialMatcher) processPossibleMatch(search *spatialSearch,
	avlReport datastructure.AvlReport, indices routemodel.Indices,
	matches *[]*SpatialMatch, matchingType MatchingType) {
	segment := indices.Segment()
	distanceToSegment, distanceAlongSegment := segmentProjection(segment, avlReport.Location())
	atLayover := indices.IsLayover()

	if search.startSearchMatch != nil {
		startIndices := search.startSearchMatch.Indices()
		if indices.LessThan(startIndices) && !startIndices.AtEndOfTrip() {
			sm.log.Error("examining segment before start of search",
				zap.String("vehicleId", avlReport.VehicleID),
				zap.String("indices", indices.String()),
				zap.String("startSearch", search.startSearchMatch.String()))
			return
		}
		if indices.Equal(startIndices) &&
			distanceAlongSegment < search.startSearchMatch.DistanceAlongSegment() {
			// Match would be behind the starting point so clamp it there.
			distanceAlongSegment = search.startSearchMatch.DistanceAlongSegment()
			search.previousPotentialMatch = nil
		}
	}

	// For a layover the match is with the stop itself, not the projection
	// onto the path.
	if atLayover {
		distanceAlongSegment = segment.Length()
	}

	spatialMatch := NewSpatialMatch(avlReport.Time, indices.Block(),
		indices.TripIndex(), indices.StopPathIndex(), indices.SegmentIndex(),
		distanceToSegment, distanceAlongSegment)

	if distanceToSegment < search.previousDistanceToSegment {
		// Still trending towards a minimum. Track the match if heading and
		// distance qualify.
		headingOK := segmentHeadingOK(segment, avlReport.Heading,
			sm.cfg.MaxHeadingOffsetFromSeg)
		distanceOK := distanceToSegment <
			sm.maxAllowableDistanceFromSegment(indices, matchingType)
		if headingOK && distanceOK {
			search.previousPotentialMatch = spatialMatch
		}
	} else if search.previousPotentialMatch != nil {
		// Moving away from a minimum, so the tracked match was a local
		// best. Add it to the results.
		*matches = append(*matches, search.previousPotentialMatch)
		search.previousPotentialMatch = nil
	}

	search.previousDistanceToSegment = distanceToSegment

	if atLayover && sm.withinAllowableDistanceOfLayover(avlReport.VehicleID,
		avlReport.Location(), indices) {
		*matches = append(*matches, spatialMatch)
	}

	if search.smallestDistanceMatch == nil ||
		distanceToSegment < search.smallestDistanceMatch.DistanceToSegment() {
		search.smallestDistanceMatch = spatialMatch
	}
}

// spatialMatchesForTrip walks one whole trip of the block looking for
// local minimum matches.
func (sm *SpatialMatcher) spatialMatchesForTrip(avlReport datastructure.AvlReport,
	block *routemodel.Block, tripIndex int,
	matchingType MatchingType) []*SpatialMatch {
	matches := make([]*SpatialMatch, 0)
	search := newSpatialSearch()

	indices := routemodel.NewIndices(block, tripIndex, 0, 0)
	for {
		sm.processPossibleMatch(search, avlReport, indices, &matches, matchingType)
		indices.Increment(avlReport.Time)
		if indices.AtBeginningOfTrip() {
			break
		}
	}

	// Boundary condition. The last segment examined can be a potential
	// match that was still improving, so commit it.
	if search.previousPotentialMatch != nil {
		matches = append(matches, search.previousPotentialMatch)
	}

	return matches
}

// SpatialMatchesForBlock determines the spatial matches of a raw vehicle
// position to a block, for first matching a vehicle to an assignment.
// tripIndices limits which trips are examined; nil means all of them.
// Matches near the end of a schedule based block are discarded so a
// vehicle that just finished its block does not get reassigned to it.
func (sm *SpatialMatcher) SpatialMatchesForBlock(avlReport datastructure.AvlReport,
	block *routemodel.Block, tripIndices []int,
	matchingType MatchingType) []*SpatialMatch {
	if tripIndices == nil {
		tripIndices = make([]int, block.NumTrips())
		for i := range tripIndices {
			tripIndices[i] = i
		}
	}

	allMatches := make([]*SpatialMatch, 0)
	for _, tripIndex := range tripIndices {
		allMatches = append(allMatches,
			sm.spatialMatchesForTrip(avlReport, block, tripIndex, matchingType)...)
	}

	if block.IsNoSchedule() {
		return allMatches
	}

	// Frequency based blocks loop so being at the end of a trip is normal
	// for them, hence the filter only applies to schedule based blocks.
	filtered := allMatches[:0]
	for _, match := range allMatches {
		if match.IsLastTripOfBlock() &&
			match.WithinDistanceOfEndOfTrip(sm.cfg.DistanceFromEndOfBlockInitial) {
			sm.log.Debug("discarding match near end of block",
				zap.String("vehicleId", avlReport.VehicleID),
				zap.String("match", match.String()))
			continue
		}
		filtered = append(filtered, match)
	}
	return filtered
}

// SpatialMatchesForAutoAssigning is like SpatialMatchesForBlock but drops
// layover matches since a layover does not require the vehicle to actually
// be on the route, which is too weak a signal for automatically assigning.
func (sm *SpatialMatcher) SpatialMatchesForAutoAssigning(avlReport datastructure.AvlReport,
	block *routemodel.Block, tripIndices []int) []*SpatialMatch {
	allMatches := sm.SpatialMatchesForBlock(avlReport, block, tripIndices,
		AutoAssigningMatching)

	matches := make([]*SpatialMatch, 0, len(allMatches))
	for _, match := range allMatches {
		if !match.IsLayover() {
			matches = append(matches, match)
		}
	}
	return matches
}

// SpatialMatchesFromPreviousMatch searches forward from the previous match
// of an already predictable vehicle. The search spans at most the distance
// the vehicle could have covered at 20% over the max speed plus a safety
// margin, unless the vehicle is at a layover where it can move about
// freely.
func (sm *SpatialMatcher) SpatialMatchesFromPreviousMatch(avlReport datastructure.AvlReport,
	previousReportTime time.Time, previousMatch *SpatialMatch,
	vehicleAtLayover bool) []*SpatialMatch {
	elapsed := avlReport.Time.Sub(previousReportTime)
	distanceAlongPathToSearch := sm.cfg.MaxAvlSpeed*1.2*elapsed.Seconds() +
		sm.cfg.SpatialSearchMarginMeters

	// Already part way along the first segment, so start the tally
	// negative to compensate.
	distanceSearched := -previousMatch.DistanceAlongSegment()

	matches := make([]*SpatialMatch, 0)
	search := newSpatialSearch()
	search.startSearchMatch = previousMatch

	indices := previousMatch.Indices()
	for !indices.PastEndOfBlock(avlReport.Time) &&
		(vehicleAtLayover || distanceSearched < distanceAlongPathToSearch) &&
		util.Abs(indices.StopPathIndex()-previousMatch.StopPathIndex()) <= sm.cfg.MaxStopPathsAhead {
		sm.processPossibleMatch(search, avlReport, indices, &matches, StandardMatching)
		distanceSearched += indices.Segment().Length()
		indices.Increment(avlReport.Time)
	}

	if search.previousPotentialMatch != nil {
		matches = append(matches, search.previousPotentialMatch)
	}

	if len(matches) == 0 {
		if search.smallestDistanceMatch != nil {
			sm.log.Warn("no spatial matches within allowable distance",
				zap.String("vehicleId", avlReport.VehicleID),
				zap.String("previousMatch", previousMatch.String()),
				zap.Float64("bestDistance", search.smallestDistanceMatch.DistanceToSegment()),
				zap.String("bestMatch", search.smallestDistanceMatch.String()))
		} else {
			sm.log.Warn("no spatial matches and no best match",
				zap.String("vehicleId", avlReport.VehicleID))
		}
	}

	// A vehicle near the end of its block may never report exactly at the
	// last stop, and there is no following layover to catch it. So when
	// the previous match was already close to the end add the very end of
	// the block as a candidate.
	block := previousMatch.Block()
	if !block.IsNoSchedule() && previousMatch.IsLastTripOfBlock() &&
		previousMatch.WithinDistanceOfEndOfTrip(sm.cfg.DistanceFromLastStopEndMatching) {
		trip := previousMatch.Trip()
		lastStopPathIndex := trip.NumStopPaths() - 1
		lastStopPath := trip.StopPath(lastStopPathIndex)
		lastSegmentIndex := lastStopPath.NumSegments() - 1
		segmentLength := lastStopPath.Segment(lastSegmentIndex).Length()
		matchAtEndOfBlock := NewSpatialMatch(avlReport.Time, block,
			previousMatch.TripIndex(), lastStopPathIndex, lastSegmentIndex,
			math.NaN(), segmentLength)
		matches = append(matches, matchAtEndOfBlock)
	}

	return matches
}

// firstNonLayoverMatch returns the first match that is not to a layover.
// Layover matches do not require a correct heading so they cannot be used
// for verifying travel direction.
func firstNonLayoverMatch(matches []*SpatialMatch) *SpatialMatch {
	for _, match := range matches {
		if !match.IsLayover() {
			return match
		}
	}
	return nil
}

// ProblemMatchDueToLackOfHeadingInfo reports whether a non-layover match
// cannot be trusted because the report has no heading and forward progress
// could not be verified against a previous report. Without this check a
// vehicle could be matched to a trip going the wrong direction.
func (sm *SpatialMatcher) ProblemMatchDueToLackOfHeadingInfo(spatialMatch *SpatialMatch,
	avlReport datastructure.AvlReport, previousReport *datastructure.AvlReport,
	matchingType MatchingType) bool {
	if spatialMatch == nil {
		return false
	}

	// Heading is irrelevant for layovers since the vehicle can take any
	// path to the layover stop.
	if spatialMatch.IsLayover() {
		return false
	}

	if avlReport.HasHeading() {
		return false
	}

	// Without a previous report far enough away the direction of travel
	// cannot be established.
	if previousReport == nil {
		return true
	}

	previousMatches := sm.spatialMatchesForTrip(*previousReport,
		spatialMatch.Block(), spatialMatch.TripIndex(), matchingType)
	previousNonLayover := firstNonLayoverMatch(previousMatches)
	if previousNonLayover == nil {
		return true
	}

	// Forward progress between the two reports means the heading is fine.
	return !previousNonLayover.LessThanOrEqualTo(spatialMatch)
}
