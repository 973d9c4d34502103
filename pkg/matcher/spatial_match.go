package matcher

import (
	"fmt"
	"math"
	"time"

	"github.com/lintang-b-s/transitx/pkg/geo"
	"github.com/lintang-b-s/transitx/pkg/routemodel"
)

// VehicleAtStopInfo identifies the stop a match is considered to be at.
type VehicleAtStopInfo struct {
	block         *routemodel.Block
	tripIndex     int
	stopPathIndex int
}

func NewVehicleAtStopInfo(block *routemodel.Block, tripIndex, stopPathIndex int) *VehicleAtStopInfo {
	return &VehicleAtStopInfo{
		block:         block,
		tripIndex:     tripIndex,
		stopPathIndex: stopPathIndex,
	}
}

func (v *VehicleAtStopInfo) Block() *routemodel.Block {
	return v.block
}

func (v *VehicleAtStopInfo) TripIndex() int {
	return v.tripIndex
}

func (v *VehicleAtStopInfo) StopPathIndex() int {
	return v.stopPathIndex
}

func (v *VehicleAtStopInfo) StopPath() *routemodel.StopPath {
	return v.block.StopPath(v.tripIndex, v.stopPathIndex)
}

func (v *VehicleAtStopInfo) StopID() string {
	return v.StopPath().StopID()
}

func (v *VehicleAtStopInfo) IsWaitStop() bool {
	return v.block.IsWaitStop(v.tripIndex, v.stopPathIndex)
}

// Indices returns a cursor at the end of the stop path for this stop.
func (v *VehicleAtStopInfo) Indices() routemodel.Indices {
	return routemodel.NewIndices(v.block, v.tripIndex, v.stopPathIndex,
		v.block.NumSegments(v.tripIndex, v.stopPathIndex)-1)
}

func (v *VehicleAtStopInfo) String() string {
	return fmt.Sprintf("block=%s trip=%d stopPath=%d stop=%s",
		v.block.ID(), v.tripIndex, v.stopPathIndex, v.StopID())
}

// SpatialMatch is one candidate or confirmed geometric position along a
// block. Immutable value once created.
type SpatialMatch struct {
	avlTime              time.Time
	block                *routemodel.Block
	tripIndex            int
	stopPathIndex        int
	segmentIndex         int
	distanceToSegment    float64
	distanceAlongSegment float64
	atStop               *VehicleAtStopInfo
}

func NewSpatialMatch(avlTime time.Time, block *routemodel.Block,
	tripIndex, stopPathIndex, segmentIndex int,
	distanceToSegment, distanceAlongSegment float64) *SpatialMatch {
	m := &SpatialMatch{
		avlTime:              avlTime,
		block:                block,
		tripIndex:            tripIndex,
		stopPathIndex:        stopPathIndex,
		segmentIndex:         segmentIndex,
		distanceToSegment:    distanceToSegment,
		distanceAlongSegment: distanceAlongSegment,
	}
	m.atStop = m.determineAtStop()
	return m
}

// newSpatialMatchAt copies toCopy onto new indices, used for the
// before/after stop adjustments.
func newSpatialMatchAt(toCopy *SpatialMatch, indices routemodel.Indices,
	distanceAlongSegment float64) *SpatialMatch {
	return NewSpatialMatch(toCopy.avlTime, toCopy.block,
		indices.TripIndex(), indices.StopPathIndex(), indices.SegmentIndex(),
		toCopy.distanceToSegment, distanceAlongSegment)
}

// determineAtStop decides whether this match is close enough to a stop,
// looking both forward to the stop ending this path and back to the
// previous one. Layover stops always count since the whole path may be far
// from the stop.
func (m *SpatialMatch) determineAtStop() *VehicleAtStopInfo {
	stopPath := m.block.StopPath(m.tripIndex, m.stopPathIndex)
	distanceRemaining := m.DistanceRemainingInStopPath()
	if stopPath.IsLayover() || distanceRemaining < stopPath.BeforeStopDistance() {
		return NewVehicleAtStopInfo(m.block, m.tripIndex, m.stopPathIndex)
	}

	previous := m.Indices()
	previous.DecrementStopPath()
	if !previous.BeforeBeginningOfBlock() {
		previousStopPath := previous.StopPath()
		if previousStopPath != nil &&
			m.DistanceAlongStopPath() < previousStopPath.AfterStopDistance() {
			return NewVehicleAtStopInfo(m.block,
				previous.TripIndex(), previous.StopPathIndex())
		}
	}
	return nil
}

func (m *SpatialMatch) AvlTime() time.Time {
	return m.avlTime
}

func (m *SpatialMatch) Block() *routemodel.Block {
	return m.block
}

func (m *SpatialMatch) Trip() *routemodel.Trip {
	return m.block.Trip(m.tripIndex)
}

func (m *SpatialMatch) TripIndex() int {
	return m.tripIndex
}

func (m *SpatialMatch) StopPathIndex() int {
	return m.stopPathIndex
}

func (m *SpatialMatch) SegmentIndex() int {
	return m.segmentIndex
}

func (m *SpatialMatch) StopPath() *routemodel.StopPath {
	return m.block.StopPath(m.tripIndex, m.stopPathIndex)
}

func (m *SpatialMatch) DistanceToSegment() float64 {
	return m.distanceToSegment
}

func (m *SpatialMatch) DistanceAlongSegment() float64 {
	return m.distanceAlongSegment
}

func (m *SpatialMatch) Indices() routemodel.Indices {
	return routemodel.NewIndices(m.block, m.tripIndex, m.stopPathIndex, m.segmentIndex)
}

// AtStop returns the stop this match is at, nil when between stops. The
// stop can be either the one ending this path or the previous one when the
// vehicle has just passed it.
func (m *SpatialMatch) AtStop() *VehicleAtStopInfo {
	return m.atStop
}

func (m *SpatialMatch) IsAtStop() bool {
	return m.atStop != nil
}

// IsAtStopAt reports whether this match is at the specified stop.
func (m *SpatialMatch) IsAtStopAt(tripIndex, stopPathIndex int) bool {
	return m.atStop != nil &&
		m.atStop.TripIndex() == tripIndex &&
		m.atStop.StopPathIndex() == stopPathIndex
}

// AtEndOfPathStop is true when the match is at the stop ending its own
// stop path, as opposed to just past the previous stop.
func (m *SpatialMatch) AtEndOfPathStop() bool {
	return m.atStop != nil &&
		m.atStop.TripIndex() == m.tripIndex &&
		m.atStop.StopPathIndex() == m.stopPathIndex
}

// AtBeginningOfPathStop is true when the match is at the stop for the
// previous stop path, i.e. matched just beyond it.
func (m *SpatialMatch) AtBeginningOfPathStop() bool {
	return m.atStop != nil &&
		m.atStop.TripIndex() == m.tripIndex &&
		m.atStop.StopPathIndex() != m.stopPathIndex
}

// IsLayover is true when on a layover stop path. Frequency based blocks
// have no layovers.
func (m *SpatialMatch) IsLayover() bool {
	if m.block.IsNoSchedule() {
		return false
	}
	return m.block.IsLayover(m.tripIndex, m.stopPathIndex)
}

func (m *SpatialMatch) IsWaitStop() bool {
	return m.block.IsWaitStop(m.tripIndex, m.stopPathIndex)
}

// ScheduledWaitStopTimeSecs is the scheduled departure for the stop path,
// routemodel.NoScheduleTime when absent.
func (m *SpatialMatch) ScheduledWaitStopTimeSecs() int {
	sched := m.block.ScheduleTime(m.tripIndex, m.stopPathIndex)
	return sched.DepartureSecs
}

// ScheduledWaitStopTime is the scheduled departure as an absolute time,
// zero time when the stop has none.
func (m *SpatialMatch) ScheduledWaitStopTime() time.Time {
	secs := m.ScheduledWaitStopTimeSecs()
	if secs == routemodel.NoScheduleTime {
		return time.Time{}
	}
	return routemodel.EpochForSecondsIntoDay(secs, m.avlTime)
}

// Location is the position of the match on the route geometry.
func (m *SpatialMatch) Location() geo.Coordinate {
	seg := m.block.SegmentVector(m.tripIndex, m.stopPathIndex, m.segmentIndex)
	if seg.Length() <= 0 {
		return seg.Start()
	}
	frac := m.distanceAlongSegment / seg.Length()
	if frac < 0 {
		frac = 0
	} else if frac > 1 {
		frac = 1
	}
	lat := seg.Start().Lat + (seg.End().Lat-seg.Start().Lat)*frac
	lon := seg.Start().Lon + (seg.End().Lon-seg.Start().Lon)*frac
	return geo.NewCoordinate(lat, lon)
}

// DistanceAlongStopPath is the distance from the start of the stop path to
// the match.
func (m *SpatialMatch) DistanceAlongStopPath() float64 {
	distance := 0.0
	for segIndex := 0; segIndex < m.segmentIndex; segIndex++ {
		distance += m.block.SegmentVector(m.tripIndex, m.stopPathIndex, segIndex).Length()
	}
	return distance + m.distanceAlongSegment
}

// DistanceRemainingInStopPath is how far is still to travel to the end of
// the path.
func (m *SpatialMatch) DistanceRemainingInStopPath() float64 {
	distance := -m.distanceAlongSegment
	stopPath := m.block.StopPath(m.tripIndex, m.stopPathIndex)
	for segIndex := m.segmentIndex; segIndex < stopPath.NumSegments(); segIndex++ {
		distance += stopPath.Segment(segIndex).Length()
	}
	return distance
}

// DistanceFromBeginningOfTrip is how far along the trip the match is.
func (m *SpatialMatch) DistanceFromBeginningOfTrip() float64 {
	distance := 0.0
	trip := m.Trip()
	for index := 1; index < m.stopPathIndex; index++ {
		distance += trip.StopPath(index).Length()
	}
	if m.stopPathIndex != 0 {
		distance += m.DistanceAlongStopPath()
	}
	return distance
}

// AwayFromTerminals reports whether the match is at least distance from
// both ends of its trip. Needed for route matching where terminal matches
// are ambiguous.
func (m *SpatialMatch) AwayFromTerminals(distance float64) bool {
	fromFirst := m.DistanceFromBeginningOfTrip()
	if fromFirst < distance {
		return false
	}
	fromLast := m.Trip().Length() - fromFirst
	return fromLast >= distance
}

// WithinDistanceOfEndOfTrip reports whether the match is within distance
// along the path of the end of its trip.
func (m *SpatialMatch) WithinDistanceOfEndOfTrip(distance float64) bool {
	fromFirst := m.DistanceFromBeginningOfTrip()
	fromLast := m.Trip().Length() - fromFirst
	return fromLast < distance
}

func (m *SpatialMatch) IsLastTripOfBlock() bool {
	return m.tripIndex == m.block.NumTrips()-1
}

// MatchAdjustedToEndOfPath returns a match at the end of the stop path for
// the stop this match is at. Must only be called when at a stop; returns
// nil and the caller logs otherwise.
func (m *SpatialMatch) MatchAdjustedToEndOfPath() *SpatialMatch {
	if m.atStop == nil {
		return nil
	}
	indices := m.Indices()
	if !m.AtEndOfPathStop() {
		indices.DecrementStopPath()
	}
	stopPath := indices.StopPath()
	segmentIndex := stopPath.NumSegments() - 1
	distanceAlongSegment := stopPath.Segment(segmentIndex).Length()
	endIndices := routemodel.NewIndices(m.block,
		indices.TripIndex(), indices.StopPathIndex(), segmentIndex)
	return newSpatialMatchAt(m, endIndices, distanceAlongSegment)
}

// MatchAdjustedToBeginningOfPath returns a match at the beginning of the
// stop path following the stop this match is at. Must only be called when
// at a stop.
func (m *SpatialMatch) MatchAdjustedToBeginningOfPath() *SpatialMatch {
	if m.atStop == nil {
		return nil
	}
	indices := m.Indices()
	if !m.AtBeginningOfPathStop() {
		indices.IncrementStopPath(m.avlTime)
	}
	beginIndices := routemodel.NewIndices(m.block,
		indices.TripIndex(), indices.StopPathIndex(), 0)
	return newSpatialMatchAt(m, beginIndices, 0.0)
}

// matchAfterStopIfAtStop moves the match just past the stop ending its
// path, so travel time computations skip that stop's dwell.
func (m *SpatialMatch) matchAfterStopIfAtStop() *SpatialMatch {
	if !m.AtEndOfPathStop() {
		return m
	}
	next := m.Indices()
	next.IncrementStopPath(m.avlTime)
	return newSpatialMatchAt(m, next, 0.0)
}

// MatchBeforeStopIfAtStop moves the match just before the previous stop if
// it matched right past it, for the same dwell-exclusion purpose.
func (m *SpatialMatch) MatchBeforeStopIfAtStop() *SpatialMatch {
	if !m.AtBeginningOfPathStop() {
		return m
	}
	previous := m.Indices()
	previous.DecrementStopPath()
	seg := previous.Segment()
	return newSpatialMatchAt(m, previous, seg.Length())
}

// MatchAtJustBeforeNextStop returns a match at the end of the current path
// (or the next one when already at a stop), for travel time to next stop.
func (m *SpatialMatch) MatchAtJustBeforeNextStop() *SpatialMatch {
	proper := m.matchAfterStopIfAtStop()
	segmentIndex := m.block.NumSegments(proper.TripIndex(), proper.StopPathIndex()) - 1
	segment := m.block.SegmentVector(proper.TripIndex(), proper.StopPathIndex(), segmentIndex)
	return NewSpatialMatch(m.avlTime, m.block,
		proper.TripIndex(), proper.StopPathIndex(), segmentIndex,
		math.NaN(), segment.Length())
}

// MatchAtPreviousStop returns a match at the end of the previous stop
// path, nil when that would cross the beginning of the block.
func (m *SpatialMatch) MatchAtPreviousStop() *SpatialMatch {
	indices := m.MatchBeforeStopIfAtStop().Indices()
	indices.DecrementStopPath()
	if indices.BeforeBeginningOfBlock() {
		return nil
	}
	segment := indices.Segment()
	return NewSpatialMatch(m.avlTime, m.block,
		indices.TripIndex(), indices.StopPathIndex(), indices.SegmentIndex(),
		math.NaN(), segment.Length())
}

// MatchAtNextStopWithScheduleTime finds the next upcoming stop that has a
// schedule time and returns a match at the end of its stop path, nil when
// no remaining stop of the trip has one.
func (m *SpatialMatch) MatchAtNextStopWithScheduleTime() *SpatialMatch {
	trip := m.Trip()
	targetIndex := -1
	for i := m.stopPathIndex; i < trip.NumStopPaths(); i++ {
		if trip.StopPath(i).ScheduleTime().HasTime() {
			targetIndex = i
			break
		}
	}
	if targetIndex < 0 {
		return nil
	}

	stopPath := trip.StopPath(targetIndex)
	segmentIndex := stopPath.NumSegments() - 1
	distanceAlongSegment := stopPath.Segment(segmentIndex).Length()
	indices := routemodel.NewIndices(m.block, m.tripIndex, targetIndex, segmentIndex)
	return newSpatialMatchAt(m, indices, distanceAlongSegment)
}

// DistanceBetweenMatches is the on-route distance from this match to the
// later otherMatch.
func (m *SpatialMatch) DistanceBetweenMatches(otherMatch *SpatialMatch) float64 {
	distanceAlongFirstPath := m.DistanceAlongStopPath()
	distanceAlongLastPath := otherMatch.DistanceAlongStopPath()

	indices := m.Indices()
	endIndices := otherMatch.Indices()
	totalStopPathDistances := 0.0
	for indices.IsEarlierStopPathThan(endIndices) {
		totalStopPathDistances += indices.StopPath().Length()
		indices.IncrementStopPath(m.avlTime)
	}
	return totalStopPathDistances - distanceAlongFirstPath + distanceAlongLastPath
}

// TraversedWaitStop reports whether a wait stop lies between this match
// and otherMatch, including sitting at one.
func (m *SpatialMatch) TraversedWaitStop(otherMatch *SpatialMatch) bool {
	if m.atStop != nil && m.atStop.IsWaitStop() {
		return true
	}
	if otherMatch.atStop != nil && otherMatch.atStop.IsWaitStop() {
		return true
	}

	indices := m.Indices()
	endIndices := otherMatch.Indices()
	for indices.IsEarlierStopPathThan(endIndices) {
		if indices.IsWaitStop() {
			return true
		}
		indices.IncrementStopPath(m.avlTime)
	}
	return false
}

func (m *SpatialMatch) LessThan(other *SpatialMatch) bool {
	if m.tripIndex != other.tripIndex {
		return m.tripIndex < other.tripIndex
	}
	if m.stopPathIndex != other.stopPathIndex {
		return m.stopPathIndex < other.stopPathIndex
	}
	if m.segmentIndex != other.segmentIndex {
		return m.segmentIndex < other.segmentIndex
	}
	return m.distanceAlongSegment < other.distanceAlongSegment
}

func (m *SpatialMatch) LessThanOrEqualTo(other *SpatialMatch) bool {
	if m.tripIndex != other.tripIndex {
		return m.tripIndex < other.tripIndex
	}
	if m.stopPathIndex != other.stopPathIndex {
		return m.stopPathIndex < other.stopPathIndex
	}
	if m.segmentIndex != other.segmentIndex {
		return m.segmentIndex < other.segmentIndex
	}
	return m.distanceAlongSegment <= other.distanceAlongSegment
}

// NumberStopsBetweenMatches counts stop boundaries crossed going from
// match1 to match2.
func NumberStopsBetweenMatches(match1, match2 *SpatialMatch) int {
	indices := match1.Indices()
	endIndices := match2.Indices()
	count := 0
	for indices.IsEarlierStopPathThan(endIndices) {
		indices.IncrementStopPath(match1.avlTime)
		count++
	}
	return count
}

func (m *SpatialMatch) String() string {
	return fmt.Sprintf("block=%s trip=%d stopPath=%d segment=%d "+
		"distToSeg=%.1f distAlongSeg=%.1f atStop=%v",
		m.block.ID(), m.tripIndex, m.stopPathIndex, m.segmentIndex,
		m.distanceToSegment, m.distanceAlongSegment, m.atStop != nil)
}
