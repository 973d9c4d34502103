package routemodel

import (
	"fmt"
	"time"
)

// Indices is a cursor into a Block: (tripIndex, stopPathIndex,
// segmentIndex), ordered lexicographically. It is a small value type, copy
// it before mutating when the original position is still needed.
type Indices struct {
	block         *Block
	tripIndex     int
	stopPathIndex int
	segmentIndex  int
}

func NewIndices(block *Block, tripIndex, stopPathIndex, segmentIndex int) Indices {
	return Indices{
		block:         block,
		tripIndex:     tripIndex,
		stopPathIndex: stopPathIndex,
		segmentIndex:  segmentIndex,
	}
}

func (i Indices) Block() *Block {
	return i.block
}

func (i Indices) TripIndex() int {
	return i.tripIndex
}

func (i Indices) StopPathIndex() int {
	return i.stopPathIndex
}

func (i Indices) SegmentIndex() int {
	return i.segmentIndex
}

func (i Indices) Trip() *Trip {
	if i.tripIndex < 0 || i.tripIndex >= i.block.NumTrips() {
		return nil
	}
	return i.block.Trip(i.tripIndex)
}

func (i Indices) StopPath() *StopPath {
	trip := i.Trip()
	if trip == nil || i.stopPathIndex < 0 || i.stopPathIndex >= trip.NumStopPaths() {
		return nil
	}
	return trip.StopPath(i.stopPathIndex)
}

func (i Indices) Segment() Segment {
	return i.block.SegmentVector(i.tripIndex, i.stopPathIndex, i.segmentIndex)
}

func (i Indices) Equal(other Indices) bool {
	return i.block == other.block &&
		i.tripIndex == other.tripIndex &&
		i.stopPathIndex == other.stopPathIndex &&
		i.segmentIndex == other.segmentIndex
}

// EqualStopPath ignores the segment index.
func (i Indices) EqualStopPath(other Indices) bool {
	return i.block == other.block &&
		i.tripIndex == other.tripIndex &&
		i.stopPathIndex == other.stopPathIndex
}

func (i Indices) LessThan(other Indices) bool {
	if i.tripIndex != other.tripIndex {
		return i.tripIndex < other.tripIndex
	}
	if i.stopPathIndex != other.stopPathIndex {
		return i.stopPathIndex < other.stopPathIndex
	}
	return i.segmentIndex < other.segmentIndex
}

// IsEarlierStopPathThan compares at stop path granularity. For no-schedule
// blocks the trips loop, so only differing stop paths count as earlier.
func (i Indices) IsEarlierStopPathThan(other Indices) bool {
	if i.block.IsNoSchedule() {
		return i.stopPathIndex != other.stopPathIndex
	}
	if i.tripIndex != other.tripIndex {
		return i.tripIndex < other.tripIndex
	}
	return i.stopPathIndex < other.stopPathIndex
}

func secondsIntoDay(t time.Time) int {
	h, m, s := t.Clock()
	return h*3600 + m*60 + s
}

// Increment advances to the next segment, rolling into the next stop path
// and trip. epochTime is needed for no-schedule blocks where trips loop
// until their time bucket ends.
func (i *Indices) Increment(epochTime time.Time) *Indices {
	i.segmentIndex++
	if i.segmentIndex >= i.block.NumSegments(i.tripIndex, i.stopPathIndex) {
		i.segmentIndex = 0
		i.stopPathIndex++
		if i.stopPathIndex >= i.block.NumStopPaths(i.tripIndex) {
			i.stopPathIndex = 0
			if i.block.IsNoSchedule() {
				if secondsIntoDay(epochTime) > i.Trip().EndTimeSecs() {
					i.tripIndex++
				}
			} else {
				i.tripIndex++
			}
		}
	}
	return i
}

// IncrementStopPath advances to the beginning of the next stop path.
func (i *Indices) IncrementStopPath(epochTime time.Time) *Indices {
	i.segmentIndex = 0
	i.stopPathIndex++
	if i.stopPathIndex >= i.block.NumStopPaths(i.tripIndex) {
		i.stopPathIndex = 0
		if i.block.IsNoSchedule() {
			if secondsIntoDay(epochTime) > i.Trip().EndTimeSecs() {
				i.tripIndex++
			}
		} else {
			i.tripIndex++
		}
	}
	return i
}

// Decrement moves to the previous segment, rolling back across stop path
// and trip boundaries.
func (i *Indices) Decrement() *Indices {
	i.segmentIndex--
	if i.segmentIndex < 0 {
		i.stopPathIndex--
		if i.stopPathIndex < 0 {
			if !i.block.IsNoSchedule() {
				i.tripIndex--
			}
			if i.tripIndex >= 0 {
				i.stopPathIndex = i.block.NumStopPaths(i.tripIndex) - 1
			}
		}
		if i.tripIndex >= 0 {
			i.segmentIndex = i.block.NumSegments(i.tripIndex, i.stopPathIndex) - 1
		}
	}
	return i
}

// DecrementStopPath moves to the last segment of the previous stop path.
func (i *Indices) DecrementStopPath() *Indices {
	i.stopPathIndex--
	if i.stopPathIndex < 0 {
		if !i.block.IsNoSchedule() {
			i.tripIndex--
		}
		if i.tripIndex >= 0 {
			i.stopPathIndex = i.block.NumStopPaths(i.tripIndex) - 1
		}
	}
	if i.tripIndex >= 0 {
		i.segmentIndex = i.block.NumSegments(i.tripIndex, i.stopPathIndex) - 1
	}
	return i
}

// PastEndOfBlock reports whether Increment() walked off the end of the
// block. For no-schedule assignments the end is time based instead.
func (i Indices) PastEndOfBlock(epochTime time.Time) bool {
	trip := i.Trip()
	if trip == nil {
		return true
	}
	if trip.IsNoSchedule() {
		return secondsIntoDay(epochTime) > trip.EndTimeSecs()
	}
	return i.tripIndex >= i.block.NumTrips()
}

// BeforeBeginningOfBlock reports whether Decrement() walked off the front.
func (i Indices) BeforeBeginningOfBlock() bool {
	return i.tripIndex < 0
}

func (i Indices) AtEndOfBlock() bool {
	return i.tripIndex == i.block.NumTrips()-1 &&
		i.stopPathIndex == i.block.NumStopPaths(i.tripIndex)-1 &&
		i.segmentIndex == i.block.NumSegments(i.tripIndex, i.stopPathIndex)-1
}

func (i Indices) AtBeginningOfTrip() bool {
	return i.stopPathIndex == 0 && i.segmentIndex == 0
}

func (i Indices) AtEndOfTrip() bool {
	return i.stopPathIndex == i.block.NumStopPaths(i.tripIndex)-1
}

// AtEndOfStopPath indicates the cursor is at a stop, so dwell time applies.
func (i Indices) AtEndOfStopPath() bool {
	return i.segmentIndex == i.block.NumSegments(i.tripIndex, i.stopPathIndex)-1
}

// IsLayover is true when on the last segment of a layover stop path.
func (i Indices) IsLayover() bool {
	return i.AtEndOfStopPath() && i.block.IsLayover(i.tripIndex, i.stopPathIndex)
}

func (i Indices) IsWaitStop() bool {
	return i.block.IsWaitStop(i.tripIndex, i.stopPathIndex)
}

func (i Indices) ScheduleTime() ScheduleTime {
	return i.block.ScheduleTime(i.tripIndex, i.stopPathIndex)
}

// StopTimeForPathMsec is the expected dwell at the stop ending this path.
func (i Indices) StopTimeForPathMsec() int64 {
	return i.block.PathStopTimeMsec(i.tripIndex, i.stopPathIndex)
}

// TravelTimeForPathMsec is the expected travel time over this path,
// dwell excluded.
func (i Indices) TravelTimeForPathMsec() int64 {
	return i.block.StopPathTravelTimeMsec(i.tripIndex, i.stopPathIndex)
}

// PreviousStopPath walks count stop paths backwards, nil when that crosses
// the beginning of the block.
func (i Indices) PreviousStopPath(count int) *StopPath {
	tripIndex := i.tripIndex
	stopPathIndex := i.stopPathIndex
	for n := 0; n < count; n++ {
		stopPathIndex--
		if stopPathIndex < 0 {
			if !i.block.IsNoSchedule() {
				tripIndex--
			}
			if tripIndex < 0 {
				return nil
			}
			stopPathIndex = i.block.NumStopPaths(tripIndex) - 1
		}
	}
	return i.block.StopPath(tripIndex, stopPathIndex)
}

func (i Indices) String() string {
	return fmt.Sprintf("block=%s trip=%d stopPath=%d segment=%d",
		i.block.ID(), i.tripIndex, i.stopPathIndex, i.segmentIndex)
}
