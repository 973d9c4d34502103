package matcher

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpatialMatchAtStopDetection(t *testing.T) {
	block := newTestBlock()
	segLen := block.Trip(0).StopPath(1).Segment(1).Length()
	avlTime := tday(8, 1, 30)

	tests := []struct {
		name          string
		stopPathIndex int
		segmentIndex  int
		alongSegment  float64
		wantAtStop    bool
		wantStopID    string
		wantAtEnd     bool
		wantAtBegin   bool
	}{
		{
			name:          "just before stop ending the path",
			stopPathIndex: 1,
			segmentIndex:  1,
			alongSegment:  segLen - 10,
			wantAtStop:    true,
			wantStopID:    "S1",
			wantAtEnd:     true,
		},
		{
			name:          "just past the previous stop",
			stopPathIndex: 2,
			segmentIndex:  0,
			alongSegment:  10,
			wantAtStop:    true,
			wantStopID:    "S1",
			wantAtBegin:   true,
		},
		{
			name:          "mid path is not at a stop",
			stopPathIndex: 1,
			segmentIndex:  1,
			alongSegment:  50,
		},
		{
			name:          "layover always counts as at its stop",
			stopPathIndex: 0,
			segmentIndex:  0,
			alongSegment:  0,
			wantAtStop:    true,
			wantStopID:    "S0",
			wantAtEnd:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match := NewSpatialMatch(avlTime, block, 0, tt.stopPathIndex,
				tt.segmentIndex, 0, tt.alongSegment)
			assert.Equal(t, tt.wantAtStop, match.IsAtStop())
			if tt.wantAtStop {
				require.NotNil(t, match.AtStop())
				assert.Equal(t, tt.wantStopID, match.AtStop().StopID())
			}
			assert.Equal(t, tt.wantAtEnd, match.AtEndOfPathStop())
			assert.Equal(t, tt.wantAtBegin, match.AtBeginningOfPathStop())
		})
	}
}

func TestMatchAdjustedToEndAndBeginningOfPath(t *testing.T) {
	block := newTestBlock()
	segLen := block.Trip(0).StopPath(1).Segment(1).Length()
	avlTime := tday(8, 3, 0)

	// Matched just past S1, on the first segment of S2's path.
	match := NewSpatialMatch(avlTime, block, 0, 2, 0, 0, 10)
	require.True(t, match.AtBeginningOfPathStop())

	atEnd := match.MatchAdjustedToEndOfPath()
	require.NotNil(t, atEnd)
	assert.Equal(t, 1, atEnd.StopPathIndex())
	assert.Equal(t, 1, atEnd.SegmentIndex())
	assert.InDelta(t, segLen, atEnd.DistanceAlongSegment(), 0.01)

	atBegin := match.MatchAdjustedToBeginningOfPath()
	require.NotNil(t, atBegin)
	assert.Equal(t, 2, atBegin.StopPathIndex())
	assert.Equal(t, 0, atBegin.SegmentIndex())
	assert.Zero(t, atBegin.DistanceAlongSegment())

	// Mid path there is no stop to adjust to.
	midMatch := NewSpatialMatch(avlTime, block, 0, 1, 1, 0, 50)
	assert.Nil(t, midMatch.MatchAdjustedToEndOfPath())
	assert.Nil(t, midMatch.MatchAdjustedToBeginningOfPath())
}

func TestDistanceBetweenMatches(t *testing.T) {
	block := newTestBlock()
	segLen := block.Trip(0).StopPath(1).Segment(1).Length()
	pathLen := block.Trip(0).StopPath(1).Length()
	avlTime := tday(8, 2, 0)

	match1 := NewSpatialMatch(avlTime, block, 0, 1, 0, 0, 0)
	match2 := NewSpatialMatch(avlTime, block, 0, 2, 0, 0, 0)
	assert.InDelta(t, pathLen, match1.DistanceBetweenMatches(match2), 0.5)
	assert.Equal(t, 1, NumberStopsBetweenMatches(match1, match2))

	match3 := NewSpatialMatch(avlTime, block, 0, 1, 0, 0, 50)
	match4 := NewSpatialMatch(avlTime, block, 0, 2, 1, 0, 30)
	want := pathLen - 50 + segLen + 30
	assert.InDelta(t, want, match3.DistanceBetweenMatches(match4), 0.5)
}

func TestTraversedWaitStop(t *testing.T) {
	block := newTestBlock()
	avlTime := tday(8, 0, 30)

	atLayover := NewSpatialMatch(avlTime, block, 0, 0, 0, 0, 0)
	beyond := NewSpatialMatch(avlTime, block, 0, 1, 1, 0, 50)
	assert.True(t, atLayover.TraversedWaitStop(beyond))

	// Neither match is at a stop and no wait stop lies between them.
	match1 := NewSpatialMatch(avlTime, block, 0, 1, 0, 0, 50)
	match2 := NewSpatialMatch(avlTime, block, 0, 2, 0, 0, 50)
	assert.False(t, match1.TraversedWaitStop(match2))
}

func TestScheduledWaitStopTime(t *testing.T) {
	block := newTestBlock()
	avlTime := tday(7, 55, 0)

	atTerminal := NewSpatialMatch(avlTime, block, 0, 0, 0, 0, 0)
	assert.Equal(t, tday(8, 0, 0), atTerminal.ScheduledWaitStopTime())

	// The last stop has an arrival but no departure time.
	atLast := NewSpatialMatch(avlTime, block, 0, 3, 1, 0, 0)
	assert.True(t, atLast.ScheduledWaitStopTime().IsZero())
}

func TestMatchAtPreviousStopAtBlockStart(t *testing.T) {
	block := newTestBlock()
	avlTime := tday(8, 0, 30)

	// The layover is the first stop path so there is nothing before it.
	atLayover := NewSpatialMatch(avlTime, block, 0, 0, 0, 0, 0)
	assert.Nil(t, atLayover.MatchAtPreviousStop())

	match := NewSpatialMatch(avlTime, block, 0, 2, 0, 0, 50)
	previous := match.MatchAtPreviousStop()
	require.NotNil(t, previous)
	assert.Equal(t, 1, previous.StopPathIndex())
	assert.Equal(t, 1, previous.SegmentIndex())
	assert.True(t, math.IsNaN(previous.DistanceToSegment()))
}
