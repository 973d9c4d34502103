package routemodel

import (
	"testing"
	"time"

	"github.com/lintang-b-s/transitx/pkg/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func coord(lon float64) geo.Coordinate {
	return geo.NewCoordinate(0, lon)
}

func noTime() ScheduleTime {
	return ScheduleTime{ArrivalSecs: NoScheduleTime, DepartureSecs: NoScheduleTime}
}

// newTestBlock builds a single-trip block running east along the equator.
// sp0 is the zero-length terminal path, sp1 and sp2 each have two segments
// of roughly 111m.
func newTestBlock() *Block {
	sp0 := NewStopPath(StopPathConfig{
		StopID:       "S0",
		GtfsStopSeq:  1,
		Points:       []geo.Coordinate{coord(106.800)},
		WaitStop:     true,
		Layover:      true,
		ScheduleTime: ScheduleTime{ArrivalSecs: NoScheduleTime, DepartureSecs: 8 * 3600},
	})
	sp1 := NewStopPath(StopPathConfig{
		StopID:         "S1",
		GtfsStopSeq:    2,
		Points:         []geo.Coordinate{coord(106.800), coord(106.801), coord(106.802)},
		ScheduleTime:   ScheduleTime{ArrivalSecs: NoScheduleTime, DepartureSecs: 8*3600 + 60},
		TravelSegsMsec: []int64{30000, 30000},
		StopTimeMsec:   10000,
		BeforeStopDist: 25,
		AfterStopDist:  25,
	})
	sp2 := NewStopPath(StopPathConfig{
		StopID:         "S2",
		GtfsStopSeq:    3,
		Points:         []geo.Coordinate{coord(106.802), coord(106.803), coord(106.804)},
		ScheduleTime:   ScheduleTime{ArrivalSecs: 8*3600 + 150, DepartureSecs: NoScheduleTime},
		TravelSegsMsec: []int64{30000, 30000},
		StopTimeMsec:   10000,
		BeforeStopDist: 25,
		AfterStopDist:  25,
	})
	trip := NewTrip("T1", "R1", "Eastbound", 8*3600, 8*3600+600, false,
		[]*StopPath{sp0, sp1, sp2})
	return NewBlock("B1", "weekday", true, []*Trip{trip})
}

func TestStopPathGeometry(t *testing.T) {
	block := newTestBlock()
	trip := block.Trip(0)

	// single-point terminal path still has one zero-length segment
	sp0 := trip.StopPath(0)
	require.Equal(t, 1, sp0.NumSegments())
	assert.Equal(t, 0.0, sp0.Length())

	sp1 := trip.StopPath(1)
	require.Equal(t, 2, sp1.NumSegments())
	assert.InDelta(t, 222.4, sp1.Length(), 1.0)
	assert.InDelta(t, 90.0, sp1.Segment(0).Heading(), 0.5)
	assert.InDelta(t, 111.2, sp1.TravelSegmentLength(), 0.5)
	assert.Equal(t, int64(60000), sp1.TravelTimeMsec())

	assert.InDelta(t, 444.8, trip.Length(), 2.0)
}

func TestScheduleTime(t *testing.T) {
	testCases := []struct {
		name        string
		st          ScheduleTime
		hasTime     bool
		expectedSec int
	}{
		{
			name:        "departure dominates",
			st:          ScheduleTime{ArrivalSecs: 100, DepartureSecs: 200},
			hasTime:     true,
			expectedSec: 200,
		},
		{
			name:        "arrival only",
			st:          ScheduleTime{ArrivalSecs: 100, DepartureSecs: NoScheduleTime},
			hasTime:     true,
			expectedSec: 100,
		},
		{
			name:        "no time at all",
			st:          noTime(),
			hasTime:     false,
			expectedSec: NoScheduleTime,
		},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.hasTime, tt.st.HasTime())
			assert.Equal(t, tt.expectedSec, tt.st.Time())
		})
	}
}

func TestIndicesIncrementWalksWholeBlock(t *testing.T) {
	block := newTestBlock()
	epoch := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)

	indices := NewIndices(block, 0, 0, 0)
	visited := 0
	for !indices.PastEndOfBlock(epoch) {
		visited++
		if visited == 5 {
			assert.True(t, indices.AtEndOfBlock())
			assert.True(t, indices.AtEndOfTrip())
		}
		indices.Increment(epoch)
	}
	// 1 segment in sp0 plus 2 in sp1 plus 2 in sp2
	assert.Equal(t, 5, visited)
}

func TestIndicesDecrement(t *testing.T) {
	block := newTestBlock()

	indices := NewIndices(block, 0, 2, 0)
	indices.Decrement()
	assert.Equal(t, 1, indices.StopPathIndex())
	assert.Equal(t, 1, indices.SegmentIndex())

	indices = NewIndices(block, 0, 0, 0)
	indices.Decrement()
	assert.True(t, indices.BeforeBeginningOfBlock())
}

func TestIndicesStopPathHelpers(t *testing.T) {
	block := newTestBlock()

	atLayover := NewIndices(block, 0, 0, 0)
	assert.True(t, atLayover.IsLayover())
	assert.True(t, atLayover.IsWaitStop())

	midPath := NewIndices(block, 0, 1, 0)
	assert.False(t, midPath.IsLayover())
	assert.Equal(t, int64(60000), midPath.TravelTimeForPathMsec())
	assert.Equal(t, int64(10000), midPath.StopTimeForPathMsec())

	previous := NewIndices(block, 0, 2, 0).PreviousStopPath(1)
	require.NotNil(t, previous)
	assert.Equal(t, "S1", previous.StopID())

	// walking past the beginning gives nil
	assert.Nil(t, NewIndices(block, 0, 1, 0).PreviousStopPath(2))
}

func TestModelLookupsAndActiveBlocks(t *testing.T) {
	block := newTestBlock()
	model := NewModel("rev-1", []*Block{block})

	assert.Equal(t, block, model.BlockByID("B1"))
	assert.Nil(t, model.BlockByID("nope"))
	require.Len(t, model.BlocksForRoute("R1"), 1)
	assert.Empty(t, model.BlocksForRoute("R9"))

	testCases := []struct {
		name     string
		at       time.Time
		expected int
	}{
		{name: "mid block", at: time.Date(2025, 6, 2, 8, 5, 0, 0, time.UTC), expected: 1},
		{name: "within look-ahead before start", at: time.Date(2025, 6, 2, 7, 52, 0, 0, time.UTC), expected: 1},
		{name: "too early", at: time.Date(2025, 6, 2, 7, 40, 0, 0, time.UTC), expected: 0},
		{name: "after end", at: time.Date(2025, 6, 2, 8, 15, 0, 0, time.UTC), expected: 0},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, model.ActiveBlocks(tt.at, 10*time.Minute), tt.expected)
			assert.Len(t, model.ActiveBlocksForRoute("R1", tt.at, 10*time.Minute), tt.expected)
		})
	}
}

func TestBlockServesRoute(t *testing.T) {
	block := newTestBlock()
	assert.True(t, block.ServesRoute("R1"))
	assert.False(t, block.ServesRoute("R2"))
	assert.Equal(t, []string{"R1"}, block.RouteIDs())
}

func TestEpochForSecondsIntoDay(t *testing.T) {
	ref := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	got := EpochForSecondsIntoDay(8*3600+90, ref)
	assert.Equal(t, time.Date(2025, 6, 2, 8, 1, 30, 0, time.UTC), got)

	// schedule time just past midnight, reference just before it: the
	// closest interpretation is early next day
	ref = time.Date(2025, 6, 2, 23, 50, 0, 0, time.UTC)
	got = EpochForSecondsIntoDay(10*60, ref)
	assert.Equal(t, time.Date(2025, 6, 3, 0, 10, 0, 0, time.UTC), got)

	// and the mirror image across midnight
	ref = time.Date(2025, 6, 3, 0, 10, 0, 0, time.UTC)
	got = EpochForSecondsIntoDay(23*3600+50*60, ref)
	assert.Equal(t, time.Date(2025, 6, 2, 23, 50, 0, 0, time.UTC), got)
}
