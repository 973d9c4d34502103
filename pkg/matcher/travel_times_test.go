package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestTravelTimeAsTheCrowFlies(t *testing.T) {
	tt := NewTravelTimes(zap.NewNop(), testConfig())

	tests := []struct {
		name     string
		distance float64
		wantMsec int64
	}{
		{"short distance at terminal speed", 500, 125000},
		{"exactly the short distance boundary", 1000, 250000},
		{"remainder at deadheading speed", 3000, 450000},
		{"zero distance", 0, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.wantMsec, tt.TravelTimeAsTheCrowFliesMsec(tc.distance))
		})
	}
}

func TestExpectedTravelTimeWithinStopPath(t *testing.T) {
	block := newTestBlock()
	tt := NewTravelTimes(zap.NewNop(), testConfig())
	avlTime := tday(8, 1, 0)

	// From the start of S1's path to halfway along its second travel
	// segment: the whole first 30s segment plus half the second.
	match1 := NewSpatialMatch(avlTime, block, 0, 1, 0, 0, 0)
	match2 := NewSpatialMatch(avlTime, block, 0, 1, 1, 0, 55.6)
	got := tt.ExpectedTravelTimeBetweenMatchesAtMsec("bus-1", avlTime, match1, match2)
	assert.InDelta(t, 45000, got, 1000)
}

func TestExpectedTravelTimeClampedToWaitStopDeparture(t *testing.T) {
	block := newTestBlock()
	segLen := block.Trip(0).StopPath(1).Segment(1).Length()
	tt := NewTravelTimes(zap.NewNop(), testConfig())
	avlTime := tday(7, 58, 20)

	match1 := NewSpatialMatch(avlTime, block, 0, 0, 0, 0, 0)
	match2 := NewSpatialMatch(avlTime, block, 0, 1, 1, 0, segLen)

	// 100s before the scheduled 08:00 departure the expected time is the
	// wait plus the 60s of travel along S1's path.
	got := tt.ExpectedTravelTimeBetweenMatchesMsec("bus-1", 8*3600-100, match1, match2)
	assert.InDelta(t, 160000, got, 1000)

	// Past the scheduled departure there is no wait left.
	got = tt.ExpectedTravelTimeBetweenMatchesMsec("bus-1", 8*3600+100, match1, match2)
	assert.InDelta(t, 60000, got, 1000)
}

func TestExpectedTravelTimeAcrossStopPaths(t *testing.T) {
	block := newTestBlock()
	tt := NewTravelTimes(zap.NewNop(), testConfig())
	avlTime := tday(8, 2, 0)

	// Start of S1's path to halfway along S3's first travel segment: S1
	// travel, S1 dwell, S2 travel and dwell, then the partial segment.
	match1 := NewSpatialMatch(avlTime, block, 0, 1, 0, 0, 0)
	match2 := NewSpatialMatch(avlTime, block, 0, 3, 0, 0, 55.6)
	got := tt.ExpectedTravelTimeBetweenMatchesAtMsec("bus-1", avlTime, match1, match2)
	assert.InDelta(t, 155000, got, 1500)
}

func TestExpectedTravelTimeBackwardsMatchIsZero(t *testing.T) {
	block := newTestBlock()
	tt := NewTravelTimes(zap.NewNop(), testConfig())
	avlTime := tday(8, 2, 0)

	match1 := NewSpatialMatch(avlTime, block, 0, 2, 0, 0, 0)
	match2 := NewSpatialMatch(avlTime, block, 0, 1, 0, 0, 0)
	assert.Zero(t, tt.ExpectedTravelTimeBetweenMatchesAtMsec("bus-1", avlTime, match1, match2))
}

func TestExpectedTravelTimeToAndFromEndsOfStopPath(t *testing.T) {
	block := newTestBlock()
	segLen := block.Trip(0).StopPath(1).Segment(1).Length()
	tt := NewTravelTimes(zap.NewNop(), testConfig())
	avlTime := tday(8, 1, 0)

	atStart := NewSpatialMatch(avlTime, block, 0, 1, 0, 0, 0)
	assert.InDelta(t, 60000, tt.ExpectedTravelTimeFromMatchToEndOfStopPathMsec(atStart), 500)
	assert.Zero(t, tt.ExpectedTravelTimeFromBeginningOfStopPathToMatchMsec(atStart))

	atSegBoundary := NewSpatialMatch(avlTime, block, 0, 1, 0, 0, segLen)
	assert.InDelta(t, 30000,
		tt.ExpectedTravelTimeFromMatchToEndOfStopPathMsec(atSegBoundary), 500)
	assert.InDelta(t, 30000,
		tt.ExpectedTravelTimeFromBeginningOfStopPathToMatchMsec(atSegBoundary), 500)
}
