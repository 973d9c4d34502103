package matcher

import (
	"testing"

	"github.com/lintang-b-s/transitx/pkg/datastructure"
	"github.com/lintang-b-s/transitx/pkg/routemodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestTemporalMatcher() *TemporalMatcher {
	cfg := testConfig()
	return NewTemporalMatcher(zap.NewNop(), cfg, NewTravelTimes(zap.NewNop(), cfg))
}

func TestBestTemporalMatchComparedToSchedule(t *testing.T) {
	block := newTestBlock()
	tm := newTestTemporalMatcher()

	// 08:01:30, halfway along the second segment of S1's path. The schedule
	// expects the vehicle there at 08:00:45, so it is 45s late. The layover
	// candidate would make it 90s late, so the on-route match wins.
	avlTime := tday(8, 1, 30)
	report := testReport(106.8015, 90, avlTime)
	candidates := []*SpatialMatch{
		NewSpatialMatch(avlTime, block, 0, 0, 0, 0, 0),
		NewSpatialMatch(avlTime, block, 0, 1, 1, 0, 55.6),
	}

	best := tm.BestTemporalMatchComparedToSchedule(report, candidates)
	require.NotNil(t, best)
	assert.Equal(t, 1, best.StopPathIndex())
	assert.InDelta(t, -45000, best.TemporalDifference().Msec(), 2500)
}

func TestBestTemporalMatchComparedToScheduleEarlyAtLayover(t *testing.T) {
	block := newTestBlock()
	tm := newTestTemporalMatcher()

	// Waiting at the terminal five minutes before the scheduled departure.
	avlTime := tday(7, 55, 0)
	report := testReport(106.800, 90, avlTime)
	candidates := []*SpatialMatch{
		NewSpatialMatch(avlTime, block, 0, 0, 0, 0, 0),
	}

	best := tm.BestTemporalMatchComparedToSchedule(report, candidates)
	require.NotNil(t, best)
	assert.Equal(t, 0, best.StopPathIndex())
	assert.InDelta(t, 300000, best.TemporalDifference().Msec(), 1000)
}

func TestBestTemporalMatchComparedToScheduleRejectsOutOfBounds(t *testing.T) {
	block := newTestBlock()
	tm := newTestTemporalMatcher()

	// A vehicle more than the allowable initial lateness behind schedule
	// must not be matched.
	avlTime := tday(8, 41, 30)
	report := testReport(106.8015, 90, avlTime)
	candidates := []*SpatialMatch{
		NewSpatialMatch(avlTime, block, 0, 0, 0, 0, 0),
		NewSpatialMatch(avlTime, block, 0, 1, 1, 0, 55.6),
	}

	assert.Nil(t, tm.BestTemporalMatchComparedToSchedule(report, candidates))
}

func TestBestTemporalMatchProgressAlongPath(t *testing.T) {
	block := newTestBlock()
	tm := newTestTemporalMatcher()

	previousTime := tday(8, 1, 0)
	previousMatch := NewTemporalMatch(
		NewSpatialMatch(previousTime, block, 0, 1, 0, 0, 0),
		datastructure.NewTemporalDifference(0, testConfig().EarlyToLateRatio))

	// 40s elapsed against an expected 45s of travel, so slightly early.
	avlTime := tday(8, 1, 40)
	report := testReport(106.8015, 90, avlTime)
	candidates := []*SpatialMatch{
		NewSpatialMatch(avlTime, block, 0, 1, 1, 0, 55.6),
	}

	best := tm.BestTemporalMatch(report, previousTime, previousMatch, candidates)
	require.NotNil(t, best)
	assert.Equal(t, 1, best.StopPathIndex())
	assert.InDelta(t, 5000, best.TemporalDifference().Msec(), 2000)
}

func TestBestTemporalMatchRejectsImplausibleElapsedTime(t *testing.T) {
	block := newTestBlock()
	tm := newTestTemporalMatcher()

	previousTime := tday(8, 1, 0)
	previousMatch := NewTemporalMatch(
		NewSpatialMatch(previousTime, block, 0, 1, 0, 0, 0),
		datastructure.NewTemporalDifference(0, testConfig().EarlyToLateRatio))

	// Three hours elapsed for roughly three minutes of expected travel.
	avlTime := tday(11, 1, 40)
	report := testReport(106.8055, 90, avlTime)
	candidates := []*SpatialMatch{
		NewSpatialMatch(avlTime, block, 0, 3, 1, 0, 55.6),
	}

	assert.Nil(t, tm.BestTemporalMatch(report, previousTime, previousMatch, candidates))
}

func TestBestTemporalMatchEarlyDepartureFromLayover(t *testing.T) {
	block := newTestBlock()
	tm := newTestTemporalMatcher()

	// A vehicle that left the terminal before its 08:00 scheduled departure
	// looks very early on the on-route match, but must still be moved off
	// the layover match.
	previousTime := tday(7, 57, 0)
	previousMatch := NewTemporalMatch(
		NewSpatialMatch(previousTime, block, 0, 0, 0, 0, 0),
		datastructure.NewTemporalDifference(0, testConfig().EarlyToLateRatio))

	avlTime := tday(7, 58, 0)
	report := testReport(106.8025, 90, avlTime)
	candidates := []*SpatialMatch{
		NewSpatialMatch(avlTime, block, 0, 0, 0, 0, 0),
		NewSpatialMatch(avlTime, block, 0, 2, 0, 0, 55.6),
	}

	best := tm.BestTemporalMatch(report, previousTime, previousMatch, candidates)
	require.NotNil(t, best)
	assert.Equal(t, 2, best.StopPathIndex())
	assert.Positive(t, best.TemporalDifference().Msec())
}

func TestMatchToLayoverStopEvenIfOffRoute(t *testing.T) {
	block := newTestBlock()
	tm := newTestTemporalMatcher()
	trips := []*routemodel.Trip{block.Trip(0)}

	// About 1km from the trip start, which takes roughly 250s as the crow
	// flies at deadheading speeds.
	tests := []struct {
		name     string
		at       [3]int
		canReach bool
	}{
		{"plenty of time before trip start", [3]int{7, 50, 0}, true},
		{"not enough time left", [3]int{7, 56, 30}, false},
		{"trip already started", [3]int{8, 5, 0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := testReport(106.809, 90, tday(tt.at[0], tt.at[1], tt.at[2]))
			trip := tm.MatchToLayoverStopEvenIfOffRoute(report, trips)
			if tt.canReach {
				require.NotNil(t, trip)
				assert.Equal(t, "T1", trip.ID())
			} else {
				assert.Nil(t, trip)
			}
		})
	}
}
