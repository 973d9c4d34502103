package matcher

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSpatialMatchesForBlockFindsLocalMinimum(t *testing.T) {
	block := newTestBlock()
	sm := NewSpatialMatcher(zap.NewNop(), testConfig())

	// Halfway along the second segment of S1's stop path, heading east.
	report := testReport(106.8015, 90, tday(8, 1, 30))
	matches := sm.SpatialMatchesForBlock(report, block, nil, StandardMatching)
	require.Len(t, matches, 2)

	// Vehicles may deadhead to the first layover of the block so it always
	// matches regardless of distance.
	layover := matches[0]
	assert.True(t, layover.IsLayover())
	assert.Equal(t, 0, layover.StopPathIndex())

	onRoute := matches[1]
	assert.Equal(t, 1, onRoute.StopPathIndex())
	assert.Equal(t, 1, onRoute.SegmentIndex())
	assert.InDelta(t, 55.6, onRoute.DistanceAlongSegment(), 1.0)
	assert.Less(t, onRoute.DistanceToSegment(), 1.0)
}

func TestSpatialMatchesForBlockRejectsWrongHeading(t *testing.T) {
	block := newTestBlock()
	sm := NewSpatialMatcher(zap.NewNop(), testConfig())

	// Heading west against an eastbound trip. Only the layover, where
	// heading is irrelevant, can match.
	report := testReport(106.8015, 270, tday(8, 1, 30))
	matches := sm.SpatialMatchesForBlock(report, block, nil, StandardMatching)
	require.Len(t, matches, 1)
	assert.True(t, matches[0].IsLayover())
}

func TestSpatialMatchesForBlockDiscardsMatchNearEndOfBlock(t *testing.T) {
	block := newTestBlock()
	sm := NewSpatialMatcher(zap.NewNop(), testConfig())

	// On the last segment of the last stop path, within the configured
	// distance of the end of a schedule based block.
	report := testReport(106.8055, 90, tday(8, 4, 30))
	matches := sm.SpatialMatchesForBlock(report, block, nil, StandardMatching)
	for _, match := range matches {
		assert.NotEqual(t, 3, match.StopPathIndex(),
			"match near end of block should have been discarded")
	}
}

func TestSpatialMatchesForAutoAssigningDropsLayovers(t *testing.T) {
	block := newTestBlock()
	sm := NewSpatialMatcher(zap.NewNop(), testConfig())

	report := testReport(106.8015, 90, tday(8, 1, 30))
	matches := sm.SpatialMatchesForAutoAssigning(report, block, nil)
	require.Len(t, matches, 1)
	assert.False(t, matches[0].IsLayover())
	assert.Equal(t, 1, matches[0].StopPathIndex())

	// Against the direction of travel nothing at all qualifies.
	wrongWay := testReport(106.8015, 270, tday(8, 1, 30))
	assert.Empty(t, sm.SpatialMatchesForAutoAssigning(wrongWay, block, nil))
}

func TestSpatialMatchesFromPreviousMatchSearchesForward(t *testing.T) {
	block := newTestBlock()
	sm := NewSpatialMatcher(zap.NewNop(), testConfig())

	previousTime := tday(8, 1, 30)
	previousMatch := NewSpatialMatch(previousTime, block, 0, 1, 0, 0, 11.1)

	report := testReport(106.8015, 90, tday(8, 2, 30))
	matches := sm.SpatialMatchesFromPreviousMatch(report, previousTime,
		previousMatch, false)
	require.Len(t, matches, 1)
	assert.Equal(t, 1, matches[0].StopPathIndex())
	assert.Equal(t, 1, matches[0].SegmentIndex())
	assert.InDelta(t, 55.6, matches[0].DistanceAlongSegment(), 1.0)
}

func TestSpatialMatchesFromPreviousMatchAddsEndOfBlock(t *testing.T) {
	block := newTestBlock()
	segLen := block.Trip(0).StopPath(3).Segment(1).Length()
	sm := NewSpatialMatcher(zap.NewNop(), testConfig())

	// Previous match was already close to the end of the last trip, so the
	// very end of the block is added as a candidate.
	previousTime := tday(8, 4, 0)
	previousMatch := NewSpatialMatch(previousTime, block, 0, 3, 1, 0, 55.6)

	report := testReport(106.806, 90, tday(8, 5, 0))
	matches := sm.SpatialMatchesFromPreviousMatch(report, previousTime,
		previousMatch, false)
	require.Len(t, matches, 2)

	endOfBlock := matches[len(matches)-1]
	assert.Equal(t, 3, endOfBlock.StopPathIndex())
	assert.Equal(t, 1, endOfBlock.SegmentIndex())
	assert.True(t, math.IsNaN(endOfBlock.DistanceToSegment()))
	assert.InDelta(t, segLen, endOfBlock.DistanceAlongSegment(), 0.01)
}

func TestProblemMatchDueToLackOfHeadingInfo(t *testing.T) {
	block := newTestBlock()
	sm := NewSpatialMatcher(zap.NewNop(), testConfig())

	match := NewSpatialMatch(tday(8, 1, 30), block, 0, 1, 1, 0, 55.6)

	withHeading := testReport(106.8015, 90, tday(8, 1, 30))
	assert.False(t, sm.ProblemMatchDueToLackOfHeadingInfo(match, withHeading,
		nil, StandardMatching))

	noHeading := testReport(106.8015, math.NaN(), tday(8, 1, 30))
	assert.True(t, sm.ProblemMatchDueToLackOfHeadingInfo(match, noHeading,
		nil, StandardMatching))

	// An earlier report behind the match shows forward progress, so the
	// missing heading no longer matters.
	behind := testReport(106.8005, math.NaN(), tday(8, 1, 0))
	assert.False(t, sm.ProblemMatchDueToLackOfHeadingInfo(match, noHeading,
		&behind, StandardMatching))

	// A previous report ahead of the match means the vehicle would be going
	// backwards, which cannot be right.
	ahead := testReport(106.8025, math.NaN(), tday(8, 1, 0))
	assert.True(t, sm.ProblemMatchDueToLackOfHeadingInfo(match, noHeading,
		&ahead, StandardMatching))

	atLayover := NewSpatialMatch(tday(8, 1, 30), block, 0, 0, 0, 0, 0)
	assert.False(t, sm.ProblemMatchDueToLackOfHeadingInfo(atLayover, noHeading,
		nil, StandardMatching))
}
