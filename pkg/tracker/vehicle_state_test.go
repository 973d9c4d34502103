package tracker

import (
	"testing"
	"time"

	"github.com/lintang-b-s/transitx/pkg/datastructure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVehicleStateAvlHistory(t *testing.T) {
	cfg := testConfig()
	cfg.AvlHistoryMaxSize = 3
	vs := NewVehicleState("bus-1", cfg)

	assert.Nil(t, vs.AvlReport())
	assert.Nil(t, vs.PreviousAvlReport())

	for i := 0; i < 5; i++ {
		vs.StoreAvlReport(testReport(106.800+float64(i)*0.001, 90, tday(8, i, 0)))
	}

	require.NotNil(t, vs.AvlReport())
	assert.Equal(t, tday(8, 4, 0), vs.AvlReport().Time)
	assert.Equal(t, tday(8, 3, 0), vs.PreviousAvlReport().Time)

	// Bounded, newest first.
	assert.Nil(t, vs.PreviousAvlReportByMinAge(5*time.Minute))
	old := vs.PreviousAvlReportByMinAge(2 * time.Minute)
	require.NotNil(t, old)
	assert.Equal(t, tday(8, 2, 0), old.Time)
}

func TestVehicleStatePreviousAvlReportByMinDistance(t *testing.T) {
	vs := NewVehicleState("bus-1", testConfig())
	vs.StoreAvlReport(testReport(106.800, 90, tday(8, 0, 0)))
	vs.StoreAvlReport(testReport(106.8001, 90, tday(8, 1, 0)))
	vs.StoreAvlReport(testReport(106.8002, 90, tday(8, 2, 0)))

	// ~11m steps, so the 100m threshold skips to nothing but 20m finds the
	// oldest report.
	assert.Nil(t, vs.PreviousAvlReportByMinDistance(100))
	got := vs.PreviousAvlReportByMinDistance(20)
	require.NotNil(t, got)
	assert.Equal(t, tday(8, 0, 0), got.Time)
}

func TestVehicleStateMatchLifecycle(t *testing.T) {
	block := newTestBlock()
	vs := NewVehicleState("bus-1", testConfig())

	vs.SetBlock(block, AvlFeedBlockAssignment, "B1", tday(8, 0, 0))
	assert.True(t, vs.IsPredictable())
	assert.Equal(t, "B1", vs.AssignmentID())

	match := testTemporalMatch(block, 0, 1, 0, 0, tday(8, 1, 0))
	vs.SetMatch(match)
	assert.True(t, vs.LastMatchIsValid())
	assert.Same(t, match, vs.Match())
	assert.Nil(t, vs.PreviousMatch())

	later := testTemporalMatch(block, 0, 1, 1, 50, tday(8, 2, 0))
	vs.SetMatch(later)
	assert.Same(t, later, vs.Match())
	assert.Same(t, match, vs.PreviousMatch())

	// A failed match is recorded as a nil entry and makes the vehicle
	// unpredictable.
	vs.SetArrivalToStore(&datastructure.ArrivalDeparture{StopID: "S1"})
	vs.SetMatch(nil)
	assert.False(t, vs.IsPredictable())
	assert.False(t, vs.LastMatchIsValid())
	assert.Nil(t, vs.ArrivalToStore())
}

func TestVehicleStateBadMatchLimit(t *testing.T) {
	cfg := testConfig()
	cfg.AllowableBadMatches = 2
	vs := NewVehicleState("bus-1", cfg)

	vs.IncrementNumberOfBadMatches()
	vs.IncrementNumberOfBadMatches()
	assert.False(t, vs.OverLimitOfBadMatches())
	vs.IncrementNumberOfBadMatches()
	assert.True(t, vs.OverLimitOfBadMatches())

	// Any successful match resets the counter.
	vs.SetMatch(testTemporalMatch(newTestBlock(), 0, 1, 0, 0, tday(8, 1, 0)))
	assert.Zero(t, vs.NumberOfBadMatches())
}

func TestVehicleStatePreviousMatchByMinAgeStopsAtGap(t *testing.T) {
	block := newTestBlock()
	vs := NewVehicleState("bus-1", testConfig())

	vs.SetMatch(testTemporalMatch(block, 0, 1, 0, 0, tday(8, 0, 0)))
	vs.SetMatch(nil)
	vs.SetMatch(testTemporalMatch(block, 0, 1, 1, 50, tday(8, 10, 0)))
	vs.StoreAvlReport(testReport(106.8015, 90, tday(8, 10, 0)))

	// The old enough match exists, but the nil entry between means the
	// vehicle was not continuously matched, so the walk stops.
	assert.Nil(t, vs.PreviousMatchByMinAge(5*time.Minute))
}

func TestVehicleStateHasNewAssignment(t *testing.T) {
	block := newTestBlock()
	vs := NewVehicleState("bus-1", testConfig())
	vs.SetBlock(block, AvlFeedBlockAssignment, "B1", tday(8, 0, 0))

	noHint := testReport(106.800, 90, tday(8, 1, 0))
	assert.False(t, vs.HasNewAssignment(noHint, nil))

	sameBlock := noHint.WithAssignment("B1", datastructure.AssignmentBlockID)
	assert.False(t, vs.HasNewAssignment(sameBlock, nil))

	otherBlock := noHint.WithAssignment("B2", datastructure.AssignmentBlockID)
	assert.True(t, vs.HasNewAssignment(otherBlock, nil))

	servedRoute := noHint.WithAssignment("R1", datastructure.AssignmentRouteID)
	assert.False(t, vs.HasNewAssignment(servedRoute, nil))

	otherRoute := noHint.WithAssignment("R9", datastructure.AssignmentRouteID)
	assert.True(t, vs.HasNewAssignment(otherRoute, nil))
}

func TestVehicleStatePreviousAssignmentProblematic(t *testing.T) {
	block := newTestBlock()
	vs := NewVehicleState("bus-1", testConfig())
	vs.SetBlock(block, AvlFeedBlockAssignment, "B1", tday(8, 0, 0))
	vs.UnsetBlock(AssignmentGrabbed, tday(8, 5, 0))

	// Same stale hint shortly after the grab repeats the problem.
	stale := testReport(106.800, 90, tday(8, 6, 0)).
		WithAssignment("B1", datastructure.AssignmentBlockID)
	assert.True(t, vs.PreviousAssignmentProblematic(stale, nil))

	// A different assignment is fine.
	fresh := stale.WithAssignment("B2", datastructure.AssignmentBlockID)
	assert.False(t, vs.PreviousAssignmentProblematic(fresh, nil))

	// So is the stale one once enough time has passed.
	muchLater := testReport(106.800, 90, tday(11, 0, 0)).
		WithAssignment("B1", datastructure.AssignmentBlockID)
	assert.False(t, vs.PreviousAssignmentProblematic(muchLater, nil))
}

func TestVehicleNewlyAssignedToSameBlock(t *testing.T) {
	block := newTestBlock()
	vs := NewVehicleState("bus-1", testConfig())

	vs.SetBlock(block, AvlFeedBlockAssignment, "B1", tday(8, 0, 0))
	vs.UnsetBlock(AssignmentTerminated, tday(8, 5, 0))
	vs.SetBlock(block, AvlFeedBlockAssignment, "B1", tday(8, 10, 0))
	vs.SetMatch(testTemporalMatch(block, 0, 1, 0, 0, tday(8, 10, 0)))

	assert.True(t, vs.VehicleNewlyAssignedToSameBlock(tday(8, 10, 0)))
	assert.False(t, vs.VehicleNewlyAssignedToSameBlock(tday(9, 0, 0)))
}
