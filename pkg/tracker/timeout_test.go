package tracker

import (
	"testing"

	"github.com/lintang-b-s/transitx/pkg/datastructure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sweeperFixture struct {
	sweeper  *TimeoutSweeper
	registry *Registry
	cache    *SnapshotCache
	clock    *FixedClock
	out      *captureOutput
}

func newSweeperFixture() *sweeperFixture {
	cfg := testConfig()
	registry := NewRegistry(cfg)
	cache := NewSnapshotCache(cfg.EventHistoryMaxSize)
	clock := NewFixedClock(tday(8, 0, 0))
	out := &captureOutput{}
	return &sweeperFixture{
		sweeper:  NewTimeoutSweeper(zap.NewNop(), cfg, registry, cache, clock, out, nil),
		registry: registry,
		cache:    cache,
		clock:    clock,
		out:      out,
	}
}

func (f *sweeperFixture) addPredictableVehicle(vehicleID string, stopPathIndex,
	segmentIndex int, alongSegment float64, reportTime [3]int) {
	block := newTestBlock()
	at := tday(reportTime[0], reportTime[1], reportTime[2])
	f.registry.WithVehicle(vehicleID, func(vs *VehicleState) {
		report := datastructure.NewAvlReport(vehicleID, at, 0, 106.8015, 90)
		vs.StoreAvlReport(report)
		vs.SetBlock(block, AvlFeedBlockAssignment, "B1", at)
		vs.SetMatch(testTemporalMatch(block, 0, stopPathIndex, segmentIndex,
			alongSegment, at))
	})
	f.cache.Update(datastructure.VehicleSnapshot{
		VehicleID: vehicleID, BlockID: "B1", Predictable: true,
	})
}

func (f *sweeperFixture) isPredictable(vehicleID string) bool {
	var predictable bool
	f.registry.WithVehicle(vehicleID, func(vs *VehicleState) {
		predictable = vs.IsPredictable()
	})
	return predictable
}

func TestSweepTimesOutQuietVehicle(t *testing.T) {
	f := newSweeperFixture()
	f.addPredictableVehicle("bus-1", 1, 1, 50, [3]int{8, 0, 0})

	// Quiet for less than the allowable window: untouched.
	f.clock.Set(tday(8, 5, 30))
	f.sweeper.Sweep()
	assert.True(t, f.isPredictable("bus-1"))
	assert.Empty(t, f.out.events)

	// Past the window the vehicle is made unpredictable.
	f.clock.Set(tday(8, 6, 30))
	f.sweeper.Sweep()
	assert.False(t, f.isPredictable("bus-1"))

	require.Len(t, f.out.events, 1)
	assert.Equal(t, datastructure.EventTimeout, f.out.events[0].Reason)

	snapshot, ok := f.cache.Get("bus-1")
	require.True(t, ok)
	assert.False(t, snapshot.Predictable)
}

func TestSweepAllowsSilenceAtWaitStop(t *testing.T) {
	f := newSweeperFixture()

	// At the terminal wait stop with a 08:00 scheduled departure, last
	// report at 07:54.
	f.addPredictableVehicle("bus-1", 0, 0, 0, [3]int{7, 54, 0})

	// Quiet well beyond the normal window, but the scheduled departure plus
	// the depart allowance has not passed yet.
	f.clock.Set(tday(8, 1, 0))
	f.sweeper.Sweep()
	assert.True(t, f.isPredictable("bus-1"))

	f.clock.Set(tday(8, 7, 0))
	f.sweeper.Sweep()
	assert.False(t, f.isPredictable("bus-1"))
	require.Len(t, f.out.events, 1)
	assert.Equal(t, datastructure.EventTimeout, f.out.events[0].Reason)
}

func TestSweepIgnoresUnpredictableVehicles(t *testing.T) {
	f := newSweeperFixture()
	f.registry.WithVehicle("bus-1", func(vs *VehicleState) {
		vs.StoreAvlReport(datastructure.NewAvlReport("bus-1", tday(7, 0, 0), 0, 106.8, 90))
	})

	f.clock.Set(tday(9, 0, 0))
	f.sweeper.Sweep()
	assert.Empty(t, f.out.events)
}
