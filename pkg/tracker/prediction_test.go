package tracker

import (
	"testing"
	"time"

	"github.com/lintang-b-s/transitx/pkg/matcher"
	"github.com/lintang-b-s/transitx/pkg/routemodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestPredictionGenerator(clock Clock, cfg Config) *PredictionGenerator {
	matcherCfg := testMatcherConfig()
	return NewPredictionGenerator(zap.NewNop(), cfg, matcherCfg,
		matcher.NewTravelTimes(zap.NewNop(), matcherCfg), clock)
}

func predictableVehicle(block *routemodel.Block, cfg Config,
	match *matcher.TemporalMatch, at time.Time) *VehicleState {
	vs := NewVehicleState("bus-1", cfg)
	vs.StoreAvlReport(testReport(106.800, 90, at))
	vs.SetBlock(block, AvlFeedBlockAssignment, "B1", at)
	vs.SetMatch(match)
	return vs
}

func TestPredictionsWalkRemainingStops(t *testing.T) {
	block := newTestBlock()
	cfg := testConfig()
	avlTime := tday(8, 1, 0)
	clock := NewFixedClock(avlTime)
	g := newTestPredictionGenerator(clock, cfg)

	vs := predictableVehicle(block, cfg,
		testTemporalMatch(block, 0, 1, 0, 0, avlTime), avlTime)

	preds := g.Generate(vs)
	require.Len(t, preds, 3)

	// S1 one minute of travel out, then 10s dwell plus 60s travel per stop.
	assert.Equal(t, "S1", preds[0].StopID)
	assert.True(t, preds[0].IsArrival)
	assert.Equal(t, tday(8, 2, 0), preds[0].Time)

	assert.Equal(t, "S2", preds[1].StopID)
	assert.Equal(t, tday(8, 3, 10), preds[1].Time)

	assert.Equal(t, "S3", preds[2].StopID)
	assert.Equal(t, tday(8, 4, 20), preds[2].Time)

	for _, pred := range preds {
		assert.Equal(t, "T1", pred.TripID)
		assert.Equal(t, "R1", pred.RouteID)
		assert.False(t, pred.AffectedByWaitStop)
	}
}

func TestPredictionsWaitStopHoldsUntilScheduledDeparture(t *testing.T) {
	block := newTestBlock()
	cfg := testConfig()
	avlTime := tday(7, 58, 0)
	clock := NewFixedClock(avlTime)
	g := newTestPredictionGenerator(clock, cfg)

	// Sitting at the terminal two minutes before the 08:00 departure.
	vs := predictableVehicle(block, cfg,
		testTemporalMatch(block, 0, 0, 0, 0, avlTime), avlTime)

	preds := g.Generate(vs)
	require.Len(t, preds, 4)

	// The terminal prediction is the scheduled departure itself, and every
	// stop downstream of the wait stop is flagged as affected by it.
	assert.Equal(t, "S0", preds[0].StopID)
	assert.False(t, preds[0].IsArrival)
	assert.Equal(t, tday(8, 0, 0), preds[0].Time)
	assert.True(t, preds[0].AffectedByWaitStop)

	assert.Equal(t, "S1", preds[1].StopID)
	assert.Equal(t, tday(8, 1, 0), preds[1].Time)
	assert.True(t, preds[1].AffectedByWaitStop)

	assert.Equal(t, tday(8, 2, 10), preds[2].Time)
	assert.Equal(t, tday(8, 3, 20), preds[3].Time)
}

func TestPredictionsBoundedByHorizon(t *testing.T) {
	block := newTestBlock()
	cfg := testConfig()
	cfg.PredictionHorizon = 90 * time.Second
	avlTime := tday(8, 1, 0)
	clock := NewFixedClock(avlTime)
	g := newTestPredictionGenerator(clock, cfg)

	vs := predictableVehicle(block, cfg,
		testTemporalMatch(block, 0, 1, 0, 0, avlTime), avlTime)

	preds := g.Generate(vs)
	require.Len(t, preds, 1)
	assert.Equal(t, "S1", preds[0].StopID)
}
