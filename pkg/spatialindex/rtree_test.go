package spatialindex

import (
	"testing"

	"github.com/lintang-b-s/transitx/pkg/geo"
	"github.com/lintang-b-s/transitx/pkg/routemodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testBlock(id string, baseLon float64) *routemodel.Block {
	points := []geo.Coordinate{
		geo.NewCoordinate(0, baseLon),
		geo.NewCoordinate(0, baseLon+0.001),
		geo.NewCoordinate(0, baseLon+0.002),
	}
	sp := routemodel.NewStopPath(routemodel.StopPathConfig{
		StopID: id + "-stop",
		Points: points,
		ScheduleTime: routemodel.ScheduleTime{
			ArrivalSecs:   routemodel.NoScheduleTime,
			DepartureSecs: routemodel.NoScheduleTime,
		},
	})
	trip := routemodel.NewTrip(id+"-trip", "R1", "", 8*3600, 9*3600, false,
		[]*routemodel.StopPath{sp})
	return routemodel.NewBlock(id, "weekday", true, []*routemodel.Trip{trip})
}

func TestIndexBlockIDsNear(t *testing.T) {
	near := testBlock("near", 106.800)
	// roughly 11km further east
	far := testBlock("far", 106.900)
	model := routemodel.NewModel("rev-1", []*routemodel.Block{near, far})

	ix := NewIndex()
	ix.Build(model, 0.05, zap.NewNop())

	blockIDs := ix.BlockIDsNear(geo.NewCoordinate(0, 106.8005), 0.5)
	require.Len(t, blockIDs, 1)
	_, ok := blockIDs["near"]
	assert.True(t, ok)

	blockIDs = ix.BlockIDsNear(geo.NewCoordinate(0, 106.9015), 0.5)
	require.Len(t, blockIDs, 1)
	_, ok = blockIDs["far"]
	assert.True(t, ok)

	// nothing within half a kilometer of a point between the two routes
	assert.Empty(t, ix.BlockIDsNear(geo.NewCoordinate(0, 106.850), 0.5))
}

func TestIndexSearchWithinRadiusReturnsSegmentRefs(t *testing.T) {
	block := testBlock("near", 106.800)
	model := routemodel.NewModel("rev-1", []*routemodel.Block{block})

	ix := NewIndex()
	ix.Build(model, 0.05, zap.NewNop())

	refs := ix.SearchWithinRadius(0, 106.800, 0.1)
	require.NotEmpty(t, refs)
	for _, ref := range refs {
		assert.Equal(t, "near", ref.BlockID())
		assert.Equal(t, 0, ref.TripIndex())
		assert.Equal(t, 0, ref.StopPathIndex())
	}
}
