package spatialindex

import (
	"math"

	"github.com/lintang-b-s/transitx/pkg/geo"
	"github.com/lintang-b-s/transitx/pkg/routemodel"
	"github.com/tidwall/rtree"
	"go.uber.org/zap"
)

// SegmentRef points back at one stop-path segment of a block.
type SegmentRef struct {
	blockID       string
	tripIndex     int
	stopPathIndex int
	segmentIndex  int
}

func (sr SegmentRef) BlockID() string {
	return sr.blockID
}

func (sr SegmentRef) TripIndex() int {
	return sr.tripIndex
}

func (sr SegmentRef) StopPathIndex() int {
	return sr.stopPathIndex
}

func (sr SegmentRef) SegmentIndex() int {
	return sr.segmentIndex
}

// Index is an R-tree over every stop-path segment of the route model. Route
// and auto assignment need "which blocks run near this fix" without scanning
// every block's full geometry.
type Index struct {
	tr *rtree.RTreeG[SegmentRef]
}

func NewIndex() *Index {
	var tr rtree.RTreeG[SegmentRef]
	return &Index{
		tr: &tr,
	}
}

// Build inserts every segment with a bounding box padded by
// boundingBoxRadius (in km).
func (ix *Index) Build(model *routemodel.Model, boundingBoxRadius float64, log *zap.Logger) {
	log.Info("Building R-tree spatial index...")

	inserted := 0
	for _, block := range model.Blocks() {
		for tripIndex, trip := range block.Trips() {
			for stopPathIndex := 0; stopPathIndex < trip.NumStopPaths(); stopPathIndex++ {
				stopPath := trip.StopPath(stopPathIndex)
				for segmentIndex := 0; segmentIndex < stopPath.NumSegments(); segmentIndex++ {
					seg := stopPath.Segment(segmentIndex)
					ix.insert(seg.Start(), seg.End(), boundingBoxRadius, SegmentRef{
						blockID:       block.ID(),
						tripIndex:     tripIndex,
						stopPathIndex: stopPathIndex,
						segmentIndex:  segmentIndex,
					})
					inserted++
				}
			}
		}
	}

	log.Info("R-tree spatial index built.", zap.Int("segments", inserted))
}

func (ix *Index) insert(from, to geo.Coordinate, boundingBoxRadius float64, ref SegmentRef) {
	lowerFromLat, lowerFromLon := geo.GetDestinationPoint(from.GetLat(), from.GetLon(), 225, boundingBoxRadius)
	upperFromLat, upperFromLon := geo.GetDestinationPoint(from.GetLat(), from.GetLon(), 45, boundingBoxRadius)

	lowerToLat, lowerToLon := geo.GetDestinationPoint(to.GetLat(), to.GetLon(), 225, boundingBoxRadius)
	upperToLat, upperToLon := geo.GetDestinationPoint(to.GetLat(), to.GetLon(), 45, boundingBoxRadius)

	minLat := math.Min(lowerFromLat, lowerToLat)
	minLon := math.Min(lowerFromLon, lowerToLon)
	maxLat := math.Max(upperFromLat, upperToLat)
	maxLon := math.Max(upperFromLon, upperToLon)

	ix.tr.Insert([2]float64{minLon, minLat}, [2]float64{maxLon, maxLat}, ref)
}

// SearchWithinRadius returns segments whose padded bounding box intersects
// the radius (in km) around the query point.
func (ix *Index) SearchWithinRadius(qLat, qLon, radius float64) []SegmentRef {
	lowerLat, lowerLon := geo.GetDestinationPoint(qLat, qLon, 225, radius)
	upperLat, upperLon := geo.GetDestinationPoint(qLat, qLon, 45, radius)

	results := make([]SegmentRef, 0, 10)
	ix.tr.Search([2]float64{lowerLon, lowerLat}, [2]float64{upperLon, upperLat},
		func(min, max [2]float64, data SegmentRef) bool {
			results = append(results, data)
			return true
		})
	return results
}

// BlockIDsNear returns the distinct blocks with geometry within radius (in
// km) of the location.
func (ix *Index) BlockIDsNear(loc geo.Coordinate, radius float64) map[string]struct{} {
	refs := ix.SearchWithinRadius(loc.GetLat(), loc.GetLon(), radius)
	blockIDs := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		blockIDs[ref.blockID] = struct{}{}
	}
	return blockIDs
}
