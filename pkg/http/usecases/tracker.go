package usecases

import (
	"github.com/lintang-b-s/transitx/pkg/datastructure"
	"github.com/lintang-b-s/transitx/pkg/geo"
	"github.com/lintang-b-s/transitx/pkg/routemodel"
	"github.com/lintang-b-s/transitx/pkg/tracker"
	"github.com/lintang-b-s/transitx/pkg/util"
	"go.uber.org/zap"
)

// TrackerService is the read side of the pipeline exposed to the API: it
// answers from the snapshot cache and only touches per-vehicle state for
// matched-path geometry.
type TrackerService struct {
	log       *zap.Logger
	store     SnapshotStore
	registry  VehicleRegistry
	processor ReportProcessor
}

func NewTrackerService(log *zap.Logger, store SnapshotStore,
	registry VehicleRegistry, processor ReportProcessor) *TrackerService {
	return &TrackerService{
		log:       log,
		store:     store,
		registry:  registry,
		processor: processor,
	}
}

func (ts *TrackerService) Vehicles() []datastructure.VehicleSnapshot {
	return ts.store.All()
}

func (ts *TrackerService) Vehicle(vehicleID string) (datastructure.VehicleSnapshot, string, error) {
	snapshot, ok := ts.store.Get(vehicleID)
	if !ok {
		return datastructure.VehicleSnapshot{}, "", util.WrapErrorf(nil,
			util.ErrVehicleNotFound, "no snapshot for vehicle %q", vehicleID)
	}

	tripPolyline := ""
	ts.registry.WithVehicle(vehicleID, func(vs *tracker.VehicleState) {
		match := vs.Match()
		if match == nil {
			return
		}
		tripPolyline = geo.PolylineFromCoords(tripCoords(match.Trip()))
	})
	return snapshot, tripPolyline, nil
}

func tripCoords(trip *routemodel.Trip) []geo.Coordinate {
	coords := make([]geo.Coordinate, 0, trip.NumStopPaths()*4)
	for i := 0; i < trip.NumStopPaths(); i++ {
		stopPath := trip.StopPath(i)
		for j := 0; j < stopPath.NumSegments(); j++ {
			coords = append(coords, stopPath.Segment(j).Start())
		}
		if n := stopPath.NumSegments(); n > 0 {
			coords = append(coords, stopPath.Segment(n-1).End())
		}
	}
	return coords
}

func (ts *TrackerService) VehiclesForRoute(routeID string) []datastructure.VehicleSnapshot {
	all := ts.store.All()
	out := make([]datastructure.VehicleSnapshot, 0, len(all))
	for _, snapshot := range all {
		if snapshot.RouteID == routeID {
			out = append(out, snapshot)
		}
	}
	return out
}

func (ts *TrackerService) VehiclesForBlock(blockID string) []datastructure.VehicleSnapshot {
	return ts.store.ForBlock(blockID)
}

func (ts *TrackerService) RecentEvents() []datastructure.VehicleEvent {
	return ts.store.RecentEvents()
}

func (ts *TrackerService) InjectAvlReport(report datastructure.AvlReport) error {
	return ts.processor.ProcessReport(report)
}
