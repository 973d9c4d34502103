package usecases

import (
	"github.com/lintang-b-s/transitx/pkg/datastructure"
	"github.com/lintang-b-s/transitx/pkg/tracker"
)

type SnapshotStore interface {
	All() []datastructure.VehicleSnapshot
	Get(vehicleID string) (datastructure.VehicleSnapshot, bool)
	ForBlock(blockID string) []datastructure.VehicleSnapshot
	RecentEvents() []datastructure.VehicleEvent
}

type VehicleRegistry interface {
	WithVehicle(vehicleID string, fn func(*tracker.VehicleState))
}

type ReportProcessor interface {
	ProcessReport(report datastructure.AvlReport) error
}
