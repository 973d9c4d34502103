package controllers

import (
	"github.com/lintang-b-s/transitx/pkg/datastructure"
)

type TrackerService interface {
	Vehicles() []datastructure.VehicleSnapshot
	Vehicle(vehicleID string) (datastructure.VehicleSnapshot, string, error)
	VehiclesForRoute(routeID string) []datastructure.VehicleSnapshot
	VehiclesForBlock(blockID string) []datastructure.VehicleSnapshot
	RecentEvents() []datastructure.VehicleEvent
	InjectAvlReport(report datastructure.AvlReport) error
}
