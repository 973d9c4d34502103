package controllers

import (
	"time"

	"github.com/lintang-b-s/transitx/pkg/datastructure"
)

type avlReportRequest struct {
	VehicleID      string  `json:"vehicleId" validate:"required"`
	Time           int64   `json:"time" validate:"required"`
	Lat            float64 `json:"lat" validate:"min=-90,max=90"`
	Lon            float64 `json:"lon" validate:"min=-180,max=180"`
	Heading        float64 `json:"heading"`
	Speed          float64 `json:"speed"`
	AssignmentID   string  `json:"assignmentId"`
	AssignmentType string  `json:"assignmentType" validate:"omitempty,oneof=BLOCK_ID ROUTE_ID"`
}

func (r avlReportRequest) ToAvlReport() datastructure.AvlReport {
	report := datastructure.NewAvlReport(r.VehicleID, time.UnixMilli(r.Time), r.Lat, r.Lon, r.Heading)
	report.Speed = r.Speed
	switch r.AssignmentType {
	case "BLOCK_ID":
		report.AssignmentID = r.AssignmentID
		report.AssignmentType = datastructure.AssignmentBlockID
	case "ROUTE_ID":
		report.AssignmentID = r.AssignmentID
		report.AssignmentType = datastructure.AssignmentRouteID
	}
	return report
}

type vehicleDetailResponse struct {
	datastructure.VehicleSnapshot
	TripPolyline string `json:"tripPolyline,omitempty"`
}

func NewVehicleDetailResponse(snapshot datastructure.VehicleSnapshot,
	tripPolyline string) vehicleDetailResponse {
	return vehicleDetailResponse{
		VehicleSnapshot: snapshot,
		TripPolyline:    tripPolyline,
	}
}

// liveVehiclesRequest is the websocket subscription request, all filters
// optional.
type liveVehiclesRequest struct {
	RouteID string `json:"routeId"`
	BlockID string `json:"blockId"`
}
