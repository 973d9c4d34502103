package datastructure

import (
	"math"
	"time"

	"github.com/lintang-b-s/transitx/pkg/geo"
)

type AssignmentType uint8

const (
	AssignmentNone AssignmentType = iota
	AssignmentBlockID
	AssignmentRouteID
	// AssignmentPrevious marks a report whose assignment was rewritten to
	// the vehicle's previous one during the bad-report grace period.
	AssignmentPrevious
)

func (a AssignmentType) String() string {
	switch a {
	case AssignmentBlockID:
		return "BLOCK_ID"
	case AssignmentRouteID:
		return "ROUTE_ID"
	case AssignmentPrevious:
		return "PREVIOUS"
	default:
		return "NONE"
	}
}

// AvlReport is a single raw location fix from a vehicle. Heading and Speed
// are NaN when the feed did not supply them.
type AvlReport struct {
	VehicleID      string         `json:"vehicleId" validate:"required"`
	Time           time.Time      `json:"time" validate:"required"`
	Lat            float64        `json:"lat" validate:"gte=-90,lte=90"`
	Lon            float64        `json:"lon" validate:"gte=-180,lte=180"`
	Heading        float64        `json:"heading,omitempty"`
	Speed          float64        `json:"speed,omitempty"`
	AssignmentID   string         `json:"assignmentId,omitempty"`
	AssignmentType AssignmentType `json:"assignmentType,omitempty"`
}

func NewAvlReport(vehicleID string, t time.Time, lat, lon, heading float64) AvlReport {
	return AvlReport{
		VehicleID: vehicleID,
		Time:      t,
		Lat:       lat,
		Lon:       lon,
		Heading:   heading,
		Speed:     math.NaN(),
	}
}

func (r AvlReport) Location() geo.Coordinate {
	return geo.NewCoordinate(r.Lat, r.Lon)
}

func (r AvlReport) HasHeading() bool {
	return !math.IsNaN(r.Heading)
}

// HasAssignment returns whether the report carries a usable assignment hint.
func (r AvlReport) HasAssignment() bool {
	return r.AssignmentType != AssignmentNone && r.AssignmentID != ""
}

// WithAssignment returns a copy of the report with the assignment rewritten.
func (r AvlReport) WithAssignment(assignmentID string, assignmentType AssignmentType) AvlReport {
	r.AssignmentID = assignmentID
	r.AssignmentType = assignmentType
	return r
}

// SecondsIntoDay returns the report time as seconds since local midnight.
func (r AvlReport) SecondsIntoDay() int {
	h, m, s := r.Time.Clock()
	return h*3600 + m*60 + s
}
