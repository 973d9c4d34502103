package datastructure

import "time"

// ArrivalDeparture is one derived stop event. Arrivals and departures share
// the shape, distinguished by IsArrival.
type ArrivalDeparture struct {
	VehicleID     string    `json:"vehicleId"`
	BlockID       string    `json:"blockId"`
	TripID        string    `json:"tripId"`
	TripIndex     int       `json:"tripIndex"`
	StopPathIndex int       `json:"stopPathIndex"`
	StopID        string    `json:"stopId"`
	IsArrival     bool      `json:"isArrival"`
	Time          time.Time `json:"time"`
	AvlTime       time.Time `json:"avlTime"`
	DwellMsec     int64     `json:"dwellMsec,omitempty"`
}

// Prediction is one forecast stop time for a vehicle.
type Prediction struct {
	VehicleID          string    `json:"vehicleId"`
	StopID             string    `json:"stopId"`
	GtfsStopSequence   int       `json:"gtfsStopSequence"`
	TripID             string    `json:"tripId"`
	RouteID            string    `json:"routeId"`
	Time               time.Time `json:"time"`
	IsArrival          bool      `json:"isArrival"`
	AffectedByWaitStop bool      `json:"affectedByWaitStop"`
	Uncertain          bool      `json:"uncertain,omitempty"`
	SchedBased         bool      `json:"schedBased"`
	AvlTime            time.Time `json:"avlTime"`
}

// VehicleSnapshot is the externally visible live state of one vehicle.
type VehicleSnapshot struct {
	VehicleID          string    `json:"vehicleId"`
	BlockID            string    `json:"blockId,omitempty"`
	TripID             string    `json:"tripId,omitempty"`
	RouteID            string    `json:"routeId,omitempty"`
	Predictable        bool      `json:"predictable"`
	Delayed            bool      `json:"delayed"`
	SchedBased         bool      `json:"schedBased"`
	Lat                float64   `json:"lat"`
	Lon                float64   `json:"lon"`
	Heading            float64   `json:"heading,omitempty"`
	AvlTime            time.Time `json:"avlTime"`
	TripIndex          int       `json:"tripIndex,omitempty"`
	StopPathIndex      int       `json:"stopPathIndex,omitempty"`
	ScheduleAdhMsec    *int64    `json:"scheduleAdhMsec,omitempty"`
	EffectiveSchedMsec *int64    `json:"effectiveSchedMsec,omitempty"`
}

type EventReason string

const (
	EventUnpredictable       EventReason = "UNPREDICTABLE"
	EventNoProgress          EventReason = "NO_PROGRESS"
	EventDelayed             EventReason = "DELAYED"
	EventTimeout             EventReason = "TIMEOUT"
	EventEndOfBlock          EventReason = "END_OF_BLOCK"
	EventSchedAdhViolation   EventReason = "SCHED_ADH_VIOLATION"
	EventAssignmentGrabbed   EventReason = "ASSIGNMENT_GRABBED"
	EventEarlyDeparture      EventReason = "EARLY_DEPARTURE"
	EventLateDeparture       EventReason = "LATE_DEPARTURE"
	EventPredictable         EventReason = "PREDICTABLE"
	EventNoMatch             EventReason = "NO_MATCH"
	EventAssignmentProblem   EventReason = "ASSIGNMENT_PROBLEM"
	EventLeftTerminalOnRoute EventReason = "LEFT_TERMINAL"
)

// VehicleEvent is a discrete notable occurrence for audit/diagnostics.
type VehicleEvent struct {
	VehicleID     string      `json:"vehicleId"`
	Reason        EventReason `json:"reason"`
	Description   string      `json:"description"`
	Time          time.Time   `json:"time"`
	AvlTime       time.Time   `json:"avlTime"`
	BlockID       string      `json:"blockId,omitempty"`
	TripIndex     int         `json:"tripIndex,omitempty"`
	StopPathIndex int         `json:"stopPathIndex,omitempty"`
	Lat           float64     `json:"lat"`
	Lon           float64     `json:"lon"`
	Predictable   bool        `json:"predictable"`
}
