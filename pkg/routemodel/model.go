package routemodel

import (
	"github.com/lintang-b-s/transitx/pkg/geo"
)

// NoScheduleTime marks a stop with no schedule time attached.
const NoScheduleTime = -1

// Segment is one geometric sub-vector of a StopPath.
type Segment struct {
	start   geo.Coordinate
	end     geo.Coordinate
	heading float64
	length  float64
}

func NewSegment(start, end geo.Coordinate) Segment {
	return Segment{
		start:   start,
		end:     end,
		heading: geo.BearingTo(start.Lat, start.Lon, end.Lat, end.Lon),
		length:  geo.DistanceMeters(start, end),
	}
}

func (s Segment) Start() geo.Coordinate {
	return s.start
}

func (s Segment) End() geo.Coordinate {
	return s.end
}

func (s Segment) Heading() float64 {
	return s.heading
}

// Length returns the segment length in meters.
func (s Segment) Length() float64 {
	return s.length
}

// ScheduleTime holds seconds-into-day arrival/departure times for a stop.
// NoScheduleTime when a component is absent.
type ScheduleTime struct {
	ArrivalSecs   int
	DepartureSecs int
}

func (st ScheduleTime) HasTime() bool {
	return st.ArrivalSecs != NoScheduleTime || st.DepartureSecs != NoScheduleTime
}

// Time returns the departure time when set, otherwise the arrival time,
// otherwise NoScheduleTime. Departures dominate since a vehicle is measured
// against when it should leave a stop.
func (st ScheduleTime) Time() int {
	if st.DepartureSecs != NoScheduleTime {
		return st.DepartureSecs
	}
	return st.ArrivalSecs
}

// StopPath is the path segment ending at one stop, with the travel-time
// table learned or scheduled for it.
type StopPath struct {
	stopID         string
	stopName       string
	gtfsStopSeq    int
	segments       []Segment
	length         float64
	waitStop       bool
	layover        bool
	scheduleTime   ScheduleTime
	breakTimeSecs  int
	beforeStopDist float64
	afterStopDist  float64
	travelSegsMsec []int64
	stopTimeMsec   int64
	maxSegmentDist float64 // per stop path override, 0 means use default
}

type StopPathConfig struct {
	StopID         string
	StopName       string
	GtfsStopSeq    int
	Points         []geo.Coordinate
	WaitStop       bool
	Layover        bool
	ScheduleTime   ScheduleTime
	BreakTimeSecs  int
	BeforeStopDist float64
	AfterStopDist  float64
	TravelSegsMsec []int64
	StopTimeMsec   int64
	MaxSegmentDist float64
}

func NewStopPath(cfg StopPathConfig) *StopPath {
	segments := make([]Segment, 0, len(cfg.Points))
	length := 0.0
	if len(cfg.Points) >= 2 {
		segments = make([]Segment, 0, len(cfg.Points)-1)
		for i := 0; i+1 < len(cfg.Points); i++ {
			seg := NewSegment(cfg.Points[i], cfg.Points[i+1])
			segments = append(segments, seg)
			length += seg.Length()
		}
	} else if len(cfg.Points) == 1 {
		// Zero-length path, e.g. the dummy first path of a trip that starts
		// at a terminal. Still needs one segment for the cursor to stand on.
		segments = []Segment{NewSegment(cfg.Points[0], cfg.Points[0])}
	}

	travelSegs := cfg.TravelSegsMsec
	if len(travelSegs) == 0 {
		travelSegs = []int64{0}
	}

	return &StopPath{
		stopID:         cfg.StopID,
		stopName:       cfg.StopName,
		gtfsStopSeq:    cfg.GtfsStopSeq,
		segments:       segments,
		length:         length,
		waitStop:       cfg.WaitStop,
		layover:        cfg.Layover,
		scheduleTime:   cfg.ScheduleTime,
		breakTimeSecs:  cfg.BreakTimeSecs,
		beforeStopDist: cfg.BeforeStopDist,
		afterStopDist:  cfg.AfterStopDist,
		travelSegsMsec: travelSegs,
		stopTimeMsec:   cfg.StopTimeMsec,
		maxSegmentDist: cfg.MaxSegmentDist,
	}
}

func (sp *StopPath) StopID() string {
	return sp.stopID
}

func (sp *StopPath) StopName() string {
	return sp.stopName
}

func (sp *StopPath) GtfsStopSeq() int {
	return sp.gtfsStopSeq
}

func (sp *StopPath) NumSegments() int {
	return len(sp.segments)
}

func (sp *StopPath) Segment(i int) Segment {
	return sp.segments[i]
}

// Length returns the stop path length in meters.
func (sp *StopPath) Length() float64 {
	return sp.length
}

func (sp *StopPath) IsWaitStop() bool {
	return sp.waitStop
}

func (sp *StopPath) IsLayover() bool {
	return sp.layover
}

func (sp *StopPath) ScheduleTime() ScheduleTime {
	return sp.scheduleTime
}

func (sp *StopPath) BreakTimeSecs() int {
	return sp.breakTimeSecs
}

func (sp *StopPath) BeforeStopDistance() float64 {
	return sp.beforeStopDist
}

func (sp *StopPath) AfterStopDistance() float64 {
	return sp.afterStopDist
}

// MaxSegmentDistance is the per stop path override for how far a vehicle may
// be from the geometry and still match. Zero means use the global default.
func (sp *StopPath) MaxSegmentDistance() float64 {
	return sp.maxSegmentDist
}

// StopTimeMsec is the expected dwell at the stop at the end of this path.
func (sp *StopPath) StopTimeMsec() int64 {
	return sp.stopTimeMsec
}

// NumTravelSegments is the number of travel-time sub-segments for the path.
func (sp *StopPath) NumTravelSegments() int {
	return len(sp.travelSegsMsec)
}

func (sp *StopPath) TravelSegMsec(i int) int64 {
	return sp.travelSegsMsec[i]
}

// TravelSegmentLength is the geometric length each travel-time sub-segment
// covers.
func (sp *StopPath) TravelSegmentLength() float64 {
	return sp.length / float64(len(sp.travelSegsMsec))
}

// TravelTimeMsec is the expected time to traverse the whole path, dwell
// excluded.
func (sp *StopPath) TravelTimeMsec() int64 {
	var total int64
	for _, t := range sp.travelSegsMsec {
		total += t
	}
	return total
}

// EndLocation is the location of the stop at the end of the path.
func (sp *StopPath) EndLocation() geo.Coordinate {
	return sp.segments[len(sp.segments)-1].End()
}

// Trip is one scheduled run within a Block.
type Trip struct {
	id         string
	routeID    string
	headsign   string
	startSecs  int
	endSecs    int
	noSchedule bool
	stopPaths  []*StopPath
	length     float64
}

func NewTrip(id, routeID, headsign string, startSecs, endSecs int,
	noSchedule bool, stopPaths []*StopPath) *Trip {
	length := 0.0
	for _, sp := range stopPaths {
		length += sp.Length()
	}
	return &Trip{
		id:         id,
		routeID:    routeID,
		headsign:   headsign,
		startSecs:  startSecs,
		endSecs:    endSecs,
		noSchedule: noSchedule,
		stopPaths:  stopPaths,
		length:     length,
	}
}

func (t *Trip) ID() string {
	return t.id
}

func (t *Trip) RouteID() string {
	return t.routeID
}

func (t *Trip) Headsign() string {
	return t.headsign
}

// StartTimeSecs is the scheduled trip start in seconds into the day.
func (t *Trip) StartTimeSecs() int {
	return t.startSecs
}

func (t *Trip) EndTimeSecs() int {
	return t.endSecs
}

func (t *Trip) IsNoSchedule() bool {
	return t.noSchedule
}

func (t *Trip) NumStopPaths() int {
	return len(t.stopPaths)
}

func (t *Trip) StopPath(i int) *StopPath {
	return t.stopPaths[i]
}

func (t *Trip) Length() float64 {
	return t.length
}

// StartLocation is the first stop of the trip.
func (t *Trip) StartLocation() geo.Coordinate {
	return t.stopPaths[0].EndLocation()
}

// Block is a vehicle's full service-day assignment, ordered Trips.
type Block struct {
	id        string
	serviceID string
	exclusive bool
	trips     []*Trip
}

func NewBlock(id, serviceID string, exclusive bool, trips []*Trip) *Block {
	return &Block{
		id:        id,
		serviceID: serviceID,
		exclusive: exclusive,
		trips:     trips,
	}
}

func (b *Block) ID() string {
	return b.id
}

func (b *Block) ServiceID() string {
	return b.serviceID
}

// IsExclusive reports whether only one vehicle may hold this block at a time.
func (b *Block) IsExclusive() bool {
	return b.exclusive
}

func (b *Block) NumTrips() int {
	return len(b.trips)
}

func (b *Block) Trip(i int) *Trip {
	return b.trips[i]
}

func (b *Block) Trips() []*Trip {
	return b.trips
}

// IsNoSchedule reports whether this is a frequency-based assignment.
func (b *Block) IsNoSchedule() bool {
	return len(b.trips) > 0 && b.trips[0].IsNoSchedule()
}

func (b *Block) NumStopPaths(tripIndex int) int {
	return b.trips[tripIndex].NumStopPaths()
}

func (b *Block) NumSegments(tripIndex, stopPathIndex int) int {
	return b.trips[tripIndex].StopPath(stopPathIndex).NumSegments()
}

func (b *Block) StopPath(tripIndex, stopPathIndex int) *StopPath {
	return b.trips[tripIndex].StopPath(stopPathIndex)
}

func (b *Block) SegmentVector(tripIndex, stopPathIndex, segmentIndex int) Segment {
	return b.trips[tripIndex].StopPath(stopPathIndex).Segment(segmentIndex)
}

func (b *Block) IsLayover(tripIndex, stopPathIndex int) bool {
	return b.StopPath(tripIndex, stopPathIndex).IsLayover()
}

func (b *Block) IsWaitStop(tripIndex, stopPathIndex int) bool {
	return b.StopPath(tripIndex, stopPathIndex).IsWaitStop()
}

func (b *Block) ScheduleTime(tripIndex, stopPathIndex int) ScheduleTime {
	return b.StopPath(tripIndex, stopPathIndex).ScheduleTime()
}

// PathStopTimeMsec is the expected dwell at the stop ending the path.
func (b *Block) PathStopTimeMsec(tripIndex, stopPathIndex int) int64 {
	return b.StopPath(tripIndex, stopPathIndex).StopTimeMsec()
}

// StopPathTravelTimeMsec is the expected travel time over the path, dwell
// excluded.
func (b *Block) StopPathTravelTimeMsec(tripIndex, stopPathIndex int) int64 {
	return b.StopPath(tripIndex, stopPathIndex).TravelTimeMsec()
}

// StartTimeSecs is the scheduled start of the first trip.
func (b *Block) StartTimeSecs() int {
	if len(b.trips) == 0 {
		return NoScheduleTime
	}
	return b.trips[0].StartTimeSecs()
}

// EndTimeSecs is the scheduled end of the last trip.
func (b *Block) EndTimeSecs() int {
	if len(b.trips) == 0 {
		return NoScheduleTime
	}
	return b.trips[len(b.trips)-1].EndTimeSecs()
}

// RouteIDs returns the distinct routes served by the block, in trip order.
func (b *Block) RouteIDs() []string {
	seen := make(map[string]struct{}, 2)
	routes := make([]string, 0, 2)
	for _, t := range b.trips {
		if _, ok := seen[t.RouteID()]; ok {
			continue
		}
		seen[t.RouteID()] = struct{}{}
		routes = append(routes, t.RouteID())
	}
	return routes
}

// ServesRoute reports whether any trip of the block runs the route.
func (b *Block) ServesRoute(routeID string) bool {
	for _, t := range b.trips {
		if t.RouteID() == routeID {
			return true
		}
	}
	return false
}
