package tracker

import (
	"time"

	"github.com/lintang-b-s/transitx/pkg/datastructure"
	"github.com/lintang-b-s/transitx/pkg/geo"
	"github.com/lintang-b-s/transitx/pkg/matcher"
	"github.com/lintang-b-s/transitx/pkg/routemodel"
)

// BlockAssignmentMethod records how a vehicle came to hold, or lose, its
// block assignment.
type BlockAssignmentMethod uint8

const (
	AssignmentMethodNone BlockAssignmentMethod = iota
	AvlFeedBlockAssignment
	AvlFeedRouteAssignment
	AutoAssigner
	AssignmentTerminated
	AssignmentGrabbed
	CouldNotMatch
	SchedBasedAssignment
)

func (m BlockAssignmentMethod) String() string {
	switch m {
	case AvlFeedBlockAssignment:
		return "AVL_FEED_BLOCK_ASSIGNMENT"
	case AvlFeedRouteAssignment:
		return "AVL_FEED_ROUTE_ASSIGNMENT"
	case AutoAssigner:
		return "AUTO_ASSIGNER"
	case AssignmentTerminated:
		return "ASSIGNMENT_TERMINATED"
	case AssignmentGrabbed:
		return "ASSIGNMENT_GRABBED"
	case CouldNotMatch:
		return "COULD_NOT_MATCH"
	case SchedBasedAssignment:
		return "SCHED_BASED"
	default:
		return "NONE"
	}
}

// VehicleState is the mutable per-vehicle record. It is only ever touched
// while holding the vehicle's registry lock. Histories keep the newest
// entry at index 0 and are bounded so a long-running process cannot grow
// without limit.
type VehicleState struct {
	vehicleID string
	cfg       Config

	avlHistory   []datastructure.AvlReport
	matchHistory []*matcher.TemporalMatch

	block            *routemodel.Block
	assignmentID     string
	assignmentMethod BlockAssignmentMethod
	assignmentTime   time.Time
	predictable      bool
	schedBased       bool

	numberOfBadMatches   int
	badAssignmentsInARow int
	delayed              bool

	realTimeSchedAdh   *datastructure.TemporalDifference
	effectiveSchedDiff *datastructure.TemporalDifference

	// carried between reports by the arrival/departure generator
	arrivalToStore           *datastructure.ArrivalDeparture
	lastArrivalTime          time.Time
	lastArrivalStopPathIndex int
	lastDepartureTime        time.Time

	previousBlockBeforeUnassigned *routemodel.Block
	unassignedTime                time.Time
}

func NewVehicleState(vehicleID string, cfg Config) *VehicleState {
	return &VehicleState{
		vehicleID:                vehicleID,
		cfg:                      cfg,
		lastArrivalStopPathIndex: -1,
	}
}

func (vs *VehicleState) VehicleID() string { return vs.vehicleID }

func (vs *VehicleState) Block() *routemodel.Block { return vs.block }

func (vs *VehicleState) AssignmentID() string { return vs.assignmentID }

func (vs *VehicleState) AssignmentMethod() BlockAssignmentMethod { return vs.assignmentMethod }

func (vs *VehicleState) IsPredictable() bool { return vs.predictable }

func (vs *VehicleState) IsSchedBased() bool { return vs.schedBased }

func (vs *VehicleState) SetSchedBased(schedBased bool) { vs.schedBased = schedBased }

func (vs *VehicleState) IsDelayed() bool { return vs.delayed }

func (vs *VehicleState) SetDelayed(delayed bool) { vs.delayed = delayed }

func (vs *VehicleState) RealTimeSchedAdh() *datastructure.TemporalDifference {
	return vs.realTimeSchedAdh
}

func (vs *VehicleState) SetRealTimeSchedAdh(diff *datastructure.TemporalDifference) {
	vs.realTimeSchedAdh = diff
}

func (vs *VehicleState) EffectiveSchedDiff() *datastructure.TemporalDifference {
	return vs.effectiveSchedDiff
}

func (vs *VehicleState) SetEffectiveSchedDiff(diff *datastructure.TemporalDifference) {
	vs.effectiveSchedDiff = diff
}

// StoreAvlReport records the raw report into the bounded history. Done for
// every report regardless of whether a match results.
func (vs *VehicleState) StoreAvlReport(report datastructure.AvlReport) {
	vs.avlHistory = append([]datastructure.AvlReport{report}, vs.avlHistory...)
	if len(vs.avlHistory) > vs.cfg.AvlHistoryMaxSize {
		vs.avlHistory = vs.avlHistory[:vs.cfg.AvlHistoryMaxSize]
	}
}

// AvlReport returns the most recent report, or nil if none stored yet.
func (vs *VehicleState) AvlReport() *datastructure.AvlReport {
	if len(vs.avlHistory) == 0 {
		return nil
	}
	return &vs.avlHistory[0]
}

// PreviousAvlReport returns the report before the current one.
func (vs *VehicleState) PreviousAvlReport() *datastructure.AvlReport {
	if len(vs.avlHistory) < 2 {
		return nil
	}
	return &vs.avlHistory[1]
}

// PreviousAvlReportByMinDistance returns the most recent previous report at
// least minDistance meters from the current one, ignoring reports older
// than the history staleness cutoff.
func (vs *VehicleState) PreviousAvlReportByMinDistance(minDistance float64) *datastructure.AvlReport {
	current := vs.AvlReport()
	if current == nil {
		return nil
	}
	cutoff := current.Time.Add(-vs.cfg.AvlHistoryMaxAge)
	for i := 1; i < len(vs.avlHistory); i++ {
		report := &vs.avlHistory[i]
		if report.Time.Before(cutoff) {
			return nil
		}
		if geo.DistanceMeters(current.Location(), report.Location()) >= minDistance {
			return report
		}
	}
	return nil
}

// PreviousAvlReportByMinAge returns the most recent previous report at least
// minAge older than the current one.
func (vs *VehicleState) PreviousAvlReportByMinAge(minAge time.Duration) *datastructure.AvlReport {
	current := vs.AvlReport()
	if current == nil {
		return nil
	}
	for i := 1; i < len(vs.avlHistory); i++ {
		report := &vs.avlHistory[i]
		if current.Time.Sub(report.Time) >= minAge {
			return report
		}
	}
	return nil
}

// PreviousAvlReportFromSuccessfulMatch returns the report that produced the
// previous valid match, skipping reports that failed to match since.
func (vs *VehicleState) PreviousAvlReportFromSuccessfulMatch() *datastructure.AvlReport {
	idx := 1 + vs.numberOfBadMatches
	if idx >= len(vs.avlHistory) {
		return nil
	}
	return &vs.avlHistory[idx]
}

// SetMatch records the match for the current report. A nil match makes the
// vehicle unpredictable and clears the pending arrival so stale times are
// not flushed against a future assignment.
func (vs *VehicleState) SetMatch(match *matcher.TemporalMatch) {
	vs.matchHistory = append([]*matcher.TemporalMatch{match}, vs.matchHistory...)
	if len(vs.matchHistory) > vs.cfg.MatchHistoryMaxSize {
		vs.matchHistory = vs.matchHistory[:vs.cfg.MatchHistoryMaxSize]
	}
	vs.numberOfBadMatches = 0
	if match == nil {
		vs.predictable = false
		vs.arrivalToStore = nil
	}
}

// Match returns the most recent match, nil when the last report failed to
// match.
func (vs *VehicleState) Match() *matcher.TemporalMatch {
	if len(vs.matchHistory) == 0 {
		return nil
	}
	return vs.matchHistory[0]
}

// PreviousMatch returns the match before the current one. A nil entry in
// the history means the vehicle was unmatched at that point and nil is
// returned rather than looking further back.
func (vs *VehicleState) PreviousMatch() *matcher.TemporalMatch {
	if len(vs.matchHistory) < 2 {
		return nil
	}
	return vs.matchHistory[1]
}

// PreviousMatchByMinAge walks the match history for the most recent match
// at least minAge older than the current report. A nil history entry ends
// the walk since the vehicle was not continuously matched over the window.
func (vs *VehicleState) PreviousMatchByMinAge(minAge time.Duration) *matcher.TemporalMatch {
	current := vs.AvlReport()
	if current == nil {
		return nil
	}
	for i := 1; i < len(vs.matchHistory); i++ {
		m := vs.matchHistory[i]
		if m == nil {
			return nil
		}
		if current.Time.Sub(m.AvlTime()) >= minAge {
			return m
		}
	}
	return nil
}

// LastMatchIsValid reports whether the head of the match history is an
// actual match rather than a recorded failure.
func (vs *VehicleState) LastMatchIsValid() bool {
	return len(vs.matchHistory) > 0 && vs.matchHistory[0] != nil
}

func (vs *VehicleState) IncrementNumberOfBadMatches() { vs.numberOfBadMatches++ }

func (vs *VehicleState) NumberOfBadMatches() int { return vs.numberOfBadMatches }

// OverLimitOfBadMatches reports whether the consecutive bad-match grace has
// been used up.
func (vs *VehicleState) OverLimitOfBadMatches() bool {
	return vs.numberOfBadMatches > vs.cfg.AllowableBadMatches
}

func (vs *VehicleState) BadAssignmentsInARow() int { return vs.badAssignmentsInARow }

func (vs *VehicleState) IncrementBadAssignmentsInARow() { vs.badAssignmentsInARow++ }

func (vs *VehicleState) ResetBadAssignmentsInARow() { vs.badAssignmentsInARow = 0 }

// SetBlock assigns the vehicle and marks it predictable.
func (vs *VehicleState) SetBlock(block *routemodel.Block, method BlockAssignmentMethod,
	assignmentID string, assignmentTime time.Time) {
	vs.block = block
	vs.assignmentMethod = method
	vs.assignmentID = assignmentID
	vs.assignmentTime = assignmentTime
	vs.predictable = block != nil
	if block != nil {
		vs.badAssignmentsInARow = 0
	}
}

// UnsetBlock drops the assignment, remembering what it was so that a rapid
// re-assignment to the same block can be recognized.
func (vs *VehicleState) UnsetBlock(method BlockAssignmentMethod, unassignedTime time.Time) {
	vs.previousBlockBeforeUnassigned = vs.block
	vs.unassignedTime = unassignedTime
	vs.block = nil
	vs.assignmentID = ""
	vs.assignmentMethod = method
	vs.predictable = false
	vs.realTimeSchedAdh = nil
	vs.effectiveSchedDiff = nil
	vs.delayed = false
}

// VehicleNewlyAssignedToSameBlock is true when a vehicle with no match yet
// for its current assignment was recently unassigned from that very block.
// Used to suppress backfilled arrivals/departures that would duplicate
// already-generated ones.
func (vs *VehicleState) VehicleNewlyAssignedToSameBlock(now time.Time) bool {
	if vs.PreviousMatch() != nil || vs.Match() == nil {
		return false
	}
	if vs.previousBlockBeforeUnassigned == nil || vs.block == nil {
		return false
	}
	return vs.previousBlockBeforeUnassigned.ID() == vs.block.ID() &&
		now.Sub(vs.unassignedTime) < vs.cfg.ReassignToSameBlockIn
}

// HasNewAssignment reports whether the report carries an assignment hint
// different from the vehicle's current one. A report without a hint never
// counts as a new assignment.
func (vs *VehicleState) HasNewAssignment(report datastructure.AvlReport,
	model *routemodel.Model) bool {
	if !report.HasAssignment() {
		return false
	}
	switch report.AssignmentType {
	case datastructure.AssignmentBlockID:
		return vs.assignmentID != report.AssignmentID
	case datastructure.AssignmentRouteID:
		if vs.block == nil {
			return true
		}
		return !vs.block.ServesRoute(report.AssignmentID)
	default:
		return false
	}
}

// PreviousAssignmentProblematic is true when the vehicle recently lost its
// assignment through a grab or termination and the current report does not
// carry a different one, meaning re-assigning from the stale hint would
// just repeat the problem.
func (vs *VehicleState) PreviousAssignmentProblematic(report datastructure.AvlReport,
	model *routemodel.Model) bool {
	if vs.assignmentMethod != AssignmentGrabbed && vs.assignmentMethod != AssignmentTerminated {
		return false
	}
	if vs.HasNewAssignment(report, model) {
		return false
	}
	return report.Time.Sub(vs.unassignedTime) < vs.cfg.ProblematicAssignFor
}

func (vs *VehicleState) ArrivalToStore() *datastructure.ArrivalDeparture { return vs.arrivalToStore }

func (vs *VehicleState) SetArrivalToStore(arrival *datastructure.ArrivalDeparture) {
	vs.arrivalToStore = arrival
}

func (vs *VehicleState) LastArrivalTime() time.Time { return vs.lastArrivalTime }

func (vs *VehicleState) LastArrivalStopPathIndex() int { return vs.lastArrivalStopPathIndex }

// NoteArrival remembers the latest arrival so later departures can be
// ordered strictly after it.
func (vs *VehicleState) NoteArrival(t time.Time, stopPathIndex int) {
	if t.After(vs.lastArrivalTime) {
		vs.lastArrivalTime = t
		vs.lastArrivalStopPathIndex = stopPathIndex
	}
}

func (vs *VehicleState) LastDepartureTime() time.Time { return vs.lastDepartureTime }

func (vs *VehicleState) NoteDeparture(t time.Time) {
	if t.After(vs.lastDepartureTime) {
		vs.lastDepartureTime = t
	}
}
