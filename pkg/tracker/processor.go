package tracker

import (
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"
	"github.com/lintang-b-s/transitx/pkg/concurrent"
	"github.com/lintang-b-s/transitx/pkg/datastructure"
	"github.com/lintang-b-s/transitx/pkg/geo"
	"github.com/lintang-b-s/transitx/pkg/matcher"
	"github.com/lintang-b-s/transitx/pkg/routemodel"
	"github.com/lintang-b-s/transitx/pkg/spatialindex"
	"github.com/lintang-b-s/transitx/pkg/util"
	"go.uber.org/zap"
)

// Output receives the records the pipeline derives. Implementations publish
// or persist them, the processor never blocks on I/O itself.
type Output interface {
	PublishArrivalDepartures([]datastructure.ArrivalDeparture)
	PublishPredictions([]datastructure.Prediction)
	PublishEvent(datastructure.VehicleEvent)
}

// Recorder counts pipeline outcomes for monitoring.
type Recorder interface {
	ReportProcessed()
	MatchFailed()
	VehicleMadeUnpredictable(reason string)
	PredictionsGenerated(count int)
	ArrivalDeparturesGenerated(count int)
}

type nopRecorder struct{}

func (nopRecorder) ReportProcessed()                {}
func (nopRecorder) MatchFailed()                    {}
func (nopRecorder) VehicleMadeUnpredictable(string) {}
func (nopRecorder) PredictionsGenerated(int)        {}
func (nopRecorder) ArrivalDeparturesGenerated(int)  {}

// NopRecorder is used when monitoring is not wired up.
func NopRecorder() Recorder { return nopRecorder{} }

// assignSearchWorkers bounds the per-report fan-out when searching many
// candidate blocks during route and auto assignment.
const assignSearchWorkers = 4

// AvlProcessor orchestrates the whole per-report pipeline: store the
// report, decide how to (re)match, keep the predictability state machine,
// and run the generators for vehicles that end up matched.
type AvlProcessor struct {
	log        *zap.Logger
	cfg        Config
	matcherCfg matcher.Config

	model       *routemodel.Model
	index       *spatialindex.Index
	registry    *Registry
	cache       *SnapshotCache
	spatial     *matcher.SpatialMatcher
	temporal    *matcher.TemporalMatcher
	travelTimes *matcher.TravelTimes
	schedAdh    *SchedAdhProcessor
	adGen       *ArrivalDepartureGenerator
	predGen     *PredictionGenerator
	clock       Clock
	out         Output
	recorder    Recorder
	validate    *validator.Validate
}

func NewAvlProcessor(log *zap.Logger, cfg Config, matcherCfg matcher.Config,
	model *routemodel.Model, index *spatialindex.Index, registry *Registry,
	cache *SnapshotCache, travelTimes *matcher.TravelTimes, clock Clock,
	out Output, recorder Recorder) *AvlProcessor {
	if recorder == nil {
		recorder = NopRecorder()
	}
	return &AvlProcessor{
		log:         log,
		cfg:         cfg,
		matcherCfg:  matcherCfg,
		model:       model,
		index:       index,
		registry:    registry,
		cache:       cache,
		spatial:     matcher.NewSpatialMatcher(log, matcherCfg),
		temporal:    matcher.NewTemporalMatcher(log, matcherCfg, travelTimes),
		travelTimes: travelTimes,
		schedAdh:    NewSchedAdhProcessor(log, matcherCfg, travelTimes),
		adGen:       NewArrivalDepartureGenerator(log, cfg, matcherCfg, travelTimes),
		predGen:     NewPredictionGenerator(log, cfg, matcherCfg, travelTimes, clock),
		clock:       clock,
		out:         out,
		recorder:    recorder,
		validate:    validator.New(),
	}
}

func (p *AvlProcessor) Registry() *Registry { return p.registry }

func (p *AvlProcessor) Cache() *SnapshotCache { return p.cache }

// ProcessReport runs one AVL report through the pipeline under the
// vehicle's lock.
func (p *AvlProcessor) ProcessReport(report datastructure.AvlReport) error {
	if err := p.validate.Struct(report); err != nil {
		return util.WrapErrorf(err, util.ErrBadParamInput,
			"invalid avl report for vehicle %q", report.VehicleID)
	}

	var grabbedBlocks []string
	p.registry.WithVehicle(report.VehicleID, func(vs *VehicleState) {
		p.lowLevelProcess(vs, report, false, &grabbedBlocks)
		p.updateSnapshot(vs)
	})
	// Unassigning the previous holder of an exclusive block takes that
	// vehicle's lock, so it must happen after this vehicle's lock is
	// released. Two vehicles grabbing each other's blocks would otherwise
	// deadlock their workers.
	for _, blockID := range grabbedBlocks {
		p.unassignOtherVehiclesFromBlock(blockID, report.VehicleID, report)
	}
	p.recorder.ReportProcessed()
	return nil
}

// lowLevelProcess is the per-report state machine. recursiveCall is set
// when re-processing the same report after an end-of-block unassignment.
// Exclusive blocks grabbed while matching are appended to grabs, the caller
// unassigns their previous holders once the vehicle lock is released.
func (p *AvlProcessor) lowLevelProcess(vs *VehicleState,
	report datastructure.AvlReport, recursiveCall bool, grabs *[]string) {
	if !recursiveCall {
		vs.StoreAvlReport(report)
	}

	switch {
	case vs.IsPredictable() && !vs.HasNewAssignment(report, p.model):
		p.matchNewFixForPredictableVehicle(vs, report)
	case report.HasAssignment() &&
		(!vs.IsPredictable() || vs.HasNewAssignment(report, p.model)) &&
		!vs.PreviousAssignmentProblematic(report, p.model):
		p.matchToNewAssignment(vs, report, grabs)
	default:
		p.handleProblemAssignment(vs, report, grabs)
	}

	if !vs.IsPredictable() || !vs.LastMatchIsValid() {
		return
	}
	vs.ResetBadAssignmentsInARow()

	p.handlePossibleVehicleDelay(vs, report)

	match := vs.Match()
	vs.SetRealTimeSchedAdh(p.schedAdh.Generate(vs.VehicleID(), report.Time, match.SpatialMatch))
	vs.SetEffectiveSchedDiff(p.schedAdh.EffectiveScheduleDifference(
		vs.VehicleID(), report.Time, match.SpatialMatch))

	if !p.verifyRealTimeSchedAdh(vs, report, grabs) {
		return
	}

	p.generateResultsOfMatch(vs)
	p.handlePossibleEndOfBlock(vs, report, recursiveCall, grabs)
}

// matchNewFixForPredictableVehicle re-matches an already predictable
// vehicle anchored at its previous match.
func (p *AvlProcessor) matchNewFixForPredictableVehicle(vs *VehicleState,
	report datastructure.AvlReport) {
	previousMatch := vs.Match()
	if previousMatch == nil {
		p.log.Error("predictable vehicle has no previous match",
			zap.String("vehicleId", vs.VehicleID()))
		return
	}

	spatialMatches := p.spatial.SpatialMatchesFromPreviousMatch(report,
		previousMatch.AvlTime(), previousMatch.SpatialMatch, previousMatch.IsLayover())
	bestMatch := p.temporal.BestTemporalMatch(report, previousMatch.AvlTime(),
		previousMatch, spatialMatches)

	if bestMatch == nil {
		vs.IncrementNumberOfBadMatches()
		p.recorder.MatchFailed()
		p.log.Info("no valid match for report",
			zap.String("vehicleId", vs.VehicleID()),
			zap.Int("badMatchesInARow", vs.NumberOfBadMatches()))
	}

	if p.handleIfVehicleNotMakingProgress(vs, report, bestMatch) {
		return
	}

	if bestMatch != nil {
		vs.SetMatch(bestMatch)
	} else if vs.OverLimitOfBadMatches() {
		p.makeVehicleUnpredictable(vs, report, datastructure.EventNoMatch,
			fmt.Sprintf("vehicle %s could not be matched for %d consecutive reports",
				vs.VehicleID(), vs.NumberOfBadMatches()))
		vs.UnsetBlock(CouldNotMatch, report.Time)
	}
}

// handleIfVehicleNotMakingProgress makes a vehicle unpredictable when it
// has barely moved over the lookback window without a wait stop explaining
// the standstill.
func (p *AvlProcessor) handleIfVehicleNotMakingProgress(vs *VehicleState,
	report datastructure.AvlReport, bestMatch *matcher.TemporalMatch) bool {
	if bestMatch == nil || bestMatch.IsLayover() {
		return false
	}
	oldMatch := vs.PreviousMatchByMinAge(p.cfg.NoProgressLookback)
	if oldMatch == nil {
		return false
	}
	distance := oldMatch.DistanceBetweenMatches(bestMatch.SpatialMatch)
	if distance >= p.cfg.NoProgressMinDistance {
		return false
	}
	if oldMatch.TraversedWaitStop(bestMatch.SpatialMatch) {
		return false
	}

	p.makeVehicleUnpredictable(vs, report, datastructure.EventNoProgress,
		fmt.Sprintf("vehicle %s moved only %.1fm over the last %s",
			vs.VehicleID(), distance, p.cfg.NoProgressLookback))
	return true
}

// handlePossibleVehicleDelay flags, without unassigning, a vehicle that is
// not making expected progress. An event is emitted on the transition.
func (p *AvlProcessor) handlePossibleVehicleDelay(vs *VehicleState,
	report datastructure.AvlReport) {
	match := vs.Match()
	if match == nil || match.IsLayover() {
		vs.SetDelayed(false)
		return
	}
	oldMatch := vs.PreviousMatchByMinAge(p.cfg.DelayedLookback)
	if oldMatch == nil {
		return
	}
	distance := oldMatch.DistanceBetweenMatches(match.SpatialMatch)
	if distance >= p.cfg.DelayedMinDistance {
		vs.SetDelayed(false)
		return
	}

	if !vs.IsDelayed() {
		vs.SetDelayed(true)
		p.emitEvent(vs, report, datastructure.EventDelayed,
			fmt.Sprintf("vehicle %s moved only %.1fm over the last %s, marking delayed",
				vs.VehicleID(), distance, p.cfg.DelayedLookback))
	}
}

// matchToNewAssignment assigns a vehicle from the report's block or route
// hint.
func (p *AvlProcessor) matchToNewAssignment(vs *VehicleState,
	report datastructure.AvlReport, grabs *[]string) {
	switch report.AssignmentType {
	case datastructure.AssignmentBlockID, datastructure.AssignmentPrevious:
		block := p.model.BlockByID(report.AssignmentID)
		if block == nil {
			p.log.Warn("avl report names unknown block",
				zap.String("vehicleId", vs.VehicleID()),
				zap.String("blockId", report.AssignmentID))
			p.handleProblemAssignment(vs, report, grabs)
			return
		}
		if !p.matchVehicleToBlockAssignment(vs, report, block, AvlFeedBlockAssignment, grabs) {
			p.handleNoMatchForAssignment(vs, report)
		}
	case datastructure.AssignmentRouteID:
		if !p.matchVehicleToRouteAssignment(vs, report, report.AssignmentID, grabs) {
			p.handleNoMatchForAssignment(vs, report)
		}
	default:
		p.handleProblemAssignment(vs, report, grabs)
	}
}

func (p *AvlProcessor) handleNoMatchForAssignment(vs *VehicleState,
	report datastructure.AvlReport) {
	if vs.IsPredictable() {
		p.makeVehicleUnpredictable(vs, report, datastructure.EventNoMatch,
			fmt.Sprintf("vehicle %s could not be matched to assignment %s",
				vs.VehicleID(), report.AssignmentID))
		vs.UnsetBlock(CouldNotMatch, report.Time)
	}
}

func tripIndexInBlock(block *routemodel.Block, trip *routemodel.Trip) int {
	for i := 0; i < block.NumTrips(); i++ {
		if block.Trip(i) == trip {
			return i
		}
	}
	return -1
}

// matchVehicleToBlockAssignment tries a full spatial/temporal match against
// the block, falling back to a reachable layover stop when the vehicle is
// off route but can still deadhead to a trip start in time.
func (p *AvlProcessor) matchVehicleToBlockAssignment(vs *VehicleState,
	report datastructure.AvlReport, block *routemodel.Block,
	method BlockAssignmentMethod, grabs *[]string) bool {
	spatialMatches := p.spatial.SpatialMatchesForBlock(report, block, nil,
		matcher.StandardMatching)
	bestMatch := p.temporal.BestTemporalMatchComparedToSchedule(report, spatialMatches)

	if bestMatch != nil && p.spatial.ProblemMatchDueToLackOfHeadingInfo(
		bestMatch.SpatialMatch, report,
		vs.PreviousAvlReportByMinDistance(p.matcherCfg.DistanceBetweenAvlsNoHeading),
		matcher.StandardMatching) {
		p.log.Info("match rejected: heading unknown and vehicle has not moved enough",
			zap.String("vehicleId", vs.VehicleID()),
			zap.String("blockId", block.ID()))
		return false
	}

	if bestMatch == nil {
		bestMatch = p.layoverFallbackMatch(report, block)
	}
	if bestMatch == nil {
		p.log.Info("vehicle could not be matched to block",
			zap.String("vehicleId", vs.VehicleID()),
			zap.String("blockId", block.ID()))
		return false
	}

	if p.matchProblematicDueOtherVehicleHavingAssignment(vs, block, bestMatch) {
		p.log.Info("not grabbing exclusive block already served by another vehicle",
			zap.String("vehicleId", vs.VehicleID()),
			zap.String("blockId", block.ID()))
		return false
	}

	p.updateVehicleStateFromAssignment(vs, report, bestMatch, block, method,
		report.AssignmentID, grabs)
	return true
}

// layoverFallbackMatch matches an off-route vehicle to the layover stop of
// a trip it can still deadhead to in time.
func (p *AvlProcessor) layoverFallbackMatch(report datastructure.AvlReport,
	block *routemodel.Block) *matcher.TemporalMatch {
	trip := p.temporal.MatchToLayoverStopEvenIfOffRoute(report, block.Trips())
	if trip == nil {
		return nil
	}
	tripIndex := tripIndexInBlock(block, trip)
	if tripIndex < 0 {
		return nil
	}
	distanceToFirstStop := geo.DistanceMeters(report.Location(), trip.StartLocation())
	spatialMatch := matcher.NewSpatialMatch(report.Time, block, tripIndex, 0, 0,
		distanceToFirstStop, 0)
	diff := datastructure.NewTemporalDifference(0, p.matcherCfg.EarlyToLateRatio)
	return matcher.NewTemporalMatch(spatialMatch, diff)
}

// matchProblematicDueOtherVehicleHavingAssignment prevents a far-away
// vehicle from grabbing an exclusive block another healthy vehicle is
// already serving.
func (p *AvlProcessor) matchProblematicDueOtherVehicleHavingAssignment(
	vs *VehicleState, block *routemodel.Block,
	bestMatch *matcher.TemporalMatch) bool {
	if !block.IsExclusive() {
		return false
	}
	otherServing := false
	for _, snapshot := range p.cache.ForBlock(block.ID()) {
		if snapshot.VehicleID != vs.VehicleID() && snapshot.Predictable &&
			!snapshot.SchedBased {
			otherServing = true
			break
		}
	}
	if !otherServing {
		return false
	}
	distance := bestMatch.DistanceToSegment()
	return math.IsNaN(distance) || distance > p.cfg.MaxDistanceForAssignGrab
}

// updateVehicleStateFromAssignment commits the assignment. An exclusive
// block is queued for the caller to unassign its previous holder from, once
// this vehicle's lock is no longer held.
func (p *AvlProcessor) updateVehicleStateFromAssignment(vs *VehicleState,
	report datastructure.AvlReport, bestMatch *matcher.TemporalMatch,
	block *routemodel.Block, method BlockAssignmentMethod, assignmentID string,
	grabs *[]string) {
	if block.IsExclusive() {
		*grabs = append(*grabs, block.ID())
	}
	vs.SetBlock(block, method, assignmentID, report.Time)
	vs.SetMatch(bestMatch)
	p.emitEvent(vs, report, datastructure.EventPredictable,
		fmt.Sprintf("vehicle %s became predictable on block %s via %s",
			vs.VehicleID(), block.ID(), method))
}

// unassignOtherVehiclesFromBlock enforces the single-holder invariant for
// exclusive blocks.
func (p *AvlProcessor) unassignOtherVehiclesFromBlock(blockID, newVehicleID string,
	report datastructure.AvlReport) {
	for _, snapshot := range p.cache.ForBlock(blockID) {
		if snapshot.VehicleID == newVehicleID || !snapshot.Predictable {
			continue
		}
		otherID := snapshot.VehicleID
		p.registry.WithVehicle(otherID, func(other *VehicleState) {
			if other.Block() == nil || other.Block().ID() != blockID {
				return
			}
			other.SetMatch(nil)
			other.UnsetBlock(AssignmentGrabbed, report.Time)
			p.recorder.VehicleMadeUnpredictable(string(datastructure.EventAssignmentGrabbed))
			if otherReport := other.AvlReport(); otherReport != nil {
				grabEvent := datastructure.VehicleEvent{
					VehicleID:   otherID,
					Reason:      datastructure.EventAssignmentGrabbed,
					Description: fmt.Sprintf("block %s grabbed by vehicle %s", blockID, newVehicleID),
					Time:        p.clock.Now(),
					AvlTime:     otherReport.Time,
					BlockID:     blockID,
					Lat:         otherReport.Lat,
					Lon:         otherReport.Lon,
				}
				p.cache.StoreEvent(grabEvent)
				p.out.PublishEvent(grabEvent)
			}
			p.updateSnapshot(other)
		})
	}
}

// matchVehicleToRouteAssignment searches every active block serving the
// route for the best schedule-anchored match, restricted to positions away
// from terminals where trips of the route are distinguishable.
func (p *AvlProcessor) matchVehicleToRouteAssignment(vs *VehicleState,
	report datastructure.AvlReport, routeID string, grabs *[]string) bool {
	blocks := p.nearbyBlocks(report, p.model.ActiveBlocksForRoute(routeID,
		report.Time, p.matcherCfg.AllowableEarlyInitial))

	candidates := p.spatialCandidatesForBlocks(report,
		vs.PreviousAvlReportByMinDistance(p.matcherCfg.DistanceBetweenAvlsNoHeading),
		blocks)
	kept := candidates[:0]
	for _, m := range candidates {
		if m.AwayFromTerminals(p.matcherCfg.TerminalDistanceRouteMatching) {
			kept = append(kept, m)
		}
	}

	bestMatch := p.temporal.BestTemporalMatchComparedToSchedule(report, kept)
	if bestMatch == nil {
		p.log.Info("vehicle could not be matched to route",
			zap.String("vehicleId", vs.VehicleID()),
			zap.String("routeId", routeID))
		return false
	}
	p.updateVehicleStateFromAssignment(vs, report, bestMatch, bestMatch.Block(),
		AvlFeedRouteAssignment, routeID, grabs)
	return true
}

// handleProblemAssignment deals with reports that carry no usable
// assignment: a predictable vehicle gets a bounded grace period reusing its
// previous assignment, everything else goes through auto assignment.
func (p *AvlProcessor) handleProblemAssignment(vs *VehicleState,
	report datastructure.AvlReport, grabs *[]string) {
	if vs.IsPredictable() && vs.AssignmentID() != "" {
		if vs.BadAssignmentsInARow() < p.cfg.AllowableBadAssignments {
			vs.IncrementBadAssignmentsInARow()
			p.log.Info("report lost its assignment, reusing previous within grace period",
				zap.String("vehicleId", vs.VehicleID()),
				zap.String("assignmentId", vs.AssignmentID()),
				zap.Int("badAssignmentsInARow", vs.BadAssignmentsInARow()))
			p.matchNewFixForPredictableVehicle(vs, report)
			return
		}
		p.makeVehicleUnpredictable(vs, report, datastructure.EventAssignmentProblem,
			fmt.Sprintf("vehicle %s lost its assignment %s",
				vs.VehicleID(), vs.AssignmentID()))
		vs.UnsetBlock(AssignmentTerminated, report.Time)
		return
	}
	p.autoAssign(vs, report, grabs)
}

// autoAssign tries assigning an unassigned vehicle to an active block no
// other vehicle is serving.
func (p *AvlProcessor) autoAssign(vs *VehicleState, report datastructure.AvlReport,
	grabs *[]string) {
	blocks := p.nearbyBlocks(report,
		p.model.ActiveBlocks(report.Time, p.matcherCfg.AllowableEarlyInitial))
	unserved := make([]*routemodel.Block, 0, len(blocks))
	for _, block := range blocks {
		if p.blockHasHealthyVehicle(block.ID(), vs.VehicleID()) {
			continue
		}
		unserved = append(unserved, block)
	}
	candidates := p.spatialCandidatesForBlocks(report,
		vs.PreviousAvlReportByMinDistance(p.matcherCfg.DistanceBetweenAvlsNoHeading),
		unserved)
	bestMatch := p.temporal.BestTemporalMatchComparedToSchedule(report, candidates)
	if bestMatch == nil {
		return
	}
	p.updateVehicleStateFromAssignment(vs, report, bestMatch, bestMatch.Block(),
		AutoAssigner, bestMatch.Block().ID(), grabs)
}

// spatialCandidatesForBlocks fans the per-block candidate search out over a
// worker pool, one job per block. previousReport is the last fix far enough
// away to imply a direction of travel for reports without heading.
func (p *AvlProcessor) spatialCandidatesForBlocks(report datastructure.AvlReport,
	previousReport *datastructure.AvlReport,
	blocks []*routemodel.Block) []*matcher.SpatialMatch {
	if len(blocks) == 0 {
		return nil
	}

	pool := concurrent.NewWorkerPool[*routemodel.Block, []*matcher.SpatialMatch](
		assignSearchWorkers, len(blocks))
	pool.Start(func(block *routemodel.Block) []*matcher.SpatialMatch {
		var matches []*matcher.SpatialMatch
		for _, m := range p.spatial.SpatialMatchesForAutoAssigning(report, block, nil) {
			if p.spatial.ProblemMatchDueToLackOfHeadingInfo(m, report, previousReport,
				matcher.AutoAssigningMatching) {
				continue
			}
			matches = append(matches, m)
		}
		return matches
	})
	for _, block := range blocks {
		pool.AddJob(block)
	}
	pool.Close()
	pool.Wait()

	var candidates []*matcher.SpatialMatch
	for matches := range pool.CollectResults() {
		candidates = append(candidates, matches...)
	}
	return candidates
}

// nearbyBlocks prefilters to blocks with geometry near the fix when the
// spatial index is available.
func (p *AvlProcessor) nearbyBlocks(report datastructure.AvlReport,
	blocks []*routemodel.Block) []*routemodel.Block {
	if p.index == nil {
		return blocks
	}
	nearIDs := p.index.BlockIDsNear(report.Location(), p.cfg.AssignSearchRadiusKm)
	filtered := make([]*routemodel.Block, 0, len(blocks))
	for _, block := range blocks {
		if _, ok := nearIDs[block.ID()]; ok {
			filtered = append(filtered, block)
		}
	}
	return filtered
}

func (p *AvlProcessor) blockHasHealthyVehicle(blockID, excludeVehicleID string) bool {
	for _, snapshot := range p.cache.ForBlock(blockID) {
		if snapshot.VehicleID != excludeVehicleID && snapshot.Predictable &&
			!snapshot.SchedBased {
			return true
		}
	}
	return false
}

// verifyRealTimeSchedAdh discards matches whose schedule adherence is
// wildly off, which typically means the match went stale during a system
// pause, and re-runs assignment once. Returns false when the match was
// discarded.
func (p *AvlProcessor) verifyRealTimeSchedAdh(vs *VehicleState,
	report datastructure.AvlReport, grabs *[]string) bool {
	adh := vs.RealTimeSchedAdh()
	if adh == nil {
		return true
	}

	// A vehicle sitting at a wait stop well past its scheduled departure is
	// notable even while adherence stays in bounds.
	match := vs.Match()
	if match.IsWaitStop() && match.IsAtStop() {
		if scheduled := match.ScheduledWaitStopTime(); !scheduled.IsZero() {
			if report.Time.Sub(scheduled) > p.cfg.AllowableLateDepartureEvent {
				p.emitEvent(vs, report, datastructure.EventLateDeparture,
					fmt.Sprintf("vehicle %s still at wait stop %s past scheduled departure",
						vs.VehicleID(), match.StopPath().StopID()))
			}
		}
	}

	if adh.IsWithinBounds(p.matcherCfg.AllowableEarly, p.matcherCfg.AllowableLate) {
		return true
	}

	p.log.Info("schedule adherence out of bounds, discarding match and retrying assignment",
		zap.String("vehicleId", vs.VehicleID()),
		zap.String("adherence", adh.String()))
	block := vs.Block()
	method := vs.AssignmentMethod()
	assignmentID := vs.AssignmentID()
	p.makeVehicleUnpredictable(vs, report, datastructure.EventSchedAdhViolation,
		fmt.Sprintf("vehicle %s schedule adherence %s outside allowable bounds",
			vs.VehicleID(), adh))
	if block != nil {
		saved := report
		saved.AssignmentID = assignmentID
		p.matchVehicleToBlockAssignment(vs, saved, block, method, grabs)
	}
	return false
}

// generateResultsOfMatch runs the generators for a settled match and hands
// the results to the output.
func (p *AvlProcessor) generateResultsOfMatch(vs *VehicleState) {
	predictions := p.predGen.Generate(vs)
	if len(predictions) > 0 {
		p.out.PublishPredictions(predictions)
		p.recorder.PredictionsGenerated(len(predictions))
	}

	arrivalDepartures, events := p.adGen.Generate(vs)
	if len(arrivalDepartures) > 0 {
		p.out.PublishArrivalDepartures(arrivalDepartures)
		p.recorder.ArrivalDeparturesGenerated(len(arrivalDepartures))
	}
	for _, event := range events {
		p.out.PublishEvent(event)
	}
}

// handlePossibleEndOfBlock unassigns a vehicle that reached the final stop
// of its block, then re-processes the report once so frequency based
// back-to-back blocks can pick up the next assignment immediately.
func (p *AvlProcessor) handlePossibleEndOfBlock(vs *VehicleState,
	report datastructure.AvlReport, recursiveCall bool, grabs *[]string) {
	match := vs.Match()
	atStop := match.AtStop()
	if atStop == nil || !atStop.Indices().AtEndOfBlock() {
		return
	}

	p.emitEvent(vs, report, datastructure.EventEndOfBlock,
		fmt.Sprintf("vehicle %s reached the end of block %s",
			vs.VehicleID(), vs.Block().ID()))
	vs.SetMatch(nil)
	vs.UnsetBlock(AssignmentTerminated, report.Time)

	if recursiveCall {
		p.log.Error("reached end of block again while re-processing the same report",
			zap.String("vehicleId", vs.VehicleID()))
		return
	}
	p.lowLevelProcess(vs, report, true, grabs)
}

func (p *AvlProcessor) makeVehicleUnpredictable(vs *VehicleState,
	report datastructure.AvlReport, reason datastructure.EventReason,
	description string) {
	vs.SetMatch(nil)
	vs.SetDelayed(false)
	p.recorder.VehicleMadeUnpredictable(string(reason))
	p.emitEvent(vs, report, reason, description)
}

func (p *AvlProcessor) emitEvent(vs *VehicleState, report datastructure.AvlReport,
	reason datastructure.EventReason, description string) {
	event := datastructure.VehicleEvent{
		VehicleID:   vs.VehicleID(),
		Reason:      reason,
		Description: description,
		Time:        p.clock.Now(),
		AvlTime:     report.Time,
		Lat:         report.Lat,
		Lon:         report.Lon,
		Predictable: vs.IsPredictable(),
	}
	if block := vs.Block(); block != nil {
		event.BlockID = block.ID()
	}
	if match := vs.Match(); match != nil {
		event.TripIndex = match.TripIndex()
		event.StopPathIndex = match.StopPathIndex()
	}
	p.cache.StoreEvent(event)
	p.out.PublishEvent(event)
	p.log.Info("vehicle event",
		zap.String("vehicleId", vs.VehicleID()),
		zap.String("reason", string(reason)),
		zap.String("description", description))
}

// updateSnapshot publishes the vehicle's settled state to the shared read
// cache.
func (p *AvlProcessor) updateSnapshot(vs *VehicleState) {
	report := vs.AvlReport()
	if report == nil {
		return
	}
	snapshot := datastructure.VehicleSnapshot{
		VehicleID:   vs.VehicleID(),
		Predictable: vs.IsPredictable(),
		Delayed:     vs.IsDelayed(),
		SchedBased:  vs.IsSchedBased(),
		Lat:         report.Lat,
		Lon:         report.Lon,
		Heading:     report.Heading,
		AvlTime:     report.Time,
	}
	if block := vs.Block(); block != nil {
		snapshot.BlockID = block.ID()
	}
	if match := vs.Match(); match != nil {
		snapshot.TripID = match.Trip().ID()
		snapshot.RouteID = match.Trip().RouteID()
		snapshot.TripIndex = match.TripIndex()
		snapshot.StopPathIndex = match.StopPathIndex()
	}
	if adh := vs.RealTimeSchedAdh(); adh != nil {
		m := adh.Msec()
		snapshot.ScheduleAdhMsec = &m
	}
	if eff := vs.EffectiveSchedDiff(); eff != nil {
		m := eff.Msec()
		snapshot.EffectiveSchedMsec = &m
	}
	p.cache.Update(snapshot)
}
