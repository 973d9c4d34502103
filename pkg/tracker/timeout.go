package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/lintang-b-s/transitx/pkg/datastructure"
	"go.uber.org/zap"
)

// TimeoutSweeper periodically makes vehicles whose AVL feed went quiet
// unpredictable so stale predictions stop being served.
type TimeoutSweeper struct {
	log      *zap.Logger
	cfg      Config
	registry *Registry
	cache    *SnapshotCache
	clock    Clock
	out      Output
	recorder Recorder
}

func NewTimeoutSweeper(log *zap.Logger, cfg Config, registry *Registry,
	cache *SnapshotCache, clock Clock, out Output, recorder Recorder) *TimeoutSweeper {
	if recorder == nil {
		recorder = NopRecorder()
	}
	return &TimeoutSweeper{
		log:      log,
		cfg:      cfg,
		registry: registry,
		cache:    cache,
		clock:    clock,
		out:      out,
		recorder: recorder,
	}
}

// Run sweeps on the configured cadence until the context is cancelled.
func (ts *TimeoutSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(ts.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			ts.Sweep()
		}
	}
}

// Sweep checks every predictable vehicle once.
func (ts *TimeoutSweeper) Sweep() {
	now := ts.clock.Now()
	for _, vehicleID := range ts.registry.VehicleIDs() {
		ts.registry.WithVehicle(vehicleID, func(vs *VehicleState) {
			ts.checkVehicle(vs, now)
		})
	}
}

func (ts *TimeoutSweeper) checkVehicle(vs *VehicleState, now time.Time) {
	if !vs.IsPredictable() {
		return
	}
	report := vs.AvlReport()
	if report == nil {
		return
	}
	quiet := now.Sub(report.Time)

	if vs.IsSchedBased() {
		if quiet > ts.cfg.AllowableNoAvlSchedQueued {
			ts.timeOut(vs, *report, now, fmt.Sprintf(
				"schedule based vehicle %s had no real fix for %s", vs.VehicleID(), quiet))
		}
		return
	}

	// A vehicle holding at a wait stop legitimately stops reporting
	// movement, so it only times out well past its scheduled departure.
	// Frequency based trips have no scheduled departure to anchor on and
	// fall through to the regular rule.
	if match := vs.Match(); match != nil && match.IsWaitStop() && match.IsAtStop() &&
		!match.Trip().IsNoSchedule() {
		scheduled := match.ScheduledWaitStopTime()
		if !scheduled.IsZero() {
			if now.After(scheduled.Add(ts.cfg.WaitStopDepartAllowance)) && quiet > ts.cfg.AllowableNoAvl {
				ts.timeOut(vs, *report, now, fmt.Sprintf(
					"vehicle %s silent at wait stop %s past scheduled departure %s",
					vs.VehicleID(), match.StopPath().StopID(),
					scheduled.Format(time.RFC3339)))
			}
			return
		}
	}

	if quiet > ts.cfg.AllowableNoAvl {
		ts.timeOut(vs, *report, now, fmt.Sprintf(
			"vehicle %s had no avl report for %s, allowable is %s",
			vs.VehicleID(), quiet, ts.cfg.AllowableNoAvl))
	}
}

func (ts *TimeoutSweeper) timeOut(vs *VehicleState, report datastructure.AvlReport,
	now time.Time, description string) {
	ts.log.Info("timing out vehicle",
		zap.String("vehicleId", vs.VehicleID()),
		zap.String("description", description))

	event := datastructure.VehicleEvent{
		VehicleID:   vs.VehicleID(),
		Reason:      datastructure.EventTimeout,
		Description: description,
		Time:        now,
		AvlTime:     report.Time,
		Lat:         report.Lat,
		Lon:         report.Lon,
	}
	if block := vs.Block(); block != nil {
		event.BlockID = block.ID()
	}

	vs.SetMatch(nil)
	vs.SetDelayed(false)
	vs.UnsetBlock(AssignmentTerminated, now)
	ts.recorder.VehicleMadeUnpredictable(string(datastructure.EventTimeout))
	ts.cache.StoreEvent(event)
	ts.out.PublishEvent(event)

	snapshot := datastructure.VehicleSnapshot{
		VehicleID:   vs.VehicleID(),
		Predictable: false,
		Lat:         report.Lat,
		Lon:         report.Lon,
		Heading:     report.Heading,
		AvlTime:     report.Time,
	}
	ts.cache.Update(snapshot)
}
