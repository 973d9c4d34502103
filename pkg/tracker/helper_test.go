package tracker

import (
	"sync"
	"time"

	"github.com/lintang-b-s/transitx/pkg/datastructure"
	"github.com/lintang-b-s/transitx/pkg/geo"
	"github.com/lintang-b-s/transitx/pkg/matcher"
	"github.com/lintang-b-s/transitx/pkg/routemodel"
)

func testConfig() Config {
	return Config{
		MatchHistoryMaxSize:          20,
		AvlHistoryMaxSize:            20,
		AllowableBadMatches:          2,
		AllowableBadAssignments:      0,
		EventHistoryMaxSize:          20,
		MaxDistanceForAssignGrab:     10000.0,
		NoProgressLookback:           5 * time.Minute,
		NoProgressMinDistance:        60.0,
		DelayedLookback:              4 * time.Minute,
		DelayedMinDistance:           60.0,
		AllowableEarlyDepartureEvent: time.Minute,
		AllowableLateDepartureEvent:  4 * time.Minute,
		MaxStopsBetweenMatches:       12,
		MaxStopsWhenNoPreviousMatch:  4,
		PredictionHorizon:            45 * time.Minute,
		UseArrivalPredsNormalStops:   true,
		UseExactSchedTimeForLayover:  true,
		SweepInterval:                30 * time.Second,
		AllowableNoAvl:               6 * time.Minute,
		AllowableNoAvlSchedQueued:    6 * time.Minute,
		WaitStopDepartAllowance:      6 * time.Minute,
		AvlHistoryMaxAge:             20 * time.Minute,
		ReassignToSameBlockIn:        20 * time.Minute,
		ProblematicAssignFor:         2 * time.Hour,
		AssignSearchRadiusKm:         0.5,
	}
}

func testMatcherConfig() matcher.Config {
	return matcher.Config{
		MaxDistanceFromSegment:          60.0,
		MaxDistanceForAutoAssigning:     60.0,
		MaxHeadingOffsetFromSeg:         135.0,
		LayoverDistance:                 2000.0,
		MaxAvlSpeed:                     31.3,
		SpatialSearchMarginMeters:       200.0,
		MaxStopPathsAhead:               999,
		DistanceFromEndOfBlockInitial:   250.0,
		DistanceFromLastStopEndMatching: 250.0,
		DistanceBetweenAvlsNoHeading:    100.0,
		TerminalDistanceRouteMatching:   100.0,
		AllowableEarly:                  15 * time.Minute,
		AllowableLate:                   90 * time.Minute,
		AllowableEarlyInitial:           10 * time.Minute,
		AllowableLateInitial:            20 * time.Minute,
		EarlyToLateRatio:                3.0,
		AllowableEarlyDeparture:         5 * time.Minute,
		DistanceFromLayoverForED:        180.0,
		TemporalBoundExemption:          2 * time.Minute,
		DeadheadShortDistance:           1000.0,
		DeadheadShortSpeed:              4.0,
		DeadheadLongSpeed:               10.0,
	}
}

func lonCoord(lon float64) geo.Coordinate {
	return geo.NewCoordinate(0, lon)
}

// newTestBlock builds a single-trip block running east along the equator
// from 106.800 to 106.806 with a stop every 0.002 degrees (~222m). The
// trip starts at 08:00 with a layover wait stop at the first terminal;
// every on-route stop path is two ~111m segments of 30s each plus a 10s
// dwell.
func newTestBlock() *routemodel.Block {
	return newTestBlockWithID("B1")
}

func newTestBlockWithID(id string) *routemodel.Block {
	sp0 := routemodel.NewStopPath(routemodel.StopPathConfig{
		StopID:      "S0",
		GtfsStopSeq: 1,
		Points:      []geo.Coordinate{lonCoord(106.800)},
		WaitStop:    true,
		Layover:     true,
		ScheduleTime: routemodel.ScheduleTime{
			ArrivalSecs:   routemodel.NoScheduleTime,
			DepartureSecs: 8 * 3600,
		},
	})
	sp1 := routemodel.NewStopPath(routemodel.StopPathConfig{
		StopID:      "S1",
		GtfsStopSeq: 2,
		Points: []geo.Coordinate{
			lonCoord(106.800), lonCoord(106.801), lonCoord(106.802),
		},
		ScheduleTime: routemodel.ScheduleTime{
			ArrivalSecs:   routemodel.NoScheduleTime,
			DepartureSecs: 8*3600 + 60,
		},
		TravelSegsMsec: []int64{30000, 30000},
		StopTimeMsec:   10000,
		BeforeStopDist: 25,
		AfterStopDist:  25,
	})
	sp2 := routemodel.NewStopPath(routemodel.StopPathConfig{
		StopID:      "S2",
		GtfsStopSeq: 3,
		Points: []geo.Coordinate{
			lonCoord(106.802), lonCoord(106.803), lonCoord(106.804),
		},
		ScheduleTime: routemodel.ScheduleTime{
			ArrivalSecs:   routemodel.NoScheduleTime,
			DepartureSecs: 8*3600 + 180,
		},
		TravelSegsMsec: []int64{30000, 30000},
		StopTimeMsec:   10000,
		BeforeStopDist: 25,
		AfterStopDist:  25,
	})
	sp3 := routemodel.NewStopPath(routemodel.StopPathConfig{
		StopID:      "S3",
		GtfsStopSeq: 4,
		Points: []geo.Coordinate{
			lonCoord(106.804), lonCoord(106.805), lonCoord(106.806),
		},
		ScheduleTime: routemodel.ScheduleTime{
			ArrivalSecs:   8*3600 + 300,
			DepartureSecs: routemodel.NoScheduleTime,
		},
		TravelSegsMsec: []int64{30000, 30000},
		StopTimeMsec:   10000,
		BeforeStopDist: 25,
		AfterStopDist:  25,
	})
	trip := routemodel.NewTrip("T1", "R1", "Eastbound", 8*3600, 8*3600+300, false,
		[]*routemodel.StopPath{sp0, sp1, sp2, sp3})
	return routemodel.NewBlock(id, "weekday", true, []*routemodel.Trip{trip})
}

func tday(hour, min, sec int) time.Time {
	return time.Date(2025, 6, 2, hour, min, sec, 0, time.UTC)
}

func testReport(lon, heading float64, at time.Time) datastructure.AvlReport {
	return datastructure.NewAvlReport("bus-1", at, 0, lon, heading)
}

func testTemporalMatch(block *routemodel.Block, tripIndex, stopPathIndex,
	segmentIndex int, alongSegment float64, at time.Time) *matcher.TemporalMatch {
	spatial := matcher.NewSpatialMatch(at, block, tripIndex, stopPathIndex,
		segmentIndex, 0, alongSegment)
	return matcher.NewTemporalMatch(spatial,
		datastructure.NewTemporalDifference(0, testMatcherConfig().EarlyToLateRatio))
}

// captureOutput collects everything the pipeline publishes. Locked since
// some tests run reports for several vehicles concurrently.
type captureOutput struct {
	mu                sync.Mutex
	arrivalDepartures []datastructure.ArrivalDeparture
	predictions       []datastructure.Prediction
	events            []datastructure.VehicleEvent
}

func (o *captureOutput) PublishArrivalDepartures(ads []datastructure.ArrivalDeparture) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.arrivalDepartures = append(o.arrivalDepartures, ads...)
}

func (o *captureOutput) PublishPredictions(preds []datastructure.Prediction) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.predictions = append(o.predictions, preds...)
}

func (o *captureOutput) PublishEvent(event datastructure.VehicleEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
}

func (o *captureOutput) eventReasons() []datastructure.EventReason {
	o.mu.Lock()
	defer o.mu.Unlock()
	reasons := make([]datastructure.EventReason, 0, len(o.events))
	for _, e := range o.events {
		reasons = append(reasons, e.Reason)
	}
	return reasons
}

func (o *captureOutput) reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.arrivalDepartures = nil
	o.predictions = nil
	o.events = nil
}
