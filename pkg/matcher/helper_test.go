package matcher

import (
	"time"

	"github.com/lintang-b-s/transitx/pkg/datastructure"
	"github.com/lintang-b-s/transitx/pkg/geo"
	"github.com/lintang-b-s/transitx/pkg/routemodel"
)

func testConfig() Config {
	return Config{
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

func noSched() routemodel.ScheduleTime {
	return routemodel.ScheduleTime{
		ArrivalSecs:   routemodel.NoScheduleTime,
		DepartureSecs: routemodel.NoScheduleTime,
	}
}

// newTestBlock builds a single-trip block running east along the equator
// from 106.800 to 106.806, a stop every 0.002 degrees (~222m). The trip
// starts at 08:00 with a layover wait stop at the first terminal.
//
//	sp0  S0  terminal, layover+wait, departs 08:00:00
//	sp1  S1  two ~111m segments, departs 08:01:00
//	sp2  S2  two ~111m segments, departs 08:03:00
//	sp3  S3  two ~111m segments, arrives 08:05:00, end of block
func newTestBlock() *routemodel.Block {
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
	return routemodel.NewBlock("B1", "weekday", true, []*routemodel.Trip{trip})
}

func tday(hour, min, sec int) time.Time {
	return time.Date(2025, 6, 2, hour, min, sec, 0, time.UTC)
}

func testReport(lon, heading float64, at time.Time) datastructure.AvlReport {
	return datastructure.NewAvlReport("bus-1", at, 0, lon, heading)
}
