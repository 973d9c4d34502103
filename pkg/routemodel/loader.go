package routemodel

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/lintang-b-s/transitx/pkg/geo"
	"github.com/lintang-b-s/transitx/pkg/util"
	"go.uber.org/zap"
)

type stopPathJSON struct {
	StopID         string       `json:"stopId"`
	StopName       string       `json:"stopName,omitempty"`
	GtfsStopSeq    int          `json:"gtfsStopSeq"`
	Points         [][2]float64 `json:"points"`
	WaitStop       bool         `json:"waitStop,omitempty"`
	Layover        bool         `json:"layover,omitempty"`
	ArrivalSecs    *int         `json:"arrivalSecs,omitempty"`
	DepartureSecs  *int         `json:"departureSecs,omitempty"`
	BreakTimeSecs  int          `json:"breakTimeSecs,omitempty"`
	BeforeStopDist float64      `json:"beforeStopDist,omitempty"`
	AfterStopDist  float64      `json:"afterStopDist,omitempty"`
	TravelSegsMsec []int64      `json:"travelSegsMsec,omitempty"`
	StopTimeMsec   int64        `json:"stopTimeMsec,omitempty"`
	MaxSegmentDist float64      `json:"maxSegmentDist,omitempty"`
}

type tripJSON struct {
	ID         string         `json:"id"`
	RouteID    string         `json:"routeId"`
	Headsign   string         `json:"headsign,omitempty"`
	StartSecs  int            `json:"startSecs"`
	EndSecs    int            `json:"endSecs"`
	NoSchedule bool           `json:"noSchedule,omitempty"`
	StopPaths  []stopPathJSON `json:"stopPaths"`
}

type blockJSON struct {
	ID        string     `json:"id"`
	ServiceID string     `json:"serviceId"`
	Exclusive bool       `json:"exclusive,omitempty"`
	Trips     []tripJSON `json:"trips"`
}

type modelJSON struct {
	Revision string      `json:"revision"`
	Blocks   []blockJSON `json:"blocks"`
}

// Load reads a route-model snapshot file, bzip2 compressed when the file
// name ends in .bz2, and builds the immutable in-memory model.
func Load(path string, log *zap.Logger) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, util.WrapErrorf(err, util.ErrNotFound, "routemodel.Load: open %s", path)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".bz2") {
		bz, err := bzip2.NewReader(f, nil)
		if err != nil {
			return nil, util.WrapErrorf(err, util.ErrBadParamInput, "routemodel.Load: bzip2 %s", path)
		}
		defer bz.Close()
		r = bz
	}

	var file modelJSON
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, util.WrapErrorf(err, util.ErrBadParamInput, "routemodel.Load: decode %s", path)
	}

	blocks := make([]*Block, 0, len(file.Blocks))
	for _, bj := range file.Blocks {
		trips := make([]*Trip, 0, len(bj.Trips))
		for _, tj := range bj.Trips {
			stopPaths := make([]*StopPath, 0, len(tj.StopPaths))
			for _, spj := range tj.StopPaths {
				points := make([]geo.Coordinate, 0, len(spj.Points))
				for _, p := range spj.Points {
					points = append(points, geo.NewCoordinate(p[0], p[1]))
				}
				sched := ScheduleTime{ArrivalSecs: NoScheduleTime, DepartureSecs: NoScheduleTime}
				if spj.ArrivalSecs != nil {
					sched.ArrivalSecs = *spj.ArrivalSecs
				}
				if spj.DepartureSecs != nil {
					sched.DepartureSecs = *spj.DepartureSecs
				}
				stopPaths = append(stopPaths, NewStopPath(StopPathConfig{
					StopID:         spj.StopID,
					StopName:       spj.StopName,
					GtfsStopSeq:    spj.GtfsStopSeq,
					Points:         points,
					WaitStop:       spj.WaitStop,
					Layover:        spj.Layover,
					ScheduleTime:   sched,
					BreakTimeSecs:  spj.BreakTimeSecs,
					BeforeStopDist: spj.BeforeStopDist,
					AfterStopDist:  spj.AfterStopDist,
					TravelSegsMsec: spj.TravelSegsMsec,
					StopTimeMsec:   spj.StopTimeMsec,
					MaxSegmentDist: spj.MaxSegmentDist,
				}))
			}
			if len(stopPaths) == 0 {
				log.Warn("skipping trip with no stop paths",
					zap.String("blockId", bj.ID), zap.String("tripId", tj.ID))
				continue
			}
			trips = append(trips, NewTrip(tj.ID, tj.RouteID, tj.Headsign,
				tj.StartSecs, tj.EndSecs, tj.NoSchedule, stopPaths))
		}
		if len(trips) == 0 {
			log.Warn("skipping block with no trips", zap.String("blockId", bj.ID))
			continue
		}
		blocks = append(blocks, NewBlock(bj.ID, bj.ServiceID, bj.Exclusive, trips))
	}

	m := NewModel(file.Revision, blocks)
	log.Info("route model loaded",
		zap.String("revision", file.Revision),
		zap.Int("blocks", len(blocks)))
	return m, nil
}
