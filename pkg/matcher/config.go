package matcher

import (
	"time"

	"github.com/spf13/viper"
)

// Config carries the empirically tuned matching parameters. All of them are
// read from viper so deployments can adjust without rebuilding.
type Config struct {
	// spatial
	MaxDistanceFromSegment          float64
	MaxDistanceForAutoAssigning     float64
	MaxHeadingOffsetFromSeg         float64
	LayoverDistance                 float64
	MaxAvlSpeed                     float64 // meters/sec
	SpatialSearchMarginMeters       float64
	MaxStopPathsAhead               int
	DistanceFromEndOfBlockInitial   float64
	DistanceFromLastStopEndMatching float64
	DistanceBetweenAvlsNoHeading    float64
	TerminalDistanceRouteMatching   float64

	// temporal
	AllowableEarly           time.Duration
	AllowableLate            time.Duration
	AllowableEarlyInitial    time.Duration
	AllowableLateInitial     time.Duration
	EarlyToLateRatio         float64
	AllowableEarlyDeparture  time.Duration
	DistanceFromLayoverForED float64
	TemporalBoundExemption   time.Duration

	// deadheading crow-flies speed model
	DeadheadShortDistance float64
	DeadheadShortSpeed    float64 // meters/sec
	DeadheadLongSpeed     float64 // meters/sec
}

func NewConfig() Config {
	viper.SetDefault("MATCHER_MAX_DISTANCE_FROM_SEGMENT", 60.0)
	viper.SetDefault("MATCHER_MAX_HEADING_OFFSET", 135.0)
	viper.SetDefault("MATCHER_LAYOVER_DISTANCE", 2000.0)
	viper.SetDefault("MATCHER_MAX_AVL_SPEED", 31.3)
	viper.SetDefault("MATCHER_SEARCH_MARGIN_METERS", 200.0)
	viper.SetDefault("MATCHER_MAX_STOP_PATHS_AHEAD", 999)
	viper.SetDefault("MATCHER_MAX_DISTANCE_FOR_AUTO_ASSIGNING", 60.0)
	viper.SetDefault("MATCHER_DISTANCE_FROM_END_OF_BLOCK_INITIAL", 250.0)
	viper.SetDefault("MATCHER_DISTANCE_FROM_LAST_STOP_END_MATCHING", 250.0)
	viper.SetDefault("MATCHER_DISTANCE_BETWEEN_AVLS_NO_HEADING", 100.0)
	viper.SetDefault("MATCHER_TERMINAL_DISTANCE_ROUTE_MATCHING", 100.0)
	viper.SetDefault("MATCHER_ALLOWABLE_EARLY", 15*time.Minute)
	viper.SetDefault("MATCHER_ALLOWABLE_LATE", 90*time.Minute)
	viper.SetDefault("MATCHER_ALLOWABLE_EARLY_INITIAL", 10*time.Minute)
	viper.SetDefault("MATCHER_ALLOWABLE_LATE_INITIAL", 20*time.Minute)
	viper.SetDefault("MATCHER_EARLY_TO_LATE_RATIO", 3.0)
	viper.SetDefault("MATCHER_ALLOWABLE_EARLY_DEPARTURE", 5*time.Minute)
	viper.SetDefault("MATCHER_DISTANCE_FROM_LAYOVER_FOR_EARLY_DEPARTURE", 180.0)
	viper.SetDefault("MATCHER_TEMPORAL_BOUND_EXEMPTION", 2*time.Minute)
	viper.SetDefault("MATCHER_DEADHEAD_SHORT_DISTANCE", 1000.0)
	viper.SetDefault("MATCHER_DEADHEAD_SHORT_SPEED", 4.0)
	viper.SetDefault("MATCHER_DEADHEAD_LONG_SPEED", 10.0)

	return Config{
		MaxDistanceFromSegment:          viper.GetFloat64("MATCHER_MAX_DISTANCE_FROM_SEGMENT"),
		MaxDistanceForAutoAssigning:     viper.GetFloat64("MATCHER_MAX_DISTANCE_FOR_AUTO_ASSIGNING"),
		MaxHeadingOffsetFromSeg:         viper.GetFloat64("MATCHER_MAX_HEADING_OFFSET"),
		LayoverDistance:                 viper.GetFloat64("MATCHER_LAYOVER_DISTANCE"),
		MaxAvlSpeed:                     viper.GetFloat64("MATCHER_MAX_AVL_SPEED"),
		SpatialSearchMarginMeters:       viper.GetFloat64("MATCHER_SEARCH_MARGIN_METERS"),
		MaxStopPathsAhead:               viper.GetInt("MATCHER_MAX_STOP_PATHS_AHEAD"),
		DistanceFromEndOfBlockInitial:   viper.GetFloat64("MATCHER_DISTANCE_FROM_END_OF_BLOCK_INITIAL"),
		DistanceFromLastStopEndMatching: viper.GetFloat64("MATCHER_DISTANCE_FROM_LAST_STOP_END_MATCHING"),
		DistanceBetweenAvlsNoHeading:    viper.GetFloat64("MATCHER_DISTANCE_BETWEEN_AVLS_NO_HEADING"),
		TerminalDistanceRouteMatching:   viper.GetFloat64("MATCHER_TERMINAL_DISTANCE_ROUTE_MATCHING"),
		AllowableEarly:                  viper.GetDuration("MATCHER_ALLOWABLE_EARLY"),
		AllowableLate:                   viper.GetDuration("MATCHER_ALLOWABLE_LATE"),
		AllowableEarlyInitial:           viper.GetDuration("MATCHER_ALLOWABLE_EARLY_INITIAL"),
		AllowableLateInitial:            viper.GetDuration("MATCHER_ALLOWABLE_LATE_INITIAL"),
		EarlyToLateRatio:                viper.GetFloat64("MATCHER_EARLY_TO_LATE_RATIO"),
		AllowableEarlyDeparture:         viper.GetDuration("MATCHER_ALLOWABLE_EARLY_DEPARTURE"),
		DistanceFromLayoverForED:        viper.GetFloat64("MATCHER_DISTANCE_FROM_LAYOVER_FOR_EARLY_DEPARTURE"),
		TemporalBoundExemption:          viper.GetDuration("MATCHER_TEMPORAL_BOUND_EXEMPTION"),
		DeadheadShortDistance:           viper.GetFloat64("MATCHER_DEADHEAD_SHORT_DISTANCE"),
		DeadheadShortSpeed:              viper.GetFloat64("MATCHER_DEADHEAD_SHORT_SPEED"),
		DeadheadLongSpeed:               viper.GetFloat64("MATCHER_DEADHEAD_LONG_SPEED"),
	}
}
