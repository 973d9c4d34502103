package tracker

import (
	"time"

	"github.com/spf13/viper"
)

// Config carries the orchestration parameters: bad-match allowances,
// progress/delay detection windows, event thresholds, sweep cadence and
// prediction horizon. All read from viper so deployments can tune them.
type Config struct {
	// history and bad-match handling
	MatchHistoryMaxSize      int
	AvlHistoryMaxSize        int
	AllowableBadMatches      int
	AllowableBadAssignments  int
	EventHistoryMaxSize      int
	MaxDistanceForAssignGrab float64

	// progress / delay detection
	NoProgressLookback    time.Duration
	NoProgressMinDistance float64
	DelayedLookback       time.Duration
	DelayedMinDistance    float64

	// terminal departure events
	AllowableEarlyDepartureEvent time.Duration
	AllowableLateDepartureEvent  time.Duration

	// arrival/departure generation
	MaxStopsBetweenMatches      int
	MaxStopsWhenNoPreviousMatch int

	// predictions
	PredictionHorizon           time.Duration
	UseArrivalPredsNormalStops  bool
	UseExactSchedTimeForLayover bool
	MaxLateForNextTrips         time.Duration // 0 disables the uncertain marking

	// timeout sweep
	SweepInterval             time.Duration
	AllowableNoAvl            time.Duration
	AllowableNoAvlSchedQueued time.Duration
	WaitStopDepartAllowance   time.Duration

	// staleness cutoffs for history lookups
	AvlHistoryMaxAge      time.Duration
	ReassignToSameBlockIn time.Duration
	ProblematicAssignFor  time.Duration

	// spatial-index prefilter for route/auto assignment, in km
	AssignSearchRadiusKm float64
}

func NewConfig() Config {
	viper.SetDefault("TRACKER_MATCH_HISTORY_MAX_SIZE", 20)
	viper.SetDefault("TRACKER_AVL_HISTORY_MAX_SIZE", 20)
	viper.SetDefault("TRACKER_ALLOWABLE_BAD_MATCHES", 2)
	viper.SetDefault("TRACKER_ALLOWABLE_BAD_ASSIGNMENTS", 0)
	viper.SetDefault("TRACKER_EVENT_HISTORY_MAX_SIZE", 20)
	viper.SetDefault("TRACKER_MAX_DISTANCE_FOR_ASSIGNMENT_GRAB", 10000.0)
	viper.SetDefault("TRACKER_NO_PROGRESS_LOOKBACK", 5*time.Minute)
	viper.SetDefault("TRACKER_NO_PROGRESS_MIN_DISTANCE", 60.0)
	viper.SetDefault("TRACKER_DELAYED_LOOKBACK", 4*time.Minute)
	viper.SetDefault("TRACKER_DELAYED_MIN_DISTANCE", 60.0)
	viper.SetDefault("TRACKER_ALLOWABLE_EARLY_DEPARTURE_EVENT", time.Minute)
	viper.SetDefault("TRACKER_ALLOWABLE_LATE_DEPARTURE_EVENT", 4*time.Minute)
	viper.SetDefault("TRACKER_MAX_STOPS_BETWEEN_MATCHES", 12)
	viper.SetDefault("TRACKER_MAX_STOPS_WHEN_NO_PREVIOUS_MATCH", 4)
	viper.SetDefault("TRACKER_PREDICTION_HORIZON", 45*time.Minute)
	viper.SetDefault("TRACKER_USE_ARRIVAL_PREDS_NORMAL_STOPS", true)
	viper.SetDefault("TRACKER_USE_EXACT_SCHED_TIME_FOR_LAYOVER", true)
	viper.SetDefault("TRACKER_MAX_LATE_FOR_NEXT_TRIPS", time.Duration(0))
	viper.SetDefault("TRACKER_SWEEP_INTERVAL", 30*time.Second)
	viper.SetDefault("TRACKER_ALLOWABLE_NO_AVL", 6*time.Minute)
	viper.SetDefault("TRACKER_ALLOWABLE_NO_AVL_SCHED_QUEUED", 6*time.Minute)
	viper.SetDefault("TRACKER_WAIT_STOP_DEPART_ALLOWANCE", 6*time.Minute)
	viper.SetDefault("TRACKER_AVL_HISTORY_MAX_AGE", 20*time.Minute)
	viper.SetDefault("TRACKER_REASSIGN_TO_SAME_BLOCK_IN", 20*time.Minute)
	viper.SetDefault("TRACKER_PROBLEMATIC_ASSIGN_FOR", 2*time.Hour)
	viper.SetDefault("TRACKER_ASSIGN_SEARCH_RADIUS_KM", 0.5)

	return Config{
		MatchHistoryMaxSize:          viper.GetInt("TRACKER_MATCH_HISTORY_MAX_SIZE"),
		AvlHistoryMaxSize:            viper.GetInt("TRACKER_AVL_HISTORY_MAX_SIZE"),
		AllowableBadMatches:          viper.GetInt("TRACKER_ALLOWABLE_BAD_MATCHES"),
		AllowableBadAssignments:      viper.GetInt("TRACKER_ALLOWABLE_BAD_ASSIGNMENTS"),
		EventHistoryMaxSize:          viper.GetInt("TRACKER_EVENT_HISTORY_MAX_SIZE"),
		MaxDistanceForAssignGrab:     viper.GetFloat64("TRACKER_MAX_DISTANCE_FOR_ASSIGNMENT_GRAB"),
		NoProgressLookback:           viper.GetDuration("TRACKER_NO_PROGRESS_LOOKBACK"),
		NoProgressMinDistance:        viper.GetFloat64("TRACKER_NO_PROGRESS_MIN_DISTANCE"),
		DelayedLookback:              viper.GetDuration("TRACKER_DELAYED_LOOKBACK"),
		DelayedMinDistance:           viper.GetFloat64("TRACKER_DELAYED_MIN_DISTANCE"),
		AllowableEarlyDepartureEvent: viper.GetDuration("TRACKER_ALLOWABLE_EARLY_DEPARTURE_EVENT"),
		AllowableLateDepartureEvent:  viper.GetDuration("TRACKER_ALLOWABLE_LATE_DEPARTURE_EVENT"),
		MaxStopsBetweenMatches:       viper.GetInt("TRACKER_MAX_STOPS_BETWEEN_MATCHES"),
		MaxStopsWhenNoPreviousMatch:  viper.GetInt("TRACKER_MAX_STOPS_WHEN_NO_PREVIOUS_MATCH"),
		PredictionHorizon:            viper.GetDuration("TRACKER_PREDICTION_HORIZON"),
		UseArrivalPredsNormalStops:   viper.GetBool("TRACKER_USE_ARRIVAL_PREDS_NORMAL_STOPS"),
		UseExactSchedTimeForLayover:  viper.GetBool("TRACKER_USE_EXACT_SCHED_TIME_FOR_LAYOVER"),
		MaxLateForNextTrips:          viper.GetDuration("TRACKER_MAX_LATE_FOR_NEXT_TRIPS"),
		SweepInterval:                viper.GetDuration("TRACKER_SWEEP_INTERVAL"),
		AllowableNoAvl:               viper.GetDuration("TRACKER_ALLOWABLE_NO_AVL"),
		AllowableNoAvlSchedQueued:    viper.GetDuration("TRACKER_ALLOWABLE_NO_AVL_SCHED_QUEUED"),
		WaitStopDepartAllowance:      viper.GetDuration("TRACKER_WAIT_STOP_DEPART_ALLOWANCE"),
		AvlHistoryMaxAge:             viper.GetDuration("TRACKER_AVL_HISTORY_MAX_AGE"),
		ReassignToSameBlockIn:        viper.GetDuration("TRACKER_REASSIGN_TO_SAME_BLOCK_IN"),
		ProblematicAssignFor:         viper.GetDuration("TRACKER_PROBLEMATIC_ASSIGN_FOR"),
		AssignSearchRadiusKm:         viper.GetFloat64("TRACKER_ASSIGN_SEARCH_RADIUS_KM"),
	}
}
