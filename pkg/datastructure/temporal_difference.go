package datastructure

import (
	"fmt"
	"math"
	"time"
)

// TemporalDifference is how far a vehicle is from where the schedule says it
// should be. Positive means the vehicle is early, negative means late.
//
// Comparisons are asymmetric: being early is penalized by earlyToLateRatio
// since an early vehicle is much less common than a late one.
type TemporalDifference struct {
	msec             int64
	earlyToLateRatio float64
}

func NewTemporalDifference(msec int64, earlyToLateRatio float64) TemporalDifference {
	return TemporalDifference{
		msec:             msec,
		earlyToLateRatio: earlyToLateRatio,
	}
}

func (td TemporalDifference) Msec() int64 {
	return td.msec
}

func (td TemporalDifference) IsEarly() bool {
	return td.msec > 0
}

func (td TemporalDifference) IsLate() bool {
	return td.msec < 0
}

// EarlySeconds returns how early in seconds, negative when late.
func (td TemporalDifference) EarlySeconds() float64 {
	return float64(td.msec) / 1000.0
}

func (td TemporalDifference) absoluteValue() int64 {
	if td.msec > 0 {
		return int64(math.Round(float64(td.msec) * td.earlyToLateRatio))
	}
	return -td.msec
}

// BetterThan compares using the ratio-adjusted magnitude. A nil other is
// always worse.
func (td TemporalDifference) BetterThan(other *TemporalDifference) bool {
	if other == nil {
		return true
	}
	return td.absoluteValue() < other.absoluteValue()
}

func (td TemporalDifference) BetterThanOrEqualTo(other *TemporalDifference) bool {
	if other == nil {
		return true
	}
	return td.absoluteValue() <= other.absoluteValue()
}

// IsWithinBounds returns whether the difference is inside the allowable
// early/late window.
func (td TemporalDifference) IsWithinBounds(allowableEarly, allowableLate time.Duration) bool {
	return td.msec < allowableEarly.Milliseconds() &&
		-td.msec < allowableLate.Milliseconds()
}

// AddTime shifts the difference toward lateness by the specified amount.
// Used to penalize layover candidates during initial matching.
func (td TemporalDifference) AddTime(msec int64) TemporalDifference {
	td.msec -= msec
	return td
}

func (td TemporalDifference) String() string {
	secs := float64(td.msec) / 1000.0
	switch {
	case td.msec > 0:
		return fmt.Sprintf("%.1fs (early)", secs)
	case td.msec == 0:
		return "0.0s (ontime)"
	default:
		return fmt.Sprintf("%.1fs (late)", -secs)
	}
}
