package datastructure

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTemporalDifferenceBetterThan(t *testing.T) {
	testCases := []struct {
		name     string
		diff     TemporalDifference
		other    TemporalDifference
		expected bool
	}{
		{
			name:     "small late beats large late",
			diff:     NewTemporalDifference(-30000, 3.0),
			other:    NewTemporalDifference(-60000, 3.0),
			expected: true,
		},
		{
			name:     "late beats equally sized early because of the ratio",
			diff:     NewTemporalDifference(-60000, 3.0),
			other:    NewTemporalDifference(60000, 3.0),
			expected: true,
		},
		{
			name:     "early loses against a late three times its size",
			diff:     NewTemporalDifference(60000, 3.0),
			other:    NewTemporalDifference(-180000, 3.0),
			expected: false,
		},
		{
			name:     "small early still beats a much larger late",
			diff:     NewTemporalDifference(10000, 3.0),
			other:    NewTemporalDifference(-120000, 3.0),
			expected: true,
		},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.diff.BetterThan(&tt.other))
		})
	}
}

func TestTemporalDifferenceBetterThanNilIsAlwaysWorse(t *testing.T) {
	diff := NewTemporalDifference(-90*60*1000, 3.0)
	assert.True(t, diff.BetterThan(nil))
	assert.True(t, diff.BetterThanOrEqualTo(nil))
}

func TestTemporalDifferenceIsWithinBounds(t *testing.T) {
	testCases := []struct {
		name     string
		msec     int64
		expected bool
	}{
		{name: "on time", msec: 0, expected: true},
		{name: "slightly early", msec: 4 * 60 * 1000, expected: true},
		{name: "too early", msec: 5 * 60 * 1000, expected: false},
		{name: "slightly late", msec: -29 * 60 * 1000, expected: true},
		{name: "too late", msec: -30 * 60 * 1000, expected: false},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			diff := NewTemporalDifference(tt.msec, 3.0)
			assert.Equal(t, tt.expected,
				diff.IsWithinBounds(5*time.Minute, 30*time.Minute))
		})
	}
}

func TestTemporalDifferenceAddTimeShiftsTowardLateness(t *testing.T) {
	diff := NewTemporalDifference(10000, 3.0)
	shifted := diff.AddTime(25000)
	assert.Equal(t, int64(-15000), shifted.Msec())
	assert.True(t, shifted.IsLate())
	// the original value type is unchanged
	assert.Equal(t, int64(10000), diff.Msec())
}

func TestAvlReportAssignment(t *testing.T) {
	report := NewAvlReport("bus-1", time.Date(2025, 6, 2, 8, 30, 0, 0, time.UTC),
		-6.2, 106.8, 90)
	assert.False(t, report.HasAssignment())

	withBlock := report.WithAssignment("blk-7", AssignmentBlockID)
	assert.True(t, withBlock.HasAssignment())
	assert.Equal(t, "BLOCK_ID", withBlock.AssignmentType.String())
	// WithAssignment copies, the original report is untouched
	assert.False(t, report.HasAssignment())

	assert.Equal(t, 8*3600+30*60, withBlock.SecondsIntoDay())
}
