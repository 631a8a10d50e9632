package reembed

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock advances by step on every reading.
func fakeClock(step time.Duration) func() time.Time {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		now = now.Add(step)
		return now
	}
}

func TestProgressTracker_Basic(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 100, 10)
	tracker.now = fakeClock(time.Second)

	tracker.Start()
	assert.True(t, tracker.started, "should be started")

	tracker.Advance(25, 0)
	tracker.Advance(25, 1)
	tracker.Advance(50, 2)

	assert.Greater(t, tracker.Elapsed(), time.Duration(0), "elapsed time should be positive")

	output := buf.String()
	assert.Contains(t, output, "100/100 documents", "should show completion")
	assert.Contains(t, output, "100.0%", "should show 100%")
	assert.Contains(t, output, "3 failed")
}

func TestProgressTracker_ReportsRemainingTime(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 100, 10)
	tracker.now = fakeClock(5 * time.Second)

	tracker.Start()
	tracker.Advance(50, 0) // 50 documents in 5s

	assert.Contains(t, buf.String(), "10.0 docs/s")
	assert.Contains(t, buf.String(), "about 5s left")
}

func TestProgressTracker_FinishShowsActualCount(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 100, 10)

	tracker.Start()
	tracker.Advance(75, 0)
	tracker.Finish()

	output := buf.String()
	assert.Contains(t, output, "75/100", "an interrupted run reports what was done")
	assert.Contains(t, output, "\n", "finish should print newline")
}

func TestProgressTracker_ZeroTotal(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 0, 10)

	tracker.Start()
	tracker.Finish()

	output := buf.String()
	assert.Contains(t, output, "0/0", "should handle zero total")
	assert.Contains(t, output, "100.0%")
}

func TestProgressTracker_AdvanceBeyondTotal(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 100, 10)

	tracker.Start()
	tracker.Advance(150, 0)

	assert.Contains(t, buf.String(), "100/100", "should not exceed total")
}

func TestProgressTracker_NotStarted(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 100, 10)

	// Should not panic when not started
	tracker.Advance(10, 0)
	tracker.Finish()

	assert.Equal(t, "", buf.String(), "should have no output when not started")
	assert.Equal(t, time.Duration(0), tracker.Elapsed())
}

func TestProgressTracker_ReportInterval(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 1000, 100)

	tracker.Start()

	tracker.Advance(50, 0)
	assert.Equal(t, "", buf.String(), "should not print under interval")

	tracker.Advance(50, 0)
	assert.NotEmpty(t, buf.String(), "should print at interval")

	buf.Reset()
	tracker.Advance(150, 0)
	assert.NotEmpty(t, buf.String(), "should print beyond interval")
}

func TestProgressTracker_InvalidInterval(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 3, 0)

	tracker.Start()
	tracker.Advance(1, 0)
	assert.Contains(t, buf.String(), "1/3")
}
