package reembed

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fixedClock(start time.Time, step time.Duration) func() time.Time {
	current := start
	return func() time.Time {
		now := current
		current = current.Add(step)
		return now
	}
}

func TestProgressTracker_Basic(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 100, 10)
	tracker.now = fixedClock(time.Unix(0, 0), time.Second)

	tracker.Start()
	tracker.Update(25)
	tracker.Update(50)
	tracker.Update(100)

	assert.Greater(t, tracker.Elapsed(), time.Duration(0))
	output := buf.String()
	assert.Contains(t, output, "100/100 chunks")
	assert.Contains(t, output, "100.0%")
}

func TestProgressTracker_ReportInterval(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 100, 50)

	tracker.Start()
	tracker.Update(10)
	tracker.Update(40)
	assert.Empty(t, buf.String(), "should not report before the interval")

	tracker.Update(60)
	assert.Contains(t, buf.String(), "60/100")

	tracker.Update(90)
	assert.NotContains(t, buf.String(), "90/100")
}

func TestProgressTracker_Finish(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 40, 100)

	tracker.Start()
	tracker.Update(10)
	tracker.Finish()

	output := buf.String()
	assert.Contains(t, output, "40/40")
	assert.True(t, strings.HasSuffix(output, "\n"))
}

func TestProgressTracker_UpdateBeyondTotal(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 10, 1)

	tracker.Start()
	tracker.Update(25)
	assert.Contains(t, buf.String(), "10/10")
	assert.NotContains(t, buf.String(), "25/10")
}

func TestProgressTracker_ZeroTotal(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 0, 0)

	tracker.Start()
	tracker.Finish()
	assert.Contains(t, buf.String(), "0/0 chunks (0.0%)")
}

func TestProgressTracker_NotStarted(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 10, 1)

	tracker.Update(5)
	tracker.Finish()
	assert.Empty(t, buf.String())
	assert.Zero(t, tracker.Elapsed())
}

func TestProgressTracker_Rate(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 20, 20)
	tracker.now = fixedClock(time.Unix(0, 0), 2*time.Second)

	tracker.Start()
	tracker.Update(20)
	assert.Contains(t, buf.String(), "10.0 chunks/s")
}
