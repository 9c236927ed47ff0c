package ingestion

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newBufferLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, nil))
}

func TestProgressTracker_Basic(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(newBufferLogger(&buf), 100, 10)

	tracker.Start()
	tracker.Increment(25)
	tracker.Increment(25)
	tracker.Increment(50)

	assert.Equal(t, 100, tracker.Current())
	output := buf.String()
	assert.Contains(t, output, "current=100")
	assert.Contains(t, output, "total=100")
}

func TestProgressTracker_ReportInterval(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(newBufferLogger(&buf), 100, 50)

	tracker.Start()
	for i := 0; i < 49; i++ {
		tracker.Increment(1)
	}
	assert.Empty(t, buf.String(), "should not report before the interval")

	tracker.Increment(1)
	assert.Equal(t, 1, strings.Count(buf.String(), "msg=progress"))
}

func TestProgressTracker_CapsAtTotal(t *testing.T) {
	tracker := NewProgressTracker(slog.New(slog.DiscardHandler), 10, 100)
	tracker.Start()
	tracker.Increment(25)
	assert.Equal(t, 10, tracker.Current())
}

func TestProgressTracker_NotStarted(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(newBufferLogger(&buf), 10, 1)

	tracker.Increment(5)
	tracker.Finish()

	assert.Zero(t, tracker.Current())
	assert.Zero(t, tracker.Elapsed())
	assert.Empty(t, buf.String())
}

func TestProgressTracker_Finish(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(newBufferLogger(&buf), 100, 1000)

	tracker.Start()
	tracker.Increment(75)
	tracker.Finish()

	assert.Contains(t, buf.String(), "current=100")
	assert.Contains(t, buf.String(), "percent=100")
}

func TestProgressTracker_ElapsedAfterFinish(t *testing.T) {
	tracker := NewProgressTracker(slog.New(slog.DiscardHandler), 10, 5)

	tracker.Start()
	time.Sleep(20 * time.Millisecond)
	tracker.Finish()

	elapsed := tracker.Elapsed()
	assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, elapsed, tracker.Elapsed(), "elapsed is frozen once finished")
}
