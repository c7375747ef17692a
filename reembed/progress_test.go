package reembed

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressTracker(t *testing.T) {
	t.Run("prints on interval", func(t *testing.T) {
		var buf bytes.Buffer
		tracker := NewProgressTracker(&buf, 1000, 100, "chunks")
		tracker.Start(0)

		tracker.Increment(50)
		assert.Empty(t, buf.String())
		tracker.Increment(50)
		assert.Contains(t, buf.String(), "100/1000 chunks")
		assert.Contains(t, buf.String(), "10.0%")

		buf.Reset()
		tracker.Increment(99)
		assert.Empty(t, buf.String())
		tracker.Increment(1)
		assert.Contains(t, buf.String(), "200/1000")
	})

	t.Run("finish fills to total", func(t *testing.T) {
		var buf bytes.Buffer
		tracker := NewProgressTracker(&buf, 100, 10, "chunks")
		tracker.Start(0)
		tracker.Increment(75)
		tracker.Finish()

		assert.Equal(t, 100, tracker.Current())
		assert.Contains(t, buf.String(), "100/100")
		assert.Contains(t, buf.String(), "100.0%")
		assert.Contains(t, buf.String(), "chunks/s")
		assert.True(t, strings.HasSuffix(buf.String(), "\n"))

		buf.Reset()
		tracker.Finish()
		assert.Empty(t, buf.String(), "second finish is silent")
	})

	t.Run("caps at total", func(t *testing.T) {
		var buf bytes.Buffer
		tracker := NewProgressTracker(&buf, 100, 10, "")
		tracker.Start(0)
		tracker.Increment(150)

		assert.Equal(t, 100, tracker.Current())
		assert.Contains(t, buf.String(), "items/s")
	})

	t.Run("resumed run", func(t *testing.T) {
		var buf bytes.Buffer
		tracker := NewProgressTracker(&buf, 100, 50, "chunks")
		tracker.Start(40)
		tracker.Increment(10)
		assert.Empty(t, buf.String(), "resumed chunks do not count toward the interval")
		tracker.Increment(40)
		assert.Contains(t, buf.String(), "90/100")
	})

	t.Run("rate excludes resumed chunks", func(t *testing.T) {
		tracker := NewProgressTracker(nil, 100, 10, "chunks")
		tracker.Start(90)
		time.Sleep(5 * time.Millisecond)
		assert.Zero(t, tracker.Rate())
		tracker.Increment(5)
		assert.Positive(t, tracker.Rate())
	})

	t.Run("zero total", func(t *testing.T) {
		var buf bytes.Buffer
		tracker := NewProgressTracker(&buf, 0, 10, "chunks")
		tracker.Start(0)
		tracker.Finish()
		assert.Contains(t, buf.String(), "0/0")
	})

	t.Run("not started", func(t *testing.T) {
		var buf bytes.Buffer
		tracker := NewProgressTracker(&buf, 100, 10, "chunks")
		tracker.Increment(10)
		tracker.Finish()
		assert.Empty(t, buf.String())
		assert.Zero(t, tracker.Elapsed())
		assert.Zero(t, tracker.Rate())
	})
}
