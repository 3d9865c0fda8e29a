package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/progress-sync/internal/progress"
)

func TestZoneUsesLocalCalendarDate(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*60*60)
	z := NewZone(loc)
	z.now = func() time.Time { return time.Date(2024, 6, 30, 21, 0, 0, 0, time.UTC) }

	assert.Equal(t, progress.Date("2024-07-01"), z.Today())
}

func TestLoadZone(t *testing.T) {
	_, err := LoadZone("")
	require.NoError(t, err)

	_, err = LoadZone("Not/AZone")
	assert.Error(t, err)
}

func TestFixedAdvance(t *testing.T) {
	f := NewFixed("2024-12-31")
	f.Advance(1)
	assert.Equal(t, progress.Date("2025-01-01"), f.Today())
}

func TestManualFiresInDeadlineOrder(t *testing.T) {
	m := NewManual()
	var fired []string

	m.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })
	m.AfterFunc(time.Second, func() { fired = append(fired, "a") })
	stopped := m.AfterFunc(time.Second, func() { fired = append(fired, "never") })
	assert.True(t, stopped.Stop())
	assert.False(t, stopped.Stop())

	m.Advance(1500 * time.Millisecond)
	assert.Equal(t, []string{"a"}, fired)
	assert.Equal(t, 1, m.Pending())

	m.Advance(time.Second)
	assert.Equal(t, []string{"a", "b"}, fired)
	assert.Equal(t, 0, m.Pending())
}

func TestManualFiresTimersScheduledByCallbacks(t *testing.T) {
	m := NewManual()
	count := 0
	m.AfterFunc(time.Second, func() {
		count++
		m.AfterFunc(time.Second, func() { count++ })
	})

	m.Advance(3 * time.Second)
	assert.Equal(t, 2, count)
}
