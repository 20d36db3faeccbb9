package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestPoll(min, max time.Duration) (*AdaptivePoll, *time.Time) {
	clock := baseTime
	p := &AdaptivePoll{min: min, max: max, now: func() time.Time { return clock }}
	p.RecordActivity()
	return p, &clock
}

func TestAdaptivePoll_ActivityLevels(t *testing.T) {
	p, _ := newTestPoll(10*time.Second, 5*time.Minute)

	// a fresh scheduler counts as active
	assert.Equal(t, ActivityActive, p.Level())
	assert.Equal(t, 20*time.Second, p.Interval())

	p.RecordActivity()
	p.RecordActivity()
	assert.Equal(t, ActivityBurst, p.Level())
	assert.Equal(t, 10*time.Second, p.Interval())
}

func TestAdaptivePoll_IdleBackoff(t *testing.T) {
	p, clock := newTestPoll(10*time.Second, 5*time.Minute)

	*clock = baseTime.Add(activityWindow + time.Second)
	assert.Equal(t, ActivityIdle, p.Level())
	assert.Equal(t, 80*time.Second, p.Interval())

	*clock = baseTime.Add(2*activityWindow + time.Second)
	assert.Equal(t, 160*time.Second, p.Interval())

	*clock = baseTime.Add(3*activityWindow + time.Second)
	assert.Equal(t, ActivityDeepIdle, p.Level())
	assert.Equal(t, 5*time.Minute, p.Interval())

	// new activity resets the backoff
	p.RecordActivity()
	assert.Equal(t, ActivityActive, p.Level())
	assert.Equal(t, 20*time.Second, p.Interval())
}

func TestAdaptivePoll_FixedWhenDisabled(t *testing.T) {
	p := NewAdaptivePoll(0, time.Minute)
	assert.Equal(t, time.Minute, p.Interval())

	p = NewAdaptivePoll(2*time.Minute, time.Minute)
	for range activityBurstThreshold {
		p.RecordActivity()
	}
	assert.Equal(t, time.Minute, p.Interval())
}

func TestActivityLevelString(t *testing.T) {
	assert.Equal(t, "burst", ActivityBurst.String())
	assert.Equal(t, "deep_idle", ActivityDeepIdle.String())
	assert.Equal(t, "unknown", ActivityLevel(42).String())
}
