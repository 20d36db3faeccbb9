package sync

import (
	"sync"
	"time"
)

const (
	// sliding window for activity detection
	activityWindow = 5 * time.Minute
	// changes in window for burst
	activityBurstThreshold = 3
)

// ActivityLevel represents how busy the notes have been lately
type ActivityLevel int

const (
	ActivityBurst    ActivityLevel = iota // several changing runs in the window
	ActivityActive                        // at least one change in the window
	ActivityIdle                          // backing off
	ActivityDeepIdle                      // polling at the maximum interval
)

func (a ActivityLevel) String() string {
	switch a {
	case ActivityBurst:
		return "burst"
	case ActivityActive:
		return "active"
	case ActivityIdle:
		return "idle"
	case ActivityDeepIdle:
		return "deep_idle"
	default:
		return "unknown"
	}
}

// AdaptivePoll spaces the remote checks of watch mode. Recent changes keep
// the interval near min; every quiet window doubles it, up to max.
type AdaptivePoll struct {
	mu           sync.Mutex
	min          time.Duration
	max          time.Duration
	now          func() time.Time
	lastActivity time.Time
	events       []time.Time
}

// NewAdaptivePoll returns a scheduler that starts out active. A min of zero,
// or one above max, disables adaptation and always yields max.
func NewAdaptivePoll(min, max time.Duration) *AdaptivePoll {
	if min <= 0 || min > max {
		min = max
	}
	p := &AdaptivePoll{
		min:    min,
		max:    max,
		now:    time.Now,
		events: make([]time.Time, 0, activityBurstThreshold*2),
	}
	p.RecordActivity()
	return p
}

// RecordActivity registers a change seen on either side.
func (p *AdaptivePoll) RecordActivity() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	p.lastActivity = now
	p.events = append(p.events, now)
	p.prune(now)
}

// Interval returns the time until the next remote check.
func (p *AdaptivePoll) Interval() time.Duration {
	d, _ := p.state()
	return d
}

func (p *AdaptivePoll) Level() ActivityLevel {
	_, level := p.state()
	return level
}

func (p *AdaptivePoll) state() (time.Duration, ActivityLevel) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	p.prune(now)

	switch n := len(p.events); {
	case n >= activityBurstThreshold:
		return p.min, ActivityBurst
	case n > 0:
		return min(2*p.min, p.max), ActivityActive
	}

	// one doubling per quiet window since the last activity
	steps := 2 + int(now.Sub(p.lastActivity)/activityWindow)
	d := p.min
	for i := 0; i < steps && d < p.max; i++ {
		d *= 2
	}
	if d >= p.max {
		return p.max, ActivityDeepIdle
	}
	return d, ActivityIdle
}

// prune drops events that left the activity window.
func (p *AdaptivePoll) prune(now time.Time) {
	cutoff := now.Add(-activityWindow)
	keep := 0
	for keep < len(p.events) && !p.events[keep].After(cutoff) {
		keep++
	}
	p.events = p.events[keep:]
}
