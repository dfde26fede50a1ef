package campaign

import (
	"math/rand"
	"regexp"
	"sync"
	"time"
)

// rateLimitPattern classifies provider errors that indicate throttling or a
// ban. Only these count toward the pause threshold; anything else resets the
// consecutive-error counter so unrelated failures never pause a line.
var rateLimitPattern = regexp.MustCompile(`(?i)rate.?limit|too.?many|overlimit|429|spam|flood|blocked|banned|ban\b`)

// IsRateLimitError reports whether a send error looks like provider
// throttling.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	return rateLimitPattern.MatchString(err.Error())
}

type backoffState struct {
	consecutiveErrors int
	lastErrorAt       time.Time
	pausedUntil       time.Time
}

// ThrottleRegistry tracks per-connection backoff state. Process-local by
// design: state is not persisted and resets on restart. It is injected into
// the dispatch stage rather than living in package globals so a distributed
// implementation can replace it later.
type ThrottleRegistry struct {
	mu     sync.Mutex
	states map[int64]*backoffState
	rnd    func(n int) int
}

func NewThrottleRegistry() *ThrottleRegistry {
	return &ThrottleRegistry{
		states: make(map[int64]*backoffState),
		rnd:    rand.Intn,
	}
}

// NewThrottleRegistryWithRand injects the jitter source (tests).
func NewThrottleRegistryWithRand(rnd func(n int) int) *ThrottleRegistry {
	return &ThrottleRegistry{states: make(map[int64]*backoffState), rnd: rnd}
}

// RecordError updates a connection's backoff state after a failed send.
// Rate-limit-classified errors increment the consecutive counter; reaching
// threshold opens a pause window of the given duration. Non-qualifying
// errors reset the counter. Returns true when this call tripped the pause.
func (r *ThrottleRegistry) RecordError(connID int64, err error, threshold int, pause time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.states[connID]
	if st == nil {
		st = &backoffState{}
		r.states[connID] = st
	}
	now := time.Now()
	st.lastErrorAt = now

	if !IsRateLimitError(err) {
		st.consecutiveErrors = 0
		return false
	}

	st.consecutiveErrors++
	if threshold > 0 && st.consecutiveErrors >= threshold && now.After(st.pausedUntil) {
		st.pausedUntil = now.Add(pause)
		return true
	}
	return false
}

// RecordSuccess resets the consecutive-error counter after any successful
// send.
func (r *ThrottleRegistry) RecordSuccess(connID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st := r.states[connID]; st != nil {
		st.consecutiveErrors = 0
	}
}

// PauseRemaining returns how long the connection is still paused, zero when
// it is not.
func (r *ThrottleRegistry) PauseRemaining(connID int64, now time.Time) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.states[connID]
	if st == nil || !st.pausedUntil.After(now) {
		return 0
	}
	return st.pausedUntil.Sub(now)
}

// ConsecutiveErrors returns the current counter for a connection.
func (r *ThrottleRegistry) ConsecutiveErrors(connID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st := r.states[connID]; st != nil {
		return st.consecutiveErrors
	}
	return 0
}

// jitter returns a uniform duration in [lo, hi) milliseconds.
func (r *ThrottleRegistry) jitter(lo, hi int) time.Duration {
	return time.Duration(lo+r.rnd(hi-lo)) * time.Millisecond
}

// BackoffDefer returns the deferral for a paused connection: remaining pause
// plus jitter in [250,1000) ms, or zero when not paused.
func (r *ThrottleRegistry) BackoffDefer(connID int64, now time.Time) time.Duration {
	remaining := r.PauseRemaining(connID, now)
	if remaining <= 0 {
		return 0
	}
	return remaining + r.jitter(250, 1000)
}

// CapDefer computes the cap deferral for a connection. A reached hourly cap
// defers past the next hour boundary plus jitter in [250,1250) ms; a reached
// daily cap defers past the next calendar-day boundary plus jitter in
// [1000,5000) ms. The larger of the two wins.
func (r *ThrottleRegistry) CapDefer(now time.Time, hourlyCount, hourlyCap, dailyCount, dailyCap int64) time.Duration {
	var hourly, daily time.Duration
	if hourlyCap > 0 && hourlyCount >= hourlyCap {
		nextHour := now.Truncate(time.Hour).Add(time.Hour)
		hourly = nextHour.Sub(now) + r.jitter(250, 1250)
	}
	if dailyCap > 0 && dailyCount >= dailyCap {
		y, m, d := now.Date()
		nextDay := time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
		daily = nextDay.Sub(now) + r.jitter(1000, 5000)
	}
	if daily > hourly {
		return daily
	}
	return hourly
}

// HourWindowStart returns the start of the current hourly cap window.
func HourWindowStart(now time.Time) time.Time {
	return now.Truncate(time.Hour)
}

// DayWindowStart returns the start of the current calendar-day cap window.
func DayWindowStart(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}
