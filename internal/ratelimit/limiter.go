// Package ratelimit gates post/comment frequency with state that survives
// process restarts.
package ratelimit

import (
	"sync"
	"time"

	"moltbot/internal/logging"
	"moltbot/internal/store"
)

// State is the persisted rate limit record.
type State struct {
	LastPostAt    *time.Time `json:"last_post_at,omitempty"`
	LastCommentAt *time.Time `json:"last_comment_at,omitempty"`
	CommentsToday int        `json:"comments_today"`
	LastResetDate string     `json:"last_reset_date"` // YYYY-MM-DD
}

// Limiter enforces minimum action intervals and the daily comment cap.
// Mutations persist synchronously before returning, so a crash between a
// check and an action cannot silently double-book. Single-process use only.
type Limiter struct {
	mu sync.Mutex

	state State
	file  *store.StateFile

	minPostInterval    time.Duration
	minCommentInterval time.Duration
	dailyCommentCap    int

	now func() time.Time
}

// New loads (or initializes) the limiter backed by the given state file.
func New(file *store.StateFile, minPostInterval, minCommentInterval time.Duration, dailyCommentCap int) (*Limiter, error) {
	l := &Limiter{
		file:               file,
		minPostInterval:    minPostInterval,
		minCommentInterval: minCommentInterval,
		dailyCommentCap:    dailyCommentCap,
		now:                time.Now,
	}
	if file != nil {
		if _, err := file.Load(&l.state); err != nil {
			return nil, err
		}
	}
	if l.state.LastResetDate == "" {
		l.state.LastResetDate = l.now().Format("2006-01-02")
	}
	return l, nil
}

// SetClock overrides the clock source. Intended for tests.
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// resetIfNewDay zeroes the daily comment counter when the calendar date has
// changed since the last reset. Idempotent; must hold l.mu.
func (l *Limiter) resetIfNewDay() {
	today := l.now().Format("2006-01-02")
	if l.state.LastResetDate != today {
		logging.RateLimitDebug("daily reset: %s -> %s (comments were %d)",
			l.state.LastResetDate, today, l.state.CommentsToday)
		l.state.CommentsToday = 0
		l.state.LastResetDate = today
	}
}

// CanPost reports whether a post is currently permitted.
func (l *Limiter) CanPost() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetIfNewDay()

	if l.state.LastPostAt == nil {
		return true
	}
	return l.now().Sub(*l.state.LastPostAt) >= l.minPostInterval
}

// CanComment reports whether a comment is currently permitted.
func (l *Limiter) CanComment() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetIfNewDay()

	if l.state.CommentsToday >= l.dailyCommentCap {
		return false
	}
	if l.state.LastCommentAt == nil {
		return true
	}
	return l.now().Sub(*l.state.LastCommentAt) >= l.minCommentInterval
}

// TimeUntilNextPost returns how long until a post is permitted (zero if now).
func (l *Limiter) TimeUntilNextPost() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetIfNewDay()

	if l.state.LastPostAt == nil {
		return 0
	}
	remaining := l.minPostInterval - l.now().Sub(*l.state.LastPostAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// TimeUntilNextComment returns how long until a comment is permitted. When the
// daily cap is reached this is the time until the next calendar day.
func (l *Limiter) TimeUntilNextComment() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetIfNewDay()

	now := l.now()
	if l.state.CommentsToday >= l.dailyCommentCap {
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).Add(24 * time.Hour)
		return midnight.Sub(now)
	}
	if l.state.LastCommentAt == nil {
		return 0
	}
	remaining := l.minCommentInterval - now.Sub(*l.state.LastCommentAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RecordPost marks a post as made and persists before returning.
func (l *Limiter) RecordPost() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetIfNewDay()

	now := l.now()
	l.state.LastPostAt = &now
	logging.RateLimit("post recorded at %s", now.Format(time.RFC3339))
	return l.persist()
}

// RecordComment marks a comment as made and persists before returning.
func (l *Limiter) RecordComment() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetIfNewDay()

	now := l.now()
	l.state.LastCommentAt = &now
	l.state.CommentsToday++
	logging.RateLimit("comment recorded (%d/%d today)", l.state.CommentsToday, l.dailyCommentCap)
	return l.persist()
}

// Snapshot returns a copy of the current state for status reporting.
func (l *Limiter) Snapshot() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetIfNewDay()
	return l.state
}

// persist writes state to disk. In-memory state stays authoritative even if
// the write fails; the error surfaces to the mutating caller. Must hold l.mu.
func (l *Limiter) persist() error {
	if l.file == nil {
		return nil
	}
	return l.file.Save(&l.state)
}
