// Package score implements the point economy core: message activity
// tracking, flood detection and the checkin reward draws.
package score

import "sync"

// DefaultFloodStreak is the number of consecutive same-user messages
// tolerated before the next one triggers a warning.
const DefaultFloodStreak = 5

// Tracker records per-user message counts and the current
// consecutive-message streak within a settlement window.
//
// The state is process-wide and transient: it is reset on restart and
// drained by every settlement. Only strict adjacency in the observed
// message sequence matters for flood detection; a message from any
// other user fully resets the streak. Aggregate volume is handled
// separately by settlement.
type Tracker struct {
	mu               sync.Mutex
	lastUserID       int64
	consecutiveCount int
	messageCounts    map[int64]int
	floodStreak      int
}

// NewTracker creates a Tracker. floodStreak <= 0 falls back to
// DefaultFloodStreak.
func NewTracker(floodStreak int) *Tracker {
	if floodStreak <= 0 {
		floodStreak = DefaultFloodStreak
	}
	return &Tracker{
		messageCounts: make(map[int64]int),
		floodStreak:   floodStreak,
	}
}

// Observe records one message from userID and reports whether it is
// the message that crosses the flood threshold.
//
// A speaker change resets the streak to 1 and counts one message for
// the new speaker. Repeats from the same speaker only grow the streak;
// once it exceeds the threshold the streak resets to 0 so the flooder
// is not warned again on every subsequent message.
func (t *Tracker) Observe(userID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.lastUserID != userID {
		t.lastUserID = userID
		t.consecutiveCount = 1
		t.messageCounts[userID]++
		return false
	}

	t.consecutiveCount++
	if t.consecutiveCount > t.floodStreak {
		t.consecutiveCount = 0
		return true
	}
	return false
}

// Drain atomically removes and returns all accumulated message counts.
// The returned map is owned by the caller.
func (t *Tracker) Drain() map[int64]int {
	t.mu.Lock()
	defer t.mu.Unlock()

	counts := t.messageCounts
	t.messageCounts = make(map[int64]int)
	return counts
}

// Restore merges previously drained counts back into the tracker.
// Used when a settlement batch write fails: the activity is not lost,
// it is carried into the next settlement cycle.
func (t *Tracker) Restore(counts map[int64]int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for userID, n := range counts {
		t.messageCounts[userID] += n
	}
}

// Pending returns the number of users with tracked activity.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messageCounts)
}
