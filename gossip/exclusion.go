package gossip

import (
	"sync"
	"time"
)

// exclusionEntry tracks one peer's score and backoff window.
type exclusionEntry struct {
	score      int
	excludedAt time.Time
	until      time.Duration
}

const (
	// maxExclusionScore caps a peer's failure score (original source:
	// peer_exclusion.cpp max_score).
	maxExclusionScore = 100
	// exclusionScoreThreshold is the score at which a peer becomes
	// excluded for its current backoff window.
	exclusionScoreThreshold = 4
	baseExclusionBackoff    = 5 * time.Minute
	maxExclusionBackoff     = 24 * time.Hour
)

// Exclusion is a small scored-backoff table the gossip layer consults
// before reconnecting to a peer that has recently sent invalid votes or
// blocks (supplemented feature, original source node/peer_exclusion.cpp).
// Wired from vote.Processor's bad-signature counter and from block
// validation failures.
type Exclusion struct {
	mu      sync.Mutex
	entries map[string]*exclusionEntry
	now     func() time.Time
}

// NewExclusion builds an empty exclusion table.
func NewExclusion() *Exclusion {
	return &Exclusion{entries: make(map[string]*exclusionEntry), now: time.Now}
}

// RecordFailure increments addr's score and, once it crosses the
// threshold, excludes it for an exponentially growing backoff window.
func (e *Exclusion) RecordFailure(addr string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.entries[addr]
	if !ok {
		ent = &exclusionEntry{until: baseExclusionBackoff}
		e.entries[addr] = ent
	}
	if ent.score < maxExclusionScore {
		ent.score++
	}
	if ent.score >= exclusionScoreThreshold {
		ent.excludedAt = e.now()
		if ent.until < maxExclusionBackoff {
			ent.until *= 2
			if ent.until > maxExclusionBackoff {
				ent.until = maxExclusionBackoff
			}
		}
	}
}

// RecordSuccess halves addr's score, letting well-behaved peers recover.
func (e *Exclusion) RecordSuccess(addr string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.entries[addr]
	if !ok {
		return
	}
	ent.score /= 2
}

// IsExcluded reports whether addr is currently within its backoff window.
func (e *Exclusion) IsExcluded(addr string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.entries[addr]
	if !ok || ent.score < exclusionScoreThreshold {
		return false
	}
	return e.now().Sub(ent.excludedAt) < ent.until
}

// Score returns addr's current failure score (test/diagnostic use).
func (e *Exclusion) Score(addr string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ent, ok := e.entries[addr]; ok {
		return ent.score
	}
	return 0
}
