package cache

import (
	"fmt"
	"sync/atomic"
	"time"
)

// HitRateNotApplicable is reported when no reads have happened yet.
const HitRateNotApplicable = "N/A"

// Stats holds the engine's process-wide counters. The counters are atomic
// so reads and writes never serialize on the engine lock to update them.
type Stats struct {
	hits     atomic.Uint64
	misses   atomic.Uint64
	commands atomic.Uint64
}

func (s *Stats) RecordHit()     { s.hits.Add(1) }
func (s *Stats) RecordMiss()    { s.misses.Add(1) }
func (s *Stats) RecordCommand() { s.commands.Add(1) }

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	Hits              uint64
	Misses            uint64
	CommandsProcessed uint64
	HitRate           string
}

// Snapshot reads the counters without side effects.
func (s *Stats) Snapshot() StatsSnapshot {
	hits, misses := s.hits.Load(), s.misses.Load()
	return StatsSnapshot{
		Hits:              hits,
		Misses:            misses,
		CommandsProcessed: s.commands.Load(),
		HitRate:           FormatHitRate(hits, misses),
	}
}

// FormatHitRate renders hits/(hits+misses) as a percentage with two
// decimals, e.g. "75.00%", or HitRateNotApplicable when there were no reads.
func FormatHitRate(hits, misses uint64) string {
	total := hits + misses
	if total == 0 {
		return HitRateNotApplicable
	}
	return fmt.Sprintf("%.2f%%", float64(hits)/float64(total)*100)
}

// EngineStats is the result of Engine.Stats.
type EngineStats struct {
	StatsSnapshot
	Keys         int
	ExpiringKeys int
	StartedAt    time.Time
	Uptime       time.Duration
}
