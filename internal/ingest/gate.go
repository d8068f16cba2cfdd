package ingest

import "time"

// FreshnessWindow is the minimum age of the newest stored reading before a
// new fetch cycle is worth running.
const FreshnessWindow = 300 * time.Second

// FreshnessGate decides whether a fetch cycle should run at all, given the
// newest stored reading's timestamp. Both sides of the comparison are
// normalized to the same civil zone; naive-vs-aware mixups are exactly the
// defect class this type exists to prevent.
type FreshnessGate struct {
	loc    *time.Location
	window time.Duration
}

func NewFreshnessGate(loc *time.Location) *FreshnessGate {
	return &FreshnessGate{loc: loc, window: FreshnessWindow}
}

// ShouldFetch reports whether a cycle should run. A nil last reading means
// cold start and always fetches.
func (g *FreshnessGate) ShouldFetch(last *time.Time, now time.Time) bool {
	if last == nil {
		return true
	}
	return g.Elapsed(*last, now) >= g.window
}

// Elapsed returns the zone-normalized age of the last reading.
func (g *FreshnessGate) Elapsed(last, now time.Time) time.Duration {
	return now.In(g.loc).Sub(last.In(g.loc))
}
