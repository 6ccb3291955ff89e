package dedup

import "time"

// progressGate throttles human-readable progress lines during long
// phases to at most once per minute of wall-clock time.
type progressGate struct {
	next time.Time
}

func newProgressGate() *progressGate {
	g := &progressGate{}
	g.reset(time.Now())
	return g
}

// shouldPrint reports whether enough time has passed since the last
// reset to print another progress line.
func (g *progressGate) shouldPrint(now time.Time) bool {
	return !now.Before(g.next)
}

// reset arms the next threshold 60 seconds out from now.
func (g *progressGate) reset(now time.Time) {
	g.next = now.Add(60 * time.Second)
}
