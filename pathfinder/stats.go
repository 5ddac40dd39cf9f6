package pathfinder

import (
	"sync"
)

// Stats tracks per-resource historical success rates, fed by the executor
// after each hop and consumed as a path ranking tie-break. Safe for
// concurrent use.
type Stats struct {
	mu     sync.RWMutex
	counts map[string]*resourceCount
}

type resourceCount struct {
	resolved  int64
	attempted int64
}

// NewStats creates an empty stats sink.
func NewStats() *Stats {
	return &Stats{counts: make(map[string]*resourceCount)}
}

// Record adds one hop outcome: how many of the attempted identifiers the
// resource resolved.
func (s *Stats) Record(resource string, resolved, attempted int) {
	if attempted <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counts[resource]
	if !ok {
		c = &resourceCount{}
		s.counts[resource] = c
	}
	c.resolved += int64(resolved)
	c.attempted += int64(attempted)
}

// SuccessRate returns the resource's observed resolution fraction. A
// resource with no history is assumed fully reliable so new resources are
// not penalized before they have a track record.
func (s *Stats) SuccessRate(resource string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.counts[resource]
	if !ok || c.attempted == 0 {
		return 1.0
	}
	return float64(c.resolved) / float64(c.attempted)
}

// InverseSum returns the summed inverse success rate across resources.
// Rates are floored so a fully failing resource contributes a large but
// finite penalty.
func (s *Stats) InverseSum(resources []string) float64 {
	const floor = 0.01
	var sum float64
	for _, r := range resources {
		rate := s.SuccessRate(r)
		if rate < floor {
			rate = floor
		}
		sum += 1.0 / rate
	}
	return sum
}
