package stream

import (
	"sync"
	"time"
)

// endpointSet tracks per-domain failure counts and reorders candidates once a
// domain crosses the failure threshold. An unhealthy domain is retried only
// after its cooldown elapses.
type endpointSet struct {
	mu            sync.Mutex
	domains       []string
	failures      map[string]int
	cooldownUntil map[string]time.Time
	threshold     int
	cooldown      time.Duration
}

func newEndpointSet(domains []string, threshold int, cooldown time.Duration) *endpointSet {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 5 * time.Minute
	}
	return &endpointSet{
		domains:       append([]string(nil), domains...),
		failures:      make(map[string]int),
		cooldownUntil: make(map[string]time.Time),
		threshold:     threshold,
		cooldown:      cooldown,
	}
}

// pick returns the healthiest usable domain. Domains past the threshold are
// skipped until their cooldown expires; if everything is cooling down the
// least-failed one is used anyway.
func (s *endpointSet) pick() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.domains) == 0 {
		return ""
	}

	now := time.Now()
	best := ""
	bestFails := -1
	for _, d := range s.domains {
		if s.failures[d] >= s.threshold && now.Before(s.cooldownUntil[d]) {
			continue
		}
		if bestFails < 0 || s.failures[d] < bestFails {
			best, bestFails = d, s.failures[d]
		}
	}
	if best != "" {
		return best
	}

	// all cooling down: take the least bad
	for _, d := range s.domains {
		if bestFails < 0 || s.failures[d] < bestFails {
			best, bestFails = d, s.failures[d]
		}
	}
	return best
}

func (s *endpointSet) fail(domain string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures[domain]++
	if s.failures[domain] >= s.threshold {
		s.cooldownUntil[domain] = time.Now().Add(s.cooldown)
	}
}

func (s *endpointSet) success(domain string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures[domain] = 0
	delete(s.cooldownUntil, domain)
}

func (s *endpointSet) fails(domain string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures[domain]
}
