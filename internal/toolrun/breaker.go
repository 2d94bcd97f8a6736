package toolrun

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// Breaker is the per-domain circuit breaker. Consecutive failures past
// the threshold open the circuit for that domain; any success closes
// it again.
type Breaker struct {
	mu        sync.Mutex
	failures  map[string]int
	threshold int
}

// NewBreaker creates a breaker. Threshold defaults to 5.
func NewBreaker(threshold int) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	return &Breaker{failures: make(map[string]int), threshold: threshold}
}

// Open reports whether calls for the domain are currently suppressed.
func (b *Breaker) Open(domain string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures[domain] >= b.threshold
}

// RecordFailure increments the domain's failure counter.
func (b *Breaker) RecordFailure(domain string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[domain]++
}

// RecordSuccess resets the domain's failure counter.
func (b *Breaker) RecordSuccess(domain string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.failures, domain)
}

// Failures returns the current counter for a domain.
func (b *Breaker) Failures(domain string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures[domain]
}

// DomainFor derives the breaker key for a call: the hostname when a
// parameter carries a URL, otherwise the tool name.
func DomainFor(tool string, params map[string]any) string {
	for _, value := range params {
		text, ok := value.(string)
		if !ok {
			continue
		}
		if !strings.HasPrefix(text, "http://") && !strings.HasPrefix(text, "https://") {
			continue
		}
		if u, err := url.Parse(text); err == nil && u.Hostname() != "" {
			return u.Hostname()
		}
	}
	return tool
}

// ErrCircuitOpen is the message recorded when a call short-circuits.
func ErrCircuitOpen(domain string) string {
	return fmt.Sprintf("circuit open for %s", domain)
}
