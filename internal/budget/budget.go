// Package budget enforces the hard token capacity for one assembled prompt.
// An Allocator is created fresh for every turn and tracks how many tokens
// each prompt component has been granted; once the ceiling is reached,
// further allocations are refused rather than queued or partially filled.
package budget

import (
	"fmt"
	"sync"
)

// Default deployment parameters. A 128k context with a 15% safety margin
// and 8k reserved for the model's output leaves 100800 tokens of input.
const (
	DefaultTotalContext   = 128000
	DefaultReservedOutput = 8000
	DefaultSafetyBuffer   = 0.85
)

// minViableCeiling is the smallest input budget a turn can usefully run with.
const minViableCeiling = 1000

// RefusalFunc is invoked whenever an allocation is refused. It must not
// call back into the Allocator.
type RefusalFunc func(component string, requested, used, remaining int)

// Allocator grants or refuses token allocations against a fixed ceiling.
// An allocation either commits fully or leaves the allocator untouched.
//
// A single turn owns its Allocator, but the memory retrieval goroutine may
// still hold a reference after its deadline expires, so all accounting is
// mutex-guarded.
type Allocator struct {
	mu          sync.Mutex
	ceiling     int
	used        int
	allocations map[string]int
	onRefusal   RefusalFunc
}

// New derives the capacity ceiling from the deployment parameters:
// int(totalContext*safetyBuffer) - reservedOutput. It fails when the result
// is below the minimum viable ceiling; that is a deployment error, not a
// per-turn condition.
func New(totalContext, reservedOutput int, safetyBuffer float64) (*Allocator, error) {
	ceiling := int(float64(totalContext)*safetyBuffer) - reservedOutput
	if ceiling < minViableCeiling {
		return nil, fmt.Errorf("context window too small for reasonable operation: ceiling %d < %d (total=%d reserved=%d buffer=%.2f)",
			ceiling, minViableCeiling, totalContext, reservedOutput, safetyBuffer)
	}
	return &Allocator{
		ceiling:     ceiling,
		allocations: make(map[string]int),
	}, nil
}

// OnRefusal registers the refusal hook. Pass nil to clear it.
func (a *Allocator) OnRefusal(fn RefusalFunc) {
	a.mu.Lock()
	a.onRefusal = fn
	a.mu.Unlock()
}

// Allocate commits tokens to the named component iff they fit under the
// ceiling. On refusal the allocator is left unchanged and the refusal hook
// fires; the caller decides what to do with the component.
func (a *Allocator) Allocate(component string, tokens int) bool {
	a.mu.Lock()
	if a.used+tokens > a.ceiling {
		fn := a.onRefusal
		used, remaining := a.used, a.ceiling-a.used
		a.mu.Unlock()
		if fn != nil {
			fn(component, tokens, used, remaining)
		}
		return false
	}
	a.used += tokens
	a.allocations[component] += tokens
	a.mu.Unlock()
	return true
}

// Remaining returns the tokens still available under the ceiling.
func (a *Allocator) Remaining() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ceiling - a.used
}

// Used returns the tokens committed so far.
func (a *Allocator) Used() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.used
}

// Ceiling returns the fixed capacity ceiling.
func (a *Allocator) Ceiling() int {
	return a.ceiling
}

// Report is a point-in-time snapshot of the allocator's accounting.
type Report struct {
	Ceiling     int            `json:"ceiling"`
	Used        int            `json:"used"`
	Remaining   int            `json:"remaining"`
	Utilization float64        `json:"utilization_pct"`
	Components  map[string]int `json:"components"`
}

// Report snapshots the current accounting. The component map is a copy.
func (a *Allocator) Report() Report {
	a.mu.Lock()
	defer a.mu.Unlock()

	components := make(map[string]int, len(a.allocations))
	for name, tokens := range a.allocations {
		components[name] = tokens
	}
	return Report{
		Ceiling:     a.ceiling,
		Used:        a.used,
		Remaining:   a.ceiling - a.used,
		Utilization: float64(a.used) / float64(a.ceiling) * 100,
		Components:  components,
	}
}

// EstimateTokens returns a rough token count for s (chars / 4, minimum 1
// for non-empty text). Good enough for budget enforcement; an exact
// tokenizer would cost more than the margin it buys.
func EstimateTokens(s string) int {
	if len(s) == 0 {
		return 0
	}
	n := len(s) / 4
	if n < 1 {
		n = 1
	}
	return n
}
