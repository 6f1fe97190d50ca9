// Package testutil holds deterministic helpers for tests and the scenario
// harness.
package testutil

import (
	"strconv"
	"sync"
)

// IDs hands out instance ids for a host.Runner under test. It returns the
// declared ids in order; past the end it derives "<last>-2", "<last>-3" and
// so on, so a test that creates more instances than it declared still gets
// stable, distinct ids. Safe for concurrent use.
type IDs struct {
	mu   sync.Mutex
	ids  []string
	next int
}

// NewIDs creates a generator over ids. With no ids it starts from
// "test-instance".
func NewIDs(ids ...string) *IDs {
	if len(ids) == 0 {
		ids = []string{"test-instance"}
	}
	return &IDs{ids: ids}
}

// Generate implements host.IDGenerator.
func (g *IDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := g.next
	g.next++
	if n < len(g.ids) {
		return g.ids[n]
	}
	last := g.ids[len(g.ids)-1]
	return last + "-" + strconv.Itoa(n-len(g.ids)+2)
}
