package cycle

import (
	"hash/fnv"
	"io"
	"sync"

	"github.com/workgraph/workgraph/internal/workgraph"
)

// Cache memoizes the SCC analysis across coordinator ticks. Get
// fingerprints the graph's edge set and re-runs Tarjan only when an edge
// actually changed (a task added or removed, or an after list edited);
// status-, claim-, and time-gate-only mutations reuse the cached analysis.
type Cache struct {
	mu          sync.Mutex
	fingerprint uint64
	analysis    *Analysis
}

// Get returns the cached analysis, recomputing it if the edge set changed
// since the last call.
func (c *Cache) Get(g *workgraph.Graph) *Analysis {
	c.mu.Lock()
	defer c.mu.Unlock()
	fp := edgeFingerprint(g)
	if c.analysis == nil || fp != c.fingerprint {
		c.analysis = Analyze(g)
		c.fingerprint = fp
	}
	return c.analysis
}

// edgeFingerprint hashes every task ID and its after list. Tasks() returns
// insertion order, so the same edge set always hashes the same way.
func edgeFingerprint(g *workgraph.Graph) uint64 {
	h := fnv.New64a()
	for _, t := range g.Tasks() {
		io.WriteString(h, t.ID)
		h.Write([]byte{0})
		for _, pred := range t.After {
			io.WriteString(h, pred)
			h.Write([]byte{1})
		}
		h.Write([]byte{2})
	}
	return h.Sum64()
}
