// Package cycle implements structural-cycle detection over a workgraph.Graph
// using Tarjan's strongly-connected-components algorithm, and the cycle
// iterator that re-opens a cycle's members once they all reach a terminal
// status and a guard fires.
package cycle

import (
	"sort"

	"github.com/workgraph/workgraph/internal/workgraph"
)

// BackEdge is a pair (u, v) where v is in u.After and both lie in the same
// non-trivial SCC.
type BackEdge struct {
	From string
	To   string
}

// SCC describes one strongly-connected-component of the after-edge graph.
type SCC struct {
	Members []string
	// Headers lists every member carrying a non-nil cycle_config. Per the
	// invariant model there should be exactly one; zero or multiple headers
	// is a malformed-graph condition surfaced by Check.
	Headers []string
	// Header is the scheduler's defensive tiebreak: the lexicographically
	// smallest of Headers, used to decide which back-edges are exempted
	// from readiness when Headers has more than one entry. Dispatch is
	// still refused until the duplicate is resolved (see CheckHeaders).
	Header    string
	BackEdges []BackEdge
	SelfLoop  bool
}

// Trivial reports whether this SCC is a single task with no self-loop, i.e.
// not a structural cycle at all.
func (s SCC) Trivial() bool {
	return len(s.Members) == 1 && !s.SelfLoop
}

// Analysis is the cached output of one Tarjan pass.
type Analysis struct {
	SCCs []SCC
	// sccOf maps task ID to the index of its SCC in SCCs.
	sccOf map[string]int
}

// SCCFor returns the SCC containing id, if any.
func (a *Analysis) SCCFor(id string) (SCC, bool) {
	idx, ok := a.sccOf[id]
	if !ok {
		return SCC{}, false
	}
	return a.SCCs[idx], true
}

// IsBackEdge reports whether (from, to) is a back-edge exempted from
// readiness: from must be the SCC's unique configured header. Non-header
// members of a cycle see no exemption at all.
func (a *Analysis) IsBackEdge(from, to string) bool {
	scc, ok := a.SCCFor(from)
	if !ok || scc.Trivial() || len(scc.Headers) != 1 || scc.Headers[0] != from {
		return false
	}
	for _, be := range scc.BackEdges {
		if be.From == from && be.To == to {
			return true
		}
	}
	return false
}

type tarjanState struct {
	graph   *workgraph.Graph
	index   map[string]int
	lowlink map[string]int
	onStack map[string]bool
	stack   []string
	counter int
	sccs    []SCC
}

// Analyze runs Tarjan's algorithm over g's after edges. Run once per graph
// mutation that changes edges and cache the result; this function itself
// does no caching.
func Analyze(g *workgraph.Graph) *Analysis {
	tasks := g.Tasks()
	byID := make(map[string]*workgraph.Task, len(tasks))
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
		ids = append(ids, t.ID)
	}
	sort.Strings(ids) // deterministic traversal order

	st := &tarjanState{
		graph:   g,
		index:   make(map[string]int),
		lowlink: make(map[string]int),
		onStack: make(map[string]bool),
	}
	for _, id := range ids {
		if _, visited := st.index[id]; !visited {
			st.strongConnect(id, byID)
		}
	}

	analysis := &Analysis{sccOf: make(map[string]int, len(tasks))}
	for i, scc := range st.sccs {
		scc.Members = sortedCopy(scc.Members)
		scc.SelfLoop = len(scc.Members) == 1 && selfLoops(byID[scc.Members[0]])
		scc.BackEdges = backEdgesFor(scc.Members, byID)
		scc.Headers = headersFor(scc.Members, byID)
		sort.Strings(scc.Headers)
		if len(scc.Headers) > 0 {
			scc.Header = scc.Headers[0]
		}
		st.sccs[i] = scc
		for _, id := range scc.Members {
			analysis.sccOf[id] = i
		}
	}
	analysis.SCCs = st.sccs
	return analysis
}

func (st *tarjanState) strongConnect(v string, byID map[string]*workgraph.Task) {
	st.index[v] = st.counter
	st.lowlink[v] = st.counter
	st.counter++
	st.stack = append(st.stack, v)
	st.onStack[v] = true

	task, ok := byID[v]
	if ok {
		succ := sortedCopy(task.After)
		for _, w := range succ {
			if _, exists := byID[w]; !exists {
				continue // dangling reference; not a graph node
			}
			if _, visited := st.index[w]; !visited {
				st.strongConnect(w, byID)
				if st.lowlink[w] < st.lowlink[v] {
					st.lowlink[v] = st.lowlink[w]
				}
			} else if st.onStack[w] {
				if st.index[w] < st.lowlink[v] {
					st.lowlink[v] = st.index[w]
				}
			}
		}
	}

	if st.lowlink[v] == st.index[v] {
		var members []string
		for {
			n := len(st.stack) - 1
			w := st.stack[n]
			st.stack = st.stack[:n]
			st.onStack[w] = false
			members = append(members, w)
			if w == v {
				break
			}
		}
		st.sccs = append(st.sccs, SCC{Members: members})
	}
}

func selfLoops(t *workgraph.Task) bool {
	if t == nil {
		return false
	}
	for _, pred := range t.After {
		if pred == t.ID {
			return true
		}
	}
	return false
}

func backEdgesFor(members []string, byID map[string]*workgraph.Task) []BackEdge {
	memberSet := make(map[string]struct{}, len(members))
	for _, m := range members {
		memberSet[m] = struct{}{}
	}
	var edges []BackEdge
	for _, id := range members {
		t := byID[id]
		if t == nil {
			continue
		}
		for _, pred := range t.After {
			if _, inSCC := memberSet[pred]; inSCC {
				edges = append(edges, BackEdge{From: id, To: pred})
			}
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
	return edges
}

func headersFor(members []string, byID map[string]*workgraph.Task) []string {
	var headers []string
	for _, id := range members {
		if t := byID[id]; t != nil && t.CycleConfig != nil {
			headers = append(headers, id)
		}
	}
	return headers
}

func sortedCopy(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	sort.Strings(out)
	return out
}

// CheckHeaders runs the SCC-header validation that Graph.Check cannot run
// itself (to avoid a workgraph <-> cycle import cycle): every non-trivial
// SCC must have exactly one cycle_config header.
func CheckHeaders(g *workgraph.Graph) []workgraph.Finding {
	analysis := Analyze(g)
	var findings []workgraph.Finding
	for _, scc := range analysis.SCCs {
		if scc.Trivial() {
			continue
		}
		switch len(scc.Headers) {
		case 0:
			findings = append(findings, workgraph.Finding{
				Severity: "error", Code: "cycle-unconfigured",
				Message: "structural cycle " + joinIDs(scc.Members) + " has no configured header",
			})
		case 1:
			// well-formed
		default:
			findings = append(findings, workgraph.Finding{
				Severity: "error", Code: "cycle-multiple-headers",
				Message: "structural cycle " + joinIDs(scc.Members) + " has multiple cycle_config headers: " + joinIDs(scc.Headers),
			})
		}
	}
	return findings
}

func joinIDs(ids []string) string {
	out := "["
	for i, id := range ids {
		if i > 0 {
			out += " "
		}
		out += id
	}
	return out + "]"
}
