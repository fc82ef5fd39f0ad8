// Package memdep computes program Pass 18's three memory-dependency
// sets (spec.md §4.4): Basic, Skipped-branch, and Out-of-order. Their
// union is each node's memory_dependencies set, consumed by
// runtime.Network's allocator to decide which nodes may never share a
// physical buffer.
//
// memdep takes plain data (Input) rather than *program.Node, since
// program already imports memdep and a mutual import is not an option —
// the same boundary core.Graph draws against the algorithm packages that
// consume it (bfs, dfs, dijkstra all take a *core.Graph by value,
// never the reverse).
package memdep

// Input is the plain-data view program.Build hands to Compute: the
// processing order, each node's direct dependency ids, which nodes were
// marked can_be_optimized (skip buffer allocation entirely — excluded
// from every set since they never own a physical buffer), and which
// nodes are network outputs (their buffers stay live forever).
type Input struct {
	Order        []string
	Dependencies map[string][]string
	Optimized    map[string]bool
	Outputs      map[string]bool
}

// Compute returns, for every non-optimized node, the set of other node
// ids it must never share a physical buffer with.
func Compute(in Input) map[string]map[string]struct{} {
	pos := make(map[string]int, len(in.Order))
	for i, id := range in.Order {
		pos[id] = i
	}

	ancestors := computeAncestorSets(in)
	lastUse := computeLastUse(in, pos)

	result := make(map[string]map[string]struct{}, len(in.Order))
	for _, id := range in.Order {
		result[id] = make(map[string]struct{})
	}

	addBasicDependencies(in, pos, lastUse, ancestors, result)
	addSkippedBranchDependencies(in, pos, lastUse, ancestors, result)
	addOutOfOrderDependencies(in, pos, ancestors, result)

	for _, id := range in.Order {
		if in.Optimized[id] {
			delete(result, id)
		}
	}
	return result
}

// computeAncestorSets returns, per node, the set of ids it transitively
// depends on — a pair sharing a transitive dependency relation (in
// either direction) is exempt from every memory-dependency set, since
// spec.md §8 invariant 3 permits aliasing exactly along a dependency
// chain.
func computeAncestorSets(in Input) map[string]map[string]struct{} {
	memo := make(map[string]map[string]struct{}, len(in.Order))
	var resolve func(id string) map[string]struct{}
	resolve = func(id string) map[string]struct{} {
		if set, ok := memo[id]; ok {
			return set
		}
		set := make(map[string]struct{})
		memo[id] = set // break cycles defensively; the DAG itself is acyclic
		for _, dep := range in.Dependencies[id] {
			set[dep] = struct{}{}
			for a := range resolve(dep) {
				set[a] = struct{}{}
			}
		}
		return set
	}
	for _, id := range in.Order {
		resolve(id)
	}
	return memo
}

// related reports whether a and b are in an ancestor/descendant
// relationship (either order).
func related(a, b string, ancestors map[string]map[string]struct{}) bool {
	if _, ok := ancestors[a][b]; ok {
		return true
	}
	if _, ok := ancestors[b][a]; ok {
		return true
	}
	return a == b
}

// computeLastUse returns, per node, the latest processing-order position
// at which it is still needed: the max position among its users, or its
// own position if it has none (network outputs stay live at their own
// position and beyond, handled by the caller via in.Outputs).
func computeLastUse(in Input, pos map[string]int) map[string]int {
	lastUse := make(map[string]int, len(in.Order))
	for _, id := range in.Order {
		lastUse[id] = pos[id]
	}
	for _, id := range in.Order {
		for _, dep := range in.Dependencies[id] {
			if pos[id] > lastUse[dep] {
				lastUse[dep] = pos[id]
			}
		}
	}
	for id := range in.Outputs {
		if in.Outputs[id] {
			lastUse[id] = len(in.Order) // live past the end of the program
		}
	}
	return lastUse
}

func addPair(result map[string]map[string]struct{}, a, b string) {
	if set, ok := result[a]; ok {
		set[b] = struct{}{}
	}
	if set, ok := result[b]; ok {
		set[a] = struct{}{}
	}
}

// addBasicDependencies forbids sharing between a node and any
// predecessor whose live range (creation through last use) still
// includes the node's own position — spec.md §4.4 Pass 18's "every node
// must not share with its live predecessors".
func addBasicDependencies(in Input, pos, lastUse map[string]int, ancestors map[string]map[string]struct{}, result map[string]map[string]struct{}) {
	for _, x := range in.Order {
		if in.Optimized[x] {
			continue
		}
		px := pos[x]
		for _, y := range in.Order {
			if y == x || in.Optimized[y] {
				continue
			}
			if pos[y] >= px {
				continue // only predecessors
			}
			if lastUse[y] < px {
				continue // y's buffer is already free by the time x is produced
			}
			if related(x, y, ancestors) {
				continue
			}
			addPair(result, x, y)
		}
	}
}

// addSkippedBranchDependencies forbids sharing between a node X and any
// earlier node Y whose live range leaps across X — Y was produced before
// X and is still used strictly after X, i.e. X's lifetime sits entirely
// inside a gap in Y's otherwise-contiguous live range.
func addSkippedBranchDependencies(in Input, pos, lastUse map[string]int, ancestors map[string]map[string]struct{}, result map[string]map[string]struct{}) {
	for _, x := range in.Order {
		if in.Optimized[x] {
			continue
		}
		px := pos[x]
		for _, y := range in.Order {
			if y == x || in.Optimized[y] {
				continue
			}
			if pos[y] >= px {
				continue
			}
			if lastUse[y] <= px {
				continue // Y's range ends at or before X; no leap across X
			}
			if related(x, y, ancestors) {
				continue
			}
			addPair(result, x, y)
		}
	}
}

// addOutOfOrderDependencies partitions the processing order into
// synchronization-barrier regions — a node starts a new region whenever
// any of its dependencies lies at or past the current region's start —
// and forbids sharing between every pair within a region. The barrier
// index is computed by a single forward sweep that plays the same role
// flow.Dinic's BFS level graph plays for augmenting paths: a monotonic
// level assigned by walking the order once, here repurposed from
// shortest-augmenting-path distance to synchronization-region index.
func addOutOfOrderDependencies(in Input, pos map[string]int, ancestors map[string]map[string]struct{}, result map[string]map[string]struct{}) {
	if len(in.Order) == 0 {
		return
	}

	barrier := make([]int, len(in.Order))
	regionStart := 0
	barrier[0] = 0
	for i := 1; i < len(in.Order); i++ {
		id := in.Order[i]
		crosses := false
		for _, dep := range in.Dependencies[id] {
			if p, ok := pos[dep]; ok && p >= regionStart {
				crosses = true
				break
			}
		}
		if crosses {
			regionStart = i
			barrier[i] = barrier[i-1] + 1
		} else {
			barrier[i] = barrier[i-1]
		}
	}

	byRegion := make(map[int][]string)
	for i, id := range in.Order {
		byRegion[barrier[i]] = append(byRegion[barrier[i]], id)
	}

	for _, ids := range byRegion {
		for i := 0; i < len(ids); i++ {
			if in.Optimized[ids[i]] {
				continue
			}
			for j := i + 1; j < len(ids); j++ {
				if in.Optimized[ids[j]] {
					continue
				}
				if related(ids[i], ids[j], ancestors) {
					continue
				}
				addPair(result, ids[i], ids[j])
			}
		}
	}
}
