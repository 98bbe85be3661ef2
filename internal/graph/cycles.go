package graph

import "fmt"

// CircularDependenciesError reports every minimal cycle found while ordering
// a graph. Each cycle is a sequence of keys; the wire-visible error type tag
// for this failure is "circular-dependencies" (see core.ErrorCircularDependencies).
type CircularDependenciesError struct {
	Cycles [][]string
}

func (e *CircularDependenciesError) Error() string {
	if len(e.Cycles) == 0 {
		return "circular dependencies detected"
	}
	msg := "circular dependencies detected:"
	for _, c := range e.Cycles {
		msg += "\n  " + formatCycle(c)
	}
	return msg
}

func formatCycle(cycle []string) string {
	if len(cycle) == 0 {
		return ""
	}
	out := cycle[0]
	for i := 1; i < len(cycle); i++ {
		out += " <- " + cycle[i]
	}
	out += " <- " + cycle[0]
	return out
}

// findMinimalCycles computes every minimal cycle in g via an all-pairs-
// shortest-paths (Floyd-Warshall) variant over the edge set, invoked only on
// the error path (topological ordering already failed):
//
//  1. dist(u,v) = 1, next(u,v) = v for every edge u->v.
//  2. Relax via Floyd-Warshall.
//  3. Any vertex v with next(v,v) defined lies on a cycle; reconstruct the
//     cycle by following next from v until return.
//  4. Cycles with the same vertex set are folded into one.
//
// O(V^3); acceptable since this path is only reached on a configuration
// error, never during normal scheduling.
func (g *Graph[K]) findMinimalCycles() [][]string {
	n := len(g.order)
	index := make(map[K]int, n)
	for i, k := range g.order {
		index[k] = i
	}

	const inf = 1 << 30
	dist := make([][]int, n)
	next := make([][]int, n)
	for i := range dist {
		dist[i] = make([]int, n)
		next[i] = make([]int, n)
		for j := range dist[i] {
			dist[i][j] = inf
			next[i][j] = -1
		}
	}

	for _, from := range g.order {
		u := index[from]
		for to := range g.deps[from] {
			v := index[to]
			dist[u][v] = 1
			next[u][v] = v
		}
	}

	for k := 0; k < n; k++ {
		for i := 0; i < n; i++ {
			if dist[i][k] == inf {
				continue
			}
			for j := 0; j < n; j++ {
				if dist[k][j] == inf {
					continue
				}
				if dist[i][k]+dist[k][j] < dist[i][j] {
					dist[i][j] = dist[i][k] + dist[k][j]
					next[i][j] = next[i][k]
				}
			}
		}
	}

	seen := make(map[string]bool)
	var cycles [][]string
	for v := 0; v < n; v++ {
		if next[v][v] == -1 {
			continue
		}
		path := []int{v}
		cur := next[v][v]
		for cur != v && len(path) <= n {
			path = append(path, cur)
			cur = next[cur][v]
		}

		keys := make([]string, len(path))
		for i, idx := range path {
			keys[i] = fmt.Sprintf("%v", g.order[idx])
		}

		fp := fingerprint(keys)
		if seen[fp] {
			continue
		}
		seen[fp] = true
		cycles = append(cycles, keys)
	}
	return cycles
}

// fingerprint folds cycles that share the same vertex set regardless of
// rotation or starting point.
func fingerprint(keys []string) string {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	// Deterministic order for the fingerprint: sort by value.
	sorted := make([]string, 0, len(set))
	for k := range set {
		sorted = append(sorted, k)
	}
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	out := ""
	for _, k := range sorted {
		out += k + "\x00"
	}
	return out
}
