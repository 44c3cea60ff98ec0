package strategy

import (
	"slices"
	"strings"

	"github.com/roach88/tinkergo/internal/fault"
)

// precedence maps a strategy name to the names that must run after it.
type precedence map[string][]string

func buildPrecedence(list []Strategy) precedence {
	g := make(precedence, len(list))
	registered := make(map[string]bool, len(list))
	for _, s := range list {
		registered[s.Name()] = true
		g[s.Name()] = nil
	}
	edge := func(from, to string) {
		if registered[from] && registered[to] && !slices.Contains(g[from], to) {
			g[from] = append(g[from], to)
		}
	}
	for _, a := range list {
		for _, b := range list {
			if a.Category() < b.Category() {
				edge(a.Name(), b.Name())
			}
		}
		if p, ok := a.(Prior); ok {
			for _, before := range p.Prior() {
				edge(before, a.Name())
			}
		}
		if p, ok := a.(Posterior); ok {
			for _, after := range p.Posterior() {
				edge(a.Name(), after)
			}
		}
	}
	return g
}

// sortStrategies orders list so every precedence edge is honored. Among
// strategies free to run, the lower category and then the earlier
// registration go first.
func sortStrategies(list []Strategy) ([]Strategy, error) {
	g := buildPrecedence(list)
	names := make([]string, len(list))
	for i, s := range list {
		names[i] = s.Name()
	}
	if cycle := findCycle(names, g); cycle != nil {
		return nil, fault.New(fault.CodeStrategyCycle,
			"strategy ordering cycle: %s", strings.Join(cycle, " -> ")).
			With("cycle", strings.Join(cycle, ","))
	}

	indegree := make(map[string]int, len(list))
	for _, to := range g {
		for _, n := range to {
			indegree[n]++
		}
	}
	rank := func(s Strategy) (Category, int) {
		return s.Category(), slices.Index(names, s.Name())
	}
	remaining := slices.Clone(list)
	out := make([]Strategy, 0, len(list))
	for len(remaining) > 0 {
		next := -1
		for i, s := range remaining {
			if indegree[s.Name()] > 0 {
				continue
			}
			if next < 0 {
				next = i
				continue
			}
			c, r := rank(s)
			bc, br := rank(remaining[next])
			if c < bc || (c == bc && r < br) {
				next = i
			}
		}
		s := remaining[next]
		remaining = slices.Delete(remaining, next, next+1)
		for _, n := range g[s.Name()] {
			indegree[n]--
		}
		out = append(out, s)
	}
	return out, nil
}

// findCycle returns a cycle of g as a closed path, or nil. Components are
// found with Tarjan's algorithm, visiting nodes in the order given.
func findCycle(nodes []string, g precedence) []string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, n := range nodes {
		if _, visited := indices[n]; !visited {
			strongConnect(n)
		}
	}

	for _, scc := range sccs {
		if len(scc) == 1 && slices.Contains(g[scc[0]], scc[0]) {
			return []string{scc[0], scc[0]}
		}
		if len(scc) > 1 {
			return cyclePath(nodes, scc, g)
		}
	}
	return nil
}

// cyclePath returns the shortest cycle through the component's earliest
// registered member.
func cyclePath(nodes, scc []string, g precedence) []string {
	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}
	start := ""
	for _, n := range nodes {
		if members[n] {
			start = n
			break
		}
	}
	parent := make(map[string]string)
	queue := []string{start}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, w := range g[v] {
			if !members[w] {
				continue
			}
			if w == start {
				path := []string{start}
				for n := v; n != start; n = parent[n] {
					path = append(path, n)
				}
				path = append(path, start)
				slices.Reverse(path[1 : len(path)-1])
				return path
			}
			if _, seen := parent[w]; !seen {
				parent[w] = v
				queue = append(queue, w)
			}
		}
	}
	return []string{start, start}
}
