package resource

import (
	"fmt"
	"sort"
	"strings"
)

// CycleError reports tasks that depend on each other's outputs in a loop.
// Such a graph can never drain from a DeferringQueue.
type CycleError struct {
	Path []string // e.g. ["a", "b", "a"]
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("task graph has a cycle: %s", strings.Join(e.Path, " → "))
}

// taskGraph maps a task ID to the IDs of tasks that consume its outputs.
type taskGraph map[string][]string

// ValidateGraph rejects task sets whose input/output edges form a cycle,
// including a task that consumes its own output. The first cycle found, in
// task ID order, is returned as a *CycleError.
func ValidateGraph(tasks []Task) error {
	graph := buildTaskGraph(tasks)
	for _, scc := range stronglyConnected(graph) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			sort.Strings(scc)
			return &CycleError{Path: cyclePath(scc, graph)}
		}
	}
	return nil
}

func buildTaskGraph(tasks []Task) taskGraph {
	producers := make(map[string][]string)
	for _, t := range tasks {
		for _, out := range t.Outputs {
			producers[out] = append(producers[out], t.ID)
		}
	}

	graph := make(taskGraph, len(tasks))
	for _, t := range tasks {
		if graph[t.ID] == nil {
			graph[t.ID] = []string{}
		}
		for _, in := range t.Inputs {
			for _, p := range producers[in] {
				graph[p] = append(graph[p], t.ID)
			}
		}
	}
	for id := range graph {
		sort.Strings(graph[id])
	}
	return graph
}

func hasSelfLoop(node string, graph taskGraph) bool {
	for _, n := range graph[node] {
		if n == node {
			return true
		}
	}
	return false
}

// stronglyConnected is Tarjan's algorithm. Nodes are visited in sorted
// order so the result is deterministic.
func stronglyConnected(graph taskGraph) [][]string {
	var (
		index   int
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var connect func(string)
	connect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, seen := indices[w]; !seen {
				connect(w)
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

	nodes := make([]string, 0, len(graph))
	for n := range graph {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	for _, n := range nodes {
		if _, seen := indices[n]; !seen {
			connect(n)
		}
	}
	return sccs
}

// cyclePath walks edges inside scc from its first member back to it.
func cyclePath(scc []string, graph taskGraph) []string {
	start := scc[0]
	if len(scc) == 1 {
		return []string{start, start}
	}

	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}

	path := []string{start}
	visited := map[string]bool{}
	for cur := start; ; {
		visited[cur] = true
		next := ""
		for _, n := range graph[cur] {
			if members[n] && (!visited[n] || n == start) {
				next = n
				break
			}
		}
		if next == "" {
			return path
		}
		path = append(path, next)
		if next == start {
			return path
		}
		cur = next
	}
}
