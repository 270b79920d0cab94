package coordinator

import (
	"fmt"

	"github.com/gammazero/toposort"
)

// Order returns registered task ids with every task after the dependencies it
// still waits on. Dependencies that were never registered are left out.
// Returns an error if the graph contains a cycle.
func (c *Coordinator) Order() ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var edges []toposort.Edge
	for _, id := range c.sortedIDs() {
		deps := c.graph[id]
		if len(deps) == 0 {
			// Edge from nil keeps isolated tasks in the result
			edges = append(edges, toposort.Edge{nil, id})
			continue
		}
		for _, dep := range deps {
			// Edge (dep, id) means dep must come before id
			edges = append(edges, toposort.Edge{dep, id})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("dependency graph contains cycle: %w", err)
	}

	order := make([]string, 0, len(c.graph))
	for _, v := range sorted {
		id, ok := v.(string)
		if !ok {
			continue
		}
		if _, registered := c.graph[id]; registered {
			order = append(order, id)
		}
	}
	return order, nil
}
