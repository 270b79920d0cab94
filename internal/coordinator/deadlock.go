package coordinator

// Resolution records one dependency edge broken to repair a cycle.
type Resolution struct {
	TaskID     string   `json:"task_id"`
	RemovedDep string   `json:"removed_dependency"`
	Cycle      []string `json:"cycle"`
}

// DetectDeadlocks returns every cycle met during a depth-first walk of the
// dependency graph. Each cycle runs from the first occurrence of the repeated
// task through the repeat, so its first and last ids are equal. Roots are
// visited in lexicographic id order and edges in declaration order, which
// makes the result deterministic.
func (c *Coordinator) DetectDeadlocks() [][]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.detectLocked()
}

func (c *Coordinator) detectLocked() [][]string {
	var cycles [][]string
	visited := make(map[string]bool)
	onPath := make(map[string]int) // taskID -> index in path
	var path []string

	var dfs func(node string)
	dfs = func(node string) {
		if idx, ok := onPath[node]; ok {
			cycle := append([]string(nil), path[idx:]...)
			cycles = append(cycles, append(cycle, node))
			return
		}
		if visited[node] {
			return
		}

		visited[node] = true
		onPath[node] = len(path)
		path = append(path, node)

		for _, dep := range c.graph[node] {
			dfs(dep)
		}

		path = path[:len(path)-1]
		delete(onPath, node)
	}

	for _, id := range c.sortedIDs() {
		if !visited[id] {
			dfs(id)
		}
	}

	return cycles
}

// CheckCircularDependency reports whether giving taskID the dependencies deps
// would put taskID on a cycle. The real graph is not modified.
func (c *Coordinator) CheckCircularDependency(taskID string, deps []string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	edges := func(id string) []string {
		if id == taskID {
			return deps
		}
		return c.graph[id]
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int)

	var cyclic func(node string) bool
	cyclic = func(node string) bool {
		color[node] = gray
		for _, dep := range edges(node) {
			switch color[dep] {
			case gray:
				return true
			case white:
				if cyclic(dep) {
					return true
				}
			}
		}
		color[node] = black
		return false
	}

	return cyclic(taskID)
}

// ResolveDeadlock breaks cycle by removing one dependency edge from its first
// task and returns that task's id, or "" when nothing could be removed.
//
// The edge removed is the one from cycle[0] to cycle[1], so the reported cycle
// is always broken. Only when the first task has no edge to cycle[1] does it
// fall back to dropping the last entry of that task's dependency list.
func (c *Coordinator) ResolveDeadlock(cycle []string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, ok := c.resolveLocked(cycle)
	if !ok {
		return ""
	}
	return res.TaskID
}

// ResolveAll repeatedly detects and breaks cycles until the graph is acyclic.
func (c *Coordinator) ResolveAll() []Resolution {
	c.mu.Lock()
	defer c.mu.Unlock()

	var resolved []Resolution
	for {
		cycles := c.detectLocked()
		if len(cycles) == 0 {
			return resolved
		}
		res, ok := c.resolveLocked(cycles[0])
		if !ok {
			return resolved
		}
		resolved = append(resolved, res)
	}
}

// resolveLocked removes, from the first task's edge list, the last entry that
// points at the next task on the cycle. When the cycle names no such edge the
// last edge in the list is removed instead.
func (c *Coordinator) resolveLocked(cycle []string) (Resolution, bool) {
	if len(cycle) == 0 {
		return Resolution{}, false
	}

	first := cycle[0]
	deps := c.graph[first]
	if len(deps) == 0 {
		return Resolution{}, false
	}

	target := deps[len(deps)-1]
	if len(cycle) > 1 {
		for i := len(deps) - 1; i >= 0; i-- {
			if deps[i] == cycle[1] {
				target = deps[i]
				break
			}
		}
	}

	c.graph[first] = without(deps, target)
	c.unlinkDependent(target, first)

	c.logger.Warn("breaking dependency to resolve deadlock",
		"task", first,
		"dependency", target,
		"cycle", cycle,
	)

	c.releaseIfSatisfied(first)

	return Resolution{
		TaskID:     first,
		RemovedDep: target,
		Cycle:      append([]string(nil), cycle...),
	}, true
}
