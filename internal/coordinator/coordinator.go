// Package coordinator tracks task dependencies, per-task readiness gates, and
// dependency cycles. It has no notion of time or scheduling policy.
package coordinator

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/aristath/planner/internal/task"
)

// Coordinator owns the dependency graph, the reverse-dependency index, the
// readiness gates, and the completed set. All methods are safe for concurrent use.
type Coordinator struct {
	mu         sync.RWMutex
	graph      map[string][]string // taskID -> dependencies still required
	dependents map[string][]string // depID -> tasks that depend on it
	gates      map[string]*Gate
	completed  map[string]bool
	logger     *slog.Logger
}

// Summary aggregates the dependency state.
type Summary struct {
	TotalTasks     int        `json:"total_tasks"`
	CompletedTasks int        `json:"completed_tasks"`
	WaitingTasks   int        `json:"waiting_tasks"`
	Deadlocks      int        `json:"deadlocks"`
	DeadlockCycles [][]string `json:"deadlock_details"`
}

// New creates an empty Coordinator. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		graph:      make(map[string][]string),
		dependents: make(map[string][]string),
		gates:      make(map[string]*Gate),
		completed:  make(map[string]bool),
		logger:     logger,
	}
}

// Register inserts or overwrites the task's dependency edges. A new gate starts
// ready iff every dependency is already completed. A completed task propagates
// its completion to dependents immediately.
func (c *Coordinator) Register(t *task.Task) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.registerLocked(t.ID, t.Dependencies)
	if t.Status == task.StatusCompleted {
		c.markCompletedLocked(t.ID)
	}
}

// Load registers a batch. Completions are applied after every edge is in
// place and gates created by the batch are re-evaluated, so input order does
// not matter.
func (c *Coordinator) Load(tasks []*task.Task) {
	c.mu.Lock()
	defer c.mu.Unlock()

	created := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if c.registerLocked(t.ID, t.Dependencies) {
			created = append(created, t.ID)
		}
	}

	for _, t := range tasks {
		if t.Status == task.StatusCompleted {
			c.markCompletedLocked(t.ID)
		}
	}

	for _, id := range created {
		gate := c.gates[id]
		if gate.state == GateBlocked && len(gate.waiters) == 0 && c.satisfiedLocked(id) {
			gate.state = GateReady
		}
	}
}

// registerLocked returns true when it created a new gate.
func (c *Coordinator) registerLocked(id string, deps []string) bool {
	deps = task.UniqueDependencies(deps)

	// Drop reverse entries for dependencies the task no longer declares.
	for _, old := range c.graph[id] {
		if !contains(deps, old) {
			c.unlinkDependent(old, id)
		}
	}

	c.graph[id] = deps
	for _, dep := range deps {
		if !contains(c.dependents[dep], id) {
			c.dependents[dep] = append(c.dependents[dep], id)
		}
	}

	if _, exists := c.gates[id]; exists {
		return false
	}
	c.gates[id] = newGate(c.satisfiedLocked(id))
	return true
}

// MarkCompleted adds taskID to the completed set, strips it from every
// dependent's edge list, and releases dependents that are now satisfied.
// Returns the ids whose gate became ready. Repeated calls are no-ops.
func (c *Coordinator) MarkCompleted(taskID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.markCompletedLocked(taskID)
}

func (c *Coordinator) markCompletedLocked(taskID string) []string {
	if c.completed[taskID] {
		return nil
	}
	c.completed[taskID] = true

	var unblocked []string
	for _, depTaskID := range c.dependents[taskID] {
		if deps, ok := c.graph[depTaskID]; ok {
			c.graph[depTaskID] = without(deps, taskID)
		}
		if id, ok := c.releaseIfSatisfied(depTaskID); ok {
			unblocked = append(unblocked, id)
		}
	}
	delete(c.dependents, taskID)

	return unblocked
}

// releaseIfSatisfied opens a blocked gate whose dependencies are all complete.
// It returns the waiter that received the permit, or taskID itself.
func (c *Coordinator) releaseIfSatisfied(taskID string) (string, bool) {
	gate, ok := c.gates[taskID]
	if !ok || gate.state != GateBlocked || !c.satisfiedLocked(taskID) {
		return "", false
	}
	if next, handed := gate.Release(); handed {
		return next, true
	}
	return taskID, true
}

// CanStart tries to take the task's start permit. On failure the task is
// queued as a waiter. Use DependencyStatus for a non-consuming check.
func (c *Coordinator) CanStart(taskID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	gate, ok := c.gates[taskID]
	if !ok {
		return false
	}
	return gate.Acquire(taskID)
}

// Refresh re-evaluates an existing gate after its edges were rewritten by
// Register. An unclaimed permit is withdrawn when dependencies are unmet again,
// and a blocked gate whose dependencies are all complete is released. A held
// gate is left alone. Returns the ids released.
func (c *Coordinator) Refresh(taskID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	gate, ok := c.gates[taskID]
	if !ok {
		return nil
	}
	if gate.state == GateReady && !c.satisfiedLocked(taskID) {
		gate.state = GateBlocked
		return nil
	}
	if id, ok := c.releaseIfSatisfied(taskID); ok {
		return []string{id}
	}
	return nil
}

// Remove purges a deleted task: its own edges, its reverse entries, and its
// occurrences in dependents' edge lists. Dependents left fully satisfied are
// released; their ids are returned.
func (c *Coordinator) Remove(taskID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, dep := range c.graph[taskID] {
		c.unlinkDependent(dep, taskID)
	}
	delete(c.graph, taskID)
	delete(c.gates, taskID)
	delete(c.completed, taskID)

	var unblocked []string
	for _, depTaskID := range c.dependents[taskID] {
		if deps, ok := c.graph[depTaskID]; ok {
			c.graph[depTaskID] = without(deps, taskID)
		}
		if id, ok := c.releaseIfSatisfied(depTaskID); ok {
			unblocked = append(unblocked, id)
		}
	}
	delete(c.dependents, taskID)

	return unblocked
}

// DependencyStatus maps each remaining dependency of taskID to whether it is completed.
func (c *Coordinator) DependencyStatus(taskID string) map[string]bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]bool)
	for _, dep := range c.graph[taskID] {
		result[dep] = c.completed[dep]
	}
	return result
}

// WaitingTasks maps every task with at least one unmet dependency to those dependencies.
func (c *Coordinator) WaitingTasks() map[string][]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.waitingLocked()
}

func (c *Coordinator) waitingLocked() map[string][]string {
	waiting := make(map[string][]string)
	for id, deps := range c.graph {
		var unmet []string
		for _, dep := range deps {
			if !c.completed[dep] {
				unmet = append(unmet, dep)
			}
		}
		if len(unmet) > 0 {
			waiting[id] = unmet
		}
	}
	return waiting
}

// Summary returns aggregate counts plus the currently detectable cycles.
func (c *Coordinator) Summary() Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cycles := c.detectLocked()
	return Summary{
		TotalTasks:     len(c.graph),
		CompletedTasks: len(c.completed),
		WaitingTasks:   len(c.waitingLocked()),
		Deadlocks:      len(cycles),
		DeadlockCycles: cycles,
	}
}

// IsCompleted reports whether taskID is in the completed set.
func (c *Coordinator) IsCompleted(taskID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.completed[taskID]
}

// IsRegistered reports whether taskID has been registered.
func (c *Coordinator) IsRegistered(taskID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.gates[taskID]
	return ok
}

// GateState returns the readiness state of a registered task without
// touching the waiter queue.
func (c *Coordinator) GateState(taskID string) (GateState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	gate, ok := c.gates[taskID]
	if !ok {
		return GateBlocked, false
	}
	return gate.state, true
}

// Waiters returns the ids queued on taskID's gate in FIFO order.
func (c *Coordinator) Waiters(taskID string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if gate, ok := c.gates[taskID]; ok {
		return gate.Waiters()
	}
	return nil
}

// Dependents returns the tasks that still depend on taskID.
func (c *Coordinator) Dependents(taskID string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.dependents[taskID]...)
}

func (c *Coordinator) satisfiedLocked(taskID string) bool {
	for _, dep := range c.graph[taskID] {
		if !c.completed[dep] {
			return false
		}
	}
	return true
}

func (c *Coordinator) unlinkDependent(depID, taskID string) {
	remaining := without(c.dependents[depID], taskID)
	if len(remaining) == 0 {
		delete(c.dependents, depID)
		return
	}
	c.dependents[depID] = remaining
}

// sortedIDs returns registered task ids in lexicographic order.
func (c *Coordinator) sortedIDs() []string {
	ids := make([]string, 0, len(c.graph))
	for id := range c.graph {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// without returns a new slice with every occurrence of id removed.
func without(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
