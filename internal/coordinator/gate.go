package coordinator

// GateState is the readiness state of a single task.
type GateState int

const (
	GateBlocked GateState = iota // Unmet dependencies, no permit
	GateReady                    // Permit available
	GateHeld                     // Permit granted to a caller
)

// String returns a lowercase name for the state.
func (s GateState) String() string {
	switch s {
	case GateReady:
		return "ready"
	case GateHeld:
		return "held"
	default:
		return "blocked"
	}
}

// Gate is a single-permit readiness gate with a FIFO waiter queue.
// It grants at most one start per task; it is not a resource-pool semaphore.
// Gates are not safe for concurrent use; the Coordinator lock guards them.
type Gate struct {
	state   GateState
	waiters []string
}

func newGate(ready bool) *Gate {
	if ready {
		return &Gate{state: GateReady}
	}
	return &Gate{state: GateBlocked}
}

// State returns the current gate state.
func (g *Gate) State() GateState {
	return g.state
}

// Waiters returns a copy of the waiter queue in FIFO order.
func (g *Gate) Waiters() []string {
	return append([]string(nil), g.waiters...)
}

// Acquire consumes the permit if present. Otherwise id joins the waiter queue
// (at most once) and Acquire reports false.
func (g *Gate) Acquire(id string) bool {
	if g.state == GateReady {
		g.state = GateHeld
		return true
	}
	for _, w := range g.waiters {
		if w == id {
			return false
		}
	}
	g.waiters = append(g.waiters, id)
	return false
}

// Release hands the permit to the oldest waiter and returns its id, or makes
// the permit available again when nobody is waiting.
func (g *Gate) Release() (string, bool) {
	if len(g.waiters) > 0 {
		next := g.waiters[0]
		g.waiters = g.waiters[1:]
		g.state = GateHeld
		return next, true
	}
	g.state = GateReady
	return "", false
}
