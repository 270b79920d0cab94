package coordinator

import (
	"sort"
	"sync"
	"testing"

	"github.com/aristath/planner/internal/task"
)

func newTask(id string, deps ...string) *task.Task {
	return &task.Task{ID: id, Name: id, Duration: 30, Priority: 3, Dependencies: deps, Status: task.StatusPending}
}

func completedTask(id string, deps ...string) *task.Task {
	tk := newTask(id, deps...)
	tk.Status = task.StatusCompleted
	return tk
}

func TestRegisterInitialGate(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(c *Coordinator)
		check     string
		wantState GateState
	}{
		{
			name:      "no dependencies is ready",
			setup:     func(c *Coordinator) { c.Register(newTask("A")) },
			check:     "A",
			wantState: GateReady,
		},
		{
			name: "pending dependency blocks",
			setup: func(c *Coordinator) {
				c.Register(newTask("A"))
				c.Register(newTask("B", "A"))
			},
			check:     "B",
			wantState: GateBlocked,
		},
		{
			name: "completed dependency is ready",
			setup: func(c *Coordinator) {
				c.Register(completedTask("A"))
				c.Register(newTask("B", "A"))
			},
			check:     "B",
			wantState: GateReady,
		},
		{
			name: "completed task releases registered dependent",
			setup: func(c *Coordinator) {
				c.Register(newTask("B", "A"))
				c.Register(completedTask("A"))
			},
			check:     "B",
			wantState: GateReady,
		},
		{
			name:      "unknown dependency blocks",
			setup:     func(c *Coordinator) { c.Register(newTask("B", "ghost")) },
			check:     "B",
			wantState: GateBlocked,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(nil)
			tt.setup(c)

			state, ok := c.GateState(tt.check)
			if !ok {
				t.Fatalf("task %q not registered", tt.check)
			}
			if state != tt.wantState {
				t.Errorf("gate state = %s, want %s", state, tt.wantState)
			}
		})
	}
}

func TestRegisterIdempotent(t *testing.T) {
	c := New(nil)
	c.Register(newTask("A"))
	c.Register(newTask("B", "A", "A"))
	c.Register(newTask("B", "A"))

	if got := c.Dependents("A"); len(got) != 1 || got[0] != "B" {
		t.Errorf("dependents of A = %v, want [B]", got)
	}
	if got := c.DependencyStatus("B"); len(got) != 1 {
		t.Errorf("dependency status = %v, want one entry", got)
	}
}

func TestRegisterDropsStaleReverseEdges(t *testing.T) {
	c := New(nil)
	c.Register(newTask("B", "A"))
	c.Register(newTask("B", "C"))

	if got := c.Dependents("A"); len(got) != 0 {
		t.Errorf("dependents of A = %v, want none", got)
	}
	if got := c.Dependents("C"); len(got) != 1 || got[0] != "B" {
		t.Errorf("dependents of C = %v, want [B]", got)
	}
}

func TestLoadOrderIndependent(t *testing.T) {
	forward := []*task.Task{completedTask("A"), newTask("B", "A"), newTask("C", "B")}
	backward := []*task.Task{newTask("C", "B"), newTask("B", "A"), completedTask("A")}

	for name, tasks := range map[string][]*task.Task{"forward": forward, "backward": backward} {
		t.Run(name, func(t *testing.T) {
			c := New(nil)
			c.Load(tasks)

			if state, _ := c.GateState("B"); state != GateReady {
				t.Errorf("B gate = %s, want ready", state)
			}
			if state, _ := c.GateState("C"); state != GateBlocked {
				t.Errorf("C gate = %s, want blocked", state)
			}
			if status := c.DependencyStatus("B"); len(status) != 0 {
				t.Errorf("B dependency status = %v, want empty", status)
			}
			if status := c.DependencyStatus("C"); status["B"] {
				t.Errorf("C dependency status = %v, want B unmet", status)
			}
		})
	}
}

func TestMarkCompletedUnblocksDependents(t *testing.T) {
	c := New(nil)
	c.Load([]*task.Task{newTask("A"), newTask("B", "A"), newTask("C", "A"), newTask("D", "A", "B")})

	unblocked := c.MarkCompleted("A")
	sort.Strings(unblocked)
	if len(unblocked) != 2 || unblocked[0] != "B" || unblocked[1] != "C" {
		t.Fatalf("unblocked = %v, want [B C]", unblocked)
	}

	if status := c.DependencyStatus("D"); len(status) != 1 || status["B"] {
		t.Errorf("D status = %v, want {B:false}", status)
	}

	unblocked = c.MarkCompleted("B")
	if len(unblocked) != 1 || unblocked[0] != "D" {
		t.Errorf("unblocked = %v, want [D]", unblocked)
	}
}

func TestMarkCompletedIdempotent(t *testing.T) {
	c := New(nil)
	c.Load([]*task.Task{newTask("A"), newTask("B", "A")})

	first := c.MarkCompleted("A")
	second := c.MarkCompleted("A")

	if len(first) != 1 {
		t.Errorf("first call unblocked %v, want [B]", first)
	}
	if len(second) != 0 {
		t.Errorf("second call unblocked %v, want none", second)
	}
	if !c.IsCompleted("A") {
		t.Error("A should be completed")
	}
	if got := c.Summary().CompletedTasks; got != 1 {
		t.Errorf("completed count = %d, want 1", got)
	}
}

func TestMarkCompletedHandsPermitToWaiter(t *testing.T) {
	c := New(nil)
	c.Load([]*task.Task{newTask("A"), newTask("B", "A")})

	if c.CanStart("B") {
		t.Fatal("B should be blocked")
	}

	unblocked := c.MarkCompleted("A")
	if len(unblocked) != 1 || unblocked[0] != "B" {
		t.Fatalf("unblocked = %v, want [B]", unblocked)
	}
	if state, _ := c.GateState("B"); state != GateHeld {
		t.Errorf("B gate = %s, want held by waiter", state)
	}
	if w := c.Waiters("B"); len(w) != 0 {
		t.Errorf("B waiters = %v, want none after handoff", w)
	}
}

func TestCanStart(t *testing.T) {
	c := New(nil)
	c.Register(newTask("A"))

	if !c.CanStart("A") {
		t.Fatal("task without dependencies should start on first call")
	}
	if c.CanStart("A") {
		t.Error("permit should be consumed after first start")
	}
	if c.CanStart("missing") {
		t.Error("unregistered task should not start")
	}
}

func TestRefreshAfterRegister(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(c *Coordinator)
		update    *task.Task
		wantState GateState
		released  []string
	}{
		{
			name:      "new dependency withdraws unclaimed permit",
			setup:     func(c *Coordinator) { c.Load([]*task.Task{newTask("A"), newTask("B")}) },
			update:    newTask("B", "A"),
			wantState: GateBlocked,
		},
		{
			name:      "dropped dependency releases blocked gate",
			setup:     func(c *Coordinator) { c.Load([]*task.Task{newTask("A"), newTask("B", "A")}) },
			update:    newTask("B"),
			wantState: GateReady,
			released:  []string{"B"},
		},
		{
			name: "held gate is left alone",
			setup: func(c *Coordinator) {
				c.Load([]*task.Task{newTask("A"), newTask("B")})
				c.CanStart("B")
			},
			update:    newTask("B", "A"),
			wantState: GateHeld,
		},
		{
			name:      "dependency on completed task keeps permit",
			setup:     func(c *Coordinator) { c.Load([]*task.Task{completedTask("A"), newTask("B")}) },
			update:    newTask("B", "A"),
			wantState: GateReady,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(nil)
			tt.setup(c)
			c.Register(tt.update)

			released := c.Refresh(tt.update.ID)
			if len(released) != len(tt.released) || (len(released) > 0 && released[0] != tt.released[0]) {
				t.Errorf("released = %v, want %v", released, tt.released)
			}
			if state, _ := c.GateState(tt.update.ID); state != tt.wantState {
				t.Errorf("gate = %s, want %s", state, tt.wantState)
			}
		})
	}
}

func TestRefreshUnknownTask(t *testing.T) {
	c := New(nil)
	if got := c.Refresh("missing"); got != nil {
		t.Errorf("Refresh(missing) = %v, want nil", got)
	}
}

func TestRemove(t *testing.T) {
	c := New(nil)
	c.Load([]*task.Task{newTask("A"), newTask("B", "A"), newTask("C", "A", "B")})

	unblocked := c.Remove("A")
	if len(unblocked) != 1 || unblocked[0] != "B" {
		t.Fatalf("unblocked = %v, want [B]", unblocked)
	}
	if c.IsRegistered("A") {
		t.Error("A should be unregistered")
	}
	if status := c.DependencyStatus("C"); len(status) != 1 {
		t.Errorf("C status = %v, want only B", status)
	}
	if got := c.Dependents("A"); len(got) != 0 {
		t.Errorf("dependents of A = %v, want none", got)
	}
	if got := c.Summary().TotalTasks; got != 2 {
		t.Errorf("total tasks = %d, want 2", got)
	}
}

func TestWaitingTasksAndSummary(t *testing.T) {
	c := New(nil)
	c.Load([]*task.Task{completedTask("A"), newTask("B", "A"), newTask("C", "B", "ghost")})

	waiting := c.WaitingTasks()
	if len(waiting) != 1 || len(waiting["C"]) != 2 {
		t.Errorf("waiting = %v, want C -> [B ghost]", waiting)
	}

	s := c.Summary()
	if s.TotalTasks != 3 || s.CompletedTasks != 1 || s.WaitingTasks != 1 || s.Deadlocks != 0 {
		t.Errorf("summary = %+v", s)
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New(nil)
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		id := string(rune('a' + i%26))
		wg.Add(3)
		go func() {
			defer wg.Done()
			c.Register(newTask(id+"x", id))
		}()
		go func() {
			defer wg.Done()
			c.MarkCompleted(id)
		}()
		go func() {
			defer wg.Done()
			_ = c.Summary()
			_ = c.DependencyStatus(id + "x")
		}()
	}
	wg.Wait()

	if got := c.Summary().Deadlocks; got != 0 {
		t.Errorf("deadlocks = %d, want 0", got)
	}
}
