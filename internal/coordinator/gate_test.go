package coordinator

import "testing"

func TestGateAcquireReady(t *testing.T) {
	g := newGate(true)

	if !g.Acquire("a") {
		t.Fatal("expected ready gate to grant permit")
	}
	if g.State() != GateHeld {
		t.Errorf("state = %s, want held", g.State())
	}
	if g.Acquire("a") {
		t.Error("expected second acquire to fail")
	}
	if got := g.Waiters(); len(got) != 1 || got[0] != "a" {
		t.Errorf("waiters = %v, want [a]", got)
	}
}

func TestGateBlockedQueuesOnce(t *testing.T) {
	g := newGate(false)

	g.Acquire("a")
	g.Acquire("a")
	g.Acquire("b")

	if got := g.Waiters(); len(got) != 2 {
		t.Fatalf("waiters = %v, want 2 entries", got)
	}
}

func TestGateReleaseHandsToFirstWaiter(t *testing.T) {
	g := newGate(false)
	g.Acquire("a")
	g.Acquire("b")

	next, handed := g.Release()
	if !handed || next != "a" {
		t.Fatalf("Release() = %q, %v; want a, true", next, handed)
	}
	if g.State() != GateHeld {
		t.Errorf("state = %s, want held", g.State())
	}

	next, handed = g.Release()
	if !handed || next != "b" {
		t.Fatalf("Release() = %q, %v; want b, true", next, handed)
	}

	next, handed = g.Release()
	if handed || next != "" {
		t.Fatalf("Release() = %q, %v; want empty, false", next, handed)
	}
	if g.State() != GateReady {
		t.Errorf("state = %s, want ready", g.State())
	}
}

func TestGateReleaseIsBinary(t *testing.T) {
	g := newGate(false)
	g.Release()
	g.Release()

	if !g.Acquire("a") {
		t.Fatal("expected permit after release")
	}
	if g.Acquire("b") {
		t.Error("gate granted a second permit")
	}
}
