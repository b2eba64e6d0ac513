package event

import "testing"

func TestLegalTransitionsFromActive(t *testing.T) {
	for _, to := range []LifecycleState{Inactive, Migrating, Cloning, Terminated} {
		if !CanTransition(Active, to) {
			t.Fatalf("expected ACTIVE -> %s to be legal", to)
		}
	}
}

func TestIllegalTransitions(t *testing.T) {
	cases := []struct{ from, to LifecycleState }{
		{Terminated, Active},
		{Inactive, Migrating},
		{Inactive, Cloning},
		{Migrating, Cloning},
		{Cloning, Migrating},
	}
	for _, c := range cases {
		if CanTransition(c.from, c.to) {
			t.Fatalf("expected %s -> %s to be illegal", c.from, c.to)
		}
		if err := ValidateTransition(c.from, c.to); err == nil {
			t.Fatalf("expected error validating %s -> %s", c.from, c.to)
		}
	}
}

func TestTerminatedIsAbsorbing(t *testing.T) {
	if !Terminated.IsTerminal() {
		t.Fatal("TERMINATED should be terminal")
	}
	for _, to := range []LifecycleState{Inactive, Active, Migrating, Cloning, Terminated} {
		if CanTransition(Terminated, to) {
			t.Fatalf("TERMINATED should have no outgoing edge to %s", to)
		}
	}
}

func TestMigratingAndCloningReturnToActiveOrTerminate(t *testing.T) {
	for _, from := range []LifecycleState{Migrating, Cloning} {
		if !CanTransition(from, Active) {
			t.Fatalf("expected %s -> ACTIVE to be legal", from)
		}
		if !CanTransition(from, Terminated) {
			t.Fatalf("expected %s -> TERMINATED to be legal", from)
		}
	}
}

func TestLifecycleStateString(t *testing.T) {
	cases := map[LifecycleState]string{
		Inactive:   "INACTIVE",
		Active:     "ACTIVE",
		Migrating:  "MIGRATING",
		Cloning:    "CLONING",
		Terminated: "TERMINATED",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Fatalf("%d.String() = %q, want %q", s, got, want)
		}
	}
}
