package wren

import "testing"

func TestUnreadLedgerCounting(t *testing.T) {
	l := NewUnreadLedger()
	bob := DirectKey("bob")

	if got := l.Count(bob); got != 0 {
		t.Fatalf("expected zero count for unknown conversation, got %d", got)
	}

	l.Increment(bob)
	l.Increment(bob)
	if got := l.Count(bob); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}

	l.Reset(bob)
	if got := l.Count(bob); got != 0 {
		t.Fatalf("expected 0 after reset, got %d", got)
	}
}

func TestUnreadLedgerBootstrapPreservesCounts(t *testing.T) {
	l := NewUnreadLedger()
	bob := DirectKey("bob")

	l.Increment(bob)
	l.Bootstrap(bob)
	if got := l.Count(bob); got != 1 {
		t.Fatalf("bootstrap clobbered existing count: got %d", got)
	}

	carol := DirectKey("carol")
	l.Bootstrap(carol)
	if got := l.Count(carol); got != 0 {
		t.Fatalf("expected bootstrapped zero, got %d", got)
	}
	if _, ok := l.Snapshot()[carol]; !ok {
		t.Fatal("bootstrap did not create an entry")
	}
}

func TestUnreadLedgerReconcile(t *testing.T) {
	l := NewUnreadLedger()
	bob := DirectKey("bob")
	carol := DirectKey("carol")
	room := RoomKey("general")

	l.Increment(bob)
	l.Increment(bob)
	l.Increment(carol)
	l.Increment(room)

	t.Run("overwrites named keys including to zero", func(t *testing.T) {
		l.Reconcile(map[ConvKey]int{bob: 5, carol: 0})
		if got := l.Count(bob); got != 5 {
			t.Fatalf("bob: expected 5, got %d", got)
		}
		if got := l.Count(carol); got != 0 {
			t.Fatalf("carol: expected 0, got %d", got)
		}
	})

	t.Run("preserves absent keys", func(t *testing.T) {
		if got := l.Count(room); got != 1 {
			t.Fatalf("room count should survive reconciliation, got %d", got)
		}
	})

	t.Run("clamps negative values", func(t *testing.T) {
		l.Reconcile(map[ConvKey]int{bob: -3})
		if got := l.Count(bob); got != 0 {
			t.Fatalf("expected clamp to 0, got %d", got)
		}
	})
}

func TestUnreadLedgerTotal(t *testing.T) {
	l := NewUnreadLedger()
	l.Increment(DirectKey("bob"))
	l.Increment(DirectKey("bob"))
	l.Increment(RoomKey("general"))
	if got := l.Total(); got != 3 {
		t.Fatalf("expected total 3, got %d", got)
	}
	if got := NewUnreadLedger().Total(); got != 0 {
		t.Fatalf("expected empty total 0, got %d", got)
	}
}

func TestUnreadLedgerSnapshotIsACopy(t *testing.T) {
	l := NewUnreadLedger()
	bob := DirectKey("bob")
	l.Increment(bob)

	snap := l.Snapshot()
	snap[bob] = 99
	if got := l.Count(bob); got != 1 {
		t.Fatalf("mutating a snapshot leaked into the ledger: got %d", got)
	}
}
