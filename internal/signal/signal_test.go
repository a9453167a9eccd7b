package signal

import "testing"

func TestNextDeliverableOrdering(t *testing.T) {
	pending := Bit(SIGUSR2) | Bit(SIGINT) | Bit(SIGTERM)
	sig, ok := NextDeliverable(pending, 0)
	if !ok || sig != SIGINT {
		t.Fatalf("got (%d,%v), want (%d,true)", sig, ok, SIGINT)
	}
}

func TestNextDeliverableRespectsMask(t *testing.T) {
	pending := Bit(SIGINT) | Bit(SIGTERM)
	mask := Bit(SIGINT)
	sig, ok := NextDeliverable(pending, mask)
	if !ok || sig != SIGTERM {
		t.Fatalf("got (%d,%v), want (%d,true)", sig, ok, SIGTERM)
	}
}

func TestNextDeliverableNoneReady(t *testing.T) {
	if _, ok := NextDeliverable(0, 0); ok {
		t.Fatal("expected no deliverable signal")
	}
	pending := Bit(SIGINT)
	if _, ok := NextDeliverable(pending, pending); ok {
		t.Fatal("fully masked pending signal should not be deliverable")
	}
}

func TestDefaultDispositionTable(t *testing.T) {
	if DefaultDisposition(SIGCHLD) != DispIgn {
		t.Fatal("SIGCHLD should default to ignore")
	}
	if DefaultDisposition(SIGSEGV) != DispCore {
		t.Fatal("SIGSEGV should default to core dump")
	}
	if DefaultDisposition(SIGTERM) != DispTerm {
		t.Fatal("SIGTERM should default to terminate")
	}
	if DefaultDisposition(SIGSTOP) != DispStop {
		t.Fatal("SIGSTOP should default to stop")
	}
}

func TestTableSetGetRoundTrip(t *testing.T) {
	tbl := NewTable()
	act := Action{Handler: 0x4000, Mask: Bit(SIGINT), Flags: SA_RESTART}
	old := tbl.Set(SIGUSR1, act)
	if old.Handler != SIG_DFL {
		t.Fatalf("expected default old action, got %+v", old)
	}
	got := tbl.Get(SIGUSR1)
	if got != act {
		t.Fatalf("got %+v, want %+v", got, act)
	}
}

func TestResetOnExecKeepsIgnored(t *testing.T) {
	tbl := NewTable()
	tbl.Set(SIGUSR1, Action{Handler: 0x4000})
	tbl.Set(SIGUSR2, Action{Handler: SIG_IGN})
	tbl.ResetOnExec()
	if tbl.Get(SIGUSR1).Handler != SIG_DFL {
		t.Fatal("non-ignored handler should reset to SIG_DFL on exec")
	}
	if tbl.Get(SIGUSR2).Handler != SIG_IGN {
		t.Fatal("SIG_IGN disposition should survive exec")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	tbl := NewTable()
	tbl.Set(SIGUSR1, Action{Handler: 0x4000})
	clone := tbl.Clone()
	clone.Set(SIGUSR1, Action{Handler: 0x8000})
	if tbl.Get(SIGUSR1).Handler != 0x4000 {
		t.Fatal("mutating clone should not affect original table")
	}
}
