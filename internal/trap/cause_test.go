package trap

import "testing"

func TestClassifySyscall(t *testing.T) {
	kind, _ := Classify(ExcUserEcall)
	if kind != KindSyscall {
		t.Fatalf("got %v, want KindSyscall", kind)
	}
}

func TestClassifyPageFaults(t *testing.T) {
	cases := []struct {
		scause uint64
		access FaultAccess
	}{
		{ExcLoadPageFault, FaultAccessLoad},
		{ExcStorePageFault, FaultAccessStore},
		{ExcInstrPageFault, FaultAccessExec},
	}
	for _, c := range cases {
		kind, access := Classify(c.scause)
		if kind != KindPageFault {
			t.Fatalf("scause %d: got kind %v, want KindPageFault", c.scause, kind)
		}
		if access != c.access {
			t.Fatalf("scause %d: got access %v, want %v", c.scause, access, c.access)
		}
	}
}

func TestClassifyTimerInterrupt(t *testing.T) {
	kind, _ := Classify(interruptBit | IntSupervisorTimer)
	if kind != KindTimerInterrupt {
		t.Fatalf("got %v, want KindTimerInterrupt", kind)
	}
}

func TestClassifyIllegalInstruction(t *testing.T) {
	kind, _ := Classify(ExcIllegalInstr)
	if kind != KindIllegalInstruction {
		t.Fatalf("got %v, want KindIllegalInstruction", kind)
	}
}

func TestContextView(t *testing.T) {
	var page [4096]byte
	cx := View(&page)
	cx.Sepc = 0x1000
	cx.X[RegA0] = 42
	again := View(&page)
	if again.Sepc != 0x1000 || again.X[RegA0] != 42 {
		t.Fatalf("view did not alias underlying page")
	}
}
