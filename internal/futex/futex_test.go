package futex

import (
	"testing"

	"rvkernel/internal/sched"
)

type fakeTask struct{ id int }

func (f *fakeTask) ID() int { return f.id }

func TestWaitThenWakeMovesTaskToReady(t *testing.T) {
	sch := sched.New()
	m := New()
	task := &fakeTask{id: 1}

	m.Wait(sch, task, 0x1000, 0)
	if sch.ReadyLen() != 0 {
		t.Fatal("waiting task should not be ready")
	}
	if woken := m.Wake(sch, 0x1000, 1); woken != 1 {
		t.Fatalf("got %d woken, want 1", woken)
	}
	if sch.ReadyLen() != 1 {
		t.Fatal("woken task should be back in the ready queue")
	}
}

func TestWakeIsFIFO(t *testing.T) {
	sch := sched.New()
	m := New()
	a, b := &fakeTask{id: 1}, &fakeTask{id: 2}
	m.Wait(sch, a, 0x2000, 0)
	m.Wait(sch, b, 0x2000, 0)

	m.Wake(sch, 0x2000, 1)
	got, _ := sch.FetchTask()
	if got != sched.Task(a) {
		t.Fatalf("expected FIFO-first waiter woken first")
	}
}

func TestWakeBeforeWaitDoesNotBlockAnyone(t *testing.T) {
	sch := sched.New()
	m := New()
	if woken := m.Wake(sch, 0x3000, 5); woken != 0 {
		t.Fatalf("waking an empty queue should wake nobody, got %d", woken)
	}
}

func TestRequeueMovesRemainingWaitersWithoutWaking(t *testing.T) {
	sch := sched.New()
	m := New()
	a, b, c := &fakeTask{id: 1}, &fakeTask{id: 2}, &fakeTask{id: 3}
	m.Wait(sch, a, 0x4000, 0)
	m.Wait(sch, b, 0x4000, 0)
	m.Wait(sch, c, 0x4000, 0)

	woken, requeued := m.Requeue(sch, 0x4000, 0x5000, 1, 10)
	if woken != 1 || requeued != 2 {
		t.Fatalf("got (%d,%d), want (1,2)", woken, requeued)
	}
	if sch.ReadyLen() != 1 {
		t.Fatal("only the woken waiter should be ready")
	}
	if m.QueueLen(0x5000) != 2 {
		t.Fatalf("got %d still queued on target, want 2", m.QueueLen(0x5000))
	}
	if m.QueueLen(0x4000) != 0 {
		t.Fatal("source queue should be drained")
	}
}

func TestCancelWaitRemovesWithoutWaking(t *testing.T) {
	sch := sched.New()
	m := New()
	task := &fakeTask{id: 1}
	m.Wait(sch, task, 0x6000, 1)
	m.CancelWait(0x6000, task)
	if m.QueueLen(0x6000) != 0 {
		t.Fatal("cancelled wait should be removed from the queue")
	}
}
