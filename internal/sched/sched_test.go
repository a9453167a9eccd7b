package sched

import "testing"

type fakeTask struct{ id int }

func (f *fakeTask) ID() int { return f.id }

func TestReadyFIFO(t *testing.T) {
	s := New()
	a, b, c := &fakeTask{1}, &fakeTask{2}, &fakeTask{3}
	s.AddTask(a)
	s.AddTask(b)
	s.AddTask(c)
	for _, want := range []*fakeTask{a, b, c} {
		got, ok := s.FetchTask()
		if !ok || got.(*fakeTask) != want {
			t.Fatalf("expected %v, got %v (ok=%v)", want, got, ok)
		}
	}
	if _, ok := s.FetchTask(); ok {
		t.Fatal("expected empty ready queue")
	}
}

func TestSleepHeapOrdering(t *testing.T) {
	s := New()
	a, b, c := &fakeTask{1}, &fakeTask{2}, &fakeTask{3}
	s.SleepUntil(a, 300)
	s.SleepUntil(b, 100)
	s.SleepUntil(c, 200)

	woken := s.PollSleepers(150)
	if len(woken) != 1 || woken[0].(*fakeTask) != b {
		t.Fatalf("expected only b woken at t=150, got %v", woken)
	}
	woken = s.PollSleepers(1000)
	if len(woken) != 2 || woken[0].(*fakeTask) != c || woken[1].(*fakeTask) != a {
		t.Fatalf("expected c then a in wake-time order, got %v", woken)
	}
}

func TestBlockedTimeoutPromotesToReady(t *testing.T) {
	s := New()
	a := &fakeTask{1}
	s.Block(a, 100, "futex")
	if woken := s.PollBlocked(50); len(woken) != 0 {
		t.Fatalf("expected no timeout yet, got %v", woken)
	}
	woken := s.PollBlocked(150)
	if len(woken) != 1 || woken[0].(*fakeTask) != a {
		t.Fatalf("expected a to time out, got %v", woken)
	}
	got, ok := s.FetchTask()
	if !ok || got.(*fakeTask) != a {
		t.Fatal("expected timed-out task to land on the ready queue")
	}
}

func TestUnblockByPredicate(t *testing.T) {
	s := New()
	a, b := &fakeTask{1}, &fakeTask{2}
	s.Block(a, 0, "futex")
	s.Block(b, 0, "futex")
	got, ok := s.Unblock(func(t Task) bool { return t.(*fakeTask).id == 2 })
	if !ok || got.(*fakeTask) != b {
		t.Fatal("expected to unblock b by predicate")
	}
	if _, ok := s.Unblock(func(t Task) bool { return t.(*fakeTask).id == 2 }); ok {
		t.Fatal("expected b to already be removed")
	}
}

func TestProcessorCurrent(t *testing.T) {
	s := New()
	if _, ok := s.Processor().Current(); ok {
		t.Fatal("expected no current task initially")
	}
	a := &fakeTask{1}
	s.Run(a)
	got, ok := s.Processor().Current()
	if !ok || got.(*fakeTask) != a {
		t.Fatal("expected a to be current")
	}
	s.Idle()
	if _, ok := s.Processor().Current(); ok {
		t.Fatal("expected idle to clear current")
	}
}
