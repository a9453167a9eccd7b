package proc

import "testing"

func TestAccntAddMerges(t *testing.T) {
	a := &Accnt{Userns: 100, Sysns: 50}
	b := &Accnt{Userns: 10, Sysns: 5}
	a.Add(b)
	if a.Userns != 110 || a.Sysns != 55 {
		t.Fatalf("got {%d,%d}, want {110,55}", a.Userns, a.Sysns)
	}
}

func TestAccntToRusageConvertsNanosToTimeval(t *testing.T) {
	a := &Accnt{Userns: 2_500_000, Sysns: 1_000_000}
	ru := a.ToRusage()
	if ru.UtimeSec != 0 || ru.UtimeUsec != 2500 {
		t.Fatalf("got utime {%d,%d}, want {0,2500}", ru.UtimeSec, ru.UtimeUsec)
	}
	if ru.StimeSec != 0 || ru.StimeUsec != 1000 {
		t.Fatalf("got stime {%d,%d}, want {0,1000}", ru.StimeSec, ru.StimeUsec)
	}
}

func TestAccntUtaddSystadd(t *testing.T) {
	a := &Accnt{}
	a.Utadd(100)
	a.Systadd(200)
	if a.Userns != 100 || a.Sysns != 200 {
		t.Fatalf("got {%d,%d}, want {100,200}", a.Userns, a.Sysns)
	}
}
