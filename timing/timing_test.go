package timing

import (
	"strings"
	"testing"
	"time"
)

func TestRegistryAccumulates(t *testing.T) {
	reg := NewRegistry()
	for i := 0; i < 5; i++ {
		stop := reg.Start("work")
		time.Sleep(time.Millisecond)
		stop()
	}
	tm := reg.Lookup("work")
	if tm == nil {
		t.Fatal("timer not registered")
	}
	if tm.Count() != 5 {
		t.Fatalf("count = %d, want 5", tm.Count())
	}
	if tm.Total() < 5*time.Millisecond {
		t.Fatalf("total %v below the slept time", tm.Total())
	}
	if tm.Min() > tm.Max() {
		t.Fatalf("min %v above max %v", tm.Min(), tm.Max())
	}
	if tm.PerCall() <= 0 {
		t.Fatalf("per-call = %v", tm.PerCall())
	}
}

func TestRegistryOrderAndSummary(t *testing.T) {
	reg := NewRegistry()
	reg.Start("b")()
	reg.Start("a")()
	reg.Start("b")()

	names := reg.Names()
	if len(names) != 2 || names[0] != "b" || names[1] != "a" {
		t.Fatalf("names = %v, want first-use order [b a]", names)
	}

	var sb strings.Builder
	reg.Summarize(&sb)
	out := sb.String()
	if !strings.Contains(out, "a") || !strings.Contains(out, "b") {
		t.Fatalf("summary missing timers:\n%s", out)
	}
}

func TestLookupUnknown(t *testing.T) {
	reg := NewRegistry()
	if reg.Lookup("nope") != nil {
		t.Fatal("lookup of unknown timer must return nil")
	}
}

func TestStackedPaths(t *testing.T) {
	st := NewStackedTimer()
	stopOuter := st.Start("outer")
	stopInner := st.Start("inner")
	stopInner()
	stopOuter()

	if st.Lookup("outer") == nil {
		t.Fatal("outer path missing")
	}
	inner := st.Lookup("outer / inner")
	if inner == nil {
		t.Fatal("nested path missing")
	}
	if inner.Count() != 1 {
		t.Fatalf("inner count = %d", inner.Count())
	}

	var sb strings.Builder
	st.Report(&sb)
	if !strings.Contains(sb.String(), "    inner") {
		t.Fatalf("report not indented:\n%s", sb.String())
	}
}

func TestStackedOutOfOrderStopPanics(t *testing.T) {
	st := NewStackedTimer()
	stopOuter := st.Start("outer")
	st.Start("inner")
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on out-of-order stop")
		}
	}()
	stopOuter()
}
