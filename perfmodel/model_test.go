package perfmodel

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"spmvbench/comm"
	"spmvbench/distmat"
	"spmvbench/timing"
)

func TestLookupInterpolation(t *testing.T) {
	table := []Entry{
		{Bytes: 8, Seconds: 1e-6},
		{Bytes: 16, Seconds: 2e-6},
		{Bytes: 64, Seconds: 8e-6},
	}

	// Exact sizes return the stored measurement.
	if got := lookup(table, 16); got != 2e-6 {
		t.Fatalf("exact hit = %v", got)
	}
	// Below and above the table clamp to the boundary entries.
	if got := lookup(table, 1); got != 1e-6 {
		t.Fatalf("below-table = %v", got)
	}
	if got := lookup(table, 1024); got != 8e-6 {
		t.Fatalf("above-table = %v", got)
	}
	// 32 bytes is the log midpoint of 16 and 64.
	if got := lookup(table, 32); math.Abs(got-5e-6) > 1e-12 {
		t.Fatalf("midpoint = %v, want 5e-6", got)
	}
	// Empty table means unavailable.
	if got := lookup(nil, 8); got != 0 {
		t.Fatalf("empty table = %v", got)
	}
}

func TestBuildStreamTables(t *testing.T) {
	w := comm.NewWorld(1)
	err := w.Run(func(c *comm.Comm) error {
		m := New(c)
		m.BuildStreamTables(10, 8)
		if len(m.stream) != 9 || len(m.corrected) != 9 {
			return fmt.Errorf("table lengths %d/%d, want 9", len(m.stream), len(m.corrected))
		}
		for i, e := range m.stream {
			if e.Bytes != 1<<i {
				return fmt.Errorf("entry %d has size %d", i, e.Bytes)
			}
			if e.Seconds < 0 || math.IsNaN(e.Seconds) {
				return fmt.Errorf("entry %d time %v", i, e.Seconds)
			}
			if m.corrected[i].Seconds < 0 {
				return fmt.Errorf("corrected entry %d negative: %v", i, m.corrected[i].Seconds)
			}
			if m.corrected[i].Seconds > e.Seconds {
				return fmt.Errorf("correction increased entry %d", i)
			}
		}
		if m.LaunchLatency() < 0 {
			return fmt.Errorf("latency %v", m.LaunchLatency())
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestStreamTableTimesGrowWithSize(t *testing.T) {
	w := comm.NewWorld(1)
	err := w.Run(func(c *comm.Comm) error {
		m := New(c)
		m.BuildStreamTables(20, 16)
		// Copy time grows with buffer size. Timer noise can flip an adjacent
		// pair at the small end, but a table that trends downward would feed
		// the model garbage.
		violations := 0
		for i := 1; i < len(m.stream); i++ {
			if m.stream[i].Seconds < m.stream[i-1].Seconds {
				violations++
			}
		}
		if violations > len(m.stream)/2 {
			return fmt.Errorf("%d of %d adjacent table entries decrease",
				violations, len(m.stream)-1)
		}
		first := m.stream[0]
		last := m.stream[len(m.stream)-1]
		if last.Seconds <= first.Seconds {
			return fmt.Errorf("copying %d bytes (%v s) not slower than %d bytes (%v s)",
				last.Bytes, last.Seconds, first.Bytes, first.Seconds)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestTablesAgreeAcrossRanks(t *testing.T) {
	w := comm.NewWorld(2)
	results := make([][]Entry, 2)
	err := w.Run(func(c *comm.Comm) error {
		m := New(c)
		m.BuildStreamTables(5, 6)
		m.BuildPingpongTable(5, 6)
		own := make([]Entry, len(m.stream))
		copy(own, m.stream)
		own = append(own, m.pingpong...)
		results[c.Rank()] = own
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results[0]) != len(results[1]) {
		t.Fatalf("table lengths differ: %d vs %d", len(results[0]), len(results[1]))
	}
	for i := range results[0] {
		if results[0][i] != results[1][i] {
			t.Fatalf("entry %d differs across ranks: %v vs %v", i, results[0][i], results[1][i])
		}
	}
}

func TestHalopongWithoutImporter(t *testing.T) {
	w := comm.NewWorld(1)
	err := w.Run(func(c *comm.Comm) error {
		m := New(c)
		m.BuildHalopongTable(5, 6, nil)
		if got := m.LookupHalopong(64); got != 0 {
			return fmt.Errorf("halo lookup without a pattern = %v", got)
		}
		var sb strings.Builder
		m.PrintHalopongTable(&sb)
		if !strings.Contains(sb.String(), "no halo pattern") {
			return fmt.Errorf("missing note: %q", sb.String())
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestHalopongTableBuilds(t *testing.T) {
	w := comm.NewWorld(2)
	err := w.Run(func(c *comm.Comm) error {
		a, err := distmat.NewLaplace2D(c, 4, 4)
		if err != nil {
			return err
		}
		if a.Importer() == nil {
			return fmt.Errorf("expected a halo pattern")
		}
		m := New(c)
		m.BuildHalopongTable(3, 6, a.Importer())
		if len(m.halopong) != 7 {
			return fmt.Errorf("table length %d, want 7", len(m.halopong))
		}
		for _, e := range m.halopong {
			if e.Seconds < 0 || math.IsNaN(e.Seconds) {
				return fmt.Errorf("bad entry %v", e)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestReportSpmv(t *testing.T) {
	w := comm.NewWorld(2)
	var report strings.Builder
	err := w.Run(func(c *comm.Comm) error {
		a, err := distmat.NewLaplace2D(c, 8, 8)
		if err != nil {
			return err
		}
		m := New(c)
		m.BuildStreamTables(3, 12)
		m.BuildPingpongTable(3, 10)
		m.BuildHalopongTable(3, 8, a.Importer())

		reg := timing.NewRegistry()
		stop := reg.Start("MV Native: Total")
		stop()
		reg.Start("setup")() // not an MV timer, must not appear as a row

		var out strings.Builder
		ReportSpmv(&out, m, a, reg, true)
		if c.Rank() == 0 {
			report.WriteString(out.String())
		} else if out.Len() != 0 {
			return fmt.Errorf("rank %d wrote %d bytes", c.Rank(), out.Len())
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	out := report.String()
	for _, want := range []string{
		"Minimum time model (composite)",
		"Pack/unpack out-of-place",
		"Communication time (halo)",
		"MV Native: Total",
		"Comp+halo+ooplace",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
}

func TestReportSpmvStackedNote(t *testing.T) {
	w := comm.NewWorld(1)
	err := w.Run(func(c *comm.Comm) error {
		a, err := distmat.NewLaplace2D(c, 4, 4)
		if err != nil {
			return err
		}
		m := New(c)
		m.BuildStreamTables(3, 8)
		var out strings.Builder
		ReportSpmv(&out, m, a, nil, false)
		if !strings.Contains(out.String(), "stacked timers off") {
			return fmt.Errorf("missing stacked-timer note:\n%s", out.String())
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}
