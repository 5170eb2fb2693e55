// Package timing provides named wall-clock timers for benchmark loops: a
// flat registry keyed by name, and a stacked variant that reports nested
// sections with indentation. Timers accumulate across calls; reports print
// in first-use order.
package timing

import (
	"fmt"
	"io"
	"sort"
	"time"
)

// Timer accumulates the wall-clock statistics of one named section.
type Timer struct {
	count int
	total time.Duration
	min   time.Duration
	max   time.Duration
}

func (t *Timer) add(d time.Duration) {
	if t.count == 0 || d < t.min {
		t.min = d
	}
	if d > t.max {
		t.max = d
	}
	t.count++
	t.total += d
}

// Count returns how many times the section ran.
func (t *Timer) Count() int { return t.count }

// Total returns the accumulated wall time.
func (t *Timer) Total() time.Duration { return t.total }

// Min returns the shortest single run.
func (t *Timer) Min() time.Duration { return t.min }

// Max returns the longest single run.
func (t *Timer) Max() time.Duration { return t.max }

// PerCall returns the mean seconds per run, or 0 before the first run.
func (t *Timer) PerCall() float64 {
	if t.count == 0 {
		return 0
	}
	return t.total.Seconds() / float64(t.count)
}

// Registry is a set of timers keyed by name. Not safe for concurrent use;
// each rank keeps its own.
type Registry struct {
	order  []string
	timers map[string]*Timer
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{timers: make(map[string]*Timer)}
}

// Start begins timing the named section, creating the timer on first use,
// and returns the closure that stops it:
//
//	stop := reg.Start("MV Native: Total")
//	...
//	stop()
func (r *Registry) Start(name string) func() {
	t, ok := r.timers[name]
	if !ok {
		t = &Timer{}
		r.timers[name] = t
		r.order = append(r.order, name)
	}
	begin := time.Now()
	return func() { t.add(time.Since(begin)) }
}

// Lookup returns the named timer, or nil if it never started.
func (r *Registry) Lookup(name string) *Timer {
	return r.timers[name]
}

// Names returns the timer names in first-use order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Summarize prints one line per timer in first-use order.
func (r *Registry) Summarize(w io.Writer) {
	width := 0
	for _, name := range r.order {
		if len(name) > width {
			width = len(name)
		}
	}
	fmt.Fprintf(w, "%-*s %8s %14s %14s %14s %14s\n",
		width, "Timer", "Count", "Total (s)", "Mean (s)", "Min (s)", "Max (s)")
	for _, name := range r.order {
		t := r.timers[name]
		fmt.Fprintf(w, "%-*s %8d %14.6e %14.6e %14.6e %14.6e\n",
			width, name, t.count, t.total.Seconds(), t.PerCall(),
			t.min.Seconds(), t.max.Seconds())
	}
}

// StackedTimer tracks nested sections. Start pushes a frame; the returned
// closure pops it. Statistics accumulate per full path ("a / b / c"), and
// the report indents by depth.
type StackedTimer struct {
	stack []string
	flat  *Registry
	depth map[string]int
}

// NewStackedTimer returns an empty stacked timer.
func NewStackedTimer() *StackedTimer {
	return &StackedTimer{
		flat:  NewRegistry(),
		depth: make(map[string]int),
	}
}

// Start opens a nested section; the closure closes it. Sections must close
// in reverse open order.
func (s *StackedTimer) Start(name string) func() {
	s.stack = append(s.stack, name)
	path := s.path()
	if _, ok := s.depth[path]; !ok {
		s.depth[path] = len(s.stack) - 1
	}
	stop := s.flat.Start(path)
	return func() {
		stop()
		if len(s.stack) == 0 || s.stack[len(s.stack)-1] != name {
			panic(fmt.Sprintf("timing: stopping %q out of order", name))
		}
		s.stack = s.stack[:len(s.stack)-1]
	}
}

func (s *StackedTimer) path() string {
	path := s.stack[0]
	for _, n := range s.stack[1:] {
		path += " / " + n
	}
	return path
}

// Lookup returns the timer at the full path, or nil.
func (s *StackedTimer) Lookup(path string) *Timer {
	return s.flat.Lookup(path)
}

// Names returns the recorded paths in first-use order.
func (s *StackedTimer) Names() []string {
	return s.flat.Names()
}

// Report prints the tree, children indented under parents, siblings in
// first-use order.
func (s *StackedTimer) Report(w io.Writer) {
	names := s.flat.Names()
	// First-use order already lists a parent before its children; a stable
	// sort by path groups subtrees without reordering siblings.
	sort.SliceStable(names, func(a, b int) bool {
		return names[a] < names[b]
	})
	for _, path := range names {
		t := s.flat.Lookup(path)
		d := s.depth[path]
		label := path
		if i := lastSep(path); i >= 0 {
			label = path[i+3:]
		}
		fmt.Fprintf(w, "%*s%s: %.6e s (%d calls)\n", 4*d, "", label, t.Total().Seconds(), t.Count())
	}
}

func lastSep(path string) int {
	for i := len(path) - 3; i >= 0; i-- {
		if path[i:i+3] == " / " {
			return i
		}
	}
	return -1
}
