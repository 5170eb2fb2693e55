// Package driver runs the benchmark: it selects the usable SpMV backends,
// times each one over randomized repetitions, verifies results against the
// reference product, and hands the timings to the performance-model
// reporter.
package driver

import (
	"fmt"
	"io"
	"math"
	"math/rand"

	"spmvbench/comm"
	"spmvbench/distmat"
	"spmvbench/kernels"
	"spmvbench/perfmodel"
	"spmvbench/timing"
)

// normTol is the relative tolerance for the per-repetition norm check
// against the reference product.
const normTol = 1e-10

// Config selects what the driver runs and reports.
type Config struct {
	Nrepeat      int
	Seed         int64
	ReportNorms  bool
	VerboseModel bool
	UseStacked   bool
	NoModel      bool // skip the model tables and reporter (tests)

	// Disabled names backends the user switched off.
	Disabled map[string]bool

	// Out receives reports; only rank 0 writes. Defaults to io.Discard.
	Out io.Writer
}

// Driver holds the selected backends and the timers for one benchmark run.
type Driver struct {
	c    *comm.Comm
	a    *distmat.CSRMatrix
	x, y *distmat.Vector
	cfg  Config

	kernels []kernels.Kernel
	reg     *timing.Registry
	stacked *timing.StackedTimer
}

// New filters the registered backends against the configuration and the
// world size and builds the survivors. A backend that cannot run here is
// skipped with a warning, never a failure; the run degrades to whatever
// remains. Collective.
func New(c *comm.Comm, a *distmat.CSRMatrix, x, y *distmat.Vector, cfg Config) (*Driver, error) {
	if cfg.Nrepeat < 1 {
		return nil, fmt.Errorf("driver: nrepeat must be positive, got %d", cfg.Nrepeat)
	}
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	d := &Driver{c: c, a: a, x: x, y: y, cfg: cfg}
	if cfg.UseStacked {
		d.stacked = timing.NewStackedTimer()
	} else {
		d.reg = timing.NewRegistry()
	}

	for _, f := range kernels.Factories() {
		if cfg.Disabled[f.Name] {
			continue
		}
		if f.MaxRanks > 0 && c.Size() > f.MaxRanks {
			d.warn("%s was requested, but this kernel is not available on %d ranks. Disabling the test...\n",
				f.Name, c.Size())
			continue
		}
		k, ok := d.buildCollective(f)
		if !ok {
			continue
		}
		d.kernels = append(d.kernels, k)
	}
	if len(d.kernels) == 0 {
		return nil, fmt.Errorf("driver: no usable backend remains")
	}
	return d, nil
}

func (d *Driver) warn(format string, args ...any) {
	if d.c.Rank() == 0 {
		fmt.Fprintf(d.cfg.Out, format, args...)
	}
}

// buildCollective builds a backend and agrees across ranks on the outcome.
// Build constraints can be rank-local (they depend on local sizes), and a
// kernel that exists on some ranks only would desynchronize the broadcast
// experiment order, so a failure anywhere disables the backend everywhere.
func (d *Driver) buildCollective(f kernels.Factory) (kernels.Kernel, bool) {
	k, err := f.Build(d.a, d.x, d.y)
	ok := int64(1)
	if err != nil {
		ok = 0
	}
	if d.c.AllReduceInt64(ok, comm.Min) == 1 {
		return k, true
	}
	if k != nil {
		k.Free()
	}
	if err != nil {
		d.warn("%s was requested, but this kernel is not available (%v). Disabling the test...\n",
			f.Name, err)
	} else {
		d.warn("%s was requested, but this kernel is not available on some ranks. Disabling the test...\n",
			f.Name)
	}
	return nil, false
}

// Kernels returns the backends that survived selection, in registry order.
func (d *Driver) Kernels() []kernels.Kernel {
	return d.kernels
}

// Timers returns the flat timer registry, or nil when stacked timing is on.
func (d *Driver) Timers() *timing.Registry {
	return d.reg
}

func (d *Driver) startTimer(name string) func() {
	if d.stacked != nil {
		return d.stacked.Start(name)
	}
	return d.reg.Start(name)
}

// Run executes the benchmark: Nrepeat repetitions, each visiting every
// backend once in a per-repetition random order that rank 0 draws and
// broadcasts, so all ranks agree. Each visit times exactly one
// y = 1*A*x + 0*y with y armed to NaN, so a backend that silently skips the
// product poisons the norm check instead of passing it. Backend failures
// abort the run. Collective.
func (d *Driver) Run() error {
	d.x.Fill(1)
	d.y.Fill(math.NaN())

	var baseNorm float64
	var ref, diff *distmat.Vector
	if d.cfg.ReportNorms {
		ref = distmat.NewVector(d.a.RangeMap())
		diff = distmat.NewVector(d.a.RangeMap())
		d.a.Apply(d.x, ref)
		baseNorm = ref.Norm2()
		if d.c.Rank() == 0 {
			fmt.Fprintf(d.cfg.Out, "Reference norm: %.15e\n", baseNorm)
		}
	}

	var rng *rand.Rand
	if d.c.Rank() == 0 {
		rng = rand.New(rand.NewSource(d.cfg.Seed))
	}
	for rep := 0; rep < d.cfg.Nrepeat; rep++ {
		// Order decided on rank 0 and broadcast as explicit tags, so every
		// rank times the same backend at the same moment.
		var tags []int32
		if d.c.Rank() == 0 {
			for _, i := range rng.Perm(len(d.kernels)) {
				tags = append(tags, int32(i))
			}
		}
		tags = comm.Broadcast(d.c, 0, tags)

		for _, tag := range tags {
			if int(tag) < 0 || int(tag) >= len(d.kernels) {
				return fmt.Errorf("driver: rank 0 broadcast invalid backend tag %d", tag)
			}
			k := d.kernels[tag]

			stop := d.startTimer("MV " + k.Name() + ": Total")
			err := k.Spmv(1, 0)
			stop()
			if err != nil {
				return fmt.Errorf("driver: %s failed: %w", k.Name(), err)
			}

			if d.cfg.ReportNorms {
				norm := d.y.Norm2()
				// A NaN norm means the kernel never wrote its result: the
				// sentinel exists to catch exactly that, and no comparison
				// against the reference would (NaN fails every >).
				if math.IsNaN(norm) {
					return fmt.Errorf("driver: %s left NaN in y: kernel produced no result", k.Name())
				}
				for i := range diff.Values {
					diff.Values[i] = d.y.Values[i] - ref.Values[i]
				}
				diffNorm := diff.Norm2()
				bitSame := int64(0)
				if d.y.Equal(ref) {
					bitSame = 1
				}
				bitIdentical := d.c.AllReduceInt64(bitSame, comm.Min) == 1
				if d.c.Rank() == 0 {
					fmt.Fprintf(d.cfg.Out, "%s norm = %.15e reference = %.15e ||y-ref||_2 = %.6e bit-identical = %v\n",
						k.Name(), norm, baseNorm, diffNorm, bitIdentical)
					if diffNorm > normTol*math.Max(1, baseNorm) {
						fmt.Fprintf(d.cfg.Out, "WARNING: %s disagrees with the reference product\n", k.Name())
					}
				}
			}

			// Re-arm the sentinel and keep one backend's work from leaking
			// into the next timed block.
			d.y.Fill(math.NaN())
			d.c.Barrier()
		}
	}

	if d.c.Rank() == 0 {
		if d.stacked != nil {
			d.stacked.Report(d.cfg.Out)
		} else {
			d.reg.Summarize(d.cfg.Out)
		}
	}
	if !d.cfg.NoModel {
		d.reportModel()
	}
	return nil
}

// reportModel builds the lookup tables at the sizes this matrix touches and
// prints the predicted-vs-measured report. Collective.
func (d *Driver) reportModel() {
	pm := perfmodel.New(d.c)

	vLog := logMax(int64(d.a.LocalNNZ()))
	vLog = int(d.c.AllReduceInt64(int64(vLog), comm.Max))
	pm.BuildStreamTables(d.cfg.Nrepeat, vLog)

	pm.BuildPingpongTable(d.cfg.Nrepeat, 15)

	if im := d.a.Importer(); im != nil {
		msg := int64(im.NumExport()) * 8
		if r := int64(im.NumRemote()) * 8; r > msg {
			msg = r
		}
		hLog := int(d.c.AllReduceInt64(int64(logMax(msg)), comm.Max))
		pm.BuildHalopongTable(d.cfg.Nrepeat, hLog, im)
	}

	perfmodel.ReportSpmv(d.cfg.Out, pm, d.a, d.reg, d.cfg.VerboseModel)
}

// logMax returns ceil(log2(n))+1, the table exponent covering n bytes with
// one spare doubling.
func logMax(n int64) int {
	if n < 2 {
		return 1
	}
	return int(math.Ceil(math.Log2(float64(n)))) + 1
}

// Free releases every backend. The driver must not run afterward.
func (d *Driver) Free() {
	for _, k := range d.kernels {
		k.Free()
	}
	d.kernels = nil
}
