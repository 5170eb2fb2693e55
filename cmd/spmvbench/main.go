// Command spmvbench benchmarks sparse matrix-vector product backends on an
// in-process rank world and reports measured times against analytic
// performance models. The matrix comes from a file (MatrixMarket or the
// binary triplet format) or, by default, a generated 2D Laplace stencil.
package main

import (
	"flag"
	"fmt"
	"os"

	"spmvbench/comm"
	"spmvbench/distmat"
	"spmvbench/driver"
	"spmvbench/kernels"
)

func main() {
	nx := flag.Int("nx", 100, "generated Laplace grid width")
	ny := flag.Int("ny", 100, "generated Laplace grid height")
	matrixFile := flag.String("matrixfile", "", "matrix file to load instead of generating")
	binaryFile := flag.Bool("binary", false, "matrix file is in binary triplet format")
	nrepeat := flag.Int("nrepeat", 1000, "repetitions per backend")
	ranks := flag.Int("ranks", 1, "number of ranks")
	seed := flag.Int64("seed", 1, "experiment-order random seed")
	norms := flag.Bool("norms", false, "verify each product against the reference norm")
	stacked := flag.Bool("stackedtimer", false, "report nested timers instead of the flat table")
	verboseModel := flag.Bool("verbosemodel", false, "print the model lookup tables")
	showMatrix := flag.Bool("showmatrix", false, "describe the matrix before benchmarking")

	enabled := map[string]*bool{}
	for _, f := range kernels.Factories() {
		name := f.Name
		enabled[name] = flag.Bool(toFlag(name), true, "run the "+name+" backend")
	}
	flag.Parse()

	disabled := map[string]bool{}
	for name, on := range enabled {
		if !*on {
			disabled[name] = true
		}
	}

	if *ranks < 1 {
		fmt.Fprintln(os.Stderr, "spmvbench: -ranks must be at least 1")
		os.Exit(2)
	}
	world := comm.NewWorld(*ranks)
	err := world.Run(func(c *comm.Comm) error {
		var a *distmat.CSRMatrix
		var err error
		if *matrixFile != "" {
			a, err = distmat.LoadMatrix(c, *matrixFile, *binaryFile)
		} else {
			a, err = distmat.NewLaplace2D(c, *nx, *ny)
		}
		if err != nil {
			return err
		}
		desc := a.Describe() // collective
		if *showMatrix && c.Rank() == 0 {
			fmt.Println(desc)
		}

		x := distmat.NewVector(a.DomainMap())
		y := distmat.NewVector(a.RangeMap())
		d, err := driver.New(c, a, x, y, driver.Config{
			Nrepeat:      *nrepeat,
			Seed:         *seed,
			ReportNorms:  *norms,
			VerboseModel: *verboseModel,
			UseStacked:   *stacked,
			Disabled:     disabled,
			Out:          os.Stdout,
		})
		if err != nil {
			return err
		}
		defer d.Free()
		return d.Run()
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "spmvbench:", err)
		os.Exit(1)
	}
}

// toFlag lowercases a backend name into its enable flag.
func toFlag(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}
