package distmat

import (
	"fmt"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"spmvbench/comm"
)

func TestLaplaceStructure(t *testing.T) {
	for _, ranks := range []int{1, 3} {
		w := comm.NewWorld(ranks)
		err := w.Run(func(c *comm.Comm) error {
			nx, ny := 5, 7
			a, err := NewLaplace2D(c, nx, ny)
			if err != nil {
				return err
			}
			if a.GlobalRows() != int64(nx*ny) {
				return fmt.Errorf("global rows = %d", a.GlobalRows())
			}
			wantNNZ := int64(5*nx*ny - 2*nx - 2*ny)
			gotNNZ := c.AllReduceInt64(int64(a.LocalNNZ()), comm.Sum)
			if gotNNZ != wantNNZ {
				return fmt.Errorf("nnz = %d, want %d", gotNNZ, wantNNZ)
			}
			for i := 0; i < a.LocalRows(); i++ {
				if a.RowPtr[i+1] < a.RowPtr[i] {
					return fmt.Errorf("rowptr decreases at %d", i)
				}
			}
			if ranks > 1 && a.Importer() == nil {
				return fmt.Errorf("multi-rank stencil needs an importer")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("%d ranks: %v", ranks, err)
		}
	}
}

func TestNewCSRMatrixValidation(t *testing.T) {
	w := comm.NewWorld(1)
	err := w.Run(func(c *comm.Comm) error {
		m := NewContiguousMap(c, 2)
		// rowptr decreasing
		_, err := NewCSRMatrix(m, m, m, m, []int64{0, 2, 1}, []int32{0, 0}, []float64{1, 1}, nil)
		if err == nil {
			return fmt.Errorf("decreasing rowptr accepted")
		}
		// column index out of range
		_, err = NewCSRMatrix(m, m, m, m, []int64{0, 1, 2}, []int32{0, 5}, []float64{1, 1}, nil)
		if err == nil {
			return fmt.Errorf("out-of-range column accepted")
		}
		// wrong rowptr length
		_, err = NewCSRMatrix(m, m, m, m, []int64{0, 1}, []int32{0}, []float64{1}, nil)
		if err == nil {
			return fmt.Errorf("short rowptr accepted")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestApplyAgainstDense(t *testing.T) {
	w := comm.NewWorld(1)
	err := w.Run(func(c *comm.Comm) error {
		nx, ny := 4, 3
		a, err := NewLaplace2D(c, nx, ny)
		if err != nil {
			return err
		}
		n := a.LocalRows()
		d := mat.NewDense(n, n, nil)
		for i := 0; i < n; i++ {
			for p := a.RowPtr[i]; p < a.RowPtr[i+1]; p++ {
				d.Set(i, int(a.ColInd[p]), a.Values[p])
			}
		}

		x := NewVector(a.DomainMap())
		for i := range x.Values {
			x.Values[i] = float64(i + 1)
		}
		y := NewVector(a.RangeMap())
		a.Apply(x, y)

		var want mat.VecDense
		want.MulVec(d, mat.NewVecDense(n, x.Values))
		for i := 0; i < n; i++ {
			if math.Abs(y.Values[i]-want.AtVec(i)) > 1e-12 {
				return fmt.Errorf("y[%d] = %v, dense says %v", i, y.Values[i], want.AtVec(i))
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestApplyMatchesAcrossWorldSizes(t *testing.T) {
	nx, ny := 6, 6
	results := make(map[int][]float64)

	for _, ranks := range []int{1, 2, 4} {
		gathered := make([]float64, nx*ny)
		w := comm.NewWorld(ranks)
		err := w.Run(func(c *comm.Comm) error {
			a, err := NewLaplace2D(c, nx, ny)
			if err != nil {
				return err
			}
			x := NewVector(a.DomainMap())
			for i := range x.Values {
				// A value depending only on the global index, so every
				// world computes the same product.
				x.Values[i] = math.Sin(float64(a.DomainMap().GID(i)))
			}
			y := NewVector(a.RangeMap())
			a.Apply(x, y)

			all := comm.AllGather(c, y.Values)
			if c.Rank() == 0 {
				pos := 0
				for r := 0; r < ranks; r++ {
					pos += copy(gathered[pos:], all[r])
				}
			}
			return nil
		})
		if err != nil {
			t.Fatalf("%d ranks: %v", ranks, err)
		}
		results[ranks] = gathered
	}

	base := results[1]
	for _, ranks := range []int{2, 4} {
		for i := range base {
			if math.Abs(results[ranks][i]-base[i]) > 1e-12 {
				t.Fatalf("%d ranks: y[%d] = %v, single rank says %v",
					ranks, i, results[ranks][i], base[i])
			}
		}
	}
}

func TestAssembleRejectsBadTriplets(t *testing.T) {
	w := comm.NewWorld(2)
	err := w.Run(func(c *comm.Comm) error {
		// Both ranks pass locally invalid entries so the rejection happens
		// before any collective call: rank 0 an out-of-range column, rank 1
		// a row it does not own.
		var rows, cols []int64
		if c.Rank() == 0 {
			rows, cols = []int64{0}, []int64{-1}
		} else {
			rows, cols = []int64{0}, []int64{0}
		}
		_, err := AssembleFromTriplets(c, 4, 4, rows, cols, []float64{1})
		if err == nil {
			return fmt.Errorf("rank %d: invalid triplet accepted", c.Rank())
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}
