package kernels

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"spmvbench/distmat"
)

// denseMaxEntries caps the dense expansion. A 100x100 Laplace problem is a
// 10000^2 dense matrix already; past this the backend refuses to build
// rather than exhaust memory.
const denseMaxEntries = 1 << 24

// denseKernel expands the local matrix into a gonum mat.Dense and runs the
// product through MulVec. Single rank only; the vectors alias the shared
// buffers through mat.NewVecDense, so results land in place.
type denseKernel struct {
	a    *distmat.CSRMatrix
	x, y *distmat.Vector
	d    *mat.Dense
	tmp  *mat.VecDense
}

func init() {
	Register(Factory{
		Name:     "Dense",
		MaxRanks: 1,
		Build: func(a *distmat.CSRMatrix, x, y *distmat.Vector) (Kernel, error) {
			m := a.LocalRows()
			n := a.LocalCols()
			if int64(m)*int64(n) > denseMaxEntries {
				return nil, fmt.Errorf("kernels: Dense expansion of %dx%d exceeds %d entries", m, n, denseMaxEntries)
			}
			d := mat.NewDense(m, n, nil)
			for i := 0; i < m; i++ {
				for p := a.RowPtr[i]; p < a.RowPtr[i+1]; p++ {
					d.Set(i, int(a.ColInd[p]), a.Values[p])
				}
			}
			return &denseKernel{
				a:   a,
				x:   x,
				y:   y,
				d:   d,
				tmp: mat.NewVecDense(m, nil),
			}, nil
		},
	})
}

func (k *denseKernel) Name() string     { return "Dense" }
func (k *denseKernel) OwnsMemory() bool { return false }

func (k *denseKernel) Spmv(alpha, beta float64) error {
	xv := mat.NewVecDense(len(k.x.Values), k.x.Values)
	if alpha == 1 && beta == 0 {
		yv := mat.NewVecDense(len(k.y.Values), k.y.Values)
		yv.MulVec(k.d, xv)
		return nil
	}
	k.tmp.MulVec(k.d, xv)
	scaleInto(k.y.Values, k.tmp.RawVector().Data, alpha, beta)
	return nil
}

func (k *denseKernel) Free() {
	k.d = nil
	k.tmp = nil
}
