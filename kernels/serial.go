package kernels

import (
	"fmt"

	"spmvbench/distmat"
)

// serialKernel is the single-process backend: a plain CRS sweep over the
// shared buffers with no halo exchange. Registered with a one-rank limit;
// a matrix that still carries an importer is rejected at build time.
type serialKernel struct {
	a    *distmat.CSRMatrix
	x, y *distmat.Vector
}

func init() {
	Register(Factory{
		Name:     "Serial",
		MaxRanks: 1,
		Build: func(a *distmat.CSRMatrix, x, y *distmat.Vector) (Kernel, error) {
			if a.Importer() != nil {
				return nil, fmt.Errorf("kernels: Serial needs a halo-free matrix")
			}
			return &serialKernel{a: a, x: x, y: y}, nil
		},
	})
}

func (k *serialKernel) Name() string     { return "Serial" }
func (k *serialKernel) OwnsMemory() bool { return false }

func (k *serialKernel) Spmv(alpha, beta float64) error {
	a := k.a
	for i := 0; i < a.LocalRows(); i++ {
		var sum float64
		for p := a.RowPtr[i]; p < a.RowPtr[i+1]; p++ {
			sum += a.Values[p] * k.x.Values[a.ColInd[p]]
		}
		if beta == 0 {
			k.y.Values[i] = alpha * sum
		} else {
			k.y.Values[i] = alpha*sum + beta*k.y.Values[i]
		}
	}
	return nil
}

func (k *serialKernel) Free() {}
