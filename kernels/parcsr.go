package kernels

import (
	"github.com/james-bowman/sparse"

	"spmvbench/distmat"
)

// parCSRKernel is the foreign-format backend: it requires globally
// contiguous numbering, so the build derives contiguous maps, walks every
// entry through the GID translation (old local index, new contiguous global
// index, back to local storage position) and reassembles the local block
// through a DOK into its own CSR. Everything is deep-copied, vectors
// included; Spmv computes on the private buffers and marshals the result
// back into the shared y.
type parCSRKernel struct {
	a    *distmat.CSRMatrix
	x, y *distmat.Vector

	csr  *sparse.CSR
	xbuf []float64 // column-map order, private
	ybuf []float64 // prior y, private
	tmp  []float64 // raw product
}

func init() {
	Register(Factory{
		Name: "ParCSR",
		Build: func(a *distmat.CSRMatrix, x, y *distmat.Vector) (Kernel, error) {
			crow, ccol, _ := distmat.MakeContiguousMaps(a)
			m := a.LocalRows()
			n := a.LocalCols()

			// Old local index -> contiguous global ID -> storage position.
			// The round trip pins every entry to the renumbered index space
			// the foreign format expects.
			rowBase := crow.MinGID()
			dok := sparse.NewDOK(m, n)
			for i := 0; i < m; i++ {
				gi := crow.GID(i)
				for p := a.RowPtr[i]; p < a.RowPtr[i+1]; p++ {
					gj := ccol.GID(int(a.ColInd[p]))
					lj, ok := ccol.LID(gj)
					if !ok {
						panic("kernels: contiguous column map lost a GID it issued")
					}
					dok.Set(int(gi-rowBase), lj, a.Values[p])
				}
			}
			return &parCSRKernel{
				a:    a,
				x:    x,
				y:    y,
				csr:  dok.ToCSR(),
				xbuf: make([]float64, n),
				ybuf: make([]float64, m),
				tmp:  make([]float64, m),
			}, nil
		},
	})
}

func (k *parCSRKernel) Name() string     { return "ParCSR" }
func (k *parCSRKernel) OwnsMemory() bool { return true }

func (k *parCSRKernel) Spmv(alpha, beta float64) error {
	if beta != 0 {
		copy(k.ybuf, k.y.Values)
	}
	copy(k.xbuf, k.a.GatherX(k.x))
	// MulMatRawVec accumulates into its output; zero the product buffer
	// so a reused kernel does not double up.
	clear(k.tmp)
	sparse.MulMatRawVec(k.csr, k.xbuf, k.tmp)
	if beta == 0 {
		scaleInto(k.y.Values, k.tmp, alpha, 0)
		return nil
	}
	for i := range k.tmp {
		k.y.Values[i] = alpha*k.tmp[i] + beta*k.ybuf[i]
	}
	return nil
}

func (k *parCSRKernel) Free() {
	k.csr = nil
	k.xbuf = nil
	k.ybuf = nil
	k.tmp = nil
}
