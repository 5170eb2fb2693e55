package kernels

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"spmvbench/distmat"
)

// poolKernel dispatches the local CRS sweep to a pool of workers behind an
// ordered task stream, the way a device backend queues kernels and fences.
// The row pointer is deep-copied down to int32 at build time (the storage
// format the workers index with); values and vectors stay borrowed. Spmv
// runs the halo gather on the calling goroutine, submits the sweep, and
// blocks until the stream drains.
type poolKernel struct {
	a    *distmat.CSRMatrix
	x, y *distmat.Vector

	rowPtr  []int32 // private copy
	tasks   chan func()
	drained chan struct{}
	workers int
	closed  bool
}

func init() {
	Register(Factory{
		Name: "Pool",
		Build: func(a *distmat.CSRMatrix, x, y *distmat.Vector) (Kernel, error) {
			if int64(a.LocalNNZ()) > math.MaxInt32 {
				return nil, fmt.Errorf("kernels: Pool row pointer needs int32, %d entries overflow", a.LocalNNZ())
			}
			k := &poolKernel{
				a:       a,
				x:       x,
				y:       y,
				rowPtr:  make([]int32, len(a.RowPtr)),
				tasks:   make(chan func(), 16),
				drained: make(chan struct{}),
				workers: runtime.NumCPU(),
			}
			for i, p := range a.RowPtr {
				k.rowPtr[i] = int32(p)
			}
			go k.stream()
			return k, nil
		},
	})
}

// stream executes submitted tasks in order, one at a time.
func (k *poolKernel) stream() {
	for task := range k.tasks {
		task()
	}
	close(k.drained)
}

func (k *poolKernel) Name() string     { return "Pool" }
func (k *poolKernel) OwnsMemory() bool { return false }

func (k *poolKernel) Spmv(alpha, beta float64) error {
	if k.closed {
		return &KernelError{Backend: "Pool", Op: "spmv", Err: fmt.Errorf("kernel already freed")}
	}
	// The halo gather is collective and must run on the rank goroutine,
	// not inside the stream.
	xg := k.a.GatherX(k.x)

	done := make(chan struct{})
	k.tasks <- func() {
		defer close(done)
		m := k.a.LocalRows()
		chunk := (m + k.workers - 1) / k.workers
		if chunk < 1 {
			chunk = 1
		}
		var wg sync.WaitGroup
		for lo := 0; lo < m; lo += chunk {
			hi := lo + chunk
			if hi > m {
				hi = m
			}
			wg.Add(1)
			go func(lo, hi int) {
				defer wg.Done()
				k.sweep(lo, hi, xg, alpha, beta)
			}(lo, hi)
		}
		wg.Wait()
	}
	<-done // fence: all device work visible before return
	return nil
}

func (k *poolKernel) sweep(lo, hi int, xg []float64, alpha, beta float64) {
	vals := k.a.Values
	cols := k.a.ColInd
	for i := lo; i < hi; i++ {
		var sum float64
		for p := k.rowPtr[i]; p < k.rowPtr[i+1]; p++ {
			sum += vals[p] * xg[cols[p]]
		}
		if beta == 0 {
			k.y.Values[i] = alpha * sum
		} else {
			k.y.Values[i] = alpha*sum + beta*k.y.Values[i]
		}
	}
}

func (k *poolKernel) Free() {
	if k.closed {
		return
	}
	k.closed = true
	close(k.tasks)
	<-k.drained
	k.rowPtr = nil
}
